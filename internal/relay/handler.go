package relay

import (
	"fmt"
	"net/http"
	"strings"
)

// SSEHandler returns an http.HandlerFunc that streams pipeline events as
// SSE. Clients may filter stages via ?stages=name1,name2 query parameter.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		// Parse optional stage filter.
		var stageFilter map[string]bool
		if q := r.URL.Query().Get("stages"); q != "" {
			stageFilter = make(map[string]bool)
			for _, s := range strings.Split(q, ",") {
				if s = strings.TrimSpace(s); s != "" {
					stageFilter[s] = true
				}
			}
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if stageFilter != nil && !stageFilter[evt.Stage] {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Stage, evt.Payload)
				flusher.Flush()
			}
		}
	}
}
