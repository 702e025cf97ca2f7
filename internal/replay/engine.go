// Package replay re-issues captured page requests out-of-band so response
// bodies can be read without touching the page's own exchange.
package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nadileaf/sourcing-agent/internal/capture"
	"github.com/nadileaf/sourcing-agent/internal/types"
)

// Headers the client computes itself; carrying stale captured values over
// breaks the replayed request.
var skipHeaders = map[string]bool{
	"host":            true,
	"content-length":  true,
	"connection":      true,
	"accept-encoding": true,
}

// Engine replays captured requests with their cached headers after a
// per-site settle delay.
type Engine struct {
	cache  *capture.HeaderCache
	client *http.Client
}

func NewEngine(cache *capture.HeaderCache, client *http.Client) *Engine {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Engine{cache: cache, client: client}
}

// Replay waits out the settle delay, reconstructs the request from the
// captured event plus cached headers, re-issues it, and parses the JSON
// response. A header-cache miss degrades to empty headers.
func (e *Engine) Replay(ctx context.Context, ev types.RequestEvent, settle time.Duration) (*types.ReplayResult, error) {
	if settle > 0 {
		select {
		case <-time.After(settle):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	headers := make(map[string]string)
	if cached, ok := e.cache.Get(ev.RequestID); ok {
		headers = cached.Headers
	} else {
		slog.Debug("no cached headers for replay, sending bare request",
			"request_id", ev.RequestID, "url", ev.URL)
	}

	body := BuildBody(ev.ContentType, ev.Body)
	req, err := http.NewRequestWithContext(ctx, ev.Method, ev.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build replay request: %w", err)
	}
	for k, v := range headers {
		if skipHeaders[strings.ToLower(k)] || strings.HasPrefix(k, ":") {
			continue
		}
		req.Header.Set(k, v)
	}
	if ev.ContentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", ev.ContentType)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", ev.URL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read replay response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("replay %s: status %d", ev.URL, resp.StatusCode)
	}

	var jsonBody any
	if err := json.Unmarshal(raw, &jsonBody); err != nil {
		return nil, fmt.Errorf("parse replay response: %w", err)
	}

	result := &types.ReplayResult{
		Request:  ev,
		Headers:  headers,
		Status:   resp.StatusCode,
		JSONBody: jsonBody,
		RawBody:  raw,
	}
	result.Request.Body = body
	return result, nil
}

// BuildBody reconstructs the outgoing body by content type: urlencoded
// forms are re-encoded field by field, multipart payloads pass through as
// raw bytes, everything else is treated as UTF-8 text.
func BuildBody(contentType string, captured []byte) []byte {
	if len(captured) == 0 {
		return nil
	}
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "application/x-www-form-urlencoded"):
		form, err := url.ParseQuery(string(captured))
		if err != nil {
			return captured
		}
		return []byte(form.Encode())
	case strings.Contains(ct, "multipart/form-data"):
		return captured
	default:
		return captured
	}
}
