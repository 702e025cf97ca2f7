package capture

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/nadileaf/sourcing-agent/internal/config"
	"github.com/nadileaf/sourcing-agent/internal/types"
)

// watchedResourceTypes limits observation to page-initiated exchanges.
// Everything else (images, scripts, preflights) is noise here.
var watchedResourceTypes = map[network.ResourceType]bool{
	network.ResourceTypeDocument: true,
	network.ResourceTypeXHR:      true,
	network.ResourceTypeFetch:    true,
}

// Observer correlates network events from attached tabs against the site
// catalog, feeds the header cache, and emits matched requests.
type Observer struct {
	sites  []config.SiteConfig
	cache  *HeaderCache
	events chan types.RequestEvent
}

func NewObserver(catalog *config.SiteCatalog, cache *HeaderCache) *Observer {
	return &Observer{
		sites:  catalog.Sites,
		cache:  cache,
		events: make(chan types.RequestEvent, 64),
	}
}

// Events is the stream of matched requests. The channel is buffered; the
// observer never blocks the CDP event loop waiting for a consumer.
func (o *Observer) Events() <-chan types.RequestEvent {
	return o.events
}

// OnRequestWillBeSent handles the body half of a request. Pre-flights and
// non-tab resource types are dropped before any matching.
func (o *Observer) OnRequestWillBeSent(tabID string, ev *network.EventRequestWillBeSent) {
	if ev.Request.Method == http.MethodOptions {
		return
	}
	if !watchedResourceTypes[ev.Type] {
		return
	}
	url := ev.Request.URL

	headers := headerMapToStringMap(ev.Request.Headers)
	if o.siteForHeaders(url) != nil {
		o.cache.Put(string(ev.RequestID), url, ev.Request.Method, headers)
	}

	site := o.siteForRequest(url)
	if site == nil {
		return
	}

	event := types.RequestEvent{
		RequestID:   string(ev.RequestID),
		TabID:       tabID,
		URL:         url,
		Method:      ev.Request.Method,
		Headers:     headers,
		ContentType: contentTypeOf(headers),
		Body:        decodePostData(ev),
		Timestamp:   time.Now().UTC(),
	}

	select {
	case o.events <- event:
	default:
		slog.Warn("request event dropped, consumer behind",
			"request_id", event.RequestID, "url", url)
	}
}

// OnRequestExtraInfo handles the header half. It can fire before or after
// OnRequestWillBeSent for the same request id.
func (o *Observer) OnRequestExtraInfo(ev *network.EventRequestWillBeSentExtraInfo) {
	o.cache.Merge(string(ev.RequestID), headerMapToStringMap(ev.Headers))
}

// Headers returns the cached entry for a request id with both event
// halves merged, so consumers see the cookies that only arrive on the
// extra-info event.
func (o *Observer) Headers(requestID string) (types.CapturedHeaders, bool) {
	return o.cache.Get(requestID)
}

// SiteFor returns the catalog entry matching url, or nil.
func (o *Observer) SiteFor(url string) *config.SiteConfig {
	return o.siteForRequest(url)
}

func (o *Observer) siteForRequest(url string) *config.SiteConfig {
	for i := range o.sites {
		s := &o.sites[i]
		if MatchAny(s.ReplayPatterns, url) || MatchAny(s.ListenPatterns, url) {
			return s
		}
	}
	return nil
}

func (o *Observer) siteForHeaders(url string) *config.SiteConfig {
	for i := range o.sites {
		s := &o.sites[i]
		if MatchAny(s.HeaderPatterns, url) {
			return s
		}
	}
	return nil
}

func decodePostData(ev *network.EventRequestWillBeSent) []byte {
	if !ev.Request.HasPostData || len(ev.Request.PostDataEntries) == 0 {
		return nil
	}
	var body []byte
	for _, entry := range ev.Request.PostDataEntries {
		if entry.Bytes == "" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(entry.Bytes)
		if err != nil {
			body = append(body, []byte(entry.Bytes)...)
		} else {
			body = append(body, decoded...)
		}
	}
	return body
}

func contentTypeOf(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "content-type") {
			return v
		}
	}
	return ""
}

func headerMapToStringMap(headers map[string]any) map[string]string {
	result := make(map[string]string, len(headers))
	for k, v := range headers {
		if s, ok := v.(string); ok {
			result[k] = s
		}
	}
	return result
}
