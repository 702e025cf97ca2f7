// Package adapter normalizes site-specific resume exchanges into one
// event shape. Each supported recruiting site gets its own adapter;
// selection is driven by the site catalog.
package adapter

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nadileaf/sourcing-agent/internal/config"
	"github.com/nadileaf/sourcing-agent/internal/types"
)

// Input carries everything an adapter may need: the captured request and,
// for replay-mode sites, the parsed replay result.
type Input struct {
	Site    *config.SiteConfig
	Request types.RequestEvent
	Replay  *types.ReplayResult
}

// Adapter turns one captured exchange into a normalized resume event.
//
// Contract: the returned event always has a non-nil JSONBody, and
// FileContentB64 is nil or a single attachment tagged resumeAttachment.
// Secondary-fetch failures degrade (attachment or enrichment absent)
// rather than dropping the event.
type Adapter interface {
	Name() string
	Normalize(ctx context.Context, in Input) (*types.ResumeEvent, error)
}

// Registry maps catalog adapter names to implementations.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(fetcher *Fetcher) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range []Adapter{
		&Passthrough{},
		NewMaimai(fetcher),
		NewLagouCommunication(fetcher),
		NewLagouOrder(fetcher),
		NewZhaopin(fetcher),
		NewLinkedIn(fetcher),
	} {
		r.adapters[a.Name()] = a
	}
	return r
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Fetcher issues the secondary requests adapters need, carrying the
// captured page headers so the site sees the same session.
type Fetcher struct {
	client *http.Client
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{client: client}
}

// Do issues a request with the given headers and returns the raw body
// plus response headers. Non-2xx statuses are errors.
func (f *Fetcher) Do(ctx context.Context, method, url string, headers map[string]string, body io.Reader) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		if strings.EqualFold(k, "content-length") || strings.HasPrefix(k, ":") {
			continue
		}
		req.Header.Set(k, v)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.Header, fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode)
	}
	return raw, resp.Header, nil
}

func (f *Fetcher) Get(ctx context.Context, url string, headers map[string]string) ([]byte, http.Header, error) {
	return f.Do(ctx, http.MethodGet, url, headers, nil)
}

// baseEvent assembles the common fields every adapter shares.
func baseEvent(in Input, jsonBody any) *types.ResumeEvent {
	ev := &types.ResumeEvent{
		TabID:       in.Request.TabID,
		RequestID:   in.Request.RequestID,
		URL:         in.Request.URL,
		JSONBody:    jsonBody,
		RequestBody: string(in.Request.Body),
		Site:        in.Site.Name,
	}
	if in.Replay != nil {
		ev.RequestHeaders = in.Replay.Headers
	} else {
		ev.RequestHeaders = in.Request.Headers
	}
	return ev
}

func attach(ev *types.ResumeEvent, name string, content []byte) {
	ev.FileContentB64 = []types.AttachmentFile{{
		Tag:     "resumeAttachment",
		Name:    name,
		Content: base64.StdEncoding.EncodeToString(content),
	}}
}
