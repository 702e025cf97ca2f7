package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nadileaf/sourcing-agent/internal/jsonutil"
	"github.com/nadileaf/sourcing-agent/internal/types"
)

// Maimai works in listen mode: the page's own exchange is left alone and
// the profile endpoint is re-fetched with the session headers captured
// for the original request. When the profile references an uploaded
// resume file, that file is fetched and attached.
type Maimai struct {
	fetcher *Fetcher
}

func NewMaimai(f *Fetcher) *Maimai { return &Maimai{fetcher: f} }

func (m *Maimai) Name() string { return "maimai" }

func (m *Maimai) Normalize(ctx context.Context, in Input) (*types.ResumeEvent, error) {
	raw, _, err := m.fetcher.Get(ctx, in.Request.URL, in.Request.Headers)
	if err != nil {
		return nil, fmt.Errorf("maimai: refetch profile: %w", err)
	}
	var jsonBody any
	if err := json.Unmarshal(raw, &jsonBody); err != nil {
		return nil, fmt.Errorf("maimai: parse profile: %w", err)
	}

	ev := baseEvent(in, jsonBody)

	fileURL, _ := jsonutil.FindValueByKey(jsonBody, "file_url")
	if s, ok := fileURL.(string); ok && s != "" {
		content, _, err := m.fetcher.Get(ctx, s, in.Request.Headers)
		if err != nil {
			slog.Warn("maimai: attachment fetch failed, continuing without",
				"url", s, "error", err)
		} else {
			attach(ev, "resume.pdf", content)
		}
	}
	return ev, nil
}
