package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/nadileaf/sourcing-agent/internal/jsonutil"
	"github.com/nadileaf/sourcing-agent/internal/pdf"
	"github.com/nadileaf/sourcing-agent/internal/types"
)

const (
	defaultLagouPreviewURL = "https://easy.lagou.com/im/chat/nearbyPreview.json"
	defaultLagouOrderBase  = "https://easy.lagou.com/order/orderResume"
)

// LagouCommunication handles resumes shared in the chat flow. The chat
// body may reference an attachment resume by id; a preview endpoint
// serves the file when one exists. A preview response without a
// content-disposition header is an HTML viewer page, not a file.
type LagouCommunication struct {
	fetcher    *Fetcher
	PreviewURL string
}

func NewLagouCommunication(f *Fetcher) *LagouCommunication {
	return &LagouCommunication{fetcher: f, PreviewURL: defaultLagouPreviewURL}
}

func (l *LagouCommunication) Name() string { return "lagou-communication" }

func (l *LagouCommunication) Normalize(ctx context.Context, in Input) (*types.ResumeEvent, error) {
	if in.Replay == nil || in.Replay.JSONBody == nil {
		return nil, fmt.Errorf("lagou-communication: no replay body for %s", in.Request.URL)
	}
	ev := baseEvent(in, in.Replay.JSONBody)

	id, _ := jsonutil.FindValueByKey(in.Replay.JSONBody, "attachmentResumeId")
	idStr := asString(id)
	if idStr == "" {
		return ev, nil
	}

	previewURL := fmt.Sprintf("%s?attachmentResumeId=%s", l.PreviewURL, url.QueryEscape(idStr))
	content, headers, err := l.fetcher.Get(ctx, previewURL, in.Replay.Headers)
	if err != nil {
		slog.Warn("lagou-communication: attachment fetch failed, continuing without",
			"attachment_resume_id", idStr, "error", err)
		return ev, nil
	}
	if headers.Get("Content-Disposition") == "" {
		slog.Debug("lagou-communication: preview is not a file, skipping attachment",
			"attachment_resume_id", idStr)
		return ev, nil
	}
	attach(ev, "resume.pdf", content)
	return ev, nil
}

// LagouOrder handles purchased resumes, which the site only exposes as
// per-page preview images. The page index is fetched first, then each
// page image in order, and the images are assembled into one PDF.
type LagouOrder struct {
	fetcher *Fetcher
	BaseURL string
}

func NewLagouOrder(f *Fetcher) *LagouOrder {
	return &LagouOrder{fetcher: f, BaseURL: defaultLagouOrderBase}
}

func (l *LagouOrder) Name() string { return "lagou-order" }

func (l *LagouOrder) Normalize(ctx context.Context, in Input) (*types.ResumeEvent, error) {
	if in.Replay == nil || in.Replay.JSONBody == nil {
		return nil, fmt.Errorf("lagou-order: no replay body for %s", in.Request.URL)
	}
	ev := baseEvent(in, in.Replay.JSONBody)

	orderID, _ := jsonutil.FindValueByKey(in.Replay.JSONBody, "orderId")
	idStr := asString(orderID)
	if idStr == "" {
		return ev, nil
	}

	infoURL := fmt.Sprintf("%s/preview_info.json?orderId=%s", l.BaseURL, url.QueryEscape(idStr))
	infoRaw, _, err := l.fetcher.Get(ctx, infoURL, in.Replay.Headers)
	if err != nil {
		slog.Warn("lagou-order: preview info fetch failed, continuing without attachment",
			"order_id", idStr, "error", err)
		return ev, nil
	}
	pageCount := gjson.GetBytes(infoRaw, "content.pageCount").Int()
	if pageCount <= 0 {
		pageCount = gjson.GetBytes(infoRaw, "pageCount").Int()
	}
	if pageCount <= 0 {
		return ev, nil
	}

	images := make([][]byte, 0, pageCount)
	for page := int64(1); page <= pageCount; page++ {
		pageURL := fmt.Sprintf("%s/page_image_%d?orderId=%s", l.BaseURL, page, url.QueryEscape(idStr))
		img, _, err := l.fetcher.Get(ctx, pageURL, in.Replay.Headers)
		if err != nil {
			slog.Warn("lagou-order: page image fetch failed, continuing without attachment",
				"order_id", idStr, "page", page, "error", err)
			return ev, nil
		}
		images = append(images, img)
	}

	doc, err := pdf.FromImages(images)
	if err != nil {
		slog.Warn("lagou-order: pdf assembly failed, continuing without attachment",
			"order_id", idStr, "error", err)
		return ev, nil
	}
	attach(ev, "resume.pdf", doc)
	return ev, nil
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return fmt.Sprintf("%.0f", s)
	default:
		return ""
	}
}
