package adapter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/nadileaf/sourcing-agent/internal/types"
)

const defaultZhaopinAttachURL = "https://rd6.zhaopin.com/api/resume/getAttachResumeUrl"

// Zhaopin resolves the attachment in two hops: a POST built from the
// captured detail-request body yields a signed download URL, then the
// file itself is fetched from that URL.
type Zhaopin struct {
	fetcher   *Fetcher
	AttachURL string
}

func NewZhaopin(f *Fetcher) *Zhaopin {
	return &Zhaopin{fetcher: f, AttachURL: defaultZhaopinAttachURL}
}

func (z *Zhaopin) Name() string { return "zhaopin" }

func (z *Zhaopin) Normalize(ctx context.Context, in Input) (*types.ResumeEvent, error) {
	if in.Replay == nil || in.Replay.JSONBody == nil {
		return nil, fmt.Errorf("zhaopin: no replay body for %s", in.Request.URL)
	}
	ev := baseEvent(in, in.Replay.JSONBody)

	jobNumber := gjson.GetBytes(in.Request.Body, "jobNumber").String()
	resumeNumber := gjson.GetBytes(in.Request.Body, "resumeNumber").String()
	if resumeNumber == "" {
		return ev, nil
	}

	reqBody := fmt.Sprintf(`{"jobNumber":%q,"resumeNumber":%q,"language":1}`, jobNumber, resumeNumber)
	headers := copyHeaders(in.Replay.Headers)
	headers["Content-Type"] = "application/json"

	resolved, _, err := z.fetcher.Do(ctx, http.MethodPost, z.AttachURL, headers, bytes.NewReader([]byte(reqBody)))
	if err != nil {
		slog.Warn("zhaopin: attachment url resolve failed, continuing without",
			"resume_number", resumeNumber, "error", err)
		return ev, nil
	}
	fileURL := gjson.GetBytes(resolved, "data.url").String()
	if fileURL == "" {
		fileURL = gjson.GetBytes(resolved, "url").String()
	}
	if fileURL == "" {
		return ev, nil
	}

	content, _, err := z.fetcher.Get(ctx, fileURL, in.Replay.Headers)
	if err != nil {
		slog.Warn("zhaopin: attachment download failed, continuing without",
			"url", fileURL, "error", err)
		return ev, nil
	}
	attach(ev, "resume.pdf", content)
	return ev, nil
}

func copyHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h)+1)
	for k, v := range h {
		out[k] = v
	}
	return out
}
