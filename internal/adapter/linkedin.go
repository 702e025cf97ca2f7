package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/nadileaf/sourcing-agent/internal/types"
)

const defaultLinkedInContactBase = "https://www.linkedin.com/talent/api/talentLinkedInMemberProfiles"

var (
	memberProfileRe = regexp.MustCompile(`urn:li:ts_linkedin_member_profile:\(([^,]+)`)
	contractRe      = regexp.MustCompile(`\(urn:li:ts_contract:(\d+),(\d+)\)`)
)

// LinkedIn enriches the replayed talent profile with contact info. The
// enrichment call needs the page's CSRF token and two ids that only occur
// inside the profile request URL. Any enrichment failure degrades to the
// un-enriched profile.
type LinkedIn struct {
	fetcher     *Fetcher
	ContactBase string
}

func NewLinkedIn(f *Fetcher) *LinkedIn {
	return &LinkedIn{fetcher: f, ContactBase: defaultLinkedInContactBase}
}

func (l *LinkedIn) Name() string { return "linkedin" }

func (l *LinkedIn) Normalize(ctx context.Context, in Input) (*types.ResumeEvent, error) {
	if in.Replay == nil || in.Replay.JSONBody == nil {
		return nil, fmt.Errorf("linkedin: no replay body for %s", in.Request.URL)
	}
	ev := baseEvent(in, in.Replay.JSONBody)

	decoded, err := url.QueryUnescape(in.Request.URL)
	if err != nil {
		decoded = in.Request.URL
	}
	member := memberProfileRe.FindStringSubmatch(decoded)
	contract := contractRe.FindStringSubmatch(decoded)
	csrf := csrfToken(in.Replay.Headers)
	if member == nil || contract == nil || csrf == "" {
		slog.Debug("linkedin: enrichment inputs missing, keeping profile as-is",
			"url", in.Request.URL)
		return ev, nil
	}

	contactURL := fmt.Sprintf(
		"%s/urn%%3Ali%%3Ats_linkedin_member_profile%%3A(%s,%s,urn%%3Ali%%3Ats_contract%%3A%s)?decoration=(contactInfo)",
		l.ContactBase, url.QueryEscape(member[1]), contract[1], contract[2],
	)
	headers := copyHeaders(in.Replay.Headers)
	headers["Csrf-Token"] = csrf

	contactRaw, _, err := l.fetcher.Get(ctx, contactURL, headers)
	if err != nil {
		slog.Warn("linkedin: contact info fetch failed, keeping profile as-is",
			"error", err)
		return ev, nil
	}
	if !json.Valid(contactRaw) {
		slog.Warn("linkedin: contact info response not JSON, keeping profile as-is")
		return ev, nil
	}

	merged, err := sjson.SetRawBytes(in.Replay.RawBody, "contactInfo", contactRaw)
	if err != nil {
		slog.Warn("linkedin: contact info merge failed, keeping profile as-is",
			"error", err)
		return ev, nil
	}
	var enriched any
	if err := json.Unmarshal(merged, &enriched); err != nil {
		return ev, nil
	}
	ev.JSONBody = enriched
	return ev, nil
}

func csrfToken(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "csrf-token") {
			return v
		}
	}
	return ""
}
