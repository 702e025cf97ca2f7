// Package syncer submits normalized resumes to the ingestion backend and
// waits for the entity to materialize.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nadileaf/sourcing-agent/internal/types"
)

// ErrCodeTimeout marks a submission whose entity never materialized
// within the polling window. Distinct from any real HTTP status.
const ErrCodeTimeout = 666

// Submitter posts resume events and polls the entity store until the
// synced entity becomes visible.
type Submitter struct {
	host        string
	spaceServer string
	client      *http.Client

	interval    time.Duration
	maxAttempts int
}

func New(host, spaceServer string, client *http.Client, interval time.Duration, maxAttempts int) *Submitter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 30
	}
	return &Submitter{
		host:        host,
		spaceServer: spaceServer,
		client:      client,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

type syncRequest struct {
	HTML           string                 `json:"html,omitempty"`
	JSONBody       any                    `json:"jsonBody"`
	RequestBody    string                 `json:"requestBody,omitempty"`
	RequestHeaders map[string]string      `json:"requestHeaders,omitempty"`
	RequestURL     string                 `json:"requestUrl"`
	FileContentB64 []types.AttachmentFile `json:"fileContentB64,omitempty"`
}

type syncResponse struct {
	Data struct {
		OpenID     string `json:"openId"`
		EntityType string `json:"entityType"`
		TenantID   string `json:"tenantId"`
	} `json:"data"`
}

// Submit posts one event and polls until the entity exists. The returned
// outcome always carries either the entity coordinates or an error code;
// err is reserved for transport-level failures of the initial POST.
func (s *Submitter) Submit(ctx context.Context, ev types.ResumeEvent, user types.TipUser) (types.SyncOutcome, error) {
	body, err := json.Marshal(syncRequest{
		HTML:           ev.HTML,
		JSONBody:       ev.JSONBody,
		RequestBody:    ev.RequestBody,
		RequestHeaders: ev.RequestHeaders,
		RequestURL:     ev.URL,
		FileContentB64: ev.FileContentB64,
	})
	if err != nil {
		return types.SyncOutcome{}, fmt.Errorf("marshal sync request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.host+"/v1/sync-entity/all", bytes.NewReader(body))
	if err != nil {
		return types.SyncOutcome{}, fmt.Errorf("build sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+user.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return types.SyncOutcome{}, fmt.Errorf("sync post: %w", err)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return types.SyncOutcome{}, fmt.Errorf("read sync response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return types.SyncOutcome{
			ErrCode:    resp.StatusCode,
			ErrMessage: string(raw),
		}, nil
	}

	var sr syncResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return types.SyncOutcome{
			ErrCode:    resp.StatusCode,
			ErrMessage: fmt.Sprintf("unparsable sync response: %v", err),
		}, nil
	}

	slog.Info("resume submitted, awaiting entity",
		"open_id", sr.Data.OpenID, "entity_type", sr.Data.EntityType, "site", ev.Site)

	return s.awaitEntity(ctx, sr.Data.EntityType, sr.Data.OpenID, sr.Data.TenantID, user.Token)
}

// awaitEntity polls the entity store. 404 means still indexing; any other
// failure is terminal. Running out of attempts yields the timeout code.
func (s *Submitter) awaitEntity(ctx context.Context, entityType, openID, tenantID, token string) (types.SyncOutcome, error) {
	url := fmt.Sprintf("%s/v2/entities/%s/%s?_proxy=true", s.spaceServer, entityType, openID)

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		select {
		case <-time.After(s.interval):
		case <-ctx.Done():
			return types.SyncOutcome{}, ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return types.SyncOutcome{}, fmt.Errorf("build status request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := s.client.Do(req)
		if err != nil {
			return types.SyncOutcome{}, fmt.Errorf("status poll: %w", err)
		}
		status := resp.StatusCode
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		switch {
		case status >= 200 && status <= 299:
			return types.SyncOutcome{
				OpenID:     openID,
				EntityType: entityType,
				TenantID:   tenantID,
			}, nil
		case status == http.StatusNotFound:
			slog.Debug("entity not ready", "open_id", openID, "attempt", attempt)
		default:
			return types.SyncOutcome{
				ErrCode:    status,
				ErrMessage: string(msg),
			}, nil
		}
	}

	return types.SyncOutcome{
		ErrCode:    ErrCodeTimeout,
		ErrMessage: fmt.Sprintf("entity %s/%s not visible after %d attempts", entityType, openID, s.maxAttempts),
	}, nil
}
