// Package notify posts sync outcomes to an ntfy-compatible endpoint so
// the operator hears about submissions without watching the log.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nadileaf/sourcing-agent/internal/types"
)

// Notifier sends plain-text messages to a single endpoint. A zero
// endpoint disables it.
type Notifier struct {
	endpoint string
	client   *http.Client
}

func New(endpoint string, client *http.Client) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Notifier{endpoint: endpoint, client: client}
}

// Enabled reports whether an endpoint is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.endpoint != ""
}

// SyncOutcome formats and sends the terminal result of one submission.
func (n *Notifier) SyncOutcome(ctx context.Context, site string, outcome types.SyncOutcome) error {
	if !n.Enabled() {
		return nil
	}
	var message string
	if outcome.Succeeded() {
		message = fmt.Sprintf("synced %s resume: %s/%s", site, outcome.EntityType, outcome.OpenID)
	} else {
		message = fmt.Sprintf("sync failed for %s: code=%d %s", site, outcome.ErrCode, outcome.ErrMessage)
	}
	return Send(ctx, n.client, n.endpoint, message)
}

// Send posts a message to the requested endpoint.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
