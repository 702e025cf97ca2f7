// Package pipeline wires capture, replay, normalization, confirmation and
// submission into one flow.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nadileaf/sourcing-agent/internal/adapter"
	"github.com/nadileaf/sourcing-agent/internal/capture"
	"github.com/nadileaf/sourcing-agent/internal/config"
	"github.com/nadileaf/sourcing-agent/internal/relay"
	"github.com/nadileaf/sourcing-agent/internal/types"
)

// errCodeTransport marks a submission that never reached the backend,
// so the page still gets feedback when the POST itself fails.
const errCodeTransport = 502

// Replayer re-issues a captured request after the settle delay.
type Replayer interface {
	Replay(ctx context.Context, ev types.RequestEvent, settle time.Duration) (*types.ReplayResult, error)
}

// Submitter sends a normalized event to the backend and reports the
// outcome.
type Submitter interface {
	Submit(ctx context.Context, ev types.ResumeEvent, user types.TipUser) (types.SyncOutcome, error)
}

// UserSource exposes the currently signed-in user, nil when signed out.
type UserSource interface {
	Current() *types.TipUser
}

// Notifier injects progress events into the originating tab.
type Notifier interface {
	NotifyTab(ctx context.Context, tabID, event string, payload any) error
}

// Auditor appends one record per pipeline outcome.
type Auditor interface {
	Write(v any) error
}

// AuditRecord is what lands in the exchange audit log.
type AuditRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Stage     string    `json:"stage"`
	Site      string    `json:"site"`
	URL       string    `json:"url"`
	TabID     string    `json:"tabId"`
	RequestID string    `json:"requestId,omitempty"`
	OpenID    string    `json:"openId,omitempty"`
	ErrCode   int       `json:"errCode,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Pipeline owns the merge of all resume sources and drives each event
// through confirmation and submission.
type Pipeline struct {
	requests <-chan types.RequestEvent
	siteFor  func(url string) *config.SiteConfig
	headers  func(requestID string) (types.CapturedHeaders, bool)

	replayer  Replayer
	adapters  *adapter.Registry
	gate      *Gate
	store     *ConfirmStore
	users     UserSource
	submitter Submitter
	notifier  Notifier
	broker    *relay.Broker
	audit     Auditor

	merged chan types.ResumeEvent
}

func New(
	observer *capture.Observer,
	replayer Replayer,
	adapters *adapter.Registry,
	store *ConfirmStore,
	gate *Gate,
	users UserSource,
	submitter Submitter,
	notifier Notifier,
	broker *relay.Broker,
	audit Auditor,
) *Pipeline {
	return &Pipeline{
		requests:  observer.Events(),
		siteFor:   observer.SiteFor,
		headers:   observer.Headers,
		replayer:  replayer,
		adapters:  adapters,
		gate:      gate,
		store:     store,
		users:     users,
		submitter: submitter,
		notifier:  notifier,
		broker:    broker,
		audit:     audit,
		merged:    make(chan types.ResumeEvent, 16),
	}
}

// Run consumes captured requests and dispatches merged events until ctx
// is done.
func (p *Pipeline) Run(ctx context.Context) {
	go p.consumeRequests(ctx)
	p.dispatch(ctx)
}

// Confirm records a user approval arriving from the page.
func (p *Pipeline) Confirm(key string) {
	p.store.Confirm(key)
}

// SubmitHTML feeds an HTML snapshot capture into the merge alongside the
// adapter-produced events.
func (p *Pipeline) SubmitHTML(ctx context.Context, ev types.ResumeEvent) {
	if ev.JSONBody == nil {
		ev.JSONBody = map[string]any{}
	}
	select {
	case p.merged <- ev:
	case <-ctx.Done():
	}
}

func (p *Pipeline) consumeRequests(ctx context.Context) {
	for {
		select {
		case ev, ok := <-p.requests:
			if !ok {
				return
			}
			site := p.siteFor(ev.URL)
			if site == nil {
				continue
			}
			p.broker.PublishStage(relay.StageCaptured, map[string]any{
				"site": site.Name, "url": ev.URL, "tabId": ev.TabID,
			})
			go p.process(ctx, site, ev)
		case <-ctx.Done():
			return
		}
	}
}

// process turns one captured request into a normalized event and feeds
// the merge. Replay and adapter failures end the event here.
func (p *Pipeline) process(ctx context.Context, site *config.SiteConfig, ev types.RequestEvent) {
	in := adapter.Input{Site: site, Request: ev}

	if capture.MatchAny(site.ReplayPatterns, ev.URL) {
		res, err := p.replayer.Replay(ctx, ev, site.SettleDelay)
		if err != nil {
			slog.Warn("replay failed", "site", site.Name, "url", ev.URL, "error", err)
			p.fail(site.Name, ev.URL, ev.TabID, ev.RequestID, err)
			return
		}
		in.Replay = res
		p.broker.PublishStage(relay.StageReplayed, map[string]any{
			"site": site.Name, "url": ev.URL, "status": res.Status,
		})
	} else {
		// Listen mode. The request event alone lacks the Cookie header;
		// that only arrives on the extra-info event and lands in the
		// header cache. Wait out the prefetch delay so the merge has
		// happened, then carry the cached headers into the adapter.
		if site.PrefetchDelay > 0 {
			select {
			case <-time.After(site.PrefetchDelay):
			case <-ctx.Done():
				return
			}
		}
		if cached, ok := p.headers(ev.RequestID); ok {
			merged := make(map[string]string, len(cached.Headers)+len(ev.Headers))
			for k, v := range cached.Headers {
				merged[k] = v
			}
			for k, v := range ev.Headers {
				merged[k] = v
			}
			in.Request.Headers = merged
		}
	}

	a, ok := p.adapters.Get(site.Adapter)
	if !ok {
		slog.Error("no adapter for site", "site", site.Name, "adapter", site.Adapter)
		return
	}
	normalized, err := a.Normalize(ctx, in)
	if err != nil {
		slog.Warn("normalize failed", "site", site.Name, "url", ev.URL, "error", err)
		p.fail(site.Name, ev.URL, ev.TabID, ev.RequestID, err)
		return
	}
	p.broker.PublishStage(relay.StageNormalized, map[string]any{
		"site": site.Name, "url": ev.URL,
		"hasAttachment": len(normalized.FileContentB64) == 1,
	})

	select {
	case p.merged <- *normalized:
	case <-ctx.Done():
	}
}

func (p *Pipeline) dispatch(ctx context.Context) {
	for {
		select {
		case ev := <-p.merged:
			go p.handle(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

// handle takes one merged event through the user check, the confirmation
// gate, and submission.
func (p *Pipeline) handle(ctx context.Context, ev types.ResumeEvent) {
	user := p.users.Current()
	if !user.Valid() {
		slog.Warn("dropping resume, no signed-in user", "site", ev.Site, "url", ev.URL)
		return
	}

	if err := p.notifier.NotifyTab(ctx, ev.TabID, "sync-resume-start", map[string]any{
		"requestId": ev.RequestID,
	}); err != nil {
		slog.Debug("start notification failed", "tab_id", ev.TabID, "error", err)
	}

	confirmed, err := p.gate.Wait(ctx, ev.RequestID, ev.TabID)
	if err != nil {
		return
	}
	if !confirmed {
		slog.Debug("resume declined, tab closed", "site", ev.Site, "tab_id", ev.TabID)
		return
	}
	p.broker.PublishStage(relay.StageConfirmed, map[string]any{
		"site": ev.Site, "url": ev.URL, "tabId": ev.TabID,
	})

	outcome, err := p.submitter.Submit(ctx, ev, *user)
	if err != nil {
		slog.Error("submission failed", "site", ev.Site, "url", ev.URL, "error", err)
		feedback := types.SyncOutcome{ErrCode: errCodeTransport, ErrMessage: err.Error()}
		if notifyErr := p.notifier.NotifyTab(ctx, ev.TabID, "sync-resume-feedback", feedback); notifyErr != nil {
			slog.Debug("feedback notification failed", "tab_id", ev.TabID, "error", notifyErr)
		}
		p.fail(ev.Site, ev.URL, ev.TabID, ev.RequestID, err)
		return
	}

	if notifyErr := p.notifier.NotifyTab(ctx, ev.TabID, "sync-resume-feedback", outcome); notifyErr != nil {
		slog.Debug("feedback notification failed", "tab_id", ev.TabID, "error", notifyErr)
	}

	record := AuditRecord{
		Timestamp: time.Now().UTC(),
		Site:      ev.Site,
		URL:       ev.URL,
		TabID:     ev.TabID,
		RequestID: ev.RequestID,
		OpenID:    outcome.OpenID,
		ErrCode:   outcome.ErrCode,
		Error:     outcome.ErrMessage,
	}
	if outcome.Succeeded() {
		record.Stage = relay.StageSynced
		p.broker.PublishStage(relay.StageSynced, map[string]any{
			"site": ev.Site, "openId": outcome.OpenID,
			"entityType": outcome.EntityType, "tenantId": outcome.TenantID,
		})
	} else {
		record.Stage = relay.StageFailed
		p.broker.PublishStage(relay.StageFailed, map[string]any{
			"site": ev.Site, "errCode": outcome.ErrCode, "errMessage": outcome.ErrMessage,
		})
	}
	if p.audit != nil {
		if err := p.audit.Write(record); err != nil {
			slog.Debug("audit write failed", "error", err)
		}
	}
}

func (p *Pipeline) fail(site, url, tabID, requestID string, err error) {
	p.broker.PublishStage(relay.StageFailed, map[string]any{
		"site": site, "url": url, "error": err.Error(),
	})
	if p.audit != nil {
		_ = p.audit.Write(AuditRecord{
			Timestamp: time.Now().UTC(),
			Stage:     relay.StageFailed,
			Site:      site,
			URL:       url,
			TabID:     tabID,
			RequestID: requestID,
			Error:     err.Error(),
		})
	}
}
