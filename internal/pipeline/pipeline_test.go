package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/nadileaf/sourcing-agent/internal/adapter"
	"github.com/nadileaf/sourcing-agent/internal/capture"
	"github.com/nadileaf/sourcing-agent/internal/config"
	"github.com/nadileaf/sourcing-agent/internal/relay"
	"github.com/nadileaf/sourcing-agent/internal/types"
)

type fakeReplayer struct {
	result *types.ReplayResult
}

func (f *fakeReplayer) Replay(ctx context.Context, ev types.RequestEvent, settle time.Duration) (*types.ReplayResult, error) {
	res := *f.result
	res.Request = ev
	return &res, nil
}

type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []types.ResumeEvent
	outcome   types.SyncOutcome
	err       error
	done      chan struct{}
}

func (f *fakeSubmitter) Submit(ctx context.Context, ev types.ResumeEvent, user types.TipUser) (types.SyncOutcome, error) {
	f.mu.Lock()
	f.submitted = append(f.submitted, ev)
	f.mu.Unlock()
	select {
	case f.done <- struct{}{}:
	default:
	}
	return f.outcome, f.err
}

type fakeUsers struct {
	user *types.TipUser
}

func (f *fakeUsers) Current() *types.TipUser { return f.user }

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) NotifyTab(ctx context.Context, tabID, event string, payload any) error {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
	return nil
}

func (f *fakeNotifier) seen(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == event {
			return true
		}
	}
	return false
}

func testCatalog() *config.SiteCatalog {
	return &config.SiteCatalog{Sites: []config.SiteConfig{{
		Name:           "51job",
		Adapter:        "passthrough",
		ReplayPatterns: []string{"*://ehire.51job.com/api/resume/detail*"},
		HeaderPatterns: []string{"*://ehire.51job.com/api/resume/detail*"},
	}}}
}

func sendRequest(obs *capture.Observer, tabID, url string) {
	obs.OnRequestWillBeSent(tabID, &network.EventRequestWillBeSent{
		RequestID: network.RequestID("req-1"),
		Type:      network.ResourceTypeXHR,
		Request: &network.Request{
			URL:     url,
			Method:  http.MethodGet,
			Headers: network.Headers{"Cookie": "s=1"},
		},
	})
}

func newTestPipeline(t *testing.T, users UserSource, auto bool) (*Pipeline, *capture.Observer, *fakeSubmitter, *fakeNotifier) {
	t.Helper()
	cache := capture.NewHeaderCache(time.Minute)
	t.Cleanup(cache.Close)
	obs := capture.NewObserver(testCatalog(), cache)

	store := NewConfirmStore()
	tabs := newFakeTabs("tab-1")
	gate := NewGate(store, tabs, time.Millisecond, auto)
	sub := &fakeSubmitter{
		outcome: types.SyncOutcome{OpenID: "op-1", EntityType: "resume", TenantID: "t-1"},
		done:    make(chan struct{}, 4),
	}
	notifier := &fakeNotifier{}
	rep := &fakeReplayer{result: &types.ReplayResult{
		Status:   200,
		JSONBody: map[string]any{"name": "Chen"},
		Headers:  map[string]string{"Cookie": "s=1"},
	}}

	p := New(obs, rep, adapter.NewRegistry(adapter.NewFetcher(nil)), store, gate,
		users, sub, notifier, relay.NewBroker(), nil)
	return p, obs, sub, notifier
}

func TestPipelineEndToEndAutoSync(t *testing.T) {
	users := &fakeUsers{user: &types.TipUser{TenantAlias: "acme", Token: "jwt"}}
	p, obs, sub, notifier := newTestPipeline(t, users, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	sendRequest(obs, "tab-1", "https://ehire.51job.com/api/resume/detail?id=9")

	select {
	case <-sub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("submission never happened")
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.submitted) != 1 {
		t.Fatalf("submitted %d events; want 1", len(sub.submitted))
	}
	ev := sub.submitted[0]
	if ev.Site != "51job" || ev.JSONBody == nil {
		t.Errorf("submitted event = %+v; want normalized 51job event", ev)
	}
	if !notifier.seen("sync-resume-start") || !notifier.seen("sync-resume-feedback") {
		t.Errorf("tab notifications = %v; want start and feedback", notifier.events)
	}
}

func TestPipelineDropsEventWithoutUser(t *testing.T) {
	users := &fakeUsers{user: nil}
	p, obs, sub, _ := newTestPipeline(t, users, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	sendRequest(obs, "tab-1", "https://ehire.51job.com/api/resume/detail?id=9")

	select {
	case <-sub.done:
		t.Fatal("submission happened without a signed-in user")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPipelineWaitsForConfirmation(t *testing.T) {
	users := &fakeUsers{user: &types.TipUser{TenantAlias: "acme", Token: "jwt"}}
	p, obs, sub, _ := newTestPipeline(t, users, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	sendRequest(obs, "tab-1", "https://ehire.51job.com/api/resume/detail?id=9")

	select {
	case <-sub.done:
		t.Fatal("submission happened before confirmation")
	case <-time.After(100 * time.Millisecond):
	}

	p.Confirm("req-1")

	select {
	case <-sub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("submission never happened after confirmation")
	}
}

// The Cookie header never appears on the request event itself; it reaches
// the header cache through the extra-info event. A listen-mode re-fetch
// must go out with those cached cookies.
func TestListenModeRefetchCarriesMergedCookies(t *testing.T) {
	cookies := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case cookies <- r.Header.Get("Cookie"):
		default:
		}
		w.Write([]byte(`{"name":"Hao"}`))
	}))
	defer srv.Close()

	catalog := &config.SiteCatalog{Sites: []config.SiteConfig{{
		Name:           "maimai",
		Adapter:        "maimai",
		ListenPatterns: []string{srv.URL + "/profile*"},
		HeaderPatterns: []string{srv.URL + "/profile*"},
		PrefetchDelay:  5 * time.Millisecond,
	}}}
	cache := capture.NewHeaderCache(time.Minute)
	t.Cleanup(cache.Close)
	obs := capture.NewObserver(catalog, cache)

	store := NewConfirmStore()
	gate := NewGate(store, newFakeTabs("tab-1"), time.Millisecond, true)
	sub := &fakeSubmitter{done: make(chan struct{}, 4)}
	users := &fakeUsers{user: &types.TipUser{TenantAlias: "acme", Token: "jwt"}}
	p := New(obs, &fakeReplayer{result: &types.ReplayResult{}},
		adapter.NewRegistry(adapter.NewFetcher(nil)), store, gate,
		users, sub, &fakeNotifier{}, relay.NewBroker(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	obs.OnRequestExtraInfo(&network.EventRequestWillBeSentExtraInfo{
		RequestID: network.RequestID("req-1"),
		Headers:   network.Headers{"Cookie": "session=abc"},
	})
	obs.OnRequestWillBeSent("tab-1", &network.EventRequestWillBeSent{
		RequestID: network.RequestID("req-1"),
		Type:      network.ResourceTypeXHR,
		Request: &network.Request{
			URL:     srv.URL + "/profile?uid=7",
			Method:  http.MethodGet,
			Headers: network.Headers{"Accept": "application/json"},
		},
	})

	select {
	case <-sub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("re-fetched event never submitted")
	}
	select {
	case got := <-cookies:
		if got != "session=abc" {
			t.Errorf("re-fetch Cookie = %q; want session=abc", got)
		}
	default:
		t.Fatal("re-fetch never reached the profile server")
	}
}

func TestPipelineSendsFeedbackOnSubmitTransportError(t *testing.T) {
	users := &fakeUsers{user: &types.TipUser{TenantAlias: "acme", Token: "jwt"}}
	p, obs, sub, notifier := newTestPipeline(t, users, true)
	sub.err = errors.New("connection refused")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	sendRequest(obs, "tab-1", "https://ehire.51job.com/api/resume/detail?id=9")

	select {
	case <-sub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("submission never attempted")
	}

	deadline := time.Now().Add(2 * time.Second)
	for !notifier.seen("sync-resume-feedback") {
		if time.Now().After(deadline) {
			t.Fatal("no feedback notification after submit failure")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPipelineHTMLIntake(t *testing.T) {
	users := &fakeUsers{user: &types.TipUser{TenantAlias: "acme", Token: "jwt"}}
	p, _, sub, _ := newTestPipeline(t, users, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.SubmitHTML(ctx, types.ResumeEvent{
		TabID: "tab-1",
		URL:   "https://example.com/profile",
		HTML:  "<html><body>cv</body></html>",
		Site:  "html",
	})

	select {
	case <-sub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("html submission never happened")
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.submitted[0].JSONBody == nil {
		t.Error("html event submitted with nil JSONBody; want placeholder object")
	}
}
