package replay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/nadileaf/sourcing-agent/internal/capture"
	"github.com/nadileaf/sourcing-agent/internal/types"
)

func newTestEngine(t *testing.T) (*Engine, *capture.HeaderCache) {
	t.Helper()
	cache := capture.NewHeaderCache(time.Minute)
	t.Cleanup(cache.Close)
	return NewEngine(cache, &http.Client{Timeout: 5 * time.Second}), cache
}

func TestReplayCarriesCachedHeaders(t *testing.T) {
	var gotCookie, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotToken = r.Header.Get("X-L-Req-Header")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	engine, cache := newTestEngine(t)
	cache.Put("req-1", srv.URL, "GET", map[string]string{
		"Cookie":         "session=abc",
		"X-L-REQ-HEADER": "{deviceType:1}",
		"Content-Length": "999",
	})

	res, err := engine.Replay(context.Background(), types.RequestEvent{
		RequestID: "req-1",
		URL:       srv.URL,
		Method:    "GET",
	}, 0)
	if err != nil {
		t.Fatalf("Replay() = %v; want nil", err)
	}
	if gotCookie != "session=abc" {
		t.Errorf("replayed Cookie = %q; want session=abc", gotCookie)
	}
	if gotToken != "{deviceType:1}" {
		t.Errorf("replayed X-L-REQ-HEADER = %q; want original value", gotToken)
	}
	if res.Status != 200 {
		t.Errorf("Status = %d; want 200", res.Status)
	}
	body, ok := res.JSONBody.(map[string]any)
	if !ok || body["ok"] != true {
		t.Errorf("JSONBody = %v; want {ok:true}", res.JSONBody)
	}
}

func TestReplayHeaderCacheMissIsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	engine, _ := newTestEngine(t)
	_, err := engine.Replay(context.Background(), types.RequestEvent{
		RequestID: "never-cached",
		URL:       srv.URL,
		Method:    "GET",
	}, 0)
	if err != nil {
		t.Fatalf("Replay() with cache miss = %v; want nil", err)
	}
}

func TestReplayFormBodyReencoded(t *testing.T) {
	var gotBody string
	var gotCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotCT = r.Header.Get("Content-Type")
		w.Write([]byte(`{"ok":1}`))
	}))
	defer srv.Close()

	engine, _ := newTestEngine(t)
	_, err := engine.Replay(context.Background(), types.RequestEvent{
		RequestID:   "req-form",
		URL:         srv.URL,
		Method:      "POST",
		ContentType: "application/x-www-form-urlencoded",
		Body:        []byte("resumeId=r%2F1&page=2"),
	}, 0)
	if err != nil {
		t.Fatalf("Replay() = %v; want nil", err)
	}
	form, err := url.ParseQuery(gotBody)
	if err != nil {
		t.Fatalf("server received unparsable form %q: %v", gotBody, err)
	}
	if form.Get("resumeId") != "r/1" || form.Get("page") != "2" {
		t.Errorf("form = %v; want resumeId=r/1 page=2", form)
	}
	if gotCT != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q; want form encoding", gotCT)
	}
}

func TestReplayNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	engine, _ := newTestEngine(t)
	_, err := engine.Replay(context.Background(), types.RequestEvent{
		RequestID: "req-403",
		URL:       srv.URL,
		Method:    "GET",
	}, 0)
	if err == nil {
		t.Fatal("Replay() = nil; want error for status 403")
	}
}

func TestReplayHonorsSettleDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	engine, _ := newTestEngine(t)
	start := time.Now()
	_, err := engine.Replay(context.Background(), types.RequestEvent{
		RequestID: "req-delay",
		URL:       srv.URL,
		Method:    "GET",
	}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Replay() = %v; want nil", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("replay fired after %v; want >= settle delay", elapsed)
	}
}

func TestBuildBodyMultipartRaw(t *testing.T) {
	raw := []byte("--boundary\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\n1\r\n--boundary--")
	got := BuildBody("multipart/form-data; boundary=boundary", raw)
	if string(got) != string(raw) {
		t.Error("BuildBody(multipart) altered raw bytes")
	}
}
