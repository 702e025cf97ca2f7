package syncer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nadileaf/sourcing-agent/internal/types"
)

func testEvent() types.ResumeEvent {
	return types.ResumeEvent{
		TabID:    "tab-1",
		URL:      "https://rd6.zhaopin.com/api/resume/detail",
		JSONBody: map[string]any{"name": "Li"},
		Site:     "zhaopin",
	}
}

func testUser() types.TipUser {
	return types.TipUser{TenantAlias: "acme", TenantID: "t-1", Token: "jwt-token"}
}

func newSubmitter(srv *httptest.Server, maxAttempts int) *Submitter {
	return New(srv.URL, srv.URL, srv.Client(), time.Millisecond, maxAttempts)
}

func TestSubmitPollsUntilEntityVisible(t *testing.T) {
	var polls atomic.Int32
	var gotAuth, gotBody string

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sync-entity/all", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Write([]byte(`{"data":{"openId":"op-1","entityType":"resume","tenantId":"t-1"}}`))
	})
	mux.HandleFunc("/v2/entities/resume/op-1", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("_proxy") != "true" {
			t.Error("status poll missing _proxy=true")
		}
		if polls.Add(1) <= 3 {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"id":"op-1"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	outcome, err := newSubmitter(srv, 30).Submit(context.Background(), testEvent(), testUser())
	if err != nil {
		t.Fatalf("Submit() = %v; want nil", err)
	}
	if !outcome.Succeeded() {
		t.Fatalf("outcome = %+v; want success", outcome)
	}
	if outcome.OpenID != "op-1" || outcome.EntityType != "resume" {
		t.Errorf("outcome = %+v; want op-1/resume", outcome)
	}
	if got := polls.Load(); got != 4 {
		t.Errorf("status polls = %d; want 4 (3x404 then hit)", got)
	}
	if gotAuth != "Bearer jwt-token" {
		t.Errorf("Authorization = %q; want Bearer jwt-token", gotAuth)
	}

	var req map[string]any
	if err := json.Unmarshal([]byte(gotBody), &req); err != nil {
		t.Fatalf("sync body %q: %v", gotBody, err)
	}
	if req["requestUrl"] != "https://rd6.zhaopin.com/api/resume/detail" {
		t.Errorf("requestUrl = %v", req["requestUrl"])
	}
	if req["jsonBody"] == nil {
		t.Error("jsonBody missing from sync request")
	}
}

func TestSubmitTimesOutAfterMaxAttempts(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sync-entity/all", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"openId":"op-2","entityType":"resume","tenantId":"t-1"}}`))
	})
	mux.HandleFunc("/v2/entities/resume/op-2", func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	outcome, err := newSubmitter(srv, 5).Submit(context.Background(), testEvent(), testUser())
	if err != nil {
		t.Fatalf("Submit() = %v; want nil", err)
	}
	if outcome.ErrCode != ErrCodeTimeout {
		t.Errorf("ErrCode = %d; want %d", outcome.ErrCode, ErrCodeTimeout)
	}
	if got := polls.Load(); got != 5 {
		t.Errorf("status polls = %d; want exactly 5", got)
	}
}

func TestSubmitNon404PollFailureIsTerminal(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sync-entity/all", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"openId":"op-3","entityType":"resume","tenantId":"t-1"}}`))
	})
	mux.HandleFunc("/v2/entities/resume/op-3", func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	outcome, err := newSubmitter(srv, 30).Submit(context.Background(), testEvent(), testUser())
	if err != nil {
		t.Fatalf("Submit() = %v; want nil", err)
	}
	if outcome.ErrCode != http.StatusForbidden {
		t.Errorf("ErrCode = %d; want 403", outcome.ErrCode)
	}
	if got := polls.Load(); got != 1 {
		t.Errorf("status polls = %d; want 1 (terminal on first non-404)", got)
	}
}

func TestSubmitRejectedPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad payload", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	outcome, err := newSubmitter(srv, 30).Submit(context.Background(), testEvent(), testUser())
	if err != nil {
		t.Fatalf("Submit() = %v; want nil", err)
	}
	if outcome.ErrCode != http.StatusUnprocessableEntity {
		t.Errorf("ErrCode = %d; want 422", outcome.ErrCode)
	}
	if outcome.Succeeded() {
		t.Error("outcome reports success for rejected post")
	}
}
