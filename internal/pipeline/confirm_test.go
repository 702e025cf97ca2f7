package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeTabs struct {
	mu   sync.Mutex
	open map[string]bool
}

func newFakeTabs(ids ...string) *fakeTabs {
	f := &fakeTabs{open: make(map[string]bool)}
	for _, id := range ids {
		f.open[id] = true
	}
	return f
}

func (f *fakeTabs) TabExists(tabID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open[tabID]
}

func (f *fakeTabs) close(tabID string) {
	f.mu.Lock()
	delete(f.open, tabID)
	f.mu.Unlock()
}

func TestGateConfirmedByRequestID(t *testing.T) {
	store := NewConfirmStore()
	tabs := newFakeTabs("tab-1")
	gate := NewGate(store, tabs, time.Millisecond, false)

	go func() {
		time.Sleep(5 * time.Millisecond)
		store.Confirm("req-1")
	}()

	ok, err := gate.Wait(context.Background(), "req-1", "tab-1")
	if err != nil {
		t.Fatalf("Wait() = %v; want nil", err)
	}
	if !ok {
		t.Error("Wait() = false; want confirmed")
	}
	if store.Confirmed("req-1") {
		t.Error("confirmation key not consumed after Wait")
	}
}

func TestGateConfirmedByTabID(t *testing.T) {
	store := NewConfirmStore()
	tabs := newFakeTabs("tab-2")
	gate := NewGate(store, tabs, time.Millisecond, false)

	// Pages without a request id confirm by tab id.
	store.Confirm("tab-2")

	ok, err := gate.Wait(context.Background(), "", "tab-2")
	if err != nil {
		t.Fatalf("Wait() = %v; want nil", err)
	}
	if !ok {
		t.Error("Wait() = false; want confirmed via tab id")
	}
}

func TestGateTabClosedDeclines(t *testing.T) {
	store := NewConfirmStore()
	tabs := newFakeTabs("tab-3")
	gate := NewGate(store, tabs, time.Millisecond, false)

	go func() {
		time.Sleep(5 * time.Millisecond)
		tabs.close("tab-3")
	}()

	ok, err := gate.Wait(context.Background(), "req-3", "tab-3")
	if err != nil {
		t.Fatalf("Wait() = %v; want nil", err)
	}
	if ok {
		t.Error("Wait() = true after tab close; want declined")
	}
}

func TestGateAutoSyncSkipsPolling(t *testing.T) {
	store := NewConfirmStore()
	// No tabs registered: auto mode must not even look.
	gate := NewGate(store, newFakeTabs(), time.Hour, true)

	start := time.Now()
	ok, err := gate.Wait(context.Background(), "req-4", "tab-4")
	if err != nil {
		t.Fatalf("Wait() = %v; want nil", err)
	}
	if !ok {
		t.Error("Wait() = false in auto mode; want true")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("auto mode waited; want immediate pass")
	}
}

func TestGateContextCancel(t *testing.T) {
	store := NewConfirmStore()
	tabs := newFakeTabs("tab-5")
	gate := NewGate(store, tabs, time.Millisecond, false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	ok, err := gate.Wait(ctx, "req-5", "tab-5")
	if err == nil {
		t.Error("Wait() err = nil after ctx cancel; want error")
	}
	if ok {
		t.Error("Wait() = true after ctx cancel")
	}
}
