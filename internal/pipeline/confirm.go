package pipeline

import (
	"context"
	"sync"
	"time"
)

// ConfirmStore records which requests (or tabs) the user has approved for
// submission. Keys are request ids when the page supplied one, tab ids
// otherwise.
type ConfirmStore struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewConfirmStore() *ConfirmStore {
	return &ConfirmStore{keys: make(map[string]struct{})}
}

func (s *ConfirmStore) Confirm(key string) {
	if key == "" {
		return
	}
	s.mu.Lock()
	s.keys[key] = struct{}{}
	s.mu.Unlock()
}

func (s *ConfirmStore) Confirmed(keys ...string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := s.keys[k]; ok {
			return true
		}
	}
	return false
}

func (s *ConfirmStore) Clear(keys ...string) {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.keys, k)
	}
	s.mu.Unlock()
}

// TabChecker reports whether a tab is still open.
type TabChecker interface {
	TabExists(tabID string) bool
}

// Gate blocks an event until the user confirms it from the page. Closing
// the tab counts as a silent decline. With auto enabled the gate is a
// no-op and every event passes immediately.
type Gate struct {
	store    *ConfirmStore
	tabs     TabChecker
	interval time.Duration
	auto     bool
}

func NewGate(store *ConfirmStore, tabs TabChecker, interval time.Duration, auto bool) *Gate {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Gate{store: store, tabs: tabs, interval: interval, auto: auto}
}

// Wait returns true once the event is confirmed, false when the tab goes
// away first. The confirmation key is consumed on success.
func (g *Gate) Wait(ctx context.Context, requestID, tabID string) (bool, error) {
	if g.auto {
		return true, nil
	}

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		if g.store.Confirmed(requestID, tabID) {
			g.store.Clear(requestID, tabID)
			return true, nil
		}
		if !g.tabs.TabExists(tabID) {
			return false, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}
