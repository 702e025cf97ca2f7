package cdp

import (
	"sync"

	"github.com/chromedp/cdproto/target"

	"github.com/nadileaf/sourcing-agent/internal/types"
)

// TabRegistry maps CDP target IDs to tab metadata.
type TabRegistry struct {
	tabs map[target.ID]*types.TabInfo
	mu   sync.RWMutex
}

func NewTabRegistry() *TabRegistry {
	return &TabRegistry{tabs: make(map[target.ID]*types.TabInfo)}
}

func (r *TabRegistry) Register(targetID target.ID, url string) *types.TabInfo {
	info := &types.TabInfo{
		TabID:    string(targetID),
		URL:      url,
		Attached: true,
	}

	r.mu.Lock()
	if old, ok := r.tabs[targetID]; ok {
		info.Title = old.Title
		info.Active = old.Active
	}
	r.tabs[targetID] = info
	r.mu.Unlock()

	return info
}

func (r *TabRegistry) Get(targetID target.ID) (*types.TabInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.tabs[targetID]
	return info, ok
}

func (r *TabRegistry) Remove(targetID target.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tabs, targetID)
}

// List returns a snapshot of every registered tab.
func (r *TabRegistry) List() []types.TabInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.TabInfo, 0, len(r.tabs))
	for _, info := range r.tabs {
		out = append(out, *info)
	}
	return out
}

func (r *TabRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tabs)
}
