package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/nadileaf/sourcing-agent/internal/capture"
	"github.com/nadileaf/sourcing-agent/internal/config"
)

// Client manages CDP connections to browser tabs. It attaches to every
// page target and keeps attaching as tabs come and go.
type Client struct {
	cfg         *config.Config
	observer    *capture.Observer
	tabRegistry *TabRegistry
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabs        map[target.ID]*TabContext
	tabsMu      sync.RWMutex
	done        chan struct{}
}

type TabContext struct {
	ID     target.ID
	URL    string
	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(cfg *config.Config, observer *capture.Observer, tabRegistry *TabRegistry) *Client {
	return &Client{
		cfg:         cfg,
		observer:    observer,
		tabRegistry: tabRegistry,
		tabs:        make(map[target.ID]*TabContext),
		done:        make(chan struct{}),
	}
}

// Connect attaches to the browser, registers every current page target,
// and starts the discovery loop that picks up tabs opened later.
func (c *Client) Connect(ctx context.Context) error {
	cdpURL := c.cfg.GetCDPURL()
	slog.Info("connecting to Chromium", "url", cdpURL)

	c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cdpURL)

	if err := c.discoverTabs(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	go c.discoverLoop(ctx)
	return nil
}

func (c *Client) discoverLoop(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.discoverTabs(); err != nil {
				slog.Warn("tab discovery failed", "error", err)
			}
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

// discoverTabs enumerates page targets, attaches to new ones, and drops
// contexts for tabs that no longer exist.
func (c *Client) discoverTabs() error {
	tempCtx, tempCancel := chromedp.NewContext(c.allocCtx)
	defer tempCancel()

	targets, err := chromedp.Targets(tempCtx)
	if err != nil {
		return fmt.Errorf("failed to enumerate targets: %w", err)
	}

	live := make(map[target.ID]bool, len(targets))
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		live[t.TargetID] = true

		c.tabsMu.RLock()
		_, attached := c.tabs[t.TargetID]
		c.tabsMu.RUnlock()
		if attached {
			continue
		}
		if err := c.attachToTab(t.TargetID, t.URL); err != nil {
			slog.Error("failed to attach to tab",
				"target_id", t.TargetID, "url", t.URL, "error", err)
		}
	}

	c.tabsMu.Lock()
	for id, tab := range c.tabs {
		if !live[id] {
			tab.cancel()
			delete(c.tabs, id)
			c.tabRegistry.Remove(id)
			slog.Info("tab closed", "target_id", id)
		}
	}
	c.tabsMu.Unlock()

	return nil
}

func (c *Client) attachToTab(targetID target.ID, url string) error {
	tabCtx, tabCancel := chromedp.NewContext(c.allocCtx, chromedp.WithTargetID(targetID))
	tab := &TabContext{ID: targetID, URL: url, ctx: tabCtx, cancel: tabCancel}

	c.tabsMu.Lock()
	c.tabs[targetID] = tab
	c.tabsMu.Unlock()

	if err := chromedp.Run(tabCtx, network.Enable(), page.Enable()); err != nil {
		tabCancel()
		c.tabsMu.Lock()
		delete(c.tabs, targetID)
		c.tabsMu.Unlock()
		return fmt.Errorf("failed to enable network/page domains: %w", err)
	}

	c.tabRegistry.Register(targetID, url)
	slog.Info("attached to tab", "target_id", targetID, "url", truncateURL(url))
	chromedp.ListenTarget(tabCtx, c.createEventHandler(string(targetID)))

	return nil
}

func (c *Client) createEventHandler(tabID string) func(ev interface{}) {
	return func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame.ParentID == "" {
				c.tabRegistry.Register(target.ID(tabID), e.Frame.URL)
				slog.Debug("tab navigated", "tab_id", tabID, "url", truncateURL(e.Frame.URL))
			}
		case *page.EventNavigatedWithinDocument:
			c.tabRegistry.Register(target.ID(tabID), e.URL)
		case *network.EventRequestWillBeSent:
			c.observer.OnRequestWillBeSent(tabID, e)
		case *network.EventRequestWillBeSentExtraInfo:
			c.observer.OnRequestExtraInfo(e)
		}
	}
}

// TabExists reports whether a tab is still attached. The confirmation gate
// uses this to detect a closed tab mid-wait.
func (c *Client) TabExists(tabID string) bool {
	c.tabsMu.RLock()
	defer c.tabsMu.RUnlock()
	_, ok := c.tabs[target.ID(tabID)]
	return ok
}

func (c *Client) tabContext(tabID string) (context.Context, error) {
	c.tabsMu.RLock()
	defer c.tabsMu.RUnlock()
	tab, ok := c.tabs[target.ID(tabID)]
	if !ok {
		return nil, fmt.Errorf("tab %s not attached", tabID)
	}
	return tab.ctx, nil
}

func (c *Client) Close() error {
	close(c.done)

	c.tabsMu.Lock()
	defer c.tabsMu.Unlock()
	for _, tab := range c.tabs {
		tab.cancel()
	}
	c.tabs = make(map[target.ID]*TabContext)

	if c.allocCancel != nil {
		c.allocCancel()
	}

	slog.Info("CDP client closed")
	return nil
}

func (c *Client) GetTabCount() int {
	c.tabsMu.RLock()
	defer c.tabsMu.RUnlock()
	return len(c.tabs)
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
