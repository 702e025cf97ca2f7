package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/nadileaf/sourcing-agent/internal/types"
)

const (
	tabWaitTimeout  = 10 * time.Second
	tabPollInterval = 100 * time.Millisecond
)

// OpenTab creates a new tab, waits for it to attach and finish loading,
// and returns its target id. The wait is capped at 10s.
func (c *Client) OpenTab(ctx context.Context, url string) (string, error) {
	tempCtx, tempCancel := chromedp.NewContext(c.allocCtx)
	defer tempCancel()

	var targetID target.ID
	err := chromedp.Run(tempCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		targetID, err = target.CreateTarget(url).Do(ctx)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("create target: %w", err)
	}

	if err := c.discoverTabs(); err != nil {
		slog.Warn("discovery after open failed", "error", err)
	}

	deadline := time.Now().Add(tabWaitTimeout)
	for time.Now().Before(deadline) {
		if c.TabExists(string(targetID)) && c.tabLoaded(string(targetID)) {
			return string(targetID), nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(tabPollInterval):
		}
		if !c.TabExists(string(targetID)) {
			_ = c.discoverTabs()
		}
	}
	if c.TabExists(string(targetID)) {
		// Attached but still loading; usable for most actions.
		return string(targetID), nil
	}
	return "", fmt.Errorf("tab %s did not attach within %s", targetID, tabWaitTimeout)
}

func (c *Client) tabLoaded(tabID string) bool {
	tabCtx, err := c.tabContext(tabID)
	if err != nil {
		return false
	}
	evalCtx, cancel := context.WithTimeout(tabCtx, time.Second)
	defer cancel()

	var state string
	if err := chromedp.Run(evalCtx, chromedp.Evaluate("document.readyState", &state)); err != nil {
		return false
	}
	return state == "complete"
}

// SwitchTab brings a tab to the foreground and waits until the page
// reports itself visible, capped at 10s.
func (c *Client) SwitchTab(ctx context.Context, tabID string) error {
	tabCtx, err := c.tabContext(tabID)
	if err != nil {
		return err
	}
	if err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.ActivateTarget(target.ID(tabID)).Do(ctx)
	})); err != nil {
		return fmt.Errorf("activate target: %w", err)
	}

	deadline := time.Now().Add(tabWaitTimeout)
	for time.Now().Before(deadline) {
		var visibility string
		evalCtx, cancel := context.WithTimeout(tabCtx, time.Second)
		err := chromedp.Run(evalCtx, chromedp.Evaluate("document.visibilityState", &visibility))
		cancel()
		if err == nil && visibility == "visible" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(tabPollInterval):
		}
	}
	return fmt.Errorf("tab %s not visible after %s", tabID, tabWaitTimeout)
}

// Screenshot captures the visible viewport of a tab as PNG, retrying up
// to three times.
func (c *Client) Screenshot(ctx context.Context, tabID string) ([]byte, error) {
	tabCtx, err := c.tabContext(tabID)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		shotCtx, cancel := context.WithTimeout(tabCtx, 10*time.Second)
		var buf []byte
		lastErr = chromedp.Run(shotCtx, chromedp.CaptureScreenshot(&buf))
		cancel()
		if lastErr == nil {
			return buf, nil
		}
		slog.Debug("screenshot attempt failed",
			"tab_id", tabID, "attempt", attempt, "error", lastErr)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("screenshot of tab %s: %w", tabID, lastErr)
}

// Cookies reads the browser cookies scoped to url through any attached tab.
func (c *Client) Cookies(ctx context.Context, url string) ([]*network.Cookie, error) {
	tabCtx, err := c.anyTabContext()
	if err != nil {
		return nil, err
	}
	readCtx, cancel := context.WithTimeout(tabCtx, 5*time.Second)
	defer cancel()

	var cookies []*network.Cookie
	err = chromedp.Run(readCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithURLs([]string{url}).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	return cookies, nil
}

func (c *Client) anyTabContext() (context.Context, error) {
	c.tabsMu.RLock()
	defer c.tabsMu.RUnlock()
	for _, tab := range c.tabs {
		return tab.ctx, nil
	}
	return nil, fmt.Errorf("no tabs attached")
}

// NotifyTab dispatches a DOM custom event into a tab. Page scripts listen
// for these to render sync progress and results.
func (c *Client) NotifyTab(ctx context.Context, tabID, event string, payload any) error {
	tabCtx, err := c.tabContext(tabID)
	if err != nil {
		return err
	}
	detail, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event detail: %w", err)
	}
	expr := fmt.Sprintf("window.dispatchEvent(new CustomEvent(%q, {detail: %s}))", event, detail)

	evalCtx, cancel := context.WithTimeout(tabCtx, 5*time.Second)
	defer cancel()
	if err := chromedp.Run(evalCtx, chromedp.Evaluate(expr, nil)); err != nil {
		return fmt.Errorf("dispatch %s to tab %s: %w", event, tabID, err)
	}
	return nil
}

// TabsInfo returns registry entries refreshed with each tab's current
// title and visibility.
func (c *Client) TabsInfo(ctx context.Context) []types.TabInfo {
	infos := c.tabRegistry.List()
	for i := range infos {
		tabCtx, err := c.tabContext(infos[i].TabID)
		if err != nil {
			infos[i].Attached = false
			continue
		}
		evalCtx, cancel := context.WithTimeout(tabCtx, time.Second)
		var title, visibility string
		if err := chromedp.Run(evalCtx,
			chromedp.Title(&title),
			chromedp.Evaluate("document.visibilityState", &visibility),
		); err == nil {
			infos[i].Title = title
			infos[i].Active = visibility == "visible"
		}
		cancel()
	}
	return infos
}
