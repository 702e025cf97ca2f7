package cdp

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Input synthesis for the command channel. Elements are addressed by
// XPath, matching what the automation server sends.

const actionTimeout = 10 * time.Second

func (c *Client) runOnTab(tabID string, actions ...chromedp.Action) error {
	tabCtx, err := c.tabContext(tabID)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(tabCtx, actionTimeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// ClickElement clicks the first element matching the XPath.
func (c *Client) ClickElement(ctx context.Context, tabID, xpath string) error {
	if err := c.runOnTab(tabID, chromedp.Click(xpath, chromedp.BySearch)); err != nil {
		return fmt.Errorf("click %s: %w", xpath, err)
	}
	return nil
}

// SendKeys types text into the element matching the XPath.
func (c *Client) SendKeys(ctx context.Context, tabID, xpath, text string) error {
	if err := c.runOnTab(tabID, chromedp.SendKeys(xpath, text, chromedp.BySearch)); err != nil {
		return fmt.Errorf("send keys to %s: %w", xpath, err)
	}
	return nil
}

// ClearElement empties the value of the element matching the XPath.
func (c *Client) ClearElement(ctx context.Context, tabID, xpath string) error {
	if err := c.runOnTab(tabID, chromedp.Clear(xpath, chromedp.BySearch)); err != nil {
		return fmt.Errorf("clear %s: %w", xpath, err)
	}
	return nil
}

// Keypress sends a bare key event (e.g. "\r", "Tab") to the focused element.
func (c *Client) Keypress(ctx context.Context, tabID, key string) error {
	if err := c.runOnTab(tabID, chromedp.KeyEvent(key)); err != nil {
		return fmt.Errorf("keypress %q: %w", key, err)
	}
	return nil
}

// Scroll scrolls the page by the given deltas.
func (c *Client) Scroll(ctx context.Context, tabID string, deltaX, deltaY float64) error {
	expr := fmt.Sprintf("window.scrollBy(%f, %f)", deltaX, deltaY)
	if err := c.runOnTab(tabID, chromedp.Evaluate(expr, nil)); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

// HighlightElements outlines every element matching the XPath so a remote
// operator can see what an action would target.
func (c *Client) HighlightElements(ctx context.Context, tabID, xpath string) error {
	expr := fmt.Sprintf(`(() => {
		const snap = document.evaluate(%q, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (let i = 0; i < snap.snapshotLength; i++) {
			const el = snap.snapshotItem(i);
			el.dataset.agentHighlight = el.style.outline || "";
			el.style.outline = "2px solid #f60";
		}
		return snap.snapshotLength;
	})()`, xpath)
	if err := c.runOnTab(tabID, chromedp.Evaluate(expr, nil)); err != nil {
		return fmt.Errorf("highlight %s: %w", xpath, err)
	}
	return nil
}

// UploadFile attaches a local file to the file input matching the XPath.
func (c *Client) UploadFile(ctx context.Context, tabID, xpath, path string) error {
	if err := c.runOnTab(tabID, chromedp.SetUploadFiles(xpath, []string{path}, chromedp.BySearch)); err != nil {
		return fmt.Errorf("upload to %s: %w", xpath, err)
	}
	return nil
}

// RemoveHighlight restores outlines set by HighlightElements.
func (c *Client) RemoveHighlight(ctx context.Context, tabID string) error {
	expr := `(() => {
		for (const el of document.querySelectorAll("[data-agent-highlight]")) {
			el.style.outline = el.dataset.agentHighlight;
			delete el.dataset.agentHighlight;
		}
	})()`
	if err := c.runOnTab(tabID, chromedp.Evaluate(expr, nil)); err != nil {
		return fmt.Errorf("remove highlight: %w", err)
	}
	return nil
}
