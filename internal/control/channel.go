// Package control maintains the WebSocket command channel to the
// automation server and executes the browser actions it requests.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/nadileaf/sourcing-agent/internal/types"
)

const (
	reconnectBase = 2 * time.Second
	reconnectCap  = 10 * time.Second
	maxReconnects = 100
)

// Browser is the surface of CDP operations the command channel drives.
type Browser interface {
	OpenTab(ctx context.Context, url string) (string, error)
	SwitchTab(ctx context.Context, tabID string) error
	Screenshot(ctx context.Context, tabID string) ([]byte, error)
	TabsInfo(ctx context.Context) []types.TabInfo
	ClickElement(ctx context.Context, tabID, xpath string) error
	SendKeys(ctx context.Context, tabID, xpath, text string) error
	ClearElement(ctx context.Context, tabID, xpath string) error
	Keypress(ctx context.Context, tabID, key string) error
	Scroll(ctx context.Context, tabID string, deltaX, deltaY float64) error
	HighlightElements(ctx context.Context, tabID, xpath string) error
	RemoveHighlight(ctx context.Context, tabID string) error
	UploadFile(ctx context.Context, tabID, xpath, path string) error
	NotifyTab(ctx context.Context, tabID, event string, payload any) error
}

// ScreenshotSaver persists captured screenshots with metadata.
type ScreenshotSaver interface {
	Save(tabID, url string, data []byte) (string, error)
}

// Channel is the persistent client connection. It reconnects with
// exponential backoff, re-authenticates on each connect, and answers
// heartbeats. A clean server close or a token change ends the current
// connection without burning reconnect attempts.
type Channel struct {
	wsServer string
	browser  Browser
	shots    ScreenshotSaver

	mu      sync.Mutex
	conn    net.Conn
	writeMu sync.Mutex
}

func New(wsServer string, browser Browser, shots ScreenshotSaver) *Channel {
	return &Channel{wsServer: wsServer, browser: browser, shots: shots}
}

// Run keeps the channel alive until ctx is done. tokens delivers the user
// on every sign-in change; a nil user closes the connection and waits.
func (c *Channel) Run(ctx context.Context, tokens <-chan *types.TipUser) {
	var current *types.TipUser
	for {
		if !current.Valid() {
			select {
			case current = <-tokens:
				continue
			case <-ctx.Done():
				return
			}
		}

		next := c.serve(ctx, current, tokens)
		if next == stopServing {
			return
		}
		current = next.user
	}
}

type serveResult struct {
	user *types.TipUser
}

var stopServing = serveResult{user: &types.TipUser{}}

// serve runs the connect/reconnect loop for one token. It returns when
// the token changes, reconnects are exhausted, the server closes cleanly,
// or ctx is done.
func (c *Channel) serve(ctx context.Context, user *types.TipUser, tokens <-chan *types.TipUser) serveResult {
	for attempt := 0; attempt < maxReconnects; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt - 1)
			slog.Info("reconnecting command channel",
				"attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case next := <-tokens:
				return serveResult{user: next}
			case <-ctx.Done():
				return stopServing
			}
		}

		conn, err := c.dial(ctx, user.Token)
		if err != nil {
			slog.Warn("command channel dial failed", "error", err)
			continue
		}
		attempt = 0

		clean, newUser := c.readUntilClosed(ctx, conn, tokens)
		if newUser != nil {
			return serveResult{user: newUser}
		}
		if clean {
			slog.Info("command channel closed cleanly, not reconnecting")
			return serveResult{user: nil}
		}
		if ctx.Err() != nil {
			return stopServing
		}
	}
	slog.Error("command channel abandoned after max reconnect attempts",
		"attempts", maxReconnects)
	return serveResult{user: nil}
}

func (c *Channel) dial(ctx context.Context, token string) (net.Conn, error) {
	url := fmt.Sprintf("%s/ws?token=%s", c.wsServer, token)
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.wsServer, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if err := c.writeJSON(map[string]string{"type": "auth", "token": token}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send auth frame: %w", err)
	}
	slog.Info("command channel connected", "server", c.wsServer)
	return conn, nil
}

// readUntilClosed pumps inbound frames. Returns clean=true for a normal
// close, and the new user when the token changed mid-connection.
func (c *Channel) readUntilClosed(ctx context.Context, conn net.Conn, tokens <-chan *types.TipUser) (clean bool, newUser *types.TipUser) {
	defer conn.Close()

	frames := make(chan []byte, 8)
	readErr := make(chan error, 1)
	go func() {
		for {
			data, err := wsutil.ReadServerText(conn)
			if err != nil {
				readErr <- err
				return
			}
			frames <- data
		}
	}()

	for {
		select {
		case data := <-frames:
			c.handleFrame(ctx, data)
		case err := <-readErr:
			var closed wsutil.ClosedError
			if errors.As(err, &closed) && closed.Code == ws.StatusNormalClosure {
				return true, nil
			}
			slog.Warn("command channel read failed", "error", err)
			return false, nil
		case next := <-tokens:
			// Token rotated: close this connection and start over.
			c.close(ws.StatusNormalClosure)
			return false, next
		case <-ctx.Done():
			c.close(ws.StatusGoingAway)
			return true, nil
		}
	}
}

func (c *Channel) handleFrame(ctx context.Context, data []byte) {
	var probe struct {
		Type       string `json:"type"`
		ActionType string `json:"actionType"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		slog.Debug("undecodable frame ignored", "error", err)
		return
	}
	if probe.Type == "ping" {
		if err := c.writeJSON(map[string]string{"type": "pong"}); err != nil {
			slog.Debug("pong failed", "error", err)
		}
		return
	}
	if probe.ActionType == "" {
		return
	}

	var cmd types.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		slog.Warn("undecodable command", "error", err)
		return
	}
	go func() {
		reply := c.Execute(ctx, cmd)
		if err := c.writeJSON(reply); err != nil {
			slog.Warn("reply write failed",
				"request_unique_id", cmd.RequestUniqueID, "error", err)
		}
	}()
}

func (c *Channel) writeJSON(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteClientText(conn, data)
}

func (c *Channel) close(code ws.StatusCode) {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return
	}
	frame := ws.NewCloseFrame(ws.NewCloseFrameBody(code, ""))
	c.writeMu.Lock()
	_ = ws.WriteFrame(conn, ws.MaskFrame(frame))
	c.writeMu.Unlock()
	conn.Close()
}

// backoffDelay is the wait before reconnect n (0-based): 2s doubling,
// capped at 10s.
func backoffDelay(n int) time.Duration {
	delay := reconnectBase
	for i := 0; i < n; i++ {
		delay *= 2
		if delay >= reconnectCap {
			return reconnectCap
		}
	}
	if delay > reconnectCap {
		return reconnectCap
	}
	return delay
}
