package control

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nadileaf/sourcing-agent/internal/types"
)

// Execute runs one command and builds the reply. Every reply echoes the
// requestUniqueId, including errors and unknown action types.
func (c *Channel) Execute(ctx context.Context, cmd types.Command) types.Reply {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	data, err := c.execute(ctx, cmd)
	reply := types.Reply{
		ActionType:      cmd.ActionType,
		RequestUniqueID: cmd.RequestUniqueID,
	}
	if err != nil {
		reply.Error = err.Error()
		slog.Warn("command failed",
			"action_type", cmd.ActionType,
			"request_unique_id", cmd.RequestUniqueID,
			"error", err)
		return reply
	}
	reply.Success = true
	reply.Data = data
	return reply
}

func (c *Channel) execute(ctx context.Context, cmd types.Command) (any, error) {
	switch cmd.ActionType {
	case types.ActionOpenTab:
		tabID, err := c.browser.OpenTab(ctx, cmd.URL)
		if err != nil {
			return nil, err
		}
		return map[string]string{"tabId": tabID}, nil

	case types.ActionScreenShot:
		img, err := c.browser.Screenshot(ctx, cmd.TabID)
		if err != nil {
			return nil, err
		}
		out := map[string]string{
			"image": base64.StdEncoding.EncodeToString(img),
		}
		if c.shots != nil {
			if id, err := c.shots.Save(cmd.TabID, cmd.URL, img); err != nil {
				slog.Debug("screenshot persist failed", "error", err)
			} else {
				out["snapshotId"] = id
			}
		}
		return out, nil

	case types.ActionGetTabsInfo:
		return c.browser.TabsInfo(ctx), nil

	case types.ActionClickElement:
		return nil, c.browser.ClickElement(ctx, cmd.TabID, cmd.XPath)

	case types.ActionSendKey:
		return nil, c.browser.SendKeys(ctx, cmd.TabID, cmd.XPath, cmd.Text)

	case types.ActionClearKey:
		return nil, c.browser.ClearElement(ctx, cmd.TabID, cmd.XPath)

	case types.ActionKeypress:
		return nil, c.browser.Keypress(ctx, cmd.TabID, cmd.Key)

	case types.ActionSwitchTab:
		return nil, c.browser.SwitchTab(ctx, cmd.TabID)

	case types.ActionScroll:
		return nil, c.browser.Scroll(ctx, cmd.TabID, cmd.DeltaX, cmd.DeltaY)

	case types.ActionHighlightElements:
		return nil, c.browser.HighlightElements(ctx, cmd.TabID, cmd.XPath)

	case types.ActionRemoveHighlight:
		return nil, c.browser.RemoveHighlight(ctx, cmd.TabID)

	case types.ActionSendLogMessage:
		slog.Info("remote log message",
			"request_unique_id", cmd.RequestUniqueID, "message", cmd.Message)
		return nil, nil

	case types.ActionSidebarChat:
		return nil, c.browser.NotifyTab(ctx, cmd.TabID, "sidebar-chat-message", map[string]string{
			"message": cmd.Message,
		})

	case types.ActionFileUpload:
		return nil, c.fileUpload(ctx, cmd)

	default:
		return nil, fmt.Errorf("unknown action type %q", cmd.ActionType)
	}
}

// fileUpload downloads the referenced file and attaches it to the target
// file input.
func (c *Channel) fileUpload(ctx context.Context, cmd types.Command) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cmd.FileURL, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", cmd.FileURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download %s: status %d", cmd.FileURL, resp.StatusCode)
	}

	name := cmd.FileName
	if name == "" {
		name = uuid.NewString()
	}
	path := filepath.Join(os.TempDir(), "agent-upload-"+uuid.NewString(), name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("write upload file: %w", err)
	}
	f.Close()

	return c.browser.UploadFile(ctx, cmd.TabID, cmd.XPath, path)
}
