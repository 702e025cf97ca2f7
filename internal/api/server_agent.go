package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/nadileaf/sourcing-agent/internal/controller"
	"github.com/nadileaf/sourcing-agent/internal/types"
)

func registerAgentHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type statusOutput struct {
		Body controller.StatusInfo
	}
	huma.Register(api, huma.Operation{OperationID: "get-status", Method: http.MethodGet, Path: "/api/v1/status", Summary: "Agent status: session, tabs, feed clients", Tags: []string{"Agent"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			out := &statusOutput{}
			out.Body = svc.Status(ctx)
			return out, nil
		})

	type tabsOutput struct {
		Body struct {
			Tabs []types.TabInfo `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List attached browser tabs", Tags: []string{"Agent"}},
		func(ctx context.Context, input *struct{}) (*tabsOutput, error) {
			out := &tabsOutput{}
			out.Body.Tabs = svc.TabsInfo(ctx)
			if out.Body.Tabs == nil {
				out.Body.Tabs = []types.TabInfo{}
			}
			return out, nil
		})

	type sitesOutput struct {
		Body struct {
			Sites []controller.SiteSummary `json:"sites"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-sites", Method: http.MethodGet, Path: "/api/v1/sites", Summary: "List configured recruiting sites", Tags: []string{"Agent"}},
		func(ctx context.Context, input *struct{}) (*sitesOutput, error) {
			out := &sitesOutput{}
			out.Body.Sites = svc.Sites()
			return out, nil
		})

	// Confirmation callback posted by the page overlay when the user
	// approves a pending capture.
	type confirmInput struct {
		Body struct {
			RequestID string `json:"requestId,omitempty" doc:"Network request id of the pending capture"`
			TabID     string `json:"tabId,omitempty" doc:"Tab id, used when the page has no request id"`
		}
	}
	type confirmOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "confirm-synchronize", Method: http.MethodPost, Path: "/api/v1/sync/confirm", Summary: "Approve a pending capture for submission", Tags: []string{"Sync"}},
		func(ctx context.Context, input *confirmInput) (*confirmOutput, error) {
			if input.Body.RequestID == "" && input.Body.TabID == "" {
				return nil, huma.Error400BadRequest("requestId or tabId required")
			}
			svc.ConfirmSync(input.Body.RequestID, input.Body.TabID)
			out := &confirmOutput{}
			out.Body.Status = "confirmed"
			return out, nil
		})

	type syncHTMLInput struct {
		Body struct {
			TabID      string `json:"tabId" doc:"Tab the page was captured from"`
			RequestURL string `json:"requestUrl" doc:"Page URL of the capture"`
			HTML       string `json:"html" doc:"Rendered page HTML"`
			Site       string `json:"site" doc:"Configured site name"`
		}
	}
	type syncHTMLOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "sync-html", Method: http.MethodPost, Path: "/api/v1/sync/html", Summary: "Submit a rendered page snapshot for synchronization", Tags: []string{"Sync"}},
		func(ctx context.Context, input *syncHTMLInput) (*syncHTMLOutput, error) {
			if input.Body.HTML == "" {
				return nil, huma.Error400BadRequest("html required")
			}
			svc.SubmitHTML(ctx, types.ResumeEvent{
				TabID: input.Body.TabID,
				URL:   input.Body.RequestURL,
				HTML:  input.Body.HTML,
				Site:  input.Body.Site,
			})
			out := &syncHTMLOutput{}
			out.Body.Status = "queued"
			return out, nil
		})
}
