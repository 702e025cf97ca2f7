package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nadileaf/sourcing-agent/internal/controller"
	"github.com/nadileaf/sourcing-agent/internal/snapshot"
	"github.com/nadileaf/sourcing-agent/internal/types"
)

type Service interface {
	Status(ctx context.Context) controller.StatusInfo
	ConfirmSync(requestID, tabID string)
	SubmitHTML(ctx context.Context, ev types.ResumeEvent)
	TabsInfo(ctx context.Context) []types.TabInfo
	Sites() []controller.SiteSummary
	ListSnapshots(ctx context.Context) ([]snapshot.ScreenshotMeta, error)
	GetSnapshot(ctx context.Context, id string) (snapshot.ScreenshotMeta, error)
	ReadSnapshotImage(ctx context.Context, id string) ([]byte, string, error)
	DeleteSnapshot(ctx context.Context, id string) error
}

// NewServer builds the local HTTP surface: the JSON API, the SSE event
// feed, and the docs page. feed may be nil when no broker is wired.
func NewServer(svc Service, feed http.Handler) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(logRequests)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Sourcing Agent API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	if feed != nil {
		router.Get("/events", feed.ServeHTTP)
	}

	registerAgentHandlers(api, svc)
	registerSnapshotHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, snapshot.ErrInvalidID):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, snapshot.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}
