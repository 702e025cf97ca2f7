// Package controller composes the capture pipeline, browser client,
// session state and snapshot store into the service the local HTTP API
// talks to.
package controller

import (
	"context"

	"github.com/nadileaf/sourcing-agent/internal/config"
	"github.com/nadileaf/sourcing-agent/internal/snapshot"
	"github.com/nadileaf/sourcing-agent/internal/types"
)

// Pipeline is the slice of the capture pipeline the API drives.
type Pipeline interface {
	Confirm(key string)
	SubmitHTML(ctx context.Context, ev types.ResumeEvent)
}

// Browser reports on the attached browser tabs.
type Browser interface {
	TabsInfo(ctx context.Context) []types.TabInfo
	GetTabCount() int
}

// UserSource exposes the signed-in user, nil when signed out.
type UserSource interface {
	Current() *types.TipUser
}

// FeedCounter reports how many SSE clients are attached to the event
// feed.
type FeedCounter interface {
	ClientCount() int
}

// StatusInfo is the agent status surfaced on /api/v1/status.
type StatusInfo struct {
	LoggedIn    bool   `json:"logged_in"`
	TenantAlias string `json:"tenant_alias,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Tabs        int    `json:"tabs"`
	FeedClients int    `json:"feed_clients"`
	Sites       int    `json:"sites"`
}

// SiteSummary describes one configured site without its pattern lists.
type SiteSummary struct {
	Name           string `json:"name"`
	Adapter        string `json:"adapter"`
	ReplayPatterns int    `json:"replay_patterns"`
	ListenPatterns int    `json:"listen_patterns"`
}

type Service struct {
	pipe    Pipeline
	browser Browser
	users   UserSource
	shots   *snapshot.Store
	feed    FeedCounter
	sites   []config.SiteConfig
}

func New(pipe Pipeline, browser Browser, users UserSource, shots *snapshot.Store, feed FeedCounter, sites []config.SiteConfig) *Service {
	return &Service{
		pipe:    pipe,
		browser: browser,
		users:   users,
		shots:   shots,
		feed:    feed,
		sites:   sites,
	}
}

func (s *Service) Status(ctx context.Context) StatusInfo {
	info := StatusInfo{
		Tabs:  s.browser.GetTabCount(),
		Sites: len(s.sites),
	}
	if s.feed != nil {
		info.FeedClients = s.feed.ClientCount()
	}
	if user := s.users.Current(); user.Valid() {
		info.LoggedIn = true
		info.TenantAlias = user.TenantAlias
		info.UserID = user.UserID
	}
	return info
}

// ConfirmSync unblocks the gate for a pending event. Pages that track
// the capture pass the request id; pages that only know their own tab
// pass the tab id.
func (s *Service) ConfirmSync(requestID, tabID string) {
	s.pipe.Confirm(requestID)
	s.pipe.Confirm(tabID)
}

// SubmitHTML feeds a page-snapshot capture into the pipeline.
func (s *Service) SubmitHTML(ctx context.Context, ev types.ResumeEvent) {
	s.pipe.SubmitHTML(ctx, ev)
}

func (s *Service) TabsInfo(ctx context.Context) []types.TabInfo {
	return s.browser.TabsInfo(ctx)
}

func (s *Service) Sites() []SiteSummary {
	out := make([]SiteSummary, 0, len(s.sites))
	for _, site := range s.sites {
		out = append(out, SiteSummary{
			Name:           site.Name,
			Adapter:        site.Adapter,
			ReplayPatterns: len(site.ReplayPatterns),
			ListenPatterns: len(site.ListenPatterns),
		})
	}
	return out
}

func (s *Service) ListSnapshots(ctx context.Context) ([]snapshot.ScreenshotMeta, error) {
	return s.shots.List()
}

func (s *Service) GetSnapshot(ctx context.Context, id string) (snapshot.ScreenshotMeta, error) {
	return s.shots.Get(id)
}

func (s *Service) ReadSnapshotImage(ctx context.Context, id string) ([]byte, string, error) {
	return s.shots.ReadImage(id)
}

func (s *Service) DeleteSnapshot(ctx context.Context, id string) error {
	return s.shots.Delete(id)
}
