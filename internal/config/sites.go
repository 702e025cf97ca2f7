package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SiteConfig describes one recruiting site: which request URLs to watch,
// which of those are replayed out-of-band, and the adapter that normalizes
// the result.
type SiteConfig struct {
	Name string `yaml:"name"`
	// Adapter selects the normalization strategy. One of: passthrough,
	// maimai, lagou-communication, lagou-order, zhaopin, linkedin.
	Adapter string `yaml:"adapter"`
	// ReplayPatterns match requests whose bodies are captured and
	// re-issued after the settle delay.
	ReplayPatterns []string `yaml:"replay_patterns,omitempty"`
	// ListenPatterns match requests consumed directly from the wire
	// without replay (the adapter re-fetches on its own schedule).
	ListenPatterns []string `yaml:"listen_patterns,omitempty"`
	// HeaderPatterns match requests whose headers are cached for later
	// replay. Defaults to the union of replay and listen patterns.
	HeaderPatterns []string `yaml:"header_patterns,omitempty"`
	// SettleDelay is how long to wait after capture before replaying,
	// giving the page time to finish its own exchange.
	SettleDelay time.Duration `yaml:"settle_delay,omitempty"`
	// PrefetchDelay is the wait applied to listen-mode captures before
	// normalization, giving the extra-info headers time to land in the
	// cache and the page time to finish its own exchange.
	PrefetchDelay time.Duration `yaml:"prefetch_delay,omitempty"`
}

// SiteCatalog is the top-level YAML site configuration.
type SiteCatalog struct {
	Sites []SiteConfig `yaml:"sites"`
}

// LoadSites reads and validates a site catalog YAML file. A missing file
// falls back to the built-in catalog.
func LoadSites(path string) (*SiteCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSites(), nil
		}
		return nil, fmt.Errorf("site catalog: %w", err)
	}
	var cat SiteCatalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("site catalog: %w", err)
	}
	for i := range cat.Sites {
		s := &cat.Sites[i]
		if s.Name == "" {
			return nil, fmt.Errorf("site catalog: site[%d] missing name", i)
		}
		if s.Adapter == "" {
			return nil, fmt.Errorf("site catalog: site[%d] (%s) missing adapter", i, s.Name)
		}
		if len(s.ReplayPatterns) == 0 && len(s.ListenPatterns) == 0 {
			return nil, fmt.Errorf("site catalog: site[%d] (%s) has no patterns", i, s.Name)
		}
		applySiteDefaults(s)
	}
	return &cat, nil
}

func applySiteDefaults(s *SiteConfig) {
	if s.SettleDelay == 0 {
		s.SettleDelay = 2 * time.Second
	}
	if s.PrefetchDelay == 0 {
		s.PrefetchDelay = 1500 * time.Millisecond
	}
	if len(s.HeaderPatterns) == 0 {
		s.HeaderPatterns = append(append([]string{}, s.ReplayPatterns...), s.ListenPatterns...)
	}
}

// DefaultSites returns the built-in catalog covering the supported
// recruiting sites.
func DefaultSites() *SiteCatalog {
	cat := &SiteCatalog{Sites: []SiteConfig{
		{
			Name:    "duolie",
			Adapter: "passthrough",
			ReplayPatterns: []string{
				"*://www.duolie.com/api/*/resume/detail*",
			},
		},
		{
			Name:    "shixiseng",
			Adapter: "passthrough",
			ReplayPatterns: []string{
				"*://hr.shixiseng.com/api/*/resume*",
			},
		},
		{
			Name:    "51job",
			Adapter: "passthrough",
			ReplayPatterns: []string{
				"*://ehire.51job.com/api/resume/detail*",
			},
		},
		{
			Name:    "liepin",
			Adapter: "passthrough",
			ReplayPatterns: []string{
				"*://lpt.liepin.com/im/getresumedetail*",
			},
		},
		{
			Name:    "maimai",
			Adapter: "maimai",
			ListenPatterns: []string{
				"*://maimai.cn/api/ent/v3/profile/detail*",
			},
		},
		{
			Name:    "lagou-communication",
			Adapter: "lagou-communication",
			ReplayPatterns: []string{
				"*://easy.lagou.com/im/chat/getChatResume*",
			},
		},
		{
			Name:    "lagou-order",
			Adapter: "lagou-order",
			ReplayPatterns: []string{
				"*://easy.lagou.com/order/orderResume/detail*",
			},
		},
		{
			Name:    "zhaopin",
			Adapter: "zhaopin",
			ReplayPatterns: []string{
				"*://rd6.zhaopin.com/api/resume/detail*",
			},
		},
		{
			Name:    "linkedin",
			Adapter: "linkedin",
			ReplayPatterns: []string{
				"*://www.linkedin.com/talent/api/talentProfiles*",
			},
		},
	}}
	for i := range cat.Sites {
		applySiteDefaults(&cat.Sites[i])
	}
	return cat
}
