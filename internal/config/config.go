package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the sourcing agent.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// Backend endpoints
	SyncHost    string
	SpaceServer string
	WSServer    string

	// Session
	TokenDomain string
	TokenURL    string

	// Local API
	APIBindAddr string

	// Site catalog
	SitesFile string

	// Confirmation gate
	AutoSync        bool
	ConfirmInterval time.Duration

	// Status polling after submission
	StatusInterval    time.Duration
	StatusMaxAttempts int

	// Storage settings
	DataDir       string
	MaxFileSizeMB int
	BufferSize    int

	// Logging
	LogDir string

	// Optional browser launch when no CDP endpoint is listening
	LaunchBrowser bool
	ProfileDir    string
	StartURL      string

	// Optional ntfy endpoint for sync outcome notifications
	NtfyEndpoint string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:        getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:           getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		SyncHost:          getEnvOrDefault("AGENT_SYNC_HOST", "https://tip.mesoor.com"),
		SpaceServer:       getEnvOrDefault("AGENT_SPACE_SERVER", "https://space.mesoor.com"),
		WSServer:          getEnvOrDefault("AGENT_WS_SERVER", "wss://tip.mesoor.com"),
		TokenDomain:       getEnvOrDefault("AGENT_TOKEN_DOMAIN", "mesoor.com"),
		TokenURL:          getEnvOrDefault("AGENT_TOKEN_URL", "https://tip.mesoor.com"),
		APIBindAddr:       getEnvOrDefault("AGENT_API_BIND_ADDR", "127.0.0.1:8722"),
		SitesFile:         getEnvOrDefault("AGENT_SITES_FILE", "./sites.yaml"),
		AutoSync:          getEnvBoolOrDefault("AGENT_AUTO_SYNC", false),
		ConfirmInterval:   getEnvDurationOrDefault("AGENT_CONFIRM_INTERVAL", 200*time.Millisecond),
		StatusInterval:    getEnvDurationOrDefault("AGENT_STATUS_INTERVAL", 2*time.Second),
		StatusMaxAttempts: getEnvIntOrDefault("AGENT_STATUS_MAX_ATTEMPTS", 30),
		DataDir:           getEnvOrDefault("AGENT_DATA_DIR", "./agent_data"),
		MaxFileSizeMB:     getEnvIntOrDefault("AGENT_MAX_FILE_SIZE_MB", 200),
		BufferSize:        getEnvIntOrDefault("AGENT_BUFFER_SIZE", 5000),
		LogDir:            getEnvOrDefault("AGENT_LOG_DIR", "./logs"),
		LaunchBrowser:     getEnvBoolOrDefault("AGENT_LAUNCH_BROWSER", false),
		ProfileDir:        getEnvOrDefault("AGENT_PROFILE_DIR", "./agent_profile"),
		StartURL:          getEnvOrDefault("AGENT_START_URL", "about:blank"),
		NtfyEndpoint:      getEnvOrDefault("AGENT_NTFY_ENDPOINT", ""),
	}

	return cfg, nil
}

// GetCDPURL returns the full CDP HTTP endpoint used by chromedp remote allocator.
func (c *Config) GetCDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
