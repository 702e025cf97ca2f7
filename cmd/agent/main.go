package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tidwall/gjson"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nadileaf/sourcing-agent/internal/adapter"
	"github.com/nadileaf/sourcing-agent/internal/api"
	"github.com/nadileaf/sourcing-agent/internal/browser"
	"github.com/nadileaf/sourcing-agent/internal/capture"
	"github.com/nadileaf/sourcing-agent/internal/cdp"
	"github.com/nadileaf/sourcing-agent/internal/config"
	"github.com/nadileaf/sourcing-agent/internal/control"
	"github.com/nadileaf/sourcing-agent/internal/controller"
	"github.com/nadileaf/sourcing-agent/internal/netutil"
	"github.com/nadileaf/sourcing-agent/internal/notify"
	"github.com/nadileaf/sourcing-agent/internal/pipeline"
	"github.com/nadileaf/sourcing-agent/internal/relay"
	"github.com/nadileaf/sourcing-agent/internal/replay"
	"github.com/nadileaf/sourcing-agent/internal/session"
	"github.com/nadileaf/sourcing-agent/internal/snapshot"
	"github.com/nadileaf/sourcing-agent/internal/storage"
	"github.com/nadileaf/sourcing-agent/internal/syncer"
	"github.com/nadileaf/sourcing-agent/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		slog.Debug("log directory creation failed", "error", err)
	}
	logWriter := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "agent.log"),
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}
	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(handler))

	slog.Info("Starting sourcing agent")

	catalog, err := config.LoadSites(cfg.SitesFile)
	if err != nil {
		slog.Error("Failed to load site catalog", "error", err, "file", cfg.SitesFile)
		os.Exit(1)
	}
	slog.Info("Configuration loaded",
		"cdp_address", cfg.CDPAddress,
		"cdp_port", cfg.CDPPort,
		"sync_host", cfg.SyncHost,
		"ws_server", cfg.WSServer,
		"auto_sync", cfg.AutoSync,
		"sites", len(catalog.Sites),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if cfg.LaunchBrowser {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("Failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	headerCache := capture.NewHeaderCache(0)
	observer := capture.NewObserver(catalog, headerCache)
	tabRegistry := cdp.NewTabRegistry()

	cdpClient := cdp.NewClient(cfg, observer, tabRegistry)
	if err := cdpClient.Connect(ctx); err != nil {
		slog.Error("Failed to connect to browser", "error", err)
		slog.Info("Make sure Chromium is running with remote debugging enabled")
		os.Exit(1)
	}
	defer func() {
		if err := cdpClient.Close(); err != nil {
			slog.Warn("CDP close failed", "error", err)
		}
	}()

	auditLog := storage.NewJSONLWriter(cfg.DataDir, "exchanges", cfg.BufferSize, cfg.MaxFileSizeMB)
	defer func() {
		if err := auditLog.Close(); err != nil {
			slog.Warn("Audit log close failed", "error", err)
		}
	}()

	shots, err := snapshot.NewStore(filepath.Join(cfg.DataDir, "snapshots"))
	if err != nil {
		slog.Error("Failed to create snapshot store", "error", err)
		os.Exit(1)
	}

	sessions := session.NewManager(cdpClient, cfg.TokenURL, cfg.TokenDomain, 0)
	go sessions.Run(ctx)

	broker := relay.NewBroker()

	engine := replay.NewEngine(headerCache, nil)
	adapters := adapter.NewRegistry(adapter.NewFetcher(nil))
	confirmStore := pipeline.NewConfirmStore()
	gate := pipeline.NewGate(confirmStore, cdpClient, cfg.ConfirmInterval, cfg.AutoSync)
	submitter := syncer.New(cfg.SyncHost, cfg.SpaceServer, nil, cfg.StatusInterval, cfg.StatusMaxAttempts)

	pipe := pipeline.New(observer, engine, adapters, confirmStore, gate,
		sessions, submitter, cdpClient, broker, auditLog)
	go pipe.Run(ctx)

	channel := control.New(cfg.WSServer, cdpClient, shots)
	go channel.Run(ctx, sessions.Changes())

	ntfy := notify.New(cfg.NtfyEndpoint, nil)
	if ntfy.Enabled() {
		go watchOutcomes(ctx, broker, ntfy)
	}

	svc := controller.New(pipe, cdpClient, sessions, shots, broker, catalog.Sites)
	apiHandler := api.NewServer(svc, relay.SSEHandler(broker))

	bindAddr, err := netutil.SelectBindAddr(cfg.APIBindAddr, []string{"127.0.0.1:8723", "127.0.0.1:0"}, true)
	if err != nil {
		slog.Error("No usable API bind address", "error", err)
		os.Exit(1)
	}
	srv := &http.Server{Addr: bindAddr, Handler: apiHandler}
	go func() {
		slog.Info("Local API listening", "addr", bindAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server failed", "error", err)
			sigCh <- syscall.SIGTERM
		}
	}()

	slog.Info("Agent running", "tabs", cdpClient.GetTabCount())
	slog.Info("Press Ctrl+C to stop")

	<-sigCh
	slog.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("API shutdown failed", "error", err)
	}

	cancel()
	slog.Info("Agent stopped")
}

// watchOutcomes mirrors terminal pipeline stages to the ntfy endpoint.
func watchOutcomes(ctx context.Context, broker *relay.Broker, ntfy *notify.Notifier) {
	id, ch := broker.Subscribe()
	defer broker.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if evt.Stage != relay.StageSynced && evt.Stage != relay.StageFailed {
				continue
			}
			outcome := types.SyncOutcome{
				OpenID:     gjson.Get(evt.Payload, "openId").String(),
				EntityType: gjson.Get(evt.Payload, "entityType").String(),
				ErrCode:    int(gjson.Get(evt.Payload, "errCode").Int()),
				ErrMessage: gjson.Get(evt.Payload, "errMessage").String(),
			}
			if outcome.ErrMessage == "" {
				outcome.ErrMessage = gjson.Get(evt.Payload, "error").String()
			}
			site := gjson.Get(evt.Payload, "site").String()
			if err := ntfy.SyncOutcome(ctx, site, outcome); err != nil {
				slog.Debug("ntfy notification failed", "error", err)
			}
		}
	}
}
