package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/threads_agent/internal/app"
	"github.com/dgnsrekt/threads_agent/internal/config"
	"github.com/dgnsrekt/threads_agent/internal/netutil"
)

func main() {
	cfg, err := config.LoadController()
	if err != nil {
		slog.Error("failed to load controller config", "error", err)
		os.Exit(1)
	}

	if err := app.SetupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("threads_controller config loaded",
		"bind_addr", cfg.BindAddr,
		"site_url", cfg.SiteURL,
		"host_filter", cfg.HostFilter,
		"driver", cfg.Driver,
		"headless", cfg.Headless,
		"session_backend", cfg.SessionBackend,
		"cdp_url", cfg.ControllerCDPURL(),
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"launch_browser", cfg.LaunchBrowser,
		"generate_provider", cfg.GenerateProvider,
		"has_credentials", cfg.HasCredentials(),
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	a, err := app.New(context.Background(), cfg, app.Options{LaunchBrowser: true, ConnectRelay: true})
	if err != nil {
		slog.Error("failed to build controller", "error", err)
		_ = ln.Close()
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Debug("controller close failed", "error", err)
		}
	}()

	srv := &http.Server{Handler: a.Handler(), ReadHeaderTimeout: 10 * time.Second}
	bindAddr := ln.Addr().String()

	go func() {
		slog.Info("threads_controller listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("threads_controller server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("threads_controller shutdown failed", "error", err)
	}
}
