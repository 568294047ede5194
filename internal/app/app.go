// Package app assembles the controller from configuration. Both binaries
// build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dgnsrekt/threads_agent/internal/api"
	"github.com/dgnsrekt/threads_agent/internal/automation"
	"github.com/dgnsrekt/threads_agent/internal/blob"
	"github.com/dgnsrekt/threads_agent/internal/browser"
	"github.com/dgnsrekt/threads_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/threads_agent/internal/config"
	"github.com/dgnsrekt/threads_agent/internal/controller"
	"github.com/dgnsrekt/threads_agent/internal/drafts"
	"github.com/dgnsrekt/threads_agent/internal/journal"
	"github.com/dgnsrekt/threads_agent/internal/driver"
	"github.com/dgnsrekt/threads_agent/internal/driver/cdpdriver"
	"github.com/dgnsrekt/threads_agent/internal/driver/pwdriver"
	"github.com/dgnsrekt/threads_agent/internal/executor"
	"github.com/dgnsrekt/threads_agent/internal/generate"
	"github.com/dgnsrekt/threads_agent/internal/locale"
	"github.com/dgnsrekt/threads_agent/internal/metrics"
	"github.com/dgnsrekt/threads_agent/internal/notify"
	"github.com/dgnsrekt/threads_agent/internal/relay"
	"github.com/dgnsrekt/threads_agent/internal/session"
)

// Options toggles the parts of the app that touch the outside world at
// startup.
type Options struct {
	// LaunchBrowser starts the operator browser when cfg.LaunchBrowser is set.
	LaunchBrowser bool
	// ConnectRelay dials the operator browser eagerly. Failures are logged
	// and the client reconnects on first use.
	ConnectRelay bool
	// Launch overrides the automation driver, mainly for tests.
	Launch driver.LaunchFunc
}

// App holds the wired service and the resources it owns.
type App struct {
	Config  *config.ControllerConfig
	Service *controller.Service
	Broker  *relay.Broker
	Metrics *metrics.Metrics

	registry *prometheus.Registry
	launcher *browser.Launcher
	closers  []func() error
}

// LaunchFuncFor returns the automation driver named by name.
func LaunchFuncFor(name string) (driver.LaunchFunc, error) {
	switch name {
	case "", config.DriverChromedp:
		return cdpdriver.Launch, nil
	case config.DriverPlaywright:
		return pwdriver.Launch, nil
	default:
		return nil, fmt.Errorf("app: unsupported driver %q", name)
	}
}

func loadLocale(path string) (*locale.Table, error) {
	if path == "" {
		return locale.Default(), nil
	}
	return locale.LoadFile(path)
}

// New wires every component named by cfg.
func New(ctx context.Context, cfg *config.ControllerConfig, opts Options) (_ *App, err error) {
	a := &App{Config: cfg, Broker: relay.NewBroker(), registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.MustNewMetrics(a.registry)

	table, err := loadLocale(cfg.LocaleTablePath)
	if err != nil {
		return nil, err
	}

	launch := opts.Launch
	if launch == nil {
		if launch, err = LaunchFuncFor(cfg.Driver); err != nil {
			return nil, err
		}
	}

	blobs, err := blob.Open(ctx, blob.Options{Backend: cfg.SessionBackend, Dir: cfg.BlobDir, SQLitePath: cfg.SQLitePath})
	if err != nil {
		return nil, fmt.Errorf("app: open session backend: %w", err)
	}
	if c, ok := blobs.(blob.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	sessions := session.NewStore(blobs, cfg.SessionBucket, cfg.SessionKey)

	width, height := cfg.WindowDimensions()
	orch := automation.NewOrchestrator(launch, sessions, automation.Config{
		SiteURL: cfg.SiteURL,
		Browser: driver.Options{
			Headless:    cfg.Headless,
			Locale:      cfg.Locale,
			UserAgent:   cfg.UserAgent,
			Width:       width,
			Height:      height,
			BrowserPath: cfg.BrowserPath,
		},
		Credentials: automation.Credentials{Username: cfg.Username, Password: cfg.Password},
		Selectors:   automation.DefaultSelectors(table),
		Delays:      automation.DefaultDelays(),
	}, automation.WithObserver(a.Metrics))

	store, err := drafts.Open(cfg.DraftsPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)

	gen, err := generate.New(generate.Config{
		Provider:     cfg.GenerateProvider,
		GeminiAPIKey: cfg.GeminiAPIKey,
		GeminiModel:  cfg.GeminiModel,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		OpenAIModel:  cfg.OpenAIModel,
	})
	if err != nil {
		return nil, err
	}

	if opts.LaunchBrowser && cfg.LaunchBrowser {
		a.launcher = browser.NewLauncher(browser.Config{
			BrowserPath: cfg.BrowserPath,
			CDPAddress:  cfg.CDPAddress,
			CDPPort:     cfg.CDPPort,
			StartURL:    cfg.SiteURL,
			ProfileDir:  cfg.ProfileDir,
			Lang:        cfg.LanguageTag(),
		})
		if err := a.launcher.Launch(ctx); err != nil {
			return nil, fmt.Errorf("app: launch operator browser: %w", err)
		}
	}

	cdpClient := cdpcontrol.NewClient(cfg.ControllerCDPURL(), cfg.HostFilter, cfg.EvalTimeout())
	a.closers = append(a.closers, cdpClient.Close)
	if opts.ConnectRelay {
		if err := cdpClient.Connect(ctx); err != nil {
			slog.Warn("relay browser not reachable yet", "cdp_url", cfg.ControllerCDPURL(), "error", err)
		}
	}
	coord := relay.NewCoordinator(cdpClient,
		relay.NewExecutorDispatcher(cdpClient, executor.New(executor.DefaultConfig(table))),
		a.Broker,
		relay.WithObserver(a.Metrics),
	)
	if cfg.JournalDir != "" {
		jw := journal.NewWriter(cfg.JournalDir, relay.FeedRelay, 256, 50)
		stop := jw.Follow(a.Broker)
		a.closers = append(a.closers, func() error {
			stop()
			return jw.Close()
		})
	}

	a.Service = controller.NewService(controller.Deps{
		Poster:         orch,
		Sessions:       sessions,
		Relay:          coord,
		Drafts:         store,
		Generator:      gen,
		Alerter:        notify.New(nil, cfg.NotifyEndpoint),
		PostsPerMinute: cfg.PostRatePerMinute,
	})
	return a, nil
}

// Handler returns the HTTP surface of the app.
func (a *App) Handler() http.Handler {
	return api.NewServer(a.Service, api.Options{
		Broker:         a.Broker,
		Metrics:        a.Metrics.Handler(),
		Observer:       a.Metrics,
		AllowedOrigins: a.Config.CORSAllowedOrigins,
	})
}

// Close releases every resource in reverse order of acquisition and stops
// a browser this app launched.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.launcher != nil {
		if err := a.launcher.Stop(); err != nil {
			errs = append(errs, err)
		}
		a.launcher = nil
	}
	return errors.Join(errs...)
}
