package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgnsrekt/threads_agent/internal/apperr"
	"github.com/dgnsrekt/threads_agent/internal/driver"
	"github.com/dgnsrekt/threads_agent/internal/locator"
)

const postedMessage = "Posted to Threads"

// Observer receives per-step timings.
type Observer interface {
	ObserveStep(step string, d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveStep(string, time.Duration, error) {}

// Config wires an Orchestrator.
type Config struct {
	SiteURL     string
	Browser     driver.Options
	Credentials Credentials
	Selectors   Selectors
	Delays      Delays
}

// Outcome is the result of one automation run.
type Outcome struct {
	Success         bool        `json:"success"`
	Message         string      `json:"message"`
	Data            OutcomeData `json:"data"`
	SessionRestored bool        `json:"-"`
	LoggedIn        bool        `json:"-"`
}

type OutcomeData struct {
	Text string `json:"text"`
}

// Orchestrator owns the browser for the length of one run.
type Orchestrator struct {
	launch   driver.LaunchFunc
	store    SessionStore
	cfg      Config
	loc      Locator
	login    *LoginSequencer
	post     *PostSequencer
	observer Observer
	sleep    sleepFunc
}

type Option func(*Orchestrator)

// WithLocator replaces the default locator.
func WithLocator(loc Locator) Option {
	return func(o *Orchestrator) { o.loc = loc }
}

// WithObserver installs a step observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithSleep replaces the settle-delay sleeper of the orchestrator and both
// sequencers.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

func NewOrchestrator(launch driver.LaunchFunc, store SessionStore, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		launch:   launch,
		store:    store,
		cfg:      cfg,
		loc:      locator.New(),
		observer: nopObserver{},
		sleep:    locator.Sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.login = NewLoginSequencer(o.loc, cfg.Selectors, cfg.Credentials, cfg.Delays)
	o.login.sleep = o.sleep
	o.post = NewPostSequencer(o.loc, cfg.Selectors, store, cfg.Delays)
	o.post.sleep = o.sleep
	return o
}

// Run restores the session, logs in when required and publishes text. The
// browser is closed on every return path.
func (o *Orchestrator) Run(ctx context.Context, text string) (out Outcome, err error) {
	if strings.TrimSpace(text) == "" {
		return Outcome{}, apperr.New(apperr.CodeValidation, "Text is required", nil)
	}

	started := time.Now()
	defer func() {
		o.observer.ObserveStep("run", time.Since(started), err)
	}()

	browser, err := o.launch(ctx, o.cfg.Browser)
	if err != nil {
		return Outcome{}, apperr.New(apperr.CodeUpstream, "browser launch failed", err)
	}
	defer func() {
		if cerr := browser.Close(); cerr != nil {
			slog.Warn("automation browser close failed", "error", cerr)
		}
	}()

	page, err := browser.NewPage(ctx)
	if err != nil {
		return Outcome{}, apperr.New(apperr.CodeUpstream, "open page failed", err)
	}

	if err := o.step("navigate", func() error { return o.openSite(ctx, page) }); err != nil {
		return Outcome{}, err
	}

	restored := o.restoreSession(ctx, page)

	loggedIn := false
	if o.loginRequired(ctx, page) {
		slog.Info("automation login required", "session_restored", restored)
		if err := o.step("login", func() error { return o.performLogin(ctx, page) }); err != nil {
			return Outcome{}, err
		}
		loggedIn = true
		if err := o.step("navigate", func() error { return o.openSite(ctx, page) }); err != nil {
			return Outcome{}, err
		}
	}

	if err := o.step("post", func() error { return o.post.Run(ctx, page, text) }); err != nil {
		return Outcome{}, err
	}

	slog.Info("automation run complete", "session_restored", restored, "logged_in", loggedIn, "duration_ms", time.Since(started).Milliseconds())
	return Outcome{
		Success:         true,
		Message:         postedMessage,
		Data:            OutcomeData{Text: text},
		SessionRestored: restored,
		LoggedIn:        loggedIn,
	}, nil
}

func (o *Orchestrator) step(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	o.observer.ObserveStep(name, time.Since(start), err)
	return err
}

func (o *Orchestrator) openSite(ctx context.Context, page driver.Page) error {
	if err := page.Navigate(ctx, o.cfg.SiteURL); err != nil {
		return apperr.New(apperr.CodeUpstream, "navigate to site failed", err)
	}
	return o.sleep(ctx, o.cfg.Delays.AfterNavigate)
}

// restoreSession applies a persisted session and reloads. Failures degrade
// to an anonymous run.
func (o *Orchestrator) restoreSession(ctx context.Context, page driver.Page) bool {
	st, ok := o.store.Load(ctx)
	if !ok || st.Empty() {
		return false
	}
	if err := page.SetCookies(ctx, st.Cookies); err != nil {
		slog.Warn("automation session apply failed", "error", err)
		return false
	}
	if err := page.Reload(ctx); err != nil {
		slog.Warn("automation reload after session restore failed", "error", err)
		return false
	}
	if err := o.sleep(ctx, o.cfg.Delays.AfterNavigate); err != nil {
		return false
	}
	return true
}

func (o *Orchestrator) loginRequired(ctx context.Context, page driver.Page) bool {
	if _, ok := o.loc.Locate(ctx, page, o.cfg.Selectors.LoginRequired); ok {
		return true
	}
	current, err := page.URL(ctx)
	if err != nil {
		slog.Warn("automation read url failed", "error", err)
		return false
	}
	return strings.Contains(current, "login")
}

func (o *Orchestrator) performLogin(ctx context.Context, page driver.Page) error {
	if link, ok := o.loc.Locate(ctx, page, o.cfg.Selectors.LoginLink); ok {
		if err := link.Click(ctx); err != nil {
			slog.Warn("automation login link click failed", "error", err)
		} else if err := o.sleep(ctx, o.cfg.Delays.AfterLoginLink); err != nil {
			return err
		}
	}

	state, err := o.login.Run(ctx, page)
	if err == nil && state != Verified {
		err = apperr.New(apperr.CodeAuth, fmt.Sprintf("login ended in state %s", state), nil)
	}
	if err != nil {
		// Only rejected or missing credentials are AUTH.
		code := apperr.CodeOf(err)
		if code == "" {
			code = apperr.CodeUpstream
		}
		return apperr.New(code, "login failed: "+apperr.Message(err), err)
	}

	saveCtx, cancel := context.WithTimeout(ctx, sessionSaveTimeout)
	defer cancel()
	st, err := captureState(saveCtx, page)
	if err != nil {
		slog.Warn("automation session capture after login failed", "error", err)
		return nil
	}
	_ = o.store.Save(saveCtx, st)
	return nil
}
