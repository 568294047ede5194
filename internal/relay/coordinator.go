// Package relay routes insert-text intents to a tab of the operator's own
// browser and reports the outcome to subscribers.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgnsrekt/threads_agent/internal/apperr"
	"github.com/dgnsrekt/threads_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/threads_agent/internal/executor"
	"github.com/dgnsrekt/threads_agent/internal/locator"
)

// FeedRelay is the SSE feed that carries relay results.
const FeedRelay = "relay"

const (
	DefaultSettle          = 300 * time.Millisecond
	DefaultRedispatchDelay = 500 * time.Millisecond
)

// Intent is a request to place text in the site's editor.
type Intent struct {
	Text          string `json:"text"`
	ScheduledTime string `json:"scheduledTime,omitempty"`
	TargetTabID   string `json:"targetTabId,omitempty"`
}

// Result is the outcome of one relay. Failures are reported here, never as
// an error.
type Result struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Recovered bool   `json:"recovered,omitempty"`
	TabID     string `json:"tabId,omitempty"`
}

// Tabs lists and foregrounds candidate tabs.
type Tabs interface {
	ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error)
	LookupTab(ctx context.Context, tabID string) (cdpcontrol.TabInfo, bool, error)
	ActivateTab(ctx context.Context, tabID string) error
}

// Dispatcher delivers a command to the executor in a tab. Dispatch returns
// an apperr TRANSPORT error when no executor is listening there.
type Dispatcher interface {
	Dispatch(ctx context.Context, tabID string, cmd executor.Command) (executor.Result, error)
	Install(ctx context.Context, tabID string) error
}

// Observer receives every relay outcome.
type Observer interface {
	ObserveRelay(res Result, d time.Duration)
}

// Coordinator resolves the target tab and dispatches, installing the
// executor and retrying once when the tab has none.
type Coordinator struct {
	tabs            Tabs
	dispatcher      Dispatcher
	broker          *Broker
	observer        Observer
	settle          time.Duration
	redispatchDelay time.Duration
	sleep           func(ctx context.Context, d time.Duration) error
}

type Option func(*Coordinator)

func WithObserver(obs Observer) Option {
	return func(c *Coordinator) { c.observer = obs }
}

// WithDelays overrides the post-activation settle and the wait between
// installing the executor and redispatching.
func WithDelays(settle, redispatch time.Duration) Option {
	return func(c *Coordinator) {
		c.settle = settle
		c.redispatchDelay = redispatch
	}
}

// WithSleep replaces the sleeper used for both delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Coordinator) { c.sleep = sleep }
}

// NewCoordinator builds a Coordinator. broker may be nil.
func NewCoordinator(tabs Tabs, dispatcher Dispatcher, broker *Broker, opts ...Option) *Coordinator {
	c := &Coordinator{
		tabs:            tabs,
		dispatcher:      dispatcher,
		broker:          broker,
		settle:          DefaultSettle,
		redispatchDelay: DefaultRedispatchDelay,
		sleep:           locator.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Targets lists the eligible tabs.
func (c *Coordinator) Targets(ctx context.Context) ([]cdpcontrol.TabInfo, error) {
	return c.tabs.ListTabs(ctx)
}

// Relay executes in and always returns a Result.
func (c *Coordinator) Relay(ctx context.Context, in Intent) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("relay panic", "panic", r)
			res = Result{Error: fmt.Sprintf("internal error: %v", r)}
		}
		c.report(in, res, time.Since(start))
	}()

	tab, fail := c.resolveTarget(ctx, strings.TrimSpace(in.TargetTabID))
	if fail != "" {
		return Result{Error: fail}
	}

	if err := c.tabs.ActivateTab(ctx, tab.ID); err != nil {
		slog.Warn("relay activate failed", "tab_id", tab.ID, "error", err)
	}
	if err := c.sleep(ctx, c.settle); err != nil {
		return Result{Error: err.Error(), TabID: tab.ID}
	}

	cmd := executor.Command{Action: executor.ActionInsertText, Text: in.Text, ScheduledTime: in.ScheduledTime}
	out, err := c.dispatcher.Dispatch(ctx, tab.ID, cmd)
	recovered := false
	if apperr.Is(err, apperr.CodeTransport) {
		slog.Info("relay no executor in tab, installing", "tab_id", tab.ID)
		if ierr := c.dispatcher.Install(ctx, tab.ID); ierr != nil {
			return Result{Error: "executor install failed: " + apperr.Message(ierr), TabID: tab.ID}
		}
		if err := c.sleep(ctx, c.redispatchDelay); err != nil {
			return Result{Error: err.Error(), TabID: tab.ID}
		}
		recovered = true
		out, err = c.dispatcher.Dispatch(ctx, tab.ID, cmd)
	}
	if err != nil {
		return Result{Error: apperr.Message(err), Recovered: recovered, TabID: tab.ID}
	}
	return Result{Success: out.Success, Error: out.Error, Recovered: recovered, TabID: tab.ID}
}

// resolveTarget returns the tab to use or a failure message.
func (c *Coordinator) resolveTarget(ctx context.Context, explicit string) (cdpcontrol.TabInfo, string) {
	if explicit != "" {
		tab, ok, err := c.tabs.LookupTab(ctx, explicit)
		if err != nil {
			return cdpcontrol.TabInfo{}, "tab lookup failed: " + apperr.Message(err)
		}
		if !ok {
			return cdpcontrol.TabInfo{}, fmt.Sprintf("tab %s no longer exists", explicit)
		}
		return tab, ""
	}

	tabs, err := c.tabs.ListTabs(ctx)
	if err != nil {
		return cdpcontrol.TabInfo{}, "tab listing failed: " + apperr.Message(err)
	}
	if len(tabs) == 0 {
		return cdpcontrol.TabInfo{}, "no eligible target"
	}
	for _, t := range tabs {
		if t.Active {
			return t, ""
		}
	}
	return tabs[0], ""
}

func (c *Coordinator) report(in Intent, res Result, d time.Duration) {
	slog.Info("relay dispatch",
		"success", res.Success,
		"tab_id", res.TabID,
		"recovered", res.Recovered,
		"error", res.Error,
		"chars", len([]rune(in.Text)),
		"scheduled", in.ScheduledTime != "",
		"duration_ms", d.Milliseconds(),
	)
	if c.observer != nil {
		c.observer.ObserveRelay(res, d)
	}
	if c.broker != nil {
		c.broker.PublishJSON(FeedRelay, res)
	}
}
