// Package locator finds a control that may match any of several selectors,
// retrying until an overall deadline.
package locator

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/threads_agent/internal/driver"
)

const (
	DefaultTimeout      = 5 * time.Second
	DefaultProbeTimeout = 500 * time.Millisecond
	DefaultBackoff      = 500 * time.Millisecond
)

// Spec is an ordered list of candidate selectors. Earlier candidates win.
type Spec struct {
	Name         string
	Candidates   []driver.Selector
	Timeout      time.Duration
	ProbeTimeout time.Duration
}

// Locator probes candidates sequentially.
type Locator struct {
	backoff time.Duration
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

type Option func(*Locator)

// WithClock replaces the time source and sleeper.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Locator) {
		l.now = now
		l.sleep = sleep
	}
}

// WithBackoff sets the pause between full passes.
func WithBackoff(d time.Duration) Option {
	return func(l *Locator) { l.backoff = d }
}

func New(opts ...Option) *Locator {
	l := &Locator{
		backoff: DefaultBackoff,
		now:     time.Now,
		sleep:   Sleep,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Locate returns the first candidate that becomes visible. It returns false
// only after spec.Timeout has elapsed (or ctx is done) without a match.
func (l *Locator) Locate(ctx context.Context, page driver.Page, spec Spec) (driver.Element, bool) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	probe := spec.ProbeTimeout
	if probe <= 0 {
		probe = DefaultProbeTimeout
	}

	start := l.now()
	passes := 0
	for l.now().Sub(start) < timeout {
		passes++
		for _, sel := range spec.Candidates {
			if ctx.Err() != nil {
				slog.Debug("locator cancelled", "spec", spec.Name, "error", ctx.Err())
				return nil, false
			}
			el, err := page.WaitVisible(ctx, sel, probe)
			if err == nil && el != nil {
				slog.Debug("locator match", "spec", spec.Name, "selector", sel.String(), "passes", passes)
				return el, true
			}
		}
		if err := l.sleep(ctx, l.backoff); err != nil {
			return nil, false
		}
	}
	slog.Debug("locator exhausted", "spec", spec.Name, "timeout", timeout, "passes", passes)
	return nil, false
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
