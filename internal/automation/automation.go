// Package automation drives the site through a headless browser: restoring
// the persisted session, logging in when required, and publishing a post.
package automation

import (
	"context"
	"strings"
	"time"

	"github.com/dgnsrekt/threads_agent/internal/driver"
	"github.com/dgnsrekt/threads_agent/internal/locator"
	"github.com/dgnsrekt/threads_agent/internal/session"
)

// Credentials are read from process configuration and never persisted.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) complete() bool {
	return strings.TrimSpace(c.Username) != "" && c.Password != ""
}

// Locator is the subset of *locator.Locator the sequencers use.
type Locator interface {
	Locate(ctx context.Context, page driver.Page, spec locator.Spec) (driver.Element, bool)
}

// SessionStore is the session slot seen by the orchestrator and sequencers.
type SessionStore interface {
	Load(ctx context.Context) (session.State, bool)
	Save(ctx context.Context, st session.State) error
}

// Delays are the fixed settle waits between steps.
type Delays struct {
	AfterNavigate  time.Duration
	BetweenFields  time.Duration
	AfterLogin     time.Duration
	AfterNewPost   time.Duration
	AfterFocus     time.Duration
	AfterInsert    time.Duration
	AfterSubmit    time.Duration
	AfterLoginLink time.Duration
}

// DefaultDelays matches the pacing the site tolerates without flagging the
// session.
func DefaultDelays() Delays {
	return Delays{
		AfterNavigate:  3 * time.Second,
		BetweenFields:  time.Second,
		AfterLogin:     5 * time.Second,
		AfterNewPost:   2 * time.Second,
		AfterFocus:     500 * time.Millisecond,
		AfterInsert:    time.Second,
		AfterSubmit:    3 * time.Second,
		AfterLoginLink: 3 * time.Second,
	}
}

type sleepFunc func(ctx context.Context, d time.Duration) error

// captureState reads the page's cookies into a session.State.
func captureState(ctx context.Context, page driver.Page) (session.State, error) {
	cookies, err := page.Cookies(ctx)
	if err != nil {
		return session.State{}, err
	}
	return session.State{Cookies: cookies, Origins: []session.Origin{}}, nil
}
