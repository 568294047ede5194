package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgnsrekt/threads_agent/internal/apperr"
	"github.com/dgnsrekt/threads_agent/internal/driver"
	"github.com/dgnsrekt/threads_agent/internal/locator"
)

// LoginState is a step of the login flow.
type LoginState int

const (
	NavigatedAnonymous LoginState = iota
	UsernameEntered
	PasswordEntered
	Submitted
	Verified
	Failed
)

func (s LoginState) String() string {
	switch s {
	case NavigatedAnonymous:
		return "navigated_anonymous"
	case UsernameEntered:
		return "username_entered"
	case PasswordEntered:
		return "password_entered"
	case Submitted:
		return "submitted"
	case Verified:
		return "verified"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("login_state(%d)", int(s))
	}
}

// LoginSequencer fills and submits the login form, then checks that the
// page navigated away from the login route.
type LoginSequencer struct {
	loc    Locator
	sel    Selectors
	creds  Credentials
	delays Delays
	sleep  sleepFunc
}

func NewLoginSequencer(loc Locator, sel Selectors, creds Credentials, delays Delays) *LoginSequencer {
	return &LoginSequencer{loc: loc, sel: sel, creds: creds, delays: delays, sleep: locator.Sleep}
}

// Run executes the flow on page, which must already show the login form or
// the anonymous landing page. The returned state is Verified or Failed.
func (l *LoginSequencer) Run(ctx context.Context, page driver.Page) (LoginState, error) {
	state := NavigatedAnonymous
	fail := func(err error) (LoginState, error) {
		slog.Warn("automation login failed", "last_state", state.String(), "error", err)
		return Failed, err
	}
	advance := func(next LoginState) {
		slog.Info("automation login step", "from", state.String(), "to", next.String())
		state = next
	}

	if !l.creds.complete() {
		return fail(apperr.New(apperr.CodeAuth, "login credentials are not configured", nil))
	}
	if err := l.sleep(ctx, l.delays.AfterNavigate); err != nil {
		return fail(err)
	}

	user, ok := l.loc.Locate(ctx, page, l.sel.Username)
	if !ok {
		return fail(apperr.New(apperr.CodeNotFound, "username field not found", nil))
	}
	if err := user.Fill(ctx, l.creds.Username); err != nil {
		return fail(fmt.Errorf("login: fill username: %w", err))
	}
	advance(UsernameEntered)
	if err := l.sleep(ctx, l.delays.BetweenFields); err != nil {
		return fail(err)
	}

	pass, ok := l.loc.Locate(ctx, page, l.sel.Password)
	if !ok {
		return fail(apperr.New(apperr.CodeNotFound, "password field not found", nil))
	}
	if err := pass.Fill(ctx, l.creds.Password); err != nil {
		return fail(fmt.Errorf("login: fill password: %w", err))
	}
	advance(PasswordEntered)
	if err := l.sleep(ctx, l.delays.BetweenFields); err != nil {
		return fail(err)
	}

	if submit, ok := l.loc.Locate(ctx, page, l.sel.LoginSubmit); ok {
		if err := submit.Click(ctx); err != nil {
			return fail(fmt.Errorf("login: click submit: %w", err))
		}
	} else {
		slog.Info("automation login submit control absent, pressing enter")
		if err := pass.Press(ctx, driver.KeyEnter); err != nil {
			return fail(fmt.Errorf("login: press enter: %w", err))
		}
	}
	advance(Submitted)

	if err := l.sleep(ctx, l.delays.AfterLogin); err != nil {
		return fail(err)
	}
	current, err := page.URL(ctx)
	if err != nil {
		return fail(fmt.Errorf("login: read url: %w", err))
	}
	if strings.Contains(current, "login") {
		return fail(apperr.New(apperr.CodeAuth, "login not verified: still on login page", nil))
	}
	advance(Verified)
	return Verified, nil
}
