package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgnsrekt/threads_agent/internal/apperr"
	"github.com/dgnsrekt/threads_agent/internal/driver"
	"github.com/dgnsrekt/threads_agent/internal/locator"
)

const sessionSaveTimeout = 15 * time.Second

// PostSequencer opens the composer, inserts text and submits it.
type PostSequencer struct {
	loc    Locator
	sel    Selectors
	store  SessionStore
	delays Delays
	sleep  sleepFunc
}

func NewPostSequencer(loc Locator, sel Selectors, store SessionStore, delays Delays) *PostSequencer {
	return &PostSequencer{loc: loc, sel: sel, store: store, delays: delays, sleep: locator.Sleep}
}

// Run publishes text. Whatever the outcome, the page's session is saved
// exactly once before returning.
func (p *PostSequencer) Run(ctx context.Context, page driver.Page, text string) error {
	defer p.saveSession(ctx, page)

	compose, err := p.openComposer(ctx, page)
	if err != nil {
		return err
	}

	if err := compose.Click(ctx); err != nil {
		return fmt.Errorf("post: focus composer: %w", err)
	}
	if err := p.sleep(ctx, p.delays.AfterFocus); err != nil {
		return err
	}

	inserted, err := compose.InsertText(ctx, text)
	if err != nil || !inserted {
		slog.Info("automation post insert fallback", "error", err)
		if err := compose.ReplaceText(ctx, text); err != nil {
			return fmt.Errorf("post: insert text: %w", err)
		}
	}
	if err := p.sleep(ctx, p.delays.AfterInsert); err != nil {
		return err
	}

	if submit, ok := p.loc.Locate(ctx, page, p.sel.PostSubmit); ok {
		if err := submit.Click(ctx); err != nil {
			return fmt.Errorf("post: click submit: %w", err)
		}
	} else {
		slog.Info("automation post submit control absent, using keyboard submit")
		if err := compose.Press(ctx, driver.KeyCtrlEnter); err != nil {
			return fmt.Errorf("post: keyboard submit: %w", err)
		}
	}

	if err := p.sleep(ctx, p.delays.AfterSubmit); err != nil {
		return err
	}
	slog.Info("automation post submitted", "chars", len([]rune(text)))
	return nil
}

// openComposer finds the compose surface, clicking the new-post affordance
// once when it is not already open.
func (p *PostSequencer) openComposer(ctx context.Context, page driver.Page) (driver.Element, error) {
	if el, ok := p.loc.Locate(ctx, page, p.sel.Compose); ok {
		return el, nil
	}

	btn, ok := p.loc.Locate(ctx, page, p.sel.NewPost)
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, "compose surface not found", nil)
	}
	if err := btn.Click(ctx); err != nil {
		return nil, fmt.Errorf("post: open composer: %w", err)
	}
	if err := p.sleep(ctx, p.delays.AfterNewPost); err != nil {
		return nil, err
	}
	el, ok := p.loc.Locate(ctx, page, p.sel.ComposeRetry)
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, "compose surface not found after opening composer", nil)
	}
	return el, nil
}

func (p *PostSequencer) saveSession(ctx context.Context, page driver.Page) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionSaveTimeout)
	defer cancel()

	st, err := captureState(saveCtx, page)
	if err != nil {
		slog.Warn("automation post session capture failed", "error", err)
		return
	}
	// Save failures are logged by the store and never fail the post.
	_ = p.store.Save(saveCtx, st)
}
