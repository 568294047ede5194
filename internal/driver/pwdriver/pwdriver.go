// Package pwdriver implements driver.Browser on playwright-go.
package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/threads_agent/internal/driver"
	"github.com/dgnsrekt/threads_agent/internal/session"
	"github.com/playwright-community/playwright-go"
)

const (
	navigationTimeoutMS = 30000
	elementTimeoutMS    = 10000
)

// Browser owns the playwright driver process, the browser and its context.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext

	closeOnce sync.Once
}

var _ driver.LaunchFunc = Launch

// Launch installs the chromium bundle when missing and starts a browser.
func Launch(ctx context.Context, opts driver.Options) (driver.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("pwdriver: install: %w", err)
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("pwdriver: run: %w", err)
	}

	headless := opts.Headless
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &headless,
		Args: []string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-gpu",
			fmt.Sprintf("--window-size=%d,%d", opts.Width, opts.Height),
		},
	}
	if lang, _, _ := strings.Cut(opts.Locale, "-"); lang != "" {
		launchOpts.Args = append(launchOpts.Args, "--lang="+lang)
	}
	if path := strings.TrimSpace(opts.BrowserPath); path != "" {
		launchOpts.ExecutablePath = &path
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("pwdriver: launch: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: opts.Width, Height: opts.Height},
	}
	if opts.UserAgent != "" {
		ua := opts.UserAgent
		contextOpts.UserAgent = &ua
	}
	if opts.Locale != "" {
		loc := opts.Locale
		contextOpts.Locale = &loc
	}
	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("pwdriver: new context: %w", err)
	}

	slog.Info("pwdriver browser started", "headless", opts.Headless, "locale", opts.Locale)
	return &Browser{pw: pw, browser: browser, bctx: bctx}, nil
}

func (b *Browser) NewPage(ctx context.Context) (driver.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := b.bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("pwdriver: new page: %w", err)
	}
	page.SetDefaultTimeout(elementTimeoutMS)
	return &Page{bctx: b.bctx, page: page}, nil
}

// Close tears down the context, the browser and the driver process. Safe to
// call more than once.
func (b *Browser) Close() error {
	var errs []error
	b.closeOnce.Do(func() {
		if err := b.bctx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pwdriver: close context: %w", err))
		}
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pwdriver: close browser: %w", err))
		}
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("pwdriver: stop: %w", err))
		}
		slog.Info("pwdriver browser closed")
	})
	return errors.Join(errs...)
}

// Page wraps a playwright page.
type Page struct {
	bctx playwright.BrowserContext
	page playwright.Page
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := float64(navigationTimeoutMS)
	if _, err := p.page.Goto(url, playwright.PageGotoOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("pwdriver: navigate %s: %w", url, err)
	}
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := float64(navigationTimeoutMS)
	if _, err := p.page.Reload(playwright.PageReloadOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("pwdriver: reload: %w", err)
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.URL(), nil
}

func (p *Page) WaitVisible(ctx context.Context, sel driver.Selector, timeout time.Duration) (driver.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	state := playwright.WaitForSelectorState("visible")
	ms := float64(timeout.Milliseconds())
	handle, err := p.page.WaitForSelector(selectorFor(sel), playwright.PageWaitForSelectorOptions{
		State:   &state,
		Timeout: &ms,
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return nil, driver.ErrNotVisible
		}
		return nil, fmt.Errorf("pwdriver: query %s: %w", sel, err)
	}
	if handle == nil {
		return nil, driver.ErrNotVisible
	}
	return &Element{handle: handle}, nil
}

// selectorFor renders sel in playwright's selector engine syntax.
func selectorFor(sel driver.Selector) string {
	if sel.Kind == driver.KindCSS {
		return sel.Value
	}
	return "xpath=" + sel.XPathExpr()
}

func (p *Page) SetCookies(ctx context.Context, cookies []session.Cookie) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		oc := playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   playwright.String(c.Domain),
			Path:     playwright.String(c.Path),
			HttpOnly: playwright.Bool(c.HTTPOnly),
			Secure:   playwright.Bool(c.Secure),
		}
		if c.Expires > 0 {
			oc.Expires = playwright.Float(c.Expires)
		}
		if c.SameSite != "" {
			ss := playwright.SameSiteAttribute(c.SameSite)
			oc.SameSite = &ss
		}
		out = append(out, oc)
	}
	if err := p.bctx.AddCookies(out); err != nil {
		return fmt.Errorf("pwdriver: add cookies: %w", err)
	}
	return nil
}

func (p *Page) Cookies(ctx context.Context) ([]session.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := p.bctx.Cookies()
	if err != nil {
		return nil, fmt.Errorf("pwdriver: cookies: %w", err)
	}
	out := make([]session.Cookie, 0, len(raw))
	for _, c := range raw {
		sameSite := ""
		if c.SameSite != nil {
			sameSite = string(*c.SameSite)
		}
		out = append(out, session.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
			SameSite: sameSite,
		})
	}
	return out, nil
}

// Element wraps an element handle.
type Element struct {
	handle playwright.ElementHandle
}

func (e *Element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.handle.Click(); err != nil {
		return fmt.Errorf("pwdriver: click: %w", err)
	}
	return nil
}

func (e *Element) Fill(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.handle.Fill(value); err != nil {
		return fmt.Errorf("pwdriver: fill: %w", err)
	}
	return nil
}

func (e *Element) Press(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.handle.Press(key); err != nil {
		return fmt.Errorf("pwdriver: press %s: %w", key, err)
	}
	return nil
}

const jsInsertText = `(el, text) => {
	el.focus();
	return document.execCommand('insertText', false, text) === true;
}`

const jsReplaceText = `(el, text) => {
	el.focus();
	el.innerText = text;
	el.dispatchEvent(new Event('input', { bubbles: true }));
	return true;
}`

func (e *Element) InsertText(ctx context.Context, text string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	res, err := e.handle.Evaluate(jsInsertText, text)
	if err != nil {
		return false, fmt.Errorf("pwdriver: insert text: %w", err)
	}
	ok, _ := res.(bool)
	return ok, nil
}

func (e *Element) ReplaceText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := e.handle.Evaluate(jsReplaceText, text); err != nil {
		return fmt.Errorf("pwdriver: replace text: %w", err)
	}
	return nil
}
