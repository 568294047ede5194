// Package cdpdriver implements driver.Browser on a locally launched
// Chrome/Chromium via chromedp.
package cdpdriver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/dgnsrekt/threads_agent/internal/driver"
	"github.com/dgnsrekt/threads_agent/internal/session"
)

const navigationTimeout = 30 * time.Second

// Browser owns the allocator and browser contexts of one launch.
type Browser struct {
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	locale      string

	closeOnce sync.Once
}

var _ driver.LaunchFunc = Launch

// Launch starts a new browser process with the given options.
func Launch(ctx context.Context, opts driver.Options) (driver.Browser, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.DisableGPU,
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if lang, _, _ := strings.Cut(opts.Locale, "-"); lang != "" {
		allocOpts = append(allocOpts, chromedp.Flag("lang", lang))
	}
	if path := strings.TrimSpace(opts.BrowserPath); path != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(path))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// The first Run allocates the browser and must not carry a timeout.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("cdpdriver: start browser: %w", err)
	}

	slog.Info("cdpdriver browser started", "headless", opts.Headless, "locale", opts.Locale)
	return &Browser{allocCancel: allocCancel, ctx: browserCtx, cancel: cancel, locale: opts.Locale}, nil
}

// NewPage opens a tab with the configured locale override applied.
func (b *Browser) NewPage(ctx context.Context) (driver.Page, error) {
	if b.ctx.Err() != nil {
		return nil, fmt.Errorf("cdpdriver: browser closed")
	}
	tabCtx, tabCancel := chromedp.NewContext(b.ctx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("cdpdriver: new target: %w", err)
	}
	p := &Page{ctx: tabCtx, cancel: tabCancel}

	runCtx, cancel := p.opContext(ctx, navigationTimeout)
	defer cancel()
	actions := []chromedp.Action{chromedp.Navigate("about:blank")}
	if b.locale != "" {
		actions = append(actions, emulation.SetLocaleOverride().WithLocale(b.locale))
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
		tabCancel()
		return nil, fmt.Errorf("cdpdriver: new page: %w", err)
	}
	return p, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (b *Browser) Close() error {
	var err error
	b.closeOnce.Do(func() {
		closeCtx, cancel := context.WithTimeout(b.ctx, 5*time.Second)
		defer cancel()
		if cerr := chromedp.Cancel(closeCtx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = fmt.Errorf("cdpdriver: close browser: %w", cerr)
		}
		b.cancel()
		b.allocCancel()
		slog.Info("cdpdriver browser closed")
	})
	return err
}

// Page is a chromedp tab.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// opContext derives a context from the tab that is also cancelled when the
// caller's ctx is done.
func (p *Page) opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(p.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := p.opContext(ctx, navigationTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("cdpdriver: navigate %s: %w", url, err)
	}
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	runCtx, cancel := p.opContext(ctx, navigationTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Reload()); err != nil {
		return fmt.Errorf("cdpdriver: reload: %w", err)
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	runCtx, cancel := p.opContext(ctx, 5*time.Second)
	defer cancel()
	var u string
	if err := chromedp.Run(runCtx, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("cdpdriver: location: %w", err)
	}
	return u, nil
}

func (p *Page) WaitVisible(ctx context.Context, sel driver.Selector, timeout time.Duration) (driver.Element, error) {
	runCtx, cancel := p.opContext(ctx, timeout)
	defer cancel()

	query, by := queryFor(sel)
	var nodes []*cdp.Node
	if err := chromedp.Run(runCtx, chromedp.Nodes(query, &nodes, by, chromedp.NodeVisible)); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || runCtx.Err() != nil {
			return nil, driver.ErrNotVisible
		}
		return nil, fmt.Errorf("cdpdriver: query %s: %w", sel, err)
	}
	if len(nodes) == 0 {
		return nil, driver.ErrNotVisible
	}
	return &Element{page: p, node: nodes[0]}, nil
}

func queryFor(sel driver.Selector) (string, chromedp.QueryOption) {
	if sel.Kind == driver.KindCSS {
		return sel.Value, chromedp.ByQuery
	}
	return sel.XPathExpr(), chromedp.BySearch
}

func (p *Page) SetCookies(ctx context.Context, cookies []session.Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			param.Expires = &exp
		}
		switch c.SameSite {
		case "Strict":
			param.SameSite = network.CookieSameSiteStrict
		case "Lax":
			param.SameSite = network.CookieSameSiteLax
		case "None":
			param.SameSite = network.CookieSameSiteNone
		}
		params = append(params, param)
	}

	runCtx, cancel := p.opContext(ctx, 10*time.Second)
	defer cancel()
	if err := chromedp.Run(runCtx, network.SetCookies(params)); err != nil {
		return fmt.Errorf("cdpdriver: set cookies: %w", err)
	}
	return nil
}

func (p *Page) Cookies(ctx context.Context) ([]session.Cookie, error) {
	runCtx, cancel := p.opContext(ctx, 10*time.Second)
	defer cancel()

	var raw []*network.Cookie
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("cdpdriver: get cookies: %w", err)
	}

	out := make([]session.Cookie, 0, len(raw))
	for _, c := range raw {
		expires := c.Expires
		if c.Session {
			expires = -1
		}
		out = append(out, session.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}
	return out, nil
}

// Element is a node resolved by a query.
type Element struct {
	page *Page
	node *cdp.Node
}

const elementTimeout = 10 * time.Second

func (e *Element) Click(ctx context.Context) error {
	runCtx, cancel := e.page.opContext(ctx, elementTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.MouseClickNode(e.node)); err != nil {
		return fmt.Errorf("cdpdriver: click: %w", err)
	}
	return nil
}

func (e *Element) Fill(ctx context.Context, value string) error {
	runCtx, cancel := e.page.opContext(ctx, elementTimeout)
	defer cancel()
	ids := []cdp.NodeID{e.node.NodeID}
	err := chromedp.Run(runCtx,
		chromedp.Focus(ids, chromedp.ByNodeID),
		chromedp.SetValue(ids, "", chromedp.ByNodeID),
		chromedp.SendKeys(ids, value, chromedp.ByNodeID),
	)
	if err != nil {
		return fmt.Errorf("cdpdriver: fill: %w", err)
	}
	return nil
}

func (e *Element) Press(ctx context.Context, key string) error {
	runCtx, cancel := e.page.opContext(ctx, elementTimeout)
	defer cancel()

	var action chromedp.Action
	switch key {
	case driver.KeyEnter:
		action = chromedp.KeyEventNode(e.node, kb.Enter)
	case driver.KeyCtrlEnter:
		action = chromedp.KeyEventNode(e.node, kb.Enter, chromedp.KeyModifiers(input.ModifierCtrl))
	default:
		return fmt.Errorf("cdpdriver: unsupported key %q", key)
	}
	if err := chromedp.Run(runCtx, action); err != nil {
		return fmt.Errorf("cdpdriver: press %s: %w", key, err)
	}
	return nil
}

const jsInsertText = `function(text) {
	this.focus();
	return document.execCommand('insertText', false, text) === true;
}`

const jsReplaceText = `function(text) {
	this.focus();
	this.innerText = text;
	this.dispatchEvent(new Event('input', { bubbles: true }));
	return true;
}`

func (e *Element) InsertText(ctx context.Context, text string) (bool, error) {
	var ok bool
	if err := e.callOn(ctx, jsInsertText, &ok, text); err != nil {
		return false, fmt.Errorf("cdpdriver: insert text: %w", err)
	}
	return ok, nil
}

func (e *Element) ReplaceText(ctx context.Context, text string) error {
	var ok bool
	if err := e.callOn(ctx, jsReplaceText, &ok, text); err != nil {
		return fmt.Errorf("cdpdriver: replace text: %w", err)
	}
	return nil
}

// callOn runs fn with the element bound to this.
func (e *Element) callOn(ctx context.Context, fn string, res any, args ...any) error {
	runCtx, cancel := e.page.opContext(ctx, elementTimeout)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(e.node.BackendNodeID).Do(ctx)
		if err != nil {
			return err
		}
		return chromedp.CallFunctionOn(fn, res, func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
			return p.WithObjectID(obj.ObjectID)
		}, args...).Do(ctx)
	}))
}
