package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/threads_agent/internal/driver"
	"github.com/dgnsrekt/threads_agent/internal/locale"
	"github.com/dgnsrekt/threads_agent/internal/locator"
	"github.com/dgnsrekt/threads_agent/internal/session"
)

type fakeClock struct {
	t     time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1700000000, 0)} }

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.t = c.t.Add(d)
	c.slept = append(c.slept, d)
	return ctx.Err()
}

type fakeElement struct {
	page      *fakePage
	name      string
	insertOK  bool
	insertErr error
	onClick   func()
}

func (e *fakeElement) Click(ctx context.Context) error {
	e.page.record("click " + e.name)
	if e.onClick != nil {
		e.onClick()
	}
	return nil
}

func (e *fakeElement) Fill(ctx context.Context, value string) error {
	e.page.record(fmt.Sprintf("fill %s=%s", e.name, value))
	return nil
}

func (e *fakeElement) Press(ctx context.Context, key string) error {
	e.page.record(fmt.Sprintf("press %s %s", e.name, key))
	if e.page.onPress != nil {
		e.page.onPress(key)
	}
	return nil
}

func (e *fakeElement) InsertText(ctx context.Context, text string) (bool, error) {
	e.page.record("insert " + text)
	return e.insertOK, e.insertErr
}

func (e *fakeElement) ReplaceText(ctx context.Context, text string) error {
	e.page.record("replace " + text)
	return nil
}

type fakePage struct {
	clock      *fakeClock
	url        string
	visible    map[string]*fakeElement
	cookies    []session.Cookie
	cookieErr  error
	applied    [][]session.Cookie
	reloads    int
	navigated  []string
	actions    []string
	onPress    func(key string)
	onNavigate func(url string)
}

func newFakePage(clock *fakeClock, url string) *fakePage {
	return &fakePage{
		clock:   clock,
		url:     url,
		visible: map[string]*fakeElement{},
		cookies: []session.Cookie{{Name: "sessionid", Value: "fresh", Domain: ".threads.net", Path: "/", Expires: -1, Secure: true, SameSite: "None"}},
	}
}

func (p *fakePage) record(a string) { p.actions = append(p.actions, a) }

// show makes sel visible and returns its element.
func (p *fakePage) show(sel driver.Selector) *fakeElement {
	el := &fakeElement{page: p, name: sel.String(), insertOK: true}
	p.visible[sel.String()] = el
	return el
}

func (p *fakePage) hide(sel driver.Selector) { delete(p.visible, sel.String()) }

func (p *fakePage) did(action string) bool {
	for _, a := range p.actions {
		if a == action {
			return true
		}
	}
	return false
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.navigated = append(p.navigated, url)
	p.url = url
	if p.onNavigate != nil {
		p.onNavigate(url)
	}
	return nil
}

func (p *fakePage) Reload(ctx context.Context) error {
	p.reloads++
	return nil
}

func (p *fakePage) URL(ctx context.Context) (string, error) { return p.url, nil }

func (p *fakePage) WaitVisible(ctx context.Context, sel driver.Selector, timeout time.Duration) (driver.Element, error) {
	if el, ok := p.visible[sel.String()]; ok {
		return el, nil
	}
	p.clock.t = p.clock.t.Add(timeout)
	return nil, driver.ErrNotVisible
}

func (p *fakePage) SetCookies(ctx context.Context, cookies []session.Cookie) error {
	p.applied = append(p.applied, cookies)
	return nil
}

func (p *fakePage) Cookies(ctx context.Context) ([]session.Cookie, error) {
	return p.cookies, p.cookieErr
}

type fakeBrowser struct {
	page   *fakePage
	closes int
}

func (b *fakeBrowser) NewPage(ctx context.Context) (driver.Page, error) { return b.page, nil }

func (b *fakeBrowser) Close() error {
	b.closes++
	return nil
}

type fakeStore struct {
	state   session.State
	has     bool
	saves   []session.State
	saveErr error
}

func (s *fakeStore) Load(ctx context.Context) (session.State, bool) { return s.state, s.has }

func (s *fakeStore) Save(ctx context.Context, st session.State) error {
	s.saves = append(s.saves, st)
	return s.saveErr
}

func testSelectors() Selectors { return DefaultSelectors(locale.Default()) }

func testLocator(clock *fakeClock) *locator.Locator {
	return locator.New(locator.WithClock(clock.Now, clock.Sleep))
}

var errLaunch = errors.New("chrome not found")

const siteURL = "https://www.threads.net/"

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
