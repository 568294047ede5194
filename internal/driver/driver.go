// Package driver abstracts the headless browser used by the automation
// sequencers so they can run against chromedp, playwright, or a fake.
package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/threads_agent/internal/session"
)

// ErrNotVisible is returned by Page.WaitVisible when no visible node matched
// before the probe timeout.
var ErrNotVisible = errors.New("element not visible")

// Kind is the match rule of a Selector.
type Kind string

const (
	KindCSS   Kind = "css"
	KindXPath Kind = "xpath"
	// KindText matches any element whose own text contains Value.
	KindText Kind = "text"
)

// Selector is one candidate match rule.
type Selector struct {
	Kind  Kind
	Value string
	// Tag restricts KindText matches to an element name ("button", "div").
	Tag string
}

func CSS(v string) Selector   { return Selector{Kind: KindCSS, Value: v} }
func XPath(v string) Selector { return Selector{Kind: KindXPath, Value: v} }

// Text matches elements of tag (any element when empty) containing v.
func Text(tag, v string) Selector { return Selector{Kind: KindText, Value: v, Tag: tag} }

func (s Selector) String() string {
	if s.Kind == KindText && s.Tag != "" {
		return fmt.Sprintf("%s:%s:%s", s.Kind, s.Tag, s.Value)
	}
	return string(s.Kind) + ":" + s.Value
}

// XPathExpr renders a KindText or KindXPath selector as an XPath expression.
func (s Selector) XPathExpr() string {
	switch s.Kind {
	case KindXPath:
		return s.Value
	case KindText:
		tag := s.Tag
		if tag == "" {
			tag = "*"
		}
		return fmt.Sprintf("//%s[contains(text(), %s)]", tag, XPathLiteral(s.Value))
	default:
		return ""
	}
}

// XPathLiteral quotes v for use inside an XPath expression.
func XPathLiteral(v string) string {
	if !strings.Contains(v, `"`) {
		return `"` + v + `"`
	}
	if !strings.Contains(v, `'`) {
		return `'` + v + `'`
	}
	parts := strings.Split(v, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// Key names accepted by Element.Press.
const (
	KeyEnter     = "Enter"
	KeyCtrlEnter = "Control+Enter"
)

// Element is a resolved node on a Page.
type Element interface {
	Click(ctx context.Context) error
	Fill(ctx context.Context, value string) error
	Press(ctx context.Context, key string) error
	// InsertText inserts at the caret through the editing command path and
	// reports whether the page accepted it.
	InsertText(ctx context.Context, text string) (bool, error)
	// ReplaceText assigns the node's text content and fires a bubbling input event.
	ReplaceText(ctx context.Context, text string) error
}

// Page is one browser tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	URL(ctx context.Context) (string, error)
	// WaitVisible waits up to timeout for sel to match a visible node.
	WaitVisible(ctx context.Context, sel Selector, timeout time.Duration) (Element, error)
	SetCookies(ctx context.Context, cookies []session.Cookie) error
	Cookies(ctx context.Context) ([]session.Cookie, error)
}

// Browser is a launched browser process. Close must be safe to call on every
// exit path.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Options configures a browser launch.
type Options struct {
	Headless    bool
	Locale      string
	UserAgent   string
	Width       int
	Height      int
	BrowserPath string
}

// LaunchFunc starts a browser.
type LaunchFunc func(ctx context.Context, opts Options) (Browser, error)
