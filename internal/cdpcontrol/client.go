// Package cdpcontrol drives tabs of a browser the operator is already
// using, over the Chrome DevTools Protocol.
package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"

	"github.com/dgnsrekt/threads_agent/internal/apperr"
)

// transientHints are substrings in error causes that indicate a transient
// failure worth retrying (e.g. broken connection, closed session).
var transientHints = []string{
	"context canceled",
	"target closed",
	"session closed",
	"no session with given id",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
	"not connected",
}

type tabSession struct {
	info      TabInfo
	order     int
	mu        sync.Mutex
	sessionID string // CDP session ID from Target.attachToTarget
}

// Client tracks page targets whose URL contains hostFilter and evaluates
// scripts in them.
type Client struct {
	cdpURL      string
	hostFilter  string
	evalTimeout time.Duration

	mu   sync.Mutex
	cdp  *rawCDP
	tabs map[target.ID]*tabSession

	tabLocksMu sync.Mutex
	tabLocks   map[string]*sync.Mutex
}

func NewClient(cdpURL, hostFilter string, evalTimeout time.Duration) *Client {
	return &Client{
		cdpURL:      cdpURL,
		hostFilter:  strings.ToLower(strings.TrimSpace(hostFilter)),
		evalTimeout: evalTimeout,
		tabs:        make(map[target.ID]*tabSession),
		tabLocks:    make(map[string]*sync.Mutex),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(apperr.CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("cdpcontrol connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	c.cdp = newRawCDP(c.cdpURL, c.forgetSession)
	if err := c.cdp.connect(ctx); err != nil {
		c.cdp = nil
		return newError(apperr.CodeCDPUnavailable, "connect to CDP failed", err)
	}

	if err := c.syncTabsLocked(ctx); err != nil {
		slog.Error("cdpcontrol initial tab sync failed", "error", err)
		c.cleanupLocked()
		return err
	}

	slog.Info("cdpcontrol connect ok", "cdp_url", c.cdpURL, "tabs", len(c.tabs))
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	// Detach from any active sessions without closing targets.
	if c.cdp != nil {
		for id, session := range c.tabs {
			if session == nil {
				continue
			}
			session.mu.Lock()
			if session.sessionID != "" {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				if err := c.cdp.detachFromTarget(ctx, session.sessionID); err != nil {
					slog.Debug("cdpcontrol detach cleanup failed", "target_id", string(id), "error", err)
				}
				cancel()
				session.sessionID = ""
			}
			session.mu.Unlock()
		}
		c.cdp.close()
		c.cdp = nil
	}
	c.tabs = make(map[target.ID]*tabSession)
}

// ListTabs returns the matching tabs in browser order. A tab is Active when
// its document is visible, i.e. it is the selected tab of its window.
func (c *Client) ListTabs(ctx context.Context) ([]TabInfo, error) {
	if err := c.refreshTabs(ctx); err != nil {
		slog.Warn("cdpcontrol list tabs failed", "error", err)
		return nil, err
	}

	sessions := c.snapshotSessions()
	out := make([]TabInfo, 0, len(sessions))
	for _, s := range sessions {
		info := s.info
		var vis struct {
			Visible bool `json:"visible"`
		}
		if err := c.evalOnTab(ctx, info.ID, jsVisibility(), &vis); err != nil {
			slog.Debug("cdpcontrol visibility probe failed", "tab_id", info.ID, "error", err)
		}
		info.Active = vis.Visible
		out = append(out, info)
	}
	slog.Debug("cdpcontrol list tabs", "count", len(out))
	return out, nil
}

// LookupTab reports whether tabID is still open and matching.
func (c *Client) LookupTab(ctx context.Context, tabID string) (TabInfo, bool, error) {
	if err := c.refreshTabs(ctx); err != nil {
		return TabInfo{}, false, err
	}
	session, ok := c.lookupSession(tabID)
	if !ok {
		return TabInfo{}, false, nil
	}
	return session.info, true, nil
}

// ActivateTab brings tabID to the foreground.
func (c *Client) ActivateTab(ctx context.Context, tabID string) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(apperr.CodeCDPUnavailable, "CDP client not connected", nil)
	}
	if err := cdp.activateTarget(ctx, tabID); err != nil {
		return newError(apperr.CodeTransport, "activate tab failed", err)
	}
	slog.Debug("cdpcontrol tab activated", "tab_id", tabID)
	return nil
}

// forgetSession clears a session the browser detached so the next eval on
// that tab attaches afresh.
func (c *Client) forgetSession(sessionID string) {
	for _, session := range c.snapshotSessions() {
		session.mu.Lock()
		if session.sessionID == sessionID {
			session.sessionID = ""
			slog.Debug("cdpcontrol session forgotten", "tab_id", session.info.ID, "session_id", sessionID)
		}
		session.mu.Unlock()
	}
}

func (c *Client) snapshotSessions() []*tabSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*tabSession, 0, len(c.tabs))
	for _, s := range c.tabs {
		if s != nil {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].order < out[j].order
	})
	return out
}

// evalOnTab evaluates js in tabID, retrying once after a transient failure.
func (c *Client) evalOnTab(ctx context.Context, tabID, js string, out any) error {
	tabID = strings.TrimSpace(tabID)
	if tabID == "" {
		return newError(apperr.CodeValidation, "tab id is required", nil)
	}

	lock := c.tabLock(tabID)
	lock.Lock()
	defer lock.Unlock()

	session, err := c.resolveSession(ctx, tabID)
	if err == nil {
		err = c.evalOnSession(ctx, session, js, out)
	}
	if err == nil || !c.shouldRetry(err) {
		return err
	}

	slog.Warn("cdpcontrol eval retry after transient failure", "tab_id", tabID, "error", err)
	if apperr.Is(err, apperr.CodeCDPUnavailable) {
		if recErr := c.reconnect(ctx); recErr != nil {
			slog.Error("cdpcontrol reconnect failed during retry", "tab_id", tabID, "error", recErr)
			return recErr
		}
	} else if syncErr := c.refreshTabs(ctx); syncErr != nil {
		slog.Warn("cdpcontrol tab refresh failed during retry", "tab_id", tabID, "error", syncErr)
	}

	session, err = c.resolveSession(ctx, tabID)
	if err != nil {
		return err
	}
	return c.evalOnSession(ctx, session, js, out)
}

func (c *Client) evalOnSession(ctx context.Context, session *tabSession, js string, out any) error {
	c.mu.Lock()
	cdp := c.cdp
	c.mu.Unlock()
	if cdp == nil {
		return newError(apperr.CodeCDPUnavailable, "CDP client not connected", nil)
	}

	sessionID, err := c.ensureSession(ctx, cdp, session)
	if err != nil {
		return err
	}

	evalCtx, evalCancel := context.WithTimeout(ctx, c.evalTimeout)
	defer evalCancel()

	raw, err := cdp.evaluate(evalCtx, sessionID, js)
	if err != nil {
		slog.Warn("cdpcontrol eval failed", "tab_id", session.info.ID, "error", err)
		// Reset session so a fresh attach happens on retry.
		session.mu.Lock()
		session.sessionID = ""
		session.mu.Unlock()

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return newError(apperr.CodeEvalTimeout, "evaluation timed out", err)
		}
		return newError(apperr.CodeEvalFailure, "evaluation failed", err)
	}

	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(apperr.CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = apperr.CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(apperr.CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

// ensureSession returns a CDP session ID for the tab, attaching if needed.
func (c *Client) ensureSession(ctx context.Context, cdp *rawCDP, session *tabSession) (string, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.sessionID != "" {
		return session.sessionID, nil
	}

	sid, err := cdp.attachToTarget(ctx, session.info.ID)
	if err != nil {
		return "", newError(apperr.CodeCDPUnavailable, "attach to target failed", err)
	}
	session.sessionID = sid
	slog.Debug("cdpcontrol session attached", "tab_id", session.info.ID, "session_id", sid)
	return sid, nil
}

func (c *Client) resolveSession(ctx context.Context, tabID string) (*tabSession, error) {
	if session, ok := c.lookupSession(tabID); ok {
		return session, nil
	}
	if err := c.refreshTabs(ctx); err != nil {
		return nil, err
	}
	if session, ok := c.lookupSession(tabID); ok {
		return session, nil
	}
	return nil, newError(apperr.CodeNotFound, "tab not found: "+tabID, nil)
}

func (c *Client) lookupSession(tabID string) (*tabSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session := c.tabs[target.ID(tabID)]
	return session, session != nil
}

func (c *Client) refreshTabs(ctx context.Context) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncTabsLocked(ctx)
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) syncTabsLocked(ctx context.Context) error {
	if c.cdp == nil {
		return newError(apperr.CodeCDPUnavailable, "CDP client not connected", nil)
	}

	targets, err := c.cdp.listTargets(ctx)
	if err != nil {
		return newError(apperr.CodeCDPUnavailable, "failed to list targets", err)
	}

	expected := make(map[target.ID]int)
	infos := make(map[target.ID]TabInfo)
	for i, t := range targets {
		if !c.matches(t) {
			continue
		}
		expected[t.TargetID] = i
		infos[t.TargetID] = TabInfo{ID: string(t.TargetID), URL: t.URL, Title: t.Title}
	}

	for id := range c.tabs {
		if _, ok := expected[id]; !ok {
			delete(c.tabs, id)
		}
	}
	for id, order := range expected {
		if session := c.tabs[id]; session != nil {
			session.info = infos[id]
			session.order = order
			continue
		}
		c.tabs[id] = &tabSession{info: infos[id], order: order}
	}

	c.tabLocksMu.Lock()
	for id := range c.tabLocks {
		if _, ok := c.tabs[target.ID(id)]; !ok {
			delete(c.tabLocks, id)
		}
	}
	c.tabLocksMu.Unlock()

	slog.Debug("cdpcontrol tab sync", "targets", len(targets), "tabs", len(c.tabs))
	return nil
}

func (c *Client) matches(t *target.Info) bool {
	if t.Type != "page" {
		return false
	}
	return c.hostFilter == "" || strings.Contains(strings.ToLower(t.URL), c.hostFilter)
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	connected := c.cdp != nil
	c.mu.Unlock()
	if connected {
		return nil
	}
	return c.reconnect(ctx)
}

func (c *Client) tabLock(tabID string) *sync.Mutex {
	c.tabLocksMu.Lock()
	defer c.tabLocksMu.Unlock()
	m, ok := c.tabLocks[tabID]
	if !ok {
		m = &sync.Mutex{}
		c.tabLocks[tabID] = m
	}
	return m
}

func (c *Client) shouldRetry(err error) bool {
	var coded *apperr.CodedError
	if !errors.As(err, &coded) {
		return false
	}

	switch coded.Code {
	case apperr.CodeCDPUnavailable:
		return true
	case apperr.CodeEvalFailure:
		if coded.Cause == nil {
			return false
		}
		cause := strings.ToLower(coded.Cause.Error())
		for _, hint := range transientHints {
			if strings.Contains(cause, hint) {
				return true
			}
		}
	}
	return false
}

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func jsJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func buildIIFE(async bool, body string) string {
	prefix := "(function(){\n"
	if async {
		prefix = "(async function(){\n"
	}
	return prefix + `try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + apperr.CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

func wrapJSEval(body string) string      { return buildIIFE(false, body) }
func wrapJSEvalAsync(body string) string { return buildIIFE(true, body) }
