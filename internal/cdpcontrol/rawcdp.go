package cdpcontrol

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

const eventDetachedFromTarget = "Target.detachedFromTarget"

// rawCDP speaks CDP over the browser-level WebSocket of a browser the
// operator is using. It never enables auto-attach or target discovery so
// the operator's tabs are left alone between relay calls.
type rawCDP struct {
	httpBase string // e.g. "http://127.0.0.1:9220"

	// onDetached runs on its own goroutine when the browser drops one of our
	// sessions, typically because the operator closed the tab.
	onDetached func(sessionID string)

	mu   sync.Mutex
	conn net.Conn
	seq  atomic.Int64

	pending   map[int64]chan json.RawMessage
	pendingMu sync.Mutex
}

// cdpMessage is the envelope for command replies and events.
type cdpMessage struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newRawCDP(httpBase string, onDetached func(sessionID string)) *rawCDP {
	return &rawCDP{
		httpBase:   strings.TrimRight(httpBase, "/"),
		onDetached: onDetached,
		pending:    make(map[int64]chan json.RawMessage),
	}
}

// connect dials the browser-level WebSocket endpoint.
func (r *rawCDP) connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return nil
	}

	wsURL, err := r.browserWSURL(ctx)
	if err != nil {
		return fmt.Errorf("rawcdp: browser ws url: %w", err)
	}

	slog.Debug("rawcdp connecting", "ws_url", wsURL)
	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return fmt.Errorf("rawcdp: dial: %w", err)
	}

	r.conn = conn
	r.pending = make(map[int64]chan json.RawMessage)
	go r.readLoop(conn)
	return nil
}

func (r *rawCDP) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
}

// readLoop routes command replies to their waiters until conn fails. The
// only event acted on is a session detach; Chrome sends it for flat sessions
// without any domain being enabled.
func (r *rawCDP) readLoop(conn net.Conn) {
	defer r.closeAllPending()
	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			slog.Debug("rawcdp read loop exit", "error", err)
			return
		}

		var msg cdpMessage
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		if msg.ID == 0 {
			r.handleEvent(msg)
			continue
		}
		r.pendingMu.Lock()
		ch, ok := r.pending[msg.ID]
		if ok {
			delete(r.pending, msg.ID)
		}
		r.pendingMu.Unlock()
		if ok {
			ch <- json.RawMessage(data)
		}
	}
}

func (r *rawCDP) handleEvent(msg cdpMessage) {
	if msg.Method != eventDetachedFromTarget || r.onDetached == nil {
		return
	}
	var ev target.EventDetachedFromTarget
	if err := json.Unmarshal(msg.Params, &ev); err != nil || ev.SessionID == "" {
		return
	}
	slog.Debug("rawcdp session detached", "session_id", string(ev.SessionID))
	go r.onDetached(string(ev.SessionID))
}

func (r *rawCDP) closeAllPending() {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	for id, ch := range r.pending {
		close(ch)
		delete(r.pending, id)
	}
}

func (r *rawCDP) deletePending(id int64) {
	r.pendingMu.Lock()
	delete(r.pending, id)
	r.pendingMu.Unlock()
}

// roundTrip writes one command and waits for its reply. sessionID is empty
// for browser-level commands.
func (r *rawCDP) roundTrip(ctx context.Context, sessionID, method string, params any) (json.RawMessage, error) {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("rawcdp: not connected")
	}

	id := r.seq.Add(1)
	data, err := json.Marshal(struct {
		ID        int64  `json:"id"`
		Method    string `json:"method"`
		SessionID string `json:"sessionId,omitempty"`
		Params    any    `json:"params,omitempty"`
	}{ID: id, Method: method, SessionID: sessionID, Params: params})
	if err != nil {
		return nil, fmt.Errorf("rawcdp: marshal %s: %w", method, err)
	}

	ch := make(chan json.RawMessage, 1)
	r.pendingMu.Lock()
	r.pending[id] = ch
	r.pendingMu.Unlock()

	r.mu.Lock()
	err = wsutil.WriteClientText(conn, data)
	r.mu.Unlock()
	if err != nil {
		r.deletePending(id)
		return nil, fmt.Errorf("rawcdp: send %s: %w", method, err)
	}

	var raw json.RawMessage
	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("rawcdp: connection closed")
		}
		raw = resp
	case <-ctx.Done():
		r.deletePending(id)
		return nil, ctx.Err()
	}

	var resp cdpMessage
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("rawcdp: unmarshal %s: %w", method, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("rawcdp: %s: %s", method, resp.Error.Message)
	}
	return resp.Result, nil
}

// attachToTarget attaches a flat session to the given target.
func (r *rawCDP) attachToTarget(ctx context.Context, targetID string) (string, error) {
	raw, err := r.roundTrip(ctx, "", target.CommandAttachToTarget, target.AttachToTarget(target.ID(targetID)).WithFlatten(true))
	if err != nil {
		return "", err
	}
	var res target.AttachToTargetReturns
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("rawcdp: unmarshal attach: %w", err)
	}
	if res.SessionID == "" {
		return "", fmt.Errorf("rawcdp: attach to %s returned no session", targetID)
	}
	return string(res.SessionID), nil
}

// detachFromTarget detaches from a session without closing the target.
func (r *rawCDP) detachFromTarget(ctx context.Context, sessionID string) error {
	_, err := r.roundTrip(ctx, "", target.CommandDetachFromTarget, target.DetachFromTarget().WithSessionID(target.SessionID(sessionID)))
	return err
}

// activateTarget brings a tab to the foreground of its window.
func (r *rawCDP) activateTarget(ctx context.Context, targetID string) error {
	_, err := r.roundTrip(ctx, "", target.CommandActivateTarget, target.ActivateTarget(target.ID(targetID)))
	return err
}

// evaluate runs JS on the given session and returns the string result.
// userGesture is set so editing commands behave as if the operator typed.
func (r *rawCDP) evaluate(ctx context.Context, sessionID, js string) (string, error) {
	params := runtime.Evaluate(js).
		WithReturnByValue(true).
		WithAwaitPromise(true).
		WithUserGesture(true)
	raw, err := r.roundTrip(ctx, sessionID, runtime.CommandEvaluate, params)
	if err != nil {
		return "", err
	}

	var resp struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("rawcdp: unmarshal eval: %w", err)
	}
	if resp.ExceptionDetails != nil {
		return "", fmt.Errorf("rawcdp: eval exception: %s", resp.ExceptionDetails.Text)
	}

	// String results come back as JSON-encoded strings.
	var s string
	if err := json.Unmarshal(resp.Result.Value, &s); err != nil {
		return string(resp.Result.Value), nil
	}
	return s, nil
}

// listTargets fetches open targets via the HTTP /json/list endpoint, in the
// order the browser reports them.
func (r *rawCDP) listTargets(ctx context.Context) ([]*target.Info, error) {
	body, err := r.getJSON(ctx, "/json/list", 10*time.Second)
	if err != nil {
		return nil, err
	}

	var entries []struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("rawcdp: /json/list: %w", err)
	}

	out := make([]*target.Info, 0, len(entries))
	for _, e := range entries {
		out = append(out, &target.Info{
			TargetID: target.ID(e.ID),
			Type:     e.Type,
			Title:    e.Title,
			URL:      e.URL,
		})
	}
	return out, nil
}

// browserWSURL fetches the WebSocket debugger URL from /json/version.
func (r *rawCDP) browserWSURL(ctx context.Context) (string, error) {
	body, err := r.getJSON(ctx, "/json/version", 5*time.Second)
	if err != nil {
		return "", err
	}
	var info struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", fmt.Errorf("rawcdp: /json/version: %w", err)
	}
	if info.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("empty webSocketDebuggerUrl")
	}
	return info.WebSocketDebuggerURL, nil
}

func (r *rawCDP) getJSON(ctx context.Context, path string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.httpBase+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rawcdp: %s: HTTP %d", path, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
