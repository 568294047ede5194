package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/threads_agent/internal/apperr"
	"github.com/dgnsrekt/threads_agent/internal/automation"
	"github.com/dgnsrekt/threads_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/threads_agent/internal/controller"
	"github.com/dgnsrekt/threads_agent/internal/drafts"
	"github.com/dgnsrekt/threads_agent/internal/relay"
	"github.com/dgnsrekt/threads_agent/internal/session"
)

type stubService struct {
	postErr     error
	relayReq    controller.RelayRequest
	relayResult relay.Result
	relayErr    error
	saved       []session.CapturedCookie
	deleteErr   error
	generateErr error
	tabs        []cdpcontrol.TabInfo
	tabsErr     error
}

func (s *stubService) Post(ctx context.Context, text string) (automation.Outcome, error) {
	if s.postErr != nil {
		return automation.Outcome{}, s.postErr
	}
	return automation.Outcome{Success: true, Message: "Posted to Threads", Data: automation.OutcomeData{Text: text}}, nil
}

func (s *stubService) SaveSessionState(ctx context.Context, cookies, pageCookies []session.CapturedCookie) (int, error) {
	if len(cookies) == 0 {
		return 0, apperr.New(apperr.CodeValidation, "Invalid data: cookies array required", nil)
	}
	s.saved = cookies
	return len(cookies), nil
}

func (s *stubService) Generate(ctx context.Context, prompt string) (string, error) {
	if s.generateErr != nil {
		return "", s.generateErr
	}
	return "generated: " + prompt, nil
}

func (s *stubService) Relay(ctx context.Context, req controller.RelayRequest) (relay.Result, error) {
	s.relayReq = req
	return s.relayResult, s.relayErr
}

func (s *stubService) ListTargets(ctx context.Context) ([]cdpcontrol.TabInfo, error) {
	return s.tabs, s.tabsErr
}

func (s *stubService) ImportDrafts(ctx context.Context, raw string) ([]drafts.Draft, error) {
	return drafts.ParseImport(raw), nil
}

func (s *stubService) ListDrafts(ctx context.Context) ([]drafts.Draft, error) { return nil, nil }

func (s *stubService) DeleteDraft(ctx context.Context, id string) error { return s.deleteErr }

func (s *stubService) ClearDrafts(ctx context.Context) (int64, error) { return 3, nil }

func (s *stubService) SendDraft(ctx context.Context, id, targetTabID string) (relay.Result, error) {
	return relay.Result{Success: true, TabID: targetTabID}, nil
}

type recordingObserver struct {
	routes []string
}

func (r *recordingObserver) ObserveHTTP(method, route string, status int, d time.Duration) {
	r.routes = append(r.routes, method+" "+route)
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestDocsDarkMode(t *testing.T) {
	h := NewServer(&stubService{}, Options{})
	w := serve(t, h, http.MethodGet, "/docs", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
	if strings.Contains(w.Body.String(), "/metrics") {
		t.Fatalf("docs link metrics that are not mounted")
	}

	h = NewServer(&stubService{}, Options{Metrics: http.NotFoundHandler(), Broker: relay.NewBroker()})
	body := serve(t, h, http.MethodGet, "/docs", "").Body.String()
	for _, want := range []string{`href="/metrics"`, `href="/api/v1/relay/events"`, "<title>Threads Agent Controller API</title>"} {
		if !strings.Contains(body, want) {
			t.Fatalf("docs missing %q", want)
		}
	}
}

func TestHealth(t *testing.T) {
	w := serve(t, NewServer(&stubService{}, Options{}), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := decodeBody(t, w)["status"]; got != "ok" {
		t.Fatalf("status field = %v; want ok", got)
	}
}

func TestPostSuccess(t *testing.T) {
	w := serve(t, NewServer(&stubService{}, Options{}), http.MethodPost, "/api/post", `{"text":"hello"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != true || body["message"] != "Posted to Threads" {
		t.Fatalf("body = %v", body)
	}
	data, _ := body["data"].(map[string]any)
	if data["text"] != "hello" {
		t.Fatalf("data = %v; want text hello", data)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{name: "validation", err: apperr.New(apperr.CodeValidation, "Text is required", nil), status: 400, msg: "Text is required"},
		{name: "auth", err: apperr.New(apperr.CodeAuth, "login failed: login not verified", nil), status: 401, msg: "login failed: login not verified"},
		{name: "not found", err: apperr.New(apperr.CodeNotFound, "composer not found", nil), status: 404, msg: "composer not found"},
		{name: "busy", err: apperr.New(apperr.CodeBusy, "an automation run is already in progress", nil), status: 409, msg: "an automation run is already in progress"},
		{name: "rate limited", err: apperr.New(apperr.CodeRateLimited, "post rate limit exceeded", nil), status: 429, msg: "post rate limit exceeded"},
		{name: "upstream", err: apperr.New(apperr.CodeUpstream, "browser launch failed", nil), status: 502, msg: "browser launch failed"},
		{name: "eval timeout", err: apperr.New(apperr.CodeEvalTimeout, "evaluation timed out", nil), status: 504, msg: "evaluation timed out"},
		{name: "config", err: apperr.New(apperr.CodeConfig, "Server Configuration Error: GEMINI_API_KEY is missing.", nil), status: 500, msg: "Server Configuration Error: GEMINI_API_KEY is missing."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewServer(&stubService{postErr: tt.err}, Options{})
			w := serve(t, h, http.MethodPost, "/api/post", `{"text":"x"}`)
			if w.Code != tt.status {
				t.Fatalf("status = %d; want %d", w.Code, tt.status)
			}
			if got := decodeBody(t, w)["error"]; got != tt.msg {
				t.Fatalf("error = %v; want %q", got, tt.msg)
			}
		})
	}
}

func TestSaveState(t *testing.T) {
	svc := &stubService{}
	h := NewServer(svc, Options{})

	w := serve(t, h, http.MethodPost, "/api/auth/save-state", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad json status = %d; want 400", w.Code)
	}
	if got := decodeBody(t, w)["error"]; got != "Invalid data: cookies array required" {
		t.Fatalf("error = %v", got)
	}

	w = serve(t, h, http.MethodPost, "/api/auth/save-state", `{"cookies":[{"name":"sessionid","value":"v","hostOnly":false,"storeId":"0"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["success"] != true || body["message"] != "Session saved" {
		t.Fatalf("body = %v", body)
	}
	if len(svc.saved) != 1 || svc.saved[0].Name != "sessionid" {
		t.Fatalf("saved = %+v", svc.saved)
	}
}

func TestRelayFailureIsReportedInBody(t *testing.T) {
	svc := &stubService{relayResult: relay.Result{Success: false, Error: "no eligible target"}}
	h := NewServer(svc, Options{})

	w := serve(t, h, http.MethodPost, "/api/v1/relay", `{"action":"relayInsertText","text":"hi","targetTabId":"t1","extra":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["success"] != false || body["error"] != "no eligible target" {
		t.Fatalf("body = %v", body)
	}
	if svc.relayReq.TargetTabID != "t1" || svc.relayReq.Action != controller.RelayAction {
		t.Fatalf("relay request = %+v", svc.relayReq)
	}
}

func TestRelayTargets(t *testing.T) {
	w := serve(t, NewServer(&stubService{}, Options{}), http.MethodGet, "/api/v1/relay/targets", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := strings.TrimSpace(w.Body.String()); !strings.Contains(got, `"targets":[]`) {
		t.Fatalf("empty targets body = %s", got)
	}

	svc := &stubService{tabs: []cdpcontrol.TabInfo{{ID: "t1", URL: "https://www.threads.net/", Active: true}}}
	w = serve(t, NewServer(svc, Options{}), http.MethodGet, "/api/v1/relay/targets", "")
	targets, ok := decodeBody(t, w)["targets"].([]any)
	if !ok || len(targets) != 1 {
		t.Fatalf("targets = %v", targets)
	}
	if tab := targets[0].(map[string]any); tab["id"] != "t1" || tab["active"] != true {
		t.Fatalf("tab = %v", tab)
	}

	svc = &stubService{tabsErr: apperr.New(apperr.CodeCDPUnavailable, "browser not reachable", nil)}
	w = serve(t, NewServer(svc, Options{}), http.MethodGet, "/api/v1/relay/targets", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d; want %d", w.Code, http.StatusBadGateway)
	}
}

func TestGenerate(t *testing.T) {
	w := serve(t, NewServer(&stubService{}, Options{}), http.MethodPost, "/api/generate", `{"prompt":"coffee"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decodeBody(t, w)["output"]; got != "generated: coffee" {
		t.Fatalf("output = %v", got)
	}
}

func TestDraftRoutes(t *testing.T) {
	obs := &recordingObserver{}
	svc := &stubService{}
	h := NewServer(svc, Options{Observer: obs})

	w := serve(t, h, http.MethodGet, "/api/v1/drafts", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"drafts":[]}` {
		t.Fatalf("list = %d %s", w.Code, w.Body.String())
	}

	w = serve(t, h, http.MethodPost, "/api/v1/drafts/import", `{"input":"plain text draft"}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "plain text draft") {
		t.Fatalf("import = %d %s", w.Code, w.Body.String())
	}

	w = serve(t, h, http.MethodDelete, "/api/v1/drafts/d1", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d; want 204", w.Code)
	}

	svc.deleteErr = apperr.New(apperr.CodeNotFound, "draft not found: d2", nil)
	w = serve(t, h, http.MethodDelete, "/api/v1/drafts/d2", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("delete missing status = %d; want 404", w.Code)
	}

	w = serve(t, h, http.MethodPost, "/api/v1/drafts/d1/send", `{"targetTabId":"t7"}`)
	if w.Code != http.StatusOK || decodeBody(t, w)["tabId"] != "t7" {
		t.Fatalf("send = %d %s", w.Code, w.Body.String())
	}

	found := false
	for _, r := range obs.routes {
		if r == "DELETE /api/v1/drafts/{id}" {
			found = true
		}
	}
	if !found {
		t.Fatalf("observed routes = %v; want DELETE /api/v1/drafts/{id}", obs.routes)
	}
}

func TestMetricsAndEventsMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	h := NewServer(&stubService{}, Options{Metrics: metrics})

	w := serve(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || w.Body.String() != "# metrics" {
		t.Fatalf("metrics = %d %q", w.Code, w.Body.String())
	}

	w = serve(t, h, http.MethodGet, "/api/v1/relay/events", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("events without broker status = %d; want 404", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := NewServer(&stubService{}, Options{})
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/relay", nil)
	req.Header.Set("Origin", "chrome-extension://abc")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q; want *", got)
	}
}
