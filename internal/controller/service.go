package controller

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/threads_agent/internal/apperr"
	"github.com/dgnsrekt/threads_agent/internal/automation"
	"github.com/dgnsrekt/threads_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/threads_agent/internal/drafts"
	"github.com/dgnsrekt/threads_agent/internal/generate"
	"github.com/dgnsrekt/threads_agent/internal/relay"
	"github.com/dgnsrekt/threads_agent/internal/session"
)

// RelayAction is the only action accepted on the relay endpoint.
const RelayAction = "relayInsertText"

// Poster runs one automation flow.
type Poster interface {
	Run(ctx context.Context, text string) (automation.Outcome, error)
}

// SessionWriter overwrites the stored session.
type SessionWriter interface {
	Save(ctx context.Context, st session.State) error
}

// Relayer forwards text into an operator tab.
type Relayer interface {
	Relay(ctx context.Context, in relay.Intent) relay.Result
	Targets(ctx context.Context) ([]cdpcontrol.TabInfo, error)
}

// DraftStore is the queue of posts waiting to be relayed.
type DraftStore interface {
	Add(ctx context.Context, items []drafts.Draft) ([]drafts.Draft, error)
	List(ctx context.Context) ([]drafts.Draft, error)
	Get(ctx context.Context, id string) (drafts.Draft, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) (int64, error)
}

// Alerter is told when stored credentials stop working.
type Alerter interface {
	AuthFailed(ctx context.Context, cause error)
}

// Deps wires a Service. Nil members disable the operations that need them.
type Deps struct {
	Poster    Poster
	Sessions  SessionWriter
	Relay     Relayer
	Drafts    DraftStore
	Generator generate.Generator
	Alerter   Alerter

	// PostsPerMinute caps automation runs. Zero or less disables the cap.
	PostsPerMinute int
}

// Service is the single entry point shared by the HTTP API and the CLI.
type Service struct {
	deps    Deps
	running *semaphore.Weighted
	limiter *rate.Limiter
}

func NewService(deps Deps) *Service {
	s := &Service{deps: deps, running: semaphore.NewWeighted(1)}
	if deps.PostsPerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(deps.PostsPerMinute)), deps.PostsPerMinute)
	}
	return s
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return apperr.New(apperr.CodeValidation, fieldName+" is required", nil)
	}
	return nil
}

func unavailable(feature string) error {
	return apperr.New(apperr.CodeConfig, feature+" is not configured", nil)
}

// Post runs the automation flow for text. Only one run is admitted at a time.
func (s *Service) Post(ctx context.Context, text string) (automation.Outcome, error) {
	if err := s.requireNonEmpty(text, "Text"); err != nil {
		return automation.Outcome{}, err
	}
	if s.deps.Poster == nil {
		return automation.Outcome{}, unavailable("automation")
	}
	if !s.running.TryAcquire(1) {
		return automation.Outcome{}, apperr.New(apperr.CodeBusy, "an automation run is already in progress", nil)
	}
	defer s.running.Release(1)

	if s.limiter != nil && !s.limiter.Allow() {
		return automation.Outcome{}, apperr.New(apperr.CodeRateLimited, "post rate limit exceeded", nil)
	}

	out, err := s.deps.Poster.Run(ctx, text)
	if apperr.Is(err, apperr.CodeAuth) && s.deps.Alerter != nil {
		s.deps.Alerter.AuthFailed(ctx, err)
	}
	return out, err
}

// SaveSessionState overwrites the session slot with externally captured
// cookies. pageCookies fill in names missing from cookies.
func (s *Service) SaveSessionState(ctx context.Context, cookies, pageCookies []session.CapturedCookie) (int, error) {
	if len(cookies) == 0 {
		return 0, apperr.New(apperr.CodeValidation, "Invalid data: cookies array required", nil)
	}
	if s.deps.Sessions == nil {
		return 0, unavailable("session store")
	}
	st := session.FromCaptured(cookies)
	if len(pageCookies) > 0 {
		st.Cookies = session.MergeCookies(st.Cookies, session.FromCaptured(pageCookies).Cookies)
	}
	if st.Empty() {
		return 0, apperr.New(apperr.CodeValidation, "Invalid data: cookies array required", nil)
	}
	if err := s.deps.Sessions.Save(ctx, st); err != nil {
		return 0, apperr.New(apperr.CodeUpstream, "session save failed", err)
	}
	slog.Info("controller session state saved", "cookies", len(st.Cookies))
	return len(st.Cookies), nil
}

// Generate asks the configured model for post text.
func (s *Service) Generate(ctx context.Context, prompt string) (string, error) {
	if err := s.requireNonEmpty(prompt, "Prompt"); err != nil {
		return "", err
	}
	if s.deps.Generator == nil {
		return "", unavailable("generator")
	}
	return s.deps.Generator.Generate(ctx, prompt)
}

// RelayRequest is the body of a relay trigger.
type RelayRequest struct {
	Action        string `json:"action"`
	Text          string `json:"text"`
	ScheduledTime string `json:"scheduledTime,omitempty"`
	TargetTabID   string `json:"targetTabId,omitempty"`
}

// Relay validates req and forwards it to a tab. Delivery failures are
// reported in the Result, not as an error.
func (s *Service) Relay(ctx context.Context, req RelayRequest) (relay.Result, error) {
	if req.Action != RelayAction {
		return relay.Result{}, apperr.New(apperr.CodeValidation, "unsupported action: "+req.Action, nil)
	}
	if err := s.requireNonEmpty(req.Text, "text"); err != nil {
		return relay.Result{}, err
	}
	if s.deps.Relay == nil {
		return relay.Result{}, unavailable("relay")
	}
	return s.deps.Relay.Relay(ctx, relay.Intent{
		Text:          req.Text,
		ScheduledTime: strings.TrimSpace(req.ScheduledTime),
		TargetTabID:   strings.TrimSpace(req.TargetTabID),
	}), nil
}

// ListTargets returns the tabs a relay could be sent to.
func (s *Service) ListTargets(ctx context.Context) ([]cdpcontrol.TabInfo, error) {
	if s.deps.Relay == nil {
		return nil, unavailable("relay")
	}
	return s.deps.Relay.Targets(ctx)
}

// ImportDrafts parses raw and queues the result ahead of existing drafts.
func (s *Service) ImportDrafts(ctx context.Context, raw string) ([]drafts.Draft, error) {
	if err := s.requireNonEmpty(raw, "input"); err != nil {
		return nil, err
	}
	if s.deps.Drafts == nil {
		return nil, unavailable("draft store")
	}
	items := drafts.ParseImport(raw)
	if len(items) == 0 {
		return nil, apperr.New(apperr.CodeValidation, "no drafts with text found", nil)
	}
	return s.deps.Drafts.Add(ctx, items)
}

func (s *Service) ListDrafts(ctx context.Context) ([]drafts.Draft, error) {
	if s.deps.Drafts == nil {
		return nil, unavailable("draft store")
	}
	return s.deps.Drafts.List(ctx)
}

func (s *Service) DeleteDraft(ctx context.Context, id string) error {
	if err := s.requireNonEmpty(id, "id"); err != nil {
		return err
	}
	if s.deps.Drafts == nil {
		return unavailable("draft store")
	}
	return s.deps.Drafts.Delete(ctx, strings.TrimSpace(id))
}

func (s *Service) ClearDrafts(ctx context.Context) (int64, error) {
	if s.deps.Drafts == nil {
		return 0, unavailable("draft store")
	}
	return s.deps.Drafts.Clear(ctx)
}

// SendDraft relays a queued draft. The draft stays queued either way.
func (s *Service) SendDraft(ctx context.Context, id, targetTabID string) (relay.Result, error) {
	if err := s.requireNonEmpty(id, "id"); err != nil {
		return relay.Result{}, err
	}
	if s.deps.Drafts == nil {
		return relay.Result{}, unavailable("draft store")
	}
	d, err := s.deps.Drafts.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return relay.Result{}, err
	}
	return s.Relay(ctx, RelayRequest{
		Action:        RelayAction,
		Text:          d.Text,
		ScheduledTime: d.ScheduledTime,
		TargetTabID:   targetTabID,
	})
}
