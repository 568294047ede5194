// Package executor inserts text into the site's compose editor inside a
// tab the operator is already using, and surfaces the outcome as an
// in-page overlay.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgnsrekt/threads_agent/internal/apperr"
	"github.com/dgnsrekt/threads_agent/internal/locale"
	"github.com/dgnsrekt/threads_agent/internal/locator"
)

// ActionInsertText is the only command the executor accepts.
const ActionInsertText = "insertText"

const (
	msgEditorNotFound   = "投稿ボックスが見つかりません。「スレッドを開始」を一度クリックしてください。"
	msgScheduleOpened   = "予約日時 %s を設定してください。"
	msgScheduleNotFound = "予約ボタンが見つかりません。%s を手動で設定してください。"
)

// Variant is the visual style of an overlay.
type Variant string

const (
	VariantInfo  Variant = "info"
	VariantError Variant = "error"
)

// Overlay is a transient in-page notice. A zero TTL keeps it until the
// operator dismisses it.
type Overlay struct {
	Variant Variant       `json:"variant"`
	Message string        `json:"message"`
	TTL     time.Duration `json:"-"`
}

// Surface is the page the executor operates on. Implementations return an
// apperr TRANSPORT error when nothing in the page can receive the call.
type Surface interface {
	FindEditor(ctx context.Context, selectors []string) (bool, error)
	ClickPlaceholder(ctx context.Context, labels []string) (bool, error)
	FocusEditor(ctx context.Context) error
	InsertText(ctx context.Context, text string) (bool, error)
	ReplaceText(ctx context.Context, text string) error
	FindSchedule(ctx context.Context, labels []string) (bool, error)
	ClickSchedule(ctx context.Context) error
	ShowOverlay(ctx context.Context, o Overlay) error
}

// Command is the request dispatched to a tab.
type Command struct {
	Action        string `json:"action"`
	Text          string `json:"text"`
	ScheduledTime string `json:"scheduledTime,omitempty"`
}

// Result is the executor's reply.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// State tracks whether the editor has been found.
type State int

const (
	Absent State = iota
	Woken
	Present
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Woken:
		return "woken"
	case Present:
		return "present"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the polling bounds and selectors.
type Config struct {
	EditorSelectors  []string
	EditorAttempts   int
	EditorInterval   time.Duration
	ScheduleAttempts int
	ScheduleInterval time.Duration
	OverlayTTL       time.Duration
	Locale           *locale.Table
}

// DefaultConfig returns the bounds the site needs for the editor to mount.
func DefaultConfig(table *locale.Table) Config {
	return Config{
		EditorSelectors: []string{
			`div[contenteditable="true"]`,
			`div[role="textbox"][contenteditable="true"]`,
			`div[data-lexical-editor="true"]`,
		},
		EditorAttempts:   20,
		EditorInterval:   250 * time.Millisecond,
		ScheduleAttempts: 10,
		ScheduleInterval: 300 * time.Millisecond,
		OverlayTTL:       15 * time.Second,
		Locale:           table,
	}
}

// Executor runs Commands against a Surface.
type Executor struct {
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config) *Executor {
	if cfg.Locale == nil {
		cfg.Locale = locale.Default()
	}
	return &Executor{cfg: cfg, sleep: locator.Sleep}
}

// Execute runs cmd. Page-level outcomes are reported in the Result; the
// returned error is non-nil only when the surface itself failed, so callers
// can tell "no receiver" apart from "editor not found".
func (e *Executor) Execute(ctx context.Context, s Surface, cmd Command) (Result, error) {
	if cmd.Action != ActionInsertText {
		return Result{Error: fmt.Sprintf("unsupported action %q", cmd.Action)}, nil
	}
	if strings.TrimSpace(cmd.Text) == "" {
		return Result{Error: "text is required"}, nil
	}

	state, err := e.awaitEditor(ctx, s)
	if err != nil {
		return Result{}, err
	}
	if state != Present {
		slog.Warn("executor editor not found", "attempts", e.cfg.EditorAttempts)
		if err := s.ShowOverlay(ctx, Overlay{Variant: VariantError, Message: msgEditorNotFound}); err != nil {
			return Result{}, err
		}
		return Result{Error: "editor not found"}, nil
	}

	if err := s.FocusEditor(ctx); err != nil {
		return Result{}, err
	}
	ok, err := s.InsertText(ctx, cmd.Text)
	if err != nil && isTransport(err) {
		return Result{}, err
	}
	if err != nil || !ok {
		slog.Info("executor insert fallback", "error", err)
		if err := s.ReplaceText(ctx, cmd.Text); err != nil {
			if isTransport(err) {
				return Result{}, err
			}
			return Result{Error: "insert failed: " + apperr.Message(err)}, nil
		}
	}
	slog.Info("executor text inserted", "chars", len([]rune(cmd.Text)))

	if cmd.ScheduledTime != "" {
		if err := e.openSchedule(ctx, s, cmd.ScheduledTime); err != nil {
			return Result{}, err
		}
	}
	return Result{Success: true}, nil
}

// awaitEditor polls for the editor. The first miss clicks the compose
// placeholder; it is never clicked again.
func (e *Executor) awaitEditor(ctx context.Context, s Surface) (State, error) {
	state := Absent
	placeholders := e.cfg.Locale.Variants(locale.StartCompose)
	for attempt := 0; attempt < e.cfg.EditorAttempts; attempt++ {
		found, err := s.FindEditor(ctx, e.cfg.EditorSelectors)
		if err != nil {
			return state, err
		}
		if found {
			return Present, nil
		}
		if state == Absent {
			clicked, err := s.ClickPlaceholder(ctx, placeholders)
			if err != nil {
				return state, err
			}
			slog.Debug("executor wake placeholder", "clicked", clicked)
			state = Woken
		}
		if err := e.sleep(ctx, e.cfg.EditorInterval); err != nil {
			return state, err
		}
	}
	return state, nil
}

func (e *Executor) openSchedule(ctx context.Context, s Surface, raw string) error {
	when := FormatScheduledTime(raw)
	labels := e.cfg.Locale.Variants(locale.Schedule)
	for attempt := 0; attempt < e.cfg.ScheduleAttempts; attempt++ {
		found, err := s.FindSchedule(ctx, labels)
		if err != nil {
			return err
		}
		if found {
			if err := s.ClickSchedule(ctx); err != nil {
				return err
			}
			return s.ShowOverlay(ctx, Overlay{Variant: VariantInfo, Message: fmt.Sprintf(msgScheduleOpened, when), TTL: e.cfg.OverlayTTL})
		}
		if err := e.sleep(ctx, e.cfg.ScheduleInterval); err != nil {
			return err
		}
	}
	slog.Warn("executor schedule affordance not found", "scheduled_time", raw)
	return s.ShowOverlay(ctx, Overlay{Variant: VariantError, Message: fmt.Sprintf(msgScheduleNotFound, when), TTL: e.cfg.OverlayTTL})
}

var scheduleLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04"}

// FormatScheduledTime renders raw as "M/D HH:MM". Unparseable input is
// returned unchanged.
func FormatScheduledTime(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, layout := range scheduleLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("1/2 15:04")
		}
	}
	return raw
}

func isTransport(err error) bool {
	return apperr.Is(err, apperr.CodeTransport) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
