package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dgnsrekt/threads_agent/internal/apperr"
	"github.com/dgnsrekt/threads_agent/internal/automation"
	"github.com/dgnsrekt/threads_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/threads_agent/internal/controller"
	"github.com/dgnsrekt/threads_agent/internal/drafts"
	"github.com/dgnsrekt/threads_agent/internal/relay"
	"github.com/dgnsrekt/threads_agent/internal/session"
)

type Service interface {
	Post(ctx context.Context, text string) (automation.Outcome, error)
	SaveSessionState(ctx context.Context, cookies, pageCookies []session.CapturedCookie) (int, error)
	Generate(ctx context.Context, prompt string) (string, error)
	Relay(ctx context.Context, req controller.RelayRequest) (relay.Result, error)
	ListTargets(ctx context.Context) ([]cdpcontrol.TabInfo, error)
	ImportDrafts(ctx context.Context, raw string) ([]drafts.Draft, error)
	ListDrafts(ctx context.Context) ([]drafts.Draft, error)
	DeleteDraft(ctx context.Context, id string) error
	ClearDrafts(ctx context.Context) (int64, error)
	SendDraft(ctx context.Context, id, targetTabID string) (relay.Result, error)
}

// RequestObserver records served requests.
type RequestObserver interface {
	ObserveHTTP(method, route string, status int, d time.Duration)
}

// Options carries the optional collaborators of the HTTP surface.
type Options struct {
	Broker         *relay.Broker
	Metrics        http.Handler
	Observer       RequestObserver
	AllowedOrigins []string
}

func NewServer(svc Service, opts Options) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	if opts.Observer != nil {
		router.Use(observeRequests(opts.Observer))
	}
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(opts.AllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	cfg := huma.DefaultConfig("Threads Agent Controller API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	docsPage := renderDocs(cfg.Info.Title, docsLinks(opts))
	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write(docsPage); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics)
	}
	if opts.Broker != nil {
		router.Get("/api/v1/relay/events", relay.SSEHandler(opts.Broker))
	}

	registerHealthHandlers(api)
	registerAutomationHandlers(api, svc)
	registerRelayHandlers(api, svc)
	registerDraftHandlers(api, svc)

	return router
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// errorModel is the body of every error response.
type errorModel struct {
	status  int
	Message string `json:"error"`
}

func (e *errorModel) Error() string  { return e.Message }
func (e *errorModel) GetStatus() int { return e.status }

func init() {
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		details := make([]string, 0, len(errs))
		for _, err := range errs {
			if err != nil {
				details = append(details, err.Error())
			}
		}
		if len(details) > 0 {
			msg = msg + ": " + strings.Join(details, "; ")
		}
		return &errorModel{status: status, Message: msg}
	}
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	msg := apperr.Message(err)
	switch apperr.CodeOf(err) {
	case apperr.CodeValidation:
		return huma.Error400BadRequest(msg)
	case apperr.CodeNotFound:
		return huma.Error404NotFound(msg)
	case apperr.CodeAuth:
		return huma.Error401Unauthorized(msg)
	case apperr.CodeBusy:
		return huma.Error409Conflict(msg)
	case apperr.CodeRateLimited:
		return huma.Error429TooManyRequests(msg)
	case apperr.CodeUpstream, apperr.CodeCDPUnavailable:
		return huma.Error502BadGateway(msg)
	case apperr.CodeEvalTimeout:
		return huma.Error504GatewayTimeout(msg)
	case "":
		return huma.Error500InternalServerError(err.Error())
	default:
		return huma.Error500InternalServerError(msg)
	}
}

func registerHealthHandlers(api huma.API) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})
}

func registerAutomationHandlers(api huma.API, svc Service) {
	type postInput struct {
		Body struct {
			_    struct{} `additionalProperties:"true"`
			Text string   `json:"text,omitempty" doc:"Post body"`
		}
	}
	type postOutput struct {
		Body automation.Outcome
	}
	huma.Register(api, huma.Operation{OperationID: "post", Method: http.MethodPost, Path: "/api/post", Summary: "Sign in if needed and publish a post", Tags: []string{"Automation"}},
		func(ctx context.Context, input *postInput) (*postOutput, error) {
			outcome, err := svc.Post(ctx, input.Body.Text)
			if err != nil {
				return nil, mapErr(err)
			}
			return &postOutput{Body: outcome}, nil
		})

	// Extension exports carry fields beyond the ones kept, so the body is
	// decoded by hand.
	type saveStateInput struct {
		RawBody []byte `contentType:"application/json"`
	}
	type saveStateOutput struct {
		Body struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
			Cookies int    `json:"cookies"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "save-session-state", Method: http.MethodPost, Path: "/api/auth/save-state", Summary: "Replace the stored session with captured cookies", Tags: []string{"Automation"}},
		func(ctx context.Context, input *saveStateInput) (*saveStateOutput, error) {
			var body struct {
				Cookies     []session.CapturedCookie `json:"cookies"`
				PageCookies []session.CapturedCookie `json:"pageCookies"`
			}
			if err := json.Unmarshal(input.RawBody, &body); err != nil {
				return nil, huma.Error400BadRequest("Invalid data: cookies array required")
			}
			n, err := svc.SaveSessionState(ctx, body.Cookies, body.PageCookies)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &saveStateOutput{}
			out.Body.Success = true
			out.Body.Message = "Session saved"
			out.Body.Cookies = n
			return out, nil
		})

	type generateInput struct {
		Body struct {
			Prompt string `json:"prompt,omitempty"`
		}
	}
	type generateOutput struct {
		Body struct {
			Output string `json:"output"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "generate", Method: http.MethodPost, Path: "/api/generate", Summary: "Generate post text from a prompt", Tags: []string{"Automation"}},
		func(ctx context.Context, input *generateInput) (*generateOutput, error) {
			text, err := svc.Generate(ctx, input.Body.Prompt)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &generateOutput{}
			out.Body.Output = text
			return out, nil
		})
}

func registerRelayHandlers(api huma.API, svc Service) {
	type relayInput struct {
		Body struct {
			_             struct{} `additionalProperties:"true"`
			Action        string   `json:"action,omitempty" doc:"Must be relayInsertText"`
			Text          string   `json:"text,omitempty"`
			ScheduledTime string   `json:"scheduledTime,omitempty"`
			TargetTabID   string   `json:"targetTabId,omitempty"`
		}
	}
	type relayOutput struct {
		Body relay.Result
	}
	huma.Register(api, huma.Operation{OperationID: "relay", Method: http.MethodPost, Path: "/api/v1/relay", Summary: "Insert text into the composer of an open tab", Tags: []string{"Relay"}},
		func(ctx context.Context, input *relayInput) (*relayOutput, error) {
			res, err := svc.Relay(ctx, controller.RelayRequest{
				Action:        input.Body.Action,
				Text:          input.Body.Text,
				ScheduledTime: input.Body.ScheduledTime,
				TargetTabID:   input.Body.TargetTabID,
			})
			if err != nil {
				return nil, mapErr(err)
			}
			return &relayOutput{Body: res}, nil
		})

	type targetsOutput struct {
		Body struct {
			Targets []cdpcontrol.TabInfo `json:"targets"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-relay-targets", Method: http.MethodGet, Path: "/api/v1/relay/targets", Summary: "List tabs a relay can target", Tags: []string{"Relay"}},
		func(ctx context.Context, input *struct{}) (*targetsOutput, error) {
			tabs, err := svc.ListTargets(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &targetsOutput{}
			out.Body.Targets = tabs
			if out.Body.Targets == nil {
				out.Body.Targets = []cdpcontrol.TabInfo{}
			}
			return out, nil
		})
}

type draftsOutput struct {
	Body struct {
		Drafts []drafts.Draft `json:"drafts"`
	}
}

func newDraftsOutput(items []drafts.Draft) *draftsOutput {
	out := &draftsOutput{}
	out.Body.Drafts = items
	if out.Body.Drafts == nil {
		out.Body.Drafts = []drafts.Draft{}
	}
	return out
}

type draftIDInput struct {
	ID string `path:"id"`
}

func registerDraftHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "list-drafts", Method: http.MethodGet, Path: "/api/v1/drafts", Summary: "List queued drafts, newest first", Tags: []string{"Drafts"}},
		func(ctx context.Context, input *struct{}) (*draftsOutput, error) {
			items, err := svc.ListDrafts(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return newDraftsOutput(items), nil
		})

	type importInput struct {
		Body struct {
			Input string `json:"input,omitempty" doc:"JSON object, JSON array or plain text"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "import-drafts", Method: http.MethodPost, Path: "/api/v1/drafts/import", Summary: "Queue drafts from pasted input", Tags: []string{"Drafts"}},
		func(ctx context.Context, input *importInput) (*draftsOutput, error) {
			items, err := svc.ImportDrafts(ctx, input.Body.Input)
			if err != nil {
				return nil, mapErr(err)
			}
			return newDraftsOutput(items), nil
		})

	huma.Register(api, huma.Operation{OperationID: "delete-draft", Method: http.MethodDelete, Path: "/api/v1/drafts/{id}", Summary: "Delete a draft", Tags: []string{"Drafts"}, DefaultStatus: http.StatusNoContent},
		func(ctx context.Context, input *draftIDInput) (*struct{}, error) {
			if err := svc.DeleteDraft(ctx, input.ID); err != nil {
				return nil, mapErr(err)
			}
			return nil, nil
		})

	type clearOutput struct {
		Body struct {
			Removed int64 `json:"removed"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "clear-drafts", Method: http.MethodDelete, Path: "/api/v1/drafts", Summary: "Delete every draft", Tags: []string{"Drafts"}},
		func(ctx context.Context, input *struct{}) (*clearOutput, error) {
			n, err := svc.ClearDrafts(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &clearOutput{}
			out.Body.Removed = n
			return out, nil
		})

	type sendInput struct {
		ID   string `path:"id"`
		Body struct {
			TargetTabID string `json:"targetTabId,omitempty"`
		} `required:"false"`
	}
	type sendOutput struct {
		Body relay.Result
	}
	huma.Register(api, huma.Operation{OperationID: "send-draft", Method: http.MethodPost, Path: "/api/v1/drafts/{id}/send", Summary: "Relay a draft into an open tab", Tags: []string{"Drafts"}},
		func(ctx context.Context, input *sendInput) (*sendOutput, error) {
			res, err := svc.SendDraft(ctx, input.ID, input.Body.TargetTabID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &sendOutput{Body: res}, nil
		})
}
