package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/threads_agent/internal/api"
	"github.com/dgnsrekt/threads_agent/internal/app"
	"github.com/dgnsrekt/threads_agent/internal/config"
	"github.com/dgnsrekt/threads_agent/internal/controller"
	"github.com/dgnsrekt/threads_agent/internal/session"
)

// serviceProvider builds the service a command runs against. Tests swap in
// a stub.
type serviceProvider interface {
	Open(ctx context.Context, relay bool) (api.Service, func(), error)
}

type appProvider struct{}

func (appProvider) Open(ctx context.Context, relay bool) (api.Service, func(), error) {
	cfg, err := config.LoadController()
	if err != nil {
		return nil, nil, err
	}
	if err := app.SetupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		return nil, nil, fmt.Errorf("logger setup failed: %w", err)
	}
	a, err := app.New(ctx, cfg, app.Options{ConnectRelay: relay})
	if err != nil {
		return nil, nil, err
	}
	return a.Service, func() { _ = a.Close() }, nil
}

func newRootCmd(provider serviceProvider) *cobra.Command {
	root := &cobra.Command{
		Use:           "threadsctl",
		Short:         "Post to Threads, relay drafts into an open tab and manage the draft queue.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newPostCmd(provider),
		newSessionCmd(provider),
		newRelayCmd(provider),
		newTabsCmd(provider),
		newDraftsCmd(provider),
		newGenerateCmd(provider),
	)
	return root
}

// withService opens the service for the duration of fn.
func withService(cmd *cobra.Command, provider serviceProvider, relay bool, fn func(svc api.Service) (any, error)) error {
	svc, cleanup, err := provider.Open(cmd.Context(), relay)
	if err != nil {
		return err
	}
	defer cleanup()

	out, err := fn(svc)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// readInput returns the named file, stdin for "-", or the joined args.
func readInput(cmd *cobra.Command, file string, args []string) (string, error) {
	switch file {
	case "":
		return strings.Join(args, " "), nil
	case "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	default:
		data, err := os.ReadFile(file)
		return string(data), err
	}
}

func newPostCmd(provider serviceProvider) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "post [text]",
		Short: "Sign in if needed and publish a post with a headless browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, file, args)
			if err != nil {
				return err
			}
			return withService(cmd, provider, false, func(svc api.Service) (any, error) {
				return svc.Post(cmd.Context(), text)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the post from a file (- for stdin)")
	return cmd
}

// parseCapturedCookies accepts a bare cookie array or {"cookies": [...]}.
func parseCapturedCookies(data []byte) ([]session.CapturedCookie, error) {
	trimmed := strings.TrimSpace(string(data))
	var cookies []session.CapturedCookie
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &cookies); err != nil {
			return nil, fmt.Errorf("parse cookies: %w", err)
		}
		return cookies, nil
	}
	var wrapped struct {
		Cookies []session.CapturedCookie `json:"cookies"`
	}
	if err := json.Unmarshal([]byte(trimmed), &wrapped); err != nil {
		return nil, fmt.Errorf("parse cookies: %w", err)
	}
	return wrapped.Cookies, nil
}

func newSessionCmd(provider serviceProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the stored login session",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file|->",
		Short: "Replace the stored session with cookies exported from a browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0], nil)
			if err != nil {
				return err
			}
			cookies, err := parseCapturedCookies([]byte(raw))
			if err != nil {
				return err
			}
			return withService(cmd, provider, false, func(svc api.Service) (any, error) {
				n, err := svc.SaveSessionState(cmd.Context(), cookies, nil)
				if err != nil {
					return nil, err
				}
				return map[string]any{"success": true, "message": "Session saved", "cookies": n}, nil
			})
		},
	})
	return cmd
}

func newRelayCmd(provider serviceProvider) *cobra.Command {
	var at, tab string
	cmd := &cobra.Command{
		Use:   "relay <text>",
		Short: "Insert text into the composer of an open Threads tab",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, provider, true, func(svc api.Service) (any, error) {
				return svc.Relay(cmd.Context(), controller.RelayRequest{
					Action:        controller.RelayAction,
					Text:          strings.Join(args, " "),
					ScheduledTime: at,
					TargetTabID:   tab,
				})
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "scheduled time to prompt for (e.g. 2025-03-02T10:00)")
	cmd.Flags().StringVar(&tab, "tab", "", "target tab id (default: the visible Threads tab)")
	return cmd
}

func newTabsCmd(provider serviceProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "tabs",
		Short: "List Threads tabs a relay can target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, provider, true, func(svc api.Service) (any, error) {
				return svc.ListTargets(cmd.Context())
			})
		},
	}
}

func newDraftsCmd(provider serviceProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "Manage the draft queue",
	}

	importCmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Queue drafts from JSON or plain text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0], nil)
			if err != nil {
				return err
			}
			return withService(cmd, provider, false, func(svc api.Service) (any, error) {
				return svc.ImportDrafts(cmd.Context(), raw)
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List drafts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, provider, false, func(svc api.Service) (any, error) {
				return svc.ListDrafts(cmd.Context())
			})
		},
	}

	var tab string
	sendCmd := &cobra.Command{
		Use:   "send <id>",
		Short: "Relay a draft into an open tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, provider, true, func(svc api.Service) (any, error) {
				return svc.SendDraft(cmd.Context(), args[0], tab)
			})
		},
	}
	sendCmd.Flags().StringVar(&tab, "tab", "", "target tab id (default: the visible Threads tab)")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, provider, false, func(svc api.Service) (any, error) {
				if err := svc.DeleteDraft(cmd.Context(), args[0]); err != nil {
					return nil, err
				}
				return map[string]any{"deleted": args[0]}, nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every draft",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, provider, false, func(svc api.Service) (any, error) {
				n, err := svc.ClearDrafts(cmd.Context())
				if err != nil {
					return nil, err
				}
				return map[string]any{"removed": n}, nil
			})
		},
	}

	cmd.AddCommand(importCmd, listCmd, sendCmd, deleteCmd, clearCmd)
	return cmd
}

func newGenerateCmd(provider serviceProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate post text from a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, provider, false, func(svc api.Service) (any, error) {
				out, err := svc.Generate(cmd.Context(), strings.Join(args, " "))
				if err != nil {
					return nil, err
				}
				return map[string]string{"output": out}, nil
			})
		},
	}
}
