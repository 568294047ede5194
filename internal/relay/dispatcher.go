package relay

import (
	"context"

	"github.com/dgnsrekt/threads_agent/internal/cdpcontrol"
	"github.com/dgnsrekt/threads_agent/internal/executor"
)

type installer interface {
	InstallBridge(ctx context.Context, tabID string) error
}

// ExecutorDispatcher runs the insertion executor against a tab's bridge.
type ExecutorDispatcher struct {
	installer installer
	surface   func(tabID string) executor.Surface
	exec      *executor.Executor
}

func NewExecutorDispatcher(client *cdpcontrol.Client, exec *executor.Executor) *ExecutorDispatcher {
	return &ExecutorDispatcher{
		installer: client,
		surface:   func(tabID string) executor.Surface { return client.Surface(tabID) },
		exec:      exec,
	}
}

func (d *ExecutorDispatcher) Dispatch(ctx context.Context, tabID string, cmd executor.Command) (executor.Result, error) {
	return d.exec.Execute(ctx, d.surface(tabID), cmd)
}

func (d *ExecutorDispatcher) Install(ctx context.Context, tabID string) error {
	return d.installer.InstallBridge(ctx, tabID)
}
