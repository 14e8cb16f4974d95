package bridge

import (
	"context"

	"github.com/agentrelay/agentrelay/internal/executor"
)

// Runner abstracts the subprocess executor so tests can substitute a
// fake. *executor.Executor satisfies it.
type Runner interface {
	Run(ctx context.Context, req executor.Request) (*executor.Result, error)
}

// SendOptions adjust a single Send call.
type SendOptions struct {
	// Session targets a named session; empty targets the active one.
	Session string
	// ForceNew clears the session's resume token before invoking, so
	// the agent starts a fresh conversation under the same name.
	ForceNew bool
	// Observer receives the agent's stdout line-by-line when set.
	Observer executor.LineObserver
}

// InvocationResult is the outcome of one invocation attempt. It is
// produced exactly once per attempt and never mutated afterwards.
type InvocationResult struct {
	Success        bool
	Content        string
	Err            error
	AgentSessionID string
	SessionName    string
	TimedOut       bool
}
