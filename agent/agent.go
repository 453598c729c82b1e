// Package agent drives pipeline stages through an external agent
// process speaking MCP. The agent is the primary execution strategy;
// when it cannot be reached the orchestrator falls back to running
// stages in-process, so every error here is classified against
// ErrUnavailable.
package agent

import (
	"context"
	"errors"
)

// ErrUnavailable means the agent process cannot be reached or refused
// the session. The caller should fall back to manual execution.
var ErrUnavailable = errors.New("agent: unavailable")

// Executor runs one named pipeline stage.
type Executor interface {
	// ExecuteStage runs the stage with the given parameters and blocks
	// until it finishes. A nil error means the stage completed and its
	// effects are visible in the shared store.
	ExecuteStage(ctx context.Context, stage string, params map[string]any) error
	// Close tears down the agent session.
	Close() error
}
