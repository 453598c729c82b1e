package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var clientImpl = &mcp.Implementation{Name: "mentionwatch", Version: "1.0.0"}

// MCPConfig configures the MCP executor.
type MCPConfig struct {
	// Command launches the agent process, argv style. Required unless
	// a Transport is injected.
	Command []string `yaml:"command"`
	// ToolName is the MCP tool that runs a stage. Default: "run_stage".
	ToolName string `yaml:"tool_name"`
	// Transport overrides process launching, for tests.
	Transport mcp.Transport `yaml:"-"`
	Logger    *slog.Logger  `yaml:"-"`
}

func (c MCPConfig) defaults() MCPConfig {
	if c.ToolName == "" {
		c.ToolName = "run_stage"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// MCPExecutor runs stages by calling one tool on an agent process over
// MCP. The session is established lazily on the first stage and reused
// until Close.
type MCPExecutor struct {
	cfg MCPConfig

	mu      sync.Mutex
	session *mcp.ClientSession
}

// NewMCPExecutor creates an MCPExecutor. It does not connect; a broken
// agent configuration surfaces on the first ExecuteStage as
// ErrUnavailable.
func NewMCPExecutor(cfg MCPConfig) *MCPExecutor {
	return &MCPExecutor{cfg: cfg.defaults()}
}

// stageArgs is the tool argument shape the agent receives.
type stageArgs struct {
	Stage  string         `json:"stage"`
	Params map[string]any `json:"params,omitempty"`
}

// ExecuteStage calls the agent's stage tool and waits for the result.
// Session-level failures come back wrapped in ErrUnavailable; a tool
// error means the agent ran the stage and the stage itself failed.
func (e *MCPExecutor) ExecuteStage(ctx context.Context, stage string, params map[string]any) error {
	session, err := e.connect(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      e.cfg.ToolName,
		Arguments: stageArgs{Stage: stage, Params: params},
	})
	if err != nil {
		// The session broke mid-call; drop it so the next stage can
		// redial, and let the orchestrator fall back for this one.
		e.drop()
		return fmt.Errorf("%w: call %s: %v", ErrUnavailable, stage, err)
	}
	if err := result.GetError(); err != nil {
		return fmt.Errorf("agent: stage %s: %w", stage, err)
	}

	e.cfg.Logger.Debug("agent stage complete", "stage", stage)
	return nil
}

func (e *MCPExecutor) connect(ctx context.Context) (*mcp.ClientSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		return e.session, nil
	}

	transport := e.cfg.Transport
	if transport == nil {
		if len(e.cfg.Command) == 0 {
			return nil, fmt.Errorf("no agent command configured")
		}
		cmd := exec.CommandContext(ctx, e.cfg.Command[0], e.cfg.Command[1:]...)
		transport = &mcp.CommandTransport{Command: cmd}
	}

	session, err := mcp.NewClient(clientImpl, nil).Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	e.session = session
	e.cfg.Logger.Info("agent session established", "tool", e.cfg.ToolName)
	return session, nil
}

func (e *MCPExecutor) drop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Close()
		e.session = nil
	}
}

// Close tears down the agent session, if any.
func (e *MCPExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Close()
	e.session = nil
	return err
}
