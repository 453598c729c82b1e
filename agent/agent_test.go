package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// testAgent serves the run_stage tool in-memory and records calls.
func testAgent(t *testing.T, failStages map[string]bool) (*MCPExecutor, *[]string) {
	t.Helper()

	var executed []string
	srv := mcp.NewServer(&mcp.Implementation{Name: "agent-test", Version: "0.1.0"}, nil)
	srv.AddTool(&mcp.Tool{
		Name:        "run_stage",
		Description: "run one pipeline stage",
		InputSchema: &jsonschema.Schema{Type: "object"},
	},
		func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args stageArgs
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				var res mcp.CallToolResult
				res.SetError(fmt.Errorf("invalid arguments: %w", err))
				return &res, nil
			}
			if failStages[args.Stage] {
				var res mcp.CallToolResult
				res.SetError(fmt.Errorf("stage %s blew up", args.Stage))
				return &res, nil
			}
			executed = append(executed, args.Stage)
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: `{"ok":true}`}},
			}, nil
		})

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	e := NewMCPExecutor(MCPConfig{Transport: clientT})
	t.Cleanup(func() { e.Close() })
	return e, &executed
}

func TestExecuteStage(t *testing.T) {
	e, executed := testAgent(t, nil)

	err := e.ExecuteStage(context.Background(), "discovery", map[string]any{"limit": 10})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(*executed) != 1 || (*executed)[0] != "discovery" {
		t.Fatalf("executed = %v", *executed)
	}
}

func TestExecuteStageToolError(t *testing.T) {
	// WHAT: A stage the agent ran but that failed is a stage error,
	// not an availability error — the orchestrator must not fall back.
	e, _ := testAgent(t, map[string]bool{"correlate": true})

	err := e.ExecuteStage(context.Background(), "correlate", nil)
	if err == nil {
		t.Fatal("expected stage error")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatalf("stage failure misclassified as unavailable: %v", err)
	}
}

func TestExecuteStageUnavailableWithoutCommand(t *testing.T) {
	e := NewMCPExecutor(MCPConfig{})
	err := e.ExecuteStage(context.Background(), "discovery", nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestSessionReused(t *testing.T) {
	e, executed := testAgent(t, nil)
	ctx := context.Background()

	for _, stage := range []string{"a", "b", "c"} {
		if err := e.ExecuteStage(ctx, stage, nil); err != nil {
			t.Fatalf("execute %s: %v", stage, err)
		}
	}
	if len(*executed) != 3 {
		t.Fatalf("executed = %v", *executed)
	}
}
