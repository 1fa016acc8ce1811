// Package mcptools declares the OSV tools and binds them to the query use case.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpGoServer "github.com/mark3labs/mcp-go/server"

	"github.com/i2y/osv-mcp/internal/domain"
	"github.com/i2y/osv-mcp/internal/usecase"
)

const (
	ServerName    = "osv-scan"
	ServerVersion = "0.1.0"

	internalErrorText = "Internal error while querying OSV."
)

// Querier runs the query pipeline for one tool call.
type Querier interface {
	Query(ctx context.Context, args any) (*usecase.QueryResult, error)
	QueryBatch(ctx context.Context, args any) (*usecase.QueryResult, error)
}

// Registry maps tool names to the query pipeline. It is built once and is
// read-only afterwards.
type Registry struct {
	querier Querier
	logger  *slog.Logger
}

// NewRegistry creates a new Registry.
func NewRegistry(querier Querier, logger *slog.Logger) *Registry {
	return &Registry{
		querier: querier,
		logger:  logger.With("component", "tool_registry"),
	}
}

// Register adds both tools to the server.
func (r *Registry) Register(s usecase.MCPServerAdapter) error {
	for _, tool := range Tools() {
		mcpTool, err := ToMCPTool(tool)
		if err != nil {
			return err
		}
		handler, err := r.handlerFor(tool.Name)
		if err != nil {
			return err
		}
		s.AddTool(mcpTool, handler)
		r.logger.Debug("Registered tool", slog.String("tool", tool.Name))
	}
	return nil
}

func (r *Registry) handlerFor(name string) (mcpGoServer.ToolHandlerFunc, error) {
	var run func(ctx context.Context, args any) (*usecase.QueryResult, error)
	switch name {
	case ToolQuery:
		run = r.querier.Query
	case ToolQueryBatch:
		run = r.querier.QueryBatch
	default:
		return nil, fmt.Errorf("no handler for tool %q", name)
	}

	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := run(ctx, req.GetRawArguments())
		return r.toResult(name, result, err), nil
	}, nil
}

// toResult never returns a Go error to mcp-go; that would be sent back as a
// JSON-RPC internal error carrying the raw error text.
func (r *Registry) toResult(tool string, result *usecase.QueryResult, err error) *mcp.CallToolResult {
	log := r.logger.With(slog.String("tool", tool))
	if err != nil {
		var validationErr *domain.ValidationError
		var upstreamErr *usecase.UpstreamError
		switch {
		case errors.As(err, &validationErr):
			return mcp.NewToolResultError(formatIssues(tool, validationErr))
		case errors.As(err, &upstreamErr):
			return mcp.NewToolResultError(upstreamErr.Error())
		default:
			log.Error("Tool call failed", slog.Any("error", err))
			return mcp.NewToolResultError(internalErrorText)
		}
	}

	text, err := result.Text()
	if err != nil {
		log.Error("Failed to format tool output", slog.Any("error", err))
		return mcp.NewToolResultError(internalErrorText)
	}
	return mcp.NewToolResultText(text)
}

func formatIssues(tool string, err *domain.ValidationError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Invalid arguments for tool %s:", tool)
	for _, issue := range err.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue.String())
	}
	return b.String()
}

// ToMCPTool converts a domain tool declaration into the mcp-go representation.
func ToMCPTool(tool domain.Tool) (mcp.Tool, error) {
	schema, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return mcp.Tool{}, fmt.Errorf("failed to marshal input schema for %s: %w", tool.Name, err)
	}
	mcpTool := mcp.NewToolWithRawSchema(tool.Name, tool.Description, schema)
	mcpTool.Annotations = mcp.ToolAnnotation{
		Title:           tool.Title,
		ReadOnlyHint:    mcp.ToBoolPtr(true),
		DestructiveHint: mcp.ToBoolPtr(false),
		IdempotentHint:  mcp.ToBoolPtr(true),
		OpenWorldHint:   mcp.ToBoolPtr(true),
	}
	return mcpTool, nil
}

// NewServer builds the MCP server with both tools registered.
func NewServer(registry *Registry, logger *slog.Logger) (*mcpGoServer.MCPServer, error) {
	s := mcpGoServer.NewMCPServer(
		ServerName,
		ServerVersion,
		mcpGoServer.WithToolCapabilities(false),
		mcpGoServer.WithRecovery(),
		mcpGoServer.WithInstructions("Query the OSV vulnerability database with osv_query (one target) "+
			"or osv_query_batch (several targets in one request)."),
		mcpGoServer.WithToolHandlerMiddleware(loggingMiddleware(logger)),
	)
	if err := registry.Register(s); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

func loggingMiddleware(logger *slog.Logger) mcpGoServer.ToolHandlerMiddleware {
	log := logger.With("component", "tool_calls")
	return func(next mcpGoServer.ToolHandlerFunc) mcpGoServer.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			start := time.Now()
			result, err := next(ctx, req)
			isError := err != nil || (result != nil && result.IsError)
			log.Info("Tool call",
				slog.String("tool", req.Params.Name),
				slog.Bool("is_error", isError),
				slog.Duration("duration", time.Since(start)),
			)
			return result, err
		}
	}
}
