package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/i2y/osv-mcp/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
	mcpGoServer "github.com/mark3labs/mcp-go/server"
)

// Standard errors returned by use cases and adapters.
var (
	// ErrInvalidResponse is returned when OSV answers 2xx with a body that is not JSON.
	ErrInvalidResponse = errors.New("invalid upstream response")
)

// UpstreamError is a non-2xx answer from the OSV API. Body holds the full
// response text so callers can tell downstream rejections from local ones.
type UpstreamError struct {
	Operation  domain.Operation
	StatusCode int
	Status     string // status text without the numeric code, e.g. "Bad Request"
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("OSV %s failed: %d %s - %s", e.Operation, e.StatusCode, e.Status, e.Body)
}

// --- Upstream API ---

// VulnerabilityClient executes one call against the OSV API.
// The payload is marshalled as the JSON request body; the decoded-but-opaque
// response body is returned as-is.
type VulnerabilityClient interface {
	Call(ctx context.Context, op domain.Operation, payload any) (json.RawMessage, error)
}

// --- MCP Server Abstraction ---

// MCPServerAdapter is the part of the MCP server (mcp-go) that tool
// registration needs.
type MCPServerAdapter interface {
	// AddTool registers a tool and its handler with the server.
	AddTool(tool mcp.Tool, handlerFunc mcpGoServer.ToolHandlerFunc)
}
