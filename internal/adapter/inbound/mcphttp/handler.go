package mcphttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/mark3labs/mcp-go/mcp"
	mcpGoServer "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/i2y/osv-mcp/pkg/shared/mcpjsonrpc"
)

const (
	textNotFound      = "Not Found"
	textInvalidJSON   = "Invalid JSON body"
	textInternalError = "Internal server error"
	textNoPayload     = "no JSON-RPC message supplied"
)

// MessageHandler is the part of the MCP server the bridge dispatches to.
// *server.MCPServer satisfies it.
type MessageHandler interface {
	HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage
	WithContext(ctx context.Context, session mcpGoServer.ClientSession) context.Context
}

// Bridge adapts one HTTP POST into one stateless MCP exchange.
type Bridge struct {
	server MessageHandler
	logger *slog.Logger
	tracer trace.Tracer
}

// NewBridge creates a new Bridge.
func NewBridge(server MessageHandler, logger *slog.Logger) *Bridge {
	return &Bridge{
		server: server,
		logger: logger.With("component", "mcphttp_bridge"),
		tracer: otel.Tracer("github.com/i2y/osv-mcp/internal/adapter/inbound/mcphttp"),
	}
}

// ServeHTTP runs one exchange. Anything escaping the exchange, panics
// included, ends as a single 500 if nothing has been written yet.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tw := &trackingWriter{ResponseWriter: w}
	ex := newExchange(b.logger)

	stop := context.AfterFunc(r.Context(), ex.Close)
	defer func() {
		stop()
		ex.Close()
	}()

	defer func() {
		if rec := recover(); rec != nil {
			ex.logger.Error("Panic while handling MCP request",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			b.fail(tw, ex)
		}
	}()

	if err := b.serve(tw, r, ex); err != nil {
		ex.logger.Error("Error handling MCP request", slog.Any("error", err))
		b.fail(tw, ex)
	}
}

func (b *Bridge) serve(w *trackingWriter, r *http.Request, ex *exchange) error {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := b.tracer.Start(ctx, "mcp.exchange",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("mcp.exchange.id", ex.id)))
	defer span.End()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		span.SetStatus(codes.Error, "read failed")
		return fmt.Errorf("failed to read request body: %w", err)
	}
	ex.advance(stateBodyReceived)
	span.SetAttributes(attribute.Int("http.request.body.size", len(body)))

	payload := bytes.TrimSpace(body)
	if len(payload) == 0 {
		ex.logger.Debug("Empty request body")
		b.writeJSON(w, ex, http.StatusBadRequest, mcpjsonrpc.NewErrorResponse(mcpjsonrpc.CodeInvalidRequest, textNoPayload))
		return nil
	}
	if !json.Valid(payload) {
		ex.logger.Warn("Request body is not valid JSON", slog.Int("size", len(payload)))
		span.SetStatus(codes.Error, "invalid json")
		b.writeText(w, ex, http.StatusBadRequest, textInvalidJSON)
		return nil
	}

	ex.advance(stateDispatched)
	// The upstream call is allowed to finish after a client disconnect; its
	// result is discarded.
	dispatchCtx := b.server.WithContext(context.WithoutCancel(ctx), ex.session)

	if !mcpjsonrpc.IsBatch(payload) {
		reply := b.dispatch(dispatchCtx, ex, payload)
		if reply == nil {
			b.writeAccepted(w, ex)
			return nil
		}
		b.writeJSON(w, ex, http.StatusOK, reply)
		return nil
	}

	items, err := mcpjsonrpc.SplitBatch(payload)
	if err != nil {
		return fmt.Errorf("failed to split JSON-RPC batch: %w", err)
	}
	if len(items) == 0 {
		b.writeJSON(w, ex, http.StatusBadRequest, mcpjsonrpc.NewErrorResponse(mcpjsonrpc.CodeInvalidRequest, "empty JSON-RPC batch"))
		return nil
	}
	span.SetAttributes(attribute.Int("mcp.batch.size", len(items)))

	replies := make([]mcp.JSONRPCMessage, 0, len(items))
	for _, item := range items {
		if reply := b.dispatch(dispatchCtx, ex, item); reply != nil {
			replies = append(replies, reply)
		}
	}
	if len(replies) == 0 {
		b.writeAccepted(w, ex)
		return nil
	}
	b.writeJSON(w, ex, http.StatusOK, replies)
	return nil
}

func (b *Bridge) dispatch(ctx context.Context, ex *exchange, msg json.RawMessage) mcp.JSONRPCMessage {
	var env mcpjsonrpc.Envelope
	_ = json.Unmarshal(msg, &env)
	ex.logger.Debug("Dispatching JSON-RPC message",
		slog.String("method", env.Method),
		slog.Bool("notification", mcpjsonrpc.IsNotification(msg)),
	)
	return b.server.HandleMessage(ctx, msg)
}

func (b *Bridge) writeJSON(w http.ResponseWriter, ex *exchange, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		ex.logger.Error("Failed to encode JSON-RPC response", slog.Any("error", err))
		b.writeText(w, ex, http.StatusInternalServerError, textInternalError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		ex.logger.Warn("Failed to write response", slog.Any("error", err))
	}
	ex.advance(stateResponded)
}

func (b *Bridge) writeText(w http.ResponseWriter, ex *exchange, status int, text string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, text); err != nil {
		ex.logger.Warn("Failed to write response", slog.Any("error", err))
	}
	ex.advance(stateResponded)
}

func (b *Bridge) writeAccepted(w http.ResponseWriter, ex *exchange) {
	w.WriteHeader(http.StatusAccepted)
	ex.advance(stateResponded)
}

func (b *Bridge) fail(w *trackingWriter, ex *exchange) {
	if w.wroteHeader {
		ex.logger.Warn("Response already started, dropping error reply")
		return
	}
	b.writeText(w, ex, http.StatusInternalServerError, textInternalError)
}

// trackingWriter records whether any part of the response has been sent.
type trackingWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *trackingWriter) WriteHeader(code int) {
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *trackingWriter) Write(p []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(p)
}

func (w *trackingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
