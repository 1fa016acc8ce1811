package osvapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/i2y/osv-mcp/internal/domain"
	"github.com/i2y/osv-mcp/internal/usecase"
)

// DefaultBaseURL is the public OSV API.
const DefaultBaseURL = "https://api.osv.dev/v1/"

// Client implements the usecase.VulnerabilityClient interface using standard net/http.
type Client struct {
	httpClient *http.Client
	baseURL    string
	contract   *Contract
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewClient creates a new OSV client. A nil contract disables the outbound
// payload check.
func NewClient(httpClient *http.Client, baseURL string, contract *Contract, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    NormalizeBaseURL(baseURL),
		contract:   contract,
		logger:     logger.With("component", "osv_client"),
		tracer:     otel.Tracer("github.com/i2y/osv-mcp/internal/adapter/outbound/osvapi"),
	}
}

// NormalizeBaseURL returns base with exactly one trailing slash.
func NormalizeBaseURL(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + "/"
}

// BaseURL returns the normalised upstream base.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Call posts payload as JSON to <base>/<op> and returns the response body.
func (c *Client) Call(ctx context.Context, op domain.Operation, payload any) (json.RawMessage, error) {
	endpoint := c.baseURL + string(op)
	log := c.logger.With(slog.String("operation", string(op)), slog.String("url", endpoint))

	ctx, span := c.tracer.Start(ctx, "POST /"+string(op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(semconv.HTTPRequestMethodPost, semconv.URLFull(endpoint)))
	defer span.End()

	if c.contract != nil {
		if err := c.contract.Check(op, payload); err != nil {
			log.Error("Outbound payload rejected by contract", slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "contract check failed")
			return nil, err
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Error("Failed to marshal request body", slog.Any("error", err))
		return nil, fmt.Errorf("failed to marshal %s request body: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		log.Error("Failed to create HTTP request", slog.Any("error", err))
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	log.Debug("Executing HTTP request", slog.Int("body_size", len(body)))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("HTTP request failed", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("request execution failed: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(semconv.HTTPResponseStatusCode(resp.StatusCode))
	log = log.With(slog.Int("status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("Failed to read response body", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	span.SetAttributes(attribute.Int("http.response.body.size", len(respBody)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upstreamErr := &usecase.UpstreamError{
			Operation:  op,
			StatusCode: resp.StatusCode,
			Status:     statusText(resp),
			Body:       string(respBody),
		}
		log.Warn("OSV returned non-success status", slog.String("body", upstreamErr.Body))
		span.SetStatus(codes.Error, upstreamErr.Status)
		return nil, upstreamErr
	}

	if !json.Valid(respBody) {
		log.Error("OSV returned a body that is not JSON", slog.Int("size", len(respBody)))
		span.SetStatus(codes.Error, "invalid response body")
		return nil, fmt.Errorf("OSV %s: %w", op, usecase.ErrInvalidResponse)
	}

	log.Debug("Received OSV response", slog.Int("size", len(respBody)))
	return json.RawMessage(respBody), nil
}

// statusText strips the numeric code from resp.Status ("400 Bad Request" -> "Bad Request").
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
