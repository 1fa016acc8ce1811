package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/i2y/osv-mcp/internal/domain"
)

const instrumentationName = "github.com/i2y/osv-mcp/internal/usecase"

// Call outcomes recorded on the osv_mcp.query.calls counter.
const (
	outcomeOK       = "ok"
	outcomeInvalid  = "invalid"
	outcomeUpstream = "upstream_error"
	outcomeError    = "error"
)

// QueryResult is the outbound payload together with the upstream answer.
type QueryResult struct {
	Label    string
	Payload  any
	Response json.RawMessage
}

// Text renders the result the way tool callers see it.
func (r *QueryResult) Text() (string, error) {
	return FormatToolOutput(r.Label, r.Payload, r.Response)
}

// QueryOSVUseCase validates raw query arguments, builds the OSV payload and
// calls the API. It holds no per-request state and is safe for concurrent use.
type QueryOSVUseCase struct {
	client VulnerabilityClient
	logger *slog.Logger
	tracer trace.Tracer
	calls  metric.Int64Counter
}

// NewQueryOSVUseCase creates a new QueryOSVUseCase.
func NewQueryOSVUseCase(client VulnerabilityClient, logger *slog.Logger) *QueryOSVUseCase {
	calls, err := otel.Meter(instrumentationName).Int64Counter(
		"osv_mcp.query.calls",
		metric.WithDescription("OSV query tool calls by operation and outcome."),
	)
	if err != nil {
		logger.Warn("Failed to create query counter, metrics disabled.", slog.Any("error", err))
		calls, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("osv_mcp.query.calls")
	}
	return &QueryOSVUseCase{
		client: client,
		logger: logger.With("usecase", "QueryOSV"),
		tracer: otel.Tracer(instrumentationName),
		calls:  calls,
	}
}

// Query handles one osv_query call. A *domain.ValidationError is returned
// before any network activity when the arguments break a query rule.
func (uc *QueryOSVUseCase) Query(ctx context.Context, args any) (*QueryResult, error) {
	ctx, span := uc.tracer.Start(ctx, "osv.query",
		trace.WithAttributes(attribute.String("osv.operation", string(domain.OperationQuery))))
	defer span.End()

	log := uc.logger.With(slog.String("operation", string(domain.OperationQuery)))

	q, issues := domain.ParseQuery(args)
	if len(issues) > 0 {
		return nil, uc.reject(ctx, span, log, domain.OperationQuery, issues)
	}

	return uc.execute(ctx, span, log, domain.OperationQuery, "OSV query", domain.BuildPayload(q))
}

// QueryBatch handles one osv_query_batch call. Every element must be valid;
// otherwise the whole call is rejected and OSV is never contacted.
func (uc *QueryOSVUseCase) QueryBatch(ctx context.Context, args any) (*QueryResult, error) {
	ctx, span := uc.tracer.Start(ctx, "osv.querybatch",
		trace.WithAttributes(attribute.String("osv.operation", string(domain.OperationQueryBatch))))
	defer span.End()

	log := uc.logger.With(slog.String("operation", string(domain.OperationQueryBatch)))

	queries, issues := domain.ParseBatch(args)
	if len(issues) > 0 {
		return nil, uc.reject(ctx, span, log, domain.OperationQueryBatch, issues)
	}
	span.SetAttributes(attribute.Int("osv.batch.size", len(queries)))
	log = log.With(slog.Int("batch_size", len(queries)))

	return uc.execute(ctx, span, log, domain.OperationQueryBatch, "OSV querybatch", domain.BuildBatchPayload(queries))
}

func (uc *QueryOSVUseCase) reject(ctx context.Context, span trace.Span, log *slog.Logger, op domain.Operation, issues []domain.ValidationIssue) error {
	err := &domain.ValidationError{Issues: issues}
	log.Info("Rejected invalid query arguments", slog.Int("issue_count", len(issues)), slog.Any("issues", issues))
	span.SetStatus(codes.Error, "invalid arguments")
	uc.record(ctx, op, outcomeInvalid)
	return err
}

func (uc *QueryOSVUseCase) execute(ctx context.Context, span trace.Span, log *slog.Logger, op domain.Operation, label string, payload any) (*QueryResult, error) {
	log.Info("Calling OSV")
	log.Debug("OSV request payload", slog.Any("payload", payload))

	response, err := uc.client.Call(ctx, op, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "osv call failed")

		var upstreamErr *UpstreamError
		if errors.As(err, &upstreamErr) {
			log.Warn("OSV rejected the request", slog.Int("status_code", upstreamErr.StatusCode))
			uc.record(ctx, op, outcomeUpstream)
		} else {
			log.Error("OSV call failed", slog.Any("error", err))
			uc.record(ctx, op, outcomeError)
		}
		return nil, fmt.Errorf("failed to call OSV %s: %w", op, err)
	}

	log.Info("OSV call succeeded", slog.Int("response_bytes", len(response)))
	uc.record(ctx, op, outcomeOK)
	return &QueryResult{Label: label, Payload: payload, Response: response}, nil
}

func (uc *QueryOSVUseCase) record(ctx context.Context, op domain.Operation, outcome string) {
	uc.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", string(op)),
		attribute.String("outcome", outcome),
	))
}
