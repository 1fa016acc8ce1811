package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/i2y/osv-mcp/internal/domain"
	"github.com/i2y/osv-mcp/internal/usecase"
)

// MockVulnerabilityClient is a mock implementation of the VulnerabilityClient interface.
type MockVulnerabilityClient struct {
	mock.Mock
}

func (m *MockVulnerabilityClient) Call(ctx context.Context, op domain.Operation, payload any) (json.RawMessage, error) {
	args := m.Called(ctx, op, payload)
	resp, _ := args.Get(0).(json.RawMessage)
	return resp, args.Error(1)
}

func TestQueryOSVUseCase_Query(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	validArgs := map[string]any{
		"version": "1.2.3",
		"package": map[string]any{"name": "left-pad", "ecosystem": "npm"},
	}
	wantPayload := domain.Payload{
		Version: "1.2.3",
		Package: &domain.PackagePayload{Name: "left-pad", Ecosystem: "npm"},
	}
	upstream := &usecase.UpstreamError{
		Operation:  domain.OperationQuery,
		StatusCode: 400,
		Status:     "Bad Request",
		Body:       `{"code":3,"message":"Invalid query."}`,
	}

	tests := []struct {
		name         string
		mockSetup    func(*MockVulnerabilityClient)
		in           any
		wantErr      bool
		wantErrText  string
		wantErrType  any
		wantResponse string
	}{
		{
			name: "Success - payload sent and response returned",
			mockSetup: func(c *MockVulnerabilityClient) {
				c.On("Call", mock.Anything, domain.OperationQuery, wantPayload).
					Return(json.RawMessage(`{"vulns":[]}`), nil).Once()
			},
			in:           validArgs,
			wantResponse: `{"vulns":[]}`,
		},
		{
			name:        "Failure - invalid arguments never reach OSV",
			mockSetup:   func(c *MockVulnerabilityClient) {},
			in:          map[string]any{"commit": "abc", "version": "1.0"},
			wantErr:     true,
			wantErrType: &domain.ValidationError{},
		},
		{
			name: "Failure - upstream rejection is surfaced",
			mockSetup: func(c *MockVulnerabilityClient) {
				c.On("Call", mock.Anything, domain.OperationQuery, wantPayload).Return(nil, upstream).Once()
			},
			in:          validArgs,
			wantErr:     true,
			wantErrText: `failed to call OSV query: OSV query failed: 400 Bad Request - {"code":3,"message":"Invalid query."}`,
			wantErrType: &usecase.UpstreamError{},
		},
		{
			name: "Failure - transport error",
			mockSetup: func(c *MockVulnerabilityClient) {
				c.On("Call", mock.Anything, domain.OperationQuery, wantPayload).
					Return(nil, errors.New("dial tcp: connection refused")).Once()
			},
			in:          validArgs,
			wantErr:     true,
			wantErrText: "failed to call OSV query: dial tcp: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(MockVulnerabilityClient)
			tt.mockSetup(client)

			uc := usecase.NewQueryOSVUseCase(client, logger)
			result, err := uc.Query(ctx, tt.in)

			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, result)
				if tt.wantErrText != "" {
					assert.EqualError(t, err, tt.wantErrText)
				}
				switch tt.wantErrType.(type) {
				case *domain.ValidationError:
					var vErr *domain.ValidationError
					assert.ErrorAs(t, err, &vErr)
				case *usecase.UpstreamError:
					var uErr *usecase.UpstreamError
					require.ErrorAs(t, err, &uErr)
					assert.Equal(t, 400, uErr.StatusCode)
				}
			} else {
				require.NoError(t, err)
				assert.Equal(t, "OSV query", result.Label)
				assert.Equal(t, wantPayload, result.Payload)
				assert.JSONEq(t, tt.wantResponse, string(result.Response))
			}

			client.AssertExpectations(t)
		})
	}
}

func TestQueryOSVUseCase_QueryBatch(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("Success - one call with queries in order", func(t *testing.T) {
		client := new(MockVulnerabilityClient)
		want := domain.BatchPayload{Queries: []domain.Payload{
			{Commit: "c1"},
			{Version: "2.0", Package: &domain.PackagePayload{Purl: "pkg:npm/b"}},
		}}
		client.On("Call", mock.Anything, domain.OperationQueryBatch, want).
			Return(json.RawMessage(`{"results":[{},{}]}`), nil).Once()

		uc := usecase.NewQueryOSVUseCase(client, logger)
		result, err := uc.QueryBatch(ctx, map[string]any{"queries": []any{
			map[string]any{"commit": "c1"},
			map[string]any{"version": "2.0", "package": map[string]any{"purl": "pkg:npm/b"}},
		}})

		require.NoError(t, err)
		assert.Equal(t, "OSV querybatch", result.Label)
		client.AssertNumberOfCalls(t, "Call", 1)
		client.AssertExpectations(t)
	})

	t.Run("Failure - one invalid element blocks the whole batch", func(t *testing.T) {
		client := new(MockVulnerabilityClient)

		uc := usecase.NewQueryOSVUseCase(client, logger)
		result, err := uc.QueryBatch(ctx, map[string]any{"queries": []any{
			map[string]any{"commit": "c1"},
			map[string]any{"version": "2.0"},
		}})

		assert.Nil(t, result)
		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.True(t, vErr.HasCode(domain.IssueVersionRequiresPackage))
		client.AssertNotCalled(t, "Call", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Failure - empty batch", func(t *testing.T) {
		client := new(MockVulnerabilityClient)

		uc := usecase.NewQueryOSVUseCase(client, logger)
		_, err := uc.QueryBatch(ctx, map[string]any{"queries": []any{}})

		var vErr *domain.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.True(t, vErr.HasCode(domain.IssueQueriesRequired))
		client.AssertNotCalled(t, "Call", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestQueryResult_Text(t *testing.T) {
	result := &usecase.QueryResult{
		Label:    "OSV query",
		Payload:  domain.Payload{Commit: "abc"},
		Response: json.RawMessage(`{"vulns":[{"id":"GHSA-1","summary":"a<b"}]}`),
	}

	text, err := result.Text()
	require.NoError(t, err)

	want := "OSV query request payload:\n" +
		"{\n  \"commit\": \"abc\"\n}\n" +
		"\n" +
		"OSV query response:\n" +
		"{\n  \"vulns\": [\n    {\n      \"id\": \"GHSA-1\",\n      \"summary\": \"a<b\"\n    }\n  ]\n}"
	assert.Equal(t, want, text)
}

func TestFormatToolOutput_KeepsResponseKeyOrder(t *testing.T) {
	text, err := usecase.FormatToolOutput("OSV query", map[string]string{"commit": "x"}, json.RawMessage(`{"z":1,"a":2}`))
	require.NoError(t, err)
	assert.Contains(t, text, "{\n  \"z\": 1,\n  \"a\": 2\n}")
}

func TestFormatToolOutput_RejectsMalformedResponse(t *testing.T) {
	_, err := usecase.FormatToolOutput("OSV query", map[string]string{}, json.RawMessage(`{not json`))
	assert.Error(t, err)
}
