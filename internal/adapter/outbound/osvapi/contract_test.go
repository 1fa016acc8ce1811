package osvapi_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/osv-mcp/internal/adapter/outbound/osvapi"
	"github.com/i2y/osv-mcp/internal/domain"
)

func TestContract_Check(t *testing.T) {
	contract, err := osvapi.LoadContract(context.Background())
	require.NoError(t, err)

	tests := []struct {
		name    string
		op      domain.Operation
		payload any
		wantErr bool
	}{
		{
			name: "Valid - built query",
			op:   domain.OperationQuery,
			payload: domain.BuildPayload(domain.Query{
				Version:   "1.0",
				Package:   &domain.Package{Purl: "pkg:npm/x"},
				PageToken: "next",
			}),
		},
		{
			name:    "Valid - built batch",
			op:      domain.OperationQueryBatch,
			payload: domain.BuildBatchPayload([]domain.Query{{Commit: "abc"}, {Commit: "def"}}),
		},
		{
			name:    "Invalid - unknown key",
			op:      domain.OperationQuery,
			payload: map[string]any{"commit": "abc", "pageToken": "x"},
			wantErr: true,
		},
		{
			name:    "Invalid - empty batch",
			op:      domain.OperationQueryBatch,
			payload: domain.BatchPayload{Queries: []domain.Payload{}},
			wantErr: true,
		},
		{
			name:    "Invalid - unknown operation",
			op:      domain.Operation("vulns"),
			payload: map[string]any{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := contract.Check(tt.op, tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
