package osvapi

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/i2y/osv-mcp/internal/domain"
)

//go:embed osv_contract.yaml
var contractSpec []byte

// schemaNames maps each operation to the request body schema in the contract.
var schemaNames = map[domain.Operation]string{
	domain.OperationQuery:      "Query",
	domain.OperationQueryBatch: "BatchQuery",
}

// Contract checks outbound request bodies against the embedded OpenAPI
// description of the OSV endpoints this server calls.
type Contract struct {
	doc *openapi3.T
}

// LoadContract parses and validates the embedded OpenAPI document.
func LoadContract(ctx context.Context) (*Contract, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(contractSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to load OSV contract: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid OSV contract: %w", err)
	}
	for op, name := range schemaNames {
		if doc.Components == nil || doc.Components.Schemas[name] == nil {
			return nil, fmt.Errorf("OSV contract has no schema %q for operation %s", name, op)
		}
	}
	return &Contract{doc: doc}, nil
}

// Check reports whether payload, once marshalled, is an acceptable request
// body for op.
func (c *Contract) Check(op domain.Operation, payload any) error {
	name, ok := schemaNames[op]
	if !ok {
		return fmt.Errorf("unknown OSV operation %q", op)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", op, err)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", op, err)
	}

	schema := c.doc.Components.Schemas[name].Value
	if err := schema.VisitJSON(value, openapi3.MultiErrors()); err != nil {
		return fmt.Errorf("%s payload does not match OSV contract: %w", op, err)
	}
	return nil
}
