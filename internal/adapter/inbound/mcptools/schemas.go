package mcptools

import "github.com/i2y/osv-mcp/internal/domain"

const (
	ToolQuery      = "osv_query"
	ToolQueryBatch = "osv_query_batch"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func stringProp(description string, minLength *int) domain.JSONSchemaProps {
	return domain.JSONSchemaProps{Type: "string", Description: description, MinLength: minLength}
}

// querySchema is the declared input of osv_query and of each osv_query_batch item.
func querySchema() domain.JSONSchemaProps {
	return domain.JSONSchemaProps{
		Type: "object",
		Properties: map[string]domain.JSONSchemaProps{
			"commit": stringProp("Commit SHA to query. Use this OR version, not both.", intPtr(1)),
			"version": stringProp("Version string to query (fuzzy matched). Requires package. "+
				"Use this OR commit, not both. If package.purl is provided, omit @version there.", intPtr(1)),
			"package": {
				Type:        "object",
				Description: "Package info. Required when using version. Provide either purl OR both name and ecosystem.",
				Properties: map[string]domain.JSONSchemaProps{
					"name":      stringProp("Package name (required with ecosystem when not using purl).", intPtr(1)),
					"ecosystem": stringProp("Package ecosystem (required with name when not using purl).", intPtr(1)),
					"purl": stringProp("Package URL (purl). Either purl OR (name + ecosystem). "+
						"For version queries, omit @version here.", intPtr(1)),
				},
				AdditionalProperties: boolPtr(false),
			},
			"pageToken": stringProp("Optional pagination token returned by previous OSV response.", nil),
		},
		AdditionalProperties: boolPtr(false),
	}
}

func batchSchema() domain.JSONSchemaProps {
	item := querySchema()
	return domain.JSONSchemaProps{
		Type: "object",
		Properties: map[string]domain.JSONSchemaProps{
			"queries": {
				Type:        "array",
				Description: "Array of OSV queries. Each item follows the same rules as osv_query.",
				Items:       &item,
				MinItems:    intPtr(1),
			},
		},
		Required:             []string{"queries"},
		AdditionalProperties: boolPtr(false),
	}
}

// Tools returns the two tool declarations in registration order.
func Tools() []domain.Tool {
	return []domain.Tool{
		{
			Name:  ToolQuery,
			Title: "OSV POST /v1/query",
			Description: "Fetch vulnerabilities for one target via OSV /v1/query. Rules: supply exactly one of " +
				"commit OR version; if version is used, package is required; package must be purl or " +
				"(name + ecosystem); when version is present and purl is provided, omit @version from the purl; " +
				"optionally pass pageToken from previous response.",
			InputSchema: querySchema(),
		},
		{
			Name:  ToolQueryBatch,
			Title: "OSV POST /v1/querybatch",
			Description: "Fetch vulnerabilities for multiple targets via OSV /v1/querybatch. Each query follows " +
				"the same rules as osv_query (commit XOR version; package required when using version; " +
				"purl must omit @version when version is present).",
			InputSchema: batchSchema(),
		},
	}
}
