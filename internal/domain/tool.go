package domain

// Tool describes a callable operation exposed over the Model Context Protocol (MCP).
// Based on MCP Spec 2025-03-26: https://modelcontextprotocol.io/specification/2025-03-26
type Tool struct {
	// Name MUST be unique within the MCP server.
	Name string `json:"name"`

	// Title is a short human-readable label shown by clients.
	Title string `json:"title,omitempty"`

	// Description provides a natural language explanation of what the tool does.
	// This is crucial for the LLM to understand when to use the tool.
	Description string `json:"description"`

	// InputSchema defines the structure of the arguments the tool expects.
	InputSchema JSONSchemaProps `json:"input_schema"`
}

// JSONSchemaProps is the subset of JSON Schema used to declare tool inputs.
type JSONSchemaProps struct {
	Type                 string                     `json:"type"` // "object", "string", "array"
	Description          string                     `json:"description,omitempty"`
	Properties           map[string]JSONSchemaProps `json:"properties,omitempty"`
	Required             []string                   `json:"required,omitempty"`
	Items                *JSONSchemaProps           `json:"items,omitempty"`
	MinLength            *int                       `json:"minLength,omitempty"`
	MinItems             *int                       `json:"minItems,omitempty"`
	AdditionalProperties *bool                      `json:"additionalProperties,omitempty"`
}
