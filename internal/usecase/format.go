package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FormatToolOutput renders the outbound payload followed by the upstream
// response, both as 2-space indented JSON. The response keeps the key order
// chosen by OSV.
func FormatToolOutput(label string, payload any, response json.RawMessage) (string, error) {
	var payloadBuf bytes.Buffer
	enc := json.NewEncoder(&payloadBuf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return "", fmt.Errorf("failed to encode %s payload: %w", label, err)
	}

	var responseBuf bytes.Buffer
	if err := json.Indent(&responseBuf, response, "", "  "); err != nil {
		return "", fmt.Errorf("failed to indent %s response: %w", label, err)
	}

	return strings.Join([]string{
		label + " request payload:",
		strings.TrimRight(payloadBuf.String(), "\n"),
		"",
		label + " response:",
		responseBuf.String(),
	}, "\n"), nil
}
