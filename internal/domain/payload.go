package domain

import "strings"

// Payload is the request body of OSV POST /v1/query. Field order matches the
// order in which the keys are emitted.
type Payload struct {
	Commit    string          `json:"commit,omitempty"`
	Version   string          `json:"version,omitempty"`
	Package   *PackagePayload `json:"package,omitempty"`
	PageToken string          `json:"page_token,omitempty"`
}

// PackagePayload carries either purl or name+ecosystem, never both.
type PackagePayload struct {
	Purl      string `json:"purl,omitempty"`
	Name      string `json:"name,omitempty"`
	Ecosystem string `json:"ecosystem,omitempty"`
}

// BatchPayload is the request body of OSV POST /v1/querybatch. Results come
// back in the same order as Queries.
type BatchPayload struct {
	Queries []Payload `json:"queries"`
}

// BuildPayload converts a validated query into the upstream wire shape.
// Values are trimmed; empty values are omitted.
func BuildPayload(q Query) Payload {
	p := Payload{
		Commit:    strings.TrimSpace(q.Commit),
		Version:   strings.TrimSpace(q.Version),
		PageToken: strings.TrimSpace(q.PageToken),
	}
	if q.Package != nil {
		p.Package = buildPackage(*q.Package)
	}
	return p
}

// BuildBatchPayload wraps the payload of every query, keeping input order.
func BuildBatchPayload(queries []Query) BatchPayload {
	out := BatchPayload{Queries: make([]Payload, len(queries))}
	for i, q := range queries {
		out.Queries[i] = BuildPayload(q)
	}
	return out
}

func buildPackage(pkg Package) *PackagePayload {
	if purl := strings.TrimSpace(pkg.Purl); purl != "" {
		return &PackagePayload{Purl: purl}
	}
	return &PackagePayload{
		Name:      strings.TrimSpace(pkg.Name),
		Ecosystem: strings.TrimSpace(pkg.Ecosystem),
	}
}
