package domain

import (
	"fmt"
	"sort"
	"strings"
)

// versionMarker separates a purl's name from its version (pkg:npm/left-pad@1.3.0).
const versionMarker = "@"

var (
	queryFields   = map[string]bool{"commit": true, "version": true, "package": true, "pageToken": true}
	packageFields = map[string]bool{"name": true, "ecosystem": true, "purl": true}
	batchFields   = map[string]bool{"queries": true}
)

// ParseQuery checks raw tool arguments (decoded JSON) against the query rules
// and returns the trimmed query. All violated rules are reported; the query
// is only meaningful when no issues are returned. A nil raw value is treated
// as an empty argument object.
func ParseQuery(raw any) (Query, []ValidationIssue) {
	return parseQuery(raw, "", true)
}

// ParseBatch checks a {"queries": [...]} argument object. Each element is
// checked independently and its issues are reported under "queries[i]".
// Queries are returned in input order, and only when every element is valid.
func ParseBatch(raw any) ([]Query, []ValidationIssue) {
	obj, issues := asObject(raw, "", true)
	if obj == nil {
		return nil, issues
	}
	issues = append(issues, unknownFields(obj, batchFields, "")...)

	value, ok := obj["queries"]
	if !ok {
		issues = append(issues, ValidationIssue{
			Code:    IssueQueriesRequired,
			Path:    "queries",
			Message: "Provide at least one query item.",
		})
		return nil, issues
	}
	items, ok := value.([]any)
	if !ok {
		issues = append(issues, ValidationIssue{
			Code:    IssueInvalidType,
			Path:    "queries",
			Message: fmt.Sprintf("Expected array, received %s", jsonType(value)),
		})
		return nil, issues
	}
	if len(items) == 0 {
		issues = append(issues, ValidationIssue{
			Code:    IssueQueriesRequired,
			Path:    "queries",
			Message: "Provide at least one query item.",
		})
		return nil, issues
	}

	queries := make([]Query, 0, len(items))
	for i, item := range items {
		q, itemIssues := parseQuery(item, fmt.Sprintf("queries[%d]", i), false)
		issues = append(issues, itemIssues...)
		queries = append(queries, q)
	}
	if len(issues) > 0 {
		return nil, issues
	}
	return queries, nil
}

func parseQuery(raw any, prefix string, allowNil bool) (Query, []ValidationIssue) {
	obj, issues := asObject(raw, prefix, allowNil)
	if obj == nil {
		return Query{}, issues
	}
	issues = append(issues, unknownFields(obj, queryFields, prefix)...)

	commit, fieldIssues := stringField(obj, "commit", "commit", prefix, true)
	issues = append(issues, fieldIssues...)
	version, fieldIssues := stringField(obj, "version", "version", prefix, true)
	issues = append(issues, fieldIssues...)
	pageToken, fieldIssues := stringField(obj, "pageToken", "pageToken", prefix, false)
	issues = append(issues, fieldIssues...)
	pkg, hasPackage, pkgIssues := parsePackage(obj, prefix)
	issues = append(issues, pkgIssues...)

	hasCommit := commit != ""
	hasVersion := version != ""

	if hasCommit && hasVersion {
		issues = append(issues, ValidationIssue{
			Code:    IssueCommitVersionConflict,
			Path:    prefix,
			Message: "Choose either commit or version, not both.",
		})
	}
	if !hasCommit && !hasVersion {
		issues = append(issues, ValidationIssue{
			Code:    IssueCommitOrVersionRequired,
			Path:    prefix,
			Message: "Provide commit or version to query OSV.",
		})
	}
	if hasVersion && !hasPackage {
		issues = append(issues, ValidationIssue{
			Code:    IssueVersionRequiresPackage,
			Path:    joinPath(prefix, "package"),
			Message: "package is required when using version queries.",
		})
	}
	if hasVersion && pkg != nil && strings.Contains(pkg.Purl, versionMarker) {
		issues = append(issues, ValidationIssue{
			Code:    IssuePurlHasVersion,
			Path:    joinPath(prefix, "package.purl"),
			Message: "When using version, package.purl must omit the version component.",
		})
	}

	return Query{
		Commit:    commit,
		Version:   version,
		Package:   pkg,
		PageToken: pageToken,
	}, issues
}

// parsePackage reports whether the "package" key was present at all, so that
// a malformed package is not also reported as missing.
func parsePackage(obj map[string]any, prefix string) (*Package, bool, []ValidationIssue) {
	raw, ok := obj["package"]
	if !ok {
		return nil, false, nil
	}
	path := joinPath(prefix, "package")
	pobj, issues := asObject(raw, path, false)
	if pobj == nil {
		return nil, true, issues
	}
	issues = append(issues, unknownFields(pobj, packageFields, path)...)

	name, fieldIssues := stringField(pobj, "name", "package.name", path, true)
	issues = append(issues, fieldIssues...)
	ecosystem, fieldIssues := stringField(pobj, "ecosystem", "package.ecosystem", path, true)
	issues = append(issues, fieldIssues...)
	purl, fieldIssues := stringField(pobj, "purl", "package.purl", path, true)
	issues = append(issues, fieldIssues...)

	hasName, hasEcosystem, hasPurl := name != "", ecosystem != "", purl != ""

	if !hasPurl && !(hasName && hasEcosystem) {
		issues = append(issues, ValidationIssue{
			Code:    IssuePackageIdentityRequired,
			Path:    path,
			Message: "Provide either package.purl or both package.name and package.ecosystem.",
		})
	}
	if hasName != hasEcosystem {
		issues = append(issues, ValidationIssue{
			Code:    IssuePackagePairIncomplete,
			Path:    path,
			Message: "package.name and package.ecosystem must be provided together.",
		})
	}
	if hasPurl && (hasName || hasEcosystem) {
		issues = append(issues, ValidationIssue{
			Code:    IssuePurlWithNameOrEcosystem,
			Path:    path,
			Message: "package.purl cannot be combined with package.name or package.ecosystem.",
		})
	}

	return &Package{Name: name, Ecosystem: ecosystem, Purl: purl}, true, issues
}

// stringField reads an optional string, trimming surrounding whitespace.
// label is the field name used in messages, independent of any batch prefix.
func stringField(obj map[string]any, key, label, prefix string, nonEmpty bool) (string, []ValidationIssue) {
	raw, ok := obj[key]
	if !ok {
		return "", nil
	}
	path := joinPath(prefix, key)
	s, ok := raw.(string)
	if !ok {
		return "", []ValidationIssue{{
			Code:    IssueInvalidType,
			Path:    path,
			Message: fmt.Sprintf("%s must be a string, received %s", label, jsonType(raw)),
		}}
	}
	s = strings.TrimSpace(s)
	if s == "" && nonEmpty {
		return "", []ValidationIssue{{
			Code:    IssueEmptyValue,
			Path:    path,
			Message: label + " cannot be empty",
		}}
	}
	return s, nil
}

func asObject(raw any, path string, allowNil bool) (map[string]any, []ValidationIssue) {
	if raw == nil && allowNil {
		return map[string]any{}, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, []ValidationIssue{{
			Code:    IssueInvalidType,
			Path:    path,
			Message: fmt.Sprintf("Expected object, received %s", jsonType(raw)),
		}}
	}
	return obj, nil
}

func unknownFields(obj map[string]any, allowed map[string]bool, prefix string) []ValidationIssue {
	var unknown []string
	for key := range obj {
		if !allowed[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)

	issues := make([]ValidationIssue, 0, len(unknown))
	for _, key := range unknown {
		issues = append(issues, ValidationIssue{
			Code:    IssueUnknownField,
			Path:    joinPath(prefix, key),
			Message: fmt.Sprintf("Unrecognized key %q", key),
		})
	}
	return issues
}

func joinPath(prefix, field string) string {
	if prefix == "" {
		return field
	}
	return prefix + "." + field
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
