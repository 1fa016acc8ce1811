package domain

import (
	"fmt"
	"strings"
)

// Operation names an OSV API endpoint relative to the configured base URL.
type Operation string

const (
	OperationQuery      Operation = "query"
	OperationQueryBatch Operation = "querybatch"
)

// Query is a validated, trimmed vulnerability query. Only ParseQuery and
// ParseBatch produce values that satisfy the query rules.
type Query struct {
	Commit    string
	Version   string
	Package   *Package
	PageToken string
}

// Package identifies a package either by purl or by name and ecosystem.
type Package struct {
	Name      string
	Ecosystem string
	Purl      string
}

// IssueCode is the closed set of reasons a query can be rejected.
type IssueCode string

const (
	IssueUnknownField            IssueCode = "unknown_field"
	IssueInvalidType             IssueCode = "invalid_type"
	IssueEmptyValue              IssueCode = "empty_value"
	IssueCommitVersionConflict   IssueCode = "commit_version_conflict"
	IssueCommitOrVersionRequired IssueCode = "commit_or_version_required"
	IssueVersionRequiresPackage  IssueCode = "version_requires_package"
	IssuePackageIdentityRequired IssueCode = "package_identity_required"
	IssuePackagePairIncomplete   IssueCode = "package_pair_incomplete"
	IssuePurlWithNameOrEcosystem IssueCode = "purl_with_name_or_ecosystem"
	IssuePurlHasVersion          IssueCode = "purl_has_version"
	IssueQueriesRequired         IssueCode = "queries_required"
)

// ValidationIssue is one violated rule. Path is empty for rules that apply to
// the query as a whole.
type ValidationIssue struct {
	Code    IssueCode `json:"code"`
	Path    string    `json:"path,omitempty"`
	Message string    `json:"message"`
}

func (i ValidationIssue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// ValidationError carries every issue found in a rejected input.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return "invalid input: " + e.Issues[0].String()
	}
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("invalid input (%d issues): %s", len(e.Issues), strings.Join(parts, "; "))
}

// HasCode reports whether any issue carries the given code.
func (e *ValidationError) HasCode(code IssueCode) bool {
	for _, issue := range e.Issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}
