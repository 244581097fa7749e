package domain

import "fmt"

// IssueKind classifies a validation issue found while assembling or
// checking a standardized series.
type IssueKind string

const (
	IssueOutOfRange         IssueKind = "out-of-range"
	IssueWrongType          IssueKind = "wrong-type"
	IssueMissing            IssueKind = "missing"
	IssueDuplicateTimestamp IssueKind = "duplicate-timestamp"
	IssueNonMonotonicGap    IssueKind = "non-monotonic-gap"
	IssueUnresolvedIdentity IssueKind = "unresolved-identity"
	IssueMalformedFile      IssueKind = "malformed-file"
	IssueUnsupportedFormat  IssueKind = "unsupported-format"
)

// ValidationIssue records one non-fatal finding. Issues accumulate on
// the series; only structural mismatches abort a conversion.
type ValidationIssue struct {
	Kind    IssueKind `json:"kind"`
	Row     int       `json:"row"`
	Column  string    `json:"column,omitempty"`
	File    string    `json:"file,omitempty"`
	Message string    `json:"message"`
}

func (i ValidationIssue) String() string {
	if i.Column != "" {
		return fmt.Sprintf("%s row %d column %s: %s", i.Kind, i.Row, i.Column, i.Message)
	}
	return fmt.Sprintf("%s row %d: %s", i.Kind, i.Row, i.Message)
}
