// Package judge provides the external judgment service client: given a
// grader's score and written justification for one rubric criterion, the
// service returns an advisory opinion on whether the justification is
// textually supported by the student submission.
package judge

import (
	"context"
	"fmt"

	"github.com/rubricguard/rubricguard/catalog"
)

// Status is the judgment service's verdict on a justification.
type Status string

const (
	// StatusSupported means the justification is textually supported by the
	// submission.
	StatusSupported Status = "Supported"
	// StatusPartiallySupported means the justification is only partially
	// grounded in the submission text.
	StatusPartiallySupported Status = "Partially Supported"
	// StatusNotSupported means the justification contradicts or is absent
	// from the submission text.
	StatusNotSupported Status = "Not Supported"
)

// ParseStatus converts a wire status string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusSupported, StatusPartiallySupported, StatusNotSupported:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown judgment status %q", s)
	}
}

// Judgment is the structured result of validating one grading decision.
// ReferencedExcerpt should be a verbatim substring of the submission, though
// that is not enforced locally (the judgment is advisory, not ground truth).
type Judgment struct {
	Status              Status `json:"status"`
	ReferencedExcerpt   string `json:"referencedExcerpt"`
	Reasoning           string `json:"reasoning"`
	SuggestedRefinement string `json:"suggestedRefinement"`
}

// Request carries the grading context the judgment service evaluates.
type Request struct {
	// SubmissionText is the full student submission being graded.
	SubmissionText string

	// Criterion is the rubric criterion the score applies to.
	Criterion catalog.Criterion

	// Score is the grader's proposed score for the criterion.
	Score float64

	// Explanation is the grader's written justification for the score.
	Explanation string
}

// Interface is the judgment service contract. Implementations may block for
// a long time and may fail; callers own timeout and staleness handling.
type Interface interface {
	Judge(ctx context.Context, req Request) (*Judgment, error)
}
