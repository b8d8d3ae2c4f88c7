// Package analytics computes grading-consistency and session statistics.
// Everything here is a pure function over session snapshots: no retained
// state, no mutation of inputs, and no NaN escaping a division guard.
package analytics

import (
	"fmt"
	"math"

	"github.com/rubricguard/rubricguard/catalog"
	"github.com/rubricguard/rubricguard/session"
)

// thresholdStep controls how fast the consistency threshold grows with
// sample size: threshold = thresholdStep * (priorCount + 1). A small session
// tolerates little deviation; a long session has seen more legitimate spread.
const thresholdStep = 0.03

// Alert warns that a proposed score deviates abnormally from the grader's
// own prior scores for the same criterion. It is advisory only and is
// recomputed from scratch on every score edit.
type Alert struct {
	CriterionID string `json:"criterionId"`

	// Mean is the average of prior scores, rounded to one decimal.
	Mean float64 `json:"mean"`

	// Deviation is |proposed-mean| normalized by the criterion's max points.
	Deviation float64 `json:"deviation"`

	// ReferenceSubmissionID names the prior submission whose score is
	// closest to the mean, as a concrete example to recall.
	ReferenceSubmissionID string `json:"referenceSubmissionId"`

	// ReferenceScore is the score given on the reference submission.
	ReferenceScore float64 `json:"referenceScore"`

	Message string `json:"message"`
}

// CheckConsistency evaluates a proposed score for one criterion against the
// scores already given for that criterion on earlier submissions. prior must
// contain only submissions graded before the current one; later submissions
// do not exist from the grader's point of view. Returns nil when the score
// is within threshold or there are no prior scores.
func CheckConsistency(proposed float64, criterion catalog.Criterion, prior []session.GradedSubmission) *Alert {
	var (
		scores        []float64
		submissionIDs []string
	)
	for _, gs := range prior {
		for _, gc := range gs.Criteria {
			if gc.CriterionID == criterion.ID && gc.Score != nil {
				scores = append(scores, *gc.Score)
				submissionIDs = append(submissionIDs, gs.SubmissionID)
			}
		}
	}
	if len(scores) < 1 {
		return nil
	}

	var sum float64
	for _, v := range scores {
		sum += v
	}
	mean := sum / float64(len(scores))

	deviation := math.Abs(proposed-mean) / criterion.MaxPoints
	threshold := thresholdStep * float64(len(scores)+1)
	if deviation <= threshold {
		return nil
	}

	// Reference the prior score closest to the mean; first encountered wins
	// ties so the alert is deterministic.
	closest := 0
	for i := 1; i < len(scores); i++ {
		if math.Abs(scores[i]-mean) < math.Abs(scores[closest]-mean) {
			closest = i
		}
	}

	roundedMean := math.Round(mean*10) / 10
	return &Alert{
		CriterionID:           criterion.ID,
		Mean:                  roundedMean,
		Deviation:             deviation,
		ReferenceSubmissionID: submissionIDs[closest],
		ReferenceScore:        scores[closest],
		Message: fmt.Sprintf("This score deviates significantly from the session average of %.1f. Recall for %s you gave a score of %g.",
			roundedMean, submissionIDs[closest], scores[closest]),
	}
}
