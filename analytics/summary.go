package analytics

import (
	"math"

	"github.com/rubricguard/rubricguard/catalog"
	"github.com/rubricguard/rubricguard/judge"
	"github.com/rubricguard/rubricguard/session"
)

// Drift thresholds on mean normalized deviation, in percent.
const (
	moderateDriftPct = 5.0
	highDriftPct     = 10.0
)

// DriftLevel classifies overall scoring consistency across the session.
type DriftLevel string

const (
	DriftStable   DriftLevel = "stable"
	DriftModerate DriftLevel = "moderate"
	DriftHigh     DriftLevel = "high"
)

// RiskPolicy controls which judgments land on the high-risk review list.
// Every NOT_SUPPORTED judgment is always included; PARTIALLY_SUPPORTED ones
// are included only when the score deviates from the criterion's session
// mean by more than PartialDeviation (a fraction of max points).
type RiskPolicy struct {
	PartialDeviation float64 `yaml:"partial_deviation"`
}

// DefaultRiskPolicy returns the default high-risk inclusion policy.
func DefaultRiskPolicy() RiskPolicy {
	return RiskPolicy{PartialDeviation: 0.15}
}

// CriterionSpread summarizes score dispersion for one rubric criterion.
type CriterionSpread struct {
	CriterionID string `json:"criterionId"`
	Name        string `json:"name"`

	// Samples is the number of submissions with a score for this criterion.
	Samples int     `json:"samples"`
	Mean    float64 `json:"mean"`

	// Variance is the population variance of the scores. It is only
	// meaningful when InsufficientData is false.
	Variance float64 `json:"variance"`

	// Stability is the population standard deviation across ALL scored
	// submissions (lower is better).
	Stability float64 `json:"stability"`

	// InsufficientData is true with fewer than two samples: zero variance
	// from many agreeing samples and undefined variance from one sample are
	// different findings and must not be conflated.
	InsufficientData bool `json:"insufficientData"`
}

// TimelinePoint is one submission's total score over the grading sequence.
type TimelinePoint struct {
	SubmissionID string `json:"submissionId"`

	// Total sums the submission's non-nil scores, treating nil as 0. That
	// conflates "not yet graded" with "scored zero"; check Complete to
	// tell the two apart.
	Total float64 `json:"total"`

	// Complete is true when every criterion of the submission is graded.
	Complete bool `json:"complete"`
}

// RiskDecision is one graded criterion flagged for human review.
type RiskDecision struct {
	SubmissionID  string       `json:"submissionId"`
	CriterionID   string       `json:"criterionId"`
	CriterionName string       `json:"criterionName"`
	Score         *float64     `json:"score"`
	Status        judge.Status `json:"status"`
	Explanation   string       `json:"explanation"`
}

// StatusCounts is the distribution of judgment outcomes.
type StatusCounts struct {
	Supported          int `json:"supported"`
	PartiallySupported int `json:"partiallySupported"`
	NotSupported       int `json:"notSupported"`
}

// Summary is the session-wide aggregate over all graded criteria.
type Summary struct {
	SubmissionsGraded int `json:"submissionsGraded"`

	// AverageScore is the mean of the timeline totals, 0 with no submissions.
	AverageScore float64 `json:"averageScore"`

	// ValidityRate is supported/totalValidated*100, 0 with no validations.
	ValidityRate float64 `json:"validityRate"`

	StatusCounts StatusCounts `json:"statusCounts"`

	Drift DriftLevel `json:"drift"`

	Criteria []CriterionSpread `json:"criteria"`
	Timeline []TimelinePoint   `json:"timeline"`
	HighRisk []RiskDecision    `json:"highRisk"`
}

// Summarize computes the session summary from a store snapshot. Only graded
// criteria with a non-nil score feed the ratio and dispersion statistics;
// the snapshot is never mutated.
func Summarize(snapshot []session.GradedSubmission, criteria []catalog.Criterion, policy RiskPolicy) *Summary {
	out := &Summary{
		SubmissionsGraded: len(snapshot),
		Drift:             DriftStable,
	}

	// Scores per criterion, in snapshot (grading) order.
	scoresByCriterion := make(map[string][]float64, len(criteria))
	var totalValidated, supported int
	for _, gs := range snapshot {
		for _, gc := range gs.Criteria {
			if gc.Score == nil {
				continue
			}
			scoresByCriterion[gc.CriterionID] = append(scoresByCriterion[gc.CriterionID], *gc.Score)
			if gc.Validation == nil {
				continue
			}
			totalValidated++
			switch gc.Validation.Status {
			case judge.StatusSupported:
				supported++
				out.StatusCounts.Supported++
			case judge.StatusPartiallySupported:
				out.StatusCounts.PartiallySupported++
			case judge.StatusNotSupported:
				out.StatusCounts.NotSupported++
			}
		}
	}

	if totalValidated > 0 {
		out.ValidityRate = float64(supported) / float64(totalValidated) * 100
	}

	// Per-criterion dispersion.
	maxPoints := make(map[string]float64, len(criteria))
	means := make(map[string]float64, len(criteria))
	for _, rc := range criteria {
		maxPoints[rc.ID] = rc.MaxPoints
		scores := scoresByCriterion[rc.ID]
		spread := CriterionSpread{
			CriterionID:      rc.ID,
			Name:             rc.Name,
			Samples:          len(scores),
			InsufficientData: len(scores) < 2,
		}
		if len(scores) > 0 {
			spread.Mean = mean(scores)
			means[rc.ID] = spread.Mean
		}
		if len(scores) >= 2 {
			spread.Variance = populationVariance(scores, spread.Mean)
			spread.Stability = math.Sqrt(spread.Variance)
		}
		out.Criteria = append(out.Criteria, spread)
	}

	// Timeline and average score.
	var grandTotal float64
	for _, gs := range snapshot {
		point := TimelinePoint{SubmissionID: gs.SubmissionID, Complete: true}
		for _, gc := range gs.Criteria {
			if gc.Score != nil {
				point.Total += *gc.Score
			}
			if !gc.Complete() {
				point.Complete = false
			}
		}
		grandTotal += point.Total
		out.Timeline = append(out.Timeline, point)
	}
	if len(out.Timeline) > 0 {
		out.AverageScore = grandTotal / float64(len(out.Timeline))
	}

	out.Drift = driftLevel(snapshot, scoresByCriterion, means, maxPoints)
	out.HighRisk = highRisk(snapshot, criteria, means, policy)

	return out
}

// driftLevel classifies overall consistency from the mean normalized
// deviation of each graded score against its criterion's session mean.
// Criteria with fewer than two samples contribute nothing.
func driftLevel(snapshot []session.GradedSubmission, scoresByCriterion map[string][]float64, means, maxPoints map[string]float64) DriftLevel {
	var totalDeviation float64
	var graded int
	for _, gs := range snapshot {
		for _, gc := range gs.Criteria {
			if gc.Score == nil {
				continue
			}
			graded++
			if len(scoresByCriterion[gc.CriterionID]) < 2 {
				continue
			}
			mp := maxPoints[gc.CriterionID]
			if mp <= 0 {
				continue
			}
			totalDeviation += math.Abs(*gc.Score-means[gc.CriterionID]) / mp
		}
	}
	if graded == 0 {
		return DriftStable
	}

	avgDeviationPct := totalDeviation / float64(graded) * 100
	switch {
	case avgDeviationPct > highDriftPct:
		return DriftHigh
	case avgDeviationPct > moderateDriftPct:
		return DriftModerate
	default:
		return DriftStable
	}
}

// highRisk collects the decisions a reviewer should double-check.
func highRisk(snapshot []session.GradedSubmission, criteria []catalog.Criterion, means map[string]float64, policy RiskPolicy) []RiskDecision {
	names := make(map[string]string, len(criteria))
	maxPoints := make(map[string]float64, len(criteria))
	for _, rc := range criteria {
		names[rc.ID] = rc.Name
		maxPoints[rc.ID] = rc.MaxPoints
	}

	var out []RiskDecision
	for _, gs := range snapshot {
		for _, gc := range gs.Criteria {
			if gc.Score == nil || gc.Validation == nil {
				continue
			}
			include := false
			switch gc.Validation.Status {
			case judge.StatusNotSupported:
				include = true
			case judge.StatusPartiallySupported:
				mp := maxPoints[gc.CriterionID]
				if mp > 0 {
					deviation := math.Abs(*gc.Score-means[gc.CriterionID]) / mp
					include = deviation > policy.PartialDeviation
				}
			}
			if !include {
				continue
			}
			score := *gc.Score
			out = append(out, RiskDecision{
				SubmissionID:  gs.SubmissionID,
				CriterionID:   gc.CriterionID,
				CriterionName: names[gc.CriterionID],
				Score:         &score,
				Status:        gc.Validation.Status,
				Explanation:   gc.Explanation,
			})
		}
	}
	return out
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func populationVariance(values []float64, mean float64) float64 {
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(values))
}
