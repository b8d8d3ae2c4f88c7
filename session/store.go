// Package session holds the in-memory grading state for one active grading
// session. The Store is the single source of truth: graded criteria live
// here and nowhere else, and all reads are consistent deep-copied snapshots.
package session

import (
	"strings"
	"sync"

	"github.com/rubricguard/rubricguard/catalog"
	"github.com/rubricguard/rubricguard/judge"
)

// GradedCriterion is the grader's evolving decision for one rubric
// criterion on one submission. Score is nil until the grader enters one.
type GradedCriterion struct {
	CriterionID        string          `json:"criterionId"`
	Score              *float64        `json:"score"`
	Explanation        string          `json:"explanation"`
	HighlightedExcerpt string          `json:"highlightedExcerpt,omitempty"`
	Validation         *judge.Judgment `json:"validation"`
}

// Complete reports whether the criterion is fully graded: a score is
// present and the explanation is non-empty after trimming.
func (gc GradedCriterion) Complete() bool {
	return gc.Score != nil && strings.TrimSpace(gc.Explanation) != ""
}

// GradedSubmission is one submission's graded criteria, one per rubric
// criterion, in rubric order.
type GradedSubmission struct {
	SubmissionID string            `json:"submissionId"`
	Criteria     []GradedCriterion `json:"criteria"`
}

// Field is one mutation applied to a GradedCriterion by Update.
type Field func(*GradedCriterion)

// SetScore sets the score. nil clears it back to ungraded.
func SetScore(score *float64) Field {
	return func(gc *GradedCriterion) {
		if score == nil {
			gc.Score = nil
			return
		}
		v := *score
		gc.Score = &v
	}
}

// SetExplanation sets the written justification.
func SetExplanation(explanation string) Field {
	return func(gc *GradedCriterion) {
		gc.Explanation = explanation
	}
}

// SetHighlight attaches a highlighted excerpt of the submission. An empty
// string detaches it.
func SetHighlight(excerpt string) Field {
	return func(gc *GradedCriterion) {
		gc.HighlightedExcerpt = excerpt
	}
}

// SetValidation stores a judgment result. nil clears any cached judgment,
// which is what the dispatcher does when a validation request fails.
func SetValidation(j *judge.Judgment) Field {
	return func(gc *GradedCriterion) {
		if j == nil {
			gc.Validation = nil
			return
		}
		v := *j
		gc.Validation = &v
	}
}

// Store owns all grading state for the active session. A single grader
// drives writes, but the dispatcher's completion callbacks arrive from other
// goroutines, so access is serialized with a mutex.
type Store struct {
	mu          sync.RWMutex
	submissions []GradedSubmission
	index       map[string]int // submission id → position in submissions
	version     uint64
	subscribers []chan struct{}
}

// NewStore initializes grading state: one GradedSubmission per submission in
// grading order, each with one null-scored GradedCriterion per rubric
// criterion in rubric order.
func NewStore(submissions []catalog.Submission, criteria []catalog.Criterion) *Store {
	s := &Store{
		index: make(map[string]int, len(submissions)),
	}
	for i, sub := range submissions {
		gs := GradedSubmission{
			SubmissionID: sub.ID,
			Criteria:     make([]GradedCriterion, 0, len(criteria)),
		}
		for _, rc := range criteria {
			gs.Criteria = append(gs.Criteria, GradedCriterion{CriterionID: rc.ID})
		}
		s.submissions = append(s.submissions, gs)
		s.index[sub.ID] = i
	}
	return s
}

// Update applies fields to the matching GradedCriterion. Unknown submission
// or criterion ids are a silent no-op: stale references from a swapped
// catalog must not crash the session. Returns whether a write happened.
func (s *Store) Update(submissionID, criterionID string, fields ...Field) bool {
	s.mu.Lock()

	i, ok := s.index[submissionID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	gs := &s.submissions[i]
	for j := range gs.Criteria {
		if gs.Criteria[j].CriterionID != criterionID {
			continue
		}
		for _, f := range fields {
			f(&gs.Criteria[j])
		}
		s.version++
		s.mu.Unlock()
		s.notify()
		return true
	}
	s.mu.Unlock()
	return false
}

// Get returns a deep copy of one submission's grading state.
func (s *Store) Get(submissionID string) (GradedSubmission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[submissionID]
	if !ok {
		return GradedSubmission{}, false
	}
	return copySubmission(s.submissions[i]), true
}

// Snapshot returns a deep copy of the full session state in grading order.
// Callers can read and pass it around freely; it never aliases store-owned
// memory.
func (s *Store) Snapshot() []GradedSubmission {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]GradedSubmission, 0, len(s.submissions))
	for _, gs := range s.submissions {
		out = append(out, copySubmission(gs))
	}
	return out
}

// CompletionStatus reports whether every criterion of the submission is
// complete. This gates advancing to the next submission. Unknown submission
// ids report false.
func (s *Store) CompletionStatus(submissionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[submissionID]
	if !ok {
		return false
	}
	for _, gc := range s.submissions[i].Criteria {
		if !gc.Complete() {
			return false
		}
	}
	return true
}

// Version returns the store's change counter. It increments on every
// successful Update, so consumers can cheaply detect staleness.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Subscribe returns a channel that receives a coalesced signal after each
// write. Slow consumers miss intermediate signals, never writes: they can
// always catch up via Snapshot.
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

// notify signals all subscribers without blocking on any of them.
func (s *Store) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func copySubmission(gs GradedSubmission) GradedSubmission {
	out := GradedSubmission{
		SubmissionID: gs.SubmissionID,
		Criteria:     make([]GradedCriterion, len(gs.Criteria)),
	}
	copy(out.Criteria, gs.Criteria)
	for i := range out.Criteria {
		if sc := out.Criteria[i].Score; sc != nil {
			v := *sc
			out.Criteria[i].Score = &v
		}
		if val := out.Criteria[i].Validation; val != nil {
			v := *val
			out.Criteria[i].Validation = &v
		}
	}
	return out
}
