// Package workspace orchestrates one grading session: it wires the catalog,
// the session store, the validation dispatcher, and the analytics together
// and enforces the grading traversal rules.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/rubricguard/rubricguard/analytics"
	"github.com/rubricguard/rubricguard/catalog"
	"github.com/rubricguard/rubricguard/dispatch"
	"github.com/rubricguard/rubricguard/judge"
	"github.com/rubricguard/rubricguard/session"
)

var (
	// ErrIncompleteSubmission is returned when advancing past or finalizing
	// a submission that still has ungraded criteria.
	ErrIncompleteSubmission = errors.New("current submission is not fully graded")

	// ErrAtBoundary is returned when navigating before the first or past
	// the last submission.
	ErrAtBoundary = errors.New("no submission in that direction")

	// ErrFinalized is returned for writes after Finalize.
	ErrFinalized = errors.New("session already finalized")

	// ErrUnknownCriterion is returned when a criterion id is not part of
	// the assignment's rubric.
	ErrUnknownCriterion = errors.New("unknown criterion")
)

// Config configures a workspace session.
type Config struct {
	Dispatch dispatch.Config
	Risk     analytics.RiskPolicy
	Logger   *slog.Logger
}

// Workspace is one active grading session over one assignment. A single
// grader drives it; all state is discarded when the session ends.
type Workspace struct {
	id          string
	assignment  catalog.Assignment
	criteria    []catalog.Criterion
	submissions []catalog.Submission

	store      *session.Store
	dispatcher *dispatch.Dispatcher
	policy     analytics.RiskPolicy
	logger     *slog.Logger

	mu        sync.Mutex
	current   int
	finalized bool
}

// New starts a grading session for the assignment: grading state is
// initialized with null scores for every submission×criterion pair, and the
// grader is positioned on the first submission in grading order.
func New(cat *catalog.Catalog, j judge.Interface, assignmentID string, config Config) (*Workspace, error) {
	assignment, ok := cat.Assignment(assignmentID)
	if !ok {
		return nil, fmt.Errorf("unknown assignment %q", assignmentID)
	}

	criteria := cat.CriteriaFor(assignmentID)
	if len(criteria) == 0 {
		return nil, fmt.Errorf("assignment %q has no rubric criteria", assignmentID)
	}
	submissions := cat.SubmissionsFor(assignmentID)
	if len(submissions) == 0 {
		return nil, fmt.Errorf("assignment %q has no submissions", assignmentID)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Risk.PartialDeviation == 0 {
		config.Risk = analytics.DefaultRiskPolicy()
	}

	store := session.NewStore(submissions, criteria)
	config.Dispatch.Logger = logger

	w := &Workspace{
		id:          uuid.New().String(),
		assignment:  assignment,
		criteria:    criteria,
		submissions: submissions,
		store:       store,
		dispatcher:  dispatch.NewDispatcher(j, store, config.Dispatch),
		policy:      config.Risk,
		logger:      logger,
	}

	logger.Info("Grading session started",
		"session", w.id,
		"assignment", assignmentID,
		"submissions", len(submissions),
		"criteria", len(criteria))
	return w, nil
}

// ID returns the session identifier.
func (w *Workspace) ID() string { return w.id }

// Assignment returns the assignment being graded.
func (w *Workspace) Assignment() catalog.Assignment { return w.assignment }

// Criteria returns the assignment's rubric criteria in rubric order.
func (w *Workspace) Criteria() []catalog.Criterion {
	out := make([]catalog.Criterion, len(w.criteria))
	copy(out, w.criteria)
	return out
}

// Current returns the submission currently being graded and its position
// (0-based) in the grading order.
func (w *Workspace) Current() (catalog.Submission, int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submissions[w.current], w.current, len(w.submissions)
}

// Store exposes the session store for read-side consumers.
func (w *Workspace) Store() *session.Store { return w.store }

// UpdateCriterion records an edit to a criterion of the current submission:
// the store is updated, the validation dispatcher observes the new values,
// and the consistency of the proposed score against earlier submissions is
// re-evaluated. scoreText is the raw score field text; empty or unparseable
// text clears the score. The returned alert is nil when the score is
// consistent (or absent).
func (w *Workspace) UpdateCriterion(criterionID, scoreText, explanation string) (*analytics.Alert, error) {
	w.mu.Lock()
	if w.finalized {
		w.mu.Unlock()
		return nil, ErrFinalized
	}
	sub := w.submissions[w.current]
	currentIdx := w.current
	w.mu.Unlock()

	crit, ok := w.criterion(criterionID)
	if !ok {
		return nil, ErrUnknownCriterion
	}

	score, hasScore := parseScore(scoreText)
	var scorePtr *float64
	if hasScore {
		scorePtr = &score
	}
	w.store.Update(sub.ID, criterionID,
		session.SetScore(scorePtr),
		session.SetExplanation(explanation),
	)

	w.dispatcher.Observe(sub, crit, scoreText, explanation)

	if !hasScore {
		return nil, nil
	}
	// Only submissions graded before the current one feed the prior set;
	// later ones do not exist from the grader's point of view.
	prior := w.store.Snapshot()[:currentIdx]
	return analytics.CheckConsistency(score, crit, prior), nil
}

// AttachHighlight attaches a highlighted excerpt of the current submission
// to a criterion. An empty excerpt detaches it.
func (w *Workspace) AttachHighlight(criterionID, excerpt string) error {
	w.mu.Lock()
	if w.finalized {
		w.mu.Unlock()
		return ErrFinalized
	}
	sub := w.submissions[w.current]
	w.mu.Unlock()

	if _, ok := w.criterion(criterionID); !ok {
		return ErrUnknownCriterion
	}
	w.store.Update(sub.ID, criterionID, session.SetHighlight(excerpt))
	return nil
}

// Phases returns the validation phase per criterion id for the current
// submission. Criteria never edited are reported as Unvalidated.
func (w *Workspace) Phases() map[string]dispatch.Phase {
	w.mu.Lock()
	sub := w.submissions[w.current]
	w.mu.Unlock()

	phases := w.dispatcher.Phases(sub.ID)
	for _, rc := range w.criteria {
		if _, ok := phases[rc.ID]; !ok {
			phases[rc.ID] = dispatch.PhaseUnvalidated
		}
	}
	return phases
}

// Next advances to the next submission. The current submission must be
// complete: every criterion scored with a non-empty explanation.
func (w *Workspace) Next() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return ErrFinalized
	}
	if w.current >= len(w.submissions)-1 {
		return ErrAtBoundary
	}
	if !w.store.CompletionStatus(w.submissions[w.current].ID) {
		return ErrIncompleteSubmission
	}
	w.current++
	return nil
}

// Previous steps back to the prior submission. No completion gate: revising
// earlier work is always allowed.
func (w *Workspace) Previous() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return ErrFinalized
	}
	if w.current == 0 {
		return ErrAtBoundary
	}
	w.current--
	return nil
}

// LiveSummary computes the session analytics from the current store state.
// It is pure over a snapshot and cheap enough to call on every change.
func (w *Workspace) LiveSummary() *analytics.Summary {
	return analytics.Summarize(w.store.Snapshot(), w.criteria, w.policy)
}

// Finalize ends the session. The grader must be on the last submission and
// it must be complete. Returns the ordered graded submissions and the final
// session summary; afterwards all writes fail with ErrFinalized.
func (w *Workspace) Finalize() ([]session.GradedSubmission, *analytics.Summary, error) {
	w.mu.Lock()
	if w.finalized {
		w.mu.Unlock()
		return nil, nil, ErrFinalized
	}
	if w.current != len(w.submissions)-1 {
		w.mu.Unlock()
		return nil, nil, ErrIncompleteSubmission
	}
	last := w.submissions[w.current].ID
	w.mu.Unlock()

	if !w.store.CompletionStatus(last) {
		return nil, nil, ErrIncompleteSubmission
	}

	w.mu.Lock()
	w.finalized = true
	w.mu.Unlock()

	w.dispatcher.Close()

	snapshot := w.store.Snapshot()
	summary := analytics.Summarize(snapshot, w.criteria, w.policy)
	w.logger.Info("Grading session finalized",
		"session", w.id,
		"submissions", len(snapshot),
		"validity_rate", summary.ValidityRate)
	return snapshot, summary, nil
}

// Close tears the session down without finalizing; all grading state is
// discarded.
func (w *Workspace) Close() {
	w.mu.Lock()
	alreadyFinal := w.finalized
	w.finalized = true
	w.mu.Unlock()

	if !alreadyFinal {
		w.dispatcher.Close()
	}
	w.logger.Info("Grading session closed", "session", w.id)
}

func (w *Workspace) criterion(id string) (catalog.Criterion, bool) {
	for _, rc := range w.criteria {
		if rc.ID == id {
			return rc, true
		}
	}
	return catalog.Criterion{}, false
}

// parseScore interprets the raw score field text. Empty or unparseable text
// means "no score yet" rather than an error: the grader may still be typing.
func parseScore(text string) (float64, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
