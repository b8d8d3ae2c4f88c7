// Package dispatch drives asynchronous validation of grading decisions.
// It watches (score, explanation) edits per criterion card, debounces them,
// and issues judgment requests whose responses are written back to the
// session store unless a newer edit has made them stale.
package dispatch

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rubricguard/rubricguard/catalog"
	"github.com/rubricguard/rubricguard/judge"
	"github.com/rubricguard/rubricguard/session"
)

// Phase is the transient validation state of one criterion card.
type Phase string

const (
	PhaseUnvalidated        Phase = "Unvalidated"
	PhaseValidating         Phase = "Validating"
	PhaseSupported          Phase = "Supported"
	PhasePartiallySupported Phase = "Partially Supported"
	PhaseNotSupported       Phase = "Not Supported"
	PhaseError              Phase = "Error"
)

// phaseFor maps a judgment status onto the matching terminal phase.
func phaseFor(status judge.Status) Phase {
	switch status {
	case judge.StatusSupported:
		return PhaseSupported
	case judge.StatusPartiallySupported:
		return PhasePartiallySupported
	case judge.StatusNotSupported:
		return PhaseNotSupported
	default:
		return PhaseError
	}
}

// Config configures the dispatcher.
type Config struct {
	// DebounceWindow is how long both fields must stay quiet before a
	// validation request fires.
	DebounceWindow time.Duration

	// MinExplanationLength is the trimmed explanation length that must be
	// exceeded before dispatching.
	MinExplanationLength int

	// Logger for logging events
	Logger *slog.Logger
}

// cardKey identifies one criterion card: a submission×criterion pair.
type cardKey struct {
	submissionID string
	criterionID  string
}

// card tracks the debounce and dispatch state for one criterion card.
type card struct {
	submission catalog.Submission
	criterion  catalog.Criterion

	// Latest edited values; the debounce timer always dispatches these.
	score       string
	explanation string

	// edits increments on every edit to either field; in-flight requests
	// carry the value at dispatch time and responses with an older stamp
	// are discarded.
	edits uint64

	timer *time.Timer
	phase Phase
}

// Dispatcher runs the per-card debounce state machines. A single shared
// timer per card is reset on every edit to either field, so the request
// fires only once both fields have been quiet for the full window.
type Dispatcher struct {
	judge  judge.Interface
	store  *session.Store
	config Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	cards map[cardKey]*card

	// inFlight tracks outstanding judgment calls for Close.
	inFlight sync.WaitGroup
}

// NewDispatcher creates a dispatcher writing judgment results into store.
func NewDispatcher(j judge.Interface, store *session.Store, config Config) *Dispatcher {
	if config.DebounceWindow == 0 {
		config.DebounceWindow = 700 * time.Millisecond
	}
	if config.MinExplanationLength == 0 {
		config.MinExplanationLength = 10
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		judge:  j,
		store:  store,
		config: config,
		logger: config.Logger,
		ctx:    ctx,
		cancel: cancel,
		cards:  make(map[cardKey]*card),
	}
}

// Observe records an edit to a criterion card's score or explanation and
// resets its debounce timer. score is the raw text of the score field; it
// only dispatches once it parses to a finite number.
func (d *Dispatcher) Observe(sub catalog.Submission, crit catalog.Criterion, score, explanation string) {
	key := cardKey{submissionID: sub.ID, criterionID: crit.ID}

	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.cards[key]
	if !ok {
		c = &card{phase: PhaseUnvalidated}
		d.cards[key] = c
	}
	c.submission = sub
	c.criterion = crit
	c.score = score
	c.explanation = explanation
	c.edits++

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(d.config.DebounceWindow, func() {
		d.fire(key)
	})
}

// Phase returns the validation phase of one criterion card.
func (d *Dispatcher) Phase(submissionID, criterionID string) Phase {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.cards[cardKey{submissionID: submissionID, criterionID: criterionID}]; ok {
		return c.phase
	}
	return PhaseUnvalidated
}

// Phases returns the phases of all cards for one submission, keyed by
// criterion id. Cards never edited are absent (implicitly Unvalidated).
func (d *Dispatcher) Phases(submissionID string) map[string]Phase {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]Phase)
	for key, c := range d.cards {
		if key.submissionID == submissionID {
			out[key.criterionID] = c.phase
		}
	}
	return out
}

// Close stops all pending timers and waits for in-flight judgment calls to
// drain. Late responses after Close are discarded via context cancellation.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	for _, c := range d.cards {
		if c.timer != nil {
			c.timer.Stop()
		}
	}
	d.mu.Unlock()

	d.cancel()
	d.inFlight.Wait()
}

// fire runs when a card's debounce window elapses with no further edits.
func (d *Dispatcher) fire(key cardKey) {
	d.mu.Lock()
	c, ok := d.cards[key]
	if !ok {
		d.mu.Unlock()
		return
	}

	scoreNum, err := strconv.ParseFloat(strings.TrimSpace(c.score), 64)
	validScore := err == nil && !math.IsInf(scoreNum, 0) && !math.IsNaN(scoreNum)
	if !validScore || len(strings.TrimSpace(c.explanation)) <= d.config.MinExplanationLength {
		// Precondition not met; leave the phase as-is and wait for more edits.
		d.mu.Unlock()
		return
	}

	stamp := c.edits
	req := judge.Request{
		SubmissionText: c.submission.Content,
		Criterion:      c.criterion,
		Score:          scoreNum,
		Explanation:    c.explanation,
	}
	c.phase = PhaseValidating
	d.mu.Unlock()

	validationsTotal.Inc()
	validationsInFlight.Inc()
	d.inFlight.Add(1)
	go func() {
		defer d.inFlight.Done()
		defer validationsInFlight.Dec()

		result, err := d.judge.Judge(d.ctx, req)
		d.resolve(key, stamp, result, err)
	}()
}

// resolve applies a judgment response to the card, unless the response is
// stale: any edit after dispatch supersedes the request, and the late
// response must not overwrite state that belongs to newer input.
func (d *Dispatcher) resolve(key cardKey, stamp uint64, result *judge.Judgment, err error) {
	d.mu.Lock()
	c, ok := d.cards[key]
	if !ok || c.edits != stamp {
		d.mu.Unlock()
		staleDropped.Inc()
		d.logger.Debug("Discarding stale judgment response",
			"submission", key.submissionID,
			"criterion", key.criterionID)
		return
	}

	if err != nil {
		c.phase = PhaseError
		d.mu.Unlock()
		validationFailures.Inc()
		d.logger.Warn("Validation request failed",
			"submission", key.submissionID,
			"criterion", key.criterionID,
			"error", err)
		// A failed validation clears any stale judgment; the grader can
		// still proceed, validation is advisory.
		d.store.Update(key.submissionID, key.criterionID, session.SetValidation(nil))
		return
	}

	c.phase = phaseFor(result.Status)
	d.mu.Unlock()

	d.logger.Debug("Validation resolved",
		"submission", key.submissionID,
		"criterion", key.criterionID,
		"status", result.Status)
	d.store.Update(key.submissionID, key.criterionID, session.SetValidation(result))
}
