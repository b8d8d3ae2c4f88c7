package judge

import (
	"context"
	"strings"
	"time"
)

// Stub is a deterministic local judgment service for environments without
// live model access. It returns a syntactically valid judgment derived from
// simple heuristics over the request, so the rest of the validation pipeline
// stays testable offline.
type Stub struct {
	// Latency simulates service response time. Zero means respond
	// immediately.
	Latency time.Duration
}

var _ Interface = (*Stub)(nil)

// Judge returns a canned judgment after the configured latency. The status
// heuristics mirror the hosted service's demo behavior: a low score paired
// with praise reads as partially supported, a high score paired with
// criticism as unsupported.
func (s *Stub) Judge(ctx context.Context, req Request) (*Judgment, error) {
	if s.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.Latency):
		}
	}

	status := StatusSupported
	if req.Score < 15 && strings.Contains(req.Explanation, "excellent") {
		status = StatusPartiallySupported
	}
	if req.Score > 20 && strings.Contains(req.Explanation, "poor") {
		status = StatusNotSupported
	}

	return &Judgment{
		Status:              status,
		ReferencedExcerpt:   firstSentence(req.SubmissionText),
		Reasoning:           "The justification aligns with the provided text, but the sentiment could be stronger.",
		SuggestedRefinement: "Consider quoting the submission directly to bolster your point.",
	}, nil
}

// firstSentence returns the first sentence of text, so the stub's referenced
// excerpt is a verbatim substring of the submission like a real judgment's.
func firstSentence(text string) string {
	if i := strings.IndexByte(text, '.'); i >= 0 {
		return text[:i+1]
	}
	return text
}
