// Package catalog provides the static assignment catalog: assignments,
// rubric criteria, and student submissions. The catalog is read-only after
// load; grading state never mutates it.
package catalog

import (
	"fmt"
	"math"
	"sort"
)

// weightEpsilon is the tolerance when checking that rubric weights sum to 1.
const weightEpsilon = 0.001

// Assignment is one gradable assignment with a versioned rubric.
type Assignment struct {
	ID            string `yaml:"id" json:"id"`
	Course        string `yaml:"course" json:"course"`
	Title         string `yaml:"title" json:"title"`
	RubricVersion string `yaml:"rubric_version" json:"rubric_version"`
}

// Criterion is one scored dimension of an assignment's rubric.
type Criterion struct {
	ID           string  `yaml:"id" json:"id"`
	AssignmentID string  `yaml:"assignment_id" json:"assignment_id"`
	Name         string  `yaml:"name" json:"name"`
	Description  string  `yaml:"description" json:"description"`
	MaxPoints    float64 `yaml:"max_points" json:"max_points"`
	Weight       float64 `yaml:"weight" json:"weight"`
}

// Submission is one student submission. GradingOrder defines the traversal
// sequence within an assignment and is unique per assignment.
type Submission struct {
	ID           string `yaml:"id" json:"id"`
	AssignmentID string `yaml:"assignment_id" json:"assignment_id"`
	StudentID    string `yaml:"student_id" json:"student_id"`
	Content      string `yaml:"content" json:"content"`
	GradingOrder int    `yaml:"grading_order" json:"grading_order"`
}

// Catalog is an immutable lookup over assignments, criteria, and submissions.
type Catalog struct {
	assignments []Assignment
	criteria    []Criterion
	submissions []Submission
}

// New builds a Catalog and runs load-time integrity checks. Integrity
// violations (dangling references, non-positive max points, duplicate
// grading order, weights not summing to 1) are errors here rather than
// silent runtime surprises.
func New(assignments []Assignment, criteria []Criterion, submissions []Submission) (*Catalog, error) {
	byAssignment := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		if a.ID == "" {
			return nil, fmt.Errorf("assignment with empty id")
		}
		if byAssignment[a.ID] {
			return nil, fmt.Errorf("duplicate assignment id %q", a.ID)
		}
		byAssignment[a.ID] = true
	}

	weightSums := make(map[string]float64)
	criterionIDs := make(map[string]bool, len(criteria))
	for _, c := range criteria {
		if c.ID == "" {
			return nil, fmt.Errorf("criterion with empty id (assignment %q)", c.AssignmentID)
		}
		if criterionIDs[c.ID] {
			return nil, fmt.Errorf("duplicate criterion id %q", c.ID)
		}
		criterionIDs[c.ID] = true
		if !byAssignment[c.AssignmentID] {
			return nil, fmt.Errorf("criterion %q references unknown assignment %q", c.ID, c.AssignmentID)
		}
		if c.MaxPoints <= 0 {
			return nil, fmt.Errorf("criterion %q: max_points must be positive, got %g", c.ID, c.MaxPoints)
		}
		if c.Weight <= 0 || c.Weight > 1 {
			return nil, fmt.Errorf("criterion %q: weight must be in (0, 1], got %g", c.ID, c.Weight)
		}
		weightSums[c.AssignmentID] += c.Weight
	}
	for assignmentID, sum := range weightSums {
		if math.Abs(sum-1) > weightEpsilon {
			return nil, fmt.Errorf("assignment %q: rubric weights sum to %g, want 1", assignmentID, sum)
		}
	}

	submissionIDs := make(map[string]bool, len(submissions))
	orders := make(map[string]map[int]bool)
	for _, s := range submissions {
		if s.ID == "" {
			return nil, fmt.Errorf("submission with empty id (assignment %q)", s.AssignmentID)
		}
		if submissionIDs[s.ID] {
			return nil, fmt.Errorf("duplicate submission id %q", s.ID)
		}
		submissionIDs[s.ID] = true
		if !byAssignment[s.AssignmentID] {
			return nil, fmt.Errorf("submission %q references unknown assignment %q", s.ID, s.AssignmentID)
		}
		if orders[s.AssignmentID] == nil {
			orders[s.AssignmentID] = make(map[int]bool)
		}
		if orders[s.AssignmentID][s.GradingOrder] {
			return nil, fmt.Errorf("assignment %q: duplicate grading_order %d", s.AssignmentID, s.GradingOrder)
		}
		orders[s.AssignmentID][s.GradingOrder] = true
	}

	return &Catalog{
		assignments: assignments,
		criteria:    criteria,
		submissions: submissions,
	}, nil
}

// Assignments returns all assignments in catalog order.
func (c *Catalog) Assignments() []Assignment {
	out := make([]Assignment, len(c.assignments))
	copy(out, c.assignments)
	return out
}

// Assignment looks up an assignment by id.
func (c *Catalog) Assignment(id string) (Assignment, bool) {
	for _, a := range c.assignments {
		if a.ID == id {
			return a, true
		}
	}
	return Assignment{}, false
}

// Criterion looks up a rubric criterion by id.
func (c *Catalog) Criterion(id string) (Criterion, bool) {
	for _, rc := range c.criteria {
		if rc.ID == id {
			return rc, true
		}
	}
	return Criterion{}, false
}

// CriteriaFor returns the rubric criteria for an assignment in catalog order.
func (c *Catalog) CriteriaFor(assignmentID string) []Criterion {
	var out []Criterion
	for _, rc := range c.criteria {
		if rc.AssignmentID == assignmentID {
			out = append(out, rc)
		}
	}
	return out
}

// SubmissionsFor returns an assignment's submissions sorted by grading order.
func (c *Catalog) SubmissionsFor(assignmentID string) []Submission {
	var out []Submission
	for _, s := range c.submissions {
		if s.AssignmentID == assignmentID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].GradingOrder < out[j].GradingOrder
	})
	return out
}

// Submission looks up a submission by id.
func (c *Catalog) Submission(id string) (Submission, bool) {
	for _, s := range c.submissions {
		if s.ID == id {
			return s, true
		}
	}
	return Submission{}, false
}
