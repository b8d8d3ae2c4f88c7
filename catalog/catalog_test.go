package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFixture() ([]Assignment, []Criterion, []Submission) {
	assignments := []Assignment{
		{ID: "A1", Course: "BUS302", Title: "Case Analysis", RubricVersion: "v1.0"},
	}
	criteria := []Criterion{
		{ID: "C1", AssignmentID: "A1", Name: "Clarity", MaxPoints: 50, Weight: 0.5},
		{ID: "C2", AssignmentID: "A1", Name: "Evidence", MaxPoints: 50, Weight: 0.5},
	}
	submissions := []Submission{
		{ID: "S2", AssignmentID: "A1", StudentID: "STU002", Content: "second", GradingOrder: 2},
		{ID: "S1", AssignmentID: "A1", StudentID: "STU001", Content: "first", GradingOrder: 1},
	}
	return assignments, criteria, submissions
}

func TestNewValidCatalog(t *testing.T) {
	assignments, criteria, submissions := validFixture()

	cat, err := New(assignments, criteria, submissions)
	require.NoError(t, err)

	a, ok := cat.Assignment("A1")
	assert.True(t, ok)
	assert.Equal(t, "BUS302", a.Course)

	c, ok := cat.Criterion("C2")
	assert.True(t, ok)
	assert.Equal(t, "Evidence", c.Name)

	_, ok = cat.Criterion("missing")
	assert.False(t, ok)
}

func TestNewIntegrityChecks(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*[]Assignment, *[]Criterion, *[]Submission)
		wantErr string
	}{
		{
			name: "weights must sum to one",
			mutate: func(_ *[]Assignment, criteria *[]Criterion, _ *[]Submission) {
				(*criteria)[0].Weight = 0.3
			},
			wantErr: "weights sum to",
		},
		{
			name: "max points must be positive",
			mutate: func(_ *[]Assignment, criteria *[]Criterion, _ *[]Submission) {
				(*criteria)[0].MaxPoints = 0
			},
			wantErr: "max_points must be positive",
		},
		{
			name: "criterion references unknown assignment",
			mutate: func(_ *[]Assignment, criteria *[]Criterion, _ *[]Submission) {
				(*criteria)[0].AssignmentID = "A9"
			},
			wantErr: "unknown assignment",
		},
		{
			name: "submission references unknown assignment",
			mutate: func(_ *[]Assignment, _ *[]Criterion, submissions *[]Submission) {
				(*submissions)[0].AssignmentID = "A9"
			},
			wantErr: "unknown assignment",
		},
		{
			name: "duplicate criterion id",
			mutate: func(_ *[]Assignment, criteria *[]Criterion, _ *[]Submission) {
				(*criteria)[1].ID = "C1"
			},
			wantErr: "duplicate criterion id",
		},
		{
			name: "duplicate grading order",
			mutate: func(_ *[]Assignment, _ *[]Criterion, submissions *[]Submission) {
				(*submissions)[0].GradingOrder = 1
			},
			wantErr: "duplicate grading_order",
		},
		{
			name: "weight out of range",
			mutate: func(_ *[]Assignment, criteria *[]Criterion, _ *[]Submission) {
				(*criteria)[0].Weight = 1.5
			},
			wantErr: "weight must be in",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assignments, criteria, submissions := validFixture()
			tt.mutate(&assignments, &criteria, &submissions)

			_, err := New(assignments, criteria, submissions)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWeightSumTolerance(t *testing.T) {
	// Three equal thirds never sum to exactly 1 in floating point.
	assignments := []Assignment{{ID: "A1"}}
	criteria := []Criterion{
		{ID: "C1", AssignmentID: "A1", MaxPoints: 10, Weight: 1.0 / 3.0},
		{ID: "C2", AssignmentID: "A1", MaxPoints: 10, Weight: 1.0 / 3.0},
		{ID: "C3", AssignmentID: "A1", MaxPoints: 10, Weight: 1.0 / 3.0},
	}

	_, err := New(assignments, criteria, nil)
	assert.NoError(t, err)
}

func TestSubmissionsForSortedByGradingOrder(t *testing.T) {
	assignments, criteria, submissions := validFixture()
	cat, err := New(assignments, criteria, submissions)
	require.NoError(t, err)

	got := cat.SubmissionsFor("A1")
	require.Len(t, got, 2)
	assert.Equal(t, "S1", got[0].ID)
	assert.Equal(t, "S2", got[1].ID)

	assert.Empty(t, cat.SubmissionsFor("A9"))
}

func TestSeedCatalog(t *testing.T) {
	cat := Seed()

	assignments := cat.Assignments()
	require.Len(t, assignments, 1)
	assert.Equal(t, "A1", assignments[0].ID)

	criteria := cat.CriteriaFor("A1")
	require.Len(t, criteria, 4)

	var totalWeight float64
	for _, c := range criteria {
		totalWeight += c.Weight
	}
	assert.InDelta(t, 1.0, totalWeight, 0.001)

	submissions := cat.SubmissionsFor("A1")
	require.Len(t, submissions, 3)
	for i, s := range submissions {
		assert.Equal(t, i+1, s.GradingOrder)
	}
}
