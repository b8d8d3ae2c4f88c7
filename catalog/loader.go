package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk YAML shape of a catalog.
type File struct {
	Assignments []Assignment `yaml:"assignments"`
	Criteria    []Criterion  `yaml:"criteria"`
	Submissions []Submission `yaml:"submissions"`
}

// LoadFromFile loads and validates a catalog from a YAML file.
func LoadFromFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	cat, err := New(f.Assignments, f.Criteria, f.Submissions)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	return cat, nil
}

// Seed returns the built-in demo catalog, used when no catalog file is
// configured.
func Seed() *Catalog {
	cat, err := New(seedAssignments, seedCriteria, seedSubmissions)
	if err != nil {
		// Seed data is compiled in and validated by tests.
		panic(fmt.Sprintf("invalid seed catalog: %v", err))
	}
	return cat
}

var seedAssignments = []Assignment{
	{ID: "A1", Course: "BUS302", Title: "Case Analysis 1: Strategic Pivot", RubricVersion: "v1.0"},
}

var seedCriteria = []Criterion{
	{
		ID:           "C1",
		AssignmentID: "A1",
		Name:         "Argument Clarity",
		Description:  "Thesis is clear, argments are well-structured, and reasoning is logical. The core argument should be identifiable within the first paragraph and consistently referenced.",
		MaxPoints:    25,
		Weight:       0.25,
	},
	{
		ID:           "C2",
		AssignmentID: "A1",
		Name:         "Evidence Use",
		Description:  "Effectively integrates and analyzes credible sources to support claims. Evidence should not just be stated but explained in the context of the argument.",
		MaxPoints:    25,
		Weight:       0.25,
	},
	{
		ID:           "C3",
		AssignmentID: "A1",
		Name:         "Critical Analysis",
		Description:  "Goes beyond surface-level description to offer insightful analysis of the case. Considers counterarguments and nuances of the situation.",
		MaxPoints:    30,
		Weight:       0.30,
	},
	{
		ID:           "C4",
		AssignmentID: "A1",
		Name:         "Professionalism & Formatting",
		Description:  "Writing is clear, concise, and free of errors. Formatting follows specified guidelines (e.g., APA, MLA).",
		MaxPoints:    20,
		Weight:       0.20,
	},
}

var seedSubmissions = []Submission{
	{
		ID:           "S1",
		AssignmentID: "A1",
		StudentID:    "STU001",
		Content:      "The central argument of this analysis is that the firm should pivot to a subscription-based pricing model. This is because recurring revenue streams offer greater financial stability and predictability. For example, similar companies in the sector saw a 40% increase in valuation post-transition. The current model is too dependent on one-time large purchases, which creates significant cash flow volatility. While the analysis identifies market trends, it fails to connect them directly to the firm's core competencies. A subscription model aligns better with our agile production capabilities. The transition would require significant marketing investment, but the long-term payoff justifies the initial risk.",
		GradingOrder: 1,
	},
	{
		ID:           "S2",
		AssignmentID: "A1",
		StudentID:    "STU002",
		Content:      "This paper argues against the proposed pivot. The primary reason is the established brand identity, which is built on high-value, single-purchase products. A shift to subscriptions could dilute this brand equity. Furthermore, the existing customer base is not accustomed to this model and may churn. While some competitors have succeeded, our market research indicates our customers prefer ownership over access. The evidence presented in favor of the pivot is largely based on different market segments. Instead of a full pivot, a hybrid model should be considered, offering a premium subscription tier for services while retaining the core product sales. This balances innovation with risk management. The analysis is strong but the recommendation is weak.",
		GradingOrder: 2,
	},
	{
		ID:           "S3",
		AssignmentID: "A1",
		StudentID:    "STU003",
		Content:      "Market trends clearly indicate a shift towards service-based economies. The firm's reluctance to adapt is a significant strategic error. Subscription models are the future. The firm must pivot immediately to remain competitive. The logic is simple: follow the market or become obsolete. Many examples show this to be true. The implementation details are secondary to the strategic imperative. This is the only way forward.",
		GradingOrder: 3,
	},
}
