package judge

import (
	"fmt"
	"strings"
)

// buildPrompt renders the validation prompt for one grading decision.
func buildPrompt(req Request) string {
	var sb strings.Builder

	sb.WriteString("You are RubricGuard AI, an expert assistant for academic grading. ")
	sb.WriteString("Your task is to validate a grader's assessment of a student submission against a specific rubric criterion. Be objective and concise.\n\n")

	sb.WriteString("**Student Submission Text:**\n---\n")
	sb.WriteString(req.SubmissionText)
	sb.WriteString("\n---\n\n")

	sb.WriteString("**Rubric Criterion:**\n")
	fmt.Fprintf(&sb, "- Name: %q\n", req.Criterion.Name)
	fmt.Fprintf(&sb, "- Description: %q\n", req.Criterion.Description)
	fmt.Fprintf(&sb, "- Max Points: %g\n\n", req.Criterion.MaxPoints)

	sb.WriteString("**Grader's Assessment:**\n")
	fmt.Fprintf(&sb, "- Score: %g / %g\n", req.Score, req.Criterion.MaxPoints)
	fmt.Fprintf(&sb, "- Justification: %q\n\n", req.Explanation)

	sb.WriteString("**Your Task:**\n")
	sb.WriteString("1. **Analyze Justification:** Does the grader's justification accurately reflect the content of the student's submission?\n")
	sb.WriteString("2. **Analyze Score:** Is the score provided by the grader consistent with the rubric description, the submission content, and their own justification? A low score should correspond to weaknesses mentioned, and a high score to strengths.\n")
	sb.WriteString("3. **Provide Feedback:** Based on your analysis, return a JSON object with your findings. The 'referencedExcerpt' must be an exact quote from the submission.\n\n")

	sb.WriteString("Respond ONLY with a valid JSON object with these fields:\n")
	sb.WriteString(`{"status": "Supported" | "Partially Supported" | "Not Supported", "referencedExcerpt": string, "reasoning": string, "suggestedRefinement": string}`)

	return sb.String()
}
