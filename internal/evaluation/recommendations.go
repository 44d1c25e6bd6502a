package evaluation

import (
	"fmt"

	"github.com/rolecraft/turneval/internal/model"
)

// contextReviewThreshold is the number of context issues above which a
// context review is recommended.
const contextReviewThreshold = 2

// Recommend turns issues into an ordered list of human-readable actions.
// It never returns an empty list.
func Recommend(issues []model.EvaluationIssue) []string {
	var critical, high, medium, contextIssues, stateIssues int
	for _, iss := range issues {
		switch iss.Severity {
		case model.SeverityCritical:
			critical++
		case model.SeverityHigh:
			high++
		case model.SeverityMedium:
			medium++
		}
		switch iss.Category {
		case model.DimensionContext:
			contextIssues++
		case model.DimensionState:
			stateIssues++
		}
	}

	var recs []string
	if critical > 0 {
		recs = append(recs, fmt.Sprintf("URGENT: resolve %d critical issue(s) before shipping this agent", critical))
	}
	if high > 0 {
		recs = append(recs, fmt.Sprintf("Fix %d high-severity issue(s) to improve response quality", high))
	}
	if medium > 0 {
		recs = append(recs, fmt.Sprintf("Address %d medium-severity issue(s) to improve consistency", medium))
	}
	if contextIssues > contextReviewThreshold {
		recs = append(recs, "Review the prompt context: the agent is missing information or receiving too much of it")
	}
	if stateIssues > 0 {
		recs = append(recs, "Review data store updates and the flow schema for type and increment errors")
	}
	if len(recs) == 0 {
		recs = append(recs, "No major issues detected. The response looks good.")
	}
	return recs
}
