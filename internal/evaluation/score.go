package evaluation

import (
	"math"

	"github.com/rolecraft/turneval/internal/model"
)

// Dimension weights of the overall score. They sum to 1.
const (
	weightBehavior = 0.30
	weightContext  = 0.25
	weightState    = 0.25
	weightPrompt   = 0.20
)

// issuePenalty is deducted from the overall score per issue.
var issuePenalty = map[model.Severity]float64{
	model.SeverityCritical: 15,
	model.SeverityHigh:     10,
	model.SeverityMedium:   5,
	model.SeverityLow:      2,
}

// Score combines the analyses into a 0-100 score and returns the breakdown
// behind it.
func Score(b model.BehaviorAnalysis, c model.ContextAnalysis, s model.StateAnalysis, p model.PromptAnalysis, issues []model.EvaluationIssue) (float64, model.ScoreBreakdown) {
	bd := model.ScoreBreakdown{
		Behavior: weightBehavior * b.CoherenceScore * 100,
		Context:  weightContext * (c.RelevanceScore + c.CompletenessScore) / 2 * 100,
		State:    weightState * s.StateConsistency * 100,
		Prompt:   weightPrompt * (p.SpecificityScore + p.ConsistencyScore) / 2 * 100,
	}
	for _, iss := range issues {
		bd.Penalty += issuePenalty[iss.Severity]
	}
	total := bd.Behavior + bd.Context + bd.State + bd.Prompt - bd.Penalty
	return math.Max(0, math.Min(100, total)), bd
}
