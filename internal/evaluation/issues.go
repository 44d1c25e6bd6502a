package evaluation

import (
	"fmt"

	"github.com/rolecraft/turneval/internal/model"
)

const evidenceLimit = 120

// CollectIssues flattens the four analyses into report issues, in
// behavior, context, state, prompt order.
func CollectIssues(b model.BehaviorAnalysis, c model.ContextAnalysis, s model.StateAnalysis, p model.PromptAnalysis, content string) []model.EvaluationIssue {
	issues := []model.EvaluationIssue{}

	if b.ResponseType == model.ResponseHallucination {
		issues = append(issues, model.EvaluationIssue{
			Category:    model.DimensionBehavior,
			Kind:        model.IssueHallucination,
			Severity:    model.SeverityHigh,
			Title:       "Potential Hallucination",
			Description: "Response references specific details that do not appear anywhere in the prompt",
			Evidence:    truncate(content, evidenceLimit),
			Suggestion:  "Ground the response in facts supplied by the prompt or add the missing facts to it",
		})
	}
	if b.Patterns.Repetitive {
		issues = append(issues, model.EvaluationIssue{
			Category:    model.DimensionBehavior,
			Kind:        model.IssueRepetitive,
			Severity:    model.SeverityMedium,
			Title:       "Repetitive Response",
			Description: "Response repeats the same sentences",
			Evidence:    truncate(content, evidenceLimit),
			Suggestion:  "Raise the frequency penalty or instruct the agent to avoid repeating itself",
		})
	}

	for _, m := range c.MissingInformation {
		sev := model.SeverityMedium
		if m.Impact == model.SeverityHigh {
			sev = model.SeverityHigh
		}
		issues = append(issues, model.EvaluationIssue{
			Category:    model.DimensionContext,
			Kind:        model.IssueMissingContext,
			Severity:    sev,
			Title:       fmt.Sprintf("Missing Context: %s", m.Category),
			Description: fmt.Sprintf("Prompt does not include %s", m.Category),
			Suggestion:  m.Suggestion,
		})
	}
	if c.ContextOverload {
		issues = append(issues, model.EvaluationIssue{
			Category:    model.DimensionContext,
			Kind:        model.IssueContextOverload,
			Severity:    model.SeverityMedium,
			Title:       "Context Overload",
			Description: "Prompt is larger than the model can use effectively",
			Evidence:    fmt.Sprintf("%d estimated prompt tokens", c.EstimatedTokens),
			Suggestion:  "Summarize history or drop low-value prompt sections",
		})
	}

	for _, si := range s.Issues {
		kind, title := model.IssueTypeMismatch, "Type Mismatch"
		if si.Category == model.StateExcessiveUpdate {
			kind, title = model.IssueExcessiveUpdate, "Excessive Update"
		}
		issues = append(issues, model.EvaluationIssue{
			Category:    model.DimensionState,
			Kind:        kind,
			Severity:    si.Severity,
			Title:       fmt.Sprintf("%s: %s", title, si.FieldName),
			Description: si.Description,
			Suggestion:  si.Suggestion,
		})
	}
	if s.DoubleCountingDetected {
		issues = append(issues, model.EvaluationIssue{
			Category:    model.DimensionState,
			Kind:        model.IssueDoubleCounting,
			Severity:    model.SeverityHigh,
			Title:       "Double Counting Detected",
			Description: "A numeric field was set to exactly twice its previous value",
			Suggestion:  "Make sure the update is applied once per turn",
		})
	}

	for _, pc := range p.Contradictions {
		issues = append(issues, model.EvaluationIssue{
			Category:    model.DimensionPrompt,
			Kind:        model.IssuePromptContradiction,
			Severity:    pc.Severity,
			Title:       "Prompt Contradiction",
			Description: pc.Description,
			Suggestion:  pc.Suggestion,
		})
	}
	return issues
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
