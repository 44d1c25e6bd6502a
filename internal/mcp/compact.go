package mcp

import (
	"fmt"
	"math"
	"strings"

	"github.com/rolecraft/turneval/internal/model"
)

const maxCompactDescription = 200

// compactReport returns a minimal representation of a report for MCP
// responses. Drops the per-dimension analyses, which agents rarely act on,
// and keeps issues, recommendations and a one-line summary.
func compactReport(r model.EvaluationReport) map[string]any {
	issues := make([]map[string]any, 0, len(r.Issues))
	for _, iss := range r.Issues {
		m := map[string]any{
			"category": iss.Category,
			"kind":     iss.Kind,
			"severity": iss.Severity,
			"title":    iss.Title,
		}
		if iss.Suggestion != "" {
			m["suggestion"] = iss.Suggestion
		}
		if iss.Description != "" {
			m["description"] = truncate(iss.Description, maxCompactDescription)
		}
		issues = append(issues, m)
	}
	return map[string]any{
		"evaluation_id":   r.EvaluationID,
		"message_id":      r.MessageID,
		"agent_name":      r.AgentName,
		"model_name":      r.ModelName,
		"timestamp":       r.Timestamp,
		"overall_score":   math.Round(r.OverallScore*10) / 10,
		"issues":          issues,
		"recommendations": r.Recommendations,
		"summary":         generateReportSummary(r),
	}
}

// generateReportSummary creates a 1-2 sentence human-readable synthesis of a
// report. Template-based; the most severe issue is named first.
func generateReportSummary(r model.EvaluationReport) string {
	score := fmt.Sprintf("Scored %.1f/100", r.OverallScore)
	if len(r.Issues) == 0 {
		return score + " with no issues."
	}

	var counts []string
	for _, sev := range []model.Severity{model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow} {
		if n := r.IssueCount(sev); n > 0 {
			counts = append(counts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	worst := mostSevere(r.Issues)
	return fmt.Sprintf("%s with %s issue(s). Most severe: %s.", score, strings.Join(counts, ", "), worst.Title)
}

func mostSevere(issues []model.EvaluationIssue) model.EvaluationIssue {
	worst := issues[0]
	for _, iss := range issues[1:] {
		if severityRank(iss.Severity) > severityRank(worst.Severity) {
			worst = iss
		}
	}
	return worst
}

func severityRank(s model.Severity) int {
	switch s {
	case model.SeverityCritical:
		return 4
	case model.SeverityHigh:
		return 3
	case model.SeverityMedium:
		return 2
	case model.SeverityLow:
		return 1
	default:
		return 0
	}
}

// truncate shortens s to at most maxLen runes, appending "..." when cut.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
