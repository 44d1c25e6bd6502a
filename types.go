package turneval

import "time"

// Severity ranks an issue: low, medium, high or critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Report is the public representation of an evaluation report.
// It is a curated view of the internal report for use in extension interfaces:
// scores and findings, without the per-dimension analyses.
type Report struct {
	EvaluationID     string
	MessageID        string
	AgentName        string
	ModelName        string
	Timestamp        time.Time
	GenerationTimeMs int64
	// OverallScore is in [0, 100]; higher is better.
	OverallScore    float64
	Issues          []Issue
	Recommendations []string
}

// Issue is one finding in a Report, ordered most severe first.
type Issue struct {
	Category    string // behavior | context | state | prompt
	Kind        string
	Severity    Severity
	Title       string
	Description string
	Evidence    string
	Suggestion  string
}

// HasCritical reports whether any issue is critical.
func (r Report) HasCritical() bool {
	for _, iss := range r.Issues {
		if iss.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
