package turneval

import (
	"encoding/json"
	"time"
)

// Roles a turn or prompt message may carry.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DataStoreField is one persisted key/value the agent wrote while producing a turn.
type DataStoreField struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Type  string `json:"type,omitempty"`
	Value string `json:"value"`
}

// Message is the turn under evaluation. ID is required.
type Message struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Variables map[string]string `json:"variables,omitempty"`
	DataStore []DataStoreField  `json:"data_store,omitempty"`
}

// Agent describes the character that produced the message.
type Agent struct {
	Name  string `json:"name"`
	Model string `json:"model,omitempty"`
}

// SchemaField declares one data store field.
type SchemaField struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Type string `json:"type"`
}

// Flow carries the data store schema.
type Flow struct {
	ID              string        `json:"id,omitempty"`
	DataStoreSchema []SchemaField `json:"data_store_schema,omitempty"`
}

// Turn is one prior conversation entry, oldest first.
type Turn struct {
	ID        string           `json:"id,omitempty"`
	Role      string           `json:"role,omitempty"`
	Content   string           `json:"content"`
	DataStore []DataStoreField `json:"data_store,omitempty"`
}

// PromptMessage is one message of the prompt sent to the model.
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EvaluationContext is everything the server needs to judge one turn.
type EvaluationContext struct {
	Message          Message         `json:"message"`
	Agent            Agent           `json:"agent"`
	Flow             *Flow           `json:"flow,omitempty"`
	History          []Turn          `json:"conversation_history,omitempty"`
	PromptMessages   []PromptMessage `json:"prompt_messages,omitempty"`
	ModelParameters  map[string]any  `json:"model_parameters,omitempty"`
	GenerationTimeMs int64           `json:"generation_time_ms,omitempty"`
}

// Issue is one actionable finding, ordered most severe first in a Report.
type Issue struct {
	Category    string `json:"category"`
	Kind        string `json:"kind"`
	Severity    string `json:"severity"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Evidence    string `json:"evidence,omitempty"`
	Suggestion  string `json:"suggestion"`
}

// ScoreBreakdown is present only when the server runs at detailed verbosity.
type ScoreBreakdown struct {
	Behavior float64 `json:"behavior"`
	Context  float64 `json:"context"`
	State    float64 `json:"state"`
	Prompt   float64 `json:"prompt"`
	Penalty  float64 `json:"penalty"`
}

// Report is an evaluation report. The per-dimension analyses are kept raw;
// most callers only need the score, issues and recommendations.
type Report struct {
	EvaluationID     string          `json:"evaluation_id"`
	MessageID        string          `json:"message_id"`
	AgentName        string          `json:"agent_name"`
	ModelName        string          `json:"model_name"`
	Timestamp        time.Time       `json:"timestamp"`
	GenerationTimeMs int64           `json:"generation_time_ms"`
	OverallScore     float64         `json:"overall_score"`
	ScoreBreakdown   *ScoreBreakdown `json:"score_breakdown,omitempty"`
	Issues           []Issue         `json:"issues"`
	Recommendations  []string        `json:"recommendations"`

	BehaviorAnalysis json.RawMessage `json:"behavior_analysis"`
	ContextAnalysis  json.RawMessage `json:"context_analysis"`
	StateAnalysis    json.RawMessage `json:"state_analysis"`
	PromptAnalysis   json.RawMessage `json:"prompt_analysis"`
}

// IssuesAtLeast returns the issues whose severity is at or above min
// (low < medium < high < critical).
func (r Report) IssuesAtLeast(min string) []Issue {
	var out []Issue
	for _, iss := range r.Issues {
		if severityRank[iss.Severity] >= severityRank[min] {
			out = append(out, iss)
		}
	}
	return out
}

var severityRank = map[string]int{"low": 1, "medium": 2, "high": 3, "critical": 4}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	CachedReports int    `json:"cached_reports"`
	Uptime        int64  `json:"uptime_seconds"`
}
