package model

import "time"

// Dimension is one of the four evaluation checks. It doubles as the category
// of an EvaluationIssue.
type Dimension string

const (
	DimensionBehavior Dimension = "behavior"
	DimensionContext  Dimension = "context"
	DimensionState    Dimension = "state"
	DimensionPrompt   Dimension = "prompt"
)

// Dimensions lists every dimension in issue emission order.
var Dimensions = []Dimension{DimensionBehavior, DimensionContext, DimensionState, DimensionPrompt}

// Severity grades an issue. Impact levels reuse the same scale.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ResponseType classifies the behavior of a generated turn.
type ResponseType string

const (
	ResponseNormal        ResponseType = "normal"
	ResponseHallucination ResponseType = "hallucination"
	ResponseRefusal       ResponseType = "refusal"
	ResponseIncomplete    ResponseType = "incomplete"
)

// BehaviorReason is the fixed explanation attached to a behavior classification.
type BehaviorReason string

const (
	ReasonHallucination   BehaviorReason = "Response contains information not present in the provided context"
	ReasonIncomplete      BehaviorReason = "Response appears to be incomplete or cut off"
	ReasonRefusal         BehaviorReason = "Response indicates the agent declined or was unable to answer"
	ReasonNormal          BehaviorReason = "Response appears normal and well-formed"
	ReasonBehaviorSkipped BehaviorReason = "Behavior analysis skipped"
	ReasonBehaviorFailed  BehaviorReason = "Behavior analysis failed"
)

// UpdateReason is the fixed explanation attached to a data store update.
type UpdateReason string

const (
	ReasonInvalidType UpdateReason = "Invalid type for field"
	ReasonInitial     UpdateReason = "Initial value set"
	ReasonUnchanged   UpdateReason = "Value unchanged"
	ReasonUpdated     UpdateReason = "Value updated"
)

// UpdateFrequency bands the number of data store updates in a turn.
type UpdateFrequency string

const (
	FrequencyNone       UpdateFrequency = "none"
	FrequencyNormal     UpdateFrequency = "normal"
	FrequencyAggressive UpdateFrequency = "aggressive"
	FrequencyExcessive  UpdateFrequency = "excessive"
)

// FrequencyFor returns the band for n updates: 0 none, 1-3 normal,
// 4-6 aggressive, above 6 excessive.
func FrequencyFor(n int) UpdateFrequency {
	switch {
	case n <= 0:
		return FrequencyNone
	case n <= 3:
		return FrequencyNormal
	case n <= 6:
		return FrequencyAggressive
	default:
		return FrequencyExcessive
	}
}

// ContextCategory names a piece of missing or redundant prompt context.
type ContextCategory string

const (
	ContextCharacterTraits     ContextCategory = "character_traits"
	ContextConversationHistory ContextCategory = "conversation_history"
	ContextDuplicateHistory    ContextCategory = "duplicate_history"
)

// StateIssueCategory names a data store defect.
type StateIssueCategory string

const (
	StateTypeMismatch    StateIssueCategory = "type_mismatch"
	StateExcessiveUpdate StateIssueCategory = "excessive_update"
)

// IssueKind identifies which rule produced an EvaluationIssue.
type IssueKind string

const (
	IssueHallucination       IssueKind = "hallucination"
	IssueRepetitive          IssueKind = "repetitive"
	IssueMissingContext      IssueKind = "missing_context"
	IssueContextOverload     IssueKind = "context_overload"
	IssueTypeMismatch        IssueKind = "type_mismatch"
	IssueExcessiveUpdate     IssueKind = "excessive_update"
	IssueDoubleCounting      IssueKind = "double_counting"
	IssuePromptContradiction IssueKind = "prompt_contradiction"
)

// ResponsePatterns are the boolean pattern flags found in a response.
type ResponsePatterns struct {
	Repetitive    bool `json:"repetitive"`
	OutOfContext  bool `json:"out_of_context"`
	Contradictory bool `json:"contradictory"`
	Incomplete    bool `json:"incomplete"`
}

// BehaviorAnalysis is the output of the behavior check.
type BehaviorAnalysis struct {
	ResponseType          ResponseType     `json:"response_type"`
	Confidence            float64          `json:"confidence"`
	Reasoning             BehaviorReason   `json:"reasoning"`
	TokenCount            int              `json:"token_count"`
	AverageSentenceLength float64          `json:"average_sentence_length"`
	CoherenceScore        float64          `json:"coherence_score"`
	Patterns              ResponsePatterns `json:"patterns"`
}

// MissingInfo describes context the prompt should have carried.
type MissingInfo struct {
	Category   ContextCategory `json:"category"`
	Impact     Severity        `json:"impact"`
	Suggestion string          `json:"suggestion"`
}

// RedundantInfo describes context the prompt carries needlessly.
type RedundantInfo struct {
	Category   ContextCategory `json:"category"`
	Impact     Severity        `json:"impact"`
	Suggestion string          `json:"suggestion"`
}

// ContextAnalysis is the output of the context check.
type ContextAnalysis struct {
	HistoryTurnsAvailable int             `json:"history_turns_available"`
	HistoryTurnsUsed      int             `json:"history_turns_used"`
	CharacterInfoPresent  bool            `json:"character_info_present"`
	UserContextPresent    bool            `json:"user_context_present"`
	MissingInformation    []MissingInfo   `json:"missing_information"`
	RedundantInformation  []RedundantInfo `json:"redundant_information"`
	ContextOverload       bool            `json:"context_overload"`
	EstimatedTokens       int             `json:"estimated_tokens"`
	RelevanceScore        float64         `json:"relevance_score"`
	CompletenessScore     float64         `json:"completeness_score"`
}

// DataStoreUpdate records one schema field the message wrote.
type DataStoreUpdate struct {
	FieldID       string       `json:"field_id"`
	FieldName     string       `json:"field_name"`
	FieldType     string       `json:"field_type"`
	PreviousValue *string      `json:"previous_value"`
	NewValue      string       `json:"new_value"`
	Valid         bool         `json:"valid"`
	Reasoning     UpdateReason `json:"reasoning"`
}

// StateIssue is a defect found in the message's data store writes.
type StateIssue struct {
	Category    StateIssueCategory `json:"category"`
	FieldName   string             `json:"field_name"`
	Severity    Severity           `json:"severity"`
	Description string             `json:"description"`
	Suggestion  string             `json:"suggestion"`
}

// StateAnalysis is the output of the state check.
type StateAnalysis struct {
	DataStoreUpdates       []DataStoreUpdate `json:"data_store_updates"`
	Issues                 []StateIssue      `json:"issues"`
	UpdateFrequency        UpdateFrequency   `json:"update_frequency"`
	DoubleCountingDetected bool              `json:"double_counting_detected"`
	StateConsistency       float64           `json:"state_consistency"`
}

// PromptContradiction is a pair of conflicting instruction terms.
type PromptContradiction struct {
	Terms       [2]string `json:"terms"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	Suggestion  string    `json:"suggestion"`
}

// PromptAmbiguity lists hedging terms found in the system prompt.
type PromptAmbiguity struct {
	Terms       []string `json:"terms"`
	Impact      Severity `json:"impact"`
	Description string   `json:"description"`
	Suggestion  string   `json:"suggestion"`
}

// PromptAnalysis is the output of the prompt check.
type PromptAnalysis struct {
	SystemMessagePresent bool                  `json:"system_message_present"`
	InstructionClarity   float64               `json:"instruction_clarity"`
	ExampleCount         int                   `json:"example_count"`
	Contradictions       []PromptContradiction `json:"contradictions"`
	Ambiguities          []PromptAmbiguity     `json:"ambiguities"`
	SpecificityScore     float64               `json:"specificity_score"`
	ConsistencyScore     float64               `json:"consistency_score"`
}

// EvaluationIssue is one actionable finding in a report.
type EvaluationIssue struct {
	Category    Dimension `json:"category"`
	Kind        IssueKind `json:"kind"`
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Evidence    string    `json:"evidence,omitempty"`
	Suggestion  string    `json:"suggestion"`
}

// ScoreBreakdown exposes the weighted dimension scores behind OverallScore.
type ScoreBreakdown struct {
	Behavior float64 `json:"behavior"`
	Context  float64 `json:"context"`
	State    float64 `json:"state"`
	Prompt   float64 `json:"prompt"`
	Penalty  float64 `json:"penalty"`
}

// EvaluationReport is the complete result of evaluating one turn.
type EvaluationReport struct {
	EvaluationID     string            `json:"evaluation_id"`
	MessageID        string            `json:"message_id"`
	AgentName        string            `json:"agent_name"`
	ModelName        string            `json:"model_name"`
	Timestamp        time.Time         `json:"timestamp"`
	GenerationTimeMs int64             `json:"generation_time_ms"`
	Behavior         BehaviorAnalysis  `json:"behavior_analysis"`
	Context          ContextAnalysis   `json:"context_analysis"`
	State            StateAnalysis     `json:"state_analysis"`
	Prompt           PromptAnalysis    `json:"prompt_analysis"`
	OverallScore     float64           `json:"overall_score"`
	ScoreBreakdown   *ScoreBreakdown   `json:"score_breakdown,omitempty"`
	Issues           []EvaluationIssue `json:"issues"`
	Recommendations  []string          `json:"recommendations"`
}

// IssueCount returns how many issues in the report have the given severity.
func (r EvaluationReport) IssueCount(s Severity) int {
	n := 0
	for _, iss := range r.Issues {
		if iss.Severity == s {
			n++
		}
	}
	return n
}
