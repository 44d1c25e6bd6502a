package model

// Role identifies who authored a conversation turn or prompt message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsConversational reports whether the role belongs to the dialogue itself
// (user or assistant) as opposed to system instructions.
func (r Role) IsConversational() bool {
	return r == RoleUser || r == RoleAssistant
}

// Field types a data store schema may declare. Types outside this set are
// accepted and always validate.
const (
	FieldTypeNumber  = "number"
	FieldTypeInteger = "integer"
	FieldTypeBoolean = "boolean"
	FieldTypeString  = "string"
)

// DataStoreField is one persisted key/value the agent writes while producing a turn.
// Values travel as strings; Type says how they should be interpreted.
type DataStoreField struct {
	ID    string `json:"id" yaml:"id" validate:"required"`
	Name  string `json:"name" yaml:"name"`
	Type  string `json:"type" yaml:"type"`
	Value string `json:"value" yaml:"value"`
}

// Message is the turn under evaluation.
type Message struct {
	ID        string            `json:"id" yaml:"id" validate:"required,max=255"`
	Content   string            `json:"content" yaml:"content" validate:"maxbytes"`
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`
	DataStore []DataStoreField  `json:"data_store,omitempty" yaml:"data_store,omitempty" validate:"dive"`
}

// Agent describes the character that produced the message.
type Agent struct {
	Name  string `json:"name" yaml:"name"`
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
}

// SchemaField declares one data store field on a flow.
type SchemaField struct {
	ID   string `json:"id" yaml:"id" validate:"required"`
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Flow carries the data store schema the agent is expected to honor.
type Flow struct {
	ID              string        `json:"id,omitempty" yaml:"id,omitempty"`
	DataStoreSchema []SchemaField `json:"data_store_schema,omitempty" yaml:"data_store_schema,omitempty" validate:"dive"`
}

// Turn is one prior entry in the conversation, oldest first.
type Turn struct {
	ID        string           `json:"id" yaml:"id"`
	Role      Role             `json:"role" yaml:"role" validate:"omitempty,oneof=system user assistant"`
	Content   string           `json:"content" yaml:"content"`
	DataStore []DataStoreField `json:"data_store,omitempty" yaml:"data_store,omitempty" validate:"dive"`
}

// PromptMessage is one message of the prompt sent to the model.
type PromptMessage struct {
	Role    Role   `json:"role" yaml:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" yaml:"content"`
}

// EvaluationContext is everything the evaluator needs to judge one turn.
// The evaluator never mutates it.
type EvaluationContext struct {
	Message          Message         `json:"message" yaml:"message" validate:"required"`
	Agent            Agent           `json:"agent" yaml:"agent"`
	Flow             *Flow           `json:"flow,omitempty" yaml:"flow,omitempty"`
	History          []Turn          `json:"conversation_history,omitempty" yaml:"conversation_history,omitempty" validate:"max=1024,dive"`
	PromptMessages   []PromptMessage `json:"prompt_messages,omitempty" yaml:"prompt_messages,omitempty" validate:"max=512,dive"`
	ModelParameters  map[string]any  `json:"model_parameters,omitempty" yaml:"model_parameters,omitempty"`
	GenerationTimeMs int64           `json:"generation_time_ms,omitempty" yaml:"generation_time_ms,omitempty" validate:"gte=0"`
}

// Schema returns the flow's data store schema, or nil when the context has no flow.
func (c EvaluationContext) Schema() []SchemaField {
	if c.Flow == nil {
		return nil
	}
	return c.Flow.DataStoreSchema
}

// PreviousTurn returns the turn immediately preceding the message, if any.
func (c EvaluationContext) PreviousTurn() (Turn, bool) {
	if len(c.History) == 0 {
		return Turn{}, false
	}
	return c.History[len(c.History)-1], true
}
