// Package testutil provides shared test fixtures: a quiet logger and
// EvaluationContext builders that start from a turn with no issues.
package testutil

import (
	"log/slog"
	"os"

	"github.com/rolecraft/turneval/internal/model"
)

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// CleanSystemPrompt describes the character without triggering any prompt check.
const CleanSystemPrompt = "You are Mira, a cheerful innkeeper. Personality: warm and curious, " +
	"with a trait of honesty. Stay in character."

// CleanReply is a well-formed reply grounded in CleanContext's prompt.
const CleanReply = "Hello there, traveler. The road north is safe today."

// CleanContext returns a context that produces no issues with the default config.
func CleanContext() model.EvaluationContext {
	return model.EvaluationContext{
		Message: model.Message{
			ID:      "msg-1",
			Content: CleanReply,
		},
		Agent: model.Agent{Name: "Mira", Model: "gpt-4o-mini"},
		PromptMessages: []model.PromptMessage{
			{Role: model.RoleSystem, Content: CleanSystemPrompt},
			{Role: model.RoleUser, Content: "Hello there, is the road north safe today?"},
		},
		GenerationTimeMs: 420,
	}
}

// ContextOption mutates a fixture context.
type ContextOption func(*model.EvaluationContext)

// NewContext returns CleanContext with the options applied.
func NewContext(opts ...ContextOption) model.EvaluationContext {
	ec := CleanContext()
	for _, opt := range opts {
		opt(&ec)
	}
	return ec
}

// WithContent replaces the message content.
func WithContent(content string) ContextOption {
	return func(ec *model.EvaluationContext) { ec.Message.Content = content }
}

// WithMessageID replaces the message ID.
func WithMessageID(id string) ContextOption {
	return func(ec *model.EvaluationContext) { ec.Message.ID = id }
}

// WithPrompt replaces the prompt messages.
func WithPrompt(msgs ...model.PromptMessage) ContextOption {
	return func(ec *model.EvaluationContext) { ec.PromptMessages = msgs }
}

// WithHistory replaces the conversation history.
func WithHistory(turns ...model.Turn) ContextOption {
	return func(ec *model.EvaluationContext) { ec.History = turns }
}

// WithSchema attaches a flow with the given data store schema.
func WithSchema(fields ...model.SchemaField) ContextOption {
	return func(ec *model.EvaluationContext) { ec.Flow = &model.Flow{ID: "flow-1", DataStoreSchema: fields} }
}

// WithDataStore sets the fields the message writes.
func WithDataStore(fields ...model.DataStoreField) ContextOption {
	return func(ec *model.EvaluationContext) { ec.Message.DataStore = fields }
}

// WithModel sets the agent's model name.
func WithModel(name string) ContextOption {
	return func(ec *model.EvaluationContext) { ec.Agent.Model = name }
}

// NumericField is a schema field of type number.
func NumericField(id string) model.SchemaField {
	return model.SchemaField{ID: id, Name: id, Type: model.FieldTypeNumber}
}

// Value is a data store field with the given id and value.
func Value(id, value string) model.DataStoreField {
	return model.DataStoreField{ID: id, Name: id, Value: value}
}

// PriorTurn is an assistant turn whose data store holds the given fields.
func PriorTurn(content string, fields ...model.DataStoreField) model.Turn {
	return model.Turn{ID: "turn-prev", Role: model.RoleAssistant, Content: content, DataStore: fields}
}
