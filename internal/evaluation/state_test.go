package evaluation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolecraft/turneval/internal/model"
	"github.com/rolecraft/turneval/internal/testutil"
)

func goldContext(prev, next string) model.EvaluationContext {
	opts := []testutil.ContextOption{
		testutil.WithSchema(testutil.NumericField("gold")),
		testutil.WithDataStore(testutil.Value("gold", next)),
	}
	if prev != "" {
		opts = append(opts, testutil.WithHistory(testutil.PriorTurn("Here you go.", testutil.Value("gold", prev))))
	}
	return testutil.NewContext(opts...)
}

func TestAnalyzeState_NoSchema(t *testing.T) {
	ec := testutil.NewContext(testutil.WithDataStore(testutil.Value("gold", "10")))
	a := AnalyzeState(ec, DefaultThresholds())

	assert.Empty(t, a.DataStoreUpdates)
	assert.Empty(t, a.Issues)
	assert.Equal(t, model.FrequencyNone, a.UpdateFrequency)
	assert.False(t, a.DoubleCountingDetected)
	assert.Equal(t, 1.0, a.StateConsistency)
}

func TestAnalyzeState_ExactDoublingBoundary(t *testing.T) {
	a := AnalyzeState(goldContext("10", "20"), DefaultThresholds())

	assert.True(t, a.DoubleCountingDetected)
	assert.Empty(t, a.Issues, "exactly 2x is double counting, not an excessive update")
	require.Len(t, a.DataStoreUpdates, 1)
	u := a.DataStoreUpdates[0]
	require.NotNil(t, u.PreviousValue)
	assert.Equal(t, "10", *u.PreviousValue)
	assert.Equal(t, model.ReasonUpdated, u.Reasoning)
	assert.True(t, u.Valid)
	assert.Equal(t, 1.0, a.StateConsistency)
}

func TestAnalyzeState_AboveDoubleIsExcessive(t *testing.T) {
	a := AnalyzeState(goldContext("10", "21"), DefaultThresholds())

	assert.False(t, a.DoubleCountingDetected)
	require.Len(t, a.Issues, 1)
	assert.Equal(t, model.StateExcessiveUpdate, a.Issues[0].Category)
	assert.Equal(t, model.SeverityMedium, a.Issues[0].Severity)
	assert.Equal(t, "gold", a.Issues[0].FieldName)
	assert.InDelta(t, 0.9, a.StateConsistency, 1e-9)
}

func TestAnalyzeState_TypeMismatch(t *testing.T) {
	a := AnalyzeState(goldContext("10", "lots"), DefaultThresholds())

	require.Len(t, a.DataStoreUpdates, 1)
	assert.False(t, a.DataStoreUpdates[0].Valid)
	assert.Equal(t, model.ReasonInvalidType, a.DataStoreUpdates[0].Reasoning)
	require.Len(t, a.Issues, 1)
	assert.Equal(t, model.StateTypeMismatch, a.Issues[0].Category)
	assert.Equal(t, model.SeverityHigh, a.Issues[0].Severity)
	assert.Equal(t, 0.0, a.StateConsistency)
}

func TestAnalyzeState_Reasoning(t *testing.T) {
	initial := AnalyzeState(goldContext("", "5"), DefaultThresholds())
	require.Len(t, initial.DataStoreUpdates, 1)
	assert.Nil(t, initial.DataStoreUpdates[0].PreviousValue)
	assert.Equal(t, model.ReasonInitial, initial.DataStoreUpdates[0].Reasoning)

	unchanged := AnalyzeState(goldContext("5", "5"), DefaultThresholds())
	assert.Equal(t, model.ReasonUnchanged, unchanged.DataStoreUpdates[0].Reasoning)
	assert.False(t, unchanged.DoubleCountingDetected)
}

func TestAnalyzeState_OnlyImmediatelyPrecedingTurn(t *testing.T) {
	ec := testutil.NewContext(
		testutil.WithSchema(testutil.NumericField("gold")),
		testutil.WithDataStore(testutil.Value("gold", "20")),
		testutil.WithHistory(
			testutil.PriorTurn("Older.", testutil.Value("gold", "10")),
			testutil.PriorTurn("Newer."),
		),
	)
	a := AnalyzeState(ec, DefaultThresholds())
	require.Len(t, a.DataStoreUpdates, 1)
	assert.Nil(t, a.DataStoreUpdates[0].PreviousValue)
	assert.False(t, a.DoubleCountingDetected)
}

func TestAnalyzeState_FieldsOutsideSchemaIgnored(t *testing.T) {
	ec := testutil.NewContext(
		testutil.WithSchema(testutil.NumericField("gold")),
		testutil.WithDataStore(testutil.Value("gold", "1"), testutil.Value("mood", "grumpy")),
	)
	a := AnalyzeState(ec, DefaultThresholds())
	require.Len(t, a.DataStoreUpdates, 1)
	assert.Equal(t, "gold", a.DataStoreUpdates[0].FieldID)
}

func TestValidValue(t *testing.T) {
	tests := []struct {
		fieldType string
		value     string
		want      bool
	}{
		{model.FieldTypeNumber, "12.5", true},
		{model.FieldTypeNumber, "-3", true},
		{model.FieldTypeNumber, " 7 ", true},
		{model.FieldTypeNumber, "12abc", false},
		{model.FieldTypeNumber, "NaN", false},
		{model.FieldTypeNumber, "", false},
		{model.FieldTypeInteger, "42", true},
		{model.FieldTypeInteger, "forty", false},
		{model.FieldTypeBoolean, "true", true},
		{model.FieldTypeBoolean, "false", true},
		{model.FieldTypeBoolean, "True", false},
		{model.FieldTypeBoolean, "yes", false},
		{model.FieldTypeString, "anything", true},
		{"color", "#fff", true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%q", tt.fieldType, tt.value), func(t *testing.T) {
			assert.Equal(t, tt.want, validValue(tt.fieldType, tt.value))
		})
	}
}

func TestAnalyzeState_UpdateFrequency(t *testing.T) {
	for _, tt := range []struct {
		fields int
		want   model.UpdateFrequency
	}{
		{1, model.FrequencyNormal},
		{3, model.FrequencyNormal},
		{4, model.FrequencyAggressive},
		{6, model.FrequencyAggressive},
		{7, model.FrequencyExcessive},
	} {
		var schema []model.SchemaField
		var values []model.DataStoreField
		for i := 0; i < tt.fields; i++ {
			id := fmt.Sprintf("f%d", i)
			schema = append(schema, model.SchemaField{ID: id, Name: id, Type: model.FieldTypeString})
			values = append(values, testutil.Value(id, "v"))
		}
		ec := testutil.NewContext(testutil.WithSchema(schema...), testutil.WithDataStore(values...))
		a := AnalyzeState(ec, DefaultThresholds())
		assert.Equal(t, tt.want, a.UpdateFrequency, "%d updates", tt.fields)
	}
}

func TestAnalyzeState_ConsistencyFloorsAtZero(t *testing.T) {
	ec := testutil.NewContext(
		testutil.WithSchema(testutil.NumericField("a"), testutil.NumericField("b")),
		testutil.WithDataStore(testutil.Value("a", "x"), testutil.Value("b", "y")),
	)
	a := AnalyzeState(ec, DefaultThresholds())
	assert.Len(t, a.Issues, 2)
	assert.Equal(t, 0.0, a.StateConsistency)
}
