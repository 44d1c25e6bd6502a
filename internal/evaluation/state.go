package evaluation

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rolecraft/turneval/internal/model"
)

// severityPenalty is what each state issue costs the consistency score.
var severityPenalty = map[model.Severity]float64{
	model.SeverityHigh:   0.2,
	model.SeverityMedium: 0.1,
	model.SeverityLow:    0.05,
}

// AnalyzeState validates the message's data store writes against the flow
// schema and the values of the previous turn. Without a schema it reports
// nothing.
func AnalyzeState(ec model.EvaluationContext, t Thresholds) model.StateAnalysis {
	a := emptyState()
	schema := ec.Schema()
	if len(schema) == 0 {
		return a
	}

	types := make(map[string]string, len(schema))
	for _, f := range schema {
		types[f.ID] = f.Type
	}
	previous := make(map[string]string)
	if prev, ok := ec.PreviousTurn(); ok {
		for _, f := range prev.DataStore {
			previous[f.ID] = f.Value
		}
	}

	invalid := 0
	for _, f := range ec.Message.DataStore {
		fieldType, inSchema := types[f.ID]
		if !inSchema {
			continue
		}
		u := model.DataStoreUpdate{
			FieldID:   f.ID,
			FieldName: f.Name,
			FieldType: fieldType,
			NewValue:  f.Value,
			Valid:     validValue(fieldType, f.Value),
		}
		if v, ok := previous[f.ID]; ok {
			u.PreviousValue = &v
		}
		u.Reasoning = updateReason(u)
		a.DataStoreUpdates = append(a.DataStoreUpdates, u)

		if !u.Valid {
			invalid++
			a.Issues = append(a.Issues, model.StateIssue{
				Category:    model.StateTypeMismatch,
				FieldName:   u.FieldName,
				Severity:    model.SeverityHigh,
				Description: fmt.Sprintf("Value %q is not a valid %s", u.NewValue, fieldType),
				Suggestion:  fmt.Sprintf("Ensure %s is written as a %s", u.FieldName, fieldType),
			})
			continue
		}
		prev, next, ok := numericPair(u)
		if !ok {
			continue
		}
		if next == prev*2 {
			a.DoubleCountingDetected = true
		}
		if next > prev*t.ExcessiveUpdateFactor {
			a.Issues = append(a.Issues, model.StateIssue{
				Category:    model.StateExcessiveUpdate,
				FieldName:   u.FieldName,
				Severity:    model.SeverityMedium,
				Description: fmt.Sprintf("Value jumped from %s to %s", *u.PreviousValue, u.NewValue),
				Suggestion:  fmt.Sprintf("Check whether %s is being incremented more than once", u.FieldName),
			})
		}
	}

	a.UpdateFrequency = model.FrequencyFor(len(a.DataStoreUpdates))
	a.StateConsistency = stateConsistency(invalid, len(a.DataStoreUpdates), a.Issues)
	return a
}

func updateReason(u model.DataStoreUpdate) model.UpdateReason {
	switch {
	case !u.Valid:
		return model.ReasonInvalidType
	case u.PreviousValue == nil:
		return model.ReasonInitial
	case *u.PreviousValue == u.NewValue:
		return model.ReasonUnchanged
	default:
		return model.ReasonUpdated
	}
}

// validValue checks a value against its declared type. Types other than
// number, integer and boolean always validate.
func validValue(fieldType, value string) bool {
	switch fieldType {
	case model.FieldTypeNumber, model.FieldTypeInteger:
		_, ok := parseNumber(value)
		return ok
	case model.FieldTypeBoolean:
		return value == "true" || value == "false"
	default:
		return true
	}
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// numericPair returns the previous and new values of a numeric update when
// both parse.
func numericPair(u model.DataStoreUpdate) (prev, next float64, ok bool) {
	if u.FieldType != model.FieldTypeNumber && u.FieldType != model.FieldTypeInteger {
		return 0, 0, false
	}
	if u.PreviousValue == nil {
		return 0, 0, false
	}
	prev, okPrev := parseNumber(*u.PreviousValue)
	next, okNext := parseNumber(u.NewValue)
	return prev, next, okPrev && okNext
}

func stateConsistency(invalid, total int, issues []model.StateIssue) float64 {
	score := 1.0
	if total > 0 {
		score -= float64(invalid) / float64(total)
	}
	for _, iss := range issues {
		score -= severityPenalty[iss.Severity]
	}
	return clamp01(score)
}

func emptyState() model.StateAnalysis {
	return model.StateAnalysis{
		DataStoreUpdates: []model.DataStoreUpdate{},
		Issues:           []model.StateIssue{},
		UpdateFrequency:  model.FrequencyNone,
		StateConsistency: 1,
	}
}
