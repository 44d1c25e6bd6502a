package evaluation

import (
	"fmt"
	"strings"

	"github.com/rolecraft/turneval/internal/model"
)

const (
	specificityBase        = 0.5
	specificityPerKeyword  = 0.1
	specificityLongSystem  = 0.2
	longSystemPromptLen    = 200
	consistencyPerConflict = 0.2
)

var (
	instructionConflicts = []termPair{
		{newTerm("always"), newTerm("never")},
		{affirmativeTerm("must", "must not"), newTerm("must not")},
	}
	hedgeTerms        = []string{"maybe", "perhaps", "might", "could", "possibly"}
	specificityTokens = []string{"must", "should", "example"}
)

// AnalyzePrompt inspects the prompt messages for structure, conflicting
// instructions and hedging language.
func AnalyzePrompt(ec model.EvaluationContext) model.PromptAnalysis {
	var (
		systemParts []string
		examples    int
	)
	for _, m := range ec.PromptMessages {
		if m.Role == model.RoleSystem {
			systemParts = append(systemParts, m.Content)
		}
		if strings.Contains(strings.ToLower(m.Content), "example") {
			examples++
		}
	}
	system := strings.ToLower(strings.Join(systemParts, "\n"))

	contradictions := []model.PromptContradiction{}
	for _, pair := range instructionConflicts {
		if !pair.within(system) {
			continue
		}
		contradictions = append(contradictions, model.PromptContradiction{
			Terms:       [2]string{pair.a.word, pair.b.word},
			Severity:    model.SeverityMedium,
			Description: fmt.Sprintf("System prompt uses both %q and %q", pair.a.word, pair.b.word),
			Suggestion:  "Reword the instructions so they cannot be read as conflicting",
		})
	}

	ambiguities := []model.PromptAmbiguity{}
	var hedges []string
	for _, h := range hedgeTerms {
		if strings.Contains(system, h) {
			hedges = append(hedges, h)
		}
	}
	if len(hedges) > 0 {
		ambiguities = append(ambiguities, model.PromptAmbiguity{
			Terms:       hedges,
			Impact:      model.SeverityMedium,
			Description: fmt.Sprintf("System prompt contains hedging language: %s", strings.Join(hedges, ", ")),
			Suggestion:  "Replace tentative wording with direct instructions",
		})
	}

	specificity := specificityBase
	for _, tok := range specificityTokens {
		if strings.Contains(system, tok) {
			specificity += specificityPerKeyword
		}
	}
	if textLen(system) > longSystemPromptLen {
		specificity += specificityLongSystem
	}
	specificity = clamp01(specificity)

	consistency := 1.0
	if n := len(contradictions); n > 0 {
		consistency = clamp01(1 - consistencyPerConflict*float64(n))
	}

	return model.PromptAnalysis{
		SystemMessagePresent: len(systemParts) > 0,
		InstructionClarity:   (specificity + consistency) / 2,
		ExampleCount:         examples,
		Contradictions:       contradictions,
		Ambiguities:          ambiguities,
		SpecificityScore:     specificity,
		ConsistencyScore:     consistency,
	}
}

func emptyPrompt() model.PromptAnalysis {
	return model.PromptAnalysis{
		InstructionClarity: 1,
		Contradictions:     []model.PromptContradiction{},
		Ambiguities:        []model.PromptAmbiguity{},
		SpecificityScore:   1,
		ConsistencyScore:   1,
	}
}
