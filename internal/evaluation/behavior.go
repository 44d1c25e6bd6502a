package evaluation

import (
	"strings"
	"unicode"

	"github.com/rolecraft/turneval/internal/model"
)

// Classification confidences.
const (
	confidenceHallucination = 0.8
	confidenceIncomplete    = 0.7
	confidenceRefusal       = 0.85
	confidenceNormal        = 0.9
)

// Coherence deductions per detected pattern.
const (
	coherencePenaltyRepetitive    = 0.3
	coherencePenaltyOutOfContext  = 0.4
	coherencePenaltyContradictory = 0.3
	coherencePenaltyIncomplete    = 0.2
)

var antonymPairs = []termPair{
	{newTerm("yes"), newTerm("no")},
	{newTerm("always"), newTerm("never")},
	{affirmativeTerm("will", "will not"), newTerm("will not")},
	{newTerm("can"), newTerm("cannot")},
}

// AnalyzeBehavior classifies the message content and scores its coherence.
func AnalyzeBehavior(ec model.EvaluationContext, t Thresholds) model.BehaviorAnalysis {
	content := ec.Message.Content
	sentences := splitSentences(content)

	var avgSentence float64
	if len(sentences) > 0 {
		avgSentence = float64(textLen(content)) / float64(len(sentences))
	}

	patterns := model.ResponsePatterns{
		Repetitive:    isRepetitive(sentences, t),
		OutOfContext:  isOutOfContext(content, ec.PromptMessages),
		Contradictory: contradictsHistory(content, ec.History, t.ContradictionWindow),
		Incomplete:    isIncomplete(content, t.MinResponseLength),
	}

	a := model.BehaviorAnalysis{
		TokenCount:            estimateTokens(content),
		AverageSentenceLength: avgSentence,
		CoherenceScore:        coherence(patterns),
		Patterns:              patterns,
	}
	a.ResponseType, a.Confidence, a.Reasoning = classify(content, patterns)
	return a
}

// classify picks the response type by priority: hallucination, incomplete,
// refusal, normal.
func classify(content string, p model.ResponsePatterns) (model.ResponseType, float64, model.BehaviorReason) {
	lower := strings.ToLower(content)
	switch {
	case p.OutOfContext:
		return model.ResponseHallucination, confidenceHallucination, model.ReasonHallucination
	case p.Incomplete:
		return model.ResponseIncomplete, confidenceIncomplete, model.ReasonIncomplete
	case strings.Contains(lower, "cannot") || strings.Contains(lower, "unable to"):
		return model.ResponseRefusal, confidenceRefusal, model.ReasonRefusal
	default:
		return model.ResponseNormal, confidenceNormal, model.ReasonNormal
	}
}

func coherence(p model.ResponsePatterns) float64 {
	score := 1.0
	if p.Repetitive {
		score -= coherencePenaltyRepetitive
	}
	if p.OutOfContext {
		score -= coherencePenaltyOutOfContext
	}
	if p.Contradictory {
		score -= coherencePenaltyContradictory
	}
	if p.Incomplete {
		score -= coherencePenaltyIncomplete
	}
	return clamp01(score)
}

// isRepetitive is true when there are enough sentences and too few of them
// are distinct.
func isRepetitive(sentences []string, t Thresholds) bool {
	if len(sentences) <= t.MinRepetitionSentences {
		return false
	}
	unique := make(map[string]struct{}, len(sentences))
	for _, s := range sentences {
		unique[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return float64(len(unique)) < t.RepetitionRatio*float64(len(sentences))
}

// isOutOfContext is true when the content makes a specific claim and names
// at least one capitalized word the prompt never mentions.
func isOutOfContext(content string, prompt []model.PromptMessage) bool {
	if !hasSpecificClaim(content) {
		return false
	}
	promptText := joinPrompt(prompt)
	for _, w := range capitalizedWords(content) {
		if !strings.Contains(promptText, w) {
			return true
		}
	}
	return false
}

// contradictsHistory is true when an antonym pair is split between the last
// window turns and the current content.
func contradictsHistory(content string, history []model.Turn, window int) bool {
	if len(history) == 0 {
		return false
	}
	start := max(0, len(history)-window)
	parts := make([]string, 0, len(history)-start)
	for _, turn := range history[start:] {
		parts = append(parts, turn.Content)
	}
	prior := strings.Join(parts, "\n")
	for _, pair := range antonymPairs {
		if pair.splitAcross(prior, content) {
			return true
		}
	}
	return false
}

func isIncomplete(content string, minLen int) bool {
	trimmed := strings.TrimRightFunc(content, unicode.IsSpace)
	if textLen(content) < minLen || trimmed == "" {
		return true
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return false
	default:
		return true
	}
}

func joinPrompt(prompt []model.PromptMessage) string {
	parts := make([]string, 0, len(prompt))
	for _, m := range prompt {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n")
}

// emptyBehavior is the analysis reported when the behavior check does not run.
func emptyBehavior(reason model.BehaviorReason) model.BehaviorAnalysis {
	return model.BehaviorAnalysis{
		ResponseType:   model.ResponseNormal,
		Confidence:     1,
		Reasoning:      reason,
		CoherenceScore: 1,
	}
}
