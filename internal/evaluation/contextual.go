package evaluation

import (
	"strings"

	"github.com/rolecraft/turneval/internal/model"
)

const (
	completenessPenaltyNoCharacter   = 0.3
	completenessPenaltyNoUserContext = 0.2
	completenessPenaltyPerMissing    = 0.1

	// relevanceNoSignal is reported when the message has no words to compare.
	relevanceNoSignal = 0.5
)

// AnalyzeContext judges whether the prompt gave the model the context it
// needed without burying it.
func AnalyzeContext(ec model.EvaluationContext, t Thresholds) model.ContextAnalysis {
	var (
		conversational int
		traitMention   bool
		characterInfo  bool
		userContext    bool
		tokens         int
	)
	for _, m := range ec.PromptMessages {
		lower := strings.ToLower(m.Content)
		if m.Role.IsConversational() {
			conversational++
		}
		if m.Role == model.RoleUser {
			userContext = true
		}
		if strings.Contains(lower, "personality") || strings.Contains(lower, "trait") {
			traitMention = true
		}
		if strings.Contains(lower, "character") || strings.Contains(lower, "personality") {
			characterInfo = true
		}
		tokens += estimateTokens(m.Content)
	}

	missing := []model.MissingInfo{}
	if !traitMention {
		missing = append(missing, model.MissingInfo{
			Category:   model.ContextCharacterTraits,
			Impact:     model.SeverityMedium,
			Suggestion: "Describe the character's personality and traits in the system prompt",
		})
	}
	if len(ec.History) > 0 && conversational == 0 {
		missing = append(missing, model.MissingInfo{
			Category:   model.ContextConversationHistory,
			Impact:     model.SeverityHigh,
			Suggestion: "Include recent conversation turns in the prompt so the agent can follow the dialogue",
		})
	}

	redundant := []model.RedundantInfo{}
	if conversational > t.MaxHistoryMessages {
		redundant = append(redundant, model.RedundantInfo{
			Category:   model.ContextDuplicateHistory,
			Impact:     model.SeverityMedium,
			Suggestion: "Trim or summarize older conversation turns to keep the prompt focused",
		})
	}

	return model.ContextAnalysis{
		HistoryTurnsAvailable: len(ec.History),
		HistoryTurnsUsed:      conversational,
		CharacterInfoPresent:  characterInfo,
		UserContextPresent:    userContext,
		MissingInformation:    missing,
		RedundantInformation:  redundant,
		ContextOverload:       tokens > t.MaxContextTokens,
		EstimatedTokens:       tokens,
		RelevanceScore:        relevance(ec.Message.Content, ec.PromptMessages),
		CompletenessScore:     completeness(characterInfo, userContext, len(missing)),
	}
}

// relevance is the share of the message's significant words that also
// appear in the prompt.
func relevance(content string, prompt []model.PromptMessage) float64 {
	words := significantWords(content)
	if len(words) == 0 {
		return relevanceNoSignal
	}
	promptWords := significantWords(joinPrompt(prompt))
	shared := 0
	for w := range words {
		if _, ok := promptWords[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(words))
}

func completeness(characterInfo, userContext bool, missing int) float64 {
	score := 1.0
	if !characterInfo {
		score -= completenessPenaltyNoCharacter
	}
	if !userContext {
		score -= completenessPenaltyNoUserContext
	}
	score -= completenessPenaltyPerMissing * float64(missing)
	return clamp01(score)
}

func emptyContext() model.ContextAnalysis {
	return model.ContextAnalysis{
		MissingInformation:   []model.MissingInfo{},
		RedundantInformation: []model.RedundantInfo{},
		RelevanceScore:       1,
		CompletenessScore:    1,
	}
}
