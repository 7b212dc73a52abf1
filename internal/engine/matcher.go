package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/stridecoach/internal/ai"
	"github.com/briangreenhill/stridecoach/internal/kb"
	"github.com/briangreenhill/stridecoach/internal/memory"
)

// Selection is one selected-and-adapted strategy. The fallback path produces
// the identical shape, so callers never special-case LLM availability.
type Selection struct {
	StrategyID       *uuid.UUID `json:"strategy_id,omitempty"`
	StrategyName     string     `json:"strategy_name"`
	StrategyText     string     `json:"strategy_text"`
	SituationSummary string     `json:"situation_summary"`
	SelectionReason  string     `json:"selection_reason"`
	ConfidenceScore  float64    `json:"confidence_score"`
	ExpectedOutcome  string     `json:"expected_outcome"`
	Source           string     `json:"source"` // "llm", "fallback", "static"
}

const matcherSystemPrompt = `You are an elite running coach strategy selector.

Your task is to select and adapt the BEST coaching strategy for the current situation.
Match each candidate's "Use when" conditions against the situation and reject any
candidate whose "Avoid when" conditions match. Output must be SHORT and ACTIONABLE
(max 40 words).

PRIORITIZE:
1. Safety first (injury risk)
2. Immediate impact (what helps NOW)
3. Personalization (what works for THIS runner)
4. Self-learning (strategies with high success rates)

Respond with a single JSON object:
{
    "strategy_id": "id of the chosen candidate, or null if composing fresh",
    "strategy_text": "the adapted coaching strategy (max 40 words)",
    "strategy_name": "name of strategy type",
    "situation_summary": "brief situation description (10 words)",
    "selection_reason": "why this strategy (15 words)",
    "confidence_score": 0.0,
    "expected_outcome": "what we expect if the strategy works"
}`

// Matcher asks the LLM completion service to pick one strategy, with a
// deterministic same-shape fallback for every failure mode.
type Matcher struct {
	completer ai.Completer
	logger    zerolog.Logger
}

// NewMatcher wires the matcher
func NewMatcher(logger zerolog.Logger, completer ai.Completer) *Matcher {
	return &Matcher{completer: completer, logger: logger}
}

// Select returns exactly one strategy for the situation. Candidates must be
// hybrid-ranked best-first; the fallback takes candidates[0].
func (m *Matcher) Select(ctx context.Context, sit Situation, situationDescription string, candidates []kb.Strategy, insights []memory.Insight, topStrategies []kb.UserTopStrategy) (Selection, error) {
	if len(candidates) == 0 {
		return Selection{}, ErrNoStrategy
	}

	prompt := buildSelectionPrompt(sit, situationDescription, candidates, insights, topStrategies)

	content, err := m.completer.Complete(ctx, matcherSystemPrompt, prompt)
	if err != nil {
		m.logger.Warn().Err(err).Msg("llm selection failed, falling back to top-ranked candidate")
		return fallbackSelection(sit, candidates[0]), nil
	}

	sel, err := parseSelection(content, candidates)
	if err != nil {
		m.logger.Warn().Err(err).Msg("llm selection unparseable, falling back to top-ranked candidate")
		return fallbackSelection(sit, candidates[0]), nil
	}
	sel.Source = "llm"
	return sel, nil
}

func buildSelectionPrompt(sit Situation, situationDescription string, candidates []kb.Strategy, insights []memory.Insight, topStrategies []kb.UserTopStrategy) string {
	var b strings.Builder

	b.WriteString("CURRENT RUNNING SITUATION:\n")
	b.WriteString(situationDescription)
	b.WriteString("\n\nAVAILABLE STRATEGIES FROM KNOWLEDGE BASE:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, c.ID, c.Title)
		fmt.Fprintf(&b, "   Use when: %s\n", c.ConditionsToUse)
		fmt.Fprintf(&b, "   Avoid when: %s\n", c.WhenNotToUse)
		fmt.Fprintf(&b, "   Strategy: %s\n", c.StrategyText)
		fmt.Fprintf(&b, "   Success rate: %.0f%% (%d uses, sim %.0f%%)\n",
			c.SuccessRate*100, c.TimesUsed, c.Similarity*100)
	}

	b.WriteString("\nUSER'S TOP STRATEGIES (self-learning):\n")
	if len(topStrategies) == 0 {
		b.WriteString("No user history yet.\n")
	}
	for i, t := range topStrategies {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, "- %s (user success: %.0f%%)\n", t.Title, t.UserSuccessRate*100)
	}

	b.WriteString("\nPERSONALIZATION (what works for this runner):\n")
	if len(insights) == 0 {
		b.WriteString("No personalization data yet.\n")
	}
	for _, in := range insights {
		fmt.Fprintf(&b, "- %s\n", in.Text)
	}

	fmt.Fprintf(&b, "\nTASK:\nSelect the BEST strategy for this EXACT situation and adapt it.\n")
	fmt.Fprintf(&b, "Be strict: only pick a candidate whose conditions clearly apply.\n")
	fmt.Fprintf(&b, "If injury risk or recovery needed, prioritize safety.\n")
	fmt.Fprintf(&b, "Match the coach personality (%s) and energy (%s).\n", sit.Personality, sit.Energy)
	b.WriteString("\nOUTPUT JSON:")
	return b.String()
}

type selectionResponse struct {
	StrategyID       string  `json:"strategy_id"`
	StrategyText     string  `json:"strategy_text"`
	StrategyName     string  `json:"strategy_name"`
	SituationSummary string  `json:"situation_summary"`
	SelectionReason  string  `json:"selection_reason"`
	ConfidenceScore  float64 `json:"confidence_score"`
	ExpectedOutcome  string  `json:"expected_outcome"`
}

// parseSelection decodes the LLM output, tolerating markdown code fences.
// A strategy_id that does not refer to a provided candidate is treated as a
// composed-only strategy (nil id).
func parseSelection(content string, candidates []kb.Strategy) (Selection, error) {
	content = stripFences(content)

	var resp selectionResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return Selection{}, fmt.Errorf("decode selection: %w", err)
	}
	if strings.TrimSpace(resp.StrategyText) == "" {
		return Selection{}, fmt.Errorf("decode selection: empty strategy_text")
	}

	sel := Selection{
		StrategyName:     resp.StrategyName,
		StrategyText:     resp.StrategyText,
		SituationSummary: resp.SituationSummary,
		SelectionReason:  resp.SelectionReason,
		ConfidenceScore:  clamp01(resp.ConfidenceScore),
		ExpectedOutcome:  resp.ExpectedOutcome,
	}
	if sel.StrategyName == "" {
		sel.StrategyName = "Adaptive Strategy"
	}

	if id, err := uuid.Parse(resp.StrategyID); err == nil {
		for _, c := range candidates {
			if c.ID == id {
				matched := id
				sel.StrategyID = &matched
				break
			}
		}
	}
	return sel, nil
}

// fallbackSelection deterministically promotes the top hybrid-ranked
// candidate. Confidence is the candidate's own success rate, or a neutral
// 0.7 when it has no usage history yet.
func fallbackSelection(sit Situation, top kb.Strategy) Selection {
	confidence := top.SuccessRate
	if top.TimesUsed == 0 {
		confidence = 0.7
	}

	var strategyID *uuid.UUID
	if top.ID != uuid.Nil {
		id := top.ID
		strategyID = &id
	}
	return Selection{
		StrategyID:       strategyID,
		StrategyName:     top.Title,
		StrategyText:     top.StrategyText,
		SituationSummary: fmt.Sprintf("%s pace, %s fatigue", sit.PaceTrend, sit.FatigueLevel),
		SelectionReason:  "fallback: LLM unavailable",
		ConfidenceScore:  confidence,
		ExpectedOutcome:  "Improved performance",
		Source:           "fallback",
	}
}

func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if after, ok := strings.CutPrefix(content, "```json"); ok {
		content = after
	} else if after, ok := strings.CutPrefix(content, "```"); ok {
		content = after
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
