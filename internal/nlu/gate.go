package nlu

import (
	"fmt"
	"regexp"
	"strings"
)

// Decision is the domain gate's verdict for one turn.
type Decision string

const (
	DecisionInDomain    Decision = "IN_DOMAIN"
	DecisionOutOfDomain Decision = "OUT_OF_DOMAIN"
	DecisionAmbiguous   Decision = "AMBIGUOUS"
)

// GateConfig holds the confidence thresholds. Scores at or above High with
// a known banking label are in-domain; scores at or below Low are
// out-of-domain; strictly between is ambiguous.
type GateConfig struct {
	HighThreshold float64
	LowThreshold  float64
}

// Gate decides whether an utterance belongs to the banking domain. It has
// no side effects: the decision is a function of its inputs and config.
type Gate struct {
	cfg          GateConfig
	banking      map[string]bool
	generalLabel string
}

func NewGate(cfg GateConfig, bankingIntents []string, generalLabel string) (*Gate, error) {
	if cfg.HighThreshold <= 0 || cfg.HighThreshold > 1 {
		return nil, fmt.Errorf("high threshold must be in (0,1], got %v", cfg.HighThreshold)
	}
	if cfg.LowThreshold < 0 || cfg.LowThreshold >= cfg.HighThreshold {
		return nil, fmt.Errorf("low threshold must be in [0,high), got %v", cfg.LowThreshold)
	}

	banking := make(map[string]bool, len(bankingIntents))
	for _, name := range bankingIntents {
		banking[name] = true
	}

	return &Gate{cfg: cfg, banking: banking, generalLabel: generalLabel}, nil
}

// General-knowledge question openers always route to the LLM, even when
// they mention banking words ("what is a mortgage").
var generalQuestionPatterns = []string{
	"what is", "what are", "what does", "how do", "how to", "how does",
	"explain", "tell me about", "who is", "who are",
	"where is", "when is", "why is",
}

// Strong banking tokens override the question-opener heuristic, so
// "where is the nearest atm" stays in-domain.
var bankingTokenRe = regexp.MustCompile(`\b(?:atms?|balance|accounts?|cards?|branch(?:es)?|transactions?|statements?)\b`)

// Decide applies the text-level routing rules, then the threshold policy.
func (g *Gate) Decide(text string, p Prediction) Decision {
	t := strings.ToLower(strings.TrimSpace(text))

	// Numeric-only inputs are never out-of-domain; they are slot fillers.
	if IsNumericOnly(t) {
		return DecisionInDomain
	}

	for _, pattern := range nonBankingTransferPhrases {
		if strings.Contains(t, pattern) {
			return DecisionOutOfDomain
		}
	}

	if !bankingTokenRe.MatchString(t) {
		for _, pattern := range generalQuestionPatterns {
			if strings.Contains(t, pattern) {
				return DecisionOutOfDomain
			}
		}
	}

	return g.DecideScore(p.Label, p.Confidence)
}

// DecideScore is the pure threshold core: identical (label, confidence)
// inputs always yield the identical decision.
func (g *Gate) DecideScore(label string, confidence float64) Decision {
	if label == g.generalLabel || !g.banking[label] {
		return DecisionOutOfDomain
	}
	if confidence >= g.cfg.HighThreshold {
		return DecisionInDomain
	}
	if confidence <= g.cfg.LowThreshold {
		return DecisionOutOfDomain
	}
	return DecisionAmbiguous
}
