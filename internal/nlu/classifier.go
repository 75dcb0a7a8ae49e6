package nlu

import (
	"context"
	"regexp"
	"strings"
)

// Intent labels recognized by the built-in classifier. These match the
// catalog entries in internal/dialogue.
const (
	IntentCheckBalance       = "check_balance"
	IntentTransferMoney      = "transfer_money"
	IntentBlockCard          = "block_card"
	IntentUnblockCard        = "unblock_card"
	IntentTransactionHistory = "transaction_history"
	IntentFindATM            = "find_atm"
	IntentLoanInfo           = "loan_info"
	IntentAskGeneral         = "ask_general"
)

// Prediction is the output of the intent classifier adapter.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classifier wraps a trained intent classifier. The call may be backed by a
// model runtime and is treated as potentially blocking.
type Classifier interface {
	Classify(ctx context.Context, text string) (Prediction, error)
}

// "transfer X" phrases that are about moving data, not money.
var nonBankingTransferPhrases = []string{
	"transfer llm", "transfer model", "transfer file", "transfer code",
	"transfer data", "transfer function", "transfer learning",
	"transfer knowledge", "transfer information", "transfer document",
	"transfer project",
}

var atmPhrases = []string{
	"find atm", "nearby atm", "atm near me", "atm nearby",
	"branch details", "branch near", "nearest atm",
}

var atmTokenRe = regexp.MustCompile(`\b(?:atms?|branch(?:es)?|nearest)\b`)

// KeywordClassifier scores utterances against per-intent keyword tables.
// It is deliberately rule-based so its confidence signal is deterministic
// and auditable; a trained model can replace it behind the same interface.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (c *KeywordClassifier) Classify(_ context.Context, text string) (Prediction, error) {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return Prediction{Label: IntentAskGeneral, Confidence: 0}, nil
	}

	// Pure numbers carry no intent; they fill slots.
	if IsNumericOnly(t) {
		return Prediction{Label: IntentAskGeneral, Confidence: 0}, nil
	}

	for _, p := range nonBankingTransferPhrases {
		if strings.Contains(t, p) {
			return Prediction{Label: IntentAskGeneral, Confidence: 0.2}, nil
		}
	}

	if containsAny(t, atmPhrases) || atmTokenRe.MatchString(t) {
		return Prediction{Label: IntentFindATM, Confidence: 0.95}, nil
	}
	if strings.Contains(t, "history") || strings.Contains(t, "statement") ||
		strings.Contains(t, "transactions") || strings.Contains(t, "recent transaction") {
		return Prediction{Label: IntentTransactionHistory, Confidence: 0.9}, nil
	}
	if strings.Contains(t, "balance") {
		return Prediction{Label: IntentCheckBalance, Confidence: 0.9}, nil
	}
	if strings.Contains(t, "transfer") || strings.Contains(t, "send") || strings.Contains(t, "pay") {
		return Prediction{Label: IntentTransferMoney, Confidence: 0.9}, nil
	}
	// Checked before "block": "unblock my card" contains both.
	if strings.Contains(t, "unblock") && strings.Contains(t, "card") {
		return Prediction{Label: IntentUnblockCard, Confidence: 0.9}, nil
	}
	if strings.Contains(t, "block") && strings.Contains(t, "card") {
		return Prediction{Label: IntentBlockCard, Confidence: 0.9}, nil
	}
	if strings.Contains(t, "loan") || strings.Contains(t, "mortgage") {
		return Prediction{Label: IntentLoanInfo, Confidence: 0.9}, nil
	}

	return Prediction{Label: IntentAskGeneral, Confidence: 0.5}, nil
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
