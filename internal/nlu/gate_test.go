package nlu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bankingIntents = []string{
	IntentCheckBalance, IntentTransferMoney, IntentBlockCard,
	IntentTransactionHistory, IntentFindATM, IntentLoanInfo,
}

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	g, err := NewGate(GateConfig{HighThreshold: 0.8, LowThreshold: 0.3}, bankingIntents, IntentAskGeneral)
	require.NoError(t, err)
	return g
}

func TestNewGateValidation(t *testing.T) {
	_, err := NewGate(GateConfig{HighThreshold: 0, LowThreshold: 0}, bankingIntents, IntentAskGeneral)
	assert.Error(t, err)

	_, err = NewGate(GateConfig{HighThreshold: 1.5, LowThreshold: 0.3}, bankingIntents, IntentAskGeneral)
	assert.Error(t, err)

	_, err = NewGate(GateConfig{HighThreshold: 0.5, LowThreshold: 0.5}, bankingIntents, IntentAskGeneral)
	assert.Error(t, err, "low must be strictly below high")

	_, err = NewGate(GateConfig{HighThreshold: 1.0, LowThreshold: 0}, bankingIntents, IntentAskGeneral)
	assert.NoError(t, err)
}

func TestDecideScore(t *testing.T) {
	g := newTestGate(t)

	tests := []struct {
		name       string
		label      string
		confidence float64
		want       Decision
	}{
		{name: "high confidence banking", label: IntentCheckBalance, confidence: 0.95, want: DecisionInDomain},
		{name: "exactly high threshold", label: IntentTransferMoney, confidence: 0.8, want: DecisionInDomain},
		{name: "between thresholds", label: IntentCheckBalance, confidence: 0.4, want: DecisionAmbiguous},
		{name: "exactly low threshold", label: IntentCheckBalance, confidence: 0.3, want: DecisionOutOfDomain},
		{name: "below low threshold", label: IntentCheckBalance, confidence: 0.1, want: DecisionOutOfDomain},
		{name: "general label regardless of score", label: IntentAskGeneral, confidence: 0.99, want: DecisionOutOfDomain},
		{name: "unknown label", label: "order_pizza", confidence: 0.99, want: DecisionOutOfDomain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.DecideScore(tt.label, tt.confidence)
			assert.Equal(t, tt.want, got)

			// Pure function: same inputs, same decision.
			assert.Equal(t, got, g.DecideScore(tt.label, tt.confidence))
		})
	}
}

func TestDecideTextRules(t *testing.T) {
	g := newTestGate(t)

	// Numeric-only inputs are slot fillers, never out-of-domain.
	got := g.Decide("1001", Prediction{Label: IntentAskGeneral, Confidence: 0})
	assert.Equal(t, DecisionInDomain, got)

	// Non-banking transfer phrasing routes out regardless of the score.
	got = g.Decide("how to transfer files between laptops", Prediction{Label: IntentTransferMoney, Confidence: 0.9})
	assert.Equal(t, DecisionOutOfDomain, got)

	// General-knowledge question openers route out even with banking words.
	got = g.Decide("what is a mortgage", Prediction{Label: IntentLoanInfo, Confidence: 0.9})
	assert.Equal(t, DecisionOutOfDomain, got)

	// Plain banking requests pass through to the threshold policy.
	got = g.Decide("check my balance", Prediction{Label: IntentCheckBalance, Confidence: 0.9})
	assert.Equal(t, DecisionInDomain, got)
}
