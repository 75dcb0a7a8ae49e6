package nlu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordClassifier(t *testing.T) {
	c := NewKeywordClassifier()

	tests := []struct {
		name           string
		text           string
		wantLabel      string
		wantConfidence float64
	}{
		{name: "balance", text: "check my balance", wantLabel: IntentCheckBalance, wantConfidence: 0.9},
		{name: "transfer", text: "I want to transfer money", wantLabel: IntentTransferMoney, wantConfidence: 0.9},
		{name: "send money", text: "send 500 to my friend", wantLabel: IntentTransferMoney, wantConfidence: 0.9},
		{name: "block card", text: "please block my card", wantLabel: IntentBlockCard, wantConfidence: 0.9},
		{name: "unblock card", text: "unblock my card please", wantLabel: IntentUnblockCard, wantConfidence: 0.9},
		{name: "history", text: "show my transaction history", wantLabel: IntentTransactionHistory, wantConfidence: 0.9},
		{name: "statement", text: "I need my statement", wantLabel: IntentTransactionHistory, wantConfidence: 0.9},
		{name: "atm", text: "where is the nearest atm", wantLabel: IntentFindATM, wantConfidence: 0.95},
		{name: "loan", text: "I want a loan", wantLabel: IntentLoanInfo, wantConfidence: 0.9},
		{name: "general question", text: "what is the capital of france", wantLabel: IntentAskGeneral, wantConfidence: 0.5},
		{name: "numeric only carries no intent", text: "1001", wantLabel: IntentAskGeneral, wantConfidence: 0},
		{name: "empty", text: "   ", wantLabel: IntentAskGeneral, wantConfidence: 0},
		{name: "data transfer is not banking", text: "how to transfer files between laptops", wantLabel: IntentAskGeneral, wantConfidence: 0.2},
		{name: "transfer learning is not banking", text: "explain transfer learning", wantLabel: IntentAskGeneral, wantConfidence: 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := c.Classify(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, pred.Label)
			assert.InDelta(t, tt.wantConfidence, pred.Confidence, 0.001)
		})
	}
}
