package dispatch

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankbot/internal/common/errors"
	"bankbot/internal/common/logger"
	"bankbot/internal/dialogue"
)

type fakeBanking struct {
	requests []*OperationRequest
	err      error
}

func (b *fakeBanking) Execute(_ context.Context, req *OperationRequest) (*OperationResult, error) {
	b.requests = append(b.requests, req)
	if b.err != nil {
		return nil, b.err
	}
	return &OperationResult{Message: "ok"}, nil
}

func transferTx() *dialogue.PendingTransaction {
	return &dialogue.PendingTransaction{
		SessionID: "sess-1",
		UserID:    "user-1",
		Intent:    "transfer_money",
		Operation: dialogue.OpTransfer,
		Slots: map[string]string{
			"from_account": "1001",
			"to_account":   "1002",
			"amount":       "5000",
		},
	}
}

func TestDispatchBuildsTransferRequest(t *testing.T) {
	banking := &fakeBanking{}
	d := NewDispatcher(banking, logger.NewNoOpLogger())

	result, err := d.Dispatch(context.Background(), transferTx())
	require.NoError(t, err)

	require.Len(t, banking.requests, 1)
	req := banking.requests[0]
	assert.Equal(t, "1001", req.FromAccount)
	assert.Equal(t, "1002", req.ToAccount)
	assert.Equal(t, 5000.0, req.Amount)
	assert.Equal(t, "user-1", req.UserID)

	// The token is a real UUID and is returned to the caller.
	_, err = uuid.Parse(req.CorrelationToken)
	assert.NoError(t, err)
	assert.Equal(t, req.CorrelationToken, result.CorrelationToken)
}

func TestDispatchFreshTokenPerAttempt(t *testing.T) {
	banking := &fakeBanking{}
	d := NewDispatcher(banking, logger.NewNoOpLogger())

	_, err := d.Dispatch(context.Background(), transferTx())
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), transferTx())
	require.NoError(t, err)

	require.Len(t, banking.requests, 2)
	assert.NotEqual(t, banking.requests[0].CorrelationToken, banking.requests[1].CorrelationToken)
}

func TestDispatchBalanceRequest(t *testing.T) {
	banking := &fakeBanking{}
	d := NewDispatcher(banking, logger.NewNoOpLogger())

	_, err := d.Dispatch(context.Background(), &dialogue.PendingTransaction{
		UserID:    "user-1",
		Operation: dialogue.OpBalance,
		Slots:     map[string]string{"account_number": "1001"},
	})
	require.NoError(t, err)
	require.Len(t, banking.requests, 1)
	assert.Equal(t, "1001", banking.requests[0].AccountNumber)
}

func TestDispatchRejectsIncompleteSlots(t *testing.T) {
	banking := &fakeBanking{}
	d := NewDispatcher(banking, logger.NewNoOpLogger())

	tests := []struct {
		name string
		tx   *dialogue.PendingTransaction
	}{
		{
			name: "transfer missing amount",
			tx: &dialogue.PendingTransaction{
				Operation: dialogue.OpTransfer,
				Slots:     map[string]string{"from_account": "1001", "to_account": "1002"},
			},
		},
		{
			name: "balance missing account",
			tx: &dialogue.PendingTransaction{
				Operation: dialogue.OpBalance,
				Slots:     map[string]string{},
			},
		},
		{
			name: "non-positive amount",
			tx: &dialogue.PendingTransaction{
				Operation: dialogue.OpTransfer,
				Slots:     map[string]string{"from_account": "1001", "to_account": "1002", "amount": "0"},
			},
		},
		{
			name: "same sender and receiver",
			tx: &dialogue.PendingTransaction{
				Operation: dialogue.OpTransfer,
				Slots:     map[string]string{"from_account": "1001", "to_account": "1001", "amount": "10"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Dispatch(context.Background(), tt.tx)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeDispatchFailed, errors.CodeOf(err))
		})
	}

	assert.Empty(t, banking.requests, "invalid requests never reach the collaborator")
}

func TestDispatchClassifiesBusinessFailure(t *testing.T) {
	banking := &fakeBanking{err: errors.NewInsufficientFundsError("1001")}
	d := NewDispatcher(banking, logger.NewNoOpLogger())

	_, err := d.Dispatch(context.Background(), transferTx())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInsufficientFunds, errors.CodeOf(err))
}

func TestDispatchClassifiesUnknownOutcome(t *testing.T) {
	banking := &fakeBanking{err: fmt.Errorf("connection reset")}
	d := NewDispatcher(banking, logger.NewNoOpLogger())

	_, err := d.Dispatch(context.Background(), transferTx())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDispatchUnknown, errors.CodeOf(err))
}

func TestDispatchInformationalOperations(t *testing.T) {
	banking := &fakeBanking{}
	d := NewDispatcher(banking, logger.NewNoOpLogger())

	for _, op := range []dialogue.OpKind{dialogue.OpATMLookup, dialogue.OpLoanInfo} {
		_, err := d.Dispatch(context.Background(), &dialogue.PendingTransaction{Operation: op})
		require.NoError(t, err, string(op))
	}
	assert.Len(t, banking.requests, 2)
}
