// Package dispatch maps completed intents to concrete banking operation
// requests and hands them to the banking collaborator.
package dispatch

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"bankbot/internal/common/errors"
	"bankbot/internal/common/logger"
	"bankbot/internal/dialogue"
)

// OperationRequest is the concrete request sent to the banking service.
// Every attempt carries a fresh correlation token so the service can
// reject duplicate replays of the same transaction.
type OperationRequest struct {
	CorrelationToken string
	UserID           string
	Operation        dialogue.OpKind
	AccountNumber    string
	FromAccount      string
	ToAccount        string
	Amount           float64
	CardRef          string
}

// OperationResult is the banking service's answer.
type OperationResult struct {
	Message string
	Data    map[string]interface{}
}

// BankingService executes operation requests against storage. It must
// reject a correlation token it has already seen.
type BankingService interface {
	Execute(ctx context.Context, req *OperationRequest) (*OperationResult, error)
}

// Dispatcher builds operation requests from filled slot mappings. It
// performs no retries: a financial mutation with an unknown outcome is
// surfaced, never reattempted.
type Dispatcher struct {
	banking BankingService
	log     logger.Logger
}

func NewDispatcher(banking BankingService, log logger.Logger) *Dispatcher {
	return &Dispatcher{banking: banking, log: log}
}

// Dispatch converts the pending transaction into one operation request
// and executes it once.
func (d *Dispatcher) Dispatch(ctx context.Context, tx *dialogue.PendingTransaction) (*dialogue.DispatchResult, error) {
	req, err := d.buildRequest(tx)
	if err != nil {
		return nil, errors.NewDispatchFailedError(string(tx.Operation), err)
	}

	d.log.Info("dispatching operation", map[string]interface{}{
		"correlation_token": req.CorrelationToken,
		"operation":         string(req.Operation),
		"session_id":        tx.SessionID,
	})

	result, err := d.banking.Execute(ctx, req)
	if err != nil {
		return nil, d.classifyFailure(req, err)
	}

	return &dialogue.DispatchResult{
		CorrelationToken: req.CorrelationToken,
		Message:          result.Message,
		Data:             result.Data,
	}, nil
}

func (d *Dispatcher) buildRequest(tx *dialogue.PendingTransaction) (*OperationRequest, error) {
	req := &OperationRequest{
		CorrelationToken: uuid.New().String(),
		UserID:           tx.UserID,
		Operation:        tx.Operation,
	}

	switch tx.Operation {
	case dialogue.OpBalance, dialogue.OpHistory:
		acct, ok := tx.Slots["account_number"]
		if !ok {
			return nil, fmt.Errorf("missing account_number slot")
		}
		req.AccountNumber = acct

	case dialogue.OpTransfer:
		from, okFrom := tx.Slots["from_account"]
		to, okTo := tx.Slots["to_account"]
		raw, okAmt := tx.Slots["amount"]
		if !okFrom || !okTo || !okAmt {
			return nil, fmt.Errorf("incomplete transfer slots")
		}
		amount, err := strconv.ParseFloat(raw, 64)
		if err != nil || amount <= 0 {
			return nil, fmt.Errorf("invalid amount %q", raw)
		}
		if from == to {
			return nil, errors.NewSameAccountTransferError(from)
		}
		req.FromAccount = from
		req.ToAccount = to
		req.Amount = amount

	case dialogue.OpBlockCard, dialogue.OpUnblock:
		card, ok := tx.Slots["card_ref"]
		if !ok {
			return nil, fmt.Errorf("missing card_ref slot")
		}
		req.CardRef = card

	case dialogue.OpATMLookup, dialogue.OpLoanInfo:
		// Informational; no slots.

	default:
		return nil, fmt.Errorf("unknown operation %q", tx.Operation)
	}

	return req, nil
}

// classifyFailure separates confirmed failures from unknown outcomes.
// A business error from the service means the operation definitely did
// not complete; a transport-level error or timeout means the outcome is
// unknown and must be reported as such.
func (d *Dispatcher) classifyFailure(req *OperationRequest, err error) error {
	if code := errors.CodeOf(err); code != "" {
		d.log.Warn("operation rejected", map[string]interface{}{
			"correlation_token": req.CorrelationToken,
			"operation":         string(req.Operation),
			"code":              string(code),
		})
		return err
	}

	// No structured code: the call itself failed (timeout, transport,
	// cancelled context) and completion status is unknown.
	return errors.NewDispatchUnknownError(string(req.Operation), err)
}
