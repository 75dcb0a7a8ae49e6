// Package banking implements the storage-backed collaborators behind the
// dialogue core: account operations, PIN verification, and NLU logging.
package banking

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"bankbot/internal/common/errors"
	"bankbot/internal/common/logger"
	"bankbot/internal/dialogue"
	"bankbot/internal/dispatch"
)

const uniqueViolation = "23505"

// Service executes banking operations against Postgres. Mutations are
// guarded by a dispatch log keyed on the correlation token, so a
// replayed request is rejected instead of applied twice.
type Service struct {
	db  *sql.DB
	log logger.Logger
}

func NewService(db *sql.DB, log logger.Logger) *Service {
	return &Service{db: db, log: log}
}

// Execute runs one operation request and returns a user-facing result.
func (s *Service) Execute(ctx context.Context, req *dispatch.OperationRequest) (*dispatch.OperationResult, error) {
	switch req.Operation {
	case dialogue.OpBalance:
		return s.balance(ctx, req)
	case dialogue.OpTransfer:
		return s.transfer(ctx, req)
	case dialogue.OpBlockCard:
		return s.blockCard(ctx, req)
	case dialogue.OpUnblock:
		return s.unblockCard(ctx, req)
	case dialogue.OpHistory:
		return s.history(ctx, req)
	case dialogue.OpATMLookup:
		return s.atmLookup(ctx, req)
	case dialogue.OpLoanInfo:
		return s.loanInfo(ctx)
	default:
		return nil, errors.NewDispatchFailedError(string(req.Operation), fmt.Errorf("unsupported operation"))
	}
}

func (s *Service) balance(ctx context.Context, req *dispatch.OperationRequest) (*dispatch.OperationResult, error) {
	var balance float64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE account_number = $1 AND user_id = $2`,
		req.AccountNumber, req.UserID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return nil, errors.NewAccountNotFoundError(req.AccountNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("balance query failed: %w", err)
	}

	return &dispatch.OperationResult{
		Message: fmt.Sprintf("Your balance for account %s is %.2f.", req.AccountNumber, balance),
		Data:    map[string]interface{}{"account_number": req.AccountNumber, "balance": balance},
	}, nil
}

// transfer moves funds between two accounts inside one transaction. The
// dispatch_log insert shares the transaction, so a duplicated correlation
// token rolls the whole transfer back.
func (s *Service) transfer(ctx context.Context, req *dispatch.OperationRequest) (*dispatch.OperationResult, error) {
	if req.FromAccount == req.ToAccount {
		return nil, errors.NewSameAccountTransferError(req.FromAccount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transfer: %w", err)
	}
	defer tx.Rollback()

	if err := s.recordDispatch(ctx, tx, req); err != nil {
		return nil, err
	}

	var fromBalance float64
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE account_number = $1 AND user_id = $2 FOR UPDATE`,
		req.FromAccount, req.UserID,
	).Scan(&fromBalance)
	if err == sql.ErrNoRows {
		return nil, errors.NewAccountNotFoundError(req.FromAccount)
	}
	if err != nil {
		return nil, fmt.Errorf("sender lookup failed: %w", err)
	}
	if fromBalance < req.Amount {
		return nil, errors.NewInsufficientFundsError(req.FromAccount)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + $1 WHERE account_number = $2`,
		req.Amount, req.ToAccount,
	)
	if err != nil {
		return nil, fmt.Errorf("credit failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.NewAccountNotFoundError(req.ToAccount)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance - $1 WHERE account_number = $2`,
		req.Amount, req.FromAccount,
	); err != nil {
		return nil, fmt.Errorf("debit failed: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (from_account, to_account, amount, created_at) VALUES ($1, $2, $3, $4)`,
		req.FromAccount, req.ToAccount, req.Amount, time.Now().UTC(),
	); err != nil {
		return nil, fmt.Errorf("transaction record failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("transfer commit failed: %w", err)
	}

	s.log.Info("transfer completed", map[string]interface{}{
		"correlation_token": req.CorrelationToken,
		"from_account":      req.FromAccount,
		"to_account":        req.ToAccount,
		"amount":            req.Amount,
	})

	return &dispatch.OperationResult{
		Message: fmt.Sprintf("Done! %.2f has been transferred from account %s to account %s.",
			req.Amount, req.FromAccount, req.ToAccount),
		Data: map[string]interface{}{
			"from_account": req.FromAccount,
			"to_account":   req.ToAccount,
			"amount":       req.Amount,
		},
	}, nil
}

func (s *Service) blockCard(ctx context.Context, req *dispatch.OperationRequest) (*dispatch.OperationResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin card block: %w", err)
	}
	defer tx.Rollback()

	if err := s.recordDispatch(ctx, tx, req); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE cards SET status = 'BLOCKED', blocked_at = $1 WHERE user_id = $2 AND last_four = $3 AND status != 'BLOCKED'`,
		time.Now().UTC(), req.UserID, req.CardRef,
	)
	if err != nil {
		return nil, fmt.Errorf("card block failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.NewDispatchFailedError(string(req.Operation),
			fmt.Errorf("no active card matching the given reference"))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("card block commit failed: %w", err)
	}

	return &dispatch.OperationResult{
		Message: fmt.Sprintf("Your card ending in %s has been blocked. A replacement will be sent to your registered address.", req.CardRef),
		Data:    map[string]interface{}{"card_ref": req.CardRef, "status": "BLOCKED"},
	}, nil
}

func (s *Service) unblockCard(ctx context.Context, req *dispatch.OperationRequest) (*dispatch.OperationResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin card unblock: %w", err)
	}
	defer tx.Rollback()

	if err := s.recordDispatch(ctx, tx, req); err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE cards SET status = 'ACTIVE', blocked_at = NULL WHERE user_id = $1 AND last_four = $2 AND status = 'BLOCKED'`,
		req.UserID, req.CardRef,
	)
	if err != nil {
		return nil, fmt.Errorf("card unblock failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.NewDispatchFailedError(string(req.Operation),
			fmt.Errorf("no blocked card matching the given reference"))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("card unblock commit failed: %w", err)
	}

	return &dispatch.OperationResult{
		Message: fmt.Sprintf("Your card ending in %s is active again.", req.CardRef),
		Data:    map[string]interface{}{"card_ref": req.CardRef, "status": "ACTIVE"},
	}, nil
}

func (s *Service) history(ctx context.Context, req *dispatch.OperationRequest) (*dispatch.OperationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_account, to_account, amount, created_at
		 FROM transactions
		 WHERE from_account = $1 OR to_account = $1
		 ORDER BY created_at DESC LIMIT 5`,
		req.AccountNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("history query failed: %w", err)
	}
	defer rows.Close()

	type entry struct {
		From   string    `json:"from_account"`
		To     string    `json:"to_account"`
		Amount float64   `json:"amount"`
		At     time.Time `json:"created_at"`
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.From, &e.To, &e.Amount, &e.At); err != nil {
			return nil, fmt.Errorf("history scan failed: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history iteration failed: %w", err)
	}

	if len(entries) == 0 {
		return &dispatch.OperationResult{
			Message: fmt.Sprintf("No recent transactions found for account %s.", req.AccountNumber),
		}, nil
	}

	msg := fmt.Sprintf("Here are the last %d transactions for account %s:", len(entries), req.AccountNumber)
	for _, e := range entries {
		direction := "received"
		other := e.From
		if e.From == req.AccountNumber {
			direction = "sent"
			other = e.To
		}
		msg += fmt.Sprintf("\n- %s %.2f (%s account %s) on %s",
			direction, e.Amount, counterpartLabel(direction), other, e.At.Format("2006-01-02"))
	}

	return &dispatch.OperationResult{
		Message: msg,
		Data:    map[string]interface{}{"count": len(entries)},
	}, nil
}

func counterpartLabel(direction string) string {
	if direction == "sent" {
		return "to"
	}
	return "from"
}

func (s *Service) atmLookup(ctx context.Context, req *dispatch.OperationRequest) (*dispatch.OperationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, address FROM atm_locations WHERE active = true ORDER BY name LIMIT 5`)
	if err != nil {
		return nil, fmt.Errorf("atm lookup failed: %w", err)
	}
	defer rows.Close()

	msg := "Nearby ATMs:"
	found := false
	for rows.Next() {
		var name, address string
		if err := rows.Scan(&name, &address); err != nil {
			return nil, fmt.Errorf("atm scan failed: %w", err)
		}
		msg += fmt.Sprintf("\n- %s, %s", name, address)
		found = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("atm iteration failed: %w", err)
	}
	if !found {
		msg = "I couldn't find any ATMs right now. Please try the bank's website for the full list."
	}

	return &dispatch.OperationResult{Message: msg}, nil
}

func (s *Service) loanInfo(_ context.Context) (*dispatch.OperationResult, error) {
	return &dispatch.OperationResult{
		Message: "We offer personal loans from 10.5% p.a. and home loans from 8.4% p.a. Visit any branch with ID proof and income documents to apply.",
	}, nil
}

// recordDispatch inserts the correlation token inside the operation's
// transaction. A unique violation means this transaction was already
// dispatched; the caller's rollback undoes everything else.
func (s *Service) recordDispatch(ctx context.Context, tx *sql.Tx, req *dispatch.OperationRequest) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO dispatch_log (correlation_token, operation, user_id, created_at) VALUES ($1, $2, $3, $4)`,
		req.CorrelationToken, string(req.Operation), req.UserID, time.Now().UTC(),
	)
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
		return errors.NewReplayedTokenError(req.CorrelationToken)
	}
	return fmt.Errorf("dispatch log insert failed: %w", err)
}
