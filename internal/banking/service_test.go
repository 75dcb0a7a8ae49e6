package banking

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankbot/internal/common/errors"
	"bankbot/internal/common/logger"
	"bankbot/internal/dialogue"
	"bankbot/internal/dispatch"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(db, logger.NewTestLogger(t)), mock
}

func transferRequest(token string) *dispatch.OperationRequest {
	return &dispatch.OperationRequest{
		CorrelationToken: token,
		UserID:           "user-1",
		Operation:        dialogue.OpTransfer,
		FromAccount:      "1001",
		ToAccount:        "1002",
		Amount:           500,
	}
}

func expectDispatchLog(mock sqlmock.Sqlmock, token string) *sqlmock.ExpectedExec {
	return mock.ExpectExec("INSERT INTO dispatch_log").
		WithArgs(token, string(dialogue.OpTransfer), "user-1", sqlmock.AnyArg())
}

func TestBalanceQuery(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT balance FROM accounts").
		WithArgs("1001", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(12500.50))

	result, err := svc.Execute(context.Background(), &dispatch.OperationRequest{
		UserID:        "user-1",
		Operation:     dialogue.OpBalance,
		AccountNumber: "1001",
	})
	require.NoError(t, err)
	assert.Contains(t, result.Message, "12500.50")
	assert.Equal(t, 12500.50, result.Data["balance"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBalanceAccountNotFound(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT balance FROM accounts").
		WithArgs("9999", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))

	_, err := svc.Execute(context.Background(), &dispatch.OperationRequest{
		UserID:        "user-1",
		Operation:     dialogue.OpBalance,
		AccountNumber: "9999",
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAccountNotFound, errors.CodeOf(err))
}

func TestTransferHappyPath(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	expectDispatchLog(mock, "tok-1").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT balance FROM accounts .+ FOR UPDATE").
		WithArgs("1001", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(2000.0))
	mock.ExpectExec(`UPDATE accounts SET balance = balance \+`).
		WithArgs(500.0, "1002").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE accounts SET balance = balance \-`).
		WithArgs(500.0, "1001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs("1001", "1002", 500.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := svc.Execute(context.Background(), transferRequest("tok-1"))
	require.NoError(t, err)
	assert.Contains(t, result.Message, "500.00")
	assert.Contains(t, result.Message, "account 1001")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferInsufficientFundsRollsBack(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	expectDispatchLog(mock, "tok-2").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT balance FROM accounts .+ FOR UPDATE").
		WithArgs("1001", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(100.0))
	mock.ExpectRollback()

	_, err := svc.Execute(context.Background(), transferRequest("tok-2"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInsufficientFunds, errors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferReplayedTokenRejected(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	expectDispatchLog(mock, "tok-3").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := svc.Execute(context.Background(), transferRequest("tok-3"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeReplayedToken, errors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferUnknownReceiverRollsBack(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	expectDispatchLog(mock, "tok-4").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT balance FROM accounts .+ FOR UPDATE").
		WithArgs("1001", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(2000.0))
	mock.ExpectExec(`UPDATE accounts SET balance = balance \+`).
		WithArgs(500.0, "1002").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := svc.Execute(context.Background(), transferRequest("tok-4"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAccountNotFound, errors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBlockCard(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO dispatch_log").
		WithArgs("tok-5", string(dialogue.OpBlockCard), "user-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE cards SET status").
		WithArgs(sqlmock.AnyArg(), "user-1", "5566").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := svc.Execute(context.Background(), &dispatch.OperationRequest{
		CorrelationToken: "tok-5",
		UserID:           "user-1",
		Operation:        dialogue.OpBlockCard,
		CardRef:          "5566",
	})
	require.NoError(t, err)
	assert.Contains(t, result.Message, "ending in 5566")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBlockCardNoMatch(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO dispatch_log").
		WithArgs("tok-6", string(dialogue.OpBlockCard), "user-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE cards SET status").
		WithArgs(sqlmock.AnyArg(), "user-1", "0000").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := svc.Execute(context.Background(), &dispatch.OperationRequest{
		CorrelationToken: "tok-6",
		UserID:           "user-1",
		Operation:        dialogue.OpBlockCard,
		CardRef:          "0000",
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDispatchFailed, errors.CodeOf(err))
}

func TestUnblockCard(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO dispatch_log").
		WithArgs("tok-7", string(dialogue.OpUnblock), "user-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE cards SET status").
		WithArgs("user-1", "5566").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := svc.Execute(context.Background(), &dispatch.OperationRequest{
		CorrelationToken: "tok-7",
		UserID:           "user-1",
		Operation:        dialogue.OpUnblock,
		CardRef:          "5566",
	})
	require.NoError(t, err)
	assert.Contains(t, result.Message, "active again")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionHistory(t *testing.T) {
	svc, mock := newTestService(t)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT from_account, to_account, amount, created_at").
		WithArgs("1001").
		WillReturnRows(sqlmock.NewRows([]string{"from_account", "to_account", "amount", "created_at"}).
			AddRow("1001", "1002", 500.0, now).
			AddRow("2004", "1001", 120.0, now.Add(-24*time.Hour)))

	result, err := svc.Execute(context.Background(), &dispatch.OperationRequest{
		UserID:        "user-1",
		Operation:     dialogue.OpHistory,
		AccountNumber: "1001",
	})
	require.NoError(t, err)
	assert.Contains(t, result.Message, "last 2 transactions")
	assert.Contains(t, result.Message, "sent 500.00 (to account 1002)")
	assert.Contains(t, result.Message, "received 120.00 (from account 2004)")
}

func TestTransactionHistoryEmpty(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT from_account, to_account, amount, created_at").
		WithArgs("1001").
		WillReturnRows(sqlmock.NewRows([]string{"from_account", "to_account", "amount", "created_at"}))

	result, err := svc.Execute(context.Background(), &dispatch.OperationRequest{
		UserID:        "user-1",
		Operation:     dialogue.OpHistory,
		AccountNumber: "1001",
	})
	require.NoError(t, err)
	assert.Contains(t, result.Message, "No recent transactions")
}
