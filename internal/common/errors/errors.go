// Package errors provides standardized error handling for the dialogue core.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// NLU / dialogue errors
	ErrCodeExtractionFailed    ErrorCode = "EXTRACTION_FAILED"
	ErrCodeDomainAmbiguous     ErrorCode = "DOMAIN_AMBIGUOUS"
	ErrCodeRepromptsExceeded   ErrorCode = "REPROMPTS_EXCEEDED"
	ErrCodePinVerifyFailed     ErrorCode = "PIN_VERIFICATION_FAILED"
	ErrCodePinAttemptsExceeded ErrorCode = "PIN_ATTEMPTS_EXCEEDED"

	// Dispatch errors
	ErrCodeDispatchFailed  ErrorCode = "DISPATCH_FAILED"
	ErrCodeDispatchUnknown ErrorCode = "DISPATCH_UNKNOWN"
	ErrCodeReplayedToken   ErrorCode = "REPLAYED_CORRELATION_TOKEN"

	// Collaborator / infrastructure errors
	ErrCodeSessionStoreFailed  ErrorCode = "SESSION_STORE_FAILED"
	ErrCodeAccountNotFound     ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrCodeInsufficientFunds   ErrorCode = "INSUFFICIENT_FUNDS"
	ErrCodeSameAccountTransfer ErrorCode = "SAME_ACCOUNT_TRANSFER"
	ErrCodeLLMTimeout          ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMFailed           ErrorCode = "LLM_FAILED"
	ErrCodeCatalogInvalid      ErrorCode = "CATALOG_INVALID"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// CodeOf extracts the ErrorCode from err, unwrapping as needed.
// Returns an empty code when err is not a StandardError.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// ==========================
// 2. Error Constructors
// ==========================

// NewExtractionFailedError is returned when no valid candidate was found for
// a required slot. Recovered locally by re-prompting up to a limit.
func NewExtractionFailedError(slotName, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeExtractionFailed,
		Message:   "No valid candidate for required slot",
		Details:   fmt.Sprintf("slot: %s, %s", slotName, details),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDomainAmbiguousError is returned when the domain gate cannot decide.
// Recovered locally via a clarification prompt.
func NewDomainAmbiguousError(confidence float64) *StandardError {
	return &StandardError{
		Code:      ErrCodeDomainAmbiguous,
		Message:   "Utterance is ambiguous between banking and general domains",
		Details:   fmt.Sprintf("confidence: %.3f", confidence),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRepromptsExceededError terminates a slot-collection loop.
func NewRepromptsExceededError(slotName string, max int) *StandardError {
	return &StandardError{
		Code:      ErrCodeRepromptsExceeded,
		Message:   "Maximum re-prompt count exceeded",
		Details:   fmt.Sprintf("slot: %s, max: %d", slotName, max),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPinVerifyFailedError reports a failed PIN check. The details never
// contain the PIN itself.
func NewPinVerifyFailedError(attempt int) *StandardError {
	return &StandardError{
		Code:      ErrCodePinVerifyFailed,
		Message:   "Transaction PIN verification failed",
		Details:   fmt.Sprintf("attempt: %d", attempt),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewPinAttemptsExceededError terminates the PIN step after too many failures.
func NewPinAttemptsExceededError(max int) *StandardError {
	return &StandardError{
		Code:      ErrCodePinAttemptsExceeded,
		Message:   "Maximum PIN attempts exceeded",
		Details:   fmt.Sprintf("max: %d", max),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDispatchFailedError reports that the banking collaborator confirmed the
// operation did not complete. The pending transaction is discarded, never
// retried automatically.
func NewDispatchFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDispatchFailed,
		Message:   "Banking operation failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDispatchUnknownError reports that the collaborator call itself failed
// and the completion status is unknown. The system must never reattempt a
// money-moving operation on this code.
func NewDispatchUnknownError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDispatchUnknown,
		Message:   "Banking operation status unknown",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewReplayedTokenError rejects a duplicate dispatch of the same transaction.
func NewReplayedTokenError(token string) *StandardError {
	return &StandardError{
		Code:      ErrCodeReplayedToken,
		Message:   "Correlation token already dispatched",
		Details:   fmt.Sprintf("token: %s", token),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionStoreFailedError wraps a session load/save failure.
func NewSessionStoreFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionStoreFailed,
		Message:   "Session store operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAccountNotFoundError reports an unknown account number.
func NewAccountNotFoundError(accountNumber string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAccountNotFound,
		Message:   "Account not found",
		Details:   fmt.Sprintf("accountNumber: %s", accountNumber),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInsufficientFundsError rejects a transfer exceeding the balance.
func NewInsufficientFundsError(accountNumber string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInsufficientFunds,
		Message:   "Insufficient balance for transfer",
		Details:   fmt.Sprintf("accountNumber: %s", accountNumber),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSameAccountTransferError rejects a transfer where sender equals receiver.
func NewSameAccountTransferError(accountNumber string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSameAccountTransfer,
		Message:   "Sender and receiver accounts must differ",
		Details:   fmt.Sprintf("accountNumber: %s", accountNumber),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMTimeoutError reports a timed-out LLM fallback call.
func NewLLMTimeoutError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMTimeout,
		Message:   "LLM provider call timed out",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMFailedError reports a failed LLM fallback call.
func NewLLMFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMFailed,
		Message:   "LLM provider call failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCatalogInvalidError reports an intent catalog that failed validation.
func NewCatalogInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCatalogInvalid,
		Message:   "Intent catalog validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Classification Tables
// ==========================

// GetRetryCount returns how many local recovery attempts a code allows.
// Dispatch codes are always zero: financial mutations are never retried
// automatically.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeExtractionFailed, ErrCodeDomainAmbiguous, ErrCodePinVerifyFailed:
		return 3
	case ErrCodeSessionStoreFailed, ErrCodeLLMTimeout, ErrCodeLLMFailed:
		return 1
	default:
		return 0
	}
}

// GetErrorCategory groups codes for logging and metrics.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeExtractionFailed, ErrCodeDomainAmbiguous, ErrCodeRepromptsExceeded:
		return "nlu"
	case ErrCodePinVerifyFailed, ErrCodePinAttemptsExceeded:
		return "security"
	case ErrCodeDispatchFailed, ErrCodeDispatchUnknown, ErrCodeReplayedToken:
		return "dispatch"
	case ErrCodeAccountNotFound, ErrCodeInsufficientFunds, ErrCodeSameAccountTransfer:
		return "banking"
	case ErrCodeLLMTimeout, ErrCodeLLMFailed:
		return "llm"
	default:
		return "infrastructure"
	}
}
