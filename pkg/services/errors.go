package services

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes surfaced to API clients
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeInsufficientFunds  = "INSUFFICIENT_FUNDS"
	CodeInsufficientShares = "INSUFFICIENT_SHARES"
	CodePriceUnavailable   = "PRICE_UNAVAILABLE"
	CodePersistence        = "PERSISTENCE_FAILURE"
	CodeBudgetLocked       = "BUDGET_LOCKED"
)

// AppError is a business or infrastructure error with a stable code, an
// HTTP status for the API layer, and optional machine-readable details
// (e.g. shortfall amount, owned vs requested shares)
type AppError struct {
	Code    string
	Status  int
	Message string
	Details map[string]interface{}
	cause   error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.cause
}

// AsAppError extracts an *AppError from an error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// ErrValidation reports bad input
func ErrValidation(message string) *AppError {
	return &AppError{Code: CodeValidation, Status: http.StatusBadRequest, Message: message}
}

// ErrNotFound reports a missing portfolio, stock, holding or cohort
func ErrNotFound(message string) *AppError {
	return &AppError{Code: CodeNotFound, Status: http.StatusNotFound, Message: message}
}

// ErrInsufficientFunds reports a buy that exceeds available cash
func ErrInsufficientFunds(required, available float64) *AppError {
	return &AppError{
		Code:    CodeInsufficientFunds,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("insufficient funds: need %.2f, have %.2f (short %.2f)", required, available, required-available),
		Details: map[string]interface{}{
			"required":  required,
			"available": available,
			"shortfall": required - available,
		},
	}
}

// ErrInsufficientShares reports a sell larger than the position
func ErrInsufficientShares(symbol string, owned, requested int) *AppError {
	return &AppError{
		Code:    CodeInsufficientShares,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("insufficient shares of %s: own %d, requested %d", symbol, owned, requested),
		Details: map[string]interface{}{
			"symbol":    symbol,
			"owned":     owned,
			"requested": requested,
		},
	}
}

// ErrPriceUnavailable reports a failed execution-price fetch; trades fail
// closed rather than execute at a stale or guessed price
func ErrPriceUnavailable(symbol string, cause error) *AppError {
	return &AppError{
		Code:    CodePriceUnavailable,
		Status:  http.StatusServiceUnavailable,
		Message: fmt.Sprintf("no live price available for %s", symbol),
		cause:   cause,
	}
}

// ErrPersistence reports a storage write failure
func ErrPersistence(op string, cause error) *AppError {
	return &AppError{
		Code:    CodePersistence,
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf("storage failure during %s", op),
		cause:   cause,
	}
}

// ErrBudgetLocked reports an attempt to edit a group-controlled budget
func ErrBudgetLocked() *AppError {
	return &AppError{
		Code:    CodeBudgetLocked,
		Status:  http.StatusForbidden,
		Message: "budget is controlled by the group administrator",
	}
}
