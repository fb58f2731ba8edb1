package service

import (
	"errors"
)

// Error codes reported to clients.
const (
	CodeInsufficientTransactions = "insufficient_transactions"
	CodeMissingPurchaseOrSale    = "missing_purchase_or_sale"
	CodeFutureSale               = "future_sale"
	CodeXIRRFailed               = "xirr_failed"
	CodeInternal                 = "internal"
)

// Error is a request failure with a stable code and a user-facing message.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on code so wrapped copies still compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Validation reports whether the failure was caused by the request itself.
func (e *Error) Validation() bool { return e.Code != CodeInternal }

var (
	ErrInsufficientTransactions = &Error{Code: CodeInsufficientTransactions, Message: "Add at least one purchase and one sale transaction."}
	ErrMissingPurchaseOrSale    = &Error{Code: CodeMissingPurchaseOrSale, Message: "Cashflows must include at least one purchase (negative) and one sale (positive)."}
	ErrFutureSale               = &Error{Code: CodeFutureSale, Message: "First sale date must be less than or equal to today."}
	ErrXIRRFailed               = &Error{Code: CodeXIRRFailed, Message: "Unable to compute XIRR for the provided cashflows."}
	ErrInternal                 = &Error{Code: CodeInternal, Message: "Server error"}
)

func withCause(sentinel *Error, err error) *Error {
	return &Error{Code: sentinel.Code, Message: sentinel.Message, Err: err}
}

// Internal wraps an unexpected failure, keeping its text as the message when available.
func Internal(err error) *Error {
	if err == nil {
		return ErrInternal
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return &Error{Code: CodeInternal, Message: err.Error(), Err: err}
}
