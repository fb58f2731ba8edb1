package fetcher

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrEmptySeries is returned when an upstream answers without any usable price.
var ErrEmptySeries = errors.New("empty price series")

// FetchError describes one failed upstream request.
type FetchError struct {
	Provider   string
	Symbol     string
	Endpoint   string
	StatusCode int
	Message    string
	Transient  bool
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: upstream error (%d): %s", e.Provider, e.Symbol, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Symbol, e.Message)
}

// IsTransient reports whether err is worth retrying: rate limits, 5xx and network failures.
func IsTransient(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient
	}
	return false
}

func transientStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func statusError(provider, symbol, endpoint string, status int, message string) *FetchError {
	message = strings.TrimSpace(message)
	if message == "" {
		message = http.StatusText(status)
	}
	return &FetchError{
		Provider:   provider,
		Symbol:     symbol,
		Endpoint:   endpoint,
		StatusCode: status,
		Message:    message,
		Transient:  transientStatus(status),
	}
}

func payloadError(provider, symbol, endpoint, message string) *FetchError {
	return &FetchError{Provider: provider, Symbol: symbol, Endpoint: endpoint, Message: message}
}

// AttemptFailure records why a single attempt failed.
type AttemptFailure struct {
	Label string
	Err   error
}

// ChainError accumulates the failures of every attempt tried.
type ChainError struct {
	Failures []AttemptFailure
}

func (e *ChainError) add(label string, err error) {
	e.Failures = append(e.Failures, AttemptFailure{Label: label, Err: err})
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if len(e.Failures) == 0 {
		return "no attempts available"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("[%s] %v", f.Label, f.Err))
	}
	return fmt.Sprintf("all %d attempts failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the individual failures to errors.Is/As.
func (e *ChainError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}

// Last returns the most recent failure, or nil.
func (e *ChainError) Last() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[len(e.Failures)-1].Err
}
