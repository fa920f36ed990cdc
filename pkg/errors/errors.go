package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies failures of the analysis pipeline
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindDataUnavailable     Kind = "data_unavailable"
	KindInsufficientHistory Kind = "insufficient_history"
	KindUpstreamFetch       Kind = "upstream_fetch_failure"
	KindCacheStore          Kind = "cache_store_failure"
	KindTimeout             Kind = "timeout"
	KindInternal            Kind = "internal"
)

type AppError struct {
	Kind    Kind   `json:"code"`
	Code    int    `json:"-"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	// Ticker is set for data and upstream failures
	Ticker    string `json:"ticker,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Err       error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(kind Kind, message string, details ...string) *AppError {
	var detail string
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{
		Kind:    kind,
		Code:    HTTPStatus(kind),
		Message: message,
		Details: detail,
	}
}

func NewInvalidInput(message string, details ...string) *AppError {
	return NewAppError(KindInvalidInput, message, details...)
}

func NewDataUnavailable(ticker string) *AppError {
	err := NewAppError(KindDataUnavailable, fmt.Sprintf("No price data available for %s in the requested range", ticker))
	err.Ticker = ticker
	return err
}

func NewInsufficientHistory(required, got int) *AppError {
	return NewAppError(KindInsufficientHistory,
		fmt.Sprintf("Insufficient overlapping history: need at least %d common trading days, got %d", required, got))
}

func NewUpstreamFetchFailure(provider, ticker string, attempts int, cause error) *AppError {
	err := NewAppError(KindUpstreamFetch,
		fmt.Sprintf("Failed to fetch prices for %s from %s after %d attempts", ticker, provider, attempts))
	err.Ticker = ticker
	err.Retryable = true
	err.Err = cause
	return err
}

func NewCacheStoreFailure(op string, cause error) *AppError {
	err := NewAppError(KindCacheStore, fmt.Sprintf("cache store %s failed", op))
	err.Err = cause
	return err
}

func NewTimeout(message string, cause error) *AppError {
	err := NewAppError(KindTimeout, message)
	err.Retryable = true
	err.Err = cause
	return err
}

func NewInternalError(message string, cause error) *AppError {
	err := NewAppError(KindInternal, message)
	err.Err = cause
	return err
}

// KindOf returns the kind of the first AppError in err's chain, or KindInternal
func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As is a shorthand for errors.As into *AppError
func As(err error) (*AppError, bool) {
	var appErr *AppError
	ok := stderrors.As(err, &appErr)
	return appErr, ok
}

// HTTPStatus maps an error kind to the status returned by the web layer
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindDataUnavailable:
		return http.StatusNotFound
	case KindInsufficientHistory:
		return http.StatusUnprocessableEntity
	case KindUpstreamFetch:
		return http.StatusBadGateway
	case KindCacheStore:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

var (
	ErrEmptyTickers      = NewInvalidInput("At least one ticker is required.")
	ErrLengthMismatch    = NewInvalidInput("Tickers and weights must have the same length.")
	ErrNoPositiveWeights = NewInvalidInput("At least one ticker with a positive weight is required.")
	ErrDateOrder         = NewInvalidInput("Start date must be before end date.")
)
