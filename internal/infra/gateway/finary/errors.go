package finary

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed request.
type ErrorKind string

const (
	// KindCredential: no usable token, or the API rejected it twice.
	KindCredential ErrorKind = "credential"
	// KindTransport: network failure or 5xx that outlived the retry budget.
	KindTransport ErrorKind = "transport"
	// KindValidation: the API answered 400.
	KindValidation ErrorKind = "validation"
	// KindClient: any other 4xx.
	KindClient ErrorKind = "client"
	// KindShape: a 2xx response whose body is not JSON.
	KindShape ErrorKind = "shape"
	// KindCanceled: the caller's context ended first.
	KindCanceled ErrorKind = "canceled"
)

// ErrCurrencyNotApplied is returned when the display currency read back
// after an update differs from the one requested.
var ErrCurrencyNotApplied = errors.New("display currency was not applied")

// APIError is the terminal failure of Client.Request.
type APIError struct {
	Kind       ErrorKind
	Method     string
	Endpoint   string
	StatusCode int
	Attempts   int
	Body       string
	Err        error

	transient bool
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("finary %s %s: %s error", e.Method, e.Endpoint, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the failure was eligible for retry.
func (e *APIError) Temporary() bool {
	return e.transient
}

// KindOf returns the kind of an APIError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// IsCredentialError checks if an error is (or wraps) a credential failure
func IsCredentialError(err error) bool { return KindOf(err) == KindCredential }

// IsTransportError checks if an error is (or wraps) an exhausted transport failure
func IsTransportError(err error) bool { return KindOf(err) == KindTransport }

// IsValidationError checks if an error is (or wraps) a 400 response
func IsValidationError(err error) bool { return KindOf(err) == KindValidation }

// IsClientError checks if an error is (or wraps) a non-400 4xx response
func IsClientError(err error) bool { return KindOf(err) == KindClient }

// IsShapeError checks if an error is (or wraps) a malformed response body
func IsShapeError(err error) bool { return KindOf(err) == KindShape }

// IsCanceled checks if an error is (or wraps) a canceled request
func IsCanceled(err error) bool { return KindOf(err) == KindCanceled }
