package providers

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a provider failure so the fallback chain can decide
// whether to continue with the next candidate.
type Kind string

const (
	KindAuth             Kind = "auth_error"
	KindRateLimited      Kind = "rate_limited"
	KindModelUnavailable Kind = "model_unavailable"
	KindTransient        Kind = "transient_error"
	KindEmptyResponse    Kind = "empty_response"
)

type Error struct {
	Kind  Kind
	Model string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (model %s)", e.Kind, e.Model)
	}
	return fmt.Sprintf("%s (model %s): %v", e.Kind, e.Model, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind Kind, model string, err error) *Error {
	return &Error{Kind: kind, Model: model, Err: err}
}

// Classify extracts the failure kind from an adapter error. Anything the
// adapter did not classify itself counts as transient.
func Classify(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// ClassifyStatus maps an HTTP status to a failure kind. 4xx responses other
// than auth and quota are treated as the model rejecting the request, since
// the request shape itself was validated before dispatch.
func ClassifyStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindTransient
	case status >= 400:
		return KindModelUnavailable
	default:
		return KindTransient
	}
}
