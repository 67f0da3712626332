package fetcher

import (
	"errors"
	"fmt"
)

// FailureKind classifies an upstream failure for back-off selection.
type FailureKind int

const (
	// Transient covers network errors, timeouts, and HTTP 5xx. Retry in 60 s.
	Transient FailureKind = iota
	// Permanent covers HTTP 4xx, auth failures, documented API error
	// envelopes, and payload shape mismatches. Retry in 24 h.
	Permanent
)

func (k FailureKind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// UpstreamError describes a failed fetch against a provider.
type UpstreamError struct {
	Kind       FailureKind
	HTTPStatus int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.HTTPStatus != 0 && e.Message != "":
		return fmt.Sprintf("%s upstream failure (HTTP %d): %s", e.Kind, e.HTTPStatus, e.Message)
	case e.HTTPStatus != 0:
		return fmt.Sprintf("%s upstream failure (HTTP %d)", e.Kind, e.HTTPStatus)
	case e.Err != nil:
		return fmt.Sprintf("%s upstream failure: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s upstream failure: %s", e.Kind, e.Message)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func transientErr(err error) *UpstreamError {
	return &UpstreamError{Kind: Transient, Err: err}
}

func permanentf(format string, args ...any) *UpstreamError {
	return &UpstreamError{Kind: Permanent, Message: fmt.Sprintf(format, args...)}
}

// schemaMismatch marks a payload missing a required key. Treated as
// permanent so the section backs off a full day instead of hammering.
func schemaMismatch(provider, key string) *UpstreamError {
	return &UpstreamError{Kind: Permanent, Message: fmt.Sprintf("%s payload missing required key %q", provider, key)}
}

func httpStatusErr(status int, body string) *UpstreamError {
	kind := Transient
	if status >= 400 && status < 500 {
		kind = Permanent
	}
	return &UpstreamError{Kind: kind, HTTPStatus: status, Message: body}
}

// Classify returns the failure kind for an adapter error. Errors that are
// not UpstreamError (cancelled contexts, transport faults) count as
// transient.
func Classify(err error) FailureKind {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return Transient
}
