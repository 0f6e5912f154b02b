// SPDX-License-Identifier: MIT

package model

import (
	"errors"
	"fmt"
)

// Error kinds of the adaptation core. Callers branch with errors.Is;
// the transport maps them to stable wire codes.
var (
	ErrValidation       = errors.New("validation error")
	ErrAuth             = errors.New("auth error")
	ErrNotFound         = errors.New("not found")
	ErrBusy             = errors.New("busy")
	ErrDeadlineExceeded = errors.New("deadline exceeded")
	ErrPersistence      = errors.New("persistence error")
	ErrTransport        = errors.New("transport error")
	ErrNumeric          = errors.New("numeric error")
	ErrInternal         = errors.New("internal error")
)

// Stable machine-readable codes carried on error frames.
const (
	CodeInvalidAction    = "invalid_action"
	CodeMissingLearnerID = "missing_learner_id"
	CodeMissingBlock     = "missing_model_block"
	CodeNoSession        = "no_session"
	CodeBusy             = "busy"
	CodeUnauthorized     = "unauthorized"
	CodeProcessingError  = "processing_error"
	CodeAdaptationFailed = "adaptation_failed"
	CodeServerShutdown   = "server_shutdown"
)

// CodedError pairs a stable wire code with an error kind and a safe message.
// The message never echoes raw learner payloads.
type CodedError struct {
	Code    string
	Message string
	Kind    error
}

func (e *CodedError) Error() string { return e.Code + ": " + e.Message }

func (e *CodedError) Unwrap() error { return e.Kind }

// WireError builds a CodedError for the given stable code.
func WireError(code, message string, kind error) error {
	return &CodedError{Code: code, Message: message, Kind: kind}
}

// CodeOf extracts the stable wire code from err, falling back to kind mapping.
func CodeOf(err error) string {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	switch {
	case errors.Is(err, ErrBusy):
		return CodeBusy
	case errors.Is(err, ErrAuth):
		return CodeUnauthorized
	case errors.Is(err, ErrNotFound):
		return CodeNoSession
	case errors.Is(err, ErrValidation):
		return CodeInvalidAction
	case errors.Is(err, ErrNumeric), errors.Is(err, ErrInternal):
		return CodeAdaptationFailed
	default:
		return CodeProcessingError
	}
}

// Internalf wraps an invariant violation. Fatal to the owning session only.
func Internalf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInternal)...)
}
