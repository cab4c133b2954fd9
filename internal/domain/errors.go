package domain

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a class of backend failure.
type ErrorCode string

const (
	ErrorCodePermissionDenied ErrorCode = "permission_denied"
	ErrorCodeInvalidState     ErrorCode = "invalid_state"
	ErrorCodeConfiguration    ErrorCode = "configuration"
	ErrorCodeAuth             ErrorCode = "auth"
	ErrorCodeBadInput         ErrorCode = "bad_input"
	ErrorCodeRateLimited      ErrorCode = "rate_limited"
	ErrorCodeNetwork          ErrorCode = "network"
	ErrorCodeService          ErrorCode = "service"
	ErrorCodeNoSpeech         ErrorCode = "no_speech"
	ErrorCodeSynthesis        ErrorCode = "synthesis"
	ErrorCodeUnsupported      ErrorCode = "unsupported"
	ErrorCodeStartup          ErrorCode = "startup"
	ErrorCodeAudioStop        ErrorCode = "audio_stop"
	ErrorCodeAudioStream      ErrorCode = "audio_stream"
	ErrorCodeInternal         ErrorCode = "internal"
)

// Sentinels for errors.Is; matching is by code only.
var (
	ErrPermissionDenied = &Error{Code: ErrorCodePermissionDenied}
	ErrInvalidState     = &Error{Code: ErrorCodeInvalidState}
	ErrConfiguration    = &Error{Code: ErrorCodeConfiguration}
	ErrAuth             = &Error{Code: ErrorCodeAuth}
	ErrBadInput         = &Error{Code: ErrorCodeBadInput}
	ErrRateLimited      = &Error{Code: ErrorCodeRateLimited}
	ErrNetwork          = &Error{Code: ErrorCodeNetwork}
	ErrService          = &Error{Code: ErrorCodeService}
	ErrSynthesis        = &Error{Code: ErrorCodeSynthesis}
	ErrUnsupported      = &Error{Code: ErrorCodeUnsupported}
)

// Error is a classified pipeline failure.
type Error struct {
	Code   ErrorCode
	Status int
	Detail string
	Err    error
}

// NewError builds a classified error without a cause.
func NewError(code ErrorCode, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// WrapError classifies err under code.
func WrapError(code ErrorCode, err error, detail string) *Error {
	return &Error{Code: code, Detail: detail, Err: err}
}

// InvalidState reports a command issued from a state that does not accept it.
func InvalidState(command string, state TurnState) *Error {
	return &Error{Code: ErrorCodeInvalidState, Detail: fmt.Sprintf("cannot %s while %s", command, state)}
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Retryable reports whether repeating the same request may succeed.
func (e *Error) Retryable() bool {
	return e.Code == ErrorCodeNetwork || e.Code == ErrorCodeRateLimited
}

// CodeOf extracts the classification of err, defaulting to internal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Code
	}
	return ErrorCodeInternal
}

// IsRetryable reports whether err is a classified retryable failure.
func IsRetryable(err error) bool {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Retryable()
	}
	return false
}

// AsError returns err as a classified error, wrapping unknown failures.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	return WrapError(ErrorCodeInternal, err, "")
}
