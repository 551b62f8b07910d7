package services

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected operation for the HTTP boundary.
type Kind int

const (
	KindInvalidRequest Kind = iota + 1
	KindNotFound
	KindConflict
	KindUnauthorized
	KindStoreFailure
	KindInconsistency
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindStoreFailure:
		return "store_failure"
	case KindInconsistency:
		return "inconsistency"
	default:
		return "unknown"
	}
}

// Reason codes refining a Kind.
const (
	CodeDuplicateVote   = "duplicate_vote"
	CodeVotingClosed    = "voting_closed"
	CodeAlreadyReleased = "already_released"
	CodeNotReleased     = "not_released"
	CodeOverlap         = "overlap"
)

// Error is what services return to the boundary: a kind, an optional
// reason code and a short human readable message. Err keeps the cause
// for logging only.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func invalid(msg string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: msg}
}

func notFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func conflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

func storeFailure(msg string, err error) *Error {
	return &Error{Kind: KindStoreFailure, Message: msg, Err: err}
}

func inconsistency(msg string, err error) *Error {
	return &Error{Kind: KindInconsistency, Message: msg, Err: err}
}

// AsError extracts a *Error from err, wrapping anything else as a store
// failure so the boundary never has to render a raw error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return storeFailure("internal error", err)
}

// IsKind reports whether err is a service error of kind k.
func IsKind(err error, k Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == k
}

// HasCode reports whether err is a service error with the given code.
func HasCode(err error, code string) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == code
}
