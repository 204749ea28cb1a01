package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers that render or route on it.
type Kind string

const (
	// KindConnectionUnavailable: the remote session was never established.
	KindConnectionUnavailable Kind = "CONNECTION_UNAVAILABLE"

	// KindProtocolFault: the remote returned a structured SOAP fault.
	KindProtocolFault Kind = "PROTOCOL_FAULT"

	// KindTransport: network failure, timeout or an unexpected HTTP status.
	KindTransport Kind = "TRANSPORT_ERROR"

	// KindNormalizationGap: the reply had a missing or unrecognized shape.
	KindNormalizationGap Kind = "NORMALIZATION_GAP"

	// KindRecordValidation: a single record is missing a required field.
	KindRecordValidation Kind = "RECORD_VALIDATION"

	// KindPersistence: a local store write failed for a single record.
	KindPersistence Kind = "PERSISTENCE_ERROR"

	KindUnknown Kind = "UNKNOWN"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnrecognizedShape = errors.New("unrecognized reply shape")
	ErrRunInProgress     = errors.New("a sync run is already in progress")
	ErrInvalidCursor     = errors.New("invalid cursor")
)

// Error carries a Kind plus the operation and record it concerns.
type Error struct {
	Kind     Kind
	Op       string
	RemoteID string
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.RemoteID != "" {
		msg += fmt.Sprintf(" (property %s)", e.RemoteID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// RecordErr builds an *Error tied to one remote record.
func RecordErr(kind Kind, remoteID string, err error) *Error {
	return &Error{Kind: kind, RemoteID: remoteID, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, ErrUnrecognizedShape) {
		return KindNormalizationGap
	}
	return KindUnknown
}
