package musickit

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyDeveloperToken is returned when FetchUserToken gets no token.
var ErrEmptyDeveloperToken = errors.New("developer token is empty")

// Error is a failure surfaced to the caller of a gateway operation.
type Error struct {
	Op      string    // Operation that failed
	Kind    ErrorKind // Type of error
	Message string    // Human readable message
	Details string    // Free text details
	Err     error     // Underlying error, if any
}

type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindDenied
	KindNotDetermined
	KindUnavailable
	KindUnknownResponse
	KindInvalidArguments
)

// Code returns the machine code callers branch on.
func (k ErrorKind) Code() string {
	switch k {
	case KindDenied:
		return "DENIED"
	case KindNotDetermined:
		return "NOT_DETERMINED"
	case KindUnavailable:
		return "UNAVAILABLE"
	case KindUnknownResponse:
		return "UNKNOWN_RESPONSE"
	case KindInvalidArguments:
		return "INVALID_ARGUMENTS"
	default:
		return "UNKNOWN"
	}
}

func (k ErrorKind) String() string {
	return k.Code()
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the wire code of the error kind.
func (e *Error) Code() string {
	return e.Kind.Code()
}

// KindOf returns the kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// PartialQueueError reports track ids the player could not queue. The
// remaining tracks are still queued and played.
type PartialQueueError struct {
	Missing []string
	Queued  int
}

func (e *PartialQueueError) Error() string {
	return fmt.Sprintf("%d of %d tracks not found: %s",
		len(e.Missing), len(e.Missing)+e.Queued, strings.Join(e.Missing, ", "))
}
