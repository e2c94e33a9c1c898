package model

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAuthExpired means the router rejected the session token; a new one must be supplied.
	ErrAuthExpired = errors.New("router session expired")
	// ErrUnreachable covers network-level failures talking to the router.
	ErrUnreachable = errors.New("router unreachable")
	// ErrMalformedResponse means a response arrived but is not the device list page.
	ErrMalformedResponse = errors.New("malformed router response")
	// ErrParse means the device list page was found but its table could not be read.
	ErrParse = errors.New("device list parse error")
	// ErrNotConfigured means router host or session token is missing.
	ErrNotConfigured = errors.New("router not configured")
)

type FailureKind string

const (
	FailureNone          FailureKind = ""
	FailureAuthExpired   FailureKind = "auth_expired"
	FailureUnreachable   FailureKind = "unreachable"
	FailureMalformed     FailureKind = "malformed_response"
	FailureParse         FailureKind = "parse_error"
	FailureNotConfigured FailureKind = "not_configured"
	FailureInternal      FailureKind = "internal"
)

// KindOf maps an error returned by a poll stage to its failure kind.
func KindOf(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrAuthExpired):
		return FailureAuthExpired
	case errors.Is(err, ErrParse):
		return FailureParse
	case errors.Is(err, ErrMalformedResponse):
		return FailureMalformed
	case errors.Is(err, ErrUnreachable), errors.Is(err, context.DeadlineExceeded):
		return FailureUnreachable
	case errors.Is(err, ErrNotConfigured):
		return FailureNotConfigured
	default:
		return FailureInternal
	}
}

// Transient reports whether a later poll is expected to clear the failure without user action.
func (k FailureKind) Transient() bool {
	return k != FailureAuthExpired && k != FailureNotConfigured
}

// Failure describes the last failed poll.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}
