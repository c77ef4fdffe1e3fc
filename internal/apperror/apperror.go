// Package apperror classifies failures raised by the saga engine and its
// collaborators so callers can map them onto their own transport status.
package apperror

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the classification of an Error.
type Kind int

const (
	KindInternal Kind = iota
	KindPolicy
	KindInsufficientFunds
	KindPaymentGateway
	KindLedgerConflict
	KindLedgerUnavailable
	KindIssuance
	KindConcurrency
	KindConsistencyGap
	KindNotFound
	KindInvalidState
	KindForbidden
	KindConflict
)

var kindNames = map[Kind]string{
	KindInternal:          "internal",
	KindPolicy:            "policy_violation",
	KindInsufficientFunds: "insufficient_funds",
	KindPaymentGateway:    "payment_gateway",
	KindLedgerConflict:    "ledger_conflict",
	KindLedgerUnavailable: "ledger_unavailable",
	KindIssuance:          "issuance",
	KindConcurrency:       "concurrency_conflict",
	KindConsistencyGap:    "consistency_gap",
	KindNotFound:          "not_found",
	KindInvalidState:      "invalid_state",
	KindForbidden:         "forbidden",
	KindConflict:          "conflict",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure. Gaps lists compensation steps that failed
// while handling it; they are reported, never raised on their own.
type Error struct {
	Kind          Kind
	Op            string
	Msg           string
	Err           error
	Retryable     bool
	UserCancelled bool
	Gaps          []error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else {
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error of the given kind.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err, Retryable: IsRetryable(err), UserCancelled: IsUserCancelled(err)}
}

func Policy(op, msg string) *Error {
	return New(KindPolicy, op, msg)
}

func NotFound(op, msg string) *Error {
	return New(KindNotFound, op, msg)
}

func InvalidState(op, msg string) *Error {
	return New(KindInvalidState, op, msg)
}

func Forbidden(op, msg string) *Error {
	return New(KindForbidden, op, msg)
}

func Conflict(op, msg string) *Error {
	return New(KindConflict, op, msg)
}

func Concurrency(op, msg string) *Error {
	return New(KindConcurrency, op, msg)
}

// Gateway builds a payment gateway failure.
func Gateway(op string, err error, retryable bool) *Error {
	return &Error{Kind: KindPaymentGateway, Op: op, Err: err, Retryable: retryable}
}

// UserCancelledGateway builds a gateway failure caused by the payer aborting
// the interactive step.
func UserCancelledGateway(op string, err error) *Error {
	return &Error{Kind: KindPaymentGateway, Op: op, Err: err, UserCancelled: true}
}

// KindOf returns the kind of the outermost Error in err's chain, or
// KindInternal when err is not classified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

func IsRetryable(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Retryable
}

func IsUserCancelled(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.UserCancelled
}

// WithGaps attaches compensation failures to err, classifying it as internal
// when it is not already an *Error.
func WithGaps(err error, gaps []error) error {
	if err == nil || len(gaps) == 0 {
		return err
	}
	var ae *Error
	if errors.As(err, &ae) {
		cp := *ae
		cp.Gaps = append(append([]error(nil), ae.Gaps...), gaps...)
		return &cp
	}
	return &Error{Kind: KindInternal, Err: err, Gaps: gaps}
}

// GapsOf returns the compensation failures attached to err.
func GapsOf(err error) []error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Gaps
	}
	return nil
}
