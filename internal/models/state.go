package models

import (
	"errors"
	"fmt"
)

// TransactionState is the lifecycle state of a Transaction.
type TransactionState string

const (
	StateInitialized            TransactionState = "INITIALIZED"
	StateUserInteractionPending TransactionState = "USER_INTERACTION_PENDING"
	StateFinalizePending        TransactionState = "FINALIZE_PENDING"
	StatePurchased              TransactionState = "PURCHASED"
	StateDenied                 TransactionState = "DENIED"
	StateIssueError             TransactionState = "ISSUE_ERROR"
	StateError                  TransactionState = "ERROR"
	StateCancelled              TransactionState = "CANCELLED"
	StateCancelFailed           TransactionState = "CANCEL_FAILED"
	StateCancelPaymentRefunded  TransactionState = "CANCEL_PAYMENT_REFUNDED"
	StateCancelPursePending     TransactionState = "CANCEL_PURSE_PENDING"
)

// ErrInvalidTransition is returned when a state change is not in the transition table.
var ErrInvalidTransition = errors.New("invalid transaction state transition")

// allowedTransitions maps a state to the states reachable from it. Terminal
// states have no entry.
var allowedTransitions = map[TransactionState][]TransactionState{
	StateInitialized: {StateUserInteractionPending, StateFinalizePending},
	StateUserInteractionPending: {
		StatePurchased, StateDenied, StateIssueError, StateError, StateCancelled,
		StateCancelFailed, StateCancelPaymentRefunded, StateCancelPursePending,
	},
	StateFinalizePending: {
		StatePurchased, StateDenied, StateIssueError, StateError, StateCancelled,
		StateCancelFailed, StateCancelPaymentRefunded, StateCancelPursePending,
	},
	StatePurchased:             {StateCancelled, StateCancelFailed, StateCancelPaymentRefunded, StateCancelPursePending},
	StateCancelPaymentRefunded: {StateCancelPursePending, StateCancelFailed, StateCancelled},
	StateCancelPursePending:    {StateCancelFailed, StateCancelled},
	StateCancelFailed:          {StateCancelPaymentRefunded, StateCancelPursePending, StateCancelled},
	StateIssueError:            {},
}

// IsTerminal reports whether no transition leaves s.
func (s TransactionState) IsTerminal() bool {
	switch s {
	case StateCancelled, StateDenied, StateError:
		return true
	}
	return false
}

// IsPending reports whether s awaits finalization.
func (s TransactionState) IsPending() bool {
	return s == StateFinalizePending || s == StateUserInteractionPending
}

// IsCancelInProgress reports whether s is one of the intermediate cancel states.
func (s TransactionState) IsCancelInProgress() bool {
	switch s {
	case StateCancelFailed, StateCancelPaymentRefunded, StateCancelPursePending:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s TransactionState) CanTransitionTo(next TransactionState) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the transaction to next. Re-entering the current state
// is a no-op.
func (t *Transaction) TransitionTo(next TransactionState) error {
	if t.State == next {
		return nil
	}
	if !t.State.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.State, next)
	}
	t.State = next
	return nil
}
