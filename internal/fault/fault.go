// Package fault defines the typed failure taxonomy used across the tick core.
// Fatal kinds terminate the current tick and propagate to the runtime host;
// recoverable kinds are ordinary return values the caller handles per its own
// policy. Control flow never crosses a tick-phase boundary via panic.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInvariantViolation is fatal: core state broke its own rules.
	KindInvariantViolation
	// KindContractViolation is fatal: a caller broke an API contract.
	KindContractViolation
	// KindBackpressureRejection is recoverable: a queue cap refused new work.
	KindBackpressureRejection
	// KindTransitionRejection is recoverable: a state machine refused a change.
	KindTransitionRejection
	// KindNotFound is recoverable: a referenced record does not exist.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInvariantViolation:
		return "INVARIANT_VIOLATION"
	case KindContractViolation:
		return "CONTRACT_VIOLATION"
	case KindBackpressureRejection:
		return "BACKPRESSURE_REJECTION"
	case KindTransitionRejection:
		return "TRANSITION_REJECTION"
	case KindNotFound:
		return "NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// Fatal reports whether failures of this kind must abort the tick.
func (k Kind) Fatal() bool {
	return k == KindInvariantViolation || k == KindContractViolation
}

// Code names the specific failure within a kind.
type Code string

// Invariant violations (fatal).
const (
	EligibilityMutatedMidTick Code = "EligibilityMutatedMidTick"
	CommittedIntentMismatch   Code = "CommittedIntentMismatch"
	InvalidCombatState        Code = "InvalidCombatState"
	EffectBufferMisuse        Code = "EffectBufferMisuse"
	TickThreadViolation       Code = "TickThreadViolation"
)

// Contract violations (fatal).
const (
	TickMismatch                   Code = "TickMismatch"
	DuplicatePayloadInBatch        Code = "DuplicatePayloadInBatch"
	AcceptedIntentResultAtApplyTime Code = "AcceptedIntentResultAtApplyTime"
	CaptureOutsidePostTick         Code = "CaptureOutsidePostTick"
)

// Backpressure rejections (recoverable).
const (
	BackpressureLimitHit Code = "BackpressureLimitHit"
	InvalidSession       Code = "InvalidSession"
)

// Transition rejections (recoverable).
const (
	IntentBlockedByState    Code = "IntentBlockedByState"
	MissingCombatContext    Code = "MissingCombatContext"
	MidTickMutationForbidden Code = "MidTickMutationForbidden"
	InvalidTransition       Code = "InvalidTransition"
	NotServerAuthority      Code = "NotServerAuthority"
)

// Not-found failures (recoverable).
const (
	QuestNotRegistered Code = "QuestNotRegistered"
	ItemMissing        Code = "ItemMissing"
	OwnershipMismatch  Code = "OwnershipMismatch"
)

// Fault is the concrete error carried by every core failure.
type Fault struct {
	Kind Kind
	Code Code
	Msg  string
}

func (f *Fault) Error() string {
	if f.Msg == "" {
		return fmt.Sprintf("%s/%s", f.Kind, f.Code)
	}
	return fmt.Sprintf("%s/%s: %s", f.Kind, f.Code, f.Msg)
}

// Is matches on (Kind, Code) so callers can compare against sentinel faults.
func (f *Fault) Is(target error) bool {
	var t *Fault
	if !errors.As(target, &t) {
		return false
	}
	return f.Kind == t.Kind && f.Code == t.Code
}

// New builds a fault with a formatted diagnostic message.
func New(kind Kind, code Code, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Invariant builds a fatal invariant-violation fault.
func Invariant(code Code, format string, args ...interface{}) *Fault {
	return New(KindInvariantViolation, code, format, args...)
}

// Contract builds a fatal contract-violation fault.
func Contract(code Code, format string, args ...interface{}) *Fault {
	return New(KindContractViolation, code, format, args...)
}

// Backpressure builds a recoverable backpressure rejection.
func Backpressure(code Code, format string, args ...interface{}) *Fault {
	return New(KindBackpressureRejection, code, format, args...)
}

// Transition builds a recoverable transition rejection.
func Transition(code Code, format string, args ...interface{}) *Fault {
	return New(KindTransitionRejection, code, format, args...)
}

// NotFound builds a recoverable not-found failure.
func NotFound(code Code, format string, args ...interface{}) *Fault {
	return New(KindNotFound, code, format, args...)
}

// KindOf extracts the Kind from err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}

// CodeOf extracts the Code from err, or "" for foreign errors.
func CodeOf(err error) Code {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return ""
}

// IsFatal reports whether err must abort the tick in progress.
func IsFatal(err error) bool {
	return KindOf(err).Fatal()
}
