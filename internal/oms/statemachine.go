// Package oms implements the order execution core: the lifecycle state
// machine and the coordinator that drives broker calls, retries, and audit
// events.
package oms

import (
	"github.com/erdoganonur/bist-trading-platform-sub007/internal/domain"
)

// Event names a state machine input. The transition table below is the
// single source of truth for order lifecycle edges; the cancellable,
// modifiable, and final predicates are all derived from it.
type Event string

const (
	EventSentOK        Event = "sent_ok"
	EventBrokerAck     Event = "broker_ack"
	EventPartialFill   Event = "partial_fill"
	EventFullFill      Event = "full_fill"
	EventCancelRequest Event = "cancel_request"
	EventCancelAck     Event = "cancel_ack"
	EventCancelReject  Event = "cancel_reject"
	EventReplaceReq    Event = "replace_request"
	EventReplaceAck    Event = "replace_ack"
	EventReplaceReject Event = "replace_reject"
	EventReject        Event = "reject"
	EventExpire        Event = "expire"
	EventSuspend       Event = "suspend"
	EventError         Event = "error"
)

var transitions = map[domain.OrderStatus]map[Event]domain.OrderStatus{
	domain.StatusPending: {
		EventSentOK:        domain.StatusSent,
		EventCancelRequest: domain.StatusPendingCancel,
		EventReject:        domain.StatusRejected,
		EventExpire:        domain.StatusExpired,
		EventError:         domain.StatusError,
	},
	domain.StatusSent: {
		EventBrokerAck:     domain.StatusActive,
		EventCancelRequest: domain.StatusPendingCancel,
		EventReject:        domain.StatusRejected,
		EventExpire:        domain.StatusExpired,
		EventSuspend:       domain.StatusSuspended,
		EventError:         domain.StatusError,
	},
	domain.StatusActive: {
		EventPartialFill:   domain.StatusPartiallyFill,
		EventFullFill:      domain.StatusFilled,
		EventCancelRequest: domain.StatusPendingCancel,
		EventReplaceReq:    domain.StatusPendingReplace,
		EventExpire:        domain.StatusExpired,
		EventSuspend:       domain.StatusSuspended,
		EventError:         domain.StatusError,
	},
	domain.StatusPartiallyFill: {
		EventPartialFill:   domain.StatusPartiallyFill,
		EventFullFill:      domain.StatusFilled,
		EventCancelRequest: domain.StatusPendingCancel,
		EventReplaceReq:    domain.StatusPendingReplace,
		EventExpire:        domain.StatusExpired,
		EventSuspend:       domain.StatusSuspended,
		EventError:         domain.StatusError,
	},
	domain.StatusPendingCancel: {
		EventCancelAck:    domain.StatusCancelled,
		EventCancelReject: domain.StatusCancelRejected,
		EventError:        domain.StatusError,
	},
	domain.StatusPendingReplace: {
		EventReplaceAck:    domain.StatusActive,
		EventReplaceReject: domain.StatusReplaceReject,
		EventError:         domain.StatusError,
	},
	domain.StatusSuspended: {
		EventBrokerAck: domain.StatusActive,
		EventCancelAck: domain.StatusCancelled,
		EventReject:    domain.StatusRejected,
		EventExpire:    domain.StatusExpired,
		EventError:     domain.StatusError,
	},
	// CANCEL_REJECTED and REPLACE_REJECTED return to the prior working
	// state through ResumeTo; terminal states have no outgoing edges.
}

// resumeTargets lists the states an order may return to after a rejected
// cancel or replace. FILLED covers "cancel rejected: already filled".
var resumeTargets = map[domain.OrderStatus]bool{
	domain.StatusSent:          true,
	domain.StatusActive:        true,
	domain.StatusPartiallyFill: true,
	domain.StatusFilled:        true,
}

// Transition validates current+event against the table and returns the next
// status. On an edge absent from the table it returns an
// InvalidTransitionError and the caller must not apply any state change.
func Transition(current domain.OrderStatus, ev Event) (domain.OrderStatus, error) {
	if next, ok := transitions[current][ev]; ok {
		return next, nil
	}
	return current, &domain.InvalidTransitionError{From: current, Event: string(ev)}
}

// ResumeTo returns the prior working state an order re-enters after
// CANCEL_REJECTED or REPLACE_REJECTED.
func ResumeTo(current, prior domain.OrderStatus) (domain.OrderStatus, error) {
	if current != domain.StatusCancelRejected && current != domain.StatusReplaceReject {
		return current, &domain.InvalidTransitionError{From: current, Event: "resume"}
	}
	if !resumeTargets[prior] {
		return current, &domain.InvalidTransitionError{From: current, Event: "resume to " + string(prior)}
	}
	return prior, nil
}

// CanCancel is derived from the table: a cancel_request edge exists.
func CanCancel(s domain.OrderStatus) bool {
	_, ok := transitions[s][EventCancelRequest]
	return ok
}

// CanModify is derived from the table: a replace_request edge exists.
func CanModify(s domain.OrderStatus) bool {
	_, ok := transitions[s][EventReplaceReq]
	return ok
}

// IsFinal reports whether s accepts no further events.
func IsFinal(s domain.OrderStatus) bool {
	if len(transitions[s]) > 0 {
		return false
	}
	// Reject-return states are transient, not final.
	return s != domain.StatusCancelRejected && s != domain.StatusReplaceReject
}

// IsWorking reports whether the order is live at the broker.
func IsWorking(s domain.OrderStatus) bool {
	switch s {
	case domain.StatusSent, domain.StatusActive, domain.StatusPartiallyFill:
		return true
	}
	return false
}
