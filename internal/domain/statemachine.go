package domain

import (
	"fmt"
)

// Actor identifies who is requesting a status transition.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorOwner    Actor = "owner"
	ActorShipper  Actor = "shipper"
)

// InvalidTransitionError reports a (current, target, actor) combination
// absent from the allowed transition table.
type InvalidTransitionError struct {
	From  OrderStatus
	To    OrderStatus
	Actor Actor
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order state machine: %s may not move order from %s to %s", e.Actor, e.From, e.To)
}

type transitionKey struct {
	from  OrderStatus
	to    OrderStatus
	actor Actor
}

// StateMachine validates order status transitions. It holds no I/O and no
// mutable state; legality is a pure function of (current, target, actor).
//
// Claiming an order is deliberately not a transition: assignment writes
// shipperId while the status stays ready, and the ready->shipping step is
// a separate pickup event.
type StateMachine struct {
	allowed map[transitionKey]struct{}
}

// NewStateMachine builds the transition table. customerCancellable is the
// policy allow-list of statuses a customer may self-cancel from; when
// empty it defaults to pending and confirmed.
func NewStateMachine(customerCancellable []OrderStatus) *StateMachine {
	if len(customerCancellable) == 0 {
		customerCancellable = []OrderStatus{OrderStatusPending, OrderStatusConfirmed}
	}

	allowed := map[transitionKey]struct{}{
		// Owner drives the kitchen forward one step at a time.
		{OrderStatusPending, OrderStatusConfirmed, ActorOwner}:  {},
		{OrderStatusConfirmed, OrderStatusPreparing, ActorOwner}: {},
		{OrderStatusPreparing, OrderStatusReady, ActorOwner}:    {},

		// Shipper moves a claimed order through delivery.
		{OrderStatusReady, OrderStatusShipping, ActorShipper}:    {},
		{OrderStatusShipping, OrderStatusDelivered, ActorShipper}: {},

		// Owner may back out before the food is ready.
		{OrderStatusConfirmed, OrderStatusCancelled, ActorOwner}: {},
		{OrderStatusPreparing, OrderStatusCancelled, ActorOwner}: {},
	}

	for _, status := range customerCancellable {
		if status == OrderStatusDelivered || status == OrderStatusCancelled {
			continue
		}
		allowed[transitionKey{status, OrderStatusCancelled, ActorCustomer}] = struct{}{}
	}

	return &StateMachine{allowed: allowed}
}

// ValidateTransition returns an *InvalidTransitionError unless the
// (current, target, actor) triple is in the allowed table. Transitions out
// of either terminal state always fail.
func (m *StateMachine) ValidateTransition(current, target OrderStatus, actor Actor) error {
	if _, ok := m.allowed[transitionKey{current, target, actor}]; ok {
		return nil
	}
	return &InvalidTransitionError{From: current, To: target, Actor: actor}
}

// CanTransition is a convenience wrapper over ValidateTransition.
func (m *StateMachine) CanTransition(current, target OrderStatus, actor Actor) bool {
	return m.ValidateTransition(current, target, actor) == nil
}
