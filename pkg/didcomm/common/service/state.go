/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package service

import "fmt"

// ConnectionState is one of the enumerated connection states (spec §4.1).
type ConnectionState string

// Canonical connection states. StateComplete is canonical; StateActive and
// StateCompletedAlias are accepted on read as legacy aliases (spec §9) and
// normalized to StateComplete by NormalizeState.
const (
	StateInvited   ConnectionState = "invited"
	StateRequested ConnectionState = "requested"
	StateResponded ConnectionState = "responded"
	StateComplete  ConnectionState = "complete"
	StateError     ConnectionState = "error"

	// legacy aliases, read-time only.
	StateActive         ConnectionState = "active"
	StateCompletedAlias ConnectionState = "completed"
)

// NormalizeState maps legacy aliases onto the canonical vocabulary. Anything
// not recognized as an alias is returned unchanged.
func NormalizeState(s ConnectionState) ConnectionState {
	switch s {
	case StateActive, StateCompletedAlias:
		return StateComplete
	default:
		return s
	}
}

// validStates is the canonical enumeration; aliases are never stored, only
// accepted on read.
var validStates = map[ConnectionState]bool{
	StateInvited:   true,
	StateRequested: true,
	StateResponded: true,
	StateComplete:  true,
	StateError:     true,
}

// IsValidState reports whether s is one of the canonical connection states.
func IsValidState(s ConnectionState) bool {
	return validStates[NormalizeState(s)]
}

// transitions enumerates the state machine edges of spec §4.1. "error" can
// be reached from any non-terminal state; StateComplete is terminal.
var transitions = map[ConnectionState]map[ConnectionState]bool{
	StateInvited:   {StateRequested: true, StateError: true},
	StateRequested: {StateResponded: true, StateError: true},
	StateResponded: {StateComplete: true, StateError: true},
	StateComplete:  {},
	StateError:     {StateInvited: true, StateRequested: true},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to ConnectionState) bool {
	from, to = NormalizeState(from), NormalizeState(to)

	if from == to {
		return false
	}

	edges, ok := transitions[from]
	if !ok {
		return false
	}

	return edges[to]
}

// ValidateTransition enforces the state machine strictly, returning a
// CoreError with CodeInvalidStateTransition when the edge does not exist.
// This is the "strict" layer referenced in spec §4.1 — the Connection
// Manager's RetryConnection calls this; repositories only log.
func ValidateTransition(from, to ConnectionState) error {
	if !IsValidState(to) {
		return NewError(CodeInvalidConnectionState, fmt.Sprintf("unknown connection state %q", to))
	}

	if !CanTransition(from, to) {
		return NewError(CodeInvalidStateTransition,
			fmt.Sprintf("cannot transition connection from %q to %q", NormalizeState(from), to))
	}

	return nil
}

// UsableForOutbound reports whether a connection in state s may transmit
// ordinary (non-handshake) outbound messages (spec §4.2 step 2).
func UsableForOutbound(s ConnectionState) bool {
	return NormalizeState(s) == StateComplete
}

// MessageState is one of the enumerated message states (spec §3).
type MessageState string

// Canonical message states.
const (
	MessageStatePending   MessageState = "pending"
	MessageStateSent      MessageState = "sent"
	MessageStateDelivered MessageState = "delivered"
	MessageStateFailed    MessageState = "failed"
	MessageStateProcessed MessageState = "processed"
)

// MessageDirection is inbound or outbound.
type MessageDirection string

// The two message directions.
const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)
