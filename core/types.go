package core

import (
	"errors"
	"time"
)

// ActorID represents a unique identifier for a unit or mailbox.
type ActorID uint32

// MessageType defines the type of message being sent.
type MessageType uint8

// Message represents communication data between units.
type Message struct {
	// ID is a unique identifier for this message
	ID uint64

	// Type indicates the message category
	Type MessageType

	// Source is the ID of the sending unit, zero when sent from outside one
	Source ActorID

	// Data contains the actual message payload
	Data []byte

	// Caps are the capabilities transferred with this message
	Caps []Capability

	// Timestamp when the message was created
	Timestamp time.Time
}

// Cap returns the i-th attached capability.
func (m *Message) Cap(i int) (Capability, bool) {
	if m == nil || i < 0 || i >= len(m.Caps) {
		return Capability{}, false
	}
	return m.Caps[i], m.Caps[i].Valid()
}

// ActorState represents the current state of a unit.
type ActorState uint8

const (
	// ActorStateIdle means the unit is waiting for messages
	ActorStateIdle ActorState = iota

	// ActorStateRunning means the unit is processing a message
	ActorStateRunning

	// ActorStateStopping means the unit is shutting down
	ActorStateStopping

	// ActorStateStopped means the unit has exited
	ActorStateStopped
)

// String returns the string representation of ActorState.
func (s ActorState) String() string {
	switch s {
	case ActorStateIdle:
		return "idle"
	case ActorStateRunning:
		return "running"
	case ActorStateStopping:
		return "stopping"
	case ActorStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	// MessageTypeText for plain messages
	MessageTypeText MessageType = iota

	// MessageTypeRequest for messages that carry a reply capability first
	MessageTypeRequest

	// MessageTypeResponse for replies to requests
	MessageTypeResponse

	// MessageTypeSystem for runtime control messages
	MessageTypeSystem

	// MessageTypeError for error notifications
	MessageTypeError
)

// String returns the string representation of MessageType.
func (t MessageType) String() string {
	switch t {
	case MessageTypeText:
		return "text"
	case MessageTypeRequest:
		return "request"
	case MessageTypeResponse:
		return "response"
	case MessageTypeSystem:
		return "system"
	case MessageTypeError:
		return "error"
	default:
		return "unknown"
	}
}

// ActorOptions contains configuration options for spawning a unit.
type ActorOptions struct {
	// MailboxSize sets the size of the unit's message queue
	MailboxSize int

	// Name is a human-readable name for the unit
	Name string

	// Args are capabilities handed to the unit at spawn time
	Args []Capability
}

// DefaultActorOptions returns sensible default options.
func DefaultActorOptions() ActorOptions {
	return ActorOptions{
		MailboxSize: 1000,
	}
}

// ActorStats contains runtime statistics for a unit.
type ActorStats struct {
	// ID of the unit
	ID ActorID

	// Name of the unit
	Name string

	// Current state
	State ActorState

	// Total messages received
	MessagesProcessed uint64

	// Messages currently in mailbox
	MailboxSize int

	// Time when the unit was spawned
	CreatedAt time.Time

	// Last message receive time
	LastMessageAt time.Time
}

var (
	// ErrInvalidCapability is returned when addressing a zero Capability.
	ErrInvalidCapability = errors.New("invalid capability")

	// ErrUnitStopped is returned when the addressed unit or mailbox is gone.
	ErrUnitStopped = errors.New("unit stopped")

	// ErrMailboxFull is returned when the target mailbox cannot accept more messages.
	ErrMailboxFull = errors.New("mailbox full")

	// ErrSystemShutdown is returned when spawning on a system that is shutting down.
	ErrSystemShutdown = errors.New("actor system is shutting down")
)
