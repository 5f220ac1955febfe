package core

import (
	"context"
)

// ActorSystem manages the lifecycle of all units in the runtime.
type ActorSystem interface {
	// Spawn starts fn as a new isolated unit and returns a capability to it.
	Spawn(fn ProcessFunc, opts ActorOptions) (Capability, error)

	// NewMailbox creates a receive endpoint that is not a unit.
	NewMailbox(name string) *Mailbox

	// Request sends data to target with a fresh reply capability attached
	// first, followed by caps, and waits for exactly one reply. A full
	// mailbox delays the request until ctx ends.
	Request(ctx context.Context, target Capability, data []byte, caps ...Capability) (*Message, error)

	// Kill stops the unit addressed by c.
	Kill(c Capability) error

	// Process returns the live unit addressed by c.
	Process(c Capability) (*Process, bool)

	// Stats returns statistics for all live units.
	Stats() []ActorStats

	// Shutdown stops every unit and waits for them to exit.
	Shutdown(ctx context.Context) error
}
