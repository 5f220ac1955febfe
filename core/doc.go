// Package core implements the capability runtime that kiln services run on.
//
// A unit is an isolated goroutine with a private mailbox. The only way to
// reach a unit is through a Capability, an unforgeable reference handed out
// by the runtime when the unit is spawned. Capabilities travel inside
// messages, so attaching one to a Message grants the receiver the same
// permission to address the target. Nothing else is shared between units.
package core
