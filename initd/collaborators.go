package initd

import (
	"context"

	"github.com/najoast/kiln/core"
	"github.com/najoast/kiln/protocol"
)

// Storage is the part of the storage collaborator init uses.
type Storage interface {
	Get(ctx context.Context, target string) (protocol.ContentID, error)
	List(ctx context.Context, target string) ([]protocol.DirEntry, error)
	Load(ctx context.Context, id protocol.ContentID) ([]byte, error)
}

// Spawner starts executable payloads as units.
type Spawner interface {
	Spawn(ctx context.Context, req protocol.SpawnRequest, args ...core.Capability) (core.Capability, error)
}

// Discovery resolves well-known service names.
type Discovery interface {
	Lookup(ctx context.Context, name string) (core.Capability, bool, error)
}
