package spawn

import (
	"context"
	"fmt"
	"time"

	"github.com/najoast/kiln/core"
	"github.com/najoast/kiln/protocol"
)

// Client issues spawn requests.
type Client struct {
	sys     core.ActorSystem
	target  core.Capability
	timeout time.Duration
}

// NewClient creates a client for the spawn unit at target.
func NewClient(sys core.ActorSystem, target core.Capability, timeout time.Duration) *Client {
	return &Client{sys: sys, target: target, timeout: timeout}
}

// Spawn runs the executable and returns the new unit's capability. args
// are handed to the new unit at spawn time.
func (c *Client) Spawn(ctx context.Context, req protocol.SpawnRequest, args ...core.Capability) (core.Capability, error) {
	ctx, cancel := core.RequestContext(ctx, c.timeout)
	defer cancel()

	msg, err := c.sys.Request(ctx, c.target, protocol.MustEncode(req), args...)
	if err != nil {
		return core.Capability{}, fmt.Errorf("spawn %s: %w", req.Executable, err)
	}

	var resp protocol.SpawnResponse
	if err := protocol.Decode("spawn", msg.Data, &resp); err != nil {
		return core.Capability{}, err
	}
	if resp.Error != "" {
		return core.Capability{}, fmt.Errorf("%w: %s", ErrSpawnFailed, resp.Error)
	}

	unit, ok := msg.Cap(0)
	if !ok {
		return core.Capability{}, protocol.Errorf("spawn", "reply carries no unit capability")
	}
	return unit, nil
}
