package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/najoast/kiln/core"
	"github.com/najoast/kiln/protocol"
)

// Spawn starts a registry unit seeded with entries and waits until it has
// accepted the bootstrap.
func Spawn(ctx context.Context, sys core.ActorSystem, name string, entries []Entry) (core.Capability, error) {
	unit, err := sys.Spawn(Serve, core.ActorOptions{Name: name})
	if err != nil {
		return core.Capability{}, fmt.Errorf("spawn registry %s: %w", name, err)
	}

	ack := sys.NewMailbox(name + ".ack")
	defer ack.Close()

	if err := Bootstrap(unit, entries, ack.Cap()); err != nil {
		return core.Capability{}, err
	}

	msg, err := ack.Recv(ctx)
	if err != nil {
		return core.Capability{}, fmt.Errorf("registry %s bootstrap: %w", name, err)
	}
	var ready protocol.RegistryReady
	if err := protocol.Decode("registry.bootstrap", msg.Data, &ready); err != nil {
		return core.Capability{}, err
	}
	if ready.Error != "" {
		rejected := &protocol.Error{Op: "registry.bootstrap", Reason: "rejected by " + name, Err: errors.New(ready.Error)}
		return core.Capability{}, fmt.Errorf("%w: %w", ErrBootstrap, rejected)
	}
	return unit, nil
}

// Bootstrap sends the bootstrap message for entries to unit. A valid ack
// capability receives the RegistryReady.
func Bootstrap(unit core.Capability, entries []Entry, ack core.Capability) error {
	boot := protocol.RegistryBootstrap{Names: make([]string, len(entries))}
	caps := make([]core.Capability, 0, len(entries)+1)
	for i, e := range entries {
		boot.Names[i] = e.Name
		caps = append(caps, e.Cap)
	}
	if ack.Valid() {
		boot.Ack = true
		caps = append(caps, ack)
	}

	msg := &core.Message{Type: core.MessageTypeSystem, Data: protocol.MustEncode(boot), Caps: caps}
	if err := unit.SendMessage(msg); err != nil {
		return fmt.Errorf("bootstrap registry %s: %w", unit, err)
	}
	return nil
}

// Client queries a registry unit. The root registry doubles as service
// discovery, so Lookup is the discovery entry point.
type Client struct {
	sys     core.ActorSystem
	target  core.Capability
	timeout time.Duration
}

// NewClient creates a client for the registry at target.
func NewClient(sys core.ActorSystem, target core.Capability, timeout time.Duration) *Client {
	return &Client{sys: sys, target: target, timeout: timeout}
}

// Get returns the capability registered under name. found is false when
// the registry has no such entry.
func (c *Client) Get(ctx context.Context, name string) (core.Capability, bool, error) {
	resp, msg, err := c.do(ctx, protocol.RegistryRequest{Kind: protocol.RegistryGet, Name: name})
	if err != nil {
		return core.Capability{}, false, err
	}
	if !resp.Found {
		return core.Capability{}, false, nil
	}
	found, ok := msg.Cap(0)
	if !ok {
		return core.Capability{}, false, protocol.Errorf("registry.get", "found %q without a capability", name)
	}
	return found, true, nil
}

// Lookup resolves a well-known service name through discovery.
func (c *Client) Lookup(ctx context.Context, name string) (core.Capability, bool, error) {
	return c.Get(ctx, name)
}

// List returns every registered name.
func (c *Client) List(ctx context.Context) ([]string, error) {
	resp, _, err := c.do(ctx, protocol.RegistryRequest{Kind: protocol.RegistryList})
	if err != nil {
		return nil, err
	}
	return resp.Names, nil
}

// Register asks the registry to add an entry. Registries are immutable, so
// a live registry answers with ErrUnsupported.
func (c *Client) Register(ctx context.Context, name string, entry core.Capability) error {
	resp, _, err := c.do(ctx, protocol.RegistryRequest{Kind: protocol.RegistryRegister, Name: name}, entry)
	if err != nil {
		return err
	}
	if resp.Unsupported {
		return fmt.Errorf("%w: register %s", ErrUnsupported, name)
	}
	return nil
}

func (c *Client) do(ctx context.Context, req protocol.RegistryRequest, caps ...core.Capability) (*protocol.RegistryResponse, *core.Message, error) {
	op := "registry." + string(req.Kind)

	ctx, cancel := core.RequestContext(ctx, c.timeout)
	defer cancel()

	msg, err := c.sys.Request(ctx, c.target, protocol.MustEncode(req), caps...)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", op, req.Name, err)
	}

	var resp protocol.RegistryResponse
	if err := protocol.Decode(op, msg.Data, &resp); err != nil {
		return nil, nil, err
	}
	if resp.Kind != req.Kind {
		return nil, nil, protocol.Errorf(op, "unexpected reply variant %q", resp.Kind)
	}
	return &resp, msg, nil
}
