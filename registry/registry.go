// Package registry implements the registry unit: an immutable directory of
// named capabilities, seeded once by a bootstrap message and then queried
// with Get and List.
//
// A registry never accepts new entries after bootstrap. Register requests
// are answered as unsupported.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/najoast/kiln/core"
	"github.com/najoast/kiln/metrics"
	"github.com/najoast/kiln/protocol"
)

var (
	// ErrBootstrap is returned when the bootstrap message is malformed.
	ErrBootstrap = errors.New("registry bootstrap failed")

	// ErrUnsupported is returned by Client.Register.
	ErrUnsupported = errors.New("registry operation unsupported")
)

// Entry is one named capability.
type Entry struct {
	Name string
	Cap  core.Capability
}

// directory is the state of a running registry.
type directory struct {
	names   []string
	entries map[string]core.Capability
}

// Serve is the registry unit body. The first message must be a
// RegistryBootstrap; every later message is a request whose reply
// capability comes first.
func Serve(ctx context.Context, p *core.Process) error {
	logger := p.Logger()

	first, err := p.Recv(ctx)
	if err != nil {
		return err
	}
	dir, err := bootstrap(first)
	if err != nil {
		return err
	}
	logger.Debug().Int("entries", len(dir.names)).Msg("registry ready")

	for {
		msg, err := p.Recv(ctx)
		if err != nil {
			return err
		}

		reply, ok := msg.Cap(0)
		if !ok {
			logger.Warn().Uint64("msg", msg.ID).Msg("registry request without reply capability")
			continue
		}

		var req protocol.RegistryRequest
		if err := protocol.Decode("registry", msg.Data, &req); err != nil {
			logger.Warn().Err(err).Msg("dropping malformed registry request")
			continue
		}
		metrics.RegistryRequestsTotal.WithLabelValues(string(req.Kind)).Inc()

		resp, caps := dir.handle(req)
		if err := reply.Reply(protocol.MustEncode(resp), caps...); err != nil {
			logger.Warn().Err(err).Str("kind", string(req.Kind)).Msg("failed to deliver registry reply")
		}
	}
}

// bootstrap builds the directory from the first message and answers the
// acknowledgement capability when one is attached.
func bootstrap(msg *core.Message) (*directory, error) {
	var boot protocol.RegistryBootstrap
	if err := protocol.Decode("registry.bootstrap", msg.Data, &boot); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBootstrap, err)
	}

	caps := msg.Caps
	var ack core.Capability
	if boot.Ack && len(caps) > 0 {
		ack = caps[len(caps)-1]
		caps = caps[:len(caps)-1]
	}

	dir, err := newDirectory(boot.Names, caps)

	if ack.Valid() {
		var ready protocol.RegistryReady
		if err != nil {
			ready.Error = err.Error()
		}
		// The unit exits on a failed bootstrap either way.
		_ = ack.Reply(protocol.MustEncode(ready))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBootstrap, err)
	}
	return dir, nil
}

func newDirectory(names []string, caps []core.Capability) (*directory, error) {
	if len(names) != len(caps) {
		return nil, protocol.Errorf("registry.bootstrap", "%d names but %d capabilities", len(names), len(caps))
	}

	dir := &directory{
		names:   make([]string, 0, len(names)),
		entries: make(map[string]core.Capability, len(names)),
	}
	for i, name := range names {
		if name == "" {
			return nil, protocol.Errorf("registry.bootstrap", "entry %d has an empty name", i)
		}
		if _, dup := dir.entries[name]; dup {
			return nil, protocol.Errorf("registry.bootstrap", "duplicate name %q", name)
		}
		if !caps[i].Valid() {
			return nil, protocol.Errorf("registry.bootstrap", "entry %q has no capability", name)
		}
		dir.names = append(dir.names, name)
		dir.entries[name] = caps[i]
	}
	return dir, nil
}

func (d *directory) handle(req protocol.RegistryRequest) (protocol.RegistryResponse, []core.Capability) {
	switch req.Kind {
	case protocol.RegistryGet:
		c, ok := d.entries[req.Name]
		if !ok {
			return protocol.RegistryResponse{Kind: protocol.RegistryGet}, nil
		}
		return protocol.RegistryResponse{Kind: protocol.RegistryGet, Found: true}, []core.Capability{c}
	case protocol.RegistryList:
		return protocol.RegistryResponse{Kind: protocol.RegistryList, Names: append([]string(nil), d.names...)}, nil
	default:
		return protocol.RegistryResponse{Kind: req.Kind, Unsupported: true}, nil
	}
}
