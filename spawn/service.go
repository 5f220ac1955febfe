package spawn

import (
	"context"
	"fmt"
	"time"

	"github.com/najoast/kiln/core"
	"github.com/najoast/kiln/metrics"
	"github.com/najoast/kiln/protocol"
	"github.com/najoast/kiln/storage"
)

// Service is the spawn unit. It loads payloads from storage and starts the
// program they name as a new unit.
type Service struct {
	catalog *Catalog
	storage core.Capability
	timeout time.Duration
}

// NewService creates a spawn service that loads payloads through the
// storage unit at store.
func NewService(catalog *Catalog, store core.Capability, timeout time.Duration) *Service {
	return &Service{catalog: catalog, storage: store, timeout: timeout}
}

// Run is the unit body.
func (s *Service) Run(ctx context.Context, p *core.Process) error {
	logger := p.Logger()
	store := storage.NewClient(p.System(), s.storage, s.timeout)

	for {
		msg, err := p.Recv(ctx)
		if err != nil {
			return err
		}

		reply, ok := msg.Cap(0)
		if !ok {
			logger.Warn().Uint64("msg", msg.ID).Msg("spawn request without reply capability")
			continue
		}

		child, err := s.spawn(ctx, p, store, msg)
		if err != nil {
			metrics.SpawnRequestsTotal.WithLabelValues("error").Inc()
			logger.Warn().Err(err).Msg("spawn failed")
			if err := reply.Reply(protocol.MustEncode(protocol.SpawnResponse{Error: err.Error()})); err != nil {
				logger.Warn().Err(err).Msg("failed to deliver spawn reply")
			}
			continue
		}

		metrics.SpawnRequestsTotal.WithLabelValues("ok").Inc()
		logger.Debug().Str("unit", child.String()).Msg("spawned")
		if err := reply.Reply(protocol.MustEncode(protocol.SpawnResponse{}), child); err != nil {
			logger.Warn().Err(err).Msg("failed to deliver spawn reply")
		}
	}
}

func (s *Service) spawn(ctx context.Context, p *core.Process, store *storage.Client, msg *core.Message) (core.Capability, error) {
	var req protocol.SpawnRequest
	if err := protocol.Decode("spawn", msg.Data, &req); err != nil {
		return core.Capability{}, err
	}
	if req.Executable == "" {
		return core.Capability{}, fmt.Errorf("missing executable")
	}

	data, err := store.Load(ctx, req.Executable)
	if err != nil {
		return core.Capability{}, fmt.Errorf("load executable %s: %w", req.Executable, err)
	}

	program, err := selectProgram(data, req.Entrypoint)
	if err != nil {
		return core.Capability{}, err
	}
	fn, ok := s.catalog.Lookup(program)
	if !ok {
		return core.Capability{}, fmt.Errorf("%w: %s", ErrUnknownProgram, program)
	}

	name := req.Name
	if name == "" {
		name = program
	}
	return p.System().Spawn(fn, core.ActorOptions{Name: name, Args: msg.Caps[1:]})
}
