package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/najoast/kiln/metrics"
)

const replyMailboxSize = 4

// SystemOptions configures a new ActorSystem.
type SystemOptions struct {
	// MailboxSize is applied to units spawned without an explicit size
	MailboxSize int

	// Logger receives unit exit errors; nil disables logging
	Logger *zerolog.Logger
}

// system implements the ActorSystem interface.
type system struct {
	router      *router
	mailboxSize int
	logger      zerolog.Logger
	mu          sync.RWMutex

	// System shutdown context
	ctx    context.Context
	cancel context.CancelFunc

	// Wait group for all units
	wg sync.WaitGroup
}

// NewActorSystem creates a new ActorSystem with default options.
func NewActorSystem() ActorSystem {
	return NewActorSystemWithOptions(SystemOptions{})
}

// NewActorSystemWithOptions creates a new ActorSystem.
func NewActorSystemWithOptions(opts SystemOptions) ActorSystem {
	ctx, cancel := context.WithCancel(context.Background())

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = DefaultActorOptions().MailboxSize
	}

	return &system{
		router:      newRouter(),
		mailboxSize: opts.MailboxSize,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Spawn starts fn as a new unit.
func (s *system) Spawn(fn ProcessFunc, opts ActorOptions) (Capability, error) {
	if fn == nil {
		return Capability{}, fmt.Errorf("cannot spawn nil process")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check if system is shutting down
	select {
	case <-s.ctx.Done():
		return Capability{}, ErrSystemShutdown
	default:
	}

	if opts.MailboxSize <= 0 {
		opts.MailboxSize = s.mailboxSize
	}

	id := s.router.NextID()
	p := newProcess(s.ctx, id, fn, opts, s)

	if err := s.router.Register(p); err != nil {
		return Capability{}, fmt.Errorf("failed to register unit: %w", err)
	}

	metrics.ActorsLive.Inc()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer metrics.ActorsLive.Dec()

		p.run()
		s.router.Unregister(id)

		if err := p.Err(); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn().Err(err).Uint32("unit", uint32(id)).Str("name", p.name).Msg("unit exited with error")
		}
	}()

	return p.Self(), nil
}

// NewMailbox creates a receive-only endpoint.
func (s *system) NewMailbox(name string) *Mailbox {
	return &Mailbox{ep: newEndpoint(s.router.NextID(), name, replyMailboxSize)}
}

// Request performs one request/reply exchange with target.
func (s *system) Request(ctx context.Context, target Capability, data []byte, caps ...Capability) (*Message, error) {
	if !target.Valid() {
		return nil, ErrInvalidCapability
	}

	reply := s.NewMailbox("reply")
	defer reply.Close()

	msg := &Message{
		Type: MessageTypeRequest,
		Data: data,
		Caps: append([]Capability{reply.Cap()}, caps...),
	}
	if err := target.SendMessageContext(ctx, msg); err != nil {
		return nil, fmt.Errorf("request to %s: %w", target, err)
	}

	resp, err := reply.Recv(ctx)
	if err != nil {
		return nil, fmt.Errorf("awaiting reply from %s: %w", target, err)
	}
	return resp, nil
}

// Kill stops the unit addressed by c.
func (s *system) Kill(c Capability) error {
	p, ok := s.Process(c)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnitStopped, c)
	}
	p.stop()
	return nil
}

// Process returns the live unit addressed by c.
func (s *system) Process(c Capability) (*Process, bool) {
	if !c.Valid() {
		return nil, false
	}
	p, ok := s.router.Lookup(c.ID())
	if !ok || p.ep != c.ep {
		return nil, false
	}
	return p, true
}

// Shutdown gracefully stops all units in the system.
func (s *system) Shutdown(ctx context.Context) error {
	s.mu.Lock()

	// Signal shutdown
	s.cancel()

	for _, id := range s.router.List() {
		if p, exists := s.router.Lookup(id); exists {
			p.stop()
		}
	}
	s.mu.Unlock()

	// Wait for all units to finish with timeout
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns statistics for all units.
func (s *system) Stats() []ActorStats {
	var stats []ActorStats

	for _, id := range s.router.List() {
		if p, exists := s.router.Lookup(id); exists {
			stats = append(stats, p.Stats())
		}
	}

	return stats
}

// RequestContext bounds a single request by timeout. A timeout of zero or
// less waits as long as ctx does.
func RequestContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
