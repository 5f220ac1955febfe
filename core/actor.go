package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ProcessFunc is the body of a unit. It runs in its own goroutine and the
// unit exits when it returns.
type ProcessFunc func(ctx context.Context, p *Process) error

// Process is a running unit as seen from inside its own body.
type Process struct {
	id   ActorID
	name string
	fn   ProcessFunc
	ep   *endpoint
	args []Capability
	sys  *system

	// Context for controlling the unit lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Atomic counters for statistics
	state             int32 // ActorState
	messagesProcessed uint64
	createdAt         time.Time
	lastMessageAt     int64 // Unix timestamp

	errMu sync.Mutex
	err   error
}

func newProcess(parent context.Context, id ActorID, fn ProcessFunc, opts ActorOptions, sys *system) *Process {
	ctx, cancel := context.WithCancel(parent)

	p := &Process{
		id:        id,
		name:      opts.Name,
		fn:        fn,
		ep:        newEndpoint(id, opts.Name, opts.MailboxSize),
		args:      append([]Capability(nil), opts.Args...),
		sys:       sys,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	atomic.StoreInt32(&p.state, int32(ActorStateRunning))
	return p
}

// ID returns the unique identifier of this unit.
func (p *Process) ID() ActorID {
	return p.id
}

// Name returns the unit name given at spawn time.
func (p *Process) Name() string {
	return p.name
}

// Self returns a capability addressing this unit.
func (p *Process) Self() Capability {
	return Capability{ep: p.ep}
}

// Args returns the capabilities handed to the unit at spawn time.
func (p *Process) Args() []Capability {
	return p.args
}

// System returns the runtime the unit lives in, for spawning children and
// issuing requests.
func (p *Process) System() ActorSystem {
	return p.sys
}

// Logger returns the runtime logger annotated with this unit.
func (p *Process) Logger() zerolog.Logger {
	return p.sys.logger.With().Uint32("unit", uint32(p.id)).Str("name", p.name).Logger()
}

// Recv waits for the next message in the unit's mailbox.
func (p *Process) Recv(ctx context.Context) (*Message, error) {
	atomic.StoreInt32(&p.state, int32(ActorStateIdle))
	msg, err := p.ep.recv(ctx)
	atomic.StoreInt32(&p.state, int32(ActorStateRunning))
	if err != nil {
		return nil, err
	}

	atomic.AddUint64(&p.messagesProcessed, 1)
	atomic.StoreInt64(&p.lastMessageAt, time.Now().Unix())
	return msg, nil
}

// Done is closed once the unit has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err returns the error the unit exited with, if any.
func (p *Process) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

// Stats returns current runtime statistics for this unit.
func (p *Process) Stats() ActorStats {
	lastMsg := atomic.LoadInt64(&p.lastMessageAt)
	var lastMessageAt time.Time
	if lastMsg > 0 {
		lastMessageAt = time.Unix(lastMsg, 0)
	}

	return ActorStats{
		ID:                p.id,
		Name:              p.name,
		State:             ActorState(atomic.LoadInt32(&p.state)),
		MessagesProcessed: atomic.LoadUint64(&p.messagesProcessed),
		MailboxSize:       len(p.ep.queue),
		CreatedAt:         p.createdAt,
		LastMessageAt:     lastMessageAt,
	}
}

// stop cancels the unit's context. The body observes it through Recv or ctx.
func (p *Process) stop() {
	if atomic.CompareAndSwapInt32(&p.state, int32(ActorStateIdle), int32(ActorStateStopping)) ||
		atomic.CompareAndSwapInt32(&p.state, int32(ActorStateRunning), int32(ActorStateStopping)) {
		p.cancel()
	}
}

// run executes the unit body and tears the unit down when it returns.
func (p *Process) run() {
	defer close(p.done)
	defer p.cancel()

	err := p.invoke()

	p.ep.close()
	atomic.StoreInt32(&p.state, int32(ActorStateStopped))

	p.errMu.Lock()
	p.err = err
	p.errMu.Unlock()
}

func (p *Process) invoke() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit %d panicked: %v", p.id, r)
		}
	}()
	return p.fn(p.ctx, p)
}
