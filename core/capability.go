package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var messageCounter uint64

// endpoint is the addressable side of a unit or mailbox. Capabilities point
// at it; the pointer never leaves the package.
type endpoint struct {
	id      ActorID
	name    string
	queue   chan *Message
	done    chan struct{}
	closeMu sync.Once
}

func newEndpoint(id ActorID, name string, size int) *endpoint {
	if size <= 0 {
		size = DefaultActorOptions().MailboxSize
	}
	return &endpoint{
		id:    id,
		name:  name,
		queue: make(chan *Message, size),
		done:  make(chan struct{}),
	}
}

func (e *endpoint) deliver(msg *Message) error {
	select {
	case <-e.done:
		return fmt.Errorf("%w: %d", ErrUnitStopped, e.id)
	default:
	}

	select {
	case e.queue <- msg:
		return nil
	case <-e.done:
		return fmt.Errorf("%w: %d", ErrUnitStopped, e.id)
	default:
		return fmt.Errorf("%w: %d", ErrMailboxFull, e.id)
	}
}

// deliverWait queues msg, waiting for room until ctx ends or the endpoint
// closes.
func (e *endpoint) deliverWait(ctx context.Context, msg *Message) error {
	select {
	case <-e.done:
		return fmt.Errorf("%w: %d", ErrUnitStopped, e.id)
	default:
	}

	select {
	case e.queue <- msg:
		return nil
	case <-e.done:
		return fmt.Errorf("%w: %d", ErrUnitStopped, e.id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *endpoint) recv(ctx context.Context) (*Message, error) {
	select {
	case msg := <-e.queue:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		// Drain what was queued before the close.
		select {
		case msg := <-e.queue:
			return msg, nil
		default:
			return nil, fmt.Errorf("%w: %d", ErrUnitStopped, e.id)
		}
	}
}

func (e *endpoint) close() {
	e.closeMu.Do(func() { close(e.done) })
}

// Capability is an unforgeable reference to a unit or mailbox. Holding one
// grants permission to send to its target. The zero value addresses nothing.
type Capability struct {
	ep *endpoint
}

// Valid reports whether the capability addresses anything.
func (c Capability) Valid() bool {
	return c.ep != nil
}

// ID returns the runtime identifier of the target.
func (c Capability) ID() ActorID {
	if c.ep == nil {
		return 0
	}
	return c.ep.id
}

// Name returns the target's human-readable name, if it has one.
func (c Capability) Name() string {
	if c.ep == nil {
		return ""
	}
	return c.ep.name
}

// Alive reports whether the target still accepts messages.
func (c Capability) Alive() bool {
	if c.ep == nil {
		return false
	}
	select {
	case <-c.ep.done:
		return false
	default:
		return true
	}
}

// String returns a string representation of the capability.
func (c Capability) String() string {
	if c.ep == nil {
		return ":<invalid>"
	}
	if c.ep.name != "" {
		return fmt.Sprintf(":%08x(%s)", c.ep.id, c.ep.name)
	}
	return fmt.Sprintf(":%08x", c.ep.id)
}

// Send delivers data to the target with the given capabilities attached.
func (c Capability) Send(data []byte, caps ...Capability) error {
	return c.SendMessage(&Message{Type: MessageTypeText, Data: data, Caps: caps})
}

// Reply delivers data to the target as a response.
func (c Capability) Reply(data []byte, caps ...Capability) error {
	return c.SendMessage(&Message{Type: MessageTypeResponse, Data: data, Caps: caps})
}

// SendMessage delivers a prepared message to the target. It fails with
// ErrMailboxFull instead of waiting.
func (c Capability) SendMessage(msg *Message) error {
	if err := c.prepare(msg); err != nil {
		return err
	}
	return c.ep.deliver(msg)
}

// SendMessageContext delivers a prepared message to the target, waiting
// for mailbox room until ctx ends.
func (c Capability) SendMessageContext(ctx context.Context, msg *Message) error {
	if err := c.prepare(msg); err != nil {
		return err
	}
	return c.ep.deliverWait(ctx, msg)
}

func (c Capability) prepare(msg *Message) error {
	if c.ep == nil {
		return ErrInvalidCapability
	}
	if msg == nil {
		return fmt.Errorf("cannot send nil message")
	}
	if msg.ID == 0 {
		msg.ID = atomic.AddUint64(&messageCounter, 1)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return nil
}

// Mailbox is a receive-only endpoint that is not a unit. Request/reply
// exchanges use one as the reply destination.
type Mailbox struct {
	ep *endpoint
}

// Cap returns a capability addressing this mailbox.
func (m *Mailbox) Cap() Capability {
	return Capability{ep: m.ep}
}

// Recv blocks until a message arrives, the context ends, or the mailbox is closed.
func (m *Mailbox) Recv(ctx context.Context) (*Message, error) {
	return m.ep.recv(ctx)
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	return len(m.ep.queue)
}

// Close stops the mailbox from accepting further messages.
func (m *Mailbox) Close() {
	m.ep.close()
}
