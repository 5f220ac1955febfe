package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

// echoProcess replies to every request with the same payload.
func echoProcess(ctx context.Context, p *Process) error {
	for {
		msg, err := p.Recv(ctx)
		if err != nil {
			return err
		}
		if reply, ok := msg.Cap(0); ok {
			reply.SendMessage(&Message{Type: MessageTypeResponse, Data: msg.Data, Caps: msg.Caps[1:]})
		}
	}
}

func TestSpawnAndStats(t *testing.T) {
	system := NewActorSystem()
	defer system.Shutdown(context.Background())

	opts := DefaultActorOptions()
	opts.Name = "test-unit"

	c, err := system.Spawn(echoProcess, opts)
	if err != nil {
		t.Fatalf("Failed to spawn unit: %v", err)
	}

	if !c.Valid() {
		t.Fatal("Expected a valid capability")
	}
	if c.Name() != "test-unit" {
		t.Errorf("Expected name 'test-unit', got '%s'", c.Name())
	}

	p, ok := system.Process(c)
	if !ok {
		t.Fatal("Spawned unit not found in system")
	}
	if p.ID() != c.ID() {
		t.Errorf("Expected unit ID %d, got %d", c.ID(), p.ID())
	}

	stats := system.Stats()
	if len(stats) != 1 {
		t.Errorf("Expected 1 unit in stats, got %d", len(stats))
	}
}

func TestRequestReply(t *testing.T) {
	system := NewActorSystem()
	defer system.Shutdown(context.Background())

	c, err := system.Spawn(echoProcess, DefaultActorOptions())
	if err != nil {
		t.Fatalf("Failed to spawn unit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resp, err := system.Request(ctx, c, []byte("hello"))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if string(resp.Data) != "hello" {
		t.Errorf("Expected 'hello', got '%s'", resp.Data)
	}

	p, _ := system.Process(c)
	if got := p.Stats().MessagesProcessed; got != 1 {
		t.Errorf("Expected 1 processed message, got %d", got)
	}
}

func TestCapabilityTransfer(t *testing.T) {
	system := NewActorSystem()
	defer system.Shutdown(context.Background())

	echo, _ := system.Spawn(echoProcess, DefaultActorOptions())
	target := system.NewMailbox("target")
	defer target.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// The echo unit hands back whatever follows the reply capability.
	resp, err := system.Request(ctx, echo, nil, target.Cap())
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	got, ok := resp.Cap(0)
	if !ok {
		t.Fatal("Expected a capability in the reply")
	}
	if got != target.Cap() {
		t.Errorf("Expected the transferred capability to address the same mailbox")
	}

	if err := got.Send([]byte("via transfer")); err != nil {
		t.Fatalf("Send through transferred capability failed: %v", err)
	}
	msg, err := target.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	if string(msg.Data) != "via transfer" {
		t.Errorf("Unexpected payload %q", msg.Data)
	}
}

func TestKill(t *testing.T) {
	system := NewActorSystem()
	defer system.Shutdown(context.Background())

	c, _ := system.Spawn(echoProcess, DefaultActorOptions())
	p, _ := system.Process(c)

	if err := system.Kill(c); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("unit did not exit after Kill")
	}

	if c.Alive() {
		t.Error("Capability should not be alive after Kill")
	}
	if err := c.Send([]byte("late")); !errors.Is(err, ErrUnitStopped) {
		t.Errorf("Expected ErrUnitStopped, got %v", err)
	}
	if stats := p.Stats(); stats.State != ActorStateStopped {
		t.Errorf("Expected final state %s, got %s", ActorStateStopped, stats.State)
	}
}

func TestPanicIsContained(t *testing.T) {
	system := NewActorSystem()
	defer system.Shutdown(context.Background())

	c, _ := system.Spawn(func(ctx context.Context, p *Process) error {
		if _, err := p.Recv(ctx); err != nil {
			return err
		}
		panic("boom")
	}, DefaultActorOptions())

	p, ok := system.Process(c)
	if !ok {
		t.Fatal("Spawned unit not found in system")
	}
	c.Send([]byte("trigger"))
	<-p.Done()

	if p.Err() == nil {
		t.Error("Expected panic to be reported as an error")
	}
}

func TestInvalidCapability(t *testing.T) {
	var c Capability
	if c.Valid() {
		t.Error("Zero capability must not be valid")
	}
	if err := c.Send(nil); !errors.Is(err, ErrInvalidCapability) {
		t.Errorf("Expected ErrInvalidCapability, got %v", err)
	}
}

func TestMailboxFull(t *testing.T) {
	system := NewActorSystem()
	defer system.Shutdown(context.Background())

	block := make(chan struct{})
	defer close(block)

	opts := DefaultActorOptions()
	opts.MailboxSize = 1
	c, _ := system.Spawn(func(ctx context.Context, p *Process) error {
		<-block
		return nil
	}, opts)

	if err := c.Send([]byte("one")); err != nil {
		t.Fatalf("First send failed: %v", err)
	}
	if err := c.Send([]byte("two")); !errors.Is(err, ErrMailboxFull) {
		t.Errorf("Expected ErrMailboxFull, got %v", err)
	}
}

func TestSendMessageContextWaitsForRoom(t *testing.T) {
	system := NewActorSystem()
	defer system.Shutdown(context.Background())

	release := make(chan struct{})
	got := make(chan string, 2)
	opts := DefaultActorOptions()
	opts.MailboxSize = 1
	c, _ := system.Spawn(func(ctx context.Context, p *Process) error {
		<-release
		for {
			msg, err := p.Recv(ctx)
			if err != nil {
				return err
			}
			got <- string(msg.Data)
		}
	}, opts)

	if err := c.Send([]byte("one")); err != nil {
		t.Fatalf("First send failed: %v", err)
	}

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.SendMessageContext(short, &Message{Data: []byte("late")}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected DeadlineExceeded, got %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	if err := c.SendMessageContext(context.Background(), &Message{Data: []byte("two")}); err != nil {
		t.Fatalf("Waiting send failed: %v", err)
	}
	for _, want := range []string{"one", "two"} {
		select {
		case msg := <-got:
			if msg != want {
				t.Errorf("Expected %q, got %q", want, msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for %q", want)
		}
	}
}

func TestShutdown(t *testing.T) {
	system := NewActorSystem()

	for i := 0; i < 3; i++ {
		if _, err := system.Spawn(echoProcess, DefaultActorOptions()); err != nil {
			t.Fatalf("Failed to spawn unit: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := system.Shutdown(ctx); err != nil {
		t.Fatalf("Failed to shutdown system: %v", err)
	}

	if _, err := system.Spawn(echoProcess, DefaultActorOptions()); !errors.Is(err, ErrSystemShutdown) {
		t.Errorf("Expected ErrSystemShutdown, got %v", err)
	}
}
