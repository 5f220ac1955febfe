package programs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najoast/kiln/core"
	"github.com/najoast/kiln/protocol"
	"github.com/najoast/kiln/registry"
	"github.com/najoast/kiln/spawn"
)

func newSystem(t *testing.T) core.ActorSystem {
	t.Helper()
	sys := core.NewActorSystem()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sys.Shutdown(ctx)
	})
	return sys
}

func TestRegisterAddsBuiltins(t *testing.T) {
	catalog := spawn.NewCatalog()
	require.NoError(t, Register(catalog, time.Second))
	assert.Equal(t, []string{EchoName, HookLoggerName, IdleName}, catalog.Names())

	err := Register(catalog, time.Second)
	assert.True(t, errors.Is(err, spawn.ErrDuplicateProgram))
}

func TestEchoRepliesWithPayload(t *testing.T) {
	sys := newSystem(t)
	unit, err := sys.Spawn(Echo, core.ActorOptions{Name: EchoName})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reply, err := sys.Request(ctx, unit, []byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, "ping", string(reply.Data))
}

func TestHookLoggerForwardsRegistryNames(t *testing.T) {
	sys := newSystem(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	a := sys.NewMailbox("a")
	b := sys.NewMailbox("b")
	defer a.Close()
	defer b.Close()
	reg, err := registry.Spawn(ctx, sys, "registry.server", []registry.Entry{
		{Name: "A", Cap: a.Cap()},
		{Name: "B", Cap: b.Cap()},
	})
	require.NoError(t, err)

	observer := sys.NewMailbox("observer")
	defer observer.Close()
	hook, err := sys.Spawn(HookLogger(time.Second), core.ActorOptions{
		Name: HookLoggerName,
		Args: []core.Capability{observer.Cap()},
	})
	require.NoError(t, err)

	notice := protocol.HookNotice{Target: "server", Services: []string{"A", "B"}}
	require.NoError(t, hook.Send(protocol.MustEncode(notice), reg))

	msg, err := observer.Recv(ctx)
	require.NoError(t, err)
	var seen protocol.HookNotice
	require.NoError(t, protocol.Decode("hook", msg.Data, &seen))
	assert.Equal(t, "server", seen.Target)
	assert.Equal(t, []string{"A", "B"}, seen.Services)

	forwarded, ok := msg.Cap(0)
	require.True(t, ok)
	assert.Equal(t, reg, forwarded)
}

func TestHookLoggerSkipsMalformedNotices(t *testing.T) {
	sys := newSystem(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	observer := sys.NewMailbox("observer")
	defer observer.Close()
	hook, err := sys.Spawn(HookLogger(time.Second), core.ActorOptions{
		Name: HookLoggerName,
		Args: []core.Capability{observer.Cap()},
	})
	require.NoError(t, err)

	require.NoError(t, hook.Send([]byte("not json")))
	require.NoError(t, hook.Send(protocol.MustEncode(protocol.HookNotice{Target: "server"})))

	short, cancelShort := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancelShort()
	_, err = observer.Recv(short)
	assert.Error(t, err)
	assert.True(t, hook.Alive())
}
