// Package programs holds the builtin programs a payload can name.
package programs

import (
	"context"
	"time"

	"github.com/najoast/kiln/core"
	"github.com/najoast/kiln/protocol"
	"github.com/najoast/kiln/registry"
	"github.com/najoast/kiln/spawn"
)

const (
	IdleName       = "idle"
	EchoName       = "echo"
	HookLoggerName = "hook-logger"
)

// Register adds every builtin program to catalog. timeout bounds the
// requests the programs themselves issue.
func Register(catalog *spawn.Catalog, timeout time.Duration) error {
	builtins := []struct {
		name string
		fn   core.ProcessFunc
	}{
		{IdleName, Idle},
		{EchoName, Echo},
		{HookLoggerName, HookLogger(timeout)},
	}
	for _, b := range builtins {
		if err := catalog.Register(b.name, b.fn); err != nil {
			return err
		}
	}
	return nil
}

// Idle consumes messages and does nothing else.
func Idle(ctx context.Context, p *core.Process) error {
	logger := p.Logger()
	logger.Debug().Int("args", len(p.Args())).Msg("idle service started")
	for {
		if _, err := p.Recv(ctx); err != nil {
			return err
		}
	}
}

// Echo replies to every request with its own payload.
func Echo(ctx context.Context, p *core.Process) error {
	logger := p.Logger()
	for {
		msg, err := p.Recv(ctx)
		if err != nil {
			return err
		}
		reply, ok := msg.Cap(0)
		if !ok {
			logger.Debug().Uint64("msg", msg.ID).Msg("echo request without reply capability")
			continue
		}
		if err := reply.Reply(msg.Data); err != nil {
			logger.Warn().Err(err).Msg("echo reply failed")
		}
	}
}

// HookLogger returns a hook program. For every hook notice it lists the
// attached registry, logs the names and forwards a notice carrying them
// to each capability it was spawned with.
func HookLogger(timeout time.Duration) core.ProcessFunc {
	return func(ctx context.Context, p *core.Process) error {
		logger := p.Logger()
		for {
			msg, err := p.Recv(ctx)
			if err != nil {
				return err
			}

			var notice protocol.HookNotice
			if err := protocol.Decode("hook", msg.Data, &notice); err != nil {
				logger.Warn().Err(err).Msg("dropping hook message")
				continue
			}
			target, ok := msg.Cap(0)
			if !ok {
				logger.Warn().Str("target", notice.Target).Msg("hook notice without registry")
				continue
			}

			names, err := registry.NewClient(p.System(), target, timeout).List(ctx)
			if err != nil {
				logger.Warn().Err(err).Str("target", notice.Target).Msg("list registry failed")
				continue
			}
			logger.Info().Str("target", notice.Target).Strs("services", names).Msg("registry received")

			seen := protocol.MustEncode(protocol.HookNotice{Target: notice.Target, Services: names})
			for _, observer := range p.Args() {
				if err := observer.Send(seen, target); err != nil {
					logger.Warn().Err(err).Str("observer", observer.String()).Msg("forward failed")
				}
			}
		}
	}
}
