package initd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/najoast/kiln/metrics"
	"github.com/najoast/kiln/protocol"
)

// Hook hands the registry of one target to a well-known service.
type Hook struct {
	// Target is the tag whose registry is handed over
	Target string

	// Service is the discovery name of the receiving service
	Service string
}

// DefaultHooks returns the built-in server, client and daemon hooks.
func DefaultHooks() []Hook {
	return []Hook{
		{Target: "server", Service: "kiln.init.Server"},
		{Target: "client", Service: "kiln.init.Client"},
		{Target: "daemon", Service: "kiln.init.Daemon"},
	}
}

// HookOutcome records what happened to one hook.
type HookOutcome string

const (
	HookDelivered    HookOutcome = "delivered"
	HookAbsent       HookOutcome = "hook_absent"
	HookTargetAbsent HookOutcome = "target_absent"
	HookFailed       HookOutcome = "failed"
)

// HookResult is the outcome of dispatching one hook.
type HookResult struct {
	Hook    Hook
	Outcome HookOutcome
	Err     error
}

// DispatchHooks looks up every hook and sends it the registry of its
// target. Dispatch is best effort: a hook that is absent, whose target was
// never assembled, or that cannot be reached is logged and skipped.
func DispatchHooks(ctx context.Context, discovery Discovery, hooks []Hook, registries map[string]Registry) []HookResult {
	logger := zerolog.Ctx(ctx)

	results := make([]HookResult, 0, len(hooks))
	for _, hook := range hooks {
		res := dispatchHook(ctx, discovery, hook, registries)
		metrics.HookDispatchTotal.WithLabelValues(hook.Target, string(res.Outcome)).Inc()

		event := logger.Debug()
		switch res.Outcome {
		case HookDelivered:
			event = logger.Info()
		case HookFailed:
			event = logger.Warn().Err(res.Err)
		}
		event.Str("hook", hook.Service).Str("target", hook.Target).Str("outcome", string(res.Outcome)).Msg("hook dispatch")

		results = append(results, res)
	}
	return results
}

func dispatchHook(ctx context.Context, discovery Discovery, hook Hook, registries map[string]Registry) HookResult {
	res := HookResult{Hook: hook}

	target, found, err := discovery.Lookup(ctx, hook.Service)
	if err != nil {
		res.Outcome, res.Err = HookFailed, fmt.Errorf("lookup %s: %w", hook.Service, err)
		return res
	}
	if !found {
		res.Outcome = HookAbsent
		return res
	}

	reg, ok := registries[hook.Target]
	if !ok {
		res.Outcome = HookTargetAbsent
		return res
	}

	notice := protocol.HookNotice{Target: hook.Target, Services: reg.Services}
	if err := target.Send(protocol.MustEncode(notice), reg.Cap); err != nil {
		res.Outcome, res.Err = HookFailed, fmt.Errorf("notify %s: %w", hook.Service, err)
		return res
	}

	res.Outcome = HookDelivered
	return res
}

// Delivered returns the hooks that received their registry.
func Delivered(results []HookResult) []Hook {
	var hooks []Hook
	for _, r := range results {
		if r.Outcome == HookDelivered {
			hooks = append(hooks, r.Hook)
		}
	}
	return hooks
}
