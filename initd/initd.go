// Package initd is the init service: it discovers service bundles, starts
// them in dependency order, groups them into target registries and hands
// those registries to the well-known hooks.
//
// Every error other than a hook failure aborts the boot. Services started
// before the error keep running; init does not roll them back.
package initd

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/najoast/kiln/core"
	"github.com/najoast/kiln/metrics"
)

// Options configures a boot.
type Options struct {
	// SearchDir is the storage directory holding one bundle per service
	SearchDir string

	// RequestTimeout bounds each registry bootstrap; zero waits forever
	RequestTimeout time.Duration

	// Hooks are dispatched in order after the registries are up
	Hooks []Hook
}

// Result describes a completed boot.
type Result struct {
	// Order is the start order that was walked
	Order []string

	// Services maps every started service to its capability
	Services map[string]core.Capability

	// Registries maps every assembled target tag to its registry
	Registries map[string]Registry

	// Hooks holds one result per configured hook
	Hooks []HookResult
}

// Init runs the boot sequence against its collaborators.
type Init struct {
	sys       core.ActorSystem
	store     Storage
	spawner   Spawner
	discovery Discovery
	opts      Options
}

// New creates an Init.
func New(sys core.ActorSystem, store Storage, spawner Spawner, discovery Discovery, opts Options) *Init {
	if opts.Hooks == nil {
		opts.Hooks = DefaultHooks()
	}
	return &Init{
		sys:       sys,
		store:     store,
		spawner:   spawner,
		discovery: discovery,
		opts:      opts,
	}
}

// Run performs one boot: load, build graph, schedule, start, assemble,
// spawn registries, dispatch hooks.
func (i *Init) Run(ctx context.Context) (*Result, error) {
	logger := zerolog.Ctx(ctx)
	started := time.Now()

	manifests, err := NewLoader(i.store, i.opts.SearchDir).Load(ctx)
	if err != nil {
		return nil, err
	}

	g, err := BuildGraph(manifests)
	if err != nil {
		return nil, err
	}
	nodes, err := Schedule(g)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Order:    make([]string, len(nodes)),
		Services: make(map[string]core.Capability, len(nodes)),
	}
	for n, node := range nodes {
		result.Order[n] = node.Name
	}
	logger.Info().Strs("order", result.Order).Msg("start order computed")

	launcher := NewLauncher(i.store, i.spawner, i.opts.SearchDir)
	targets := NewTargets()
	for _, node := range nodes {
		unit, err := launcher.Start(ctx, node)
		if err != nil {
			return nil, err
		}
		result.Services[node.Name] = unit
		targets.Add(node.Name, node.Manifest.Targets, unit)
	}

	result.Registries, err = SpawnRegistries(ctx, i.sys, targets, i.opts.RequestTimeout)
	if err != nil {
		return nil, err
	}

	result.Hooks = DispatchHooks(ctx, i.discovery, i.opts.Hooks, result.Registries)

	elapsed := time.Since(started)
	metrics.BootDuration.Observe(elapsed.Seconds())
	logger.Info().
		Int("services", len(result.Services)).
		Int("registries", len(result.Registries)).
		Dur("elapsed", elapsed).
		Msg("boot complete")

	return result, nil
}
