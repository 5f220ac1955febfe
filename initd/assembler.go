package initd

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/najoast/kiln/core"
	"github.com/najoast/kiln/registry"
)

// TargetGroup collects the services that declared one target tag.
type TargetGroup struct {
	Tag string

	entries []registry.Entry
	index   map[string]int
}

func newTargetGroup(tag string) *TargetGroup {
	return &TargetGroup{Tag: tag, index: make(map[string]int)}
}

func (g *TargetGroup) insert(name string, c core.Capability) {
	if i, ok := g.index[name]; ok {
		g.entries[i].Cap = c
		return
	}
	g.index[name] = len(g.entries)
	g.entries = append(g.entries, registry.Entry{Name: name, Cap: c})
}

// Entries returns the members in insertion order.
func (g *TargetGroup) Entries() []registry.Entry {
	return append([]registry.Entry(nil), g.entries...)
}

// Names returns the member names in insertion order.
func (g *TargetGroup) Names() []string {
	names := make([]string, len(g.entries))
	for i, e := range g.entries {
		names[i] = e.Name
	}
	return names
}

// Len returns the number of members.
func (g *TargetGroup) Len() int {
	return len(g.entries)
}

// Targets groups started services by target tag. A group exists only once
// some service has been added to it.
type Targets struct {
	groups map[string]*TargetGroup
	tags   []string
}

// NewTargets creates an empty set of groups.
func NewTargets() *Targets {
	return &Targets{groups: make(map[string]*TargetGroup)}
}

// Add inserts service into the group of every tag.
func (t *Targets) Add(service string, tags []string, c core.Capability) {
	for _, tag := range tags {
		g, ok := t.groups[tag]
		if !ok {
			g = newTargetGroup(tag)
			t.groups[tag] = g
			t.tags = append(t.tags, tag)
		}
		g.insert(service, c)
	}
}

// Group returns the group for tag.
func (t *Targets) Group(tag string) (*TargetGroup, bool) {
	g, ok := t.groups[tag]
	return g, ok
}

// Tags returns every tag in the order its group was created.
func (t *Targets) Tags() []string {
	return append([]string(nil), t.tags...)
}

// Registry is a spawned target registry.
type Registry struct {
	Tag      string
	Cap      core.Capability
	Services []string
}

// SpawnRegistries spawns exactly one registry per group, seeded with the
// group's members.
func SpawnRegistries(ctx context.Context, sys core.ActorSystem, targets *Targets, timeout time.Duration) (map[string]Registry, error) {
	logger := zerolog.Ctx(ctx)

	registries := make(map[string]Registry, len(targets.tags))
	for _, tag := range targets.tags {
		g := targets.groups[tag]

		spawnCtx, cancel := core.RequestContext(ctx, timeout)
		unit, err := registry.Spawn(spawnCtx, sys, "registry."+tag, g.Entries())
		cancel()
		if err != nil {
			return nil, stageError(StageAssemble, tag, err)
		}

		registries[tag] = Registry{Tag: tag, Cap: unit, Services: g.Names()}
		logger.Info().Str("target", tag).Strs("services", g.Names()).Msg("target registry ready")
	}
	return registries, nil
}
