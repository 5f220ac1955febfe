package initd

import (
	"context"
	"fmt"
	"path"

	"github.com/rs/zerolog"

	"github.com/najoast/kiln/core"
	"github.com/najoast/kiln/graph"
	"github.com/najoast/kiln/manifest"
	"github.com/najoast/kiln/metrics"
	"github.com/najoast/kiln/protocol"
)

// ServiceNode is one discovered service. Its capability is filled in by
// the first successful Start and never changes afterwards.
type ServiceNode struct {
	Name     string
	Manifest *manifest.ServiceManifest

	unit core.Capability
}

// NewServiceNode creates a node for m.
func NewServiceNode(m *manifest.ServiceManifest) *ServiceNode {
	return &ServiceNode{Name: m.Name, Manifest: m}
}

// Capability returns the running instance, if the node has been started.
func (n *ServiceNode) Capability() (core.Capability, bool) {
	return n.unit, n.unit.Valid()
}

// BuildGraph adds one node per manifest, then one edge per need entry.
// Nothing is returned unless the whole graph could be built.
func BuildGraph(manifests []*manifest.ServiceManifest) (*graph.Graph[*ServiceNode], error) {
	g := graph.New[*ServiceNode]()
	for _, m := range manifests {
		if _, err := g.Add(m.Name, NewServiceNode(m)); err != nil {
			return nil, stageError(StageGraph, m.Name, err)
		}
	}
	for _, m := range manifests {
		for _, need := range m.Dependencies.Need {
			if err := g.AddEdge(m.Name, need); err != nil {
				return nil, stageError(StageGraph, m.Name, err)
			}
		}
	}
	return g, nil
}

// Schedule returns the nodes of g in start order.
func Schedule(g *graph.Graph[*ServiceNode]) ([]*ServiceNode, error) {
	order, err := g.Order()
	if err != nil {
		return nil, stageError(StageGraph, "", err)
	}
	nodes := make([]*ServiceNode, len(order))
	for i, idx := range order {
		nodes[i] = g.Value(idx)
	}
	return nodes, nil
}

// Launcher starts service nodes through the storage and spawn collaborators.
type Launcher struct {
	store     Storage
	spawner   Spawner
	searchDir string
}

// NewLauncher creates a launcher for bundles under searchDir.
func NewLauncher(store Storage, spawner Spawner, searchDir string) *Launcher {
	return &Launcher{store: store, spawner: spawner, searchDir: searchDir}
}

// PayloadPath returns the storage path of a service's executable payload.
func (l *Launcher) PayloadPath(name string) string {
	return path.Join(l.searchDir, name, manifest.PayloadName)
}

// Start runs node and returns its capability. A node that already has a
// capability is returned as is, without issuing any request.
func (l *Launcher) Start(ctx context.Context, node *ServiceNode) (core.Capability, error) {
	if unit, ok := node.Capability(); ok {
		return unit, nil
	}

	logger := zerolog.Ctx(ctx).With().Str("service", node.Name).Logger()

	payload := l.PayloadPath(node.Name)
	exe, err := l.store.Get(ctx, payload)
	if err != nil {
		return core.Capability{}, stageError(StageLaunch, node.Name, fmt.Errorf("resolve %s: %w", payload, err))
	}

	req := protocol.SpawnRequest{Executable: exe, Name: node.Name}
	if node.Manifest != nil {
		req.Entrypoint = node.Manifest.Entrypoint
	}
	unit, err := l.spawner.Spawn(ctx, req)
	if err != nil {
		return core.Capability{}, stageError(StageLaunch, node.Name, err)
	}
	if !unit.Valid() {
		return core.Capability{}, stageError(StageLaunch, node.Name, protocol.Errorf("spawn", "reply carries no unit capability"))
	}

	node.unit = unit
	metrics.ServicesStartedTotal.Inc()
	event := logger.Info().Str("unit", unit.String())
	if node.Manifest != nil {
		if v := node.Manifest.SemVer(); v != nil {
			event = event.Str("version", v.String())
		}
	}
	event.Msg("service started")
	return unit, nil
}
