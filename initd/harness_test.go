package initd

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/najoast/kiln/core"
	"github.com/najoast/kiln/protocol"
	"github.com/najoast/kiln/registry"
	"github.com/najoast/kiln/spawn"
	"github.com/najoast/kiln/storage"
)

const searchDir = "services"

// countingSpawner records every spawn request before forwarding it.
type countingSpawner struct {
	next Spawner

	mu       sync.Mutex
	requests []protocol.SpawnRequest
}

func (c *countingSpawner) Spawn(ctx context.Context, req protocol.SpawnRequest, args ...core.Capability) (core.Capability, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	return c.next.Spawn(ctx, req, args...)
}

func (c *countingSpawner) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func idle(ctx context.Context, p *core.Process) error {
	for {
		if _, err := p.Recv(ctx); err != nil {
			return err
		}
	}
}

type harness struct {
	t       *testing.T
	sys     core.ActorSystem
	root    string
	store   *storage.Client
	spawner *countingSpawner
	catalog *spawn.Catalog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sys := core.NewActorSystem()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sys.Shutdown(ctx)
	})

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, searchDir), 0o755))

	catalog := spawn.NewCatalog()
	require.NoError(t, catalog.Register("idle", idle))

	storeUnit, err := sys.Spawn(storage.NewService(root).Run, core.ActorOptions{Name: "storage"})
	require.NoError(t, err)
	spawnUnit, err := sys.Spawn(spawn.NewService(catalog, storeUnit, time.Second).Run, core.ActorOptions{Name: "spawn"})
	require.NoError(t, err)

	return &harness{
		t:       t,
		sys:     sys,
		root:    root,
		store:   storage.NewClient(sys, storeUnit, time.Second),
		spawner: &countingSpawner{next: spawn.NewClient(sys, spawnUnit, time.Second)},
		catalog: catalog,
	}
}

// bundle writes a service bundle with a TOML manifest and an idle payload.
func (h *harness) bundle(name, manifestTOML string) {
	h.t.Helper()
	h.file(name, "service.toml", manifestTOML)
	h.file(name, "service", "idle\n")
}

func (h *harness) file(service, name, content string) {
	h.t.Helper()
	dir := filepath.Join(h.root, searchDir, service)
	require.NoError(h.t, os.MkdirAll(dir, 0o755))
	require.NoError(h.t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// discovery spawns a root registry publishing the given hook endpoints.
func (h *harness) discovery(hooks map[string]core.Capability) *registry.Client {
	h.t.Helper()
	var entries []registry.Entry
	for name, c := range hooks {
		entries = append(entries, registry.Entry{Name: name, Cap: c})
	}
	root, err := registry.Spawn(context.Background(), h.sys, "discovery", entries)
	require.NoError(h.t, err)
	return registry.NewClient(h.sys, root, time.Second)
}

func (h *harness) boot(discovery Discovery) *Init {
	return New(h.sys, h.store, h.spawner, discovery, Options{
		SearchDir:      searchDir,
		RequestTimeout: time.Second,
	})
}
