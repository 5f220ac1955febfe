package initd

import (
	"context"
	"fmt"
	"path"

	"github.com/rs/zerolog"

	"github.com/najoast/kiln/manifest"
	"github.com/najoast/kiln/storage"
)

// Loader discovers service bundles under a search directory and decodes
// their manifests.
type Loader struct {
	store     Storage
	searchDir string
}

// NewLoader creates a loader reading bundles from searchDir.
func NewLoader(store Storage, searchDir string) *Loader {
	return &Loader{store: store, searchDir: searchDir}
}

// Load returns one manifest per bundle directory. A directory with no
// manifest file is skipped; a manifest that fails to decode aborts the load.
func (l *Loader) Load(ctx context.Context) ([]*manifest.ServiceManifest, error) {
	logger := zerolog.Ctx(ctx)

	entries, err := l.store.List(ctx, l.searchDir)
	if err != nil {
		if storage.IsNotFound(err) {
			logger.Warn().Str("search_dir", l.searchDir).Msg("search directory does not exist; no services to start")
			return nil, nil
		}
		return nil, stageError(StageDiscover, "", fmt.Errorf("list %s: %w", l.searchDir, err))
	}

	var manifests []*manifest.ServiceManifest
	for _, entry := range entries {
		if !entry.Dir {
			continue
		}
		name := entry.Name
		if err := manifest.ValidateName(name); err != nil {
			return nil, stageError(StageDiscover, name, err)
		}

		m, err := l.loadBundle(ctx, name)
		if err != nil {
			return nil, stageError(StageDiscover, name, err)
		}
		if m == nil {
			logger.Warn().Str("service", name).Msg("bundle has no manifest, skipping")
			continue
		}

		if len(m.Dependencies.Milestone) > 0 || len(m.Dependencies.WaitsFor) > 0 {
			logger.Debug().
				Str("service", name).
				Strs("milestone", m.Dependencies.Milestone).
				Strs("waits_for", m.Dependencies.WaitsFor).
				Msg("ignoring milestone and waits_for dependencies")
		}
		manifests = append(manifests, m)
	}

	logger.Info().Int("services", len(manifests)).Str("search_dir", l.searchDir).Msg("discovered services")
	return manifests, nil
}

// loadBundle reads the first manifest file the bundle provides. It returns
// nil when there is none.
func (l *Loader) loadBundle(ctx context.Context, name string) (*manifest.ServiceManifest, error) {
	dir := path.Join(l.searchDir, name)
	files, err := l.store.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("list bundle: %w", err)
	}

	present := make(map[string]bool, len(files))
	for _, f := range files {
		if !f.Dir {
			present[f.Name] = true
		}
	}

	for _, fileName := range manifest.FileNames {
		if !present[fileName] {
			continue
		}
		id, err := l.store.Get(ctx, path.Join(dir, fileName))
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", fileName, err)
		}
		data, err := l.store.Load(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", fileName, err)
		}
		return manifest.DecodeFile(name, fileName, data)
	}
	return nil, nil
}
