// Package manifest models the per-service descriptor found in a service
// bundle and decodes it from the supported file formats.
package manifest

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	// ErrInvalidManifest is returned when a manifest decodes but fails validation.
	ErrInvalidManifest = errors.New("invalid manifest")

	// ErrUnsupportedFormat is returned for file names with no known decoder.
	ErrUnsupportedFormat = errors.New("unsupported manifest format")
)

// Format identifies the encoding of a manifest file.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatHCL  Format = "hcl"
)

// FileNames lists the manifest file names a bundle may provide, in lookup order.
var FileNames = []string{
	"service.toml",
	"service.yaml",
	"service.yml",
	"service.json",
	"service.hcl",
}

// PayloadName is the bundle entry holding the executable payload.
const PayloadName = "service"

// FormatFor returns the format of a manifest file name.
func FormatFor(name string) (Format, bool) {
	switch strings.ToLower(path.Ext(name)) {
	case ".toml":
		return FormatTOML, true
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	case ".hcl":
		return FormatHCL, true
	default:
		return "", false
	}
}

// License is one license record of a service.
type License struct {
	Name string `toml:"name" yaml:"name" json:"name"`
	File string `toml:"file" yaml:"file" json:"file"`
}

// Dependencies groups the dependency sets of a service. Only Need affects
// start order; Milestone and WaitsFor are carried but not scheduled on.
type Dependencies struct {
	Need      []string `toml:"need" yaml:"need" json:"need"`
	Milestone []string `toml:"milestone" yaml:"milestone" json:"milestone"`
	WaitsFor  []string `toml:"waits_for" yaml:"waits_for" json:"waits_for"`
}

// ServiceManifest describes one service bundle.
type ServiceManifest struct {
	// Name is taken from the bundle directory, never from the file
	Name string `toml:"-" yaml:"-" json:"-"`

	Description  string       `toml:"description" yaml:"description" json:"description,omitempty"`
	Version      string       `toml:"version" yaml:"version" json:"version,omitempty"`
	Entrypoint   string       `toml:"entrypoint" yaml:"entrypoint" json:"entrypoint,omitempty"`
	License      []License    `toml:"license" yaml:"license" json:"license,omitempty"`
	Targets      []string     `toml:"targets" yaml:"targets" json:"targets,omitempty"`
	Dependencies Dependencies `toml:"dependencies" yaml:"dependencies" json:"dependencies"`
}

// SemVer returns the parsed version, or nil when the manifest has none.
func (m *ServiceManifest) SemVer() *semver.Version {
	if m.Version == "" {
		return nil
	}
	v, err := semver.NewVersion(m.Version)
	if err != nil {
		return nil
	}
	return v
}

// normalize trims every string, removes duplicates from the set fields and
// validates the result.
func (m *ServiceManifest) normalize() error {
	if err := ValidateName(m.Name); err != nil {
		return err
	}

	m.Description = strings.TrimSpace(m.Description)
	m.Entrypoint = strings.TrimSpace(m.Entrypoint)
	m.Version = strings.TrimSpace(m.Version)
	if m.Version != "" {
		if _, err := semver.NewVersion(m.Version); err != nil {
			return fmt.Errorf("%w: service %q: version %q: %v", ErrInvalidManifest, m.Name, m.Version, err)
		}
	}

	for i, l := range m.License {
		l.Name = strings.TrimSpace(l.Name)
		l.File = strings.TrimSpace(l.File)
		if l.Name == "" {
			return fmt.Errorf("%w: service %q: license %d has no name", ErrInvalidManifest, m.Name, i)
		}
		m.License[i] = l
	}

	var err error
	if m.Targets, err = dedupe(m.Name, "targets", m.Targets); err != nil {
		return err
	}
	if m.Dependencies.Need, err = dedupe(m.Name, "need", m.Dependencies.Need); err != nil {
		return err
	}
	if m.Dependencies.Milestone, err = dedupe(m.Name, "milestone", m.Dependencies.Milestone); err != nil {
		return err
	}
	if m.Dependencies.WaitsFor, err = dedupe(m.Name, "waits_for", m.Dependencies.WaitsFor); err != nil {
		return err
	}
	return nil
}

// ValidateName checks that name can identify a service bundle.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty service name", ErrInvalidManifest)
	}
	if strings.TrimSpace(name) != name || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return fmt.Errorf("%w: bad service name %q", ErrInvalidManifest, name)
	}
	return nil
}

// dedupe keeps the first occurrence of every entry.
func dedupe(service, field string, in []string) ([]string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, fmt.Errorf("%w: service %q: empty entry in %s", ErrInvalidManifest, service, field)
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}
