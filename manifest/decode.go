package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"
)

// hclManifest mirrors ServiceManifest with HCL blocks for the nested records:
//
//	description = "web front"
//	targets     = ["server"]
//	license "MIT" { file = "LICENSE" }
//	dependencies { need = ["db"] }
type hclManifest struct {
	Description  *string          `hcl:"description,optional"`
	Version      *string          `hcl:"version,optional"`
	Entrypoint   *string          `hcl:"entrypoint,optional"`
	Targets      []string         `hcl:"targets,optional"`
	License      []hclLicense     `hcl:"license,block"`
	Dependencies *hclDependencies `hcl:"dependencies,block"`
}

type hclLicense struct {
	Name string `hcl:"name,label"`
	File string `hcl:"file,optional"`
}

type hclDependencies struct {
	Need      []string `hcl:"need,optional"`
	Milestone []string `hcl:"milestone,optional"`
	WaitsFor  []string `hcl:"waits_for,optional"`
}

// Decode parses data in the given format into the manifest of service name.
func Decode(name string, format Format, data []byte) (*ServiceManifest, error) {
	m := &ServiceManifest{}

	var err error
	switch format {
	case FormatTOML:
		_, err = toml.Decode(string(data), m)
	case FormatYAML:
		err = decodeYAML(data, m)
	case FormatJSON:
		err = json.Unmarshal(data, m)
	case FormatHCL:
		err = decodeHCL(name, data, m)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s manifest of %q: %w", format, name, err)
	}

	m.Name = name
	if err := m.normalize(); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeFile parses data using the format implied by fileName.
func DecodeFile(name, fileName string, data []byte) (*ServiceManifest, error) {
	format, ok := FormatFor(fileName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, fileName)
	}
	return Decode(name, format, data)
}

func decodeYAML(data []byte, m *ServiceManifest) error {
	// An empty document is a manifest with every field absent.
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return yaml.Unmarshal(data, m)
}

func decodeHCL(name string, data []byte, m *ServiceManifest) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, name+".hcl")
	if diags.HasErrors() {
		return diags
	}

	var raw hclManifest
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return diags
	}

	if raw.Description != nil {
		m.Description = *raw.Description
	}
	if raw.Version != nil {
		m.Version = *raw.Version
	}
	if raw.Entrypoint != nil {
		m.Entrypoint = *raw.Entrypoint
	}
	m.Targets = raw.Targets
	for _, l := range raw.License {
		m.License = append(m.License, License{Name: l.Name, File: l.File})
	}
	if raw.Dependencies != nil {
		m.Dependencies = Dependencies{
			Need:      raw.Dependencies.Need,
			Milestone: raw.Dependencies.Milestone,
			WaitsFor:  raw.Dependencies.WaitsFor,
		}
	}
	return nil
}
