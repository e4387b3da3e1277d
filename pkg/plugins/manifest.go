package plugins

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	yaml "gopkg.in/yaml.v3"

	"github.com/oscillo/oscillo/pkg/plugins/pluginrpc"
)

// ManifestFileName is the manifest every plugin directory must carry.
const ManifestFileName = "plugin.yaml"

// Dependency is one declared requirement on another plugin.
type Dependency struct {
	Name         string `yaml:"name"`
	VersionRange string `yaml:"version_range"`
}

// Manifest is a plugin's declared metadata, immutable once parsed.
//
//	plugin:
//	  id: smooth
//	  version: 1.2.0
//	  capability: operation
//	  host_version_range: ">=2.0.0, <3.0.0"
//	  entry_point: bin/smooth
//	  dependencies:
//	    - name: resample
//	      version_range: "~=1.1"
type Manifest struct {
	ID               string               `yaml:"id"`
	Version          string               `yaml:"version"`
	Capability       pluginrpc.Capability `yaml:"capability"`
	HostVersionRange string               `yaml:"host_version_range"`
	EntryPoint       string               `yaml:"entry_point"`
	Dependencies     []Dependency         `yaml:"dependencies"`

	// Extra holds unknown manifest keys: preserved, never interpreted.
	Extra map[string]interface{} `yaml:"-"`
	// Dir is the plugin directory the manifest was read from.
	Dir string `yaml:"-"`
}

// knownManifestKeys are the keys the registry interprets; everything else
// lands in Extra.
var knownManifestKeys = map[string]bool{
	"id":                 true,
	"version":            true,
	"capability":         true,
	"host_version_range": true,
	"entry_point":        true,
	"dependencies":       true,
}

// ParseManifest reads and validates the manifest at path. The only side
// effect is reading the file.
func ParseManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ManifestError{Path: path, Reason: "cannot read manifest", Err: err}
	}
	return ParseManifestBytes(data, path)
}

// ParseManifestBytes parses a manifest document. path is used for error
// reporting only.
func ParseManifestBytes(data []byte, path string) (*Manifest, error) {
	var wrapper struct {
		Plugin yaml.Node `yaml:"plugin"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, &ManifestError{Path: path, Reason: "invalid YAML", Err: err}
	}
	if wrapper.Plugin.IsZero() {
		return nil, &ManifestError{Path: path, Field: "plugin", Reason: "missing top-level 'plugin' block"}
	}

	var m Manifest
	if err := wrapper.Plugin.Decode(&m); err != nil {
		return nil, &ManifestError{Path: path, Reason: "invalid plugin block", Err: err}
	}

	var raw map[string]interface{}
	if err := wrapper.Plugin.Decode(&raw); err != nil {
		return nil, &ManifestError{Path: path, Reason: "invalid plugin block", Err: err}
	}
	for key := range raw {
		if knownManifestKeys[key] {
			delete(raw, key)
		}
	}
	if len(raw) > 0 {
		m.Extra = raw
	}

	if err := m.validate(path); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate(path string) error {
	if m.ID == "" {
		return &ManifestError{Path: path, Field: "id", Reason: "required"}
	}
	if m.Version == "" {
		return &ManifestError{Path: path, Field: "version", Reason: "required"}
	}
	if _, err := semver.StrictNewVersion(m.Version); err != nil {
		return &ManifestError{
			Path:  path,
			Field: "version",
			Reason: fmt.Sprintf("%q is not a valid semantic version", m.Version),
			Err:   err,
		}
	}
	if m.Capability == "" {
		return &ManifestError{Path: path, Field: "capability", Reason: "required"}
	}
	if !m.Capability.Valid() {
		return &ManifestError{
			Path:  path,
			Field: "capability",
			Reason: fmt.Sprintf("unknown capability %q (want one of %v)", m.Capability, pluginrpc.Capabilities()),
		}
	}
	if m.HostVersionRange == "" {
		return &ManifestError{Path: path, Field: "host_version_range", Reason: "required"}
	}
	if err := ValidateConstraint(m.HostVersionRange); err != nil {
		return &ManifestError{Path: path, Field: "host_version_range", Reason: "invalid constraint", Err: err}
	}
	if m.EntryPoint == "" {
		return &ManifestError{Path: path, Field: "entry_point", Reason: "required"}
	}
	for i, dep := range m.Dependencies {
		if dep.Name == "" {
			return &ManifestError{
				Path:  path,
				Field: fmt.Sprintf("dependencies[%d].name", i),
				Reason: "required",
			}
		}
		if dep.VersionRange == "" {
			return &ManifestError{
				Path:  path,
				Field: fmt.Sprintf("dependencies[%d].version_range", i),
				Reason: "required",
			}
		}
		if err := ValidateConstraint(dep.VersionRange); err != nil {
			return &ManifestError{
				Path:  path,
				Field: fmt.Sprintf("dependencies[%d].version_range", i),
				Reason: "invalid constraint",
				Err:   err,
			}
		}
	}
	return nil
}
