package plugins

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validManifestDoc = `
plugin:
  id: smooth
  version: 1.2.0
  capability: operation
  host_version_range: ">=2.0.0, <3.0.0"
  entry_point: bin/smooth
  dependencies:
    - name: resample
      version_range: "~=1.1"
  author: someone@example.com
  homepage: https://example.com/smooth
`

func TestParseManifestBytes(t *testing.T) {
	m, err := ParseManifestBytes([]byte(validManifestDoc), "plugin.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.ID != "smooth" || m.Version != "1.2.0" {
		t.Errorf("unexpected identity: %s %s", m.ID, m.Version)
	}
	if m.Capability != "operation" {
		t.Errorf("unexpected capability: %s", m.Capability)
	}
	if m.EntryPoint != "bin/smooth" {
		t.Errorf("unexpected entry point: %s", m.EntryPoint)
	}
	if len(m.Dependencies) != 1 || m.Dependencies[0].Name != "resample" {
		t.Errorf("unexpected dependencies: %v", m.Dependencies)
	}

	// Unknown keys are preserved but ignored.
	if m.Extra["author"] != "someone@example.com" {
		t.Errorf("expected unknown key 'author' preserved, got %v", m.Extra)
	}
	if _, ok := m.Extra["id"]; ok {
		t.Error("known keys must not leak into Extra")
	}
}

func TestParseManifestBytesErrors(t *testing.T) {
	base := map[string]string{
		"id":                 "smooth",
		"version":            "1.2.0",
		"capability":         "operation",
		"host_version_range": ">=2.0.0",
		"entry_point":        "bin/smooth",
	}

	render := func(overrides map[string]string) []byte {
		var b strings.Builder
		b.WriteString("plugin:\n")
		for k, v := range base {
			val, ok := overrides[k]
			if !ok {
				val = v
			}
			if val == "" {
				continue
			}
			b.WriteString("  " + k + ": \"" + val + "\"\n")
		}
		return []byte(b.String())
	}

	tests := []struct {
		name      string
		overrides map[string]string
		wantField string
	}{
		{"missing id", map[string]string{"id": ""}, "id"},
		{"missing version", map[string]string{"version": ""}, "version"},
		{"bad semver", map[string]string{"version": "1.2"}, "version"},
		{"garbage semver", map[string]string{"version": "one.two.three"}, "version"},
		{"missing capability", map[string]string{"capability": ""}, "capability"},
		{"unknown capability", map[string]string{"capability": "widget"}, "capability"},
		{"missing range", map[string]string{"host_version_range": ""}, "host_version_range"},
		{"malformed range", map[string]string{"host_version_range": "whenever"}, "host_version_range"},
		{"missing entry point", map[string]string{"entry_point": ""}, "entry_point"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifestBytes(render(tt.overrides), "plugin.yaml")
			var merr *ManifestError
			if !errors.As(err, &merr) {
				t.Fatalf("expected ManifestError, got %v", err)
			}
			if merr.Field != tt.wantField {
				t.Errorf("expected field %q, got %q (%v)", tt.wantField, merr.Field, merr)
			}
		})
	}
}

func TestParseManifestBytesBadDependency(t *testing.T) {
	doc := `
plugin:
  id: smooth
  version: 1.2.0
  capability: operation
  host_version_range: ">=2.0.0"
  entry_point: bin/smooth
  dependencies:
    - name: resample
      version_range: "sometimes"
`
	_, err := ParseManifestBytes([]byte(doc), "plugin.yaml")
	var merr *ManifestError
	if !errors.As(err, &merr) {
		t.Fatalf("expected ManifestError, got %v", err)
	}
	if !strings.Contains(merr.Field, "dependencies[0]") {
		t.Errorf("expected dependency field, got %q", merr.Field)
	}
}

func TestParseManifestBytesNoPluginBlock(t *testing.T) {
	_, err := ParseManifestBytes([]byte("something: else\n"), "plugin.yaml")
	var merr *ManifestError
	if !errors.As(err, &merr) {
		t.Fatalf("expected ManifestError, got %v", err)
	}
}

func TestParseManifestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestFileName)
	if err := os.WriteFile(path, []byte(validManifestDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := ParseManifest(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ID != "smooth" {
		t.Errorf("unexpected id %q", m.ID)
	}

	if _, err := ParseManifest(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
