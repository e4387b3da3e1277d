package pluginrpc

import (
	"strings"
	"testing"

	"github.com/oscillo/oscillo/pkg/series"
)

func TestCapabilityValid(t *testing.T) {
	for _, c := range Capabilities() {
		if !c.Valid() {
			t.Errorf("expected %q to be valid", c)
		}
	}
	for _, c := range []Capability{"", "widget", "Operation"} {
		if c.Valid() {
			t.Errorf("expected %q to be invalid", c)
		}
	}
}

func TestValidateMetadata(t *testing.T) {
	tests := []struct {
		name    string
		md      *Metadata
		wantErr string
	}{
		{
			name: "valid",
			md:   &Metadata{ID: "smooth", Version: "1.0.0", Capability: CapabilityOperation},
		},
		{
			name:    "nil",
			md:      nil,
			wantErr: "no metadata",
		},
		{
			name:    "missing id",
			md:      &Metadata{Capability: CapabilityOperation},
			wantErr: "missing id",
		},
		{
			name:    "unknown capability",
			md:      &Metadata{ID: "x", Capability: "widget"},
			wantErr: "unknown capability",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMetadata(tt.md)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateOutput(t *testing.T) {
	s := series.New("cpu", series.Point{T: 0, V: 1})

	tests := []struct {
		name    string
		cap     Capability
		out     *Output
		wantErr bool
	}{
		{
			name: "operation with series",
			cap:  CapabilityOperation,
			out:  &Output{Capability: CapabilityOperation, Series: s},
		},
		{
			name:    "operation missing series",
			cap:     CapabilityOperation,
			out:     &Output{Capability: CapabilityOperation},
			wantErr: true,
		},
		{
			name:    "capability mismatch",
			cap:     CapabilityOperation,
			out:     &Output{Capability: CapabilityExporter, Artifact: []byte("x"), MIME: "text/csv"},
			wantErr: true,
		},
		{
			name: "exporter with artifact",
			cap:  CapabilityExporter,
			out:  &Output{Capability: CapabilityExporter, Artifact: []byte("a,b\n"), MIME: "text/csv"},
		},
		{
			name:    "exporter missing mime",
			cap:     CapabilityExporter,
			out:     &Output{Capability: CapabilityExporter, Artifact: []byte("a,b\n")},
			wantErr: true,
		},
		{
			name:    "visualization missing artifact",
			cap:     CapabilityVisualization,
			out:     &Output{Capability: CapabilityVisualization, MIME: "image/png"},
			wantErr: true,
		},
		{
			name: "ui needs nothing",
			cap:  CapabilityUI,
			out:  &Output{Capability: CapabilityUI},
		},
		{
			name:    "nil output",
			cap:     CapabilityUI,
			out:     nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutput(tt.cap, tt.out)
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
