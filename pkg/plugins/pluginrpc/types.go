package pluginrpc

import (
	"fmt"

	"github.com/oscillo/oscillo/pkg/series"
)

// Metadata is what a plugin process reports about itself. The sandbox
// compares it against the manifest at load time; a plugin whose process
// disagrees with its manifest never reaches the loaded state.
type Metadata struct {
	ID          string
	Version     string
	Capability  Capability
	Description string
}

// Call is the host-supplied context for one plugin execution.
type Call struct {
	ID     string
	Series *series.Series
	Params map[string]string
}

// Output is the capability-shaped result of one plugin execution.
//
// Which fields must be set depends on the capability: operation and loader
// plugins return a Series, exporter and visualization plugins return an
// Artifact with its MIME type, ui plugins return nothing.
type Output struct {
	Capability Capability
	Series     *series.Series
	Artifact   []byte
	MIME       string
}

// Service is the callable surface every plugin process must expose.
type Service interface {
	Metadata() (*Metadata, error)
	Execute(call *Call) (*Output, error)
}

// ValidateMetadata rejects metadata that could not identify a plugin.
func ValidateMetadata(md *Metadata) error {
	if md == nil {
		return fmt.Errorf("plugin reported no metadata")
	}
	if md.ID == "" {
		return fmt.Errorf("plugin metadata missing id")
	}
	if !md.Capability.Valid() {
		return fmt.Errorf("plugin metadata has unknown capability %q", md.Capability)
	}
	return nil
}

// ValidateOutput checks that an execution result has the shape the declared
// capability promises. A mismatch is a contract breach, not a plugin error.
func ValidateOutput(c Capability, out *Output) error {
	if out == nil {
		return fmt.Errorf("plugin returned no output")
	}
	if out.Capability != c {
		return fmt.Errorf("plugin returned output for capability %q, declared %q", out.Capability, c)
	}

	switch c {
	case CapabilityOperation, CapabilityLoader:
		if out.Series == nil {
			return fmt.Errorf("%s output requires a series", c)
		}
		if err := out.Series.Validate(); err != nil {
			return fmt.Errorf("%s output series invalid: %w", c, err)
		}
	case CapabilityExporter, CapabilityVisualization:
		if len(out.Artifact) == 0 {
			return fmt.Errorf("%s output requires an artifact", c)
		}
		if out.MIME == "" {
			return fmt.Errorf("%s output requires a MIME type", c)
		}
	case CapabilityUI:
		// No payload requirement.
	default:
		return fmt.Errorf("unknown capability %q", c)
	}
	return nil
}
