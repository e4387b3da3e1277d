package pluginrpc

// Capability tags what kind of extension a plugin provides. The registry
// only reads the tag; the capability-specific payload shape is checked by
// ValidateOutput.
type Capability string

const (
	CapabilityOperation     Capability = "operation"
	CapabilityLoader        Capability = "loader"
	CapabilityExporter      Capability = "exporter"
	CapabilityVisualization Capability = "visualization"
	CapabilityUI            Capability = "ui"
)

// Capabilities lists every recognized capability.
func Capabilities() []Capability {
	return []Capability{
		CapabilityOperation,
		CapabilityLoader,
		CapabilityExporter,
		CapabilityVisualization,
		CapabilityUI,
	}
}

func (c Capability) Valid() bool {
	switch c {
	case CapabilityOperation, CapabilityLoader, CapabilityExporter,
		CapabilityVisualization, CapabilityUI:
		return true
	}
	return false
}

func (c Capability) String() string {
	return string(c)
}
