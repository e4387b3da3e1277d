package sandbox

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a security violation.
type Kind string

const (
	KindMemoryExceeded   Kind = "memory_exceeded"
	KindCPUExceeded      Kind = "cpu_exceeded"
	KindTimeout          Kind = "timeout"
	KindIllegalOperation Kind = "illegal_operation"
)

// Violation records one resource-limit breach. Exactly one Violation is
// produced per terminated execution; the registry uses it to force the
// plugin into the failed state.
type Violation struct {
	ID         string
	PluginID   string
	Kind       Kind
	DetectedAt time.Time
	Detail     string
}

func newViolation(pluginID string, kind Kind, detail string) *Violation {
	return &Violation{
		ID:         uuid.NewString(),
		PluginID:   pluginID,
		Kind:       kind,
		DetectedAt: time.Now(),
		Detail:     detail,
	}
}

func (v *Violation) Error() string {
	return fmt.Sprintf("plugin %q security violation (%s): %s", v.PluginID, v.Kind, v.Detail)
}

// ExecError is a failure inside plugin code: the plugin returned an error or
// its process died on its own. It is ordinary plugin misbehavior, distinct
// from a Violation, and never forces the disabled state by itself.
type ExecError struct {
	PluginID string
	Err      error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("plugin %q execution failed: %v", e.PluginID, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}
