package plugins

import (
	"errors"
	"fmt"
)

var (
	ErrPluginNotFound    = errors.New("plugin not found")
	ErrInvalidState      = errors.New("plugin is in the wrong state for this operation")
	ErrIllegalTransition = errors.New("illegal plugin state transition")
	ErrDuplicatePlugin   = errors.New("duplicate plugin id")
)

// ManifestError reports a malformed or incomplete plugin manifest. It is
// recovered locally: discovery records it on the plugin entry and moves on.
type ManifestError struct {
	Path   string
	Field  string
	Reason string
	Err    error
}

func (e *ManifestError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest %s: field %q: %s", e.Path, e.Field, e.Reason)
	}
	return fmt.Sprintf("manifest %s: %s", e.Path, e.Reason)
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// ConstraintSyntaxError reports an unparsable version-range expression.
// An unparsable constraint is never treated as compatible.
type ConstraintSyntaxError struct {
	Expression string
	Reason     string
}

func (e *ConstraintSyntaxError) Error() string {
	return fmt.Sprintf("constraint %q: %s", e.Expression, e.Reason)
}

// LoadError reports an entry-point resolution or conformance failure; the
// plugin moves to the failed state.
type LoadError struct {
	PluginID string
	Reason   string
	Err      error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load plugin %q: %s: %v", e.PluginID, e.Reason, e.Err)
	}
	return fmt.Sprintf("load plugin %q: %s", e.PluginID, e.Reason)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// PluginError wraps a registry operation failure with its plugin and
// operation context.
type PluginError struct {
	PluginID  string
	Operation string
	Message   string
	Err       error
}

func (e *PluginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[plugin:%s] %s failed: %s: %v", e.PluginID, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("[plugin:%s] %s failed: %s", e.PluginID, e.Operation, e.Message)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

func newPluginError(pluginID, operation, message string, err error) *PluginError {
	return &PluginError{
		PluginID:  pluginID,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
