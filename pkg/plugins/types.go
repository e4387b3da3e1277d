package plugins

import (
	"context"
	"log/slog"
	"sync"

	"github.com/oscillo/oscillo/pkg/plugins/pluginrpc"
	"github.com/oscillo/oscillo/pkg/plugins/sandbox"
)

// Runner is the isolation boundary for one loaded plugin. The production
// implementation is sandbox.Sandbox; tests substitute their own.
type Runner interface {
	// Start spawns the isolated unit and performs the load-time
	// conformance check against the manifest.
	Start(ctx context.Context) error

	// Execute runs one call under the configured resource limits.
	// Limit breaches come back as *sandbox.Violation, plugin-side
	// failures as *sandbox.ExecError.
	Execute(ctx context.Context, call *pluginrpc.Call) (*pluginrpc.Output, error)

	// Close terminates the isolated unit. Idempotent.
	Close() error
}

// RunnerFactory builds the isolation boundary for a plugin about to load.
type RunnerFactory func(m *Manifest, limits sandbox.Limits, logger *slog.Logger) (Runner, error)

// Info is the registry's live record for one plugin. All mutation goes
// through registry methods; callers read through accessors or Snapshot.
type Info struct {
	// opMu serializes lifecycle operations (load, execute, disable,
	// enable, unregister) for this plugin id. Operations on distinct
	// plugins proceed independently.
	opMu sync.Mutex

	// mu guards the fields below. Held only for field access, never
	// across a sandbox call, so reads stay cheap while a plugin runs.
	mu              sync.Mutex
	id              string // manifest id, or the directory name when parsing failed
	manifest        *Manifest
	state           State
	lastError       string
	loadCount       int
	failureCount    int
	consecutive     int
	disableProposed bool
	runner          Runner
}

// Snapshot is a point-in-time copy of an Info for display and inspection.
type Snapshot struct {
	ID              string
	Manifest        *Manifest
	State           State
	LastError       string
	LoadCount       int
	FailureCount    int
	DisableProposed bool
}

func (i *Info) ID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.id
}

func (i *Info) Manifest() *Manifest {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.manifest
}

func (i *Info) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

func (i *Info) LastError() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastError
}

func (i *Info) LoadCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.loadCount
}

// FailureCount is monotonic: it never resets while the registry lives.
func (i *Info) FailureCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.failureCount
}

func (i *Info) DisableProposed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.disableProposed
}

func (i *Info) Snapshot() Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	return Snapshot{
		ID:              i.id,
		Manifest:        i.manifest,
		State:           i.state,
		LastError:       i.lastError,
		LoadCount:       i.loadCount,
		FailureCount:    i.failureCount,
		DisableProposed: i.disableProposed,
	}
}
