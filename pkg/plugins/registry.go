// Package plugins implements Oscillo's plugin discovery, validation, and
// sandboxed execution registry. Plugins are directories carrying a
// plugin.yaml manifest; their code runs out of process under enforced
// resource limits, so nothing a plugin does can destabilize the host.
package plugins

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	oscillo "github.com/oscillo/oscillo"
	"github.com/oscillo/oscillo/pkg/plugins/pluginrpc"
	"github.com/oscillo/oscillo/pkg/plugins/sandbox"
	"github.com/oscillo/oscillo/pkg/registry"
)

// discoverParallelism bounds concurrent manifest parsing during a scan.
const discoverParallelism = 4

// Config configures a Registry. The zero value of every field has a
// usable default.
type Config struct {
	// HostVersion is the version manifests are checked against.
	// Defaults to the running host's version.
	HostVersion string

	// Limits applies to every plugin execution. Per-plugin overrides are
	// a host configuration concern, outside the registry contract.
	Limits sandbox.Limits

	// DisableAfter is the number of consecutive security violations
	// after which the registry proposes (never forces) disabling.
	DisableAfter int

	// NewRunner builds the isolation boundary. Defaults to the process
	// sandbox. Tests substitute fakes here.
	NewRunner RunnerFactory

	Logger  *slog.Logger
	Metrics *Metrics
}

// Registry orchestrates discovery, compatibility checking, loading, and
// sandboxed execution. It is the only plugin surface the host sees, and is
// safe for use from multiple host threads.
type Registry struct {
	*registry.BaseRegistry[*Info]

	hostVersion  string
	limits       sandbox.Limits
	disableAfter int
	newRunner    RunnerFactory
	logger       *slog.Logger
	metrics      *Metrics
}

// New creates a registry. A nil config means defaults throughout.
func New(config *Config) *Registry {
	if config == nil {
		config = &Config{}
	}

	hostVersion := config.HostVersion
	if hostVersion == "" {
		hostVersion = oscillo.Version
	}
	limits := config.Limits
	if limits == (sandbox.Limits{}) {
		limits = sandbox.DefaultLimits()
	}
	disableAfter := config.DisableAfter
	if disableAfter <= 0 {
		disableAfter = 3
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newRunner := config.NewRunner
	if newRunner == nil {
		newRunner = defaultRunnerFactory
	}

	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[*Info](),
		hostVersion:  hostVersion,
		limits:       limits,
		disableAfter: disableAfter,
		newRunner:    newRunner,
		logger:       logger,
		metrics:      config.Metrics,
	}
}

func defaultRunnerFactory(m *Manifest, limits sandbox.Limits, logger *slog.Logger) (Runner, error) {
	entry := m.EntryPoint
	if !filepath.IsAbs(entry) {
		entry = filepath.Join(m.Dir, entry)
	}
	return sandbox.New(sandbox.Spec{
		PluginID:   m.ID,
		Command:    entry,
		Dir:        m.Dir,
		Capability: m.Capability,
		Limits:     limits,
	}, logger)
}

type scanResult struct {
	dirName  string
	manifest *Manifest
	err      error
}

// Discover scans the immediate subdirectories of root for plugin manifests.
// Malformed or host-incompatible manifests are recorded as failed entries
// with a readable reason, never silently dropped: operators must be able to
// see why a plugin did not load. Re-running on an unchanged directory is
// idempotent; already-known ids are left untouched.
func (r *Registry) Discover(ctx context.Context, root string) ([]*Info, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read plugin root %q: %w", root, err)
	}

	var candidates []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifestPath := filepath.Join(root, entry.Name(), ManifestFileName)
		if _, err := os.Stat(manifestPath); errors.Is(err, fs.ErrNotExist) {
			r.logger.Debug("skipping directory without manifest", "dir", entry.Name())
			continue
		}
		candidates = append(candidates, entry.Name())
	}

	results := make([]scanResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(discoverParallelism)
	for idx, dirName := range candidates {
		idx, dirName := idx, dirName
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dir := filepath.Join(root, dirName)
			m, err := ParseManifest(filepath.Join(dir, ManifestFileName))
			if m != nil {
				m.Dir = dir
			}
			results[idx] = scanResult{dirName: dirName, manifest: m, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var discovered []*Info
	seen := make(map[string]bool, len(results))
	for _, res := range results {
		id := res.dirName
		if res.manifest != nil {
			id = res.manifest.ID
		}

		if seen[id] {
			// Two directories in this scan declared the same id; first one wins.
			r.logger.Warn("duplicate plugin id in scan",
				"plugin", id, "dir", res.dirName,
				"error", fmt.Errorf("%w: %q", ErrDuplicatePlugin, res.dirName))
			continue
		}
		seen[id] = true

		if existing, ok := r.Get(id); ok {
			discovered = append(discovered, existing)
			continue
		}

		info := &Info{id: id, manifest: res.manifest}
		switch {
		case res.err != nil:
			info.state = StateFailed
			info.lastError = res.err.Error()
			r.logger.Warn("plugin manifest rejected", "plugin", id, "reason", res.err)
		default:
			compat := CheckCompatibility(r.hostVersion, res.manifest.HostVersionRange)
			if !compat.Compatible {
				info.state = StateFailed
				info.lastError = compat.Reason
				r.logger.Warn("plugin incompatible with host",
					"plugin", id, "host_version", r.hostVersion, "reason", compat.Reason)
			} else {
				info.state = StateDiscovered
				r.logger.Info("plugin discovered",
					"plugin", id, "version", res.manifest.Version, "capability", res.manifest.Capability)
			}
		}

		if err := r.Register(id, info); err != nil {
			// A concurrent scan registered the id between Get and Register.
			r.logger.Warn("plugin id registered concurrently", "plugin", id, "dir", res.dirName, "error", err)
			continue
		}
		discovered = append(discovered, info)
	}

	r.metrics.setPluginCount(r.Count())
	return discovered, nil
}

// Load resolves a discovered plugin's entry point, starts its sandbox, and
// verifies capability conformance. Only Discovered plugins may load; a
// plugin whose compatibility check failed sits in Failed and can never
// reach Loaded.
func (r *Registry) Load(ctx context.Context, pluginID string) error {
	info, ok := r.Get(pluginID)
	if !ok {
		return newPluginError(pluginID, "Load", "unknown plugin", ErrPluginNotFound)
	}

	info.opMu.Lock()
	defer info.opMu.Unlock()

	if st := info.State(); st != StateDiscovered {
		return newPluginError(pluginID, "Load",
			fmt.Sprintf("requires state %s, currently %s", StateDiscovered, st), ErrInvalidState)
	}

	m := info.Manifest()
	if compat := CheckCompatibility(r.hostVersion, m.HostVersionRange); !compat.Compatible {
		return r.failLoad(info, &LoadError{PluginID: pluginID, Reason: compat.Reason})
	}

	entry := m.EntryPoint
	if !filepath.IsAbs(entry) {
		entry = filepath.Join(m.Dir, entry)
	}
	fi, err := os.Stat(entry)
	if err != nil {
		return r.failLoad(info, &LoadError{PluginID: pluginID, Reason: "entry point not found", Err: err})
	}
	if fi.IsDir() || fi.Mode()&0111 == 0 {
		return r.failLoad(info, &LoadError{PluginID: pluginID,
			Reason: fmt.Sprintf("entry point %q is not an executable file", m.EntryPoint)})
	}

	runner, err := r.newRunner(m, r.limits, r.logger)
	if err != nil {
		return r.failLoad(info, &LoadError{PluginID: pluginID, Reason: "sandbox construction failed", Err: err})
	}
	if err := runner.Start(ctx); err != nil {
		_ = runner.Close()
		return r.failLoad(info, &LoadError{PluginID: pluginID, Reason: "sandbox start failed", Err: err})
	}

	info.mu.Lock()
	next, terr := transition(pluginID, info.state, StateLoaded)
	if terr != nil {
		info.mu.Unlock()
		_ = runner.Close()
		return terr
	}
	info.state = next
	info.runner = runner
	info.loadCount++
	info.lastError = ""
	info.mu.Unlock()

	r.logger.Info("plugin loaded", "plugin", pluginID, "version", m.Version)
	return nil
}

// failLoad records a load failure and moves the plugin to Failed.
func (r *Registry) failLoad(info *Info, loadErr *LoadError) error {
	info.mu.Lock()
	next, terr := transition(info.id, info.state, StateFailed)
	if terr != nil {
		info.mu.Unlock()
		return terr
	}
	info.state = next
	info.lastError = loadErr.Error()
	info.mu.Unlock()

	r.logger.Warn("plugin load failed", "plugin", info.id, "error", loadErr)
	return loadErr
}

// Execute runs one sandboxed call. It requires state Loaded or Active and
// blocks until the sandbox returns, the watchdog kills the plugin, or ctx
// is cancelled. Calls for the same plugin are serialized; distinct plugins
// run concurrently.
//
// A security violation forces the plugin to Failed and is returned as the
// error. A plugin-side failure is returned without a state change: bad
// input or a plugin bug is the caller's problem, not a lifecycle event.
func (r *Registry) Execute(ctx context.Context, pluginID string, call *pluginrpc.Call) (*pluginrpc.Output, error) {
	info, ok := r.Get(pluginID)
	if !ok {
		return nil, newPluginError(pluginID, "Execute", "unknown plugin", ErrPluginNotFound)
	}

	info.opMu.Lock()
	defer info.opMu.Unlock()

	st := info.State()
	if st != StateLoaded && st != StateActive {
		return nil, newPluginError(pluginID, "Execute",
			fmt.Sprintf("requires state %s or %s, currently %s", StateLoaded, StateActive, st),
			ErrInvalidState)
	}

	info.mu.Lock()
	runner := info.runner
	info.mu.Unlock()
	if runner == nil {
		return nil, newPluginError(pluginID, "Execute", "no live sandbox", ErrInvalidState)
	}

	if call == nil {
		call = &pluginrpc.Call{}
	}
	if call.ID == "" {
		call.ID = uuid.NewString()
	}

	out, err := runner.Execute(ctx, call)

	var violation *sandbox.Violation
	if errors.As(err, &violation) {
		r.recordViolation(info, violation)
		return nil, violation
	}
	if err != nil {
		info.mu.Lock()
		info.lastError = err.Error()
		info.mu.Unlock()
		r.metrics.observeExecution(pluginID, "error")
		r.logger.Debug("plugin execution failed", "plugin", pluginID, "call", call.ID, "error", err)
		return nil, err
	}

	info.mu.Lock()
	next, terr := transition(pluginID, info.state, StateActive)
	if terr != nil {
		info.mu.Unlock()
		return nil, terr
	}
	info.state = next
	info.consecutive = 0
	info.lastError = ""
	info.mu.Unlock()

	r.metrics.observeExecution(pluginID, "success")
	return out, nil
}

// recordViolation is the registry's response to a sandbox breach: count it,
// force Failed, drop the dead sandbox, and log everything an operator needs
// to identify the misbehaving plugin.
func (r *Registry) recordViolation(info *Info, v *sandbox.Violation) {
	info.mu.Lock()
	info.failureCount++
	info.consecutive++
	info.lastError = v.Error()
	next, terr := transition(info.id, info.state, StateFailed)
	if terr == nil {
		info.state = next
	}
	runner := info.runner
	info.runner = nil
	propose := !info.disableProposed && info.consecutive >= r.disableAfter
	if propose {
		info.disableProposed = true
	}
	failures := info.failureCount
	info.mu.Unlock()

	if runner != nil {
		_ = runner.Close()
	}

	r.metrics.observeExecution(info.id, "violation")
	r.metrics.observeViolation(info.id, string(v.Kind))
	r.logger.Error("plugin security violation",
		"plugin", v.PluginID,
		"violation", v.ID,
		"kind", v.Kind,
		"detail", v.Detail,
		"detected_at", v.DetectedAt,
		"failure_count", failures)

	if propose {
		r.logger.Warn("plugin exceeded violation threshold, disable proposed",
			"plugin", info.id, "consecutive_failures", r.disableAfter)
	}
}

// Disable parks a failed plugin. Explicit host action only; the registry
// never disables on its own.
func (r *Registry) Disable(pluginID string) error {
	info, ok := r.Get(pluginID)
	if !ok {
		return newPluginError(pluginID, "Disable", "unknown plugin", ErrPluginNotFound)
	}

	info.opMu.Lock()
	defer info.opMu.Unlock()

	info.mu.Lock()
	next, terr := transition(pluginID, info.state, StateDisabled)
	if terr != nil {
		info.mu.Unlock()
		return terr
	}
	info.state = next
	runner := info.runner
	info.runner = nil
	info.mu.Unlock()

	if runner != nil {
		_ = runner.Close()
	}
	r.logger.Info("plugin disabled", "plugin", pluginID)
	return nil
}

// Enable returns a disabled plugin to Discovered so the host may try it
// again from the top of the lifecycle.
func (r *Registry) Enable(pluginID string) error {
	info, ok := r.Get(pluginID)
	if !ok {
		return newPluginError(pluginID, "Enable", "unknown plugin", ErrPluginNotFound)
	}

	info.opMu.Lock()
	defer info.opMu.Unlock()

	info.mu.Lock()
	next, terr := transition(pluginID, info.state, StateDiscovered)
	if terr != nil {
		info.mu.Unlock()
		return terr
	}
	info.state = next
	info.lastError = ""
	// The violation streak survives re-enable: only a successful execution
	// proves the plugin has recovered. Re-enabling just withdraws the
	// standing proposal.
	info.disableProposed = false
	info.mu.Unlock()

	r.logger.Info("plugin re-enabled", "plugin", pluginID)
	return nil
}

// Unregister removes a plugin and tears down its sandbox. Idempotent.
func (r *Registry) Unregister(pluginID string) {
	info, ok := r.Get(pluginID)
	if !ok {
		return
	}

	info.opMu.Lock()
	defer info.opMu.Unlock()

	info.mu.Lock()
	runner := info.runner
	info.runner = nil
	info.mu.Unlock()

	if runner != nil {
		_ = runner.Close()
	}
	_ = r.Remove(pluginID)
	r.metrics.setPluginCount(r.Count())
	r.logger.Info("plugin unregistered", "plugin", pluginID)
}

// Close shuts down every live sandbox and empties the registry.
func (r *Registry) Close() error {
	for _, info := range r.List() {
		info.opMu.Lock()
		info.mu.Lock()
		runner := info.runner
		info.runner = nil
		info.mu.Unlock()
		info.opMu.Unlock()

		if runner != nil {
			_ = runner.Close()
		}
	}
	r.Clear()
	r.metrics.setPluginCount(0)
	return nil
}

// HostVersion returns the version plugins are checked against.
func (r *Registry) HostVersion() string {
	return r.hostVersion
}
