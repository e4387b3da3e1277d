// Package sandbox executes plugin calls in an isolated child process under
// enforced resource limits. The child is spawned through hashicorp/go-plugin
// and never shares memory with the host; a wall-clock watchdog and kernel
// resource accounting keep a misbehaving plugin from taking the host down
// with it.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	plugin "github.com/hashicorp/go-plugin"

	"github.com/oscillo/oscillo/pkg/plugins/pluginrpc"
)

var (
	ErrUnsupportedPlatform = errors.New("sandbox: process resource accounting is not supported on this platform")
	ErrNotStarted          = errors.New("sandbox: not started")
	ErrSpent               = errors.New("sandbox: terminated after a violation")
)

// Spec describes the single plugin a Sandbox isolates.
type Spec struct {
	PluginID   string
	Command    string // absolute path to the entry-point binary
	Dir        string // working directory, normally the plugin's own directory
	Capability pluginrpc.Capability
	Limits     Limits
}

// Sandbox owns one plugin subprocess. Start spawns it and performs the
// load-time conformance check; Execute runs calls under the configured
// limits. After a violation the sandbox is spent and must be replaced.
type Sandbox struct {
	spec   Spec
	logger *slog.Logger

	mu      sync.Mutex
	client  *plugin.Client
	service pluginrpc.Service
	pid     int
	spent   bool

	sampleInterval time.Duration
}

func New(spec Spec, logger *slog.Logger) (*Sandbox, error) {
	if err := spec.Limits.Validate(); err != nil {
		return nil, fmt.Errorf("sandbox limits: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sandbox{
		spec:           spec,
		logger:         logger.With("plugin", spec.PluginID),
		sampleInterval: 100 * time.Millisecond,
	}, nil
}

// Start spawns the plugin process and verifies it honors its manifest: the
// process must dispense the service, answer Metadata, and report the same
// id and capability the manifest declared. Conformance failures leave no
// child behind.
func (s *Sandbox) Start(ctx context.Context) error {
	if !platformSupported {
		return ErrUnsupportedPlatform
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return errors.New("sandbox: already started")
	}

	cmd := exec.Command(s.spec.Command)
	cmd.Dir = s.spec.Dir
	configureSysProcAttr(cmd)

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: pluginrpc.Handshake,
		Plugins:         pluginrpc.PluginMap(),
		Cmd:             cmd,
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:  "oscillo-plugin",
			Level: hclog.Warn,
		}),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return fmt.Errorf("start plugin process: %w", err)
	}

	raw, err := rpcClient.Dispense(pluginrpc.PluginName)
	if err != nil {
		client.Kill()
		return fmt.Errorf("dispense plugin service: %w", err)
	}

	service, ok := raw.(pluginrpc.Service)
	if !ok {
		client.Kill()
		return fmt.Errorf("plugin does not implement the %s service", pluginrpc.PluginName)
	}

	md, err := service.Metadata()
	if err != nil {
		client.Kill()
		return fmt.Errorf("plugin metadata call failed: %w", err)
	}
	if err := pluginrpc.ValidateMetadata(md); err != nil {
		client.Kill()
		return err
	}
	if md.ID != s.spec.PluginID {
		client.Kill()
		return fmt.Errorf("plugin reports id %q, manifest declares %q", md.ID, s.spec.PluginID)
	}
	if md.Capability != s.spec.Capability {
		client.Kill()
		return fmt.Errorf("plugin reports capability %q, manifest declares %q", md.Capability, s.spec.Capability)
	}

	reattach := client.ReattachConfig()
	if reattach == nil {
		client.Kill()
		return errors.New("sandbox: plugin process has no reattach info")
	}

	s.client = client
	s.service = service
	s.pid = reattach.Pid
	s.logger.Debug("sandbox started", "pid", s.pid, "capability", s.spec.Capability)
	return nil
}

type execResult struct {
	out *pluginrpc.Output
	err error
}

// Execute runs one call under the configured limits. It blocks until the
// plugin returns, a limit is breached, or the host cancels ctx. Breaches
// kill the child and return a *Violation; plugin-side failures return a
// *ExecError.
func (s *Sandbox) Execute(ctx context.Context, call *pluginrpc.Call) (*pluginrpc.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil, ErrNotStarted
	}
	if s.spent {
		return nil, ErrSpent
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()

	// The watchdog kills from its own goroutine, so it works on locals
	// rather than sandbox fields.
	pid, client := s.pid, s.client
	kill := func() {
		killProcessTree(pid)
		client.Kill()
	}

	wd := newWatchdog(
		s.spec.Limits,
		func() (usage, error) { return processUsage(pid) },
		kill,
		s.sampleInterval,
	)
	breachCh := wd.run(watchCtx)

	resultCh := make(chan execResult, 1)
	go func() {
		out, err := s.service.Execute(call)
		resultCh <- execResult{out: out, err: err}
	}()

	wallTimer := time.NewTimer(s.spec.Limits.WallClock())
	defer wallTimer.Stop()

	select {
	case res := <-resultCh:
		stopWatch()
		// A breach can race a returning call; the breach wins.
		if b := <-breachCh; b != nil {
			s.spent = true
			return nil, newViolation(s.spec.PluginID, b.kind, b.detail)
		}
		if res.err != nil {
			return nil, &ExecError{PluginID: s.spec.PluginID, Err: res.err}
		}
		if err := pluginrpc.ValidateOutput(s.spec.Capability, res.out); err != nil {
			kill()
			s.spent = true
			return nil, newViolation(s.spec.PluginID, KindIllegalOperation, err.Error())
		}
		return res.out, nil

	case b, ok := <-breachCh:
		if !ok || b == nil {
			// Watchdog stopped without a breach: the host cancelled ctx.
			kill()
			s.spent = true
			return nil, &ExecError{PluginID: s.spec.PluginID, Err: ctx.Err()}
		}
		s.spent = true
		return nil, newViolation(s.spec.PluginID, b.kind, b.detail)

	case <-wallTimer.C:
		// Primary defense against hangs: the plugin is not trusted to
		// cooperate, so the whole process group goes.
		kill()
		s.spent = true
		return nil, newViolation(s.spec.PluginID, KindTimeout,
			fmt.Sprintf("no result within %s wall clock", s.spec.Limits.WallClock()))

	case <-ctx.Done():
		kill()
		s.spent = true
		return nil, &ExecError{PluginID: s.spec.PluginID, Err: ctx.Err()}
	}
}

// Close tears the subprocess down. Idempotent.
func (s *Sandbox) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		if s.pid > 0 {
			killProcessTree(s.pid)
		}
		s.client.Kill()
		s.client = nil
		s.service = nil
	}
	return nil
}
