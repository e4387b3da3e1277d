package sandbox

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"testing"
	"time"

	plugin "github.com/hashicorp/go-plugin"

	"github.com/oscillo/oscillo/pkg/plugins/pluginrpc"
)

// hangingService never returns from Execute until released, standing in for
// a plugin stuck in an infinite loop.
type hangingService struct {
	release chan struct{}
}

func (h *hangingService) Metadata() (*pluginrpc.Metadata, error) {
	return &pluginrpc.Metadata{
		ID:         "hang",
		Version:    "1.0.0",
		Capability: pluginrpc.CapabilityOperation,
	}, nil
}

func (h *hangingService) Execute(*pluginrpc.Call) (*pluginrpc.Output, error) {
	<-h.release
	return nil, errors.New("released")
}

// stuckSandbox wires a Sandbox around a real child process and an
// in-process service, bypassing Start so the enforcement paths can be
// exercised without a plugin binary.
func stuckSandbox(t *testing.T, limits Limits, svc pluginrpc.Service) (*Sandbox, *exec.Cmd) {
	t.Helper()
	if !platformSupported {
		t.Skip("resource enforcement requires linux")
	}

	cmd := exec.Command("sleep", "60")
	configureSysProcAttr(cmd)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start child: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	s, err := New(Spec{
		PluginID:   "hang",
		Command:    "sleep",
		Capability: pluginrpc.CapabilityOperation,
		Limits:     limits,
	}, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		t.Fatalf("new sandbox: %v", err)
	}
	// Kill on a never-started client is a no-op, so the watchdog's kill
	// path reduces to the process-group signal under test.
	s.client = &plugin.Client{}
	s.service = svc
	s.pid = cmd.Process.Pid
	return s, cmd
}

func TestSandbox_WallClockTimeout(t *testing.T) {
	svc := &hangingService{release: make(chan struct{})}
	t.Cleanup(func() { close(svc.release) })

	s, cmd := stuckSandbox(t, Limits{
		MaxMemoryBytes:      1 << 30,
		MaxCPUSeconds:       60,
		MaxWallClockSeconds: 0.2,
	}, svc)

	start := time.Now()
	_, err := s.Execute(context.Background(), &pluginrpc.Call{})
	elapsed := time.Since(start)

	var v *Violation
	if !errors.As(err, &v) {
		t.Fatalf("expected a violation, got %v", err)
	}
	if v.Kind != KindTimeout {
		t.Fatalf("expected %s violation, got %s (%s)", KindTimeout, v.Kind, v.Detail)
	}
	if v.PluginID != "hang" {
		t.Errorf("violation attributed to %q", v.PluginID)
	}
	if elapsed > 2*time.Second {
		t.Errorf("termination took %s, wall-clock budget was 200ms", elapsed)
	}

	// The child's process group must be gone.
	waited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("plugin process survived the timeout kill")
	}

	// One violation spends the sandbox for good.
	if _, err := s.Execute(context.Background(), &pluginrpc.Call{}); !errors.Is(err, ErrSpent) {
		t.Fatalf("expected ErrSpent after violation, got %v", err)
	}
}

func TestSandbox_HostCancelIsNotAViolation(t *testing.T) {
	svc := &hangingService{release: make(chan struct{})}
	t.Cleanup(func() { close(svc.release) })

	s, _ := stuckSandbox(t, Limits{
		MaxMemoryBytes:      1 << 30,
		MaxCPUSeconds:       60,
		MaxWallClockSeconds: 30,
	}, svc)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := s.Execute(ctx, &pluginrpc.Call{})
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecError on host cancel, got %v", err)
	}
	var v *Violation
	if errors.As(err, &v) {
		t.Fatalf("host cancellation must not be recorded as a violation: %v", v)
	}
}

func TestSandbox_ExecuteBeforeStart(t *testing.T) {
	s, err := New(Spec{
		PluginID:   "hang",
		Command:    "sleep",
		Capability: pluginrpc.CapabilityOperation,
		Limits:     DefaultLimits(),
	}, nil)
	if err != nil {
		t.Fatalf("new sandbox: %v", err)
	}
	if _, err := s.Execute(context.Background(), &pluginrpc.Call{}); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}
