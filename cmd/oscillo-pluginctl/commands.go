package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	oscillo "github.com/oscillo/oscillo"
	"github.com/oscillo/oscillo/pkg/config"
	"github.com/oscillo/oscillo/pkg/plugins"
	"github.com/oscillo/oscillo/pkg/plugins/pluginrpc"
	"github.com/oscillo/oscillo/pkg/series"
)

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := oscillo.GetVersion()
	fmt.Printf("oscillo %s (%s, %s)\n", info.Version, info.GoVersion, info.Platform)
	return nil
}

func newRegistry(cfg *config.Config) *plugins.Registry {
	return plugins.New(&plugins.Config{
		Limits:       cfg.Limits,
		DisableAfter: cfg.DisableAfter,
		Logger:       slog.Default(),
	})
}

// ListCmd discovers plugins and prints the catalog.
type ListCmd struct {
	Root string `help:"Plugin root directory." type:"path"`
}

func (c *ListCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig(c.Root)
	if err != nil {
		return err
	}

	reg := newRegistry(cfg)
	defer reg.Close()

	infos, err := reg.Discover(context.Background(), cfg.PluginRoot)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Printf("no plugins found under %s\n", cfg.PluginRoot)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVERSION\tCAPABILITY\tSTATE\tDETAIL")
	for _, info := range infos {
		version, capability := "-", "-"
		if m := info.Manifest(); m != nil {
			version = m.Version
			capability = string(m.Capability)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			info.ID(), version, capability, info.State(), info.LastError())
	}
	return w.Flush()
}

// InspectCmd prints one plugin's manifest in detail.
type InspectCmd struct {
	Plugin string `arg:"" help:"Plugin id."`
	Root   string `help:"Plugin root directory." type:"path"`
}

func (c *InspectCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig(c.Root)
	if err != nil {
		return err
	}

	reg := newRegistry(cfg)
	defer reg.Close()

	if _, err := reg.Discover(context.Background(), cfg.PluginRoot); err != nil {
		return err
	}
	info, ok := reg.Get(c.Plugin)
	if !ok {
		return fmt.Errorf("plugin %q not found under %s", c.Plugin, cfg.PluginRoot)
	}

	fmt.Printf("Plugin: %s\n", info.ID())
	fmt.Printf("State:  %s\n", info.State())
	if e := info.LastError(); e != "" {
		fmt.Printf("Error:  %s\n", e)
	}
	m := info.Manifest()
	if m == nil {
		return nil
	}
	fmt.Printf("Version:       %s\n", m.Version)
	fmt.Printf("Capability:    %s\n", m.Capability)
	fmt.Printf("Host range:    %s\n", m.HostVersionRange)
	fmt.Printf("Entry point:   %s\n", m.EntryPoint)
	fmt.Printf("Directory:     %s\n", m.Dir)
	for _, dep := range m.Dependencies {
		fmt.Printf("Dependency:    %s %s\n", dep.Name, dep.VersionRange)
	}
	if len(m.Extra) > 0 {
		keys := make([]string, 0, len(m.Extra))
		for k := range m.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("Extra:         %s: %v\n", k, m.Extra[k])
		}
	}
	return nil
}

// CheckCmd validates a manifest file without touching a registry.
type CheckCmd struct {
	Manifest string `arg:"" help:"Path to a plugin.yaml file." type:"path"`
}

func (c *CheckCmd) Run(cli *CLI) error {
	m, err := plugins.ParseManifest(c.Manifest)
	if err != nil {
		return err
	}
	compat := plugins.CheckCompatibility(oscillo.Version, m.HostVersionRange)
	fmt.Printf("%s: manifest ok (id %s, version %s, capability %s)\n",
		c.Manifest, m.ID, m.Version, m.Capability)
	if !compat.Compatible {
		fmt.Printf("warning: incompatible with this host: %s\n", compat.Reason)
	}
	return nil
}

// RunCmd loads a plugin and executes exactly one sandboxed call.
type RunCmd struct {
	Plugin string            `arg:"" help:"Plugin id."`
	Root   string            `help:"Plugin root directory." type:"path"`
	Series string            `help:"YAML file with the input series." type:"path"`
	Params map[string]string `help:"Call parameters as key=value pairs."`
	Output string            `short:"o" help:"Write exporter/visualization artifacts here instead of stdout." type:"path"`
}

func (c *RunCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig(c.Root)
	if err != nil {
		return err
	}

	reg := newRegistry(cfg)
	defer reg.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if _, err := reg.Discover(ctx, cfg.PluginRoot); err != nil {
		return err
	}
	if err := reg.Load(ctx, c.Plugin); err != nil {
		return err
	}

	call := &pluginrpc.Call{Params: c.Params}
	if c.Series != "" {
		s, err := readSeries(c.Series)
		if err != nil {
			return err
		}
		call.Series = s
	}

	out, err := reg.Execute(ctx, c.Plugin, call)
	if err != nil {
		return err
	}
	return printOutput(out, c.Output)
}

func readSeries(path string) (*series.Series, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read series file: %w", err)
	}
	var s series.Series
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse series file %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("series file %s: %w", path, err)
	}
	return &s, nil
}

func printOutput(out *pluginrpc.Output, artifactPath string) error {
	if out.Series != nil {
		var sb strings.Builder
		fmt.Fprintf(&sb, "series %q (%d points)", out.Series.Name, out.Series.Len())
		if out.Series.Unit != "" {
			fmt.Fprintf(&sb, " [%s]", out.Series.Unit)
		}
		fmt.Println(sb.String())
		for _, p := range out.Series.Points {
			fmt.Printf("  %g\t%g\n", p.T, p.V)
		}
	}
	if len(out.Artifact) > 0 {
		if artifactPath == "" {
			fmt.Printf("artifact: %d bytes (%s); use -o to write it to a file\n", len(out.Artifact), out.MIME)
			return nil
		}
		if err := os.WriteFile(artifactPath, out.Artifact, 0o644); err != nil {
			return fmt.Errorf("write artifact: %w", err)
		}
		fmt.Printf("wrote %d bytes (%s) to %s\n", len(out.Artifact), out.MIME, artifactPath)
	}
	return nil
}

// WatchCmd keeps discovering until interrupted, reporting each change.
type WatchCmd struct {
	Root string `help:"Plugin root directory." type:"path"`
}

func (c *WatchCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig(c.Root)
	if err != nil {
		return err
	}

	reg := newRegistry(cfg)
	defer reg.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if _, err := reg.Discover(ctx, cfg.PluginRoot); err != nil {
		return err
	}
	fmt.Printf("watching %s (%d plugins), ctrl-c to stop\n", cfg.PluginRoot, reg.Count())

	watcher, err := plugins.NewWatcher(reg, cfg.PluginRoot, slog.Default())
	if err != nil {
		return err
	}
	defer watcher.Close()

	updates, err := watcher.Watch(ctx)
	if err != nil {
		return err
	}
	for infos := range updates {
		fmt.Printf("catalog changed: %d plugins\n", len(infos))
		for _, info := range infos {
			fmt.Printf("  %s\t%s\n", info.ID(), info.State())
		}
	}
	return nil
}
