// Command oscillo-pluginctl inspects and exercises Oscillo plugins from the
// command line.
//
// Usage:
//
//	oscillo-pluginctl list --root ./plugins
//	oscillo-pluginctl check ./plugins/smooth/plugin.yaml
//	oscillo-pluginctl run smooth --root ./plugins --series input.yaml
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/oscillo/oscillo/pkg/config"
	"github.com/oscillo/oscillo/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	List    ListCmd    `cmd:"" help:"Discover plugins and show their catalog state."`
	Inspect InspectCmd `cmd:"" help:"Show one plugin's manifest in detail."`
	Check   CheckCmd   `cmd:"" help:"Validate a plugin manifest file."`
	Run     RunCmd     `cmd:"" help:"Load a plugin and execute one sandboxed call."`
	Watch   WatchCmd   `cmd:"" help:"Watch the plugin root and report catalog changes."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `name:"log-format" help:"Log format (text, json)." default:"text"`
}

// loadConfig resolves the effective config: file if given, defaults otherwise,
// with the --root flag taking precedence over both.
func (cli *CLI) loadConfig(rootFlag string) (*config.Config, error) {
	cfg := config.Default()
	if cli.Config != "" {
		loaded, err := config.Load(cli.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if rootFlag != "" {
		cfg.PluginRoot = rootFlag
	}
	return cfg, nil
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("oscillo-pluginctl"),
		kong.Description("Oscillo plugin registry tool"),
		kong.UsageOnError(),
	)

	logger.Init(logger.Options{
		Level:  cli.LogLevel,
		Format: cli.LogFormat,
		Output: os.Stderr,
	})

	err := ctx.Run(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "oscillo-pluginctl: %v\n", err)
		os.Exit(1)
	}
}
