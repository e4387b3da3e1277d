package pluginrpc

import (
	plugin "github.com/hashicorp/go-plugin"
)

// Serve runs a plugin implementation. Plugin authors call this from main();
// the process blocks until the host disconnects or kills it.
func Serve(impl Service) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			PluginName: &ServicePlugin{Impl: impl},
		},
	})
}
