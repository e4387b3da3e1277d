// Package pluginrpc is the wire contract between the Oscillo host and plugin
// processes. Plugins run out of process behind hashicorp/go-plugin; the
// host never shares memory with them. Payloads are gob-encoded over the
// netrpc protocol, which keeps the surface small enough that no code
// generation is involved.
package pluginrpc

import (
	"net/rpc"

	plugin "github.com/hashicorp/go-plugin"
)

// PluginName is the dispense key both sides agree on.
const PluginName = "oscillo_series"

// Handshake is shared by host and plugins. The magic cookie is a basic
// sanity check that the child really is an Oscillo plugin, not a security
// measure.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "OSCILLO_PLUGIN",
	MagicCookieValue: "oscillo_plugin_v1",
}

// ServicePlugin is the go-plugin glue for Service.
type ServicePlugin struct {
	Impl Service
}

func (p *ServicePlugin) Server(_ *plugin.MuxBroker) (interface{}, error) {
	return &rpcServer{impl: p.Impl}, nil
}

func (p *ServicePlugin) Client(_ *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &rpcClient{client: c}, nil
}

// PluginMap returns the plugin set handed to go-plugin on the host side.
func PluginMap() map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		PluginName: &ServicePlugin{},
	}
}

type rpcServer struct {
	impl Service
}

type emptyArgs struct{}

func (s *rpcServer) Metadata(_ emptyArgs, resp *Metadata) error {
	md, err := s.impl.Metadata()
	if err != nil {
		return err
	}
	*resp = *md
	return nil
}

func (s *rpcServer) Execute(call *Call, resp *Output) error {
	out, err := s.impl.Execute(call)
	if err != nil {
		return err
	}
	*resp = *out
	return nil
}

type rpcClient struct {
	client *rpc.Client
}

func (c *rpcClient) Metadata() (*Metadata, error) {
	var resp Metadata
	if err := c.client.Call("Plugin.Metadata", emptyArgs{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *rpcClient) Execute(call *Call) (*Output, error) {
	var resp Output
	if err := c.client.Call("Plugin.Execute", call, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
