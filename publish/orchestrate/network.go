package orchestrate

import "context"

// LocalNetworkName is the only network treated as disposable.
const LocalNetworkName = "localhost"

// RPC is the raw control channel of a node, used for test-only methods
// such as hardhat_setBalance.
type RPC interface {
	Send(ctx context.Context, method string, result any, params ...any) error
}

// Network identifies the chain being deployed to. It is read once per run.
type Network struct {
	Name      string
	Ephemeral bool
	RPC       RPC
}

// NewNetwork describes the named network. The control channel is kept only
// for an ephemeral network.
func NewNetwork(name string, rpc RPC) Network {
	n := Network{
		Name:      name,
		Ephemeral: name == LocalNetworkName,
	}
	if n.Ephemeral {
		n.RPC = rpc
	}
	return n
}
