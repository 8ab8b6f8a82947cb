package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/TranTop2806/speedrun-challenge-5/publish"
)

const setBalanceMethod = "hardhat_setBalance"

// ErrNoRPC is returned when a local action needs the node control channel
// and the network has none.
var ErrNoRPC = errors.New("network has no rpc control channel")

type (
	// Token is the callable CORN handle bound to the deployer.
	Token interface {
		MintTo(ctx context.Context, to common.Address, amount *big.Int) error
		Approve(ctx context.Context, spender common.Address, amount *big.Int) error
		Transfer(ctx context.Context, to common.Address, amount *big.Int) error
	}

	// Exchange is the callable CornDEX handle bound to the deployer.
	Exchange interface {
		Init(ctx context.Context, tokenAmount, value *big.Int) error
	}

	// System is everything a bootstrap policy acts on.
	System struct {
		Contracts Contracts
		Token     Token
		DEX       Exchange
		Deployer  common.Address
		Network   Network
	}

	// Policy turns a deployed system into an ordered list of actions.
	Policy interface {
		Name() string
		Actions(sys System) []Action
	}
)

// Select returns the bootstrap policy for a network: LocalBootstrap for an
// ephemeral network and PublicBootstrap for every other one.
func Select(n Network) Policy {
	if n.Ephemeral {
		return LocalBootstrap{Amounts: DefaultLocalAmounts()}
	}
	return PublicBootstrap{Amounts: DefaultPublicAmounts()}
}

// Bootstrap runs the actions of p against sys.
func Bootstrap(ctx context.Context, log *slog.Logger, p Policy, sys System) ([]ActionResult, error) {
	return Execute(ctx, log.With("policy", p.Name()), p.Actions(sys))
}

// LocalAmounts are the funding constants of a disposable network.
type LocalAmounts struct {
	HelperNative   *big.Int
	HelperTokens   *big.Int
	LendingTokens  *big.Int
	DeployerTokens *big.Int
	PoolTokens     *big.Int
	PoolNative     *big.Int
}

func DefaultLocalAmounts() LocalAmounts {
	return LocalAmounts{
		HelperNative:   publish.Ether(10000),
		HelperTokens:   publish.Token(10000),
		LendingTokens:  publish.Token(10000),
		DeployerTokens: publish.Token(10000),
		PoolTokens:     publish.Token(1000),
		PoolNative:     publish.Ether(1),
	}
}

// LocalBootstrap funds every contract on a chain with unlimited test funds.
// All of its actions are Required.
type LocalBootstrap struct {
	Amounts LocalAmounts
}

func (LocalBootstrap) Name() string { return "local" }

func (p LocalBootstrap) Actions(sys System) []Action {
	a := p.Amounts
	c := sys.Contracts
	return []Action{
		{
			Description: fmt.Sprintf("set %s native balance to %s ETH", c.MovePrice.Name, publish.FormatUnits(a.HelperNative)),
			Criticality: Required,
			Effect: func(ctx context.Context) error {
				if sys.Network.RPC == nil {
					return ErrNoRPC
				}
				return sys.Network.RPC.Send(ctx, setBalanceMethod, nil, c.MovePrice.Address, hexutil.EncodeBig(a.HelperNative))
			},
		},
		mintAction(sys.Token, c.MovePrice.Name, c.MovePrice.Address, a.HelperTokens),
		mintAction(sys.Token, c.Lending.Name, c.Lending.Address, a.LendingTokens),
		mintAction(sys.Token, "deployer", sys.Deployer, a.DeployerTokens),
		{
			Description: fmt.Sprintf("approve %s to spend %s CORN", c.DEX.Name, publish.FormatUnits(a.PoolTokens)),
			Criticality: Required,
			Effect: func(ctx context.Context) error {
				return sys.Token.Approve(ctx, c.DEX.Address, a.PoolTokens)
			},
		},
		{
			Description: fmt.Sprintf("initialize %s with %s CORN and %s ETH", c.DEX.Name, publish.FormatUnits(a.PoolTokens), publish.FormatUnits(a.PoolNative)),
			Criticality: Required,
			Effect: func(ctx context.Context) error {
				return sys.DEX.Init(ctx, a.PoolTokens, a.PoolNative)
			},
		},
	}
}

func mintAction(token Token, label string, to common.Address, amount *big.Int) Action {
	return Action{
		Description: fmt.Sprintf("mint %s CORN to %s", publish.FormatUnits(amount), label),
		Criticality: Required,
		Effect: func(ctx context.Context) error {
			return token.MintTo(ctx, to, amount)
		},
	}
}

// PublicAmounts are the funding constants of a persistent network. The
// defaults keep the local pool ratio of 1000 CORN per ETH at a hundredth of
// the size.
type PublicAmounts struct {
	LendingTokens *big.Int
	PoolTokens    *big.Int
	PoolNative    *big.Int
}

func DefaultPublicAmounts() PublicAmounts {
	return PublicAmounts{
		LendingTokens: publish.Token(100),
		PoolTokens:    publish.Token(10),
		PoolNative:    publish.Fraction(1, 100),
	}
}

// PublicBootstrap seeds a network with real funds. Its actions are
// BestEffort: contracts stay deployed and linked even if funding fails.
type PublicBootstrap struct {
	Amounts PublicAmounts
}

func (PublicBootstrap) Name() string { return "public" }

func (p PublicBootstrap) Actions(sys System) []Action {
	a := p.Amounts
	c := sys.Contracts
	return []Action{
		{
			Description: fmt.Sprintf("transfer %s CORN to %s", publish.FormatUnits(a.LendingTokens), c.Lending.Name),
			Hint:        "could not fund Lending contract, check deployer balance",
			Criticality: BestEffort,
			Effect: func(ctx context.Context) error {
				return sys.Token.Transfer(ctx, c.Lending.Address, a.LendingTokens)
			},
		},
		{
			Description: fmt.Sprintf("initialize %s with %s CORN and %s ETH", c.DEX.Name, publish.FormatUnits(a.PoolTokens), publish.FormatUnits(a.PoolNative)),
			Hint:        "DEX might already be initialized or deployer has insufficient funds",
			Criticality: BestEffort,
			Effect: func(ctx context.Context) error {
				if err := sys.Token.Approve(ctx, c.DEX.Address, a.PoolTokens); err != nil {
					return err
				}
				return sys.DEX.Init(ctx, a.PoolTokens, a.PoolNative)
			},
		},
	}
}
