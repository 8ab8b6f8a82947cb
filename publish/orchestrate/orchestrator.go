// Package orchestrate deploys the CORN lending stack and brings it into a
// usable initial state.
//
// A run has two phases. The topology phase deploys Corn, CornDEX, Lending
// and MovePrice in that order, each constructor receiving the addresses of
// the contracts before it; any failure there is fatal. The bootstrap phase
// then runs exactly one policy chosen from the network: LocalBootstrap on a
// disposable chain, where every action is required, or PublicBootstrap on a
// persistent chain, where every action is best effort.
package orchestrate

import (
	"context"
	"errors"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/TranTop2806/speedrun-challenge-5/publish"
)

// Handles binds deployed addresses to callable contract handles signed by
// the deployer.
type Handles interface {
	Token(addr common.Address) Token
	Exchange(addr common.Address) Exchange
}

// NativeBalances reads native currency balances.
type NativeBalances interface {
	BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error)
}

type Orchestrator struct {
	Registry Registry
	Handles  Handles
	Network  Network
	// Balances is optional. When set, a local run logs the helper's native
	// balance after bootstrap.
	Balances NativeBalances
	Deployer common.Address
	// Topology defaults to DefaultTopology when left zero.
	Topology Topology
	RunID    string
	Metrics  *Metrics
	Logger   *slog.Logger
}

// Report summarizes a run. It is filled as far as the run got, so a failed
// run still reports the contracts deployed before the failure.
type Report struct {
	RunID     string         `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Network   string         `json:"network" yaml:"network"`
	Policy    string         `json:"policy,omitempty" yaml:"policy,omitempty"`
	Deployer  common.Address `json:"deployer" yaml:"deployer"`
	Contracts []Deployed     `json:"contracts" yaml:"contracts"`
	Actions   []ActionResult `json:"actions,omitempty" yaml:"actions,omitempty"`
}

func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	log := o.logger().With("network", o.Network.Name)
	rep := Report{RunID: o.RunID, Network: o.Network.Name, Deployer: o.Deployer}

	topology := o.Topology
	if topology.Token.Args == nil {
		topology = DefaultTopology()
	}

	contracts, err := Resolve(ctx, o.Registry, topology)
	rep.Contracts = completed(contracts)
	for _, d := range rep.Contracts {
		if d.Reused {
			o.Metrics.contract(d.Name, "reused")
		} else {
			o.Metrics.contract(d.Name, "deployed")
		}
	}
	if err != nil {
		var stepErr *StepError
		if errors.As(err, &stepErr) {
			o.Metrics.contract(stepErr.Step, "failed")
		}
		log.Error("deployment aborted", "error", err)
		return rep, err
	}

	policy := Select(o.Network)
	rep.Policy = policy.Name()
	log.Info("configuring network", "policy", policy.Name(), "ephemeral", o.Network.Ephemeral)

	sys := System{
		Contracts: contracts,
		Token:     o.Handles.Token(contracts.Token.Address),
		DEX:       o.Handles.Exchange(contracts.DEX.Address),
		Deployer:  o.Deployer,
		Network:   o.Network,
	}
	rep.Actions, err = Bootstrap(ctx, log, policy, sys)
	for _, r := range rep.Actions {
		o.Metrics.action(policy.Name(), r.Outcome)
	}
	if err != nil {
		return rep, err
	}

	if o.Network.Ephemeral {
		inspect(ctx, log, sys, o.Balances)
	}
	log.Info("deployment complete", "contracts", len(rep.Contracts), "actions", len(rep.Actions))
	return rep, nil
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func completed(c Contracts) []Deployed {
	var out []Deployed
	for _, d := range c.Ordered() {
		if d.Name == "" {
			break
		}
		out = append(out, d)
	}
	return out
}

type balanceReader interface {
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

type priceReader interface {
	CurrentPrice(ctx context.Context) (*big.Int, error)
}

// inspect logs the funded state after a local bootstrap. Read failures are
// only logged.
func inspect(ctx context.Context, log *slog.Logger, sys System, balances NativeBalances) {
	if balances != nil {
		helper := sys.Contracts.MovePrice
		if balance, err := balances.BalanceAt(ctx, helper.Address); err != nil {
			log.Warn("could not read ETH balance", "holder", helper.Name, "error", err)
		} else {
			log.Info("ETH balance", "holder", helper.Name, "amount", publish.FormatUnits(balance))
		}
	}
	if token, ok := sys.Token.(balanceReader); ok {
		holders := []struct {
			label string
			addr  common.Address
		}{
			{sys.Contracts.MovePrice.Name, sys.Contracts.MovePrice.Address},
			{sys.Contracts.Lending.Name, sys.Contracts.Lending.Address},
			{"deployer", sys.Deployer},
		}
		for _, h := range holders {
			balance, err := token.BalanceOf(ctx, h.addr)
			if err != nil {
				log.Warn("could not read CORN balance", "holder", h.label, "error", err)
				continue
			}
			log.Info("CORN balance", "holder", h.label, "amount", publish.FormatUnits(balance))
		}
	}
	if dex, ok := sys.DEX.(priceReader); ok {
		price, err := dex.CurrentPrice(ctx)
		if err != nil {
			log.Warn("could not read DEX price", "error", err)
			return
		}
		log.Info("DEX price", "eth_per_corn", publish.FormatUnits(price))
	}
}
