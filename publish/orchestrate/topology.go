package orchestrate

import (
	"context"
	"fmt"

	"github.com/TranTop2806/speedrun-challenge-5/publish/contracts/corn"
	"github.com/TranTop2806/speedrun-challenge-5/publish/contracts/corndex"
	"github.com/TranTop2806/speedrun-challenge-5/publish/contracts/lending"
	"github.com/TranTop2806/speedrun-challenge-5/publish/contracts/moveprice"
	"github.com/TranTop2806/speedrun-challenge-5/publish/registry"
)

// Deployed is a contract that the registry reported as live.
type Deployed = registry.Deployment

// Registry deploys a contract by name, reusing an existing deployment when
// nothing about it changed.
type Registry interface {
	Deploy(ctx context.Context, name string, args ...any) (Deployed, error)
}

// Step names a contract and derives its constructor arguments. F is the
// argument builder; its parameters are the earlier deployments the step
// depends on.
type Step[F any] struct {
	Name string
	Args F
}

// Topology is the fixed deployment chain. Each builder can only receive
// contracts produced by the fields above it, so the order cannot be
// changed without changing the types.
type Topology struct {
	Token     Step[func() []any]
	DEX       Step[func(token Deployed) []any]
	Lending   Step[func(dex, token Deployed) []any]
	MovePrice Step[func(dex, token Deployed) []any]
}

func DefaultTopology() Topology {
	return Topology{
		Token: Step[func() []any]{
			Name: corn.Name(),
			Args: corn.ConstructorArgs,
		},
		DEX: Step[func(token Deployed) []any]{
			Name: corndex.Name(),
			Args: func(token Deployed) []any {
				return corndex.ConstructorArgs(token.Address)
			},
		},
		Lending: Step[func(dex, token Deployed) []any]{
			Name: lending.Name(),
			Args: func(dex, token Deployed) []any {
				return lending.ConstructorArgs(dex.Address, token.Address)
			},
		},
		MovePrice: Step[func(dex, token Deployed) []any]{
			Name: moveprice.Name(),
			Args: func(dex, token Deployed) []any {
				return moveprice.ConstructorArgs(dex.Address, token.Address)
			},
		},
	}
}

// Contracts is the fully linked contract set.
type Contracts struct {
	Token     Deployed
	DEX       Deployed
	Lending   Deployed
	MovePrice Deployed
}

// Ordered returns the contracts in deployment order.
func (c Contracts) Ordered() []Deployed {
	return []Deployed{c.Token, c.DEX, c.Lending, c.MovePrice}
}

// StepError reports the topology step that aborted a run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("deploy step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Resolve runs the topology in order. The first failure is returned as a
// *StepError and nothing after it is attempted.
func Resolve(ctx context.Context, reg Registry, t Topology) (Contracts, error) {
	var (
		c   Contracts
		err error
	)
	if c.Token, err = deploy(ctx, reg, t.Token.Name, t.Token.Args()); err != nil {
		return c, err
	}
	if c.DEX, err = deploy(ctx, reg, t.DEX.Name, t.DEX.Args(c.Token)); err != nil {
		return c, err
	}
	if c.Lending, err = deploy(ctx, reg, t.Lending.Name, t.Lending.Args(c.DEX, c.Token)); err != nil {
		return c, err
	}
	if c.MovePrice, err = deploy(ctx, reg, t.MovePrice.Name, t.MovePrice.Args(c.DEX, c.Token)); err != nil {
		return c, err
	}
	return c, nil
}

func deploy(ctx context.Context, reg Registry, name string, args []any) (Deployed, error) {
	if err := ctx.Err(); err != nil {
		return Deployed{}, &StepError{Step: name, Err: err}
	}
	d, err := reg.Deploy(ctx, name, args...)
	if err != nil {
		return Deployed{}, &StepError{Step: name, Err: err}
	}
	return d, nil
}
