// Package registry deploys contracts by name and remembers where they went,
// so that re-running a deployment against the same network reuses what is
// already on chain.
//
// A stored deployment is reused only when the recorded init code hash
// (bytecode plus encoded constructor arguments) matches the one about to be
// deployed and the recorded address still holds code. A reset local chain or
// a dependency deployed at a new address therefore leads to a fresh
// deployment.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/TranTop2806/speedrun-challenge-5/publish"
)

// DefaultGasLimit is used for contracts without an entry in
// [Registry.GasLimits].
const DefaultGasLimit uint64 = 3_000_000

// ErrNotFound indicates that no deployment is recorded for a name.
var ErrNotFound = errors.New("not found")

type (
	// Chain submits creation transactions and reads deployed code.
	Chain interface {
		DeployCode(ctx context.Context, initCode []byte, gasLimit uint64) (publish.DeployResult, error)
		CodeAt(ctx context.Context, addr common.Address) ([]byte, error)
	}

	// Artifacts resolves compiled contracts by name.
	Artifacts interface {
		Artifact(name string) (*publish.Artifact, error)
	}

	// Records persists deployments. [Store] is the SQLite implementation.
	Records interface {
		Get(ctx context.Context, network, name string) (Record, error)
		Put(ctx context.Context, rec Record) error
	}

	// Deployment is a contract known to be live at Address.
	Deployment struct {
		Name    string         `json:"name" yaml:"name"`
		Address common.Address `json:"address" yaml:"address"`
		TxHash  common.Hash    `json:"tx_hash" yaml:"tx_hash"`
		Reused  bool           `json:"reused" yaml:"reused"`
	}
)

// Registry is the deploy-or-reuse front of a network's deployment records.
type Registry struct {
	Network   string
	RunID     uuid.UUID
	Chain     Chain
	Artifacts Artifacts
	Records   Records
	GasLimits map[string]uint64
	Logger    *slog.Logger
}

// Deploy returns the existing deployment of name when it can be reused and
// deploys it with args otherwise.
func (r *Registry) Deploy(ctx context.Context, name string, args ...any) (Deployment, error) {
	log := r.logger().With("contract", name, "network", r.Network)

	artifact, err := r.Artifacts.Artifact(name)
	if err != nil {
		return Deployment{}, fmt.Errorf("load %s artifact: %w", name, err)
	}
	initCode, err := artifact.InitCode(args...)
	if err != nil {
		return Deployment{}, err
	}
	codeHash := crypto.Keccak256Hash(initCode)

	prev, err := r.Records.Get(ctx, r.Network, name)
	switch {
	case err == nil:
		if reusable, err := r.reusable(ctx, prev, codeHash, log); err != nil {
			return Deployment{}, err
		} else if reusable {
			log.Info("reusing deployment", "address", prev.Address.Hex(), "tx", prev.TxHash.Hex())
			return Deployment{Name: name, Address: prev.Address, TxHash: prev.TxHash, Reused: true}, nil
		}
	case errors.Is(err, ErrNotFound):
	default:
		return Deployment{}, fmt.Errorf("lookup %s: %w", name, err)
	}

	log.Info("deploying", "args", len(args))
	result, err := r.Chain.DeployCode(ctx, initCode, r.gasLimit(name))
	if err != nil {
		return Deployment{}, fmt.Errorf("deploy %s: %w", name, err)
	}

	rec := Record{
		Network:      r.Network,
		Name:         name,
		Address:      result.ContractAddress,
		TxHash:       result.TxHash,
		InitCodeHash: codeHash,
		RunID:        r.RunID,
		DeployedAt:   time.Now(),
	}
	if err := r.Records.Put(ctx, rec); err != nil {
		return Deployment{}, fmt.Errorf("record %s: %w", name, err)
	}

	log.Info("deployed", "address", rec.Address.Hex(), "tx", rec.TxHash.Hex())
	return Deployment{Name: name, Address: rec.Address, TxHash: rec.TxHash}, nil
}

// Deployed returns the recorded deployment of name without touching the
// chain.
func (r *Registry) Deployed(ctx context.Context, name string) (Deployment, error) {
	rec, err := r.Records.Get(ctx, r.Network, name)
	if err != nil {
		return Deployment{}, err
	}
	return Deployment{Name: rec.Name, Address: rec.Address, TxHash: rec.TxHash, Reused: true}, nil
}

func (r *Registry) reusable(ctx context.Context, prev Record, codeHash common.Hash, log *slog.Logger) (bool, error) {
	if prev.InitCodeHash != codeHash {
		log.Info("bytecode or constructor args changed", "previous", prev.Address.Hex())
		return false, nil
	}
	code, err := r.Chain.CodeAt(ctx, prev.Address)
	if err != nil {
		return false, fmt.Errorf("check %s code: %w", prev.Name, err)
	}
	if len(code) == 0 {
		log.Warn("recorded address has no code, redeploying", "previous", prev.Address.Hex())
		return false, nil
	}
	return true, nil
}

func (r *Registry) gasLimit(name string) uint64 {
	if gas, ok := r.GasLimits[name]; ok && gas > 0 {
		return gas
	}
	return DefaultGasLimit
}

func (r *Registry) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
