package publish

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"
	"github.com/lmittmann/w3/w3types"
	"golang.org/x/time/rate"
)

const DefaultPollInterval = 2 * time.Second

// ErrReverted is returned when a mined transaction has a failed status.
var ErrReverted = errors.New("transaction reverted")

type (
	DeployResult struct {
		TxHash          common.Hash
		ContractAddress common.Address
	}

	// Config holds everything needed to sign and submit transactions for one
	// deployer account. A zero ChainID is resolved from the node.
	Config struct {
		RPCURL            string
		ChainID           int64
		PrivateKey        *ecdsa.PrivateKey
		GasFeeCap         *big.Int
		GasTipCap         *big.Int
		RequestsPerSecond float64
		PollInterval      time.Duration
	}

	Deployer struct {
		rpc          *rpc.Client
		client       *w3.Client
		signer       types.Signer
		key          *ecdsa.PrivateKey
		address      common.Address
		gasFeeCap    *big.Int
		gasTipCap    *big.Int
		limiter      *rate.Limiter
		pollInterval time.Duration
	}
)

func NewDeployer(ctx context.Context, cfg Config) (*Deployer, error) {
	if cfg.PrivateKey == nil {
		return nil, errors.New("private key is required")
	}
	rpcClient, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	d := &Deployer{
		rpc:          rpcClient,
		client:       w3.NewClient(rpcClient),
		key:          cfg.PrivateKey,
		address:      crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey),
		gasFeeCap:    cfg.GasFeeCap,
		gasTipCap:    cfg.GasTipCap,
		pollInterval: cfg.PollInterval,
	}
	if d.pollInterval <= 0 {
		d.pollInterval = DefaultPollInterval
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	chainID := cfg.ChainID
	if chainID == 0 {
		var id uint64
		if err := d.call(ctx, eth.ChainID().Returns(&id)); err != nil {
			d.Close()
			return nil, fmt.Errorf("get chain id: %w", err)
		}
		chainID = int64(id)
	}
	d.signer = types.NewLondonSigner(big.NewInt(chainID))
	return d, nil
}

func (d *Deployer) Address() common.Address {
	return d.address
}

func (d *Deployer) ChainID() *big.Int {
	return d.signer.ChainID()
}

func (d *Deployer) Close() error {
	return d.client.Close()
}

func (d *Deployer) call(ctx context.Context, calls ...w3types.RPCCaller) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return d.client.CallCtx(ctx, calls...)
}

func (d *Deployer) getNonce(ctx context.Context) (uint64, error) {
	var nonce uint64
	if err := d.call(ctx, eth.Nonce(d.address, nil).Returns(&nonce)); err != nil {
		return 0, fmt.Errorf("get nonce: %w", err)
	}
	return nonce, nil
}

func (d *Deployer) sendTx(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	signedTx, err := types.SignTx(tx, d.signer, d.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := d.call(ctx, eth.SendTx(signedTx).Returns(nil)); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}
	return signedTx.Hash(), nil
}

// DeployCode submits a contract creation transaction and waits until it is
// mined successfully.
func (d *Deployer) DeployCode(ctx context.Context, initCode []byte, gasLimit uint64) (DeployResult, error) {
	nonce, err := d.getNonce(ctx)
	if err != nil {
		return DeployResult{}, err
	}

	contractAddr := crypto.CreateAddress(d.address, nonce)

	//  EIP-1559 only
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   d.signer.ChainID(),
		Nonce:     nonce,
		GasFeeCap: d.gasFeeCap,
		GasTipCap: d.gasTipCap,
		Gas:       gasLimit,
		Data:      initCode,
	})

	txHash, err := d.sendTx(ctx, tx)
	if err != nil {
		return DeployResult{}, err
	}
	if _, err := d.waitSuccess(ctx, txHash); err != nil {
		return DeployResult{}, err
	}

	return DeployResult{
		TxHash:          txHash,
		ContractAddress: contractAddr,
	}, nil
}

// Transact calls a contract method and blocks until the transaction is mined.
// value may be nil.
func (d *Deployer) Transact(ctx context.Context, to common.Address, data []byte, value *big.Int, gasLimit uint64) (*types.Receipt, error) {
	nonce, err := d.getNonce(ctx)
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = new(big.Int)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   d.signer.ChainID(),
		Nonce:     nonce,
		To:        &to,
		Value:     value,
		GasFeeCap: d.gasFeeCap,
		GasTipCap: d.gasTipCap,
		Gas:       gasLimit,
		Data:      data,
	})

	txHash, err := d.sendTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	return d.waitSuccess(ctx, txHash)
}

// Call executes a read-only contract call against the latest block.
func (d *Deployer) Call(ctx context.Context, to common.Address, fn w3types.Func, args []any, returns ...any) error {
	if err := d.call(ctx, eth.CallFunc(to, fn, args...).Returns(returns...)); err != nil {
		return fmt.Errorf("call %s: %w", to.Hex(), err)
	}
	return nil
}

func (d *Deployer) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	var code []byte
	if err := d.call(ctx, eth.Code(addr, nil).Returns(&code)); err != nil {
		return nil, fmt.Errorf("get code %s: %w", addr.Hex(), err)
	}
	return code, nil
}

func (d *Deployer) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	var balance *big.Int
	if err := d.call(ctx, eth.Balance(addr, nil).Returns(&balance)); err != nil {
		return nil, fmt.Errorf("get balance %s: %w", addr.Hex(), err)
	}
	return balance, nil
}

// Send issues a raw JSON-RPC request. It exists for node control methods
// such as hardhat_setBalance that have no typed wrapper.
func (d *Deployer) Send(ctx context.Context, method string, result any, params ...any) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if err := d.rpc.CallContext(ctx, result, method, params...); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func (d *Deployer) waitSuccess(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := d.WaitForReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("wait %s: %w", txHash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrReverted, txHash.Hex())
	}
	return receipt, nil
}

func (d *Deployer) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		var receipt *types.Receipt
		err := d.call(ctx, eth.TxReceipt(txHash).Returns(&receipt))
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func ParsePrivateKey(v string) (*ecdsa.PrivateKey, common.Address, error) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "0x")
	key, err := crypto.HexToECDSA(v)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("parse private key: %w", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey), nil
}

// Transactor is the subset of [Deployer] that contract handles need.
type Transactor interface {
	Transact(ctx context.Context, to common.Address, data []byte, value *big.Int, gasLimit uint64) (*types.Receipt, error)
	Call(ctx context.Context, to common.Address, fn w3types.Func, args []any, returns ...any) error
}
