package corn

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"

	"github.com/TranTop2806/speedrun-challenge-5/publish"
)

const (
	name         = "Corn"
	ImplGasLimit = 2_000_000
	CallGasLimit = 100_000
)

var (
	funcMintTo    = w3.MustNewFunc("mintTo(address,uint256)", "bool")
	funcApprove   = w3.MustNewFunc("approve(address,uint256)", "bool")
	funcTransfer  = w3.MustNewFunc("transfer(address,uint256)", "bool")
	funcBalanceOf = w3.MustNewFunc("balanceOf(address)", "uint256")
)

func Name() string { return name }

// ConstructorArgs returns the arguments of the token constructor, which
// takes none.
func ConstructorArgs() []any { return nil }

func EncodeMintTo(to common.Address, amount *big.Int) ([]byte, error) {
	return funcMintTo.EncodeArgs(to, amount)
}

func EncodeApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return funcApprove.EncodeArgs(spender, amount)
}

func EncodeTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return funcTransfer.EncodeArgs(to, amount)
}

// Handle is a deployed CORN token bound to a signing account.
type Handle struct {
	tx      publish.Transactor
	address common.Address
}

func NewHandle(tx publish.Transactor, address common.Address) *Handle {
	return &Handle{tx: tx, address: address}
}

func (h *Handle) MintTo(ctx context.Context, to common.Address, amount *big.Int) error {
	data, err := EncodeMintTo(to, amount)
	if err != nil {
		return fmt.Errorf("encode mintTo: %w", err)
	}
	return h.send(ctx, "mintTo", data)
}

func (h *Handle) Approve(ctx context.Context, spender common.Address, amount *big.Int) error {
	data, err := EncodeApprove(spender, amount)
	if err != nil {
		return fmt.Errorf("encode approve: %w", err)
	}
	return h.send(ctx, "approve", data)
}

func (h *Handle) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	data, err := EncodeTransfer(to, amount)
	if err != nil {
		return fmt.Errorf("encode transfer: %w", err)
	}
	return h.send(ctx, "transfer", data)
}

func (h *Handle) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	var balance *big.Int
	if err := h.tx.Call(ctx, h.address, funcBalanceOf, []any{account}, &balance); err != nil {
		return nil, fmt.Errorf("%s.balanceOf: %w", name, err)
	}
	return balance, nil
}

func (h *Handle) send(ctx context.Context, method string, data []byte) error {
	if _, err := h.tx.Transact(ctx, h.address, data, nil, CallGasLimit); err != nil {
		return fmt.Errorf("%s.%s: %w", name, method, err)
	}
	return nil
}
