package corndex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"

	"github.com/TranTop2806/speedrun-challenge-5/publish"
)

const (
	name         = "CornDEX"
	ImplGasLimit = 3_000_000
	InitGasLimit = 200_000
)

var (
	funcInit         = w3.MustNewFunc("init(uint256)", "uint256")
	funcCurrentPrice = w3.MustNewFunc("currentPrice()", "uint256")
)

func Name() string { return name }

func ConstructorArgs(token common.Address) []any {
	return []any{token}
}

func EncodeInit(tokenAmount *big.Int) ([]byte, error) {
	return funcInit.EncodeArgs(tokenAmount)
}

// Handle is a deployed CornDEX bound to a signing account.
type Handle struct {
	tx      publish.Transactor
	address common.Address
}

func NewHandle(tx publish.Transactor, address common.Address) *Handle {
	return &Handle{tx: tx, address: address}
}

// Init seeds the pool reserves with tokenAmount CORN and value wei. The
// token allowance must already cover tokenAmount.
func (h *Handle) Init(ctx context.Context, tokenAmount, value *big.Int) error {
	data, err := EncodeInit(tokenAmount)
	if err != nil {
		return fmt.Errorf("encode init: %w", err)
	}
	if _, err := h.tx.Transact(ctx, h.address, data, value, InitGasLimit); err != nil {
		return fmt.Errorf("%s.init: %w", name, err)
	}
	return nil
}

// CurrentPrice returns the CORN price in wei per whole token.
func (h *Handle) CurrentPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	if err := h.tx.Call(ctx, h.address, funcCurrentPrice, nil, &price); err != nil {
		return nil, fmt.Errorf("%s.currentPrice: %w", name, err)
	}
	return price, nil
}
