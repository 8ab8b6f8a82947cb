package moveprice

import "github.com/ethereum/go-ethereum/common"

const (
	name         = "MovePrice"
	ImplGasLimit = 1_500_000
)

func Name() string { return name }

func ConstructorArgs(dex, token common.Address) []any {
	return []any{dex, token}
}
