package lending

import "github.com/ethereum/go-ethereum/common"

const (
	name         = "Lending"
	ImplGasLimit = 4_000_000
)

func Name() string { return name }

func ConstructorArgs(dex, token common.Address) []any {
	return []any{dex, token}
}
