package publish

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

// TokenDecimals is the decimals of the CORN token, equal to ether's.
const TokenDecimals = 18

// Ether returns n whole units of the native currency in wei.
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.Ether))
}

// Token returns n whole CORN in base units.
func Token(n int64) *big.Int {
	return Ether(n)
}

// Fraction returns num/den of one native unit in wei, e.g. Fraction(1, 100)
// is 0.01 ether.
func Fraction(num, den int64) *big.Int {
	v := new(big.Int).Mul(big.NewInt(num), big.NewInt(params.Ether))
	return v.Quo(v, big.NewInt(den))
}

// FormatUnits renders an 18-decimal amount as a decimal string without
// trailing zeros, e.g. 10000000000000000 as "0.01".
func FormatUnits(v *big.Int) string {
	if v == nil {
		return "0"
	}
	s := new(big.Rat).SetFrac(v, big.NewInt(params.Ether)).FloatString(TokenDecimals)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
