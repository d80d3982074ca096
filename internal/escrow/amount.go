package escrow

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// DefaultDecimals - точность токена по умолчанию.
const DefaultDecimals = 18

// ToFixedPoint переводит сумму в целое число минимальных единиц токена.
// Разряды за пределами decimals округляются половиной вверх.
func ToFixedPoint(amount float64, decimals uint8) (*big.Int, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return nil, fmt.Errorf("invalid amount %v", amount)
	}
	s := strconv.FormatFloat(amount, 'f', -1, 64)
	whole, frac, _ := strings.Cut(s, ".")

	roundUp := false
	if len(frac) > int(decimals) {
		roundUp = frac[decimals] >= '5'
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %v", amount)
	}
	if roundUp {
		v.Add(v, big.NewInt(1))
	}
	return v, nil
}
