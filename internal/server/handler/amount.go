package handler

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

var maxUnits = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// Units converts between whole-token decimal strings and base units.
type Units struct {
	decimals int32
}

func NewUnits(decimals int) Units { return Units{decimals: int32(decimals)} }

// Parse converts a decimal string such as "12.5" to base units. More
// fractional digits than the token has, negatives and overflow are rejected.
func (u Units) Parse(field, s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, domain.InvalidInput(fmt.Sprintf("%s is not a decimal number", field))
	}
	if d.IsNegative() {
		return 0, domain.InvalidInput(fmt.Sprintf("%s is negative", field))
	}
	scaled := d.Shift(u.decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, domain.InvalidInput(fmt.Sprintf("%s has more than %d decimal places", field, u.decimals))
	}
	if scaled.GreaterThan(maxUnits) {
		return 0, domain.InvalidInput(fmt.Sprintf("%s is too large", field))
	}
	return scaled.BigInt().Uint64(), nil
}

// Format renders base units with exactly the token's decimal places.
func (u Units) Format(v uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -u.decimals).StringFixed(u.decimals)
}
