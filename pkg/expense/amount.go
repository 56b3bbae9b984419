package expense

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// ParseAmount accepts a positive whole number written as a decimal, so
// "2500" and "2500.00" both parse while "12.5" does not.
func ParseAmount(s string) (int64, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !d.IsPositive() || !d.IsInteger() || d.GreaterThan(maxAmount) {
		return 0, false
	}
	return d.IntPart(), true
}
