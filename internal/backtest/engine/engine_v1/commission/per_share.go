package commission

import (
	"github.com/shopspring/decimal"
)

// PerShare charges rate * quantity, independent of price.
type PerShare struct {
	rate decimal.Decimal
}

func NewPerShare(rate decimal.Decimal) Model {
	return &PerShare{rate: rate}
}

func (c *PerShare) Calculate(quantity, _ decimal.Decimal) decimal.Decimal {
	return quantity.Mul(c.rate)
}
