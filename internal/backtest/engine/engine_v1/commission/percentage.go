package commission

import (
	"github.com/shopspring/decimal"
)

// Percentage charges rate * quantity * price.
type Percentage struct {
	rate decimal.Decimal
}

func NewPercentage(rate decimal.Decimal) Model {
	return &Percentage{rate: rate}
}

func (c *Percentage) Calculate(quantity, price decimal.Decimal) decimal.Decimal {
	return quantity.Mul(price).Mul(c.rate)
}
