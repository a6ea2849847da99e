package commission

import (
	"github.com/shopspring/decimal"
)

// FixedPerTrade charges a flat fee regardless of size.
type FixedPerTrade struct {
	fee decimal.Decimal
}

func NewFixedPerTrade(fee decimal.Decimal) Model {
	return &FixedPerTrade{fee: fee}
}

func (c *FixedPerTrade) Calculate(_, _ decimal.Decimal) decimal.Decimal {
	return c.fee
}
