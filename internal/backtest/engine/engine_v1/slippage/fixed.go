package slippage

import (
	"github.com/shopspring/decimal"

	"github.com/tradesim-lab/tradesim/internal/types"
)

// Fixed applies a flat fractional slippage regardless of order size.
type Fixed struct {
	rate decimal.Decimal
}

func NewFixed(rate decimal.Decimal) Model {
	return &Fixed{rate: rate}
}

func (s *Fixed) Adjust(reference decimal.Decimal, side types.Side, _, _ decimal.Decimal) decimal.Decimal {
	return apply(reference, side, s.rate)
}
