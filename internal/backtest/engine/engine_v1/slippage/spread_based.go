package slippage

import (
	"github.com/shopspring/decimal"

	"github.com/tradesim-lab/tradesim/internal/types"
)

// SpreadBased treats the configured rate as a half-spread: the full spread is
// twice the rate and each side crosses half of it.
type SpreadBased struct {
	rate decimal.Decimal
}

func NewSpreadBased(rate decimal.Decimal) Model {
	return &SpreadBased{rate: rate}
}

func (s *SpreadBased) Adjust(reference decimal.Decimal, side types.Side, _, _ decimal.Decimal) decimal.Decimal {
	spread := s.rate.Mul(decimal.NewFromInt(2))
	half := spread.Div(decimal.NewFromInt(2))

	return apply(reference, side, half)
}
