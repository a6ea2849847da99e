package slippage

import (
	"github.com/shopspring/decimal"

	"github.com/tradesim-lab/tradesim/internal/types"
)

// VolumeBased scales the base rate by the order's share of the bar volume: a
// 10-share order against a 1000-share bar slips a hundredth of the rate. An
// empty bar doubles the base rate since there is no liquidity to measure.
type VolumeBased struct {
	rate decimal.Decimal
}

func NewVolumeBased(rate decimal.Decimal) Model {
	return &VolumeBased{rate: rate}
}

func (s *VolumeBased) Adjust(reference decimal.Decimal, side types.Side, quantity, barVolume decimal.Decimal) decimal.Decimal {
	if !barVolume.IsPositive() {
		return apply(reference, side, s.rate.Mul(decimal.NewFromInt(2)))
	}

	fraction := s.rate.Mul(quantity.Div(barVolume))

	return apply(reference, side, fraction)
}
