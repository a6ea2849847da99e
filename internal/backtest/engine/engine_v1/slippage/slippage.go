package slippage

import (
	"github.com/shopspring/decimal"

	"github.com/tradesim-lab/tradesim/internal/types"
)

// Model adjusts a reference price for execution slippage. Buys always fill
// at or above the reference, sells at or below.
type Model interface {
	// Adjust returns the simulated fill price for an order of the given
	// side and quantity against a bar with the given volume.
	Adjust(reference decimal.Decimal, side types.Side, quantity, barVolume decimal.Decimal) decimal.Decimal
}

type ModelName string

const (
	ModelNameFixed       ModelName = "fixed"
	ModelNameVolumeBased ModelName = "volume_based"
	ModelNameSpreadBased ModelName = "spread_based"
)

var AllModels = []any{
	ModelNameFixed,
	ModelNameVolumeBased,
	ModelNameSpreadBased,
}

// GetModel builds the slippage model for a name and rate. Unknown names fall
// back to a zero-rate fixed model.
func GetModel(name ModelName, rate decimal.Decimal) Model {
	switch name {
	case ModelNameFixed:
		return NewFixed(rate)
	case ModelNameVolumeBased:
		return NewVolumeBased(rate)
	case ModelNameSpreadBased:
		return NewSpreadBased(rate)
	default:
		return NewFixed(decimal.Zero)
	}
}

// apply moves the reference price against the order: up for buys, down for
// sells, by the given fraction.
func apply(reference decimal.Decimal, side types.Side, fraction decimal.Decimal) decimal.Decimal {
	adjustment := reference.Mul(fraction)
	if side == types.SideBuy {
		return reference.Add(adjustment)
	}

	return reference.Sub(adjustment)
}
