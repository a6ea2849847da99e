package commission

import (
	"github.com/shopspring/decimal"
)

// Model prices the commission charged on a single execution.
type Model interface {
	// Calculate returns the commission in account currency for a fill of
	// the given quantity at the given price.
	Calculate(quantity, price decimal.Decimal) decimal.Decimal
}

type ModelName string

const (
	ModelNamePercentage    ModelName = "percentage"
	ModelNamePerShare      ModelName = "per_share"
	ModelNameFixedPerTrade ModelName = "fixed_per_trade"
)

var AllModels = []any{
	ModelNamePercentage,
	ModelNamePerShare,
	ModelNameFixedPerTrade,
}

// GetModel builds the commission model for a name and rate. Unknown names
// fall back to a free percentage model.
func GetModel(name ModelName, rate decimal.Decimal) Model {
	switch name {
	case ModelNamePercentage:
		return NewPercentage(rate)
	case ModelNamePerShare:
		return NewPerShare(rate)
	case ModelNameFixedPerTrade:
		return NewFixedPerTrade(rate)
	default:
		return NewPercentage(decimal.Zero)
	}
}
