package risk

import (
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/tradesim-lab/tradesim/pkg/errors"
)

// Limits is the immutable risk-limit configuration. Fractional limits are
// expressed in [0,1]; leverage is a multiple >= 1.
type Limits struct {
	MaxPositionSize        float64 `yaml:"max_position_size" json:"max_position_size" validate:"gte=0,lte=1"`
	MaxSectorConcentration float64 `yaml:"max_sector_concentration" json:"max_sector_concentration" validate:"gte=0,lte=1"`
	MaxDrawdown            float64 `yaml:"max_drawdown" json:"max_drawdown" validate:"gte=0,lte=1"`
	MinCashReserve         float64 `yaml:"min_cash_reserve" json:"min_cash_reserve" validate:"gte=0,lte=1"`
	MaxLeverage            float64 `yaml:"max_leverage" json:"max_leverage" validate:"gte=1"`
}

// DefaultLimits returns a conservative limit set.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionSize:        0.20,
		MaxSectorConcentration: 0.40,
		MaxDrawdown:            0.25,
		MinCashReserve:         0.10,
		MaxLeverage:            1.0,
	}
}

// Validate checks the limit invariants.
func (l *Limits) Validate() error {
	validate := validator.New()
	if err := validate.Struct(l); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidLimits, "invalid risk limits", err)
	}

	return nil
}

// CheckPositionSizeLimit verifies that a position's value does not exceed the
// configured fraction of total portfolio value.
func CheckPositionSizeLimit(limits Limits, positionValue, portfolioValue decimal.Decimal) error {
	if !portfolioValue.IsPositive() {
		return errors.New(errors.ErrCodeInvalidParameter, "portfolio value must be positive")
	}

	fraction := positionValue.Abs().Div(portfolioValue)
	limit := decimal.NewFromFloat(limits.MaxPositionSize)

	if fraction.GreaterThan(limit) {
		return errors.Newf(errors.ErrCodeRiskPositionSize,
			"position size %s%% exceeds limit %s%%",
			fraction.Mul(decimal.NewFromInt(100)).Round(2),
			limit.Mul(decimal.NewFromInt(100)).Round(2))
	}

	return nil
}

// CheckSectorConcentration verifies that a sector's aggregate exposure does
// not exceed the configured fraction of total portfolio value.
func CheckSectorConcentration(limits Limits, sectorValue, portfolioValue decimal.Decimal) error {
	if !portfolioValue.IsPositive() {
		return errors.New(errors.ErrCodeInvalidParameter, "portfolio value must be positive")
	}

	fraction := sectorValue.Abs().Div(portfolioValue)
	limit := decimal.NewFromFloat(limits.MaxSectorConcentration)

	if fraction.GreaterThan(limit) {
		return errors.Newf(errors.ErrCodeRiskConcentration,
			"sector concentration %s%% exceeds limit %s%%",
			fraction.Mul(decimal.NewFromInt(100)).Round(2),
			limit.Mul(decimal.NewFromInt(100)).Round(2))
	}

	return nil
}

// CheckDrawdownLimit verifies that the decline from peak value stays within
// the configured maximum drawdown.
func CheckDrawdownLimit(limits Limits, currentValue, peakValue decimal.Decimal) error {
	if !peakValue.IsPositive() {
		return errors.New(errors.ErrCodeInvalidParameter, "peak value must be positive")
	}

	if currentValue.GreaterThanOrEqual(peakValue) {
		return nil
	}

	drawdown := peakValue.Sub(currentValue).Div(peakValue)
	limit := decimal.NewFromFloat(limits.MaxDrawdown)

	if drawdown.GreaterThan(limit) {
		return errors.Newf(errors.ErrCodeRiskDrawdown,
			"drawdown %s%% exceeds limit %s%%",
			drawdown.Mul(decimal.NewFromInt(100)).Round(2),
			limit.Mul(decimal.NewFromInt(100)).Round(2))
	}

	return nil
}

// CheckCashReserve verifies that cash after a trade stays above the
// configured fraction of total portfolio value.
func CheckCashReserve(limits Limits, cash, portfolioValue decimal.Decimal) error {
	if !portfolioValue.IsPositive() {
		return errors.New(errors.ErrCodeInvalidParameter, "portfolio value must be positive")
	}

	fraction := cash.Div(portfolioValue)
	limit := decimal.NewFromFloat(limits.MinCashReserve)

	if fraction.LessThan(limit) {
		return errors.Newf(errors.ErrCodeRiskCashReserve,
			"cash reserve %s%% below minimum %s%%",
			fraction.Mul(decimal.NewFromInt(100)).Round(2),
			limit.Mul(decimal.NewFromInt(100)).Round(2))
	}

	return nil
}

// CalculatePositionSize computes a fixed-fractional position size: the whole
// number of units purchasable with riskFraction of portfolio value, capped by
// the max-position-size limit.
func CalculatePositionSize(limits Limits, portfolioValue, price decimal.Decimal, riskFraction float64) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, errors.New(errors.ErrCodeInvalidPrice, "price must be positive")
	}

	if !portfolioValue.IsPositive() {
		return decimal.Zero, errors.New(errors.ErrCodeInvalidParameter, "portfolio value must be positive")
	}

	if riskFraction <= 0 || riskFraction > 1 {
		return decimal.Zero, errors.Newf(errors.ErrCodeInvalidParameter, "risk fraction must be in (0,1], got %f", riskFraction)
	}

	fraction := decimal.NewFromFloat(riskFraction)

	cap := decimal.NewFromFloat(limits.MaxPositionSize)
	if fraction.GreaterThan(cap) {
		fraction = cap
	}

	budget := portfolioValue.Mul(fraction)

	// whole units only
	return budget.Div(price).Floor(), nil
}
