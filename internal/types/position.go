package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/tradesim-lab/tradesim/pkg/errors"
)

// Position is a single-security holding ledger entry. Quantity is signed:
// positive for long, negative for short. CostBasis is the weighted average
// price paid per unit and is always positive while the position exists.
type Position struct {
	Ticker    string          `json:"ticker"`
	Quantity  decimal.Decimal `json:"quantity"`
	CostBasis decimal.Decimal `json:"cost_basis"`
	// EntryCommission accumulates the commissions paid opening and extending
	// the position. It is excluded from the cost basis so unrealized PnL
	// reflects raw prices, and is charged against realized PnL on close.
	EntryCommission decimal.Decimal `json:"entry_commission"`
	Sector          string          `json:"sector"`
	// StopLoss and TakeProfit are optional protective levels scanned by the
	// portfolio each bar.
	StopLoss    optional.Option[decimal.Decimal] `json:"stop_loss"`
	TakeProfit  optional.Option[decimal.Decimal] `json:"take_profit"`
	OpenedAt    time.Time                        `json:"opened_at"`
	LastUpdated time.Time                        `json:"last_updated"`
}

// NewPosition opens a position from the first fill on a ticker.
func NewPosition(ticker string, quantity, costBasis decimal.Decimal, openedAt time.Time) (*Position, error) {
	if quantity.IsZero() {
		return nil, errors.New(errors.ErrCodePositionZeroQuantity, "position quantity cannot be zero")
	}

	if !costBasis.IsPositive() {
		return nil, errors.Newf(errors.ErrCodeInvalidPrice, "cost basis must be positive, got %s", costBasis)
	}

	return &Position{
		Ticker:          ticker,
		Quantity:        quantity,
		CostBasis:       costBasis,
		EntryCommission: decimal.Zero,
		Sector:          "",
		StopLoss:        optional.None[decimal.Decimal](),
		TakeProfit:      optional.None[decimal.Decimal](),
		OpenedAt:        openedAt,
		LastUpdated:     openedAt,
	}, nil
}

// IsLong reports whether the position is long.
func (p *Position) IsLong() bool {
	return p.Quantity.IsPositive()
}

// IsShort reports whether the position is short.
func (p *Position) IsShort() bool {
	return p.Quantity.IsNegative()
}

// MarketValue returns the absolute market value of the position at price.
func (p *Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return price.Mul(p.Quantity.Abs())
}

// TotalCost returns the absolute cost of the position at its cost basis.
func (p *Position) TotalCost() decimal.Decimal {
	return p.CostBasis.Mul(p.Quantity.Abs())
}

// UnrealizedPnL returns the paper profit at price.
// Long: (price - cost) * qty. Short: (cost - price) * |qty|.
func (p *Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	if p.IsLong() {
		return price.Sub(p.CostBasis).Mul(p.Quantity)
	}

	return p.CostBasis.Sub(price).Mul(p.Quantity.Abs())
}

// UnrealizedPnLPercent returns the unrealized profit as a fraction of cost.
func (p *Position) UnrealizedPnLPercent(price decimal.Decimal) decimal.Decimal {
	cost := p.TotalCost()
	if cost.IsZero() {
		return decimal.Zero
	}

	return p.UnrealizedPnL(price).Div(cost)
}

// UpdateQuantity adds delta to the position. A delta that would flip the
// position's sign is rejected: the caller must close the position first and
// open a new one in the other direction. A delta landing exactly at zero is
// also rejected; a closed position is removed by its owner, not zeroed.
func (p *Position) UpdateQuantity(delta decimal.Decimal) error {
	next := p.Quantity.Add(delta)

	if next.IsZero() {
		return errors.Newf(errors.ErrCodePositionZeroQuantity,
			"quantity change %s would zero position %s; remove the position instead", delta, p.Ticker)
	}

	if p.Quantity.Sign() != next.Sign() {
		return errors.Newf(errors.ErrCodePositionSignFlip,
			"quantity change %s would flip position %s from %s; close it first", delta, p.Ticker, p.Quantity)
	}

	p.Quantity = next

	return nil
}

// UpdateCostBasis recomputes the weighted-average cost basis for a fill of
// deltaQty units at price. It applies only when the fill extends the position
// in its current direction; reductions keep the basis untouched.
func (p *Position) UpdateCostBasis(deltaQty, price decimal.Decimal) error {
	if deltaQty.IsZero() {
		return errors.New(errors.ErrCodeInvalidQuantity, "cost basis update requires a non-zero quantity")
	}

	if deltaQty.Sign() != p.Quantity.Sign() {
		return errors.Newf(errors.ErrCodeWrongDirection,
			"cost basis only updates on same-direction adds: position %s, delta %s", p.Quantity, deltaQty)
	}

	oldQty := p.Quantity.Abs()
	addQty := deltaQty.Abs()
	totalQty := oldQty.Add(addQty)

	weighted := p.CostBasis.Mul(oldQty).Add(price.Mul(addQty))
	p.CostBasis = weighted.Div(totalQty)

	return nil
}

// ShouldTriggerStopLoss reports whether price breaches the stop level.
// Long stop: price <= stop. Short stop: price >= stop.
func (p *Position) ShouldTriggerStopLoss(price decimal.Decimal) bool {
	if p.StopLoss.IsNone() {
		return false
	}

	stop := p.StopLoss.Unwrap()
	if p.IsLong() {
		return price.LessThanOrEqual(stop)
	}

	return price.GreaterThanOrEqual(stop)
}

// ShouldTriggerTakeProfit reports whether price reaches the target level.
// Long target: price >= target. Short target: price <= target.
func (p *Position) ShouldTriggerTakeProfit(price decimal.Decimal) bool {
	if p.TakeProfit.IsNone() {
		return false
	}

	target := p.TakeProfit.Unwrap()
	if p.IsLong() {
		return price.GreaterThanOrEqual(target)
	}

	return price.LessThanOrEqual(target)
}
