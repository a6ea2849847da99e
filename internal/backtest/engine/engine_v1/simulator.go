package engine_v1

import (
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradesim-lab/tradesim/internal/backtest/engine/engine_v1/commission"
	"github.com/tradesim-lab/tradesim/internal/backtest/engine/engine_v1/slippage"
	"github.com/tradesim-lab/tradesim/internal/types"
	"github.com/tradesim-lab/tradesim/pkg/errors"
)

// maxVolumeShare caps a partial fill at this share of the bar volume.
var maxVolumeShare = decimal.NewFromFloat(0.1)

// TradingHours is a daily session window in the bar's own clock. A zero
// value means the market is always open.
type TradingHours struct {
	Open  string `yaml:"open" json:"open" jsonschema:"title=Open,description=Session open in HH:MM,example=09:30"`
	Close string `yaml:"close" json:"close" jsonschema:"title=Close,description=Session close in HH:MM,example=16:00"`
}

func (h TradingHours) enabled() bool {
	return h.Open != "" && h.Close != ""
}

// Contains reports whether t falls inside the session window.
func (h TradingHours) Contains(t time.Time) (bool, error) {
	if !h.enabled() {
		return true, nil
	}

	open, err := time.Parse("15:04", h.Open)
	if err != nil {
		return false, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "bad session open %q", h.Open)
	}

	closing, err := time.Parse("15:04", h.Close)
	if err != nil {
		return false, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "bad session close %q", h.Close)
	}

	minute := t.Hour()*60 + t.Minute()
	openMinute := open.Hour()*60 + open.Minute()
	closeMinute := closing.Hour()*60 + closing.Minute()

	return minute >= openMinute && minute <= closeMinute, nil
}

// Simulator turns an order plus one bar into a fill, applying the configured
// slippage, partial-fill, and commission models. All randomness flows from
// the seeded generator so a run is reproducible.
type Simulator struct {
	commission   commission.Model
	slippage     slippage.Model
	hours        TradingHours
	partialFills bool
	rng          *rand.Rand
}

func NewSimulator(
	commissionModel commission.Model,
	slippageModel slippage.Model,
	hours TradingHours,
	partialFills bool,
	seed int64,
) *Simulator {
	return &Simulator{
		commission:   commissionModel,
		slippage:     slippageModel,
		hours:        hours,
		partialFills: partialFills,
		rng:          rand.New(rand.NewSource(seed)),
	}
}

// Execute runs one order against one bar. availableCash bounds buys. On a
// failed trigger or a closed market the order is marked rejected and a typed
// error is returned with no fill. A successful execution emits exactly one
// fill and moves the order to FILLED, or PARTIALLY_FILLED when the fillable
// quantity came up short.
func (s *Simulator) Execute(order *types.Order, bar types.Bar, availableCash decimal.Decimal) (types.Fill, error) {
	if err := order.Validate(); err != nil {
		return types.Fill{}, err
	}

	open, err := s.hours.Contains(bar.Time)
	if err != nil {
		return types.Fill{}, err
	}

	if !open {
		s.reject(order)

		return types.Fill{}, errors.Newf(errors.ErrCodeMarketClosed,
			"market closed at %s for order %s", bar.Time, order.ID)
	}

	triggered, err := order.TriggeredAt(bar.Close)
	if err != nil {
		return types.Fill{}, err
	}

	if !triggered {
		s.reject(order)

		return types.Fill{}, errors.Newf(errors.ErrCodeOrderNotTriggered,
			"%s %s order for %s did not trigger at %s", order.Side, order.Type, order.Ticker, bar.Close)
	}

	price := s.slippage.Adjust(bar.Close, order.Side, order.RemainingQuantity(), bar.Volume)
	quantity := s.fillableQuantity(order.RemainingQuantity(), bar.Volume)
	fee := s.commission.Calculate(quantity, price)

	if order.Side == types.SideBuy {
		quantity, fee, err = s.affordableQuantity(quantity, price, fee, availableCash)
		if err != nil {
			s.reject(order)

			return types.Fill{}, err
		}
	}

	fill := types.Fill{
		OrderID:    order.ID,
		Ticker:     order.Ticker,
		Side:       order.Side,
		Quantity:   quantity,
		Price:      price,
		Commission: fee,
		Slippage:   price.Sub(bar.Close).Abs(),
		Timestamp:  bar.Time,
	}

	if err := fill.Validate(); err != nil {
		return types.Fill{}, errors.Wrap(errors.ErrCodeFillFailed, "simulator produced an invalid fill", err)
	}

	order.FilledQuantity = order.FilledQuantity.Add(quantity)
	order.FilledPrice = price

	status := types.OrderStatusFilled
	if order.RemainingQuantity().IsPositive() {
		status = types.OrderStatusPartiallyFilled
	}

	if err := order.TransitionTo(status); err != nil {
		return types.Fill{}, err
	}

	return fill, nil
}

func (s *Simulator) reject(order *types.Order) {
	// Pending is the only state a rejection can come from; a failure to
	// transition here is a programming error upstream and is ignored.
	_ = order.TransitionTo(types.OrderStatusRejected)
}

// fillableQuantity returns the requested amount, or, with partial fills on,
// min(requested, 10% of bar volume) scaled by a random factor in [0.5, 1.0].
func (s *Simulator) fillableQuantity(requested, barVolume decimal.Decimal) decimal.Decimal {
	if !s.partialFills {
		return requested
	}

	available := requested
	if barVolume.IsPositive() {
		limit := barVolume.Mul(maxVolumeShare)
		if limit.LessThan(available) {
			available = limit
		}
	}

	factor := decimal.NewFromFloat(0.5 + s.rng.Float64()*0.5)

	return available.Mul(factor)
}

// affordableQuantity shrinks a buy that the available cash cannot cover. With
// partial fills disabled the buy fails outright with InsufficientCapital.
func (s *Simulator) affordableQuantity(quantity, price, fee, cash decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	cost := quantity.Mul(price).Add(fee)
	if cost.LessThanOrEqual(cash) {
		return quantity, fee, nil
	}

	if !s.partialFills {
		return decimal.Zero, decimal.Zero, errors.Newf(errors.ErrCodeInsufficientCapital,
			"order costs %s but only %s is available", cost, cash)
	}

	// Shrink proportionally and re-price the commission. Non-linear
	// commission models may need a second pass; give up after that rather
	// than looping forever.
	for i := 0; i < 2; i++ {
		quantity = quantity.Mul(cash).Div(cost)
		fee = s.commission.Calculate(quantity, price)
		cost = quantity.Mul(price).Add(fee)

		if cost.LessThanOrEqual(cash) && quantity.IsPositive() {
			return quantity, fee, nil
		}
	}

	return decimal.Zero, decimal.Zero, errors.Newf(errors.ErrCodeInsufficientCapital,
		"cannot shrink order to fit available capital %s", cash)
}
