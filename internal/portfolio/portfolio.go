// Package portfolio implements the position and cash ledger shared by the
// live/paper trading mode and the backtesting engine. A Portfolio owns its
// positions, trade history and equity curve; every mutation happens through
// order execution under a single per-instance lock.
package portfolio

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/tradesim-lab/tradesim/internal/logger"
	"github.com/tradesim-lab/tradesim/internal/risk"
	"github.com/tradesim-lab/tradesim/internal/types"
	"github.com/tradesim-lab/tradesim/pkg/errors"
	"go.uber.org/zap"
)

const hoursPerDay = 24

// Portfolio aggregates positions and cash, applies fills atomically, and
// enforces risk checks before any mutation. All exported methods acquire the
// instance lock; internal *Locked helpers assume it is held.
type Portfolio struct {
	mu  sync.Mutex
	log *logger.Logger

	initialCapital decimal.Decimal
	cash           decimal.Decimal
	commissionRate decimal.Decimal
	positions      map[string]*types.Position
	tradeHistory   []types.TradeRecord
	equityCurve    []types.EquityPoint
	peakValue      decimal.Decimal
	lastPrices     map[string]decimal.Decimal
	limits         risk.Limits
	allowShort     bool
}

// New creates a portfolio with the given starting capital. The commission
// rate is a fraction of notional charged on every execution through
// ExecuteOrder; fills produced by an external execution simulator carry their
// own commission and are applied via ApplyFill.
func New(initialCapital, commissionRate decimal.Decimal, limits risk.Limits, log *logger.Logger) (*Portfolio, error) {
	if !initialCapital.IsPositive() {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "initial capital must be positive, got %s", initialCapital)
	}

	if commissionRate.IsNegative() {
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "commission rate cannot be negative, got %s", commissionRate)
	}

	if err := limits.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Portfolio{
		log:            log,
		initialCapital: initialCapital,
		cash:           initialCapital,
		commissionRate: commissionRate,
		positions:      make(map[string]*types.Position),
		tradeHistory:   []types.TradeRecord{},
		equityCurve:    []types.EquityPoint{},
		peakValue:      initialCapital,
		lastPrices:     make(map[string]decimal.Decimal),
		limits:         limits,
		allowShort:     false,
	}, nil
}

// SetAllowShort enables sells beyond current holdings to open or flip into
// short positions. Off by default: an oversell is then rejected.
func (p *Portfolio) SetAllowShort(allow bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowShort = allow
}

// ExecuteOrder validates the order's trigger against price, runs capital and
// (optionally) risk-limit checks, and applies the resulting fill. The whole
// operation is all-or-nothing: any check fails before the first mutation.
// On success the order transitions to FILLED and the emitted fill is
// returned.
func (p *Portfolio) ExecuteOrder(order *types.Order, price decimal.Decimal, timestamp time.Time, checkRisk bool) (types.Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := order.Validate(); err != nil {
		return types.Fill{}, err
	}

	if !price.IsPositive() {
		return types.Fill{}, errors.Newf(errors.ErrCodeInvalidPrice, "execution price must be positive, got %s", price)
	}

	triggered, err := order.TriggeredAt(price)
	if err != nil {
		return types.Fill{}, err
	}

	if !triggered {
		return types.Fill{}, errors.Newf(errors.ErrCodeOrderNotTriggered,
			"%s %s order for %s did not trigger at %s", order.Side, order.Type, order.Ticker, price)
	}

	commission := order.Quantity.Mul(price).Mul(p.commissionRate)

	fill := types.Fill{
		OrderID:    order.ID,
		Ticker:     order.Ticker,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Price:      price,
		Commission: commission,
		Slippage:   decimal.Zero,
		Timestamp:  timestamp,
	}

	if err := p.applyFillLocked(fill, checkRisk); err != nil {
		return types.Fill{}, err
	}

	order.FilledQuantity = order.Quantity
	order.FilledPrice = price

	if err := order.TransitionTo(types.OrderStatusFilled); err != nil {
		return types.Fill{}, err
	}

	return fill, nil
}

// ApplyFill applies an externally produced fill (for example from the
// execution simulator) with the same atomic bookkeeping as ExecuteOrder.
// Capital checks always apply; risk-limit checks only when checkRisk is set.
func (p *Portfolio) ApplyFill(fill types.Fill, checkRisk bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.applyFillLocked(fill, checkRisk)
}

// applyFillLocked validates first, mutates second. Nothing changes if any
// check fails.
func (p *Portfolio) applyFillLocked(fill types.Fill, checkRisk bool) error {
	if err := fill.Validate(); err != nil {
		return err
	}

	notional := fill.Notional()
	pos, held := p.positions[fill.Ticker]

	if fill.Side == types.SideBuy {
		if err := p.checkBuyLocked(fill, notional, checkRisk); err != nil {
			return err
		}
	} else {
		if err := p.checkSellLocked(fill, held, pos); err != nil {
			return err
		}
	}

	// Checks passed: mutate.
	if fill.Side == types.SideBuy {
		p.cash = p.cash.Sub(notional).Sub(fill.Commission)
	} else {
		p.cash = p.cash.Add(notional).Sub(fill.Commission)
	}

	signedQty := fill.Quantity
	if fill.Side == types.SideSell {
		signedQty = signedQty.Neg()
	}

	if err := p.applyQuantityLocked(fill, signedQty); err != nil {
		// Checks above guarantee this cannot fail; restore cash if it does.
		if fill.Side == types.SideBuy {
			p.cash = p.cash.Add(notional).Add(fill.Commission)
		} else {
			p.cash = p.cash.Sub(notional).Add(fill.Commission)
		}

		return err
	}

	p.lastPrices[fill.Ticker] = fill.Price
	p.recordEquityLocked(fill.Timestamp)

	p.log.Debug("fill applied",
		zap.String("ticker", fill.Ticker),
		zap.String("side", string(fill.Side)),
		zap.String("quantity", fill.Quantity.String()),
		zap.String("price", fill.Price.String()),
		zap.String("cash", p.cash.String()),
	)

	return nil
}

func (p *Portfolio) checkBuyLocked(fill types.Fill, notional decimal.Decimal, checkRisk bool) error {
	cost := notional.Add(fill.Commission)
	if cost.GreaterThan(p.cash) {
		return errors.Newf(errors.ErrCodeInsufficientCapital,
			"buy requires %s but only %s cash available", cost, p.cash)
	}

	pos := p.positions[fill.Ticker]
	if pos != nil && pos.IsShort() && fill.Quantity.GreaterThan(pos.Quantity.Abs()) && !p.allowShort {
		return errors.Newf(errors.ErrCodeInsufficientShares,
			"buy of %s would flip short position of %s", fill.Quantity, pos.Quantity.Abs())
	}

	if !checkRisk {
		return nil
	}

	// Risk checks evaluate the hypothetical post-trade state.
	postCash := p.cash.Sub(cost)
	postValue := p.valueLocked().Sub(fill.Commission)

	postPositionValue := notional
	if pos != nil && pos.IsLong() {
		postPositionValue = postPositionValue.Add(pos.MarketValue(fill.Price))
	}

	if err := risk.CheckPositionSizeLimit(p.limits, postPositionValue, postValue); err != nil {
		return err
	}

	return risk.CheckCashReserve(p.limits, postCash, postValue)
}

func (p *Portfolio) checkSellLocked(fill types.Fill, held bool, pos *types.Position) error {
	if p.allowShort {
		return nil
	}

	if !held || !pos.IsLong() {
		return errors.Newf(errors.ErrCodePositionNotFound, "no position in %s to sell", fill.Ticker)
	}

	if fill.Quantity.GreaterThan(pos.Quantity) {
		return errors.Newf(errors.ErrCodeInsufficientShares,
			"cannot sell %s of %s, only %s held", fill.Quantity, fill.Ticker, pos.Quantity)
	}

	return nil
}

// applyQuantityLocked routes the signed fill quantity to the right ledger
// operation: open, same-direction extend, reduce, close, or close-and-flip.
func (p *Portfolio) applyQuantityLocked(fill types.Fill, signedQty decimal.Decimal) error {
	pos, held := p.positions[fill.Ticker]

	if !held {
		return p.openPositionLocked(fill, signedQty)
	}

	if pos.Quantity.Sign() == signedQty.Sign() {
		return p.extendPositionLocked(pos, fill, signedQty)
	}

	closing := signedQty.Abs()
	if closing.LessThan(pos.Quantity.Abs()) {
		p.reducePositionLocked(pos, fill, closing)

		return nil
	}

	// Full close, possibly flipping into the opposite direction.
	remainder := closing.Sub(pos.Quantity.Abs())
	p.closePositionLocked(pos, fill, pos.Quantity.Abs())

	if remainder.IsPositive() {
		flipQty := remainder
		if signedQty.IsNegative() {
			flipQty = flipQty.Neg()
		}

		// The closing leg keeps its prorated share of the commission; the
		// remainder becomes the entry commission of the flipped position.
		flipFill := fill
		flipFill.Quantity = remainder
		flipFill.Commission = fill.Commission.Mul(remainder).Div(fill.Quantity)

		return p.openPositionLocked(flipFill, flipQty)
	}

	return nil
}

func (p *Portfolio) openPositionLocked(fill types.Fill, signedQty decimal.Decimal) error {
	pos, err := types.NewPosition(fill.Ticker, signedQty, fill.Price, fill.Timestamp)
	if err != nil {
		return err
	}

	pos.EntryCommission = fill.Commission
	p.positions[fill.Ticker] = pos

	return nil
}

func (p *Portfolio) extendPositionLocked(pos *types.Position, fill types.Fill, signedQty decimal.Decimal) error {
	if err := pos.UpdateCostBasis(signedQty, fill.Price); err != nil {
		return err
	}

	if err := pos.UpdateQuantity(signedQty); err != nil {
		return err
	}

	pos.EntryCommission = pos.EntryCommission.Add(fill.Commission)
	pos.LastUpdated = fill.Timestamp

	return nil
}

// reducePositionLocked closes part of the position and records the realized
// result on the closed portion. The cost basis of the remainder is unchanged.
func (p *Portfolio) reducePositionLocked(pos *types.Position, fill types.Fill, closing decimal.Decimal) {
	p.appendTradeLocked(pos, fill, closing)

	delta := closing
	if pos.IsLong() {
		delta = delta.Neg()
	}

	// cannot fail: closing < |quantity| was checked by the caller
	_ = pos.UpdateQuantity(delta)
	pos.LastUpdated = fill.Timestamp
}

// closePositionLocked closes the whole position and deletes it from the map.
func (p *Portfolio) closePositionLocked(pos *types.Position, fill types.Fill, closing decimal.Decimal) {
	p.appendTradeLocked(pos, fill, closing)
	delete(p.positions, pos.Ticker)
}

// appendTradeLocked computes realized PnL on the closed portion and appends
// a TradeRecord. Long close: (fill - cost) * qty. Short close: (cost - fill)
// * qty. Realized PnL is net of the exit commission (prorated when the fill
// also opens a flip) and the closed portion's share of the entry commission.
func (p *Portfolio) appendTradeLocked(pos *types.Position, fill types.Fill, closing decimal.Decimal) {
	var gross decimal.Decimal
	if pos.IsLong() {
		gross = fill.Price.Sub(pos.CostBasis).Mul(closing)
	} else {
		gross = pos.CostBasis.Sub(fill.Price).Mul(closing)
	}

	exitCommission := fill.Commission
	if fill.Quantity.GreaterThan(closing) && fill.Quantity.IsPositive() {
		exitCommission = fill.Commission.Mul(closing).Div(fill.Quantity)
	}

	entryCommission := pos.EntryCommission.Mul(closing).Div(pos.Quantity.Abs())
	pos.EntryCommission = pos.EntryCommission.Sub(entryCommission)

	commission := entryCommission.Add(exitCommission)
	realized := gross.Sub(commission)

	cost := pos.CostBasis.Mul(closing)

	pct := decimal.Zero
	if cost.IsPositive() {
		pct = realized.Div(cost)
	}

	holdingDays := int(fill.Timestamp.Sub(pos.OpenedAt).Hours() / hoursPerDay)
	if holdingDays < 0 {
		holdingDays = 0
	}

	p.tradeHistory = append(p.tradeHistory, types.TradeRecord{
		Ticker:             pos.Ticker,
		EntryDate:          pos.OpenedAt,
		ExitDate:           fill.Timestamp,
		EntryPrice:         pos.CostBasis,
		ExitPrice:          fill.Price,
		Quantity:           closing,
		RealizedPnL:        realized,
		RealizedPnLPercent: pct,
		Commission:         commission,
		HoldingDays:        holdingDays,
		IsWin:              realized.IsPositive(),
	})
}

// recordEquityLocked appends an equity-curve point and advances the peak.
// Timestamps must be non-decreasing; a stale timestamp is dropped onto the
// last point's time rather than violating the curve's ordering.
func (p *Portfolio) recordEquityLocked(timestamp time.Time) {
	if n := len(p.equityCurve); n > 0 && timestamp.Before(p.equityCurve[n-1].Timestamp) {
		timestamp = p.equityCurve[n-1].Timestamp
	}

	value := p.valueLocked()

	p.equityCurve = append(p.equityCurve, types.EquityPoint{
		Timestamp: timestamp,
		Value:     value,
	})

	if value.GreaterThan(p.peakValue) {
		p.peakValue = value
	}
}

// valueLocked returns cash plus the signed market value of every position at
// its last known price.
func (p *Portfolio) valueLocked() decimal.Decimal {
	value := p.cash

	for ticker, pos := range p.positions {
		price, ok := p.lastPrices[ticker]
		if !ok {
			price = pos.CostBasis
		}

		value = value.Add(pos.Quantity.Mul(price))
	}

	return value
}

// MarkToMarket updates last-known prices and appends an equity-curve point
// at the given timestamp.
func (p *Portfolio) MarkToMarket(prices map[string]decimal.Decimal, timestamp time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for ticker, price := range prices {
		if price.IsPositive() {
			p.lastPrices[ticker] = price
		}
	}

	p.recordEquityLocked(timestamp)
}

// CheckStopLossTriggers scans positions against prices and returns synthetic
// closing market orders for every breached stop. Nothing is executed.
func (p *Portfolio) CheckStopLossTriggers(prices map[string]decimal.Decimal) []types.Order {
	return p.scanTriggers(prices, func(pos *types.Position, price decimal.Decimal) bool {
		return pos.ShouldTriggerStopLoss(price)
	}, types.OrderReasonStopLoss)
}

// CheckTakeProfitTriggers mirrors CheckStopLossTriggers for target levels.
func (p *Portfolio) CheckTakeProfitTriggers(prices map[string]decimal.Decimal) []types.Order {
	return p.scanTriggers(prices, func(pos *types.Position, price decimal.Decimal) bool {
		return pos.ShouldTriggerTakeProfit(price)
	}, types.OrderReasonTakeProfit)
}

func (p *Portfolio) scanTriggers(prices map[string]decimal.Decimal, triggered func(*types.Position, decimal.Decimal) bool, reason string) []types.Order {
	p.mu.Lock()
	defer p.mu.Unlock()

	var orders []types.Order

	for ticker, pos := range p.positions {
		price, ok := prices[ticker]
		if !ok || !triggered(pos, price) {
			continue
		}

		side := types.SideSell
		if pos.IsShort() {
			side = types.SideBuy
		}

		orders = append(orders, types.Order{
			ID:         uuid.New().String(),
			Ticker:     ticker,
			Side:       side,
			Type:       types.OrderTypeMarket,
			Quantity:   pos.Quantity.Abs(),
			LimitPrice: optional.None[decimal.Decimal](),
			StopPrice:  optional.None[decimal.Decimal](),
			Status:     types.OrderStatusPending,
			Reason:     types.Reason{Reason: reason, Message: "protective level breached at " + price.String()},
			CreatedAt:  time.Now(),
		})
	}

	return orders
}
