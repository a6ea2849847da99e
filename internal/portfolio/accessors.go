package portfolio

import (
	"github.com/shopspring/decimal"
	"github.com/tradesim-lab/tradesim/internal/risk"
	"github.com/tradesim-lab/tradesim/internal/types"
)

// Cash returns the current cash balance.
func (p *Portfolio) Cash() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.cash
}

// InitialCapital returns the starting capital.
func (p *Portfolio) InitialCapital() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.initialCapital
}

// PeakValue returns the highest total value the portfolio has reached.
func (p *Portfolio) PeakValue() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.peakValue
}

// Value returns cash plus the signed market value of all positions at their
// last known prices.
func (p *Portfolio) Value() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.valueLocked()
}

// GetPosition returns a copy of the position for ticker, if held.
func (p *Portfolio) GetPosition(ticker string) (types.Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[ticker]
	if !ok {
		return types.Position{}, false
	}

	return *pos, true
}

// Positions returns a copy of all open positions keyed by ticker.
func (p *Portfolio) Positions() map[string]types.Position {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]types.Position, len(p.positions))
	for ticker, pos := range p.positions {
		out[ticker] = *pos
	}

	return out
}

// SetProtectiveLevels sets the stop-loss and take-profit levels on an open
// position. Zero-valued decimals clear the corresponding level.
func (p *Portfolio) SetProtectiveLevels(ticker string, stopLoss, takeProfit decimal.Decimal) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[ticker]
	if !ok {
		return false
	}

	pos.StopLoss = optionalPrice(stopLoss)
	pos.TakeProfit = optionalPrice(takeProfit)

	return true
}

// TradeHistory returns a copy of the append-only trade ledger.
func (p *Portfolio) TradeHistory() []types.TradeRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]types.TradeRecord, len(p.tradeHistory))
	copy(out, p.tradeHistory)

	return out
}

// EquityCurve returns a copy of the time-ordered equity curve.
func (p *Portfolio) EquityCurve() []types.EquityPoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]types.EquityPoint, len(p.equityCurve))
	copy(out, p.equityCurve)

	return out
}

// RealizedPnL returns the sum of realized PnL across the trade history.
func (p *Portfolio) RealizedPnL() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := decimal.Zero
	for _, trade := range p.tradeHistory {
		total = total.Add(trade.RealizedPnL)
	}

	return total
}

// UnrealizedPnL returns the total paper profit across open positions at the
// given prices. Positions without a price fall back to their last known one.
func (p *Portfolio) UnrealizedPnL(prices map[string]decimal.Decimal) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := decimal.Zero

	for ticker, pos := range p.positions {
		price, ok := prices[ticker]
		if !ok {
			price, ok = p.lastPrices[ticker]
			if !ok {
				continue
			}
		}

		total = total.Add(pos.UnrealizedPnL(price))
	}

	return total
}

// SectorValue returns the aggregate absolute exposure of a sector at last
// known prices.
func (p *Portfolio) SectorValue(sector string) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := decimal.Zero

	for ticker, pos := range p.positions {
		if pos.Sector != sector {
			continue
		}

		price, ok := p.lastPrices[ticker]
		if !ok {
			price = pos.CostBasis
		}

		total = total.Add(pos.MarketValue(price))
	}

	return total
}

// CheckDrawdown evaluates the drawdown limit at the current value.
func (p *Portfolio) CheckDrawdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return risk.CheckDrawdownLimit(p.limits, p.valueLocked(), p.peakValue)
}
