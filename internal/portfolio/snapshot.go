package portfolio

import (
	"encoding/json"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/tradesim-lab/tradesim/internal/logger"
	"github.com/tradesim-lab/tradesim/internal/risk"
	"github.com/tradesim-lab/tradesim/internal/types"
	"github.com/tradesim-lab/tradesim/pkg/errors"
)

// Snapshot captures the full portfolio state. Monetary fields serialize as
// exact decimal strings, so Snapshot/Restore round-trips are lossless.
func (p *Portfolio) Snapshot() types.PortfolioSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	positions := make(map[string]types.PositionSnapshot, len(p.positions))
	for ticker, pos := range p.positions {
		positions[ticker] = types.PositionSnapshot{
			Quantity:        pos.Quantity,
			CostBasis:       pos.CostBasis,
			EntryCommission: pos.EntryCommission,
			Sector:          pos.Sector,
			OpenedAt:    pos.OpenedAt,
			LastUpdated: pos.LastUpdated,
			StopLoss:    pos.StopLoss,
			TakeProfit:  pos.TakeProfit,
		}
	}

	trades := make([]types.TradeRecord, len(p.tradeHistory))
	copy(trades, p.tradeHistory)

	curve := make([]types.EquityCurvePoint, len(p.equityCurve))
	for i, point := range p.equityCurve {
		curve[i] = types.EquityCurvePoint{Timestamp: point.Timestamp, Value: point.Value}
	}

	return types.PortfolioSnapshot{
		InitialCapital: p.initialCapital,
		Cash:           p.cash,
		CommissionRate: p.commissionRate,
		Positions:      positions,
		TradeHistory:   trades,
		EquityCurve:    curve,
		PeakValue:      p.peakValue,
	}
}

// MarshalJSON serializes the snapshot form of the portfolio.
func (p *Portfolio) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Snapshot())
}

// FromSnapshot reconstructs a portfolio from a persisted snapshot.
func FromSnapshot(snapshot types.PortfolioSnapshot, limits risk.Limits, log *logger.Logger) (*Portfolio, error) {
	p, err := New(snapshot.InitialCapital, snapshot.CommissionRate, limits, log)
	if err != nil {
		return nil, err
	}

	p.cash = snapshot.Cash
	if p.cash.IsNegative() {
		return nil, errors.Newf(errors.ErrCodeSnapshotCorrupt, "snapshot cash is negative: %s", snapshot.Cash)
	}

	for ticker, ps := range snapshot.Positions {
		pos, err := types.NewPosition(ticker, ps.Quantity, ps.CostBasis, ps.OpenedAt)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeSnapshotCorrupt, err, "snapshot position %s is invalid", ticker)
		}

		pos.EntryCommission = ps.EntryCommission
		pos.Sector = ps.Sector
		pos.LastUpdated = ps.LastUpdated
		pos.StopLoss = ps.StopLoss
		pos.TakeProfit = ps.TakeProfit
		p.positions[ticker] = pos
	}

	p.tradeHistory = make([]types.TradeRecord, len(snapshot.TradeHistory))
	copy(p.tradeHistory, snapshot.TradeHistory)

	p.equityCurve = make([]types.EquityPoint, len(snapshot.EquityCurve))

	for i, point := range snapshot.EquityCurve {
		if i > 0 && point.Timestamp.Before(snapshot.EquityCurve[i-1].Timestamp) {
			return nil, errors.Newf(errors.ErrCodeSnapshotCorrupt,
				"snapshot equity curve timestamps regress at index %d", i)
		}

		p.equityCurve[i] = types.EquityPoint{Timestamp: point.Timestamp, Value: point.Value}
	}

	if snapshot.PeakValue.IsPositive() {
		p.peakValue = snapshot.PeakValue
	}

	return p, nil
}

// FromJSON reconstructs a portfolio from snapshot JSON.
func FromJSON(data []byte, limits risk.Limits, log *logger.Logger) (*Portfolio, error) {
	var snapshot types.PortfolioSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSnapshotCorrupt, "failed to decode portfolio snapshot", err)
	}

	return FromSnapshot(snapshot, limits, log)
}

func optionalPrice(price decimal.Decimal) optional.Option[decimal.Decimal] {
	if price.IsPositive() {
		return optional.Some(price)
	}

	return optional.None[decimal.Decimal]()
}
