package types

import (
	"encoding/json"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/tradesim-lab/tradesim/pkg/errors"
)

// PortfolioSnapshot is the persisted form of a portfolio. Every monetary
// field serializes as an exact base-10 decimal string (shopspring's default
// JSON form), never a binary float, so save/load round-trips exactly.
type PortfolioSnapshot struct {
	InitialCapital decimal.Decimal             `json:"initial_capital"`
	Cash           decimal.Decimal             `json:"cash"`
	CommissionRate decimal.Decimal             `json:"commission_rate"`
	Positions      map[string]PositionSnapshot `json:"positions"`
	TradeHistory   []TradeRecord               `json:"trade_history"`
	EquityCurve    []EquityCurvePoint          `json:"equity_curve"`
	PeakValue      decimal.Decimal             `json:"peak_value"`
}

type PositionSnapshot struct {
	Quantity        decimal.Decimal                  `json:"quantity"`
	CostBasis       decimal.Decimal                  `json:"cost_basis"`
	EntryCommission decimal.Decimal                  `json:"entry_commission"`
	Sector          string                           `json:"sector"`
	OpenedAt        time.Time                        `json:"opened_at"`
	LastUpdated     time.Time                        `json:"last_updated"`
	StopLoss        optional.Option[decimal.Decimal] `json:"stop_loss"`
	TakeProfit      optional.Option[decimal.Decimal] `json:"take_profit"`
}

// EquityCurvePoint serializes as a two-element [timestamp, value] array with
// the value as a decimal string.
type EquityCurvePoint struct {
	Timestamp time.Time
	Value     decimal.Decimal
}

// MarshalJSON implements json.Marshaler.
func (p EquityCurvePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.Timestamp.Format(time.RFC3339Nano), p.Value.String()})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *EquityCurvePoint) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return errors.Wrap(errors.ErrCodeSnapshotCorrupt, "equity curve point is not a [timestamp, value] pair", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, pair[0])
	if err != nil {
		return errors.Wrapf(errors.ErrCodeSnapshotCorrupt, err, "invalid equity curve timestamp %q", pair[0])
	}

	value, err := decimal.NewFromString(pair[1])
	if err != nil {
		return errors.Wrapf(errors.ErrCodeSnapshotCorrupt, err, "invalid equity curve value %q", pair[1])
	}

	p.Timestamp = ts
	p.Value = value

	return nil
}
