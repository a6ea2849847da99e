package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord captures the full or partial close of a position. Records are
// append-only and owned by the portfolio.
type TradeRecord struct {
	Ticker     string          `yaml:"ticker" json:"ticker" csv:"ticker"`
	EntryDate  time.Time       `yaml:"entry_date" json:"entry_date" csv:"entry_date"`
	ExitDate   time.Time       `yaml:"exit_date" json:"exit_date" csv:"exit_date"`
	EntryPrice decimal.Decimal `yaml:"entry_price" json:"entry_price" csv:"entry_price"`
	ExitPrice  decimal.Decimal `yaml:"exit_price" json:"exit_price" csv:"exit_price"`
	// Quantity is the closed quantity, always positive.
	Quantity decimal.Decimal `yaml:"quantity" json:"quantity" csv:"quantity"`
	// RealizedPnL is net of the exit commission.
	RealizedPnL        decimal.Decimal `yaml:"realized_pnl" json:"realized_pnl" csv:"realized_pnl"`
	RealizedPnLPercent decimal.Decimal `yaml:"realized_pnl_percent" json:"realized_pnl_percent" csv:"realized_pnl_percent"`
	Commission         decimal.Decimal `yaml:"commission" json:"commission" csv:"commission"`
	HoldingDays        int             `yaml:"holding_days" json:"holding_days" csv:"holding_days"`
	IsWin              bool            `yaml:"is_win" json:"is_win" csv:"is_win"`
}

// HoldingPeriod returns the holding time between entry and exit.
func (t *TradeRecord) HoldingPeriod() time.Duration {
	return t.ExitDate.Sub(t.EntryDate)
}
