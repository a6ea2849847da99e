package types

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradesim-lab/tradesim/pkg/errors"
)

// Fill is a single execution event produced by the execution simulator.
// Fills are immutable once emitted.
type Fill struct {
	OrderID   string          `yaml:"order_id" json:"order_id" csv:"order_id"`
	Ticker    string          `yaml:"ticker" json:"ticker" csv:"ticker"`
	Side      Side            `yaml:"side" json:"side" csv:"side"`
	Quantity  decimal.Decimal `yaml:"quantity" json:"quantity" csv:"quantity"`
	Price     decimal.Decimal `yaml:"price" json:"price" csv:"price"`
	Commission decimal.Decimal `yaml:"commission" json:"commission" csv:"commission"`
	// Slippage is the absolute per-unit gap between the reference price and
	// the fill price.
	Slippage  decimal.Decimal `yaml:"slippage" json:"slippage" csv:"slippage"`
	Timestamp time.Time       `yaml:"timestamp" json:"timestamp" csv:"timestamp"`
}

// Validate checks the fill invariants: quantity and price strictly positive,
// commission non-negative.
func (f *Fill) Validate() error {
	if !f.Quantity.IsPositive() {
		return errors.Newf(errors.ErrCodeInvalidQuantity, "fill quantity must be positive, got %s", f.Quantity)
	}

	if !f.Price.IsPositive() {
		return errors.Newf(errors.ErrCodeInvalidPrice, "fill price must be positive, got %s", f.Price)
	}

	if f.Commission.IsNegative() {
		return errors.Newf(errors.ErrCodeInvalidParameter, "fill commission cannot be negative, got %s", f.Commission)
	}

	return nil
}

// Notional returns quantity * price.
func (f *Fill) Notional() decimal.Decimal {
	return f.Quantity.Mul(f.Price)
}
