package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is a per-ticker OHLCV snapshot at a point in time.
type Bar struct {
	Ticker string          `yaml:"ticker" json:"ticker" csv:"ticker"`
	Time   time.Time       `yaml:"time" json:"time" csv:"time"`
	Open   decimal.Decimal `yaml:"open" json:"open" csv:"open"`
	High   decimal.Decimal `yaml:"high" json:"high" csv:"high"`
	Low    decimal.Decimal `yaml:"low" json:"low" csv:"low"`
	Close  decimal.Decimal `yaml:"close" json:"close" csv:"close"`
	Volume decimal.Decimal `yaml:"volume" json:"volume" csv:"volume"`
}

// TypicalPrice returns (high + low + close) / 3.
func (b *Bar) TypicalPrice() decimal.Decimal {
	three := decimal.NewFromInt(3)

	return b.High.Add(b.Low).Add(b.Close).Div(three)
}

type SignalAction string

const (
	SignalActionBuy  SignalAction = "buy"
	SignalActionSell SignalAction = "sell"
	SignalActionHold SignalAction = "hold"
)

// Signal is a strategy's per-ticker trade intent. The strategy itself is an
// external collaborator; the engine only consumes its output.
type Signal struct {
	Ticker     string            `yaml:"ticker" json:"ticker"`
	Action     SignalAction      `yaml:"action" json:"action"`
	Confidence float64           `yaml:"confidence" json:"confidence"`
	Metadata   map[string]string `yaml:"metadata" json:"metadata"`
}

// EquityPoint is a single time-ordered sample of total portfolio value.
type EquityPoint struct {
	Timestamp time.Time       `yaml:"timestamp" json:"timestamp"`
	Value     decimal.Decimal `yaml:"value" json:"value"`
}
