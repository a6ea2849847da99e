package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradesim-lab/tradesim/internal/types"
)

// Context is everything a strategy may see at one step of the simulation:
// the current clock, the bars visible as of that clock, and the portfolio's
// own state. It deliberately exposes no way to reach future data.
type Context struct {
	Timestamp      time.Time
	Bars           map[string]types.Bar
	Positions      map[string]types.Position
	PortfolioValue decimal.Decimal
	Cash           decimal.Decimal
}

// Strategy is the external decision maker. The engine treats it as opaque:
// it consumes the emitted signals and never inspects the strategy's state.
type Strategy interface {
	// Name identifies the strategy in results and logs.
	Name() string
	// OnBar is invoked once per trading timestamp and returns zero or more
	// trade intents.
	OnBar(ctx Context) ([]types.Signal, error)
}

// Func adapts a plain function into a Strategy.
type Func struct {
	StrategyName string
	Handler      func(ctx Context) ([]types.Signal, error)
}

func (f *Func) Name() string {
	if f.StrategyName == "" {
		return "anonymous"
	}

	return f.StrategyName
}

func (f *Func) OnBar(ctx Context) ([]types.Signal, error) {
	return f.Handler(ctx)
}
