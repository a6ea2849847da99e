package engine_v1

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tradesim-lab/tradesim/internal/analysis"
	"github.com/tradesim-lab/tradesim/internal/backtest/engine"
	"github.com/tradesim-lab/tradesim/internal/backtest/engine/engine_v1/commission"
	"github.com/tradesim-lab/tradesim/internal/backtest/engine/engine_v1/datasource"
	"github.com/tradesim-lab/tradesim/internal/backtest/engine/engine_v1/slippage"
	"github.com/tradesim-lab/tradesim/internal/logger"
	"github.com/tradesim-lab/tradesim/internal/portfolio"
	"github.com/tradesim-lab/tradesim/internal/risk"
	"github.com/tradesim-lab/tradesim/internal/strategy"
	"github.com/tradesim-lab/tradesim/internal/types"
	"github.com/tradesim-lab/tradesim/pkg/errors"
)

// Result is the bundle a finished run produces.
type Result struct {
	Config      BacktestConfig      `yaml:"config" json:"config"`
	Metrics     types.Metrics       `yaml:"metrics" json:"metrics"`
	EquityCurve []types.EquityPoint `yaml:"equity_curve" json:"equity_curve"`
	Trades      []types.TradeRecord `yaml:"trades" json:"trades"`
	Benchmark   []types.EquityPoint `yaml:"benchmark,omitempty" json:"benchmark,omitempty"`
}

// BacktestV1 drives a single synchronous simulation loop over ordered
// trading timestamps. The loop never overlaps itself: strict temporal
// ordering is a correctness invariant, enforced by the data source's cursor.
type BacktestV1 struct {
	config        BacktestConfig
	configured    bool
	source        datasource.DataSource
	strat         strategy.Strategy
	resultsFolder string
	log           *logger.Logger
	result        *Result
}

// NewBacktestV1 creates an engine with the default logger.
func NewBacktestV1(log *logger.Logger) engine.Engine {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &BacktestV1{log: log}
}

// Initialize implements engine.Engine.
func (b *BacktestV1) Initialize(config string) error {
	parsed, err := ParseConfig([]byte(config))
	if err != nil {
		return err
	}

	b.config = parsed
	b.configured = true

	return nil
}

// SetConfigPath implements engine.Engine.
func (b *BacktestV1) SetConfigPath(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeBacktestConfigError, "failed to read config file", err)
	}

	return b.Initialize(string(content))
}

// SetDataSource implements engine.Engine.
func (b *BacktestV1) SetDataSource(source datasource.DataSource) error {
	if source == nil {
		return errors.New(errors.ErrCodeInvalidParameter, "data source cannot be nil")
	}

	b.source = source

	return nil
}

// SetDataPath implements engine.Engine.
func (b *BacktestV1) SetDataPath(path string) error {
	if b.source == nil {
		return errors.New(errors.ErrCodeBacktestNoData, "set a data source before a data path")
	}

	return b.source.Initialize(path)
}

// SetResultsFolder implements engine.Engine.
func (b *BacktestV1) SetResultsFolder(folder string) error {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "failed to create results folder", err)
	}

	b.resultsFolder = folder

	return nil
}

// LoadStrategy implements engine.Engine.
func (b *BacktestV1) LoadStrategy(s strategy.Strategy) error {
	if s == nil {
		return errors.New(errors.ErrCodeBacktestNoStrategy, "strategy cannot be nil")
	}

	b.strat = s

	return nil
}

// GetConfigSchema implements engine.Engine.
func (b *BacktestV1) GetConfigSchema() (string, error) {
	return b.config.GenerateSchemaJSON()
}

// Result returns the bundle of the last completed run.
func (b *BacktestV1) Result() (*Result, error) {
	if b.result == nil {
		return nil, errors.New(errors.ErrCodeBacktestNoData, "no completed run")
	}

	return b.result, nil
}

// Run implements engine.Engine.
func (b *BacktestV1) Run(ctx context.Context, callbacks engine.LifecycleCallbacks) error {
	if err := b.checkReady(); err != nil {
		return err
	}

	runID := uuid.New().String()
	cfg := b.config

	port, err := portfolio.New(
		decimal.NewFromFloat(cfg.InitialCapital),
		decimal.NewFromFloat(cfg.CommissionRate),
		cfg.RiskLimits,
		b.log,
	)
	if err != nil {
		return err
	}

	port.SetAllowShort(cfg.AllowShort)

	journal, err := NewJournal()
	if err != nil {
		return err
	}
	defer journal.Close()

	sim := NewSimulator(
		commission.GetModel(cfg.CommissionModel, decimal.NewFromFloat(cfg.CommissionRate)),
		slippage.GetModel(cfg.SlippageModel, decimal.NewFromFloat(cfg.SlippageRate)),
		cfg.TradingHours,
		cfg.PartialFills,
		cfg.Seed,
	)

	timestamps, err := b.source.Timestamps(optional.Some(cfg.StartTime), optional.Some(cfg.EndTime))
	if err != nil {
		return err
	}

	if len(timestamps) == 0 {
		return errors.Newf(errors.ErrCodeBacktestNoData,
			"no bars between %s and %s", cfg.StartTime, cfg.EndTime)
	}

	tickers, err := b.source.Tickers()
	if err != nil {
		return err
	}

	if callbacks.OnRunStart != nil {
		if err := (*callbacks.OnRunStart)(runID, b.strat.Name(), len(timestamps)); err != nil {
			return err
		}
	}

	if callbacks.OnRunEnd != nil {
		defer (*callbacks.OnRunEnd)(runID, b.resultsFolder)
	}

	var benchmark []types.EquityPoint

	for i, current := range timestamps {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCodeUnknown, "backtest cancelled", err)
		}

		if err := b.source.SetCursor(current); err != nil {
			return err
		}

		bars, prices, err := b.visibleBars(tickers, current)
		if err != nil {
			return err
		}

		if len(bars) == 0 {
			continue
		}

		port.MarkToMarket(prices, current)

		if err := b.runProtectiveExits(sim, port, journal, bars, prices); err != nil {
			return err
		}

		signals, err := b.strat.OnBar(strategy.Context{
			Timestamp:      current,
			Bars:           bars,
			Positions:      port.Positions(),
			PortfolioValue: port.Value(),
			Cash:           port.Cash(),
		})
		if err != nil {
			return errors.Wrap(errors.ErrCodeUnknown, "strategy failed", err)
		}

		for _, signal := range signals {
			if err := b.handleSignal(sim, port, journal, signal, bars, current); err != nil {
				return err
			}
		}

		if cfg.Benchmark != "" {
			if bar, ok := bars[cfg.Benchmark]; ok {
				benchmark = append(benchmark, types.EquityPoint{Timestamp: current, Value: bar.Close})
			}
		}

		if callbacks.OnProcessData != nil {
			if err := (*callbacks.OnProcessData)(i+1, len(timestamps)); err != nil {
				return err
			}
		}
	}

	for _, trade := range port.TradeHistory() {
		if err := journal.RecordTrade(trade); err != nil {
			return err
		}
	}

	metrics, err := analysis.Analyze(port.EquityCurve(), port.TradeHistory(), benchmark)
	if err != nil {
		return err
	}

	b.result = &Result{
		Config:      cfg,
		Metrics:     metrics,
		EquityCurve: port.EquityCurve(),
		Trades:      port.TradeHistory(),
		Benchmark:   benchmark,
	}

	return b.writeResults(port, journal, metrics)
}

func (b *BacktestV1) checkReady() error {
	if !b.configured {
		return errors.New(errors.ErrCodeBacktestConfigError, "engine is not configured")
	}

	if b.source == nil {
		return errors.New(errors.ErrCodeBacktestNoData, "no data source")
	}

	if b.strat == nil {
		return errors.New(errors.ErrCodeBacktestNoStrategy, "no strategy loaded")
	}

	return nil
}

// visibleBars fetches the bar for every ticker trading at the cursor.
// Tickers without a bar at this timestamp are simply absent.
func (b *BacktestV1) visibleBars(tickers []string, current time.Time) (map[string]types.Bar, map[string]decimal.Decimal, error) {
	bars := make(map[string]types.Bar)
	prices := make(map[string]decimal.Decimal)

	for _, ticker := range tickers {
		bar, err := b.source.GetDataAt(ticker, current)
		if err != nil {
			if errors.HasCode(err, errors.ErrCodeDataNotFound) {
				continue
			}

			return nil, nil, err
		}

		bars[ticker] = bar
		prices[ticker] = bar.Close
	}

	return bars, prices, nil
}

// runProtectiveExits executes the synthetic closing orders for breached stop
// and take-profit levels before the strategy sees the bar.
func (b *BacktestV1) runProtectiveExits(
	sim *Simulator,
	port *portfolio.Portfolio,
	journal *Journal,
	bars map[string]types.Bar,
	prices map[string]decimal.Decimal,
) error {
	exits := append(port.CheckStopLossTriggers(prices), port.CheckTakeProfitTriggers(prices)...)

	for i := range exits {
		order := &exits[i]

		bar, ok := bars[order.Ticker]
		if !ok {
			continue
		}

		if err := b.executeOrder(sim, port, journal, order, bar); err != nil {
			return err
		}
	}

	return nil
}

// handleSignal sizes a signal into an order and executes it. Hold signals
// and sells with nothing to sell are dropped.
func (b *BacktestV1) handleSignal(
	sim *Simulator,
	port *portfolio.Portfolio,
	journal *Journal,
	signal types.Signal,
	bars map[string]types.Bar,
	current time.Time,
) error {
	if signal.Action == types.SignalActionHold {
		return nil
	}

	bar, ok := bars[signal.Ticker]
	if !ok {
		return nil
	}

	order, ok, err := b.signalToOrder(port, signal, bar, current)
	if err != nil {
		return err
	}

	if !ok {
		return nil
	}

	return b.executeOrder(sim, port, journal, &order, bar)
}

func (b *BacktestV1) signalToOrder(
	port *portfolio.Portfolio,
	signal types.Signal,
	bar types.Bar,
	current time.Time,
) (types.Order, bool, error) {
	var (
		side     types.Side
		quantity decimal.Decimal
	)

	pos, held := port.GetPosition(signal.Ticker)

	switch signal.Action {
	case types.SignalActionBuy:
		side = types.SideBuy

		if held && pos.IsShort() {
			// a buy against a short covers it entirely
			quantity = pos.Quantity.Abs()
			break
		}

		sized, err := risk.CalculatePositionSize(b.config.RiskLimits, port.Value(), bar.Close, b.config.RiskFraction)
		if err != nil {
			return types.Order{}, false, err
		}

		quantity = sized
	case types.SignalActionSell:
		side = types.SideSell

		if held && pos.IsLong() {
			quantity = pos.Quantity
			break
		}

		if !b.config.AllowShort {
			return types.Order{}, false, nil
		}

		sized, err := risk.CalculatePositionSize(b.config.RiskLimits, port.Value(), bar.Close, b.config.RiskFraction)
		if err != nil {
			return types.Order{}, false, err
		}

		quantity = sized
	default:
		return types.Order{}, false, nil
	}

	if !quantity.IsPositive() {
		return types.Order{}, false, nil
	}

	return types.Order{
		ID:         uuid.New().String(),
		Ticker:     signal.Ticker,
		Side:       side,
		Type:       types.OrderTypeMarket,
		Quantity:   quantity,
		LimitPrice: optional.None[decimal.Decimal](),
		StopPrice:  optional.None[decimal.Decimal](),
		Status:     types.OrderStatusPending,
		Reason:     types.Reason{Reason: types.OrderReasonStrategy, Message: signal.Ticker + " " + string(signal.Action)},
		CreatedAt:  current,
	}, true, nil
}

// executeOrder runs one order through the simulator and applies the fill.
// Capacity shortfalls and closed-market rejections are logged and skipped;
// everything else aborts the run, since masking it would hide a config bug
// or a correctness violation.
func (b *BacktestV1) executeOrder(
	sim *Simulator,
	port *portfolio.Portfolio,
	journal *Journal,
	order *types.Order,
	bar types.Bar,
) error {
	fill, err := sim.Execute(order, bar, port.Cash())
	if err == nil {
		err = port.ApplyFill(fill, b.config.CheckRisk)
	}

	if journalErr := journal.RecordOrder(*order); journalErr != nil {
		return journalErr
	}

	if err != nil {
		if errors.IsCapacityError(err) || errors.HasCode(err, errors.ErrCodeMarketClosed) {
			b.log.Warn("order skipped",
				zap.String("ticker", order.Ticker),
				zap.String("side", string(order.Side)),
				zap.Error(err),
			)

			return nil
		}

		return err
	}

	return nil
}

func (b *BacktestV1) writeResults(port *portfolio.Portfolio, journal *Journal, metrics types.Metrics) error {
	if b.resultsFolder == "" {
		return nil
	}

	if err := types.WriteMetrics(filepath.Join(b.resultsFolder, "metrics.yaml"), metrics); err != nil {
		return err
	}

	snapshot, err := port.MarshalJSON()
	if err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(b.resultsFolder, "portfolio.json"), snapshot, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeUnknown, "failed to write portfolio snapshot", err)
	}

	return journal.Export(b.resultsFolder)
}
