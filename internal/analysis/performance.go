// Package analysis computes post-run statistics: the performance metrics
// snapshot, Monte Carlo distributions, and walk-forward window studies.
// Ledger money stays decimal upstream; everything here is ratio arithmetic
// and runs on float64.
package analysis

import (
	"math"

	"github.com/tradesim-lab/tradesim/internal/risk"
	"github.com/tradesim-lab/tradesim/internal/types"
	"github.com/tradesim-lab/tradesim/pkg/errors"
)

// Analyze turns an equity curve and trade ledger into one immutable metrics
// snapshot. The benchmark series is optional; when present, relative metrics
// are computed on the date-aligned intersection only.
func Analyze(equity []types.EquityPoint, trades []types.TradeRecord, benchmark []types.EquityPoint) (types.Metrics, error) {
	if len(equity) < 2 {
		return types.Metrics{}, errors.NewInsufficientDataErrorf(2, len(equity),
			"equity curve", "performance analysis requires at least 2 equity points, got %d", len(equity))
	}

	values := make([]float64, len(equity))
	for i, point := range equity {
		values[i] = point.Value.InexactFloat64()
	}

	returns := periodReturns(values)

	metrics := types.Metrics{}
	fillReturnMetrics(&metrics, values, returns)

	if err := fillRiskMetrics(&metrics, values, returns); err != nil {
		return types.Metrics{}, err
	}

	fillDrawdownMetrics(&metrics, equity, values)
	fillTradeMetrics(&metrics, trades)

	if len(benchmark) > 0 {
		relative, err := benchmarkMetrics(equity, benchmark, metrics.Volatility)
		if err != nil {
			return types.Metrics{}, err
		}

		metrics.Benchmark = relative
	}

	return metrics, nil
}

func periodReturns(values []float64) []float64 {
	returns := make([]float64, 0, len(values)-1)

	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			returns = append(returns, 0)

			continue
		}

		returns = append(returns, values[i]/values[i-1]-1)
	}

	return returns
}

func fillReturnMetrics(metrics *types.Metrics, values, returns []float64) {
	total := 0.0
	if values[0] != 0 {
		total = values[len(values)-1]/values[0] - 1
	}

	metrics.TotalReturn = total
	metrics.CumulativeReturn = total

	// annualize over the number of return periods at the daily convention
	periods := float64(len(returns))
	if periods > 0 && total > -1 {
		metrics.AnnualizedReturn = math.Pow(1+total, risk.TradingDaysPerYear/periods) - 1
	}
}

func fillRiskMetrics(metrics *types.Metrics, values, returns []float64) error {
	metrics.Volatility = populationStdDev(returns) * math.Sqrt(risk.TradingDaysPerYear)
	metrics.DownsideDeviation = downsideDeviation(returns) * math.Sqrt(risk.TradingDaysPerYear)

	sharpe, err := risk.CalculateSharpe(returns, 0)
	if err != nil {
		return err
	}

	metrics.SharpeRatio = sharpe

	sortino, err := risk.CalculateSortino(returns, 0)
	if err != nil {
		return err
	}

	metrics.SortinoRatio = sortino

	maxDrawdown, err := risk.CalculateMaxDrawdown(values)
	if err != nil {
		return err
	}

	if maxDrawdown > 0 {
		metrics.CalmarRatio = metrics.AnnualizedReturn / maxDrawdown
	}

	metrics.OmegaRatio = omegaRatio(returns)

	return nil
}

// omegaRatio is the gain-to-loss ratio at a zero threshold. No losses is
// degenerate and yields 0.
func omegaRatio(returns []float64) float64 {
	gains := 0.0
	losses := 0.0

	for _, r := range returns {
		if r > 0 {
			gains += r
		} else {
			losses -= r
		}
	}

	if losses == 0 {
		return 0
	}

	return gains / losses
}

func fillDrawdownMetrics(metrics *types.Metrics, equity []types.EquityPoint, values []float64) {
	peak := values[0]
	peakTime := equity[0].Timestamp

	maxDrawdown := 0.0
	drawdownSum := 0.0
	drawdownCount := 0
	maxDurationDays := 0

	for i, v := range values {
		if v >= peak {
			peak = v
			peakTime = equity[i].Timestamp

			continue
		}

		if peak > 0 {
			drawdown := (peak - v) / peak
			drawdownSum += drawdown
			drawdownCount++

			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}

		duration := int(equity[i].Timestamp.Sub(peakTime).Hours() / 24)
		if duration > maxDurationDays {
			maxDurationDays = duration
		}
	}

	metrics.MaxDrawdown = maxDrawdown
	metrics.MaxDrawdownDuration = maxDurationDays

	if drawdownCount > 0 {
		metrics.AverageDrawdown = drawdownSum / float64(drawdownCount)
	}
}

func fillTradeMetrics(metrics *types.Metrics, trades []types.TradeRecord) {
	metrics.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}

	grossProfit := 0.0
	grossLoss := 0.0
	largestWin := 0.0
	largestLoss := 0.0

	for _, trade := range trades {
		pnl := trade.RealizedPnL.InexactFloat64()

		if trade.IsWin {
			metrics.WinningTrades++

			grossProfit += pnl
			if pnl > largestWin {
				largestWin = pnl
			}
		} else {
			metrics.LosingTrades++

			grossLoss -= pnl
			if pnl < largestLoss {
				largestLoss = pnl
			}
		}
	}

	metrics.WinRate = float64(metrics.WinningTrades) / float64(len(trades))
	metrics.LargestWin = largestWin
	metrics.LargestLoss = largestLoss

	if metrics.WinningTrades > 0 {
		metrics.AverageWin = grossProfit / float64(metrics.WinningTrades)
	}

	if metrics.LosingTrades > 0 {
		metrics.AverageLoss = -grossLoss / float64(metrics.LosingTrades)
	}

	if grossLoss > 0 {
		metrics.ProfitFactor = grossProfit / grossLoss
	}
}

// benchmarkMetrics computes the relative metrics on timestamps present in
// both series. Sparse overlap degrades the estimate, but mixing unaligned
// returns would be worse.
func benchmarkMetrics(equity, benchmark []types.EquityPoint, annualVolatility float64) (*types.BenchmarkMetrics, error) {
	portfolioValues, benchmarkValues := alignSeries(equity, benchmark)
	if len(portfolioValues) < 2 {
		return nil, errors.NewInsufficientDataErrorf(2, len(portfolioValues),
			"benchmark intersection", "benchmark comparison requires at least 2 aligned points, got %d", len(portfolioValues))
	}

	portfolioReturns := periodReturns(portfolioValues)
	benchmarkReturns := periodReturns(benchmarkValues)

	beta, err := risk.CalculateBeta(portfolioReturns, benchmarkReturns)
	if err != nil {
		return nil, err
	}

	correlation, err := risk.CalculateCorrelation(portfolioReturns, benchmarkReturns)
	if err != nil {
		return nil, err
	}

	excess := make([]float64, len(portfolioReturns))
	for i := range portfolioReturns {
		excess[i] = portfolioReturns[i] - benchmarkReturns[i]
	}

	trackingError := populationStdDev(excess) * math.Sqrt(risk.TradingDaysPerYear)

	informationRatio := 0.0
	if trackingError > 0 {
		informationRatio = meanOf(excess) * risk.TradingDaysPerYear / trackingError
	}

	// Jensen's alpha at a zero risk-free rate, annualized from the aligned
	// daily means.
	alpha := (meanOf(portfolioReturns) - beta*meanOf(benchmarkReturns)) * risk.TradingDaysPerYear

	return &types.BenchmarkMetrics{
		Alpha:            alpha,
		Beta:             beta,
		Correlation:      correlation,
		TrackingError:    trackingError,
		InformationRatio: informationRatio,
	}, nil
}

// alignSeries intersects the two curves on exact timestamps, preserving
// order.
func alignSeries(equity, benchmark []types.EquityPoint) ([]float64, []float64) {
	index := make(map[int64]float64, len(benchmark))
	for _, point := range benchmark {
		index[point.Timestamp.UnixNano()] = point.Value.InexactFloat64()
	}

	var portfolioValues, benchmarkValues []float64

	for _, point := range equity {
		if b, ok := index[point.Timestamp.UnixNano()]; ok {
			portfolioValues = append(portfolioValues, point.Value.InexactFloat64())
			benchmarkValues = append(benchmarkValues, b)
		}
	}

	return portfolioValues, benchmarkValues
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// populationStdDev divides by n, matching the annualization convention used
// across the risk package.
func populationStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	m := meanOf(values)
	sumSq := 0.0

	for _, v := range values {
		diff := v - m
		sumSq += diff * diff
	}

	return math.Sqrt(sumSq / float64(len(values)))
}

// downsideDeviation is the root-mean-square of negative returns.
func downsideDeviation(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	sumSq := 0.0

	for _, r := range returns {
		if r < 0 {
			sumSq += r * r
		}
	}

	return math.Sqrt(sumSq / float64(len(returns)))
}
