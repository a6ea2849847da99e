package risk

import (
	"math"
	"sort"

	"github.com/tradesim-lab/tradesim/pkg/errors"
)

// TradingDaysPerYear is the annualization convention used by every metric.
const TradingDaysPerYear = 252

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// populationStdDev divides by n, not n-1.
func populationStdDev(values []float64) float64 {
	m := mean(values)
	sumSq := 0.0

	for _, v := range values {
		diff := v - m
		sumSq += diff * diff
	}

	return math.Sqrt(sumSq / float64(len(values)))
}

// CalculateVaR returns the historical value-at-risk at the given confidence
// level (e.g. 0.95) as a positive loss fraction.
func CalculateVaR(returns []float64, confidence float64) (float64, error) {
	if len(returns) == 0 {
		return 0, errors.New(errors.ErrCodeEmptySeries, "VaR requires a non-empty return series")
	}

	if confidence <= 0 || confidence >= 1 {
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "confidence must be in (0,1), got %f", confidence)
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	loss := -sorted[idx]
	if loss < 0 {
		loss = 0
	}

	return loss, nil
}

// CalculateSharpe returns the annualized Sharpe ratio of a daily return
// series. A zero-variance series yields 0.
func CalculateSharpe(returns []float64, riskFreeRate float64) (float64, error) {
	if len(returns) == 0 {
		return 0, errors.New(errors.ErrCodeEmptySeries, "Sharpe requires a non-empty return series")
	}

	dailyRf := riskFreeRate / TradingDaysPerYear

	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - dailyRf
	}

	std := populationStdDev(excess)
	if std == 0 {
		return 0, nil
	}

	return mean(excess) / std * math.Sqrt(TradingDaysPerYear), nil
}

// CalculateSortino returns the annualized Sortino ratio, penalizing only
// downside deviation. A series with no downside yields 0.
func CalculateSortino(returns []float64, riskFreeRate float64) (float64, error) {
	if len(returns) == 0 {
		return 0, errors.New(errors.ErrCodeEmptySeries, "Sortino requires a non-empty return series")
	}

	dailyRf := riskFreeRate / TradingDaysPerYear

	sumSqDownside := 0.0
	excessSum := 0.0

	for _, r := range returns {
		excess := r - dailyRf
		excessSum += excess

		if excess < 0 {
			sumSqDownside += excess * excess
		}
	}

	downside := math.Sqrt(sumSqDownside / float64(len(returns)))
	if downside == 0 {
		return 0, nil
	}

	meanExcess := excessSum / float64(len(returns))

	return meanExcess / downside * math.Sqrt(TradingDaysPerYear), nil
}

// CalculateMaxDrawdown returns the largest peak-to-trough decline of an
// equity series as a positive fraction.
func CalculateMaxDrawdown(equity []float64) (float64, error) {
	if len(equity) == 0 {
		return 0, errors.New(errors.ErrCodeEmptySeries, "max drawdown requires a non-empty equity series")
	}

	peak := equity[0]
	maxDrawdown := 0.0

	for _, v := range equity {
		if v > peak {
			peak = v
		}

		if peak > 0 {
			drawdown := (peak - v) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return maxDrawdown, nil
}

// CalculateBeta returns the beta of a return series against a benchmark.
// Unlike the other metrics, a zero-variance benchmark is an error: beta is
// undefined rather than degenerate.
func CalculateBeta(returns, benchmark []float64) (float64, error) {
	if len(returns) == 0 || len(benchmark) == 0 {
		return 0, errors.New(errors.ErrCodeEmptySeries, "beta requires non-empty return series")
	}

	if len(returns) != len(benchmark) {
		return 0, errors.Newf(errors.ErrCodeSeriesMismatch, "series length mismatch: %d vs %d", len(returns), len(benchmark))
	}

	meanR := mean(returns)
	meanB := mean(benchmark)

	covariance := 0.0
	variance := 0.0

	for i := range returns {
		covariance += (returns[i] - meanR) * (benchmark[i] - meanB)
		variance += (benchmark[i] - meanB) * (benchmark[i] - meanB)
	}

	if variance == 0 {
		return 0, errors.New(errors.ErrCodeZeroVariance, "benchmark variance is zero, beta is undefined")
	}

	return covariance / variance, nil
}

// CalculateCorrelation returns the Pearson correlation of two return series.
// Either series having zero variance yields 0.
func CalculateCorrelation(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, errors.New(errors.ErrCodeEmptySeries, "correlation requires non-empty series")
	}

	if len(a) != len(b) {
		return 0, errors.Newf(errors.ErrCodeSeriesMismatch, "series length mismatch: %d vs %d", len(a), len(b))
	}

	meanA := mean(a)
	meanB := mean(b)

	covariance := 0.0
	varA := 0.0
	varB := 0.0

	for i := range a {
		da := a[i] - meanA
		db := b[i] - meanB
		covariance += da * db
		varA += da * da
		varB += db * db
	}

	if varA == 0 || varB == 0 {
		return 0, nil
	}

	return covariance / math.Sqrt(varA*varB), nil
}
