package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/tradesim-lab/tradesim/pkg/errors"
)

type MetricsTestSuite struct {
	suite.Suite
}

func TestMetricsSuite(t *testing.T) {
	suite.Run(t, new(MetricsTestSuite))
}

func (suite *MetricsTestSuite) TestEmptyInputs() {
	_, err := CalculateVaR(nil, 0.95)
	suite.True(errors.HasCode(err, errors.ErrCodeEmptySeries))

	_, err = CalculateSharpe(nil, 0)
	suite.True(errors.HasCode(err, errors.ErrCodeEmptySeries))

	_, err = CalculateSortino(nil, 0)
	suite.True(errors.HasCode(err, errors.ErrCodeEmptySeries))

	_, err = CalculateMaxDrawdown(nil)
	suite.True(errors.HasCode(err, errors.ErrCodeEmptySeries))

	_, err = CalculateBeta(nil, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeEmptySeries))

	_, err = CalculateCorrelation(nil, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeEmptySeries))
}

func (suite *MetricsTestSuite) TestVaR() {
	// 100 returns: -0.10, -0.09, ..., steadily improving
	returns := make([]float64, 100)
	for i := range returns {
		returns[i] = -0.10 + float64(i)*0.002
	}

	v, err := CalculateVaR(returns, 0.95)
	suite.NoError(err)
	// 5th percentile of the sorted series is the 5th worst return
	suite.InDelta(0.09, v, 1e-9)

	_, err = CalculateVaR(returns, 1.5)
	suite.Error(err)
}

func (suite *MetricsTestSuite) TestVaRAllPositive() {
	v, err := CalculateVaR([]float64{0.01, 0.02, 0.03}, 0.95)
	suite.NoError(err)
	suite.Equal(0.0, v)
}

func (suite *MetricsTestSuite) TestSharpeZeroVariance() {
	s, err := CalculateSharpe([]float64{0.01, 0.01, 0.01}, 0)
	suite.NoError(err)
	suite.Equal(0.0, s)
}

func (suite *MetricsTestSuite) TestSharpePositive() {
	returns := []float64{0.01, -0.005, 0.02, 0.003, -0.001}

	s, err := CalculateSharpe(returns, 0)
	suite.NoError(err)
	suite.Greater(s, 0.0)

	// annualization scales by sqrt(252)
	m := mean(returns)
	std := populationStdDev(returns)
	suite.InDelta(m/std*math.Sqrt(252), s, 1e-9)
}

func (suite *MetricsTestSuite) TestSortinoNoDownside() {
	s, err := CalculateSortino([]float64{0.01, 0.02, 0.03}, 0)
	suite.NoError(err)
	suite.Equal(0.0, s)
}

func (suite *MetricsTestSuite) TestSortinoPenalizesDownsideOnly() {
	returns := []float64{0.02, -0.01, 0.02, -0.01}

	sortino, err := CalculateSortino(returns, 0)
	suite.NoError(err)

	sharpe, err := CalculateSharpe(returns, 0)
	suite.NoError(err)

	// same mean, smaller denominator
	suite.Greater(sortino, sharpe)
}

func (suite *MetricsTestSuite) TestMaxDrawdown() {
	equity := []float64{100000, 105000, 110000, 105000, 95000, 100000, 115000}

	dd, err := CalculateMaxDrawdown(equity)
	suite.NoError(err)
	// peak 110000, trough 95000 => 15000/110000 = 13.64%
	suite.InDelta(0.13636363, dd, 1e-6)
}

func (suite *MetricsTestSuite) TestMaxDrawdownMonotonic() {
	dd, err := CalculateMaxDrawdown([]float64{100, 110, 120, 130})
	suite.NoError(err)
	suite.Equal(0.0, dd)
}

func (suite *MetricsTestSuite) TestBeta() {
	benchmark := []float64{0.01, -0.02, 0.015, 0.005, -0.01}

	// portfolio moving at exactly twice the benchmark has beta 2
	returns := make([]float64, len(benchmark))
	for i, b := range benchmark {
		returns[i] = 2 * b
	}

	beta, err := CalculateBeta(returns, benchmark)
	suite.NoError(err)
	suite.InDelta(2.0, beta, 1e-9)
}

func (suite *MetricsTestSuite) TestBetaZeroVarianceBenchmark() {
	_, err := CalculateBeta([]float64{0.01, 0.02}, []float64{0.01, 0.01})
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeZeroVariance))
}

func (suite *MetricsTestSuite) TestBetaLengthMismatch() {
	_, err := CalculateBeta([]float64{0.01}, []float64{0.01, 0.02})
	suite.True(errors.HasCode(err, errors.ErrCodeSeriesMismatch))
}

func (suite *MetricsTestSuite) TestCorrelation() {
	a := []float64{0.01, -0.02, 0.015, 0.005, -0.01}

	corr, err := CalculateCorrelation(a, a)
	suite.NoError(err)
	suite.InDelta(1.0, corr, 1e-9)

	inverted := make([]float64, len(a))
	for i, v := range a {
		inverted[i] = -v
	}

	corr, err = CalculateCorrelation(a, inverted)
	suite.NoError(err)
	suite.InDelta(-1.0, corr, 1e-9)
}

func (suite *MetricsTestSuite) TestCorrelationZeroVariance() {
	corr, err := CalculateCorrelation([]float64{0.01, 0.02}, []float64{0.01, 0.01})
	suite.NoError(err)
	suite.Equal(0.0, corr)
}
