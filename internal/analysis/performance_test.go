package analysis

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/tradesim-lab/tradesim/internal/types"
	"github.com/tradesim-lab/tradesim/pkg/errors"
)

type PerformanceTestSuite struct {
	suite.Suite
	base time.Time
}

func TestPerformanceSuite(t *testing.T) {
	suite.Run(t, new(PerformanceTestSuite))
}

func (suite *PerformanceTestSuite) SetupTest() {
	suite.base = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
}

func (suite *PerformanceTestSuite) curve(values ...float64) []types.EquityPoint {
	points := make([]types.EquityPoint, len(values))
	for i, v := range values {
		points[i] = types.EquityPoint{
			Timestamp: suite.base.AddDate(0, 0, i),
			Value:     decimal.NewFromFloat(v),
		}
	}

	return points
}

func (suite *PerformanceTestSuite) TestInsufficientData() {
	_, err := Analyze(suite.curve(100000), nil, nil)
	suite.Require().Error(err)
	suite.True(errors.IsInsufficientDataError(err))

	_, err = Analyze(nil, nil, nil)
	suite.Require().Error(err)
	suite.True(errors.IsInsufficientDataError(err))
}

func (suite *PerformanceTestSuite) TestMaxDrawdown() {
	// peak 110000, trough 95000: (110000-95000)/110000 = 13.636%
	equity := suite.curve(100000, 105000, 110000, 105000, 95000, 100000, 115000)

	metrics, err := Analyze(equity, nil, nil)
	suite.Require().NoError(err)
	suite.InDelta(0.13636, metrics.MaxDrawdown, 0.0001)
	suite.Equal(3, metrics.MaxDrawdownDuration, "last underwater day is three days after the peak")
	suite.Greater(metrics.AverageDrawdown, 0.0)
	suite.Less(metrics.AverageDrawdown, metrics.MaxDrawdown)
}

func (suite *PerformanceTestSuite) TestReturnMetrics() {
	metrics, err := Analyze(suite.curve(100000, 101000, 102010), nil, nil)
	suite.Require().NoError(err)
	suite.InDelta(0.0201, metrics.TotalReturn, 1e-9)
	suite.Equal(metrics.TotalReturn, metrics.CumulativeReturn)
	suite.Greater(metrics.AnnualizedReturn, metrics.TotalReturn, "two days compound to far more per year")
	suite.InDelta(0.0, metrics.Volatility, 1e-9, "constant 1%% return has no variance")
	suite.Equal(0.0, metrics.SharpeRatio, "zero variance degrades to 0")
	suite.Equal(0.0, metrics.OmegaRatio, "no losing periods is degenerate")
}

func (suite *PerformanceTestSuite) TestTradeStats() {
	trades := []types.TradeRecord{
		{RealizedPnL: decimal.NewFromInt(500), IsWin: true},
		{RealizedPnL: decimal.NewFromInt(300), IsWin: true},
		{RealizedPnL: decimal.NewFromInt(-200), IsWin: false},
	}

	metrics, err := Analyze(suite.curve(100000, 100600), trades, nil)
	suite.Require().NoError(err)
	suite.Equal(3, metrics.TotalTrades)
	suite.Equal(2, metrics.WinningTrades)
	suite.Equal(1, metrics.LosingTrades)
	suite.InDelta(2.0/3.0, metrics.WinRate, 1e-9)
	suite.InDelta(4.0, metrics.ProfitFactor, 1e-9, "gross profit 800 over gross loss 200")
	suite.InDelta(400.0, metrics.AverageWin, 1e-9)
	suite.InDelta(-200.0, metrics.AverageLoss, 1e-9)
	suite.InDelta(500.0, metrics.LargestWin, 1e-9)
	suite.InDelta(-200.0, metrics.LargestLoss, 1e-9)
}

func (suite *PerformanceTestSuite) TestBenchmarkAlignment() {
	equity := suite.curve(100000, 101000, 99000, 102000)

	// benchmark only overlaps on three of the four days
	benchmark := []types.EquityPoint{
		{Timestamp: suite.base, Value: decimal.NewFromInt(400)},
		{Timestamp: suite.base.AddDate(0, 0, 1), Value: decimal.NewFromInt(404)},
		{Timestamp: suite.base.AddDate(0, 0, 3), Value: decimal.NewFromInt(408)},
		{Timestamp: suite.base.AddDate(0, 0, 9), Value: decimal.NewFromInt(500)},
	}

	metrics, err := Analyze(equity, nil, benchmark)
	suite.Require().NoError(err)
	suite.Require().NotNil(metrics.Benchmark)
	suite.NotZero(metrics.Benchmark.Beta)
	suite.GreaterOrEqual(metrics.Benchmark.Correlation, -1.0)
	suite.LessOrEqual(metrics.Benchmark.Correlation, 1.0)
	suite.Greater(metrics.Benchmark.TrackingError, 0.0)
}

func (suite *PerformanceTestSuite) TestFlatBenchmarkIsAnError() {
	equity := suite.curve(100000, 101000, 99000)

	benchmark := []types.EquityPoint{
		{Timestamp: suite.base, Value: decimal.NewFromInt(400)},
		{Timestamp: suite.base.AddDate(0, 0, 1), Value: decimal.NewFromInt(400)},
		{Timestamp: suite.base.AddDate(0, 0, 2), Value: decimal.NewFromInt(400)},
	}

	_, err := Analyze(equity, nil, benchmark)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeZeroVariance))
}

func (suite *PerformanceTestSuite) TestNoBenchmarkMeansNoRelativeMetrics() {
	metrics, err := Analyze(suite.curve(100000, 101000), nil, nil)
	suite.Require().NoError(err)
	suite.Nil(metrics.Benchmark)
}
