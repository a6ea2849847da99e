package analysis

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/tradesim-lab/tradesim/pkg/errors"
)

type MonteCarloTestSuite struct {
	suite.Suite
	returns []float64
	pnls    []float64
}

func TestMonteCarloSuite(t *testing.T) {
	suite.Run(t, new(MonteCarloTestSuite))
}

func (suite *MonteCarloTestSuite) SetupTest() {
	suite.returns = []float64{0.01, -0.005, 0.02, 0.003, -0.012, 0.007, 0.015, -0.02, 0.005, 0.01}
	suite.pnls = []float64{500, -200, 300, 150, -100, 250}
}

func (suite *MonteCarloTestSuite) newMC(seed int64) *MonteCarlo {
	mc, err := NewMonteCarlo(MonteCarloConfig{
		Simulations:      500,
		Seed:             seed,
		ConfidenceLevels: []float64{0.90, 0.95},
	})
	suite.Require().NoError(err)

	return mc
}

func (suite *MonteCarloTestSuite) TestConfigValidation() {
	_, err := NewMonteCarlo(MonteCarloConfig{Simulations: 0})
	suite.Require().Error(err)

	_, err = NewMonteCarlo(MonteCarloConfig{Simulations: 100, ConfidenceLevels: []float64{1.5}})
	suite.Require().Error(err)
}

func (suite *MonteCarloTestSuite) TestEmptyInputs() {
	mc := suite.newMC(1)

	_, err := mc.ResampleReturns(nil, 100000, false)
	suite.True(errors.HasCode(err, errors.ErrCodeEmptySeries))

	_, err = mc.ResampleTrades(nil, 100000, false)
	suite.True(errors.HasCode(err, errors.ErrCodeEmptySeries))

	_, err = mc.Parametric(nil, 100000)
	suite.True(errors.HasCode(err, errors.ErrCodeEmptySeries))
}

func (suite *MonteCarloTestSuite) TestSeededDeterminism() {
	first, err := suite.newMC(42).ResampleReturns(suite.returns, 100000, false)
	suite.Require().NoError(err)

	second, err := suite.newMC(42).ResampleReturns(suite.returns, 100000, false)
	suite.Require().NoError(err)

	suite.Equal(first, second, "same seed must reproduce the whole distribution")

	third, err := suite.newMC(43).ResampleReturns(suite.returns, 100000, false)
	suite.Require().NoError(err)
	suite.NotEqual(first.Mean, third.Mean)
}

func (suite *MonteCarloTestSuite) TestPercentileTableOrdering() {
	result, err := suite.newMC(7).ResampleReturns(suite.returns, 100000, true)
	suite.Require().NoError(err)

	levels := []int{1, 5, 10, 25, 50, 75, 90, 95, 99}
	suite.Len(result.Percentiles, len(levels))

	for i := 1; i < len(levels); i++ {
		suite.LessOrEqual(result.Percentiles[levels[i-1]], result.Percentiles[levels[i]])
	}

	suite.LessOrEqual(result.WorstCase, result.Percentiles[1])
	suite.GreaterOrEqual(result.BestCase, result.Percentiles[99])
	suite.InDelta(result.Percentiles[50], result.Median, 1e-9)
}

func (suite *MonteCarloTestSuite) TestConfidenceIntervals() {
	result, err := suite.newMC(7).ResampleTrades(suite.pnls, 100000, false)
	suite.Require().NoError(err)
	suite.Require().Len(result.ConfidenceIntervals, 2)

	wider := result.ConfidenceIntervals[1] // 95% contains 90%
	narrower := result.ConfidenceIntervals[0]
	suite.LessOrEqual(wider.Lower, narrower.Lower)
	suite.GreaterOrEqual(wider.Upper, narrower.Upper)
}

func (suite *MonteCarloTestSuite) TestProbabilityOfProfit() {
	// every trade wins, so every trial must end above the initial capital
	result, err := suite.newMC(3).ResampleTrades([]float64{100, 200, 50}, 100000, false)
	suite.Require().NoError(err)
	suite.Equal(1.0, result.ProbabilityOfProfit)

	result, err = suite.newMC(3).ResampleTrades([]float64{-100, -200}, 100000, true)
	suite.Require().NoError(err)
	suite.Equal(0.0, result.ProbabilityOfProfit)
}

func (suite *MonteCarloTestSuite) TestParametricTracksHistoricalMean() {
	result, err := suite.newMC(11).Parametric(suite.returns, 100000)
	suite.Require().NoError(err)
	suite.Greater(result.Mean, 90000.0)
	suite.Less(result.Mean, 115000.0)
	suite.Greater(result.Std, 0.0)
}
