package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/tradesim-lab/tradesim/pkg/errors"
)

type LimitsTestSuite struct {
	suite.Suite
	limits Limits
}

func TestLimitsSuite(t *testing.T) {
	suite.Run(t, new(LimitsTestSuite))
}

func (suite *LimitsTestSuite) SetupTest() {
	suite.limits = Limits{
		MaxPositionSize:        0.20,
		MaxSectorConcentration: 0.40,
		MaxDrawdown:            0.25,
		MinCashReserve:         0.10,
		MaxLeverage:            1.0,
	}
}

func (suite *LimitsTestSuite) TestValidate() {
	suite.NoError(suite.limits.Validate())

	bad := suite.limits
	bad.MaxPositionSize = 1.5
	suite.Error(bad.Validate())

	bad = suite.limits
	bad.MaxLeverage = 0.5
	suite.Error(bad.Validate())

	bad = suite.limits
	bad.MinCashReserve = -0.1
	suite.Error(bad.Validate())
}

func (suite *LimitsTestSuite) TestPositionSizeLimit() {
	portfolio := decimal.NewFromInt(100000)

	suite.NoError(CheckPositionSizeLimit(suite.limits, decimal.NewFromInt(20000), portfolio))

	err := CheckPositionSizeLimit(suite.limits, decimal.NewFromInt(20001), portfolio)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeRiskPositionSize))
	suite.True(errors.IsRiskRejection(err))

	// short exposure counts by magnitude
	err = CheckPositionSizeLimit(suite.limits, decimal.NewFromInt(-30000), portfolio)
	suite.Error(err)
}

func (suite *LimitsTestSuite) TestSectorConcentration() {
	portfolio := decimal.NewFromInt(100000)

	suite.NoError(CheckSectorConcentration(suite.limits, decimal.NewFromInt(40000), portfolio))

	err := CheckSectorConcentration(suite.limits, decimal.NewFromInt(45000), portfolio)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeRiskConcentration))
}

func (suite *LimitsTestSuite) TestDrawdownLimit() {
	peak := decimal.NewFromInt(100000)

	suite.NoError(CheckDrawdownLimit(suite.limits, decimal.NewFromInt(80000), peak))
	suite.NoError(CheckDrawdownLimit(suite.limits, decimal.NewFromInt(110000), peak))

	err := CheckDrawdownLimit(suite.limits, decimal.NewFromInt(70000), peak)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeRiskDrawdown))
}

func (suite *LimitsTestSuite) TestCashReserve() {
	portfolio := decimal.NewFromInt(100000)

	suite.NoError(CheckCashReserve(suite.limits, decimal.NewFromInt(10000), portfolio))

	err := CheckCashReserve(suite.limits, decimal.NewFromInt(9999), portfolio)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeRiskCashReserve))
}

func (suite *LimitsTestSuite) TestCalculatePositionSize() {
	portfolio := decimal.NewFromInt(100000)
	price := decimal.NewFromInt(150)

	tests := []struct {
		name         string
		riskFraction float64
		expected     int64
	}{
		// 10% of 100000 = 10000 => 66 whole shares at 150
		{"fixed fractional", 0.10, 66},
		// capped at max position size 20% => 20000 => 133 shares
		{"capped by max position size", 0.50, 133},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			qty, err := CalculatePositionSize(suite.limits, portfolio, price, tc.riskFraction)
			suite.NoError(err)
			suite.True(qty.Equal(decimal.NewFromInt(tc.expected)), "expected %d, got %s", tc.expected, qty)
		})
	}
}

func (suite *LimitsTestSuite) TestCalculatePositionSizeErrors() {
	portfolio := decimal.NewFromInt(100000)

	_, err := CalculatePositionSize(suite.limits, portfolio, decimal.Zero, 0.1)
	suite.Error(err)

	_, err = CalculatePositionSize(suite.limits, portfolio, decimal.NewFromInt(150), 0)
	suite.Error(err)

	_, err = CalculatePositionSize(suite.limits, decimal.Zero, decimal.NewFromInt(150), 0.1)
	suite.Error(err)
}
