package portfolio

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/tradesim-lab/tradesim/internal/logger"
	"github.com/tradesim-lab/tradesim/internal/risk"
	"github.com/tradesim-lab/tradesim/internal/types"
	"github.com/tradesim-lab/tradesim/pkg/errors"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}

	return v
}

type PortfolioTestSuite struct {
	suite.Suite
	portfolio *Portfolio
	now       time.Time
}

func TestPortfolioSuite(t *testing.T) {
	suite.Run(t, new(PortfolioTestSuite))
}

func (suite *PortfolioTestSuite) SetupTest() {
	limits := risk.Limits{
		MaxPositionSize:        1.0,
		MaxSectorConcentration: 1.0,
		MaxDrawdown:            1.0,
		MinCashReserve:         0.0,
		MaxLeverage:            1.0,
	}

	p, err := New(d("100000"), d("0.001"), limits, logger.NewNopLogger())
	suite.Require().NoError(err)
	suite.portfolio = p
	suite.now = time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC)
}

func (suite *PortfolioTestSuite) marketOrder(side types.Side, ticker, qty string) types.Order {
	return types.Order{
		ID:         uuid.New().String(),
		Ticker:     ticker,
		Side:       side,
		Type:       types.OrderTypeMarket,
		Quantity:   d(qty),
		LimitPrice: optional.None[decimal.Decimal](),
		StopPrice:  optional.None[decimal.Decimal](),
		Status:     types.OrderStatusPending,
		Reason:     types.Reason{Reason: types.OrderReasonStrategy, Message: "test"},
		CreatedAt:  suite.now,
	}
}

func (suite *PortfolioTestSuite) TestNewPortfolioValidation() {
	_, err := New(decimal.Zero, d("0.001"), risk.DefaultLimits(), nil)
	suite.Error(err)

	_, err = New(d("100000"), d("-0.001"), risk.DefaultLimits(), nil)
	suite.Error(err)

	_, err = New(d("100000"), d("0.001"), risk.Limits{MaxLeverage: 0.5}, nil)
	suite.Error(err)
}

// TestEndToEndLedgerWalk is the canonical ledger walk: 100k capital, 0.1%
// commission, round trip 100 AAPL from 150 to 160.
func (suite *PortfolioTestSuite) TestEndToEndLedgerWalk() {
	buy := suite.marketOrder(types.SideBuy, "AAPL", "100")

	fill, err := suite.portfolio.ExecuteOrder(&buy, d("150"), suite.now, false)
	suite.Require().NoError(err)
	suite.True(fill.Commission.Equal(d("15")))
	suite.True(suite.portfolio.Cash().Equal(d("84985")), "cash = %s", suite.portfolio.Cash())
	suite.Equal(types.OrderStatusFilled, buy.Status)

	pos, ok := suite.portfolio.GetPosition("AAPL")
	suite.Require().True(ok)
	suite.True(pos.Quantity.Equal(d("100")))
	suite.True(pos.CostBasis.Equal(d("150")))

	// mark at 160: unrealized is computed off the raw basis
	unrealized := suite.portfolio.UnrealizedPnL(map[string]decimal.Decimal{"AAPL": d("160")})
	suite.True(unrealized.Equal(d("1000")), "unrealized = %s", unrealized)

	sell := suite.marketOrder(types.SideSell, "AAPL", "100")

	fill, err = suite.portfolio.ExecuteOrder(&sell, d("160"), suite.now.Add(24*time.Hour), false)
	suite.Require().NoError(err)
	suite.True(fill.Commission.Equal(d("16")))
	suite.True(suite.portfolio.Cash().Equal(d("100969")), "cash = %s", suite.portfolio.Cash())

	_, ok = suite.portfolio.GetPosition("AAPL")
	suite.False(ok, "position should be deleted at zero quantity")

	trades := suite.portfolio.TradeHistory()
	suite.Require().Len(trades, 1)
	suite.True(trades[0].RealizedPnL.Equal(d("969")), "realized = %s", trades[0].RealizedPnL)
	suite.True(trades[0].IsWin)
	suite.Equal(1, trades[0].HoldingDays)
}

func (suite *PortfolioTestSuite) TestWeightedCostBasis() {
	p, err := New(d("100000"), decimal.Zero, risk.DefaultLimits(), nil)
	suite.Require().NoError(err)

	buy1 := suite.marketOrder(types.SideBuy, "AAPL", "100")
	_, err = p.ExecuteOrder(&buy1, d("150"), suite.now, false)
	suite.Require().NoError(err)

	buy2 := suite.marketOrder(types.SideBuy, "AAPL", "50")
	_, err = p.ExecuteOrder(&buy2, d("160"), suite.now.Add(time.Hour), false)
	suite.Require().NoError(err)

	pos, ok := p.GetPosition("AAPL")
	suite.Require().True(ok)
	suite.True(pos.Quantity.Equal(d("150")))
	suite.Equal("153.3333", pos.CostBasis.Round(4).String())
}

func (suite *PortfolioTestSuite) TestInsufficientCapital() {
	buy := suite.marketOrder(types.SideBuy, "AAPL", "1000")

	_, err := suite.portfolio.ExecuteOrder(&buy, d("150"), suite.now, false)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientCapital))
	suite.True(errors.IsCapacityError(err))

	// all-or-nothing: nothing mutated
	suite.True(suite.portfolio.Cash().Equal(d("100000")))
	suite.Empty(suite.portfolio.Positions())
	suite.Empty(suite.portfolio.EquityCurve())
}

func (suite *PortfolioTestSuite) TestSellWithoutPosition() {
	sell := suite.marketOrder(types.SideSell, "AAPL", "100")

	_, err := suite.portfolio.ExecuteOrder(&sell, d("150"), suite.now, false)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodePositionNotFound))
}

func (suite *PortfolioTestSuite) TestOversellRejected() {
	buy := suite.marketOrder(types.SideBuy, "AAPL", "100")
	_, err := suite.portfolio.ExecuteOrder(&buy, d("150"), suite.now, false)
	suite.Require().NoError(err)

	sell := suite.marketOrder(types.SideSell, "AAPL", "150")
	_, err = suite.portfolio.ExecuteOrder(&sell, d("160"), suite.now, false)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientShares))
}

func (suite *PortfolioTestSuite) TestOversellFlipsWhenShortsAllowed() {
	suite.portfolio.SetAllowShort(true)

	buy := suite.marketOrder(types.SideBuy, "AAPL", "100")
	_, err := suite.portfolio.ExecuteOrder(&buy, d("150"), suite.now, false)
	suite.Require().NoError(err)

	sell := suite.marketOrder(types.SideSell, "AAPL", "150")
	_, err = suite.portfolio.ExecuteOrder(&sell, d("160"), suite.now.Add(time.Hour), false)
	suite.Require().NoError(err)

	pos, ok := suite.portfolio.GetPosition("AAPL")
	suite.Require().True(ok)
	suite.True(pos.IsShort())
	suite.True(pos.Quantity.Equal(d("-50")))
	suite.True(pos.CostBasis.Equal(d("160")))

	// the long close produced one trade record
	trades := suite.portfolio.TradeHistory()
	suite.Require().Len(trades, 1)
	suite.True(trades[0].Quantity.Equal(d("100")))
}

func (suite *PortfolioTestSuite) TestShortRoundTrip() {
	suite.portfolio.SetAllowShort(true)

	sell := suite.marketOrder(types.SideSell, "TSLA", "100")
	_, err := suite.portfolio.ExecuteOrder(&sell, d("200"), suite.now, false)
	suite.Require().NoError(err)

	// proceeds 20000 minus 20 commission
	suite.True(suite.portfolio.Cash().Equal(d("119980")))

	pos, ok := suite.portfolio.GetPosition("TSLA")
	suite.Require().True(ok)
	suite.True(pos.IsShort())

	// cover at 180: gross (200-180)*100 = 2000, minus 18 exit and 20 entry commission
	cover := suite.marketOrder(types.SideBuy, "TSLA", "100")
	_, err = suite.portfolio.ExecuteOrder(&cover, d("180"), suite.now.Add(time.Hour), false)
	suite.Require().NoError(err)

	trades := suite.portfolio.TradeHistory()
	suite.Require().Len(trades, 1)
	suite.True(trades[0].RealizedPnL.Equal(d("1962")), "realized = %s", trades[0].RealizedPnL)
	suite.True(trades[0].IsWin)
}

func (suite *PortfolioTestSuite) TestPartialClose() {
	buy := suite.marketOrder(types.SideBuy, "AAPL", "100")
	_, err := suite.portfolio.ExecuteOrder(&buy, d("150"), suite.now, false)
	suite.Require().NoError(err)

	sell := suite.marketOrder(types.SideSell, "AAPL", "40")
	_, err = suite.portfolio.ExecuteOrder(&sell, d("160"), suite.now.Add(time.Hour), false)
	suite.Require().NoError(err)

	pos, ok := suite.portfolio.GetPosition("AAPL")
	suite.Require().True(ok)
	suite.True(pos.Quantity.Equal(d("60")))
	suite.True(pos.CostBasis.Equal(d("150")), "reduction must not touch the basis")
	// 40% of the 15 entry commission was charged on the close
	suite.True(pos.EntryCommission.Equal(d("9")))

	trades := suite.portfolio.TradeHistory()
	suite.Require().Len(trades, 1)
	// (160-150)*40 - 6.40 exit - 6 entry share
	suite.True(trades[0].RealizedPnL.Equal(d("387.6")), "realized = %s", trades[0].RealizedPnL)
}

// TestValueConservation: cash + position cost + outstanding entry commission
// always equals initial capital + net realized PnL.
func (suite *PortfolioTestSuite) TestValueConservation() {
	steps := []struct {
		side  types.Side
		ticker string
		qty   string
		price string
	}{
		{types.SideBuy, "AAPL", "100", "150"},
		{types.SideBuy, "MSFT", "50", "300"},
		{types.SideSell, "AAPL", "40", "160"},
		{types.SideBuy, "AAPL", "20", "155"},
		{types.SideSell, "MSFT", "50", "310"},
	}

	ts := suite.now
	for _, step := range steps {
		order := suite.marketOrder(step.side, step.ticker, step.qty)
		_, err := suite.portfolio.ExecuteOrder(&order, d(step.price), ts, false)
		suite.Require().NoError(err)
		ts = ts.Add(time.Hour)
	}

	held := decimal.Zero
	for _, pos := range suite.portfolio.Positions() {
		held = held.Add(pos.TotalCost()).Add(pos.EntryCommission)
	}

	lhs := suite.portfolio.Cash().Add(held)
	rhs := d("100000").Add(suite.portfolio.RealizedPnL())
	suite.True(lhs.Equal(rhs), "conservation violated: %s != %s", lhs, rhs)
}

func (suite *PortfolioTestSuite) TestRiskChecksBlockBeforeMutation() {
	limits := risk.Limits{
		MaxPositionSize:        0.10,
		MaxSectorConcentration: 1.0,
		MaxDrawdown:            1.0,
		MinCashReserve:         0.0,
		MaxLeverage:            1.0,
	}

	p, err := New(d("100000"), d("0.001"), limits, nil)
	suite.Require().NoError(err)

	// 100 shares at 150 = 15% of portfolio, above the 10% cap
	buy := suite.marketOrder(types.SideBuy, "AAPL", "100")
	_, err = p.ExecuteOrder(&buy, d("150"), suite.now, true)
	suite.Require().Error(err)
	suite.True(errors.IsRiskRejection(err))
	suite.True(p.Cash().Equal(d("100000")))

	// same order with checks off goes through
	buy2 := suite.marketOrder(types.SideBuy, "AAPL", "100")
	_, err = p.ExecuteOrder(&buy2, d("150"), suite.now, false)
	suite.NoError(err)
}

func (suite *PortfolioTestSuite) TestCashReserveCheck() {
	limits := risk.Limits{
		MaxPositionSize:        1.0,
		MaxSectorConcentration: 1.0,
		MaxDrawdown:            1.0,
		MinCashReserve:         0.50,
		MaxLeverage:            1.0,
	}

	p, err := New(d("100000"), decimal.Zero, limits, nil)
	suite.Require().NoError(err)

	buy := suite.marketOrder(types.SideBuy, "AAPL", "400")
	_, err = p.ExecuteOrder(&buy, d("150"), suite.now, true)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeRiskCashReserve))
}

func (suite *PortfolioTestSuite) TestLimitOrderTrigger() {
	limit := suite.marketOrder(types.SideBuy, "AAPL", "100")
	limit.Type = types.OrderTypeLimit
	limit.LimitPrice = optional.Some(d("150"))

	_, err := suite.portfolio.ExecuteOrder(&limit, d("151"), suite.now, false)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeOrderNotTriggered))
	suite.Equal(types.OrderStatusPending, limit.Status)

	_, err = suite.portfolio.ExecuteOrder(&limit, d("149"), suite.now, false)
	suite.NoError(err)
	suite.Equal(types.OrderStatusFilled, limit.Status)
}

func (suite *PortfolioTestSuite) TestEquityCurveNonDecreasingTimestamps() {
	ts := suite.now
	for i, price := range []string{"150", "155", "152", "158"} {
		order := suite.marketOrder(types.SideBuy, "AAPL", "10")
		_, err := suite.portfolio.ExecuteOrder(&order, d(price), ts.Add(time.Duration(i)*time.Hour), false)
		suite.Require().NoError(err)
	}

	curve := suite.portfolio.EquityCurve()
	suite.Require().Len(curve, 4)

	for i := 1; i < len(curve); i++ {
		suite.False(curve[i].Timestamp.Before(curve[i-1].Timestamp))
	}
}

func (suite *PortfolioTestSuite) TestStopLossTriggers() {
	buy := suite.marketOrder(types.SideBuy, "AAPL", "100")
	_, err := suite.portfolio.ExecuteOrder(&buy, d("100"), suite.now, false)
	suite.Require().NoError(err)
	suite.True(suite.portfolio.SetProtectiveLevels("AAPL", d("95"), d("110")))

	// stop not reached
	orders := suite.portfolio.CheckStopLossTriggers(map[string]decimal.Decimal{"AAPL": d("96")})
	suite.Empty(orders)

	// stop breached: synthetic sell for the whole position, nothing executed
	orders = suite.portfolio.CheckStopLossTriggers(map[string]decimal.Decimal{"AAPL": d("95")})
	suite.Require().Len(orders, 1)
	suite.Equal(types.SideSell, orders[0].Side)
	suite.True(orders[0].Quantity.Equal(d("100")))
	suite.Equal(types.OrderReasonStopLoss, orders[0].Reason.Reason)

	pos, ok := suite.portfolio.GetPosition("AAPL")
	suite.Require().True(ok)
	suite.True(pos.Quantity.Equal(d("100")), "scan must not execute")

	// take profit
	orders = suite.portfolio.CheckTakeProfitTriggers(map[string]decimal.Decimal{"AAPL": d("110")})
	suite.Require().Len(orders, 1)
	suite.Equal(types.OrderReasonTakeProfit, orders[0].Reason.Reason)

	orders = suite.portfolio.CheckTakeProfitTriggers(map[string]decimal.Decimal{"AAPL": d("109")})
	suite.Empty(orders)
}

func (suite *PortfolioTestSuite) TestSnapshotRoundTrip() {
	buy := suite.marketOrder(types.SideBuy, "AAPL", "100")
	_, err := suite.portfolio.ExecuteOrder(&buy, d("150"), suite.now, false)
	suite.Require().NoError(err)

	sell := suite.marketOrder(types.SideSell, "AAPL", "40")
	_, err = suite.portfolio.ExecuteOrder(&sell, d("160"), suite.now.Add(time.Hour), false)
	suite.Require().NoError(err)

	data, err := suite.portfolio.MarshalJSON()
	suite.Require().NoError(err)

	restored, err := FromJSON(data, risk.DefaultLimits(), nil)
	suite.Require().NoError(err)

	suite.True(restored.Cash().Equal(suite.portfolio.Cash()))
	suite.True(restored.PeakValue().Equal(suite.portfolio.PeakValue()))

	original, ok := suite.portfolio.GetPosition("AAPL")
	suite.Require().True(ok)

	copied, ok := restored.GetPosition("AAPL")
	suite.Require().True(ok)
	suite.True(copied.Quantity.Equal(original.Quantity))
	suite.True(copied.CostBasis.Equal(original.CostBasis))
	suite.True(copied.EntryCommission.Equal(original.EntryCommission))

	originalTrades := suite.portfolio.TradeHistory()
	restoredTrades := restored.TradeHistory()
	suite.Require().Len(restoredTrades, len(originalTrades))
	suite.True(restoredTrades[0].RealizedPnL.Equal(originalTrades[0].RealizedPnL))

	suite.Len(restored.EquityCurve(), len(suite.portfolio.EquityCurve()))
}

func (suite *PortfolioTestSuite) TestCorruptSnapshotRejected() {
	_, err := FromJSON([]byte(`{"initial_capital":"0"}`), risk.DefaultLimits(), nil)
	suite.Error(err)

	_, err = FromJSON([]byte(`not json`), risk.DefaultLimits(), nil)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeSnapshotCorrupt))
}

func (suite *PortfolioTestSuite) TestConcurrentAccess() {
	buy := suite.marketOrder(types.SideBuy, "AAPL", "100")
	_, err := suite.portfolio.ExecuteOrder(&buy, d("150"), suite.now, false)
	suite.Require().NoError(err)

	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				_ = suite.portfolio.Cash()
				_ = suite.portfolio.Value()
				_ = suite.portfolio.Positions()
				_ = suite.portfolio.TradeHistory()
				suite.portfolio.MarkToMarket(map[string]decimal.Decimal{"AAPL": d("151")}, suite.now.Add(time.Hour))
			}
		}()
	}

	wg.Wait()

	pos, ok := suite.portfolio.GetPosition("AAPL")
	suite.Require().True(ok)
	suite.True(pos.Quantity.Equal(d("100")))
}
