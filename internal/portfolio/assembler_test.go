package portfolio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/karnies/moomanager/internal/models"
	"github.com/karnies/moomanager/internal/strategy"
)

func TestBuildPortfolioSingleStock(t *testing.T) {
	svc, mockClient, db := setupTest(t)

	stock, err := svc.CreateStock(CreateStockInput{Symbol: "TQQQ", SeedMoney: 10000})
	assert.NoError(t, err)
	_, err = svc.RecordTrade(RecordTradeInput{
		StockID: stock.ID, Side: models.SideBuy, Price: 50, Quantity: 10, Fee: 1,
	})
	assert.NoError(t, err)
	seedFreshPrice(t, db, "TQQQ", 55)

	summary, err := svc.BuildPortfolio(context.Background(), Options{})
	assert.NoError(t, err)
	require.Len(t, summary.Stocks, 1)

	st := summary.Stocks[0]
	assert.Equal(t, stock.ID, st.StockID)
	assert.Equal(t, 10, st.TotalQuantity)
	assert.InDelta(t, 50, st.AveragePrice, 1e-9)
	assert.InDelta(t, 500, st.HoldingAmount, 1e-9)
	assert.InDelta(t, 55, st.CurrentPrice, 1e-9)
	assert.InDelta(t, 550, st.Valuation, 1e-9)
	assert.InDelta(t, 50, st.UnrealizedProfit, 1e-9)
	assert.InDelta(t, 10, st.UnrealizedProfitRate, 1e-9)

	// One tranche deployed out of 20.
	assert.InDelta(t, 1.0, st.Stage, 1e-9)
	assert.InDelta(t, 13.5, st.StarPercent, 1e-9)
	assert.True(t, st.FirstHalf)
	assert.False(t, st.QuarterMode)

	require.Len(t, st.BuyGuide, 2)
	assert.Equal(t, strategy.OrderKindStar, st.BuyGuide[0].Kind)
	require.Len(t, st.SellGuide, 2)

	// The cache entry is fresh, so no fetch went out.
	mockClient.AssertNotCalled(t, "GetQuote", mock.Anything, mock.Anything)
}

func TestBuildPortfolioRollup(t *testing.T) {
	svc, _, db := setupTest(t)

	a, err := svc.CreateStock(CreateStockInput{Symbol: "TQQQ", SeedMoney: 10000})
	assert.NoError(t, err)
	_, err = svc.RecordTrade(RecordTradeInput{
		StockID: a.ID, Side: models.SideBuy, Price: 50, Quantity: 10,
	})
	assert.NoError(t, err)
	seedFreshPrice(t, db, "TQQQ", 55)

	b, err := svc.CreateStock(CreateStockInput{Symbol: "SOXL", SeedMoney: 5000})
	assert.NoError(t, err)
	_, err = svc.RecordTrade(RecordTradeInput{
		StockID: b.ID, Side: models.SideBuy, Price: 30, Quantity: 4,
	})
	assert.NoError(t, err)
	seedFreshPrice(t, db, "SOXL", 33)

	summary, err := svc.BuildPortfolio(context.Background(), Options{})
	assert.NoError(t, err)
	require.Len(t, summary.Stocks, 2)

	// 500 + 120 at cost, 550 + 132 at market.
	assert.InDelta(t, 620, summary.TotalHoldingAmount, 1e-9)
	assert.InDelta(t, 682, summary.TotalValuation, 1e-9)
	assert.InDelta(t, 62, summary.TotalUnrealizedProfit, 1e-9)
	assert.InDelta(t, 10, summary.TotalProfitRate, 1e-9)
	assert.False(t, summary.UpdatedAt.IsZero())
}

func TestBuildPortfolioSkipsInactive(t *testing.T) {
	svc, _, db := setupTest(t)

	stock, err := svc.CreateStock(CreateStockInput{Symbol: "TQQQ", SeedMoney: 10000})
	assert.NoError(t, err)
	db.Model(stock).Update("is_active", false)

	summary, err := svc.BuildPortfolio(context.Background(), Options{})
	assert.NoError(t, err)
	assert.Empty(t, summary.Stocks)
	assert.Zero(t, summary.TotalHoldingAmount)
}

func TestBuildPortfolioIncludeFee(t *testing.T) {
	svc, _, db := setupTest(t)

	stock, err := svc.CreateStock(CreateStockInput{Symbol: "TQQQ", SeedMoney: 10000})
	assert.NoError(t, err)
	_, err = svc.RecordTrade(RecordTradeInput{
		StockID: stock.ID, Side: models.SideBuy, Price: 50, Quantity: 10, Fee: 1,
	})
	assert.NoError(t, err)
	seedFreshPrice(t, db, "TQQQ", 55)

	summary, err := svc.BuildPortfolio(context.Background(), Options{IncludeFee: true})
	assert.NoError(t, err)
	require.Len(t, summary.Stocks, 1)

	st := summary.Stocks[0]
	// Break-even basis: (500 + 1) / 10 per share over 10 held shares.
	assert.InDelta(t, 501, st.HoldingAmount, 1e-9)
	assert.InDelta(t, 49, st.UnrealizedProfit, 1e-9)

	// The regime never moves with the fee toggle.
	assert.InDelta(t, 1.0, st.Stage, 1e-9)
}

func TestBuildPortfolioSettledTradesExcluded(t *testing.T) {
	svc, _, db := setupTest(t)

	stock, err := svc.CreateStock(CreateStockInput{Symbol: "TQQQ", SeedMoney: 10000})
	assert.NoError(t, err)
	_, err = svc.RecordTrade(RecordTradeInput{
		StockID: stock.ID, Side: models.SideBuy, Price: 50, Quantity: 10,
	})
	assert.NoError(t, err)
	_, err = svc.Settle(stock.ID)
	assert.NoError(t, err)
	db.Model(stock).Update("is_active", true)
	seedFreshPrice(t, db, "TQQQ", 55)

	summary, err := svc.BuildPortfolio(context.Background(), Options{})
	assert.NoError(t, err)
	require.Len(t, summary.Stocks, 1)

	// The reactivated stock starts its next cycle empty.
	assert.Zero(t, summary.Stocks[0].TotalQuantity)
	assert.Zero(t, summary.Stocks[0].HoldingAmount)
	assert.Zero(t, summary.Stocks[0].Stage)
}
