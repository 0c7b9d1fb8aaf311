package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/karnies/moomanager/internal/models"
)

func TestSettleLosingCycle(t *testing.T) {
	svc, _, _ := setupTest(t)

	stock, err := svc.CreateStock(CreateStockInput{Symbol: "TQQQ", SeedMoney: 10000})
	assert.NoError(t, err)

	day1 := time.Date(2026, time.June, 1, 16, 0, 0, 0, time.UTC)
	day10 := time.Date(2026, time.June, 10, 16, 0, 0, 0, time.UTC)

	record := func(date time.Time, side string, price float64, qty int, fee float64) {
		_, err := svc.RecordTrade(RecordTradeInput{
			StockID: stock.ID, TradeDate: date, Side: side, Price: price, Quantity: qty, Fee: fee,
		})
		assert.NoError(t, err)
	}
	record(day1, models.SideBuy, 50, 10, 1)
	record(day1, models.SideBuy, 45, 10, 1)
	record(day10, models.SideSell, 60, 5, 1)

	settlement, err := svc.Settle(stock.ID)
	assert.NoError(t, err)

	// 300 sold - 950 bought - 3 fees
	assert.InDelta(t, -653, settlement.Profit, 1e-9)
	assert.InDelta(t, 950, settlement.TotalBuyAmount, 1e-9)
	assert.InDelta(t, 300, settlement.TotalSellAmount, 1e-9)
	assert.InDelta(t, 3, settlement.TotalFee, 1e-9)
	assert.InDelta(t, -653.0/950*100, settlement.ProfitRate, 1e-9)
	assert.Equal(t, 2, settlement.BuyCount)
	assert.Equal(t, 1, settlement.SellCount)
	assert.Equal(t, 9, settlement.TradingDays)
	assert.InDelta(t, 9.5, settlement.SeedUsageRate, 1e-9)

	// The record snapshots the cycle parameters.
	assert.Equal(t, stock.ID, settlement.StockID)
	assert.Equal(t, "TQQQ", settlement.Symbol)
	assert.Equal(t, models.VersionV30, settlement.Version)
	assert.Equal(t, 10000.0, settlement.SeedMoney)
	assert.Equal(t, 20, settlement.Divisions)
	assert.Equal(t, day1.Unix(), settlement.StartDate.Unix())
	assert.Equal(t, day10.Unix(), settlement.EndDate.Unix())

	// Every trade moves into the closed cycle.
	trades, err := svc.ListTrades(stock.ID, nil, nil)
	assert.NoError(t, err)
	for _, tr := range trades {
		assert.True(t, tr.Settled)
	}

	reloaded, err := svc.GetStock(stock.ID)
	assert.NoError(t, err)
	assert.False(t, reloaded.IsActive)
	assert.InDelta(t, -653, reloaded.AccumulatedProfit, 1e-9)
	// A losing cycle floors the next per-trade amount at seed/divisions.
	assert.InDelta(t, 500, reloaded.CurrentBuyAmount, 1e-9)
}

func TestSettleProfitableCycleCompounds(t *testing.T) {
	svc, _, db := setupTest(t)

	stock, err := svc.CreateStock(CreateStockInput{Symbol: "TQQQ", SeedMoney: 10000})
	assert.NoError(t, err)

	_, err = svc.RecordTrade(RecordTradeInput{
		StockID: stock.ID, Side: models.SideBuy, Price: 50, Quantity: 10,
	})
	assert.NoError(t, err)
	// Full exit at the limit target. The sell itself already compounds
	// (profit 100, +2.5); settlement compounds on top of that.
	_, err = svc.RecordTrade(RecordTradeInput{
		StockID: stock.ID, Side: models.SideSell, Price: 60, Quantity: 10,
	})
	assert.NoError(t, err)

	reloaded, err := svc.GetStock(stock.ID)
	assert.NoError(t, err)
	assert.InDelta(t, 502.5, reloaded.CurrentBuyAmount, 1e-9)

	settlement, err := svc.Settle(stock.ID)
	assert.NoError(t, err)
	assert.InDelta(t, 100, settlement.Profit, 1e-9)
	assert.InDelta(t, 502.5, settlement.BuyAmountPerTrade, 1e-9)

	reloaded, err = svc.GetStock(stock.ID)
	assert.NoError(t, err)
	assert.InDelta(t, 505, reloaded.CurrentBuyAmount, 1e-9)
	assert.InDelta(t, 100, reloaded.AccumulatedProfit, 1e-9)

	var count int64
	db.Model(&models.Settlement{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestSettleWithoutOpenTrades(t *testing.T) {
	svc, _, _ := setupTest(t)

	stock, err := svc.CreateStock(CreateStockInput{Symbol: "TQQQ", SeedMoney: 10000})
	assert.NoError(t, err)

	_, err = svc.Settle(stock.ID)
	assert.ErrorIs(t, err, ErrNoUnsettledTrades)

	// A second settlement finds nothing left either.
	_, err = svc.RecordTrade(RecordTradeInput{
		StockID: stock.ID, Side: models.SideBuy, Price: 50, Quantity: 10,
	})
	assert.NoError(t, err)
	_, err = svc.Settle(stock.ID)
	assert.NoError(t, err)
	_, err = svc.Settle(stock.ID)
	assert.ErrorIs(t, err, ErrNoUnsettledTrades)
}

func TestSettleUnknownStock(t *testing.T) {
	svc, _, _ := setupTest(t)

	_, err := svc.Settle(99)
	assert.ErrorIs(t, err, ErrStockNotFound)
}

func TestSettlementHistoryTotals(t *testing.T) {
	svc, _, _ := setupTest(t)

	for _, symbol := range []string{"TQQQ", "SOXL"} {
		stock, err := svc.CreateStock(CreateStockInput{Symbol: symbol, SeedMoney: 10000})
		assert.NoError(t, err)
		_, err = svc.RecordTrade(RecordTradeInput{
			StockID: stock.ID, Side: models.SideBuy, Price: 50, Quantity: 10, Fee: 1,
		})
		assert.NoError(t, err)
		_, err = svc.RecordTrade(RecordTradeInput{
			StockID: stock.ID, Side: models.SideSell, Price: 60, Quantity: 10, Fee: 1,
		})
		assert.NoError(t, err)
		_, err = svc.Settle(stock.ID)
		assert.NoError(t, err)
	}

	settlements, totals, err := svc.SettlementHistory()
	assert.NoError(t, err)
	assert.Len(t, settlements, 2)
	assert.Equal(t, 2, totals.Count)
	// Each cycle: 600 - 500 - 2 fees
	assert.InDelta(t, 196, totals.TotalProfit, 1e-9)
	assert.InDelta(t, 4, totals.TotalFee, 1e-9)
}
