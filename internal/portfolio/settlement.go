package portfolio

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/karnies/moomanager/internal/marketcal"
	"github.com/karnies/moomanager/internal/models"
	"github.com/karnies/moomanager/internal/strategy"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNoUnsettledTrades is returned when settlement is requested for a stock
// whose cycle has no open trades. Nothing is mutated in that case.
var ErrNoUnsettledTrades = errors.New("no unsettled trades to settle")

// Settle closes the stock's open cycle: it snapshots the cycle into an
// immutable settlement record, marks every included trade settled, adds the
// profit to the stock's accumulated total, deactivates the stock and, when
// a compound rate is set, resizes the next cycle's per-trade amount.
// Everything happens in one transaction; a failure leaves no partial
// settlement behind.
func (s *Service) Settle(stockID uint) (*models.Settlement, error) {
	var settlement *models.Settlement

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var stock models.Stock
		if err := tx.First(&stock, stockID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrStockNotFound
			}
			return err
		}

		trades, err := s.unsettledTrades(tx, stock.ID)
		if err != nil {
			return err
		}
		if len(trades) == 0 {
			return ErrNoUnsettledTrades
		}

		var totalBuy, totalSell, totalFee float64
		var buyCount, sellCount int
		startDate, endDate := trades[0].TradeDate, trades[0].TradeDate
		for _, t := range trades {
			totalFee += t.Fee
			if t.IsBuy() {
				totalBuy += t.Amount
				buyCount++
			} else {
				totalSell += t.Amount
				sellCount++
			}
			if t.TradeDate.Before(startDate) {
				startDate = t.TradeDate
			}
			if t.TradeDate.After(endDate) {
				endDate = t.TradeDate
			}
		}

		profit := totalSell - totalBuy - totalFee
		profitRate := 0.0
		if totalBuy > 0 {
			profitRate = profit / totalBuy * 100
		}

		settlement = &models.Settlement{
			StockID:           stock.ID,
			Symbol:            stock.Symbol,
			Nickname:          stock.Nickname,
			Version:           stock.Version,
			StartDate:         startDate,
			EndDate:           endDate,
			SeedMoney:         stock.SeedMoney,
			Divisions:         stock.Divisions,
			BuyAmountPerTrade: stock.CurrentBuyAmount,
			TotalBuyAmount:    totalBuy,
			TotalSellAmount:   totalSell,
			TotalFee:          totalFee,
			Profit:            profit,
			ProfitRate:        profitRate,
			BuyCount:          buyCount,
			SellCount:         sellCount,
			TradingDays:       calendarDays(startDate, endDate),
			SeedUsageRate:     strategy.SeedUsageRate(totalBuy, stock.SeedMoney),
		}
		if err := tx.Create(settlement).Error; err != nil {
			return fmt.Errorf("failed to create settlement: %w", err)
		}

		err = tx.Model(&models.Trade{}).
			Where("stock_id = ? AND settled = ?", stock.ID, false).
			Update("settled", true).Error
		if err != nil {
			return fmt.Errorf("failed to mark trades settled: %w", err)
		}

		updates := map[string]interface{}{
			"accumulated_profit": stock.AccumulatedProfit + profit,
			"is_active":          false,
		}
		if stock.CompoundRate > 0 {
			updates["current_buy_amount"] = strategy.CompoundedBuyAmount(
				stock.CurrentBuyAmount, profit, stock.CompoundRate, stock.SeedMoney, stock.Divisions)
		}
		if err := tx.Model(&stock).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update stock after settlement: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Settled cycle",
		zap.String("symbol", settlement.Symbol),
		zap.Float64("profit", settlement.Profit),
		zap.Int("trades", settlement.BuyCount+settlement.SellCount))
	return settlement, nil
}

// ListSettlements returns all settlement records, most recent first.
func (s *Service) ListSettlements() ([]models.Settlement, error) {
	var settlements []models.Settlement
	if err := s.db.Order("created_at desc").Find(&settlements).Error; err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	return settlements, nil
}

// SettlementTotals are the portfolio-wide sums over all closed cycles.
type SettlementTotals struct {
	Count       int     `json:"count"`
	TotalProfit float64 `json:"total_profit"`
	TotalFee    float64 `json:"total_fee"`
}

// SettlementHistory returns the settlement list together with its totals.
func (s *Service) SettlementHistory() ([]models.Settlement, SettlementTotals, error) {
	settlements, err := s.ListSettlements()
	if err != nil {
		return nil, SettlementTotals{}, err
	}

	totals := SettlementTotals{Count: len(settlements)}
	for _, st := range settlements {
		totals.TotalProfit += st.Profit
		totals.TotalFee += st.TotalFee
	}
	return settlements, totals, nil
}

// calendarDays is the whole-day span between two trade dates, evaluated on
// exchange-local day boundaries. Rounded to absorb DST-shortened days.
func calendarDays(start, end time.Time) int {
	span := marketcal.StartOfDay(end).Sub(marketcal.StartOfDay(start))
	return int(math.Round(span.Hours() / 24))
}
