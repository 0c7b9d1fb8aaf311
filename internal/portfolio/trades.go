package portfolio

import (
	"fmt"
	"time"

	"github.com/karnies/moomanager/internal/ledger"
	"github.com/karnies/moomanager/internal/models"
	"github.com/karnies/moomanager/internal/strategy"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RecordTradeInput carries one trade event to append to a stock's history.
type RecordTradeInput struct {
	StockID   uint      `json:"stock_id"`
	TradeDate time.Time `json:"trade_date"`
	Side      string    `json:"side"`
	OrderType string    `json:"order_type"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	Fee       float64   `json:"fee"`
}

// RecordTrade validates and appends a trade event. The notional is computed
// here, never taken from the caller. A profitable sell immediately
// compounds the stock's per-trade amount when the stock has a compound
// rate, without waiting for settlement.
func (s *Service) RecordTrade(in RecordTradeInput) (*models.Trade, error) {
	if in.Price <= 0 {
		return nil, ErrInvalidPrice
	}
	if in.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if in.Fee < 0 {
		return nil, ErrInvalidFee
	}
	if in.Side != models.SideBuy && in.Side != models.SideSell {
		return nil, ErrInvalidSide
	}
	if in.OrderType == "" {
		in.OrderType = models.OrderLOC
	}
	if in.OrderType != models.OrderLOC && in.OrderType != models.OrderLimit && in.OrderType != models.OrderMOC {
		return nil, ErrInvalidOrderType
	}
	if in.TradeDate.IsZero() {
		in.TradeDate = time.Now()
	}

	stock, err := s.GetStock(in.StockID)
	if err != nil {
		return nil, err
	}

	trade := models.Trade{
		StockID:   stock.ID,
		TradeDate: in.TradeDate,
		Side:      in.Side,
		OrderType: in.OrderType,
		Price:     in.Price,
		Quantity:  in.Quantity,
		Fee:       in.Fee,
		Amount:    in.Price * float64(in.Quantity),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&trade).Error; err != nil {
			return fmt.Errorf("failed to save trade: %w", err)
		}

		if trade.IsBuy() || stock.CompoundRate <= 0 {
			return nil
		}

		// Realized profit of this single sell at the cycle's lifetime
		// average cost. The average depends only on buys, so including the
		// new trade in the aggregate is safe.
		trades, err := s.unsettledTrades(tx, stock.ID)
		if err != nil {
			return err
		}
		agg := ledger.Compute(trades)
		profit := trade.Amount - agg.AveragePrice*float64(trade.Quantity) - trade.Fee
		if profit <= 0 {
			return nil
		}

		stock.CurrentBuyAmount = strategy.CompoundedBuyAmount(
			stock.CurrentBuyAmount, profit, stock.CompoundRate, stock.SeedMoney, stock.Divisions)
		if err := tx.Model(stock).Update("current_buy_amount", stock.CurrentBuyAmount).Error; err != nil {
			return fmt.Errorf("failed to compound buy amount: %w", err)
		}

		s.logger.Info("Compounded per-trade amount after profitable sell",
			zap.String("symbol", stock.Symbol),
			zap.Float64("profit", profit),
			zap.Float64("buy_amount", stock.CurrentBuyAmount))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &trade, nil
}

// ListTrades returns a stock's trades sorted by trade date, optionally
// restricted to a date range.
func (s *Service) ListTrades(stockID uint, from, to *time.Time) ([]models.Trade, error) {
	q := s.db.Where("stock_id = ?", stockID).Order("trade_date")
	if from != nil {
		q = q.Where("trade_date >= ?", *from)
	}
	if to != nil {
		q = q.Where("trade_date <= ?", *to)
	}

	var trades []models.Trade
	if err := q.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

// unsettledTrades loads the open cycle's trades inside the given handle
// (which may be a transaction).
func (s *Service) unsettledTrades(tx *gorm.DB, stockID uint) ([]models.Trade, error) {
	var trades []models.Trade
	err := tx.Where("stock_id = ? AND settled = ?", stockID, false).Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load unsettled trades: %w", err)
	}
	return trades, nil
}
