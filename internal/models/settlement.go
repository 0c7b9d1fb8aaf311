package models

import (
	"time"

	"gorm.io/gorm"
)

// Settlement is the permanent record of one closed trading cycle. It
// snapshots the stock's parameters at close time and is never mutated
// afterwards; later edits to historical trades do not flow back into it.
type Settlement struct {
	gorm.Model
	StockID           uint      `gorm:"index" json:"stock_id"`
	Symbol            string    `json:"symbol"`
	Nickname          string    `json:"nickname"`
	Version           string    `json:"version"`
	StartDate         time.Time `json:"start_date"`
	EndDate           time.Time `json:"end_date"`
	SeedMoney         float64   `json:"seed_money"`
	Divisions         int       `json:"divisions"`
	BuyAmountPerTrade float64   `json:"buy_amount_per_trade"`
	TotalBuyAmount    float64   `json:"total_buy_amount"`
	TotalSellAmount   float64   `json:"total_sell_amount"`
	TotalFee          float64   `json:"total_fee"`
	Profit            float64   `json:"profit"`
	ProfitRate        float64   `json:"profit_rate"` // percent of total buy amount
	BuyCount          int       `json:"buy_count"`
	SellCount         int       `json:"sell_count"`
	TradingDays       int       `json:"trading_days"` // calendar days between first and last trade
	SeedUsageRate     float64   `json:"seed_usage_rate"`
}

// DisplayName returns "SYMBOL (nickname)" when a nickname was recorded.
func (s *Settlement) DisplayName() string {
	if s.Nickname != "" {
		return s.Symbol + " (" + s.Nickname + ")"
	}
	return s.Symbol
}
