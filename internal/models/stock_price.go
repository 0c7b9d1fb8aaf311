package models

import (
	"time"

	"gorm.io/gorm"
)

// StockPrice is the cached last-known quote and RSI reading for a symbol.
// There is exactly one row per symbol, upserted on refresh.
type StockPrice struct {
	gorm.Model
	Symbol         string     `gorm:"uniqueIndex;not null"`
	ClosePrice     float64    // previous-session close
	ClosePriceDate *time.Time // nil until the first successful fetch
	RsiValue       *float64
	RsiRecommend   *float64 // advisory bucket: 30, 50 or 70
	RsiChange      *float64
}
