package models

import (
	"time"

	"gorm.io/gorm"
)

// Trade sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order styles. Informational only; they do not affect any calculation.
const (
	OrderLOC   = "LOC"   // limit on close
	OrderLimit = "LIMIT" // plain limit order
	OrderMOC   = "MOC"   // market on close
)

// Trade is one buy or sell event of a stock. Rows are append-only: after
// creation only the Settled flag changes (false -> true, exactly once, at
// settlement), plus the occasional correction edit by the user.
type Trade struct {
	gorm.Model
	StockID   uint      `gorm:"index;not null" json:"stock_id"`
	TradeDate time.Time `json:"trade_date"`
	Side      string    `json:"side"`
	OrderType string    `json:"order_type"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	Fee       float64   `json:"fee"`
	Amount    float64   `json:"amount"` // price * quantity, computed at creation
	Settled   bool      `gorm:"default:false;index" json:"settled"`
}

// IsBuy reports whether the trade is on the buy side.
func (t *Trade) IsBuy() bool {
	return t.Side == SideBuy
}

// NetAmount is the cash effect of the trade: buys cost notional plus fee,
// sells return notional minus fee.
func (t *Trade) NetAmount() float64 {
	if t.IsBuy() {
		return t.Amount + t.Fee
	}
	return t.Amount - t.Fee
}
