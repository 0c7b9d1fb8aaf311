// Package ledger aggregates the unsettled trade events of one stock into
// its current holdings, cost basis and realized profit. The aggregation is
// commutative over the input order and is recomputed from scratch on every
// read; trades are few enough per cycle that an O(n) walk beats keeping an
// incremental balance correct under out-of-order edits.
package ledger

import "github.com/karnies/moomanager/internal/models"

// Aggregate is the derived position of one open cycle.
type Aggregate struct {
	BoughtQuantity  int
	SoldQuantity    int
	CurrentQuantity int

	BoughtAmount float64 // sum of buy notionals
	SoldAmount   float64 // sum of sell notionals
	BuyFee       float64
	SellFee      float64

	// AveragePrice is the weighted average over the cycle's lifetime buys,
	// shared by currently held and already sold shares alike.
	AveragePrice float64
	// HoldingAmount is the cost basis of the shares still held.
	HoldingAmount float64
	// RealizedProfit is the profit already taken on shares sold within the
	// open cycle. Buy-side fees are excluded here; they only appear in the
	// settlement fee totals.
	RealizedProfit float64
}

// Compute walks the trades in any order and derives the open-cycle
// position. Callers pass only unsettled trades; settled history belongs to
// closed cycles.
func Compute(trades []models.Trade) Aggregate {
	var agg Aggregate

	for _, t := range trades {
		if t.IsBuy() {
			agg.BoughtQuantity += t.Quantity
			agg.BoughtAmount += t.Amount
			agg.BuyFee += t.Fee
		} else {
			agg.SoldQuantity += t.Quantity
			agg.SoldAmount += t.Amount
			agg.SellFee += t.Fee
		}
	}

	agg.CurrentQuantity = agg.BoughtQuantity - agg.SoldQuantity

	lifetime := agg.CurrentQuantity + agg.SoldQuantity
	if agg.BoughtAmount > 0 && lifetime > 0 {
		agg.AveragePrice = agg.BoughtAmount / float64(lifetime)
	}

	agg.HoldingAmount = agg.AveragePrice * float64(agg.CurrentQuantity)
	agg.RealizedProfit = agg.SoldAmount - agg.AveragePrice*float64(agg.SoldQuantity) - agg.SellFee

	return agg
}
