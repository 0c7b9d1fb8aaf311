// Package strategy implements the staged-accumulation ("infinite buying")
// calculation rules: the stage metric, the regime split, buy/sell guide
// orders and profit compounding. Every function is pure and operates on
// explicit numeric inputs.
package strategy

import "math"

// InitialBuyAmount is the uncompounded per-trade amount: one tranche of the
// seed.
func InitialBuyAmount(seedMoney float64, divisions int) float64 {
	if divisions <= 0 {
		return 0
	}
	return seedMoney / float64(divisions)
}

// StageMetric converts the running invested amount into tranche units,
// rounded up to 2 decimal places. Returns 0 when the per-trade amount is
// not positive.
func StageMetric(investedAmount, buyAmountPerTrade float64) float64 {
	if buyAmountPerTrade <= 0 {
		return 0
	}
	raw := investedAmount / buyAmountPerTrade
	return math.Ceil(raw*100) / 100
}

// StarPercent is the stage-scaled buy/sell offset:
// sellTarget% - (sellTarget% / (divisions/2)) * stage.
// It starts at the sell target and decays linearly to zero at the halfway
// stage, going negative in the second half.
func StarPercent(sellTargetPercent float64, divisions int, stage float64) float64 {
	half := float64(divisions) / 2
	if half <= 0 {
		return sellTargetPercent
	}
	return sellTargetPercent - (sellTargetPercent/half)*stage
}

// IsFirstHalf reports whether fewer than half of the tranches have been
// deployed.
func IsFirstHalf(stage float64, divisions int) bool {
	return stage < float64(divisions)/2
}

// IsQuarterMode reports whether the position sits in the final partial
// tranche (divisions-1 < stage < divisions). In this band normal buying is
// suspended and only quarter-liquidation selling is guided.
func IsQuarterMode(stage float64, divisions int) bool {
	return stage > float64(divisions-1) && stage < float64(divisions)
}

// CompoundedBuyAmount applies profit compounding to the per-trade amount:
// a share of the realized profit, spread over all tranches, is added to the
// current amount. The result never drops below the uncompounded tranche
// size, so a losing cycle cannot shrink the next cycle's buys.
func CompoundedBuyAmount(currentBuyAmount, profit, compoundRate, seedMoney float64, divisions int) float64 {
	if divisions <= 0 {
		return currentBuyAmount
	}
	compounded := currentBuyAmount + (profit*(compoundRate/100))/float64(divisions)
	return math.Max(compounded, seedMoney/float64(divisions))
}

// BreakEvenPrice is the per-share price at which selling the whole position
// recovers the buy notional plus buy-side fees.
func BreakEvenPrice(totalBuyAmount, totalFee float64, totalQuantity int) float64 {
	if totalQuantity <= 0 {
		return 0
	}
	return (totalBuyAmount + totalFee) / float64(totalQuantity)
}

// SeedUsageRate is the share of the seed already deployed, in percent.
func SeedUsageRate(totalBuyAmount, seedMoney float64) float64 {
	if seedMoney <= 0 {
		return 0
	}
	return totalBuyAmount / seedMoney * 100
}
