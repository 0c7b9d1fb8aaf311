package strategy

// Order kinds appearing in buy/sell guides.
const (
	OrderKindStar    = "STAR"    // at avg cost plus the star offset
	OrderKindAverage = "AVERAGE" // at plain average cost
	OrderKindLimit   = "LIMIT"   // at the full sell target
	OrderKindMarket  = "MARKET"  // quarter-mode liquidation, price left 0
)

// GuideOrder is one suggested order. Market orders carry price 0.
type GuideOrder struct {
	Kind     string  `json:"kind"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// GuideInput carries everything the guide computation needs.
type GuideInput struct {
	AveragePrice      float64 // lifetime average cost of the open cycle
	TotalQuantity     int     // currently held shares
	BuyAmountPerTrade float64
	SellTargetPercent float64
	Divisions         int
	Stage             float64
}

// BuyGuide returns the suggested buy orders for the next session.
//
// First half: the per-trade amount is split in two, one half at the star
// price and one half at plain average cost. Second half: the full amount at
// the star price. Quarter mode: no buying.
func BuyGuide(in GuideInput) []GuideOrder {
	if IsQuarterMode(in.Stage, in.Divisions) {
		return nil
	}

	star := StarPercent(in.SellTargetPercent, in.Divisions, in.Stage)
	starPrice := in.AveragePrice * (1 + star/100)

	if !IsFirstHalf(in.Stage, in.Divisions) {
		return []GuideOrder{
			{Kind: OrderKindStar, Price: starPrice, Quantity: floorQty(in.BuyAmountPerTrade, starPrice)},
		}
	}

	half := in.BuyAmountPerTrade / 2
	return []GuideOrder{
		{Kind: OrderKindStar, Price: starPrice, Quantity: floorQty(half, starPrice)},
		{Kind: OrderKindAverage, Price: in.AveragePrice, Quantity: floorQty(half, in.AveragePrice)},
	}
}

// SellGuide returns the suggested sell orders.
//
// Normally a quarter of the position is offered a cent above the star price
// and the remainder at the full sell target. In quarter mode the guide is a
// single market order for a quarter of the position.
func SellGuide(in GuideInput) []GuideOrder {
	quarter := in.TotalQuantity / 4

	if IsQuarterMode(in.Stage, in.Divisions) {
		return []GuideOrder{
			{Kind: OrderKindMarket, Quantity: quarter},
		}
	}

	star := StarPercent(in.SellTargetPercent, in.Divisions, in.Stage)
	return []GuideOrder{
		{Kind: OrderKindStar, Price: in.AveragePrice*(1+star/100) + 0.01, Quantity: quarter},
		{Kind: OrderKindLimit, Price: in.AveragePrice * (1 + in.SellTargetPercent/100), Quantity: in.TotalQuantity - quarter},
	}
}

func floorQty(amount, price float64) int {
	if price <= 0 {
		return 0
	}
	return int(amount / price)
}
