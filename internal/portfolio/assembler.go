package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/karnies/moomanager/internal/ledger"
	"github.com/karnies/moomanager/internal/models"
	"github.com/karnies/moomanager/internal/strategy"
)

// Options tunes summary computation. The fee toggle is an explicit input so
// the computation stays a pure function of its arguments.
type Options struct {
	// IncludeFee switches the holding cost basis (and the unrealized profit
	// derived from it) to the fee-inclusive break-even basis. Strategy
	// guides always use the plain notional average.
	IncludeFee bool
	// ForceRefresh bypasses the staleness check and refetches every symbol.
	ForceRefresh bool
}

// StockSummary is the display-ready state of one active stock. It is
// recomputed on demand and never cached across mutations.
type StockSummary struct {
	StockID  uint   `json:"stock_id"`
	Symbol   string `json:"symbol"`
	Nickname string `json:"nickname"`
	Version  string `json:"version"`

	CurrentPrice   float64    `json:"current_price"`
	ClosePriceDate *time.Time `json:"close_price_date,omitempty"`
	RsiValue       *float64   `json:"rsi_value,omitempty"`
	RsiRecommend   *float64   `json:"rsi_recommend,omitempty"`

	TotalQuantity        int     `json:"total_quantity"`
	AveragePrice         float64 `json:"average_price"`
	HoldingAmount        float64 `json:"holding_amount"`
	Valuation            float64 `json:"valuation"`
	RealizedProfit       float64 `json:"realized_profit"`
	UnrealizedProfit     float64 `json:"unrealized_profit"`
	UnrealizedProfitRate float64 `json:"unrealized_profit_rate"`

	Stage       float64 `json:"stage"`
	StarPercent float64 `json:"star_percent"`
	FirstHalf   bool    `json:"first_half"`
	QuarterMode bool    `json:"quarter_mode"`

	BuyGuide  []strategy.GuideOrder `json:"buy_guide"`
	SellGuide []strategy.GuideOrder `json:"sell_guide"`
}

// PortfolioSummary is the portfolio-level rollup over all active stocks.
type PortfolioSummary struct {
	Stocks    []StockSummary `json:"stocks"`
	UpdatedAt time.Time      `json:"updated_at"`

	TotalHoldingAmount    float64 `json:"total_holding_amount"`
	TotalValuation        float64 `json:"total_valuation"`
	TotalUnrealizedProfit float64 `json:"total_unrealized_profit"`
	TotalRealizedProfit   float64 `json:"total_realized_profit"`
	TotalProfitRate       float64 `json:"total_profit_rate"`
}

// BuildPortfolio assembles the per-stock summaries and the rollup for all
// active stocks. Price refresh is best-effort: a symbol whose fetch fails
// keeps showing its stale cache entry.
func (s *Service) BuildPortfolio(ctx context.Context, opts Options) (*PortfolioSummary, error) {
	stocks, err := s.ListStocks(true)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(stocks))
	for _, st := range stocks {
		symbols = append(symbols, st.Symbol)
	}
	s.cache.EnsureFresh(ctx, symbols, opts.ForceRefresh)

	summary := &PortfolioSummary{
		Stocks:    make([]StockSummary, 0, len(stocks)),
		UpdatedAt: time.Now(),
	}

	for i := range stocks {
		stockSummary, err := s.buildStockSummary(&stocks[i], opts)
		if err != nil {
			return nil, err
		}
		summary.Stocks = append(summary.Stocks, *stockSummary)

		summary.TotalHoldingAmount += stockSummary.HoldingAmount
		summary.TotalValuation += stockSummary.Valuation
		summary.TotalUnrealizedProfit += stockSummary.UnrealizedProfit
		summary.TotalRealizedProfit += stockSummary.RealizedProfit
	}

	if summary.TotalHoldingAmount > 0 {
		summary.TotalProfitRate = summary.TotalUnrealizedProfit / summary.TotalHoldingAmount * 100
	}

	return summary, nil
}

func (s *Service) buildStockSummary(stock *models.Stock, opts Options) (*StockSummary, error) {
	trades, err := s.unsettledTrades(s.db, stock.ID)
	if err != nil {
		return nil, err
	}
	agg := ledger.Compute(trades)

	entry, err := s.cache.Get(stock.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to read price cache: %w", err)
	}

	// Holding cost basis; optionally fee-inclusive (break-even basis).
	costBasis := agg.HoldingAmount
	if opts.IncludeFee && agg.BoughtQuantity > 0 {
		perShare := strategy.BreakEvenPrice(agg.BoughtAmount, agg.BuyFee, agg.BoughtQuantity)
		costBasis = perShare * float64(agg.CurrentQuantity)
	}

	// The stage metric always runs on the notional holding amount; the fee
	// toggle is a display concern and must not shift the regime.
	stage := strategy.StageMetric(agg.HoldingAmount, stock.CurrentBuyAmount)

	out := &StockSummary{
		StockID:        stock.ID,
		Symbol:         stock.Symbol,
		Nickname:       stock.Nickname,
		Version:        stock.Version,
		TotalQuantity:  agg.CurrentQuantity,
		AveragePrice:   agg.AveragePrice,
		HoldingAmount:  costBasis,
		RealizedProfit: agg.RealizedProfit,
		Stage:          stage,
		StarPercent:    strategy.StarPercent(stock.SellTargetPercent, stock.Divisions, stage),
		FirstHalf:      strategy.IsFirstHalf(stage, stock.Divisions),
		QuarterMode:    strategy.IsQuarterMode(stage, stock.Divisions),
	}

	if entry != nil {
		out.CurrentPrice = entry.ClosePrice
		out.ClosePriceDate = entry.ClosePriceDate
		out.RsiValue = entry.RsiValue
		out.RsiRecommend = entry.RsiRecommend
	}

	out.Valuation = float64(agg.CurrentQuantity) * out.CurrentPrice
	out.UnrealizedProfit = out.Valuation - costBasis
	if costBasis > 0 {
		out.UnrealizedProfitRate = out.UnrealizedProfit / costBasis * 100
	}

	in := strategy.GuideInput{
		AveragePrice:      agg.AveragePrice,
		TotalQuantity:     agg.CurrentQuantity,
		BuyAmountPerTrade: stock.CurrentBuyAmount,
		SellTargetPercent: stock.SellTargetPercent,
		Divisions:         stock.Divisions,
		Stage:             stage,
	}
	out.BuyGuide = strategy.BuyGuide(in)
	out.SellGuide = strategy.SellGuide(in)

	return out, nil
}
