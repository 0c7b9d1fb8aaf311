// Package pricecache holds the last-known quote and RSI reading per symbol
// and decides, via the trading calendar, when a cached entry is stale
// enough to warrant a network refresh.
package pricecache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/karnies/moomanager/internal/marketcal"
	"github.com/karnies/moomanager/internal/models"
	"github.com/karnies/moomanager/internal/strategy"
	"github.com/karnies/moomanager/internal/yahoo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// rsiRangeDays is the chart range fetched for RSI; ~30 calendar days gives
// just over the required RsiPeriod+1 trading sessions.
const rsiRangeDays = 30

// Cache is the market-calendar-aware price cache.
type Cache struct {
	db     *gorm.DB
	quotes yahoo.ClientInterface
	logger *zap.Logger

	now func() time.Time // injectable for tests
}

// NewCache creates a price cache backed by the given store and quote source.
func NewCache(db *gorm.DB, quotes yahoo.ClientInterface, logger *zap.Logger) *Cache {
	return &Cache{
		db:     db,
		quotes: quotes,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the cached entry for a symbol, or nil when none exists.
func (c *Cache) Get(symbol string) (*models.StockPrice, error) {
	var entry models.StockPrice
	err := c.db.Where("symbol = ?", symbol).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// IsStale reports whether an entry's close is older than the most recent
// completed trading session. An entry without a close date is always stale.
//
// The expected close date is the last trading day before now in exchange
// time. The original product distinguished "trading day past the close
// hour" from all other moments, but both branches resolve to that same day;
// the cutoff-hour question is tracked as an open product decision.
func (c *Cache) IsStale(entry *models.StockPrice) bool {
	if entry == nil || entry.ClosePriceDate == nil {
		return true
	}

	expected := marketcal.StartOfDay(marketcal.LastTradingDayBefore(c.now()))
	saved := marketcal.StartOfDay(*entry.ClosePriceDate)

	return saved.Before(expected)
}

// Upsert replaces the cached price and RSI fields for a symbol,
// inserting the row on first contact. Idempotent per call.
func (c *Cache) Upsert(symbol string, quote *yahoo.Quote, rsi *RsiReading) error {
	var entry models.StockPrice
	err := c.db.Where("symbol = ?", symbol).First(&entry).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	entry.Symbol = symbol
	entry.ClosePrice = quote.PreviousClose
	entry.ClosePriceDate = quote.PreviousCloseDate
	if rsi != nil {
		entry.RsiValue = &rsi.Value
		entry.RsiRecommend = &rsi.Recommend
		entry.RsiChange = &rsi.Change
	}

	return c.db.Save(&entry).Error
}

// RsiReading is the indicator bundle stored alongside a quote.
type RsiReading struct {
	Value     float64
	Change    float64
	Recommend float64
}

// EnsureFresh refreshes the cache entries for the given symbols. Fetches
// fan out concurrently, one goroutine per symbol needing a refresh; a
// failed symbol is logged and skipped without affecting the others. After
// ctx is cancelled no new fetches start, but in-flight ones may still land.
func (c *Cache) EnsureFresh(ctx context.Context, symbols []string, force bool) {
	if year := c.now().In(marketcal.Eastern).Year(); !marketcal.HasHolidayData(year) {
		c.logger.Warn("No holiday data for current year, trading-day detection degrades to weekdays only",
			zap.Int("year", year))
	}

	var wg sync.WaitGroup
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			c.logger.Info("Refresh cancelled, skipping remaining symbols")
			break
		}

		if !force {
			entry, err := c.Get(symbol)
			if err != nil {
				c.logger.Error("Failed to read cached price", zap.String("symbol", symbol), zap.Error(err))
				continue
			}
			if !c.IsStale(entry) {
				continue
			}
		}

		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			if err := c.refreshSymbol(ctx, symbol); err != nil {
				c.logger.Warn("Failed to refresh price, keeping stale entry",
					zap.String("symbol", symbol), zap.Error(err))
			}
		}(symbol)
	}
	wg.Wait()
}

// refreshSymbol fetches quote and RSI data for one symbol and upserts the
// cache entry. The RSI fetch is best-effort: a quote without an indicator
// is still worth caching.
func (c *Cache) refreshSymbol(ctx context.Context, symbol string) error {
	quote, err := c.quotes.GetQuote(ctx, symbol)
	if err != nil {
		return err
	}

	rsi, err := c.fetchRsi(ctx, symbol)
	if err != nil {
		c.logger.Debug("RSI unavailable", zap.String("symbol", symbol), zap.Error(err))
		rsi = nil
	}

	if err := c.Upsert(symbol, quote, rsi); err != nil {
		return err
	}

	c.logger.Info("Refreshed price",
		zap.String("symbol", symbol),
		zap.Float64("close", quote.PreviousClose))
	return nil
}

func (c *Cache) fetchRsi(ctx context.Context, symbol string) (*RsiReading, error) {
	closes, err := c.quotes.GetDailyCloses(ctx, symbol, rsiRangeDays)
	if err != nil {
		return nil, err
	}

	rsi, err := strategy.Rsi(closes, strategy.RsiPeriod)
	if err != nil {
		return nil, err
	}

	reading := &RsiReading{
		Value:     rsi,
		Recommend: strategy.RsiRecommend(rsi),
	}

	// Delta against the series without its most recent close.
	if prev, err := strategy.Rsi(closes[:len(closes)-1], strategy.RsiPeriod); err == nil {
		reading.Change = rsi - prev
	}

	return reading, nil
}
