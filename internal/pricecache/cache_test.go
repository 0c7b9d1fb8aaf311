package pricecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/karnies/moomanager/internal/marketcal"
	"github.com/karnies/moomanager/internal/models"
	"github.com/karnies/moomanager/internal/yahoo"
)

// MockQuoteClient is a mock implementation of yahoo.ClientInterface.
type MockQuoteClient struct {
	mock.Mock
}

func (m *MockQuoteClient) GetQuote(ctx context.Context, symbol string) (*yahoo.Quote, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*yahoo.Quote), args.Error(1)
}

func (m *MockQuoteClient) GetDailyCloses(ctx context.Context, symbol string, rangeDays int) ([]float64, error) {
	args := m.Called(ctx, symbol, rangeDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}

// setupTest creates a cache over a fresh in-memory DB with a mock quote
// source and a clock pinned to a regular Wednesday session.
func setupTest(t *testing.T) (*Cache, *MockQuoteClient, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)

	err = db.AutoMigrate(&models.StockPrice{})
	assert.NoError(t, err)

	mockClient := new(MockQuoteClient)

	cache := NewCache(db, mockClient, zap.NewNop())
	cache.now = func() time.Time {
		// Wednesday; the last completed session is Tuesday 2026-06-16.
		return time.Date(2026, time.June, 17, 12, 0, 0, 0, marketcal.Eastern)
	}

	return cache, mockClient, db
}

func datePtr(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, marketcal.Eastern)
	return &d
}

func quoteFor(symbol string, close float64, closeDate *time.Time) *yahoo.Quote {
	return &yahoo.Quote{
		Symbol:            symbol,
		CurrentPrice:      close + 1,
		PreviousClose:     close,
		PreviousCloseDate: closeDate,
	}
}

func TestGetMissingSymbol(t *testing.T) {
	cache, _, _ := setupTest(t)

	entry, err := cache.Get("TQQQ")
	assert.NoError(t, err)
	assert.Nil(t, entry)
}

func TestIsStale(t *testing.T) {
	cache, _, _ := setupTest(t)

	testCases := []struct {
		name     string
		entry    *models.StockPrice
		expected bool
	}{
		{"No entry at all", nil, true},
		{"Entry without close date", &models.StockPrice{Symbol: "TQQQ"}, true},
		{
			name:     "Close from last completed session",
			entry:    &models.StockPrice{Symbol: "TQQQ", ClosePriceDate: datePtr(2026, time.June, 16)},
			expected: false,
		},
		{
			name:     "Close one session behind",
			entry:    &models.StockPrice{Symbol: "TQQQ", ClosePriceDate: datePtr(2026, time.June, 15)},
			expected: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, cache.IsStale(tc.entry))
		})
	}
}

func TestUpsertInsertsThenUpdates(t *testing.T) {
	cache, _, db := setupTest(t)

	err := cache.Upsert("TQQQ", quoteFor("TQQQ", 50, datePtr(2026, time.June, 15)), nil)
	assert.NoError(t, err)

	rsi := &RsiReading{Value: 42.5, Change: -1.2, Recommend: 50}
	err = cache.Upsert("TQQQ", quoteFor("TQQQ", 51, datePtr(2026, time.June, 16)), rsi)
	assert.NoError(t, err)

	var count int64
	db.Model(&models.StockPrice{}).Count(&count)
	assert.Equal(t, int64(1), count)

	entry, err := cache.Get("TQQQ")
	assert.NoError(t, err)
	assert.Equal(t, 51.0, entry.ClosePrice)
	assert.Equal(t, 42.5, *entry.RsiValue)
	assert.Equal(t, 50.0, *entry.RsiRecommend)
	assert.InDelta(t, -1.2, *entry.RsiChange, 1e-9)
}

func TestEnsureFreshSkipsFreshEntries(t *testing.T) {
	cache, mockClient, _ := setupTest(t)

	err := cache.Upsert("TQQQ", quoteFor("TQQQ", 50, datePtr(2026, time.June, 16)), nil)
	assert.NoError(t, err)

	cache.EnsureFresh(context.Background(), []string{"TQQQ"}, false)

	mockClient.AssertNotCalled(t, "GetQuote", mock.Anything, mock.Anything)
}

func TestEnsureFreshForceBypassesStalenessCheck(t *testing.T) {
	cache, mockClient, _ := setupTest(t)

	err := cache.Upsert("TQQQ", quoteFor("TQQQ", 50, datePtr(2026, time.June, 16)), nil)
	assert.NoError(t, err)

	mockClient.On("GetQuote", mock.Anything, "TQQQ").
		Return(quoteFor("TQQQ", 52, datePtr(2026, time.June, 16)), nil)
	mockClient.On("GetDailyCloses", mock.Anything, "TQQQ", rsiRangeDays).
		Return(nil, errors.New("range unavailable"))

	cache.EnsureFresh(context.Background(), []string{"TQQQ"}, true)

	entry, err := cache.Get("TQQQ")
	assert.NoError(t, err)
	assert.Equal(t, 52.0, entry.ClosePrice)
	mockClient.AssertExpectations(t)
}

func TestEnsureFreshPartialFailure(t *testing.T) {
	cache, mockClient, _ := setupTest(t)

	mockClient.On("GetQuote", mock.Anything, "TQQQ").
		Return(nil, errors.New("API down"))
	mockClient.On("GetQuote", mock.Anything, "SOXL").
		Return(quoteFor("SOXL", 30, datePtr(2026, time.June, 16)), nil)
	mockClient.On("GetDailyCloses", mock.Anything, "SOXL", rsiRangeDays).
		Return(nil, errors.New("range unavailable"))

	cache.EnsureFresh(context.Background(), []string{"TQQQ", "SOXL"}, true)

	// The failing symbol stays absent, the healthy one lands.
	entry, err := cache.Get("TQQQ")
	assert.NoError(t, err)
	assert.Nil(t, entry)

	entry, err = cache.Get("SOXL")
	assert.NoError(t, err)
	assert.Equal(t, 30.0, entry.ClosePrice)
	mockClient.AssertExpectations(t)
}

func TestEnsureFreshCancelledContext(t *testing.T) {
	cache, mockClient, _ := setupTest(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cache.EnsureFresh(ctx, []string{"TQQQ", "SOXL"}, true)

	mockClient.AssertNotCalled(t, "GetQuote", mock.Anything, mock.Anything)
}

func TestEnsureFreshStoresRsi(t *testing.T) {
	cache, mockClient, _ := setupTest(t)

	// 16 rising closes: RSI pegs at 100 and the delta against the series
	// without its last close is zero.
	closes := make([]float64, 16)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	mockClient.On("GetQuote", mock.Anything, "TQQQ").
		Return(quoteFor("TQQQ", 52, datePtr(2026, time.June, 16)), nil)
	mockClient.On("GetDailyCloses", mock.Anything, "TQQQ", rsiRangeDays).
		Return(closes, nil)

	cache.EnsureFresh(context.Background(), []string{"TQQQ"}, true)

	entry, err := cache.Get("TQQQ")
	assert.NoError(t, err)
	assert.NotNil(t, entry.RsiValue)
	assert.Equal(t, 100.0, *entry.RsiValue)
	assert.Equal(t, 70.0, *entry.RsiRecommend)
	assert.Equal(t, 0.0, *entry.RsiChange)
	mockClient.AssertExpectations(t)
}
