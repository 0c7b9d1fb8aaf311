// Package backup implements the versioned JSON export/import of the whole
// portfolio: stocks, trades and settlement records. Stocks are referenced
// by small integer ids that get remapped on import, so backups move cleanly
// between installations (including ones written by earlier versions of the
// product on other platforms).
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/karnies/moomanager/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FormatVersion marks the export format. Imports only require the marker
// to be present, not to match.
const FormatVersion = "1.0"

// ErrInvalidFormat is returned when the payload is not a backup file at
// all (not a JSON object, or missing the version marker). Malformed
// individual records do not trigger it; they are skipped and counted.
var ErrInvalidFormat = errors.New("invalid backup format")

// File is the export envelope. Every field is explicitly named.
type File struct {
	Version     string             `json:"version"`
	AppName     string             `json:"appName"`
	ExportedAt  string             `json:"exportedAt"`
	Stocks      []StockRecord      `json:"stocks"`
	Trades      []TradeRecord      `json:"trades"`
	Settlements []SettlementRecord `json:"settlements"`
}

// StockRecord is one instrument configuration in the export.
type StockRecord struct {
	ID                int     `json:"id"`
	Symbol            string  `json:"symbol"`
	Nickname          string  `json:"nickname"`
	Version           string  `json:"version"`
	SeedMoney         float64 `json:"seedMoney"`
	Divisions         int     `json:"divisions"`
	SellTargetPercent float64 `json:"sellTargetPercent"`
	CompoundRate      float64 `json:"compoundRate"`
	CurrentBuyAmount  float64 `json:"currentBuyAmount"`
	AccumulatedProfit float64 `json:"accumulatedProfit"`
	StartDate         string  `json:"startDate"`
	IsActive          bool    `json:"isActive"`
	CreatedAt         string  `json:"createdAt"`
}

// TradeRecord is one trade event in the export.
type TradeRecord struct {
	ID        int     `json:"id"`
	StockID   int     `json:"stockId"`
	TradeDate string  `json:"tradeDate"`
	TradeType string  `json:"tradeType"`
	OrderType string  `json:"orderType"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Fee       float64 `json:"fee"`
	Amount    float64 `json:"amount"`
	Settled   bool    `json:"isSettlement"`
	CreatedAt string  `json:"createdAt"`
}

// SettlementRecord is one closed-cycle record in the export.
type SettlementRecord struct {
	ID                int     `json:"id"`
	StockID           int     `json:"stockId"`
	Symbol            string  `json:"symbol"`
	Nickname          string  `json:"nickname"`
	Version           string  `json:"version"`
	StartDate         string  `json:"startDate"`
	EndDate           string  `json:"endDate"`
	SeedMoney         float64 `json:"seedMoney"`
	Divisions         int     `json:"divisions"`
	BuyAmountPerTrade float64 `json:"buyAmountPerTrade"`
	TotalBuyAmount    float64 `json:"totalBuyAmount"`
	TotalSellAmount   float64 `json:"totalSellAmount"`
	TotalFee          float64 `json:"totalFee"`
	Profit            float64 `json:"profit"`
	ProfitRate        float64 `json:"profitRate"`
	BuyCount          int     `json:"buyCount"`
	SellCount         int     `json:"sellCount"`
	TradingDays       int     `json:"tradingDays"`
	SeedUsageRate     float64 `json:"seedUsageRate"`
	CreatedAt         string  `json:"createdAt"`
}

// ImportResult counts the records actually imported; malformed or orphaned
// records are simply excluded.
type ImportResult struct {
	Stocks      int `json:"stocks"`
	Trades      int `json:"trades"`
	Settlements int `json:"settlements"`
}

// Service reads and writes backups against the database.
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewService creates a backup service.
func NewService(logger *zap.Logger, db *gorm.DB) *Service {
	return &Service{logger: logger, db: db}
}

// Export serializes the whole portfolio into the backup format. Row ids
// are replaced with 1-based sequence numbers.
func (s *Service) Export() ([]byte, error) {
	var stocks []models.Stock
	if err := s.db.Order("created_at").Find(&stocks).Error; err != nil {
		return nil, fmt.Errorf("failed to load stocks for export: %w", err)
	}
	var trades []models.Trade
	if err := s.db.Order("trade_date").Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to load trades for export: %w", err)
	}
	var settlements []models.Settlement
	if err := s.db.Order("created_at").Find(&settlements).Error; err != nil {
		return nil, fmt.Errorf("failed to load settlements for export: %w", err)
	}

	idMap := make(map[uint]int, len(stocks))
	file := File{
		Version:     FormatVersion,
		AppName:     "MooManager",
		ExportedAt:  time.Now().UTC().Format(time.RFC3339),
		Stocks:      make([]StockRecord, 0, len(stocks)),
		Trades:      make([]TradeRecord, 0, len(trades)),
		Settlements: make([]SettlementRecord, 0, len(settlements)),
	}

	for i, st := range stocks {
		idMap[st.ID] = i + 1
		file.Stocks = append(file.Stocks, StockRecord{
			ID:                i + 1,
			Symbol:            st.Symbol,
			Nickname:          st.Nickname,
			Version:           st.Version,
			SeedMoney:         st.SeedMoney,
			Divisions:         st.Divisions,
			SellTargetPercent: st.SellTargetPercent,
			CompoundRate:      st.CompoundRate,
			CurrentBuyAmount:  st.CurrentBuyAmount,
			AccumulatedProfit: st.AccumulatedProfit,
			StartDate:         formatDate(st.StartDate),
			IsActive:          st.IsActive,
			CreatedAt:         formatDate(st.CreatedAt),
		})
	}

	for i, t := range trades {
		file.Trades = append(file.Trades, TradeRecord{
			ID:        i + 1,
			StockID:   idMap[t.StockID],
			TradeDate: formatDate(t.TradeDate),
			TradeType: t.Side,
			OrderType: t.OrderType,
			Price:     t.Price,
			Quantity:  t.Quantity,
			Fee:       t.Fee,
			Amount:    t.Amount,
			Settled:   t.Settled,
			CreatedAt: formatDate(t.CreatedAt),
		})
	}

	for i, st := range settlements {
		file.Settlements = append(file.Settlements, SettlementRecord{
			ID:                i + 1,
			StockID:           idMap[st.StockID],
			Symbol:            st.Symbol,
			Nickname:          st.Nickname,
			Version:           st.Version,
			StartDate:         formatDate(st.StartDate),
			EndDate:           formatDate(st.EndDate),
			SeedMoney:         st.SeedMoney,
			Divisions:         st.Divisions,
			BuyAmountPerTrade: st.BuyAmountPerTrade,
			TotalBuyAmount:    st.TotalBuyAmount,
			TotalSellAmount:   st.TotalSellAmount,
			TotalFee:          st.TotalFee,
			Profit:            st.Profit,
			ProfitRate:        st.ProfitRate,
			BuyCount:          st.BuyCount,
			SellCount:         st.SellCount,
			TradingDays:       st.TradingDays,
			SeedUsageRate:     st.SeedUsageRate,
			CreatedAt:         formatDate(st.CreatedAt),
		})
	}

	return json.MarshalIndent(file, "", "  ")
}

// rawFile defers per-record decoding so that a single malformed entry can
// be skipped without aborting the batch.
type rawFile struct {
	Version     *string           `json:"version"`
	Stocks      []json.RawMessage `json:"stocks"`
	Trades      []json.RawMessage `json:"trades"`
	Settlements []json.RawMessage `json:"settlements"`
}

// Import restores a backup into the database. The whole import runs in one
// transaction. A payload without the version marker aborts with
// ErrInvalidFormat; malformed individual records are skipped and counted
// as not imported.
func (s *Service) Import(data []byte) (*ImportResult, error) {
	var raw rawFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if raw.Version == nil {
		return nil, fmt.Errorf("%w: missing version marker", ErrInvalidFormat)
	}

	result := &ImportResult{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		idMap := make(map[int]uint)

		for i, msg := range raw.Stocks {
			var rec StockRecord
			if err := json.Unmarshal(msg, &rec); err != nil || rec.Symbol == "" {
				s.logger.Warn("Skipping malformed stock record", zap.Int("index", i))
				continue
			}

			stock := models.Stock{
				Symbol:            rec.Symbol,
				Nickname:          rec.Nickname,
				Version:           rec.Version,
				SeedMoney:         rec.SeedMoney,
				Divisions:         rec.Divisions,
				SellTargetPercent: rec.SellTargetPercent,
				CompoundRate:      rec.CompoundRate,
				CurrentBuyAmount:  rec.CurrentBuyAmount,
				AccumulatedProfit: rec.AccumulatedProfit,
				StartDate:         s.parseDate(rec.StartDate),
				IsActive:          rec.IsActive,
			}
			if err := tx.Create(&stock).Error; err != nil {
				return fmt.Errorf("failed to import stock %s: %w", rec.Symbol, err)
			}
			idMap[rec.ID] = stock.ID
			result.Stocks++
		}

		for i, msg := range raw.Trades {
			var rec TradeRecord
			if err := json.Unmarshal(msg, &rec); err != nil {
				s.logger.Warn("Skipping malformed trade record", zap.Int("index", i))
				continue
			}
			stockID, ok := idMap[rec.StockID]
			if !ok {
				s.logger.Warn("Skipping trade for unknown stock", zap.Int("stock_id", rec.StockID))
				continue
			}

			trade := models.Trade{
				StockID:   stockID,
				TradeDate: s.parseDate(rec.TradeDate),
				Side:      rec.TradeType,
				OrderType: rec.OrderType,
				Price:     rec.Price,
				Quantity:  rec.Quantity,
				Fee:       rec.Fee,
				Amount:    rec.Amount,
				Settled:   rec.Settled,
			}
			if trade.Side == "" {
				trade.Side = models.SideBuy
			}
			if trade.OrderType == "" {
				trade.OrderType = models.OrderLOC
			}
			if trade.Amount == 0 {
				trade.Amount = trade.Price * float64(trade.Quantity)
			}
			if err := tx.Create(&trade).Error; err != nil {
				return fmt.Errorf("failed to import trade: %w", err)
			}
			result.Trades++
		}

		for i, msg := range raw.Settlements {
			var rec SettlementRecord
			if err := json.Unmarshal(msg, &rec); err != nil || rec.Symbol == "" {
				s.logger.Warn("Skipping malformed settlement record", zap.Int("index", i))
				continue
			}

			// Settlements carry their own snapshot; one referencing a stock
			// missing from the backup is kept without the link.
			settlement := models.Settlement{
				StockID:           idMap[rec.StockID],
				Symbol:            rec.Symbol,
				Nickname:          rec.Nickname,
				Version:           rec.Version,
				StartDate:         s.parseDate(rec.StartDate),
				EndDate:           s.parseDate(rec.EndDate),
				SeedMoney:         rec.SeedMoney,
				Divisions:         rec.Divisions,
				BuyAmountPerTrade: rec.BuyAmountPerTrade,
				TotalBuyAmount:    rec.TotalBuyAmount,
				TotalSellAmount:   rec.TotalSellAmount,
				TotalFee:          rec.TotalFee,
				Profit:            rec.Profit,
				ProfitRate:        rec.ProfitRate,
				BuyCount:          rec.BuyCount,
				SellCount:         rec.SellCount,
				TradingDays:       rec.TradingDays,
				SeedUsageRate:     rec.SeedUsageRate,
			}
			if err := tx.Create(&settlement).Error; err != nil {
				return fmt.Errorf("failed to import settlement: %w", err)
			}
			result.Settlements++
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Import complete",
		zap.Int("stocks", result.Stocks),
		zap.Int("trades", result.Trades),
		zap.Int("settlements", result.Settlements))
	return result, nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// dateLayouts covers every format historical exports have used: with
// milliseconds and Z, without either, date-only and the space-separated
// form an old CSV exporter wrote.
var dateLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
}

// parseDate tries the known layouts in order. Unparseable dates fall back
// to now rather than failing the import.
func (s *Service) parseDate(value string) time.Time {
	if value == "" {
		return time.Now()
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	s.logger.Warn("Failed to parse date, falling back to now", zap.String("value", value))
	return time.Now()
}
