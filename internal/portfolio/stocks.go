// Package portfolio holds the application services around the tracked
// stocks: creating and editing them, recording trades, settling cycles and
// assembling the display-ready portfolio summary.
package portfolio

import (
	"errors"
	"fmt"
	"time"

	"github.com/karnies/moomanager/internal/models"
	"github.com/karnies/moomanager/internal/pricecache"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Validation and precondition errors. All of them are reported before any
// mutation happens.
var (
	ErrInvalidSeedMoney = errors.New("seed money must be positive")
	ErrInvalidDivisions = errors.New("divisions must be positive")
	ErrInvalidPrice     = errors.New("price must be positive")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrInvalidFee       = errors.New("fee must not be negative")
	ErrInvalidSide      = errors.New("side must be BUY or SELL")
	ErrInvalidOrderType = errors.New("order type must be LOC, LIMIT or MOC")
	ErrStockNotFound    = errors.New("stock not found")
)

// Service bundles the portfolio use cases around one database.
type Service struct {
	logger *zap.Logger
	db     *gorm.DB
	cache  *pricecache.Cache
}

// NewService creates the portfolio service.
func NewService(logger *zap.Logger, db *gorm.DB, cache *pricecache.Cache) *Service {
	return &Service{logger: logger, db: db, cache: cache}
}

// CreateStockInput carries the parameters for a new tracking cycle. Zero
// values for Divisions, SellTargetPercent and CompoundRate are filled from
// the variant presets.
type CreateStockInput struct {
	Symbol            string    `json:"symbol"`
	Nickname          string    `json:"nickname"`
	Version           string    `json:"version"`
	SeedMoney         float64   `json:"seed_money"`
	Divisions         int       `json:"divisions"`
	SellTargetPercent float64   `json:"sell_target_percent"`
	CompoundRate      float64   `json:"compound_rate"`
	StartDate         time.Time `json:"start_date"`
}

// CreateStock validates the input, fills variant presets and inserts the
// stock with its uncompounded per-trade amount.
func (s *Service) CreateStock(in CreateStockInput) (*models.Stock, error) {
	if in.Version == "" {
		in.Version = models.VersionV30
	}
	presets := models.DefaultPresets(in.Symbol, in.Version)
	if in.Divisions == 0 {
		in.Divisions = presets.Divisions
	}
	if in.SellTargetPercent == 0 {
		in.SellTargetPercent = presets.SellTargetPercent
	}
	if in.CompoundRate == 0 {
		in.CompoundRate = presets.CompoundRate
	}
	if in.StartDate.IsZero() {
		in.StartDate = time.Now()
	}

	if in.SeedMoney <= 0 {
		return nil, ErrInvalidSeedMoney
	}
	if in.Divisions <= 0 {
		return nil, ErrInvalidDivisions
	}

	stock := models.Stock{
		Symbol:            in.Symbol,
		Nickname:          in.Nickname,
		Version:           in.Version,
		SeedMoney:         in.SeedMoney,
		Divisions:         in.Divisions,
		SellTargetPercent: in.SellTargetPercent,
		CompoundRate:      in.CompoundRate,
		CurrentBuyAmount:  in.SeedMoney / float64(in.Divisions),
		StartDate:         in.StartDate,
		IsActive:          true,
	}

	if err := s.db.Create(&stock).Error; err != nil {
		return nil, fmt.Errorf("failed to create stock: %w", err)
	}

	s.logger.Info("Created stock",
		zap.String("symbol", stock.Symbol),
		zap.String("version", stock.Version),
		zap.Float64("seed_money", stock.SeedMoney))
	return &stock, nil
}

// UpdateStockInput carries a partial stock update; nil fields stay
// untouched.
type UpdateStockInput struct {
	Nickname          *string  `json:"nickname"`
	SeedMoney         *float64 `json:"seed_money"`
	Divisions         *int     `json:"divisions"`
	SellTargetPercent *float64 `json:"sell_target_percent"`
	CompoundRate      *float64 `json:"compound_rate"`
	IsActive          *bool    `json:"is_active"`
}

// UpdateStock applies a partial update. Changing the seed money or the
// division count redefines the tranche, so the per-trade amount resets to
// the uncompounded seed/divisions.
func (s *Service) UpdateStock(id uint, in UpdateStockInput) (*models.Stock, error) {
	stock, err := s.GetStock(id)
	if err != nil {
		return nil, err
	}

	if in.SeedMoney != nil && *in.SeedMoney <= 0 {
		return nil, ErrInvalidSeedMoney
	}
	if in.Divisions != nil && *in.Divisions <= 0 {
		return nil, ErrInvalidDivisions
	}

	resetTranche := false
	if in.Nickname != nil {
		stock.Nickname = *in.Nickname
	}
	if in.SeedMoney != nil {
		stock.SeedMoney = *in.SeedMoney
		resetTranche = true
	}
	if in.Divisions != nil {
		stock.Divisions = *in.Divisions
		resetTranche = true
	}
	if in.SellTargetPercent != nil {
		stock.SellTargetPercent = *in.SellTargetPercent
	}
	if in.CompoundRate != nil {
		stock.CompoundRate = *in.CompoundRate
	}
	if in.IsActive != nil {
		stock.IsActive = *in.IsActive
	}
	if resetTranche {
		stock.CurrentBuyAmount = stock.InitialBuyAmount()
	}

	if err := s.db.Save(stock).Error; err != nil {
		return nil, fmt.Errorf("failed to update stock: %w", err)
	}

	s.logger.Info("Updated stock", zap.Uint("id", stock.ID), zap.String("symbol", stock.Symbol))
	return stock, nil
}

// GetStock loads one stock by id.
func (s *Service) GetStock(id uint) (*models.Stock, error) {
	var stock models.Stock
	if err := s.db.First(&stock, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStockNotFound
		}
		return nil, err
	}
	return &stock, nil
}

// ListStocks returns stocks sorted by creation time, optionally only the
// active ones.
func (s *Service) ListStocks(activeOnly bool) ([]models.Stock, error) {
	var stocks []models.Stock
	q := s.db.Order("created_at")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Find(&stocks).Error; err != nil {
		return nil, fmt.Errorf("failed to list stocks: %w", err)
	}
	return stocks, nil
}

// DeleteStock removes a stock and its trade history. Settlement records
// stay; they are the permanent history of closed cycles.
func (s *Service) DeleteStock(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("stock_id = ?", id).Delete(&models.Trade{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Stock{}, id).Error
	})
}
