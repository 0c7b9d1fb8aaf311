package models

import (
	"time"

	"gorm.io/gorm"
)

// Strategy variant tags. The variants share the same algorithm and differ
// only in their default parameters.
const (
	VersionV22 = "v2.2"
	VersionV30 = "v3.0"
)

// SupportedSymbols is the preset universe of leveraged ETFs the strategy
// is commonly run against. Other symbols are accepted as well.
var SupportedSymbols = []string{
	"TQQQ", "SOXL", "TECL", "FNGU", "UPRO",
	"WEBL", "BULZ", "WANT", "DFEN", "HIBL",
	"TNA", "UDOW", "LABU", "NAIL", "RETL",
	"DPST", "DUSL", "MIDU", "FAS", "CURE",
}

// Stock is one tracked instrument over one or more trading cycles.
type Stock struct {
	gorm.Model
	Symbol            string `gorm:"index;not null"`
	Nickname          string
	Version           string  `gorm:"not null"`
	SeedMoney         float64 `gorm:"not null"`
	Divisions         int     `gorm:"not null"`
	SellTargetPercent float64
	CompoundRate      float64 // percentage of realized profit fed back, 0-100
	CurrentBuyAmount  float64 // per-trade amount, grows with compounding
	AccumulatedProfit float64 // realized profit across all settled cycles
	StartDate         time.Time
	IsActive          bool `gorm:"default:true"`
}

// DisplayName returns "SYMBOL (nickname)" when a nickname is set.
func (s *Stock) DisplayName() string {
	if s.Nickname != "" {
		return s.Symbol + " (" + s.Nickname + ")"
	}
	return s.Symbol
}

// InitialBuyAmount is the uncompounded per-trade amount. Compounding never
// reduces CurrentBuyAmount below this value.
func (s *Stock) InitialBuyAmount() float64 {
	if s.Divisions <= 0 {
		return 0
	}
	return s.SeedMoney / float64(s.Divisions)
}

// Presets holds the default parameters of a strategy variant.
type Presets struct {
	Divisions         int
	SellTargetPercent float64
	CompoundRate      float64
}

// DefaultPresets returns the variant defaults for a symbol. SOXL carries a
// higher sell target in both variants.
func DefaultPresets(symbol, version string) Presets {
	isSoxl := symbol == "SOXL"

	if version == VersionV22 {
		p := Presets{Divisions: 40, SellTargetPercent: 10.0, CompoundRate: 0}
		if isSoxl {
			p.SellTargetPercent = 12.0
		}
		return p
	}

	p := Presets{Divisions: 20, SellTargetPercent: 15.0, CompoundRate: 50.0}
	if isSoxl {
		p.SellTargetPercent = 20.0
	}
	return p
}
