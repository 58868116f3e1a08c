package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultSymbols is the BIST30 constituent list plus the XU100 index, used to
// seed the market store before the first update arrives.
var DefaultSymbols = []string{
	"AKBNK", "ALARK", "ASELS", "ASTOR", "BIMAS", "EKGYO", "ENKAI", "EREGL",
	"FROTO", "GARAN", "GUBRF", "HEKTS", "ISCTR", "KCHOL", "KONTR", "KRDMD",
	"ODAS", "OYAKC", "PETKM", "PGSUS", "SAHOL", "SASA", "SISE", "TAVHL",
	"TCELL", "THYAO", "TOASO", "TSKB", "TTKOM", "TUPRS", "YKBNK", "XU100",
}

// DefaultActiveSymbol is the instrument charted at startup.
const DefaultActiveSymbol = "XU100"

// Ticker is one instrument's latest quote.
type Ticker struct {
	Symbol    string          `json:"symbol" validate:"required,max=16"`
	Price     decimal.Decimal `json:"price" validate:"gte=0"`
	Change    float64         `json:"change"`
	Volume    string          `json:"volume"`
	VolumeRaw *float64        `json:"volume_raw,omitempty" validate:"omitempty,gte=0"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

// TickerSet is the validation envelope for a full replacement set.
type TickerSet struct {
	Tickers []Ticker `validate:"unique=Symbol,dive"`
}

// SeedTicker is the placeholder shown for a symbol never received.
func SeedTicker(symbol string) Ticker {
	return Ticker{Symbol: symbol, Price: decimal.Zero, Change: 0, Volume: "0M"}
}
