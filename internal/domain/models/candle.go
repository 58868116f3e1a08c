package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Candle struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume float64         `json:"volume"`
}

// History is the outcome of the last historical-series fetch for the active
// instrument. Exactly one of Candles or Error is meaningful once Loading is
// false.
type History struct {
	Symbol    string     `json:"symbol"`
	Candles   []Candle   `json:"candles"`
	Loading   bool       `json:"loading"`
	Error     string     `json:"error,omitempty"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
}
