package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
)

// MarketState receives full ticker sets from the stream.
type MarketState interface {
	ReplaceAll(tickers []models.Ticker) error
	PriceMap() map[string]decimal.Decimal
}

// PortfolioState receives full portfolio snapshots from the stream.
type PortfolioState interface {
	ReplaceAll(p models.Portfolio) error
}

// AlertEvaluator checks active rules against the latest prices and returns
// the rules that fired on this call.
type AlertEvaluator interface {
	Evaluate(prices map[string]decimal.Decimal) []models.AlertRule
}

// StatusSink records feed health signals carried by frames.
type StatusSink interface {
	ReportFeed(status, source string)
	ReportCritical(message string)
	ReportPong(at time.Time)
}
