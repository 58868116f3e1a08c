package repository

import (
	"context"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
)

// MarketStream is the long-lived push connection to the market service.
type MarketStream interface {
	Open(ctx context.Context) error
	Close() error
	State() models.ConnState
	Status() models.ConnStatus
	Subscribe(fn func(models.ConnStatus)) (cancel func())
}

// HistoryFetcher loads the historical series for one instrument.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, symbol string) ([]models.Candle, error)
}

// PortfolioFetcher loads the full paper portfolio once at startup.
type PortfolioFetcher interface {
	FetchPortfolio(ctx context.Context) (models.Portfolio, error)
}

// EventPublisher fans dashboard events out to downstream consumers.
type EventPublisher interface {
	PublishAlert(ctx context.Context, rule models.AlertRule) error
	PublishStatus(ctx context.Context, status models.DashboardStatus) error
	Close() error
}

// Metrics takes plain strings so recorders need not import domain types.
type Metrics interface {
	RecordFrame(kind string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordConnState(state string)
	RecordReconnect()
	RecordAlertFired(symbol, condition string)
	SetActiveAlerts(n int)
}
