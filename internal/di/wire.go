//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/config"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Metrics
		ProvideRegistry,
		ProvideMetrics,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideEventPublisher,
		ProvideCache,
		ProvideAPIClient,

		// Repositories
		ProvideHistoryFetcher,
		ProvidePortfolioFetcher,

		// Core stores and use cases
		ProvideMarketStore,
		ProvidePortfolioStore,
		ProvideAlertEngine,
		ProvideStatusBoard,
		ProvideFrameRouter,
		ProvideStream,
		ProvideEventFanout,
		ProvideHub,

		// HTTP surface
		ProvideLimiter,
		ProvideDashboardHandler,
		ProvideWSHandler,
		ProvideHTTPServer,

		// Application server
		ProvideCore,
		ProvideApp,
	)
	return &server.App{}, nil
}
