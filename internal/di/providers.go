package di

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	drepo "github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/repository"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/handler/api"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/handler/ws"
	internalrepo "github.com/alptigingorkem-coder/bist30-ai-trader/internal/repository"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/alerts"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/market"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/portfolio"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/ratelimit"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/stream"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/usecase"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/cache"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/config"
	xhttp "github.com/alptigingorkem-coder/bist30-ai-trader/pkg/http"
	pkgkafka "github.com/alptigingorkem-coder/bist30-ai-trader/pkg/kafka"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/logger"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/metrics"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/server"
)

// ProvideRegistry creates the registry served at the metrics path.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder, or a no-op one when
// metrics are disabled.
func ProvideMetrics(cfg *config.Config, reg *prometheus.Registry) drepo.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New(reg)
}

// ProvideKafkaProducer creates a Kafka producer. It returns nil when Kafka
// is disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	if cfg.Metrics.Enabled {
		pkgkafka.SetProducerMetricsRegisterer(reg)
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithAutoCreateTopics(cfg.Kafka.Producer.AutoCreate),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the application logger and attaches the error
// collector when it is enabled and a producer exists.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		Component: "dashboard",
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logging.Collector.Enabled && producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Logging.Collector.Interval,
			CountThreshold: cfg.Logging.Collector.CountThreshold,
			Topic:          cfg.Logging.Collector.Topic,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideEventPublisher fans alerts and status changes out to Kafka, or
// drops them when Kafka is disabled.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) drepo.EventPublisher {
	if producer == nil {
		return internalrepo.NopEvents{}
	}
	return internalrepo.NewKafkaEvents(producer, cfg.Kafka.AlertsTopic, cfg.Kafka.StatusTopic)
}

// ProvideCache creates the history response cache backend.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	switch cfg.Cache.Type {
	case "redis":
		c, err := cache.NewRedisCache(
			cache.WithRedisAddr(cfg.Cache.Addr),
			cache.WithRedisPassword(cfg.Cache.Password),
			cache.WithRedisDB(cfg.Cache.DB),
			cache.WithRedisPrefix(cfg.Cache.Prefix),
			cache.WithRedisPool(cfg.Cache.PoolSize, 2, 30*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return c, nil
	case "none":
		return cache.Nop{}, nil
	default:
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MaxEntries)), nil
	}
}

// ProvideAPIClient creates the client for the market service REST API.
func ProvideAPIClient(cfg *config.Config) *xhttp.Client {
	return xhttp.NewClient(
		xhttp.WithBaseURL(cfg.API.BaseURL),
		xhttp.WithTimeout(cfg.API.Timeout),
		xhttp.WithHeader("User-Agent", "bist30-dashboard"),
	)
}

func ProvideHistoryFetcher(client *xhttp.Client, c cache.Service, cfg *config.Config, l *logger.Logger, m drepo.Metrics) drepo.HistoryFetcher {
	return internalrepo.NewHistoryAPI(client, c, cfg.Market.HistoryCacheTTL, l, m)
}

func ProvidePortfolioFetcher(client *xhttp.Client, l *logger.Logger, m drepo.Metrics) drepo.PortfolioFetcher {
	return internalrepo.NewPortfolioAPI(client, l, m)
}

func ProvideMarketStore(cfg *config.Config, f drepo.HistoryFetcher, l *logger.Logger, m drepo.Metrics) *market.Store {
	return market.New(cfg.Market.Symbols, cfg.Market.ActiveSymbol, f, market.WithLogger(l), market.WithMetrics(m))
}

func ProvidePortfolioStore(f drepo.PortfolioFetcher, l *logger.Logger) *portfolio.Store {
	return portfolio.New(f, l)
}

func ProvideAlertEngine(l *logger.Logger, m drepo.Metrics) *alerts.Engine {
	return alerts.New(alerts.WithLogger(l), alerts.WithMetrics(m))
}

// ProvideStatusBoard creates the board detached; ProvideStream attaches it.
func ProvideStatusBoard(l *logger.Logger) *usecase.StatusBoard {
	return usecase.NewStatusBoard(nil, l)
}

func ProvideFrameRouter(
	m *market.Store,
	p *portfolio.Store,
	a *alerts.Engine,
	board *usecase.StatusBoard,
	mt drepo.Metrics,
	l *logger.Logger,
) *usecase.FrameRouter {
	return usecase.NewFrameRouter(m, p, a, board, mt, l)
}

// ProvideStream creates the market stream client and points the status
// board at it.
func ProvideStream(cfg *config.Config, router *usecase.FrameRouter, board *usecase.StatusBoard, l *logger.Logger, m drepo.Metrics) *stream.Client {
	client := stream.New(stream.Config{
		URL:               cfg.Stream.URL,
		HeartbeatInterval: cfg.Stream.HeartbeatPeriod,
		HandshakeTimeout:  cfg.Stream.HandshakeTimeout,
		DispatchBuffer:    cfg.Stream.DispatchBuffer,
		Reconnect: stream.ReconnectPolicy{
			Delay:      cfg.Stream.Reconnect.Delay,
			Multiplier: cfg.Stream.Reconnect.Multiplier,
			MaxDelay:   cfg.Stream.Reconnect.MaxDelay,
			MaxRetries: cfg.Stream.Reconnect.MaxRetries,
		},
	}, router, stream.WithLogger(l), stream.WithMetrics(m))
	board.Follow(client)
	return client
}

func ProvideEventFanout(pub drepo.EventPublisher, m drepo.Metrics, l *logger.Logger) *usecase.EventFanout {
	return usecase.NewEventFanout(pub, m, l, 0)
}

func ProvideHub(
	m *market.Store,
	p *portfolio.Store,
	a *alerts.Engine,
	board *usecase.StatusBoard,
	l *logger.Logger,
	mt drepo.Metrics,
) *ws.Hub {
	return ws.NewHub(ws.Sources{Market: m, Portfolio: p, Alerts: a, Board: board}, l, mt, 0)
}

func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.RateLimit.Burst, cfg.Server.RateLimit.PerSecond)
}

func ProvideDashboardHandler(
	l *logger.Logger,
	st *stream.Client,
	m *market.Store,
	p *portfolio.Store,
	a *alerts.Engine,
	board *usecase.StatusBoard,
	limiter *ratelimit.Limiter,
) *api.DashboardHandler {
	return api.NewDashboardHandler(l, st, m, p, a, board, limiter)
}

func ProvideWSHandler(hub *ws.Hub, cfg *config.Config) *ws.Handler {
	return ws.NewHandler(hub, cfg.Server.CORSOrigins)
}

// ProvideHTTPServer registers the API and socket handlers on the Echo server.
func ProvideHTTPServer(
	cfg *config.Config,
	l *logger.Logger,
	reg *prometheus.Registry,
	dash *api.DashboardHandler,
	events *ws.Handler,
) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithRegistry(reg, cfg.Metrics.Path))
	}
	return xhttp.NewServer(l, []xhttp.Handler{dash, events}, opts...)
}

func ProvideCore(
	st *stream.Client,
	m *market.Store,
	p *portfolio.Store,
	a *alerts.Engine,
	board *usecase.StatusBoard,
	fanout *usecase.EventFanout,
	hub *ws.Hub,
) server.Core {
	return server.Core{
		Stream:    st,
		Market:    m,
		Portfolio: p,
		Alerts:    a,
		Board:     board,
		Fanout:    fanout,
		Hub:       hub,
	}
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	core server.Core,
	srv *xhttp.Server,
	events drepo.EventPublisher,
	c cache.Service,
) *server.App {
	return server.New(cfg, l, core, srv, events, c)
}
