package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	drepo "github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/repository"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/handler/ws"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/alerts"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/market"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/portfolio"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/stream"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/usecase"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/cache"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/config"
	xhttp "github.com/alptigingorkem-coder/bist30-ai-trader/pkg/http"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/logger"
)

// Core groups the long-lived dashboard components.
type Core struct {
	Stream    *stream.Client
	Market    *market.Store
	Portfolio *portfolio.Store
	Alerts    *alerts.Engine
	Board     *usecase.StatusBoard
	Fanout    *usecase.EventFanout
	Hub       *ws.Hub
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg    *config.Config
	log    *logger.Logger
	core   Core
	http   *xhttp.Server
	events drepo.EventPublisher
	cache  cache.Service

	// ready is closed once every component has been started.
	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *logger.Logger,
	core Core,
	httpServer *xhttp.Server,
	events drepo.EventPublisher,
	c cache.Service,
) *App {
	if log == nil {
		log = logger.Nop()
	}
	return &App{
		cfg:    cfg,
		log:    log,
		core:   core,
		http:   httpServer,
		events: events,
		cache:  c,
		ready:  make(chan struct{}),
	}
}

// Core exposes the wired components.
func (a *App) Core() Core { return a.core }

// HTTP returns the API server.
func (a *App) HTTP() *xhttp.Server { return a.http }

// Ready is closed once Run has started every component.
func (a *App) Ready() <-chan struct{} { return a.ready }

// Run starts the application and blocks until ctx is done or SIGINT/SIGTERM
// arrives, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	if a.core.Hub != nil {
		a.core.Hub.Attach()
		go a.core.Hub.Run(hubCtx)
	}
	if a.core.Fanout != nil {
		a.core.Fanout.Start(a.core.Alerts, a.core.Board)
	}

	if err := a.http.Start(); err != nil {
		a.log.Error("http server start error", logger.Error(err))
		stopHub()
		return err
	}

	if a.cfg.Stream.AutoOpen {
		if err := a.core.Stream.Open(ctx); err != nil {
			if errors.Is(err, stream.ErrMalformedEndpoint) {
				a.log.Error("stream endpoint rejected, running without live data", logger.Error(err))
			} else {
				a.log.Warn("stream open failed, reconnect scheduled", logger.Error(err))
			}
		}
	}

	// initial loads run beside the stream; a stream snapshot may land first
	var loads sync.WaitGroup
	loads.Add(2)
	go func() {
		defer loads.Done()
		_ = a.core.Portfolio.LoadInitial(ctx)
	}()
	go func() {
		defer loads.Done()
		_ = a.core.Market.SetActiveInstrument(ctx, a.cfg.Market.ActiveSymbol)
	}()

	tracked := a.core.Market.Snapshot()
	symbols := make([]string, 0, len(tracked))
	for _, t := range tracked {
		symbols = append(symbols, t.Symbol)
	}
	a.log.Info("dashboard core started",
		logger.String("stream", a.cfg.Stream.URL),
		logger.Strings("symbols", symbols),
		logger.String("api", a.cfg.API.BaseURL),
		logger.Bool("auto_open", a.cfg.Stream.AutoOpen))
	a.readyOnce.Do(func() { close(a.ready) })

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	loads.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return a.shutdown(shutdownCtx, stopHub)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context, stopHub context.CancelFunc) error {
	start := time.Now()
	var errs []error

	// stream first so no frame mutates the stores during teardown
	if err := a.core.Stream.Shutdown(ctx); err != nil {
		a.log.Warn("stream shutdown error", logger.Error(err))
		errs = append(errs, err)
	}
	a.core.Board.Stop()

	if err := a.http.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", logger.Error(err))
		errs = append(errs, err)
	}

	stopHub()
	if a.core.Hub != nil {
		select {
		case <-a.core.Hub.Done():
		case <-ctx.Done():
		}
	}

	if a.core.Fanout != nil {
		if err := a.core.Fanout.Stop(ctx); err != nil {
			a.log.Warn("event fanout stop error", logger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("cache close error", logger.Error(err))
		}
	}

	a.log.Info("shutdown complete", logger.Duration("took", time.Since(start)))
	// the collector publishes through the event producer
	a.log.RemoveCollector()
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
