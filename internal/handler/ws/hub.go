// Package ws pushes dashboard state changes to browser sockets.
package ws

import (
	"context"
	"time"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
	drepo "github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/repository"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/alerts"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/market"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/portfolio"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/usecase"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/logger"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/metrics"
)

const defaultBroadcastBuffer = 256

// Sources are the stores whose changes are pushed.
type Sources struct {
	Market    *market.Store
	Portfolio *portfolio.Store
	Alerts    *alerts.Engine
	Board     *usecase.StatusBoard
}

// Hub owns the connected clients. Only the Run goroutine touches the
// client set.
type Hub struct {
	src     Sources
	log     *logger.Logger
	metrics drepo.Metrics
	now     func() time.Time

	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan models.PushEvent
	done       chan struct{}

	cancels []func()
}

func NewHub(src Sources, log *logger.Logger, m drepo.Metrics, buffer int) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if buffer <= 0 {
		buffer = defaultBroadcastBuffer
	}
	return &Hub{
		src:        src,
		log:        log,
		metrics:    m,
		now:        time.Now,
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan models.PushEvent, buffer),
		done:       make(chan struct{}),
	}
}

// Attach subscribes the hub to every configured source. Call before Run.
func (h *Hub) Attach() {
	if h.src.Market != nil {
		h.cancels = append(h.cancels,
			h.src.Market.Subscribe(func(t []models.Ticker) { h.Broadcast(models.PushMarket, t) }),
			h.src.Market.SubscribeHistory(func(hist models.History) { h.Broadcast(models.PushHistory, hist) }),
		)
	}
	if h.src.Portfolio != nil {
		h.cancels = append(h.cancels,
			h.src.Portfolio.Subscribe(func(p models.Portfolio) { h.Broadcast(models.PushPortfolio, p) }))
	}
	if h.src.Alerts != nil {
		h.cancels = append(h.cancels,
			h.src.Alerts.Subscribe(func(r models.AlertRule) { h.Broadcast(models.PushAlert, r) }))
	}
	if h.src.Board != nil {
		h.cancels = append(h.cancels,
			h.src.Board.Subscribe(func(s models.DashboardStatus) { h.Broadcast(models.PushStatus, s) }))
	}
}

// Broadcast queues an event for every client. It never blocks: store
// listeners run on the frame dispatch goroutine.
func (h *Hub) Broadcast(kind models.PushType, data interface{}) {
	select {
	case h.broadcast <- models.PushEvent{Type: kind, At: h.now(), Data: data}:
	default:
		h.metrics.RecordError("ws_broadcast_dropped")
	}
}

// Run serves the hub until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, cancel := range h.cancels {
				cancel()
			}
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			c.send <- h.snapshot()
			h.log.Debug("ws client connected", logger.String("remote", c.remote), logger.Int("clients", len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.log.Debug("ws client disconnected", logger.String("remote", c.remote), logger.Int("clients", len(h.clients)))
			}

		case ev := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- ev:
				default:
					// slow consumer
					delete(h.clients, c)
					close(c.send)
					h.metrics.RecordError("ws_slow_client")
					h.log.Warn("ws client dropped, send buffer full", logger.String("remote", c.remote))
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) snapshot() models.PushEvent {
	var snap models.DashboardSnapshot
	if h.src.Market != nil {
		snap.Tickers = h.src.Market.Snapshot()
		snap.History = h.src.Market.History()
	}
	if h.src.Portfolio != nil {
		snap.Portfolio = h.src.Portfolio.Snapshot()
	}
	if h.src.Alerts != nil {
		snap.Alerts = h.src.Alerts.Rules()
	}
	if h.src.Board != nil {
		snap.Status = h.src.Board.Status()
	}
	return models.PushEvent{Type: models.PushSnapshot, At: h.now(), Data: snap}
}
