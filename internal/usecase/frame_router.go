package usecase

import (
	"time"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
	drepo "github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/repository"
	dsvc "github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/service"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/protocol"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/stream"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/logger"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/metrics"
)

// FrameRouter decodes raw stream frames and routes them to the state
// holders. It runs on the stream client's dispatch goroutine, so one frame's
// store updates and alert evaluation finish before the next frame starts.
type FrameRouter struct {
	market    dsvc.MarketState
	portfolio dsvc.PortfolioState
	alerts    dsvc.AlertEvaluator
	status    dsvc.StatusSink
	metrics   drepo.Metrics
	log       *logger.Logger
	now       func() time.Time
}

var _ stream.FrameHandler = (*FrameRouter)(nil)

func NewFrameRouter(market dsvc.MarketState, portfolio dsvc.PortfolioState, alerts dsvc.AlertEvaluator, status dsvc.StatusSink, m drepo.Metrics, log *logger.Logger) *FrameRouter {
	if m == nil {
		m = metrics.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &FrameRouter{
		market:    market,
		portfolio: portfolio,
		alerts:    alerts,
		status:    status,
		metrics:   m,
		log:       log,
		now:       time.Now,
	}
}

// Dispatch never returns an error to the transport. Frames that fail to
// decode or validate are logged and dropped.
func (r *FrameRouter) Dispatch(raw []byte) {
	start := r.now()
	msg, err := protocol.Decode(raw)
	if err != nil {
		r.metrics.RecordError("decode")
		r.log.Warn("dropping undecodable frame", logger.Error(err), logger.Int("bytes", len(raw)))
		return
	}
	r.metrics.RecordFrame(kindOf(msg))

	switch m := msg.(type) {
	case models.MarketUpdate:
		r.onMarket(m)
	case models.PortfolioUpdate:
		if err := r.portfolio.ReplaceAll(m.Portfolio); err != nil {
			r.metrics.RecordError("portfolio_update")
			r.log.Warn("dropping portfolio update", logger.Error(err))
		}
	case models.CriticalError:
		r.log.Error("market feed reported critical error", logger.String("message", m.Message))
		if r.status != nil {
			r.status.ReportCritical(m.Message)
		}
	case models.Pong:
		if r.status != nil {
			r.status.ReportPong(r.now())
		}
	case models.Unrecognized:
		r.log.Debug("ignoring unrecognized frame", logger.String("type", m.Kind))
	}
	r.metrics.RecordLatency("route", r.now().Sub(start).Seconds())
}

func (r *FrameRouter) onMarket(m models.MarketUpdate) {
	if err := r.market.ReplaceAll(m.Tickers); err != nil {
		r.metrics.RecordError("market_update")
		r.log.Warn("dropping market update", logger.Error(err), logger.Int("tickers", len(m.Tickers)))
		return
	}
	if r.status != nil {
		r.status.ReportFeed(m.Status, m.Source)
	}
	if r.alerts == nil {
		return
	}
	fired := r.alerts.Evaluate(r.market.PriceMap())
	if len(fired) > 0 {
		r.log.Debug("alerts fired", logger.Int("count", len(fired)))
	}
}

func kindOf(msg models.Message) string {
	if _, ok := msg.(models.Unrecognized); ok {
		return "UNRECOGNIZED"
	}
	return msg.Type()
}
