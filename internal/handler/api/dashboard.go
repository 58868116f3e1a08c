package api

import (
	"errors"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
	drepo "github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/repository"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/alerts"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/market"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/portfolio"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/ratelimit"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/stream"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/usecase"
	xhttp "github.com/alptigingorkem-coder/bist30-ai-trader/pkg/http"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/logger"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/util"
)

func init() {
	xhttp.RegisterCustomTypeFunc(models.DecimalValue, decimal.Decimal{})
}

// DashboardHandler serves the read and control endpoints over the core
// stores.
type DashboardHandler struct {
	logger    *logger.Logger
	stream    drepo.MarketStream
	market    *market.Store
	portfolio *portfolio.Store
	alerts    *alerts.Engine
	board     *usecase.StatusBoard
	limiter   *ratelimit.Limiter
}

var _ xhttp.Handler = (*DashboardHandler)(nil)

// NewDashboardHandler wires the handler. A nil limiter disables throttling of
// alert creation.
func NewDashboardHandler(
	log *logger.Logger,
	st drepo.MarketStream,
	m *market.Store,
	p *portfolio.Store,
	a *alerts.Engine,
	board *usecase.StatusBoard,
	limiter *ratelimit.Limiter,
) *DashboardHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &DashboardHandler{
		logger:    log,
		stream:    st,
		market:    m,
		portfolio: p,
		alerts:    a,
		board:     board,
		limiter:   limiter,
	}
}

func (h *DashboardHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/status", h.Status)

	g.GET("/market/tickers", h.Tickers)
	g.GET("/market/tickers/:symbol", h.Ticker)
	g.GET("/market/active", h.Active)
	g.PUT("/market/active", h.SetActive)
	g.GET("/market/history", h.History)

	g.GET("/portfolio", h.Portfolio)
	g.GET("/portfolio/positions", h.Positions)

	g.GET("/alerts", h.Alerts)
	g.POST("/alerts", h.CreateAlert, h.throttle)
	g.DELETE("/alerts/:id", h.DeleteAlert)
	g.GET("/alerts/triggered", h.Triggered)
	g.POST("/alerts/triggered/consume", h.ConsumeTriggered)
	g.DELETE("/alerts/triggered", h.ClearTriggered)

	g.POST("/stream/open", h.OpenStream)
	g.POST("/stream/close", h.CloseStream)
}

func (h *DashboardHandler) throttle(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many requests, slow down"))
		}
		return next(c)
	}
}

func (h *DashboardHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.board.Status())
}

func (h *DashboardHandler) Tickers(c echo.Context) error {
	return xhttp.SuccessResponse(c, models.TickersResponse{
		Tickers:   h.market.Snapshot(),
		Seeded:    h.market.Seeded(),
		Active:    h.market.ActiveInstrument(),
		UpdatedAt: h.market.UpdatedAt(),
	})
}

func (h *DashboardHandler) Ticker(c echo.Context) error {
	symbol := util.NormalizeSymbol(c.Param("symbol"))
	t, ok := h.market.Select(symbol)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("symbol %s is not tracked", symbol).WithParam("symbol", symbol))
	}
	return xhttp.SuccessResponse(c, t)
}

func (h *DashboardHandler) Active(c echo.Context) error {
	return xhttp.SuccessResponse(c, models.ActiveResponse{
		Symbol:  h.market.ActiveInstrument(),
		History: h.market.History(),
	})
}

// SetActive switches the charted instrument and waits for its history. A
// failed fetch still switches; the error is reported inside the history.
func (h *DashboardHandler) SetActive(c echo.Context) error {
	req := &models.SetActiveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	err := h.market.SetActiveInstrument(c.Request().Context(), req.Symbol)
	if errors.Is(err, market.ErrInvalidSymbol) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid symbol %q", req.Symbol).WithParam("symbol", req.Symbol))
	}
	if err != nil {
		h.logger.Warn("active instrument history unavailable", logger.String("symbol", req.Symbol), logger.Error(err))
	}
	return h.Active(c)
}

func (h *DashboardHandler) History(c echo.Context) error {
	req := &models.HistoryQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	hist := h.market.History()
	if req.Limit > 0 && len(hist.Candles) > req.Limit {
		hist.Candles = hist.Candles[len(hist.Candles)-req.Limit:]
	}
	return xhttp.SuccessResponse(c, hist)
}

func (h *DashboardHandler) Portfolio(c echo.Context) error {
	return xhttp.SuccessResponse(c, models.PortfolioResponse{
		Portfolio:  h.portfolio.Snapshot(),
		Status:     h.portfolio.Status(),
		TotalValue: h.portfolio.TotalValue(h.market.PriceMap()),
	})
}

func (h *DashboardHandler) Positions(c echo.Context) error {
	rows := h.portfolio.OpenPositions(h.market.PriceMap())
	return xhttp.ListResponse(c, rows, len(rows))
}

func (h *DashboardHandler) Alerts(c echo.Context) error {
	rows := h.alerts.Rules()
	return xhttp.ListResponse(c, rows, len(rows))
}

func (h *DashboardHandler) CreateAlert(c echo.Context) error {
	req := &models.CreateAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	id, err := h.alerts.Register(req.Symbol, req.Condition, req.TargetPrice)
	if err != nil {
		if errors.Is(err, alerts.ErrInvalidAlert) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
		}
		h.logger.Error("register alert failed", logger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	rule, err := h.alerts.Get(id)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, rule)
}

func (h *DashboardHandler) DeleteAlert(c echo.Context) error {
	id := c.Param("id")
	if !h.alerts.Remove(id) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("alert %s not found", id))
	}
	return xhttp.NoContentResponse(c)
}

func (h *DashboardHandler) Triggered(c echo.Context) error {
	req := &models.TriggeredQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.alerts.Triggered()
	total := len(rows)
	if len(rows) > req.Limit {
		rows = rows[len(rows)-req.Limit:]
	}
	return xhttp.ListResponse(c, rows, total)
}

func (h *DashboardHandler) ConsumeTriggered(c echo.Context) error {
	rows := h.alerts.ConsumeTriggered()
	return xhttp.ListResponse(c, rows, len(rows))
}

func (h *DashboardHandler) ClearTriggered(c echo.Context) error {
	h.alerts.ClearTriggered()
	return xhttp.NoContentResponse(c)
}

// OpenStream opens the market stream. A failed dial is reported with 202:
// the reconnect policy keeps trying in the background.
func (h *DashboardHandler) OpenStream(c echo.Context) error {
	err := h.stream.Open(c.Request().Context())
	switch {
	case err == nil:
		return xhttp.SuccessResponse(c, models.StreamResponse{Status: h.stream.Status()})
	case errors.Is(err, stream.ErrShutdown):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("stream is shutting down"))
	case errors.Is(err, stream.ErrMalformedEndpoint):
		h.logger.Error("stream endpoint misconfigured", logger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("stream endpoint misconfigured").WithError(err))
	default:
		return xhttp.AcceptedResponse(c, models.StreamResponse{
			Status: h.stream.Status(),
			Error:  err.Error(),
		})
	}
}

func (h *DashboardHandler) CloseStream(c echo.Context) error {
	if err := h.stream.Close(); err != nil {
		h.logger.Warn("stream close reported an error", logger.Error(err))
	}
	return xhttp.SuccessResponse(c, models.StreamResponse{Status: h.stream.Status()})
}
