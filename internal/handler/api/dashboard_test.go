package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/alerts"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/market"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/portfolio"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/ratelimit"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/stream"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/usecase"
)

type stubStream struct {
	openErr error
	status  models.ConnStatus
	closes  int
}

func (s *stubStream) Open(context.Context) error {
	if s.openErr == nil {
		s.status.State = models.ConnOpen
	}
	return s.openErr
}

func (s *stubStream) Close() error {
	s.closes++
	s.status.State = models.ConnDisconnected
	s.status.ManualClose = true
	return nil
}

func (s *stubStream) State() models.ConnState                           { return s.status.State }
func (s *stubStream) Status() models.ConnStatus                         { return s.status }
func (s *stubStream) Subscribe(func(models.ConnStatus)) (cancel func()) { return func() {} }

type stubHistory struct {
	candles []models.Candle
	err     error
}

func (f stubHistory) FetchHistory(context.Context, string) ([]models.Candle, error) {
	return f.candles, f.err
}

type env struct {
	e       *echo.Echo
	stream  *stubStream
	market  *market.Store
	pf      *portfolio.Store
	alerts  *alerts.Engine
	board   *usecase.StatusBoard
	history *stubHistory
}

func newEnv(t *testing.T, limiter *ratelimit.Limiter) *env {
	t.Helper()
	hist := &stubHistory{}
	v := &env{
		e:       echo.New(),
		stream:  &stubStream{status: models.ConnStatus{URL: "ws://127.0.0.1:8000/ws"}},
		pf:      portfolio.New(nil, nil),
		alerts:  alerts.New(),
		history: hist,
	}
	v.market = market.New([]string{"GARAN", "THYAO", "XU100"}, "XU100", historyProxy{v})
	v.board = usecase.NewStatusBoard(v.stream, nil)
	NewDashboardHandler(nil, v.stream, v.market, v.pf, v.alerts, v.board, limiter).RegisterRoutes(v.e)
	return v
}

// historyProxy lets tests swap the fetch outcome after construction.
type historyProxy struct{ v *env }

func (p historyProxy) FetchHistory(ctx context.Context, symbol string) ([]models.Candle, error) {
	return p.v.history.FetchHistory(ctx, symbol)
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (v *env) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)

	var out envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestTickersEndpoints(t *testing.T) {
	v := newEnv(t, nil)
	require.NoError(t, v.market.ReplaceAll([]models.Ticker{
		{Symbol: "GARAN", Price: decimal.RequireFromString("82.5"), Change: 1.2, Volume: "12M"},
	}))

	rec, body := v.do(t, http.MethodGet, "/api/market/tickers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list models.TickersResponse
	require.NoError(t, json.Unmarshal(body.Data, &list))
	require.Len(t, list.Tickers, 1)
	assert.False(t, list.Seeded)
	assert.Equal(t, "XU100", list.Active)
	assert.NotNil(t, list.UpdatedAt)

	rec, body = v.do(t, http.MethodGet, "/api/market/tickers/garan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tk models.Ticker
	require.NoError(t, json.Unmarshal(body.Data, &tk))
	assert.True(t, tk.Price.Equal(decimal.RequireFromString("82.5")))

	rec, _ = v.do(t, http.MethodGet, "/api/market/tickers/THYAO", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "replacement dropped THYAO")
}

func TestSetActiveInstrument(t *testing.T) {
	v := newEnv(t, nil)
	v.history.candles = []models.Candle{
		{Close: decimal.NewFromInt(80)},
		{Close: decimal.NewFromInt(81)},
		{Close: decimal.NewFromInt(82)},
	}

	rec, body := v.do(t, http.MethodPut, "/api/market/active", `{"symbol":"garan"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var active models.ActiveResponse
	require.NoError(t, json.Unmarshal(body.Data, &active))
	assert.Equal(t, "GARAN", active.Symbol)
	assert.Len(t, active.History.Candles, 3)
	assert.False(t, active.History.Loading)

	rec, body = v.do(t, http.MethodGet, "/api/market/history?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var hist models.History
	require.NoError(t, json.Unmarshal(body.Data, &hist))
	require.Len(t, hist.Candles, 2)
	assert.True(t, hist.Candles[1].Close.Equal(decimal.NewFromInt(82)))

	rec, _ = v.do(t, http.MethodPut, "/api/market/active", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetActiveInstrumentFetchFailure(t *testing.T) {
	v := newEnv(t, nil)
	v.history.err = errors.New("no data for symbol")

	rec, body := v.do(t, http.MethodPut, "/api/market/active", `{"symbol":"THYAO"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var active models.ActiveResponse
	require.NoError(t, json.Unmarshal(body.Data, &active))
	assert.Equal(t, "THYAO", active.Symbol)
	assert.Contains(t, active.History.Error, "no data for symbol")
	assert.Empty(t, active.History.Candles)
}

func TestAlertLifecycle(t *testing.T) {
	v := newEnv(t, nil)

	rec, body := v.do(t, http.MethodPost, "/api/alerts", `{"symbol":"GARAN","condition":"ABOVE","target_price":"82.00"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rule models.AlertRule
	require.NoError(t, json.Unmarshal(body.Data, &rule))
	assert.True(t, rule.IsActive)
	assert.NotEmpty(t, rule.ID)

	v.alerts.Evaluate(map[string]decimal.Decimal{"GARAN": decimal.NewFromInt(83)})

	rec, body = v.do(t, http.MethodGet, "/api/alerts/triggered", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []models.AlertRule `json:"rows"`
		Total int                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &list))
	require.Len(t, list.Rows, 1)
	assert.Equal(t, rule.ID, list.Rows[0].ID)
	require.NotNil(t, list.Rows[0].TriggerPrice)

	rec, body = v.do(t, http.MethodPost, "/api/alerts/triggered/consume", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(body.Data, &list))
	assert.Equal(t, 1, list.Total)

	rec, _ = v.do(t, http.MethodDelete, "/api/alerts/triggered", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, v.alerts.Triggered())

	rec, _ = v.do(t, http.MethodDelete, "/api/alerts/"+rule.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec, _ = v.do(t, http.MethodDelete, "/api/alerts/"+rule.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAlertValidation(t *testing.T) {
	v := newEnv(t, nil)
	cases := []string{
		`{"condition":"ABOVE","target_price":10}`,
		`{"symbol":"GARAN","condition":"SIDEWAYS","target_price":10}`,
		`{"symbol":"GARAN","condition":"BELOW","target_price":0}`,
		`{"symbol":"GARAN","condition":"BELOW","target_price":-3}`,
		`{"symbol":`,
	}
	for _, body := range cases {
		rec, _ := v.do(t, http.MethodPost, "/api/alerts", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, v.alerts.Rules())
}

func TestCreateAlertAcceptsLowercaseCondition(t *testing.T) {
	v := newEnv(t, nil)
	for _, cond := range []string{"below", "Above"} {
		rec, body := v.do(t, http.MethodPost, "/api/alerts", `{"symbol":"garan","condition":"`+cond+`","target_price":75}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var rule models.AlertRule
		require.NoError(t, json.Unmarshal(body.Data, &rule))
		assert.Equal(t, "GARAN", rule.Symbol)
		assert.True(t, rule.Condition.Valid(), string(rule.Condition))
	}
	rules := v.alerts.Rules()
	require.Len(t, rules, 2)
	assert.ElementsMatch(t, []models.Condition{models.ConditionBelow, models.ConditionAbove},
		[]models.Condition{rules[0].Condition, rules[1].Condition})
}

func TestCreateAlertIsThrottled(t *testing.T) {
	v := newEnv(t, ratelimit.New(2, 0))
	body := `{"symbol":"GARAN","condition":"BELOW","target_price":75}`

	for i := 0; i < 2; i++ {
		rec, _ := v.do(t, http.MethodPost, "/api/alerts", body)
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec, _ := v.do(t, http.MethodPost, "/api/alerts", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Len(t, v.alerts.Rules(), 2)

	rec, _ = v.do(t, http.MethodGet, "/api/alerts", "")
	assert.Equal(t, http.StatusOK, rec.Code, "reads are not throttled")
}

func TestPortfolioEndpoints(t *testing.T) {
	v := newEnv(t, nil)
	require.NoError(t, v.pf.ReplaceAll(models.Portfolio{
		Cash:        decimal.NewFromInt(91800),
		RealizedPnL: decimal.Zero,
		Positions: map[string]models.Position{
			"GARAN": {Side: models.SideLong, Quantity: decimal.NewFromInt(100), EntryPrice: decimal.NewFromInt(82)},
		},
	}))
	require.NoError(t, v.market.ReplaceAll([]models.Ticker{
		{Symbol: "GARAN", Price: decimal.NewFromInt(85), Volume: "1M"},
	}))

	rec, body := v.do(t, http.MethodGet, "/api/portfolio", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pr models.PortfolioResponse
	require.NoError(t, json.Unmarshal(body.Data, &pr))
	assert.True(t, pr.Portfolio.Cash.Equal(decimal.NewFromInt(91800)))
	assert.True(t, pr.TotalValue.Equal(decimal.NewFromInt(100300)), pr.TotalValue.String())
	assert.Equal(t, "stream", pr.Status.Source)

	rec, body = v.do(t, http.MethodGet, "/api/portfolio/positions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows []models.OpenPosition `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &list))
	require.Len(t, list.Rows, 1)
	assert.True(t, list.Rows[0].PnL.Equal(decimal.NewFromInt(300)), list.Rows[0].PnL.String())
}

func TestStreamControl(t *testing.T) {
	v := newEnv(t, nil)

	rec, body := v.do(t, http.MethodPost, "/api/stream/open", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sr models.StreamResponse
	require.NoError(t, json.Unmarshal(body.Data, &sr))
	assert.Equal(t, models.ConnOpen, v.stream.status.State)

	rec, _ = v.do(t, http.MethodPost, "/api/stream/close", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, v.stream.closes)

	v.stream.openErr = errors.New("dial tcp: connection refused")
	rec, body = v.do(t, http.MethodPost, "/api/stream/open", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, json.Unmarshal(body.Data, &sr))
	assert.Contains(t, sr.Error, "connection refused")

	v.stream.openErr = stream.ErrShutdown
	rec, _ = v.do(t, http.MethodPost, "/api/stream/open", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	v := newEnv(t, nil)
	v.board.ReportFeed("OK", "Redis Cache")

	rec, body := v.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st models.DashboardStatus
	require.NoError(t, json.Unmarshal(body.Data, &st))
	assert.Equal(t, models.FeedWarning, st.Feed.Level)
	assert.Equal(t, "Redis Cache", st.Feed.Source)
}
