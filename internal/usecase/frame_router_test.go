package usecase

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/alerts"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/market"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/portfolio"
)

type countingMetrics struct {
	frames  map[string]int
	errors  map[string]int
	latency map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{frames: map[string]int{}, errors: map[string]int{}, latency: map[string]int{}}
}

func (m *countingMetrics) RecordFrame(kind string)            { m.frames[kind]++ }
func (m *countingMetrics) RecordError(kind string)            { m.errors[kind]++ }
func (m *countingMetrics) RecordLastPrice(string, float64)    {}
func (m *countingMetrics) RecordLatency(op string, _ float64) { m.latency[op]++ }
func (m *countingMetrics) RecordConnState(string)             {}
func (m *countingMetrics) RecordReconnect()                   {}
func (m *countingMetrics) RecordAlertFired(string, string)    {}
func (m *countingMetrics) SetActiveAlerts(int)                {}

type fixture struct {
	market    *market.Store
	portfolio *portfolio.Store
	alerts    *alerts.Engine
	board     *StatusBoard
	metrics   *countingMetrics
	router    *FrameRouter
}

func newFixture() *fixture {
	f := &fixture{
		market:    market.New([]string{"GARAN", "THYAO"}, "", nil),
		portfolio: portfolio.New(nil, nil),
		alerts:    alerts.New(),
		board:     NewStatusBoard(nil, nil),
		metrics:   newCountingMetrics(),
	}
	f.router = NewFrameRouter(f.market, f.portfolio, f.alerts, f.board, f.metrics, nil)
	return f
}

func price(t *testing.T, s *market.Store, symbol string) string {
	t.Helper()
	tk, ok := s.Select(symbol)
	require.True(t, ok, symbol)
	return tk.Price.String()
}

func TestMarketUpdateReplacesAndEvaluatesAlerts(t *testing.T) {
	f := newFixture()
	_, err := f.alerts.Register("GARAN", models.ConditionAbove, decimal.RequireFromString("82"))
	require.NoError(t, err)

	var fired []models.AlertRule
	f.alerts.Subscribe(func(r models.AlertRule) { fired = append(fired, r) })

	f.router.Dispatch([]byte(`{"type":"MARKET_UPDATE","status":"OK","source":"Yahoo","data":[{"symbol":"GARAN","price":81.5,"change":0,"volume":"1M"}]}`))
	assert.Equal(t, "81.5", price(t, f.market, "GARAN"))
	assert.Empty(t, fired)

	f.router.Dispatch([]byte(`{"type":"MARKET_UPDATE","status":"OK","source":"Yahoo","data":[{"symbol":"GARAN","price":82,"change":0.6,"volume":"1M"}]}`))
	require.Len(t, fired, 1)

	f.router.Dispatch([]byte(`{"type":"MARKET_UPDATE","status":"OK","source":"Yahoo","data":[{"symbol":"GARAN","price":83,"change":1.8,"volume":"1M"}]}`))
	assert.Len(t, fired, 1)
	assert.Equal(t, 3, f.metrics.frames[models.TypeMarketUpdate])
	assert.Equal(t, 3, f.metrics.latency["route"])
	assert.Zero(t, f.metrics.latency["dispatch"], "dispatch latency belongs to the stream client")

	st := f.board.Status().Feed
	assert.Equal(t, models.FeedOK, st.Level)
	assert.Equal(t, "Yahoo", st.Source)
}

func TestMalformedFrameBetweenUpdatesIsDropped(t *testing.T) {
	f := newFixture()

	f.router.Dispatch([]byte(`{"type":"MARKET_UPDATE","data":[{"symbol":"GARAN","price":81.5,"volume":"1M"}]}`))
	f.router.Dispatch([]byte(`{"type":"MARKET_UPDATE","data":[{"symbol":`))
	assert.Equal(t, "81.5", price(t, f.market, "GARAN"))

	f.router.Dispatch([]byte(`{"type":"MARKET_UPDATE","data":[{"symbol":"GARAN","price":82.25,"volume":"1M"}]}`))
	assert.Equal(t, "82.25", price(t, f.market, "GARAN"))

	assert.Equal(t, 1, f.metrics.errors["decode"])
	assert.Equal(t, 2, f.metrics.frames[models.TypeMarketUpdate])
}

func TestInvalidTickerSetIsDroppedWhole(t *testing.T) {
	f := newFixture()
	f.router.Dispatch([]byte(`{"type":"MARKET_UPDATE","data":[{"symbol":"GARAN","price":80,"volume":"1M"}]}`))
	f.router.Dispatch([]byte(`{"type":"MARKET_UPDATE","data":[{"symbol":"GARAN","price":81,"volume":"1M"},{"symbol":"GARAN","price":82,"volume":"1M"}]}`))

	assert.Equal(t, "80", price(t, f.market, "GARAN"))
	assert.Equal(t, 1, f.metrics.errors["market_update"])
	assert.Equal(t, models.FeedOK, f.board.Status().Feed.Level, "rejected set does not touch feed health")
}

func TestPortfolioUpdateReplacesSnapshot(t *testing.T) {
	f := newFixture()
	f.router.Dispatch([]byte(`{"type":"PORTFOLIO_UPDATE","data":{"cash":91800,"realized_pnl":0,"positions":{"GARAN":{"side":"LONG","quantity":100,"entry_price":82}},"trade_history":[],"closed_trades":[]}}`))

	p := f.portfolio.Snapshot()
	assert.True(t, p.Cash.Equal(decimal.NewFromInt(91800)))
	require.Contains(t, p.Positions, "GARAN")
	assert.Equal(t, "stream", f.portfolio.Status().Source)
}

func TestCriticalErrorMarksFeedCritical(t *testing.T) {
	f := newFixture()
	f.router.Dispatch([]byte(`{"type":"MARKET_CRITICAL_ERROR","error":"all sources failed"}`))

	feed := f.board.Status().Feed
	assert.Equal(t, models.FeedCritical, feed.Level)
	assert.Equal(t, "all sources failed", feed.Message)
}

func TestPongRecordsLiveness(t *testing.T) {
	f := newFixture()
	assert.Nil(t, f.board.Status().LastPongAt)

	f.router.Dispatch([]byte("pong"))
	assert.NotNil(t, f.board.Status().LastPongAt)
}

func TestUnrecognizedFrameIsIgnored(t *testing.T) {
	f := newFixture()
	before := f.market.Snapshot()

	f.router.Dispatch([]byte(`{"type":"BACKTEST_PROGRESS","data":{"pct":40}}`))

	assert.Equal(t, before, f.market.Snapshot())
	assert.Equal(t, 1, f.metrics.frames["UNRECOGNIZED"])
	assert.Empty(t, f.metrics.errors)
}
