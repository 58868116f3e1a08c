package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func samplePortfolio() models.Portfolio {
	entry := time.Date(2024, 10, 10, 9, 30, 0, 0, time.UTC)
	live := dec("84")
	conf := 0.82
	regime := "BULL"
	return models.Portfolio{
		Cash:        dec("91800"),
		RealizedPnL: dec("-125.5"),
		Positions: map[string]models.Position{
			"GARAN": {Side: models.SideLong, Quantity: dec("100"), EntryPrice: dec("82"), EntryTime: &entry, CurrentPrice: &live, EntryConfidence: &conf, EntryRegime: &regime},
			"THYAO": {Side: models.SideShort, Quantity: dec("10"), EntryPrice: dec("300")},
		},
		TradeHistory: json.RawMessage(`[{"symbol":"AKBNK","pnl":-125.5}]`),
		ClosedTrades: json.RawMessage(`[]`),
	}
}

func TestInitialState(t *testing.T) {
	s := New(nil, nil)
	p := s.Snapshot()
	assert.True(t, p.Cash.Equal(dec("100000")))
	assert.Empty(t, p.Positions)
	assert.Equal(t, "none", s.Status().Source)
}

func TestReplaceAllRoundTrip(t *testing.T) {
	s := New(nil, nil)
	want := samplePortfolio()

	require.NoError(t, s.ReplaceAll(want))

	assert.Equal(t, want, s.Snapshot())
	assert.Equal(t, "stream", s.Status().Source)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New(nil, nil)
	require.NoError(t, s.ReplaceAll(samplePortfolio()))

	snap := s.Snapshot()
	delete(snap.Positions, "GARAN")
	snap.TradeHistory[0] = 'x'

	again := s.Snapshot()
	assert.Contains(t, again.Positions, "GARAN")
	assert.JSONEq(t, `[{"symbol":"AKBNK","pnl":-125.5}]`, string(again.TradeHistory))
}

func TestReplaceAllPrunesClosedPositions(t *testing.T) {
	s := New(nil, nil)
	p := samplePortfolio()
	p.Positions["AKBNK"] = models.Position{Side: models.SideLong, Quantity: decimal.Zero, EntryPrice: dec("45")}

	require.NoError(t, s.ReplaceAll(p))
	assert.NotContains(t, s.Snapshot().Positions, "AKBNK")
	assert.Len(t, s.Snapshot().Positions, 2)
}

func TestReplaceAllRejectsInvalid(t *testing.T) {
	cases := map[string]models.Position{
		"negative quantity": {Side: models.SideLong, Quantity: dec("-1"), EntryPrice: dec("10")},
		"unknown side":      {Side: "FLAT", Quantity: dec("1"), EntryPrice: dec("10")},
		"missing side":      {Quantity: dec("1"), EntryPrice: dec("10")},
	}
	for name, pos := range cases {
		t.Run(name, func(t *testing.T) {
			s := New(nil, nil)
			before := samplePortfolio()
			require.NoError(t, s.ReplaceAll(before))

			bad := samplePortfolio()
			bad.Positions["ODAS"] = pos
			require.ErrorIs(t, s.ReplaceAll(bad), ErrInvalidSnapshot)

			assert.Equal(t, before, s.Snapshot())
		})
	}
}

func TestSubscribe(t *testing.T) {
	s := New(nil, nil)
	var got []models.Portfolio
	cancel := s.Subscribe(func(p models.Portfolio) { got = append(got, p) })

	require.NoError(t, s.ReplaceAll(samplePortfolio()))
	cancel()
	require.NoError(t, s.ReplaceAll(models.EmptyPortfolio()))

	require.Len(t, got, 1)
	assert.Len(t, got[0].Positions, 2)
}

type stubFetcher struct {
	p       models.Portfolio
	err     error
	calls   int
	onFetch func()
}

func (f *stubFetcher) FetchPortfolio(context.Context) (models.Portfolio, error) {
	f.calls++
	if f.onFetch != nil {
		f.onFetch()
	}
	return f.p, f.err
}

func TestLoadInitialSuccess(t *testing.T) {
	f := &stubFetcher{p: samplePortfolio()}
	s := New(f, nil)

	require.NoError(t, s.LoadInitial(context.Background()))

	st := s.Status()
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)
	assert.Equal(t, "fetch", st.Source)
	assert.Equal(t, samplePortfolio(), s.Snapshot())
}

func TestLoadInitialFailureThenStreamUpdateClearsError(t *testing.T) {
	f := &stubFetcher{err: errors.New("connection refused")}
	s := New(f, nil)

	require.Error(t, s.LoadInitial(context.Background()))
	st := s.Status()
	assert.False(t, st.Loading)
	assert.Contains(t, st.Error, "connection refused")
	assert.Equal(t, 1, f.calls, "no retry")
	assert.True(t, s.Snapshot().Cash.Equal(models.InitialCash))

	require.NoError(t, s.ReplaceAll(samplePortfolio()))
	st = s.Status()
	assert.Empty(t, st.Error)
	assert.Equal(t, "stream", st.Source)
}

func TestLoadInitialLosesToConcurrentStreamUpdate(t *testing.T) {
	fetched := samplePortfolio()
	fetched.Cash = dec("1")
	f := &stubFetcher{p: fetched}
	s := New(f, nil)

	streamed := samplePortfolio()
	f.onFetch = func() { require.NoError(t, s.ReplaceAll(streamed)) }

	require.NoError(t, s.LoadInitial(context.Background()))
	assert.Equal(t, streamed, s.Snapshot())
	assert.Equal(t, "stream", s.Status().Source)
}

func TestStreamUpdateBeforeFetchSwapWins(t *testing.T) {
	fetched := samplePortfolio()
	fetched.Cash = dec("1")
	s := New(&stubFetcher{p: fetched}, nil)

	streamed := samplePortfolio()
	s.beforeSwap = func() { require.NoError(t, s.ReplaceAll(streamed)) }

	require.NoError(t, s.LoadInitial(context.Background()))
	assert.Equal(t, streamed, s.Snapshot())
	st := s.Status()
	assert.Equal(t, "stream", st.Source)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)
}

func TestLoadInitialWithoutFetcher(t *testing.T) {
	s := New(nil, nil)
	require.ErrorIs(t, s.LoadInitial(context.Background()), ErrNoSource)
	assert.Equal(t, ErrNoSource.Error(), s.Status().Error)
}

func TestValuation(t *testing.T) {
	s := New(nil, nil)
	require.NoError(t, s.ReplaceAll(samplePortfolio()))

	prices := map[string]decimal.Decimal{"GARAN": dec("85"), "THYAO": dec("290")}

	// 91800 + 100*85 + 10*290
	assert.True(t, s.TotalValue(prices).Equal(dec("103200")), s.TotalValue(prices).String())

	// GARAN falls back to current_price 84, THYAO to entry 300
	assert.True(t, s.TotalValue(nil).Equal(dec("103200")), s.TotalValue(nil).String())

	// zero prices are placeholders, not quotes
	seeded := map[string]decimal.Decimal{"GARAN": decimal.Zero}
	assert.True(t, s.TotalValue(seeded).Equal(dec("103200")))

	open := s.OpenPositions(prices)
	require.Len(t, open, 2)

	garan := open[0]
	assert.Equal(t, "GARAN", garan.Symbol)
	assert.True(t, garan.CostBasis.Equal(dec("8200")))
	assert.True(t, garan.MarketValue.Equal(dec("8500")))
	assert.True(t, garan.PnL.Equal(dec("300")))
	assert.True(t, garan.PnLPercent.Equal(dec("3.66")), garan.PnLPercent.String())

	thyao := open[1]
	assert.Equal(t, "THYAO", thyao.Symbol)
	assert.True(t, thyao.PnL.Equal(dec("100")), "short gains when price falls: %s", thyao.PnL)
	assert.True(t, thyao.PnLPercent.Equal(dec("3.33")), thyao.PnLPercent.String())
}
