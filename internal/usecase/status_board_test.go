package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/alerts"
)

type fakeStream struct {
	mu     sync.Mutex
	status models.ConnStatus
	subs   map[int]func(models.ConnStatus)
	next   int
}

func newFakeStream() *fakeStream {
	return &fakeStream{status: models.ConnStatus{State: models.ConnDisconnected}, subs: map[int]func(models.ConnStatus){}}
}

func (s *fakeStream) Open(context.Context) error { return nil }
func (s *fakeStream) Close() error               { return nil }
func (s *fakeStream) State() models.ConnState    { return s.Status().State }

func (s *fakeStream) Status() models.ConnStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *fakeStream) Subscribe(fn func(models.ConnStatus)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *fakeStream) set(state models.ConnState) {
	s.mu.Lock()
	s.status = models.ConnStatus{State: state}
	fns := make([]func(models.ConnStatus), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	st := s.status
	s.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

func TestFeedClassification(t *testing.T) {
	cases := []struct {
		status, source string
		want           models.FeedLevel
	}{
		{"OK", "Yahoo Finance", models.FeedOK},
		{"OK", "Redis Cache", models.FeedWarning},
		{"", "local cache", models.FeedWarning},
		{"ERROR", "Redis Cache", models.FeedCritical},
		{"critical", "Yahoo Finance", models.FeedCritical},
		{"", "", models.FeedOK},
	}
	for _, tc := range cases {
		b := NewStatusBoard(nil, nil)
		b.ReportFeed(tc.status, tc.source)
		feed := b.Status().Feed
		assert.Equal(t, tc.want, feed.Level, "%q/%q", tc.status, tc.source)
		assert.NotNil(t, feed.UpdatedAt)
	}
}

func TestStatusBoardFollowsStream(t *testing.T) {
	st := newFakeStream()
	b := NewStatusBoard(st, nil)
	assert.Equal(t, models.FeedUnknown, b.Status().Feed.Level)
	assert.Equal(t, models.ConnDisconnected, b.Status().Connection.State)

	var got []models.ConnState
	b.Subscribe(func(s models.DashboardStatus) { got = append(got, s.Connection.State) })

	st.set(models.ConnConnecting)
	st.set(models.ConnOpen)
	assert.Equal(t, models.ConnOpen, b.Status().Connection.State)

	b.Stop()
	st.set(models.ConnDisconnected)
	assert.Equal(t, models.ConnOpen, b.Status().Connection.State)
	assert.Equal(t, []models.ConnState{models.ConnConnecting, models.ConnOpen}, got)
}

func TestCriticalThenRecovery(t *testing.T) {
	b := NewStatusBoard(nil, nil)
	b.ReportCritical("")
	assert.Equal(t, models.FeedCritical, b.Status().Feed.Level)
	assert.NotEmpty(t, b.Status().Feed.Message)

	b.ReportFeed("OK", "Yahoo Finance")
	assert.Equal(t, models.FeedOK, b.Status().Feed.Level)
}

type recordingPublisher struct {
	mu     sync.Mutex
	alerts []models.AlertRule
	states []models.DashboardStatus
	err    error
}

func (p *recordingPublisher) PublishAlert(_ context.Context, r models.AlertRule) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, r)
	return p.err
}

func (p *recordingPublisher) PublishStatus(_ context.Context, s models.DashboardStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, s)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.alerts), len(p.states)
}

func TestEventFanoutPublishesAlertsAndTransitions(t *testing.T) {
	pub := &recordingPublisher{}
	engine := alerts.New()
	board := NewStatusBoard(nil, nil)
	fan := NewEventFanout(pub, nil, nil, 16)
	fan.Start(engine, board)

	_, err := engine.Register("GARAN", models.ConditionAbove, decimal.NewFromInt(82))
	require.NoError(t, err)
	engine.Evaluate(map[string]decimal.Decimal{"GARAN": decimal.NewFromInt(90)})

	board.ReportFeed("OK", "Yahoo")
	board.ReportFeed("OK", "Yahoo")
	board.ReportPong(time.Now())
	board.ReportFeed("OK", "Redis Cache")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, fan.Stop(ctx))

	nAlerts, nStates := pub.counts()
	assert.Equal(t, 1, nAlerts)
	assert.Equal(t, 2, nStates, "only level changes are forwarded")
	assert.Equal(t, "GARAN", pub.alerts[0].Symbol)
	assert.Equal(t, models.FeedWarning, pub.states[1].Feed.Level)

	// no sends after stop
	board.ReportCritical("late")
	_, nStates = pub.counts()
	assert.Equal(t, 2, nStates)
}

func TestEventFanoutSurvivesPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	engine := alerts.New()
	fan := NewEventFanout(pub, nil, nil, 4)
	fan.Start(engine, nil)

	for i := 0; i < 3; i++ {
		_, _ = engine.Register("THYAO", models.ConditionBelow, decimal.NewFromInt(300))
	}
	engine.Evaluate(map[string]decimal.Decimal{"THYAO": decimal.NewFromInt(250)})

	require.NoError(t, fan.Stop(context.Background()))
	nAlerts, _ := pub.counts()
	assert.Equal(t, 3, nAlerts)
}

func TestEventFanoutStopWithoutStart(t *testing.T) {
	fan := NewEventFanout(&recordingPublisher{}, nil, nil, 1)
	require.NoError(t, fan.Stop(context.Background()))
}

func TestStatusBoardFollowLateStream(t *testing.T) {
	b := NewStatusBoard(nil, nil)
	st := newFakeStream()
	st.set(models.ConnConnecting)

	b.Follow(st)
	assert.Equal(t, models.ConnConnecting, b.Status().Connection.State)

	st.set(models.ConnOpen)
	assert.Equal(t, models.ConnOpen, b.Status().Connection.State)
}
