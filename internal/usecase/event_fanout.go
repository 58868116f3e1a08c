package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
	drepo "github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/repository"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/logger"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/metrics"
)

type AlertSource interface {
	Subscribe(fn func(models.AlertRule)) (cancel func())
}

type StatusSource interface {
	Subscribe(fn func(models.DashboardStatus)) (cancel func())
}

type fanoutEvent struct {
	alert  *models.AlertRule
	status *models.DashboardStatus
}

// EventFanout forwards fired alerts and status transitions to a publisher
// on its own goroutine so the dispatch worker never waits on the broker.
// Events are dropped when the buffer is full.
type EventFanout struct {
	pub       drepo.EventPublisher
	metrics   drepo.Metrics
	log       *logger.Logger
	timeout   time.Duration
	events    chan fanoutEvent
	done      chan struct{}
	cancels   []func()
	startOnce sync.Once
	stopOnce  sync.Once

	mu           sync.Mutex
	started      bool
	stopped      bool
	lastState    models.ConnState
	lastLevel    models.FeedLevel
	statusLoaded bool
}

func NewEventFanout(pub drepo.EventPublisher, m drepo.Metrics, log *logger.Logger, buffer int) *EventFanout {
	if m == nil {
		m = metrics.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &EventFanout{
		pub:     pub,
		metrics: m,
		log:     log,
		timeout: 5 * time.Second,
		events:  make(chan fanoutEvent, buffer),
		done:    make(chan struct{}),
	}
}

// Start subscribes to the sources and launches the publishing goroutine.
func (f *EventFanout) Start(alerts AlertSource, status StatusSource) {
	f.startOnce.Do(func() {
		if alerts != nil {
			f.cancels = append(f.cancels, alerts.Subscribe(f.onAlert))
		}
		if status != nil {
			f.cancels = append(f.cancels, status.Subscribe(f.onStatus))
		}
		f.mu.Lock()
		f.started = true
		f.mu.Unlock()
		go f.run()
	})
}

// Stop unsubscribes, drains queued events and waits for the goroutine to
// exit or ctx to expire.
func (f *EventFanout) Stop(ctx context.Context) error {
	var err error
	f.stopOnce.Do(func() {
		for _, cancel := range f.cancels {
			cancel()
		}
		f.mu.Lock()
		f.stopped = true
		started := f.started
		close(f.events)
		f.mu.Unlock()
		if !started {
			return
		}
		select {
		case <-f.done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

func (f *EventFanout) onAlert(r models.AlertRule) {
	f.enqueue(fanoutEvent{alert: &r})
}

// onStatus forwards only connection state or feed level transitions.
func (f *EventFanout) onStatus(st models.DashboardStatus) {
	f.mu.Lock()
	changed := !f.statusLoaded || st.Connection.State != f.lastState || st.Feed.Level != f.lastLevel
	f.statusLoaded = true
	f.lastState = st.Connection.State
	f.lastLevel = st.Feed.Level
	f.mu.Unlock()
	if changed {
		f.enqueue(fanoutEvent{status: &st})
	}
}

func (f *EventFanout) enqueue(ev fanoutEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	select {
	case f.events <- ev:
	default:
		f.metrics.RecordError("fanout_dropped")
		f.log.Warn("event fan-out buffer full, dropping event")
	}
}

func (f *EventFanout) run() {
	defer close(f.done)
	for ev := range f.events {
		f.publish(ev)
	}
}

func (f *EventFanout) publish(ev fanoutEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	start := time.Now()
	var err error
	kind := "alert"
	switch {
	case ev.alert != nil:
		err = f.pub.PublishAlert(ctx, *ev.alert)
	case ev.status != nil:
		kind = "status"
		err = f.pub.PublishStatus(ctx, *ev.status)
	}
	f.metrics.RecordLatency("publish_"+kind, time.Since(start).Seconds())
	if err != nil {
		f.metrics.RecordError("publish_" + kind)
		f.log.Error("failed to publish event", logger.String("kind", kind), logger.Error(err))
	}
}
