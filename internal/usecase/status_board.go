package usecase

import (
	"strings"
	"sync"
	"time"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
	drepo "github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/repository"
	dsvc "github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/service"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/logger"
)

const (
	feedMsgLive     = "live market data"
	feedMsgCache    = "serving cached market data"
	feedMsgCritical = "critical market data error"
)

// StatusBoard combines the stream connection state with the feed health
// carried by frames.
type StatusBoard struct {
	log          *logger.Logger
	now          func() time.Time
	cancelStream func()

	mu       sync.RWMutex
	conn     models.ConnStatus
	feed     models.FeedStatus
	lastPong *time.Time

	lmu       sync.Mutex
	nextID    int
	listeners map[int]func(models.DashboardStatus)
}

var _ dsvc.StatusSink = (*StatusBoard)(nil)

// NewStatusBoard follows st's connection status when st is non-nil.
func NewStatusBoard(st drepo.MarketStream, log *logger.Logger) *StatusBoard {
	if log == nil {
		log = logger.Nop()
	}
	b := &StatusBoard{
		log:       log,
		now:       time.Now,
		feed:      models.FeedStatus{Level: models.FeedUnknown},
		listeners: make(map[int]func(models.DashboardStatus)),
	}
	if st != nil {
		b.Follow(st)
	}
	return b
}

// Follow attaches the board to st, replacing any previous stream. The
// stream is usually built after the board because its frame handler reports
// here.
func (b *StatusBoard) Follow(st drepo.MarketStream) {
	b.Stop()
	b.mu.Lock()
	b.conn = st.Status()
	b.mu.Unlock()
	b.cancelStream = st.Subscribe(b.onConn)
}

// Stop detaches the board from the stream.
func (b *StatusBoard) Stop() {
	if b.cancelStream != nil {
		b.cancelStream()
		b.cancelStream = nil
	}
}

func (b *StatusBoard) Status() models.DashboardStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

func (b *StatusBoard) Subscribe(fn func(models.DashboardStatus)) (cancel func()) {
	b.lmu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.lmu.Unlock()
	return func() {
		b.lmu.Lock()
		delete(b.listeners, id)
		b.lmu.Unlock()
	}
}

// ReportFeed classifies a market update's status and source. ERROR and
// CRITICAL statuses are critical; a cache source is a warning.
func (b *StatusBoard) ReportFeed(status, source string) {
	level, msg := models.FeedOK, feedMsgLive
	switch {
	case strings.EqualFold(status, "ERROR"), strings.EqualFold(status, "CRITICAL"):
		level, msg = models.FeedCritical, feedMsgCritical
	case strings.Contains(strings.ToLower(source), "cache"):
		level, msg = models.FeedWarning, feedMsgCache
	}
	b.setFeed(models.FeedStatus{Level: level, Status: status, Source: source, Message: msg})
}

// ReportCritical marks the feed critical. The transport is left alone.
func (b *StatusBoard) ReportCritical(message string) {
	if message == "" {
		message = feedMsgCritical
	}
	b.setFeed(models.FeedStatus{Level: models.FeedCritical, Status: "CRITICAL", Message: message})
}

func (b *StatusBoard) ReportPong(at time.Time) {
	b.mu.Lock()
	b.lastPong = &at
	snap := b.snapshotLocked()
	b.mu.Unlock()
	b.notify(snap)
}

func (b *StatusBoard) setFeed(f models.FeedStatus) {
	now := b.now()
	f.UpdatedAt = &now

	b.mu.Lock()
	prev := b.feed.Level
	b.feed = f
	snap := b.snapshotLocked()
	b.mu.Unlock()

	if prev != f.Level {
		b.log.Info("feed health changed",
			logger.String("from", string(prev)),
			logger.String("to", string(f.Level)),
			logger.String("source", f.Source))
	}
	b.notify(snap)
}

func (b *StatusBoard) onConn(st models.ConnStatus) {
	b.mu.Lock()
	b.conn = st
	snap := b.snapshotLocked()
	b.mu.Unlock()
	b.notify(snap)
}

func (b *StatusBoard) snapshotLocked() models.DashboardStatus {
	out := models.DashboardStatus{Connection: b.conn, Feed: b.feed}
	if b.lastPong != nil {
		t := *b.lastPong
		out.LastPongAt = &t
	}
	return out
}

func (b *StatusBoard) notify(st models.DashboardStatus) {
	b.lmu.Lock()
	fns := make([]func(models.DashboardStatus), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.lmu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}
