// Package market holds the latest ticker set and the active instrument's
// historical series.
package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
	drepo "github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/repository"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/logger"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/metrics"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/util"
)

var (
	ErrInvalidSet    = errors.New("invalid ticker set")
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrNoHistorySource is recorded when no fetcher is configured.
	ErrNoHistorySource = errors.New("history source not configured")
)

// Store owns the tracked-instrument set. The set only changes by full
// replacement.
type Store struct {
	fetcher drepo.HistoryFetcher
	log     *logger.Logger
	metrics drepo.Metrics

	mu      sync.RWMutex
	tickers []models.Ticker
	index   map[string]int
	seeded  bool
	updated *time.Time
	active  string
	history models.History
	histGen uint64

	lmu           sync.Mutex
	nextID        int
	listeners     map[int]func([]models.Ticker)
	histListeners map[int]func(models.History)
}

type Option func(*Store)

func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

func WithMetrics(m drepo.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New seeds the store with placeholder quotes for symbols (defaults to the
// BIST30 list) and records activeSymbol (defaults to XU100) without
// fetching its history.
func New(symbols []string, activeSymbol string, fetcher drepo.HistoryFetcher, opts ...Option) *Store {
	if len(symbols) == 0 {
		symbols = models.DefaultSymbols
	}
	if activeSymbol = util.NormalizeSymbol(activeSymbol); activeSymbol == "" {
		activeSymbol = models.DefaultActiveSymbol
	}

	s := &Store{
		fetcher:       fetcher,
		log:           logger.Nop(),
		metrics:       metrics.Nop{},
		index:         make(map[string]int, len(symbols)),
		seeded:        true,
		active:        activeSymbol,
		history:       models.History{Symbol: activeSymbol},
		listeners:     make(map[int]func([]models.Ticker)),
		histListeners: make(map[int]func(models.History)),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, sym := range symbols {
		sym = util.NormalizeSymbol(sym)
		if _, dup := s.index[sym]; sym == "" || dup {
			continue
		}
		s.index[sym] = len(s.tickers)
		s.tickers = append(s.tickers, models.SeedTicker(sym))
	}
	return s
}

// ReplaceAll swaps the whole set. Sets with duplicate or empty symbols or
// negative prices are rejected whole and the previous set stays.
func (s *Store) ReplaceAll(tickers []models.Ticker) error {
	next := append([]models.Ticker(nil), tickers...)
	if err := models.Validate(models.TickerSet{Tickers: next}); err != nil {
		s.metrics.RecordError("market_invalid_set")
		return fmt.Errorf("%w: %v", ErrInvalidSet, err)
	}

	index := make(map[string]int, len(next))
	for i, t := range next {
		index[t.Symbol] = i
	}
	now := time.Now()

	s.mu.Lock()
	s.tickers = next
	s.index = index
	s.seeded = false
	s.updated = &now
	s.mu.Unlock()

	for _, t := range next {
		f, _ := t.Price.Float64()
		s.metrics.RecordLastPrice(t.Symbol, f)
	}
	s.notify(s.Snapshot())
	return nil
}

// Select returns the current quote for symbol.
func (s *Store) Select(symbol string) (models.Ticker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[util.NormalizeSymbol(symbol)]
	if !ok {
		return models.Ticker{}, false
	}
	return s.tickers[i], true
}

// Snapshot returns the set in the order it was received.
func (s *Store) Snapshot() []models.Ticker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Ticker(nil), s.tickers...)
}

// PriceMap returns symbol -> last price for the current set.
func (s *Store) PriceMap() map[string]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(s.tickers))
	for _, t := range s.tickers {
		out[t.Symbol] = t.Price
	}
	return out
}

// Seeded reports whether the store still holds only placeholder quotes.
func (s *Store) Seeded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seeded
}

// UpdatedAt is the time of the last successful replace, nil while seeded.
func (s *Store) UpdatedAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.updated == nil {
		return nil
	}
	t := *s.updated
	return &t
}

// Subscribe registers fn to receive the full set after every replace.
func (s *Store) Subscribe(fn func([]models.Ticker)) (cancel func()) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

// SubscribeHistory registers fn for history state changes.
func (s *Store) SubscribeHistory(fn func(models.History)) (cancel func()) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	id := s.nextID
	s.nextID++
	s.histListeners[id] = fn
	return func() {
		s.lmu.Lock()
		delete(s.histListeners, id)
		s.lmu.Unlock()
	}
}

// ActiveInstrument returns the symbol whose history is charted.
func (s *Store) ActiveInstrument() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// History returns the last history fetch outcome for the active instrument.
func (s *Store) History() models.History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneHistory(s.history)
}

// SetActiveInstrument records symbol as active and fetches its history once.
// A fetch failure is kept in History().Error and returned; there is no
// retry. A fetch superseded by a later call is discarded.
func (s *Store) SetActiveInstrument(ctx context.Context, symbol string) error {
	symbol = util.NormalizeSymbol(symbol)
	if symbol == "" {
		return ErrInvalidSymbol
	}

	s.mu.Lock()
	s.active = symbol
	s.histGen++
	gen := s.histGen
	s.history = models.History{Symbol: symbol, Loading: true}
	loading := cloneHistory(s.history)
	s.mu.Unlock()
	s.notifyHistory(loading)

	var (
		candles []models.Candle
		err     error
	)
	start := time.Now()
	if s.fetcher == nil {
		err = ErrNoHistorySource
	} else {
		candles, err = s.fetcher.FetchHistory(ctx, symbol)
	}
	s.metrics.RecordLatency("history_fetch", time.Since(start).Seconds())

	now := time.Now()
	s.mu.Lock()
	if gen != s.histGen {
		s.mu.Unlock()
		return nil
	}
	h := models.History{Symbol: symbol, FetchedAt: &now}
	if err != nil {
		h.Error = err.Error()
	} else {
		h.Candles = candles
	}
	s.history = h
	done := cloneHistory(h)
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("history fetch failed", logger.String("symbol", symbol), logger.Error(err))
		s.metrics.RecordError("history_fetch")
	} else {
		s.log.Debug("history loaded", logger.String("symbol", symbol), logger.Int("candles", len(candles)))
	}
	s.notifyHistory(done)

	if err != nil {
		return fmt.Errorf("fetch history for %s: %w", symbol, err)
	}
	return nil
}

func (s *Store) notify(set []models.Ticker) {
	s.lmu.Lock()
	fns := make([]func([]models.Ticker), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()

	for _, fn := range fns {
		fn(set)
	}
}

func (s *Store) notifyHistory(h models.History) {
	s.lmu.Lock()
	fns := make([]func(models.History), 0, len(s.histListeners))
	for _, fn := range s.histListeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()

	for _, fn := range fns {
		fn(h)
	}
}

func cloneHistory(h models.History) models.History {
	out := h
	if h.Candles != nil {
		out.Candles = append([]models.Candle(nil), h.Candles...)
	}
	if h.FetchedAt != nil {
		t := *h.FetchedAt
		out.FetchedAt = &t
	}
	return out
}
