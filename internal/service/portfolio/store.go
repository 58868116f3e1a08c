// Package portfolio holds the server-driven paper portfolio snapshot.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
	drepo "github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/repository"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/logger"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/util"
)

var (
	ErrInvalidSnapshot = errors.New("invalid portfolio snapshot")
	ErrNoSource        = errors.New("portfolio source not configured")

	errSuperseded = errors.New("superseded by stream update")
)

const (
	sourceNone   = "none"
	sourceFetch  = "fetch"
	sourceStream = "stream"
)

var hundred = decimal.NewFromInt(100)

// Store owns the portfolio snapshot. It is only ever replaced whole.
type Store struct {
	fetcher drepo.PortfolioFetcher
	log     *logger.Logger
	// beforeSwap runs between the fetch and the locked swap; tests only.
	beforeSwap func()

	mu       sync.RWMutex
	snapshot models.Portfolio
	status   models.PortfolioStatus

	lmu       sync.Mutex
	nextID    int
	listeners map[int]func(models.Portfolio)
}

// New returns a store holding the empty starting portfolio.
func New(fetcher drepo.PortfolioFetcher, l *logger.Logger) *Store {
	if l == nil {
		l = logger.Nop()
	}
	return &Store{
		fetcher:   fetcher,
		log:       l,
		snapshot:  models.EmptyPortfolio(),
		status:    models.PortfolioStatus{Source: sourceNone},
		listeners: make(map[int]func(models.Portfolio)),
	}
}

// ReplaceAll swaps in p as the current snapshot. Positions with zero
// quantity are closed and dropped. A negative quantity or unknown side
// rejects the whole snapshot.
func (s *Store) ReplaceAll(p models.Portfolio) error {
	return s.replace(p, sourceStream)
}

func (s *Store) replace(p models.Portfolio, source string) error {
	next, err := normalize(p)
	if err != nil {
		return err
	}

	now := time.Now()
	s.mu.Lock()
	// a fetched snapshot never replaces one that came from the stream
	if source == sourceFetch && s.status.Source == sourceStream {
		s.mu.Unlock()
		return errSuperseded
	}
	s.snapshot = next
	s.status = models.PortfolioStatus{Source: source, UpdatedAt: &now}
	out := next.Clone()
	s.mu.Unlock()

	s.notify(out)
	return nil
}

// Snapshot returns a copy of the current portfolio.
func (s *Store) Snapshot() models.Portfolio {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Clone()
}

// Status reports the startup fetch state.
func (s *Store) Status() models.PortfolioStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	if st.UpdatedAt != nil {
		t := *st.UpdatedAt
		st.UpdatedAt = &t
	}
	return st
}

// Subscribe registers fn to receive every accepted snapshot.
func (s *Store) Subscribe(fn func(models.Portfolio)) (cancel func()) {
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

// LoadInitial fetches the portfolio once. A failure is kept in Status and
// returned; a stream update that arrived while the fetch was in flight wins
// over the fetched snapshot.
func (s *Store) LoadInitial(ctx context.Context) error {
	s.mu.Lock()
	if s.status.Source == sourceNone {
		s.status.Loading = true
		s.status.Error = ""
	}
	s.mu.Unlock()

	var (
		p   models.Portfolio
		err error
	)
	if s.fetcher == nil {
		err = ErrNoSource
	} else {
		p, err = s.fetcher.FetchPortfolio(ctx)
	}

	if err == nil {
		if s.beforeSwap != nil {
			s.beforeSwap()
		}
		err = s.replace(p, sourceFetch)
		switch {
		case err == nil:
			s.log.Info("portfolio loaded", logger.Int("positions", len(p.Positions)))
			return nil
		case errors.Is(err, errSuperseded):
			s.log.Debug("initial portfolio superseded by stream update")
			return nil
		}
	}

	s.mu.Lock()
	if s.status.Source != sourceStream {
		s.status.Loading = false
		s.status.Error = err.Error()
	}
	s.mu.Unlock()

	s.log.Warn("initial portfolio fetch failed", logger.Error(err))
	return fmt.Errorf("load portfolio: %w", err)
}

// TotalValue is cash plus every position marked at the live price from
// prices, falling back to the position's own price and then its entry price.
func (s *Store) TotalValue(prices map[string]decimal.Decimal) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := s.snapshot.Cash
	for sym, pos := range s.snapshot.Positions {
		total = total.Add(pos.Quantity.Mul(markPrice(sym, pos, prices)))
	}
	return total
}

// OpenPositions values every position, sorted by symbol. P&L is signed by
// side: a short gains when the mark is below entry.
func (s *Store) OpenPositions(prices map[string]decimal.Decimal) []models.OpenPosition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.OpenPosition, 0, len(s.snapshot.Positions))
	for sym, pos := range s.snapshot.Positions {
		mark := markPrice(sym, pos, prices)
		cost := pos.Quantity.Mul(pos.EntryPrice)
		value := pos.Quantity.Mul(mark)
		pnl := value.Sub(cost)
		if pos.Side == models.SideShort {
			pnl = pnl.Neg()
		}
		pct := decimal.Zero
		if !cost.IsZero() {
			pct = pnl.Div(cost).Mul(hundred).Round(2)
		}
		op := models.OpenPosition{
			Symbol:      sym,
			Side:        pos.Side,
			Quantity:    pos.Quantity,
			EntryPrice:  pos.EntryPrice,
			MarkPrice:   mark,
			CostBasis:   cost,
			MarketValue: value,
			PnL:         pnl,
			PnLPercent:  pct,
		}
		if pos.EntryTime != nil {
			t := *pos.EntryTime
			op.EntryTime = &t
		}
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func markPrice(sym string, pos models.Position, prices map[string]decimal.Decimal) decimal.Decimal {
	if p, ok := prices[sym]; ok && p.IsPositive() {
		return p
	}
	if pos.CurrentPrice != nil {
		return *pos.CurrentPrice
	}
	return pos.EntryPrice
}

func normalize(p models.Portfolio) (models.Portfolio, error) {
	next := p.Clone()
	if p.Positions == nil {
		return next, nil
	}
	next.Positions = make(map[string]models.Position, len(p.Positions))
	for sym, pos := range p.Positions {
		key := util.NormalizeSymbol(sym)
		if key == "" {
			return models.Portfolio{}, fmt.Errorf("%w: empty position symbol", ErrInvalidSnapshot)
		}
		if err := models.Validate(pos); err != nil {
			return models.Portfolio{}, fmt.Errorf("%w: position %s: %v", ErrInvalidSnapshot, key, err)
		}
		if pos.Quantity.IsZero() {
			continue
		}
		next.Positions[key] = pos
	}
	return next, nil
}

func (s *Store) notify(p models.Portfolio) {
	s.lmu.Lock()
	fns := make([]func(models.Portfolio), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}
