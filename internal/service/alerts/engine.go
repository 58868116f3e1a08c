// Package alerts evaluates user price alerts against market snapshots.
package alerts

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
	drepo "github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/repository"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/logger"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/metrics"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/util"
)

var (
	ErrNotFound     = errors.New("alert not found")
	ErrInvalidAlert = errors.New("invalid alert")
)

// Engine owns every AlertRule. Rules fire at most once.
type Engine struct {
	log     *logger.Logger
	metrics drepo.Metrics
	now     func() time.Time
	newID   func() string

	mu        sync.RWMutex
	rules     map[string]*models.AlertRule
	order     []string // registration order
	triggered []string // fire order, drained by ConsumeTriggered

	lmu       sync.Mutex
	nextID    int
	listeners map[int]func(models.AlertRule)
}

type Option func(*Engine)

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithMetrics(m drepo.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(opts ...Option) *Engine {
	e := &Engine{
		log:       logger.Nop(),
		metrics:   metrics.Nop{},
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
		rules:     make(map[string]*models.AlertRule),
		listeners: make(map[int]func(models.AlertRule)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register creates an active rule. Identical rules are allowed and fire
// independently.
func (e *Engine) Register(symbol string, cond models.Condition, target decimal.Decimal) (string, error) {
	symbol = util.NormalizeSymbol(symbol)
	if symbol == "" {
		return "", fmt.Errorf("%w: symbol is required", ErrInvalidAlert)
	}
	if !cond.Valid() {
		return "", fmt.Errorf("%w: condition %q", ErrInvalidAlert, cond)
	}
	if !target.IsPositive() {
		return "", fmt.Errorf("%w: target price must be positive", ErrInvalidAlert)
	}

	rule := &models.AlertRule{
		ID:          e.newID(),
		Symbol:      symbol,
		Condition:   cond,
		TargetPrice: target,
		IsActive:    true,
		CreatedAt:   e.now(),
	}

	e.mu.Lock()
	e.rules[rule.ID] = rule
	e.order = append(e.order, rule.ID)
	active := e.activeLocked()
	e.mu.Unlock()

	e.metrics.SetActiveAlerts(active)
	e.log.Info("alert registered",
		logger.String("id", rule.ID),
		logger.String("symbol", symbol),
		logger.String("condition", string(cond)),
		logger.String("target", target.String()))
	return rule.ID, nil
}

// Remove deletes a rule whether active or fired. It reports whether the
// rule existed.
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[id]; !ok {
		return false
	}
	delete(e.rules, id)
	e.order = without(e.order, id)
	e.triggered = without(e.triggered, id)
	e.metrics.SetActiveAlerts(e.activeLocked())
	return true
}

// Evaluate checks every active rule against prices. Rules whose symbol is
// missing from prices are left untouched. It returns the rules that fired
// on this call, in registration order.
func (e *Engine) Evaluate(prices map[string]decimal.Decimal) []models.AlertRule {
	now := e.now()

	e.mu.Lock()
	var fired []models.AlertRule
	for _, id := range e.order {
		rule := e.rules[id]
		if !rule.IsActive {
			continue
		}
		price, ok := prices[rule.Symbol]
		if !ok || !rule.Reached(price) {
			continue
		}
		at := now
		p := price
		rule.IsActive = false
		rule.TriggeredAt = &at
		rule.TriggerPrice = &p
		e.triggered = append(e.triggered, id)
		fired = append(fired, cloneRule(rule))
	}
	active := e.activeLocked()
	e.mu.Unlock()

	if len(fired) == 0 {
		return nil
	}

	e.metrics.SetActiveAlerts(active)
	for _, r := range fired {
		e.metrics.RecordAlertFired(r.Symbol, string(r.Condition))
		e.log.Info("alert fired",
			logger.String("id", r.ID),
			logger.String("symbol", r.Symbol),
			logger.String("condition", string(r.Condition)),
			logger.String("target", r.TargetPrice.String()),
			logger.String("price", r.TriggerPrice.String()))
	}
	e.notify(fired)
	return fired
}

// Get returns one rule.
func (e *Engine) Get(id string) (models.AlertRule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.rules[id]
	if !ok {
		return models.AlertRule{}, ErrNotFound
	}
	return cloneRule(r), nil
}

// Rules returns every rule in registration order.
func (e *Engine) Rules() []models.AlertRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.AlertRule, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, cloneRule(e.rules[id]))
	}
	return out
}

// Triggered returns the recently fired list without draining it.
func (e *Engine) Triggered() []models.AlertRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.triggeredLocked()
}

// ConsumeTriggered drains the recently fired list.
func (e *Engine) ConsumeTriggered() []models.AlertRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.triggeredLocked()
	e.triggered = nil
	return out
}

// ClearTriggered empties the recently fired list. Fired rules stay fired.
func (e *Engine) ClearTriggered() {
	e.mu.Lock()
	e.triggered = nil
	e.mu.Unlock()
}

// ActiveCount is the number of rules still waiting to fire.
func (e *Engine) ActiveCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.activeLocked()
}

// Subscribe registers fn for every newly fired rule.
func (e *Engine) Subscribe(fn func(models.AlertRule)) (cancel func()) {
	e.lmu.Lock()
	defer e.lmu.Unlock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	return func() {
		e.lmu.Lock()
		delete(e.listeners, id)
		e.lmu.Unlock()
	}
}

func (e *Engine) notify(fired []models.AlertRule) {
	e.lmu.Lock()
	fns := make([]func(models.AlertRule), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.lmu.Unlock()

	for _, r := range fired {
		for _, fn := range fns {
			fn(r)
		}
	}
}

func (e *Engine) triggeredLocked() []models.AlertRule {
	out := make([]models.AlertRule, 0, len(e.triggered))
	for _, id := range e.triggered {
		out = append(out, cloneRule(e.rules[id]))
	}
	return out
}

func (e *Engine) activeLocked() int {
	n := 0
	for _, r := range e.rules {
		if r.IsActive {
			n++
		}
	}
	return n
}

func cloneRule(r *models.AlertRule) models.AlertRule {
	out := *r
	if r.TriggeredAt != nil {
		t := *r.TriggeredAt
		out.TriggeredAt = &t
	}
	if r.TriggerPrice != nil {
		p := *r.TriggerPrice
		out.TriggerPrice = &p
	}
	return out
}

func without(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
