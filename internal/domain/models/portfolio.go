package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// InitialCash is the paper-trading balance before any snapshot arrives.
var InitialCash = decimal.NewFromInt(100000)

type Position struct {
	Side            Side             `json:"side" validate:"required,oneof=LONG SHORT"`
	Quantity        decimal.Decimal  `json:"quantity" validate:"gte=0"`
	EntryPrice      decimal.Decimal  `json:"entry_price" validate:"gte=0"`
	EntryTime       *time.Time       `json:"entry_time,omitempty"`
	CurrentPrice    *decimal.Decimal `json:"current_price,omitempty"`
	EntryConfidence *float64         `json:"entry_confidence,omitempty"`
	EntryRegime     *string          `json:"entry_regime,omitempty"`
}

// Portfolio is a complete server-side paper portfolio. Trade history and
// closed trades are not interpreted by the core and are kept verbatim.
type Portfolio struct {
	Cash         decimal.Decimal     `json:"cash"`
	RealizedPnL  decimal.Decimal     `json:"realized_pnl"`
	Positions    map[string]Position `json:"positions"`
	TradeHistory json.RawMessage     `json:"trade_history,omitempty"`
	ClosedTrades json.RawMessage     `json:"closed_trades,omitempty"`
}

// EmptyPortfolio is the state before the first fetch or update.
func EmptyPortfolio() Portfolio {
	return Portfolio{
		Cash:        InitialCash,
		RealizedPnL: decimal.Zero,
		Positions:   map[string]Position{},
	}
}

// Clone returns a copy that shares nothing mutable with p.
func (p Portfolio) Clone() Portfolio {
	out := p
	if p.Positions != nil {
		out.Positions = make(map[string]Position, len(p.Positions))
		for k, v := range p.Positions {
			out.Positions[k] = v
		}
	}
	if p.TradeHistory != nil {
		out.TradeHistory = append(json.RawMessage(nil), p.TradeHistory...)
	}
	if p.ClosedTrades != nil {
		out.ClosedTrades = append(json.RawMessage(nil), p.ClosedTrades...)
	}
	return out
}

// OpenPosition is a position valued at the latest known price.
type OpenPosition struct {
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	MarkPrice   decimal.Decimal `json:"mark_price"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
	MarketValue decimal.Decimal `json:"market_value"`
	PnL         decimal.Decimal `json:"pnl"`
	PnLPercent  decimal.Decimal `json:"pnl_percent"`
	EntryTime   *time.Time      `json:"entry_time,omitempty"`
}

// PortfolioStatus reports the startup fetch outcome.
type PortfolioStatus struct {
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
	// Source is "none", "fetch" or "stream" depending on what produced the
	// current snapshot.
	Source    string     `json:"source"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
