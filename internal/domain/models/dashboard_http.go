package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Requests for dashboard HTTP endpoints.

type CreateAlertRequest struct {
	Symbol      string          `json:"symbol" validate:"required,max=16"`
	Condition   Condition       `json:"condition" validate:"required,oneof=ABOVE BELOW"`
	TargetPrice decimal.Decimal `json:"target_price" validate:"gt=0"`
}

type SetActiveRequest struct {
	Symbol string `json:"symbol" validate:"required,max=16"`
}

type HistoryQuery struct {
	Limit int `query:"limit" json:"limit" default:"0" validate:"gte=0,lte=5000"`
}

type TriggeredQuery struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}

// Responses.

type TickersResponse struct {
	Tickers   []Ticker   `json:"tickers"`
	Seeded    bool       `json:"seeded"`
	Active    string     `json:"active"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type ActiveResponse struct {
	Symbol  string  `json:"symbol"`
	History History `json:"history"`
}

type PortfolioResponse struct {
	Portfolio  Portfolio       `json:"portfolio"`
	Status     PortfolioStatus `json:"status"`
	TotalValue decimal.Decimal `json:"total_value"`
}

type StreamResponse struct {
	Status ConnStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

type PushType string

const (
	PushSnapshot  PushType = "SNAPSHOT"
	PushMarket    PushType = "MARKET"
	PushHistory   PushType = "HISTORY"
	PushPortfolio PushType = "PORTFOLIO"
	PushAlert     PushType = "ALERT"
	PushStatus    PushType = "STATUS"
)

// PushEvent is one message on the dashboard event socket.
type PushEvent struct {
	Type PushType    `json:"type"`
	At   time.Time   `json:"at"`
	Data interface{} `json:"data"`
}

// DashboardSnapshot is sent once to every newly connected socket.
type DashboardSnapshot struct {
	Tickers   []Ticker        `json:"tickers"`
	History   History         `json:"history"`
	Portfolio Portfolio       `json:"portfolio"`
	Alerts    []AlertRule     `json:"alerts"`
	Status    DashboardStatus `json:"status"`
}
