// Package protocol decodes market-service stream frames into typed messages.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/util"
)

// ErrMalformedFrame wraps every decode failure.
var ErrMalformedFrame = errors.New("malformed frame")

// PingFrame is the outbound liveness probe.
var PingFrame = []byte("ping")

type envelope struct {
	Type   string          `json:"type"`
	Status looseString     `json:"status"`
	Source looseString     `json:"source"`
	Error  looseString     `json:"error"`
	Data   json.RawMessage `json:"data"`
}

// looseString takes any JSON value for an informational field, so a side
// field of an unexpected type never costs the frame. Numbers and bools keep
// their literal text; objects yield their error or message member.
type looseString string

func (l *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case isNull(b):
		*l = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = looseString(s)
	case b[0] == '{':
		*l = looseString(messageOf(b))
	default:
		*l = looseString(b)
	}
	return nil
}

type wireTicker struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Change    float64         `json:"change"`
	Volume    volume          `json:"volume"`
	VolumeRaw *float64        `json:"volume_raw"`
	Timestamp string          `json:"timestamp"`
}

// volume accepts the display string ("12.3 Milyon") or a bare number.
type volume string

func (v *volume) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*v = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = volume(s)
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("volume: %w", err)
	}
	*v = volume(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

type wirePosition struct {
	Side            string           `json:"side"`
	Quantity        decimal.Decimal  `json:"quantity"`
	EntryPrice      decimal.Decimal  `json:"entry_price"`
	EntryTime       string           `json:"entry_time"`
	OpenDate        string           `json:"open_date"`
	CurrentPrice    *decimal.Decimal `json:"current_price"`
	EntryConfidence *float64         `json:"entry_confidence"`
	EntryRegime     *string          `json:"entry_regime"`
}

type wirePortfolio struct {
	Cash         decimal.Decimal         `json:"cash"`
	RealizedPnL  decimal.Decimal         `json:"realized_pnl"`
	Positions    map[string]wirePosition `json:"positions"`
	TradeHistory json.RawMessage         `json:"trade_history"`
	History      json.RawMessage         `json:"history"`
	ClosedTrades json.RawMessage         `json:"closed_trades"`
}

// Decode parses one text frame. A bare "pong" text frame decodes to
// models.Pong; unknown discriminants decode to models.Unrecognized.
func Decode(raw []byte) (models.Message, error) {
	trimmed := bytes.TrimSpace(raw)
	if strings.EqualFold(string(trimmed), "pong") {
		return models.Pong{}, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	switch env.Type {
	case models.TypeMarketUpdate:
		tickers, err := decodeTickers(env.Data)
		if err != nil {
			return nil, err
		}
		return models.MarketUpdate{Status: string(env.Status), Source: string(env.Source), Tickers: tickers}, nil
	case models.TypePortfolioUpdate:
		p, err := DecodePortfolio(env.Data)
		if err != nil {
			return nil, err
		}
		return models.PortfolioUpdate{Portfolio: p}, nil
	case models.TypeCriticalError:
		return models.CriticalError{Message: criticalMessage(env)}, nil
	case models.TypePong:
		return models.Pong{}, nil
	default:
		return models.Unrecognized{Kind: env.Type}, nil
	}
}

func decodeTickers(data json.RawMessage) ([]models.Ticker, error) {
	if isNull(data) {
		return nil, fmt.Errorf("%w: %s without data", ErrMalformedFrame, models.TypeMarketUpdate)
	}
	var wire []wireTicker
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: tickers: %v", ErrMalformedFrame, err)
	}

	out := make([]models.Ticker, 0, len(wire))
	for _, w := range wire {
		t := models.Ticker{
			Symbol:    util.NormalizeSymbol(w.Symbol),
			Price:     w.Price,
			Change:    w.Change,
			Volume:    string(w.Volume),
			VolumeRaw: w.VolumeRaw,
		}
		if ts, ok := util.ParseTime(w.Timestamp); ok {
			t.Timestamp = &ts
		}
		out = append(out, t)
	}
	return out, nil
}

// DecodePortfolio parses a portfolio object as sent in PORTFOLIO_UPDATE
// frames and by the portfolio endpoint. Side is upper-cased; the legacy
// open_date field is accepted for entry time and "history" for
// trade_history.
func DecodePortfolio(data []byte) (models.Portfolio, error) {
	if isNull(data) {
		return models.Portfolio{}, fmt.Errorf("%w: portfolio without data", ErrMalformedFrame)
	}
	var w wirePortfolio
	if err := json.Unmarshal(data, &w); err != nil {
		return models.Portfolio{}, fmt.Errorf("%w: portfolio: %v", ErrMalformedFrame, err)
	}

	p := models.Portfolio{
		Cash:         w.Cash,
		RealizedPnL:  w.RealizedPnL,
		Positions:    make(map[string]models.Position, len(w.Positions)),
		TradeHistory: w.TradeHistory,
		ClosedTrades: w.ClosedTrades,
	}
	if isNull(p.TradeHistory) {
		p.TradeHistory = nil
		if !isNull(w.History) {
			p.TradeHistory = w.History
		}
	}
	if isNull(p.ClosedTrades) {
		p.ClosedTrades = nil
	}

	for sym, wp := range w.Positions {
		pos := models.Position{
			Side:            models.Side(strings.ToUpper(strings.TrimSpace(wp.Side))),
			Quantity:        wp.Quantity,
			EntryPrice:      wp.EntryPrice,
			CurrentPrice:    wp.CurrentPrice,
			EntryConfidence: wp.EntryConfidence,
			EntryRegime:     wp.EntryRegime,
		}
		if ts, ok := parseEntryTime(wp); ok {
			pos.EntryTime = &ts
		}
		p.Positions[util.NormalizeSymbol(sym)] = pos
	}
	return p, nil
}

func parseEntryTime(wp wirePosition) (time.Time, bool) {
	if t, ok := util.ParseTime(wp.EntryTime); ok {
		return t, true
	}
	return util.ParseTime(wp.OpenDate)
}

func criticalMessage(env envelope) string {
	if env.Error != "" {
		return string(env.Error)
	}
	if isNull(env.Data) {
		return ""
	}
	var str string
	if err := json.Unmarshal(env.Data, &str); err == nil {
		return str
	}
	return messageOf(env.Data)
}

// messageOf returns the error or message member of a JSON object, or the
// compact object text when it has neither.
func messageOf(obj []byte) string {
	var nested struct {
		Error   looseString `json:"error"`
		Message looseString `json:"message"`
	}
	if err := json.Unmarshal(obj, &nested); err == nil {
		if nested.Error != "" {
			return string(nested.Error)
		}
		if nested.Message != "" {
			return string(nested.Message)
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, obj); err != nil {
		return string(obj)
	}
	if buf.String() == "{}" {
		return ""
	}
	return buf.String()
}

func isNull(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}
