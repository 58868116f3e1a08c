package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/util"
)

// ErrUpstream wraps an {"error": ...} body returned with a success status.
var ErrUpstream = errors.New("upstream error")

type wireCandle struct {
	Time   string          `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume float64         `json:"volume"`
}

// DecodeHistory parses the market-data endpoint body: either a candle array
// or an {"error": "..."} object. Candles are returned oldest first.
func DecodeHistory(raw []byte) ([]models.Candle, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || isNull(trimmed) {
		return nil, fmt.Errorf("%w: empty history body", ErrMalformedFrame)
	}

	if trimmed[0] == '{' {
		var e struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if err := json.Unmarshal(trimmed, &e); err != nil {
			return nil, fmt.Errorf("%w: history: %v", ErrMalformedFrame, err)
		}
		msg := e.Error
		if msg == "" {
			msg = e.Detail
		}
		if msg == "" {
			return nil, fmt.Errorf("%w: history object without error", ErrMalformedFrame)
		}
		return nil, fmt.Errorf("%w: %s", ErrUpstream, msg)
	}

	var wire []wireCandle
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, fmt.Errorf("%w: history: %v", ErrMalformedFrame, err)
	}
	out := make([]models.Candle, 0, len(wire))
	for i, w := range wire {
		ts, ok := util.ParseTime(w.Time)
		if !ok {
			return nil, fmt.Errorf("%w: candle %d: bad time %q", ErrMalformedFrame, i, w.Time)
		}
		out = append(out, models.Candle{
			Time:   ts,
			Open:   w.Open,
			High:   w.High,
			Low:    w.Low,
			Close:  w.Close,
			Volume: w.Volume,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}
