package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
	drepo "github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/repository"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/protocol"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/cache"
	xhttp "github.com/alptigingorkem-coder/bist30-ai-trader/pkg/http"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/logger"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/metrics"
)

// HistoryAPI fetches daily candles from GET {base}/api/market-data/{symbol}.
// Successful responses are cached for ttl; errors never are.
type HistoryAPI struct {
	client  *xhttp.Client
	cache   cache.Service
	ttl     time.Duration
	log     *logger.Logger
	metrics drepo.Metrics
}

var _ drepo.HistoryFetcher = (*HistoryAPI)(nil)

func NewHistoryAPI(client *xhttp.Client, c cache.Service, ttl time.Duration, log *logger.Logger, m drepo.Metrics) *HistoryAPI {
	if c == nil {
		c = cache.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &HistoryAPI{client: client, cache: c, ttl: ttl, log: log, metrics: m}
}

func (h *HistoryAPI) FetchHistory(ctx context.Context, symbol string) ([]models.Candle, error) {
	key := "history:" + symbol
	if h.ttl > 0 {
		var cached []models.Candle
		err := h.cache.Get(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			h.log.Warn("history cache read failed", logger.String("symbol", symbol), logger.Error(err))
		}
	}

	start := time.Now()
	var body json.RawMessage
	err := h.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		Path:   "/api/market-data/" + url.PathEscape(symbol),
	}, &body)
	h.metrics.RecordLatency("fetch_history", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("fetch_history")
		h.log.Error("history fetch failed", logger.String("symbol", symbol), logger.Error(err))
		return nil, fmt.Errorf("fetch history %s: %w", symbol, err)
	}

	candles, err := protocol.DecodeHistory(body)
	if err != nil {
		h.metrics.RecordError("fetch_history")
		h.log.Error("history fetch failed", logger.String("symbol", symbol), logger.Error(err))
		return nil, fmt.Errorf("fetch history %s: %w", symbol, err)
	}

	if h.ttl > 0 {
		if err := h.cache.Set(ctx, key, candles, h.ttl); err != nil {
			h.log.Warn("history cache write failed", logger.String("symbol", symbol), logger.Error(err))
		}
	}
	return candles, nil
}
