package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/models"
	drepo "github.com/alptigingorkem-coder/bist30-ai-trader/internal/domain/repository"
	"github.com/alptigingorkem-coder/bist30-ai-trader/internal/service/protocol"
	xhttp "github.com/alptigingorkem-coder/bist30-ai-trader/pkg/http"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/logger"
	"github.com/alptigingorkem-coder/bist30-ai-trader/pkg/metrics"
)

// PortfolioAPI loads the paper portfolio from GET {base}/api/portfolio.
type PortfolioAPI struct {
	client  *xhttp.Client
	log     *logger.Logger
	metrics drepo.Metrics
}

var _ drepo.PortfolioFetcher = (*PortfolioAPI)(nil)

func NewPortfolioAPI(client *xhttp.Client, log *logger.Logger, m drepo.Metrics) *PortfolioAPI {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &PortfolioAPI{client: client, log: log, metrics: m}
}

func (p *PortfolioAPI) FetchPortfolio(ctx context.Context) (models.Portfolio, error) {
	start := time.Now()
	var body json.RawMessage
	err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		Path:   "/api/portfolio",
	}, &body)
	p.metrics.RecordLatency("fetch_portfolio", time.Since(start).Seconds())
	if err == nil {
		out, derr := protocol.DecodePortfolio(body)
		if derr == nil {
			return out, nil
		}
		err = derr
	}
	p.metrics.RecordError("fetch_portfolio")
	p.log.Error("portfolio fetch failed", logger.Error(err))
	return models.Portfolio{}, fmt.Errorf("fetch portfolio: %w", err)
}
