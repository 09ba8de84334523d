package container

import (
	"stockpilot/internal/application/port"
	"stockpilot/internal/application/service"
	domain "stockpilot/internal/domain/service"
)

// Params carries everything the service layer depends on.
type Params struct {
	Repo          port.Repository
	Market        port.MarketData
	Sentiment     port.SentimentSource
	Scorer        *domain.Scorer
	DcaTriggerPct float64
	HistoryBars   int
	ScanWorkers   int
}

type Container struct {
	p Params

	positionService *service.PositionService
	tradeService    *service.TradeService
	scanService     *service.ScanService
}

func New(p Params) *Container {
	return &Container{p: p}
}

func (c *Container) Repository() port.Repository {
	return c.p.Repo
}

func (c *Container) PositionService() *service.PositionService {
	if c.positionService == nil {
		c.positionService = service.NewPositionService(c.p.Repo, c.p.DcaTriggerPct)
	}
	return c.positionService
}

func (c *Container) TradeService() *service.TradeService {
	if c.tradeService == nil {
		c.tradeService = service.NewTradeService(c.p.Repo)
	}
	return c.tradeService
}

func (c *Container) ScanService() *service.ScanService {
	if c.scanService == nil {
		c.scanService = service.NewScanService(c.p.Market, c.p.Sentiment, c.p.Scorer, c.p.HistoryBars, c.p.ScanWorkers)
	}
	return c.scanService
}

func (c *Container) Close() error {
	return c.p.Repo.Close()
}
