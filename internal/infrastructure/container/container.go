package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"stockpilot/internal/application/port"
	brokerkis "stockpilot/internal/infrastructure/broker/kis"
	"stockpilot/internal/infrastructure/broker/paper"
	"stockpilot/internal/infrastructure/cache"
	"stockpilot/internal/infrastructure/config"
	"stockpilot/internal/infrastructure/marketdata"
	mdkis "stockpilot/internal/infrastructure/marketdata/kis"
	"stockpilot/internal/infrastructure/marketdata/sim"
	"stockpilot/internal/infrastructure/marketdata/stream"
	"stockpilot/internal/infrastructure/notify"
	"stockpilot/internal/infrastructure/ratelimit"
	"stockpilot/internal/infrastructure/sentiment"
	"stockpilot/internal/infrastructure/storage/postgres"
	redisstore "stockpilot/internal/infrastructure/storage/redis"
	"stockpilot/internal/infrastructure/storage/sqlite"
)

// Container builds and owns every infrastructure resource for one
// configuration generation. Close releases them in reverse order.
type Container struct {
	cfg *config.Config

	repo      port.Repository
	cache     *cache.Cache
	gate      *ratelimit.Gate
	market    port.MarketData
	feed      *stream.Feed
	broker    port.ExecutionGateway
	simulator *paper.Simulator
	sentiment port.SentimentSource
	notifier  port.Notifier

	closeOnce   sync.Once
	closerChain []func() error
}

func New(cfg *config.Config) (*Container, error) {
	c := &Container{cfg: cfg}

	if err := c.initStorage(); err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := c.initCache(); err != nil {
		_ = c.Close()
		return nil, err
	}
	c.initGate()
	c.initMarketData()
	c.initBroker()
	c.initSentiment()
	c.initNotifier()

	return c, nil
}

func (c *Container) initStorage() error {
	switch c.cfg.Storage.Driver {
	case "postgres":
		repo, err := postgres.New(c.cfg.Storage.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		c.repo = repo
		c.closerChain = append(c.closerChain, func() error {
			log.Info().Msg("closing postgres connection")
			return repo.Close()
		})
		log.Info().Msg("postgres initialized")
	default:
		repo, err := sqlite.New(c.cfg.Storage.SqlitePath)
		if err != nil {
			return fmt.Errorf("sqlite init failed: %w", err)
		}
		c.repo = repo
		c.closerChain = append(c.closerChain, func() error {
			log.Info().Msg("closing sqlite connection")
			return repo.Close()
		})
		log.Info().Str("path", c.cfg.Storage.SqlitePath).Msg("sqlite initialized")
	}
	return nil
}

func (c *Container) initCache() error {
	var store port.CacheStore

	switch c.cfg.Cache.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr: c.cfg.Cache.RedisAddr,
			DB:   c.cfg.Cache.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		c.closerChain = append(c.closerChain, func() error {
			log.Info().Msg("closing redis connection")
			return rdb.Close()
		})
		store = redisstore.NewCacheStore(rdb, "stockpilot:cache")
		log.Info().Str("addr", c.cfg.Cache.RedisAddr).Msg("redis cache initialized")
	default:
		cs, ok := c.repo.(port.CacheStore)
		if !ok {
			return fmt.Errorf("storage driver %q cannot back the cache", c.cfg.Storage.Driver)
		}
		store = cs
	}

	c.cache = cache.New(store, cache.RetryPolicy{})
	return nil
}

func (c *Container) initGate() {
	c.gate = ratelimit.NewGate(ratelimit.Config{
		MaxOrders:  c.cfg.RateLimit.OrdersPerSec,
		MaxQueries: c.cfg.RateLimit.QueriesPerSec,
		QueryWait:  time.Duration(c.cfg.RateLimit.MaxWaitSec) * time.Second,
	})
}

func (c *Container) initMarketData() {
	ttls := marketdata.TTLs{
		Price: time.Duration(c.cfg.Cache.PriceTTLMin) * time.Minute,
		OHLCV: time.Duration(c.cfg.Cache.OHLCVTTLMin) * time.Minute,
	}

	if c.cfg.App.PaperTrading {
		c.market = marketdata.NewCached(sim.NewSource(nil), c.cache, ttls)
		log.Info().Msg("market data: simulated source")
		return
	}

	rest := marketdata.NewCached(mdkis.NewClient(mdkis.Config{
		BaseURL:   c.cfg.Broker.BaseURL,
		AppKey:    c.cfg.Creds.AppKey,
		AppSecret: c.cfg.Creds.AppSecret,
	}, c.gate), c.cache, ttls)

	if c.cfg.MarketData.WsURL != "" {
		c.feed = stream.NewFeed(c.cfg.MarketData.WsURL, c.cfg.Universe.List, rest)
		c.market = c.feed
		log.Info().Str("url", c.cfg.MarketData.WsURL).Msg("market data: live stream with rest fallback")
		return
	}
	c.market = rest
	log.Info().Msg("market data: rest polling")
}

func (c *Container) initBroker() {
	if c.cfg.App.PaperTrading {
		c.simulator = paper.New(c.cfg.App.PaperBalance, c.market.GetPrice)

		// Positions outlive generations in the ledger; the rebuilt book
		// must hold them or exits can never fill.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if positions, err := c.repo.ListPositions(ctx); err != nil {
			log.Warn().Err(err).Msg("could not restore paper holdings from ledger")
		} else if len(positions) > 0 {
			c.simulator.Restore(positions)
			log.Info().Int("positions", len(positions)).Msg("paper holdings restored from ledger")
		}

		c.broker = c.simulator
		log.Info().Float64("balance", c.cfg.App.PaperBalance).Msg("broker: paper simulator")
		return
	}
	c.broker = brokerkis.NewGateway(brokerkis.Config{
		BaseURL:   c.cfg.Broker.BaseURL,
		AppKey:    c.cfg.Creds.AppKey,
		AppSecret: c.cfg.Creds.AppSecret,
		AccountNo: c.cfg.Broker.AccountNo,
		ProdCode:  c.cfg.Broker.ProdCode,
	}, c.gate)
	log.Info().Msg("broker: live gateway")
}

func (c *Container) initSentiment() {
	c.sentiment = sentiment.NewFearGreed(
		c.cfg.Sentiment.URL,
		c.cache,
		time.Duration(c.cfg.Cache.SentimentTTLMin)*time.Minute,
	)
}

func (c *Container) initNotifier() {
	if c.cfg.Creds.TelegramToken == "" || c.cfg.Creds.TelegramChatID == "" {
		c.notifier = notify.Nop{}
		return
	}
	c.notifier = notify.NewTelegram(c.cfg.Creds.TelegramToken, c.cfg.Creds.TelegramChatID)
	log.Info().Msg("telegram notifications enabled")
}

func (c *Container) Config() *config.Config          { return c.cfg }
func (c *Container) Repository() port.Repository     { return c.repo }
func (c *Container) Cache() *cache.Cache             { return c.cache }
func (c *Container) Gate() *ratelimit.Gate           { return c.gate }
func (c *Container) MarketData() port.MarketData     { return c.market }
func (c *Container) Broker() port.ExecutionGateway   { return c.broker }
func (c *Container) Simulator() *paper.Simulator     { return c.simulator }
func (c *Container) Sentiment() port.SentimentSource { return c.sentiment }
func (c *Container) Notifier() port.Notifier         { return c.notifier }

// StreamFeed returns the live quote stream, or nil when the generation
// runs without one. The caller owns its Run loop.
func (c *Container) StreamFeed() *stream.Feed { return c.feed }

// Close releases resources last-in first-out.
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for i := len(c.closerChain) - 1; i >= 0; i-- {
			if e := c.closerChain[i](); e != nil {
				log.Error().Err(e).Msg("error closing resource")
				if err == nil {
					err = e
				}
			}
		}
		log.Info().Msg("container closed")
	})
	return err
}
