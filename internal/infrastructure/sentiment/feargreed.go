package sentiment

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"stockpilot/internal/application/port"
	"stockpilot/internal/infrastructure/cache"
)

const (
	defaultURL = "https://api.alternative.me/fng/"
	neutral    = 50
)

// FearGreed reads the fear & greed index. Failures degrade to the
// neutral value so a dead sentiment feed never blocks a cycle.
type FearGreed struct {
	url    string
	client *resty.Client
	cache  *cache.Cache
	ttl    time.Duration
}

func NewFearGreed(url string, store *cache.Cache, ttl time.Duration) *FearGreed {
	if url == "" {
		url = defaultURL
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &FearGreed{
		url:    url,
		client: resty.New().SetTimeout(10 * time.Second),
		cache:  store,
		ttl:    ttl,
	}
}

type fngResp struct {
	Data []struct {
		Value string `json:"value"`
	} `json:"data"`
}

func (f *FearGreed) Index(ctx context.Context) int {
	value, err := cache.Fetch(ctx, f.cache, cache.Key("sentiment", "feargreed"), f.ttl, f.fetch)
	if err != nil {
		log.Warn().Err(err).Msg("sentiment feed unavailable, using neutral")
		return neutral
	}
	return value
}

func (f *FearGreed) fetch(ctx context.Context) (int, error) {
	var body fngResp
	resp, err := f.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get(f.url)
	if err != nil {
		return 0, err
	}
	if resp.IsError() || len(body.Data) == 0 {
		return 0, fmt.Errorf("sentiment request: status %d", resp.StatusCode())
	}
	value, err := strconv.Atoi(body.Data[0].Value)
	if err != nil {
		return 0, fmt.Errorf("sentiment parse: %w", err)
	}
	if value < 0 || value > 100 {
		return 0, fmt.Errorf("sentiment out of range: %d", value)
	}
	return value, nil
}

var _ port.SentimentSource = (*FearGreed)(nil)
