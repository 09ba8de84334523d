package kis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"stockpilot/internal/application/port"
	"stockpilot/internal/domain/model"
	"stockpilot/internal/infrastructure/ratelimit"
	"stockpilot/internal/infrastructure/svc"
)

const defaultBaseURL = "https://openapi.koreainvestment.com:9443"

// Config carries the quote API credentials.
type Config struct {
	BaseURL   string
	AppKey    string
	AppSecret string
}

// Client reads quotes and daily candles from the KIS open API. Every call
// waits on the shared query gate before hitting the network.
type Client struct {
	cfg    Config
	client *resty.Client
	gate   *ratelimit.Gate
}

func NewClient(cfg Config, gate *ratelimit.Gate) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{
		cfg: cfg,
		client: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(10 * time.Second),
		gate: gate,
	}
}

type priceResp struct {
	RtCd   string `json:"rt_cd"`
	Output struct {
		Price string `json:"stck_prpr"`
	} `json:"output"`
}

type ohlcvResp struct {
	RtCd   string `json:"rt_cd"`
	Output []struct {
		Date   string `json:"stck_bsop_date"`
		Open   string `json:"stck_oprc"`
		High   string `json:"stck_hgpr"`
		Low    string `json:"stck_lwpr"`
		Close  string `json:"stck_clpr"`
		Volume string `json:"acml_vol"`
	} `json:"output"`
}

// GetPrice returns the current traded price for an instrument.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if err := c.gate.AcquireQuery(ctx); err != nil {
		return 0, err
	}

	var body priceResp
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("appkey", c.cfg.AppKey).
		SetHeader("appsecret", c.cfg.AppSecret).
		SetHeader("tr_id", "FHKST01010100").
		SetQueryParams(map[string]string{
			"fid_cond_mrkt_div_code": "J",
			"fid_input_iscd":         symbol,
		}).
		SetResult(&body).
		Get("/uapi/domestic-stock/v1/quotations/inquire-price")
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", svc.ErrNoQuote, symbol, err)
	}
	if resp.IsError() || body.RtCd != "0" {
		return 0, fmt.Errorf("%w: %s: rt_cd %s", svc.ErrNoQuote, symbol, body.RtCd)
	}
	price, err := strconv.ParseFloat(body.Output.Price, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("%w: %s: bad price %q", svc.ErrNoQuote, symbol, body.Output.Price)
	}
	return price, nil
}

// GetOHLCV returns up to limit daily candles, oldest first.
func (c *Client) GetOHLCV(ctx context.Context, symbol string, limit int) ([]model.Candle, error) {
	if err := c.gate.AcquireQuery(ctx); err != nil {
		return nil, err
	}

	var body ohlcvResp
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("appkey", c.cfg.AppKey).
		SetHeader("appsecret", c.cfg.AppSecret).
		SetHeader("tr_id", "FHKST01010400").
		SetQueryParams(map[string]string{
			"fid_cond_mrkt_div_code": "J",
			"fid_input_iscd":         symbol,
			"fid_period_div_code":    "D",
			"fid_org_adj_prc":        "0",
		}).
		SetResult(&body).
		Get("/uapi/domestic-stock/v1/quotations/inquire-daily-price")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", svc.ErrNoQuote, symbol, err)
	}
	if resp.IsError() || body.RtCd != "0" {
		return nil, fmt.Errorf("%w: %s: rt_cd %s", svc.ErrNoQuote, symbol, body.RtCd)
	}

	// API returns newest first.
	rows := body.Output
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	candles := make([]model.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		ts, _ := time.Parse("20060102", row.Date)
		candles = append(candles, model.Candle{
			Open:   parseFloat(row.Open),
			High:   parseFloat(row.High),
			Low:    parseFloat(row.Low),
			Close:  parseFloat(row.Close),
			Volume: parseFloat(row.Volume),
			Ts:     ts.UnixMilli(),
		})
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: %s: empty history", svc.ErrNoQuote, symbol)
	}
	return candles, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

var _ port.MarketData = (*Client)(nil)
