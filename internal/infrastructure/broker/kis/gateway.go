package kis

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"stockpilot/internal/application/port"
	"stockpilot/internal/infrastructure/ratelimit"
)

const defaultBaseURL = "https://openapi.koreainvestment.com:9443"

// Config carries the broker credentials and account identity.
type Config struct {
	BaseURL    string
	AppKey     string
	AppSecret  string
	AccountNo  string
	ProdCode   string
	OrderRetry int
}

// Gateway places real orders through the KIS open API. Every order and
// balance call goes through the shared rate gate first.
type Gateway struct {
	cfg    Config
	client *resty.Client
	gate   *ratelimit.Gate

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewGateway(cfg Config, gate *ratelimit.Gate) *Gateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.ProdCode == "" {
		cfg.ProdCode = "01"
	}
	if cfg.OrderRetry <= 0 {
		cfg.OrderRetry = 3
	}
	return &Gateway{
		cfg: cfg,
		client: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(10 * time.Second),
		gate: gate,
	}
}

type tokenResp struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type orderResp struct {
	RtCd string `json:"rt_cd"`
	Msg  string `json:"msg1"`
}

type balanceResp struct {
	RtCd    string `json:"rt_cd"`
	Output2 []struct {
		CashBalance string `json:"dnca_tot_amt"`
	} `json:"output2"`
}

func (g *Gateway) token(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.accessToken != "" && time.Now().Before(g.tokenExpiry) {
		return g.accessToken, nil
	}

	var body tokenResp
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"grant_type": "client_credentials",
			"appkey":     g.cfg.AppKey,
			"appsecret":  g.cfg.AppSecret,
		}).
		SetResult(&body).
		Post("/oauth2/tokenP")
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	if resp.IsError() || body.AccessToken == "" {
		return "", fmt.Errorf("token request: status %d", resp.StatusCode())
	}

	g.accessToken = body.AccessToken
	// Refresh a minute early to avoid using a token at the expiry edge.
	g.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn)*time.Second - time.Minute)
	return g.accessToken, nil
}

// PlaceLimitBuy submits a limit buy order. Returns false when the order
// ceiling stays saturated across the retry budget or the API rejects it.
func (g *Gateway) PlaceLimitBuy(ctx context.Context, symbol string, price, qty float64) bool {
	return g.placeOrder(ctx, symbol, "TTTC0802U", strconv.Itoa(int(price)), "00", qty)
}

// PlaceMarketSell submits a market sell order.
func (g *Gateway) PlaceMarketSell(ctx context.Context, symbol string, qty float64) bool {
	return g.placeOrder(ctx, symbol, "TTTC0801U", "0", "01", qty)
}

func (g *Gateway) placeOrder(ctx context.Context, symbol, trID, price, ordDvsn string, qty float64) bool {
	if qty <= 0 {
		return false
	}

	acquired := false
	for attempt := 0; attempt < g.cfg.OrderRetry; attempt++ {
		if g.gate.TryOrder() {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Second):
		}
	}
	if !acquired {
		log.Warn().Str("symbol", symbol).Msg("order dropped: rate ceiling saturated")
		return false
	}

	tok, err := g.token(ctx)
	if err != nil {
		log.Error().Err(err).Msg("order dropped: auth failed")
		return false
	}

	var body orderResp
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("authorization", "Bearer "+tok).
		SetHeader("appkey", g.cfg.AppKey).
		SetHeader("appsecret", g.cfg.AppSecret).
		SetHeader("tr_id", trID).
		SetBody(map[string]string{
			"CANO":         g.cfg.AccountNo,
			"ACNT_PRDT_CD": g.cfg.ProdCode,
			"PDNO":         symbol,
			"ORD_DVSN":     ordDvsn,
			"ORD_QTY":      strconv.Itoa(int(qty)),
			"ORD_UNPR":     price,
		}).
		SetResult(&body).
		Post("/uapi/domestic-stock/v1/trading/order-cash")
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("order request failed")
		return false
	}
	if resp.IsError() || body.RtCd != "0" {
		log.Warn().
			Str("symbol", symbol).
			Str("rt_cd", body.RtCd).
			Str("msg", body.Msg).
			Msg("order rejected")
		return false
	}

	log.Info().Str("symbol", symbol).Str("tr_id", trID).Float64("qty", qty).Msg("order accepted")
	return true
}

// Balance returns the account's available cash.
func (g *Gateway) Balance(ctx context.Context) (float64, error) {
	if err := g.gate.AcquireQuery(ctx); err != nil {
		return 0, err
	}
	tok, err := g.token(ctx)
	if err != nil {
		return 0, err
	}

	var body balanceResp
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("authorization", "Bearer "+tok).
		SetHeader("appkey", g.cfg.AppKey).
		SetHeader("appsecret", g.cfg.AppSecret).
		SetHeader("tr_id", "TTTC8434R").
		SetQueryParams(map[string]string{
			"CANO":                  g.cfg.AccountNo,
			"ACNT_PRDT_CD":          g.cfg.ProdCode,
			"AFHR_FLPR_YN":          "N",
			"INQR_DVSN":             "02",
			"UNPR_DVSN":             "01",
			"FUND_STTL_ICLD_YN":     "N",
			"FNCG_AMT_AUTO_RDPT_YN": "N",
			"PRCS_DVSN":             "00",
			"OFL_YN":                "",
			"CTX_AREA_FK100":        "",
			"CTX_AREA_NK100":        "",
		}).
		SetResult(&body).
		Get("/uapi/domestic-stock/v1/trading/inquire-balance")
	if err != nil {
		return 0, fmt.Errorf("balance request: %w", err)
	}
	if resp.IsError() || body.RtCd != "0" {
		return 0, fmt.Errorf("balance request: rt_cd %s", body.RtCd)
	}
	if len(body.Output2) == 0 {
		return 0, nil
	}
	cash, err := strconv.ParseFloat(body.Output2[0].CashBalance, 64)
	if err != nil {
		return 0, fmt.Errorf("balance parse: %w", err)
	}
	return cash, nil
}

var _ port.ExecutionGateway = (*Gateway)(nil)
