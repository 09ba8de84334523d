package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App struct {
		CycleSeconds   int     `toml:"cycle_seconds"`
		ReportEveryMin int     `toml:"report_every_min"`
		PaperTrading   bool    `toml:"paper_trading"`
		PaperBalance   float64 `toml:"paper_balance"`
	} `toml:"app"`

	Universe struct {
		List []string `toml:"list"`
	} `toml:"universe"`

	Trading struct {
		MaxPositions        int     `toml:"max_positions"`
		MaxCandidates       int     `toml:"max_candidates"`
		ScoreThreshold      int     `toml:"score_threshold"`
		StopLossPct         float64 `toml:"stop_loss_pct"`
		TakeProfitPct       float64 `toml:"take_profit_pct"`
		DcaTriggerPct       float64 `toml:"dca_trigger_pct"`
		BaseInvestmentRatio float64 `toml:"base_investment_ratio"`
		MinCash             float64 `toml:"min_cash"`
	} `toml:"trading"`

	Hours struct {
		Start    int   `toml:"start"`
		End      int   `toml:"end"`
		Weekdays []int `toml:"weekdays"`
	} `toml:"hours"`

	Indicators struct {
		RSIPeriod       int     `toml:"rsi_period"`
		BBPeriod        int     `toml:"bb_period"`
		BBStdDevs       float64 `toml:"bb_std_devs"`
		MACDFast        int     `toml:"macd_fast"`
		MACDSlow        int     `toml:"macd_slow"`
		MACDSignal      int     `toml:"macd_signal"`
		VolumeSMAPeriod int     `toml:"volume_sma_period"`
		HistoryBars     int     `toml:"history_bars"`
	} `toml:"indicators"`

	Storage struct {
		Driver      string `toml:"driver"` // sqlite | postgres
		SqlitePath  string `toml:"sqlite_path"`
		PostgresDSN string `toml:"postgres_dsn"`
	} `toml:"storage"`

	Cache struct {
		Backend         string `toml:"backend"` // storage | redis
		RedisAddr       string `toml:"redis_addr"`
		RedisDB         int    `toml:"redis_db"`
		PriceTTLMin     int    `toml:"price_ttl_min"`
		OHLCVTTLMin     int    `toml:"ohlcv_ttl_min"`
		SentimentTTLMin int    `toml:"sentiment_ttl_min"`
	} `toml:"cache"`

	Broker struct {
		BaseURL   string `toml:"base_url"`
		AccountNo string `toml:"account_no"`
		ProdCode  string `toml:"prod_code"`
	} `toml:"broker"`

	MarketData struct {
		WsURL string `toml:"ws_url"`
	} `toml:"marketdata"`

	Sentiment struct {
		URL string `toml:"url"`
	} `toml:"sentiment"`

	RateLimit struct {
		OrdersPerSec  int `toml:"orders_per_sec"`
		QueriesPerSec int `toml:"queries_per_sec"`
		MaxWaitSec    int `toml:"max_wait_sec"`
	} `toml:"ratelimit"`

	// Credentials come from the environment, never from the file.
	Creds struct {
		AppKey         string `toml:"-"`
		AppSecret      string `toml:"-"`
		TelegramToken  string `toml:"-"`
		TelegramChatID string `toml:"-"`
	} `toml:"-"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	loadEnv(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.CycleSeconds <= 0 {
		cfg.App.CycleSeconds = 60
	}
	if cfg.App.ReportEveryMin <= 0 {
		cfg.App.ReportEveryMin = 60
	}
	if cfg.App.PaperBalance <= 0 {
		cfg.App.PaperBalance = 1000000
	}
	if cfg.Trading.MaxPositions <= 0 {
		cfg.Trading.MaxPositions = 3
	}
	if cfg.Trading.MaxCandidates <= 0 {
		cfg.Trading.MaxCandidates = 3
	}
	if cfg.Trading.ScoreThreshold <= 0 {
		cfg.Trading.ScoreThreshold = 70
	}
	if cfg.Trading.StopLossPct <= 0 {
		cfg.Trading.StopLossPct = 5
	}
	if cfg.Trading.TakeProfitPct <= 0 {
		cfg.Trading.TakeProfitPct = 10
	}
	if cfg.Trading.BaseInvestmentRatio <= 0 {
		cfg.Trading.BaseInvestmentRatio = 0.05
	}
	if cfg.Trading.MinCash <= 0 {
		cfg.Trading.MinCash = 10000
	}
	if cfg.Hours.Start == 0 && cfg.Hours.End == 0 {
		cfg.Hours.Start = 9
		cfg.Hours.End = 16
	}
	if len(cfg.Hours.Weekdays) == 0 {
		cfg.Hours.Weekdays = []int{1, 2, 3, 4, 5}
	}
	if cfg.Indicators.HistoryBars <= 0 {
		cfg.Indicators.HistoryBars = 30
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.SqlitePath == "" {
		cfg.Storage.SqlitePath = "stockpilot.db"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "storage"
	}
	if cfg.Cache.PriceTTLMin <= 0 {
		cfg.Cache.PriceTTLMin = 5
	}
	if cfg.Cache.OHLCVTTLMin <= 0 {
		cfg.Cache.OHLCVTTLMin = 30
	}
	if cfg.Cache.SentimentTTLMin <= 0 {
		cfg.Cache.SentimentTTLMin = 120
	}
	if cfg.RateLimit.OrdersPerSec <= 0 {
		cfg.RateLimit.OrdersPerSec = 5
	}
	if cfg.RateLimit.QueriesPerSec <= 0 {
		cfg.RateLimit.QueriesPerSec = 10
	}
	if cfg.RateLimit.MaxWaitSec <= 0 {
		cfg.RateLimit.MaxWaitSec = 10
	}
}

func loadEnv(cfg *Config) {
	cfg.Creds.AppKey = os.Getenv("KIS_APP_KEY")
	cfg.Creds.AppSecret = os.Getenv("KIS_APP_SECRET")
	cfg.Creds.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.Creds.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
}

func validate(cfg *Config) error {
	cfg.Universe.List = normalizeSymbols(cfg.Universe.List)
	if len(cfg.Universe.List) == 0 {
		return errors.New("universe.list is empty")
	}

	switch cfg.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver %q not supported", cfg.Storage.Driver)
	}
	if cfg.Storage.Driver == "postgres" && strings.TrimSpace(cfg.Storage.PostgresDSN) == "" {
		return errors.New("storage.postgres_dsn empty but driver is postgres")
	}

	switch cfg.Cache.Backend {
	case "storage", "redis":
	default:
		return fmt.Errorf("cache.backend %q not supported", cfg.Cache.Backend)
	}
	if cfg.Cache.Backend == "redis" && strings.TrimSpace(cfg.Cache.RedisAddr) == "" {
		return errors.New("cache.redis_addr empty but backend is redis")
	}

	if cfg.Hours.Start < 0 || cfg.Hours.Start > 23 || cfg.Hours.End < 0 || cfg.Hours.End > 23 {
		return errors.New("hours.start and hours.end must be within 0..23")
	}
	for _, d := range cfg.Hours.Weekdays {
		if d < 0 || d > 6 {
			return fmt.Errorf("hours.weekdays entry %d out of range", d)
		}
	}

	if !cfg.App.PaperTrading {
		if cfg.Creds.AppKey == "" || cfg.Creds.AppSecret == "" {
			return errors.New("KIS_APP_KEY and KIS_APP_SECRET required for live trading")
		}
		if strings.TrimSpace(cfg.Broker.AccountNo) == "" {
			return errors.New("broker.account_no required for live trading")
		}
	}
	return nil
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.TrimSpace(s)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
