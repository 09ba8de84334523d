package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalPaper = `
[app]
paper_trading = true

[universe]
list = ["005930", "000660"]
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalPaper))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.App.CycleSeconds != 60 {
		t.Errorf("cycle_seconds = %d, want 60", cfg.App.CycleSeconds)
	}
	if cfg.Trading.ScoreThreshold != 70 {
		t.Errorf("score_threshold = %d, want 70", cfg.Trading.ScoreThreshold)
	}
	if cfg.Trading.StopLossPct != 5 || cfg.Trading.TakeProfitPct != 10 {
		t.Errorf("sl/tp = %v/%v, want 5/10", cfg.Trading.StopLossPct, cfg.Trading.TakeProfitPct)
	}
	if cfg.Hours.Start != 9 || cfg.Hours.End != 16 {
		t.Errorf("hours = %d..%d, want 9..16", cfg.Hours.Start, cfg.Hours.End)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Cache.Backend != "storage" {
		t.Errorf("cache backend = %q, want storage", cfg.Cache.Backend)
	}
}

func TestLoadNormalizesUniverse(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[app]
paper_trading = true

[universe]
list = [" 005930 ", "005930", "", "000660"]
`))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Universe.List) != 2 {
		t.Fatalf("universe = %v, want 2 entries", cfg.Universe.List)
	}
}

func TestLoadRejectsEmptyUniverse(t *testing.T) {
	_, err := Load(writeConfig(t, `
[app]
paper_trading = true

[universe]
list = []
`))
	if err == nil || !strings.Contains(err.Error(), "universe.list") {
		t.Fatalf("err = %v, want empty universe error", err)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	_, err := Load(writeConfig(t, minimalPaper+`
[storage]
driver = "mysql"
`))
	if err == nil || !strings.Contains(err.Error(), "storage.driver") {
		t.Fatalf("err = %v, want driver error", err)
	}
}

func TestLoadRequiresRedisAddr(t *testing.T) {
	_, err := Load(writeConfig(t, minimalPaper+`
[cache]
backend = "redis"
`))
	if err == nil || !strings.Contains(err.Error(), "redis_addr") {
		t.Fatalf("err = %v, want redis_addr error", err)
	}
}

func TestLiveTradingRequiresCredentials(t *testing.T) {
	t.Setenv("KIS_APP_KEY", "")
	t.Setenv("KIS_APP_SECRET", "")

	_, err := Load(writeConfig(t, `
[universe]
list = ["005930"]
`))
	if err == nil || !strings.Contains(err.Error(), "KIS_APP_KEY") {
		t.Fatalf("err = %v, want credentials error", err)
	}
}

func TestLiveTradingAcceptsEnvCredentials(t *testing.T) {
	t.Setenv("KIS_APP_KEY", "key")
	t.Setenv("KIS_APP_SECRET", "secret")

	cfg, err := Load(writeConfig(t, `
[universe]
list = ["005930"]

[broker]
account_no = "12345678"
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Creds.AppKey != "key" || cfg.Creds.AppSecret != "secret" {
		t.Fatal("credentials not loaded from environment")
	}
}

func TestWatchSignalsOnChange(t *testing.T) {
	path := writeConfig(t, minimalPaper)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := Watch(ctx, path, 10*time.Millisecond)

	if err := os.WriteFile(path, []byte(minimalPaper+"\n# touched\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case _, ok := <-changes:
		if !ok {
			t.Fatal("watch channel closed early")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change signal")
	}

	cancel()
	select {
	case _, ok := <-changes:
		if ok {
			// Drain a buffered signal, then expect close.
			if _, ok := <-changes; ok {
				t.Fatal("watch channel not closed after cancel")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
}
