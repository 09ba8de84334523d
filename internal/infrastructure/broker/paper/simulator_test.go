package paper

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"stockpilot/internal/domain/model"
)

func fixedQuote(price float64) QuoteFunc {
	return func(ctx context.Context, symbol string) (float64, error) {
		return price, nil
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestBuyRejectedWhenCostExceedsCash(t *testing.T) {
	sim := New(500, fixedQuote(100))

	if sim.PlaceLimitBuy(context.Background(), "005930", 100, 10) {
		t.Fatal("buy should fail when cost exceeds cash")
	}

	bal, _ := sim.Balance(context.Background())
	if !approx(bal, 500) {
		t.Fatalf("cash changed after rejected buy: %v", bal)
	}
	if q := sim.HoldingQuantity("005930"); q != 0 {
		t.Fatalf("position created by rejected buy: %v", q)
	}
	if got := sim.Summarize(context.Background()).TotalTrades; got != 0 {
		t.Fatalf("rejected buy recorded a trade: %d", got)
	}
}

func TestBuyAccumulatesWeightedAverage(t *testing.T) {
	sim := New(10000, fixedQuote(120))

	if !sim.PlaceLimitBuy(context.Background(), "005930", 100, 10) {
		t.Fatal("first buy failed")
	}
	if !sim.PlaceLimitBuy(context.Background(), "005930", 120, 10) {
		t.Fatal("second buy failed")
	}

	if q := sim.HoldingQuantity("005930"); !approx(q, 20) {
		t.Fatalf("quantity = %v, want 20", q)
	}
	sim.mu.Lock()
	avg := sim.holdings["005930"].avgPrice
	sim.mu.Unlock()
	if !approx(avg, 110) {
		t.Fatalf("average price = %v, want 110", avg)
	}
	bal, _ := sim.Balance(context.Background())
	if !approx(bal, 10000-1000-1200) {
		t.Fatalf("cash = %v, want 7800", bal)
	}
}

func TestSellRealizesProfitAndClosesPosition(t *testing.T) {
	sim := New(10000, fixedQuote(110))

	sim.PlaceLimitBuy(context.Background(), "005930", 100, 10)
	if !sim.PlaceMarketSell(context.Background(), "005930", 10) {
		t.Fatal("sell failed")
	}

	bal, _ := sim.Balance(context.Background())
	if !approx(bal, 10100) {
		t.Fatalf("cash = %v, want 10100", bal)
	}
	if q := sim.HoldingQuantity("005930"); q != 0 {
		t.Fatalf("position not closed, qty = %v", q)
	}

	sum := sim.Summarize(context.Background())
	if sum.SellTrades != 1 || sum.WinTrades != 1 {
		t.Fatalf("sell/win = %d/%d, want 1/1", sum.SellTrades, sum.WinTrades)
	}
	if !approx(sum.WinRatePct, 100) {
		t.Fatalf("win rate = %v, want 100", sum.WinRatePct)
	}
}

func TestSellRejectedWithoutHoldings(t *testing.T) {
	sim := New(10000, fixedQuote(100))

	if sim.PlaceMarketSell(context.Background(), "005930", 5) {
		t.Fatal("sell should fail with no holdings")
	}
	bal, _ := sim.Balance(context.Background())
	if !approx(bal, 10000) {
		t.Fatalf("cash changed after rejected sell: %v", bal)
	}
}

func TestSellRejectedWithoutQuote(t *testing.T) {
	sim := New(10000, fixedQuote(100))
	sim.PlaceLimitBuy(context.Background(), "005930", 100, 10)
	sim.quote = func(ctx context.Context, symbol string) (float64, error) {
		return 0, errors.New("feed down")
	}

	if sim.PlaceMarketSell(context.Background(), "005930", 10) {
		t.Fatal("sell should fail without a quote")
	}
	if q := sim.HoldingQuantity("005930"); !approx(q, 10) {
		t.Fatalf("holdings changed after rejected sell: %v", q)
	}
}

func TestRestoredHoldingsCanBeSold(t *testing.T) {
	sim := New(10000, fixedQuote(110))
	sim.Restore([]*model.Position{
		{Symbol: "005930", EntryPrice: 100, Quantity: 10, CreatedAt: time.Now()},
	})

	// Cash carries the cost of the restored book.
	bal, _ := sim.Balance(context.Background())
	if !approx(bal, 9000) {
		t.Fatalf("cash = %v, want 9000 after restore", bal)
	}
	if q := sim.HoldingQuantity("005930"); !approx(q, 10) {
		t.Fatalf("restored quantity = %v, want 10", q)
	}

	if !sim.PlaceMarketSell(context.Background(), "005930", 10) {
		t.Fatal("sell of restored holding failed")
	}
	bal, _ = sim.Balance(context.Background())
	if !approx(bal, 10100) {
		t.Fatalf("cash = %v, want 10100 after exit", bal)
	}
}

func TestRestoreNeverDrivesCashNegative(t *testing.T) {
	sim := New(500, fixedQuote(100))
	sim.Restore([]*model.Position{
		{Symbol: "005930", EntryPrice: 100, Quantity: 10, CreatedAt: time.Now()},
	})

	bal, _ := sim.Balance(context.Background())
	if bal < 0 {
		t.Fatalf("cash = %v, must not go negative", bal)
	}
	if q := sim.HoldingQuantity("005930"); !approx(q, 10) {
		t.Fatalf("quantity = %v, want 10", q)
	}
}

func TestSummaryReflectsPortfolioValue(t *testing.T) {
	sim := New(10000, fixedQuote(120))

	sim.PlaceLimitBuy(context.Background(), "005930", 100, 10)
	sum := sim.Summarize(context.Background())

	// 9000 cash + 10 shares at 120.
	if !approx(sum.PortfolioValue, 10200) {
		t.Fatalf("portfolio value = %v, want 10200", sum.PortfolioValue)
	}
	if !approx(sum.TotalReturnPct, 2) {
		t.Fatalf("return = %v, want 2", sum.TotalReturnPct)
	}
	if sum.BuyTrades != 1 || sum.SellTrades != 0 {
		t.Fatalf("buy/sell = %d/%d, want 1/0", sum.BuyTrades, sum.SellTrades)
	}
}
