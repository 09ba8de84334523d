package service

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	if got := SMA(values, 3); !almostEqual(got, 4, 1e-9) {
		t.Errorf("SMA(3) = %v, want 4", got)
	}
	if got := SMA(values, 10); got != 0 {
		t.Errorf("SMA with short series = %v, want 0", got)
	}
}

func TestRSIAllGains(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	if got := RSI(closes, 14); got != 100 {
		t.Errorf("RSI of monotonic gains = %v, want 100", got)
	}
}

func TestRSIAllLosses(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}
	got := RSI(closes, 14)
	if !almostEqual(got, 0, 1e-9) {
		t.Errorf("RSI of monotonic losses = %v, want 0", got)
	}
}

func TestRSIShortSeriesNeutral(t *testing.T) {
	if got := RSI([]float64{1, 2, 3}, 14); got != 50 {
		t.Errorf("RSI with insufficient data = %v, want 50", got)
	}
}

func TestMACDDiffGoldenCross(t *testing.T) {
	// Long decline then a sharp recovery flips the histogram sign.
	closes := make([]float64, 0, 60)
	price := 200.0
	for i := 0; i < 45; i++ {
		price *= 0.99
		closes = append(closes, price)
	}
	for i := 0; i < 15; i++ {
		price *= 1.03
		closes = append(closes, price)
	}
	found := false
	for n := 40; n <= len(closes); n++ {
		prev, last, ok := MACDDiff(closes[:n], 12, 26, 9)
		if ok && prev < 0 && last >= 0 {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected a negative-to-positive MACD histogram flip during recovery")
	}
}

func TestMACDDiffTooShort(t *testing.T) {
	if _, _, ok := MACDDiff([]float64{1, 2, 3}, 12, 26, 9); ok {
		t.Error("expected ok=false for short series")
	}
}

func TestBollingerLower(t *testing.T) {
	// Constant series: zero deviation, lower band equals the mean.
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 50
	}
	if got := BollingerLower(closes, 20, 2); !almostEqual(got, 50, 1e-9) {
		t.Errorf("BollingerLower of constant series = %v, want 50", got)
	}

	// Alternating series: stddev 1 around mean 100, lower band 98.
	for i := range closes {
		if i%2 == 0 {
			closes[i] = 101
		} else {
			closes[i] = 99
		}
	}
	got := BollingerLower(closes, 20, 2)
	if !almostEqual(got, 98, 1e-9) {
		t.Errorf("BollingerLower of alternating series = %v, want 98", got)
	}
}

func TestMomentumPct(t *testing.T) {
	closes := []float64{90, 95, 100, 102, 105, 110}
	// Latest 110 vs fifth-from-last 95 = +15.789%.
	got := MomentumPct(closes, 5)
	if !almostEqual(got, (110-95)/95.0*100, 1e-9) {
		t.Errorf("MomentumPct = %v", got)
	}
	if got := MomentumPct([]float64{1, 2}, 5); got != 0 {
		t.Errorf("MomentumPct with short series = %v, want 0", got)
	}
}

func TestPredictNextPrice(t *testing.T) {
	// Four consecutive +2% moves predict another +2%.
	closes := []float64{100, 102, 104.04, 106.1208, 108.243216}
	got, ok := PredictNextPrice(closes)
	if !ok {
		t.Fatal("expected prediction")
	}
	want := 108.243216 * 1.02
	if !almostEqual(got, want, 1e-6) {
		t.Errorf("PredictNextPrice = %v, want %v", got, want)
	}
}

func TestPredictNextPriceTooShort(t *testing.T) {
	if _, ok := PredictNextPrice([]float64{1, 2, 3, 4}); ok {
		t.Error("expected ok=false with fewer than five closes")
	}
}
