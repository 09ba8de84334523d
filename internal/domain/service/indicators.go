package service

import "math"

// Technical indicator primitives over close/volume series, oldest-first.
// All functions are pure; callers guarantee minimum series length.

// SMA returns the simple moving average of the trailing `period` values.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// EMA returns the exponential moving average series, seeded with the first
// value and smoothed with k = 2/(period+1).
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	k := 2.0 / (float64(period) + 1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// RSI returns the latest Wilder-smoothed relative strength index.
// Returns 50 (neutral) when the series is too short.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) <= period {
		return 50
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		var g, l float64
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDDiff returns the last two values of the MACD histogram
// (macd line minus signal line). ok is false when the series is too short.
func MACDDiff(closes []float64, fast, slow, signal int) (prev, last float64, ok bool) {
	if len(closes) < slow+1 {
		return 0, 0, false
	}
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	macd := make([]float64, len(closes))
	for i := range closes {
		macd[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine := EMA(macd, signal)
	n := len(closes)
	return macd[n-2] - signalLine[n-2], macd[n-1] - signalLine[n-1], true
}

// BollingerLower returns the lower Bollinger band over the trailing window.
func BollingerLower(closes []float64, period int, stdDevs float64) float64 {
	if len(closes) < period {
		return 0
	}
	mean := SMA(closes, period)
	variance := 0.0
	for _, v := range closes[len(closes)-period:] {
		d := v - mean
		variance += d * d
	}
	variance /= float64(period)
	return mean - stdDevs*math.Sqrt(variance)
}

// MomentumPct returns the percentage change between the latest value and the
// value `lookback` periods back (inclusive indexing, so lookback=5 compares
// against the fifth-from-last value).
func MomentumPct(closes []float64, lookback int) float64 {
	if lookback <= 1 || len(closes) < lookback {
		return 0
	}
	ref := closes[len(closes)-lookback]
	if ref == 0 {
		return 0
	}
	return (closes[len(closes)-1] - ref) / ref * 100
}
