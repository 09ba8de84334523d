package service

import (
	"fmt"

	"stockpilot/internal/domain/model"
)

// ScoringConfig holds the indicator periods used by the scorer.
// Zero values fall back to the conventional defaults.
type ScoringConfig struct {
	RSIPeriod       int
	BBPeriod        int
	BBStdDevs       float64
	MACDFast        int
	MACDSlow        int
	MACDSignal      int
	VolumeSMAPeriod int
	MinHistory      int
	BaseRatio       float64
}

func (c ScoringConfig) withDefaults() ScoringConfig {
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = 14
	}
	if c.BBPeriod <= 0 {
		c.BBPeriod = 20
	}
	if c.BBStdDevs <= 0 {
		c.BBStdDevs = 2
	}
	if c.MACDFast <= 0 {
		c.MACDFast = 12
	}
	if c.MACDSlow <= 0 {
		c.MACDSlow = 26
	}
	if c.MACDSignal <= 0 {
		c.MACDSignal = 9
	}
	if c.VolumeSMAPeriod <= 0 {
		c.VolumeSMAPeriod = 20
	}
	if c.MinHistory <= 0 {
		c.MinHistory = 26
	}
	if c.BaseRatio <= 0 {
		c.BaseRatio = 0.05
	}
	return c
}

// Scorer computes composite 0-100 opportunity scores from OHLCV history and
// a market sentiment index. Pure and deterministic: the same inputs always
// produce the same score and sizing ratio.
type Scorer struct {
	cfg ScoringConfig
}

func NewScorer(cfg ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg.withDefaults()}
}

// snapshot bundles the indicator values one scoring pass works from.
type snapshot struct {
	price       float64
	rsi         float64
	macdPrev    float64
	macdLast    float64
	macdOK      bool
	bbLower     float64
	volumeRatio float64
	predicted   float64
	predictedOK bool
	sentiment   int
	momentumPct float64
}

// Evaluate scores one instrument. Returns nil when history is insufficient
// or the composite score stays below the 50-point buy floor.
func (s *Scorer) Evaluate(symbol string, candles []model.Candle, sentiment int) *model.Opportunity {
	if len(candles) < s.cfg.MinHistory {
		return nil
	}

	closes := model.Closes(candles)
	volumes := model.Volumes(candles)
	snap := snapshot{
		price:       closes[len(closes)-1],
		rsi:         RSI(closes, s.cfg.RSIPeriod),
		bbLower:     BollingerLower(closes, s.cfg.BBPeriod, s.cfg.BBStdDevs),
		sentiment:   sentiment,
		momentumPct: MomentumPct(closes, 5),
	}
	if snap.price <= 0 {
		return nil
	}
	snap.macdPrev, snap.macdLast, snap.macdOK = MACDDiff(closes, s.cfg.MACDFast, s.cfg.MACDSlow, s.cfg.MACDSignal)
	if volSMA := SMA(volumes, s.cfg.VolumeSMAPeriod); volSMA > 0 {
		snap.volumeRatio = volumes[len(volumes)-1] / volSMA
	}
	snap.predicted, snap.predictedOK = PredictNextPrice(closes)

	technical, prediction, market, reasons := scoreSnapshot(snap)
	total := technical + prediction + market
	if total < 50 {
		return nil
	}
	if total > 100 {
		total = 100
	}

	rec := model.RecommendBuy
	if total >= 70 {
		rec = model.RecommendStrongBuy
	}

	return &model.Opportunity{
		Symbol:          symbol,
		Score:           total,
		Recommendation:  rec,
		Price:           snap.price,
		PredictedPrice:  snap.predicted,
		RSI:             snap.rsi,
		VolumeRatio:     snap.volumeRatio,
		Sentiment:       sentiment,
		MomentumPct:     snap.momentumPct,
		TechnicalScore:  technical,
		PredictionScore: prediction,
		MarketScore:     market,
		Reasons:         reasons,
	}
}

// scoreSnapshot applies the composite heuristic:
// technical up to 45, prediction up to 30, market up to 30.
func scoreSnapshot(snap snapshot) (technical, prediction, market int, reasons []string) {
	switch {
	case snap.rsi < 30:
		technical += 15
		reasons = append(reasons, "RSI oversold")
	case snap.rsi < 40:
		technical += 8
		reasons = append(reasons, "RSI low")
	}

	if snap.macdOK && snap.macdPrev < 0 && snap.macdLast >= 0 {
		technical += 12
		reasons = append(reasons, "MACD golden cross")
	}

	if snap.bbLower > 0 && snap.price < snap.bbLower {
		technical += 10
		reasons = append(reasons, "below lower Bollinger band")
	}

	if snap.volumeRatio > 1.5 {
		technical += 8
		reasons = append(reasons, fmt.Sprintf("volume %.1fx average", snap.volumeRatio))
	}

	if snap.predictedOK && snap.price > 0 {
		gainPct := (snap.predicted - snap.price) / snap.price * 100
		switch {
		case gainPct > 5:
			prediction += 30
		case gainPct > 3:
			prediction += 20
		case gainPct > 1:
			prediction += 10
		}
		if prediction > 0 {
			reasons = append(reasons, fmt.Sprintf("predicted +%.1f%%", gainPct))
		}
	}

	switch {
	case snap.sentiment < 30:
		market += 20
		reasons = append(reasons, "market fear")
	case snap.sentiment < 50:
		market += 10
		reasons = append(reasons, "market neutral")
	case snap.sentiment > 70:
		market += 5
		reasons = append(reasons, "market greed")
	}

	if snap.momentumPct > 0 {
		market += 10
		reasons = append(reasons, fmt.Sprintf("momentum +%.1f%%", snap.momentumPct))
	}

	return technical, prediction, market, reasons
}

// SizeInvestment returns the fraction of available balance to commit to an
// entry: the base ratio scaled by the predicted gain band and a contrarian
// sentiment factor, clamped to [2%, 15%].
func (s *Scorer) SizeInvestment(currentPrice, predictedPrice float64, sentiment int) float64 {
	ratio := s.cfg.BaseRatio

	if currentPrice > 0 && predictedPrice > 0 {
		priceRatio := predictedPrice / currentPrice
		switch {
		case priceRatio > 1.05:
			ratio *= 1.5
		case priceRatio > 1.03:
			ratio *= 1.2
		case priceRatio < 1.01:
			ratio *= 0.7
		}
	}

	switch {
	case sentiment > 70:
		ratio *= 0.8
	case sentiment < 30:
		ratio *= 1.2
	}

	if ratio < 0.02 {
		ratio = 0.02
	}
	if ratio > 0.15 {
		ratio = 0.15
	}
	return ratio
}
