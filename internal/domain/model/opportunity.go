package model

// Recommendation tier of a scored instrument.
type Recommendation string

const (
	RecommendBuy       Recommendation = "buy"
	RecommendStrongBuy Recommendation = "strong_buy"
)

// Opportunity is an ephemeral scoring result for one instrument, valid only
// for the scan cycle that produced it. Never persisted.
type Opportunity struct {
	Symbol          string         `json:"symbol"`
	Score           int            `json:"score"`
	Recommendation  Recommendation `json:"recommendation"`
	Price           float64        `json:"price"`
	PredictedPrice  float64        `json:"predicted_price"`
	RSI             float64        `json:"rsi"`
	VolumeRatio     float64        `json:"volume_ratio"`
	Sentiment       int            `json:"sentiment"`
	MomentumPct     float64        `json:"momentum_pct"`
	TechnicalScore  int            `json:"technical_score"`
	PredictionScore int            `json:"prediction_score"`
	MarketScore     int            `json:"market_score"`
	Reasons         []string       `json:"reasons"`
}
