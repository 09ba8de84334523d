package service

// PredictNextPrice derives a naive next-price estimate: the latest close
// scaled by the average of the last four period-over-period percentage
// changes. ok is false when fewer than five closes are available.
func PredictNextPrice(closes []float64) (predicted float64, ok bool) {
	const window = 5
	if len(closes) < window {
		return 0, false
	}
	recent := closes[len(closes)-window:]
	sum := 0.0
	for i := 1; i < len(recent); i++ {
		if recent[i-1] == 0 {
			return 0, false
		}
		sum += (recent[i] - recent[i-1]) / recent[i-1]
	}
	avgChange := sum / float64(len(recent)-1)
	return recent[len(recent)-1] * (1 + avgChange), true
}
