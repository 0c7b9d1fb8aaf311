package strategy

import "errors"

// RsiPeriod is the standard lookback used throughout the app.
const RsiPeriod = 14

// ErrInsufficientData is returned when the close series is too short for
// the requested period (at least period+1 closes are required).
var ErrInsufficientData = errors.New("insufficient data for RSI calculation")

// Rsi computes the Wilder-smoothed RSI over a chronologically ascending
// close series. The average gain/loss is seeded with the simple mean of the
// first period deltas and exponentially smoothed afterwards. A series with
// no losses yields 100.
func Rsi(closes []float64, period int) (float64, error) {
	if period <= 0 || len(closes) <= period {
		return 0, ErrInsufficientData
	}

	gains := make([]float64, 0, len(closes)-1)
	losses := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change >= 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -change)
		}
	}

	var avgGain, avgLoss float64
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period; i < len(gains); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
	}

	if avgLoss == 0 {
		return 100, nil
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}

// RsiRecommend maps an RSI reading onto the three advisory thresholds the
// strategy community uses: oversold (30), neutral (50), overbought (70).
func RsiRecommend(rsi float64) float64 {
	switch {
	case rsi <= 30:
		return 30
	case rsi <= 50:
		return 50
	default:
		return 70
	}
}
