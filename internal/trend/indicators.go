package trend

import (
	"math"

	"demand-trend/internal/models"
)

// MovingAverage returns the simple moving average of quantity over period
// points. Entries before the first full window are nil.
func MovingAverage(points []models.TrendPoint, period int) []*float64 {
	out := make([]*float64, len(points))
	if period <= 0 || len(points) < period {
		return out
	}
	var sum int64
	for i, p := range points {
		sum += p.Quantity
		if i >= period {
			sum -= points[i-period].Quantity
		}
		if i >= period-1 {
			avg := math.Round(float64(sum)/float64(period)*100) / 100
			out[i] = &avg
		}
	}
	return out
}

// WithMA7 fills TrendPoint.MA7 in place and returns points.
func WithMA7(points []models.TrendPoint) []models.TrendPoint {
	for i, v := range MovingAverage(points, 7) {
		points[i].MA7 = v
	}
	return points
}
