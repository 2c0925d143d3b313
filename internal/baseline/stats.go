package baseline

import (
	"sort"

	"github.com/monlabs/monwatch/internal/models"
)

// Median returns the middle value of values (mean of the two middle
// values for even counts), or nil for an empty slice.
func Median(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return models.Float(sorted[mid])
	}
	return models.Float((sorted[mid-1] + sorted[mid]) / 2)
}

// Mean returns the arithmetic mean of values, or nil for an empty slice.
func Mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return models.Float(sum / float64(len(values)))
}
