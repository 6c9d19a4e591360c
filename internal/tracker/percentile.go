package tracker

import "math"

// PercentileIndex returns the nearest-rank-above index for quantile q
// over n sorted values: ceil(q*n)-1 clamped to [0, n-1]. It returns -1
// when n is zero.
func PercentileIndex(n int, q float64) int {
	if n <= 0 {
		return -1
	}
	i := int(math.Ceil(q*float64(n))) - 1
	return max(0, min(i, n-1))
}

// Percentile returns the value at quantile q of an ascending slice.
// ok is false for an empty slice.
func Percentile(sorted []float64, q float64) (value float64, ok bool) {
	i := PercentileIndex(len(sorted), q)
	if i < 0 {
		return 0, false
	}
	return sorted[i], true
}
