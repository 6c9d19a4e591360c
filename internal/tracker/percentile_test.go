package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentileIndex(t *testing.T) {
	tests := []struct {
		n    int
		q    float64
		want int
	}{
		{n: 0, q: 0.95, want: -1},
		{n: 1, q: 0.95, want: 0},
		{n: 5, q: 0.95, want: 4},
		{n: 5, q: 0.50, want: 2},
		{n: 25, q: 0.95, want: 23},
		{n: 25, q: 0.99, want: 24},
		{n: 10, q: 0, want: 0},
		{n: 10, q: 1, want: 9},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PercentileIndex(tt.n, tt.q), "n=%d q=%v", tt.n, tt.q)
	}
}

func TestPercentile(t *testing.T) {
	v, ok := Percentile([]float64{10, 20, 30, 40, 50}, 0.95)
	assert.True(t, ok)
	assert.Equal(t, 50.0, v)

	v, ok = Percentile([]float64{10, 20, 30, 40, 50}, 0.5)
	assert.True(t, ok)
	assert.Equal(t, 30.0, v)

	_, ok = Percentile(nil, 0.95)
	assert.False(t, ok)
}
