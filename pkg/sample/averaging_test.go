package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMovingAverage(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		window int
		want   []float64
	}{
		{
			name:   "window 1 copies",
			values: []float64{1, 2, 3},
			window: 1,
			want:   []float64{1, 2, 3},
		},
		{
			name:   "window 2",
			values: []float64{1, 3, 5, 7},
			window: 2,
			want:   []float64{1, 2, 4, 6},
		},
		{
			name:   "window 3 warmup",
			values: []float64{3, 3, 6, 9, 12},
			window: 3,
			want:   []float64{3, 3, 4, 6, 9},
		},
		{
			name:   "window larger than input",
			values: []float64{2, 4},
			window: 10,
			want:   []float64{2, 3},
		},
		{
			name:   "empty",
			values: []float64{},
			window: 3,
			want:   []float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MovingAverage(nil, tt.values, tt.window)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-9, "index %d", i)
			}
		})
	}
}

func TestMovingAverage_DestinationReuse(t *testing.T) {
	dst := make([]float64, 0, 8)
	got := MovingAverage(dst, []float64{1, 1, 1}, 2)
	assert.Equal(t, cap(dst), cap(got))
	assert.Equal(t, []float64{1, 1, 1}, got)
}
