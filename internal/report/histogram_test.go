package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBucketsMonotonicData(t *testing.T) {
	data := make([]float64, 200)
	for i := range data {
		data[i] = float64(i)
	}
	h := Build(data)

	require.False(t, h.NoValidData)
	require.NotEmpty(t, h.Buckets)
	assert.Greater(t, h.MaxCount, int64(0))

	var total int64
	for _, b := range h.Buckets {
		total += b.Count
	}
	// The sample at the 95th-percentile index is counted both in its bucket
	// and in the "> 95%" tail row.
	assert.Equal(t, total+h.TailCount, int64(len(data))+1)
}

func TestBuildEmptyIsNoValidData(t *testing.T) {
	h := Build(nil)
	assert.True(t, h.NoValidData)
}

func TestBuildTailIsApproximatelyTopFivePercent(t *testing.T) {
	data := make([]float64, 1000)
	for i := range data {
		data[i] = float64(i)
	}
	h := Build(data)
	assert.InDelta(t, 50, h.TailCount, 5)
}

func TestRenderNoValidDataMessage(t *testing.T) {
	h := Histogram{NoValidData: true}
	assert.Contains(t, h.Render(), "No valid data present")
}

func TestRenderIncludesPercentileRows(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	h := Build(data)
	out := h.Render()
	assert.Contains(t, out, "95th %ile")
	assert.Contains(t, out, "mean of 95%")
}
