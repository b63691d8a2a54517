package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrunchBasicMoments(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5}
	st := Crunch(data)

	assert.InDelta(t, 3.0, st.Mean, 1e-9)
	assert.Equal(t, 3.0, st.Median)
	assert.Equal(t, 1.0, st.Min)
	assert.Equal(t, 5.0, st.Max)
	assert.Greater(t, st.StdDev, 0.0)
}

func TestCrunchEmptyIsNumericError(t *testing.T) {
	st := Crunch(nil)
	require.Error(t, st.TimeCorrelationErr)
	assert.True(t, math.IsNaN(st.Min))
}

func TestCrunchPermutationInvarianceOfMoments(t *testing.T) {
	a := []float64{5, 1, 9, 3, 7, 2, 8}
	b := []float64{9, 8, 7, 5, 3, 2, 1}

	sa := Crunch(a)
	sb := Crunch(b)

	assert.InDelta(t, sa.Mean, sb.Mean, 1e-9)
	assert.InDelta(t, sa.StdDev, sb.StdDev, 1e-9)
	assert.InDelta(t, sa.Median, sb.Median, 1e-9)
}

func TestRemoveOutliersDropsFarPoints(t *testing.T) {
	// With nineteen 10s and one 1000 the mean is 59.5 and the stddev about
	// 221.4, so 1000 lies beyond mean+3*stddev (about 723.6).
	data := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 1000}
	st := Crunch(data)
	removed := RemoveOutliers(data, st)
	require.Equal(t, 1, removed)
	assert.Equal(t, []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 10}, data[:len(data)-removed])
}

func TestRemoveOutliersIdempotentOnStableData(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	st := Crunch(data)
	removed := RemoveOutliers(data, st)
	assert.Zero(t, removed, "a uniform spread within 3 sigma should remove nothing")
}

func TestFiniteRejectsNaNAndInf(t *testing.T) {
	assert.True(t, Finite(1.0))
	assert.False(t, Finite(math.NaN()))
	assert.False(t, Finite(math.Inf(1)))
	assert.False(t, Finite(math.Inf(-1)))
}

func TestCrunchTimeCorrelationOnTrend(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	st := Crunch(data)
	require.NoError(t, st.TimeCorrelationErr)
	assert.InDelta(t, 1.0, st.TimeCorrelation, 1e-9)
}
