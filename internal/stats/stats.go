// Package stats implements the harness's descriptive-statistics pipeline
// (component C7, spec.md §4.7): mean/median/stddev/skew/kurtosis/stderr,
// the 3-sigma outlier filter, and a least-squares time-correlation fit.
// The formulas are carried over from the original C harness's crunch_stats
// and fit_line routines verbatim in meaning.
package stats

import (
	"math"
	"sort"

	"microharness/internal/errors"
)

// Stats is one "stats block" (spec.md §3): the descriptive moments of an
// array of samples, plus the least-squares time-correlation slope.
type Stats struct {
	Min             float64
	Max             float64
	Mean            float64
	Median          float64
	StdDev          float64
	StdErr          float64
	Confidence99    float64
	Skew            float64
	Kurtosis        float64
	TimeCorrelation float64
	// TimeCorrelationErr is set when the least-squares fit was singular
	// (spec.md §4.7, §7 ERR_NUMERIC); TimeCorrelation is undefined in
	// that case.
	TimeCorrelationErr error
}

// Crunch computes a Stats block over data. data is not mutated; Crunch
// duplicates it internally wherever sorting is required (the caller's
// array order must survive intact for time-correlation to mean anything).
func Crunch(data []float64) Stats {
	n := len(data)
	var st Stats
	if n == 0 {
		st.Min, st.Max = math.NaN(), math.NaN()
		st.TimeCorrelationErr = errors.ErrNumeric
		return st
	}

	mean := 0.0
	for _, d := range data {
		mean += d
	}
	mean /= float64(n)
	st.Mean = mean

	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	st.Median = sorted[n/2]

	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}
	a, b, err := fitLine(x, data)
	if err != nil {
		st.TimeCorrelationErr = err
	} else {
		_ = a
		st.TimeCorrelation = b
	}

	st.Max = -1
	st.Min = 1.0e99
	var sumSq, sumCube, sumQuad float64
	for _, d := range data {
		if d > st.Max {
			st.Max = d
		}
		if d < st.Min {
			st.Min = d
		}
		diff := d - mean
		diff2 := diff * diff
		sumSq += diff2
		diff3 := diff2 * diff
		sumCube += diff3
		sumQuad += diff3 * diff
	}

	cm1 := float64(n - 1)
	if cm1 <= 0 {
		return st
	}
	std := math.Sqrt(sumSq / cm1)
	st.StdDev = std
	st.StdErr = std / math.Sqrt(float64(n))
	st.Confidence99 = st.StdErr * 2.326
	std3 := std * std * std
	if std3 != 0 {
		st.Skew = sumCube / (cm1 * std3)
		st.Kurtosis = sumQuad/(cm1*(std3*std)) - 3
	}
	return st
}

// fitLine computes the least-squares slope b (and intercept a) of y = a +
// b*x. Returns ErrNumeric if the fit is singular (spec.md §4.7).
func fitLine(x, y []float64) (a, b float64, err error) {
	n := float64(len(x))
	var sumx, sumy, sumxy, sumx2 float64
	for i := range x {
		sumx += x[i]
		sumx2 += x[i] * x[i]
		sumy += y[i]
		sumxy += x[i] * y[i]
	}
	denom := n*sumx2 - sumx*sumx
	if denom == 0 {
		return 0, 0, errors.ErrNumeric
	}
	a = (sumy*sumx2 - sumx*sumxy) / denom
	b = (n*sumxy - sumx*sumy) / denom
	return a, b, nil
}

// RemoveOutliers compacts data in place, removing every point farther than
// 3 standard deviations from st.Mean, and returns the count removed
// (spec.md §4.7). Applied recursively by the caller until stable or the
// remaining count drops to 40 or fewer.
func RemoveOutliers(data []float64, st Stats) int {
	outMin := st.Mean - 3*st.StdDev
	outMax := st.Mean + 3*st.StdDev

	j := 0
	outliers := 0
	for i := 0; i < len(data); i++ {
		if data[i] > outMax || data[i] < outMin {
			outliers++
			continue
		}
		data[j] = data[i]
		j++
	}
	return outliers
}

// Finite reports whether f is a valid, finite statistic — the idiomatic
// replacement for the original harness's dead `== NAN` comparison
// (spec.md §9 Open Questions: NaN never compares equal to itself in IEEE
// 754, so that check could never fire; math.IsNaN/IsInf is what was meant).
func Finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
