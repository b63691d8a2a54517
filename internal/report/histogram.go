// Package report builds the fixed-width histogram and the warnings block
// (component C8, spec.md §4.8) printed after statistics. The bucketing
// algorithm mirrors the original harness's print_histo routine.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"microharness/internal/stats"
)

// HistoSize is the fixed bucket count (spec.md §4.8).
const HistoSize = 32

const barWidth = 32

// Bucket is one row of the histogram.
type Bucket struct {
	Count     int64
	LowerEdge float64
	Mean      float64
}

// Histogram is the full distribution report: the per-bucket rows up to the
// last non-empty one, plus the aggregate ">95%" tail row.
type Histogram struct {
	Buckets     []Bucket
	MaxCount    int64
	TailCount   int64
	TailMean    float64
	Mean95      float64
	P95         float64
	NoValidData bool
}

// Build sorts data ascending (a copy; the caller's order is preserved) and
// computes the histogram over the first 95% of samples plus a tail bucket
// for the rest, exactly as spec.md §4.8 describes.
func Build(data []float64) Histogram {
	n := len(data)
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)

	i95 := (n * 95) / 100
	var p95 float64
	found := false
	for ; i95 > 0; i95-- {
		p95 = sorted[i95]
		if stats.Finite(p95) {
			found = true
			break
		}
	}
	if !found || !stats.Finite(p95) {
		return Histogram{NoValidData: true}
	}

	min := sorted[0] + 0.000001
	r95 := p95 - min + 1

	x := r95 / float64(HistoSize-1)
	shift := 0
	for x >= 10.0 {
		x /= 10.0
		shift++
	}
	y := x + 0.9999999999
	for ; shift > 0; shift-- {
		y *= 10
	}
	min = math.Floor(min/y) * y
	scale := y * float64(HistoSize-1)
	if scale < float64(HistoSize-1) {
		scale = float64(HistoSize - 1)
	}

	type accum struct {
		sum   float64
		count int64
	}
	buckets := make([]accum, HistoSize)

	for i := 0; i <= i95 && i < n; i++ {
		j := int(float64(HistoSize-1) * (sorted[i] - min) / scale)
		if j >= HistoSize {
			j = HistoSize - 1
		}
		if j < 0 {
			j = 0
		}
		buckets[j].sum += sorted[i]
		buckets[j].count++
	}

	var tailSum float64
	var tailCount int64
	for i := i95; i < n; i++ {
		tailSum += sorted[i]
		tailCount++
	}

	var m95 float64
	var total int64
	var totalSum float64
	for i := 0; i <= i95 && i < n; i++ {
		totalSum += sorted[i]
		total++
	}
	if total > 0 {
		m95 = totalSum / float64(total)
	}

	h := Histogram{P95: p95, Mean95: m95, TailCount: tailCount}
	if tailCount > 0 {
		h.TailMean = tailSum / float64(tailCount)
	}

	last := -1
	var maxCount int64
	for i, b := range buckets {
		if b.count > 0 {
			last = i
			if b.count > maxCount {
				maxCount = b.count
			}
		}
	}
	h.MaxCount = maxCount

	for i := 0; i <= last; i++ {
		b := buckets[i]
		row := Bucket{
			Count:     b.count,
			LowerEdge: min + scale*float64(i)/float64(HistoSize-1),
		}
		if b.count > 0 {
			row.Mean = b.sum / float64(b.count)
		}
		h.Buckets = append(h.Buckets, row)
	}
	return h
}

// Render prints the histogram in the "# DISTRIBUTION" block format
// (spec.md §6): count, lower edge, a scaled bar, and the bucket mean.
func (h Histogram) Render() string {
	var b strings.Builder
	if h.NoValidData {
		b.WriteString("\tNo valid data present.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "#       %12s %12s %32s %12s\n", "counts", "usecs/call", "", "means")
	for _, row := range h.Buckets {
		fmt.Fprintf(&b, "#       %12d %12.5f |%s", row.Count, row.LowerEdge, bar(row.Count, h.MaxCount))
		if row.Count > 0 {
			fmt.Fprintf(&b, "%12.5f\n", row.Mean)
		} else {
			fmt.Fprintf(&b, "%12s\n", "-")
		}
	}
	fmt.Fprintf(&b, "#\n")
	fmt.Fprintf(&b, "#       %12d %12s |%s", h.TailCount, "> 95%", bar(h.TailCount, h.MaxCount))
	if h.TailCount > 0 {
		fmt.Fprintf(&b, "%12.5f\n", h.TailMean)
	} else {
		fmt.Fprintf(&b, "%12s\n", "-")
	}
	fmt.Fprintf(&b, "#\n")
	fmt.Fprintf(&b, "#       %12s %12.5f\n", "mean of 95%", h.Mean95)
	fmt.Fprintf(&b, "#       %12s %12.5f\n", "95th %ile", h.P95)
	return b.String()
}

// bar renders a proportional bar, scaled against the largest bucket.
func bar(count, maxCount int64) string {
	if maxCount <= 0 {
		return strings.Repeat(" ", barWidth)
	}
	filled := int(float64(barWidth) * float64(count) / float64(maxCount))
	if filled > barWidth {
		filled = barWidth
	}
	return strings.Repeat("*", filled) + strings.Repeat(" ", barWidth-filled)
}
