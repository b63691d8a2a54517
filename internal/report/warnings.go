package report

import "fmt"

// WarningInputs carries everything the warnings block (spec.md §4.8) needs
// to decide which of the four advisories to print.
type WarningInputs struct {
	QuantErrors  int64
	ResolutionNS int64
	BatchSize    int64
	MedianUS     float64
	CountTotal   int64
	Batches      int64
	ErrorsTotal  int64
}

// Warnings returns the enabled advisory lines, in the order the original
// harness emits them: quantization, low per-sample workload, too few
// samples, errors present. Emitted only when the run requested warnings
// (-W, spec.md §6); the caller is responsible for the gate.
func Warnings(in WarningInputs) []string {
	var out []string

	if in.QuantErrors > 0 && in.BatchSize > 0 && in.MedianUS > 0 {
		multiplier := int64(float64(in.ResolutionNS*100)/(float64(in.BatchSize)*in.MedianUS*1000)) + 1
		out = append(out, fmt.Sprintf(
			"quantization: %d sample(s) had span below 100x clock resolution; consider a batch size multiplier of at least %d",
			in.QuantErrors, multiplier))
	}

	if in.Batches > 0 {
		perBatch := float64(in.CountTotal) / float64(in.Batches)
		ratio := perBatch / float64(in.Batches)
		if ratio < 0.01618 {
			out = append(out, "low per-sample workload: consider increasing the batch size")
		}
	}

	if in.Batches < 100 {
		out = append(out, "too few samples: consider running longer or lowering -I/-B")
	}

	if in.ErrorsTotal > 0 {
		out = append(out, fmt.Sprintf("errors occurred: %d kernel error(s) were reported", in.ErrorsTotal))
	}

	return out
}
