package stats

import (
	"fmt"
	"math"
)

// Bin is one fixed-width histogram bucket covering [Start, End).
type Bin struct {
	Start float64
	End   float64
	Count int
}

// Histogram counts values into fixed-width bins starting at 0. There are
// maxValue/binWidth bins plus one extra so the top edge is not truncated.
// Bins are half-open except the last, which also takes its upper edge.
// Values outside the covered range are dropped.
func Histogram(values []float64, binWidth, maxValue float64) ([]Bin, error) {
	if binWidth <= 0 || math.IsNaN(binWidth) || math.IsInf(binWidth, 0) {
		return nil, fmt.Errorf("invalid bin width %v", binWidth)
	}
	if maxValue < 0 || math.IsNaN(maxValue) || math.IsInf(maxValue, 0) {
		return nil, fmt.Errorf("invalid max value %v", maxValue)
	}
	n := int(maxValue/binWidth) + 1
	bins := make([]Bin, n)
	for i := range bins {
		bins[i] = Bin{Start: float64(i) * binWidth, End: float64(i+1) * binWidth}
	}
	top := bins[n-1].End
	for _, v := range values {
		if math.IsNaN(v) || v < 0 || v > top {
			continue
		}
		idx := int(v / binWidth)
		if idx >= n {
			idx = n - 1
		}
		bins[idx].Count++
	}
	return bins, nil
}
