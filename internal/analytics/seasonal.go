package analytics

import "gonum.org/v1/gonum/stat"

// SeasonalResult is the output of SeasonalAdjustment
type SeasonalResult struct {
	Adjusted []float64 `json:"seasonallyAdjusted"`
	Indices  []float64 `json:"seasonalIndex,omitempty"`
	Applied  bool      `json:"applied"`
}

// SeasonalIndexAt returns the index applied to position i (1 when not applied)
func (s SeasonalResult) SeasonalIndexAt(i int) float64 {
	if !s.Applied || len(s.Indices) == 0 {
		return 1
	}
	return s.Indices[i%len(s.Indices)]
}

// SeasonalAdjustment divides each value by the seasonal index of its position.
// seasonalIndex[j] is the mean, over all full cycles, of value/mean for
// position j mod period. With less than one full cycle, a period below 2 or a
// zero mean the input is returned unchanged.
func SeasonalAdjustment(series []float64, period int) SeasonalResult {
	adjusted := append([]float64(nil), series...)
	if period < 2 || len(series) < period {
		return SeasonalResult{Adjusted: adjusted}
	}

	cycles := len(series) / period
	full := series[:cycles*period]
	mean := stat.Mean(full, nil)
	if mean == 0 {
		return SeasonalResult{Adjusted: adjusted}
	}

	indices := make([]float64, period)
	for j := 0; j < period; j++ {
		sum := 0.0
		for c := 0; c < cycles; c++ {
			sum += full[c*period+j] / mean
		}
		indices[j] = sum / float64(cycles)
	}

	for i, v := range series {
		if idx := indices[i%period]; idx != 0 {
			adjusted[i] = v / idx
		}
	}

	return SeasonalResult{Adjusted: adjusted, Indices: indices, Applied: true}
}
