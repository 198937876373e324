package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Description holds descriptive statistics of a sample
type Description struct {
	Count    int     `json:"count"`
	Sum      float64 `json:"sum"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	StdDev   float64 `json:"standardDeviation"`
	Variance float64 `json:"variance"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	P25      float64 `json:"q1"`
	P75      float64 `json:"q3"`
	P90      float64 `json:"p90"`
	Range    float64 `json:"range"`
	IQR      float64 `json:"iqr"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"`
}

// Describe computes descriptive statistics. The standard deviation is the
// population one, matching the z-scores used for outlier detection.
func Describe(values []float64) Description {
	if len(values) == 0 {
		return Description{}
	}

	sorted := Sorted(values)
	mean, std := stat.PopMeanStdDev(sorted, nil)

	d := Description{
		Count:    len(sorted),
		Mean:     mean,
		Median:   Percentile(sorted, 50),
		StdDev:   finite(std),
		Variance: finite(std * std),
		Min:      sorted[0],
		Max:      sorted[len(sorted)-1],
		P25:      Percentile(sorted, 25),
		P75:      Percentile(sorted, 75),
		P90:      Percentile(sorted, 90),
	}
	for _, v := range sorted {
		d.Sum += v
	}
	d.Range = d.Max - d.Min
	d.IQR = d.P75 - d.P25
	if len(sorted) >= 3 && d.StdDev > 0 {
		d.Skewness = finite(stat.Skew(sorted, nil))
	}
	if len(sorted) >= 4 && d.StdDev > 0 {
		d.Kurtosis = finite(stat.ExKurtosis(sorted, nil))
	}
	return d
}

// Sorted returns an ascending copy
func Sorted(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return sorted
}

// Percentile returns the p-th percentile (0..100) of an ascending slice using
// linear interpolation between closest ranks, so the median of an odd-length
// sample is its middle element.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 || p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Median of an unsorted sample
func Median(values []float64) float64 {
	return Percentile(Sorted(values), 50)
}

// Mean of a sample; 0 when empty
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// PercentileRank places value within a distribution summarized by its
// quartiles: below min is 0, up to p25 is 25, then linear between the
// p25/median/p75/max anchors, and max or above is 100.
func PercentileRank(value float64, d Description) float64 {
	switch {
	case value < d.Min:
		return 0
	case value >= d.Max:
		return 100
	case value <= d.P25:
		return 25
	case value <= d.Median:
		return interpolate(value, d.P25, d.Median, 25, 50)
	case value <= d.P75:
		return interpolate(value, d.Median, d.P75, 50, 75)
	default:
		return interpolate(value, d.P75, d.Max, 75, 100)
	}
}

func interpolate(v, lo, hi, from, to float64) float64 {
	if hi == lo {
		return to
	}
	return from + (v-lo)/(hi-lo)*(to-from)
}
