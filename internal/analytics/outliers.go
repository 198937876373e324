package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Outlier types
const (
	OutlierHigh = "outlier_high"
	OutlierLow  = "outlier_low"
)

// Outlier is a point whose z-score magnitude exceeds the threshold
type Outlier struct {
	Index         int     `json:"index"`
	Value         float64 `json:"value"`
	ZScore        float64 `json:"zScore"`
	Type          string  `json:"type"`
	ExpectedRange Range   `json:"expectedRange"`
}

// ZScores returns the population z-score of each value and the mean and
// standard deviation used. A zero standard deviation yields all zeros.
func ZScores(values []float64) ([]float64, float64, float64) {
	if len(values) == 0 {
		return nil, 0, 0
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	z := make([]float64, len(values))
	if std == 0 || math.IsNaN(std) {
		return z, mean, 0
	}
	for i, v := range values {
		z[i] = (v - mean) / std
	}
	return z, mean, std
}

// DetectOutliers flags points with |z| > threshold. Fewer than
// MinOutlierPoints values or a zero standard deviation yield no outliers.
func DetectOutliers(values []float64, threshold float64) []Outlier {
	return DetectOutliersMin(values, threshold, MinOutlierPoints)
}

// DetectOutliersMin is DetectOutliers with a custom minimum sample count
func DetectOutliersMin(values []float64, threshold float64, minPoints int) []Outlier {
	out := []Outlier{}
	if len(values) < minPoints || len(values) == 0 {
		return out
	}

	z, mean, std := ZScores(values)
	if std == 0 {
		return out
	}

	expected := Range{Min: mean - threshold*std, Max: mean + threshold*std}
	for i, score := range z {
		if math.Abs(score) <= threshold {
			continue
		}
		typ := OutlierHigh
		if score < 0 {
			typ = OutlierLow
		}
		out = append(out, Outlier{
			Index:         i,
			Value:         values[i],
			ZScore:        score,
			Type:          typ,
			ExpectedRange: expected,
		})
	}
	return out
}
