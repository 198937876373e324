package analytics

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ProjectionPoint is one extrapolated value with its prediction interval
type ProjectionPoint struct {
	Time       time.Time `json:"time,omitempty"`
	Step       int       `json:"step"`
	Value      float64   `json:"value"`
	LowerBound float64   `json:"lowerBound"`
	UpperBound float64   `json:"upperBound"`
}

// Projection extends a linear fit past the end of a series
type Projection struct {
	Points     []ProjectionPoint `json:"points"`
	Confidence float64           `json:"confidence"`
	MAE        float64           `json:"mae"`
	RMSE       float64           `json:"rmse"`
}

// Project fits value against index and extrapolates horizon steps. The
// interval widens with distance from the mean index. Fewer than three points
// give an InsufficientDataError.
func Project(series TimeSeriesData, horizon int, confidence float64) (*Projection, error) {
	if len(series) < 3 {
		return nil, NewInsufficientData("", len(series), 3)
	}
	if horizon <= 0 {
		return &Projection{Points: []ProjectionPoint{}, Confidence: confidence}, nil
	}

	y := series.Values()
	x := Index(len(y))
	fit := LinearRegression(x, y)

	fitted := make([]float64, len(y))
	sse := 0.0
	for i := range y {
		fitted[i] = fit.Predict(x[i])
		r := y[i] - fitted[i]
		sse += r * r
	}
	stdErr := math.Sqrt(sse / float64(len(y)-2))

	n := float64(len(y))
	meanX := stat.Mean(x, nil)
	sxx := 0.0
	for _, xi := range x {
		sxx += (xi - meanX) * (xi - meanX)
	}

	step := time.Duration(0)
	last := series[len(series)-1].Time
	if !last.IsZero() && !series[0].Time.IsZero() {
		step = last.Sub(series[0].Time) / time.Duration(len(series)-1)
	}

	z := zScore(confidence)
	points := make([]ProjectionPoint, horizon)
	for h := 0; h < horizon; h++ {
		xi := n + float64(h)
		value := fit.Predict(xi)
		se := stdErr * math.Sqrt(1+1/n+(xi-meanX)*(xi-meanX)/sxx)
		p := ProjectionPoint{
			Step:       h + 1,
			Value:      value,
			LowerBound: value - z*se,
			UpperBound: value + z*se,
		}
		if step > 0 {
			p.Time = last.Add(step * time.Duration(h+1))
		}
		points[h] = p
	}

	return &Projection{
		Points:     points,
		Confidence: confidence,
		MAE:        meanAbsError(y, fitted),
		RMSE:       rootMeanSquaredError(y, fitted),
	}, nil
}

// zScore returns the two-sided normal quantile for a confidence level;
// levels outside (0, 1) fall back to 95%.
func zScore(confidence float64) float64 {
	if confidence <= 0 || confidence >= 1 {
		confidence = 0.95
	}
	return distuv.UnitNormal.Quantile(0.5 + confidence/2)
}

func meanAbsError(actual, predicted []float64) float64 {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return 0
	}
	sum := 0.0
	for i := range actual {
		sum += math.Abs(actual[i] - predicted[i])
	}
	return sum / float64(len(actual))
}

func rootMeanSquaredError(actual, predicted []float64) float64 {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return 0
	}
	sum := 0.0
	for i := range actual {
		d := actual[i] - predicted[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(actual)))
}
