package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Regression is an ordinary least squares fit y = Intercept + Slope*x
type Regression struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"rSquared"`
}

// Predict evaluates the fitted line at x
func (r Regression) Predict(x float64) float64 {
	return r.Intercept + r.Slope*x
}

// LinearRegression fits y on x. Mismatched or fewer than two points, or a
// constant x, give the zero Regression. A constant y has RSquared 0.
func LinearRegression(x, y []float64) Regression {
	if len(x) != len(y) || len(x) < 2 {
		return Regression{}
	}
	if stat.Variance(x, nil) == 0 {
		return Regression{}
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) {
		return Regression{}
	}

	r2 := 0.0
	if stat.Variance(y, nil) > 0 {
		r2 = finite(stat.RSquared(x, y, nil, alpha, beta))
	}

	return Regression{
		Slope:     beta,
		Intercept: alpha,
		RSquared:  math.Max(0, math.Min(1, r2)),
	}
}

// Correlation returns Pearson's r; undefined correlations are 0
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0
	}
	return finite(stat.Correlation(x, y, nil))
}
