package aggregation

import (
	"math"
	"strconv"

	"github.com/soltixdb/insight/internal/utils"
)

// FieldStats accumulates one field of a group.
// Numeric aggregates only see values that convert to float64; count and
// distinct see every present value.
type FieldStats struct {
	Count      int     // present values
	Numeric    int     // numeric values
	Sum        float64 // sum of numeric values
	Min        float64
	Max        float64
	SumSquares float64

	distinct map[string]struct{}
}

// NewFieldStats creates an empty accumulator
func NewFieldStats() *FieldStats {
	return &FieldStats{distinct: make(map[string]struct{})}
}

// Add folds a raw record value into the accumulator; nil is ignored
func (fs *FieldStats) Add(v interface{}) {
	if v == nil {
		return
	}
	fs.Count++

	if f, ok := utils.ToFloat64(v); ok {
		fs.addNumeric(f)
		fs.mark(strconv.FormatFloat(f, 'g', -1, 64))
		return
	}
	if s, ok := v.(string); ok {
		fs.mark(s)
	}
}

// AddValue folds a numeric value
func (fs *FieldStats) AddValue(f float64) {
	fs.Count++
	fs.addNumeric(f)
	fs.mark(strconv.FormatFloat(f, 'g', -1, 64))
}

func (fs *FieldStats) mark(key string) {
	if fs.distinct == nil {
		fs.distinct = make(map[string]struct{})
	}
	fs.distinct[key] = struct{}{}
}

func (fs *FieldStats) addNumeric(f float64) {
	if fs.Numeric == 0 || f < fs.Min {
		fs.Min = f
	}
	if fs.Numeric == 0 || f > fs.Max {
		fs.Max = f
	}
	fs.Numeric++
	fs.Sum += f
	fs.SumSquares += f * f
}

// Merge combines another accumulator into this one
func (fs *FieldStats) Merge(other *FieldStats) {
	if other == nil {
		return
	}
	if other.Numeric > 0 {
		if fs.Numeric == 0 || other.Min < fs.Min {
			fs.Min = other.Min
		}
		if fs.Numeric == 0 || other.Max > fs.Max {
			fs.Max = other.Max
		}
	}
	fs.Count += other.Count
	fs.Numeric += other.Numeric
	fs.Sum += other.Sum
	fs.SumSquares += other.SumSquares
	for k := range other.distinct {
		fs.mark(k)
	}
}

// Avg returns the numeric mean, 0 when empty
func (fs *FieldStats) Avg() float64 {
	return utils.SafeDiv(fs.Sum, float64(fs.Numeric))
}

// Variance returns the population variance of the numeric values
func (fs *FieldStats) Variance() float64 {
	if fs.Numeric <= 1 {
		return 0
	}
	avg := fs.Avg()
	return math.Max(0, fs.SumSquares/float64(fs.Numeric)-avg*avg)
}

// StdDev returns the population standard deviation
func (fs *FieldStats) StdDev() float64 {
	return math.Sqrt(fs.Variance())
}

// Distinct returns the number of distinct values
func (fs *FieldStats) Distinct() int {
	return len(fs.distinct)
}

// Value evaluates fn; an empty accumulator yields 0 for every function
func (fs *FieldStats) Value(fn Function) float64 {
	switch fn {
	case FuncSum:
		return fs.Sum
	case FuncAvg:
		return fs.Avg()
	case FuncMin:
		if fs.Numeric == 0 {
			return 0
		}
		return fs.Min
	case FuncMax:
		if fs.Numeric == 0 {
			return 0
		}
		return fs.Max
	case FuncCount:
		return float64(fs.Count)
	case FuncDistinct:
		return float64(fs.Distinct())
	default:
		return 0
	}
}
