// Package downsampling thins a numeric series to a point budget while keeping
// its visual shape. Selection works on indices so callers keep their own
// point type.
package downsampling

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mode represents the downsampling mode
type Mode string

const (
	// ModeNone keeps every point
	ModeNone Mode = "none"
	// ModeAuto picks an algorithm from the shape of the series
	ModeAuto Mode = "auto"
	// ModeLTTB uses Largest-Triangle-Three-Buckets
	ModeLTTB Mode = "lttb"
	// ModeMinMax keeps the min and max of each bucket (preserves peaks/spikes)
	ModeMinMax Mode = "minmax"
	// ModeM4 keeps first, min, max and last of each bucket
	ModeM4 Mode = "m4"
)

// MinPoints is the smallest budget honored; smaller budgets are raised to it
const MinPoints = 2

// ParseMode validates a mode name; empty means ModeNone
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeNone, nil
	case ModeNone, ModeAuto, ModeLTTB, ModeMinMax, ModeM4:
		return m, nil
	default:
		return "", fmt.Errorf("unknown downsampling mode %q (supported: none, auto, lttb, minmax, m4)", s)
	}
}

// Select returns the ascending indices of the values to keep so that at most
// maxPoints remain. A series already within budget is returned whole.
func Select(values []float64, mode Mode, maxPoints int) ([]int, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if maxPoints < MinPoints {
		maxPoints = MinPoints
	}
	if mode == ModeNone || len(values) <= maxPoints {
		return allIndices(len(values)), nil
	}

	if mode == ModeAuto {
		mode = detectBestAlgorithm(values)
	}

	switch mode {
	case ModeMinMax:
		return minmax(values, maxPoints), nil
	case ModeM4:
		if maxPoints < 4 {
			return minmax(values, maxPoints), nil
		}
		return m4(values, maxPoints), nil
	default:
		return lttb(values, maxPoints), nil
	}
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// detectBestAlgorithm prefers MinMax for spiky data, M4 for moderately
// noisy data and LTTB for smooth data
func detectBestAlgorithm(values []float64) Mode {
	switch s := spikiness(values); {
	case s > 0.2:
		return ModeMinMax
	case s > 0.1:
		return ModeM4
	default:
		return ModeLTTB
	}
}

// spikiness is in [0, 1]: the share of points far from the mean, blended
// with the share of steps larger than one standard deviation
func spikiness(values []float64) float64 {
	if len(values) < 10 {
		return 0
	}

	mean, stdDev := stat.PopMeanStdDev(values, nil)
	if stdDev == 0 {
		return 0
	}

	outliers, jumps := 0, 0
	for i, v := range values {
		if math.Abs(v-mean) > 2*stdDev {
			outliers++
		}
		if i > 0 && math.Abs(v-values[i-1]) > stdDev {
			jumps++
		}
	}

	absolute := float64(outliers) / float64(len(values))
	derivative := float64(jumps) / float64(len(values)-1)
	return math.Min(1, (absolute+1.5*derivative)/2.5)
}

// lttb keeps the first and last points and, per bucket in between, the point
// forming the largest triangle with the previous pick and the next bucket's mean
func lttb(values []float64, threshold int) []int {
	n := len(values)
	if threshold <= 2 {
		return []int{0, n - 1}
	}

	sampled := make([]int, 0, threshold)
	sampled = append(sampled, 0)

	bucketSize := float64(n-2) / float64(threshold-2)
	a := 0

	for i := 0; i < threshold-2; i++ {
		nextStart := int(math.Floor(float64(i+1)*bucketSize)) + 1
		nextEnd := int(math.Floor(float64(i+2)*bucketSize)) + 1
		if nextEnd > n {
			nextEnd = n
		}

		var avgX, avgY float64
		for j := nextStart; j < nextEnd; j++ {
			avgX += float64(j)
			avgY += values[j]
		}
		if span := float64(nextEnd - nextStart); span > 0 {
			avgX /= span
			avgY /= span
		}

		from := int(math.Floor(float64(i)*bucketSize)) + 1
		to := int(math.Floor(float64(i+1)*bucketSize)) + 1

		maxArea := -1.0
		pick := from
		for j := from; j < to; j++ {
			area := math.Abs((float64(a)-avgX)*(values[j]-values[a])-
				(float64(a)-float64(j))*(avgY-values[a])) * 0.5
			if area > maxArea {
				maxArea = area
				pick = j
			}
		}

		sampled = append(sampled, pick)
		a = pick
	}

	return append(sampled, n-1)
}

// buckets splits n points into count contiguous half-open ranges
func buckets(n, count int) [][2]int {
	size := float64(n) / float64(count)
	out := make([][2]int, 0, count)
	for i := 0; i < count; i++ {
		start := int(float64(i) * size)
		end := int(float64(i+1) * size)
		if end > n {
			end = n
		}
		if start < end {
			out = append(out, [2]int{start, end})
		}
	}
	return out
}

func extremes(values []float64, start, end int) (minIdx, maxIdx int) {
	minIdx, maxIdx = start, start
	for j := start + 1; j < end; j++ {
		if values[j] < values[minIdx] {
			minIdx = j
		}
		if values[j] > values[maxIdx] {
			maxIdx = j
		}
	}
	return minIdx, maxIdx
}

// minmax keeps up to two points per bucket in time order
func minmax(values []float64, threshold int) []int {
	sampled := make([]int, 0, threshold)
	for _, b := range buckets(len(values), max(threshold/2, 1)) {
		lo, hi := extremes(values, b[0], b[1])
		if lo > hi {
			lo, hi = hi, lo
		}
		sampled = append(sampled, lo)
		if hi != lo {
			sampled = append(sampled, hi)
		}
	}
	return sampled
}

// m4 keeps up to four points per bucket: first, min, max, last in time order
func m4(values []float64, threshold int) []int {
	sampled := make([]int, 0, threshold)
	for _, b := range buckets(len(values), max(threshold/4, 1)) {
		first, last := b[0], b[1]-1
		lo, hi := extremes(values, b[0], b[1])
		if lo > hi {
			lo, hi = hi, lo
		}

		prev := -1
		for _, idx := range [4]int{first, lo, hi, last} {
			if idx > prev {
				sampled = append(sampled, idx)
				prev = idx
			}
		}
	}
	return sampled
}
