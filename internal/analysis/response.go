package analysis

import "math"

// SettlingTime returns the first time after which every value stays within
// band of zero. It returns -1 if the last value is outside the band.
func SettlingTime(times, values []float64, band float64) float64 {
	n := min(len(times), len(values))
	if n == 0 {
		return -1
	}
	for i := n - 1; i >= 0; i-- {
		if math.Abs(values[i]) > band {
			if i == n-1 {
				return -1
			}
			return times[i+1]
		}
	}
	return times[0]
}

// RMS is the root mean square of values.
func RMS(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(values)))
}

// ZeroCrossings counts sign changes, ignoring exact zeros.
func ZeroCrossings(values []float64) int {
	count := 0
	prev := 0.0
	for _, v := range values {
		if v == 0 {
			continue
		}
		if prev != 0 && (v > 0) != (prev > 0) {
			count++
		}
		prev = v
	}
	return count
}
