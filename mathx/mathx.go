// Package mathx provides the numerical helpers used to characterize CCD frames:
// order statistics, sample moments, and iterative sigma clipping.
package mathx

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Median returns the median of x, averaging the two middle values when len(x) is even.
// x is not modified.  The median of an empty slice, or of one holding a NaN, is NaN.
func Median(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return math.NaN()
	}
	buf := make([]float64, n)
	copy(buf, x)
	return medianInPlace(buf)
}

// medianInPlace is Median without the copy; buf is sorted on return
func medianInPlace(buf []float64) float64 {
	n := len(buf)
	if n == 0 {
		return math.NaN()
	}
	for _, v := range buf {
		if math.IsNaN(v) {
			return math.NaN()
		}
	}
	sort.Float64s(buf)
	if n%2 == 1 {
		return buf[n/2]
	}
	return (buf[n/2-1] + buf[n/2]) / 2
}

// SampleMeanStd returns the mean and the Bessel corrected (ddof=1) standard deviation of x.
// A single sample has an undefined (NaN) standard deviation.
func SampleMeanStd(x []float64) (mean, std float64) {
	switch len(x) {
	case 0:
		return math.NaN(), math.NaN()
	case 1:
		return x[0], math.NaN()
	}
	return stat.MeanStdDev(x, nil)
}

// Mean returns the arithmetic mean of x, NaN if x is empty.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}
