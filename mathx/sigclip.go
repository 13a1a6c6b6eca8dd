package mathx

import (
	"fmt"
	"math"
	"strings"
)

// center function names accepted by ClipConfig.Center
const (
	CenterMean   = "mean"
	CenterMedian = "median"
)

// ClipConfig holds the parameters of iterative sigma clipping
type ClipConfig struct {
	// Sigma is the rejection threshold in units of standard deviation
	Sigma float64 `koanf:"sigma" yaml:"sigma" json:"sigma"`

	// MaxIters bounds the number of clipping passes.  0 disables clipping,
	// a negative value iterates until nothing more is rejected.
	MaxIters int `koanf:"maxiters" yaml:"maxiters" json:"maxiters"`

	// Center is the statistic deviations are measured from, "mean" or "median"
	Center string `koanf:"center" yaml:"center" json:"center"`
}

// DefaultClip returns sigma=3, maxiters=5, mean centered clipping
func DefaultClip() ClipConfig {
	return ClipConfig{Sigma: 3, MaxIters: 5, Center: CenterMean}
}

// Validate checks the clip configuration for usable values
func (c ClipConfig) Validate() error {
	if c.Sigma < 0 || math.IsNaN(c.Sigma) {
		return fmt.Errorf("sigma must be nonnegative, got %v", c.Sigma)
	}
	switch strings.ToLower(c.Center) {
	case "", CenterMean, CenterMedian:
		return nil
	default:
		return fmt.Errorf("unknown clipping center %q, want %q or %q", c.Center, CenterMean, CenterMedian)
	}
}

// ClippedStats is the outcome of sigma clipping a set of samples.
// When every sample was rejected Mean, Median and Std are NaN.
type ClippedStats struct {
	Mean   float64
	Median float64

	// Std is the population standard deviation of the surviving samples
	Std float64

	// N is the number of surviving samples
	N int

	// Iters is the number of clipping passes that ran
	Iters int
}

// SigmaClip computes clipped statistics of x.  x is not modified.
func SigmaClip(x []float64, cfg ClipConfig) ClippedStats {
	work := make([]float64, len(x))
	scratch := make([]float64, len(x))
	return sigmaClip(x, work, scratch, cfg)
}

// sigmaClip is SigmaClip with caller owned buffers, each at least len(x) long
func sigmaClip(x, work, scratch []float64, cfg ClipConfig) ClippedStats {
	vals := work[:0]
	for _, v := range x {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			vals = append(vals, v)
		}
	}
	useMedian := strings.EqualFold(cfg.Center, CenterMedian)

	iters := 0
	for len(vals) > 0 && (cfg.MaxIters < 0 || iters < cfg.MaxIters) {
		mean, std := popMeanStd(vals)
		c := mean
		if useMedian {
			c = medianInPlace(append(scratch[:0], vals...))
		}
		limit := cfg.Sigma * std
		kept := vals[:0]
		for _, v := range vals {
			if math.Abs(v-c) <= limit {
				kept = append(kept, v)
			}
		}
		iters++
		rejected := len(vals) - len(kept)
		vals = kept
		if rejected == 0 {
			break
		}
	}

	out := ClippedStats{N: len(vals), Iters: iters}
	if len(vals) == 0 {
		out.Mean, out.Median, out.Std = math.NaN(), math.NaN(), math.NaN()
		return out
	}
	out.Mean, out.Std = popMeanStd(vals)
	out.Median = medianInPlace(append(scratch[:0], vals...))
	return out
}

// popMeanStd returns the mean and population standard deviation of x, measured
// relative to x[0] so that a constant input reproduces its value exactly
func popMeanStd(x []float64) (mean, std float64) {
	ref := x[0]
	var sum, sumsq float64
	for _, v := range x {
		d := v - ref
		sum += d
		sumsq += d * d
	}
	n := float64(len(x))
	m := sum / n
	variance := sumsq/n - m*m
	if variance < 0 {
		variance = 0
	}
	return ref + m, math.Sqrt(variance)
}

// StackMean reduces a stack of equally sized planes to their per-element sigma
// clipped mean.  It returns the reduced plane and the number of elements whose
// samples were all rejected, which hold NaN.
func StackMean(stack [][]float64, cfg ClipConfig) ([]float64, int, error) {
	if len(stack) == 0 {
		return nil, 0, fmt.Errorf("empty stack")
	}
	size := len(stack[0])
	for i, plane := range stack {
		if len(plane) != size {
			return nil, 0, fmt.Errorf("plane %d has %d elements, expected %d", i, len(plane), size)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, 0, err
	}

	out := make([]float64, size)
	column := make([]float64, len(stack))
	work := make([]float64, len(stack))
	scratch := make([]float64, len(stack))
	undefined := 0
	for idx := 0; idx < size; idx++ {
		for k, plane := range stack {
			column[k] = plane[idx]
		}
		st := sigmaClip(column, work, scratch, cfg)
		if st.N == 0 {
			undefined++
		}
		out[idx] = st.Mean
	}
	return out, undefined, nil
}
