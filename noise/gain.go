package noise

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/nasa-jpl/ccdnoise/camera"
	"github.com/nasa-jpl/ccdnoise/mathx"
)

// GainResult is the gain estimated from one pair of light frames
type GainResult struct {
	// Gain is the conversion factor in e-/ADU.  It is ±Inf or NaN when the shot
	// noise variance is not positive; see Finite.
	Gain float64

	// RONe is the readout noise converted to electrons, RON(ADU) * Gain
	RONe float64

	// RONADU is the readout noise the estimate was computed with
	RONADU float64

	// Count1 and Count2 are the median bias-corrected signals of each frame
	// inside the window, Count is their average
	Count1 float64
	Count2 float64
	Count  float64

	// Sigma is the sample standard deviation of the scale matched difference
	Sigma float64

	// Median of the scale matched difference inside the window
	Median float64

	// ShotVariance is Sigma²/2 - RON², the photon noise variance in ADU²
	ShotVariance float64

	// Window is the resolved window the statistics were taken over
	Window camera.Window

	// Diff is the full frame scale matched difference d1 - (d2/Count2)*Count1
	Diff camera.Frame
}

// Finite is true when Gain and RONe are finite numbers
func (g GainResult) Finite() bool {
	return !math.IsNaN(g.Gain) && !math.IsInf(g.Gain, 0) &&
		!math.IsNaN(g.RONe) && !math.IsInf(g.RONe, 0)
}

// BiasCorrect returns f minus superbias as a new frame.  An empty superbias
// means no correction and returns a copy of f.
func BiasCorrect(f, superbias camera.Frame) (camera.Frame, error) {
	out := camera.NewFrame(f.Name, f.Width, f.Height)
	out.Exposure = f.Exposure
	if superbias.Empty() {
		if err := f.Check(); err != nil {
			return camera.Frame{}, err
		}
		copy(out.Pix, f.Pix)
		return out, nil
	}
	if err := f.SameShape(superbias); err != nil {
		return camera.Frame{}, err
	}
	floats.SubTo(out.Pix, f.Pix, superbias.Pix)
	return out, nil
}

// EstimateGain computes the gain in e-/ADU from two light frames.
//
// Both frames are bias corrected with superbias (an empty frame skips the
// correction), then the second is rescaled to the median signal of the first
// before differencing so that a small flux mismatch between the exposures does
// not inflate the variance.
//
// A shot noise variance of zero or less yields a non-finite gain which is
// returned as is, unless opts.Strict is set, in which case the result is
// returned together with an ErrDivisionUndefined error.
func EstimateGain(first, second, superbias camera.Frame, ronADU float64, win camera.Window, opts Options) (GainResult, error) {
	win, err := pairWindow(first, second, win)
	if err != nil {
		return GainResult{}, err
	}
	if err = checkExposure(first, second, opts.ExposureTolerance); err != nil {
		return GainResult{}, err
	}
	data1, err := BiasCorrect(first, superbias)
	if err != nil {
		return GainResult{}, err
	}
	data2, err := BiasCorrect(second, superbias)
	if err != nil {
		return GainResult{}, err
	}

	res := GainResult{RONADU: ronADU, Window: win}
	res.Count1 = mathx.Median(data1.Region(win))
	res.Count2 = mathx.Median(data2.Region(win))
	res.Count = (res.Count1 + res.Count2) / 2

	diff := camera.NewFrame("light_diff", first.Width, first.Height)
	diff.Exposure = first.Exposure
	for i := range diff.Pix {
		diff.Pix[i] = data1.Pix[i] - data2.Pix[i]/res.Count2*res.Count1
	}
	res.Diff = diff

	region := diff.Region(win)
	_, res.Sigma = mathx.SampleMeanStd(region)
	res.Median = mathx.Median(region)
	res.ShotVariance = res.Sigma*res.Sigma/2 - ronADU*ronADU
	res.Gain = res.Count / res.ShotVariance
	res.RONe = ronADU * res.Gain

	if opts.Strict && (res.ShotVariance <= 0 || !res.Finite()) {
		return res, fmt.Errorf("%w: shot noise variance %g ADU² (sigma %g, ron %g ADU) at count %g",
			ErrDivisionUndefined, res.ShotVariance, res.Sigma, ronADU, res.Count)
	}
	return res, nil
}
