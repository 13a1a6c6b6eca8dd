package noise

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/nasa-jpl/ccdnoise/camera"
	"github.com/nasa-jpl/ccdnoise/mathx"
)

// RONResult is the readout noise estimated from one pair of bias frames
type RONResult struct {
	// ADU is the single frame readout noise, Sigma/√2
	ADU float64

	// Sigma is the sample standard deviation of the difference inside the window
	Sigma float64

	// Median and Mean of the difference inside the window.  Both should be close
	// to zero; a bias level drift between the frames shows up here.
	Median float64
	Mean   float64

	// Window is the resolved window the statistics were taken over
	Window camera.Window

	// Diff is the full frame difference first - second
	Diff camera.Frame
}

// EstimateRON computes the readout noise in ADU from two bias frames.
//
// The frames must share a shape and win must fit inside them; the zero window
// means the full frame.
func EstimateRON(first, second camera.Frame, win camera.Window, opts Options) (RONResult, error) {
	win, err := pairWindow(first, second, win)
	if err != nil {
		return RONResult{}, err
	}
	if err = checkExposure(first, second, opts.ExposureTolerance); err != nil {
		return RONResult{}, err
	}

	diff := camera.NewFrame("bias_diff", first.Width, first.Height)
	floats.SubTo(diff.Pix, first.Pix, second.Pix)
	diff.Exposure = first.Exposure

	region := diff.Region(win)
	mean, sigma := mathx.SampleMeanStd(region)
	return RONResult{
		ADU:    sigma / math.Sqrt2,
		Sigma:  sigma,
		Median: mathx.Median(region),
		Mean:   mean,
		Window: win,
		Diff:   diff,
	}, nil
}
