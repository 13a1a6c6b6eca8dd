package noise

import (
	"fmt"
	"math"

	"github.com/nasa-jpl/ccdnoise/camera"
	"github.com/nasa-jpl/ccdnoise/mathx"
)

// Superbias reduces a stack of bias frames to their per-pixel sigma clipped mean.
//
// At least two frames of identical shape are required.  Pixels where every
// sample was rejected are NaN in the result; use Frame.CountNaN to detect them.
// The result carries the exposure time of the inputs if they all agree.
func Superbias(frames []camera.Frame, cfg mathx.ClipConfig) (camera.Frame, error) {
	if len(frames) < 2 {
		return camera.Frame{}, fmt.Errorf("%w: superbias needs at least 2 bias frames, got %d", ErrInsufficientData, len(frames))
	}
	first := frames[0]
	stack := make([][]float64, len(frames))
	for i, f := range frames {
		if err := first.SameShape(f); err != nil {
			return camera.Frame{}, err
		}
		stack[i] = f.Pix
	}
	pix, _, err := mathx.StackMean(stack, cfg)
	if err != nil {
		return camera.Frame{}, err
	}

	out := camera.Frame{
		Name:     "superbias",
		Width:    first.Width,
		Height:   first.Height,
		Pix:      pix,
		Exposure: first.Exposure}
	for _, f := range frames[1:] {
		if f.Exposure != first.Exposure {
			out.Exposure = math.NaN()
			break
		}
	}
	return out, nil
}
