// Package noise estimates the readout noise and gain of a CCD from pairs of
// frames, and builds the superbias used to bias-correct light frames.
//
// Readout noise comes from the difference of two bias frames: each frame
// contributes an independent variance ron², so the standard deviation of the
// difference is divided by √2.  Gain comes from the difference of two equally
// exposed light frames, where the halved variance of the difference less ron²
// is the photon shot noise, and for Poisson statistics that variance in ADU²
// equals the signal in ADU divided by the gain.
//
// The estimators are pure: they never modify their inputs and return the
// difference frames they compute so callers can persist them.
package noise

import (
	"errors"
	"fmt"
	"math"

	"github.com/nasa-jpl/ccdnoise/camera"
)

var (
	// ErrInsufficientData is returned when a statistic is given fewer samples or frames than it needs
	ErrInsufficientData = errors.New("insufficient data")

	// ErrMismatchedExposure is returned when paired frames have different exposure times
	ErrMismatchedExposure = errors.New("mismatched exposure")

	// ErrDivisionUndefined is returned in strict mode when the shot noise variance is not positive
	ErrDivisionUndefined = errors.New("division undefined")
)

// DefaultExposureTolerance is the largest exposure time difference, in seconds,
// tolerated between the two frames of a pair
const DefaultExposureTolerance = 1e-3

// Options tunes the pair estimators
type Options struct {
	// ExposureTolerance is the largest exposure difference in seconds allowed
	// between paired frames.  A negative value disables the check.
	ExposureTolerance float64

	// Strict makes EstimateGain fail with ErrDivisionUndefined instead of
	// returning a non-finite gain
	Strict bool
}

// DefaultOptions returns the exposure check enabled at DefaultExposureTolerance, non-strict
func DefaultOptions() Options {
	return Options{ExposureTolerance: DefaultExposureTolerance}
}

// checkExposure compares the exposure time of a pair.  Frames without exposure
// metadata are not checked.
func checkExposure(a, b camera.Frame, tol float64) error {
	if tol < 0 || math.IsNaN(a.Exposure) || math.IsNaN(b.Exposure) {
		return nil
	}
	if math.Abs(a.Exposure-b.Exposure) > tol {
		return fmt.Errorf("%w: %q exposed %gs, %q exposed %gs",
			ErrMismatchedExposure, a.Name, a.Exposure, b.Name, b.Exposure)
	}
	return nil
}

// pairWindow validates that a and b share a shape and resolves win against it
func pairWindow(a, b camera.Frame, win camera.Window) (camera.Window, error) {
	if err := a.SameShape(b); err != nil {
		return win, err
	}
	return win.Resolve(a.Width, a.Height)
}
