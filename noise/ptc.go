package noise

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// PTCPoint is one photon transfer sample: a mean signal and its shot noise variance, both in ADU
type PTCPoint struct {
	Count    float64 `json:"count"`
	Variance float64 `json:"variance"`
}

// PTCResult is a straight line fit of shot noise variance against signal
type PTCResult struct {
	// Gain is 1/Slope in e-/ADU
	Gain float64 `json:"gain"`

	// Slope and Intercept of Variance = Intercept + Slope*Count
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`

	// RSquared is the coefficient of determination, a linearity diagnostic
	RSquared float64 `json:"r_squared"`

	// Used is the number of points in the fit, Dropped the non-finite points skipped
	Used    int `json:"used"`
	Dropped int `json:"dropped"`
}

// PointFromGain extracts the photon transfer sample of a gain estimate
func PointFromGain(g GainResult) PTCPoint {
	return PTCPoint{Count: g.Count, Variance: g.ShotVariance}
}

// FitPTC fits the photon transfer curve through pts.  For Poisson statistics
// the variance grows as Count/gain, so the gain is the inverse slope; curvature
// of the points (a low RSquared) indicates a nonlinear detector response.
func FitPTC(pts []PTCPoint) (PTCResult, error) {
	xs := make([]float64, 0, len(pts))
	ys := make([]float64, 0, len(pts))
	for _, p := range pts {
		if finite(p.Count) && finite(p.Variance) {
			xs = append(xs, p.Count)
			ys = append(ys, p.Variance)
		}
	}
	res := PTCResult{Used: len(xs), Dropped: len(pts) - len(xs)}
	if len(xs) < 2 {
		return res, fmt.Errorf("%w: photon transfer fit needs 2 finite points, got %d", ErrInsufficientData, len(xs))
	}
	spread := false
	for _, x := range xs[1:] {
		if x != xs[0] {
			spread = true
			break
		}
	}
	if !spread {
		return res, fmt.Errorf("%w: all %d points share the signal level %g", ErrInsufficientData, len(xs), xs[0])
	}

	res.Intercept, res.Slope = stat.LinearRegression(xs, ys, nil, false)
	res.RSquared = stat.RSquared(xs, ys, nil, res.Intercept, res.Slope)
	res.Gain = 1 / res.Slope
	return res, nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
