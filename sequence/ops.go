package sequence

import (
	"fmt"
	"path/filepath"

	"github.com/nasa-jpl/ccdnoise/camera"
	"github.com/nasa-jpl/ccdnoise/imgrec"
	"github.com/nasa-jpl/ccdnoise/noise"
)

// SuperbiasReport is the outcome of building a superbias
type SuperbiasReport struct {
	Frame camera.Frame

	// Artifact is where the superbias was saved, empty without a sink
	Artifact string

	// Frames is the number of bias frames stacked
	Frames int

	// Undefined is the number of pixels where every sample was rejected
	Undefined int
}

// RONPair is the readout noise of one bias pair
type RONPair struct {
	First, Second string
	noise.RONResult
	Artifact string
}

// RONReport holds every pair of a readout noise walk and the summary of their RON in ADU
type RONReport struct {
	Pairs []RONPair
	RON   Summary
}

// GainPair is the gain of one light pair
type GainPair struct {
	First, Second string
	noise.GainResult
	Artifact string
}

// GainReport holds every pair of a gain walk with the summaries of the gain
// and of the readout noise in electrons
type GainReport struct {
	Pairs []GainPair
	Gain  Summary
	RONe  Summary
}

// CalcReport is a readout noise estimate from one bias pair followed by a gain
// estimate from one light pair using it
type CalcReport struct {
	RON  RONPair
	Gain GainPair
}

// PTCReport is a gain walk with a photon transfer fit through its pairs
type PTCReport struct {
	GainReport
	Fit noise.PTCResult
}

// Superbias stacks the bias frames at paths and saves the result as out.
// An empty out names the artifact "superbias.fits".
func (d *Driver) Superbias(paths []string, out string) (SuperbiasReport, error) {
	if len(paths) < 2 {
		return SuperbiasReport{}, fmt.Errorf("%w: superbias needs at least 2 frames, got %d", ErrInsufficientFrames, len(paths))
	}
	frames := make([]camera.Frame, len(paths))
	for i, p := range paths {
		d.progress(i, len(paths)+1, "superbias: loading "+imgrec.Stem(p))
		f, err := d.load(p)
		if err != nil {
			return SuperbiasReport{}, err
		}
		frames[i] = f
	}
	d.progress(len(paths), len(paths)+1, "superbias: stacking")
	sb, err := noise.Superbias(frames, d.Clip)
	if err != nil {
		return SuperbiasReport{}, err
	}
	if out == "" {
		out = "superbias.fits"
	}
	sb.Name = filepath.Base(out)
	rep := SuperbiasReport{Frame: sb, Frames: len(frames), Undefined: sb.CountNaN()}
	rep.Artifact, err = d.save(out, sb)
	if err != nil {
		return rep, err
	}
	d.progress(len(paths)+1, len(paths)+1, "superbias: done")
	d.logf("superbias of %d frames %dx%d, %d undefined pixels", rep.Frames, sb.Width, sb.Height, rep.Undefined)
	return rep, nil
}

// ronPair estimates and persists the readout noise of one pair
func (d *Driver) ronPair(a, b camera.Frame, win camera.Window) (RONPair, error) {
	res, err := noise.EstimateRON(a, b, win, d.Options)
	if err != nil {
		return RONPair{}, err
	}
	res.Diff.Name = imgrec.DiffName("bias", a.Name, b.Name)
	p := RONPair{First: a.Name, Second: b.Name, RONResult: res}
	p.Artifact, err = d.save(res.Diff.Name, res.Diff)
	if err != nil {
		return p, err
	}
	d.logf("%s %s difference: median=%7.3f mean=%7.3f ron_adu=%5.3f",
		a.Name, filepath.Base(b.Name), res.Median, res.Mean, res.ADU)
	return p, nil
}

// gainPair estimates and persists the gain of one pair
func (d *Driver) gainPair(a, b, superbias camera.Frame, ron float64, win camera.Window) (GainPair, error) {
	res, err := noise.EstimateGain(a, b, superbias, ron, win, d.Options)
	if err != nil {
		return GainPair{}, err
	}
	res.Diff.Name = imgrec.DiffName("light", a.Name, b.Name)
	p := GainPair{First: a.Name, Second: b.Name, GainResult: res}
	p.Artifact, err = d.save(res.Diff.Name, res.Diff)
	if err != nil {
		return p, err
	}
	d.logf("light count=%7.1f  sigma^2 %7.2f median=%5.2f ADU gain=%5.2f, ron_e=%5.2f %s %s",
		res.Count, res.ShotVariance, res.Median, res.Gain, res.RONe, imgrec.Stem(a.Name), imgrec.Stem(b.Name))
	return p, nil
}

// loadSuperbias loads the superbias at path; an empty path means no bias correction
func (d *Driver) loadSuperbias(path string) (camera.Frame, error) {
	if path == "" {
		return camera.Frame{}, nil
	}
	return d.load(path)
}

// RON estimates the readout noise in ADU of every consecutive pair of bias frames
func (d *Driver) RON(paths []string, win camera.Window) (RONReport, error) {
	var rep RONReport
	err := d.walk(paths, "ron", func(i int, a, b camera.Frame) error {
		p, err := d.ronPair(a, b, win)
		if err != nil {
			return err
		}
		rep.Pairs = append(rep.Pairs, p)
		return nil
	})
	if err != nil {
		return rep, err
	}
	vals := make([]float64, len(rep.Pairs))
	for i, p := range rep.Pairs {
		vals[i] = p.ADU
	}
	rep.RON = Summarize(vals)
	d.logf("median ron=%5.3f mean ron=%5.3f", rep.RON.Median, rep.RON.Mean)
	return rep, nil
}

// Gain estimates the gain of every consecutive pair of light frames.  The
// frames are bias corrected with the superbias at superbiasPath, or not at all
// if it is empty, and ron is the readout noise in ADU.
func (d *Driver) Gain(paths []string, superbiasPath string, ron float64, win camera.Window) (GainReport, error) {
	rep, err := d.gainWalk(d.walk, "gain", paths, superbiasPath, ron, win)
	if err != nil {
		return rep, err
	}
	d.logf("median gain=%7.3f mean gain=%5.3f", rep.Gain.Median, rep.Gain.Mean)
	return rep, nil
}

type walker func(paths []string, what string, fn func(i int, a, b camera.Frame) error) error

func (d *Driver) gainWalk(walk walker, what string, paths []string, superbiasPath string, ron float64, win camera.Window) (GainReport, error) {
	superbias, err := d.loadSuperbias(superbiasPath)
	if err != nil {
		return GainReport{}, err
	}
	var rep GainReport
	err = walk(paths, what, func(i int, a, b camera.Frame) error {
		p, err := d.gainPair(a, b, superbias, ron, win)
		if err != nil {
			return err
		}
		rep.Pairs = append(rep.Pairs, p)
		return nil
	})
	if err != nil {
		return rep, err
	}
	gains := make([]float64, len(rep.Pairs))
	rone := make([]float64, len(rep.Pairs))
	for i, p := range rep.Pairs {
		gains[i] = p.Gain
		rone[i] = p.RONe
	}
	rep.Gain = Summarize(gains)
	rep.RONe = Summarize(rone)
	return rep, nil
}

// Calc estimates the readout noise from bias1 and bias2, then the gain from
// light1 and light2 with it.  An empty superbiasPath uses bias1 as the superbias.
func (d *Driver) Calc(bias1, bias2, light1, light2, superbiasPath string, win camera.Window) (CalcReport, error) {
	var rep CalcReport
	b1, err := d.load(bias1)
	if err != nil {
		return rep, err
	}
	b2, err := d.load(bias2)
	if err != nil {
		return rep, err
	}
	d.progress(0, 2, "calc: ron")
	rep.RON, err = d.ronPair(b1, b2, win)
	if err != nil {
		return rep, &PairError{Index: 0, First: bias1, Second: bias2, Err: err}
	}

	superbias := b1
	if superbiasPath != "" {
		superbias, err = d.load(superbiasPath)
		if err != nil {
			return rep, err
		}
	}
	l1, err := d.load(light1)
	if err != nil {
		return rep, err
	}
	l2, err := d.load(light2)
	if err != nil {
		return rep, err
	}
	d.progress(1, 2, "calc: gain")
	rep.Gain, err = d.gainPair(l1, l2, superbias, rep.RON.ADU, win)
	if err != nil {
		return rep, &PairError{Index: 0, First: light1, Second: light2, Err: err}
	}
	d.progress(2, 2, "calc: done")
	return rep, nil
}

// PTC estimates the gain of the pairs (0, 1), (2, 3), ... of light frames and
// fits the photon transfer curve through their signal and shot noise variance.
// Each pair is one illumination level; the list should span several levels.
func (d *Driver) PTC(paths []string, superbiasPath string, ron float64, win camera.Window) (PTCReport, error) {
	g, err := d.gainWalk(d.walkDisjoint, "ptc", paths, superbiasPath, ron, win)
	rep := PTCReport{GainReport: g}
	if err != nil {
		return rep, err
	}
	pts := make([]noise.PTCPoint, len(g.Pairs))
	for i, p := range g.Pairs {
		pts[i] = noise.PointFromGain(p.GainResult)
	}
	rep.Fit, err = noise.FitPTC(pts)
	if err != nil {
		return rep, err
	}
	d.logf("ptc gain=%7.3f slope=%.5f intercept=%.3f r^2=%.4f from %d pairs (%d dropped)",
		rep.Fit.Gain, rep.Fit.Slope, rep.Fit.Intercept, rep.Fit.RSquared, rep.Fit.Used, rep.Fit.Dropped)
	return rep, nil
}
