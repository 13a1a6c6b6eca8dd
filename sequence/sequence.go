// Package sequence walks ordered lists of frames pair by pair, running the
// noise estimators over each consecutive pair and aggregating the results.
//
// Every frame is loaded once; pair i is (i, i+1), so a list of n frames yields
// n-1 estimates.  The first failing pair aborts the walk with a *PairError
// naming both frames.
package sequence

import (
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/nasa-jpl/ccdnoise/camera"
	"github.com/nasa-jpl/ccdnoise/imgrec"
	"github.com/nasa-jpl/ccdnoise/mathx"
	"github.com/nasa-jpl/ccdnoise/noise"
)

// ErrInsufficientFrames is returned when a list holds fewer frames than an operation needs
var ErrInsufficientFrames = errors.New("insufficient frames")

// PairError reports the pair a walk failed on
type PairError struct {
	// Index is the position of First in the list
	Index int

	First, Second string

	Err error
}

func (e *PairError) Error() string {
	return fmt.Sprintf("pair %d (%s, %s): %v", e.Index, e.First, e.Second, e.Err)
}

// Unwrap returns the underlying error
func (e *PairError) Unwrap() error {
	return e.Err
}

// Summary aggregates per pair values.  Non-finite values are kept, so a
// single degenerate pair shows up as a non-finite Median or Mean.
type Summary struct {
	Values []float64
	Median float64
	Mean   float64
}

// Summarize computes the median and mean of v; both are NaN for an empty v
func Summarize(v []float64) Summary {
	s := Summary{Values: v, Median: math.NaN(), Mean: math.NaN()}
	if len(v) == 0 {
		return s
	}
	s.Median = mathx.Median(v)
	s.Mean = mathx.Mean(v)
	return s
}

// Driver loads frames from Source and persists the computed frames to Sink
type Driver struct {
	Source camera.Source

	// Sink receives difference frames and superbiases.  nil skips persisting.
	Sink camera.Sink

	// Overwrite replaces existing artifacts of the same name
	Overwrite bool

	// Clip configures the superbias stack rejection
	Clip mathx.ClipConfig

	// Options is passed to the pair estimators
	Options noise.Options

	// Log receives one report line per pair; nil means the standard logger
	Log *log.Logger

	// Progress, if not nil, is called before each unit of work with the
	// number of units done, the total, and a description
	Progress func(done, total int, what string)
}

// NewDriver returns a driver over src and sink with default clipping and options
func NewDriver(src camera.Source, sink camera.Sink) *Driver {
	return &Driver{
		Source:  src,
		Sink:    sink,
		Clip:    mathx.DefaultClip(),
		Options: noise.DefaultOptions()}
}

func (d *Driver) logf(format string, args ...interface{}) {
	if d.Log == nil {
		log.Printf(format, args...)
		return
	}
	d.Log.Printf(format, args...)
}

func (d *Driver) progress(done, total int, what string) {
	if d.Progress != nil {
		d.Progress(done, total, what)
	}
}

// save persists f under name when a sink is configured and returns its location
func (d *Driver) save(name string, f camera.Frame) (string, error) {
	if d.Sink == nil {
		return "", nil
	}
	return d.Sink.Save(name, f, d.Overwrite)
}

// load reads one frame, labelling errors with the path
func (d *Driver) load(path string) (camera.Frame, error) {
	f, err := d.Source.Load(path)
	if err != nil {
		return f, fmt.Errorf("loading %s: %w", path, err)
	}
	if f.Name == "" {
		f.Name = path
	}
	return f, nil
}

// walk calls fn for every consecutive pair of paths, loading each frame once
func (d *Driver) walk(paths []string, what string, fn func(i int, a, b camera.Frame) error) error {
	if len(paths) < 2 {
		return fmt.Errorf("%w: %s needs at least 2 frames, got %d", ErrInsufficientFrames, what, len(paths))
	}
	total := len(paths) - 1
	d.progress(0, total, fmt.Sprintf("%s: loading %s", what, paths[0]))
	prev, err := d.load(paths[0])
	if err != nil {
		return &PairError{Index: 0, First: paths[0], Second: paths[1], Err: err}
	}
	for i := 0; i < total; i++ {
		d.progress(i, total, fmt.Sprintf("%s: %s %s", what, imgrec.Stem(paths[i]), imgrec.Stem(paths[i+1])))
		next, err := d.load(paths[i+1])
		if err != nil {
			return &PairError{Index: i, First: paths[i], Second: paths[i+1], Err: err}
		}
		if err = fn(i, prev, next); err != nil {
			return &PairError{Index: i, First: paths[i], Second: paths[i+1], Err: err}
		}
		prev = next
	}
	d.progress(total, total, what+": done")
	return nil
}

// walkDisjoint calls fn for the pairs (0, 1), (2, 3), ... of paths.
// A trailing unpaired frame is ignored.
func (d *Driver) walkDisjoint(paths []string, what string, fn func(i int, a, b camera.Frame) error) error {
	total := len(paths) / 2
	if total < 1 {
		return fmt.Errorf("%w: %s needs at least 2 frames, got %d", ErrInsufficientFrames, what, len(paths))
	}
	if len(paths)%2 == 1 {
		d.logf("%s: ignoring unpaired frame %s", what, paths[len(paths)-1])
	}
	for k := 0; k < total; k++ {
		i := 2 * k
		d.progress(k, total, fmt.Sprintf("%s: %s %s", what, imgrec.Stem(paths[i]), imgrec.Stem(paths[i+1])))
		a, err := d.load(paths[i])
		if err != nil {
			return &PairError{Index: i, First: paths[i], Second: paths[i+1], Err: err}
		}
		b, err := d.load(paths[i+1])
		if err != nil {
			return &PairError{Index: i, First: paths[i], Second: paths[i+1], Err: err}
		}
		if err = fn(i, a, b); err != nil {
			return &PairError{Index: i, First: paths[i], Second: paths[i+1], Err: err}
		}
	}
	d.progress(total, total, what+": done")
	return nil
}
