/*Package camera describes the frames produced by a CCD camera and the
collaborators that load and store them.

A Frame is a single full readout with its exposure metadata, a Window is the
rectangular area of a frame used for statistics, and a Profile holds the
per-camera defaults (window, readout noise) used when characterizing it.

Source and Sink are the narrow interfaces through which frames move between
storage and the estimators; package imgrec implements both for FITS files.

*/
package camera

import (
	"errors"
	"fmt"
	"math"

	"github.com/nasa-jpl/ccdnoise/util"
)

var (
	// ErrShapeMismatch is returned when frames, or a frame and a window, have incompatible dimensions
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInvalidWindow is returned for a window that does not describe a nonempty rectangle
	ErrInvalidWindow = errors.New("invalid window")
)

// Source loads frames from storage
type Source interface {
	// Load reads the frame stored at path.  The frame's Name is the path.
	Load(path string) (Frame, error)
}

// Sink persists frames to storage
type Sink interface {
	// Save stores f under name and returns the location written to.
	// When overwrite is true any existing artifact of the same name is replaced.
	Save(name string, f Frame, overwrite bool) (string, error)
}

// Frame is a 2D array of pixel intensities in ADU with its exposure time.
// Pix is row-major with x varying fastest, so (x, y) lives at Pix[y*Width+x].
// Frames are treated as immutable once created.
type Frame struct {
	// Name identifies the frame, usually the path it was loaded from
	Name string

	// Width is the number of columns (NAXIS1)
	Width int

	// Height is the number of rows (NAXIS2)
	Height int

	// Pix holds Width*Height pixel values
	Pix []float64

	// Exposure is the exposure time in seconds, NaN when unknown
	Exposure float64
}

// NewFrame returns a zero filled frame of the given size with unknown exposure
func NewFrame(name string, width, height int) Frame {
	return Frame{
		Name:     name,
		Width:    width,
		Height:   height,
		Pix:      make([]float64, width*height),
		Exposure: math.NaN()}
}

// Constant returns a frame of the given size with every pixel set to v
func Constant(name string, width, height int, v float64) Frame {
	f := NewFrame(name, width, height)
	for i := range f.Pix {
		f.Pix[i] = v
	}
	return f
}

// Empty is true when the frame holds no pixels
func (f Frame) Empty() bool {
	return len(f.Pix) == 0
}

// At returns the pixel at column x, row y
func (f Frame) At(x, y int) float64 {
	return f.Pix[y*f.Width+x]
}

// Set sets the pixel at column x, row y
func (f Frame) Set(x, y int, v float64) {
	f.Pix[y*f.Width+x] = v
}

// Check verifies that Pix is consistent with Width and Height
func (f Frame) Check() error {
	if f.Width <= 0 || f.Height <= 0 || len(f.Pix) != f.Width*f.Height {
		return fmt.Errorf("%w: frame %q is %dx%d with %d pixels", ErrShapeMismatch, f.Name, f.Width, f.Height, len(f.Pix))
	}
	return nil
}

// SameShape returns an ErrShapeMismatch error if f and o do not have identical dimensions
func (f Frame) SameShape(o Frame) error {
	if err := f.Check(); err != nil {
		return err
	}
	if err := o.Check(); err != nil {
		return err
	}
	if f.Width != o.Width || f.Height != o.Height {
		return fmt.Errorf("%w: %q is %dx%d, %q is %dx%d",
			ErrShapeMismatch, f.Name, f.Width, f.Height, o.Name, o.Width, o.Height)
	}
	return nil
}

// Region copies the pixels inside win into a new slice, row by row.
// The window must already be resolved and validated against f.
func (f Frame) Region(win Window) []float64 {
	out := make([]float64, 0, win.Area())
	for y := win.Y0; y < win.Y1; y++ {
		row := f.Pix[y*f.Width : (y+1)*f.Width]
		out = append(out, row[win.X0:win.X1]...)
	}
	return out
}

// CountNaN returns the number of NaN pixels in the frame
func (f Frame) CountNaN() int {
	n := 0
	for _, v := range f.Pix {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Window is a rectangular region of interest.  The ranges are half open:
// columns X0 <= x < X1 and rows Y0 <= y < Y1.  The zero Window means the full frame.
type Window struct {
	X0 int `koanf:"x0" yaml:"x0" json:"x0"`
	X1 int `koanf:"x1" yaml:"x1" json:"x1"`
	Y0 int `koanf:"y0" yaml:"y0" json:"y0"`
	Y1 int `koanf:"y1" yaml:"y1" json:"y1"`
}

// FullWindow returns the window covering an entire width x height frame
func FullWindow(width, height int) Window {
	return Window{X0: 0, X1: width, Y0: 0, Y1: height}
}

// ParseWindow parses "x_begin,x_end,y_begin,y_end"
func ParseWindow(s string) (Window, error) {
	is, err := util.ParseIntCSV(s)
	if err != nil {
		return Window{}, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	if len(is) != 4 {
		return Window{}, fmt.Errorf("%w: %q must hold four integers x_begin,x_end,y_begin,y_end", ErrInvalidWindow, s)
	}
	w := Window{X0: is[0], X1: is[1], Y0: is[2], Y1: is[3]}
	if w.X0 >= w.X1 || w.Y0 >= w.Y1 || w.X0 < 0 || w.Y0 < 0 {
		return Window{}, fmt.Errorf("%w: %q is empty or negative", ErrInvalidWindow, s)
	}
	return w, nil
}

// String formats the window the way ParseWindow reads it
func (w Window) String() string {
	return util.IntSliceToCSV([]int{w.X0, w.X1, w.Y0, w.Y1})
}

// IsZero is true for the zero Window
func (w Window) IsZero() bool {
	return w == Window{}
}

// Area is the number of pixels in the window
func (w Window) Area() int {
	if w.X1 <= w.X0 || w.Y1 <= w.Y0 {
		return 0
	}
	return (w.X1 - w.X0) * (w.Y1 - w.Y0)
}

// Resolve returns the concrete window to use on a width x height frame,
// expanding the zero Window to the full frame, and validates it.
func (w Window) Resolve(width, height int) (Window, error) {
	if w.IsZero() {
		w = FullWindow(width, height)
	}
	if w.X0 < 0 || w.Y0 < 0 || w.X0 >= w.X1 || w.Y0 >= w.Y1 {
		return w, fmt.Errorf("%w: %v", ErrInvalidWindow, w)
	}
	if w.X1 > width || w.Y1 > height {
		return w, fmt.Errorf("%w: window %v exceeds %dx%d frame", ErrShapeMismatch, w, width, height)
	}
	return w, nil
}
