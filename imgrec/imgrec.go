// Package imgrec contains the FITS image recorder used to load camera frames
// and to save the difference and superbias frames computed from them.
package imgrec

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/cenkalti/backoff"

	"github.com/nasa-jpl/ccdnoise/camera"
)

var (
	// ErrNotFound is returned when the file to load does not exist
	ErrNotFound = errors.New("not found")

	// ErrCorruptFormat is returned when a file is not a FITS file holding a 2D image
	ErrCorruptFormat = errors.New("corrupt format")

	// ErrExists is returned when saving without overwrite to a name that already exists
	ErrExists = errors.New("already exists")

	// ErrWrite is returned when an artifact could not be written
	ErrWrite = errors.New("write error")
)

// Recorder loads frames from FITS files and records computed frames into Root.
// It implements camera.Source and camera.Sink.  It is not thread safe.
type Recorder struct {
	// Root is the folder artifacts are written to.  Empty means the working directory.
	Root string

	// Settle is how long a load keeps retrying a file that does not parse yet,
	// as happens while the camera software is still writing it.  0 disables retries.
	Settle time.Duration

	// Enabled gates Save; a disabled recorder reports success without writing anything
	Enabled bool

	// Log receives retry notices; nil means the standard logger
	Log *log.Logger
}

// NewRecorder returns an enabled recorder writing into root
func NewRecorder(root string) *Recorder {
	return &Recorder{Root: root, Enabled: true}
}

func (r *Recorder) logger() *log.Logger {
	if r.Log == nil {
		return log.Default()
	}
	return r.Log
}

// Load reads the primary HDU of the FITS file at path.  Pixel values are
// converted to float64 with BSCALE and BZERO applied, and the exposure time is
// taken from EXPTIME, or EXPOSURE when EXPTIME is absent.
func (r *Recorder) Load(path string) (camera.Frame, error) {
	var frame camera.Frame
	op := func() error {
		var err error
		frame, err = ReadFile(path)
		if err != nil && !errors.Is(err, ErrCorruptFormat) {
			return backoff.Permanent(err)
		}
		return err
	}
	if r.Settle <= 0 {
		err := op()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return frame, err
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     50 * time.Millisecond,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          2,
		MaxInterval:         time.Second,
		MaxElapsedTime:      r.Settle,
		Clock:               backoff.SystemClock}
	notify := func(err error, wait time.Duration) {
		r.logger().Printf("%s not readable yet, retrying in %v: %v", path, wait, err)
	}
	err := backoff.RetryNotify(op, b, notify)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return frame, err
}

// Save writes f as a BITPIX -64 FITS file named name and returns its path.
// A relative name is taken inside Root, an absolute one is used as is, and
// missing folders are created.  With overwrite false an existing file is an
// ErrExists error, otherwise it is replaced.  When the recorder is not
// Enabled nothing is written and the returned path is empty.
func (r *Recorder) Save(name string, f camera.Frame, overwrite bool) (string, error) {
	if err := f.Check(); err != nil {
		return "", err
	}
	if !r.Enabled {
		return "", nil
	}
	fn := r.path(name)
	if err := os.MkdirAll(filepath.Dir(fn), 0777); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	fid, err := os.OpenFile(fn, flags, 0666)
	if err != nil {
		if os.IsExist(err) {
			return fn, fmt.Errorf("%w: %s", ErrExists, fn)
		}
		return fn, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	err = Write(fid, f)
	cerr := fid.Close()
	if err == nil && cerr != nil {
		err = fmt.Errorf("%w: %v", ErrWrite, cerr)
	}
	return fn, err
}

// path resolves an artifact name against Root
func (r *Recorder) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(r.Root, name)
}

// ReadFile loads the frame stored in the FITS file at path
func ReadFile(path string) (camera.Frame, error) {
	fid, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return camera.Frame{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return camera.Frame{}, err
	}
	defer fid.Close()
	f, err := Read(fid)
	if err != nil {
		return camera.Frame{}, fmt.Errorf("%s: %w", path, err)
	}
	f.Name = path
	return f, nil
}

// Read decodes the primary image HDU of a FITS stream
func Read(rd io.Reader) (f camera.Frame, err error) {
	// fitsio panics on some malformed inputs instead of returning an error
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrCorruptFormat, rec)
		}
	}()
	fits, err := fitsio.Open(rd)
	if err != nil {
		return f, fmt.Errorf("%w: %v", ErrCorruptFormat, err)
	}
	defer fits.Close()
	if len(fits.HDUs()) == 0 {
		return f, fmt.Errorf("%w: no HDU", ErrCorruptFormat)
	}
	img, ok := fits.HDU(0).(fitsio.Image)
	if !ok {
		return f, fmt.Errorf("%w: primary HDU is not an image", ErrCorruptFormat)
	}
	hdr := img.Header()
	axes := hdr.Axes()
	if len(axes) == 3 && axes[2] == 1 {
		axes = axes[:2]
	}
	if len(axes) != 2 || axes[0] <= 0 || axes[1] <= 0 {
		return f, fmt.Errorf("%w: expected a 2D image, got axes %v", ErrCorruptFormat, hdr.Axes())
	}
	width, height := axes[0], axes[1]
	pix, err := readPixels(img, hdr.Bitpix(), width*height)
	if err != nil {
		return f, fmt.Errorf("%w: %v", ErrCorruptFormat, err)
	}

	scale, zero := 1., 0.
	if v, ok := cardFloat(hdr, "BSCALE"); ok {
		scale = v
	}
	if v, ok := cardFloat(hdr, "BZERO"); ok {
		zero = v
	}
	if scale != 1 || zero != 0 {
		for i, v := range pix {
			pix[i] = v*scale + zero
		}
	}

	exposure, ok := cardFloat(hdr, "EXPTIME")
	if !ok {
		exposure, ok = cardFloat(hdr, "EXPOSURE")
	}
	if !ok {
		exposure = math.NaN()
	}
	return camera.Frame{Width: width, Height: height, Pix: pix, Exposure: exposure}, nil
}

// readPixels reads n pixels of the given BITPIX into float64.
// fitsio requires the destination element size to match BITPIX.
func readPixels(img fitsio.Image, bitpix, n int) ([]float64, error) {
	out := make([]float64, n)
	switch bitpix {
	case 8:
		buf := make([]uint8, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case 16:
		buf := make([]int16, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case 32:
		buf := make([]int32, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case 64:
		buf := make([]int64, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case -32:
		buf := make([]float32, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case -64:
		if err := img.Read(&out); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}
	return out, nil
}

// cardFloat returns the numeric value of a header card
func cardFloat(hdr *fitsio.Header, name string) (float64, bool) {
	card := hdr.Get(name)
	if card == nil {
		return 0, false
	}
	switch v := card.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	default:
		return 0, false
	}
}

// Write streams f to w as a single BITPIX -64 image HDU with ORIGIN, FRAMEID and EXPTIME cards
func Write(w io.Writer, f camera.Frame) error {
	fits, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	defer fits.Close()
	im := fitsio.NewImage(-64, []int{f.Width, f.Height})
	defer im.Close()

	cards := []fitsio.Card{{Name: "ORIGIN", Value: "ccdnoise", Comment: "software"}}
	if f.Name != "" {
		cards = append(cards, fitsio.Card{Name: "FRAMEID", Value: cardString(f.Name), Comment: "frame name"})
	}
	if !math.IsNaN(f.Exposure) && !math.IsInf(f.Exposure, 0) {
		cards = append(cards, fitsio.Card{Name: "EXPTIME", Value: f.Exposure, Comment: "exposure time [s]"})
	}
	err = im.Header().Append(cards...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	err = im.Write(f.Pix)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	err = fits.Write(im)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// cardString fits s into a FITS string card value, keeping the tail of long names
func cardString(s string) string {
	s = strings.ReplaceAll(s, "'", "")
	if len(s) > 60 {
		s = s[len(s)-60:]
	}
	return s
}
