package sequence_test

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nasa-jpl/ccdnoise/camera"
	"github.com/nasa-jpl/ccdnoise/imgrec"
	"github.com/nasa-jpl/ccdnoise/noise"
	"github.com/nasa-jpl/ccdnoise/sequence"
)

// memStore is an in-memory camera.Source and camera.Sink
type memStore struct {
	frames map[string]camera.Frame
	saved  map[string]camera.Frame
	loads  map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		frames: map[string]camera.Frame{},
		saved:  map[string]camera.Frame{},
		loads:  map[string]int{}}
}

func (m *memStore) Load(path string) (camera.Frame, error) {
	m.loads[path]++
	f, ok := m.frames[path]
	if !ok {
		return camera.Frame{}, fmt.Errorf("%w: %s", imgrec.ErrNotFound, path)
	}
	f.Name = path
	return f, nil
}

func (m *memStore) Save(name string, f camera.Frame, overwrite bool) (string, error) {
	if _, ok := m.saved[name]; ok && !overwrite {
		return name, fmt.Errorf("%w: %s", imgrec.ErrExists, name)
	}
	m.saved[name] = f
	return name, nil
}

func (m *memStore) savedNames() []string {
	out := make([]string, 0, len(m.saved))
	for k := range m.saved {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func quietDriver(m *memStore) *sequence.Driver {
	d := sequence.NewDriver(m, m)
	d.Log = log.New(io.Discard, "", 0)
	return d
}

func noisy(rng *rand.Rand, w, h int, level, sigma float64) camera.Frame {
	f := camera.NewFrame("", w, h)
	for i := range f.Pix {
		f.Pix[i] = level + sigma*rng.NormFloat64()
	}
	return f
}

func TestRONThreeFramesTwoEstimates(t *testing.T) {
	m := newMemStore()
	rng := rand.New(rand.NewSource(1))
	paths := []string{"b1.fits", "b2.fits", "b3.fits"}
	for _, p := range paths {
		m.frames[p] = noisy(rng, 32, 32, 1000, 3)
	}
	d := quietDriver(m)
	rep, err := d.RON(paths, camera.Window{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Pairs) != 2 || len(rep.RON.Values) != 2 {
		t.Fatalf("expected 2 estimates, got %d", len(rep.Pairs))
	}
	for _, p := range paths {
		if m.loads[p] != 1 {
			t.Errorf("expected %s loaded once, was loaded %d times", p, m.loads[p])
		}
	}
	expected := []string{"bias_diff_b1_b2.fits", "bias_diff_b2_b3.fits"}
	if diff := cmp.Diff(expected, m.savedNames()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if rep.Pairs[0].First != "b1.fits" || rep.Pairs[1].Second != "b3.fits" {
		t.Errorf("pairs out of order: %+v %+v", rep.Pairs[0].First, rep.Pairs[1].Second)
	}
}

func TestGainThreeFramesTwoEstimates(t *testing.T) {
	m := newMemStore()
	rng := rand.New(rand.NewSource(2))
	paths := []string{"l1.fit", "l2.fit", "l3.fit"}
	for _, p := range paths {
		m.frames[p] = noisy(rng, 32, 32, 5000, 50)
	}
	d := quietDriver(m)
	rep, err := d.Gain(paths, "", 0, camera.Window{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Pairs) != 2 || len(rep.Gain.Values) != 2 || len(rep.RONe.Values) != 2 {
		t.Fatalf("expected 2 estimates, got %d", len(rep.Pairs))
	}
	if _, ok := m.saved["light_diff_l1_l2.fits"]; !ok {
		t.Errorf("expected light diff artifact, got %v", m.savedNames())
	}
}

func TestTooFewFrames(t *testing.T) {
	m := newMemStore()
	m.frames["a"] = camera.Constant("", 4, 4, 1)
	d := quietDriver(m)
	for _, paths := range [][]string{nil, {"a"}} {
		_, err := d.RON(paths, camera.Window{})
		if !errors.Is(err, sequence.ErrInsufficientFrames) {
			t.Errorf("RON(%v): expected ErrInsufficientFrames, got %v", paths, err)
		}
		_, err = d.Gain(paths, "", 2, camera.Window{})
		if !errors.Is(err, sequence.ErrInsufficientFrames) {
			t.Errorf("Gain(%v): expected ErrInsufficientFrames, got %v", paths, err)
		}
		_, err = d.Superbias(paths, "sb.fits")
		if !errors.Is(err, sequence.ErrInsufficientFrames) {
			t.Errorf("Superbias(%v): expected ErrInsufficientFrames, got %v", paths, err)
		}
	}
}

func TestPairErrorNamesPair(t *testing.T) {
	m := newMemStore()
	m.frames["a"] = camera.Constant("", 4, 4, 1)
	m.frames["b"] = camera.Constant("", 4, 4, 1)
	m.frames["c"] = camera.Constant("", 5, 4, 1)
	d := quietDriver(m)
	_, err := d.RON([]string{"a", "b", "c"}, camera.Window{})
	var pe *sequence.PairError
	if !errors.As(err, &pe) {
		t.Fatalf("expected a PairError, got %v", err)
	}
	if pe.Index != 1 || pe.First != "b" || pe.Second != "c" {
		t.Errorf("expected pair 1 (b, c), got %d (%s, %s)", pe.Index, pe.First, pe.Second)
	}
	if !errors.Is(err, camera.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch in the chain, got %v", err)
	}
}

func TestMissingFrameIsNotFound(t *testing.T) {
	m := newMemStore()
	m.frames["a"] = camera.Constant("", 4, 4, 1)
	d := quietDriver(m)
	_, err := d.RON([]string{"a", "missing"}, camera.Window{})
	if !errors.Is(err, imgrec.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDegenerateGainSurfaces(t *testing.T) {
	m := newMemStore()
	m.frames["sb"] = camera.Constant("", 10, 10, 0)
	m.frames["l1"] = camera.Constant("", 10, 10, 500)
	m.frames["l2"] = camera.Constant("", 10, 10, 500)
	d := quietDriver(m)
	rep, err := d.Gain([]string{"l1", "l2"}, "sb", 0, camera.Window{})
	if err != nil {
		t.Fatal(err)
	}
	g := rep.Pairs[0].Gain
	if !math.IsInf(g, 0) && !math.IsNaN(g) {
		t.Errorf("expected non-finite gain, got %f", g)
	}
	if !math.IsInf(rep.Gain.Mean, 0) && !math.IsNaN(rep.Gain.Mean) {
		t.Errorf("expected non-finite mean gain, got %f", rep.Gain.Mean)
	}

	d.Options.Strict = true
	d.Overwrite = true
	_, err = d.Gain([]string{"l1", "l2"}, "sb", 0, camera.Window{})
	if !errors.Is(err, noise.ErrDivisionUndefined) {
		t.Errorf("expected ErrDivisionUndefined in strict mode, got %v", err)
	}
}

func TestRerunWithoutOverwriteFails(t *testing.T) {
	m := newMemStore()
	m.frames["a"] = camera.Constant("", 4, 4, 1)
	m.frames["b"] = camera.Constant("", 4, 4, 1)
	d := quietDriver(m)
	if _, err := d.RON([]string{"a", "b"}, camera.Window{}); err != nil {
		t.Fatal(err)
	}
	_, err := d.RON([]string{"a", "b"}, camera.Window{})
	if !errors.Is(err, imgrec.ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}
	d.Overwrite = true
	if _, err = d.RON([]string{"a", "b"}, camera.Window{}); err != nil {
		t.Errorf("expected overwrite to succeed, got %v", err)
	}
}

func TestSuperbiasSaved(t *testing.T) {
	m := newMemStore()
	paths := []string{"b1", "b2", "b3", "b4", "b5"}
	for _, p := range paths {
		m.frames[p] = camera.Constant("", 6, 6, 1000)
	}
	d := quietDriver(m)
	rep, err := d.Superbias(paths, "master.fits")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Frames != 5 || rep.Undefined != 0 || rep.Artifact != "master.fits" {
		t.Errorf("unexpected report %+v", rep)
	}
	for _, v := range m.saved["master.fits"].Pix {
		if v != 1000 {
			t.Fatalf("expected constant superbias of 1000, got %f", v)
		}
	}
}

func TestCalcDefaultsSuperbiasToFirstBias(t *testing.T) {
	m := newMemStore()
	rng := rand.New(rand.NewSource(3))
	m.frames["b1"] = noisy(rng, 32, 32, 1000, 2)
	m.frames["b2"] = noisy(rng, 32, 32, 1000, 2)
	m.frames["l1"] = noisy(rng, 32, 32, 6000, 40)
	m.frames["l2"] = noisy(rng, 32, 32, 6000, 40)
	d := quietDriver(m)
	rep, err := d.Calc("b1", "b2", "l1", "l2", "", camera.Window{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.RON.ADU <= 0 {
		t.Errorf("expected positive RON, got %f", rep.RON.ADU)
	}
	// bias1 subtracted, so the signal is about 5000 ADU
	if math.Abs(rep.Gain.Count-5000) > 50 {
		t.Errorf("expected count near 5000, got %f", rep.Gain.Count)
	}
	if rep.Gain.RONADU != rep.RON.ADU {
		t.Errorf("expected gain to use the estimated RON %f, got %f", rep.RON.ADU, rep.Gain.RONADU)
	}
}

func TestPTCPairsDisjoint(t *testing.T) {
	m := newMemStore()
	rng := rand.New(rand.NewSource(4))
	const gain = 2.
	var paths []string
	for lvl, signal := range []float64{1000, 2000, 4000, 8000} {
		for k := 0; k < 2; k++ {
			name := fmt.Sprintf("l%d_%d", lvl, k)
			f := camera.NewFrame("", 64, 64)
			sigma := math.Sqrt(signal / gain)
			for i := range f.Pix {
				f.Pix[i] = signal + sigma*rng.NormFloat64()
			}
			m.frames[name] = f
			paths = append(paths, name)
		}
	}
	paths = append(paths, "l3_1")
	d := quietDriver(m)
	d.Overwrite = true
	rep, err := d.PTC(paths, "", 0, camera.Window{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Pairs) != 4 {
		t.Fatalf("expected 4 pairs, got %d", len(rep.Pairs))
	}
	if rep.Pairs[1].First != "l1_0" || rep.Pairs[1].Second != "l1_1" {
		t.Errorf("expected the second pair to be level 1, got %s %s", rep.Pairs[1].First, rep.Pairs[1].Second)
	}
	if math.Abs(rep.Fit.Gain-gain)/gain > 0.1 {
		t.Errorf("expected fitted gain near %f, got %f", gain, rep.Fit.Gain)
	}
}

func TestProgressReported(t *testing.T) {
	m := newMemStore()
	for _, p := range []string{"a", "b", "c", "d"} {
		m.frames[p] = camera.Constant("", 4, 4, 1)
	}
	d := quietDriver(m)
	var last [2]int
	calls := 0
	d.Progress = func(done, total int, what string) {
		calls++
		last = [2]int{done, total}
	}
	if _, err := d.RON([]string{"a", "b", "c", "d"}, camera.Window{}); err != nil {
		t.Fatal(err)
	}
	if calls == 0 || last != [2]int{3, 3} {
		t.Errorf("expected progress to finish at 3/3 after some calls, got %v after %d calls", last, calls)
	}
}

func ExampleSummarize() {
	s := sequence.Summarize([]float64{2.1, 2.3, 2.2})
	fmt.Printf("median=%.2f mean=%.2f\n", s.Median, s.Mean)
	s = sequence.Summarize(nil)
	fmt.Println(math.IsNaN(s.Median), math.IsNaN(s.Mean))
	// Output:
	// median=2.20 mean=2.20
	// true true
}
