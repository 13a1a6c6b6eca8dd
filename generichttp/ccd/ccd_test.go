package ccd_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/google/go-cmp/cmp"

	"github.com/nasa-jpl/ccdnoise/camera"
	"github.com/nasa-jpl/ccdnoise/generichttp/ccd"
	"github.com/nasa-jpl/ccdnoise/imgrec"
	"github.com/nasa-jpl/ccdnoise/sequence"
	"github.com/nasa-jpl/ccdnoise/server/middleware/locker"
)

type fixture struct {
	data, out string
	wrap      ccd.HTTPWrapper
	router    chi.Router
	lock      *locker.Locker
}

func setup(t *testing.T) fixture {
	t.Helper()
	data := t.TempDir()
	out := t.TempDir()
	src := imgrec.NewRecorder(data)
	rng := rand.New(rand.NewSource(7))
	write := func(name string, level, sigma float64) {
		f := camera.NewFrame(name, 24, 24)
		for i := range f.Pix {
			f.Pix[i] = level + sigma*rng.NormFloat64()
		}
		if _, err := src.Save(name, f, false); err != nil {
			t.Fatal(err)
		}
	}
	for _, n := range []string{"bias1.fits", "bias2.fits", "bias3.fits"} {
		write(n, 1000, 3)
	}
	for _, n := range []string{"light1.fits", "light2.fits"} {
		write(n, 9000, 60)
	}
	// constant frames make a degenerate gain
	for _, n := range []string{"flat1.fits", "flat2.fits"} {
		if _, err := src.Save(n, camera.Constant(n, 24, 24, 500), false); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(data, "bias.txt"), []byte("bias1.fits\n\nbias2.fits\n# skipped\nbias3.fits\n"), 0666); err != nil {
		t.Fatal(err)
	}

	rec := imgrec.NewRecorder(out)
	d := sequence.NewDriver(rec, rec)
	d.Overwrite = true
	d.Log = log.New(io.Discard, "", 0)
	profiles := camera.Profiles{"tiny": {Window: camera.Window{X0: 2, X1: 22, Y0: 2, Y1: 22}, RON: 3 / 1.4142}}
	w := ccd.NewHTTPWrapper(d, data, profiles, "tiny")
	lock := locker.New()
	locker.Inject(w, lock)
	r := chi.NewRouter()
	r.Use(lock.Check)
	w.RT().Bind(r)
	return fixture{data: data, out: out, wrap: w, router: r, lock: lock}
}

func (f fixture) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestRONRoute(t *testing.T) {
	f := setup(t)
	w := f.post(t, "/ron", `{"list": "bias.txt"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp ccd.RONResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(resp.Pairs))
	}
	if resp.Pairs[0].Window != "2,22,2,22" {
		t.Errorf("expected the camera window, got %s", resp.Pairs[0].Window)
	}
	if resp.Pairs[0].Artifact != "bias_diff_bias1_bias2.fits" {
		t.Errorf("unexpected artifact %s", resp.Pairs[0].Artifact)
	}
	if _, err := os.Stat(filepath.Join(f.out, resp.Pairs[0].Artifact)); err != nil {
		t.Error(err)
	}
	ron := float64(resp.RON.Median)
	if ron < 2 || ron > 4 {
		t.Errorf("expected RON near 3 ADU, got %f", ron)
	}
}

func TestGainRouteDegenerateIsNull(t *testing.T) {
	f := setup(t)
	w := f.post(t, "/gain", `{"frames": ["flat1.fits", "flat2.fits"], "ron": 0}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var raw struct {
		Pairs []map[string]interface{} `json:"pairs"`
	}
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	p := raw.Pairs[0]
	if p["gain"] != nil {
		t.Errorf("expected null gain, got %v", p["gain"])
	}
	if s, _ := p["gain_str"].(string); s != "NaN" && s != "+Inf" && s != "-Inf" {
		t.Errorf("expected the non-finite gain spelled out, got %q", s)
	}
}

func TestGainRoute(t *testing.T) {
	f := setup(t)
	w := f.post(t, "/gain", `{"frames": ["light1.fits", "light2.fits"], "superbias": "bias1.fits"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp ccd.GainResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Pairs) != 1 || resp.Pairs[0].GainStr != "" {
		t.Fatalf("expected one finite gain, got %+v", resp.Pairs)
	}
	if float64(resp.Pairs[0].RONADU) != 3/1.4142 {
		t.Errorf("expected the profile RON, got %f", resp.Pairs[0].RONADU)
	}
}

func TestErrorStatus(t *testing.T) {
	f := setup(t)
	cases := []struct {
		path, body string
		code       int
	}{
		{"/ron", `{"frames": ["bias1.fits"]}`, http.StatusBadRequest},
		{"/ron", `{"frames": ["bias1.fits", "nope.fits"]}`, http.StatusNotFound},
		{"/ron", `{"list": "nope.txt"}`, http.StatusNotFound},
		{"/ron", `{"frames": ["bias1.fits", "bias2.fits"], "win": "0,100,0,10"}`, http.StatusBadRequest},
		{"/ron", `{"frames": ["bias1.fits", "bias2.fits"], "win": "1,2,3"}`, http.StatusBadRequest},
		{"/ron", `{"frames": ["bias1.fits", "bias2.fits"], "camera": "ccd9"}`, http.StatusBadRequest},
		{"/ron", `not json`, http.StatusBadRequest},
		{"/superbias", `{"frames": ["bias1.fits"]}`, http.StatusBadRequest},
	}
	for _, c := range cases {
		w := f.post(t, c.path, c.body)
		if w.Code != c.code {
			t.Errorf("POST %s %s: expected %d, got %d: %s", c.path, c.body, c.code, w.Code, w.Body.String())
		}
	}
}

func TestPathsStayUnderDataRoot(t *testing.T) {
	f := setup(t)
	// ../ is clamped to the data root, where bias1.fits exists
	w := f.post(t, "/ron", `{"frames": ["../../bias1.fits", "bias2.fits"]}`)
	if w.Code != http.StatusOK {
		t.Errorf("expected the path to resolve inside the data root, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSuperbiasAndCalcRoutes(t *testing.T) {
	f := setup(t)
	w := f.post(t, "/superbias", `{"list": "bias.txt"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var sb ccd.SuperbiasResponse
	if err := json.NewDecoder(w.Body).Decode(&sb); err != nil {
		t.Fatal(err)
	}
	if sb.Artifact != "bias.fits" || sb.Frames != 3 || sb.Width != 24 {
		t.Errorf("unexpected superbias reply %+v", sb)
	}

	w = f.post(t, "/calc", `{"bias1": "bias1.fits", "bias2": "bias2.fits", "light1": "light1.fits", "light2": "light2.fits"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var calc ccd.CalcResponse
	if err := json.NewDecoder(w.Body).Decode(&calc); err != nil {
		t.Fatal(err)
	}
	if calc.Gain.RONADU != calc.RON.RONADU {
		t.Errorf("expected calc to feed its RON into the gain, got %f and %f", calc.RON.RONADU, calc.Gain.RONADU)
	}
}

func TestBusyIsLocked(t *testing.T) {
	f := setup(t)
	f.lock.Lock()
	w := f.post(t, "/ron", `{"list": "bias.txt"}`)
	if w.Code != http.StatusLocked {
		t.Errorf("expected 423 while locked, got %d", w.Code)
	}
	f.lock.Unlock()
	w = f.post(t, "/ron", `{"list": "bias.txt"}`)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 once unlocked, got %d", w.Code)
	}
}

func TestRouteListAndCameras(t *testing.T) {
	f := setup(t)
	req := httptest.NewRequest(http.MethodGet, "/route-list", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	var routes []string
	if err := json.NewDecoder(w.Body).Decode(&routes); err != nil {
		t.Fatal(err)
	}
	expected := []string{
		"GET /cameras", "GET /lock", "GET /route-list",
		"POST /calc", "POST /gain", "POST /lock", "POST /ptc", "POST /ron", "POST /superbias"}
	if diff := cmp.Diff(expected, routes); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	req = httptest.NewRequest(http.MethodGet, "/cameras", nil)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	var cams ccd.CamerasResponse
	if err := json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&cams); err != nil {
		t.Fatal(err)
	}
	if cams.Default != "tiny" || cams.Cameras["tiny"].Window.X1 != 22 {
		t.Errorf("unexpected cameras reply %+v", cams)
	}
}

func TestStatusCode(t *testing.T) {
	if c := ccd.StatusCode(&sequence.PairError{Err: camera.ErrShapeMismatch}); c != http.StatusBadRequest {
		t.Errorf("expected 400 for a wrapped shape mismatch, got %d", c)
	}
	if c := ccd.StatusCode(imgrec.ErrWrite); c != http.StatusInternalServerError {
		t.Errorf("expected 500 for a write error, got %d", c)
	}
}
