// Package ccd provides an HTTP interface to the CCD characterization routines
package ccd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/nasa-jpl/ccdnoise/camera"
	"github.com/nasa-jpl/ccdnoise/generichttp"
	"github.com/nasa-jpl/ccdnoise/imgrec"
	"github.com/nasa-jpl/ccdnoise/noise"
	"github.com/nasa-jpl/ccdnoise/sequence"
	"github.com/nasa-jpl/ccdnoise/util"
)

// errBadRequest marks request errors which are not domain errors
var errBadRequest = errors.New("bad request")

// HTTPWrapper wraps a sequence driver in an HTTP route table.
// The driver is not safe for concurrent use; guard the routes with a locker.
type HTTPWrapper struct {
	// Driver runs the computations
	Driver *sequence.Driver

	// DataRoot is the folder every path in a request is resolved under
	DataRoot string

	// Profiles are the known cameras
	Profiles camera.Profiles

	// Camera is the profile used when a request names none
	Camera string

	// RouteTable maps methods and paths to handlers
	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns a new HTTP wrapper with the route table pre-configured
func NewHTTPWrapper(d *sequence.Driver, dataRoot string, profiles camera.Profiles, defaultCamera string) HTTPWrapper {
	w := HTTPWrapper{
		Driver:   d,
		DataRoot: dataRoot,
		Profiles: profiles,
		Camera:   defaultCamera}
	rt := generichttp.RouteTable{
		{Method: http.MethodPost, Path: "/superbias"}: w.Superbias,
		{Method: http.MethodPost, Path: "/ron"}:       w.RON,
		{Method: http.MethodPost, Path: "/gain"}:      w.Gain,
		{Method: http.MethodPost, Path: "/calc"}:      w.Calc,
		{Method: http.MethodPost, Path: "/ptc"}:       w.PTC,
		{Method: http.MethodGet, Path: "/cameras"}:    w.Cameras,
	}
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/route-list"}] = func(rw http.ResponseWriter, r *http.Request) {
		generichttp.RespondJSON(rw, http.StatusOK, rt.Endpoints())
	}
	w.RouteTable = rt
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

// SequenceRequest is the body of the /superbias, /ron, /gain and /ptc routes
type SequenceRequest struct {
	// Frames are the frame paths in order.  List names a frame list file
	// instead; Frames wins if both are given
	Frames []string `json:"frames"`
	List   string   `json:"list"`

	// Camera selects the profile providing the default window and RON
	Camera string `json:"camera"`

	// Win overrides the window, "x_begin,x_end,y_begin,y_end"
	Win string `json:"win"`

	// Superbias is the superbias path for gain runs, empty for no bias correction
	Superbias string `json:"superbias"`

	// RON overrides the readout noise in ADU for gain runs
	RON *float64 `json:"ron"`

	// Output is the artifact name of a superbias
	Output string `json:"output"`
}

// CalcRequest is the body of the /calc route
type CalcRequest struct {
	Bias1  string `json:"bias1"`
	Bias2  string `json:"bias2"`
	Light1 string `json:"light1"`
	Light2 string `json:"light2"`

	// Superbias defaults to Bias1
	Superbias string `json:"superbias"`

	Camera string `json:"camera"`
	Win    string `json:"win"`
}

// resolve places p under the data root; p cannot escape it
func (h HTTPWrapper) resolve(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Join(h.DataRoot, filepath.Clean("/"+p))
}

func (h HTTPWrapper) frames(req SequenceRequest) ([]string, error) {
	paths := req.Frames
	if len(paths) == 0 && req.List != "" {
		var err error
		paths, err = util.ReadFrameList(h.resolve(req.List))
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: frame list %s", imgrec.ErrNotFound, req.List)
		}
		if err != nil {
			return nil, err
		}
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = h.resolve(p)
	}
	return out, nil
}

// profile returns the profile of the named camera, or of the default camera.
// With no camera at all, the zero profile is returned.
func (h HTTPWrapper) profile(name string) (camera.Profile, error) {
	if name == "" {
		name = h.Camera
	}
	if name == "" {
		return camera.Profile{}, nil
	}
	prof, err := h.Profiles.Lookup(name)
	if err != nil {
		return prof, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return prof, nil
}

func (h HTTPWrapper) window(cam, win string) (camera.Window, camera.Profile, error) {
	prof, err := h.profile(cam)
	if err != nil {
		return camera.Window{}, prof, err
	}
	if win == "" {
		return prof.Window, prof, nil
	}
	w, err := camera.ParseWindow(win)
	return w, prof, err
}

// StatusCode maps an error to the HTTP status reported for it
func StatusCode(err error) int {
	switch {
	case errors.Is(err, imgrec.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, imgrec.ErrExists):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, camera.ErrShapeMismatch),
		errors.Is(err, camera.ErrInvalidWindow),
		errors.Is(err, noise.ErrInsufficientData),
		errors.Is(err, noise.ErrMismatchedExposure),
		errors.Is(err, noise.ErrDivisionUndefined),
		errors.Is(err, sequence.ErrInsufficientFrames),
		errors.Is(err, imgrec.ErrCorruptFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), StatusCode(err))
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// Superbias builds a superbias from the bias frames of the request
func (h HTTPWrapper) Superbias(w http.ResponseWriter, r *http.Request) {
	req := SequenceRequest{}
	if !decode(w, r, &req) {
		return
	}
	paths, err := h.frames(req)
	if err != nil {
		fail(w, err)
		return
	}
	out := req.Output
	if out == "" {
		out = "superbias.fits"
		if req.List != "" {
			out = imgrec.ListName(req.List)
		}
	}
	rep, err := h.Driver.Superbias(paths, filepath.Base(out))
	if err != nil {
		fail(w, err)
		return
	}
	generichttp.RespondJSON(w, http.StatusOK, SuperbiasResponse{
		Artifact:  artifact(rep.Artifact),
		Frames:    rep.Frames,
		Width:     rep.Frame.Width,
		Height:    rep.Frame.Height,
		Undefined: rep.Undefined})
}

// RON estimates the readout noise over consecutive pairs of bias frames
func (h HTTPWrapper) RON(w http.ResponseWriter, r *http.Request) {
	req := SequenceRequest{}
	if !decode(w, r, &req) {
		return
	}
	win, _, err := h.window(req.Camera, req.Win)
	if err != nil {
		fail(w, err)
		return
	}
	paths, err := h.frames(req)
	if err != nil {
		fail(w, err)
		return
	}
	rep, err := h.Driver.RON(paths, win)
	if err != nil {
		fail(w, err)
		return
	}
	generichttp.RespondJSON(w, http.StatusOK, ronReport(rep))
}

// ron picks the readout noise of a gain run, from the request or the camera profile
func ron(req SequenceRequest, prof camera.Profile) (float64, error) {
	if req.RON != nil {
		return *req.RON, nil
	}
	if prof.RON == 0 {
		return 0, fmt.Errorf("%w: no readout noise given and none known for the camera", errBadRequest)
	}
	return prof.RON, nil
}

// Gain estimates the gain over consecutive pairs of light frames
func (h HTTPWrapper) Gain(w http.ResponseWriter, r *http.Request) {
	req := SequenceRequest{}
	if !decode(w, r, &req) {
		return
	}
	win, prof, err := h.window(req.Camera, req.Win)
	if err != nil {
		fail(w, err)
		return
	}
	ronADU, err := ron(req, prof)
	if err != nil {
		fail(w, err)
		return
	}
	paths, err := h.frames(req)
	if err != nil {
		fail(w, err)
		return
	}
	rep, err := h.Driver.Gain(paths, h.resolve(req.Superbias), ronADU, win)
	if err != nil {
		fail(w, err)
		return
	}
	generichttp.RespondJSON(w, http.StatusOK, gainReport(rep))
}

// PTC fits the photon transfer curve through pairs of light frames
func (h HTTPWrapper) PTC(w http.ResponseWriter, r *http.Request) {
	req := SequenceRequest{}
	if !decode(w, r, &req) {
		return
	}
	win, prof, err := h.window(req.Camera, req.Win)
	if err != nil {
		fail(w, err)
		return
	}
	ronADU, err := ron(req, prof)
	if err != nil {
		fail(w, err)
		return
	}
	paths, err := h.frames(req)
	if err != nil {
		fail(w, err)
		return
	}
	rep, err := h.Driver.PTC(paths, h.resolve(req.Superbias), ronADU, win)
	if err != nil {
		fail(w, err)
		return
	}
	generichttp.RespondJSON(w, http.StatusOK, PTCResponse{
		GainResponse: gainReport(rep.GainReport),
		Fit:          fit(rep.Fit)})
}

// Calc estimates the readout noise from one bias pair then the gain from one light pair
func (h HTTPWrapper) Calc(w http.ResponseWriter, r *http.Request) {
	req := CalcRequest{}
	if !decode(w, r, &req) {
		return
	}
	win, _, err := h.window(req.Camera, req.Win)
	if err != nil {
		fail(w, err)
		return
	}
	rep, err := h.Driver.Calc(
		h.resolve(req.Bias1), h.resolve(req.Bias2),
		h.resolve(req.Light1), h.resolve(req.Light2),
		h.resolve(req.Superbias), win)
	if err != nil {
		fail(w, err)
		return
	}
	generichttp.RespondJSON(w, http.StatusOK, CalcResponse{
		RON:  ronPair(rep.RON),
		Gain: gainPair(rep.Gain)})
}

// Cameras replies with the known camera profiles
func (h HTTPWrapper) Cameras(w http.ResponseWriter, r *http.Request) {
	generichttp.RespondJSON(w, http.StatusOK, CamerasResponse{Default: h.Camera, Cameras: h.Profiles})
}
