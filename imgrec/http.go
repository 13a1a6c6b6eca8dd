package imgrec

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/ccdnoise/generichttp"
	"github.com/nasa-jpl/ccdnoise/server"
)

// HTTPWrapper is an HTTP wrapper around a recorder that allows the output folder to be changed on the fly
// and serves the artifacts written there
//
// it does not implement generichttp.HTTPer, offering an Inject method allowing it to be injected
// into another HTTPer
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

// SetRoot updates the output folder of the recorder, creating it if needed
func (h HTTPWrapper) SetRoot(root string) error {
	if err := os.MkdirAll(root, 0777); err != nil {
		return err
	}
	h.Recorder.Root = root
	return nil
}

// GetRoot returns the output folder of the recorder
func (h HTTPWrapper) GetRoot() (string, error) {
	return h.Recorder.Root, nil
}

// SetEnabled turns writing artifacts on or off
func (h HTTPWrapper) SetEnabled(b bool) error {
	h.Recorder.Enabled = b
	return nil
}

// GetEnabled reports whether artifacts are written
func (h HTTPWrapper) GetEnabled() (bool, error) {
	return h.Recorder.Enabled, nil
}

// GetArtifact serves a FITS file from the output folder, the name taken from the URL
func (h HTTPWrapper) GetArtifact(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		http.Error(w, "invalid artifact name", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "image/fits")
	server.ReplyWithFile(w, r, name, h.Recorder.Root)
}

// Inject adds GET and POST routes for /outdir and /autowrite/enabled
// and GET /artifacts/{name} to the HTTPer
func (h HTTPWrapper) Inject(other generichttp.HTTPer) {
	rt := other.RT()
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/enabled"}] = generichttp.SetBool(h.SetEnabled)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/enabled"}] = generichttp.GetBool(h.GetEnabled)
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/outdir"}] = generichttp.SetString(h.SetRoot)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/outdir"}] = generichttp.GetString(h.GetRoot)
	rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/artifacts/{name}"}] = h.GetArtifact
}
