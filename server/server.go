// Package server contains misc server utilities.
package server

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/ccdnoise/generichttp"
)

// ReplyWithFile replies to the client request by serving the given file name
func ReplyWithFile(w http.ResponseWriter, r *http.Request, fn string, fldr string) {
	filePath, err := filepath.Abs(filepath.Join(fldr, fn))
	if err != nil {
		fstr := fmt.Sprintf("unable to compute abspath of file %s %s %s", fldr, fn, err)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusInternalServerError)
		return
	}

	f, err := os.Open(filePath)
	if err != nil {
		fstr := fmt.Sprintf("source file missing %s", filePath)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusNotFound)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		fstr := fmt.Sprintf("error retrieving source file stats %s", err)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusNotFound)
		return
	}
	if stat.IsDir() {
		http.Error(w, fmt.Sprintf("%s is a directory", fn), http.StatusNotFound)
		return
	}
	http.ServeContent(w, r, fn, stat.ModTime(), f)
}

// Mount binds the routes of h onto a new router mounted at stem on root,
// with mw applied ahead of the handlers.  The bound endpoints are returned
func Mount(root chi.Router, stem string, h generichttp.HTTPer, mw ...func(http.Handler) http.Handler) []string {
	r := chi.NewRouter()
	r.Use(mw...)
	rt := h.RT()
	rt.Bind(r)
	root.Mount(stem, r)
	return rt.Endpoints()
}

// ListRoutes returns a handler which replies with the list of routes as JSON
func ListRoutes(routes []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		generichttp.RespondJSON(w, http.StatusOK, routes)
	}
}
