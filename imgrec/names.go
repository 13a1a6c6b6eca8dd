package imgrec

import (
	"fmt"
	"path/filepath"
	"strings"
)

// fitsExts are the extensions stripped by Stem, compared case insensitively
var fitsExts = []string{".fits", ".fit", ".fts"}

// Stem returns the base name of path without its directory and FITS extension.
// e.g., "/data/night1/bias_001.fit" => "bias_001"
func Stem(path string) string {
	base := filepath.Base(path)
	lower := strings.ToLower(base)
	for _, ext := range fitsExts {
		if strings.HasSuffix(lower, ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return base
}

// DiffName returns the artifact name of the difference of two frames,
// <kind>_diff_<stem a>_<stem b>.fits.  Reruns on the same pair produce the same name.
func DiffName(kind, a, b string) string {
	return fmt.Sprintf("%s_diff_%s_%s.fits", kind, Stem(a), Stem(b))
}

// ListName returns the artifact name derived from a frame list file,
// its base name with the extension replaced by .fits
func ListName(listPath string) string {
	base := filepath.Base(listPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".fits"
}
