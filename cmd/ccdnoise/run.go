package main

import (
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/theckman/yacspin"
	"golang.org/x/time/rate"

	"github.com/nasa-jpl/ccdnoise/generichttp"
	"github.com/nasa-jpl/ccdnoise/generichttp/ccd"
	"github.com/nasa-jpl/ccdnoise/imgrec"
	"github.com/nasa-jpl/ccdnoise/noise"
	"github.com/nasa-jpl/ccdnoise/sequence"
	"github.com/nasa-jpl/ccdnoise/server"
	"github.com/nasa-jpl/ccdnoise/server/middleware/locker"
	"github.com/nasa-jpl/ccdnoise/util"
)

var warn = color.New(color.FgYellow)

// driver builds a sequence driver reading frames as FITS files and writing artifacts to c.Outdir
func driver(c config) (*sequence.Driver, *imgrec.Recorder, error) {
	clip, err := c.clip()
	if err != nil {
		return nil, nil, err
	}
	rec := imgrec.NewRecorder(c.Outdir)
	rec.Settle = c.Settle
	d := sequence.NewDriver(rec, rec)
	d.Clip = clip
	d.Options = noise.Options{ExposureTolerance: c.ExpTol, Strict: c.Strict}
	d.Overwrite = c.Overwrite
	return d, rec, nil
}

// spin attaches a terminal spinner to the progress of d.  The returned
// function stops it, marking success or failure.
func spin(d *sequence.Driver, enabled bool) func(error) {
	if !enabled {
		return func(error) {}
	}
	sp, err := yacspin.New(yacspin.Config{
		Writer:            os.Stderr,
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"}})
	if err != nil {
		log.Println("spinner unavailable:", err)
		return func(error) {}
	}
	if err = sp.Start(); err != nil {
		return func(error) {}
	}
	d.Progress = func(done, total int, what string) {
		sp.Message(fmt.Sprintf("[%d/%d] %s", done, total, what))
	}
	return func(err error) {
		if err != nil {
			sp.StopFail()
			return
		}
		sp.Stop()
	}
}

// prepare reads the configuration and frame list shared by the list commands
func prepare(k *koanf.Koanf, list string) (config, *sequence.Driver, []string, error) {
	c, err := unmarshal(k)
	if err != nil {
		return c, nil, nil, err
	}
	d, _, err := driver(c)
	if err != nil {
		return c, nil, nil, err
	}
	d.Log = log.New(os.Stdout, "", 0)
	var paths []string
	if list != "" {
		paths, err = util.ReadFrameList(list)
		if err != nil {
			return c, nil, nil, err
		}
	}
	return c, d, paths, nil
}

func superbias(k *koanf.Koanf, list string) error {
	c, d, paths, err := prepare(k, list)
	if err != nil {
		return err
	}
	out := c.Output
	if out == "" {
		out = imgrec.ListName(list)
	}
	stop := spin(d, c.Spinner)
	rep, err := d.Superbias(paths, out)
	stop(err)
	if err != nil {
		return err
	}
	if rep.Undefined > 0 {
		warn.Fprintf(os.Stderr, "warning: %d superbias pixels rejected in every frame are NaN\n", rep.Undefined)
	}
	fmt.Println("wrote", rep.Artifact)
	return nil
}

func ron(k *koanf.Koanf, list string) error {
	c, d, paths, err := prepare(k, list)
	if err != nil {
		return err
	}
	prof, err := c.profile()
	if err != nil {
		return err
	}
	stop := spin(d, c.Spinner)
	_, err = d.RON(paths, prof.Window)
	stop(err)
	return err
}

// gainRON returns the readout noise of gain runs, failing when the camera has none
func gainRON(c config) (float64, error) {
	prof, err := c.profile()
	if err != nil {
		return 0, err
	}
	if c.RON < 0 && prof.RON == 0 {
		return 0, fmt.Errorf("no readout noise known for camera %s, pass --ron", c.Camera)
	}
	return prof.RON, nil
}

// warnGains flags the pairs whose gain is not a finite number
func warnGains(pairs []sequence.GainPair) {
	for _, p := range pairs {
		if !p.Finite() {
			warn.Fprintf(os.Stderr, "warning: %s %s gain is %v, shot noise variance %g ADU² is not positive\n",
				p.First, p.Second, p.Gain, p.ShotVariance)
		}
	}
}

func gain(k *koanf.Koanf, list string) error {
	c, d, paths, err := prepare(k, list)
	if err != nil {
		return err
	}
	ronADU, err := gainRON(c)
	if err != nil {
		return err
	}
	prof, _ := c.profile()
	stop := spin(d, c.Spinner)
	rep, err := d.Gain(paths, c.Superbias, ronADU, prof.Window)
	stop(err)
	warnGains(rep.Pairs)
	return err
}

func calc(k *koanf.Koanf, bias1, bias2, light1, light2 string) error {
	c, d, _, err := prepare(k, "")
	if err != nil {
		return err
	}
	prof, err := c.profile()
	if err != nil {
		return err
	}
	// the superbias of calc is bias1 unless given explicitly
	sb := ""
	if f := k.String("superbias"); f != defaultConfig().Superbias {
		sb = f
	}
	stop := spin(d, c.Spinner)
	rep, err := d.Calc(bias1, bias2, light1, light2, sb, prof.Window)
	stop(err)
	if err != nil {
		return err
	}
	fmt.Printf("Bias median=%5.3f mean=%5.3f\n", rep.RON.Median, rep.RON.Mean)
	fmt.Printf("light median=%5.2f ADU gain=%5.2f, ron_adu=%5.2f ron_e=%5.2f\n",
		rep.Gain.Median, rep.Gain.Gain, rep.RON.ADU, rep.Gain.RONe)
	warnGains([]sequence.GainPair{rep.Gain})
	return nil
}

func ptc(k *koanf.Koanf, list string) error {
	c, d, paths, err := prepare(k, list)
	if err != nil {
		return err
	}
	ronADU, err := gainRON(c)
	if err != nil {
		return err
	}
	prof, _ := c.profile()
	stop := spin(d, c.Spinner)
	rep, err := d.PTC(paths, c.Superbias, ronADU, prof.Window)
	stop(err)
	warnGains(rep.Pairs)
	if err != nil {
		return err
	}
	if rep.Fit.RSquared < 0.99 || math.IsNaN(rep.Fit.RSquared) {
		warn.Fprintf(os.Stderr, "warning: photon transfer curve is not linear, r^2=%.4f\n", rep.Fit.RSquared)
	}
	return nil
}

func serve(k *koanf.Koanf) error {
	c, err := unmarshal(k)
	if err != nil {
		return err
	}
	d, rec, err := driver(c)
	if err != nil {
		return err
	}

	w := ccd.NewHTTPWrapper(d, c.DataRoot, c.Cameras, c.Camera)
	imgrec.NewHTTPWrapper(rec).Inject(w)
	lock := locker.New()
	lock.DoNotProtect = append(lock.DoNotProtect, "cameras", "route-list", "artifacts")
	locker.Inject(w, lock)

	var lim *rate.Limiter
	if c.RateLimit > 0 {
		lim = rate.NewLimiter(rate.Limit(c.RateLimit), c.Burst)
	}
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)
	routes := server.Mount(root, "/", w, generichttp.Throttle(lim), lock.Check)
	for _, r := range routes {
		log.Println(r)
	}
	log.Println("now listening for requests at ", c.Addr)
	return http.ListenAndServe(c.Addr, root)
}
