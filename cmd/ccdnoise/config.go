package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/spf13/pflag"

	"github.com/nasa-jpl/ccdnoise/camera"
	"github.com/nasa-jpl/ccdnoise/mathx"
	"github.com/nasa-jpl/ccdnoise/noise"
)

// EnvPrefix prefixes the environment variables read as configuration,
// e.g. CCDNOISE_CAMERA=ccd2 or CCDNOISE_CAMERAS_CCD3_RON=2.4
const EnvPrefix = "CCDNOISE_"

type config struct {
	// Camera is the profile providing the default window and RON
	Camera string `koanf:"camera" yaml:"camera"`

	// Cameras are the known camera profiles
	Cameras camera.Profiles `koanf:"cameras" yaml:"cameras"`

	// Win overrides the camera window, "x_begin,x_end,y_begin,y_end"
	Win string `koanf:"win" yaml:"win"`

	// RON overrides the camera readout noise in ADU, negative uses the camera's
	RON float64 `koanf:"ron" yaml:"ron"`

	// Superbias is the superbias file of gain runs
	Superbias string `koanf:"superbias" yaml:"superbias"`

	// Output names the superbias artifact, empty derives it from the frame list
	Output string `koanf:"output" yaml:"output"`

	// Outdir is the folder artifacts are written to
	Outdir string `koanf:"outdir" yaml:"outdir"`

	// Overwrite replaces artifacts left by earlier runs
	Overwrite bool `koanf:"overwrite" yaml:"overwrite"`

	Sigma    float64 `koanf:"sigma" yaml:"sigma"`
	MaxIters int     `koanf:"maxiters" yaml:"maxiters"`
	Center   string  `koanf:"center" yaml:"center"`

	// ExpTol is the exposure time tolerance of a pair in seconds, negative to disable
	ExpTol float64 `koanf:"exptol" yaml:"exptol"`

	// Strict fails gain runs on a non-positive shot noise variance
	Strict bool `koanf:"strict" yaml:"strict"`

	// Settle is how long to retry frames which do not parse yet
	Settle time.Duration `koanf:"settle" yaml:"settle"`

	// Spinner shows progress on the terminal
	Spinner bool `koanf:"spinner" yaml:"spinner"`

	// Addr is the address the HTTP service listens at
	Addr string `koanf:"addr" yaml:"addr"`

	// DataRoot is the folder HTTP requests name frames under
	DataRoot string `koanf:"dataroot" yaml:"dataroot"`

	// RateLimit is the sustained number of HTTP requests per second, 0 for no limit
	RateLimit float64 `koanf:"ratelimit" yaml:"ratelimit"`

	// Burst is the number of HTTP requests allowed at once above RateLimit
	Burst int `koanf:"burst" yaml:"burst"`
}

func defaultConfig() config {
	clip := mathx.DefaultClip()
	return config{
		Camera:    "ccd1",
		Cameras:   camera.DefaultProfiles(),
		Superbias: "superbias_default.fits",
		Outdir:    ".",
		RON:       -1,
		Overwrite: true,
		Sigma:     clip.Sigma,
		MaxIters:  clip.MaxIters,
		Center:    clip.Center,
		ExpTol:    noise.DefaultExposureTolerance,
		Spinner:   true,
		Addr:      ":8000",
		DataRoot:  ".",
		RateLimit: 2,
		Burst:     4}
}

// flags returns the command line flags shared by every command
func flags(name string) *pflag.FlagSet {
	d := defaultConfig()
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", ConfigFileName, "configuration file")
	fs.String("camera", d.Camera, "camera profile, one of "+strings.Join(d.Cameras.Names(), ", "))
	fs.String("win", d.Win, "statistics window x_begin,x_end,y_begin,y_end (default: the camera's)")
	fs.Float64("ron", d.RON, "readout noise in ADU, negative for the camera's")
	fs.String("superbias", d.Superbias, "superbias file for bias correction")
	fs.String("output", d.Output, "superbias artifact name (default: <list name>.fits)")
	fs.String("outdir", d.Outdir, "folder artifacts are written to")
	fs.Bool("overwrite", d.Overwrite, "replace artifacts from earlier runs")
	fs.Float64("sigma", d.Sigma, "superbias clipping threshold in standard deviations")
	fs.Int("maxiters", d.MaxIters, "superbias clipping passes, negative until convergence")
	fs.String("center", d.Center, "superbias clipping center, mean or median")
	fs.Float64("exptol", d.ExpTol, "exposure time tolerance of a pair in seconds, negative to disable")
	fs.Bool("strict", d.Strict, "fail when the shot noise variance is not positive")
	fs.Duration("settle", d.Settle, "retry frames which do not parse yet for this long")
	fs.Bool("spinner", d.Spinner, "show progress")
	fs.String("addr", d.Addr, "address to listen at (serve)")
	fs.String("dataroot", d.DataRoot, "folder request paths are resolved under (serve)")
	fs.Float64("ratelimit", d.RateLimit, "sustained requests per second, 0 for no limit (serve)")
	fs.Int("burst", d.Burst, "requests allowed at once above the rate limit (serve)")
	return fs
}

// envKey maps CCDNOISE_CAMERAS_CCD1_RON to cameras.ccd1.ron
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
}

// loadConfig layers the defaults, the configuration file, the environment and
// the command line flags, each overriding the previous.  A missing
// configuration file is not an error.
func loadConfig(fs *pflag.FlagSet) (*koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return k, err
	}
	fn := ConfigFileName
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Changed {
			fn = f.Value.String()
		}
	}
	if err := k.Load(file.Provider(fn), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			return k, fmt.Errorf("error loading config: %w", err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return k, err
	}
	if fs != nil {
		if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
			return k, err
		}
	}
	return k, nil
}

func unmarshal(k *koanf.Koanf) (config, error) {
	c := config{}
	err := k.Unmarshal("", &c)
	return c, err
}

// clip returns the superbias clipping parameters
func (c config) clip() (mathx.ClipConfig, error) {
	cfg := mathx.ClipConfig{Sigma: c.Sigma, MaxIters: c.MaxIters, Center: c.Center}
	return cfg, cfg.Validate()
}

// profile returns the selected camera profile with the window and RON overrides applied
func (c config) profile() (camera.Profile, error) {
	prof, err := c.Cameras.Lookup(c.Camera)
	if err != nil {
		return prof, err
	}
	if c.Win != "" {
		prof.Window, err = camera.ParseWindow(c.Win)
		if err != nil {
			return prof, err
		}
	}
	if c.RON >= 0 {
		prof.RON = c.RON
	}
	return prof, nil
}
