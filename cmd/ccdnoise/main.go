package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/knadh/koanf"
	"github.com/spf13/pflag"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "ccdnoise.yml"
)

func root() {
	str := `ccdnoise measures the readout noise and gain of CCD cameras
from pairs of bias and light frames stored as FITS files.

Usage:
	ccdnoise <command> [flags] [args]

Commands:
	superbias LIST
	ron LIST
	gain LIST
	calc BIAS1 BIAS2 LIGHT1 LIGHT2
	ptc LIST
	serve
	help
	mkconf
	conf
	version

LIST is a text file with one FITS path per line.  Run ccdnoise help for details.`
	fmt.Println(str)
}

func help() {
	str := `ccdnoise is amenable to configuration via its .yml file, environment
variables prefixed with CCDNOISE_ and command line flags, each overriding
the one before.  For a primer on YAML, see https://yaml.org/start.html

When no configuration is provided, the defaults are used.
The command mkconf generates the configuration file with the default values,
conf prints the configuration in effect.

superbias LIST
	stacks the bias frames of LIST into their sigma clipped mean, written
	as <LIST name>.fits in outdir unless --output is given.
ron LIST
	readout noise in ADU of every consecutive pair of bias frames.
	bias_diff_<a>_<b>.fits is written for each pair.
gain LIST
	gain in e-/ADU of every consecutive pair of light frames, bias corrected
	with --superbias, using --ron or the readout noise of the camera.
	light_diff_<a>_<b>.fits is written for each pair.
calc BIAS1 BIAS2 LIGHT1 LIGHT2
	readout noise from one bias pair, then the gain from one light pair.
	The superbias defaults to BIAS1.
ptc LIST
	photon transfer fit over the light pairs (1,2), (3,4), ... of LIST,
	one pair per illumination level.
serve
	serves the commands above over HTTP at addr, with frame paths resolved
	under dataroot.

The statistics window defaults to the one of the camera (--camera) and can be
overridden with --win x_begin,x_end,y_begin,y_end.  Camera profiles live under
the cameras key of the configuration file.

Flags:
`
	fmt.Print(str)
	fs := flags("ccdnoise")
	fs.SetOutput(os.Stdout)
	fs.PrintDefaults()
}

func mkconf(k *koanf.Koanf) {
	c, err := unmarshal(k)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf(k *koanf.Koanf) {
	c, err := unmarshal(k)
	if err != nil {
		log.Fatal(err)
	}
	err = yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("ccdnoise version %v\n", Version)
}

// fatal reports err in red on stderr and exits
func fatal(err error) {
	color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

// nargs checks the number of positional arguments of a command
func nargs(cmd string, args []string, n int) {
	if len(args) != n {
		fatal(fmt.Errorf("%s takes %d arguments, got %d; see ccdnoise help", cmd, n, len(args)))
	}
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	cmd := strings.ToLower(args[1])
	fs := flags(cmd)
	err := fs.Parse(args[2:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fatal(err)
	}
	k, err := loadConfig(fs)
	if err != nil {
		fatal(err)
	}
	pos := fs.Args()
	switch cmd {
	case "help":
		help()
	case "mkconf":
		mkconf(k)
	case "conf":
		printconf(k)
	case "version":
		pversion()
	case "superbias":
		nargs(cmd, pos, 1)
		err = superbias(k, pos[0])
	case "ron":
		nargs(cmd, pos, 1)
		err = ron(k, pos[0])
	case "gain":
		nargs(cmd, pos, 1)
		err = gain(k, pos[0])
	case "calc":
		nargs(cmd, pos, 4)
		err = calc(k, pos[0], pos[1], pos[2], pos[3])
	case "ptc":
		nargs(cmd, pos, 1)
		err = ptc(k, pos[0])
	case "serve", "run":
		err = serve(k)
	default:
		log.Fatal("unknown command")
	}
	if err != nil {
		fatal(err)
	}
}
