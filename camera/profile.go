package camera

import (
	"fmt"
	"sort"
	"strings"
)

// Profile holds the characterization defaults for one camera
type Profile struct {
	// Description is free text shown by the CLI
	Description string `koanf:"description" yaml:"description" json:"description"`

	// Window is the statistics window which avoids vignetted and defective edges
	Window Window `koanf:"window" yaml:"window" json:"window"`

	// RON is the known readout noise in ADU, used by gain runs when none is given.
	// 0 means unknown.
	RON float64 `koanf:"ron" yaml:"ron" json:"ron"`
}

// Profiles maps a camera identifier to its Profile
type Profiles map[string]Profile

// DefaultProfiles returns the presets of the three lab CCDs
func DefaultProfiles() Profiles {
	return Profiles{
		"ccd1": {
			Description: "camera 1",
			Window:      Window{X0: 1200, X1: 1700, Y0: 1600, Y1: 2100},
			RON:         2.21},
		"ccd2": {
			Description: "camera 2",
			Window:      Window{X0: 2052, X1: 2552, Y0: 2417, Y1: 2917},
			RON:         2.00},
		"ccd3": {
			Description: "camera 3",
			Window:      Window{X0: 2417, X1: 2917, Y0: 2052, Y1: 2552}},
	}
}

// Lookup returns the profile for name, case insensitive
func (p Profiles) Lookup(name string) (Profile, error) {
	if prof, ok := p[name]; ok {
		return prof, nil
	}
	for k, prof := range p {
		if strings.EqualFold(k, name) {
			return prof, nil
		}
	}
	return Profile{}, fmt.Errorf("unknown camera %q, known cameras are %s", name, strings.Join(p.Names(), ", "))
}

// Names returns the sorted camera identifiers
func (p Profiles) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
