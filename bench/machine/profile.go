// Package machine describes the machines a sweep runs on: their placement
// tables, the host tuning applied before measuring, the NUMA topology read
// from sysfs, and a telemetry snapshot recorded with each run.
package machine

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var builtinProfiles []byte

// AutoName resolves to the local hostname.
const AutoName = "auto"

// ErrUnknownProfile is returned when no profile has the requested name.
var ErrUnknownProfile = errors.New("unknown machine profile")

var validate = validator.New()

// Placement pins the two benchmark threads and the data structure to cores
// and NUMA nodes.
type Placement struct {
	Name          string `yaml:"name" validate:"required"`
	SetterCore    int    `yaml:"setter_core" validate:"gte=0"`
	GetterCore    int    `yaml:"getter_core" validate:"gte=0"`
	SetterNode    int    `yaml:"setter_node" validate:"gte=0"`
	GetterNode    int    `yaml:"getter_node" validate:"gte=0"`
	StructureNode int    `yaml:"ds_node" validate:"gte=0"`
}

// Preparation is the host tuning applied before a sweep and reverted after.
// The zero value changes nothing.
type Preparation struct {
	DisableNUMABalancing bool   `yaml:"disable_numa_balancing"`
	DisableASLR          bool   `yaml:"disable_aslr"`
	Governor             string `yaml:"governor" validate:"omitempty,oneof=performance powersave"`
	Prefetcher           string `yaml:"prefetcher" validate:"omitempty,oneof=on off"`
}

// IsZero reports whether p changes nothing.
func (p Preparation) IsZero() bool {
	return p == Preparation{}
}

// Profile is the configuration record of one supported machine.
type Profile struct {
	Name string `yaml:"name" validate:"required"`
	// Constrained machines (CI containers) skip host preparation and the
	// topology check.
	Constrained bool        `yaml:"constrained"`
	LoopRounds  int         `yaml:"loop_rounds" validate:"gt=0"`
	Preparation Preparation `yaml:"preparation"`
	Placements  []Placement `yaml:"placements" validate:"required,min=1,dive"`
}

// Placement returns the named placement.
func (p Profile) Placement(name string) (Placement, bool) {
	for _, pl := range p.Placements {
		if pl.Name == name {
			return pl, true
		}
	}
	return Placement{}, false
}

// PlacementNames lists the placements in table order.
func (p Profile) PlacementNames() []string {
	names := make([]string, len(p.Placements))
	for i, pl := range p.Placements {
		names[i] = pl.Name
	}
	return names
}

// Catalog is the full set of known profiles.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Catalog struct {
	Profiles []Profile `yaml:"profiles" validate:"required,min=1,dive"`
}

// DefaultCatalog returns the built-in profiles.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(bytes.NewReader(builtinProfiles))
}

// LoadCatalogFile reads profiles from a YAML file.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profiles: %w", err)
	}
	defer f.Close()
	c, err := LoadCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// LoadCatalog parses and validates profiles. Unknown fields are errors.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var c Catalog
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks field constraints and that profile and placement names
// are unique. Every problem found is reported.
func (c *Catalog) Validate() error {
	var result *multierror.Error
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				result = multierror.Append(result, fmt.Errorf("%s: failed %q constraint", fe.Namespace(), fe.Tag()))
			}
		} else {
			result = multierror.Append(result, err)
		}
	}

	profiles := make(map[string]bool, len(c.Profiles))
	for _, p := range c.Profiles {
		if profiles[p.Name] {
			result = multierror.Append(result, fmt.Errorf("duplicate profile %q", p.Name))
		}
		profiles[p.Name] = true
		placements := make(map[string]bool, len(p.Placements))
		for _, pl := range p.Placements {
			if placements[pl.Name] {
				result = multierror.Append(result, fmt.Errorf("profile %q: duplicate placement %q", p.Name, pl.Name))
			}
			placements[pl.Name] = true
		}
	}
	return result.ErrorOrNil()
}

// Lookup returns the named profile. AutoName resolves to the hostname.
func (c *Catalog) Lookup(name string) (Profile, error) {
	resolved, err := ResolveName(name)
	if err != nil {
		return Profile{}, err
	}
	for _, p := range c.Profiles {
		if p.Name == resolved {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w %q (known: %v)", ErrUnknownProfile, resolved, c.Names())
}

// Names lists the profile names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Profiles))
	for i, p := range c.Profiles {
		names[i] = p.Name
	}
	sort.Strings(names)
	return names
}

// ResolveName maps AutoName to the hostname and returns other names as is.
func ResolveName(name string) (string, error) {
	if name != AutoName {
		return name, nil
	}
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("resolve %q machine name: %w", AutoName, err)
	}
	return host, nil
}
