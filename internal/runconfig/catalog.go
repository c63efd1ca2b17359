package runconfig

import (
	"os"

	"github.com/phonebill/runcfg/pkg/api"
	"github.com/rotisserie/eris"
)

// DefaultServices is the list of service directories scanned when no
// service is named explicitly.
var DefaultServices = []string{"user-service", "location-service", "trip-service", "ai-service"}

// Catalog maps service names to their run configurations and remembers the
// order in which they were added.
type Catalog struct {
	names  []string
	byName map[string]*api.RunConfiguration
}

func NewCatalog() *Catalog {
	return &Catalog{byName: map[string]*api.RunConfiguration{}}
}

// Add stores cfg under its service name, replacing an existing entry.
func (c *Catalog) Add(cfg *api.RunConfiguration) {
	if _, ok := c.byName[cfg.Service]; !ok {
		c.names = append(c.names, cfg.Service)
	}
	c.byName[cfg.Service] = cfg
}

func (c *Catalog) Get(service string) (*api.RunConfiguration, bool) {
	cfg, ok := c.byName[service]
	return cfg, ok
}

func (c *Catalog) Len() int { return len(c.names) }

// Names returns the services in insertion order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Merge adds every entry of other to c.
func (c *Catalog) Merge(other *Catalog) {
	if other == nil {
		return
	}
	for _, name := range other.names {
		c.Add(other.byName[name])
	}
}

// Scan parses the run configuration of every listed service. Services
// without a file are skipped silently; files that fail to parse are skipped
// and their errors returned so the caller can report them.
func Scan(root string, services []string) (*Catalog, []error) {
	catalog := NewCatalog()
	var problems []error

	for _, service := range services {
		path := Path(root, service)
		if _, err := os.Stat(path); err != nil {
			if !eris.Is(err, os.ErrNotExist) {
				problems = append(problems, eris.Wrapf(err, "error reading %s", path))
			}
			continue
		}

		cfg, err := ParseFile(path, service)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		if cfg != nil {
			catalog.Add(cfg)
		}
	}

	return catalog, problems
}

// Load parses the run configuration of a single service. A missing file
// yields ErrConfigNotFound.
func Load(root, service string) (*Catalog, error) {
	catalog := NewCatalog()

	cfg, err := ParseFile(Path(root, service), service)
	if err != nil {
		return catalog, err
	}
	if cfg != nil {
		catalog.Add(cfg)
	}
	return catalog, nil
}
