package character

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed classes.yaml
var defaultClasses []byte

// Class is a playable class: base stats at level 1, growth per level, and the
// skills it unlocks.
type Class struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	Base      Stats   `yaml:"base"`
	Growth    Stats   `yaml:"growth"`
	MoveRange int     `yaml:"move_range"`
	Skills    []Skill `yaml:"skills"`
}

// Validate checks the class invariants.
//
// Postcondition: Returns nil iff ID and Name are set, base HP >= 1, growth is
// non-negative, MoveRange >= 1, and at least one skill unlocks at level 1.
func (c *Class) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("class: id must not be empty")
	}
	if c.Name == "" {
		return fmt.Errorf("class %q: name must not be empty", c.ID)
	}
	if c.Base.HP < 1 {
		return fmt.Errorf("class %q: base hp must be >= 1", c.ID)
	}
	g := c.Growth
	if g.HP < 0 || g.Mana < 0 || g.Force < 0 || g.Intelligence < 0 || g.Defense < 0 || g.MagicDefense < 0 {
		return fmt.Errorf("class %q: growth must not be negative", c.ID)
	}
	if c.MoveRange < 1 {
		return fmt.Errorf("class %q: move_range must be >= 1", c.ID)
	}
	starter := false
	for _, sk := range c.Skills {
		if err := sk.Validate(); err != nil {
			return fmt.Errorf("class %q: %w", c.ID, err)
		}
		if sk.Unlock <= 1 {
			starter = true
		}
	}
	if !starter {
		return fmt.Errorf("class %q: no skill available at level 1", c.ID)
	}
	return nil
}

// Catalog is the immutable set of classes, keyed by id.
type Catalog struct {
	classes map[string]*Class
}

// LoadCatalog parses a YAML list of classes.
//
// Precondition: data must be a YAML sequence of Class documents.
// Postcondition: Returns a catalog with every class validated and ids unique,
// or an error.
func LoadCatalog(data []byte) (*Catalog, error) {
	var file struct {
		Classes []*Class `yaml:"classes"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing class catalog: %w", err)
	}
	cat := &Catalog{classes: make(map[string]*Class, len(file.Classes))}
	for _, c := range file.Classes {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := cat.classes[c.ID]; dup {
			return nil, fmt.Errorf("class %q defined twice", c.ID)
		}
		cat.classes[c.ID] = c
	}
	if len(cat.classes) == 0 {
		return nil, fmt.Errorf("class catalog is empty")
	}
	return cat, nil
}

// DefaultCatalog returns the built-in class catalog.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(defaultClasses)
}

// Class returns the class with the given id.
func (c *Catalog) Class(id string) (*Class, bool) {
	cl, ok := c.classes[id]
	return cl, ok
}

// IDs returns every class id in sorted order.
func (c *Catalog) IDs() []string {
	out := make([]string, 0, len(c.classes))
	for id := range c.classes {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
