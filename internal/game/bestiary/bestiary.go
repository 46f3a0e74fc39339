package bestiary

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed bestiary.yaml
var defaultTables []byte

// Bestiary is the immutable preset and difficulty table. It is built once at
// startup and only read afterwards, so it is safe for concurrent use.
type Bestiary struct {
	presets      map[string]*Preset
	difficulties map[Difficulty]*DifficultyConfig
}

// Load parses and validates a bestiary YAML document.
//
// Precondition: data must contain top-level presets and difficulties lists.
// Postcondition: Returns a Bestiary whose every preset and tier validated and
// which defines all four tiers, or an error.
func Load(data []byte) (*Bestiary, error) {
	var file struct {
		Presets      []*Preset           `yaml:"presets"`
		Difficulties []*DifficultyConfig `yaml:"difficulties"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing bestiary YAML: %w", err)
	}
	b := &Bestiary{
		presets:      make(map[string]*Preset, len(file.Presets)),
		difficulties: make(map[Difficulty]*DifficultyConfig, len(file.Difficulties)),
	}
	for _, p := range file.Presets {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := b.presets[p.Type]; dup {
			return nil, fmt.Errorf("monster preset %q defined twice", p.Type)
		}
		b.presets[p.Type] = p
	}
	for _, d := range file.Difficulties {
		if err := d.Validate(b.presets); err != nil {
			return nil, err
		}
		b.difficulties[d.ID] = d
	}
	for _, d := range []Difficulty{Easy, Medium, Hard, Boss} {
		if _, ok := b.difficulties[d]; !ok {
			return nil, fmt.Errorf("difficulty %q is not defined", d)
		}
	}
	return b, nil
}

// Default returns the built-in bestiary.
func Default() (*Bestiary, error) {
	return Load(defaultTables)
}

// Preset returns the preset for a monster type.
func (b *Bestiary) Preset(monsterType string) (*Preset, bool) {
	p, ok := b.presets[monsterType]
	return p, ok
}

// Difficulty returns the configuration of a tier.
func (b *Bestiary) Difficulty(d Difficulty) (*DifficultyConfig, bool) {
	c, ok := b.difficulties[d]
	return c, ok
}

// Types returns every preset type in sorted order.
func (b *Bestiary) Types() []string {
	out := make([]string, 0, len(b.presets))
	for t := range b.presets {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
