package bestiary

import "fmt"

// Difficulty is the tier chosen by the teacher for an encounter.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
	Boss   Difficulty = "boss"
)

// Valid reports whether d is a known tier.
func (d Difficulty) Valid() bool {
	switch d {
	case Easy, Medium, Hard, Boss:
		return true
	}
	return false
}

// PoolEntry is one weighted monster type in a difficulty pool.
type PoolEntry struct {
	Type        string `yaml:"type"`
	Weight      int    `yaml:"weight"`
	LevelOffset int    `yaml:"level_offset"`
}

// DifficultyConfig describes a tier's monster pool and reward multipliers.
type DifficultyConfig struct {
	ID             Difficulty  `yaml:"id"`
	LevelOffset    int         `yaml:"level_offset"`
	XPMultiplier   float64     `yaml:"xp_multiplier"`
	GoldMultiplier float64     `yaml:"gold_multiplier"`
	Pool           []PoolEntry `yaml:"pool"`
}

// Validate checks the tier against the known presets.
//
// Postcondition: Returns nil iff the id is a known tier, multipliers are
// positive, and the pool is non-empty with positive weights on known types.
func (d *DifficultyConfig) Validate(presets map[string]*Preset) error {
	if !d.ID.Valid() {
		return fmt.Errorf("difficulty %q: unknown tier", d.ID)
	}
	if d.XPMultiplier <= 0 || d.GoldMultiplier <= 0 {
		return fmt.Errorf("difficulty %q: multipliers must be > 0", d.ID)
	}
	if len(d.Pool) == 0 {
		return fmt.Errorf("difficulty %q: pool must not be empty", d.ID)
	}
	for _, e := range d.Pool {
		if _, ok := presets[e.Type]; !ok {
			return fmt.Errorf("difficulty %q: pool references unknown monster %q", d.ID, e.Type)
		}
		if e.Weight < 1 {
			return fmt.Errorf("difficulty %q: weight for %q must be >= 1", d.ID, e.Type)
		}
	}
	return nil
}

// Level returns the level of a monster drawn from entry for a classroom of
// the given average level.
//
// Postcondition: Returns >= 1.
func (d *DifficultyConfig) Level(avgLevel int, entry PoolEntry) int {
	lvl := avgLevel + d.LevelOffset + entry.LevelOffset
	if lvl < 1 {
		return 1
	}
	return lvl
}
