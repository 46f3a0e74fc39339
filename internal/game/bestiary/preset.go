// Package bestiary holds the monster preset table, the difficulty tiers, and
// the encounter composer that turns them into a placed monster roster.
package bestiary

import (
	"fmt"
)

// SkillKind selects which defense a monster skill is resisted by.
type SkillKind string

const (
	Physical SkillKind = "physical"
	Magical  SkillKind = "magical"
)

// SkillTarget selects how many participants a monster skill hits.
type SkillTarget string

const (
	TargetSingle SkillTarget = "single"
	TargetAll    SkillTarget = "all"
)

// Skill is one attack a monster may use.
type Skill struct {
	ID     string      `yaml:"id" json:"id"`
	Name   string      `yaml:"name" json:"name"`
	Kind   SkillKind   `yaml:"kind" json:"kind"`
	Target SkillTarget `yaml:"target" json:"target"`
	Damage int         `yaml:"damage" json:"damage"`
}

// Stats are the combat numbers of a monster.
type Stats struct {
	HP           int `yaml:"hp" json:"hp"`
	Attack       int `yaml:"attack" json:"attack"`
	Defense      int `yaml:"defense" json:"defense"`
	MagicDefense int `yaml:"magic_defense" json:"magic_defense"`
}

// Preset is one monster type: base stats at level 1, growth per level, and
// its skill list.
type Preset struct {
	Type   string  `yaml:"type"`
	Name   string  `yaml:"name"`
	Base   Stats   `yaml:"base"`
	Growth Stats   `yaml:"growth"`
	Skills []Skill `yaml:"skills"`
}

// Validate checks that the preset satisfies basic invariants.
//
// Precondition: p must not be nil.
// Postcondition: Returns nil iff Type and Name are non-empty, base HP >= 1,
// growth is non-negative, and every skill has a known kind and target with
// damage >= 1; returns an error on the first violation otherwise.
func (p *Preset) Validate() error {
	if p.Type == "" {
		return fmt.Errorf("monster preset: type must not be empty")
	}
	if p.Name == "" {
		return fmt.Errorf("monster preset %q: name must not be empty", p.Type)
	}
	if p.Base.HP < 1 {
		return fmt.Errorf("monster preset %q: base hp must be >= 1", p.Type)
	}
	if p.Growth.HP < 0 || p.Growth.Attack < 0 || p.Growth.Defense < 0 || p.Growth.MagicDefense < 0 {
		return fmt.Errorf("monster preset %q: growth must not be negative", p.Type)
	}
	if len(p.Skills) == 0 {
		return fmt.Errorf("monster preset %q: at least one skill is required", p.Type)
	}
	for i, sk := range p.Skills {
		if sk.ID == "" {
			return fmt.Errorf("monster preset %q: skill[%d] must have an id", p.Type, i)
		}
		if sk.Kind != Physical && sk.Kind != Magical {
			return fmt.Errorf("monster preset %q: skill %q has unknown kind %q", p.Type, sk.ID, sk.Kind)
		}
		if sk.Target != TargetSingle && sk.Target != TargetAll {
			return fmt.Errorf("monster preset %q: skill %q has unknown target %q", p.Type, sk.ID, sk.Target)
		}
		if sk.Damage < 1 {
			return fmt.Errorf("monster preset %q: skill %q damage must be >= 1", p.Type, sk.ID)
		}
	}
	return nil
}

// StatsAt returns the preset's stats at level: base + growth × (level − 1).
//
// Precondition: level >= 1.
func (p *Preset) StatsAt(level int) Stats {
	n := level - 1
	return Stats{
		HP:           p.Base.HP + p.Growth.HP*n,
		Attack:       p.Base.Attack + p.Growth.Attack*n,
		Defense:      p.Base.Defense + p.Growth.Defense*n,
		MagicDefense: p.Base.MagicDefense + p.Growth.MagicDefense*n,
	}
}
