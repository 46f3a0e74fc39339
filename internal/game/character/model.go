// Package character defines the frozen combat snapshot of a student and the
// class catalog it is built from.
package character

import (
	"errors"
	"fmt"
)

// SkillKind tags what a skill does when resolved.
type SkillKind string

const (
	SkillAttack  SkillKind = "attack"
	SkillHeal    SkillKind = "heal"
	SkillDefense SkillKind = "defense"
	SkillBuff    SkillKind = "buff"
)

// Valid reports whether k is a known skill kind.
func (k SkillKind) Valid() bool {
	switch k {
	case SkillAttack, SkillHeal, SkillDefense, SkillBuff:
		return true
	}
	return false
}

// TargetsMonsters reports whether skills of this kind are aimed at monsters.
// Every other kind is aimed at allies (including the caster).
func (k SkillKind) TargetsMonsters() bool { return k == SkillAttack }

// Stats holds the combat statistics of a student at snapshot time.
type Stats struct {
	HP           int `yaml:"hp" json:"hp"`
	Mana         int `yaml:"mana" json:"mana"`
	Force        int `yaml:"force" json:"force"`
	Intelligence int `yaml:"intelligence" json:"intelligence"`
	Defense      int `yaml:"defense" json:"defense"`
	MagicDefense int `yaml:"magic_defense" json:"magic_defense"`
}

// Add returns s + other*n field by field.
func (s Stats) Add(other Stats, n int) Stats {
	return Stats{
		HP:           s.HP + other.HP*n,
		Mana:         s.Mana + other.Mana*n,
		Force:        s.Force + other.Force*n,
		Intelligence: s.Intelligence + other.Intelligence*n,
		Defense:      s.Defense + other.Defense*n,
		MagicDefense: s.MagicDefense + other.MagicDefense*n,
	}
}

// Skill is one ability a student may use in the action phase.
type Skill struct {
	ID     string    `yaml:"id" json:"id"`
	Name   string    `yaml:"name" json:"name"`
	Kind   SkillKind `yaml:"kind" json:"kind"`
	Cost   int       `yaml:"cost" json:"cost"`
	Damage int       `yaml:"damage,omitempty" json:"damage,omitempty"`
	Heal   int       `yaml:"heal,omitempty" json:"heal,omitempty"`
	// Range is the maximum Manhattan distance from caster to target.
	Range int `yaml:"range" json:"range"`
	// Radius > 0 turns an attack into an area attack centred on the target.
	Radius int `yaml:"radius,omitempty" json:"radius,omitempty"`
	// Unlock is the class level at which the skill becomes available.
	Unlock int `yaml:"unlock,omitempty" json:"-"`
}

// Validate checks the skill's invariants.
//
// Postcondition: Returns nil iff ID and Name are set, Kind is known, Cost and
// Range are non-negative, and the effect field matching Kind is positive.
func (s Skill) Validate() error {
	if s.ID == "" {
		return errors.New("skill: id must not be empty")
	}
	if s.Name == "" {
		return fmt.Errorf("skill %q: name must not be empty", s.ID)
	}
	if !s.Kind.Valid() {
		return fmt.Errorf("skill %q: unknown kind %q", s.ID, s.Kind)
	}
	if s.Cost < 0 || s.Range < 0 || s.Radius < 0 {
		return fmt.Errorf("skill %q: cost, range and radius must be >= 0", s.ID)
	}
	switch s.Kind {
	case SkillAttack:
		if s.Damage < 1 {
			return fmt.Errorf("skill %q: attack damage must be >= 1", s.ID)
		}
	case SkillHeal:
		if s.Heal < 1 {
			return fmt.Errorf("skill %q: heal amount must be >= 1", s.ID)
		}
	}
	return nil
}

// Snapshot is the immutable copy of a student's class, level, stats, and
// skills taken when they join an encounter.
type Snapshot struct {
	StudentID string  `json:"student_id"`
	Class     string  `json:"class"`
	Level     int     `json:"level"`
	Stats     Stats   `json:"stats"`
	Skills    []Skill `json:"skills"`
	MoveRange int     `json:"move_range"`
}

// Validate checks the snapshot in a single construction step so that later
// code never has to second-guess partially populated data.
//
// Postcondition: Returns nil iff identity fields are set, Level >= 1, HP >= 1,
// Mana >= 0, MoveRange >= 0, and every skill is valid with a unique ID.
func (s *Snapshot) Validate() error {
	if s.StudentID == "" {
		return errors.New("snapshot: student id must not be empty")
	}
	if s.Class == "" {
		return fmt.Errorf("snapshot %q: class must not be empty", s.StudentID)
	}
	if s.Level < 1 {
		return fmt.Errorf("snapshot %q: level must be >= 1", s.StudentID)
	}
	if s.Stats.HP < 1 {
		return fmt.Errorf("snapshot %q: hp must be >= 1", s.StudentID)
	}
	if s.Stats.Mana < 0 || s.MoveRange < 0 {
		return fmt.Errorf("snapshot %q: mana and move range must be >= 0", s.StudentID)
	}
	seen := make(map[string]bool, len(s.Skills))
	for _, sk := range s.Skills {
		if err := sk.Validate(); err != nil {
			return fmt.Errorf("snapshot %q: %w", s.StudentID, err)
		}
		if seen[sk.ID] {
			return fmt.Errorf("snapshot %q: duplicate skill %q", s.StudentID, sk.ID)
		}
		seen[sk.ID] = true
	}
	return nil
}

// Skill looks up a skill by id.
func (s *Snapshot) Skill(id string) (Skill, bool) {
	for _, sk := range s.Skills {
		if sk.ID == id {
			return sk, true
		}
	}
	return Skill{}, false
}
