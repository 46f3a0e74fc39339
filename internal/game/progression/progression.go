// Package progression owns the persistent per-student level, experience, and
// gold, and builds the combat snapshot a student brings into an encounter.
package progression

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cory-johannsen/classquest/internal/game/character"
)

// ErrStudentNotFound is returned when a student has no profile.
var ErrStudentNotFound = errors.New("progression: student not found")

// ErrUnknownClass is returned by Enroll for a class missing from the catalog.
var ErrUnknownClass = errors.New("progression: unknown class")

// XPPerLevel scales the level curve: reaching level L+1 from L costs
// XPPerLevel × L experience.
const XPPerLevel = 100

// Profile is a student's persistent progression record. XP counts experience
// earned inside the current level.
type Profile struct {
	StudentID string    `json:"student_id"`
	Class     string    `json:"class"`
	Level     int       `json:"level"`
	XP        int       `json:"xp"`
	Gold      int       `json:"gold"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists profiles.
type Store interface {
	// Get returns a profile or ErrStudentNotFound.
	Get(ctx context.Context, studentID string) (*Profile, error)
	// Put inserts or replaces a profile.
	Put(ctx context.Context, p *Profile) error
	// Update applies fn to the stored profile atomically and persists the result.
	Update(ctx context.Context, studentID string, fn func(*Profile) error) (*Profile, error)
}

// LevelResult reports the outcome of granting experience.
type LevelResult struct {
	Level     int
	LeveledUp bool
}

// Service implements the leveling operations consumed by encounters.
type Service struct {
	store   Store
	catalog *character.Catalog
}

// NewService creates a leveling Service.
//
// Precondition: store and catalog must be non-nil.
func NewService(store Store, catalog *character.Catalog) *Service {
	return &Service{store: store, catalog: catalog}
}

// Enroll creates or re-classes a student's profile. An existing profile keeps
// its level, experience, and gold.
//
// Precondition: classID must exist in the catalog.
// Postcondition: Returns the stored profile.
func (s *Service) Enroll(ctx context.Context, studentID, classID string) (*Profile, error) {
	if studentID == "" {
		return nil, errors.New("progression: student id must not be empty")
	}
	if _, ok := s.catalog.Class(classID); !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownClass, classID)
	}
	p, err := s.store.Get(ctx, studentID)
	switch {
	case errors.Is(err, ErrStudentNotFound):
		p = &Profile{StudentID: studentID, Level: 1}
	case err != nil:
		return nil, err
	}
	p.Class = classID
	if err := s.store.Put(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// SnapshotFor freezes the student's current class and level into a combat
// snapshot.
//
// Postcondition: Returns a validated snapshot or ErrStudentNotFound.
func (s *Service) SnapshotFor(ctx context.Context, studentID string) (*character.Snapshot, error) {
	p, err := s.store.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return s.catalog.Build(p.StudentID, p.Class, p.Level)
}

// AddXP grants experience and applies as many level-ups as it pays for.
//
// Precondition: xp >= 0.
// Postcondition: The stored profile satisfies XP < XPPerLevel × Level.
func (s *Service) AddXP(ctx context.Context, studentID string, xp int) (LevelResult, error) {
	if xp < 0 {
		return LevelResult{}, fmt.Errorf("progression: negative xp %d", xp)
	}
	before := 0
	p, err := s.store.Update(ctx, studentID, func(p *Profile) error {
		before = p.Level
		p.XP += xp
		for p.XP >= XPPerLevel*p.Level {
			p.XP -= XPPerLevel * p.Level
			p.Level++
		}
		return nil
	})
	if err != nil {
		return LevelResult{}, err
	}
	return LevelResult{Level: p.Level, LeveledUp: p.Level > before}, nil
}

// AddGold credits gold.
//
// Precondition: gold >= 0.
func (s *Service) AddGold(ctx context.Context, studentID string, gold int) error {
	if gold < 0 {
		return fmt.Errorf("progression: negative gold %d", gold)
	}
	_, err := s.store.Update(ctx, studentID, func(p *Profile) error {
		p.Gold += gold
		return nil
	})
	return err
}

// Profile returns the stored profile.
func (s *Service) Profile(ctx context.Context, studentID string) (*Profile, error) {
	return s.store.Get(ctx, studentID)
}
