package arena

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrEncounterNotFound is returned when no encounter matches.
	ErrEncounterNotFound = errors.New("encounter not found")
	// ErrVersionConflict is returned by Save when the stored version moved on.
	ErrVersionConflict = errors.New("encounter was modified concurrently")
	// ErrActiveEncounterExists is returned by Create when the classroom
	// already has a non-completed encounter.
	ErrActiveEncounterExists = errors.New("classroom already has an active encounter")
)

// Repository persists encounters together with their participants and
// monsters.
type Repository interface {
	// Create stores a new encounter at version 1.
	Create(ctx context.Context, enc *Encounter) error
	// Get loads a full encounter or returns ErrEncounterNotFound.
	Get(ctx context.Context, id string) (*Encounter, error)
	// Save writes enc if the stored version equals enc.Version, then
	// increments enc.Version; otherwise it returns ErrVersionConflict.
	Save(ctx context.Context, enc *Encounter) error
	// ActiveForClassroom returns the classroom's non-completed encounter or
	// ErrEncounterNotFound.
	ActiveForClassroom(ctx context.Context, classroomID string) (*Encounter, error)
}

// MemoryRepository is an in-process Repository. Encounters are stored as JSON
// so callers never share pointers with the stored copy.
type MemoryRepository struct {
	mu         sync.Mutex
	encounters map[string][]byte
	versions   map[string]int64
	active     map[string]string // classroom id → encounter id
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		encounters: make(map[string][]byte),
		versions:   make(map[string]int64),
		active:     make(map[string]string),
	}
}

// Create implements Repository.
func (r *MemoryRepository) Create(_ context.Context, enc *Encounter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.encounters[enc.ID]; dup {
		return fmt.Errorf("encounter %q already exists", enc.ID)
	}
	if enc.Status != StatusCompleted {
		if _, busy := r.active[enc.ClassroomID]; busy {
			return ErrActiveEncounterExists
		}
	}
	enc.Version = 1
	if err := r.store(enc); err != nil {
		return err
	}
	return nil
}

// Get implements Repository.
func (r *MemoryRepository) Get(_ context.Context, id string) (*Encounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(id)
}

// Save implements Repository.
func (r *MemoryRepository) Save(_ context.Context, enc *Encounter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.versions[enc.ID]
	if !ok {
		return ErrEncounterNotFound
	}
	if current != enc.Version {
		return ErrVersionConflict
	}
	enc.Version++
	if err := r.store(enc); err != nil {
		enc.Version--
		return err
	}
	return nil
}

// ActiveForClassroom implements Repository.
func (r *MemoryRepository) ActiveForClassroom(_ context.Context, classroomID string) (*Encounter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.active[classroomID]
	if !ok {
		return nil, ErrEncounterNotFound
	}
	return r.load(id)
}

func (r *MemoryRepository) store(enc *Encounter) error {
	data, err := json.Marshal(enc)
	if err != nil {
		return fmt.Errorf("encoding encounter: %w", err)
	}
	r.encounters[enc.ID] = data
	r.versions[enc.ID] = enc.Version
	if enc.Status == StatusCompleted {
		if r.active[enc.ClassroomID] == enc.ID {
			delete(r.active, enc.ClassroomID)
		}
	} else {
		r.active[enc.ClassroomID] = enc.ID
	}
	return nil
}

func (r *MemoryRepository) load(id string) (*Encounter, error) {
	data, ok := r.encounters[id]
	if !ok {
		return nil, ErrEncounterNotFound
	}
	var enc Encounter
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("decoding encounter: %w", err)
	}
	return &enc, nil
}
