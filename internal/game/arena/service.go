package arena

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/classquest/internal/game/bestiary"
	"github.com/cory-johannsen/classquest/internal/game/dice"
	"github.com/cory-johannsen/classquest/internal/game/grid"
	"github.com/cory-johannsen/classquest/internal/game/progression"
	"github.com/cory-johannsen/classquest/internal/game/quiz"
)

// Config holds the tunable rules of the state machine.
type Config struct {
	// ManaRegen is restored to every living participant at the end of a round.
	ManaRegen int
	Rewards   RewardRules
	// MaxSaveAttempts bounds reload-and-retry after a version conflict.
	MaxSaveAttempts int
}

// DefaultConfig returns the standard rules.
func DefaultConfig() Config {
	return Config{ManaRegen: 5, Rewards: DefaultRewardRules(), MaxSaveAttempts: 3}
}

// ServiceConfig wires a Service to its collaborators.
type ServiceConfig struct {
	Config     Config
	Repository Repository
	Bestiary   *bestiary.Bestiary
	Questions  QuestionSource
	Oracle     quiz.Oracle
	Leveling   Leveling
	// Publisher receives state after every successful mutation; nil disables fan-out.
	Publisher Publisher
	// Source seeds new encounters; nil uses a crypto source.
	Source dice.Source
	// Now stamps CreatedAt and EndedAt; nil uses time.Now.
	Now    func() time.Time
	Logger *zap.Logger
}

// Service runs encounters. Every operation on one encounter is serialized by
// a per-encounter lock and persisted with a version check, so Service is
// safe for concurrent use and may run in several processes at once.
type Service struct {
	cfg       Config
	repo      Repository
	bestiary  *bestiary.Bestiary
	questions QuestionSource
	oracle    quiz.Oracle
	leveling  Leveling
	publisher Publisher
	src       dice.Source
	now       func() time.Time
	logger    *zap.Logger
	locks     *lockset
}

// NewService creates a Service.
//
// Precondition: Repository, Bestiary, Questions, Oracle, Leveling, and Logger
// must be non-nil.
// Postcondition: Returns a ready Service or an error naming the missing dependency.
func NewService(c ServiceConfig) (*Service, error) {
	switch {
	case c.Repository == nil:
		return nil, errors.New("arena: repository is required")
	case c.Bestiary == nil:
		return nil, errors.New("arena: bestiary is required")
	case c.Questions == nil:
		return nil, errors.New("arena: question source is required")
	case c.Oracle == nil:
		return nil, errors.New("arena: oracle is required")
	case c.Leveling == nil:
		return nil, errors.New("arena: leveling is required")
	case c.Logger == nil:
		return nil, errors.New("arena: logger is required")
	}
	s := &Service{
		cfg:       c.Config,
		repo:      c.Repository,
		bestiary:  c.Bestiary,
		questions: c.Questions,
		oracle:    c.Oracle,
		leveling:  c.Leveling,
		publisher: c.Publisher,
		src:       c.Source,
		now:       c.Now,
		logger:    c.Logger,
		locks:     newLockset(),
	}
	if s.cfg.MaxSaveAttempts < 1 {
		s.cfg.MaxSaveAttempts = 1
	}
	if s.publisher == nil {
		s.publisher = nopPublisher{}
	}
	if s.src == nil {
		s.src = dice.NewCryptoSource()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Random streams derived from an encounter's seed and round.
const (
	streamQuestion int64 = iota + 1
	streamResize
	streamResolve
	streamCount
)

func roundSource(enc *Encounter, stream int64) dice.Source {
	return dice.NewSeededSource(enc.Seed + int64(enc.Round)*streamCount + stream)
}

// mutate loads the encounter under its lock, applies fn, and saves when fn
// reports a change. A version conflict reloads and re-runs fn when retry is set.
func (s *Service) mutate(ctx context.Context, id string, retry bool, op string, fn func(enc *Encounter) (bool, error)) (*Encounter, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	attempts := 1
	if retry {
		attempts = s.cfg.MaxSaveAttempts
	}
	for attempt := 1; ; attempt++ {
		enc, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		changed, err := fn(enc)
		if err != nil {
			if r, ok := AsRejection(err); ok {
				s.logger.Debug("request rejected",
					zap.String("encounter_id", id),
					zap.String("op", op),
					zap.String("kind", string(r.Kind)),
					zap.String("reason", r.Message),
				)
			}
			return nil, err
		}
		if !changed {
			return enc, nil
		}
		err = s.repo.Save(ctx, enc)
		if err == nil {
			s.publishState(ctx, enc)
			return enc, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			s.logger.Error("saving encounter", zap.String("encounter_id", id), zap.String("op", op), zap.Error(err))
			return nil, fmt.Errorf("saving encounter %s: %w", id, err)
		}
		if attempt >= attempts {
			return nil, reject(KindConflict, "encounter %s was modified concurrently", id)
		}
	}
}

func (s *Service) load(ctx context.Context, id string) (*Encounter, error) {
	enc, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrEncounterNotFound) {
		return nil, reject(KindNotFound, "encounter %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading encounter %s: %w", id, err)
	}
	return enc, nil
}

func (s *Service) logTransition(enc *Encounter, msg string) {
	s.logger.Info(msg,
		zap.String("encounter_id", enc.ID),
		zap.Int("round", enc.Round),
		zap.String("phase", string(enc.Phase)),
	)
}

func requireOpen(enc *Encounter, op string) error {
	if enc.Status == StatusCompleted {
		return reject(KindPhase, "%s is not allowed: encounter is completed", op)
	}
	return nil
}

// CreateParams are the inputs of CreateEncounter.
type CreateParams struct {
	TeacherID         string
	ClassroomID       string
	ExerciseID        string
	Difficulty        bestiary.Difficulty
	ExpectedHeadcount int
	AverageLevel      int
}

// CreateEncounter builds a battlefield and roster sized for the expected
// headcount and stores a new waiting encounter.
//
// Precondition: identity fields must be non-empty; Difficulty must be known.
// Postcondition: Returns the stored encounter, or a conflict rejection when
// the classroom already has an active encounter.
func (s *Service) CreateEncounter(ctx context.Context, p CreateParams) (*Encounter, error) {
	if p.TeacherID == "" || p.ClassroomID == "" || p.ExerciseID == "" {
		return nil, reject(KindValidation, "teacher, classroom and exercise are required")
	}
	if !p.Difficulty.Valid() {
		return nil, reject(KindValidation, "unknown difficulty %q", p.Difficulty)
	}
	if p.ExpectedHeadcount < 1 {
		p.ExpectedHeadcount = 1
	}
	if p.AverageLevel < 1 {
		p.AverageLevel = 1
	}

	if _, err := s.repo.ActiveForClassroom(ctx, p.ClassroomID); err == nil {
		return nil, reject(KindConflict, "classroom %s already has an active encounter", p.ClassroomID)
	} else if !errors.Is(err, ErrEncounterNotFound) {
		return nil, fmt.Errorf("checking active encounter: %w", err)
	}

	enc := &Encounter{
		ID:                uuid.NewString(),
		TeacherID:         p.TeacherID,
		ClassroomID:       p.ClassroomID,
		ExerciseID:        p.ExerciseID,
		Status:            StatusWaiting,
		Phase:             PhaseWaiting,
		Difficulty:        p.Difficulty,
		ExpectedHeadcount: p.ExpectedHeadcount,
		AverageLevel:      p.AverageLevel,
		Seed:              dice.Seed(s.src),
		CreatedAt:         s.now().UTC(),
	}
	src := roundSource(enc, streamResize)
	w, h := grid.SizeFor(p.ExpectedHeadcount)
	enc.Map = grid.Generate(w, h, src)
	spawns, err := s.bestiary.Compose(enc.Difficulty, p.ExpectedHeadcount, p.AverageLevel, enc.Map, nil, src)
	if err != nil {
		return nil, fmt.Errorf("composing roster: %w", err)
	}
	enc.Monsters = monstersFrom(spawns)

	if err := s.repo.Create(ctx, enc); err != nil {
		if errors.Is(err, ErrActiveEncounterExists) {
			return nil, reject(KindConflict, "classroom %s already has an active encounter", p.ClassroomID)
		}
		return nil, fmt.Errorf("creating encounter: %w", err)
	}
	s.logTransition(enc, "encounter created")
	s.publishState(ctx, enc)
	return enc, nil
}

func monstersFrom(spawns []bestiary.Spawn) []*Monster {
	out := make([]*Monster, len(spawns))
	for i, sp := range spawns {
		out[i] = &Monster{
			ID:           uuid.NewString(),
			Type:         sp.Type,
			Name:         sp.Name,
			Level:        sp.Level,
			HP:           sp.Stats.HP,
			MaxHP:        sp.Stats.HP,
			Attack:       sp.Stats.Attack,
			Defense:      sp.Stats.Defense,
			MagicDefense: sp.Stats.MagicDefense,
			Skills:       sp.Skills,
			Position:     sp.Position,
			Alive:        true,
		}
	}
	return out
}

// RequireTeacher rejects userID unless it created the encounter.
func (s *Service) RequireTeacher(ctx context.Context, encounterID, userID string) error {
	enc, err := s.load(ctx, encounterID)
	if err != nil {
		return err
	}
	if enc.TeacherID != userID {
		return reject(KindAuthorization, "only the teacher who created the encounter may do this")
	}
	return nil
}

// RequireParticipant rejects studentID unless it has joined the encounter.
func (s *Service) RequireParticipant(ctx context.Context, encounterID, studentID string) error {
	enc, err := s.load(ctx, encounterID)
	if err != nil {
		return err
	}
	if _, ok := enc.ParticipantByStudent(studentID); !ok {
		return reject(KindAuthorization, "student %s has not joined this encounter", studentID)
	}
	return nil
}

// Join adds studentID to the encounter with a frozen snapshot and a free
// left-band cell. Joining again returns the existing participant unchanged.
//
// Postcondition: Returns the participant; rejects joins outside the waiting
// and round_end phases.
func (s *Service) Join(ctx context.Context, encounterID, studentID string) (*Participant, error) {
	if studentID == "" {
		return nil, reject(KindValidation, "student id is required")
	}
	var out *Participant
	_, err := s.mutate(ctx, encounterID, true, "join", func(enc *Encounter) (bool, error) {
		if p, ok := enc.ParticipantByStudent(studentID); ok {
			out = p
			return false, nil
		}
		if err := requireOpen(enc, "join"); err != nil {
			return false, err
		}
		if enc.Phase != PhaseWaiting && enc.Phase != PhaseRoundEnd {
			return false, wrongPhase("join", enc.Phase)
		}
		snap, err := s.leveling.SnapshotFor(ctx, studentID)
		if errors.Is(err, progression.ErrStudentNotFound) {
			return false, reject(KindNotFound, "student %s has no character", studentID)
		}
		if err != nil {
			return false, fmt.Errorf("snapshot for %s: %w", studentID, err)
		}
		if err := snap.Validate(); err != nil {
			return false, reject(KindValidation, "invalid snapshot: %v", err)
		}
		cell, ok := spawnCell(enc.Map, enc.occupiedExcept(""))
		if !ok {
			return false, reject(KindValidation, "the battlefield has no free cell")
		}
		p := &Participant{
			ID:          uuid.NewString(),
			EncounterID: enc.ID,
			StudentID:   studentID,
			Snapshot:    *snap,
			HP:          snap.Stats.HP,
			MaxHP:       snap.Stats.HP,
			Mana:        snap.Stats.Mana,
			MaxMana:     snap.Stats.Mana,
			Position:    cell,
			Alive:       true,
			FlagsRound:  enc.Round,
			JoinedAt:    s.now().UTC(),
		}
		enc.Participants = append(enc.Participants, p)
		out = p
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// spawnCell returns the first free cell of the left band, falling back to any
// free walkable cell scanning from the left edge.
func spawnCell(m *grid.Map, occupied grid.Occupied) (grid.Point, bool) {
	for _, p := range m.Cells(grid.BandLeft) {
		if !occupied(p) {
			return p, true
		}
	}
	for x := 0; x < m.Width; x++ {
		for y := 0; y < m.Height; y++ {
			p := grid.Point{X: x, Y: y}
			if m.Walkable(p) && !occupied(p) {
				return p, true
			}
		}
	}
	return grid.Point{}, false
}

// Abandon ends a non-completed encounter without rewards.
func (s *Service) Abandon(ctx context.Context, encounterID string) error {
	_, err := s.mutate(ctx, encounterID, true, "abandon", func(enc *Encounter) (bool, error) {
		if enc.Status == StatusCompleted {
			return false, nil
		}
		ended := s.now().UTC()
		enc.Status = StatusCompleted
		enc.EndedAt = &ended
		s.logTransition(enc, "encounter abandoned")
		return true, nil
	})
	return err
}
