// Package arena implements the classroom combat encounter: its data model,
// the per-round phase state machine, the resolution engine, and rewards.
package arena

import (
	"time"

	"github.com/cory-johannsen/classquest/internal/game/bestiary"
	"github.com/cory-johannsen/classquest/internal/game/character"
	"github.com/cory-johannsen/classquest/internal/game/grid"
)

// Status is the coarse lifecycle of an encounter.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Phase is one stage of the per-round state machine:
//
//	waiting → question → move → action → execute → round_end → (question | victory | defeat)
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseQuestion Phase = "question"
	PhaseMove     Phase = "move"
	PhaseAction   Phase = "action"
	PhaseExecute  Phase = "execute"
	PhaseRoundEnd Phase = "round_end"
	PhaseVictory  Phase = "victory"
	PhaseDefeat   Phase = "defeat"
)

// Terminal reports whether p ends the encounter.
func (p Phase) Terminal() bool { return p == PhaseVictory || p == PhaseDefeat }

// TargetType distinguishes the two kinds of action targets.
type TargetType string

const (
	TargetMonster     TargetType = "monster"
	TargetParticipant TargetType = "participant"
)

// MonsterMeleeRange is how close a monster must be to strike.
const MonsterMeleeRange = 1

// MonsterStepsPerTurn bounds how far a monster walks before striking.
const MonsterStepsPerTurn = 2

// Encounter is one live combat instance for a classroom and a quiz exercise.
type Encounter struct {
	ID                string              `json:"id"`
	TeacherID         string              `json:"teacher_id"`
	ClassroomID       string              `json:"classroom_id"`
	ExerciseID        string              `json:"exercise_id"`
	Status            Status              `json:"status"`
	Round             int                 `json:"round"`
	Phase             Phase               `json:"phase"`
	Difficulty        bestiary.Difficulty `json:"difficulty"`
	Map               *grid.Map           `json:"map"`
	QuestionID        string              `json:"question_id,omitempty"`
	ExpectedHeadcount int                 `json:"expected_headcount"`
	AverageLevel      int                 `json:"average_level"`
	// Seed drives every random draw after creation so rounds can be replayed.
	Seed    int64 `json:"seed"`
	Version int64 `json:"version"`

	Participants []*Participant `json:"participants"`
	Monsters     []*Monster     `json:"monsters"`

	// LastEvents holds the animations of the last executed round.
	LastEvents []Animation       `json:"last_events,omitempty"`
	Rewards    map[string]Reward `json:"rewards,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Action is a participant's queued choice for the action phase.
type Action struct {
	SkillID    string     `json:"skill_id"`
	TargetID   string     `json:"target_id"`
	TargetType TargetType `json:"target_type"`
}

// Participant is one student's avatar inside an encounter. Snapshot is frozen
// at join time.
type Participant struct {
	ID          string             `json:"id"`
	EncounterID string             `json:"encounter_id"`
	StudentID   string             `json:"student_id"`
	Snapshot    character.Snapshot `json:"snapshot"`
	HP          int                `json:"hp"`
	MaxHP       int                `json:"max_hp"`
	Mana        int                `json:"mana"`
	MaxMana     int                `json:"max_mana"`
	Position    grid.Point         `json:"position"`
	Alive       bool               `json:"alive"`

	// Round-scoped flags, only meaningful while FlagsRound equals the
	// encounter's Round.
	FlagsRound      int     `json:"flags_round"`
	Answered        bool    `json:"answered"`
	AnswerCorrect   bool    `json:"answer_correct"`
	HasMoved        bool    `json:"has_moved"`
	ActionSubmitted bool    `json:"action_submitted"`
	Action          *Action `json:"action,omitempty"`

	JoinedAt time.Time `json:"joined_at"`
}

// resetFlags clears the round-scoped flags for round.
func (p *Participant) resetFlags(round int) {
	p.FlagsRound = round
	p.Answered = false
	p.AnswerCorrect = false
	p.HasMoved = false
	p.ActionSubmitted = false
	p.Action = nil
}

// eligible reports whether p may move and act this round.
func (p *Participant) eligible(round int) bool {
	return p.Alive && p.FlagsRound == round && p.Answered && p.AnswerCorrect
}

// damage lowers HP, clamping at zero and flipping Alive.
func (p *Participant) damage(n int) {
	p.HP = clampHP(p.HP-n, p.MaxHP)
	p.Alive = p.HP > 0
}

// Monster is one hostile unit.
type Monster struct {
	ID           string           `json:"id"`
	Type         string           `json:"type"`
	Name         string           `json:"name"`
	Level        int              `json:"level"`
	HP           int              `json:"hp"`
	MaxHP        int              `json:"max_hp"`
	Attack       int              `json:"attack"`
	Defense      int              `json:"defense"`
	MagicDefense int              `json:"magic_defense"`
	Skills       []bestiary.Skill `json:"skills"`
	Position     grid.Point       `json:"position"`
	Alive        bool             `json:"alive"`
}

func (m *Monster) damage(n int) {
	m.HP = clampHP(m.HP-n, m.MaxHP)
	m.Alive = m.HP > 0
}

func clampHP(hp, max int) int {
	if hp < 0 {
		return 0
	}
	if hp > max {
		return max
	}
	return hp
}

// Participant returns the participant with the given id.
func (e *Encounter) Participant(id string) (*Participant, bool) {
	for _, p := range e.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// ParticipantByStudent returns the participant of studentID.
func (e *Encounter) ParticipantByStudent(studentID string) (*Participant, bool) {
	for _, p := range e.Participants {
		if p.StudentID == studentID {
			return p, true
		}
	}
	return nil, false
}

// Monster returns the monster with the given id.
func (e *Encounter) Monster(id string) (*Monster, bool) {
	for _, m := range e.Monsters {
		if m.ID == id {
			return m, true
		}
	}
	return nil, false
}

// LivingParticipants returns participants with HP > 0, in join order.
func (e *Encounter) LivingParticipants() []*Participant {
	var out []*Participant
	for _, p := range e.Participants {
		if p.Alive {
			out = append(out, p)
		}
	}
	return out
}

// LivingMonsters returns monsters with HP > 0, in roster order.
func (e *Encounter) LivingMonsters() []*Monster {
	var out []*Monster
	for _, m := range e.Monsters {
		if m.Alive {
			out = append(out, m)
		}
	}
	return out
}

// occupiedExcept reports cells held by living entities other than skipID.
func (e *Encounter) occupiedExcept(skipID string) grid.Occupied {
	cells := make(map[grid.Point]bool)
	for _, p := range e.Participants {
		if p.Alive && p.ID != skipID {
			cells[p.Position] = true
		}
	}
	for _, m := range e.Monsters {
		if m.Alive && m.ID != skipID {
			cells[m.Position] = true
		}
	}
	return grid.OccupiedSet(cells)
}
