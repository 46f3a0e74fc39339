package arena

//go:generate mockgen -destination=mock/mock_collaborators.go -package=mockarena -source=collaborators.go

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cory-johannsen/classquest/internal/game/character"
	"github.com/cory-johannsen/classquest/internal/game/progression"
	"github.com/cory-johannsen/classquest/internal/game/quiz"
)

// Leveling is the student progression system encounters read snapshots from
// and grant rewards to.
type Leveling interface {
	SnapshotFor(ctx context.Context, studentID string) (*character.Snapshot, error)
	AddXP(ctx context.Context, studentID string, xp int) (progression.LevelResult, error)
	AddGold(ctx context.Context, studentID string, gold int) error
}

// QuestionSource supplies the quiz items of an exercise.
type QuestionSource interface {
	Eligible(ctx context.Context, exerciseID string) ([]*quiz.Question, error)
	Question(ctx context.Context, id string) (*quiz.Question, error)
}

// Envelope types pushed to observers.
const (
	EnvelopeState    = "state"
	EnvelopeEvents   = "events"
	EnvelopeQuestion = "question"
	EnvelopeResult   = "result"
	EnvelopeError    = "error"
)

// Envelope is one message fanned out to the teacher display and students.
type Envelope struct {
	Type        string          `json:"type"`
	EncounterID string          `json:"encounter_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope encodes payload into an envelope of type typ.
func NewEnvelope(typ, encounterID string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding %s envelope: %w", typ, err)
	}
	return Envelope{Type: typ, EncounterID: encounterID, Payload: data}, nil
}

// Publisher fans envelopes out to every observer of an encounter.
type Publisher interface {
	Publish(ctx context.Context, encounterID string, env Envelope) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, Envelope) error { return nil }
