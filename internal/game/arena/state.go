package arena

import (
	"context"

	"go.uber.org/zap"

	"github.com/cory-johannsen/classquest/internal/game/quiz"
)

// Readiness counts how far the current phase has progressed.
type Readiness struct {
	Living    int  `json:"living"`
	Eligible  int  `json:"eligible"`
	Answered  int  `json:"answered"`
	Moved     int  `json:"moved"`
	Submitted int  `json:"submitted"`
	Ready     bool `json:"ready"`
}

// State is the serializable view pushed to the teacher display and students.
type State struct {
	Encounter *Encounter    `json:"encounter"`
	Question  *quiz.Payload `json:"question,omitempty"`
	Outcome   Outcome       `json:"outcome"`
	Readiness Readiness     `json:"readiness"`
}

// Snapshot returns the current state of an encounter.
func (s *Service) Snapshot(ctx context.Context, encounterID string) (*State, error) {
	enc, err := s.load(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	return s.stateOf(ctx, enc), nil
}

func (s *Service) stateOf(ctx context.Context, enc *Encounter) *State {
	st := &State{Encounter: enc, Outcome: Evaluate(enc), Readiness: readinessOf(enc)}
	if enc.QuestionID != "" && !enc.Phase.Terminal() && enc.Status != StatusCompleted {
		q, err := s.questions.Question(ctx, enc.QuestionID)
		if err != nil {
			s.logger.Warn("loading current question", zap.String("encounter_id", enc.ID), zap.Error(err))
		} else {
			p := q.Payload()
			st.Question = &p
		}
	}
	return st
}

func readinessOf(enc *Encounter) Readiness {
	var r Readiness
	for _, p := range enc.Participants {
		if !p.Alive {
			continue
		}
		r.Living++
		current := p.FlagsRound == enc.Round
		if current && p.Answered {
			r.Answered++
		}
		if p.eligible(enc.Round) {
			r.Eligible++
			if p.HasMoved {
				r.Moved++
			}
			if p.ActionSubmitted {
				r.Submitted++
			}
		}
	}
	switch enc.Phase {
	case PhaseQuestion:
		r.Ready = allAnswered(enc)
	case PhaseMove:
		r.Ready = allMoved(enc)
	case PhaseAction:
		r.Ready = allSubmitted(enc)
	}
	return r
}

func (s *Service) publishState(ctx context.Context, enc *Encounter) {
	s.publish(ctx, enc.ID, EnvelopeState, s.stateOf(ctx, enc))
}

// publish fans an envelope out. Delivery failures are logged, never returned:
// the mutation is already committed.
func (s *Service) publish(ctx context.Context, encounterID, typ string, payload any) {
	env, err := NewEnvelope(typ, encounterID, payload)
	if err == nil {
		err = s.publisher.Publish(ctx, encounterID, env)
	}
	if err != nil {
		s.logger.Warn("publishing envelope",
			zap.String("encounter_id", encounterID),
			zap.String("type", typ),
			zap.Error(err),
		)
	}
}
