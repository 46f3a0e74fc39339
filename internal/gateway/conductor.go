package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/classquest/internal/game/arena"
	"github.com/cory-johannsen/classquest/internal/game/quiz"
)

// maxSettleSteps bounds how many phases one settle may walk: question, move,
// action, and the end check.
const maxSettleSteps = 4

// expiryTimeout bounds the work a fired deadline may do.
const expiryTimeout = 10 * time.Second

// Conductor wraps the arena service for the gateway. After every successful
// mutation it advances any phase whose participants are all done, runs the
// end check once a round is resolved, and re-arms the phase deadline.
type Conductor struct {
	svc    *arena.Service
	timers *phaseTimers
	logger *zap.Logger
}

// NewConductor creates a Conductor.
//
// Precondition: svc and logger must be non-nil.
func NewConductor(svc *arena.Service, deadlines Deadlines, logger *zap.Logger) *Conductor {
	return &Conductor{svc: svc, timers: newPhaseTimers(deadlines), logger: logger}
}

// Service returns the wrapped arena service for read-only calls.
func (c *Conductor) Service() *arena.Service { return c.svc }

// Close stops every pending deadline.
func (c *Conductor) Close() { c.timers.stopAll() }

// StartRound starts the next round and arms the question deadline.
func (c *Conductor) StartRound(ctx context.Context, encounterID string) (quiz.Payload, error) {
	p, err := c.svc.StartRound(ctx, encounterID)
	if err != nil {
		return quiz.Payload{}, err
	}
	c.settle(ctx, encounterID)
	return p, nil
}

// Answer submits a student's answer.
func (c *Conductor) Answer(ctx context.Context, encounterID, studentID, answer string) (arena.AnswerResult, error) {
	res, err := c.svc.SubmitAnswer(ctx, encounterID, studentID, answer)
	if err != nil {
		return res, err
	}
	if res.AllAnswered {
		c.settle(ctx, encounterID)
	}
	return res, nil
}

// Move moves a student's avatar.
func (c *Conductor) Move(ctx context.Context, encounterID, studentID string, x, y int) (arena.MoveResult, error) {
	res, err := c.svc.Move(ctx, encounterID, studentID, x, y)
	if err != nil {
		return res, err
	}
	if res.AllMoved {
		c.settle(ctx, encounterID)
	}
	return res, nil
}

// SkipMove keeps a student in place for this round.
func (c *Conductor) SkipMove(ctx context.Context, encounterID, studentID string) (arena.MoveResult, error) {
	res, err := c.svc.SkipMove(ctx, encounterID, studentID)
	if err != nil {
		return res, err
	}
	if res.AllMoved {
		c.settle(ctx, encounterID)
	}
	return res, nil
}

// Action queues a student's action.
func (c *Conductor) Action(ctx context.Context, encounterID, studentID, skillID, targetID string, targetType arena.TargetType) (arena.ActionResult, error) {
	res, err := c.svc.SubmitAction(ctx, encounterID, studentID, skillID, targetID, targetType)
	if err != nil {
		return res, err
	}
	if res.AllSubmitted {
		c.settle(ctx, encounterID)
	}
	return res, nil
}

// Advance force-advances the current phase on the teacher's request.
func (c *Conductor) Advance(ctx context.Context, encounterID string) (arena.Phase, []arena.Animation, error) {
	phase, events, err := c.svc.ForceAdvance(ctx, encounterID)
	if err != nil {
		return "", nil, err
	}
	c.settle(ctx, encounterID)
	return phase, events, nil
}

// Execute resolves the round.
func (c *Conductor) Execute(ctx context.Context, encounterID string, force bool) ([]arena.Animation, error) {
	events, err := c.svc.ExecuteRound(ctx, encounterID, force)
	if err != nil {
		return nil, err
	}
	c.settle(ctx, encounterID)
	return events, nil
}

// CheckEnd evaluates the end condition.
func (c *Conductor) CheckEnd(ctx context.Context, encounterID string) (arena.Outcome, error) {
	out, err := c.svc.CheckEndCondition(ctx, encounterID)
	if err != nil {
		return out, err
	}
	if out != arena.OutcomeNone {
		c.timers.cancel(encounterID)
	}
	return out, nil
}

// Rewards distributes the rewards of a decided encounter.
func (c *Conductor) Rewards(ctx context.Context, encounterID string) (map[string]arena.Reward, error) {
	rewards, err := c.svc.DistributeRewards(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	c.timers.cancel(encounterID)
	return rewards, nil
}

// Abandon ends an encounter without rewards.
func (c *Conductor) Abandon(ctx context.Context, encounterID string) error {
	c.timers.cancel(encounterID)
	return c.svc.Abandon(ctx, encounterID)
}

// settle walks the encounter forward while its current phase is complete and
// then arms the deadline of the phase it stopped in.
func (c *Conductor) settle(ctx context.Context, encounterID string) {
	log := c.logger.With(zap.String("encounter_id", encounterID))
	for step := 0; step < maxSettleSteps; step++ {
		st, err := c.svc.Snapshot(ctx, encounterID)
		if err != nil {
			log.Warn("loading encounter to settle", zap.Error(err))
			return
		}
		enc := st.Encounter
		switch {
		case enc.Status == arena.StatusCompleted || enc.Phase.Terminal():
			c.timers.cancel(encounterID)
			return
		case st.Readiness.Ready:
			log.Debug("phase complete, advancing", zap.String("phase", string(enc.Phase)))
			if _, _, err := c.svc.ExpirePhase(ctx, encounterID, enc.Phase, enc.Round); err != nil {
				log.Warn("auto-advancing", zap.String("phase", string(enc.Phase)), zap.Error(err))
				return
			}
		case enc.Phase == arena.PhaseRoundEnd:
			out, err := c.svc.CheckEndCondition(ctx, encounterID)
			if err != nil {
				log.Warn("checking end condition", zap.Error(err))
				return
			}
			if out == arena.OutcomeNone {
				c.timers.cancel(encounterID)
				return
			}
		default:
			c.arm(encounterID, enc.Phase, enc.Round)
			return
		}
	}
}

func (c *Conductor) arm(encounterID string, phase arena.Phase, round int) {
	c.timers.arm(encounterID, phase, func() {
		ctx, cancel := context.WithTimeout(context.Background(), expiryTimeout)
		defer cancel()
		c.logger.Info("phase deadline reached",
			zap.String("encounter_id", encounterID),
			zap.String("phase", string(phase)),
			zap.Int("round", round),
		)
		if _, _, err := c.svc.ExpirePhase(ctx, encounterID, phase, round); err != nil {
			c.logger.Warn("expiring phase", zap.String("encounter_id", encounterID), zap.Error(err))
			return
		}
		c.settle(ctx, encounterID)
	})
}
