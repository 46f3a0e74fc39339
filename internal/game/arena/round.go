package arena

import (
	"context"
	"errors"
	"fmt"

	"github.com/cory-johannsen/classquest/internal/game/character"
	"github.com/cory-johannsen/classquest/internal/game/grid"
	"github.com/cory-johannsen/classquest/internal/game/quiz"
)

// AnswerResult is returned by SubmitAnswer.
type AnswerResult struct {
	IsCorrect   bool `json:"is_correct"`
	AllAnswered bool `json:"all_answered"`
}

// MoveResult is returned by Move and SkipMove.
type MoveResult struct {
	X        int  `json:"x"`
	Y        int  `json:"y"`
	AllMoved bool `json:"all_moved"`
}

// ActionResult is returned by SubmitAction.
type ActionResult struct {
	AllSubmitted     bool `json:"all_submitted"`
	AlreadySubmitted bool `json:"already_submitted"`
}

// TargetInfo describes one candidate target of a skill.
type TargetInfo struct {
	ID       string     `json:"id"`
	Type     TargetType `json:"type"`
	Name     string     `json:"name"`
	HP       int        `json:"hp"`
	MaxHP    int        `json:"max_hp"`
	Position grid.Point `json:"position"`
	Distance int        `json:"distance"`
}

// Targets groups the candidates of TargetsInRange.
type Targets struct {
	Monsters []TargetInfo `json:"monsters"`
	Allies   []TargetInfo `json:"allies"`
}

// StartRound begins the next round: picks a question, resizes the battlefield
// on the first round, resets every round flag, and enters the question phase.
//
// Precondition: phase is waiting or an undecided round_end; at least one participant joined.
// Postcondition: Returns the question payload without grading data.
func (s *Service) StartRound(ctx context.Context, encounterID string) (quiz.Payload, error) {
	var payload quiz.Payload
	_, err := s.mutate(ctx, encounterID, true, "start_round", func(enc *Encounter) (bool, error) {
		if err := requireOpen(enc, "start round"); err != nil {
			return false, err
		}
		switch enc.Phase {
		case PhaseWaiting:
		case PhaseRoundEnd:
			if Evaluate(enc) != OutcomeNone {
				return false, reject(KindPhase, "start round is not allowed: the outcome is decided")
			}
		default:
			return false, wrongPhase("start round", enc.Phase)
		}
		if len(enc.Participants) == 0 {
			return false, reject(KindValidation, "no participant has joined")
		}

		next := enc.Round + 1
		probe := *enc
		probe.Round = next
		q, err := quiz.Pick(ctx, s.questions, enc.ExerciseID, roundSource(&probe, streamQuestion))
		if errors.Is(err, quiz.ErrNoEligibleQuestions) {
			return false, reject(KindNotFound, "exercise %s has no eligible question", enc.ExerciseID)
		}
		if err != nil {
			return false, err
		}

		if enc.Round == 0 {
			if err := s.resize(enc); err != nil {
				return false, err
			}
		}
		enc.Round = next
		enc.QuestionID = q.ID
		enc.Status = StatusActive
		enc.Phase = PhaseQuestion
		enc.LastEvents = nil
		for _, p := range enc.Participants {
			p.resetFlags(enc.Round)
		}
		payload = q.Payload()
		s.logTransition(enc, "round started")
		return true, nil
	})
	if err != nil {
		return quiz.Payload{}, err
	}
	s.publish(ctx, encounterID, EnvelopeQuestion, payload)
	return payload, nil
}

// resize regenerates the battlefield and roster for the actual participants,
// relocating anyone left outside the new grid, on an obstacle, or on a shared cell.
func (s *Service) resize(enc *Encounter) error {
	n := len(enc.Participants)
	avg := averageLevel(enc.Participants)
	src := roundSource(enc, streamResize)
	w, h := grid.SizeFor(n)
	m := grid.Generate(w, h, src)

	taken := make(map[grid.Point]bool, n)
	var displaced []*Participant
	for _, p := range enc.Participants {
		if m.Walkable(p.Position) && !taken[p.Position] {
			taken[p.Position] = true
			continue
		}
		displaced = append(displaced, p)
	}
	for _, p := range displaced {
		cell, ok := spawnCell(m, grid.OccupiedSet(taken))
		if !ok {
			return reject(KindValidation, "the battlefield has no free cell")
		}
		taken[cell] = true
		p.Position = cell
	}

	spawns, err := s.bestiary.Compose(enc.Difficulty, n, avg, m, grid.OccupiedSet(taken), src)
	if err != nil {
		return fmt.Errorf("recomposing roster: %w", err)
	}
	enc.Map = m
	enc.AverageLevel = avg
	enc.Monsters = monstersFrom(spawns)
	return nil
}

func averageLevel(ps []*Participant) int {
	if len(ps) == 0 {
		return 1
	}
	sum := 0
	for _, p := range ps {
		sum += p.Snapshot.Level
	}
	if avg := sum / len(ps); avg > 1 {
		return avg
	}
	return 1
}

// SubmitAnswer grades studentID's answer to the current question. A second
// submission in the same round returns the first result unchanged.
func (s *Service) SubmitAnswer(ctx context.Context, encounterID, studentID, answer string) (AnswerResult, error) {
	var res AnswerResult
	_, err := s.mutate(ctx, encounterID, true, "answer", func(enc *Encounter) (bool, error) {
		p, ok := enc.ParticipantByStudent(studentID)
		if !ok {
			return false, reject(KindNotFound, "student %s is not in this encounter", studentID)
		}
		if p.FlagsRound == enc.Round && p.Answered && enc.Round > 0 {
			res = AnswerResult{IsCorrect: p.AnswerCorrect, AllAnswered: allAnswered(enc)}
			return false, nil
		}
		if err := requireOpen(enc, "answer"); err != nil {
			return false, err
		}
		if enc.Phase != PhaseQuestion {
			return false, wrongPhase("answer", enc.Phase)
		}
		if !p.Alive {
			return false, reject(KindAuthorization, "fallen participants cannot answer")
		}
		q, err := s.questions.Question(ctx, enc.QuestionID)
		if errors.Is(err, quiz.ErrQuestionNotFound) {
			return false, reject(KindNotFound, "question %s not found", enc.QuestionID)
		}
		if err != nil {
			return false, fmt.Errorf("loading question %s: %w", enc.QuestionID, err)
		}
		correct, err := s.oracle.Grade(ctx, q, answer)
		if err != nil {
			return false, fmt.Errorf("grading answer: %w", err)
		}
		p.FlagsRound = enc.Round
		p.Answered = true
		p.AnswerCorrect = correct
		res = AnswerResult{IsCorrect: correct, AllAnswered: allAnswered(enc)}
		return true, nil
	})
	if err != nil {
		return AnswerResult{}, err
	}
	return res, nil
}

// AdvanceToMove closes the question phase. Without force every living
// participant must have answered. Participants who answered wrong, or not at
// all, sit the round out. Calling it again in the move phase is a no-op.
func (s *Service) AdvanceToMove(ctx context.Context, encounterID string, force bool) error {
	_, err := s.mutate(ctx, encounterID, true, "advance_move", func(enc *Encounter) (bool, error) {
		return s.toMove(enc, force)
	})
	return err
}

func (s *Service) toMove(enc *Encounter, force bool) (bool, error) {
	if enc.Phase == PhaseMove {
		return false, nil
	}
	if err := requireOpen(enc, "advance to move"); err != nil {
		return false, err
	}
	if enc.Phase != PhaseQuestion {
		return false, wrongPhase("advance to move", enc.Phase)
	}
	if !force && !allAnswered(enc) {
		return false, reject(KindPhase, "not every participant has answered")
	}
	for _, p := range enc.Participants {
		if p.FlagsRound != enc.Round {
			p.resetFlags(enc.Round)
		}
		if !p.eligible(enc.Round) {
			p.HasMoved = true
		}
	}
	enc.Phase = PhaseMove
	s.logTransition(enc, "phase advanced")
	return true, nil
}

// ReachableTiles lists the cells participantID may move to this round,
// including its own cell at distance 0.
func (s *Service) ReachableTiles(ctx context.Context, encounterID, participantID string) ([]grid.Step, error) {
	enc, err := s.load(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	p, ok := enc.Participant(participantID)
	if !ok {
		return nil, reject(KindNotFound, "participant %s not found", participantID)
	}
	if !p.Alive {
		return nil, reject(KindAuthorization, "fallen participants cannot move")
	}
	return grid.Reachable(enc.Map, p.Position, p.Snapshot.MoveRange, enc.occupiedExcept(p.ID)), nil
}

// Move walks studentID to (x, y).
//
// Precondition: phase is move; the participant answered correctly and has not moved.
// Postcondition: The target is walkable, unoccupied, and within move range by path.
func (s *Service) Move(ctx context.Context, encounterID, studentID string, x, y int) (MoveResult, error) {
	var res MoveResult
	_, err := s.mutate(ctx, encounterID, true, "move", func(enc *Encounter) (bool, error) {
		p, err := s.mover(enc, studentID, "move")
		if err != nil {
			return false, err
		}
		if p.HasMoved {
			return false, reject(KindPhase, "participant has already moved this round")
		}
		target := grid.Point{X: x, Y: y}
		if !enc.Map.Walkable(target) {
			return false, reject(KindValidation, "cell %s is not walkable", target)
		}
		occupied := enc.occupiedExcept(p.ID)
		if occupied(target) {
			return false, reject(KindValidation, "cell %s is occupied", target)
		}
		if !grid.CanReach(enc.Map, p.Position, target, p.Snapshot.MoveRange, occupied) {
			return false, reject(KindValidation, "cell %s is out of move range", target)
		}
		p.Position = target
		p.HasMoved = true
		res = MoveResult{X: x, Y: y, AllMoved: allMoved(enc)}
		return true, nil
	})
	if err != nil {
		return MoveResult{}, err
	}
	return res, nil
}

// SkipMove marks studentID as moved without changing position. Skipping twice
// is a no-op.
func (s *Service) SkipMove(ctx context.Context, encounterID, studentID string) (MoveResult, error) {
	var res MoveResult
	_, err := s.mutate(ctx, encounterID, true, "skip_move", func(enc *Encounter) (bool, error) {
		p, err := s.mover(enc, studentID, "skip move")
		if err != nil {
			return false, err
		}
		changed := !p.HasMoved
		p.HasMoved = true
		res = MoveResult{X: p.Position.X, Y: p.Position.Y, AllMoved: allMoved(enc)}
		return changed, nil
	})
	if err != nil {
		return MoveResult{}, err
	}
	return res, nil
}

func (s *Service) mover(enc *Encounter, studentID, op string) (*Participant, error) {
	if err := requireOpen(enc, op); err != nil {
		return nil, err
	}
	if enc.Phase != PhaseMove {
		return nil, wrongPhase(op, enc.Phase)
	}
	p, ok := enc.ParticipantByStudent(studentID)
	if !ok {
		return nil, reject(KindNotFound, "student %s is not in this encounter", studentID)
	}
	if !p.eligible(enc.Round) {
		return nil, reject(KindAuthorization, "only participants who answered correctly may move")
	}
	return p, nil
}

// AdvanceToAction closes the move phase. Without force every eligible
// participant must have moved or skipped. Calling it again in the action
// phase is a no-op.
func (s *Service) AdvanceToAction(ctx context.Context, encounterID string, force bool) error {
	_, err := s.mutate(ctx, encounterID, true, "advance_action", func(enc *Encounter) (bool, error) {
		return s.toAction(enc, force)
	})
	return err
}

func (s *Service) toAction(enc *Encounter, force bool) (bool, error) {
	if enc.Phase == PhaseAction {
		return false, nil
	}
	if err := requireOpen(enc, "advance to action"); err != nil {
		return false, err
	}
	if enc.Phase != PhaseMove {
		return false, wrongPhase("advance to action", enc.Phase)
	}
	if !force && !allMoved(enc) {
		return false, reject(KindPhase, "not every eligible participant has moved")
	}
	for _, p := range enc.Participants {
		p.HasMoved = true
	}
	enc.Phase = PhaseAction
	s.logTransition(enc, "phase advanced")
	return true, nil
}

// TargetsInRange lists the living targets skillID can reach from
// participantID's current cell: monsters for attack skills, allies otherwise.
func (s *Service) TargetsInRange(ctx context.Context, encounterID, participantID, skillID string) (Targets, error) {
	enc, err := s.load(ctx, encounterID)
	if err != nil {
		return Targets{}, err
	}
	p, ok := enc.Participant(participantID)
	if !ok {
		return Targets{}, reject(KindNotFound, "participant %s not found", participantID)
	}
	sk, ok := p.Snapshot.Skill(skillID)
	if !ok {
		return Targets{}, reject(KindValidation, "unknown skill %q", skillID)
	}
	out := Targets{Monsters: []TargetInfo{}, Allies: []TargetInfo{}}
	if sk.Kind.TargetsMonsters() {
		for _, m := range enc.LivingMonsters() {
			if d := p.Position.Manhattan(m.Position); d <= sk.Range {
				out.Monsters = append(out.Monsters, TargetInfo{
					ID: m.ID, Type: TargetMonster, Name: m.Name, HP: m.HP, MaxHP: m.MaxHP, Position: m.Position, Distance: d,
				})
			}
		}
		return out, nil
	}
	for _, a := range enc.LivingParticipants() {
		if d := p.Position.Manhattan(a.Position); d <= sk.Range {
			out.Allies = append(out.Allies, TargetInfo{
				ID: a.ID, Type: TargetParticipant, Name: a.StudentID, HP: a.HP, MaxHP: a.MaxHP, Position: a.Position, Distance: d,
			})
		}
	}
	return out, nil
}

// SubmitAction queues studentID's action for resolution. A second submission
// in the same round leaves the first in place and reports AlreadySubmitted.
//
// Precondition: phase is action; the participant answered correctly this round.
// Postcondition: The skill is known, affordable, and the target is a living
// entity of the right kind within range.
func (s *Service) SubmitAction(ctx context.Context, encounterID, studentID, skillID, targetID string, targetType TargetType) (ActionResult, error) {
	var res ActionResult
	_, err := s.mutate(ctx, encounterID, true, "action", func(enc *Encounter) (bool, error) {
		if err := requireOpen(enc, "submit action"); err != nil {
			return false, err
		}
		if enc.Phase != PhaseAction {
			return false, wrongPhase("submit action", enc.Phase)
		}
		p, ok := enc.ParticipantByStudent(studentID)
		if !ok {
			return false, reject(KindNotFound, "student %s is not in this encounter", studentID)
		}
		if !p.eligible(enc.Round) {
			return false, reject(KindAuthorization, "only participants who answered correctly may act")
		}
		if p.ActionSubmitted {
			res = ActionResult{AllSubmitted: allSubmitted(enc), AlreadySubmitted: true}
			return false, nil
		}
		sk, ok := p.Snapshot.Skill(skillID)
		if !ok {
			return false, reject(KindValidation, "unknown skill %q", skillID)
		}
		if sk.Cost > p.Mana {
			return false, reject(KindValidation, "not enough mana for %s (%d < %d)", sk.Name, p.Mana, sk.Cost)
		}
		if err := checkTarget(enc, p, sk, targetID, targetType); err != nil {
			return false, err
		}
		if targetID == "" {
			targetID, targetType = p.ID, TargetParticipant
		}
		p.Action = &Action{SkillID: sk.ID, TargetID: targetID, TargetType: targetType}
		p.ActionSubmitted = true
		res = ActionResult{AllSubmitted: allSubmitted(enc)}
		return true, nil
	})
	if err != nil {
		return ActionResult{}, err
	}
	return res, nil
}

func checkTarget(enc *Encounter, p *Participant, sk character.Skill, targetID string, targetType TargetType) error {
	if sk.Kind.TargetsMonsters() {
		if targetType != TargetMonster {
			return reject(KindValidation, "%s must target a monster", sk.Name)
		}
		m, ok := enc.Monster(targetID)
		if !ok || !m.Alive {
			return reject(KindNotFound, "monster %s not found", targetID)
		}
		if p.Position.Manhattan(m.Position) > sk.Range {
			return reject(KindValidation, "%s is out of range", m.Name)
		}
		return nil
	}
	if targetID == "" || targetID == p.ID {
		return nil
	}
	if targetType != TargetParticipant {
		return reject(KindValidation, "%s must target an ally", sk.Name)
	}
	a, ok := enc.Participant(targetID)
	if !ok || !a.Alive {
		return reject(KindNotFound, "participant %s not found", targetID)
	}
	if p.Position.Manhattan(a.Position) > sk.Range {
		return reject(KindValidation, "%s is out of range", a.StudentID)
	}
	return nil
}

// ExecuteRound resolves the queued actions and monster turns and ends the
// round. Without force every eligible participant must have submitted. In
// round_end it returns the stored animations of the round just resolved.
func (s *Service) ExecuteRound(ctx context.Context, encounterID string, force bool) ([]Animation, error) {
	var events []Animation
	_, err := s.mutate(ctx, encounterID, true, "execute", func(enc *Encounter) (bool, error) {
		changed, err := s.execute(enc, force)
		events = enc.LastEvents
		return changed, err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, encounterID, EnvelopeEvents, events)
	return events, nil
}

func (s *Service) execute(enc *Encounter, force bool) (bool, error) {
	if enc.Phase == PhaseRoundEnd {
		return false, nil
	}
	if err := requireOpen(enc, "execute"); err != nil {
		return false, err
	}
	if enc.Phase != PhaseAction {
		return false, wrongPhase("execute", enc.Phase)
	}
	if !force && !allSubmitted(enc) {
		return false, reject(KindPhase, "not every eligible participant has submitted an action")
	}
	enc.Phase = PhaseExecute
	enc.LastEvents = Resolve(enc, roundSource(enc, streamResolve), s.cfg.ManaRegen)
	enc.Phase = PhaseRoundEnd
	s.logTransition(enc, "round resolved")
	return true, nil
}

// CheckEndCondition evaluates the encounter. In round_end a decided outcome
// moves the phase to victory or defeat.
func (s *Service) CheckEndCondition(ctx context.Context, encounterID string) (Outcome, error) {
	var out Outcome
	_, err := s.mutate(ctx, encounterID, true, "check_end", func(enc *Encounter) (bool, error) {
		out = Evaluate(enc)
		switch {
		case enc.Phase.Terminal():
			return false, nil
		case enc.Phase != PhaseRoundEnd || out == OutcomeNone:
			out = OutcomeNone
			return false, nil
		case out == OutcomeVictory:
			enc.Phase = PhaseVictory
		default:
			enc.Phase = PhaseDefeat
		}
		s.logTransition(enc, "encounter decided")
		return true, nil
	})
	if err != nil {
		return OutcomeNone, err
	}
	return out, nil
}

// ForceAdvance moves the current phase one step forward regardless of
// readiness. From action it resolves the round and returns its animations.
func (s *Service) ForceAdvance(ctx context.Context, encounterID string) (Phase, []Animation, error) {
	return s.forceAdvance(ctx, encounterID, "force_advance", func(*Encounter) bool { return true })
}

// ExpirePhase is ForceAdvance for a deadline armed in phase of round. It does
// nothing once the encounter has left that phase, so a late deadline never
// skips the phase that replaced it.
//
// Postcondition: Returns the current phase and any animations produced.
func (s *Service) ExpirePhase(ctx context.Context, encounterID string, phase Phase, round int) (Phase, []Animation, error) {
	return s.forceAdvance(ctx, encounterID, "expire_phase", func(enc *Encounter) bool {
		return enc.Phase == phase && enc.Round == round
	})
}

func (s *Service) forceAdvance(ctx context.Context, encounterID, op string, applies func(*Encounter) bool) (Phase, []Animation, error) {
	var events []Animation
	enc, err := s.mutate(ctx, encounterID, true, op, func(enc *Encounter) (bool, error) {
		if !applies(enc) {
			return false, nil
		}
		switch enc.Phase {
		case PhaseQuestion:
			return s.toMove(enc, true)
		case PhaseMove:
			return s.toAction(enc, true)
		case PhaseAction:
			changed, err := s.execute(enc, true)
			events = enc.LastEvents
			return changed, err
		default:
			return false, wrongPhase("force advance", enc.Phase)
		}
	})
	if err != nil {
		return "", nil, err
	}
	if events != nil {
		s.publish(ctx, encounterID, EnvelopeEvents, events)
	}
	return enc.Phase, events, nil
}

// DistributeRewards grants the rewards of a decided encounter and completes
// it. Calling it again returns the rewards already granted.
//
// Precondition: phase is victory or defeat.
// Postcondition: Returns rewards keyed by student id; status is completed.
func (s *Service) DistributeRewards(ctx context.Context, encounterID string) (map[string]Reward, error) {
	var out map[string]Reward
	_, err := s.mutate(ctx, encounterID, false, "rewards", func(enc *Encounter) (bool, error) {
		if enc.Status == StatusCompleted {
			if enc.Rewards == nil {
				return false, reject(KindPhase, "encounter ended without rewards")
			}
			out = enc.Rewards
			return false, nil
		}
		if !enc.Phase.Terminal() {
			return false, wrongPhase("distribute rewards", enc.Phase)
		}
		cfg, ok := s.bestiary.Difficulty(enc.Difficulty)
		if !ok {
			return false, fmt.Errorf("difficulty %q is not configured", enc.Difficulty)
		}
		outcome := OutcomeVictory
		if enc.Phase == PhaseDefeat {
			outcome = OutcomeDefeat
		}
		rewards := ComputeRewards(enc, cfg, outcome, s.cfg.Rewards)
		for _, p := range enc.Participants {
			r := rewards[p.StudentID]
			lvl, err := s.leveling.AddXP(ctx, p.StudentID, r.XP)
			if err != nil {
				return false, fmt.Errorf("granting xp to %s: %w", p.StudentID, err)
			}
			if r.Gold > 0 {
				if err := s.leveling.AddGold(ctx, p.StudentID, r.Gold); err != nil {
					return false, fmt.Errorf("granting gold to %s: %w", p.StudentID, err)
				}
			}
			r.LeveledUp, r.NewLevel = lvl.LeveledUp, lvl.Level
			rewards[p.StudentID] = r
		}
		ended := s.now().UTC()
		enc.Rewards = rewards
		enc.Status = StatusCompleted
		enc.EndedAt = &ended
		out = rewards
		s.logTransition(enc, "rewards distributed")
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func allAnswered(enc *Encounter) bool {
	for _, p := range enc.Participants {
		if p.Alive && !(p.FlagsRound == enc.Round && p.Answered) {
			return false
		}
	}
	return true
}

func allMoved(enc *Encounter) bool {
	for _, p := range enc.Participants {
		if p.eligible(enc.Round) && !p.HasMoved {
			return false
		}
	}
	return true
}

func allSubmitted(enc *Encounter) bool {
	for _, p := range enc.Participants {
		if p.eligible(enc.Round) && !p.ActionSubmitted {
			return false
		}
	}
	return true
}
