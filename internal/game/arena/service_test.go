package arena_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/cory-johannsen/classquest/internal/game/arena"
	mockarena "github.com/cory-johannsen/classquest/internal/game/arena/mock"
	"github.com/cory-johannsen/classquest/internal/game/bestiary"
	"github.com/cory-johannsen/classquest/internal/game/character"
	"github.com/cory-johannsen/classquest/internal/game/dice"
	"github.com/cory-johannsen/classquest/internal/game/grid"
	"github.com/cory-johannsen/classquest/internal/game/progression"
	"github.com/cory-johannsen/classquest/internal/game/quiz"
	mockquiz "github.com/cory-johannsen/classquest/internal/game/quiz/mock"
	"github.com/cory-johannsen/classquest/internal/scripting"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type harness struct {
	svc  *arena.Service
	repo arena.Repository
	mem  *arena.MemoryRepository
	lvl  *progression.Service
	cfg  arena.ServiceConfig
}

type option func(*arena.ServiceConfig)

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	cat, err := character.DefaultCatalog()
	require.NoError(t, err)
	b, err := bestiary.Default()
	require.NoError(t, err)

	mem := arena.NewMemoryRepository()
	lvl := progression.NewService(progression.NewMemoryStore(), cat)
	cfg := arena.ServiceConfig{
		Config:     arena.DefaultConfig(),
		Repository: mem,
		Bestiary:   b,
		Questions: quiz.NewMemoryBank(
			&quiz.Question{ID: "q1", ExerciseID: "ex1", Prompt: "2 + 2 ?", Kind: quiz.KindNumber, Answer: "4"},
		),
		Oracle:   quiz.NewGrader(scripting.NewChecker(10000, zap.NewNop())),
		Leveling: lvl,
		Source:   dice.NewSeededSource(42),
		Now:      func() time.Time { return epoch },
		Logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	svc, err := arena.NewService(cfg)
	require.NoError(t, err)
	return &harness{svc: svc, repo: cfg.Repository, mem: mem, lvl: lvl, cfg: cfg}
}

func (h *harness) create(t *testing.T, headcount int) *arena.Encounter {
	t.Helper()
	enc, err := h.svc.CreateEncounter(context.Background(), arena.CreateParams{
		TeacherID:         "prof",
		ClassroomID:       "6B",
		ExerciseID:        "ex1",
		Difficulty:        bestiary.Easy,
		ExpectedHeadcount: headcount,
		AverageLevel:      1,
	})
	require.NoError(t, err)
	return enc
}

// join enrolls each student as a warrior and joins them, returning their
// participant ids in order.
func (h *harness) join(t *testing.T, encID string, students ...string) []string {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, len(students))
	for i, s := range students {
		_, err := h.lvl.Enroll(ctx, s, "guerrier")
		require.NoError(t, err)
		p, err := h.svc.Join(ctx, encID, s)
		require.NoError(t, err)
		ids[i] = p.ID
	}
	return ids
}

func (h *harness) state(t *testing.T, encID string) *arena.Encounter {
	t.Helper()
	st, err := h.svc.Snapshot(context.Background(), encID)
	require.NoError(t, err)
	return st.Encounter
}

func totalHP(enc *arena.Encounter) int {
	sum := 0
	for _, p := range enc.Participants {
		sum += p.HP
	}
	for _, m := range enc.Monsters {
		sum += m.HP
	}
	return sum
}

func requireRejection(t *testing.T, err error, kind arena.RejectionKind) {
	t.Helper()
	require.Error(t, err)
	r, ok := arena.AsRejection(err)
	require.True(t, ok, "expected a rejection, got %v", err)
	assert.Equal(t, kind, r.Kind, r.Message)
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := arena.NewService(arena.ServiceConfig{Logger: zap.NewNop()})
	assert.Error(t, err)
}

func TestCreateEncounter_SizedForEstimate(t *testing.T) {
	h := newHarness(t)
	enc := h.create(t, 3)

	w, hh := grid.SizeFor(3)
	assert.Equal(t, w, enc.Map.Width)
	assert.Equal(t, hh, enc.Map.Height)
	assert.Len(t, enc.Monsters, bestiary.RosterSize(3, 1))
	assert.Equal(t, arena.StatusWaiting, enc.Status)
	assert.Equal(t, arena.PhaseWaiting, enc.Phase)
	assert.Equal(t, int64(1), enc.Version)
	assert.Equal(t, epoch, enc.CreatedAt)
}

func TestCreateEncounter_Validation(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.CreateEncounter(context.Background(), arena.CreateParams{TeacherID: "prof", ClassroomID: "6B", ExerciseID: "ex1", Difficulty: "nightmare"})
	requireRejection(t, err, arena.KindValidation)

	_, err = h.svc.CreateEncounter(context.Background(), arena.CreateParams{ClassroomID: "6B", ExerciseID: "ex1", Difficulty: bestiary.Easy})
	requireRejection(t, err, arena.KindValidation)
}

func TestCreateEncounter_OneActivePerClassroom(t *testing.T) {
	h := newHarness(t)
	first := h.create(t, 2)

	_, err := h.svc.CreateEncounter(context.Background(), arena.CreateParams{
		TeacherID: "prof", ClassroomID: "6B", ExerciseID: "ex1", Difficulty: bestiary.Hard, ExpectedHeadcount: 2,
	})
	requireRejection(t, err, arena.KindConflict)

	require.NoError(t, h.svc.Abandon(context.Background(), first.ID))
	h.create(t, 2)
}

func TestRequireTeacher(t *testing.T) {
	h := newHarness(t)
	enc := h.create(t, 1)
	assert.NoError(t, h.svc.RequireTeacher(context.Background(), enc.ID, "prof"))
	requireRejection(t, h.svc.RequireTeacher(context.Background(), enc.ID, "alice"), arena.KindAuthorization)
	requireRejection(t, h.svc.RequireTeacher(context.Background(), "missing", "prof"), arena.KindNotFound)
}

func TestRequireParticipant(t *testing.T) {
	h := newHarness(t)
	enc := h.create(t, 1)
	h.join(t, enc.ID, "alice")
	ctx := context.Background()
	assert.NoError(t, h.svc.RequireParticipant(ctx, enc.ID, "alice"))
	requireRejection(t, h.svc.RequireParticipant(ctx, enc.ID, "bob"), arena.KindAuthorization)
	requireRejection(t, h.svc.RequireParticipant(ctx, "missing", "alice"), arena.KindNotFound)
}

func TestJoin_Idempotent(t *testing.T) {
	h := newHarness(t)
	enc := h.create(t, 2)
	ids := h.join(t, enc.ID, "alice")

	again, err := h.svc.Join(context.Background(), enc.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, ids[0], again.ID)

	got := h.state(t, enc.ID)
	require.Len(t, got.Participants, 1)
	p := got.Participants[0]
	assert.Equal(t, grid.BandLeft, got.Map.BandOf(p.Position.X))
	assert.Equal(t, 120, p.HP)
	assert.Equal(t, 30, p.Mana)
	assert.True(t, p.Alive)
}

func TestJoin_UnknownStudent(t *testing.T) {
	ctrl := gomock.NewController(t)
	lv := mockarena.NewMockLeveling(ctrl)
	lv.EXPECT().SnapshotFor(gomock.Any(), "ghost").Return(nil, progression.ErrStudentNotFound)

	h := newHarness(t, func(c *arena.ServiceConfig) { c.Leveling = lv })
	enc := h.create(t, 1)
	_, err := h.svc.Join(context.Background(), enc.ID, "ghost")
	requireRejection(t, err, arena.KindNotFound)
	assert.Empty(t, h.state(t, enc.ID).Participants)
}

func TestJoin_DistinctCells(t *testing.T) {
	h := newHarness(t)
	enc := h.create(t, 6)
	h.join(t, enc.ID, "s1", "s2", "s3", "s4", "s5", "s6")

	got := h.state(t, enc.ID)
	seen := make(map[grid.Point]bool)
	for _, p := range got.Participants {
		assert.True(t, got.Map.Walkable(p.Position))
		assert.False(t, seen[p.Position], "shared cell %s", p.Position)
		seen[p.Position] = true
	}
	for _, m := range got.Monsters {
		assert.False(t, seen[m.Position], "monster on participant cell %s", m.Position)
		seen[m.Position] = true
	}
}

// Scenario: the teacher expected three students but only two joined.
func TestStartRound_ResizesToActualHeadcount(t *testing.T) {
	h := newHarness(t)
	enc := h.create(t, 3)
	require.Len(t, enc.Monsters, 4)
	h.join(t, enc.ID, "alice", "bob")

	payload, err := h.svc.StartRound(context.Background(), enc.ID)
	require.NoError(t, err)
	assert.Equal(t, "q1", payload.ID)
	assert.Equal(t, quiz.KindNumber, payload.Kind)

	got := h.state(t, enc.ID)
	w, hh := grid.SizeFor(2)
	assert.Equal(t, w, got.Map.Width)
	assert.Equal(t, hh, got.Map.Height)
	assert.Len(t, got.Monsters, bestiary.RosterSize(2, 1))
	assert.Equal(t, 1, got.Round)
	assert.Equal(t, arena.StatusActive, got.Status)
	assert.Equal(t, arena.PhaseQuestion, got.Phase)

	seen := make(map[grid.Point]bool)
	for _, p := range got.Participants {
		assert.True(t, got.Map.Walkable(p.Position))
		assert.False(t, seen[p.Position])
		seen[p.Position] = true
	}
	for _, m := range got.Monsters {
		assert.True(t, got.Map.Walkable(m.Position))
		assert.False(t, seen[m.Position])
		seen[m.Position] = true
	}
}

const slimeTiers = `
presets:
  - type: slime
    name: Slime
    base: {hp: 30, attack: 6, defense: 1, magic_defense: 0}
    growth: {hp: 6, attack: 1, defense: 0, magic_defense: 1}
    skills:
      - {id: ecrasement, name: Écrasement, kind: physical, target: single, damage: 8}
difficulties:
  - {id: easy, level_offset: 0, xp_multiplier: 1.0, gold_multiplier: 1.0, pool: [{type: slime, weight: 1, level_offset: -1}]}
  - {id: medium, level_offset: 0, xp_multiplier: 1.25, gold_multiplier: 1.25, pool: [{type: slime, weight: 1}]}
  - {id: hard, level_offset: 1, xp_multiplier: 1.5, gold_multiplier: 1.5, pool: [{type: slime, weight: 1}]}
  - {id: boss, level_offset: 0, xp_multiplier: 2.0, gold_multiplier: 2.0, pool: [{type: slime, weight: 1, level_offset: 2}]}
`

// Scenario: the teacher expected three students, one joined; the easy roster
// shrinks to two level-1 slimes at 30 HP.
func TestStartRound_SingleStudentOfThreeExpected(t *testing.T) {
	b, err := bestiary.Load([]byte(slimeTiers))
	require.NoError(t, err)
	h := newHarness(t, func(c *arena.ServiceConfig) { c.Bestiary = b })
	enc := h.create(t, 3)
	require.Len(t, enc.Monsters, bestiary.RosterSize(3, 1))
	h.join(t, enc.ID, "alice")

	_, err = h.svc.StartRound(context.Background(), enc.ID)
	require.NoError(t, err)

	got := h.state(t, enc.ID)
	require.Equal(t, 2, bestiary.RosterSize(1, 1))
	require.Len(t, got.Monsters, 2)
	names := make([]string, 0, len(got.Monsters))
	for _, m := range got.Monsters {
		assert.Equal(t, "slime", m.Type)
		assert.Equal(t, 1, m.Level, "avg 1 with a -1 offset is floored at 1")
		assert.Equal(t, 30, m.HP)
		assert.Equal(t, 30, m.MaxHP)
		assert.True(t, m.Alive)
		names = append(names, m.Name)
	}
	assert.ElementsMatch(t, []string{"Slime 1", "Slime 2"}, names)

	w, hh := grid.SizeFor(1)
	assert.Equal(t, w, got.Map.Width)
	assert.Equal(t, hh, got.Map.Height)
	require.Len(t, got.Participants, 1)
	assert.True(t, got.Map.Walkable(got.Participants[0].Position))
}

func TestStartRound_NoQuestions(t *testing.T) {
	h := newHarness(t, func(c *arena.ServiceConfig) { c.Questions = quiz.NewMemoryBank() })
	enc := h.create(t, 1)
	h.join(t, enc.ID, "alice")

	_, err := h.svc.StartRound(context.Background(), enc.ID)
	requireRejection(t, err, arena.KindNotFound)

	got := h.state(t, enc.ID)
	assert.Equal(t, arena.PhaseWaiting, got.Phase)
	assert.Equal(t, 0, got.Round)
}

func TestStartRound_NeedsParticipants(t *testing.T) {
	h := newHarness(t)
	enc := h.create(t, 1)
	_, err := h.svc.StartRound(context.Background(), enc.ID)
	requireRejection(t, err, arena.KindValidation)
}

func TestStartRound_WrongPhase(t *testing.T) {
	h := newHarness(t)
	enc := h.create(t, 1)
	h.join(t, enc.ID, "alice")
	_, err := h.svc.StartRound(context.Background(), enc.ID)
	require.NoError(t, err)

	before := h.state(t, enc.ID)
	_, err = h.svc.StartRound(context.Background(), enc.ID)
	requireRejection(t, err, arena.KindPhase)
	assert.Equal(t, before.Version, h.state(t, enc.ID).Version)
}

func TestSubmitAnswer_ResubmissionReturnsFirstResult(t *testing.T) {
	h := newHarness(t)
	enc := h.create(t, 2)
	h.join(t, enc.ID, "alice", "bob")
	_, err := h.svc.StartRound(context.Background(), enc.ID)
	require.NoError(t, err)

	res, err := h.svc.SubmitAnswer(context.Background(), enc.ID, "alice", "4")
	require.NoError(t, err)
	assert.Equal(t, arena.AnswerResult{IsCorrect: true, AllAnswered: false}, res)

	again, err := h.svc.SubmitAnswer(context.Background(), enc.ID, "alice", "5")
	require.NoError(t, err)
	assert.True(t, again.IsCorrect)

	res, err = h.svc.SubmitAnswer(context.Background(), enc.ID, "bob", "4,0")
	require.NoError(t, err)
	assert.True(t, res.AllAnswered)
}

func TestSubmitAnswer_Rejections(t *testing.T) {
	h := newHarness(t)
	enc := h.create(t, 1)
	h.join(t, enc.ID, "alice")

	_, err := h.svc.SubmitAnswer(context.Background(), enc.ID, "alice", "4")
	requireRejection(t, err, arena.KindPhase)

	_, err = h.svc.StartRound(context.Background(), enc.ID)
	require.NoError(t, err)
	_, err = h.svc.SubmitAnswer(context.Background(), enc.ID, "mallory", "4")
	requireRejection(t, err, arena.KindNotFound)
}

func TestSubmitAnswer_OracleFailureDoesNotRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	oracle := mockquiz.NewMockOracle(ctrl)
	oracle.EXPECT().Grade(gomock.Any(), gomock.Any(), "4").Return(false, errors.New("sandbox exploded"))

	h := newHarness(t, func(c *arena.ServiceConfig) { c.Oracle = oracle })
	enc := h.create(t, 1)
	h.join(t, enc.ID, "alice")
	_, err := h.svc.StartRound(context.Background(), enc.ID)
	require.NoError(t, err)

	_, err = h.svc.SubmitAnswer(context.Background(), enc.ID, "alice", "4")
	require.Error(t, err)
	_, isRejection := arena.AsRejection(err)
	assert.False(t, isRejection)
	assert.False(t, h.state(t, enc.ID).Participants[0].Answered)
}

func TestSubmitAnswer_Concurrent(t *testing.T) {
	h := newHarness(t)
	enc := h.create(t, 8)
	students := make([]string, 8)
	for i := range students {
		students[i] = fmt.Sprintf("s%d", i)
	}
	h.join(t, enc.ID, students...)
	_, err := h.svc.StartRound(context.Background(), enc.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, len(students))
	for i, s := range students {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.svc.SubmitAnswer(context.Background(), enc.ID, s, "4")
		}()
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}

	st, err := h.svc.Snapshot(context.Background(), enc.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, st.Readiness.Answered)
	assert.True(t, st.Readiness.Ready)
}

// Scenario: a wrong answer sits the round out.
func TestRound_IncorrectAnswerExcluded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	enc := h.create(t, 2)
	h.join(t, enc.ID, "alice", "bob")
	_, err := h.svc.StartRound(ctx, enc.ID)
	require.NoError(t, err)

	_, err = h.svc.SubmitAnswer(ctx, enc.ID, "alice", "4")
	require.NoError(t, err)
	requireRejection(t, h.svc.AdvanceToMove(ctx, enc.ID, false), arena.KindPhase)

	res, err := h.svc.SubmitAnswer(ctx, enc.ID, "bob", "5")
	require.NoError(t, err)
	assert.False(t, res.IsCorrect)
	assert.True(t, res.AllAnswered)

	require.NoError(t, h.svc.AdvanceToMove(ctx, enc.ID, false))
	require.NoError(t, h.svc.AdvanceToMove(ctx, enc.ID, false), "advance is idempotent")

	got := h.state(t, enc.ID)
	bob, _ := got.ParticipantByStudent("bob")
	alice, _ := got.ParticipantByStudent("alice")
	assert.True(t, bob.HasMoved)
	assert.False(t, alice.HasMoved)

	_, err = h.svc.Move(ctx, enc.ID, "bob", bob.Position.X, bob.Position.Y+1)
	requireRejection(t, err, arena.KindAuthorization)
	_, err = h.svc.SkipMove(ctx, enc.ID, "bob")
	requireRejection(t, err, arena.KindAuthorization)

	requireRejection(t, h.svc.AdvanceToAction(ctx, enc.ID, false), arena.KindPhase)
	mv, err := h.svc.SkipMove(ctx, enc.ID, "alice")
	require.NoError(t, err)
	assert.True(t, mv.AllMoved)
	assert.Equal(t, alice.Position, grid.Point{X: mv.X, Y: mv.Y})

	require.NoError(t, h.svc.AdvanceToAction(ctx, enc.ID, false))
	_, err = h.svc.SubmitAction(ctx, enc.ID, "bob", "bouclier", "", "")
	requireRejection(t, err, arena.KindAuthorization)

	act, err := h.svc.SubmitAction(ctx, enc.ID, "alice", "bouclier", "", "")
	require.NoError(t, err)
	assert.True(t, act.AllSubmitted)
}

func TestMove_Validity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	enc := h.create(t, 2)
	ids := h.join(t, enc.ID, "alice", "bob")
	_, err := h.svc.StartRound(ctx, enc.ID)
	require.NoError(t, err)
	for _, s := range []string{"alice", "bob"} {
		_, err := h.svc.SubmitAnswer(ctx, enc.ID, s, "4")
		require.NoError(t, err)
	}
	require.NoError(t, h.svc.AdvanceToMove(ctx, enc.ID, false))

	got := h.state(t, enc.ID)
	alice, _ := got.Participant(ids[0])
	bob, _ := got.Participant(ids[1])

	tiles, err := h.svc.ReachableTiles(ctx, enc.ID, alice.ID)
	require.NoError(t, err)
	require.NotEmpty(t, tiles)
	assert.Equal(t, grid.Step{X: alice.Position.X, Y: alice.Position.Y, Distance: 0}, tiles[0])
	occupied := map[grid.Point]bool{bob.Position: true}
	for _, m := range got.Monsters {
		occupied[m.Position] = true
	}
	for _, s := range tiles {
		assert.LessOrEqual(t, s.Distance, alice.Snapshot.MoveRange)
		assert.True(t, got.Map.Walkable(s.Point()))
		assert.False(t, occupied[s.Point()])
	}

	for _, o := range got.Map.Obstacles {
		_, err = h.svc.Move(ctx, enc.ID, "alice", o.X, o.Y)
		requireRejection(t, err, arena.KindValidation)
		break
	}
	_, err = h.svc.Move(ctx, enc.ID, "alice", bob.Position.X, bob.Position.Y)
	requireRejection(t, err, arena.KindValidation)
	_, err = h.svc.Move(ctx, enc.ID, "alice", -1, 0)
	requireRejection(t, err, arena.KindValidation)

	far := grid.Point{X: -1}
	for x := got.Map.Width - 1; x >= 0 && far.X < 0; x-- {
		for y := 0; y < got.Map.Height; y++ {
			p := grid.Point{X: x, Y: y}
			if got.Map.Walkable(p) && !occupied[p] && p.Manhattan(alice.Position) > alice.Snapshot.MoveRange {
				far = p
				break
			}
		}
	}
	require.GreaterOrEqual(t, far.X, 0)
	_, err = h.svc.Move(ctx, enc.ID, "alice", far.X, far.Y)
	requireRejection(t, err, arena.KindValidation)

	var dest grid.Step
	for _, s := range tiles {
		if s.Distance > 0 {
			dest = s
			break
		}
	}
	require.Positive(t, dest.Distance)
	res, err := h.svc.Move(ctx, enc.ID, "alice", dest.X, dest.Y)
	require.NoError(t, err)
	assert.Equal(t, arena.MoveResult{X: dest.X, Y: dest.Y, AllMoved: false}, res)

	_, err = h.svc.Move(ctx, enc.ID, "alice", alice.Position.X, alice.Position.Y)
	requireRejection(t, err, arena.KindPhase)

	moved, _ := h.state(t, enc.ID).Participant(alice.ID)
	assert.Equal(t, dest.Point(), moved.Position)
}

func TestSubmitAction_Validation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	enc := h.create(t, 1)
	ids := h.join(t, enc.ID, "alice")
	_, err := h.svc.StartRound(ctx, enc.ID)
	require.NoError(t, err)
	_, err = h.svc.SubmitAnswer(ctx, enc.ID, "alice", "4")
	require.NoError(t, err)

	_, err = h.svc.SubmitAction(ctx, enc.ID, "alice", "coup_epee", "", arena.TargetMonster)
	requireRejection(t, err, arena.KindPhase)

	_, _, err = h.svc.ForceAdvance(ctx, enc.ID)
	require.NoError(t, err)
	phase, _, err := h.svc.ForceAdvance(ctx, enc.ID)
	require.NoError(t, err)
	require.Equal(t, arena.PhaseAction, phase)

	got := h.state(t, enc.ID)
	alice, _ := got.Participant(ids[0])

	_, err = h.svc.SubmitAction(ctx, enc.ID, "alice", "fireball", "", "")
	requireRejection(t, err, arena.KindValidation)
	_, err = h.svc.SubmitAction(ctx, enc.ID, "alice", "coup_epee", "nope", arena.TargetMonster)
	requireRejection(t, err, arena.KindNotFound)
	_, err = h.svc.SubmitAction(ctx, enc.ID, "alice", "coup_epee", got.Monsters[0].ID, arena.TargetParticipant)
	requireRejection(t, err, arena.KindValidation)

	targets, err := h.svc.TargetsInRange(ctx, enc.ID, alice.ID, "coup_epee")
	require.NoError(t, err)
	inRange := make(map[string]bool)
	for _, m := range targets.Monsters {
		inRange[m.ID] = true
		assert.LessOrEqual(t, m.Distance, 1)
	}
	for _, m := range got.Monsters {
		if !inRange[m.ID] {
			_, err = h.svc.SubmitAction(ctx, enc.ID, "alice", "coup_epee", m.ID, arena.TargetMonster)
			requireRejection(t, err, arena.KindValidation)
			break
		}
	}

	allies, err := h.svc.TargetsInRange(ctx, enc.ID, alice.ID, "bouclier")
	require.NoError(t, err)
	require.Len(t, allies.Allies, 1)
	assert.Equal(t, alice.ID, allies.Allies[0].ID)

	res, err := h.svc.SubmitAction(ctx, enc.ID, "alice", "bouclier", "", "")
	require.NoError(t, err)
	assert.Equal(t, arena.ActionResult{AllSubmitted: true}, res)
	res, err = h.svc.SubmitAction(ctx, enc.ID, "alice", "coup_epee", got.Monsters[0].ID, arena.TargetMonster)
	require.NoError(t, err)
	assert.Equal(t, arena.ActionResult{AllSubmitted: true, AlreadySubmitted: true}, res)

	stored, _ := h.state(t, enc.ID).Participant(alice.ID)
	require.NotNil(t, stored.Action)
	assert.Equal(t, "bouclier", stored.Action.SkillID)
	assert.Equal(t, alice.ID, stored.Action.TargetID)
}

func TestRound_OnlyExecuteChangesHP(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	enc := h.create(t, 2)
	h.join(t, enc.ID, "alice", "bob")
	_, err := h.svc.StartRound(ctx, enc.ID)
	require.NoError(t, err)
	hp := totalHP(h.state(t, enc.ID))

	steps := []func() error{
		func() error { _, err := h.svc.SubmitAnswer(ctx, enc.ID, "alice", "4"); return err },
		func() error { _, err := h.svc.SubmitAnswer(ctx, enc.ID, "bob", "4"); return err },
		func() error { return h.svc.AdvanceToMove(ctx, enc.ID, false) },
		func() error { _, err := h.svc.SkipMove(ctx, enc.ID, "alice"); return err },
		func() error { _, err := h.svc.SkipMove(ctx, enc.ID, "bob"); return err },
		func() error { return h.svc.AdvanceToAction(ctx, enc.ID, false) },
		func() error { _, err := h.svc.SubmitAction(ctx, enc.ID, "alice", "bouclier", "", ""); return err },
	}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		assert.Equal(t, hp, totalHP(h.state(t, enc.ID)), "step %d", i)
	}

	_, err = h.svc.ExecuteRound(ctx, enc.ID, false)
	requireRejection(t, err, arena.KindPhase)

	events, err := h.svc.ExecuteRound(ctx, enc.ID, true)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, arena.AnimDefense, events[0].Kind)

	replay, err := h.svc.ExecuteRound(ctx, enc.ID, true)
	require.NoError(t, err)
	assert.Equal(t, events, replay)

	got := h.state(t, enc.ID)
	assert.Equal(t, arena.PhaseRoundEnd, got.Phase)
	assert.Equal(t, events, got.LastEvents)
}

func TestForceAdvance_WalksPhases(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	enc := h.create(t, 1)
	h.join(t, enc.ID, "alice")

	_, _, err := h.svc.ForceAdvance(ctx, enc.ID)
	requireRejection(t, err, arena.KindPhase)

	_, err = h.svc.StartRound(ctx, enc.ID)
	require.NoError(t, err)

	phase, events, err := h.svc.ForceAdvance(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, arena.PhaseMove, phase)
	assert.Nil(t, events)
	alice := h.state(t, enc.ID).Participants[0]
	assert.True(t, alice.HasMoved, "unanswered participants sit the round out")

	phase, _, err = h.svc.ForceAdvance(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, arena.PhaseAction, phase)

	phase, _, err = h.svc.ForceAdvance(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, arena.PhaseRoundEnd, phase)

	outcome, err := h.svc.CheckEndCondition(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, arena.OutcomeNone, outcome)

	_, err = h.svc.StartRound(ctx, enc.ID)
	require.NoError(t, err)
	got := h.state(t, enc.ID)
	assert.Equal(t, 2, got.Round)
	assert.False(t, got.Participants[0].HasMoved)
	assert.Equal(t, 2, got.Participants[0].FlagsRound)
}

func TestExpirePhase_IgnoresStaleDeadline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	enc := h.create(t, 1)
	h.join(t, enc.ID, "alice")
	_, err := h.svc.StartRound(ctx, enc.ID)
	require.NoError(t, err)

	phase, _, err := h.svc.ExpirePhase(ctx, enc.ID, arena.PhaseQuestion, 1)
	require.NoError(t, err)
	assert.Equal(t, arena.PhaseMove, phase)

	phase, _, err = h.svc.ExpirePhase(ctx, enc.ID, arena.PhaseQuestion, 1)
	require.NoError(t, err)
	assert.Equal(t, arena.PhaseMove, phase, "a question deadline must not end the move phase")

	phase, _, err = h.svc.ExpirePhase(ctx, enc.ID, arena.PhaseMove, 2)
	require.NoError(t, err)
	assert.Equal(t, arena.PhaseMove, phase)
	assert.Equal(t, int64(4), h.state(t, enc.ID).Version, "stale deadlines write nothing")
}

const frailBestiary = `
presets:
  - type: blob
    name: Blob
    base: {hp: 1, attack: 1, defense: 0, magic_defense: 0}
    growth: {hp: 0, attack: 0, defense: 0, magic_defense: 0}
    skills:
      - {id: poke, name: Poke, kind: physical, target: single, damage: 1}
difficulties:
  - {id: easy, level_offset: 0, xp_multiplier: 1.0, gold_multiplier: 1.0, pool: [{type: blob, weight: 1}]}
  - {id: medium, level_offset: 0, xp_multiplier: 1.0, gold_multiplier: 1.0, pool: [{type: blob, weight: 1}]}
  - {id: hard, level_offset: 0, xp_multiplier: 1.0, gold_multiplier: 1.0, pool: [{type: blob, weight: 1}]}
  - {id: boss, level_offset: 0, xp_multiplier: 1.0, gold_multiplier: 1.0, pool: [{type: blob, weight: 1}]}
`

const volleyClasses = `
classes:
  - id: arbaletrier
    name: Arbalétrier
    move_range: 2
    base: {hp: 90, mana: 20, force: 10, intelligence: 6, defense: 4, magic_defense: 4}
    growth: {hp: 8, mana: 2, force: 2, intelligence: 1, defense: 1, magic_defense: 1}
    skills:
      - {id: salve, name: Salve, kind: attack, cost: 0, damage: 5, range: 30, radius: 30}
`

// Scenario: every monster falls during the player-action pass; rewards are
// granted once and the encounter accepts no further transitions.
func TestEncounter_VictoryRewardsAndCompletion(t *testing.T) {
	ctx := context.Background()
	b, err := bestiary.Load([]byte(frailBestiary))
	require.NoError(t, err)
	cat, err := character.LoadCatalog([]byte(volleyClasses))
	require.NoError(t, err)
	lvl := progression.NewService(progression.NewMemoryStore(), cat)
	h := newHarness(t, func(c *arena.ServiceConfig) {
		c.Bestiary = b
		c.Leveling = lvl
	})

	enc := h.create(t, 1)
	_, err = lvl.Enroll(ctx, "alice", "arbaletrier")
	require.NoError(t, err)
	alice, err := h.svc.Join(ctx, enc.ID, "alice")
	require.NoError(t, err)

	_, err = h.svc.StartRound(ctx, enc.ID)
	require.NoError(t, err)
	require.Len(t, h.state(t, enc.ID).Monsters, bestiary.RosterSize(1, 1))

	res, err := h.svc.SubmitAnswer(ctx, enc.ID, "alice", "4")
	require.NoError(t, err)
	require.True(t, res.IsCorrect)
	require.NoError(t, h.svc.AdvanceToMove(ctx, enc.ID, false))
	_, err = h.svc.SkipMove(ctx, enc.ID, "alice")
	require.NoError(t, err)
	require.NoError(t, h.svc.AdvanceToAction(ctx, enc.ID, false))

	targets, err := h.svc.TargetsInRange(ctx, enc.ID, alice.ID, "salve")
	require.NoError(t, err)
	require.Len(t, targets.Monsters, 2)
	act, err := h.svc.SubmitAction(ctx, enc.ID, "alice", "salve", targets.Monsters[0].ID, arena.TargetMonster)
	require.NoError(t, err)
	require.True(t, act.AllSubmitted)

	_, err = h.svc.DistributeRewards(ctx, enc.ID)
	requireRejection(t, err, arena.KindPhase)

	events, err := h.svc.ExecuteRound(ctx, enc.ID, false)
	require.NoError(t, err)
	for _, e := range events {
		assert.NotEqual(t, "poke", e.SkillID, "dead monsters do not act")
	}
	resolved := h.state(t, enc.ID)
	assert.Equal(t, arena.PhaseRoundEnd, resolved.Phase)
	assert.Empty(t, resolved.LivingMonsters())
	assert.Equal(t, resolved.Participants[0].MaxHP, resolved.Participants[0].HP)

	outcome, err := h.svc.CheckEndCondition(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, arena.OutcomeVictory, outcome)
	assert.Equal(t, arena.PhaseVictory, h.state(t, enc.ID).Phase)

	rewards, err := h.svc.DistributeRewards(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]arena.Reward{"alice": {XP: 15, Gold: 7, NewLevel: 1}}, rewards)

	profile, err := lvl.Profile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 15, profile.XP)
	assert.Equal(t, 7, profile.Gold)

	again, err := h.svc.DistributeRewards(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, rewards, again)
	profile, err = lvl.Profile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 15, profile.XP, "rewards are granted once")

	got := h.state(t, enc.ID)
	assert.Equal(t, arena.StatusCompleted, got.Status)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, epoch, *got.EndedAt)

	_, err = h.svc.StartRound(ctx, enc.ID)
	requireRejection(t, err, arena.KindPhase)
	_, _, err = h.svc.ForceAdvance(ctx, enc.ID)
	requireRejection(t, err, arena.KindPhase)
	_, err = lvl.Enroll(ctx, "late", "arbaletrier")
	require.NoError(t, err)
	_, err = h.svc.Join(ctx, enc.ID, "late")
	requireRejection(t, err, arena.KindPhase)
	assert.Equal(t, got.Version, h.state(t, enc.ID).Version)
}

func TestAbandon(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	enc := h.create(t, 1)
	h.join(t, enc.ID, "alice")
	_, err := h.svc.StartRound(ctx, enc.ID)
	require.NoError(t, err)

	require.NoError(t, h.svc.Abandon(ctx, enc.ID))
	require.NoError(t, h.svc.Abandon(ctx, enc.ID))

	_, err = h.svc.SubmitAnswer(ctx, enc.ID, "alice", "4")
	requireRejection(t, err, arena.KindPhase)
	_, err = h.svc.DistributeRewards(ctx, enc.ID)
	requireRejection(t, err, arena.KindPhase)
	assert.Equal(t, arena.StatusCompleted, h.state(t, enc.ID).Status)
}

// flakyRepository fails the next n saves with a version conflict.
type flakyRepository struct {
	*arena.MemoryRepository
	mu sync.Mutex
	n  int
}

func (f *flakyRepository) Save(ctx context.Context, enc *arena.Encounter) error {
	f.mu.Lock()
	if f.n > 0 {
		f.n--
		f.mu.Unlock()
		return arena.ErrVersionConflict
	}
	f.mu.Unlock()
	return f.MemoryRepository.Save(ctx, enc)
}

func TestMutate_RetriesVersionConflict(t *testing.T) {
	flaky := &flakyRepository{MemoryRepository: arena.NewMemoryRepository()}
	h := newHarness(t, func(c *arena.ServiceConfig) { c.Repository = flaky })
	enc := h.create(t, 2)
	_, err := h.lvl.Enroll(context.Background(), "alice", "archer")
	require.NoError(t, err)

	flaky.n = 1
	_, err = h.svc.Join(context.Background(), enc.ID, "alice")
	require.NoError(t, err)
	assert.Len(t, h.state(t, enc.ID).Participants, 1)

	_, err = h.lvl.Enroll(context.Background(), "bob", "archer")
	require.NoError(t, err)
	flaky.n = 10
	_, err = h.svc.Join(context.Background(), enc.ID, "bob")
	requireRejection(t, err, arena.KindConflict)
	assert.Len(t, h.state(t, enc.ID).Participants, 1)
}

func TestPublish_StateAfterMutation(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := mockarena.NewMockPublisher(ctrl)
	var mu sync.Mutex
	var types []string
	pub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, env arena.Envelope) error {
			mu.Lock()
			defer mu.Unlock()
			types = append(types, env.Type)
			return errors.New("broker down")
		}).AnyTimes()

	h := newHarness(t, func(c *arena.ServiceConfig) { c.Publisher = pub })
	enc := h.create(t, 1)
	h.join(t, enc.ID, "alice")
	_, err := h.svc.StartRound(context.Background(), enc.ID)
	require.NoError(t, err, "publish failures never fail an operation")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{arena.EnvelopeState, arena.EnvelopeState, arena.EnvelopeState, arena.EnvelopeQuestion}, types)
}
