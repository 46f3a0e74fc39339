package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/classquest/internal/game/arena"
	"github.com/cory-johannsen/classquest/internal/game/bestiary"
	"github.com/cory-johannsen/classquest/internal/game/character"
	"github.com/cory-johannsen/classquest/internal/game/dice"
	"github.com/cory-johannsen/classquest/internal/game/progression"
	"github.com/cory-johannsen/classquest/internal/game/quiz"
	"github.com/cory-johannsen/classquest/internal/scripting"
	"github.com/cory-johannsen/classquest/internal/storage/postgres"
	"github.com/cory-johannsen/classquest/internal/testutil"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *arena.Service
	repo  *postgres.EncounterRepository
	level *progression.Service
}

func setupArena(t *testing.T) *fixture {
	t.Helper()
	pool := testutil.NewPool(t)
	ctx := context.Background()

	questions := postgres.NewQuestionRepository(pool)
	require.NoError(t, questions.Upsert(ctx, []*quiz.Question{
		{ID: "q1", ExerciseID: "ex1", Prompt: "2 + 2 ?", Kind: quiz.KindNumber, Answer: "4"},
	}))
	cat, err := character.DefaultCatalog()
	require.NoError(t, err)
	b, err := bestiary.Default()
	require.NoError(t, err)

	repo := postgres.NewEncounterRepository(pool)
	level := progression.NewService(postgres.NewProgressionStore(pool), cat)
	svc, err := arena.NewService(arena.ServiceConfig{
		Config:     arena.DefaultConfig(),
		Repository: repo,
		Bestiary:   b,
		Questions:  questions,
		Oracle:     quiz.NewGrader(scripting.NewChecker(10000, zap.NewNop())),
		Leveling:   level,
		Source:     dice.NewSeededSource(7),
		Now:        func() time.Time { return epoch },
		Logger:     zap.NewNop(),
	})
	require.NoError(t, err)
	return &fixture{svc: svc, repo: repo, level: level}
}

func (f *fixture) create(t *testing.T, classroom string) *arena.Encounter {
	t.Helper()
	enc, err := f.svc.CreateEncounter(context.Background(), arena.CreateParams{
		TeacherID:         "prof",
		ClassroomID:       classroom,
		ExerciseID:        "ex1",
		Difficulty:        bestiary.Medium,
		ExpectedHeadcount: 2,
		AverageLevel:      1,
	})
	require.NoError(t, err)
	return enc
}

func (f *fixture) join(t *testing.T, encID string, students ...string) {
	t.Helper()
	ctx := context.Background()
	for _, s := range students {
		_, err := f.level.Enroll(ctx, s, "guerrier")
		require.NoError(t, err)
		_, err = f.svc.Join(ctx, encID, s)
		require.NoError(t, err)
	}
}

func TestEncounterRepository_CreateGet(t *testing.T) {
	f := setupArena(t)
	created := f.create(t, "6B")

	got, err := f.repo.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, arena.PhaseWaiting, got.Phase)
	assert.Equal(t, bestiary.Medium, got.Difficulty)
	assert.Equal(t, created.Seed, got.Seed)
	assert.Equal(t, created.Map, got.Map)
	assert.True(t, epoch.Equal(got.CreatedAt))
	assert.Nil(t, got.EndedAt)
	require.Len(t, got.Monsters, len(created.Monsters))
	for i, m := range created.Monsters {
		assert.Equal(t, m.ID, got.Monsters[i].ID)
		assert.Equal(t, m.Skills, got.Monsters[i].Skills)
		assert.Equal(t, m.Position, got.Monsters[i].Position)
	}
	assert.Empty(t, got.Participants)
}

func TestEncounterRepository_GetUnknown(t *testing.T) {
	f := setupArena(t)
	ctx := context.Background()

	_, err := f.repo.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, arena.ErrEncounterNotFound)
	_, err = f.repo.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, arena.ErrEncounterNotFound)
	_, err = f.repo.ActiveForClassroom(ctx, "empty")
	assert.ErrorIs(t, err, arena.ErrEncounterNotFound)
}

func TestEncounterRepository_OneActivePerClassroom(t *testing.T) {
	f := setupArena(t)
	ctx := context.Background()
	first := f.create(t, "6B")

	dup, err := f.repo.Get(ctx, first.ID)
	require.NoError(t, err)
	dup.ID = uuid.NewString()
	for _, m := range dup.Monsters {
		m.ID = uuid.NewString()
	}
	assert.ErrorIs(t, f.repo.Create(ctx, dup), arena.ErrActiveEncounterExists)

	active, err := f.repo.ActiveForClassroom(ctx, "6B")
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	require.NoError(t, f.svc.Abandon(ctx, first.ID))
	_, err = f.repo.ActiveForClassroom(ctx, "6B")
	assert.ErrorIs(t, err, arena.ErrEncounterNotFound)
	f.create(t, "6B")
}

func TestEncounterRepository_VersionConflict(t *testing.T) {
	f := setupArena(t)
	ctx := context.Background()
	enc := f.create(t, "6B")

	a, err := f.repo.Get(ctx, enc.ID)
	require.NoError(t, err)
	b, err := f.repo.Get(ctx, enc.ID)
	require.NoError(t, err)

	a.ExpectedHeadcount = 5
	require.NoError(t, f.repo.Save(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	b.ExpectedHeadcount = 9
	assert.ErrorIs(t, f.repo.Save(ctx, b), arena.ErrVersionConflict)
	assert.Equal(t, int64(1), b.Version)

	got, err := f.repo.Get(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.ExpectedHeadcount)

	b.ID = uuid.NewString()
	assert.ErrorIs(t, f.repo.Save(ctx, b), arena.ErrEncounterNotFound)
}

func TestEncounterRepository_RoundRoundTrip(t *testing.T) {
	f := setupArena(t)
	ctx := context.Background()
	enc := f.create(t, "6B")
	f.join(t, enc.ID, "alice", "bob")

	_, err := f.svc.StartRound(ctx, enc.ID)
	require.NoError(t, err)
	res, err := f.svc.SubmitAnswer(ctx, enc.ID, "alice", "4")
	require.NoError(t, err)
	assert.True(t, res.IsCorrect)
	_, err = f.svc.SubmitAnswer(ctx, enc.ID, "bob", "5")
	require.NoError(t, err)

	mid, err := f.repo.Get(ctx, enc.ID)
	require.NoError(t, err)
	require.Len(t, mid.Participants, 2)
	assert.Equal(t, "alice", mid.Participants[0].StudentID)
	assert.True(t, mid.Participants[0].AnswerCorrect)
	assert.Equal(t, "bob", mid.Participants[1].StudentID)
	assert.False(t, mid.Participants[1].AnswerCorrect)
	assert.Equal(t, "guerrier", mid.Participants[0].Snapshot.Class)

	require.NoError(t, f.svc.AdvanceToMove(ctx, enc.ID, false))
	_, err = f.svc.SkipMove(ctx, enc.ID, "alice")
	require.NoError(t, err)
	require.NoError(t, f.svc.AdvanceToAction(ctx, enc.ID, false))
	events, err := f.svc.ExecuteRound(ctx, enc.ID, true)
	require.NoError(t, err)

	got, err := f.repo.Get(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, arena.PhaseRoundEnd, got.Phase)
	assert.Equal(t, 1, got.Round)
	assert.Equal(t, "q1", got.QuestionID)
	assert.Equal(t, events, got.LastEvents)
	assert.Len(t, got.Monsters, bestiary.RosterSize(2, 1))
}

func TestEncounterRepository_RewardsPersist(t *testing.T) {
	f := setupArena(t)
	ctx := context.Background()
	enc := f.create(t, "6B")
	f.join(t, enc.ID, "alice")

	got, err := f.repo.Get(ctx, enc.ID)
	require.NoError(t, err)
	ended := epoch.Add(time.Hour)
	got.Status = arena.StatusCompleted
	got.Phase = arena.PhaseVictory
	got.EndedAt = &ended
	got.Rewards = map[string]arena.Reward{"alice": {XP: 30, Gold: 15, LeveledUp: true, NewLevel: 2}}
	require.NoError(t, f.repo.Save(ctx, got))

	again, err := f.repo.Get(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Rewards, again.Rewards)
	require.NotNil(t, again.EndedAt)
	assert.True(t, ended.Equal(*again.EndedAt))

	rewards, err := f.svc.DistributeRewards(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Rewards, rewards)
}
