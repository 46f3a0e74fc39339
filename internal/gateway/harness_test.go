package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/classquest/internal/game/arena"
	"github.com/cory-johannsen/classquest/internal/game/bestiary"
	"github.com/cory-johannsen/classquest/internal/game/character"
	"github.com/cory-johannsen/classquest/internal/game/dice"
	"github.com/cory-johannsen/classquest/internal/game/progression"
	"github.com/cory-johannsen/classquest/internal/game/quiz"
	"github.com/cory-johannsen/classquest/internal/gateway"
	"github.com/cory-johannsen/classquest/internal/scripting"
)

type harness struct {
	svc     *arena.Service
	broker  *gateway.LocalBroker
	level   *progression.Service
	gateway *gateway.Gateway
}

func newHarness(t *testing.T, deadlines gateway.Deadlines) *harness {
	t.Helper()
	cat, err := character.DefaultCatalog()
	require.NoError(t, err)
	b, err := bestiary.Default()
	require.NoError(t, err)

	broker := gateway.NewLocalBroker(zap.NewNop())
	level := progression.NewService(progression.NewMemoryStore(), cat)
	svc, err := arena.NewService(arena.ServiceConfig{
		Config:     arena.DefaultConfig(),
		Repository: arena.NewMemoryRepository(),
		Bestiary:   b,
		Questions: quiz.NewMemoryBank(
			&quiz.Question{ID: "q1", ExerciseID: "ex1", Prompt: "2 + 2 ?", Kind: quiz.KindNumber, Answer: "4"},
		),
		Oracle:    quiz.NewGrader(scripting.NewChecker(10000, zap.NewNop())),
		Leveling:  level,
		Publisher: broker,
		Source:    dice.NewSeededSource(11),
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)

	g := gateway.New(gateway.Config{Deadlines: deadlines}, svc, level, broker, zap.NewNop())
	t.Cleanup(g.Conductor().Close)
	return &harness{svc: svc, broker: broker, level: level, gateway: g}
}

func (h *harness) create(t *testing.T) *arena.Encounter {
	t.Helper()
	enc, err := h.svc.CreateEncounter(context.Background(), arena.CreateParams{
		TeacherID:         "prof",
		ClassroomID:       "6B",
		ExerciseID:        "ex1",
		Difficulty:        bestiary.Easy,
		ExpectedHeadcount: 2,
		AverageLevel:      1,
	})
	require.NoError(t, err)
	return enc
}

func (h *harness) join(t *testing.T, encID string, students ...string) {
	t.Helper()
	ctx := context.Background()
	for _, s := range students {
		_, err := h.level.Enroll(ctx, s, "guerrier")
		require.NoError(t, err)
		_, err = h.svc.Join(ctx, encID, s)
		require.NoError(t, err)
	}
}

func (h *harness) phase(t *testing.T, encID string) arena.Phase {
	t.Helper()
	st, err := h.svc.Snapshot(context.Background(), encID)
	require.NoError(t, err)
	return st.Encounter.Phase
}

// do sends a request as user with role and returns the recorder.
func (h *harness) do(t *testing.T, method, path, user, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(gateway.HeaderUserID, user)
		req.Header.Set(gateway.HeaderUserRole, role)
	}
	rec := httptest.NewRecorder()
	h.gateway.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

