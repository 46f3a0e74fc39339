package gateway_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/classquest/internal/game/arena"
	"github.com/cory-johannsen/classquest/internal/game/quiz"
	"github.com/cory-johannsen/classquest/internal/gateway"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Kind   string            `json:"kind"`
	Fields map[string]string `json:"fields"`
}

func validCreate() map[string]any {
	return map[string]any{
		"classroom_id":       "6B",
		"exercise_id":        "ex1",
		"difficulty":         "easy",
		"expected_headcount": 2,
		"average_level":      1,
	}
}

func TestHTTP_CreateEncounter(t *testing.T) {
	h := newHarness(t, gateway.Deadlines{})

	rec := h.do(t, http.MethodPost, "/v1/encounters", "prof", gateway.RoleTeacher, validCreate())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var enc arena.Encounter
	decodeBody(t, rec, &enc)
	assert.Equal(t, "prof", enc.TeacherID)
	assert.Equal(t, arena.PhaseWaiting, enc.Phase)

	rec = h.do(t, http.MethodPost, "/v1/encounters", "prof", gateway.RoleTeacher, validCreate())
	assert.Equal(t, http.StatusConflict, rec.Code)
	var body errorResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, string(arena.KindConflict), body.Kind)
}

func TestHTTP_CreateRequiresTeacher(t *testing.T) {
	h := newHarness(t, gateway.Deadlines{})

	rec := h.do(t, http.MethodPost, "/v1/encounters", "", "", validCreate())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/encounters", "alice", gateway.RoleStudent, validCreate())
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHTTP_CreateValidation(t *testing.T) {
	h := newHarness(t, gateway.Deadlines{})
	req := validCreate()
	req["difficulty"] = "nightmare"
	delete(req, "exercise_id")

	rec := h.do(t, http.MethodPost, "/v1/encounters", "prof", gateway.RoleTeacher, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body errorResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, "oneof", body.Fields["Difficulty"])
	assert.Equal(t, "required", body.Fields["ExerciseID"])
}

func TestHTTP_GetEncounter(t *testing.T) {
	h := newHarness(t, gateway.Deadlines{})
	enc := h.create(t)

	rec := h.do(t, http.MethodGet, "/v1/encounters/"+enc.ID, "alice", gateway.RoleStudent, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st arena.State
	decodeBody(t, rec, &st)
	assert.Equal(t, enc.ID, st.Encounter.ID)

	rec = h.do(t, http.MethodGet, "/v1/encounters/missing", "alice", gateway.RoleStudent, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTP_RoundFlow(t *testing.T) {
	h := newHarness(t, gateway.Deadlines{})
	enc := h.create(t)
	base := "/v1/encounters/" + enc.ID

	_, err := h.level.Enroll(t.Context(), "alice", "guerrier")
	require.NoError(t, err)
	rec := h.do(t, http.MethodPost, base+"/join", "alice", gateway.RoleStudent, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p arena.Participant
	decodeBody(t, rec, &p)
	assert.Equal(t, "alice", p.StudentID)

	rec = h.do(t, http.MethodPost, base+"/join", "prof", gateway.RoleTeacher, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPost, base+"/rounds", "other", gateway.RoleTeacher, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = h.do(t, http.MethodPost, base+"/rounds", "alice", gateway.RoleStudent, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPost, base+"/rounds", "prof", gateway.RoleTeacher, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var q quiz.Payload
	decodeBody(t, rec, &q)
	assert.Equal(t, "q1", q.ID)
	assert.NotContains(t, rec.Body.String(), `"answer"`)

	rec = h.do(t, http.MethodPost, base+"/execute", "prof", gateway.RoleTeacher, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, base+"/advance", "prof", gateway.RoleTeacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, arena.PhaseRoundEnd, h.phase(t, enc.ID))

	rec = h.do(t, http.MethodPost, base+"/execute", "prof", gateway.RoleTeacher, map[string]bool{"force": true})
	require.Equal(t, http.StatusOK, rec.Code, "execute in round_end returns the stored events")

	rec = h.do(t, http.MethodGet, base+"/outcome", "alice", gateway.RoleStudent, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Outcome arena.Outcome `json:"outcome"`
	}
	decodeBody(t, rec, &out)
	assert.Equal(t, arena.OutcomeNone, out.Outcome)

	rec = h.do(t, http.MethodPost, base+"/rewards", "prof", gateway.RoleTeacher, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodDelete, base, "prof", gateway.RoleTeacher, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(t, http.MethodPost, base+"/rounds", "prof", gateway.RoleTeacher, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHTTP_UnknownEncounterForTeacherRoute(t *testing.T) {
	h := newHarness(t, gateway.Deadlines{})
	rec := h.do(t, http.MethodPost, "/v1/encounters/missing/rounds", "prof", gateway.RoleTeacher, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTP_OutcomeRequiresMembership(t *testing.T) {
	h := newHarness(t, gateway.Deadlines{})
	enc := h.create(t)
	h.join(t, enc.ID, "alice")
	base := "/v1/encounters/" + enc.ID + "/outcome"

	rec := h.do(t, http.MethodGet, base, "stranger", gateway.RoleStudent, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = h.do(t, http.MethodGet, base, "other", gateway.RoleTeacher, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = h.do(t, http.MethodGet, "/v1/encounters/missing/outcome", "alice", gateway.RoleStudent, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, base, "alice", gateway.RoleStudent, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.do(t, http.MethodGet, base, "prof", gateway.RoleTeacher, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
