package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/cory-johannsen/classquest/internal/game/arena"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	commandTimeout = 10 * time.Second
	replyBuffer    = 16
)

// Client command types.
const (
	CmdState      = "state"
	CmdAnswer     = "answer"
	CmdReachable  = "reachable"
	CmdMove       = "move"
	CmdSkipMove   = "skip_move"
	CmdTargets    = "targets"
	CmdAction     = "action"
	CmdStartRound = "start_round"
	CmdAdvance    = "advance"
	CmdExecute    = "execute"
	CmdCheckEnd   = "check_end"
	CmdRewards    = "rewards"
)

// command is one client message. ID is echoed in the reply so clients can
// match responses to requests.
type command struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type reply struct {
	Command string `json:"command"`
	ID      string `json:"id,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type failure struct {
	Command string `json:"command"`
	ID      string `json:"id,omitempty"`
	errorBody
}

type answerPayload struct {
	Answer string `json:"answer" validate:"max=1000"`
}

type movePayload struct {
	X int `json:"x" validate:"gte=0"`
	Y int `json:"y" validate:"gte=0"`
}

type targetsPayload struct {
	SkillID string `json:"skill_id" validate:"required"`
}

type actionPayload struct {
	SkillID    string `json:"skill_id" validate:"required"`
	TargetID   string `json:"target_id"`
	TargetType string `json:"target_type" validate:"omitempty,oneof=monster participant"`
}

type executePayload struct {
	Force bool `json:"force"`
}

// client is one websocket connection bound to an encounter.
type client struct {
	conn        *websocket.Conn
	who         identity
	encounterID string
	sub         *Subscription
	out         chan arena.Envelope
	done        chan struct{}
	logger      *zap.Logger
}

func (g *Gateway) serveWS(c echo.Context) error {
	who := identityOf(c)
	encounterID := c.QueryParam("encounter")
	if encounterID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "encounter query parameter is required")
	}
	ctx := c.Request().Context()
	st, err := g.conductor.Service().Snapshot(ctx, encounterID)
	if err != nil {
		return err
	}
	if err := g.checkMember(ctx, encounterID, who); err != nil {
		return err
	}

	conn, err := g.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader already wrote the handshake failure.
		g.logger.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}
	cl := &client{
		conn:        conn,
		who:         who,
		encounterID: encounterID,
		sub:         g.broker.Subscribe(encounterID),
		out:         make(chan arena.Envelope, replyBuffer),
		done:        make(chan struct{}),
		logger: g.logger.With(
			zap.String("encounter_id", encounterID),
			zap.String("user_id", who.UserID),
			zap.String("role", who.Role),
		),
	}
	g.register(cl)
	defer g.unregister(cl)

	cl.logger.Info("websocket connected")
	if env, err := arena.NewEnvelope(arena.EnvelopeState, encounterID, st); err == nil {
		cl.out <- env
	}
	go cl.writeLoop()
	g.readLoop(cl)
	cl.logger.Info("websocket disconnected")
	return nil
}

func (g *Gateway) register(cl *client) {
	g.mu.Lock()
	g.clients[cl] = struct{}{}
	g.mu.Unlock()
}

func (g *Gateway) unregister(cl *client) {
	g.mu.Lock()
	delete(g.clients, cl)
	g.mu.Unlock()
	cl.sub.Close()
	close(cl.done)
	_ = cl.conn.Close()
}

func (g *Gateway) readLoop(cl *client) {
	cl.conn.SetReadLimit(maxMessageSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var cmd command
		if err := cl.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cl.logger.Warn("reading websocket", zap.Error(err))
			}
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		data, err := g.handle(ctx, cl, cmd)
		cancel()
		cl.send(g.replyFor(cl, cmd, data, err))
	}
}

func (cl *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		var env arena.Envelope
		select {
		case <-cl.done:
			return
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = cl.conn.Close()
				return
			}
			continue
		case e, ok := <-cl.sub.C:
			if !ok {
				return
			}
			env = e
		case env = <-cl.out:
		}
		_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := cl.conn.WriteJSON(env); err != nil {
			cl.logger.Debug("writing websocket", zap.Error(err))
			_ = cl.conn.Close()
			return
		}
	}
}

// send queues a direct reply, giving up once the connection is gone.
func (cl *client) send(env arena.Envelope) {
	select {
	case cl.out <- env:
	case <-cl.done:
	}
}

func (g *Gateway) replyFor(cl *client, cmd command, data any, err error) arena.Envelope {
	typ, payload := arena.EnvelopeResult, any(reply{Command: cmd.Type, ID: cmd.ID, Data: data})
	if err != nil {
		code, body := describe(err)
		if code >= http.StatusInternalServerError {
			cl.logger.Error("websocket command failed", zap.String("command", cmd.Type), zap.Error(err))
		}
		typ, payload = arena.EnvelopeError, failure{Command: cmd.Type, ID: cmd.ID, errorBody: body}
	}
	env, encErr := arena.NewEnvelope(typ, cl.encounterID, payload)
	if encErr != nil {
		cl.logger.Error("encoding reply", zap.Error(encErr))
		return arena.Envelope{Type: arena.EnvelopeError, EncounterID: cl.encounterID}
	}
	return env
}

// handle runs one client command and returns the reply data.
func (g *Gateway) handle(ctx context.Context, cl *client, cmd command) (any, error) {
	id := cl.encounterID
	switch cmd.Type {
	case CmdState:
		return g.conductor.Service().Snapshot(ctx, id)

	case CmdAnswer:
		var p answerPayload
		if err := g.decode(cl, cmd, RoleStudent, &p); err != nil {
			return nil, err
		}
		return g.conductor.Answer(ctx, id, cl.who.UserID, p.Answer)

	case CmdReachable:
		if cl.who.Role != RoleStudent {
			return nil, errStudentOnly
		}
		pid, err := g.participantOf(ctx, cl)
		if err != nil {
			return nil, err
		}
		return g.conductor.Service().ReachableTiles(ctx, id, pid)

	case CmdMove:
		var p movePayload
		if err := g.decode(cl, cmd, RoleStudent, &p); err != nil {
			return nil, err
		}
		return g.conductor.Move(ctx, id, cl.who.UserID, p.X, p.Y)

	case CmdSkipMove:
		if cl.who.Role != RoleStudent {
			return nil, errStudentOnly
		}
		return g.conductor.SkipMove(ctx, id, cl.who.UserID)

	case CmdTargets:
		var p targetsPayload
		if err := g.decode(cl, cmd, RoleStudent, &p); err != nil {
			return nil, err
		}
		pid, err := g.participantOf(ctx, cl)
		if err != nil {
			return nil, err
		}
		return g.conductor.Service().TargetsInRange(ctx, id, pid, p.SkillID)

	case CmdAction:
		var p actionPayload
		if err := g.decode(cl, cmd, RoleStudent, &p); err != nil {
			return nil, err
		}
		return g.conductor.Action(ctx, id, cl.who.UserID, p.SkillID, p.TargetID, arena.TargetType(p.TargetType))

	case CmdStartRound:
		if cl.who.Role != RoleTeacher {
			return nil, errTeacherOnly
		}
		return g.conductor.StartRound(ctx, id)

	case CmdAdvance:
		if cl.who.Role != RoleTeacher {
			return nil, errTeacherOnly
		}
		phase, events, err := g.conductor.Advance(ctx, id)
		if err != nil {
			return nil, err
		}
		return echo.Map{"phase": phase, "events": events}, nil

	case CmdExecute:
		var p executePayload
		if err := g.decode(cl, cmd, RoleTeacher, &p); err != nil {
			return nil, err
		}
		return g.conductor.Execute(ctx, id, p.Force)

	case CmdCheckEnd:
		if cl.who.Role != RoleTeacher {
			return nil, errTeacherOnly
		}
		out, err := g.conductor.CheckEnd(ctx, id)
		if err != nil {
			return nil, err
		}
		return echo.Map{"outcome": out}, nil

	case CmdRewards:
		if cl.who.Role != RoleTeacher {
			return nil, errTeacherOnly
		}
		return g.conductor.Rewards(ctx, id)
	}
	return nil, echo.NewHTTPError(http.StatusBadRequest, "unknown command "+cmd.Type)
}

// decode checks the role, then unmarshals and validates the payload into dst.
// An absent payload decodes as the zero value.
func (g *Gateway) decode(cl *client, cmd command, role string, dst any) error {
	if cl.who.Role != role {
		if role == RoleTeacher {
			return errTeacherOnly
		}
		return errStudentOnly
	}
	if len(cmd.Payload) > 0 {
		if err := json.Unmarshal(cmd.Payload, dst); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
		}
	}
	return g.app.Validator.Validate(dst)
}

func (g *Gateway) participantOf(ctx context.Context, cl *client) (string, error) {
	st, err := g.conductor.Service().Snapshot(ctx, cl.encounterID)
	if err != nil {
		return "", err
	}
	p, ok := st.Encounter.ParticipantByStudent(cl.who.UserID)
	if !ok {
		return "", echo.NewHTTPError(http.StatusNotFound, "not a participant of this encounter")
	}
	return p.ID, nil
}
