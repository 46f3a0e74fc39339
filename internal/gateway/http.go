package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/cory-johannsen/classquest/internal/game/arena"
	"github.com/cory-johannsen/classquest/internal/game/bestiary"
)

// Identity headers set by the upstream authentication proxy.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	RoleTeacher = "teacher"
	RoleStudent = "student"
)

const identityKey = "identity"

type identity struct {
	UserID string
	Role   string
}

// Config holds the listener settings of the gateway.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// AllowedOrigins lists accepted websocket origins; empty accepts any.
	AllowedOrigins []string
	Deadlines      Deadlines
}

type appValidator struct {
	validate *validator.Validate
}

func (v appValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

// Gateway serves the REST API under /v1 and the websocket at /v1/ws.
type Gateway struct {
	cfg       Config
	app       *echo.Echo
	conductor *Conductor
	profiles  Profiles
	broker    *LocalBroker
	upgrader  websocket.Upgrader
	logger    *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

// New creates a Gateway. broker must be the LocalBroker the service's
// envelopes reach, directly or through the Redis relay.
//
// Precondition: svc, profiles, broker and logger must be non-nil.
func New(cfg Config, svc *arena.Service, profiles Profiles, broker *LocalBroker, logger *zap.Logger) *Gateway {
	g := &Gateway{
		cfg:       cfg,
		app:       echo.New(),
		conductor: NewConductor(svc, cfg.Deadlines, logger),
		profiles:  profiles,
		broker:    broker,
		logger:    logger,
		clients:   make(map[*client]struct{}),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	g.setup()
	return g
}

func (g *Gateway) setup() {
	g.app.HideBanner = true
	g.app.HidePort = true
	g.app.Server.ReadTimeout = g.cfg.ReadTimeout
	g.app.Server.WriteTimeout = g.cfg.WriteTimeout
	g.app.Validator = appValidator{validate: validator.New()}
	g.app.HTTPErrorHandler = httpErrorHandler(g.logger)

	g.app.Pre(middleware.RemoveTrailingSlash())
	g.app.Use(middleware.Recover())
	g.app.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			g.logger.Debug("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	v1 := g.app.Group("/v1", g.requireIdentity)
	v1.GET("/ws", g.serveWS)
	v1.GET("/profile", g.getProfile)
	v1.PUT("/profile", g.putProfile)

	eg := v1.Group("/encounters")
	eg.POST("", g.createEncounter)
	eg.GET("/:id", g.getEncounter)
	eg.POST("/:id/join", g.joinEncounter)
	eg.GET("/:id/outcome", g.checkOutcome, g.requireMember)

	tg := eg.Group("/:id", g.requireOwner)
	tg.POST("/rounds", g.startRound)
	tg.POST("/advance", g.advance)
	tg.POST("/execute", g.execute)
	tg.POST("/rewards", g.rewards)
	tg.DELETE("", g.abandon)
}

// ServeHTTP lets tests drive the gateway without a listener.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.app.ServeHTTP(w, r)
}

// Conductor returns the conductor driving the encounters.
func (g *Gateway) Conductor() *Conductor { return g.conductor }

// Start serves until Stop is called.
//
// Postcondition: Returns nil after an orderly Stop.
func (g *Gateway) Start() error {
	g.logger.Info("gateway listening", zap.String("addr", g.cfg.Addr))
	if err := g.app.Start(g.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the listener down, disconnects every websocket, and cancels
// pending phase deadlines.
func (g *Gateway) Stop() {
	timeout := g.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := g.app.Shutdown(ctx); err != nil {
		g.logger.Warn("shutting down http server", zap.Error(err))
	}
	g.mu.Lock()
	for cl := range g.clients {
		_ = cl.conn.Close()
	}
	g.mu.Unlock()
	g.conductor.Close()
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range g.cfg.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// requireIdentity reads the identity headers. Browsers cannot set headers on
// a websocket handshake, so the user and role query parameters are accepted
// as a fallback.
func (g *Gateway) requireIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		who := identity{
			UserID: c.Request().Header.Get(HeaderUserID),
			Role:   c.Request().Header.Get(HeaderUserRole),
		}
		if who.UserID == "" {
			who.UserID = c.QueryParam("user")
		}
		if who.Role == "" {
			who.Role = c.QueryParam("role")
		}
		if who.UserID == "" || (who.Role != RoleTeacher && who.Role != RoleStudent) {
			return errMissingIdentity
		}
		c.Set(identityKey, who)
		return next(c)
	}
}

// requireOwner admits only the teacher who created the encounter.
func (g *Gateway) requireOwner(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		who := identityOf(c)
		if who.Role != RoleTeacher {
			return errTeacherOnly
		}
		if err := g.conductor.Service().RequireTeacher(c.Request().Context(), c.Param("id"), who.UserID); err != nil {
			return err
		}
		return next(c)
	}
}

// requireMember admits the owning teacher and the encounter's participants.
func (g *Gateway) requireMember(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := g.checkMember(c.Request().Context(), c.Param("id"), identityOf(c)); err != nil {
			return err
		}
		return next(c)
	}
}

func (g *Gateway) checkMember(ctx context.Context, encounterID string, who identity) error {
	if who.Role == RoleTeacher {
		return g.conductor.Service().RequireTeacher(ctx, encounterID, who.UserID)
	}
	return g.conductor.Service().RequireParticipant(ctx, encounterID, who.UserID)
}

func identityOf(c echo.Context) identity {
	who, _ := c.Get(identityKey).(identity)
	return who
}

type createRequest struct {
	ClassroomID       string `json:"classroom_id" validate:"required,max=64"`
	ExerciseID        string `json:"exercise_id" validate:"required,max=64"`
	Difficulty        string `json:"difficulty" validate:"required,oneof=easy medium hard boss"`
	ExpectedHeadcount int    `json:"expected_headcount" validate:"gte=1,lte=60"`
	AverageLevel      int    `json:"average_level" validate:"gte=1,lte=100"`
}

func (g *Gateway) createEncounter(c echo.Context) error {
	who := identityOf(c)
	if who.Role != RoleTeacher {
		return errTeacherOnly
	}
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	enc, err := g.conductor.Service().CreateEncounter(c.Request().Context(), arena.CreateParams{
		TeacherID:         who.UserID,
		ClassroomID:       req.ClassroomID,
		ExerciseID:        req.ExerciseID,
		Difficulty:        bestiary.Difficulty(req.Difficulty),
		ExpectedHeadcount: req.ExpectedHeadcount,
		AverageLevel:      req.AverageLevel,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, enc)
}

func (g *Gateway) getEncounter(c echo.Context) error {
	st, err := g.conductor.Service().Snapshot(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (g *Gateway) joinEncounter(c echo.Context) error {
	who := identityOf(c)
	if who.Role != RoleStudent {
		return errStudentOnly
	}
	p, err := g.conductor.Service().Join(c.Request().Context(), c.Param("id"), who.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (g *Gateway) checkOutcome(c echo.Context) error {
	out, err := g.conductor.CheckEnd(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"outcome": out})
}

func (g *Gateway) startRound(c echo.Context) error {
	q, err := g.conductor.StartRound(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, q)
}

func (g *Gateway) advance(c echo.Context) error {
	phase, events, err := g.conductor.Advance(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"phase": phase, "events": events})
}

type executeRequest struct {
	Force bool `json:"force"`
}

func (g *Gateway) execute(c echo.Context) error {
	var req executeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	events, err := g.conductor.Execute(c.Request().Context(), c.Param("id"), req.Force)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"events": events})
}

func (g *Gateway) rewards(c echo.Context) error {
	rewards, err := g.conductor.Rewards(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rewards)
}

func (g *Gateway) abandon(c echo.Context) error {
	if err := g.conductor.Abandon(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
