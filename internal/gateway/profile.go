package gateway

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cory-johannsen/classquest/internal/game/progression"
)

// Profiles is the student progression the gateway exposes.
type Profiles interface {
	Enroll(ctx context.Context, studentID, classID string) (*progression.Profile, error)
	Profile(ctx context.Context, studentID string) (*progression.Profile, error)
}

type enrollRequest struct {
	Class string `json:"class" validate:"required,max=32"`
}

func (g *Gateway) getProfile(c echo.Context) error {
	who := identityOf(c)
	if who.Role != RoleStudent {
		return errStudentOnly
	}
	p, err := g.profiles.Profile(c.Request().Context(), who.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// putProfile enrolls the caller in a class, keeping any earned progress.
func (g *Gateway) putProfile(c echo.Context) error {
	who := identityOf(c)
	if who.Role != RoleStudent {
		return errStudentOnly
	}
	var req enrollRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	p, err := g.profiles.Enroll(c.Request().Context(), who.UserID, req.Class)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
