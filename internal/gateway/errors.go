package gateway

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/cory-johannsen/classquest/internal/game/arena"
	"github.com/cory-johannsen/classquest/internal/game/progression"
)

var (
	errMissingIdentity = echo.NewHTTPError(http.StatusUnauthorized, "missing X-User-ID or X-User-Role")
	errTeacherOnly     = echo.NewHTTPError(http.StatusForbidden, "teacher role required")
	errStudentOnly     = echo.NewHTTPError(http.StatusForbidden, "student role required")
)

// rejectionStatus maps a rejection kind to its HTTP status.
func rejectionStatus(kind arena.RejectionKind) int {
	switch kind {
	case arena.KindPhase, arena.KindConflict:
		return http.StatusConflict
	case arena.KindAuthorization:
		return http.StatusForbidden
	case arena.KindValidation:
		return http.StatusUnprocessableEntity
	case arena.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

// errorBody is the JSON shape of every error response and websocket error.
type errorBody struct {
	Error  string            `json:"error"`
	Kind   string            `json:"kind,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// describe converts err into a status and body. Unknown errors become an
// opaque 500.
func describe(err error) (int, errorBody) {
	if r, ok := arena.AsRejection(err); ok {
		return rejectionStatus(r.Kind), errorBody{Error: r.Message, Kind: string(r.Kind)}
	}
	switch {
	case errors.Is(err, progression.ErrStudentNotFound):
		return http.StatusNotFound, errorBody{Error: "no profile for this student", Kind: string(arena.KindNotFound)}
	case errors.Is(err, progression.ErrUnknownClass):
		return http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Kind: string(arena.KindValidation)}
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		return http.StatusUnprocessableEntity, errorBody{Error: "invalid request", Kind: string(arena.KindValidation), Fields: fields}
	}
	var herr *echo.HTTPError
	if errors.As(err, &herr) {
		msg := http.StatusText(herr.Code)
		if m, ok := herr.Message.(string); ok {
			msg = m
		}
		return herr.Code, errorBody{Error: msg}
	}
	return http.StatusInternalServerError, errorBody{Error: http.StatusText(http.StatusInternalServerError)}
}

// httpErrorHandler writes every handler error as JSON.
func httpErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code, body := describe(err)
		if code >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}
		if c.Response().Committed {
			return
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, body)
		}
		if err != nil {
			logger.Warn("writing error response", zap.Error(err))
		}
	}
}
