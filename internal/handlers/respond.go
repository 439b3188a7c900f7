package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"vitrine/internal/services"
	"vitrine/internal/utils/logger"
)

var httpLog = logger.New("HTTP")

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(kind services.Kind) int {
	switch kind {
	case services.KindValidation, services.KindInvalidCredentials, services.KindInvalidToken:
		return http.StatusBadRequest
	case services.KindUnauthorized:
		return http.StatusUnauthorized
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": message} with "details" when the
// error wraps an underlying cause. Internal causes are logged, not sent.
func respondError(c echo.Context, err error) error {
	kind := services.KindOf(err)
	return respondErrorStatus(c, StatusOf(kind), err)
}

func respondErrorStatus(c echo.Context, status int, err error) error {
	body := ErrorResponse{Error: services.MessageOf(err)}

	var serr *services.Error
	if errors.As(err, &serr) && serr.Err != nil {
		if serr.Kind == services.KindInternal {
			httpLog.Error("%s %s: %v", c.Request().Method, c.Path(), err)
		} else {
			body.Details = serr.Err.Error()
		}
	} else if serr == nil {
		httpLog.Error("%s %s: %v", c.Request().Method, c.Path(), err)
	}

	return c.JSON(status, body)
}

// ErrorHandler renders errors returned by handlers and middleware. Echo's
// own errors (404 route, 405, bind failures) keep their status.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(he.Code)
		} else {
			err = c.JSON(he.Code, ErrorResponse{Error: msg})
		}
	} else {
		err = respondError(c, err)
	}

	if err != nil {
		httpLog.Error("Failed to write error response: %v", err)
	}
}
