package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// DetailResponse is a plain acknowledgement carrying a message.
type DetailResponse struct {
	Detail string `json:"detail"`
}

// NewHTTPErrorHandler renders errors as {"detail": "..."}. Unexpected errors
// become 500 and are logged.
func NewHTTPErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	if log == nil {
		log = slog.Default()
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		detail := http.StatusText(code)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			switch msg := he.Message.(type) {
			case string:
				detail = msg
			case error:
				detail = msg.Error()
			case nil:
				detail = http.StatusText(code)
			default:
				detail = fmt.Sprint(msg)
			}
		} else {
			log.Error("unhandled request error",
				slog.String("method", c.Request().Method),
				slog.String("path", c.Path()),
				slog.Any("error", err),
			)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, ErrorResponse{Detail: detail})
		}
		if writeErr != nil {
			log.Warn("write error response failed", slog.Any("error", writeErr))
		}
	}
}
