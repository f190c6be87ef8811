package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/chatrelay/internal/dialogue"
	"github.com/memohai/chatrelay/internal/inbound"
)

// MessageAcceptor is the synchronous half of the inbound pipeline.
type MessageAcceptor interface {
	HandleNewMessage(ctx context.Context, authorization string, msg inbound.IncomingMessage) error
}

type WebhookHandler struct {
	acceptor MessageAcceptor
	logger   *slog.Logger
}

func NewWebhookHandler(log *slog.Logger, acceptor MessageAcceptor) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{acceptor: acceptor, logger: log.With(slog.String("handler", "webhook"))}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/api/webhook/new_message", h.NewMessage)
}

// NewMessage godoc
// @Summary Accept an inbound chat message
// @Description Stores the message on the channel identified by the bearer token and schedules a reply
// @Tags webhook
// @Param Authorization header string true "Bearer <channel token>"
// @Param payload body inbound.IncomingMessage true "Inbound message"
// @Success 200 {object} map[string]string
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /api/webhook/new_message [post]
func (h *WebhookHandler) NewMessage(c echo.Context) error {
	authorization := c.Request().Header.Get(echo.HeaderAuthorization)
	if _, ok := inbound.BearerToken(authorization); !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
	}
	var msg inbound.IncomingMessage
	if err := bindAndValidate(c, &msg); err != nil {
		return err
	}
	err := h.acceptor.HandleNewMessage(c.Request().Context(), authorization, msg)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, struct{}{})
	case errors.Is(err, inbound.ErrUnauthenticated):
		return echo.NewHTTPError(http.StatusUnauthorized, "Not authenticated")
	case errors.Is(err, dialogue.ErrDialogueNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	default:
		h.logger.Error("accept message failed", slog.String("message_id", msg.MessageID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to accept message")
	}
}
