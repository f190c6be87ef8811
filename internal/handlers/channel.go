package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/chatrelay/internal/dialogue"
	"github.com/memohai/chatrelay/internal/event"
)

const sseHeartbeatInterval = 20 * time.Second

type ChannelHandler struct {
	service *dialogue.Service
	events  event.Subscriber
	logger  *slog.Logger
}

// NewChannelHandler creates the channel administration handler. events may be nil,
// which disables the event stream.
func NewChannelHandler(log *slog.Logger, service *dialogue.Service, events event.Subscriber) *ChannelHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ChannelHandler{
		service: service,
		events:  events,
		logger:  log.With(slog.String("handler", "channel")),
	}
}

func (h *ChannelHandler) Register(e *echo.Echo) {
	group := e.Group("/api/channel")
	group.POST("", h.Create)
	group.POST("/", h.Create)
	group.GET("", h.List)
	group.GET("/", h.List)
	group.PUT("/:token", h.Update)
	group.DELETE("/:token", h.Delete)
	group.GET("/:token/messages", h.Messages)
	group.GET("/:token/events", h.StreamEvents)
}

// Create godoc
// @Summary Create channel
// @Description Provision a channel for a chat bot; the returned id is the channel token
// @Tags channel
// @Param chat_bot_id query string true "Owning chat bot ID"
// @Param payload body dialogue.CreateRequest true "Channel payload"
// @Success 201 {object} dialogue.Dialogue
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /api/channel/ [post]
func (h *ChannelHandler) Create(c echo.Context) error {
	chatBotID := strings.TrimSpace(c.QueryParam("chat_bot_id"))
	if chatBotID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "chat_bot_id is required")
	}
	var req dialogue.CreateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	d, err := h.service.Create(c.Request().Context(), chatBotID, req)
	if err != nil {
		return h.translate(err)
	}
	return c.JSON(http.StatusCreated, d)
}

// List godoc
// @Summary List channels
// @Tags channel
// @Success 200 {array} dialogue.Dialogue
// @Failure 500 {object} ErrorResponse
// @Router /api/channel/ [get]
func (h *ChannelHandler) List(c echo.Context) error {
	items, err := h.service.List(c.Request().Context())
	if err != nil {
		return h.translate(err)
	}
	return c.JSON(http.StatusOK, items)
}

// Update godoc
// @Summary Update channel webhook
// @Tags channel
// @Param token path string true "Channel token"
// @Param payload body dialogue.UpdateRequest true "Channel payload"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /api/channel/{token} [put]
func (h *ChannelHandler) Update(c echo.Context) error {
	var req dialogue.UpdateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if _, err := h.service.UpdateWebhook(c.Request().Context(), c.Param("token"), req); err != nil {
		return h.translate(err)
	}
	return c.JSON(http.StatusOK, struct{}{})
}

// Delete godoc
// @Summary Delete channel
// @Tags channel
// @Param token path string true "Channel token"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /api/channel/{token} [delete]
func (h *ChannelHandler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), c.Param("token")); err != nil {
		return h.translate(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Messages godoc
// @Summary Channel history
// @Tags channel
// @Param token path string true "Channel token"
// @Success 200 {array} dialogue.Message
// @Failure 404 {object} ErrorResponse
// @Router /api/channel/{token}/messages [get]
func (h *ChannelHandler) Messages(c echo.Context) error {
	messages, err := h.service.Messages(c.Request().Context(), c.Param("token"))
	if err != nil {
		return h.translate(err)
	}
	return c.JSON(http.StatusOK, messages)
}

// StreamEvents godoc
// @Summary Stream channel message events (SSE)
// @Description Emits a message_created event for every message stored on the channel
// @Tags channel
// @Param token path string true "Channel token"
// @Produce text/event-stream
// @Success 200 {string} string
// @Failure 404 {object} ErrorResponse
// @Router /api/channel/{token}/events [get]
func (h *ChannelHandler) StreamEvents(c echo.Context) error {
	if h.events == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "event stream not configured")
	}
	d, err := h.service.Get(c.Request().Context(), c.Param("token"))
	if err != nil {
		return h.translate(err)
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming not supported")
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	writer := bufio.NewWriter(c.Response().Writer)

	_, stream, cancel := h.events.Subscribe(d.ID, 128)
	defer cancel()

	heartbeatTicker := time.NewTicker(sseHeartbeatInterval)
	defer heartbeatTicker.Stop()

	// Tell the client the subscription is live before any event arrives.
	if err := writeSSEJSON(writer, flusher, map[string]any{"type": "ping"}); err != nil {
		return nil
	}
	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case <-heartbeatTicker.C:
			if err := writeSSEJSON(writer, flusher, map[string]any{"type": "ping"}); err != nil {
				return nil
			}
		case ev, ok := <-stream:
			if !ok {
				return nil
			}
			if ev.Type != event.EventTypeMessageCreated || len(ev.Data) == 0 {
				continue
			}
			var message dialogue.Message
			if err := json.Unmarshal(ev.Data, &message); err != nil {
				h.logger.Warn("decode message event failed", slog.Any("error", err))
				continue
			}
			if err := writeSSEJSON(writer, flusher, map[string]any{
				"type":       string(event.EventTypeMessageCreated),
				"channel_id": d.ID,
				"message":    message,
			}); err != nil {
				return nil
			}
		}
	}
}

func (h *ChannelHandler) translate(err error) error {
	switch {
	case errors.Is(err, dialogue.ErrDialogueNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Channel not found")
	case errors.Is(err, dialogue.ErrChatBotNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "ChatBot not found")
	default:
		h.logger.Error("channel operation failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func writeSSEData(writer *bufio.Writer, flusher http.Flusher, payload string) error {
	if _, err := writer.WriteString(fmt.Sprintf("data: %s\n\n", payload)); err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func writeSSEJSON(writer *bufio.Writer, flusher http.Flusher, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return writeSSEData(writer, flusher, string(data))
}
