package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/chatrelay/internal/chatbot"
)

type ChatBotHandler struct {
	service *chatbot.Service
	logger  *slog.Logger
}

func NewChatBotHandler(log *slog.Logger, service *chatbot.Service) *ChatBotHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ChatBotHandler{service: service, logger: log.With(slog.String("handler", "chatbot"))}
}

func (h *ChatBotHandler) Register(e *echo.Echo) {
	group := e.Group("/api/chatbots")
	group.POST("", h.Create)
	group.POST("/", h.Create)
	group.GET("", h.List)
	group.GET("/", h.List)
	group.GET("/:id", h.Get)
	group.PUT("/:id", h.Update)
	group.DELETE("/:id", h.Delete)
}

// Create godoc
// @Summary Create chat bot
// @Tags chatbot
// @Param payload body chatbot.CreateRequest true "Chat bot payload"
// @Success 201 {object} chatbot.ChatBot
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /api/chatbots/ [post]
func (h *ChatBotHandler) Create(c echo.Context) error {
	var req chatbot.CreateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	bot, err := h.service.Create(c.Request().Context(), req)
	if err != nil {
		return h.translate(err)
	}
	return c.JSON(http.StatusCreated, bot)
}

// List godoc
// @Summary List chat bots
// @Tags chatbot
// @Success 200 {array} chatbot.ChatBot
// @Router /api/chatbots [get]
func (h *ChatBotHandler) List(c echo.Context) error {
	items, err := h.service.List(c.Request().Context())
	if err != nil {
		return h.translate(err)
	}
	return c.JSON(http.StatusOK, items)
}

// Get godoc
// @Summary Get chat bot
// @Tags chatbot
// @Param id path string true "Chat bot ID"
// @Success 200 {object} chatbot.ChatBot
// @Failure 404 {object} ErrorResponse
// @Router /api/chatbots/{id} [get]
func (h *ChatBotHandler) Get(c echo.Context) error {
	bot, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.translate(err)
	}
	return c.JSON(http.StatusOK, bot)
}

// Update godoc
// @Summary Update chat bot
// @Description Only fields present in the body are changed
// @Tags chatbot
// @Param id path string true "Chat bot ID"
// @Param payload body chatbot.UpdateRequest true "Fields to change"
// @Success 200 {object} chatbot.ChatBot
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /api/chatbots/{id} [put]
func (h *ChatBotHandler) Update(c echo.Context) error {
	var req chatbot.UpdateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	bot, err := h.service.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return h.translate(err)
	}
	return c.JSON(http.StatusOK, bot)
}

// Delete godoc
// @Summary Delete chat bot
// @Description Channels owned by the bot are kept
// @Tags chatbot
// @Param id path string true "Chat bot ID"
// @Success 200 {object} DetailResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/chatbots/{id} [delete]
func (h *ChatBotHandler) Delete(c echo.Context) error {
	if err := h.service.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return h.translate(err)
	}
	return c.JSON(http.StatusOK, DetailResponse{Detail: "ChatBot deleted"})
}

func (h *ChatBotHandler) translate(err error) error {
	if errors.Is(err, chatbot.ErrChatBotNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "ChatBot not found")
	}
	if errors.Is(err, chatbot.ErrInvalidInput) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	h.logger.Error("chat bot operation failed", slog.Any("error", err))
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
