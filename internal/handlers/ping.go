package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Probe checks a backing dependency.
type Probe interface {
	Ping(ctx context.Context) error
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Ping(ctx context.Context) error { return f(ctx) }

type PingHandler struct {
	probe  Probe
	logger *slog.Logger
}

// NewPingHandler creates the liveness handler. probe may be nil.
func NewPingHandler(log *slog.Logger, probe Probe) *PingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PingHandler{probe: probe, logger: log.With(slog.String("handler", "ping"))}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
}

// Ping godoc
// @Summary Liveness check
// @Tags system
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /ping [get]
func (h *PingHandler) Ping(c echo.Context) error {
	if err := h.check(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *PingHandler) PingHead(c echo.Context) error {
	if err := h.check(c.Request().Context()); err != nil {
		return c.NoContent(http.StatusServiceUnavailable)
	}
	return c.NoContent(http.StatusOK)
}

func (h *PingHandler) check(ctx context.Context) error {
	if h.probe == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.probe.Ping(ctx); err != nil {
		h.logger.Warn("storage probe failed", slog.Any("error", err))
		return err
	}
	return nil
}
