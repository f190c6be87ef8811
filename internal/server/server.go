package server

import (
	"context"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/memohai/chatrelay/internal/auth"
	"github.com/memohai/chatrelay/internal/handlers"
)

// Handler registers routes on the shared echo instance.
type Handler interface {
	Register(e *echo.Echo)
}

// Options configures the HTTP server.
type Options struct {
	Addr string
	// JWTSecret enables admin authentication on the management API when set.
	JWTSecret string
}

type Server struct {
	echo *echo.Echo
	addr string
}

var (
	jwtExactSkipPaths = map[string]struct{}{
		"/ping":   {},
		"/health": {},
	}
	jwtPrefixSkipPaths = []string{
		"/api/webhook/",
	}
)

func NewServer(log *slog.Logger, opts Options, hs []Handler) *Server {
	if log == nil {
		log = slog.Default()
	}
	addr := opts.Addr
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.NewHTTPErrorHandler(log)
	e.Validator = handlers.NewRequestValidator()
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", c.RealIP()),
			)
			return nil
		},
	}))
	if secret := strings.TrimSpace(opts.JWTSecret); secret != "" {
		skipper := func(c echo.Context) bool {
			return shouldSkipJWT(c.Request().URL.Path)
		}
		e.Use(auth.JWTMiddleware(secret, skipper), auth.RequireAdmin(skipper))
	} else {
		log.Warn("auth.jwt_secret is empty: management API is unauthenticated")
	}

	for _, h := range hs {
		if h != nil {
			h.Register(e)
		}
	}
	return &Server{echo: e, addr: addr}
}

// Echo exposes the router, mainly for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) Start() error                   { return s.echo.Start(s.addr) }
func (s *Server) Stop(ctx context.Context) error { return s.echo.Shutdown(ctx) }

func shouldSkipJWT(path string) bool {
	if _, ok := jwtExactSkipPaths[path]; ok {
		return true
	}
	for _, prefix := range jwtPrefixSkipPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
