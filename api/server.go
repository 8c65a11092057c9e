// Package api exposes the orchestrator and the ingest pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/chative-support-team/agent/agents/orchestrator"
	"github.com/tanpawarit/chative-support-team/agent/ingest"
)

type Config struct {
	Host            string        `split_words:"true" default:"0.0.0.0"`
	Port            int           `split_words:"true" default:"8080"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Port)
	}
	return nil
}

type Invoker interface {
	Invoke(ctx context.Context, req orchestrator.Request) (orchestrator.Reply, error)
}

type Ingester interface {
	Ingest(ctx context.Context, urls []string) (ingest.Report, error)
}

type Server struct {
	echo     *echo.Echo
	invoker  Invoker
	ingester Ingester
	cfg      Config
}

// NewServer registers the routes. gatherer backs /metrics; nil uses the
// default prometheus registry.
func NewServer(cfg Config, invoker Invoker, ingester Ingester, gatherer prometheus.Gatherer) (*Server, error) {
	if invoker == nil {
		return nil, errors.New("invoker is required")
	}
	if ingester == nil {
		return nil, errors.New("ingester is required")
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger)

	s := &Server{echo: e, invoker: invoker, ingester: ingester, cfg: cfg}

	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	e.POST("/invoke", s.handleInvoke)
	e.POST("/ingest", s.handleIngest)

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	log.Info().Str("addr", addr).Msg("starting http server")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// requestLogger logs one line per request and puts a request scoped logger
// in the context for the handlers below it.
func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)

		logger := log.With().Str("request_id", requestID).Logger()
		c.SetRequest(req.WithContext(logger.WithContext(req.Context())))

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		logger.Info().
			Str("method", req.Method).
			Str("uri", req.RequestURI).
			Int("status", c.Response().Status).
			Dur("duration", time.Since(start)).
			Msg("http request")
		return nil
	}
}
