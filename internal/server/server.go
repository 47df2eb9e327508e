package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/pigcharles06/remote-course-system/internal/llm"
	"github.com/pigcharles06/remote-course-system/internal/pipeline"
	"github.com/pigcharles06/remote-course-system/internal/storage"
)

type (
	// DocumentGenerator is satisfied by *pipeline.Assembler.
	DocumentGenerator interface {
		Generate(ctx context.Context, form llm.FormData) (*pipeline.Output, error)
		TemplatePath() string
	}

	Options struct {
		Address        string
		DisableReqLogs bool
		Generator      DocumentGenerator
		// Store is optional; without it nothing is audited and the history
		// endpoint answers 404.
		Store     storage.Store
		OutputDir string
		Logger    *zap.Logger
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts   *Options
		app    *echo.Echo
		logger *zap.Logger
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &server{
		opts:   opts,
		app:    echo.New(),
		logger: logger,
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(s.requestLogger())
	}
	s.app.Use(middleware.Recover())
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		ExposeHeaders: []string{echo.HeaderContentDisposition, headerResolved, headerRequested},
	}))

	s.app.HTTPErrorHandler = appHTTPErrorHandler

	api := s.app.Group("/api")
	api.GET("/health", health)

	docs := documentsAPI{
		generator: s.opts.Generator,
		store:     s.opts.Store,
		outputDir: s.opts.OutputDir,
		logger:    s.logger,
	}
	docs.register(api.Group("/documents"))
	if s.opts.OutputDir != "" {
		s.app.Static("/downloads", s.opts.OutputDir)
	}
}

func (s *server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.opts.Address))
	if err := s.app.Start(s.opts.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			s.logger.Info("request", fields...)
			return nil
		},
	})
}

func health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
