package server

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"chatanything/app/api"
	"chatanything/app/deps"
	"chatanything/app/middleware"
	"chatanything/config"
	"chatanything/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

const (
	mediaPrefix   = "/media"
	sessionMaxAge = 30 * 24 * time.Hour
	bodyLimit     = 512 << 20
)

type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	app    *fiber.App
	deps   *deps.Deps
}

func NewServer(cfg *config.Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: slog.Default(),
	}
}

// Init builds the application state and the routes.
func (s *Server) Init(ctx context.Context) error {
	d, err := deps.Build(ctx, s.cfg)
	if err != nil {
		return err
	}
	s.deps = d

	if err := os.MkdirAll(filepath.Join(s.cfg.Server.MediaDir, "audio"), 0o755); err != nil {
		return err
	}
	s.app = NewApp(d)
	return nil
}

// Run serves until Stop is called.
func (s *Server) Run() error {
	s.logger.Info("server started", "addr", s.cfg.Server.Addr, "backend", s.cfg.Backend, "model", s.deps.Agent.Model())
	if err := s.app.Listen(s.cfg.Server.Addr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
		return err
	}
	return nil
}

func (s *Server) Stop() {
	if s.app != nil {
		if err := s.app.ShutdownWithTimeout(10 * time.Second); err != nil {
			s.logger.Error("error to stop server", "error", err.Error())
		}
	}
	if s.deps != nil {
		if err := s.deps.Close(); err != nil {
			s.logger.Error("error to release resources", "error", err.Error())
		}
	}
	s.logger.Info("server stopped")
}

// NewApp wires the HTTP routes onto the application state.
func NewApp(d *deps.Deps) *fiber.App {
	var (
		app = fiber.New(fiber.Config{
			ErrorHandler: api.ErrorHandler,
			BodyLimit:    bodyLimit,
		})
		checkHandler    = api.NewCheckHandler()
		pageHandler     = api.NewPageHandler(d.Config.Server.ReadmePath)
		uploadHandler   = api.NewUploadHandler(d.Pipeline, d.Config.Server.UploadDir)
		chatHandler     = api.NewChatHandler(d.Agent, d.Transcripts, d.Library)
		documentHandler = api.NewDocumentHandler(d.Library)
		configHandler   = api.NewConfigHandler(d.Config, d.Speech)
		check           = app.Group("/check")
		apiv1           = app.Group("/api/v1", middleware.Session(sessionMaxAge))
	)

	check.Get("/healthy", checkHandler.HandleHealthy)
	app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))

	app.Use(mediaPrefix, middleware.PlugStatic(mediaPrefix))
	if local, ok := d.Stage.(*store.LocalStage); ok && local.Signed() {
		app.Use(local.PublicBase(), middleware.SignedLinks(local.PublicBase(), local))
	}
	app.Static(mediaPrefix, d.Config.Server.MediaDir, fiber.Static{ByteRange: true})

	apiv1.Get("/pages", pageHandler.HandlePages)
	apiv1.Get("/about", pageHandler.HandleAbout)
	apiv1.Get("/settings", configHandler.HandleGetConfig)

	apiv1.Get("/upload/types", uploadHandler.HandleTypes)
	apiv1.Post("/upload", uploadHandler.HandleFile)
	apiv1.Post("/upload/url", uploadHandler.HandleURL)

	apiv1.Get("/chat", chatHandler.HandleHistory)
	apiv1.Post("/chat", chatHandler.HandleAsk)
	apiv1.Delete("/chat", chatHandler.HandleClear)
	apiv1.Get("/chat/categories", chatHandler.HandleCategories)

	apiv1.Get("/documents", documentHandler.HandleList)
	apiv1.Delete("/documents", documentHandler.HandleDelete)

	return app
}
