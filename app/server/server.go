package server

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"manualqa/app/api"
	"manualqa/app/middleware"
	"manualqa/chunker"
	"manualqa/index"
	"manualqa/model"
	"manualqa/search"
	"manualqa/store"
)

var fiberConfig = fiber.Config{
	ErrorHandler:          api.ErrorHandler,
	DisableStartupMessage: true,
}

// Deps carries everything the HTTP layer needs. Construction and
// lifecycle of these belong to the caller; the server only wires routes.
type Deps struct {
	Addr     string
	Store    store.Storer
	Embedder model.Embedder
	Manager  *index.Manager
	Search   *search.Service
	Chunk    chunker.Options
	Log      *slog.Logger
}

type Server struct {
	deps Deps
	log  *slog.Logger
	app  *fiber.App
}

func New(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		deps: deps,
		log:  log.With("component", "server"),
	}
}

// Run blocks serving HTTP until Stop is called or the listener fails.
func (s *Server) Run() error {
	s.app = s.newApp()
	s.log.Info("listening", "addr", s.deps.Addr)
	return s.app.Listen(s.deps.Addr)
}

func (s *Server) newApp() *fiber.App {
	app := fiber.New(fiberConfig)
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger(s.log))

	var (
		checkHandler    = api.NewCheckHandler(s.deps.Store)
		productHandler  = api.NewProductHandler(s.deps.Store)
		documentHandler = api.NewDocumentHandler(s.deps.Store)
		chunkHandler    = api.NewChunkHandler(s.deps.Store, s.deps.Embedder, s.deps.Chunk)
		searchHandler   = api.NewSearchHandler(s.deps.Search)
		feedbackHandler = api.NewFeedbackHandler(s.deps.Store)
		adminHandler    = api.NewAdminHandler(s.deps.Manager)

		check = app.Group("/check")
		apiv1 = app.Group("/api/v1")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)
	check.Get("/db", checkHandler.HandleDB)

	apiv1.Post("/products", productHandler.HandleCreateProduct)
	apiv1.Get("/products", productHandler.HandleListProducts)
	apiv1.Get("/products/:id", productHandler.HandleGetProduct)

	apiv1.Post("/documents", documentHandler.HandleCreateDocument)
	apiv1.Get("/documents", documentHandler.HandleListDocuments)
	apiv1.Get("/documents/:id", documentHandler.HandleGetDocument)
	apiv1.Delete("/documents/:id", documentHandler.HandleDeleteDocument)
	apiv1.Put("/documents/:id/toc", documentHandler.HandleReplaceTOC)
	apiv1.Get("/documents/:id/toc", documentHandler.HandleGetTOC)
	apiv1.Put("/documents/:id/pages", documentHandler.HandleUpsertPages)
	apiv1.Get("/documents/:id/pages", documentHandler.HandleGetPages)

	apiv1.Post("/documents/:id/chunks", chunkHandler.HandleBuildChunks)
	apiv1.Get("/documents/:id/chunks", chunkHandler.HandleGetChunks)
	apiv1.Post("/documents/:id/embed", chunkHandler.HandleEmbedDocument)

	apiv1.Post("/search", searchHandler.HandleSearch)

	apiv1.Post("/feedback", feedbackHandler.HandleCreateFeedback)
	apiv1.Post("/requests", feedbackHandler.HandleCreateManualRequest)

	apiv1.Post("/admin/index/refresh", adminHandler.HandleIndexRefresh)
	apiv1.Get("/admin/index/stats", adminHandler.HandleIndexStats)

	return app
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.app == nil {
		return nil
	}
	s.log.Info("server stopping")
	return s.app.ShutdownWithContext(ctx)
}
