package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"manualqa/app/server"
	"manualqa/chunker"
	"manualqa/config"
	"manualqa/index"
	"manualqa/model"
	"manualqa/search"
	"manualqa/store"
	"manualqa/types"
)

func init() {
	// .env is a dev convenience; real deployments set the environment.
	_ = godotenv.Load()
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, cleanup, err := newStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer cleanup()
	log.Info("store ready", "driver", cfg.StoreDriver)

	embedder, err := model.New(model.Options{
		Provider:    cfg.Embed.Provider,
		Dim:         cfg.Embed.Dim,
		Timeout:     cfg.Embed.Timeout.Std(),
		OllamaURL:   cfg.Embed.OllamaURL,
		OllamaModel: cfg.Embed.OllamaModel,
		OpenAIKey:   cfg.Embed.OpenAIKey,
		OpenAIModel: cfg.Embed.OpenAIModel,
	})
	if err != nil {
		return fmt.Errorf("build embedder: %w", err)
	}
	log.Info("embedder ready", "provider", embedder.Name(), "dim", embedder.Dim())

	manager := index.NewManager(st, index.Options{
		Dim:    cfg.Embed.Dim,
		Metric: types.Metric(cfg.Metric),
		Lists:  cfg.Index.Lists,
		Probes: cfg.Index.Probes,
		Seed:   cfg.Index.Seed,
	}, cfg.Index.RefreshInterval.Std(), log)
	go manager.Run(ctx)

	svc := search.NewService(embedder, manager, st, search.Config{
		PreviewMaxChars: cfg.Search.PreviewMaxChars,
		Timeout:         cfg.Search.Timeout.Std(),
	}, log)

	srv := server.New(server.Deps{
		Addr:     cfg.ServerAddr,
		Store:    st,
		Embedder: embedder,
		Manager:  manager,
		Search:   svc,
		Chunk: chunker.Options{
			MaxTokens: cfg.Chunk.MaxTokens,
			MaxChars:  cfg.Chunk.MaxChars,
		},
		Log: log,
	})

	errch := make(chan error, 1)
	go func() { errch <- srv.Run() }()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigch:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errch:
		return fmt.Errorf("server: %w", err)
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	return srv.Stop(shutdownCtx)
}

func newStore(ctx context.Context, cfg config.Config) (store.Storer, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		return store.NewMemoryStore(cfg.Embed.Dim), func() {}, nil
	default:
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.Embed.Dim, types.Metric(cfg.Metric))
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Init(ctx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("init schema: %w", err)
		}
		return pg, func() { pg.Close() }, nil
	}
}
