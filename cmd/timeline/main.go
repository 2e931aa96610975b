package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hray3182/Timeline/internal/ai"
	"github.com/hray3182/Timeline/internal/api"
	"github.com/hray3182/Timeline/internal/auth"
	"github.com/hray3182/Timeline/internal/bot"
	"github.com/hray3182/Timeline/internal/bot/handlers"
	"github.com/hray3182/Timeline/internal/config"
	"github.com/hray3182/Timeline/internal/database"
	"github.com/hray3182/Timeline/internal/embedding"
	"github.com/hray3182/Timeline/internal/feed"
	"github.com/hray3182/Timeline/internal/localstore"
	"github.com/hray3182/Timeline/internal/logging"
	"github.com/hray3182/Timeline/internal/manager"
	"github.com/hray3182/Timeline/internal/repository"
	"github.com/hray3182/Timeline/internal/scheduler"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Timeline stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	loc := cfg.Location()

	local, err := localstore.Open(cfg.LocalDBPath)
	if err != nil {
		return err
	}
	defer local.Close()
	logger.Info("Opened local store", zap.String("path", cfg.LocalDBPath))

	// Without a database the manager runs local-only
	var store manager.Store
	if cfg.DatabaseURI != "" {
		db, err := database.New(ctx, cfg.DatabaseURI)
		if err != nil {
			return err
		}
		defer db.Close()
		logger.Info("Connected to database")

		if err := db.Migrate(ctx, logger); err != nil {
			return err
		}
		store = repository.NewTaskLogRepository(db, logger)
	} else {
		logger.Info("DATABASE_URI not set, running local-only")
	}

	var aiClient *ai.Client
	if cfg.AIAPIKey != "" {
		aiClient = ai.New(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel, cfg.EmbeddingModel)
		logger.Info("AI client initialized", zap.String("model", cfg.AIModel))
	} else {
		logger.Info("AI client not configured, natural language features disabled")
	}

	var embedder embedding.Embedder = embedding.NewHashEmbedder()
	if cfg.EmbeddingProvider == "openai" {
		embedder = aiClient
	}
	logger.Info("Embedding provider", zap.String("provider", cfg.EmbeddingProvider))

	opts := manager.Options{
		BootstrapMode: cfg.BootstrapMode,
		SyncOnLogin:   cfg.SyncOnLogin,
		RemoteTimeout: cfg.RemoteTimeout,
		EmbedTimeout:  cfg.EmbedTimeout,
	}
	if cfg.RedisURL != "" {
		publisher, err := feed.New(ctx, cfg.RedisURL, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts.Publisher = publisher
	}

	provider := auth.NewProvider(cfg.AuthJWTSecret, local, logger)
	if !provider.Enabled() {
		logger.Warn("AUTH_JWT_SECRET not set, sign-in disabled")
	}

	mgr := manager.New(local, store, embedding.NewGenerator(embedder), provider, logger, opts)
	defer mgr.Close()
	if err := mgr.Start(ctx); err != nil {
		return err
	}
	logger.Info("Events loaded", zap.Int("count", len(mgr.Events())))

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	handler := api.NewHandler(mgr, logger, loc)
	server := api.NewServer(cfg.HTTPListen, handler.Router(cfg.CORSOrigins), logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	var notifier scheduler.Notifier
	if cfg.TelegramToken != "" {
		tgAPI, err := bot.Connect(cfg.TelegramToken)
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}

		var parser handlers.EventParser
		if aiClient != nil {
			parser = aiClient
		}
		b := bot.New(tgAPI, mgr, parser, cfg.TelegramOwnerID, loc, logger)
		notifier = b

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
	} else {
		logger.Info("TELEGRAM_TOKEN not set, bot disabled")
	}

	sched, err := scheduler.New(mgr, notifier, scheduler.Config{
		SyncSpec:     cfg.SyncCron,
		BackfillSpec: cfg.BackfillCron,
		NotifySpec:   cfg.NotifyCron,
		NotifyBefore: cfg.NotifyBefore,
	}, logger)
	if err != nil {
		cancel()
		wg.Wait()
		return err
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err = <-errCh:
		logger.Error("Component failed, shutting down", zap.Error(err))
	}
	cancel()
	wg.Wait()
	return err
}
