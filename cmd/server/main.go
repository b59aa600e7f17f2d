package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"plotline/internal/cache"
	"plotline/internal/capabilities"
	"plotline/internal/config"
	"plotline/internal/domain/repositories"
	storyRepo "plotline/internal/domain/repositories/story"
	"plotline/internal/handler"
	"plotline/internal/middleware"
	"plotline/internal/repository/memory"
	"plotline/internal/repository/postgres"
	postgresStory "plotline/internal/repository/postgres/story"
	serviceGeneration "plotline/internal/service/generation"
	"plotline/internal/service/generation/providers/anthropic"
	"plotline/internal/service/generation/providers/lorem"
	serviceStory "plotline/internal/service/story"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	var logOutput io.Writer = os.Stdout
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, "server", cfg.LogMaxFiles)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer logFile.Close()
		logOutput = io.MultiWriter(os.Stdout, logFile)
	}

	logger := slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"storage", cfg.Storage,
		"table_prefix", cfg.TablePrefix,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Repositories
	var (
		snippetRepo storyRepo.SnippetRepository
		branchRepo  storyRepo.BranchRepository
		txManager   repositories.TransactionManager
	)
	switch cfg.Storage {
	case "postgres":
		pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to create connection pool: %v", err)
		}
		defer pool.Close()

		tables := postgres.NewTableNames(cfg.TablePrefix)
		if err := postgres.EnsureSchema(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to ensure schema: %v", err)
		}
		logger.Info("database connected", "snippets_table", tables.Snippets)

		repoConfig := &postgres.RepositoryConfig{
			Pool:         pool,
			Tables:       tables,
			Logger:       logger,
			MaxPathDepth: cfg.MaxPathDepth,
		}
		snippetRepo = postgresStory.NewSnippetRepository(repoConfig)
		branchRepo = postgresStory.NewBranchRepository(repoConfig)
		txManager = postgres.NewTransactionManager(pool, logger)
	case "memory":
		store := memory.NewStore()
		store.SetMaxPathDepth(cfg.MaxPathDepth)
		snippetRepo = memory.NewSnippetRepository(store)
		branchRepo = memory.NewBranchRepository(store)
		txManager = store
		logger.Warn("using in-memory storage; stories are lost on restart")
	default:
		log.Fatalf("Unknown STORAGE %q (want postgres or memory)", cfg.Storage)
	}

	// Path cache (optional)
	var pathCache cache.PathCache = cache.Noop{}
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisPathCache(cfg.RedisURL, cfg.PathCacheTTL, logger)
		if err != nil {
			log.Fatalf("Failed to connect path cache: %v", err)
		}
		defer redisCache.Close()
		pathCache = redisCache
		logger.Info("path cache enabled", "ttl", cfg.PathCacheTTL.String())
	}

	// Generation providers
	capabilityRegistry, err := capabilities.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to initialize capability registry: %v", err)
	}
	providerRegistry := serviceGeneration.NewProviderRegistry(capabilityRegistry, logger)
	providerRegistry.Register(lorem.NewProvider(providerRegistry.LatencyFor))
	if cfg.AnthropicAPIKey != "" {
		anthropicProvider, err := anthropic.NewProvider(cfg.AnthropicAPIKey)
		if err != nil {
			log.Fatalf("Failed to create anthropic provider: %v", err)
		}
		providerRegistry.Register(anthropicProvider)
		logger.Info("anthropic provider registered")
	} else {
		logger.Info("ANTHROPIC_API_KEY not set; only lorem models are available")
	}

	// Services
	snippetService := serviceStory.NewSnippetService(snippetRepo, branchRepo, txManager, providerRegistry, pathCache, logger,
		serviceStory.WithMaxPathDepth(cfg.MaxPathDepth))
	branchService := serviceStory.NewBranchService(branchRepo, snippetRepo, pathCache, logger)
	generationService := serviceGeneration.NewService(providerRegistry, snippetService, cfg.DefaultModel, logger)

	logger.Info("services initialized", "default_model", cfg.DefaultModel)

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, &handler.Handlers{
		Snippets:   handler.NewSnippetHandler(snippetService, logger),
		Branches:   handler.NewBranchHandler(branchService, logger),
		Generation: handler.NewGenerationHandler(generationService, logger),
		Models:     handler.NewModelsHandler(providerRegistry, cfg.DefaultModel, logger),
	})

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → request id → Recovery → request logging → Routes
	var h http.Handler = mux
	h = middleware.RequestLogger(logger)(h)
	h = middleware.Recovery(logger)(h)
	h = middleware.RequestID(h)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute, // generation requests may run for two minutes
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Failed to start server: %v", err)
	}
	logger.Info("server stopped")
}
