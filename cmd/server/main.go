package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aidflow-backend/analysis"
	"aidflow-backend/config"
	"aidflow-backend/handlers"
	"aidflow-backend/logger"
	"aidflow-backend/repository"
	"aidflow-backend/service"
	"aidflow-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zl := logger.New(cfg.Log.Level, cfg.Log.Format)
	defer zl.Sync()
	log := logger.NewZapAdapter(zl)

	ctx := context.Background()

	// Initialize database connections
	db, err := initPostgres(ctx, cfg.Database.URL)
	if err != nil {
		zl.Fatal("Failed to initialize Postgres", zap.Error(err))
	}
	defer db.Close()
	zl.Info("Postgres connection established")

	// Initialize storage
	fileStorage, err := storage.NewStorage(ctx, storage.StorageConfig{
		Type:          storage.StorageType(cfg.Storage.Type),
		LocalPath:     cfg.Storage.LocalPath,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		S3Bucket:      cfg.Storage.S3Bucket,
		S3Region:      cfg.Storage.S3Region,
		AWSAccessKey:  cfg.Storage.AWSAccessKey,
		AWSSecretKey:  cfg.Storage.AWSSecretKey,
	})
	if err != nil {
		zl.Fatal("Failed to initialize storage", zap.Error(err))
	}
	zl.Info("Storage initialized", zap.String("type", cfg.Storage.Type))

	// Initialize repositories
	applicationRepo := repository.NewApplicationRepository(db)
	userRepo := repository.NewUserRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	jobRepo := repository.NewApplicationJobRepository(db)

	var programs repository.ProgramStore = repository.NewProgramRepository(db)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			zl.Warn("Redis unreachable, program cache falls back to Postgres", zap.Error(err))
		}
		programs = repository.NewCachedProgramStore(programs, rdb, cfg.Redis.ProgramCacheTTL, log)
		zl.Info("Program cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	// Initialize AI provider
	provider, err := analysis.NewProvider(ctx, analysis.ProviderConfig{
		Name:            cfg.AI.Provider,
		APIKey:          cfg.AI.APIKey(),
		Model:           cfg.AI.Model,
		MaxOutputTokens: cfg.AI.MaxOutputTokens,
		Temperature:     cfg.AI.Temperature,
		BaseURL:         cfg.AI.OpenAIBaseURL,
	})
	if err != nil {
		zl.Fatal("Failed to initialize AI provider", zap.Error(err))
	}
	analyzer := analysis.NewAnalyzer(provider,
		analysis.WithTimeout(cfg.AI.Timeout),
		analysis.WithMaxAttempts(cfg.AI.MaxAttempts),
		analysis.WithInitialBackoff(cfg.AI.InitialBackoff),
		analysis.WithLogger(log),
	)
	zl.Info("AI provider initialized", zap.String("provider", provider.Name()))

	// Initialize services
	applicationService := service.NewApplicationService(
		service.WithApplicationStore(applicationRepo),
		service.WithProgramStore(programs),
		service.WithUserStore(userRepo),
		service.WithStorage(fileStorage),
		service.WithAnalyzer(analyzer),
		service.WithServiceLogger(log),
		service.WithPersistOnAnalysisFailure(cfg.Pipeline.PersistOnAnalysisFailure),
		service.WithAbortOnUploadFailure(cfg.Pipeline.AbortOnUploadFailure),
	)

	jobService := service.NewJobService(
		service.WithJobStore(jobRepo),
		service.WithApplicationService(applicationService),
		service.WithJobLogger(log),
	)

	documentService := service.NewDocumentService(
		service.DocumentWithStore(documentRepo),
		service.DocumentWithUserStore(userRepo),
		service.DocumentWithStorage(fileStorage),
		service.DocumentWithLogger(log),
		service.DocumentWithMaxFileSize(cfg.Server.MaxUploadBytes),
	)

	// Initialize handlers
	applicationHandler := handlers.NewApplicationHandler(applicationService, jobService, log, cfg.Server.MaxUploadBytes)
	documentHandler := handlers.NewDocumentHandler(documentService, cfg.Server.MaxUploadBytes)

	// Setup Gin router
	gin.SetMode(cfg.Server.Mode)
	r := handlers.NewRouter(applicationHandler, documentHandler, log)
	if local, ok := fileStorage.(*storage.LocalStorage); ok {
		r.Static("/files", local.BasePath())
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		zl.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := applicationHandler.WaitForJobs(shutdownCtx); err != nil {
		zl.Error("Background application jobs still running at exit", zap.Error(err))
	}
}

func initPostgres(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
