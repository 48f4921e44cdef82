package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"google.golang.org/genai"

	_ "github.com/caseready/petition-score-api/api/swagger"
	"github.com/caseready/petition-score-api/internal/coordinator"
	"github.com/caseready/petition-score-api/internal/corpus"
	"github.com/caseready/petition-score-api/internal/extract"
	"github.com/caseready/petition-score-api/internal/handler"
	"github.com/caseready/petition-score-api/internal/middleware"
	"github.com/caseready/petition-score-api/internal/repository"
	"github.com/caseready/petition-score-api/internal/scoring"
	"github.com/caseready/petition-score-api/internal/service"
	"github.com/caseready/petition-score-api/pkg/cache"
	"github.com/caseready/petition-score-api/pkg/config"
	"github.com/caseready/petition-score-api/pkg/database"
	"github.com/caseready/petition-score-api/pkg/logger"
	corsmiddleware "github.com/caseready/petition-score-api/pkg/middleware/cors"
	reqidmiddleware "github.com/caseready/petition-score-api/pkg/middleware/requestid"
	"github.com/caseready/petition-score-api/pkg/storage"
)

// @title Petition Score API
// @version 1.0.0
// @description Document scoring service for immigration petitions
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, running without cache", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	blobs, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}

	if ttl := cfg.Uploads.RetentionTTL; ttl > 0 {
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					removed, err := blobs.CleanupOlderThan(ttl)
					if err != nil {
						logr.Sugar().Warnw("upload cleanup failed", "error", err)
					} else if len(removed) > 0 {
						logr.Sugar().Infow("expired uploads removed", "count", len(removed))
					}
				}
			}
		}()
	}

	aiClient, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.AI.APIKey})
	if err != nil {
		logr.Sugar().Fatalw("failed to init ai client", "error", err)
	}

	sessionRepo := repository.NewSessionRepository(db)
	fileRepo := repository.NewFileRepository(db)
	resultRepo := repository.NewResultRepository(db)
	chatRepo := repository.NewChatRepository(db)

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, 10*time.Minute, logr, redisClient != nil)
	statusCache := service.NewStatusCache(cacheSvc)

	ocr := extract.NewGeminiOCR(aiClient, cfg.AI.OCRModel, logr)
	extractor := extract.NewExtractor(extract.Config{
		Pdftotext:        cfg.Extraction.Pdftotext,
		FastPathMinChars: cfg.Extraction.FastPathMinChars,
		OCRMaxFileBytes:  cfg.Extraction.OCRMaxFileBytes,
		OCRTimeout:       cfg.Extraction.OCRTimeout,
	}, ocr, logr)
	assembler := corpus.NewAssembler(cfg.Corpus.MaxLength)

	geminiScorer, err := scoring.NewGeminiScorer(aiClient, cfg.AI.ScoringModel, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init scorer", "error", err)
	}
	orchestrator := scoring.NewOrchestrator(geminiScorer, logr)

	coord := coordinator.New(
		sessionRepo,
		fileRepo,
		resultRepo,
		blobs,
		extractor,
		assembler,
		orchestrator,
		statusCache,
		metricsSvc,
		logr,
		coordinator.Config{
			Workers:        cfg.Jobs.Workers,
			StepRetries:    cfg.Jobs.MaxRetries,
			RetryDelay:     cfg.Jobs.RetryDelay,
			ScoringTimeout: cfg.Jobs.ScoringTimeout,
			SkipMinChars:   cfg.Extraction.SkipMinChars,
		},
	)
	coord.Start(ctx)
	defer coord.Stop()

	if err := coord.RecoverPending(ctx); err != nil {
		logr.Sugar().Warnw("failed to recover pending sessions", "error", err)
	}

	sessionSvc := service.NewSessionService(
		sessionRepo,
		fileRepo,
		resultRepo,
		blobs,
		coord,
		statusCache,
		service.UploadLimits{
			MaxFileSizeBytes: cfg.Uploads.MaxFileSizeBytes,
			AllowedMIMEs:     cfg.Uploads.AllowedMIMEs,
		},
		logr,
	)
	chatSvc := service.NewChatService(
		sessionRepo,
		resultRepo,
		chatRepo,
		service.NewGeminiChat(aiClient, cfg.AI.ChatModel),
		cfg.Chat.HistoryLimit,
		logr,
	)
	exportSvc := service.NewExportService(sessionRepo, resultRepo, logr)
	authSvc := service.NewAuthService(cfg.Auth.Secret)

	sessionHandler := handler.NewSessionHandler(sessionSvc)
	chatHandler := handler.NewChatHandler(chatSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	healthHandler := handler.NewHealthHandler(db, redisClient)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	if cfg.Auth.Enabled {
		api.Use(middleware.JWT(authSvc))
	}

	sessions := api.Group("/sessions")
	{
		sessions.POST("", sessionHandler.Create)
		sessions.GET("/:id", sessionHandler.Get)
		sessions.GET("/:id/detail", sessionHandler.Detail)
		sessions.POST("/:id/files", sessionHandler.Upload)
		sessions.POST("/:id/score", sessionHandler.Score)
		sessions.GET("/:id/results", sessionHandler.Results)
		if cfg.Reports.Enabled {
			sessions.GET("/:id/report.pdf", exportHandler.Report)
		}
		if cfg.Chat.Enabled {
			sessions.POST("/:id/chat", chatHandler.Ask)
			sessions.GET("/:id/chat", chatHandler.History)
		}
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
