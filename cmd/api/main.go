package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/junhao/promptflow/internal/api"
	"github.com/junhao/promptflow/internal/api/middleware"
	"github.com/junhao/promptflow/internal/config"
	"github.com/junhao/promptflow/internal/logger"
	"github.com/junhao/promptflow/internal/repository"
	"github.com/junhao/promptflow/internal/service"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.New(logger.DefaultConfig())
	logger.SetDefault(appLogger)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize repositories
	promptRepo := repository.NewPromptRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	tagRepo := repository.NewTagRepository(db)

	// Seed default categories and tags
	ctx := context.Background()
	if err := repository.Seed(ctx, categoryRepo, tagRepo); err != nil {
		appLogger.Fatalf("Failed to seed default data: %v", err)
	}

	// Initialize classification pipeline
	ruleClassifier := service.NewRuleClassifier(service.DefaultRuleConfig())
	arbiter := service.NewArbiter(&service.ArbiterConfig{
		BaseURL:     cfg.API.BaseURL,
		APIKey:      cfg.API.Key,
		Model:       cfg.API.Model,
		Temperature: cfg.Classify.Temperature,
		MaxTokens:   cfg.Classify.MaxTokens,
		Timeout:     cfg.API.Timeout,
	}, categoryRepo)
	classificationService := service.NewClassificationService(
		ruleClassifier,
		arbiter,
		promptRepo,
		tagRepo,
		service.ClassificationConfig{
			ConfidenceThreshold: cfg.Classify.ConfidenceThreshold,
			BatchSize:           cfg.Classify.BatchSize,
			BatchDelay:          cfg.Classify.BatchDelay,
			ReclassifyDelay:     cfg.Classify.ReclassifyDelay,
		},
	)

	// Initialize generation service
	generationService := service.NewGenerationService(service.GenerationConfig{
		BaseURL:       cfg.API.BaseURL,
		APIKey:        cfg.API.Key,
		Model:         cfg.API.Model,
		Temperature:   cfg.API.Temperature,
		MaxTokens:     cfg.API.MaxTokens,
		Timeout:       cfg.API.Timeout,
		StreamTimeout: cfg.API.StreamTimeout,
	}, promptRepo, classificationService)

	historyService := service.NewHistoryService(promptRepo)
	categoryService := service.NewCategoryService(categoryRepo, promptRepo)
	tagService := service.NewTagService(tagRepo, promptRepo)

	// Setup router
	router := api.SetupRouter(api.Services{
		Generation:     generationService,
		History:        historyService,
		Category:       categoryService,
		Tag:            tagService,
		Classification: classificationService,
	}, cfg.Server.Mode, middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.Infof("Starting API server: port=%d, mode=%s", cfg.Server.Port, cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatalf("Server forced to shutdown: %v", err)
	}

	appLogger.Info("Server exited")
}
