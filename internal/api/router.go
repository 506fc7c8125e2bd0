package api

import (
	"github.com/gin-gonic/gin"
	"github.com/junhao/promptflow/internal/api/handler"
	"github.com/junhao/promptflow/internal/api/middleware"
	"github.com/junhao/promptflow/internal/service"
)

// Services bundles the service instances the router wires handlers to.
type Services struct {
	Generation     *service.GenerationService
	History        *service.HistoryService
	Category       *service.CategoryService
	Tag            *service.TagService
	Classification *service.ClassificationService
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(services Services, mode string, cors middleware.CORSConfig) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cors))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	generateHandler := handler.NewGenerateHandler(services.Generation)
	historyHandler := handler.NewHistoryHandler(services.History)
	categoryHandler := handler.NewCategoryHandler(services.Category)
	tagHandler := handler.NewTagHandler(services.Tag)
	adminHandler := handler.NewAdminHandler(services.Classification)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API routes
	api := r.Group("/api")
	{
		// Generation
		api.POST("/generate-prompt", generateHandler.Generate)
		api.POST("/generate-prompt/stream", generateHandler.GenerateStream)

		// History
		api.GET("/prompts", historyHandler.List)
		api.GET("/prompts/recent", historyHandler.ListRecent)
		api.GET("/prompts/category-counts", historyHandler.CountByCategory)
		api.GET("/prompts/:id", historyHandler.Get)
		api.POST("/prompts/:id/like", historyHandler.Like)
		api.DELETE("/prompts/:id", historyHandler.Delete)

		// Categories
		api.GET("/categories", categoryHandler.List)
		api.GET("/categories/:id", categoryHandler.Get)

		// Tags
		api.GET("/tags", tagHandler.List)
		api.GET("/tags/popular", tagHandler.ListPopular)
		api.GET("/tags/:id/prompts", tagHandler.Prompts)

		// Admin
		admin := api.Group("/admin")
		{
			admin.POST("/classify-batch", adminHandler.ClassifyBatch)
			admin.POST("/reclassify-all", adminHandler.ReclassifyAll)
			admin.GET("/classify-status", adminHandler.BatchStatus)
			admin.GET("/stats", generateHandler.Stats)
		}
	}

	return r
}
