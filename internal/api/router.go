package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mweber/stocklens/internal/api/handler"
	"github.com/mweber/stocklens/internal/api/middleware"
	"github.com/mweber/stocklens/internal/service"
)

// RouterConfig carries the collaborators and settings the router needs.
type RouterConfig struct {
	Queue          *service.PipelineQueue
	Runs           *service.RunRegistry
	Query          *service.QueryService
	Catalog        service.Catalog
	Remover        handler.DatasetRemover
	EmbeddingModel string
	DefaultLimit   int
	DefaultTopK    int
	Mode           string
	CORS           middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes.
func SetupRouter(cfg RouterConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler()
	pipelineHandler := handler.NewPipelineHandler(cfg.Queue, cfg.Runs, cfg.DefaultLimit)
	queryHandler := handler.NewQueryHandler(cfg.Query, cfg.DefaultTopK)
	collectionsHandler := handler.NewCollectionsHandler(cfg.Catalog, cfg.Remover)
	modelsHandler := handler.NewModelsHandler(cfg.EmbeddingModel)

	r.GET("/", healthHandler.Root)
	r.GET("/health", healthHandler.Health)

	r.POST("/collect-data", pipelineHandler.CollectData)
	r.GET("/pipeline-status", pipelineHandler.ListRuns)
	r.GET("/pipeline-status/:name", pipelineHandler.PipelineStatus)
	r.POST("/query", queryHandler.Query)
	r.GET("/collections", collectionsHandler.ListCollections)
	r.DELETE("/collections/:name", collectionsHandler.DeleteCollection)
	r.GET("/models", modelsHandler.ListModels)

	return r
}
