package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mweber/stocklens/internal/dataset"
	"github.com/mweber/stocklens/internal/domain"
	"github.com/mweber/stocklens/internal/service"
)

// CollectRequest is the body of POST /collect-data.
type CollectRequest struct {
	StockSymbol string `json:"stock_symbol" binding:"required"`
	SearchQuery string `json:"search_query"`
	Limit       int    `json:"limit"`
}

// PipelineHandler handles ingestion endpoints.
type PipelineHandler struct {
	queue        *service.PipelineQueue
	runs         *service.RunRegistry
	defaultLimit int
}

// NewPipelineHandler creates a new pipeline handler.
func NewPipelineHandler(queue *service.PipelineQueue, runs *service.RunRegistry, defaultLimit int) *PipelineHandler {
	return &PipelineHandler{
		queue:        queue,
		runs:         runs,
		defaultLimit: defaultLimit,
	}
}

// CollectData handles POST /collect-data. The run executes in the
// background; the response carries the collection name to poll.
func (h *PipelineHandler) CollectData(c *gin.Context) {
	var req CollectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.StockSymbol))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "stock_symbol must not be empty",
		})
		return
	}

	query := strings.TrimSpace(req.SearchQuery)
	if query == "" {
		query = fmt.Sprintf("%s stock", symbol)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = h.defaultLimit
	}

	name := dataset.GenerateName(symbol, time.Now().UTC())
	job := service.Job{
		Name:   name,
		Symbol: symbol,
		Query:  query,
		Limit:  limit,
	}

	if err := h.queue.Enqueue(job); err != nil {
		if errors.Is(err, service.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Ingestion queue is full, try again later",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to start pipeline: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":          "started",
		"message":         fmt.Sprintf("Data collection started for %s", symbol),
		"collection_name": name,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

// ListRuns handles GET /pipeline-status: the names of every run known to
// this process, queryable individually via /pipeline-status/:name.
func (h *PipelineHandler) ListRuns(c *gin.Context) {
	names := h.runs.Names()
	c.JSON(http.StatusOK, gin.H{
		"runs":  names,
		"total": len(names),
	})
}

// PipelineStatus handles GET /pipeline-status/:name.
func (h *PipelineHandler) PipelineStatus(c *gin.Context) {
	name := c.Param("name")

	run, ok := h.runs.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No pipeline run found for collection: " + name,
		})
		return
	}

	c.JSON(http.StatusOK, run)
}

// DatasetRemover deletes a dataset across the vector store, the local
// files, the archive, and the catalog.
type DatasetRemover interface {
	DeleteDataset(ctx context.Context, name string) error
}

// CollectionsHandler handles the /collections endpoints.
type CollectionsHandler struct {
	catalog service.Catalog
	remover DatasetRemover
}

// NewCollectionsHandler creates a new collections handler.
func NewCollectionsHandler(catalog service.Catalog, remover DatasetRemover) *CollectionsHandler {
	return &CollectionsHandler{catalog: catalog, remover: remover}
}

// ListCollections handles GET /collections.
func (h *CollectionsHandler) ListCollections(c *gin.Context) {
	datasets, err := h.catalog.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list collections: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"collections": datasets,
		"total":       len(datasets),
	})
}

// DeleteCollection handles DELETE /collections/:name.
func (h *CollectionsHandler) DeleteCollection(c *gin.Context) {
	name := c.Param("name")

	if err := h.remover.DeleteDataset(c.Request.Context(), name); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "No collection found with name: " + name,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete collection: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "deleted",
		"collection_name": name,
	})
}

// ModelsHandler handles GET /models from the embedding registry.
type ModelsHandler struct {
	active string
}

// NewModelsHandler creates a new models handler. active is the name of the
// currently configured embedding model.
func NewModelsHandler(active string) *ModelsHandler {
	return &ModelsHandler{active: active}
}

// ListModels handles GET /models.
func (h *ModelsHandler) ListModels(c *gin.Context) {
	type modelEntry struct {
		service.ModelInfo
		Active bool `json:"active"`
	}

	models := service.Models()
	entries := make([]modelEntry, 0, len(models))
	for _, m := range models {
		entries = append(entries, modelEntry{ModelInfo: m, Active: m.Name == h.active})
	}

	c.JSON(http.StatusOK, gin.H{
		"models": entries,
		"total":  len(entries),
	})
}
