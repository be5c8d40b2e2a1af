package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mweber/stocklens/internal/domain"
	"github.com/mweber/stocklens/internal/service"
)

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	StockSymbol string `json:"stock_symbol" binding:"required"`
	Question    string `json:"question" binding:"required"`
	TopK        int    `json:"top_k"`
}

// QueryHandler handles question answering over ingested datasets.
type QueryHandler struct {
	query       *service.QueryService
	defaultTopK int
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(query *service.QueryService, defaultTopK int) *QueryHandler {
	return &QueryHandler{
		query:       query,
		defaultTopK: defaultTopK,
	}
}

// Query handles POST /query.
func (h *QueryHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.StockSymbol))
	topK := req.TopK
	if topK <= 0 {
		topK = h.defaultTopK
	}

	result, err := h.query.Ask(c.Request.Context(), symbol, req.Question, topK)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "No data collected for symbol: " + symbol,
			})
		case errors.Is(err, domain.ErrEmptyResult):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "No relevant posts found for symbol: " + symbol,
			})
		case errors.Is(err, domain.ErrEmptyAnswer):
			c.JSON(http.StatusBadGateway, gin.H{
				"error": "Language model returned an empty answer",
			})
		default:
			c.JSON(http.StatusBadGateway, gin.H{
				"error": "Query failed: " + err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}
