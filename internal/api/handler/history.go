package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/junhao/promptflow/internal/repository"
	"github.com/junhao/promptflow/internal/service"
)

// HistoryHandler handles prompt history endpoints.
type HistoryHandler struct {
	historyService *service.HistoryService
}

// NewHistoryHandler creates a new history handler.
// Parameters:
//   - historyService: history service instance.
// Returns:
//   - *HistoryHandler: initialized handler.
func NewHistoryHandler(historyService *service.HistoryService) *HistoryHandler {
	return &HistoryHandler{
		historyService: historyService,
	}
}

// List handles GET /api/prompts.
// Supports category_id, keyword, sort_by, page and page_size query params.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *HistoryHandler) List(c *gin.Context) {
	filter := repository.ListFilter{
		Keyword: c.Query("keyword"),
		SortBy:  c.Query("sort_by"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	if raw := c.Query("category_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category_id"})
			return
		}
		categoryID := uint(id)
		filter.CategoryID = &categoryID
	}

	result, err := h.historyService.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list prompts: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListRecent handles GET /api/prompts/recent.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *HistoryHandler) ListRecent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	prompts, err := h.historyService.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list recent prompts: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": prompts,
		"total": len(prompts),
	})
}

// Get handles GET /api/prompts/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *HistoryHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	prompt, err := h.historyService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrPromptNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Prompt not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get prompt: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, prompt)
}

// Like handles POST /api/prompts/:id/like.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *HistoryHandler) Like(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.historyService.Like(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrPromptNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Prompt not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to like prompt: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// Delete handles DELETE /api/prompts/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *HistoryHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.historyService.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrPromptNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Prompt not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete prompt: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// CountByCategory handles GET /api/prompts/category-counts.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *HistoryHandler) CountByCategory(c *gin.Context) {
	counts, err := h.historyService.CountByCategory(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to count prompts: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

// parseID reads the :id path parameter, writing a 400 response when it is
// not a valid positive integer.
func parseID(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return uint(id), true
}
