package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/junhao/promptflow/internal/service"
)

// CategoryHandler handles category endpoints.
type CategoryHandler struct {
	categoryService *service.CategoryService
}

// NewCategoryHandler creates a new category handler.
func NewCategoryHandler(categoryService *service.CategoryService) *CategoryHandler {
	return &CategoryHandler{categoryService: categoryService}
}

// List handles GET /api/categories.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *CategoryHandler) List(c *gin.Context) {
	categories, err := h.categoryService.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get categories: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"categories": categories,
		"total":      len(categories),
	})
}

// Get handles GET /api/categories/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *CategoryHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	category, err := h.categoryService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrCategoryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get category: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, category)
}

// TagHandler handles tag endpoints.
type TagHandler struct {
	tagService *service.TagService
}

// NewTagHandler creates a new tag handler.
func NewTagHandler(tagService *service.TagService) *TagHandler {
	return &TagHandler{tagService: tagService}
}

// List handles GET /api/tags.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *TagHandler) List(c *gin.Context) {
	tags, err := h.tagService.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get tags: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tags":  tags,
		"total": len(tags),
	})
}

// ListPopular handles GET /api/tags/popular.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *TagHandler) ListPopular(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	tags, err := h.tagService.ListPopular(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get popular tags: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tags":  tags,
		"total": len(tags),
	})
}

// Prompts handles GET /api/tags/:id/prompts.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *TagHandler) Prompts(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.tagService.PromptsByTag(c.Request.Context(), id, page, pageSize)
	if err != nil {
		if errors.Is(err, service.ErrTagNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tag not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get prompts by tag: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
