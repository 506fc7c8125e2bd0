package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/junhao/promptflow/internal/domain"
	"github.com/junhao/promptflow/internal/logger"
	"github.com/junhao/promptflow/internal/service"
)

// GenerateHandler handles prompt generation endpoints.
type GenerateHandler struct {
	generationService *service.GenerationService
}

// NewGenerateHandler creates a new generate handler.
// Parameters:
//   - generationService: generation service instance.
// Returns:
//   - *GenerateHandler: initialized handler.
func NewGenerateHandler(generationService *service.GenerationService) *GenerateHandler {
	return &GenerateHandler{
		generationService: generationService,
	}
}

// GenerateResponse represents the generation API response.
type GenerateResponse struct {
	Prompt string `json:"prompt"`
	Cached bool   `json:"cached"`
}

// Generate handles POST /api/generate-prompt.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *GenerateHandler) Generate(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.PromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	text, cached, err := h.generationService.Generate(ctx, &req)
	if err != nil {
		if errors.Is(err, service.ErrTaskDescriptionRequired) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.CtxError(ctx, "Generation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Generation failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, GenerateResponse{Prompt: text, Cached: cached})
}

// streamEvent is one SSE data payload carrying a text chunk.
type streamEvent struct {
	Content string `json:"content"`
}

// GenerateStream handles POST /api/generate-prompt/stream. Chunks are
// written as SSE data lines; the stream ends with a [DONE] marker.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes SSE response).
func (h *GenerateHandler) GenerateStream(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.PromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	if !req.Validate() {
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrTaskDescriptionRequired.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, _ := c.Writer.(http.Flusher)
	send := func(chunk string) error {
		payload, err := json.Marshal(streamEvent{Content: chunk})
		if err != nil {
			return err
		}
		if _, err := c.Writer.WriteString("data: " + string(payload) + "\n\n"); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	if err := h.generationService.GenerateStream(ctx, &req, send); err != nil {
		// Headers are already committed, report inside the stream.
		logger.CtxError(ctx, "Stream generation failed: %v", err)
		c.Writer.WriteString("data: {\"error\":\"generation failed\"}\n\n")
		if flusher != nil {
			flusher.Flush()
		}
		return
	}

	c.Writer.WriteString("data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

// Stats handles GET /api/admin/stats.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *GenerateHandler) Stats(c *gin.Context) {
	stats, err := h.generationService.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get stats: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_count":      stats.TotalCount,
		"total_hits":       stats.TotalHits,
		"hit_rate":         stats.HitRate,
		"hit_rate_percent": stats.HitRatePercent(),
	})
}
