package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/junhao/promptflow/internal/logger"
	"github.com/junhao/promptflow/internal/service"
)

// AdminHandler handles admin operations.
type AdminHandler struct {
	classificationService *service.ClassificationService

	// Last run state, for the status endpoint
	mu            sync.RWMutex
	lastRunTime   time.Time
	lastRunStatus string
	lastRunCount  int
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - classificationService: classification pipeline instance.
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(classificationService *service.ClassificationService) *AdminHandler {
	return &AdminHandler{
		classificationService: classificationService,
	}
}

// BatchStatusResponse represents the last batch run state.
type BatchStatusResponse struct {
	LastRunTime   string `json:"last_run_time,omitempty"`
	LastRunStatus string `json:"last_run_status,omitempty"`
	LastRunCount  int    `json:"last_run_count"`
}

// ClassifyBatch handles POST /api/admin/classify-batch. Untagged prompts
// are classified one at a time; a run already in flight is rejected with
// HTTP 409.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) ClassifyBatch(c *gin.Context) {
	ctx := c.Request.Context()

	maxCount, _ := strconv.Atoi(c.DefaultQuery("max_count",
		strconv.Itoa(h.classificationService.BatchSize())))
	if maxCount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_count must be positive"})
		return
	}

	logger.CtxInfo(ctx, "Batch classification requested: max_count=%d, client_ip=%s",
		maxCount, c.ClientIP())

	h.runBatch(c, "classify-batch", func(runCtx context.Context) (int, error) {
		return h.classificationService.ClassifyUnclassified(runCtx, maxCount)
	})
}

// ReclassifyAll handles POST /api/admin/reclassify-all. All prompts have
// their classification cleared and rebuilt; a run already in flight is
// rejected with HTTP 409.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) ReclassifyAll(c *gin.Context) {
	ctx := c.Request.Context()

	logger.CtxInfo(ctx, "Full reclassification requested: client_ip=%s", c.ClientIP())

	h.runBatch(c, "reclassify-all", func(runCtx context.Context) (int, error) {
		return h.classificationService.ReclassifyAll(runCtx)
	})
}

// BatchStatus handles GET /api/admin/classify-status.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) BatchStatus(c *gin.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := BatchStatusResponse{
		LastRunStatus: h.lastRunStatus,
		LastRunCount:  h.lastRunCount,
	}
	if !h.lastRunTime.IsZero() {
		resp.LastRunTime = h.lastRunTime.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, resp)
}

// runBatch executes one batch operation synchronously with a detached
// context so an HTTP timeout does not abort the run mid-item, then records
// the outcome for the status endpoint.
func (h *AdminHandler) runBatch(c *gin.Context, name string, run func(context.Context) (int, error)) {
	ctx := c.Request.Context()

	runCtx := logger.WithFields(context.Background(), logger.Fields{
		logger.FieldBatchID:   uuid.New().String(),
		logger.FieldComponent: "classify",
	})

	startTime := time.Now()
	count, err := run(runCtx)
	duration := time.Since(startTime)

	if errors.Is(err, service.ErrBatchInFlight) {
		logger.CtxWarn(ctx, "Batch rejected, already running: op=%s, client_ip=%s", name, c.ClientIP())
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	h.mu.Lock()
	h.lastRunTime = time.Now()
	h.lastRunCount = count
	if err != nil {
		h.lastRunStatus = name + " failed: " + err.Error()
	} else {
		h.lastRunStatus = name + " success"
	}
	h.mu.Unlock()

	if err != nil {
		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldDurationMs: duration.Milliseconds(),
			logger.FieldCount:      count,
		}).Errorf("Batch failed: op=%s, error=%v", name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldDurationMs: duration.Milliseconds(),
		logger.FieldCount:      count,
	}).Infof("Batch completed: op=%s, processed=%d", name, count)

	c.JSON(http.StatusOK, gin.H{
		"message":   "Completed",
		"processed": count,
	})
}
