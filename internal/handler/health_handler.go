package handler

import (
	"context"
	"runtime"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/lvyanru/hitl-chat/internal/domain"
)

// HealthHandler health checks
type HealthHandler struct {
	store     domain.CheckpointStore
	startedAt time.Time
}

// NewHealthHandler creates the health handler
func NewHealthHandler(store domain.CheckpointStore) *HealthHandler {
	return &HealthHandler{
		store:     store,
		startedAt: time.Now(),
	}
}

// Ping GET /ping
func (h *HealthHandler) Ping(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{
		"status":  "ok",
		"message": "pong",
	})
}

// Health GET /health
func (h *HealthHandler) Health(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Detailed GET /health/detailed, 503 when the checkpoint store is unreachable
func (h *HealthHandler) Detailed(ctx context.Context, c *app.RequestContext) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	body := utils.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		"memory": utils.H{
			"alloc_bytes":       mem.Alloc,
			"total_alloc_bytes": mem.TotalAlloc,
			"sys_bytes":         mem.Sys,
			"num_gc":            mem.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
		"checkpoint": utils.H{"status": "healthy"},
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.store.Ping(pingCtx); err != nil {
		body["status"] = "degraded"
		body["checkpoint"] = utils.H{"status": "unhealthy", "error": err.Error()}
		c.JSON(consts.StatusServiceUnavailable, body)
		return
	}

	c.JSON(consts.StatusOK, body)
}
