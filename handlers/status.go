package handlers

import (
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"

	"netsentry/services"
)

var startTime = time.Now()

// GetStatus returns a process and pipeline summary for operators.
// GET /status
func (h *Handler) GetStatus(c *fiber.Ctx) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	patternCount, patternBytes := h.Store.Stats(services.AttackPatternCollection)

	return c.JSON(fiber.Map{
		"uptime":         time.Since(startTime).Round(time.Second).String(),
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc":     mem.HeapAlloc,
		"subscribers":    h.Dispatcher.SubscriberCount(),
		"blocked_count":  h.Blocker.Statistics().CurrentlyBlocked,
		"pattern_count":  patternCount,
		"pattern_bytes":  patternBytes,
		"active_threats": len(h.Cache.ListKeys()),
	})
}
