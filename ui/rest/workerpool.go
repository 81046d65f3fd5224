package rest

import (
	pubApp "github.com/Zer0phucks/devconsul/publishing/application"
	"github.com/gofiber/fiber/v2"
)

type WorkerPool struct {
	Dispatcher *pubApp.Dispatcher
}

func InitRestWorkerPool(app fiber.Router, dispatcher *pubApp.Dispatcher) WorkerPool {
	handler := WorkerPool{Dispatcher: dispatcher}
	app.Get("/worker/stats", handler.GetStats)
	return handler
}

// GetStats returns real-time dispatcher and publish worker pool statistics
func (h *WorkerPool) GetStats(c *fiber.Ctx) error {
	return c.JSON(h.Dispatcher.Stats())
}
