package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/services"
)

// Health handles health check requests
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   h.info.Version,
		Source:    h.info.SourceType,
	})
}

// NotFound handles 404 errors
func (h *Handler) NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    services.CodeNotFound,
			Message: "Route not found",
			Path:    c.Path(),
		},
	})
}
