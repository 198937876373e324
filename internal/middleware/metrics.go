package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/insight/internal/metrics"
)

// Metrics counts requests by method, matched route and status
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Method(), c.Route().Path, strconv.Itoa(status)).Inc()
		return err
	}
}
