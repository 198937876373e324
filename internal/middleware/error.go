package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/insight/internal/logging"
	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/services"
)

// ErrorHandler renders errors that escape a handler as failed envelopes.
// Service errors keep their code; fiber errors keep their status.
func ErrorHandler(logger *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		code := services.CodeInternalError
		message := "Internal Server Error"

		var fe *fiber.Error
		var se *services.ServiceError
		switch {
		case errors.As(err, &fe):
			status = fe.Code
			message = fe.Message
			if status == fiber.StatusNotFound {
				code = services.CodeNotFound
			} else if status < fiber.StatusInternalServerError {
				code = "ERROR"
			}
		case errors.As(err, &se):
			code = se.Code
			message = se.Message
		}

		logger.Error("Request error",
			"path", c.Path(),
			"method", c.Method(),
			"status", status,
			"error", err,
		)

		return c.Status(status).JSON(models.Fail(code, message, nil, models.Metadata{
			RequestID: logging.RequestID(c.UserContext()),
		}))
	}
}
