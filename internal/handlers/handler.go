package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/insight/internal/logging"
	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/services"
)

// Handler contains all HTTP handlers
type Handler struct {
	logger  *logging.Logger
	service *services.AnalyticsService
	info    Info
}

// Info describes the running instance for the health endpoint
type Info struct {
	Version    string
	SourceType string
}

// New creates a new handler instance
func New(logger *logging.Logger, service *services.AnalyticsService, info Info) *Handler {
	if info.Version == "" {
		info.Version = "1.0.0"
	}
	return &Handler{
		logger:  logger,
		service: service,
		info:    info,
	}
}

// StatusFor maps an envelope to its HTTP status
func StatusFor(env models.Envelope) int {
	if env.Success || env.Error == nil {
		return fiber.StatusOK
	}
	switch env.Error.Code {
	case services.CodeInvalidRule, CodeInvalidRequest:
		return fiber.StatusBadRequest
	case services.CodeNotFound:
		return fiber.StatusNotFound
	case services.CodeInsufficientData:
		return fiber.StatusUnprocessableEntity
	case services.CodeStorageFailure:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// CodeInvalidRequest marks a request that could not be decoded
const CodeInvalidRequest = "INVALID_REQUEST"

func (h *Handler) respond(c *fiber.Ctx, env models.Envelope) error {
	return c.Status(StatusFor(env)).JSON(env)
}

func (h *Handler) badRequest(c *fiber.Ctx, message string, err error) error {
	var details map[string]interface{}
	if err != nil {
		details = map[string]interface{}{"error": err.Error()}
	}
	env := models.Fail(CodeInvalidRequest, message, details, models.Metadata{
		RequestID: logging.RequestID(c.UserContext()),
	})
	return c.Status(fiber.StatusBadRequest).JSON(env)
}

// parseBody decodes a JSON body; an empty body leaves out untouched
func parseBody(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return c.BodyParser(out)
}

// splitAndTrim splits a string and trims whitespace from each part
func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// queryTime parses an optional RFC3339 query parameter
func queryTime(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// queryFilter reads the record filter from query parameters:
// startDate, endDate, sessionId, category, limit, sortBy, sortOrder and playerId
func queryFilter(c *fiber.Ctx) (models.Filter, error) {
	var f models.Filter
	var err error

	if f.StartDate, err = queryTime(c, "startDate"); err != nil {
		return f, err
	}
	if f.EndDate, err = queryTime(c, "endDate"); err != nil {
		return f, err
	}
	f.SessionID = c.Query("sessionId")
	f.Category = c.Query("category")
	f.SortBy = c.Query("sortBy")
	f.SortOrder = c.Query("sortOrder")

	if raw := c.Query("limit"); raw != "" {
		if f.Limit, err = strconv.Atoi(raw); err != nil {
			return f, err
		}
	}
	if player := c.Query("playerId"); player != "" {
		f.Custom = map[string]interface{}{models.FieldPlayerID: player}
	}
	if raw := c.Query("skipAnonymization"); raw != "" {
		if f.SkipAnonymization, err = strconv.ParseBool(raw); err != nil {
			return f, err
		}
	}
	return f, nil
}
