package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/insight/internal/logging"
	"github.com/soltixdb/insight/internal/models"
)

// MinAPIKeyLength is the minimum required length for API keys
const MinAPIKeyLength = 32

// CodeUnauthorized marks a rejected API key
const CodeUnauthorized = "UNAUTHORIZED"

// ValidateAPIKey checks if an API key meets the security requirements
func ValidateAPIKey(key string) bool {
	return len(key) >= MinAPIKeyLength && strings.TrimSpace(key) != ""
}

// APIKeyAuth creates an API key authentication middleware. Keys shorter
// than MinAPIKeyLength are ignored with a warning.
func APIKeyAuth(logger *logging.Logger, apiKeys []string, enabled bool) fiber.Handler {
	if !enabled {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	keys := make([][]byte, 0, len(apiKeys))
	for _, key := range apiKeys {
		if key == "" {
			continue
		}
		if !ValidateAPIKey(key) {
			logger.Warn("API key does not meet security requirements",
				"key_length", len(key),
				"min_required", MinAPIKeyLength,
				"key_prefix", maskAPIKey(key),
			)
			continue
		}
		keys = append(keys, []byte(key))
	}

	if len(keys) == 0 && len(apiKeys) > 0 {
		logger.Error("No valid API keys configured - all provided keys failed validation",
			"total_keys", len(apiKeys),
			"min_required_length", MinAPIKeyLength,
		)
	}

	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKey(c)
		if apiKey == "" {
			logger.Warn("API key missing", "path", c.Path(), "method", c.Method(), "ip", c.IP())
			return unauthorized(c, "API key is required. Provide it via X-API-Key header or Authorization header.")
		}

		if !matchesAny(keys, []byte(apiKey)) {
			logger.Warn("Invalid API key",
				"path", c.Path(),
				"method", c.Method(),
				"ip", c.IP(),
				"api_key_prefix", maskAPIKey(apiKey),
			)
			return unauthorized(c, "Invalid API key.")
		}

		return c.Next()
	}
}

// extractAPIKey reads X-API-Key, then "Authorization: Bearer <key>", then a bare Authorization value
func extractAPIKey(c *fiber.Ctx) string {
	if key := c.Get("X-API-Key"); key != "" {
		return key
	}
	auth := c.Get(fiber.HeaderAuthorization)
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return after
	}
	return auth
}

func matchesAny(keys [][]byte, candidate []byte) bool {
	found := 0
	for _, k := range keys {
		found |= subtle.ConstantTimeCompare(k, candidate)
	}
	return found == 1
}

func unauthorized(c *fiber.Ctx, message string) error {
	env := models.Fail(CodeUnauthorized, message, nil, models.Metadata{
		RequestID: logging.RequestID(c.UserContext()),
	})
	return c.Status(fiber.StatusUnauthorized).JSON(env)
}

// maskAPIKey masks API key for logging (show only first 4 chars)
func maskAPIKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
