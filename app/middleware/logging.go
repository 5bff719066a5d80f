package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequestID tags every request with an id, honoring one supplied by the
// caller, and echoes it back in the response header.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(fiber.HeaderXRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals("request_id", id)
		c.Set(fiber.HeaderXRequestID, id)
		return c.Next()
	}
}

// RequestLogger emits one structured line per request. Errored requests
// log the error instead of a status: the final code is decided by the
// error handler, which runs after the middleware chain unwinds.
func RequestLogger(log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		attrs := []any{
			"method", c.Method(),
			"path", c.Path(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if id, ok := c.Locals("request_id").(string); ok {
			attrs = append(attrs, "request_id", id)
		}
		if err != nil {
			attrs = append(attrs, "error", err.Error())
			log.Warn("request failed", attrs...)
			return err
		}
		attrs = append(attrs, "status", c.Response().StatusCode())
		log.Info("request", attrs...)
		return nil
	}
}
