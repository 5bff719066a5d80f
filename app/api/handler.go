package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// idParam parses a path parameter as an int64 id.
func idParam(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID()
	}
	return id, nil
}

// queryInt64 parses an optional integer query parameter, 0 when absent.
func queryInt64(c *fiber.Ctx, name string) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, NewError(fiber.StatusBadRequest, "invalid "+name+" given")
	}
	return v, nil
}
