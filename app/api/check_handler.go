package api

import (
	"github.com/gofiber/fiber/v2"

	"manualqa/store"
)

type CheckHandler struct {
	store store.Storer
}

func NewCheckHandler(store store.Storer) *CheckHandler {
	return &CheckHandler{store: store}
}

func (h CheckHandler) HandleHealthy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"result": "ok"})
}

func (h CheckHandler) HandleDB(c *fiber.Ctx) error {
	if err := h.store.Ping(c.Context()); err != nil {
		return NewError(fiber.StatusServiceUnavailable, "database unreachable: "+err.Error())
	}
	return c.JSON(fiber.Map{"result": "ok", "database": "up"})
}
