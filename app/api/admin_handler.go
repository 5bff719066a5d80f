package api

import (
	"github.com/gofiber/fiber/v2"

	"manualqa/index"
)

type AdminHandler struct {
	manager *index.Manager
}

func NewAdminHandler(manager *index.Manager) *AdminHandler {
	return &AdminHandler{manager: manager}
}

// HandleIndexRefresh forces a rebuild instead of waiting out the refresh
// interval. Useful right after a bulk ingest.
func (h *AdminHandler) HandleIndexRefresh(c *fiber.Ctx) error {
	if err := h.manager.Rebuild(c.Context()); err != nil {
		return err
	}
	return c.JSON(h.manager.Stats())
}

func (h *AdminHandler) HandleIndexStats(c *fiber.Ctx) error {
	return c.JSON(h.manager.Stats())
}
