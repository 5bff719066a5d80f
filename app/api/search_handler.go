package api

import (
	"github.com/gofiber/fiber/v2"

	"manualqa/search"
	"manualqa/types"
)

type SearchHandler struct {
	svc *search.Service
}

func NewSearchHandler(svc *search.Service) *SearchHandler {
	return &SearchHandler{svc: svc}
}

func (h *SearchHandler) HandleSearch(c *fiber.Ctx) error {
	var params types.SearchParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	params.Normalize()
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	resp, err := h.svc.Search(c.Context(), params)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}
