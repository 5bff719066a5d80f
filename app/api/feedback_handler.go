package api

import (
	"github.com/gofiber/fiber/v2"

	"manualqa/store"
	"manualqa/types"
)

type FeedbackHandler struct {
	store store.Storer
}

func NewFeedbackHandler(store store.Storer) *FeedbackHandler {
	return &FeedbackHandler{store: store}
}

func (h *FeedbackHandler) HandleCreateFeedback(c *fiber.Ctx) error {
	var params types.FeedbackParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	feedback, err := h.store.CreateFeedback(c.Context(), params)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(feedback)
}

// HandleCreateManualRequest records a request for a manual the corpus does
// not cover yet. Requests start in the "open" status.
func (h *FeedbackHandler) HandleCreateManualRequest(c *fiber.Ctx) error {
	var params types.ManualRequestParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	req, err := h.store.CreateManualRequest(c.Context(), params)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}
