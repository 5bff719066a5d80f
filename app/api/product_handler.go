package api

import (
	"github.com/gofiber/fiber/v2"

	"manualqa/store"
	"manualqa/types"
)

type ProductHandler struct {
	store store.Storer
}

func NewProductHandler(store store.Storer) *ProductHandler {
	return &ProductHandler{store: store}
}

func (h *ProductHandler) HandleCreateProduct(c *fiber.Ctx) error {
	var params types.CreateProductParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	product, err := h.store.CreateProduct(c.Context(), params)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(product)
}

func (h *ProductHandler) HandleGetProduct(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	product, err := h.store.GetProduct(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(product)
}

func (h *ProductHandler) HandleListProducts(c *fiber.Ctx) error {
	products, err := h.store.ListProducts(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(products)
}
