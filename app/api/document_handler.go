package api

import (
	"github.com/gofiber/fiber/v2"

	"manualqa/preview"
	"manualqa/store"
	"manualqa/types"
)

type DocumentHandler struct {
	store store.Storer
}

func NewDocumentHandler(store store.Storer) *DocumentHandler {
	return &DocumentHandler{store: store}
}

func (h *DocumentHandler) HandleCreateDocument(c *fiber.Ctx) error {
	var params types.CreateDocumentParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	doc, err := h.store.CreateDocument(c.Context(), params)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(doc)
}

func (h *DocumentHandler) HandleGetDocument(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	doc, err := h.store.GetDocument(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(doc)
}

func (h *DocumentHandler) HandleListDocuments(c *fiber.Ctx) error {
	productID, err := queryInt64(c, "product_id")
	if err != nil {
		return err
	}

	docs, err := h.store.ListDocuments(c.Context(), productID)
	if err != nil {
		return err
	}
	return c.JSON(docs)
}

func (h *DocumentHandler) HandleDeleteDocument(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	if err := h.store.DeleteDocument(c.Context(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"result": "deleted", "document_id": id})
}

func (h *DocumentHandler) HandleReplaceTOC(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	var params types.ReplaceTOCParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	if _, err := h.store.GetDocument(c.Context(), id); err != nil {
		return err
	}

	entries := make([]types.TOCEntry, len(params.Entries))
	for i, e := range params.Entries {
		entries[i] = types.TOCEntry{
			Level:    e.Level,
			Title:    e.Title,
			PageFrom: e.PageFrom,
			PageTo:   e.PageTo,
		}
	}

	saved, err := h.store.ReplaceTOC(c.Context(), id, entries)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"result": "ok", "entries": len(saved)})
}

func (h *DocumentHandler) HandleGetTOC(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	if _, err := h.store.GetDocument(c.Context(), id); err != nil {
		return err
	}

	entries, err := h.store.GetTOC(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(entries)
}

// HandleUpsertPages stores page text for a document. Content is run
// through text normalization on the way in, so everything downstream
// (chunking, previews) sees one canonical form.
func (h *DocumentHandler) HandleUpsertPages(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	var params types.UpsertPagesParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	if _, err := h.store.GetDocument(c.Context(), id); err != nil {
		return err
	}

	pages := make([]types.Page, len(params.Pages))
	for i, p := range params.Pages {
		pages[i] = types.Page{
			PageNumber: p.PageNumber,
			Content:    preview.Normalize(p.Content),
		}
	}

	count, err := h.store.UpsertPages(c.Context(), id, pages)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"result": "ok", "pages": count})
}

func (h *DocumentHandler) HandleGetPages(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	if _, err := h.store.GetDocument(c.Context(), id); err != nil {
		return err
	}

	pages, err := h.store.GetPages(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(pages)
}
