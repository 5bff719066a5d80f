package api

import (
	"github.com/gofiber/fiber/v2"

	"manualqa/chunker"
	"manualqa/model"
	"manualqa/store"
	"manualqa/types"
)

type ChunkHandler struct {
	store    store.Storer
	embedder model.Embedder
	opts     chunker.Options
	chunker  *chunker.Chunker
}

func NewChunkHandler(store store.Storer, embedder model.Embedder, opts chunker.Options) *ChunkHandler {
	return &ChunkHandler{
		store:    store,
		embedder: embedder,
		opts:     opts,
		chunker:  chunker.New(opts),
	}
}

// HandleBuildChunks rebuilds a document's chunks from its stored TOC and
// pages. Any previous chunks, embedded or not, are replaced.
func (h *ChunkHandler) HandleBuildChunks(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	var params types.BuildChunksParams
	if len(c.Body()) > 0 {
		if c.BodyParser(&params) != nil {
			return ErrBadRequest()
		}
		if errors := types.Validate(&params); len(errors) > 0 {
			return types.NewValidationError(errors)
		}
	}

	if _, err := h.store.GetDocument(c.Context(), id); err != nil {
		return err
	}

	toc, err := h.store.GetTOC(c.Context(), id)
	if err != nil {
		return err
	}
	pages, err := h.store.GetPages(c.Context(), id)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return NewError(fiber.StatusBadRequest, "document has no pages to chunk")
	}

	ck := h.chunker
	if params.MaxTokens > 0 || params.MaxChars > 0 {
		opts := h.opts
		if params.MaxTokens > 0 {
			opts.MaxTokens = params.MaxTokens
		}
		if params.MaxChars > 0 {
			opts.MaxChars = params.MaxChars
		}
		ck = chunker.New(opts)
	}

	chunks := ck.ChunkDocument(id, toc, pages)
	count, err := h.store.ReplaceChunks(c.Context(), id, chunks)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"result": "ok", "chunks": count})
}

func (h *ChunkHandler) HandleGetChunks(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	if _, err := h.store.GetDocument(c.Context(), id); err != nil {
		return err
	}

	chunks, err := h.store.GetChunksByDocument(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(chunks)
}

// HandleEmbedDocument embeds every chunk of the document that does not
// have a vector yet. Already-embedded chunks are left alone, so the call
// is safe to repeat after partial failures.
func (h *ChunkHandler) HandleEmbedDocument(c *fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return err
	}

	if _, err := h.store.GetDocument(c.Context(), id); err != nil {
		return err
	}

	chunks, err := h.store.GetChunksByDocument(c.Context(), id)
	if err != nil {
		return err
	}

	var pending []types.Chunk
	for _, ch := range chunks {
		if ch.Embedding == nil {
			pending = append(pending, ch)
		}
	}
	if len(pending) == 0 {
		return c.JSON(fiber.Map{"result": "ok", "embedded": 0, "skipped": len(chunks)})
	}

	texts := make([]string, len(pending))
	for i, ch := range pending {
		texts[i] = ch.Content
	}

	vectors, err := h.embedder.EmbedBatch(c.Context(), texts)
	if err != nil {
		return err
	}

	for i, ch := range pending {
		if err := h.store.SetChunkEmbedding(c.Context(), ch.DocumentID, ch.ChunkIndex, vectors[i]); err != nil {
			return err
		}
	}
	return c.JSON(fiber.Map{
		"result":   "ok",
		"embedded": len(pending),
		"skipped":  len(chunks) - len(pending),
	})
}
