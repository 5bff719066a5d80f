package types

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Validater interface {
	Validate() map[string]string
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func fieldErrors(err error) map[string]string {
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"body": err.Error()}
	}
	out := make(map[string]string, len(errs))
	for _, e := range errs {
		out[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return out
}

// DefaultTopK is applied when a search request leaves top_k unset.
const DefaultTopK = 5

type SearchParams struct {
	Text         string `json:"text" validate:"required"`
	TopK         int    `json:"top_k" validate:"gte=1,lte=50"`
	Offset       int    `json:"offset" validate:"gte=0"`
	CleanPreview bool   `json:"clean_preview"`
}

// Normalize fills defaults for optional fields left at their zero value.
func (p *SearchParams) Normalize() {
	if p.TopK == 0 {
		p.TopK = DefaultTopK
	}
}

func (p *SearchParams) Validate() map[string]string {
	return fieldErrors(validate.Struct(p))
}

type CreateProductParams struct {
	Brand string `json:"brand" validate:"required,max=255"`
	Model string `json:"model" validate:"required,max=255"`
}

func (p *CreateProductParams) Validate() map[string]string {
	return fieldErrors(validate.Struct(p))
}

type CreateDocumentParams struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Title     string `json:"title" validate:"required,max=512"`
	SourceURL string `json:"source_url" validate:"required,max=1024"`
	DocType   string `json:"doc_type" validate:"omitempty,max=50"`
}

func (p *CreateDocumentParams) Validate() map[string]string {
	return fieldErrors(validate.Struct(p))
}

type TOCEntryParams struct {
	Level    int    `json:"level" validate:"gte=1"`
	Title    string `json:"title" validate:"required"`
	PageFrom int    `json:"page_from" validate:"gte=1"`
	PageTo   *int   `json:"page_to" validate:"omitempty,gte=1"`
}

type ReplaceTOCParams struct {
	Entries []TOCEntryParams `json:"entries" validate:"required,min=1,dive"`
}

func (p *ReplaceTOCParams) Validate() map[string]string {
	m := fieldErrors(validate.Struct(p))
	if m != nil {
		return m
	}
	for i, e := range p.Entries {
		if e.PageTo != nil && *e.PageTo < e.PageFrom {
			return map[string]string{
				"entries": fmt.Sprintf("entry %d: page_to %d before page_from %d", i, *e.PageTo, e.PageFrom),
			}
		}
	}
	return nil
}

type PageParams struct {
	PageNumber int    `json:"page_number" validate:"gte=1"`
	Content    string `json:"content"`
}

type UpsertPagesParams struct {
	Pages []PageParams `json:"pages" validate:"required,min=1,dive"`
}

func (p *UpsertPagesParams) Validate() map[string]string {
	return fieldErrors(validate.Struct(p))
}

// BuildChunksParams optionally overrides the configured chunking budgets.
type BuildChunksParams struct {
	MaxTokens int `json:"max_tokens" validate:"gte=0"`
	MaxChars  int `json:"max_chars" validate:"gte=0"`
}

func (p *BuildChunksParams) Validate() map[string]string {
	return fieldErrors(validate.Struct(p))
}

type FeedbackParams struct {
	ProductID  *int64 `json:"product_id" validate:"omitempty,gt=0"`
	DocumentID *int64 `json:"document_id" validate:"omitempty,gt=0"`
	Rating     int    `json:"rating" validate:"required,min=1,max=5"`
	Comments   string `json:"comments" validate:"max=4000"`
}

func (p *FeedbackParams) Validate() map[string]string {
	return fieldErrors(validate.Struct(p))
}

type ManualRequestParams struct {
	Brand string `json:"brand" validate:"required,max=255"`
	Model string `json:"model" validate:"required,max=255"`
	Email string `json:"email" validate:"omitempty,email"`
	Notes string `json:"notes" validate:"max=4000"`
}

func (p *ManualRequestParams) Validate() map[string]string {
	return fieldErrors(validate.Struct(p))
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: http.StatusUnprocessableEntity,
		Errors: errors,
	}
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

// SearchResultRow is the per-hit view a search response carries. It is
// assembled per request and never persisted. Distance is the ranking key
// (smaller is closer, for both metrics); Score is 1/(1+distance), so
// higher is better. Nullable fields marshal as explicit null.
type SearchResultRow struct {
	DocumentID   int64   `json:"document_id"`
	ChunkIndex   int     `json:"chunk_index"`
	SectionPath  *string `json:"section_path"`
	Preview      *string `json:"preview"`
	PreviewClean *string `json:"preview_clean"`
	PageFrom     *int    `json:"page_from"`
	PageTo       *int    `json:"page_to"`
	Distance     float64 `json:"distance"`
	Score        float64 `json:"score"`
}

// SearchResponse pages through ranked results. NextOffset is offset+top_k
// when more results exist past this page, null otherwise.
type SearchResponse struct {
	Query      string            `json:"query"`
	TopK       int               `json:"top_k"`
	Offset     int               `json:"offset"`
	NextOffset *int              `json:"next_offset"`
	Results    []SearchResultRow `json:"results"`
}
