package types

import "time"

// Metric selects how vector distance is computed. For both metrics a
// smaller distance means a closer match.
type Metric string

const (
	MetricL2     Metric = "l2"
	MetricCosine Metric = "cosine"
)

func (m Metric) Valid() bool {
	return m == MetricL2 || m == MetricCosine
}

type Product struct {
	ID        int64     `json:"id"`
	Brand     string    `json:"brand"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

type Document struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Title     string    `json:"title"`
	SourceURL string    `json:"source_url"`
	DocType   string    `json:"doc_type"`
	CreatedAt time.Time `json:"created_at"`
}

// TOCEntry is one row of a document outline. OrderIndex is strictly
// increasing within a document; PageTo may be unknown (nil) for entries
// whose extent is derived from the following entry.
type TOCEntry struct {
	ID         int64  `json:"id"`
	DocumentID int64  `json:"document_id"`
	Level      int    `json:"level"`
	Title      string `json:"title"`
	PageFrom   int    `json:"page_from"`
	PageTo     *int   `json:"page_to"`
	OrderIndex int    `json:"order_index"`
}

type Page struct {
	ID         int64  `json:"id"`
	DocumentID int64  `json:"document_id"`
	PageNumber int    `json:"page_number"`
	Content    string `json:"content"`
}

// Chunk is a document-ordered slice of text. (DocumentID, ChunkIndex) is
// unique; ChunkIndex is zero-based and defines the document order. The
// embedding is nil until the chunk has been embedded, and always has the
// configured dimension once set.
type Chunk struct {
	ID          int64     `json:"id"`
	DocumentID  int64     `json:"document_id"`
	ChunkIndex  int       `json:"chunk_index"`
	SectionPath string    `json:"section_path"`
	PageFrom    *int      `json:"page_from"`
	PageTo      *int      `json:"page_to"`
	Content     string    `json:"content"`
	TokenCount  int       `json:"token_count"`
	Embedding   []float32 `json:"-"`
}

// Ref identifies c in the similarity index.
func (c Chunk) Ref() ChunkRef {
	return ChunkRef{DocumentID: c.DocumentID, ChunkIndex: c.ChunkIndex}
}

// ChunkRef is the identity a similarity index hands back: enough to fetch
// the chunk from the store without carrying its content around.
type ChunkRef struct {
	DocumentID int64
	ChunkIndex int
}

// EmbeddedChunk feeds index builds: a chunk identity plus its vector,
// nothing else.
type EmbeddedChunk struct {
	Ref       ChunkRef
	Embedding []float32
}

type Feedback struct {
	ID         int64     `json:"id"`
	ProductID  *int64    `json:"product_id"`
	DocumentID *int64    `json:"document_id"`
	Rating     int       `json:"rating"`
	Comments   string    `json:"comments"`
	CreatedAt  time.Time `json:"created_at"`
}

type ManualRequest struct {
	ID        int64     `json:"id"`
	Brand     string    `json:"brand"`
	Model     string    `json:"model"`
	Email     string    `json:"email"`
	Notes     string    `json:"notes"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
