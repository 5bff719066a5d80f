package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"manualqa/types"
)

// ivfflatLists is the clustering factor baked into the persisted ANN
// index. Kept for ad-hoc SQL similarity work; the serving index lives in
// the index package.
const ivfflatLists = 100

type PostgresStore struct {
	pool   *pgxpool.Pool
	dim    int
	metric types.Metric
}

func NewPostgresStore(ctx context.Context, connStr string, dim int, metric types.Metric) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{
		pool:   pool,
		dim:    dim,
		metric: metric,
	}, nil
}

func (p *PostgresStore) Init(ctx context.Context) error {
	opclass := "vector_l2_ops"
	if p.metric == types.MetricCosine {
		opclass = "vector_cosine_ops"
	}

	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		brand VARCHAR(255) NOT NULL,
		model VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (brand, model)
	);

	CREATE TABLE IF NOT EXISTS documents (
		id BIGSERIAL PRIMARY KEY,
		product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		title VARCHAR(512) NOT NULL,
		source_url VARCHAR(1024) NOT NULL,
		doc_type VARCHAR(50) NOT NULL DEFAULT 'manual',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (product_id, source_url)
	);

	CREATE TABLE IF NOT EXISTS document_toc (
		id BIGSERIAL PRIMARY KEY,
		document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		level INT NOT NULL,
		title TEXT NOT NULL,
		page_from INT NOT NULL,
		page_to INT,
		order_index INT NOT NULL,
		UNIQUE (document_id, order_index)
	);

	CREATE TABLE IF NOT EXISTS document_pages (
		id BIGSERIAL PRIMARY KEY,
		document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		page_number INT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		UNIQUE (document_id, page_number)
	);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id BIGSERIAL PRIMARY KEY,
		document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		chunk_index INT NOT NULL,
		section_path TEXT NOT NULL DEFAULT '',
		page_from INT,
		page_to INT,
		content TEXT NOT NULL,
		token_count INT NOT NULL DEFAULT 0,
		embedding vector(%d),
		UNIQUE (document_id, chunk_index)
	);

	CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding
		ON document_chunks USING ivfflat (embedding %s) WITH (lists = %d);

	CREATE INDEX IF NOT EXISTS idx_document_chunks_document ON document_chunks(document_id);

	CREATE TABLE IF NOT EXISTS feedback (
		id BIGSERIAL PRIMARY KEY,
		product_id BIGINT REFERENCES products(id) ON DELETE SET NULL,
		document_id BIGINT REFERENCES documents(id) ON DELETE SET NULL,
		rating INT NOT NULL CHECK (rating BETWEEN 1 AND 5),
		comments TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS manual_requests (
		id BIGSERIAL PRIMARY KEY,
		brand VARCHAR(255) NOT NULL,
		model VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		status VARCHAR(50) NOT NULL DEFAULT 'open',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`, p.dim, opclass, ivfflatLists)

	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		slog.Info("postgres connection pool closed")
	}
	return nil
}

// Ping verifies connectivity and that the pgvector extension is present.
func (p *PostgresStore) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return err
	}
	var version string
	err := p.pool.QueryRow(ctx, "SELECT extversion FROM pg_extension WHERE extname = 'vector'").Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("pgvector extension is not installed")
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func (p *PostgresStore) CreateProduct(ctx context.Context, params types.CreateProductParams) (types.Product, error) {
	product := types.Product{Brand: params.Brand, Model: params.Model}
	err := p.pool.QueryRow(ctx,
		"INSERT INTO products (brand, model) VALUES ($1, $2) RETURNING id, created_at",
		params.Brand, params.Model,
	).Scan(&product.ID, &product.CreatedAt)
	if isUniqueViolation(err) {
		return types.Product{}, fmt.Errorf("product %s %s: %w", params.Brand, params.Model, types.ErrConflict)
	}
	if err != nil {
		return types.Product{}, err
	}
	return product, nil
}

func (p *PostgresStore) GetProduct(ctx context.Context, id int64) (types.Product, error) {
	var product types.Product
	err := p.pool.QueryRow(ctx,
		"SELECT id, brand, model, created_at FROM products WHERE id = $1", id,
	).Scan(&product.ID, &product.Brand, &product.Model, &product.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Product{}, fmt.Errorf("product %d: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return types.Product{}, err
	}
	return product, nil
}

func (p *PostgresStore) ListProducts(ctx context.Context) ([]types.Product, error) {
	rows, err := p.pool.Query(ctx, "SELECT id, brand, model, created_at FROM products ORDER BY brand, model")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []types.Product{}
	for rows.Next() {
		var product types.Product
		if err := rows.Scan(&product.ID, &product.Brand, &product.Model, &product.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

func (p *PostgresStore) CreateDocument(ctx context.Context, params types.CreateDocumentParams) (types.Document, error) {
	if params.DocType == "" {
		params.DocType = "manual"
	}
	doc := types.Document{
		ProductID: params.ProductID,
		Title:     params.Title,
		SourceURL: params.SourceURL,
		DocType:   params.DocType,
	}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO documents (product_id, title, source_url, doc_type)
		 VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		params.ProductID, params.Title, params.SourceURL, params.DocType,
	).Scan(&doc.ID, &doc.CreatedAt)
	if isUniqueViolation(err) {
		return types.Document{}, fmt.Errorf("document %q for product %d: %w", params.SourceURL, params.ProductID, types.ErrConflict)
	}
	if isForeignKeyViolation(err) {
		return types.Document{}, fmt.Errorf("unknown product %d: %w", params.ProductID, types.ErrInvalidArgument)
	}
	if err != nil {
		return types.Document{}, err
	}
	return doc, nil
}

func (p *PostgresStore) GetDocument(ctx context.Context, id int64) (types.Document, error) {
	var doc types.Document
	err := p.pool.QueryRow(ctx,
		"SELECT id, product_id, title, source_url, doc_type, created_at FROM documents WHERE id = $1", id,
	).Scan(&doc.ID, &doc.ProductID, &doc.Title, &doc.SourceURL, &doc.DocType, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Document{}, fmt.Errorf("document %d: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return types.Document{}, err
	}
	return doc, nil
}

func (p *PostgresStore) ListDocuments(ctx context.Context, productID int64) ([]types.Document, error) {
	query := "SELECT id, product_id, title, source_url, doc_type, created_at FROM documents ORDER BY id"
	args := []any{}
	if productID > 0 {
		query = "SELECT id, product_id, title, source_url, doc_type, created_at FROM documents WHERE product_id = $1 ORDER BY id"
		args = append(args, productID)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []types.Document{}
	for rows.Next() {
		var doc types.Document
		if err := rows.Scan(&doc.ID, &doc.ProductID, &doc.Title, &doc.SourceURL, &doc.DocType, &doc.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (p *PostgresStore) DeleteDocument(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %d: %w", id, types.ErrNotFound)
	}
	return nil
}

func (p *PostgresStore) ReplaceTOC(ctx context.Context, docID int64, entries []types.TOCEntry) ([]types.TOCEntry, error) {
	if _, err := p.GetDocument(ctx, docID); err != nil {
		return nil, err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM document_toc WHERE document_id = $1", docID); err != nil {
		return nil, err
	}

	out := make([]types.TOCEntry, 0, len(entries))
	for i, e := range entries {
		e.DocumentID = docID
		e.OrderIndex = i + 1
		err := tx.QueryRow(ctx,
			`INSERT INTO document_toc (document_id, level, title, page_from, page_to, order_index)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			docID, e.Level, e.Title, e.PageFrom, e.PageTo, e.OrderIndex,
		).Scan(&e.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *PostgresStore) GetTOC(ctx context.Context, docID int64) ([]types.TOCEntry, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, document_id, level, title, page_from, page_to, order_index
		 FROM document_toc WHERE document_id = $1 ORDER BY order_index`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []types.TOCEntry{}
	for rows.Next() {
		var e types.TOCEntry
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Level, &e.Title, &e.PageFrom, &e.PageTo, &e.OrderIndex); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (p *PostgresStore) UpsertPages(ctx context.Context, docID int64, pages []types.Page) (int, error) {
	if _, err := p.GetDocument(ctx, docID); err != nil {
		return 0, err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	for _, pg := range pages {
		_, err := tx.Exec(ctx,
			`INSERT INTO document_pages (document_id, page_number, content)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (document_id, page_number) DO UPDATE SET content = EXCLUDED.content`,
			docID, pg.PageNumber, pg.Content)
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(pages), nil
}

func (p *PostgresStore) GetPages(ctx context.Context, docID int64) ([]types.Page, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT id, document_id, page_number, content FROM document_pages WHERE document_id = $1 ORDER BY page_number",
		docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pages := []types.Page{}
	for rows.Next() {
		var pg types.Page
		if err := rows.Scan(&pg.ID, &pg.DocumentID, &pg.PageNumber, &pg.Content); err != nil {
			return nil, err
		}
		pages = append(pages, pg)
	}
	return pages, rows.Err()
}

func (p *PostgresStore) checkDim(embedding []float32) error {
	if len(embedding) > 0 && len(embedding) != p.dim {
		return &types.DimensionMismatchError{Want: p.dim, Got: len(embedding)}
	}
	return nil
}

func (p *PostgresStore) ReplaceChunks(ctx context.Context, docID int64, chunks []types.Chunk) (int, error) {
	if _, err := p.GetDocument(ctx, docID); err != nil {
		return 0, err
	}
	for _, c := range chunks {
		if err := p.checkDim(c.Embedding); err != nil {
			return 0, err
		}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM document_chunks WHERE document_id = $1", docID); err != nil {
		return 0, err
	}

	for _, c := range chunks {
		var emb any
		if len(c.Embedding) > 0 {
			emb = pgvector.NewVector(c.Embedding)
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO document_chunks (document_id, chunk_index, section_path, page_from, page_to, content, token_count, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			docID, c.ChunkIndex, c.SectionPath, c.PageFrom, c.PageTo, c.Content, c.TokenCount, emb)
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("chunk (%d, %d): %w", docID, c.ChunkIndex, types.ErrConflict)
		}
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (p *PostgresStore) InsertChunk(ctx context.Context, c types.Chunk) (types.Chunk, error) {
	if err := p.checkDim(c.Embedding); err != nil {
		return types.Chunk{}, err
	}

	var emb any
	if len(c.Embedding) > 0 {
		emb = pgvector.NewVector(c.Embedding)
	}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO document_chunks (document_id, chunk_index, section_path, page_from, page_to, content, token_count, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		c.DocumentID, c.ChunkIndex, c.SectionPath, c.PageFrom, c.PageTo, c.Content, c.TokenCount, emb,
	).Scan(&c.ID)
	if isUniqueViolation(err) {
		return types.Chunk{}, fmt.Errorf("chunk (%d, %d): %w", c.DocumentID, c.ChunkIndex, types.ErrConflict)
	}
	if isForeignKeyViolation(err) {
		return types.Chunk{}, fmt.Errorf("unknown document %d: %w", c.DocumentID, types.ErrInvalidArgument)
	}
	if err != nil {
		return types.Chunk{}, err
	}
	return c, nil
}

func (p *PostgresStore) GetChunk(ctx context.Context, docID int64, chunkIndex int) (types.Chunk, error) {
	var c types.Chunk
	var emb *pgvector.Vector
	err := p.pool.QueryRow(ctx,
		`SELECT id, document_id, chunk_index, section_path, page_from, page_to, content, token_count, embedding
		 FROM document_chunks WHERE document_id = $1 AND chunk_index = $2`,
		docID, chunkIndex,
	).Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.SectionPath, &c.PageFrom, &c.PageTo, &c.Content, &c.TokenCount, &emb)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Chunk{}, fmt.Errorf("chunk (%d, %d): %w", docID, chunkIndex, types.ErrNotFound)
	}
	if err != nil {
		return types.Chunk{}, err
	}
	if emb != nil {
		c.Embedding = emb.Slice()
	}
	return c, nil
}

func (p *PostgresStore) GetChunksByDocument(ctx context.Context, docID int64) ([]types.Chunk, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, document_id, chunk_index, section_path, page_from, page_to, content, token_count, embedding
		 FROM document_chunks WHERE document_id = $1 ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := []types.Chunk{}
	for rows.Next() {
		var c types.Chunk
		var emb *pgvector.Vector
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.SectionPath, &c.PageFrom, &c.PageTo, &c.Content, &c.TokenCount, &emb); err != nil {
			return nil, err
		}
		if emb != nil {
			c.Embedding = emb.Slice()
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (p *PostgresStore) SetChunkEmbedding(ctx context.Context, docID int64, chunkIndex int, embedding []float32) error {
	if len(embedding) != p.dim {
		return &types.DimensionMismatchError{Want: p.dim, Got: len(embedding)}
	}
	tag, err := p.pool.Exec(ctx,
		"UPDATE document_chunks SET embedding = $1 WHERE document_id = $2 AND chunk_index = $3",
		pgvector.NewVector(embedding), docID, chunkIndex)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chunk (%d, %d): %w", docID, chunkIndex, types.ErrNotFound)
	}
	return nil
}

func (p *PostgresStore) ListEmbedded(ctx context.Context) ([]types.EmbeddedChunk, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT document_id, chunk_index, embedding FROM document_chunks
		 WHERE embedding IS NOT NULL ORDER BY document_id, chunk_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.EmbeddedChunk{}
	for rows.Next() {
		var ref types.ChunkRef
		var emb pgvector.Vector
		if err := rows.Scan(&ref.DocumentID, &ref.ChunkIndex, &emb); err != nil {
			return nil, err
		}
		out = append(out, types.EmbeddedChunk{Ref: ref, Embedding: emb.Slice()})
	}
	return out, rows.Err()
}

func (p *PostgresStore) CreateFeedback(ctx context.Context, params types.FeedbackParams) (types.Feedback, error) {
	fb := types.Feedback{
		ProductID:  params.ProductID,
		DocumentID: params.DocumentID,
		Rating:     params.Rating,
		Comments:   params.Comments,
	}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO feedback (product_id, document_id, rating, comments)
		 VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		params.ProductID, params.DocumentID, params.Rating, params.Comments,
	).Scan(&fb.ID, &fb.CreatedAt)
	if isForeignKeyViolation(err) {
		return types.Feedback{}, fmt.Errorf("feedback references a missing row: %w", types.ErrInvalidArgument)
	}
	if err != nil {
		return types.Feedback{}, err
	}
	return fb, nil
}

func (p *PostgresStore) CreateManualRequest(ctx context.Context, params types.ManualRequestParams) (types.ManualRequest, error) {
	req := types.ManualRequest{
		Brand: params.Brand,
		Model: params.Model,
		Email: params.Email,
		Notes: params.Notes,
	}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO manual_requests (brand, model, email, notes)
		 VALUES ($1, $2, $3, $4) RETURNING id, status, created_at`,
		params.Brand, params.Model, params.Email, params.Notes,
	).Scan(&req.ID, &req.Status, &req.CreatedAt)
	if err != nil {
		return types.ManualRequest{}, err
	}
	return req, nil
}
