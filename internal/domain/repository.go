package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Document lifecycle statuses.
const (
	DocumentStatusPending = "pending"
	DocumentStatusIndexed = "indexed"
	DocumentStatusFailed  = "failed"
)

// Ingest job statuses.
const (
	JobStatusNew        = "new"
	JobStatusProcessing = "processing"
	JobStatusDone       = "done"
	JobStatusFailed     = "failed"
)

// Document is an uploaded campaign document. Text extraction happens
// upstream; Content is the extracted plain text or markdown.
type Document struct {
	ID           uuid.UUID
	CollectionID uuid.UUID
	Name         string
	DocType      DocumentType
	Content      string
	Status       string // "pending", "indexed", "failed"
	ChunkCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StoredChunk is the persistable form of a DocumentChunk.
type StoredChunk struct {
	ID           uuid.UUID
	DocumentID   uuid.UUID
	CollectionID uuid.UUID
	ChunkIndex   int
	Content      string
	TokenCount   int
	StartOffset  int
	EndOffset    int
	PageNumber   *int
	Section      *string
	Embedding    pgvector.Vector
	CreatedAt    time.Time
}

// ChunkRepository is the document store's query surface: the two ranked
// retrieval modes plus the ingestion writes. Both searches are read-only
// and scoped by collection.
type ChunkRepository interface {
	// VectorSearch returns chunks ordered by ascending cosine distance to
	// the query embedding.
	VectorSearch(ctx context.Context, embedding []float32, scope SearchScope, limit int) ([]VectorHit, error)

	// KeywordSearch returns chunks ordered by descending full-text rank of
	// the query against chunk content. Hits carry 1-based rank positions.
	KeywordSearch(ctx context.Context, query string, scope SearchScope, limit int) ([]KeywordHit, error)

	// BulkInsertChunks inserts a document's chunk set.
	BulkInsertChunks(ctx context.Context, chunks []StoredChunk) error

	// DeleteByDocumentID removes a document's chunk set (re-ingest, delete).
	DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) error
}

// DocumentRepository manages document records.
type DocumentRepository interface {
	Create(ctx context.Context, doc *Document) error
	// GetByID returns nil, nil when the document does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, chunkCount int) error
}

// IngestJob queues a document for background chunking and embedding.
type IngestJob struct {
	ID           uuid.UUID
	DocumentID   uuid.UUID
	Status       string // "new", "processing", "done", "failed"
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IngestJobRepository is the ingest queue.
type IngestJobRepository interface {
	Enqueue(ctx context.Context, job *IngestJob) error
	// AcquireNextJob claims the oldest new job (SKIP LOCKED semantics) and
	// marks it processing. Returns nil, nil when the queue is empty.
	AcquireNextJob(ctx context.Context) (*IngestJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (*IngestJob, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, errorMessage *string) error
}

// TransactionManager runs a function inside one database transaction.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
