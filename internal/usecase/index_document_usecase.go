package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lorekeeper/internal/domain"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// embedBatchSize bounds how many chunk texts go to the embedding service
// per call. Large documents produce hundreds of chunks and the service
// rejects oversized payloads.
const embedBatchSize = 16

// IndexDocumentUsecase chunks a stored document, embeds the chunks, and
// atomically replaces the document's indexed chunk set.
type IndexDocumentUsecase interface {
	Execute(ctx context.Context, documentID uuid.UUID) error
}

type indexDocumentUsecase struct {
	documents domain.DocumentRepository
	chunks    domain.ChunkRepository
	chunker   domain.Chunker
	encoder   domain.VectorEncoder
	tx        domain.TransactionManager
	opts      domain.ChunkingOptions
	logger    *slog.Logger
}

func NewIndexDocumentUsecase(
	documents domain.DocumentRepository,
	chunks domain.ChunkRepository,
	chunker domain.Chunker,
	encoder domain.VectorEncoder,
	tx domain.TransactionManager,
	opts domain.ChunkingOptions,
	logger *slog.Logger,
) IndexDocumentUsecase {
	return &indexDocumentUsecase{
		documents: documents,
		chunks:    chunks,
		chunker:   chunker,
		encoder:   encoder,
		tx:        tx,
		opts:      opts,
		logger:    logger,
	}
}

func (u *indexDocumentUsecase) Execute(ctx context.Context, documentID uuid.UUID) error {
	start := time.Now()
	log := u.logger.With(slog.String("document_id", documentID.String()))

	doc, err := u.documents.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("document %s not found", documentID)
	}

	strategy := StrategyForDocument(doc)
	result, err := u.chunker.Chunk(doc.Content, strategy, u.opts)
	if err != nil {
		u.markFailed(ctx, documentID, err)
		return fmt.Errorf("failed to chunk document: %w", err)
	}

	log.Info("document_chunked",
		slog.String("strategy", string(result.Strategy)),
		slog.Int("chunk_count", len(result.Chunks)),
		slog.Int("total_tokens", result.TotalTokens))

	stored, err := u.embedChunks(ctx, doc, result.Chunks)
	if err != nil {
		u.markFailed(ctx, documentID, err)
		return fmt.Errorf("failed to embed chunks: %w", err)
	}

	// Delete and reinsert inside one transaction so a reindex never leaves
	// the document half-indexed.
	err = u.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := u.chunks.DeleteByDocumentID(txCtx, documentID); err != nil {
			return fmt.Errorf("failed to clear previous chunks: %w", err)
		}
		if err := u.chunks.BulkInsertChunks(txCtx, stored); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
		return u.documents.UpdateStatus(txCtx, documentID, domain.DocumentStatusIndexed, len(stored))
	})
	if err != nil {
		u.markFailed(ctx, documentID, err)
		return err
	}

	log.Info("document_indexed",
		slog.Int("chunk_count", len(stored)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}

// StrategyForDocument picks the chunking strategy for a document record.
func StrategyForDocument(doc *domain.Document) domain.ChunkingStrategy {
	return domain.StrategyForDocumentType(doc.DocType)
}

func (u *indexDocumentUsecase) embedChunks(ctx context.Context, doc *domain.Document, chunks []domain.DocumentChunk) ([]domain.StoredChunk, error) {
	stored := make([]domain.StoredChunk, 0, len(chunks))

	for offset := 0; offset < len(chunks); offset += embedBatchSize {
		end := offset + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[offset:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		embeddings, err := u.encoder.Encode(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(embeddings) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: got %d for %d chunks", len(embeddings), len(batch))
		}

		for i, c := range batch {
			stored = append(stored, domain.StoredChunk{
				ID:           uuid.New(),
				DocumentID:   doc.ID,
				CollectionID: doc.CollectionID,
				ChunkIndex:   c.ChunkIndex,
				Content:      c.Content,
				TokenCount:   c.TokenCount,
				StartOffset:  c.StartOffset,
				EndOffset:    c.EndOffset,
				PageNumber:   c.PageNumber,
				Section:      c.Section,
				Embedding:    pgvector.NewVector(embeddings[i]),
			})
		}
	}
	return stored, nil
}

func (u *indexDocumentUsecase) markFailed(ctx context.Context, documentID uuid.UUID, cause error) {
	if err := u.documents.UpdateStatus(ctx, documentID, domain.DocumentStatusFailed, 0); err != nil {
		u.logger.Error("failed_to_mark_document_failed",
			slog.String("document_id", documentID.String()),
			slog.String("error", err.Error()),
			slog.String("cause", cause.Error()))
	}
}
