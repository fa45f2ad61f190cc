package repository

import (
	"context"
	"fmt"
	"time"

	"lorekeeper/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type documentRepository struct {
	pool *pgxpool.Pool
}

func NewDocumentRepository(pool *pgxpool.Pool) domain.DocumentRepository {
	return &documentRepository{pool: pool}
}

func (r *documentRepository) getExecutor(ctx context.Context) dbExecutor {
	tx := ExtractTx(ctx)
	if tx != nil {
		return tx
	}
	return r.pool
}

func (r *documentRepository) Create(ctx context.Context, doc *domain.Document) error {
	query := `
		INSERT INTO documents (id, collection_id, name, doc_type, content, status, chunk_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = domain.DocumentStatusPending
	}

	_, err := r.getExecutor(ctx).Exec(ctx, query,
		doc.ID,
		doc.CollectionID,
		doc.Name,
		doc.DocType,
		doc.Content,
		doc.Status,
		doc.ChunkCount,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (r *documentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	query := `
		SELECT id, collection_id, name, doc_type, content, status, chunk_count, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	rows, err := r.getExecutor(ctx).Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("rows error: %w", err)
		}
		return nil, nil
	}

	var doc domain.Document
	err = rows.Scan(
		&doc.ID,
		&doc.CollectionID,
		&doc.Name,
		&doc.DocType,
		&doc.Content,
		&doc.Status,
		&doc.ChunkCount,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	return &doc, nil
}

func (r *documentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, chunkCount int) error {
	query := `
		UPDATE documents
		SET status = $1, chunk_count = $2, updated_at = $3
		WHERE id = $4
	`
	_, err := r.getExecutor(ctx).Exec(ctx, query, status, chunkCount, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	return nil
}
