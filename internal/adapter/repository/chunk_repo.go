package repository

import (
	"context"
	"fmt"
	"strings"

	"lorekeeper/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type chunkRepository struct {
	pool *pgxpool.Pool
}

// NewChunkRepository creates the pgvector-backed chunk store.
func NewChunkRepository(pool *pgxpool.Pool) domain.ChunkRepository {
	return &chunkRepository{pool: pool}
}

type dbExecutor interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func (r *chunkRepository) getExecutor(ctx context.Context) dbExecutor {
	tx := ExtractTx(ctx)
	if tx != nil {
		return tx
	}
	return r.pool
}

// scopeClause renders the optional document ID and type filters. args
// already holds the leading positional parameters.
func scopeClause(scope domain.SearchScope, args []interface{}) (string, []interface{}) {
	var sb strings.Builder
	if len(scope.DocumentIDs) > 0 {
		args = append(args, scope.DocumentIDs)
		fmt.Fprintf(&sb, " AND c.document_id = ANY($%d)", len(args))
	}
	if len(scope.DocumentTypes) > 0 {
		args = append(args, scope.DocumentTypes)
		fmt.Fprintf(&sb, " AND d.doc_type = ANY($%d)", len(args))
	}
	return sb.String(), args
}

func (r *chunkRepository) VectorSearch(ctx context.Context, embedding []float32, scope domain.SearchScope, limit int) ([]domain.VectorHit, error) {
	args := []interface{}{pgvector.NewVector(embedding), scope.CollectionID}
	filter, args := scopeClause(scope, args)
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT c.id, c.document_id, d.name, d.doc_type, c.content, c.chunk_index,
		       c.token_count, c.page_number, c.section,
		       c.embedding <=> $1 AS distance
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.collection_id = $2%s
		ORDER BY c.embedding <=> $1
		LIMIT $%d
	`, filter, len(args))

	rows, err := r.getExecutor(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run vector search: %w", err)
	}
	defer rows.Close()

	var hits []domain.VectorHit
	for rows.Next() {
		var hit domain.VectorHit
		if err := scanChunkRef(rows, &hit.Chunk, &hit.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan vector hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return hits, nil
}

func (r *chunkRepository) KeywordSearch(ctx context.Context, query string, scope domain.SearchScope, limit int) ([]domain.KeywordHit, error) {
	args := []interface{}{query, scope.CollectionID}
	filter, args := scopeClause(scope, args)
	args = append(args, limit)

	sql := fmt.Sprintf(`
		SELECT c.id, c.document_id, d.name, d.doc_type, c.content, c.chunk_index,
		       c.token_count, c.page_number, c.section,
		       ts_rank(c.content_tsv, websearch_to_tsquery('english', $1)) AS score
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.collection_id = $2
		  AND c.content_tsv @@ websearch_to_tsquery('english', $1)%s
		ORDER BY score DESC
		LIMIT $%d
	`, filter, len(args))

	rows, err := r.getExecutor(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run keyword search: %w", err)
	}
	defer rows.Close()

	var hits []domain.KeywordHit
	for rows.Next() {
		var hit domain.KeywordHit
		if err := scanChunkRef(rows, &hit.Chunk, &hit.Score); err != nil {
			return nil, fmt.Errorf("failed to scan keyword hit: %w", err)
		}
		hit.Rank = len(hits) + 1
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return hits, nil
}

func scanChunkRef(rows pgx.Rows, ref *domain.ChunkRef, trailing *float64) error {
	return rows.Scan(
		&ref.ChunkID,
		&ref.DocumentID,
		&ref.DocumentName,
		&ref.DocumentType,
		&ref.Content,
		&ref.ChunkIndex,
		&ref.TokenCount,
		&ref.PageNumber,
		&ref.Section,
		trailing,
	)
}

func (r *chunkRepository) BulkInsertChunks(ctx context.Context, chunks []domain.StoredChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(chunks))
	for i, chunk := range chunks {
		rows[i] = []interface{}{
			chunk.ID,
			chunk.DocumentID,
			chunk.CollectionID,
			chunk.ChunkIndex,
			chunk.Content,
			chunk.TokenCount,
			chunk.StartOffset,
			chunk.EndOffset,
			chunk.PageNumber,
			chunk.Section,
			chunk.Embedding,
		}
	}

	_, err := r.getExecutor(ctx).CopyFrom(
		ctx,
		pgx.Identifier{"document_chunks"},
		[]string{"id", "document_id", "collection_id", "chunk_index", "content", "token_count", "start_offset", "end_offset", "page_number", "section", "embedding"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk insert chunks: %w", err)
	}
	return nil
}

func (r *chunkRepository) DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) error {
	_, err := r.getExecutor(ctx).Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}
