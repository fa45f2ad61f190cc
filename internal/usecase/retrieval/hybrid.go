package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"lorekeeper/internal/domain"

	"golang.org/x/sync/errgroup"
)

// Config holds hybrid retrieval parameters.
type Config struct {
	// SearchLimit is the per-mode depth of each ranked list.
	SearchLimit int
	// RRFK is the fusion smoothing constant.
	RRFK float64
	// EmbeddingDims is the expected query embedding dimensionality.
	EmbeddingDims int
}

// HybridRetriever issues the vector and keyword searches against the chunk
// store and fuses the two ranked lists. Both legs are read-only and
// independent, so they run concurrently.
type HybridRetriever struct {
	chunkRepo domain.ChunkRepository
	cfg       Config
	logger    *slog.Logger
}

func NewHybridRetriever(chunkRepo domain.ChunkRepository, cfg Config, logger *slog.Logger) *HybridRetriever {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 50
	}
	if cfg.RRFK <= 0 {
		cfg.RRFK = DefaultRRFK
	}
	return &HybridRetriever{chunkRepo: chunkRepo, cfg: cfg, logger: logger}
}

// Retrieve runs both searches and returns the fused candidate list,
// truncated to limit. Any failure here is fatal to the pipeline.
func (r *HybridRetriever) Retrieve(
	ctx context.Context,
	searchQuery string,
	embedding []float32,
	scope domain.SearchScope,
	limit int,
) ([]domain.SearchCandidate, error) {
	if strings.TrimSpace(searchQuery) == "" {
		return nil, domain.NewPipelineError(domain.ErrSearchFailed, "search query is blank", nil)
	}
	if r.cfg.EmbeddingDims > 0 && len(embedding) != r.cfg.EmbeddingDims {
		return nil, domain.NewPipelineError(domain.ErrSearchFailed,
			"query embedding has wrong dimensionality", nil)
	}

	start := time.Now()
	var (
		vectorHits  []domain.VectorHit
		keywordHits []domain.KeywordHit
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := r.chunkRepo.VectorSearch(gctx, embedding, scope, r.cfg.SearchLimit)
		if err != nil {
			return err
		}
		vectorHits = hits
		return nil
	})
	g.Go(func() error {
		hits, err := r.chunkRepo.KeywordSearch(gctx, searchQuery, scope, r.cfg.SearchLimit)
		if err != nil {
			return err
		}
		keywordHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, domain.NewPipelineError(domain.ErrSearchFailed, "document store search failed", err)
	}

	candidates := FuseHybrid(vectorHits, keywordHits, r.cfg.RRFK, limit)

	r.logger.Info("hybrid_search_completed",
		slog.Int("vector_count", len(vectorHits)),
		slog.Int("keyword_count", len(keywordHits)),
		slog.Int("fused_count", len(candidates)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return candidates, nil
}
