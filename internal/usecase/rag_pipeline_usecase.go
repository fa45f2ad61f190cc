package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"lorekeeper/internal/domain"
	"lorekeeper/internal/usecase/retrieval"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// RAGPipelineUsecase is the core's public contract: one operation that
// answers a question against a collection's indexed chunks.
type RAGPipelineUsecase interface {
	Execute(ctx context.Context, query RAGQuery) (*RAGResult, error)
	Stream(ctx context.Context, query RAGQuery) <-chan StreamEvent
}

// PipelineConfig holds orchestrator-level defaults and limits.
type PipelineConfig struct {
	MaxChunks        int
	MaxContextTokens int
	MinRelevance     float64
	RerankEnabled    bool
	CacheSize        int
	CacheTTL         time.Duration
}

type ragPipelineUsecase struct {
	encoder   domain.VectorEncoder
	retriever *retrieval.HybridRetriever
	rewriter  QueryRewriter
	reranker  Reranker
	generator ResponseGenerator
	cfg       PipelineConfig
	cache     *expirable.LRU[string, *RAGResult]
	logger    *slog.Logger
}

// NewRAGPipelineUsecase wires the pipeline stages. rewriter and reranker
// may be nil, in which case those enhancement stages are skipped entirely.
func NewRAGPipelineUsecase(
	encoder domain.VectorEncoder,
	retriever *retrieval.HybridRetriever,
	rewriter QueryRewriter,
	reranker Reranker,
	generator ResponseGenerator,
	cfg PipelineConfig,
	logger *slog.Logger,
) RAGPipelineUsecase {
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = 20
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = 16000
	}
	u := &ragPipelineUsecase{
		encoder:   encoder,
		retriever: retriever,
		rewriter:  rewriter,
		reranker:  reranker,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
	if cfg.CacheSize > 0 {
		u.cache = expirable.NewLRU[string, *RAGResult](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return u
}

func (u *ragPipelineUsecase) Execute(ctx context.Context, query RAGQuery) (*RAGResult, error) {
	if strings.TrimSpace(query.Question) == "" {
		return nil, domain.NewPipelineError(domain.ErrInvalidQuery, "question is empty", nil)
	}

	cacheKey := u.cacheKey(query)
	if u.cache != nil {
		if cached, ok := u.cache.Get(cacheKey); ok {
			u.logger.Info("rag_cache_hit", slog.String("collection_id", query.CollectionID.String()))
			return cached, nil
		}
	}

	queryID := uuid.NewString()
	log := u.logger.With(slog.String("query_id", queryID))
	start := time.Now()

	prepared, err := u.prepare(ctx, query, log)
	if err != nil {
		return nil, err
	}

	var result *RAGResult
	if prepared.built.ChunksUsed == 0 {
		result = noContextResult(prepared.retrievedCount)
		log.Info("rag_no_context",
			slog.Int("chunks_retrieved", prepared.retrievedCount))
	} else {
		// The user's actual words go to generation, never the rewritten
		// retrieval query.
		answer, err := u.generator.Generate(ctx, query.Question, prepared.built)
		if err != nil {
			return nil, err
		}
		result = &RAGResult{
			Answer:          answer.Answer,
			Confidence:      answer.Confidence,
			Sources:         answer.Sources,
			IsUnanswerable:  answer.IsUnanswerable,
			ChunksRetrieved: prepared.retrievedCount,
			ChunksUsed:      prepared.built.ChunksUsed,
			Usage:           answer.Usage,
		}
	}

	log.Info("rag_pipeline_completed",
		slog.Int("chunks_retrieved", result.ChunksRetrieved),
		slog.Int("chunks_used", result.ChunksUsed),
		slog.Float64("confidence", result.Confidence),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	if u.cache != nil {
		u.cache.Add(cacheKey, result)
	}
	return result, nil
}

// preparedQuery carries the retrieval output into the generation stage.
type preparedQuery struct {
	retrievedCount int
	built          BuiltContext
}

// prepare runs stages 2 through 5: rewrite, embed, hybrid retrieve,
// rerank, and context assembly. Rewrite and rerank degrade to identity on
// failure; embedding and search failures are fatal.
func (u *ragPipelineUsecase) prepare(ctx context.Context, query RAGQuery, log *slog.Logger) (*preparedQuery, error) {
	searchQuery := query.Question
	if u.rewriter != nil {
		searchQuery = u.rewriter.Rewrite(ctx, query.Question, query.History)
	}

	embeddings, err := u.encoder.Encode(ctx, []string{searchQuery})
	if err != nil {
		return nil, domain.NewPipelineError(domain.ErrEmbeddingFailed, "failed to embed search query", err)
	}
	if len(embeddings) != 1 {
		return nil, domain.NewPipelineError(domain.ErrEmbeddingFailed, "embedding service returned malformed output", nil)
	}

	maxChunks := query.MaxChunks
	if maxChunks <= 0 {
		maxChunks = u.cfg.MaxChunks
	}

	scope := domain.SearchScope{
		CollectionID:  query.CollectionID,
		DocumentIDs:   query.DocumentIDs,
		DocumentTypes: query.DocumentTypes,
	}
	candidates, err := u.retriever.Retrieve(ctx, searchQuery, embeddings[0], scope, maxChunks)
	if err != nil {
		return nil, err
	}
	retrievedCount := len(candidates)

	if u.cfg.RerankEnabled && u.reranker != nil && len(candidates) > 0 {
		candidates = u.reranker.Rerank(ctx, query.Question, candidates)
	}

	maxContextTokens := query.MaxContextTokens
	if maxContextTokens <= 0 {
		maxContextTokens = u.cfg.MaxContextTokens
	}
	built := BuildContext(candidates, ContextBuilderOptions{
		MaxTokens:         maxContextTokens,
		MinRelevanceScore: u.cfg.MinRelevance,
	})

	log.Info("context_built",
		slog.Int("chunks_retrieved", retrievedCount),
		slog.Int("chunks_used", built.ChunksUsed),
		slog.Int("estimated_tokens", built.EstimatedTokens),
		slog.Bool("over_budget", built.OverBudget))

	return &preparedQuery{retrievedCount: retrievedCount, built: built}, nil
}

// noContextResult is returned without an inference call when retrieval
// produced nothing usable.
func noContextResult(retrieved int) *RAGResult {
	return &RAGResult{
		Answer:          "I couldn't find anything about that in the campaign documents.",
		Confidence:      confidenceNoSources,
		Sources:         []SourceCitation{},
		IsUnanswerable:  true,
		ChunksRetrieved: retrieved,
		ChunksUsed:      0,
	}
}

func (u *ragPipelineUsecase) Stream(ctx context.Context, query RAGQuery) <-chan StreamEvent {
	events := make(chan StreamEvent, 4)
	go func() {
		defer close(events)

		if strings.TrimSpace(query.Question) == "" {
			u.sendEvent(ctx, events, StreamEvent{Kind: StreamEventKindError, Payload: "question is empty"})
			return
		}

		queryID := uuid.NewString()
		log := u.logger.With(slog.String("query_id", queryID))

		prepared, err := u.prepare(ctx, query, log)
		if err != nil {
			log.Error("rag_stream_failed", slog.String("error", err.Error()))
			u.sendEvent(ctx, events, StreamEvent{Kind: StreamEventKindError, Payload: "query failed"})
			return
		}

		if prepared.built.ChunksUsed == 0 {
			result := noContextResult(prepared.retrievedCount)
			u.sendEvent(ctx, events, StreamEvent{Kind: StreamEventKindDone, Payload: result})
			return
		}

		meta := StreamMeta{
			Sources:         prepared.built.Sources,
			ChunksRetrieved: prepared.retrievedCount,
			ChunksUsed:      prepared.built.ChunksUsed,
		}
		if !u.sendEvent(ctx, events, StreamEvent{Kind: StreamEventKindMeta, Payload: meta}) {
			return
		}

		chunks, errs, err := u.generator.GenerateStream(ctx, query.Question, prepared.built)
		if err != nil {
			log.Error("rag_stream_setup_failed", slog.String("error", err.Error()))
			u.sendEvent(ctx, events, StreamEvent{Kind: StreamEventKindError, Payload: "query failed"})
			return
		}

		var builder strings.Builder
		var usage *domain.TokenUsage
		for chunks != nil || errs != nil {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-chunks:
				if !ok {
					chunks = nil
					continue
				}
				if chunk.Content != "" {
					builder.WriteString(chunk.Content)
					if !u.sendEvent(ctx, events, StreamEvent{Kind: StreamEventKindDelta, Payload: chunk.Content}) {
						return
					}
				}
				if chunk.Usage != nil {
					usage = chunk.Usage
				}
				if chunk.Done {
					chunks = nil
					errs = nil
				}
			case streamErr, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				log.Error("rag_stream_failed", slog.String("error", streamErr.Error()))
				u.sendEvent(ctx, events, StreamEvent{Kind: StreamEventKindError, Payload: "query failed"})
				return
			}
		}

		answer := strings.TrimSpace(builder.String())
		if answer == "" {
			u.sendEvent(ctx, events, StreamEvent{Kind: StreamEventKindError, Payload: "query failed"})
			return
		}

		scored := ScoreAnswer(answer, prepared.built.Sources)
		result := &RAGResult{
			Answer:          scored.Answer,
			Confidence:      scored.Confidence,
			Sources:         scored.Sources,
			IsUnanswerable:  scored.IsUnanswerable,
			ChunksRetrieved: prepared.retrievedCount,
			ChunksUsed:      prepared.built.ChunksUsed,
			Usage:           usage,
		}
		u.sendEvent(ctx, events, StreamEvent{Kind: StreamEventKindDone, Payload: result})
	}()
	return events
}

func (u *ragPipelineUsecase) sendEvent(ctx context.Context, events chan<- StreamEvent, event StreamEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case events <- event:
		return true
	}
}

func (u *ragPipelineUsecase) cacheKey(query RAGQuery) string {
	parts := []string{
		query.CollectionID.String(),
		strings.ToLower(strings.TrimSpace(query.Question)),
	}
	ids := make([]string, 0, len(query.DocumentIDs))
	for _, id := range query.DocumentIDs {
		ids = append(ids, id.String())
	}
	sort.Strings(ids)
	parts = append(parts, strings.Join(ids, ","))

	types := append([]string(nil), query.DocumentTypes...)
	sort.Strings(types)
	parts = append(parts, strings.Join(types, ","))

	// History-bearing queries are context-dependent and skip the cache via
	// a unique segment.
	if len(query.History) > 0 {
		parts = append(parts, uuid.NewString())
	}
	return strings.Join(parts, "|")
}
