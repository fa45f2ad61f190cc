package di

import (
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"lorekeeper/internal/adapter/ollama"
	"lorekeeper/internal/adapter/rag_http"
	"lorekeeper/internal/adapter/repository"
	"lorekeeper/internal/domain"
	"lorekeeper/internal/infra/config"
	"lorekeeper/internal/infra/httpclient"
	"lorekeeper/internal/usecase"
	"lorekeeper/internal/usecase/retrieval"
	"lorekeeper/internal/worker"
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	ChunkRepo domain.ChunkRepository
	DocRepo   domain.DocumentRepository
	JobRepo   domain.IngestJobRepository

	Pipeline     usecase.RAGPipelineUsecase
	IndexUsecase usecase.IndexDocumentUsecase

	Worker  *worker.IngestWorker
	Handler *rag_http.Handler
}

// NewApplicationComponents wires all dependencies from config and database pool.
func NewApplicationComponents(cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) *ApplicationComponents {
	// Repositories
	chunkRepo := repository.NewChunkRepository(pool)
	docRepo := repository.NewDocumentRepository(pool)
	jobRepo := repository.NewIngestJobRepository(pool)
	txManager := repository.NewPostgresTransactionManager(pool)

	// Shared HTTP clients with connection pooling
	embedHTTP := httpclient.NewPooledClient(time.Duration(cfg.EmbedTimeoutSeconds) * time.Second)
	chatHTTP := httpclient.NewPooledClient(time.Duration(cfg.ChatTimeoutSeconds) * time.Second)

	// Inference clients
	embedder := ollama.NewEmbedder(cfg.OllamaURL, cfg.EmbeddingModel, embedHTTP)
	llm := ollama.NewChatClient(cfg.OllamaURL, cfg.ChatModel, chatHTTP)

	// Ingestion
	chunker := domain.NewChunker()
	chunkingOpts := domain.ChunkingOptions{
		TargetTokens:   cfg.ChunkTargetTokens,
		OverlapTokens:  cfg.ChunkOverlapTokens,
		MinChunkTokens: cfg.ChunkMinTokens,
	}
	indexUsecase := usecase.NewIndexDocumentUsecase(docRepo, chunkRepo, chunker, embedder, txManager, chunkingOpts, log)

	// Retrieval
	retriever := retrieval.NewHybridRetriever(chunkRepo, retrieval.Config{
		EmbeddingDims: cfg.EmbeddingDims,
	}, log)

	// Enhancement stages
	var rewriter usecase.QueryRewriter
	if cfg.RewriteEnabled {
		rewriter = usecase.NewQueryRewriter(llm, log)
	}
	var reranker usecase.Reranker
	if cfg.RerankEnabled {
		reranker = usecase.NewReranker(llm, usecase.RerankerConfig{
			PassageCharCap: usecase.DefaultRerankerConfig().PassageCharCap,
			MinScore:       cfg.RerankMinScore,
		}, log)
	}

	// Generation
	promptBuilder := usecase.NewPromptBuilder()
	generator := usecase.NewResponseGenerator(llm, promptBuilder, usecase.GeneratorConfig{
		Temperature: cfg.GenTemperature,
		MaxTokens:   cfg.GenMaxTokens,
	}, log)

	// Pipeline
	pipeline := usecase.NewRAGPipelineUsecase(
		embedder, retriever, rewriter, reranker, generator,
		usecase.PipelineConfig{
			MaxChunks:        cfg.MaxChunks,
			MaxContextTokens: cfg.MaxContextTokens,
			MinRelevance:     cfg.MinRelevanceScore,
			RerankEnabled:    cfg.RerankEnabled,
			CacheSize:        cfg.CacheSize,
			CacheTTL:         time.Duration(cfg.CacheTTLSeconds) * time.Second,
		},
		log,
	)

	ingestWorker := worker.NewIngestWorker(jobRepo, indexUsecase, cfg.WorkerPollSeconds, cfg.WorkerJobsPerMinute, log)
	handler := rag_http.NewHandler(pipeline, docRepo, jobRepo, log)

	return &ApplicationComponents{
		ChunkRepo:    chunkRepo,
		DocRepo:      docRepo,
		JobRepo:      jobRepo,
		Pipeline:     pipeline,
		IndexUsecase: indexUsecase,
		Worker:       ingestWorker,
		Handler:      handler,
	}
}
