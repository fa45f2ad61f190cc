package rag_http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"lorekeeper/internal/domain"
	"lorekeeper/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	pipeline  usecase.RAGPipelineUsecase
	documents domain.DocumentRepository
	jobs      domain.IngestJobRepository
	logger    *slog.Logger
}

func NewHandler(
	pipeline usecase.RAGPipelineUsecase,
	documents domain.DocumentRepository,
	jobs domain.IngestJobRepository,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		pipeline:  pipeline,
		documents: documents,
		jobs:      jobs,
		logger:    logger,
	}
}

// RegisterRoutes mounts the query and ingestion endpoints.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/rag/query", h.Query)
	e.POST("/v1/rag/query/stream", h.QueryStream)
	e.POST("/internal/ingest/documents", h.IngestDocument)
	e.GET("/internal/ingest/jobs/:id", h.GetIngestJob)
}

type conversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type queryRequest struct {
	Question         string             `json:"question"`
	CollectionID     uuid.UUID          `json:"collection_id"`
	DocumentIDs      []uuid.UUID        `json:"document_ids,omitempty"`
	DocumentTypes    []string           `json:"document_types,omitempty"`
	MaxChunks        int                `json:"max_chunks,omitempty"`
	MaxContextTokens int                `json:"max_context_tokens,omitempty"`
	History          []conversationTurn `json:"history,omitempty"`
}

type sourceCitation struct {
	Index          int     `json:"index"`
	DocumentID     string  `json:"document_id"`
	DocumentName   string  `json:"document_name"`
	DocumentType   string  `json:"document_type"`
	PageNumber     *int    `json:"page_number,omitempty"`
	Section        *string `json:"section,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

type queryResponse struct {
	Answer          string           `json:"answer"`
	Confidence      float64          `json:"confidence"`
	ConfidenceLabel string           `json:"confidence_label"`
	Sources         []sourceCitation `json:"sources"`
	IsUnanswerable  bool             `json:"is_unanswerable"`
	ChunksRetrieved int              `json:"chunks_retrieved"`
	ChunksUsed      int              `json:"chunks_used"`
}

func (r queryRequest) toQuery() usecase.RAGQuery {
	history := make([]usecase.ConversationTurn, len(r.History))
	for i, turn := range r.History {
		history[i] = usecase.ConversationTurn{Role: turn.Role, Content: turn.Content}
	}
	return usecase.RAGQuery{
		Question:         r.Question,
		CollectionID:     r.CollectionID,
		DocumentIDs:      r.DocumentIDs,
		DocumentTypes:    r.DocumentTypes,
		MaxChunks:        r.MaxChunks,
		MaxContextTokens: r.MaxContextTokens,
		History:          history,
	}
}

func toQueryResponse(result *usecase.RAGResult) queryResponse {
	return queryResponse{
		Answer:          result.Answer,
		Confidence:      result.Confidence,
		ConfidenceLabel: ConfidenceLabel(result.Confidence),
		Sources:         toSourceCitations(result.Sources),
		IsUnanswerable:  result.IsUnanswerable,
		ChunksRetrieved: result.ChunksRetrieved,
		ChunksUsed:      result.ChunksUsed,
	}
}

func toSourceCitations(sources []usecase.SourceCitation) []sourceCitation {
	out := make([]sourceCitation, len(sources))
	for i, src := range sources {
		out[i] = sourceCitation{
			Index:          src.Index,
			DocumentID:     src.DocumentID.String(),
			DocumentName:   src.DocumentName,
			DocumentType:   src.DocumentType,
			PageNumber:     src.PageNumber,
			Section:        src.Section,
			RelevanceScore: src.RelevanceScore,
		}
	}
	return out
}

// ConfidenceLabel buckets the numeric confidence for display.
func ConfidenceLabel(confidence float64) string {
	switch {
	case confidence >= 0.7:
		return "high"
	case confidence >= 0.4:
		return "medium"
	default:
		return "low"
	}
}

// Answer a question against a collection's indexed documents.
// (POST /v1/rag/query)
func (h *Handler) Query(ctx echo.Context) error {
	var req queryRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	result, err := h.pipeline.Execute(ctx.Request().Context(), req.toQuery())
	if err != nil {
		return h.queryError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, toQueryResponse(result))
}

// queryError maps pipeline failures to HTTP responses. Upstream failure
// detail stays in the logs; clients get an opaque message.
func (h *Handler) queryError(ctx echo.Context, err error) error {
	code := domain.CodeOf(err)
	if code == domain.ErrInvalidQuery {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "question must not be empty"})
	}

	h.logger.Error("query_failed",
		slog.String("code", string(code)),
		slog.String("error", err.Error()))
	return ctx.JSON(http.StatusBadGateway, map[string]string{"error": "query failed"})
}

// Answer a question with server-sent events.
// (POST /v1/rag/query/stream)
func (h *Handler) QueryStream(ctx echo.Context) error {
	var req queryRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set(echo.HeaderConnection, "keep-alive")
	resp.WriteHeader(http.StatusOK)

	events := h.pipeline.Stream(ctx.Request().Context(), req.toQuery())
	for event := range events {
		if err := writeSSE(resp, event); err != nil {
			return err
		}
		resp.Flush()
	}
	return nil
}

func writeSSE(w http.ResponseWriter, event usecase.StreamEvent) error {
	payload := event.Payload
	switch p := payload.(type) {
	case usecase.StreamMeta:
		payload = map[string]interface{}{
			"sources":          toSourceCitations(p.Sources),
			"chunks_retrieved": p.ChunksRetrieved,
			"chunks_used":      p.ChunksUsed,
		}
	case *usecase.RAGResult:
		payload = toQueryResponse(p)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, data)
	return err
}

type ingestRequest struct {
	CollectionID uuid.UUID `json:"collection_id"`
	Name         string    `json:"name"`
	DocType      string    `json:"doc_type"`
	Content      string    `json:"content"`
}

// Store a document and enqueue it for chunking and embedding.
// (POST /internal/ingest/documents)
func (h *Handler) IngestDocument(ctx echo.Context) error {
	var req ingestRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.Name == "" || req.Content == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "name and content are required"})
	}
	if req.CollectionID == uuid.Nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "collection_id is required"})
	}

	doc := &domain.Document{
		ID:           uuid.New(),
		CollectionID: req.CollectionID,
		Name:         req.Name,
		DocType:      domain.DocumentType(req.DocType),
		Content:      req.Content,
		Status:       domain.DocumentStatusPending,
	}
	if err := h.documents.Create(ctx.Request().Context(), doc); err != nil {
		h.logger.Error("document_create_failed", slog.String("error", err.Error()))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to store document"})
	}

	job := &domain.IngestJob{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		Status:     domain.JobStatusNew,
	}
	if err := h.jobs.Enqueue(ctx.Request().Context(), job); err != nil {
		h.logger.Error("ingest_enqueue_failed", slog.String("error", err.Error()))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to enqueue document"})
	}

	return ctx.JSON(http.StatusAccepted, map[string]string{
		"document_id": doc.ID.String(),
		"job_id":      job.ID.String(),
		"status":      "queued",
	})
}

// Report an ingest job's status.
// (GET /internal/ingest/jobs/:id)
func (h *Handler) GetIngestJob(ctx echo.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid job id"})
	}

	job, err := h.jobs.GetByID(ctx.Request().Context(), id)
	if err != nil {
		h.logger.Error("ingest_job_lookup_failed", slog.String("error", err.Error()))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load job"})
	}
	if job == nil {
		return ctx.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	body := map[string]interface{}{
		"job_id":      job.ID.String(),
		"document_id": job.DocumentID.String(),
		"status":      job.Status,
	}
	if job.ErrorMessage != nil {
		body["error_message"] = *job.ErrorMessage
	}
	return ctx.JSON(http.StatusOK, body)
}
