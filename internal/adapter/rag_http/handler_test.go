package rag_http_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lorekeeper/internal/adapter/rag_http"
	"lorekeeper/internal/domain"
	"lorekeeper/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPipeline struct {
	mock.Mock
}

func (m *mockPipeline) Execute(ctx context.Context, query usecase.RAGQuery) (*usecase.RAGResult, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.RAGResult), args.Error(1)
}

func (m *mockPipeline) Stream(ctx context.Context, query usecase.RAGQuery) <-chan usecase.StreamEvent {
	args := m.Called(ctx, query)
	return args.Get(0).(<-chan usecase.StreamEvent)
}

type mockDocumentRepository struct {
	mock.Mock
}

func (m *mockDocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *mockDocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *mockDocumentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, chunkCount int) error {
	args := m.Called(ctx, id, status, chunkCount)
	return args.Error(0)
}

type mockIngestJobRepository struct {
	mock.Mock
}

func (m *mockIngestJobRepository) Enqueue(ctx context.Context, job *domain.IngestJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *mockIngestJobRepository) AcquireNextJob(ctx context.Context) (*domain.IngestJob, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestJob), args.Error(1)
}

func (m *mockIngestJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.IngestJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestJob), args.Error(1)
}

func (m *mockIngestJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, errorMessage *string) error {
	args := m.Called(ctx, id, status, errorMessage)
	return args.Error(0)
}

type handlerFixture struct {
	pipeline *mockPipeline
	docs     *mockDocumentRepository
	jobs     *mockIngestJobRepository
	echo     *echo.Echo
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := &handlerFixture{
		pipeline: new(mockPipeline),
		docs:     new(mockDocumentRepository),
		jobs:     new(mockIngestJobRepository),
		echo:     echo.New(),
	}
	h := rag_http.NewHandler(f.pipeline, f.docs, f.jobs, slog.New(slog.DiscardHandler))
	h.RegisterRoutes(f.echo)
	return f
}

func (f *handlerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func TestConfidenceLabel(t *testing.T) {
	assert.Equal(t, "high", rag_http.ConfidenceLabel(0.85))
	assert.Equal(t, "high", rag_http.ConfidenceLabel(0.7))
	assert.Equal(t, "medium", rag_http.ConfidenceLabel(0.55))
	assert.Equal(t, "medium", rag_http.ConfidenceLabel(0.4))
	assert.Equal(t, "low", rag_http.ConfidenceLabel(0.39))
	assert.Equal(t, "low", rag_http.ConfidenceLabel(0.1))
}

func TestQuery_Success(t *testing.T) {
	f := newHandlerFixture(t)
	collectionID := uuid.New()
	docID := uuid.New()

	f.pipeline.On("Execute", mock.Anything, mock.MatchedBy(func(q usecase.RAGQuery) bool {
		return q.Question == "Who rules the march?" && q.CollectionID == collectionID
	})).Return(&usecase.RAGResult{
		Answer:     "Baron Aldric rules the northern march [1].",
		Confidence: 0.82,
		Sources: []usecase.SourceCitation{{
			Index:          1,
			DocumentID:     docID,
			DocumentName:   "Campaign Guide",
			DocumentType:   "lore",
			RelevanceScore: 0.9,
		}},
		ChunksRetrieved: 8,
		ChunksUsed:      3,
	}, nil)

	rec := f.do(http.MethodPost, "/v1/rag/query",
		`{"question":"Who rules the march?","collection_id":"`+collectionID.String()+`"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Baron Aldric rules the northern march [1].", resp["answer"])
	assert.Equal(t, "high", resp["confidence_label"])
	assert.Equal(t, float64(8), resp["chunks_retrieved"])
	assert.Equal(t, float64(3), resp["chunks_used"])
	assert.Equal(t, false, resp["is_unanswerable"])

	srcs := resp["sources"].([]interface{})
	require.Len(t, srcs, 1)
	src := srcs[0].(map[string]interface{})
	assert.Equal(t, docID.String(), src["document_id"])
	assert.Equal(t, "Campaign Guide", src["document_name"])
}

func TestQuery_InvalidQuestionReturns400(t *testing.T) {
	f := newHandlerFixture(t)
	f.pipeline.On("Execute", mock.Anything, mock.Anything).
		Return(nil, domain.NewPipelineError(domain.ErrInvalidQuery, "question is empty", nil))

	rec := f.do(http.MethodPost, "/v1/rag/query",
		`{"question":"","collection_id":"`+uuid.NewString()+`"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "question must not be empty")
}

func TestQuery_PipelineFailureIsOpaque502(t *testing.T) {
	f := newHandlerFixture(t)
	f.pipeline.On("Execute", mock.Anything, mock.Anything).
		Return(nil, domain.NewPipelineError(domain.ErrEmbeddingFailed, "ollama returned 500", errors.New("boom")))

	rec := f.do(http.MethodPost, "/v1/rag/query",
		`{"question":"q","collection_id":"`+uuid.NewString()+`"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "query failed")
	// upstream detail never reaches the client
	assert.NotContains(t, rec.Body.String(), "ollama")
}

func TestQuery_MalformedBodyReturns400(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/v1/rag/query", `{"question": 7}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.pipeline.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestQueryStream_WritesEventFrames(t *testing.T) {
	f := newHandlerFixture(t)

	events := make(chan usecase.StreamEvent, 3)
	events <- usecase.StreamEvent{Kind: usecase.StreamEventKindMeta, Payload: usecase.StreamMeta{ChunksRetrieved: 2, ChunksUsed: 1}}
	events <- usecase.StreamEvent{Kind: usecase.StreamEventKindDelta, Payload: "partial answer"}
	events <- usecase.StreamEvent{Kind: usecase.StreamEventKindDone, Payload: &usecase.RAGResult{Answer: "full answer", Confidence: 0.5}}
	close(events)

	f.pipeline.On("Stream", mock.Anything, mock.Anything).
		Return((<-chan usecase.StreamEvent)(events))

	rec := f.do(http.MethodPost, "/v1/rag/query/stream",
		`{"question":"q","collection_id":"`+uuid.NewString()+`"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))

	body := rec.Body.String()
	assert.Contains(t, body, "event: meta\n")
	assert.Contains(t, body, `"chunks_retrieved":2`)
	assert.Contains(t, body, "event: delta\ndata: \"partial answer\"\n\n")
	assert.Contains(t, body, "event: done\n")
	assert.Contains(t, body, `"confidence_label":"medium"`)
}

func TestIngestDocument_Accepted(t *testing.T) {
	f := newHandlerFixture(t)
	collectionID := uuid.New()

	f.docs.On("Create", mock.Anything, mock.MatchedBy(func(doc *domain.Document) bool {
		return doc.Name == "session-12.md" &&
			doc.Status == domain.DocumentStatusPending &&
			doc.CollectionID == collectionID
	})).Return(nil)
	f.jobs.On("Enqueue", mock.Anything, mock.MatchedBy(func(job *domain.IngestJob) bool {
		return job.Status == domain.JobStatusNew
	})).Return(nil)

	rec := f.do(http.MethodPost, "/internal/ingest/documents",
		`{"collection_id":"`+collectionID.String()+`","name":"session-12.md","doc_type":"session_notes","content":"# Session 12\nThe party slew the lich."}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp["status"])
	assert.NotEmpty(t, resp["document_id"])
	assert.NotEmpty(t, resp["job_id"])
	f.docs.AssertExpectations(t)
	f.jobs.AssertExpectations(t)
}

func TestIngestDocument_MissingFieldsReturns400(t *testing.T) {
	f := newHandlerFixture(t)

	for _, body := range []string{
		`{"collection_id":"` + uuid.NewString() + `","content":"text"}`,
		`{"collection_id":"` + uuid.NewString() + `","name":"doc.md"}`,
		`{"name":"doc.md","content":"text"}`,
	} {
		rec := f.do(http.MethodPost, "/internal/ingest/documents", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
	f.docs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestIngestDocument_StoreFailureReturns500(t *testing.T) {
	f := newHandlerFixture(t)
	f.docs.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))

	rec := f.do(http.MethodPost, "/internal/ingest/documents",
		`{"collection_id":"`+uuid.NewString()+`","name":"doc.md","content":"text"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	f.jobs.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestGetIngestJob_Found(t *testing.T) {
	f := newHandlerFixture(t)
	jobID := uuid.New()
	msg := "chunking failed"

	f.jobs.On("GetByID", mock.Anything, jobID).Return(&domain.IngestJob{
		ID:           jobID,
		DocumentID:   uuid.New(),
		Status:       domain.JobStatusFailed,
		ErrorMessage: &msg,
	}, nil)

	rec := f.do(http.MethodGet, "/internal/ingest/jobs/"+jobID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp["status"])
	assert.Equal(t, "chunking failed", resp["error_message"])
}

func TestGetIngestJob_NotFound(t *testing.T) {
	f := newHandlerFixture(t)
	jobID := uuid.New()
	f.jobs.On("GetByID", mock.Anything, jobID).Return(nil, nil)

	rec := f.do(http.MethodGet, "/internal/ingest/jobs/"+jobID.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetIngestJob_BadID(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodGet, "/internal/ingest/jobs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.jobs.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}
