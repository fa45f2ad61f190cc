package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"lorekeeper/internal/domain"
	"lorekeeper/internal/usecase"
	"lorekeeper/internal/usecase/retrieval"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type pipelineFixture struct {
	encoder *mockVectorEncoder
	repo    *mockChunkRepository
	llm     *mockLLMClient
}

func newPipeline(t *testing.T, cfg usecase.PipelineConfig, rewriter usecase.QueryRewriter) (usecase.RAGPipelineUsecase, *pipelineFixture) {
	t.Helper()
	f := &pipelineFixture{
		encoder: new(mockVectorEncoder),
		repo:    new(mockChunkRepository),
		llm:     new(mockLLMClient),
	}
	log := testLogger(t)
	retriever := retrieval.NewHybridRetriever(f.repo, retrieval.Config{}, log)
	generator := usecase.NewResponseGenerator(f.llm, usecase.NewPromptBuilder(), usecase.GeneratorConfig{}, log)
	p := usecase.NewRAGPipelineUsecase(f.encoder, retriever, rewriter, nil, generator, cfg, log)
	return p, f
}

func vhits(ids ...uuid.UUID) []domain.VectorHit {
	hits := make([]domain.VectorHit, len(ids))
	for i, id := range ids {
		hits[i] = domain.VectorHit{
			Chunk: domain.ChunkRef{
				ChunkID:      id,
				DocumentID:   uuid.New(),
				DocumentName: "Session Notes",
				DocumentType: "session_notes",
				Content:      "The party slew the lich in session twelve.",
				TokenCount:   11,
			},
			Distance: float64(i) * 0.1,
		}
	}
	return hits
}

func testQuery() usecase.RAGQuery {
	return usecase.RAGQuery{
		Question:     "Who slew the lich?",
		CollectionID: uuid.New(),
	}
}

func TestExecute_HappyPath(t *testing.T) {
	p, f := newPipeline(t, usecase.PipelineConfig{}, nil)

	f.encoder.On("Encode", mock.Anything, []string{"Who slew the lich?"}).
		Return([][]float32{{0.1, 0.2}}, nil)
	f.repo.On("VectorSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(vhits(uuid.New(), uuid.New()), nil)
	f.repo.On("KeywordSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.KeywordHit{}, nil)
	f.llm.On("Chat", mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.ChatResponse{Content: "The party slew the lich [1]."}, nil)

	result, err := p.Execute(context.Background(), testQuery())
	require.NoError(t, err)
	assert.Equal(t, "The party slew the lich [1].", result.Answer)
	assert.Equal(t, 2, result.ChunksRetrieved)
	assert.Equal(t, 2, result.ChunksUsed)
	assert.False(t, result.IsUnanswerable)
	assert.Greater(t, result.Confidence, 0.5)
	require.Len(t, result.Sources, 2)
	assert.Equal(t, 1, result.Sources[0].Index)
}

func TestExecute_EmptyQuestion(t *testing.T) {
	p, f := newPipeline(t, usecase.PipelineConfig{}, nil)

	_, err := p.Execute(context.Background(), usecase.RAGQuery{Question: "   "})
	require.Error(t, err)
	assert.Equal(t, domain.ErrInvalidQuery, domain.CodeOf(err))
	f.encoder.AssertNotCalled(t, "Encode", mock.Anything, mock.Anything)
}

func TestExecute_EmbeddingFailureIsFatal(t *testing.T) {
	p, f := newPipeline(t, usecase.PipelineConfig{}, nil)

	f.encoder.On("Encode", mock.Anything, mock.Anything).
		Return(nil, errors.New("ollama down"))

	_, err := p.Execute(context.Background(), testQuery())
	require.Error(t, err)
	assert.Equal(t, domain.ErrEmbeddingFailed, domain.CodeOf(err))
}

func TestExecute_SearchFailureIsFatal(t *testing.T) {
	p, f := newPipeline(t, usecase.PipelineConfig{}, nil)

	f.encoder.On("Encode", mock.Anything, mock.Anything).
		Return([][]float32{{0.1}}, nil)
	f.repo.On("VectorSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("db down"))
	f.repo.On("KeywordSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.KeywordHit{}, nil)

	_, err := p.Execute(context.Background(), testQuery())
	require.Error(t, err)
	assert.Equal(t, domain.ErrSearchFailed, domain.CodeOf(err))
}

func TestExecute_NoCandidatesSkipsGeneration(t *testing.T) {
	p, f := newPipeline(t, usecase.PipelineConfig{}, nil)

	f.encoder.On("Encode", mock.Anything, mock.Anything).
		Return([][]float32{{0.1}}, nil)
	f.repo.On("VectorSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.VectorHit{}, nil)
	f.repo.On("KeywordSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.KeywordHit{}, nil)

	result, err := p.Execute(context.Background(), testQuery())
	require.NoError(t, err)
	assert.True(t, result.IsUnanswerable)
	assert.InDelta(t, 0.1, result.Confidence, 1e-9)
	assert.Zero(t, result.ChunksRetrieved)
	assert.Zero(t, result.ChunksUsed)
	assert.Empty(t, result.Sources)
	f.llm.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecute_AllCandidatesBelowRelevanceSkipsGeneration(t *testing.T) {
	p, f := newPipeline(t, usecase.PipelineConfig{MinRelevance: 2.0}, nil)

	f.encoder.On("Encode", mock.Anything, mock.Anything).
		Return([][]float32{{0.1}}, nil)
	f.repo.On("VectorSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(vhits(uuid.New()), nil)
	f.repo.On("KeywordSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.KeywordHit{}, nil)

	result, err := p.Execute(context.Background(), testQuery())
	require.NoError(t, err)
	assert.True(t, result.IsUnanswerable)
	assert.Equal(t, 1, result.ChunksRetrieved)
	assert.Zero(t, result.ChunksUsed)
	f.llm.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecute_CachesIdenticalQueries(t *testing.T) {
	p, f := newPipeline(t, usecase.PipelineConfig{CacheSize: 16, CacheTTL: time.Minute}, nil)

	f.encoder.On("Encode", mock.Anything, mock.Anything).
		Return([][]float32{{0.1}}, nil)
	f.repo.On("VectorSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(vhits(uuid.New()), nil)
	f.repo.On("KeywordSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.KeywordHit{}, nil)
	f.llm.On("Chat", mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.ChatResponse{Content: "answer [1]"}, nil)

	query := testQuery()
	first, err := p.Execute(context.Background(), query)
	require.NoError(t, err)
	second, err := p.Execute(context.Background(), query)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	f.llm.AssertNumberOfCalls(t, "Chat", 1)
	f.encoder.AssertNumberOfCalls(t, "Encode", 1)
}

func TestExecute_RewriterFailureDegradesToOriginalQuestion(t *testing.T) {
	rewriterLLM := new(mockLLMClient)
	rewriterLLM.On("Chat", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("rewrite model down"))
	rewriter := usecase.NewQueryRewriter(rewriterLLM, testLogger(t))

	p, f := newPipeline(t, usecase.PipelineConfig{}, rewriter)

	f.encoder.On("Encode", mock.Anything, []string{"Who slew the lich?"}).
		Return([][]float32{{0.1}}, nil)
	f.repo.On("VectorSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(vhits(uuid.New()), nil)
	f.repo.On("KeywordSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.KeywordHit{}, nil)
	f.llm.On("Chat", mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.ChatResponse{Content: "answer [1]"}, nil)

	query := testQuery()
	query.History = []usecase.ConversationTurn{{Role: "user", Content: "earlier turn"}}

	result, err := p.Execute(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, "answer [1]", result.Answer)
	// the failing rewrite still embedded the original question
	f.encoder.AssertExpectations(t)
}

func TestStream_NoContextEmitsDoneOnly(t *testing.T) {
	p, f := newPipeline(t, usecase.PipelineConfig{}, nil)

	f.encoder.On("Encode", mock.Anything, mock.Anything).
		Return([][]float32{{0.1}}, nil)
	f.repo.On("VectorSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.VectorHit{}, nil)
	f.repo.On("KeywordSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.KeywordHit{}, nil)

	var events []usecase.StreamEvent
	for event := range p.Stream(context.Background(), testQuery()) {
		events = append(events, event)
	}

	require.Len(t, events, 1)
	assert.Equal(t, usecase.StreamEventKindDone, events[0].Kind)
	result := events[0].Payload.(*usecase.RAGResult)
	assert.True(t, result.IsUnanswerable)
}

func TestStream_EmitsMetaDeltasAndDone(t *testing.T) {
	p, f := newPipeline(t, usecase.PipelineConfig{}, nil)

	f.encoder.On("Encode", mock.Anything, mock.Anything).
		Return([][]float32{{0.1}}, nil)
	f.repo.On("VectorSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(vhits(uuid.New()), nil)
	f.repo.On("KeywordSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.KeywordHit{}, nil)

	chunks := make(chan domain.StreamChunk, 3)
	errs := make(chan error)
	chunks <- domain.StreamChunk{Content: "The party "}
	chunks <- domain.StreamChunk{Content: "slew the lich."}
	chunks <- domain.StreamChunk{Done: true, Usage: &domain.TokenUsage{CompletionTokens: 7}}
	close(chunks)

	f.llm.On("ChatStream", mock.Anything, mock.Anything, mock.Anything).
		Return((<-chan domain.StreamChunk)(chunks), (<-chan error)(errs), nil)

	var events []usecase.StreamEvent
	for event := range p.Stream(context.Background(), testQuery()) {
		events = append(events, event)
	}

	require.Len(t, events, 4)
	assert.Equal(t, usecase.StreamEventKindMeta, events[0].Kind)
	assert.Equal(t, usecase.StreamEventKindDelta, events[1].Kind)
	assert.Equal(t, usecase.StreamEventKindDelta, events[2].Kind)
	assert.Equal(t, usecase.StreamEventKindDone, events[3].Kind)

	meta := events[0].Payload.(usecase.StreamMeta)
	assert.Equal(t, 1, meta.ChunksRetrieved)

	result := events[3].Payload.(*usecase.RAGResult)
	assert.Equal(t, "The party slew the lich.", result.Answer)
	require.NotNil(t, result.Usage)
	assert.Equal(t, 7, result.Usage.CompletionTokens)
}

func TestStream_EmptyQuestionEmitsError(t *testing.T) {
	p, _ := newPipeline(t, usecase.PipelineConfig{}, nil)

	var events []usecase.StreamEvent
	for event := range p.Stream(context.Background(), usecase.RAGQuery{Question: ""}) {
		events = append(events, event)
	}

	require.Len(t, events, 1)
	assert.Equal(t, usecase.StreamEventKindError, events[0].Kind)
}
