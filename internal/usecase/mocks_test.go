package usecase_test

import (
	"context"
	"log/slog"
	"testing"

	"lorekeeper/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type mockLLMClient struct {
	mock.Mock
}

func (m *mockLLMClient) Chat(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (*domain.ChatResponse, error) {
	args := m.Called(ctx, messages, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChatResponse), args.Error(1)
}

func (m *mockLLMClient) ChatStream(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (<-chan domain.StreamChunk, <-chan error, error) {
	args := m.Called(ctx, messages, opts)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(<-chan domain.StreamChunk), args.Get(1).(<-chan error), args.Error(2)
}

func (m *mockLLMClient) Version() string {
	return "mock"
}

type mockVectorEncoder struct {
	mock.Mock
}

func (m *mockVectorEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *mockVectorEncoder) Version() string {
	return "mock-encoder"
}

type mockChunkRepository struct {
	mock.Mock
}

func (m *mockChunkRepository) VectorSearch(ctx context.Context, embedding []float32, scope domain.SearchScope, limit int) ([]domain.VectorHit, error) {
	args := m.Called(ctx, embedding, scope, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.VectorHit), args.Error(1)
}

func (m *mockChunkRepository) KeywordSearch(ctx context.Context, query string, scope domain.SearchScope, limit int) ([]domain.KeywordHit, error) {
	args := m.Called(ctx, query, scope, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.KeywordHit), args.Error(1)
}

func (m *mockChunkRepository) BulkInsertChunks(ctx context.Context, chunks []domain.StoredChunk) error {
	args := m.Called(ctx, chunks)
	return args.Error(0)
}

func (m *mockChunkRepository) DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.DiscardHandler)
}

func candidate(score float64) domain.SearchCandidate {
	return domain.SearchCandidate{
		Chunk: domain.ChunkRef{
			ChunkID:      uuid.New(),
			DocumentID:   uuid.New(),
			DocumentName: "Campaign Guide",
			DocumentType: "lore",
			Content:      "The dragon sleeps beneath the mountain.",
			TokenCount:   10,
		},
		Score: score,
	}
}
