package usecase

import (
	"lorekeeper/internal/domain"

	"github.com/google/uuid"
)

// ConversationTurn is one prior exchange turn supplied for query rewriting.
type ConversationTurn struct {
	Role    string // "user" or "assistant"
	Content string
}

// RAGQuery is the pipeline's public input.
type RAGQuery struct {
	Question         string
	CollectionID     uuid.UUID
	DocumentIDs      []uuid.UUID
	DocumentTypes    []string
	MaxChunks        int
	MaxContextTokens int
	History          []ConversationTurn
}

// SourceCitation is one entry of the citation legend. Index is the 1-based
// marker used in the generated text; ordering of the Sources slice is the
// citation order, not the retrieval order.
type SourceCitation struct {
	Index          int
	DocumentID     uuid.UUID
	DocumentName   string
	DocumentType   string
	PageNumber     *int
	Section        *string
	RelevanceScore float64
}

// BuiltContext is the token-budgeted prompt context assembled from the
// surviving candidates. EstimatedTokens <= the configured budget except
// when a single oversized chunk was admitted alone, flagged by OverBudget.
type BuiltContext struct {
	ContextText     string
	Sources         []SourceCitation
	ChunksUsed      int
	EstimatedTokens int
	OverBudget      bool
}

// GeneratedAnswer is the response generator's output.
type GeneratedAnswer struct {
	Answer         string
	Confidence     float64
	Sources        []SourceCitation
	IsUnanswerable bool
	Usage          *domain.TokenUsage
}

// RAGResult is the pipeline's public output.
type RAGResult struct {
	Answer          string
	Confidence      float64
	Sources         []SourceCitation
	IsUnanswerable  bool
	ChunksRetrieved int
	ChunksUsed      int
	Usage           *domain.TokenUsage
}

// StreamEventKind tags events on the streaming variant of the pipeline.
type StreamEventKind string

const (
	StreamEventKindMeta  StreamEventKind = "meta"
	StreamEventKindDelta StreamEventKind = "delta"
	StreamEventKindDone  StreamEventKind = "done"
	StreamEventKindError StreamEventKind = "error"
)

// StreamEvent is one event of a streamed pipeline run.
type StreamEvent struct {
	Kind    StreamEventKind
	Payload interface{}
}

// StreamMeta is the first event of a streamed run: the citation legend is
// known before generation starts.
type StreamMeta struct {
	Sources         []SourceCitation
	ChunksRetrieved int
	ChunksUsed      int
}
