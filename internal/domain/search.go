package domain

import "github.com/google/uuid"

// SearchScope restricts retrieval to a collection and, optionally, to
// specific documents or document types within it.
type SearchScope struct {
	CollectionID  uuid.UUID
	DocumentIDs   []uuid.UUID
	DocumentTypes []string
}

// ChunkRef carries a retrieved chunk together with the document metadata
// needed for citation rendering.
type ChunkRef struct {
	ChunkID      uuid.UUID
	DocumentID   uuid.UUID
	DocumentName string
	DocumentType string
	Content      string
	ChunkIndex   int
	TokenCount   int
	PageNumber   *int
	Section      *string
}

// VectorHit is a nearest-neighbor result. Distance is cosine distance,
// 0 meaning identical direction.
type VectorHit struct {
	Chunk    ChunkRef
	Distance float64
}

// KeywordHit is a full-text result. Rank is the 1-based position in the
// keyword result list.
type KeywordHit struct {
	Chunk ChunkRef
	Rank  int
	Score float64
}

// SearchCandidate is a chunk plus its current retrieval signal. Score is
// the fused score after RRF (normalized to [0,1]) or the reranked score;
// VectorRank/KeywordRank record the 1-based source positions (0 = absent
// from that list) for tie-breaking and diagnostics. Candidates are produced
// fresh per query and never persisted.
type SearchCandidate struct {
	Chunk       ChunkRef
	Score       float64
	VectorRank  int
	KeywordRank int
}
