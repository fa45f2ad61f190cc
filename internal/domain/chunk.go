package domain

// DocumentType classifies an ingested campaign document. The type selects
// the chunking strategy applied at ingestion time.
type DocumentType string

const (
	DocumentTypeRulebook     DocumentType = "rulebook"
	DocumentTypeSessionNotes DocumentType = "session_notes"
	DocumentTypeHandout      DocumentType = "handout"
	DocumentTypeLore         DocumentType = "lore"
)

// DocumentChunk is a bounded span of a source document's text, the unit of
// retrieval and citation. Offsets are rune positions into the source
// document, with StartOffset < EndOffset. Chunks are immutable once created.
type DocumentChunk struct {
	Content     string
	ChunkIndex  int
	TokenCount  int
	StartOffset int
	EndOffset   int
	PageNumber  *int
	Section     *string
}

// ChunkingResult is the output of a chunking run.
type ChunkingResult struct {
	Chunks      []DocumentChunk
	TotalTokens int
	Strategy    ChunkingStrategy
}
