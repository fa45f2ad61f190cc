package domain

import (
	"fmt"
	"strings"
)

// ChunkingStrategy selects how a document is split into chunks.
type ChunkingStrategy string

const (
	// ChunkingFixedSize slides a token window with overlap over the text.
	ChunkingFixedSize ChunkingStrategy = "fixed_size"
	// ChunkingSemantic splits at section headings, merging tiny sections
	// forward and recursively splitting oversized ones.
	ChunkingSemantic ChunkingStrategy = "semantic"
	// ChunkingMarkdown is fixed-size but refuses to split inside fenced
	// code blocks or list items.
	ChunkingMarkdown ChunkingStrategy = "markdown"
)

// ChunkingOptions tunes the chunking strategies. Zero values fall back to
// the defaults from DefaultChunkingOptions.
type ChunkingOptions struct {
	TargetTokens   int
	OverlapTokens  int
	MinChunkTokens int

	// Semantic strategy.
	MaxHeadingLevel  int
	SectionMinTokens int
	SectionMaxTokens int

	// Markdown strategy.
	PreserveCodeBlocks bool
	PreserveLists      bool
}

// DefaultChunkingOptions returns the standard chunking parameters.
func DefaultChunkingOptions() ChunkingOptions {
	return ChunkingOptions{
		TargetTokens:       512,
		OverlapTokens:      100,
		MinChunkTokens:     50,
		MaxHeadingLevel:    3,
		SectionMinTokens:   100,
		SectionMaxTokens:   1024,
		PreserveCodeBlocks: true,
		PreserveLists:      true,
	}
}

func (o ChunkingOptions) withDefaults() ChunkingOptions {
	d := DefaultChunkingOptions()
	if o.TargetTokens <= 0 {
		o.TargetTokens = d.TargetTokens
	}
	if o.OverlapTokens < 0 || o.OverlapTokens >= o.TargetTokens {
		o.OverlapTokens = d.OverlapTokens
	}
	if o.MinChunkTokens <= 0 {
		o.MinChunkTokens = d.MinChunkTokens
	}
	if o.MaxHeadingLevel <= 0 {
		o.MaxHeadingLevel = d.MaxHeadingLevel
	}
	if o.SectionMinTokens <= 0 {
		o.SectionMinTokens = d.SectionMinTokens
	}
	if o.SectionMaxTokens <= 0 {
		o.SectionMaxTokens = d.SectionMaxTokens
	}
	return o
}

// ChunkingErrorCode identifies the failure class of a chunking run.
type ChunkingErrorCode string

const (
	ChunkingErrEmptyContent    ChunkingErrorCode = "EMPTY_CONTENT"
	ChunkingErrProcessingError ChunkingErrorCode = "PROCESSING_ERROR"
)

// ChunkingError is returned when a document cannot be chunked. Content is
// never silently dropped; a failure is always surfaced.
type ChunkingError struct {
	Code    ChunkingErrorCode
	Message string
}

func (e *ChunkingError) Error() string {
	return fmt.Sprintf("chunking failed (%s): %s", e.Code, e.Message)
}

// Chunker splits raw extracted document text into token-bounded,
// citation-addressable chunks. Implementations are pure: identical input
// and options always produce identical output.
type Chunker interface {
	Chunk(content string, strategy ChunkingStrategy, opts ChunkingOptions) (*ChunkingResult, error)
}

// StrategyForDocumentType maps a document type to its chunking strategy.
// Rulebooks and lore books are heading-structured; session notes and
// handouts tend to be hand-written markdown.
func StrategyForDocumentType(dt DocumentType) ChunkingStrategy {
	switch dt {
	case DocumentTypeRulebook, DocumentTypeLore:
		return ChunkingSemantic
	case DocumentTypeSessionNotes, DocumentTypeHandout:
		return ChunkingMarkdown
	default:
		return ChunkingFixedSize
	}
}

type chunker struct{}

// NewChunker creates the default Chunker.
func NewChunker() Chunker {
	return &chunker{}
}

func (c *chunker) Chunk(content string, strategy ChunkingStrategy, opts ChunkingOptions) (*ChunkingResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &ChunkingError{Code: ChunkingErrEmptyContent, Message: "document content is empty"}
	}
	opts = opts.withDefaults()

	var (
		chunks []DocumentChunk
		err    error
	)
	switch strategy {
	case ChunkingSemantic:
		chunks, err = chunkSemantic(content, opts)
	case ChunkingMarkdown:
		chunks, err = chunkMarkdown(content, opts)
	case ChunkingFixedSize, "":
		chunks, err = chunkFixedSize(content, opts)
	default:
		return nil, &ChunkingError{Code: ChunkingErrProcessingError, Message: fmt.Sprintf("unknown strategy %q", strategy)}
	}
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, &ChunkingError{Code: ChunkingErrProcessingError, Message: "content produced no chunks"}
	}

	total := 0
	for i := range chunks {
		chunks[i].ChunkIndex = i
		total += chunks[i].TokenCount
	}
	return &ChunkingResult{Chunks: chunks, TotalTokens: total, Strategy: strategy}, nil
}
