package usecase

import (
	"fmt"
	"strings"

	"lorekeeper/internal/domain"
)

// ContextBuilderOptions tunes context assembly.
type ContextBuilderOptions struct {
	// MaxTokens is the hard context budget.
	MaxTokens int
	// MinRelevanceScore drops candidates below it before budgeting.
	MinRelevanceScore float64
}

// BuildContext assembles a token-budgeted prompt context from the
// candidates in their current order (post-rerank if applied). Candidates
// below MinRelevanceScore are skipped; the rest are admitted until one
// would overflow the budget, which is then excluded, unless the context
// is still empty, in which case that single chunk is admitted whole and
// the context is flagged over-budget. A query always receives at least one
// chunk of context if any candidate survives filtering; chunks are never
// truncated mid-chunk.
//
// Citation indices are assigned sequentially from 1 in admission order, so
// numbering is stable and independent of the original retrieval rank.
func BuildContext(candidates []domain.SearchCandidate, opts ContextBuilderOptions) BuiltContext {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 3000
	}

	var (
		sb      strings.Builder
		sources []SourceCitation
		total   int
		over    bool
	)

	for _, cand := range candidates {
		if cand.Score < opts.MinRelevanceScore {
			continue
		}

		block := renderChunkBlock(len(sources)+1, cand)
		tokens := domain.EstimateTokens(block)

		if total+tokens > opts.MaxTokens {
			if len(sources) > 0 {
				continue
			}
			// Sole surviving chunk exceeds the budget on its own: include
			// it whole rather than truncate or return nothing.
			over = true
		}

		sb.WriteString(block)
		total += tokens
		sources = append(sources, SourceCitation{
			Index:          len(sources) + 1,
			DocumentID:     cand.Chunk.DocumentID,
			DocumentName:   cand.Chunk.DocumentName,
			DocumentType:   cand.Chunk.DocumentType,
			PageNumber:     cand.Chunk.PageNumber,
			Section:        cand.Chunk.Section,
			RelevanceScore: cand.Score,
		})
	}

	return BuiltContext{
		ContextText:     sb.String(),
		Sources:         sources,
		ChunksUsed:      len(sources),
		EstimatedTokens: total,
		OverBudget:      over,
	}
}

func renderChunkBlock(index int, cand domain.SearchCandidate) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d] %s", index, cand.Chunk.DocumentName)
	if cand.Chunk.Section != nil && *cand.Chunk.Section != "" {
		fmt.Fprintf(&sb, " / %s", *cand.Chunk.Section)
	}
	if cand.Chunk.PageNumber != nil {
		fmt.Fprintf(&sb, " (p. %d)", *cand.Chunk.PageNumber)
	}
	sb.WriteString("\n")
	sb.WriteString(cand.Chunk.Content)
	sb.WriteString("\n\n")
	return sb.String()
}
