package domain

import "unicode"

// chunkFixedSize slides a window of TargetTokens over the text with
// OverlapTokens of overlap between consecutive chunks. Window ends are
// nudged back to the nearest whitespace so words are not cut in half, but
// never by more than boundaryTolerance of the window. A trailing fragment
// below MinChunkTokens is merged into the previous chunk instead of being
// emitted alone.
func chunkFixedSize(content string, opts ChunkingOptions) ([]DocumentChunk, error) {
	runes := []rune(content)
	return slideWindow(runes, 0, opts, nil), nil
}

// boundaryTolerance is the fraction of the window the end may retreat while
// looking for a whitespace break.
const boundaryTolerance = 0.15

func slideWindow(runes []rune, baseOffset int, opts ChunkingOptions, section *string) []DocumentChunk {
	window := TokensToChars(opts.TargetTokens)
	overlap := TokensToChars(opts.OverlapTokens)

	var chunks []DocumentChunk
	start := 0
	for start < len(runes) {
		end := start + window
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = retreatToWhitespace(runes, start, end)
		}

		chunks = append(chunks, makeChunk(runes, start, end, baseOffset, section))

		if end >= len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return mergeTrailingFragment(runes, chunks, baseOffset, opts)
}

// retreatToWhitespace moves the proposed window end back to the nearest
// whitespace rune, bounded so the window never shrinks below the tolerance.
func retreatToWhitespace(runes []rune, start, end int) int {
	limit := end - int(float64(end-start)*boundaryTolerance)
	for i := end; i > limit; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

func makeChunk(runes []rune, start, end, baseOffset int, section *string) DocumentChunk {
	content := string(runes[start:end])
	return DocumentChunk{
		Content:     content,
		TokenCount:  EstimateTokens(content),
		StartOffset: baseOffset + start,
		EndOffset:   baseOffset + end,
		Section:     section,
	}
}

// mergeTrailingFragment folds a too-small final chunk into its predecessor.
// A lone undersized chunk is kept as-is: content is never dropped.
func mergeTrailingFragment(runes []rune, chunks []DocumentChunk, baseOffset int, opts ChunkingOptions) []DocumentChunk {
	if len(chunks) < 2 {
		return chunks
	}
	last := chunks[len(chunks)-1]
	if last.TokenCount >= opts.MinChunkTokens {
		return chunks
	}
	prev := chunks[len(chunks)-2]
	merged := makeChunk(runes, prev.StartOffset-baseOffset, last.EndOffset-baseOffset, baseOffset, prev.Section)
	chunks = chunks[:len(chunks)-2]
	return append(chunks, merged)
}
