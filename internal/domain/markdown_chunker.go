package domain

import "strings"

// protectedRange marks a rune span the window boundary may not fall inside.
type protectedRange struct {
	start, end int
}

// chunkMarkdown behaves like the fixed-size strategy but keeps fenced code
// blocks and list items intact: a window boundary landing inside one is
// pushed outward to the end of the construct.
func chunkMarkdown(content string, opts ChunkingOptions) ([]DocumentChunk, error) {
	runes := []rune(content)
	protected := protectedRanges(runes, opts)

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
			end = pushOutside(protected, end)
			if end > len(runes) {
				end = len(runes)
			}
		}

		chunks = append(chunks, makeChunk(runes, start, end, 0, nil))

		if end >= len(runes) {
			break
		}
		next := end - overlap
		if r := rangeContaining(protected, next); r != nil && r.end <= end {
			next = r.end
		}
		if next <= start {
			next = start + 1
		}
		if next >= end {
			next = end
		}
		start = next
	}

	return mergeTrailingFragment(runes, chunks, 0, opts), nil
}

// pushOutside moves a boundary that falls inside a protected range forward
// to the range end.
func pushOutside(ranges []protectedRange, pos int) int {
	if r := rangeContaining(ranges, pos); r != nil {
		return r.end
	}
	return pos
}

func rangeContaining(ranges []protectedRange, pos int) *protectedRange {
	for i := range ranges {
		if pos > ranges[i].start && pos < ranges[i].end {
			return &ranges[i]
		}
	}
	return nil
}

// protectedRanges scans the document for fenced code blocks and list items.
func protectedRanges(runes []rune, opts ChunkingOptions) []protectedRange {
	var ranges []protectedRange

	lineStart := 0
	inFence := false
	fenceStart := 0
	itemStart := -1

	closeItem := func(end int) {
		if itemStart >= 0 && opts.PreserveLists {
			ranges = append(ranges, protectedRange{start: itemStart, end: end})
		}
		itemStart = -1
	}

	for i := 0; i <= len(runes); i++ {
		if i != len(runes) && runes[i] != '\n' {
			continue
		}
		line := string(runes[lineStart:i])
		lineEnd := i
		if i != len(runes) {
			lineEnd = i + 1 // include the newline
		}

		switch {
		case isFenceLine(line):
			closeItem(lineStart)
			if inFence {
				if opts.PreserveCodeBlocks {
					ranges = append(ranges, protectedRange{start: fenceStart, end: lineEnd})
				}
				inFence = false
			} else {
				inFence = true
				fenceStart = lineStart
			}
		case inFence:
			// swallowed by the fence
		case isListItemLine(line):
			closeItem(lineStart)
			itemStart = lineStart
		case itemStart >= 0 && isContinuationLine(line):
			// still inside the current list item
		default:
			closeItem(lineStart)
		}

		lineStart = i + 1
	}
	closeItem(len(runes))
	if inFence && opts.PreserveCodeBlocks {
		// unterminated fence runs to end of document
		ranges = append(ranges, protectedRange{start: fenceStart, end: len(runes)})
	}
	return ranges
}

func isFenceLine(line string) bool {
	trimmed := strings.TrimLeft(line, " ")
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

func isListItemLine(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") || strings.HasPrefix(trimmed, "+ ") {
		return true
	}
	i := 0
	for i < len(trimmed) && trimmed[i] >= '0' && trimmed[i] <= '9' {
		i++
	}
	return i > 0 && i < len(trimmed)-1 && (trimmed[i] == '.' || trimmed[i] == ')') && trimmed[i+1] == ' '
}

func isContinuationLine(line string) bool {
	return strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "\t")
}
