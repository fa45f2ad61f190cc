package domain

import "strings"

type docSection struct {
	start   int // rune offset, inclusive
	end     int // rune offset, exclusive
	heading string
}

// chunkSemantic splits the document at markdown headings up to
// MaxHeadingLevel. Sections below SectionMinTokens are merged forward into
// the next section to avoid degenerate micro-chunks; sections above
// SectionMaxTokens are recursively split with the fixed-size window.
func chunkSemantic(content string, opts ChunkingOptions) ([]DocumentChunk, error) {
	runes := []rune(content)
	sections := splitSections(runes, opts.MaxHeadingLevel)
	sections = mergeSmallSections(runes, sections, opts.SectionMinTokens)

	var chunks []DocumentChunk
	for _, sec := range sections {
		var heading *string
		if sec.heading != "" {
			h := sec.heading
			heading = &h
		}
		body := runes[sec.start:sec.end]
		if EstimateTokens(string(body)) > opts.SectionMaxTokens {
			chunks = append(chunks, slideWindow(body, sec.start, opts, heading)...)
			continue
		}
		chunks = append(chunks, makeChunk(runes, sec.start, sec.end, 0, heading))
	}
	return chunks, nil
}

// splitSections walks the document line by line and opens a new section at
// every heading of level <= maxLevel. Text before the first heading forms a
// leading headingless section.
func splitSections(runes []rune, maxLevel int) []docSection {
	var sections []docSection
	lineStart := 0
	secStart := 0
	secHeading := ""
	opened := false

	flush := func(end int) {
		if end > secStart {
			sections = append(sections, docSection{start: secStart, end: end, heading: secHeading})
		}
	}

	for i := 0; i <= len(runes); i++ {
		if i != len(runes) && runes[i] != '\n' {
			continue
		}
		line := string(runes[lineStart:i])
		if level, title := parseHeading(line); level > 0 && level <= maxLevel {
			if opened || lineStart > 0 {
				flush(lineStart)
			}
			secStart = lineStart
			secHeading = title
			opened = true
		}
		lineStart = i + 1
	}
	flush(len(runes))

	if len(sections) == 0 {
		sections = append(sections, docSection{start: 0, end: len(runes)})
	}
	return sections
}

// parseHeading returns the heading level and title, or 0 if the line is not
// an ATX heading.
func parseHeading(line string) (int, string) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level >= len(line) || line[level] != ' ' {
		return 0, ""
	}
	return level, strings.TrimSpace(line[level+1:])
}

// mergeSmallSections folds sections below minTokens forward into their
// successor. A trailing small section has no successor and is kept whole.
func mergeSmallSections(runes []rune, sections []docSection, minTokens int) []docSection {
	var merged []docSection
	i := 0
	for i < len(sections) {
		cur := sections[i]
		for i+1 < len(sections) && EstimateTokens(string(runes[cur.start:cur.end])) < minTokens {
			next := sections[i+1]
			if cur.heading == "" {
				cur.heading = next.heading
			}
			cur.end = next.end
			i++
		}
		merged = append(merged, cur)
		i++
	}
	return merged
}
