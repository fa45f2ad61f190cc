package domain_test

import (
	"strings"
	"testing"

	"lorekeeper/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() domain.ChunkingOptions {
	return domain.ChunkingOptions{
		TargetTokens:       100,
		OverlapTokens:      20,
		MinChunkTokens:     10,
		MaxHeadingLevel:    3,
		SectionMinTokens:   50,
		SectionMaxTokens:   200,
		PreserveCodeBlocks: true,
		PreserveLists:      true,
	}
}

func prose(words int) string {
	return strings.TrimSpace(strings.Repeat("lorem ipsum dolor sit amet ", (words+4)/5))
}

func TestChunk_EmptyContent(t *testing.T) {
	c := domain.NewChunker()

	for _, content := range []string{"", "   ", "\n\t\n"} {
		_, err := c.Chunk(content, domain.ChunkingFixedSize, testOptions())
		require.Error(t, err)

		var chunkErr *domain.ChunkingError
		require.ErrorAs(t, err, &chunkErr)
		assert.Equal(t, domain.ChunkingErrEmptyContent, chunkErr.Code)
	}
}

func TestChunk_UnknownStrategy(t *testing.T) {
	c := domain.NewChunker()

	_, err := c.Chunk("some content", domain.ChunkingStrategy("bogus"), testOptions())
	require.Error(t, err)

	var chunkErr *domain.ChunkingError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, domain.ChunkingErrProcessingError, chunkErr.Code)
}

// Every chunk's content must equal the slice of the original document named
// by its offsets, for every strategy.
func TestChunk_OffsetIntegrity(t *testing.T) {
	c := domain.NewChunker()
	content := "# Rules of Combat\n\n" + prose(300) + "\n\n## Initiative\n\n" + prose(200) +
		"\n\n- roll a d20\n- add your modifier\n\n" + prose(150)
	runes := []rune(content)

	for _, strategy := range []domain.ChunkingStrategy{
		domain.ChunkingFixedSize,
		domain.ChunkingSemantic,
		domain.ChunkingMarkdown,
	} {
		result, err := c.Chunk(content, strategy, testOptions())
		require.NoError(t, err, "strategy %s", strategy)
		require.NotEmpty(t, result.Chunks)

		for _, chunk := range result.Chunks {
			require.LessOrEqual(t, chunk.EndOffset, len(runes))
			require.Less(t, chunk.StartOffset, chunk.EndOffset)
			assert.Equal(t, string(runes[chunk.StartOffset:chunk.EndOffset]), chunk.Content,
				"strategy %s chunk %d", strategy, chunk.ChunkIndex)
		}
	}
}

func TestChunk_FixedSize_WindowAndOverlap(t *testing.T) {
	c := domain.NewChunker()
	opts := testOptions()
	content := prose(1000)

	result, err := c.Chunk(content, domain.ChunkingFixedSize, opts)
	require.NoError(t, err)
	require.Greater(t, len(result.Chunks), 2)

	assert.Equal(t, domain.ChunkingFixedSize, result.Strategy)

	for i, chunk := range result.Chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		if i > 0 {
			prev := result.Chunks[i-1]
			// consecutive chunks share text
			assert.Less(t, chunk.StartOffset, prev.EndOffset)
			assert.Greater(t, chunk.EndOffset, prev.EndOffset)
		}
	}

	total := 0
	for _, chunk := range result.Chunks {
		total += chunk.TokenCount
	}
	assert.Equal(t, total, result.TotalTokens)
}

func TestChunk_FixedSize_BreaksAtWhitespace(t *testing.T) {
	c := domain.NewChunker()
	content := prose(1000)
	runes := []rune(content)

	result, err := c.Chunk(content, domain.ChunkingFixedSize, testOptions())
	require.NoError(t, err)

	for _, chunk := range result.Chunks {
		if chunk.EndOffset == len(runes) {
			continue
		}
		last := runes[chunk.EndOffset-1]
		assert.Equal(t, ' ', last, "chunk %d should end on whitespace", chunk.ChunkIndex)
	}
}

func TestChunk_FixedSize_MergesTrailingFragment(t *testing.T) {
	c := domain.NewChunker()
	opts := testOptions()

	// One full window plus a tiny tail.
	content := prose(100) + " tail"
	result, err := c.Chunk(content, domain.ChunkingFixedSize, opts)
	require.NoError(t, err)

	last := result.Chunks[len(result.Chunks)-1]
	assert.GreaterOrEqual(t, last.TokenCount, opts.MinChunkTokens)
	assert.True(t, strings.HasSuffix(last.Content, "tail"))
}

func TestChunk_FixedSize_LoneUndersizedChunkKept(t *testing.T) {
	c := domain.NewChunker()

	result, err := c.Chunk("tiny", domain.ChunkingFixedSize, testOptions())
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "tiny", result.Chunks[0].Content)
}

func TestChunk_Semantic_SplitsAtHeadings(t *testing.T) {
	c := domain.NewChunker()
	content := "# Factions\n\n" + prose(100) + "\n\n# Geography\n\n" + prose(100)

	result, err := c.Chunk(content, domain.ChunkingSemantic, testOptions())
	require.NoError(t, err)
	require.Len(t, result.Chunks, 2)

	require.NotNil(t, result.Chunks[0].Section)
	require.NotNil(t, result.Chunks[1].Section)
	assert.Equal(t, "Factions", *result.Chunks[0].Section)
	assert.Equal(t, "Geography", *result.Chunks[1].Section)
}

func TestChunk_Semantic_LeadingTextWithoutHeading(t *testing.T) {
	c := domain.NewChunker()
	content := prose(100) + "\n\n# Later\n\n" + prose(100)

	result, err := c.Chunk(content, domain.ChunkingSemantic, testOptions())
	require.NoError(t, err)
	require.Len(t, result.Chunks, 2)

	assert.Nil(t, result.Chunks[0].Section)
	assert.Equal(t, 0, result.Chunks[0].StartOffset)
}

func TestChunk_Semantic_MergesSmallSectionForward(t *testing.T) {
	c := domain.NewChunker()
	// First section is far below SectionMinTokens (50).
	content := "# Tiny\n\nshort\n\n# Big\n\n" + prose(120)

	result, err := c.Chunk(content, domain.ChunkingSemantic, testOptions())
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)

	assert.Contains(t, result.Chunks[0].Content, "short")
	assert.Contains(t, result.Chunks[0].Content, "# Big")
}

func TestChunk_Semantic_SplitsOversizedSection(t *testing.T) {
	c := domain.NewChunker()
	opts := testOptions()
	// Section well above SectionMaxTokens (200 tokens = 800 chars).
	content := "# Epic History\n\n" + prose(500)

	result, err := c.Chunk(content, domain.ChunkingSemantic, opts)
	require.NoError(t, err)
	require.Greater(t, len(result.Chunks), 1)

	for _, chunk := range result.Chunks {
		require.NotNil(t, chunk.Section)
		assert.Equal(t, "Epic History", *chunk.Section)
	}
}

func TestChunk_Semantic_IgnoresDeepHeadings(t *testing.T) {
	c := domain.NewChunker()
	content := "# Top\n\n" + prose(60) + "\n\n#### Too Deep\n\n" + prose(60)

	result, err := c.Chunk(content, domain.ChunkingSemantic, testOptions())
	require.NoError(t, err)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "Top", *result.Chunks[0].Section)
}

func TestChunk_Markdown_KeepsCodeBlockIntact(t *testing.T) {
	c := domain.NewChunker()
	opts := testOptions()

	fence := "```\n" + strings.Repeat("stat_block line\n", 20) + "```"
	content := prose(90) + "\n\n" + fence + "\n\n" + prose(200)

	fenceStart := len([]rune(content[:strings.Index(content, "```")]))
	fenceEnd := fenceStart + len([]rune(fence))

	result, err := c.Chunk(content, domain.ChunkingMarkdown, opts)
	require.NoError(t, err)
	require.Greater(t, len(result.Chunks), 1)

	// No chunk boundary may land strictly inside the fence.
	for _, chunk := range result.Chunks {
		if chunk.EndOffset > fenceStart && chunk.EndOffset < fenceEnd {
			t.Fatalf("chunk %d ends inside code block at %d", chunk.ChunkIndex, chunk.EndOffset)
		}
	}
}

func TestChunk_Markdown_KeepsListItemIntact(t *testing.T) {
	c := domain.NewChunker()
	opts := testOptions()

	item := "- a very important treasure that the party found in the dungeon depths\n" +
		"  with a continuation line describing its glow\n"
	content := prose(95) + "\n" + item + prose(200)
	itemStart := len([]rune(prose(95))) + 1
	itemEnd := itemStart + len([]rune(item))

	result, err := c.Chunk(content, domain.ChunkingMarkdown, opts)
	require.NoError(t, err)

	for _, chunk := range result.Chunks {
		if chunk.EndOffset > itemStart && chunk.EndOffset < itemEnd {
			t.Fatalf("chunk %d ends inside list item at %d", chunk.ChunkIndex, chunk.EndOffset)
		}
	}
}

func TestChunk_Markdown_UnterminatedFenceRunsToEnd(t *testing.T) {
	c := domain.NewChunker()
	content := prose(95) + "\n\n```\n" + strings.Repeat("unclosed code\n", 30)

	result, err := c.Chunk(content, domain.ChunkingMarkdown, testOptions())
	require.NoError(t, err)

	last := result.Chunks[len(result.Chunks)-1]
	assert.True(t, strings.HasSuffix(strings.TrimSpace(last.Content), "unclosed code"))
}

func TestStrategyForDocumentType(t *testing.T) {
	assert.Equal(t, domain.ChunkingSemantic, domain.StrategyForDocumentType(domain.DocumentTypeRulebook))
	assert.Equal(t, domain.ChunkingSemantic, domain.StrategyForDocumentType(domain.DocumentTypeLore))
	assert.Equal(t, domain.ChunkingMarkdown, domain.StrategyForDocumentType(domain.DocumentTypeSessionNotes))
	assert.Equal(t, domain.ChunkingMarkdown, domain.StrategyForDocumentType(domain.DocumentTypeHandout))
	assert.Equal(t, domain.ChunkingFixedSize, domain.StrategyForDocumentType(domain.DocumentType("unknown")))
}
