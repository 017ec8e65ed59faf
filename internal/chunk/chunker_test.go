package chunk

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holocron/internal/model"
)

func TestChunkAlwaysProducesAtLeastOneChunk(t *testing.T) {
	article := model.NormalizedArticle{
		ArticleID: "empty-1",
		Title:     "Sullust",
		PlainText: "",
	}
	chunks := Chunk(article, Config{MaxChunkTokens: 1000})
	require.NotEmpty(t, chunks)
	assert.Contains(t, chunks[0].Text, "Sullust")
}

func TestChunkIntroFallbackWhenNoIntroText(t *testing.T) {
	article := model.NormalizedArticle{
		ArticleID: "a-2",
		Title:     "Kashyyyk",
		PlainText: "# History\n\nWookiees have lived here for millennia.",
	}
	chunks := Chunk(article, Config{MaxChunkTokens: 1000})
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "Introduction", chunks[0].Metadata.Section)
	assert.Contains(t, chunks[0].Text, "Kashyyyk")
}

func TestChunkRespectsTokenBudget(t *testing.T) {
	bigSection := "# Biology\n\n" + strings.Repeat(strings.Repeat("word ", 100)+"\n\n", 50)
	article := model.NormalizedArticle{
		ArticleID: "a-3",
		Title:     "Wookiee",
		PlainText: "Wookiees are tall and hairy.\n\n" + bigSection,
	}
	chunks := Chunk(article, Config{MaxChunkTokens: 1000})
	require.Greater(t, len(chunks), 2)
	for _, c := range chunks {
		if !c.Metadata.Oversize {
			assert.LessOrEqual(t, c.TokenCount, 1000)
		}
	}
}

func TestChunkStableIDsMatchOrdinalFormat(t *testing.T) {
	article := model.NormalizedArticle{
		ArticleID: "art-42",
		Title:     "Bantha",
		PlainText: "Intro text.\n\n# Habitat\n\nDesert dwellers.",
	}
	chunks := Chunk(article, Config{MaxChunkTokens: 1000})
	for i, c := range chunks {
		assert.Equal(t, "art-42_"+strconv.Itoa(i), c.ID)
	}
}

func TestChunkScenarioS2ThreeSectionArticle(t *testing.T) {
	// Section token counts: ~100, ~2500, ~50 against a 1000 budget.
	// Expect: intro, section1 (whole), section2 split into multiple
	// parts, section3 (whole).
	section1 := "# Overview\n\n" + strings.Repeat("word ", 100)
	section2 := "# History\n\n" + strings.Repeat(strings.Repeat("word ", 100)+"\n\n", 25)
	section3 := "# Legacy\n\n" + strings.Repeat("word ", 50)
	article := model.NormalizedArticle{
		ArticleID: "s2",
		Title:     "Article A",
		PlainText: "A short introduction.\n\n" + section1 + "\n\n" + section2 + "\n\n" + section3,
	}

	chunks := Chunk(article, Config{MaxChunkTokens: 1000})

	require.GreaterOrEqual(t, len(chunks), 6)
	assert.Equal(t, "Introduction", chunks[0].Metadata.Section)
	assert.Equal(t, "Overview", chunks[1].Metadata.Section)

	var historyChunks int
	var legacyFound bool
	for _, c := range chunks {
		if c.Metadata.Section == "History" {
			historyChunks++
			assert.LessOrEqual(t, c.TokenCount, 1000)
		}
		if c.Metadata.Section == "Legacy" {
			legacyFound = true
		}
	}
	assert.GreaterOrEqual(t, historyChunks, 2)
	assert.True(t, legacyFound)

	// Chunk order must follow source order: Overview before History, History before Legacy.
	var overviewIdx, firstHistoryIdx, legacyIdx int = -1, -1, -1
	for i, c := range chunks {
		switch {
		case c.Metadata.Section == "Overview" && overviewIdx == -1:
			overviewIdx = i
		case c.Metadata.Section == "History" && firstHistoryIdx == -1:
			firstHistoryIdx = i
		case c.Metadata.Section == "Legacy" && legacyIdx == -1:
			legacyIdx = i
		}
	}
	assert.Less(t, overviewIdx, firstHistoryIdx)
	assert.Less(t, firstHistoryIdx, legacyIdx)
}
