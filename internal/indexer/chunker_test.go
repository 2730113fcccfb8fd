package indexer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_CollapsesBlankRuns(t *testing.T) {
	in := "Section 1\r\n\r\n\r\n\r\nSection 2  \n"
	assert.Equal(t, "Section 1\n\nSection 2", Normalize(in))
}

func TestNormalize_NFKC(t *testing.T) {
	// Fullwidth digits normalize to ASCII.
	assert.Equal(t, "Section 12", Normalize("Section １２"))
}

func TestSplit_KeepsShortTextWhole(t *testing.T) {
	chunks := Chunker{MaxChars: 100}.Split("A tree permit is required.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "A tree permit is required.", chunks[0])
}

func TestSplit_EmptyText(t *testing.T) {
	assert.Nil(t, Chunker{MaxChars: 100}.Split("   \n\n  "))
}

func TestSplit_PrefersParagraphBoundaries(t *testing.T) {
	para1 := strings.Repeat("a", 60)
	para2 := strings.Repeat("b", 60)
	chunks := Chunker{MaxChars: 100}.Split(para1 + "\n\n" + para2)
	require.Len(t, chunks, 2)
	assert.Equal(t, para1, chunks[0])
	assert.Equal(t, para2, chunks[1])
}

func TestSplit_PacksParagraphsUnderCeiling(t *testing.T) {
	chunks := Chunker{MaxChars: 100}.Split("first.\n\nsecond.\n\nthird.")
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0], "first.")
	assert.Contains(t, chunks[0], "third.")
}

func TestSplit_OversizedParagraphSplitsAtSentences(t *testing.T) {
	sentence := strings.Repeat("x", 40) + ". "
	text := strings.TrimSpace(strings.Repeat(sentence, 5))
	chunks := Chunker{MaxChars: 100}.Split(text)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 100)
	}
}

func TestSplit_HardCutWithoutSentenceBoundary(t *testing.T) {
	text := strings.Repeat("y", 250)
	chunks := Chunker{MaxChars: 100}.Split(text)

	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 100)
	}
}

func TestSplit_NeverExceedsCeiling(t *testing.T) {
	text := "Intro paragraph.\n\n" + strings.Repeat("Some clause of the ordinance; ", 50) + "\n\nOutro."
	for _, c := range (Chunker{MaxChars: 200}).Split(text) {
		assert.LessOrEqual(t, len(c), 200)
	}
}
