package indexer

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Chunker splits normalized document text into chunks under a character
// ceiling, preferring paragraph and then sentence boundaries.
type Chunker struct {
	MaxChars int
}

// sentenceEnders mark acceptable split points inside an oversized paragraph.
var sentenceEnders = []string{". ", ".\n", "; ", ";\n"}

// Normalize applies NFKC normalization and collapses runs of blank lines.
// Scraped statute text tends to carry odd unicode forms and spacing.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	var b strings.Builder
	blank := 0
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.TrimSpace(trimmed) == "" {
			blank++
			if blank > 1 {
				continue
			}
			b.WriteString("\n")
			continue
		}
		blank = 0
		b.WriteString(trimmed)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// Split breaks text into chunks no longer than MaxChars. Paragraphs are kept
// together when they fit; oversized paragraphs fall back to sentence splits
// and, as a last resort, a hard cut at the ceiling.
func (c Chunker) Split(text string) []string {
	max := c.MaxChars
	if max <= 0 {
		max = 2000
	}
	text = Normalize(text)
	if text == "" {
		return nil
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for _, piece := range splitOversized(para, max) {
			if current.Len() > 0 && current.Len()+len(piece)+2 > max {
				flush()
			}
			if current.Len() > 0 {
				current.WriteString("\n\n")
			}
			current.WriteString(piece)
		}
	}
	flush()
	return chunks
}

// splitOversized returns para unchanged when it fits, otherwise splits it at
// sentence boundaries under the ceiling, hard-cutting only sentences that
// are themselves too long.
func splitOversized(para string, max int) []string {
	if len(para) <= max {
		return []string{para}
	}

	var pieces []string
	rest := para
	for len(rest) > max {
		cut := -1
		for _, ender := range sentenceEnders {
			if i := strings.LastIndex(rest[:max], ender); i > cut {
				cut = i + len(ender) - 1
			}
		}
		if cut <= 0 {
			cut = max
			for cut > 0 && !utf8.RuneStart(rest[cut]) {
				cut--
			}
		}
		pieces = append(pieces, strings.TrimSpace(rest[:cut]))
		rest = strings.TrimSpace(rest[cut:])
	}
	if rest != "" {
		pieces = append(pieces, rest)
	}
	return pieces
}
