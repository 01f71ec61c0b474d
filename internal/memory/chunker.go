package memory

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Chunker splits long content into overlapping, sentence-aware pieces before
// it is handed to StoreMemory, so a single oversized write becomes several
// retrievable records instead of one record too large for a useful
// relevance match. Adapted from the teacher's original text-chunking
// utility, generalized from its document-ingestion role to memory writes.
type Chunker struct {
	maxChunkSize    int
	overlapSize     int
	sentencePattern *regexp.Regexp
}

// Chunk is one piece of chunked content plus its position in the source.
type Chunk struct {
	Text  string
	Index int
	Start int
	End   int
}

// NewChunker builds a Chunker. maxChunkSize and overlapSize are measured in
// runes.
func NewChunker(maxChunkSize, overlapSize int) *Chunker {
	if maxChunkSize <= 0 {
		maxChunkSize = 2000
	}
	if overlapSize < 0 || overlapSize >= maxChunkSize {
		overlapSize = maxChunkSize / 10
	}
	return &Chunker{
		maxChunkSize:    maxChunkSize,
		overlapSize:     overlapSize,
		sentencePattern: regexp.MustCompile(`[.!?]+\s+`),
	}
}

// Split returns content as-is in a single chunk when it already fits;
// otherwise it breaks on sentence boundaries, packing sentences into chunks
// up to maxChunkSize runes and carrying the trailing sentences of one chunk
// into the next as overlap.
func (c *Chunker) Split(content string) []Chunk {
	if content == "" {
		return nil
	}
	if utf8.RuneCountInString(content) <= c.maxChunkSize {
		return []Chunk{{Text: content, Index: 0, Start: 0, End: utf8.RuneCountInString(content)}}
	}

	sentences := c.splitSentences(content)
	var chunks []Chunk
	var current strings.Builder
	currentSize := 0
	start := 0

	flush := func(end int) {
		if currentSize == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Text:  strings.TrimSpace(current.String()),
			Index: len(chunks),
			Start: start,
			End:   end,
		})
		current.Reset()
		currentSize = 0
	}

	pos := 0
	for _, s := range sentences {
		size := utf8.RuneCountInString(s)
		if currentSize > 0 && currentSize+size > c.maxChunkSize {
			flush(pos)
			start = pos
		}
		if currentSize == 0 {
			start = pos
		}
		current.WriteString(s)
		currentSize += size
		pos += size
	}
	flush(pos)

	return c.withOverlap(chunks)
}

// withOverlap prepends the tail of each chunk's predecessor, up to
// overlapSize runes, so retrieval near a chunk boundary still sees context
// from the chunk before it.
func (c *Chunker) withOverlap(chunks []Chunk) []Chunk {
	if c.overlapSize == 0 || len(chunks) < 2 {
		return chunks
	}
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Text)
		if len(prev) == 0 {
			continue
		}
		tailLen := c.overlapSize
		if tailLen > len(prev) {
			tailLen = len(prev)
		}
		tail := string(prev[len(prev)-tailLen:])
		chunks[i].Text = strings.TrimSpace(tail + " " + chunks[i].Text)
	}
	return chunks
}

func (c *Chunker) splitSentences(text string) []string {
	matches := c.sentencePattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}
	var sentences []string
	start := 0
	for _, m := range matches {
		sentences = append(sentences, text[start:m[1]])
		start = m[1]
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}
