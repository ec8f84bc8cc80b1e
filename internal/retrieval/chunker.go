// ABOUTME: Chunker splits documents into size-capped chunks for embedding
// ABOUTME: Implements document → paragraph → sentence fallback splitting
package retrieval

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/harper/twin/internal/models"
)

// DefaultChunkSize is the maximum chunk length in characters
const DefaultChunkSize = 500

// chunkNamespace seeds deterministic chunk IDs so re-ingesting a file replaces its chunks
var chunkNamespace = uuid.MustParse("6f1c2a0e-3d4b-4c6e-9a7f-2b8d5e1f0c93")

// Chunker handles hierarchical text chunking
type Chunker struct {
	maxChars int
}

// NewChunker creates a chunker; non-positive sizes use DefaultChunkSize
func NewChunker(maxChars int) *Chunker {
	if maxChars <= 0 {
		maxChars = DefaultChunkSize
	}
	return &Chunker{maxChars: maxChars}
}

// Chunk splits text into chunks tagged with domain and source.
// Text that fits in one chunk stays whole; otherwise paragraphs are kept
// whole when they fit and split into packed sentences when they do not.
func (c *Chunker) Chunk(text string, domain models.Domain, source string) ([]models.Chunk, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("cannot chunk empty text")
	}

	if len(text) <= c.maxChars {
		return []models.Chunk{c.newChunk(models.ChunkTypeDocument, domain, source, text, 0)}, nil
	}

	var chunks []models.Chunk
	for _, para := range splitParagraphs(text) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len(para) <= c.maxChars {
			chunks = append(chunks, c.newChunk(models.ChunkTypeParagraph, domain, source, para, len(chunks)))
			continue
		}

		for _, piece := range c.pack(splitSentences(para)) {
			chunks = append(chunks, c.newChunk(models.ChunkTypeSentence, domain, source, piece, len(chunks)))
		}
	}

	return chunks, nil
}

// pack joins consecutive sentences while they fit and hard-splits oversized ones
func (c *Chunker) pack(sentences []string) []string {
	var (
		out     []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
		}
	}

	for _, sent := range sentences {
		if len(sent) > c.maxChars {
			flush()
			out = append(out, splitWords(sent, c.maxChars)...)
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(sent) > c.maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sent)
	}
	flush()

	return out
}

func (c *Chunker) newChunk(kind models.ChunkType, domain models.Domain, source, content string, position int) models.Chunk {
	key := fmt.Sprintf("%s|%s|%d|%s", domain, source, position, content)
	return models.Chunk{
		ChunkID:   "chunk_" + uuid.NewSHA1(chunkNamespace, []byte(key)).String(),
		ChunkType: kind,
		Domain:    domain,
		Source:    source,
		Content:   content,
		Position:  position,
	}
}

// splitParagraphs splits text by blank lines
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n\n")
}

// splitSentences splits text by ". " (period + space)
func splitSentences(text string) []string {
	sentences := strings.Split(text, ". ")

	var result []string
	for i, sent := range sentences {
		sent = strings.TrimSpace(sent)
		if sent == "" {
			continue
		}

		// Add back the period (except for the last sentence which might already have it)
		if i < len(sentences)-1 && !strings.HasSuffix(sent, ".") {
			sent = sent + "."
		}

		result = append(result, sent)
	}

	return result
}

// splitWords breaks text at word boundaries into pieces of at most limit bytes.
// A single word longer than limit is cut at a rune boundary.
func splitWords(text string, limit int) []string {
	var (
		out     []string
		current string
	)
	for _, word := range strings.Fields(text) {
		for len(word) > limit {
			if current != "" {
				out = append(out, current)
				current = ""
			}
			cut := limit
			for cut > 0 && !utf8.RuneStart(word[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
			out = append(out, word[:cut])
			word = word[cut:]
		}
		switch {
		case current == "":
			current = word
		case len(current)+1+len(word) <= limit:
			current += " " + word
		default:
			out = append(out, current)
			current = word
		}
	}
	if current != "" {
		out = append(out, current)
	}
	return out
}
