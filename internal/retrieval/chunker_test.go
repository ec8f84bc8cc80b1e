// ABOUTME: Tests for Chunker size-capped document chunking
// ABOUTME: Verifies document, paragraph and sentence level splitting

package retrieval

import (
	"strings"
	"testing"

	"github.com/harper/twin/internal/models"
)

func TestChunk_EmptyText(t *testing.T) {
	c := NewChunker(100)

	tests := []struct {
		name string
		text string
	}{
		{"empty string", ""},
		{"whitespace only", "   "},
		{"tabs and newlines", "\t\n\r"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := c.Chunk(tt.text, models.DomainShared, "src")
			if err == nil {
				t.Error("Expected error for empty text")
			}
			if chunks != nil {
				t.Errorf("Expected nil chunks, got %d", len(chunks))
			}
		})
	}
}

func TestChunk_ShortTextStaysWhole(t *testing.T) {
	c := NewChunker(100)

	chunks, err := c.Chunk("  I prefer Go for services.  ", models.Domain(models.LabelKnowledge), "prefs.md")
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("Chunk() returned %d chunks, want 1", len(chunks))
	}

	got := chunks[0]
	if got.ChunkType != models.ChunkTypeDocument {
		t.Errorf("ChunkType = %s, want DOCUMENT", got.ChunkType)
	}
	if got.Content != "I prefer Go for services." {
		t.Errorf("Content = %q, want trimmed text", got.Content)
	}
	if got.Domain != models.Domain(models.LabelKnowledge) || got.Source != "prefs.md" {
		t.Errorf("metadata = %s/%s, want knowledge/prefs.md", got.Domain, got.Source)
	}
	if !strings.HasPrefix(got.ChunkID, "chunk_") {
		t.Errorf("ChunkID = %s, want chunk_ prefix", got.ChunkID)
	}
}

func TestChunk_Paragraphs(t *testing.T) {
	c := NewChunker(40)

	text := "First paragraph is short.\n\nSecond paragraph too.\r\n\r\nThird one here."
	chunks, err := c.Chunk(text, models.DomainShared, "notes")
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}

	want := []string{"First paragraph is short.", "Second paragraph too.", "Third one here."}
	if len(chunks) != len(want) {
		t.Fatalf("Chunk() returned %d chunks, want %d", len(chunks), len(want))
	}
	for i, chunk := range chunks {
		if chunk.Content != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunk.Content, want[i])
		}
		if chunk.ChunkType != models.ChunkTypeParagraph {
			t.Errorf("chunk %d type = %s, want PARAGRAPH", i, chunk.ChunkType)
		}
		if chunk.Position != i {
			t.Errorf("chunk %d position = %d", i, chunk.Position)
		}
	}
}

func TestChunk_LongParagraphPacksSentences(t *testing.T) {
	c := NewChunker(30)

	text := "One two three. Four five six. Seven eight nine. Ten."
	chunks, err := c.Chunk(text, models.DomainShared, "s")
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}

	for _, chunk := range chunks {
		if len(chunk.Content) > 30 {
			t.Errorf("chunk %q exceeds cap", chunk.Content)
		}
		if chunk.ChunkType != models.ChunkTypeSentence {
			t.Errorf("chunk type = %s, want SENTENCE", chunk.ChunkType)
		}
	}
	if chunks[0].Content != "One two three. Four five six." {
		t.Errorf("first chunk = %q, want two packed sentences", chunks[0].Content)
	}

	var rebuilt []string
	for _, chunk := range chunks {
		rebuilt = append(rebuilt, chunk.Content)
	}
	if strings.Join(rebuilt, " ") != text {
		t.Errorf("chunks do not cover the text: %q", strings.Join(rebuilt, " "))
	}
}

func TestChunk_OversizedWordIsCut(t *testing.T) {
	c := NewChunker(10)

	chunks, err := c.Chunk(strings.Repeat("a", 25), models.DomainShared, "s")
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("Chunk() returned %d chunks, want 3", len(chunks))
	}
	for _, chunk := range chunks {
		if len(chunk.Content) > 10 {
			t.Errorf("chunk %q exceeds cap", chunk.Content)
		}
	}
}

func TestChunk_DeterministicIDs(t *testing.T) {
	c := NewChunker(100)

	a, _ := c.Chunk("same text", models.DomainShared, "a.md")
	b, _ := c.Chunk("same text", models.DomainShared, "a.md")
	other, _ := c.Chunk("same text", models.DomainShared, "b.md")

	if a[0].ChunkID != b[0].ChunkID {
		t.Error("same input should produce the same chunk ID")
	}
	if a[0].ChunkID == other[0].ChunkID {
		t.Error("different sources should produce different chunk IDs")
	}
}

func TestSplitWords_RuneBoundary(t *testing.T) {
	pieces := splitWords("ééééé", 3)
	for _, p := range pieces {
		if !strings.HasPrefix(p, "é") || len(p)%2 != 0 {
			t.Errorf("piece %q split a rune", p)
		}
	}
}
