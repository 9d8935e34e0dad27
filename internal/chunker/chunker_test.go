package chunker

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/docuchat/docuchat/internal/domain"
)

func sentencePage(number, sentences int) domain.Page {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		fmt.Fprintf(&b, "Page %d sentence number %d carries some filler words. ", number, i)
	}
	return domain.Page{Number: number, Text: strings.TrimSpace(b.String())}
}

// TestChunk_ShortDocument verifies a document smaller than the target
// size becomes a single chunk spanning all of it.
func TestChunk_ShortDocument(t *testing.T) {
	pages := []domain.Page{{Number: 1, Text: "Just one short sentence."}}

	chunks := New(0, 0).Chunk("doc-1", pages)
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}

	c := chunks[0]
	if c.Text != "Just one short sentence." {
		t.Errorf("Chunk text: got %q", c.Text)
	}
	if c.Page != 1 {
		t.Errorf("Chunk page: expected 1, got %d", c.Page)
	}
	if c.StartOffset != 0 || c.EndOffset != len(c.Text) {
		t.Errorf("Chunk offsets: got [%d, %d)", c.StartOffset, c.EndOffset)
	}
	if c.DocumentID != "doc-1" || c.Ordinal != 0 {
		t.Errorf("Chunk identity: got doc %q ordinal %d", c.DocumentID, c.Ordinal)
	}
}

// TestChunk_OffsetsReconstruct verifies chunk offsets tile the joined
// text without gaps, so the original extraction can be rebuilt from the
// chunk sequence.
func TestChunk_OffsetsReconstruct(t *testing.T) {
	pages := []domain.Page{sentencePage(1, 20), sentencePage(2, 20), sentencePage(3, 20)}
	joined := JoinPages(pages)

	chunks := New(300, 60).Chunk("doc-1", pages)
	if len(chunks) < 3 {
		t.Fatalf("Expected several chunks, got %d", len(chunks))
	}

	if chunks[0].StartOffset != 0 {
		t.Errorf("First chunk should start at 0, got %d", chunks[0].StartOffset)
	}
	if last := chunks[len(chunks)-1]; last.EndOffset != len(joined) {
		t.Errorf("Last chunk should end at %d, got %d", len(joined), last.EndOffset)
	}

	for i, c := range chunks {
		if c.Ordinal != i {
			t.Errorf("Chunk %d has ordinal %d", i, c.Ordinal)
		}
		if c.Text != joined[c.StartOffset:c.EndOffset] {
			t.Errorf("Chunk %d text does not match its offsets", i)
		}
		if i == 0 {
			continue
		}
		prev := chunks[i-1]
		if c.StartOffset > prev.EndOffset {
			t.Errorf("Gap between chunk %d (end %d) and chunk %d (start %d)",
				i-1, prev.EndOffset, i, c.StartOffset)
		}
		if c.StartOffset <= prev.StartOffset {
			t.Errorf("Chunk %d does not advance past chunk %d", i, i-1)
		}
	}

	// Rebuild the document from the chunks.
	var b strings.Builder
	end := 0
	for _, c := range chunks {
		if c.StartOffset < end {
			b.WriteString(c.Text[end-c.StartOffset:])
		} else {
			b.WriteString(c.Text)
		}
		end = c.EndOffset
	}
	if b.String() != joined {
		t.Error("Concatenating chunks minus overlap did not reconstruct the text")
	}
}

// TestChunk_Overlap verifies consecutive chunks share text.
func TestChunk_Overlap(t *testing.T) {
	pages := []domain.Page{sentencePage(1, 40)}

	chunks := New(300, 60).Chunk("doc-1", pages)
	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		if chunks[i].StartOffset >= chunks[i-1].EndOffset {
			t.Errorf("Chunks %d and %d do not overlap", i-1, i)
		}
	}
}

// TestChunk_PageAttribution verifies a chunk is tagged with the page its
// first sentence starts on.
func TestChunk_PageAttribution(t *testing.T) {
	pages := []domain.Page{
		{Number: 1, Text: "First page sentence."},
		{Number: 2, Text: "Second page sentence."},
	}

	chunks := New(20, 5).Chunk("doc-1", pages)
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Page != 1 {
		t.Errorf("Chunk 0 page: expected 1, got %d", chunks[0].Page)
	}
	if chunks[1].Page != 2 {
		t.Errorf("Chunk 1 page: expected 2, got %d", chunks[1].Page)
	}
}

// TestChunk_Deterministic verifies identical input produces the
// identical chunk sequence.
func TestChunk_Deterministic(t *testing.T) {
	pages := []domain.Page{sentencePage(1, 30), sentencePage(2, 30)}

	c := New(250, 50)
	first := c.Chunk("doc-1", pages)
	second := c.Chunk("doc-1", pages)

	if !reflect.DeepEqual(first, second) {
		t.Error("Chunking the same input twice produced different results")
	}
}

// TestChunk_HardCut verifies text without sentence boundaries is still
// split instead of producing one giant chunk.
func TestChunk_HardCut(t *testing.T) {
	unbroken := strings.Repeat("x", 1000)
	pages := []domain.Page{{Number: 1, Text: unbroken}}

	chunks := New(100, 20).Chunk("doc-1", pages)
	if len(chunks) < 2 {
		t.Fatalf("Expected unbroken text to be split, got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if n := c.EndOffset - c.StartOffset; n > 100+tolerance {
			t.Errorf("Chunk %d is %d chars, exceeding the hard budget", i, n)
		}
		if c.Text == "" {
			t.Errorf("Chunk %d is empty", i)
		}
	}
}

// TestChunk_HardCutMultibyte verifies hard cuts land on rune boundaries,
// never inside a multi-byte character.
func TestChunk_HardCutMultibyte(t *testing.T) {
	// A leading ASCII byte pushes every 100-byte cut point mid-rune
	// unless the chunker snaps it back.
	unbroken := "x" + strings.Repeat("é", 400)
	pages := []domain.Page{{Number: 1, Text: unbroken}}

	chunks := New(100, 20).Chunk("doc-1", pages)
	if len(chunks) < 2 {
		t.Fatalf("Expected unbroken text to be split, got %d chunks", len(chunks))
	}

	for i, c := range chunks {
		if !utf8.ValidString(c.Text) {
			t.Errorf("Chunk %d contains invalid UTF-8", i)
		}
		if c.Text != unbroken[c.StartOffset:c.EndOffset] {
			t.Errorf("Chunk %d text does not match its offsets", i)
		}
	}
	if last := chunks[len(chunks)-1]; last.EndOffset != len(unbroken) {
		t.Errorf("Last chunk ends at %d, expected %d", last.EndOffset, len(unbroken))
	}
}

// TestChunk_EmptyInput verifies whitespace-only input yields no chunks.
func TestChunk_EmptyInput(t *testing.T) {
	pages := []domain.Page{{Number: 1, Text: "   \n  "}}

	if chunks := New(0, 0).Chunk("doc-1", pages); chunks != nil {
		t.Errorf("Expected nil chunks for blank input, got %d", len(chunks))
	}
}

// TestJoinPages verifies the page separator layout chunk offsets rely on.
func TestJoinPages(t *testing.T) {
	pages := []domain.Page{
		{Number: 1, Text: "one"},
		{Number: 2, Text: "two"},
	}
	if got := JoinPages(pages); got != "one\n\ntwo" {
		t.Errorf("JoinPages: got %q", got)
	}
}
