// Package chunker splits page-tagged text into overlapping passages sized
// for retrieval. Chunking is deterministic: identical input always yields
// the identical chunk sequence.
package chunker

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/docuchat/docuchat/internal/domain"
)

const (
	// DefaultSize is the target chunk length in characters.
	DefaultSize = 1000
	// DefaultOverlap is the approximate overlap between consecutive
	// chunks, about 15% of the target size.
	DefaultOverlap = 150
	// tolerance is how far a chunk may deviate from the target before a
	// sentence boundary is considered out of reach.
	tolerance = 200
)

// PageSeparator joins page texts into the document's extracted text.
// Chunk offsets index into that joined text.
const PageSeparator = "\n\n"

// Chunker produces chunks from extracted pages.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. Zero or negative arguments fall back to the
// defaults.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap <= 0 {
		overlap = DefaultOverlap
	}
	if overlap >= size {
		overlap = size / 5
	}
	return &Chunker{size: size, overlap: overlap}
}

// JoinPages reconstructs the document's extracted text from its pages.
func JoinPages(pages []domain.Page) string {
	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	return strings.Join(texts, PageSeparator)
}

// span is a half-open [start, end) slice of the joined text. Spans tile
// the text completely so chunk offsets reconstruct it without gaps.
type span struct {
	start, end int
}

// Chunk splits the page sequence into ordered chunks for documentID.
// Each chunk is tagged with the page containing its first sentence and
// carries character offsets into the joined text. Chunk IDs and
// embeddings are assigned by the caller.
func (c *Chunker) Chunk(documentID string, pages []domain.Page) []domain.Chunk {
	text := JoinPages(pages)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	pageStarts := make([]int, len(pages))
	offset := 0
	for i, p := range pages {
		pageStarts[i] = offset
		offset += len(p.Text) + len(PageSeparator)
	}

	sentences := c.hardCut(text, sentenceSpans(text))

	var chunks []domain.Chunk
	i := 0
	for i < len(sentences) {
		j := i
		length := 0
		for j < len(sentences) {
			next := sentences[j].end - sentences[j].start
			if length >= c.size {
				break
			}
			// A boundary within tolerance of the target beats overshooting.
			if length >= c.size-tolerance && length+next > c.size+tolerance {
				break
			}
			length += next
			j++
		}

		start := sentences[i].start
		end := sentences[j-1].end
		chunks = append(chunks, domain.Chunk{
			DocumentID:  documentID,
			Ordinal:     len(chunks),
			Page:        pageAt(pages, pageStarts, start),
			Text:        text[start:end],
			StartOffset: start,
			EndOffset:   end,
		})

		if j >= len(sentences) {
			break
		}

		// Step back whole sentences to build the overlap, always keeping
		// forward progress.
		back := j
		covered := 0
		for back > i+1 && covered < c.overlap {
			back--
			covered += sentences[back].end - sentences[back].start
		}
		i = back
	}

	return chunks
}

// sentenceSpans tiles the text into sentence-sized spans. A span ends
// after a terminator (. ! ?) followed by whitespace, or at a newline;
// trailing whitespace belongs to the preceding span so the spans cover
// every character.
func sentenceSpans(text string) []span {
	var spans []span
	start := 0
	i := 0
	n := len(text)

	for i < n {
		c := text[i]
		if c == '.' || c == '!' || c == '?' || c == '\n' {
			j := i + 1
			for j < n && (text[j] == '.' || text[j] == '!' || text[j] == '?') {
				j++
			}
			if c == '\n' || j >= n || isSpace(text[j]) {
				for j < n && isSpace(text[j]) {
					j++
				}
				spans = append(spans, span{start, j})
				start = j
				i = j
				continue
			}
		}
		i++
	}

	if start < n {
		spans = append(spans, span{start, n})
	}
	return spans
}

// hardCut splits pathologically long sentences at the raw character
// budget; normal sentences pass through untouched. Cut points snap to
// rune starts so a chunk never ends mid-character.
func (c *Chunker) hardCut(text string, sentences []span) []span {
	out := make([]span, 0, len(sentences))
	for _, s := range sentences {
		for s.end-s.start > c.size+tolerance {
			cut := s.start + c.size
			for cut > s.start && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == s.start {
				cut = s.start + c.size
				for cut < s.end && !utf8.RuneStart(text[cut]) {
					cut++
				}
			}
			out = append(out, span{s.start, cut})
			s.start = cut
		}
		out = append(out, s)
	}
	return out
}

func pageAt(pages []domain.Page, starts []int, offset int) int {
	idx := sort.Search(len(starts), func(i int) bool { return starts[i] > offset }) - 1
	if idx < 0 {
		idx = 0
	}
	return pages[idx].Number
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
