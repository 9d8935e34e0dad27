// Package answer builds a grounded prompt from retrieved chunks, invokes
// the generative model once, and maps the model's inline [n] markers back
// to verifiable citations.
package answer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/docuchat/docuchat/internal/domain"
	"github.com/docuchat/docuchat/internal/generation"
)

// ErrEmptyGeneration is returned when the model produces no text.
var ErrEmptyGeneration = errors.New("model produced no answer text")

// ErrNoContext is returned when Answer is called without passages;
// there is nothing to ground an answer in.
var ErrNoContext = errors.New("no context passages supplied")

// maxExcerptSentences and maxExcerptChars bound a citation excerpt.
const (
	maxExcerptSentences = 3
	maxExcerptChars     = 300
)

// Passage is one retrieved chunk together with its rendered source
// (the owning document's filename).
type Passage struct {
	Chunk  domain.Chunk
	Source string
}

// Result is a synthesized answer with its citations. Warnings record
// recovered conditions, such as the model citing a label that was never
// supplied.
type Result struct {
	Text      string
	Citations []domain.Citation
	Warnings  []string
}

// Synthesizer produces grounded answers.
type Synthesizer struct {
	generator generation.Generator
}

// New creates a Synthesizer.
func New(generator generation.Generator) *Synthesizer {
	return &Synthesizer{generator: generator}
}

var markerPattern = regexp.MustCompile(`\[(\d+)\]`)

// Answer invokes the model once with the passages as labeled context and
// extracts the citations the model actually referenced. Retry policy is
// the caller's decision; this method never re-invokes the model itself.
func (s *Synthesizer) Answer(ctx context.Context, question string, passages []Passage) (Result, error) {
	if len(passages) == 0 {
		return Result{}, ErrNoContext
	}

	prompt := buildPrompt(question, passages)
	text, err := s.generator.Complete(ctx, prompt)
	if err != nil {
		return Result{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, ErrEmptyGeneration
	}

	result := Result{Text: text}
	seen := make(map[int]bool)
	for _, match := range markerPattern.FindAllStringSubmatch(text, -1) {
		index, err := strconv.Atoi(match[1])
		if err != nil || seen[index] {
			continue
		}
		seen[index] = true

		if index < 1 || index > len(passages) {
			// The model cited a label outside the supplied context. The
			// answer may still be useful, so the marker is dropped from
			// the citation list rather than failing the call.
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("model cited [%d] but only %d passages were supplied", index, len(passages)))
			continue
		}

		passage := passages[index-1]
		result.Citations = append(result.Citations, domain.Citation{
			Index:   index,
			ChunkID: passage.Chunk.ID,
			Source:  passage.Source,
			Page:    passage.Chunk.Page,
			Excerpt: trimExcerpt(passage.Chunk.Text),
		})
	}

	return result, nil
}

// buildPrompt lays out the passages as numbered context blocks and
// instructs the model to answer only from them. Forbidding outside
// knowledge here is what bounds hallucination; the instruction is load
// bearing, not stylistic.
func buildPrompt(question string, passages []Passage) string {
	var b strings.Builder

	b.WriteString("You are an assistant that answers questions using ONLY the numbered context passages below.\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Use only information from the passages. Do not use outside knowledge.\n")
	b.WriteString("- Mark each claim with the passage number it comes from, like [1] or [2].\n")
	b.WriteString("- Only cite passage numbers that appear below.\n")
	b.WriteString("- If the passages do not contain the answer, say you do not have enough information. Do not guess.\n\n")

	for i, p := range passages {
		fmt.Fprintf(&b, "[%d] Source: %s (page %d)\n%s\n\n", i+1, p.Source, p.Chunk.Page, p.Chunk.Text)
	}

	fmt.Fprintf(&b, "Question: %s\n\nAnswer:", question)
	return b.String()
}

// trimExcerpt cuts a chunk down to the first few sentences for display
// next to the answer, mirroring what a reader needs to verify a claim.
func trimExcerpt(text string) string {
	sentences := splitSentences(strings.TrimSpace(text))

	count := min(len(sentences), maxExcerptSentences)
	excerpt := strings.Join(sentences[:count], " ")
	truncated := count < len(sentences)

	if runes := []rune(excerpt); len(runes) > maxExcerptChars {
		excerpt = string(runes[:maxExcerptChars-3])
		truncated = true
	}
	if truncated {
		excerpt = strings.TrimRight(excerpt, " ") + "..."
	}
	return excerpt
}

var sentenceEnd = regexp.MustCompile(`(?s)(.*?[.!?])(?:\s+|$)`)

func splitSentences(text string) []string {
	matches := sentenceEnd.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}
	sentences := make([]string, 0, len(matches))
	consumed := 0
	for _, m := range matches {
		sentences = append(sentences, strings.TrimSpace(m[1]))
		consumed += len(m[0])
	}
	if rest := strings.TrimSpace(text[consumed:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}
