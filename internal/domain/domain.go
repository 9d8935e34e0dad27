// Package domain holds the record types shared across the QA engine:
// documents, chunks, sessions, messages, and the citation values derived
// at answer time.
package domain

import "time"

// Document is the metadata record for one ingested file. The extracted
// text itself lives in the document's chunks.
type Document struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Filename   string    `json:"filename"`
	SizeBytes  int64     `json:"size_bytes"`
	Pages      int       `json:"pages"`
	ChunkCount int       `json:"chunks"`
	CreatedAt  time.Time `json:"created_at"`
}

// Page is one page of extracted text, 1-indexed in document order.
// DOCX input has no native pages; the extractor synthesizes them on a
// fixed character budget so citation page numbers stay meaningful.
type Page struct {
	Number int
	Text   string
}

// Chunk is a contiguous, page-tagged slice of a document's extracted
// text, the unit of retrieval. Chunks are immutable once created and are
// destroyed only with their owning document.
type Chunk struct {
	ID          string
	DocumentID  string
	Ordinal     int
	Page        int
	Text        string
	StartOffset int
	EndOffset   int
	Embedding   []float32
}

// ScoredChunk pairs a chunk with its cosine similarity to a query vector.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Citation references the chunk that backs a claim in an answer. Citations
// are derived per answer, never persisted on their own; Index matches the
// inline [n] marker in the answer text.
type Citation struct {
	Index   int    `json:"id"`
	ChunkID string `json:"chunk_id"`
	Source  string `json:"source"`
	Page    int    `json:"page"`
	Excerpt string `json:"content"`
}

// Session is one conversation. A session owns zero or more documents;
// documents and retrieval are confined to their session.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation, immutable once created.
// Citations are set on assistant messages only.
type Message struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Citations []Citation `json:"citations,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
