// Package mcp exposes the QA engine as MCP tools over stdio or
// streamable HTTP transport.
package mcp

import "github.com/docuchat/docuchat/internal/domain"

// AskInput defines the input parameters for the ask_question tool.
type AskInput struct {
	// Question is the natural-language question to answer.
	Question string `json:"question" jsonschema:"The question to answer from the uploaded documents"`
	// SessionID scopes the question to one session's documents. Empty uses the default session.
	SessionID string `json:"session_id,omitempty" jsonschema:"Session whose documents to answer from (empty for the default session)"`
	// TopK is how many passages to retrieve as context.
	TopK int `json:"top_k,omitempty" jsonschema:"Number of passages to retrieve as context (1-20, default 4)"`
}

// AskOutput contains the grounded answer.
type AskOutput struct {
	// Answer is the generated answer with inline [n] citation markers.
	Answer string `json:"answer"`
	// Citations maps each [n] marker back to its source passage.
	Citations []domain.Citation `json:"citations"`
	// Warnings lists recoverable issues, such as dropped invalid markers.
	Warnings []string `json:"warnings,omitempty"`
}

// SearchInput defines the input parameters for the search_passages tool.
type SearchInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"The semantic search query"`
	// SessionID scopes the search to one session's documents.
	SessionID string `json:"session_id,omitempty" jsonschema:"Session whose documents to search (empty for the default session)"`
	// MaxResults is the maximum number of passages to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"Maximum number of passages to return (1-20, default 4)"`
}

// SearchOutput contains the ranked passages.
type SearchOutput struct {
	Results []PassageResult `json:"results"`
	// Message provides informational context (e.g., "No documents uploaded yet").
	Message string `json:"message,omitempty"`
}

// PassageResult represents a single passage match from semantic search.
type PassageResult struct {
	// Source is the filename of the owning document.
	Source string `json:"source"`
	// Page is the 1-indexed page the passage starts on.
	Page int `json:"page"`
	// Score is the cosine similarity to the query (0-1).
	Score float64 `json:"score"`
	// Text is the passage content.
	Text string `json:"text"`
}

// ListDocumentsInput defines the input parameters for the list_documents tool.
type ListDocumentsInput struct {
	// SessionID scopes the listing to one session.
	SessionID string `json:"session_id,omitempty" jsonschema:"Session whose documents to list (empty for the default session)"`
}

// ListDocumentsOutput contains the session's document records.
type ListDocumentsOutput struct {
	Documents []domain.Document `json:"documents"`
	Count     int               `json:"count"`
}

// StatusInput defines the input parameters for the get_status tool.
// This tool takes no parameters.
type StatusInput struct{}

// StatusOutput summarizes the engine's persisted state.
type StatusOutput struct {
	Sessions  int    `json:"sessions"`
	Documents int    `json:"documents"`
	Messages  int    `json:"messages"`
	Timestamp string `json:"timestamp"`
}
