// Package engine ties retrieval and synthesis into the ask-a-question
// flow shared by every transport: retrieve chunks, generate a grounded
// answer, persist the conversation turn.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docuchat/docuchat/internal/answer"
	"github.com/docuchat/docuchat/internal/domain"
	"github.com/docuchat/docuchat/internal/knowledge"
	"github.com/docuchat/docuchat/internal/retriever"
	"github.com/docuchat/docuchat/internal/store"
)

// DefaultSessionName is the display name for freshly created sessions;
// the first question replaces it.
const DefaultSessionName = "New Chat"

// maxAutoNameLen bounds the session name derived from the first question.
const maxAutoNameLen = 50

// Engine answers questions against a session's knowledge base.
type Engine struct {
	retriever   *retriever.Retriever
	synthesizer *answer.Synthesizer
	kb          *knowledge.Manager
	store       *store.Store
	logger      *slog.Logger
}

// New creates an Engine.
func New(r *retriever.Retriever, s *answer.Synthesizer, kb *knowledge.Manager, st *store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{retriever: r, synthesizer: s, kb: kb, store: st, logger: logger}
}

// Store exposes the session store for transports doing session CRUD.
func (e *Engine) Store() *store.Store { return e.store }

// Knowledge exposes the knowledge base manager.
func (e *Engine) Knowledge() *knowledge.Manager { return e.kb }

// AskResult is one answered question.
type AskResult struct {
	Answer    string            `json:"answer"`
	Citations []domain.Citation `json:"citations"`
	Warnings  []string          `json:"warnings,omitempty"`
}

// Ask retrieves context for the question, synthesizes a grounded answer,
// and appends both turns to the session's history. An empty session id
// targets the default scope.
func (e *Engine) Ask(ctx context.Context, question, sessionID string, k int) (AskResult, error) {
	scope := knowledge.Scope(sessionID)

	if sessionID == "" {
		if err := e.store.EnsureSession(ctx, scope, DefaultSessionName); err != nil {
			return AskResult{}, err
		}
	} else if _, err := e.store.GetSession(ctx, sessionID); err != nil {
		return AskResult{}, err
	}

	priorMessages, err := e.store.MessageCount(ctx, scope)
	if err != nil {
		return AskResult{}, err
	}

	matches, err := e.retriever.Retrieve(ctx, question, scope, k)
	if err != nil {
		return AskResult{}, err
	}

	passages, err := e.labelPassages(ctx, scope, matches)
	if err != nil {
		return AskResult{}, err
	}

	result, err := e.synthesizer.Answer(ctx, question, passages)
	if err != nil {
		return AskResult{}, err
	}
	for _, warning := range result.Warnings {
		e.logger.Warn("answer synthesis", "session", scope, "warning", warning)
	}

	if err := e.appendTurn(ctx, scope, question, result); err != nil {
		return AskResult{}, err
	}

	// The first question names the conversation, as a sidebar label.
	if priorMessages == 0 {
		if err := e.store.RenameSession(ctx, scope, chatName(question)); err != nil {
			e.logger.Warn("auto-name session", "session", scope, "error", err)
		}
	}

	e.logger.Info("answered question",
		"session", scope, "citations", len(result.Citations), "warnings", len(result.Warnings))
	return AskResult{Answer: result.Text, Citations: result.Citations, Warnings: result.Warnings}, nil
}

// SearchResult is one retrieved passage with its source label.
type SearchResult struct {
	Chunk  domain.Chunk `json:"-"`
	Source string       `json:"source"`
	Page   int          `json:"page"`
	Text   string       `json:"text"`
	Score  float64      `json:"score"`
}

// Search returns ranked passages for a query without invoking the
// generative model. Used by tool surfaces that want raw retrieval.
func (e *Engine) Search(ctx context.Context, query, sessionID string, k int) ([]SearchResult, error) {
	scope := knowledge.Scope(sessionID)
	matches, err := e.retriever.Retrieve(ctx, query, scope, k)
	if err != nil {
		return nil, err
	}
	passages, err := e.labelPassages(ctx, scope, matches)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]float64, len(matches))
	for _, m := range matches {
		scores[m.Chunk.ID] = m.Score
	}

	results := make([]SearchResult, len(passages))
	for i, p := range passages {
		results[i] = SearchResult{
			Chunk:  p.Chunk,
			Source: p.Source,
			Page:   p.Chunk.Page,
			Text:   p.Chunk.Text,
			Score:  scores[p.Chunk.ID],
		}
	}
	return results, nil
}

// labelPassages resolves each chunk's owning document to render its
// source label. Chunks whose document vanished mid-flight are dropped:
// a citation must never reference deleted content.
func (e *Engine) labelPassages(ctx context.Context, scope string, matches []domain.ScoredChunk) ([]answer.Passage, error) {
	docs, err := e.kb.List(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	names := make(map[string]string, len(docs))
	for _, doc := range docs {
		names[doc.ID] = doc.Filename
	}

	passages := make([]answer.Passage, 0, len(matches))
	for _, m := range matches {
		name, ok := names[m.Chunk.DocumentID]
		if !ok {
			e.logger.Warn("dropping chunk of deleted document",
				"session", scope, "chunk", m.Chunk.ID, "document", m.Chunk.DocumentID)
			continue
		}
		passages = append(passages, answer.Passage{Chunk: m.Chunk, Source: name})
	}
	return passages, nil
}

func (e *Engine) appendTurn(ctx context.Context, scope, question string, result answer.Result) error {
	now := time.Now().UTC()
	userMsg := domain.Message{
		ID:        uuid.New().String(),
		SessionID: scope,
		Role:      domain.RoleUser,
		Content:   question,
		CreatedAt: now,
	}
	assistantMsg := domain.Message{
		ID:        uuid.New().String(),
		SessionID: scope,
		Role:      domain.RoleAssistant,
		Content:   result.Text,
		Citations: result.Citations,
		CreatedAt: now.Add(time.Microsecond),
	}

	if err := e.store.AppendMessage(ctx, userMsg); err != nil {
		return fmt.Errorf("append user message: %w", err)
	}
	if err := e.store.AppendMessage(ctx, assistantMsg); err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}
	return nil
}

// chatName derives a sidebar label from the first question. Length is
// counted in runes so truncation never splits a multi-byte character.
func chatName(question string) string {
	name := strings.TrimSpace(question)
	if runes := []rune(name); len(runes) > maxAutoNameLen {
		name = string(runes[:maxAutoNameLen-3]) + "..."
	}
	return name
}
