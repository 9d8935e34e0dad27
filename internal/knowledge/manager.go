// Package knowledge owns the set of documents indexed for each session.
// It orchestrates the ingestion pipeline (extract, chunk, embed, index)
// and enforces per-session isolation and removal.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docuchat/docuchat/internal/chunker"
	"github.com/docuchat/docuchat/internal/domain"
	"github.com/docuchat/docuchat/internal/embedding"
	"github.com/docuchat/docuchat/internal/extractor"
	"github.com/docuchat/docuchat/internal/store"
	"github.com/docuchat/docuchat/internal/vectorindex"
)

// DefaultScope is the session key used when callers do not manage
// sessions. It collapses the engine to single-tenant behavior without
// hidden global state.
const DefaultScope = "default"

// DefaultMaxDocumentBytes is the upload size ceiling (50 MB).
const DefaultMaxDocumentBytes = 50 << 20

var (
	// ErrDocumentTooLarge rejects uploads over the configured ceiling
	// before any mutation happens.
	ErrDocumentTooLarge = errors.New("document exceeds maximum size")
	// ErrDuplicateDocument flags an upload matching an existing
	// filename+size in the session. Advisory: the caller may retry with
	// AllowDuplicate set.
	ErrDuplicateDocument = errors.New("duplicate document in session")
)

// Scope maps a session id to its index scope; an empty id falls back to
// the named default scope.
func Scope(sessionID string) string {
	if sessionID == "" {
		return DefaultScope
	}
	return sessionID
}

// Manager tracks the live document set and runs the ingestion pipeline.
type Manager struct {
	extractor *extractor.Extractor
	chunker   *chunker.Chunker
	embedder  embedding.Embedder
	index     vectorindex.Index
	store     *store.Store
	maxBytes  int64
	logger    *slog.Logger

	// Mutations lock per scope, never globally: one session's ingestion
	// must not block another session's queries or uploads.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Config holds the manager's dependencies.
type Config struct {
	Extractor        *extractor.Extractor
	Chunker          *chunker.Chunker
	Embedder         embedding.Embedder
	Index            vectorindex.Index
	Store            *store.Store
	MaxDocumentBytes int64
	Logger           *slog.Logger
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	if cfg.MaxDocumentBytes <= 0 {
		cfg.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		extractor: cfg.Extractor,
		chunker:   cfg.Chunker,
		embedder:  cfg.Embedder,
		index:     cfg.Index,
		store:     cfg.Store,
		maxBytes:  cfg.MaxDocumentBytes,
		logger:    cfg.Logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (m *Manager) scopeLock(scope string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[scope]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[scope] = lock
	}
	return lock
}

// IngestOptions tune a single ingestion.
type IngestOptions struct {
	// AllowDuplicate proceeds past the duplicate filename+size check.
	AllowDuplicate bool
}

// Ingest runs the full pipeline for one uploaded file and registers the
// resulting document under the session. A failure after partial chunk
// writes rolls back every chunk written for the document.
func (m *Manager) Ingest(ctx context.Context, content []byte, filename, sessionID string, opts IngestOptions) (domain.Document, error) {
	scope := Scope(sessionID)

	// Input validation happens before any mutation.
	if int64(len(content)) > m.maxBytes {
		return domain.Document{}, fmt.Errorf("%w: %d bytes (limit %d)",
			ErrDocumentTooLarge, len(content), m.maxBytes)
	}
	format, err := extractor.DetectFormat(filename)
	if err != nil {
		return domain.Document{}, err
	}

	if !opts.AllowDuplicate {
		existing, err := m.store.FindDocument(ctx, scope, filename, int64(len(content)))
		if err == nil {
			return domain.Document{}, fmt.Errorf("%w: %q already ingested as %s",
				ErrDuplicateDocument, filename, existing.ID)
		}
		if !errors.Is(err, store.ErrDocumentNotFound) {
			return domain.Document{}, err
		}
	}

	pages, err := m.extractor.Extract(content, format)
	if err != nil {
		return domain.Document{}, err
	}

	docID := uuid.New().String()
	chunks := m.chunker.Chunk(docID, pages)
	if len(chunks) == 0 {
		return domain.Document{}, extractor.ErrEmptyDocument
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return domain.Document{}, fmt.Errorf("embed chunks: %w", err)
	}
	for i := range chunks {
		chunks[i].ID = uuid.New().String()
		chunks[i].Embedding = vectors[i]
	}

	lock := m.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	if err := m.index.Add(ctx, scope, chunks); err != nil {
		// Roll back whatever made it into the index for this document.
		if _, rbErr := m.index.RemoveByDocument(ctx, scope, docID); rbErr != nil {
			m.logger.Error("rollback after failed index add", "document", docID, "error", rbErr)
		}
		return domain.Document{}, fmt.Errorf("index chunks: %w", err)
	}

	// Chunk rows back the index: Rehydrate rebuilds a volatile index from
	// them after a restart.
	if err := m.store.InsertChunks(ctx, scope, chunks); err != nil {
		m.rollbackChunks(ctx, scope, docID)
		return domain.Document{}, fmt.Errorf("record chunks: %w", err)
	}

	doc := domain.Document{
		ID:         docID,
		SessionID:  scope,
		Filename:   filename,
		SizeBytes:  int64(len(content)),
		Pages:      len(pages),
		ChunkCount: len(chunks),
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.store.InsertDocument(ctx, doc); err != nil {
		m.rollbackChunks(ctx, scope, docID)
		return domain.Document{}, fmt.Errorf("record document: %w", err)
	}

	m.logger.Info("ingested document",
		"session", scope, "document", docID, "filename", filename,
		"pages", len(pages), "chunks", len(chunks))
	return doc, nil
}

// rollbackChunks undoes a partial ingestion: indexed vectors and chunk
// rows for the document are both removed.
func (m *Manager) rollbackChunks(ctx context.Context, scope, docID string) {
	if _, err := m.index.RemoveByDocument(ctx, scope, docID); err != nil {
		m.logger.Error("rollback indexed chunks", "document", docID, "error", err)
	}
	if err := m.store.DeleteChunksByDocument(ctx, docID); err != nil {
		m.logger.Error("rollback chunk rows", "document", docID, "error", err)
	}
}

// Rehydrate reloads every persisted chunk into the vector index. Called
// at startup when the index backend is volatile; durable backends keep
// their own state and never need it.
func (m *Manager) Rehydrate(ctx context.Context) error {
	byScope, err := m.store.AllChunks(ctx)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}

	var total int
	for scope, chunks := range byScope {
		if err := m.index.Add(ctx, scope, chunks); err != nil {
			return fmt.Errorf("rebuild index for session %s: %w", scope, err)
		}
		total += len(chunks)
	}
	if total > 0 {
		m.logger.Info("rebuilt vector index", "sessions", len(byScope), "chunks", total)
	}
	return nil
}

// List returns the session's documents in ingestion order.
func (m *Manager) List(ctx context.Context, sessionID string) ([]domain.Document, error) {
	return m.store.DocumentsBySession(ctx, Scope(sessionID))
}

// Document returns one document's metadata.
func (m *Manager) Document(ctx context.Context, documentID string) (domain.Document, error) {
	return m.store.DocumentByID(ctx, documentID)
}

// Remove deletes the document and cascades its chunks out of the index.
func (m *Manager) Remove(ctx context.Context, documentID string) error {
	doc, err := m.store.DocumentByID(ctx, documentID)
	if err != nil {
		return err
	}

	lock := m.scopeLock(doc.SessionID)
	lock.Lock()
	defer lock.Unlock()

	removed, err := m.index.RemoveByDocument(ctx, doc.SessionID, documentID)
	if err != nil {
		return fmt.Errorf("remove chunks: %w", err)
	}
	if err := m.store.DeleteChunksByDocument(ctx, documentID); err != nil {
		return err
	}
	if err := m.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}

	m.logger.Info("removed document",
		"session", doc.SessionID, "document", documentID,
		"filename", doc.Filename, "chunks", removed)
	return nil
}

// Clear removes all documents and chunks in the session; with
// clearHistory it also resets the chat history for that scope.
func (m *Manager) Clear(ctx context.Context, sessionID string, clearHistory bool) error {
	scope := Scope(sessionID)

	lock := m.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	if err := m.index.Clear(ctx, scope); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	if err := m.store.DeleteChunksBySession(ctx, scope); err != nil {
		return err
	}
	if err := m.store.DeleteDocumentsBySession(ctx, scope); err != nil {
		return err
	}
	if clearHistory {
		if err := m.store.DeleteMessages(ctx, scope); err != nil {
			return err
		}
	}

	m.logger.Info("cleared knowledge base", "session", scope, "history_cleared", clearHistory)
	return nil
}
