package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/docuchat/internal/domain"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func message(sessionID string, role domain.Role, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: at,
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	created, err := s.CreateSession(ctx, "New Chat")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := s.GetSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "New Chat", got.Name)

	require.NoError(t, s.RenameSession(ctx, created.ID, "Quarterly report questions"))
	got, err = s.GetSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly report questions", got.Name)

	require.NoError(t, s.DeleteSession(ctx, created.ID))
	_, err = s.GetSession(ctx, created.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionNotFound(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, s.RenameSession(ctx, "missing", "x"), ErrSessionNotFound)
	assert.ErrorIs(t, s.DeleteSession(ctx, "missing"), ErrSessionNotFound)
	assert.ErrorIs(t, s.AppendMessage(ctx, message("missing", domain.RoleUser, "hi", time.Now())), ErrSessionNotFound)
}

func TestEnsureSession_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.EnsureSession(ctx, "default", "Default"))
	require.NoError(t, s.RenameSession(ctx, "default", "Renamed"))

	// A second ensure must not reset the name.
	require.NoError(t, s.EnsureSession(ctx, "default", "Default"))
	got, err := s.GetSession(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
}

func TestMessages_OrderAndCitations(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	session, err := s.CreateSession(ctx, "chat")
	require.NoError(t, err)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	userMsg := message(session.ID, domain.RoleUser, "What is the refund policy?", base)
	assistantMsg := message(session.ID, domain.RoleAssistant, "Refunds are honored for 30 days [1].", base.Add(time.Second))
	assistantMsg.Citations = []domain.Citation{
		{Index: 1, ChunkID: "chunk-9", Source: "policy.pdf", Page: 3, Excerpt: "Refunds are honored for 30 days."},
	}

	require.NoError(t, s.AppendMessage(ctx, userMsg))
	require.NoError(t, s.AppendMessage(ctx, assistantMsg))

	messages, err := s.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	assert.Equal(t, domain.RoleUser, messages[0].Role)
	assert.Nil(t, messages[0].Citations)

	assert.Equal(t, domain.RoleAssistant, messages[1].Role)
	require.Len(t, messages[1].Citations, 1)
	assert.Equal(t, "policy.pdf", messages[1].Citations[0].Source)
	assert.Equal(t, 3, messages[1].Citations[0].Page)

	count, err := s.MessageCount(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDeleteSession_CascadesMessages(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	session, err := s.CreateSession(ctx, "chat")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, message(session.ID, domain.RoleUser, "hello", time.Now())))

	require.NoError(t, s.DeleteSession(ctx, session.ID))

	count, err := s.MessageCount(ctx, session.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestListSessions_RecentFirst(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	first, err := s.CreateSession(ctx, "first")
	require.NoError(t, err)
	second, err := s.CreateSession(ctx, "second")
	require.NoError(t, err)

	// Touch the older session so it moves to the top.
	require.NoError(t, s.AppendMessage(ctx, message(first.ID, domain.RoleUser, "ping", time.Now())))

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first.ID, sessions[0].ID)
	assert.Equal(t, 1, sessions[0].MessageCount)
	assert.Equal(t, second.ID, sessions[1].ID)
	assert.Equal(t, 0, sessions[1].MessageCount)
}

func TestDocuments(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	doc := domain.Document{
		ID:         uuid.New().String(),
		SessionID:  "default",
		Filename:   "report.pdf",
		SizeBytes:  2048,
		Pages:      3,
		ChunkCount: 7,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.InsertDocument(ctx, doc))

	got, err := s.DocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", got.Filename)
	assert.Equal(t, 7, got.ChunkCount)

	found, err := s.FindDocument(ctx, "default", "report.pdf", 2048)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, found.ID)

	_, err = s.FindDocument(ctx, "default", "report.pdf", 4096)
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	docs, err := s.DocumentsBySession(ctx, "default")
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	// Other sessions see nothing.
	docs, err = s.DocumentsBySession(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, docs)

	require.NoError(t, s.DeleteDocument(ctx, doc.ID))
	_, err = s.DocumentByID(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.ErrorIs(t, s.DeleteDocument(ctx, doc.ID), ErrDocumentNotFound)
}

func TestDeleteDocumentsBySession(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertDocument(ctx, domain.Document{
			ID:        uuid.New().String(),
			SessionID: "s1",
			Filename:  "a.pdf",
			CreatedAt: time.Now().UTC(),
		}))
	}
	require.NoError(t, s.InsertDocument(ctx, domain.Document{
		ID:        uuid.New().String(),
		SessionID: "s2",
		Filename:  "b.pdf",
		CreatedAt: time.Now().UTC(),
	}))

	require.NoError(t, s.DeleteDocumentsBySession(ctx, "s1"))

	docs, err := s.DocumentsBySession(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = s.DocumentsBySession(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

// TestChunks round-trips chunk rows, embeddings included, and checks the
// per-document and per-session deletes.
func TestChunks(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	docA := uuid.New().String()
	docB := uuid.New().String()
	chunksA := []domain.Chunk{
		{ID: uuid.New().String(), DocumentID: docA, Ordinal: 0, Page: 1,
			Text: "first passage", StartOffset: 0, EndOffset: 13,
			Embedding: []float32{0.25, -1, 3.5}},
		{ID: uuid.New().String(), DocumentID: docA, Ordinal: 1, Page: 2,
			Text: "second passage", StartOffset: 13, EndOffset: 27,
			Embedding: []float32{1, 0, -0.5}},
	}
	require.NoError(t, s.InsertChunks(ctx, "s1", chunksA))
	require.NoError(t, s.InsertChunks(ctx, "s2", []domain.Chunk{
		{ID: uuid.New().String(), DocumentID: docB, Ordinal: 0, Page: 1,
			Text: "other session", EndOffset: 13, Embedding: []float32{2, 2}},
	}))

	byScope, err := s.AllChunks(ctx)
	require.NoError(t, err)
	require.Len(t, byScope["s1"], 2)
	require.Len(t, byScope["s2"], 1)

	got := byScope["s1"][1]
	assert.Equal(t, chunksA[1].ID, got.ID)
	assert.Equal(t, docA, got.DocumentID)
	assert.Equal(t, 2, got.Page)
	assert.Equal(t, "second passage", got.Text)
	assert.Equal(t, 13, got.StartOffset)
	assert.Equal(t, 27, got.EndOffset)
	assert.Equal(t, []float32{1, 0, -0.5}, got.Embedding)

	require.NoError(t, s.DeleteChunksByDocument(ctx, docA))
	byScope, err = s.AllChunks(ctx)
	require.NoError(t, err)
	assert.NotContains(t, byScope, "s1")
	assert.Len(t, byScope["s2"], 1)

	require.NoError(t, s.DeleteChunksBySession(ctx, "s2"))
	byScope, err = s.AllChunks(ctx)
	require.NoError(t, err)
	assert.Empty(t, byScope)
}

func TestCountAll(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	session, err := s.CreateSession(ctx, "chat")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, message(session.ID, domain.RoleUser, "hi", time.Now())))
	require.NoError(t, s.InsertDocument(ctx, domain.Document{
		ID: uuid.New().String(), SessionID: session.ID, Filename: "a.pdf", CreatedAt: time.Now().UTC(),
	}))

	stats, err := s.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Sessions: 1, Documents: 1, Messages: 1}, stats)
}
