package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/docuchat/internal/answer"
	"github.com/docuchat/docuchat/internal/chunker"
	"github.com/docuchat/docuchat/internal/domain"
	"github.com/docuchat/docuchat/internal/engine"
	"github.com/docuchat/docuchat/internal/extractor"
	"github.com/docuchat/docuchat/internal/knowledge"
	"github.com/docuchat/docuchat/internal/retriever"
	"github.com/docuchat/docuchat/internal/store"
	"github.com/docuchat/docuchat/internal/vectorindex"
)

type wordEmbedder struct{ dim int }

func (e *wordEmbedder) Dimensions() int { return e.dim }

func (e *wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(word, ".,!?")))
		vec[h.Sum32()%uint32(e.dim)]++
	}
	return vec, nil
}

func (e *wordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, _ := e.Embed(ctx, t)
		out[i] = vec
	}
	return out, nil
}

// echoGenerator always cites the first passage.
type echoGenerator struct{}

func (echoGenerator) Complete(_ context.Context, _ string) (string, error) {
	return "Answer from the document [1].", nil
}

func buildDOCX(t *testing.T, paragraphs ...string) []byte {
	t.Helper()

	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	body.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		fmt.Fprintf(&body, `<w:p><w:r><w:t>%s</w:t></w:r></w:p>`, p)
	}
	body.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("word/document.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(body.String()))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	embedder := &wordEmbedder{dim: 64}
	index := vectorindex.NewMemory()
	kb := knowledge.NewManager(knowledge.Config{
		Extractor: extractor.New(),
		Chunker:   chunker.New(0, 0),
		Embedder:  embedder,
		Index:     index,
		Store:     st,
	})

	eng := engine.New(
		retriever.New(embedder, index, kb, 0),
		answer.New(echoGenerator{}),
		kb, st, nil,
	)
	return New(eng, WithTopK(4))
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func uploadFile(t *testing.T, s *Server, filename string, content []byte, sessionID string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	if sessionID != "" {
		require.NoError(t, mw.WriteField("session_id", sessionID))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestUploadAndListDocuments(t *testing.T) {
	s := newTestServer(t)

	rec := uploadFile(t, s, "report.docx", buildDOCX(t, "Quarterly revenue was up."), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var doc domain.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "report.docx", doc.Filename)
	assert.NotEmpty(t, doc.ID)

	rec = doJSON(t, s, http.MethodGet, "/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listing struct {
		Documents []domain.Document `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Documents, 1)
	assert.Equal(t, doc.ID, listing.Documents[0].ID)
}

func TestUpload_Errors(t *testing.T) {
	s := newTestServer(t)

	// Unsupported extension.
	rec := uploadFile(t, s, "notes.txt", []byte("plain text"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing file field.
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.NotEqual(t, http.StatusOK, w.Code)

	// Duplicate upload.
	content := buildDOCX(t, "Same content twice.")
	rec = uploadFile(t, s, "dup.docx", content, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = uploadFile(t, s, "dup.docx", content, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// An explicit re-upload bypasses duplicate detection.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "dup.docx")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("add_to_existing", "true"))
	require.NoError(t, mw.Close())

	req = httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w = httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestChat(t *testing.T) {
	s := newTestServer(t)

	rec := uploadFile(t, s, "policy.docx", buildDOCX(t, "Refunds are honored for thirty days."), "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/chat", map[string]any{"question": "how long are refunds honored"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result engine.AskResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Contains(t, result.Answer, "[1]")
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "policy.docx", result.Citations[0].Source)
}

func TestChat_Errors(t *testing.T) {
	s := newTestServer(t)

	// No documents yet.
	rec := doJSON(t, s, http.MethodPost, "/chat", map[string]any{"question": "anything"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Blank question.
	rec = doJSON(t, s, http.MethodPost, "/chat", map[string]any{"question": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown session.
	rec = doJSON(t, s, http.MethodPost, "/chat", map[string]any{"question": "hi", "session_id": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Malformed body.
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/chat/session/new", map[string]string{"name": "Contract review"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var session domain.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, "Contract review", session.Name)

	rec = doJSON(t, s, http.MethodGet, "/chat/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), session.ID)

	rec = doJSON(t, s, http.MethodPut, "/chat/session/"+session.ID+"/rename", map[string]string{"name": "NDA review"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "NDA review")

	rec = doJSON(t, s, http.MethodGet, "/chat/session/"+session.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var detail struct {
		Session  domain.Session   `json:"session"`
		Messages []domain.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "NDA review", detail.Session.Name)
	assert.Empty(t, detail.Messages)

	rec = doJSON(t, s, http.MethodDelete, "/chat/session/"+session.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/chat/session/"+session.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionScopedUploadAndChat(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/chat/session/new", map[string]string{"name": "scoped"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var session domain.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))

	rec = uploadFile(t, s, "scoped.docx", buildDOCX(t, "Scoped content lives here."), session.ID)
	require.Equal(t, http.StatusCreated, rec.Code)

	// The default session sees no documents.
	rec = doJSON(t, s, http.MethodPost, "/chat", map[string]any{"question": "scoped content"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The owning session answers.
	rec = doJSON(t, s, http.MethodPost, "/chat", map[string]any{
		"question": "where does scoped content live", "session_id": session.ID,
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestDeleteDocument(t *testing.T) {
	s := newTestServer(t)

	rec := uploadFile(t, s, "gone.docx", buildDOCX(t, "Soon to be removed."), "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var doc domain.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))

	rec = doJSON(t, s, http.MethodDelete, "/documents/"+doc.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, "/documents/"+doc.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClear(t *testing.T) {
	s := newTestServer(t)

	rec := uploadFile(t, s, "a.docx", buildDOCX(t, "Document content."), "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/clear", map[string]any{"clear_history": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"documents":null`)
}