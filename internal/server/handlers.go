package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/docuchat/docuchat/internal/knowledge"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Store().Ping(r.Context()); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload accepts a multipart PDF or DOCX and ingests it into the
// session named by the optional session_id form field.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+1<<20)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "upload too large"})
			return
		}
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart body"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing file field"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, fmt.Errorf("read upload: %w", err))
		return
	}

	sessionID := r.FormValue("session_id")
	opts := knowledge.IngestOptions{
		// add_to_existing re-uploads a file the session already holds.
		AllowDuplicate: r.FormValue("add_to_existing") == "true",
	}
	doc, err := s.engine.Knowledge().Ingest(r.Context(), content, header.Filename, sessionID, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, doc)
}

type chatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
	TopK      int    `json:"top_k"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	k := req.TopK
	if k <= 0 {
		k = s.topK
	}
	result, err := s.engine.Ask(r.Context(), req.Question, req.SessionID, k)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.engine.Knowledge().List(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Knowledge().Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.engine.Store().ListSessions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

type newSessionRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	var req newSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Name == "" {
		req.Name = "New Chat"
	}

	session, err := s.engine.Store().CreateSession(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := s.engine.Store().GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	messages, err := s.engine.Store().ListMessages(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"session":  session,
		"messages": messages,
	})
}

type renameSessionRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var req renameSessionRequest
	if err := decodeJSON(r, &req); err != nil || req.Name == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name is required"})
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.engine.Store().RenameSession(r.Context(), id, req.Name); err != nil {
		s.writeError(w, err)
		return
	}
	session, err := s.engine.Store().GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

// handleDeleteSession removes the session's history, documents, and
// indexed vectors in one call.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.engine.Store().GetSession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.Knowledge().Clear(r.Context(), id, true); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.Store().DeleteSession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type clearRequest struct {
	SessionID string `json:"session_id"`
	// ClearHistory defaults to true when omitted.
	ClearHistory *bool `json:"clear_history"`
}

// handleClear empties a session's knowledge base, optionally wiping its
// chat history too. The session itself survives.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	clearHistory := req.ClearHistory == nil || *req.ClearHistory

	if err := s.engine.Knowledge().Clear(r.Context(), req.SessionID, clearHistory); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
