package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/docuchat/docuchat/internal/answer"
	"github.com/docuchat/docuchat/internal/embedding"
	"github.com/docuchat/docuchat/internal/extractor"
	"github.com/docuchat/docuchat/internal/generation"
	"github.com/docuchat/docuchat/internal/knowledge"
	"github.com/docuchat/docuchat/internal/retriever"
	"github.com/docuchat/docuchat/internal/store"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors onto HTTP statuses. Caller mistakes get
// 4xx, upstream model failures get 502/504, everything else is a 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, extractor.ErrUnsupportedFormat),
		errors.Is(err, extractor.ErrCorruptDocument),
		errors.Is(err, extractor.ErrEmptyDocument),
		errors.Is(err, retriever.ErrEmptyQuestion):
		status = http.StatusBadRequest
	case errors.Is(err, knowledge.ErrDocumentTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, knowledge.ErrDuplicateDocument),
		errors.Is(err, retriever.ErrNoDocuments):
		status = http.StatusConflict
	case errors.Is(err, store.ErrSessionNotFound),
		errors.Is(err, store.ErrDocumentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, embedding.ErrEmbeddingService),
		errors.Is(err, generation.ErrGenerationService),
		errors.Is(err, answer.ErrEmptyGeneration):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
