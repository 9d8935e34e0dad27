package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/docuchat/docuchat/internal/domain"
)

// InsertChunks records a document's chunks, embeddings included, in one
// transaction. Either every chunk lands or none does.
func (s *Store) InsertChunks(ctx context.Context, sessionID string, chunks []domain.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert chunks: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, document_id, session_id, ordinal, page, text, start_offset, end_offset, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert chunks: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, sessionID,
			c.Ordinal, c.Page, c.Text, c.StartOffset, c.EndOffset, encodeVector(c.Embedding)); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// AllChunks returns every persisted chunk grouped by session, ordered by
// document then ordinal within each session. Used to rebuild a volatile
// vector index at startup.
func (s *Store) AllChunks(ctx context.Context) (map[string][]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, session_id, ordinal, page, text, start_offset, end_offset, embedding
		 FROM chunks ORDER BY session_id, document_id, ordinal`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	byScope := make(map[string][]domain.Chunk)
	for rows.Next() {
		var c domain.Chunk
		var sessionID string
		var embedding []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &sessionID, &c.Ordinal, &c.Page,
			&c.Text, &c.StartOffset, &c.EndOffset, &embedding); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Embedding = decodeVector(embedding)
		byScope[sessionID] = append(byScope[sessionID], c)
	}
	return byScope, rows.Err()
}

// DeleteChunksByDocument removes the document's chunk rows.
func (s *Store) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete document chunks: %w", err)
	}
	return nil
}

// DeleteChunksBySession removes all chunk rows in the session.
func (s *Store) DeleteChunksBySession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session chunks: %w", err)
	}
	return nil
}

// encodeVector packs a float32 vector into a little-endian blob.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec
}
