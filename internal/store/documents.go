package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/docuchat/docuchat/internal/domain"
)

// InsertDocument records a document's metadata.
func (s *Store) InsertDocument(ctx context.Context, doc domain.Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, session_id, filename, size_bytes, pages, chunk_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.SessionID, doc.Filename, doc.SizeBytes, doc.Pages, doc.ChunkCount, encodeTime(doc.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// DocumentByID returns the document or ErrDocumentNotFound.
func (s *Store) DocumentByID(ctx context.Context, id string) (domain.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, filename, size_bytes, pages, chunk_count, created_at
		 FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// DocumentsBySession returns the session's documents in ingestion order.
func (s *Store) DocumentsBySession(ctx context.Context, sessionID string) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, filename, size_bytes, pages, chunk_count, created_at
		 FROM documents WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var doc domain.Document
		var created string
		if err := rows.Scan(&doc.ID, &doc.SessionID, &doc.Filename, &doc.SizeBytes,
			&doc.Pages, &doc.ChunkCount, &created); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.CreatedAt = decodeTime(created)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// FindDocument looks up a document in the session by filename and size.
// Used for the duplicate-upload check; returns ErrDocumentNotFound when
// no such document exists.
func (s *Store) FindDocument(ctx context.Context, sessionID, filename string, sizeBytes int64) (domain.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, filename, size_bytes, pages, chunk_count, created_at
		 FROM documents WHERE session_id = ? AND filename = ? AND size_bytes = ?
		 ORDER BY created_at LIMIT 1`, sessionID, filename, sizeBytes)
	return scanDocument(row)
}

// DeleteDocument removes a document's metadata record.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if affected == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// DeleteDocumentsBySession removes all document records in the session.
func (s *Store) DeleteDocumentsBySession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session documents: %w", err)
	}
	return nil
}

func scanDocument(row *sql.Row) (domain.Document, error) {
	var doc domain.Document
	var created string
	err := row.Scan(&doc.ID, &doc.SessionID, &doc.Filename, &doc.SizeBytes,
		&doc.Pages, &doc.ChunkCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("scan document: %w", err)
	}
	doc.CreatedAt = decodeTime(created)
	return doc, nil
}
