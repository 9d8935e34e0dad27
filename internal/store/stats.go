package store

import (
	"context"
	"fmt"
)

// Stats is a point-in-time count of persisted records.
type Stats struct {
	Sessions  int
	Documents int
	Messages  int
}

// CountAll returns record counts across all sessions.
func (s *Store) CountAll(ctx context.Context) (Stats, error) {
	var st Stats
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM sessions),
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM messages)`)
	if err := row.Scan(&st.Sessions, &st.Documents, &st.Messages); err != nil {
		return Stats{}, fmt.Errorf("count records: %w", err)
	}
	return st, nil
}
