package db

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"
)

const maxReasonLen = 512

// RefreshEvent is one row of the refresh audit log.
type RefreshEvent struct {
	ID        int64     `json:"id"`
	Subject   string    `json:"subject,omitempty"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Service) ph(pos int) string {
	return GetPlaceholder(s.driver, pos)
}

// RecordRefresh appends an audit row. Long reasons are truncated.
func (s *Service) RecordRefresh(ctx context.Context, subject, outcome, reason string, at time.Time) error {
	reason = truncate(reason, maxReasonLen)
	query := fmt.Sprintf(
		"INSERT INTO refresh_audit (subject, outcome, reason, created_at) VALUES (%s, %s, %s, %s)",
		s.ph(1), s.ph(2), s.ph(3), s.ph(4),
	)
	if _, err := s.db.ExecContext(ctx, query, subject, outcome, reason, at.UTC()); err != nil {
		return fmt.Errorf("insert refresh audit: %w", err)
	}
	return nil
}

// ListRefreshEvents returns events newest first.
func (s *Service) ListRefreshEvents(ctx context.Context, limit, offset int64) ([]RefreshEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := "SELECT id, subject, outcome, reason, created_at FROM refresh_audit ORDER BY created_at DESC, id DESC " +
		GetLimitOffset(s.driver, limit, offset)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list refresh audit: %w", err)
	}
	defer rows.Close()

	var events []RefreshEvent
	for rows.Next() {
		var e RefreshEvent
		if err := rows.Scan(&e.ID, &e.Subject, &e.Outcome, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan refresh audit: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RefreshOutcomeCounts counts events per outcome since the given time.
func (s *Service) RefreshOutcomeCounts(ctx context.Context, since time.Time) (map[string]int64, error) {
	query := fmt.Sprintf("SELECT outcome, COUNT(*) FROM refresh_audit WHERE created_at >= %s GROUP BY outcome", s.ph(1))
	rows, err := s.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("count refresh audit: %w", err)
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan refresh audit count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// PruneRefreshEvents deletes events older than before.
func (s *Service) PruneRefreshEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM refresh_audit WHERE created_at < %s", s.ph(1)), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune refresh audit: %w", err)
	}
	return res.RowsAffected()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
