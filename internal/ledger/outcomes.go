package ledger

import (
	"context"
	"fmt"
)

// RoleStats summarizes recorded outcomes for one worker role. Used by the
// anti-pattern detector to warn about roles that keep failing.
type RoleStats struct {
	Role         string
	FailureCount int
	SuccessCount int
	LastError    string
}

// RecordOutcome appends an execution outcome for later anti-pattern
// analysis. Outcomes are append-only telemetry, never consulted by the
// scheduling path.
func (s *Store) RecordOutcome(ctx context.Context, sessionID, taskID, role string, success bool, errText string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_outcomes (session_id, task_id, role, success, error)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, taskID, role, success, errText)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// StatsByRole returns aggregate outcome counts for a role, with the most
// recent error text.
func (s *Store) StatsByRole(ctx context.Context, role string) (*RoleStats, error) {
	stats := &RoleStats{Role: role}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN success = 0 THEN 1 END),
			COUNT(CASE WHEN success = 1 THEN 1 END),
			COALESCE((
				SELECT error FROM task_outcomes
				WHERE role = ? AND success = 0
				ORDER BY id DESC LIMIT 1
			), '')
		FROM task_outcomes
		WHERE role = ?
	`, role, role).Scan(&stats.FailureCount, &stats.SuccessCount, &stats.LastError)
	if err != nil {
		return nil, fmt.Errorf("failed to query role stats: %w", err)
	}

	return stats, nil
}
