package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Checkpoint is a point-in-time session summary persisted for resumption.
type Checkpoint struct {
	SessionID string
	Summary   string
	OpenFiles []string
	NextSteps string
	CreatedAt time.Time
}

// SaveCheckpoint appends a checkpoint record for a session.
func (s *Store) SaveCheckpoint(ctx context.Context, sessionID, summary string, openFiles []string, nextSteps string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (session_id, summary, open_files, next_steps)
		VALUES (?, ?, ?, ?)
	`, sessionID, summary, strings.Join(openFiles, ","), nextSteps)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// LatestCheckpoint returns the most recent checkpoint for a session, or
// nil if none has been saved.
func (s *Store) LatestCheckpoint(ctx context.Context, sessionID string) (*Checkpoint, error) {
	var cp Checkpoint
	var openFiles string
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, summary, COALESCE(open_files, ''), COALESCE(next_steps, ''), created_at
		FROM checkpoints
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT 1
	`, sessionID).Scan(&cp.SessionID, &cp.Summary, &openFiles, &cp.NextSteps, &cp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoint: %w", err)
	}

	if openFiles != "" {
		cp.OpenFiles = strings.Split(openFiles, ",")
	}
	return &cp, nil
}
