package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const taskColumns = `id, session_id, description, category, priority, wave, status,
	COALESCE(claimed_by, ''), claimed_at, completed_at, COALESCE(result, ''), retry_count, COALESCE(files_owned, '')`

// Get retrieves a task by id, including its dependencies.
// Returns a wrapped ErrTaskNotFound if no such task exists.
func (s *Store) Get(ctx context.Context, taskID string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = ?
	`, taskID)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}

	if err := s.loadDependencies(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// ListBySession returns all tasks for a session ordered by wave ascending,
// then priority descending.
func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]*Task, error) {
	return s.list(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE session_id = ?
		ORDER BY wave ASC, priority DESC, id ASC
	`, sessionID)
}

// ListPending returns a session's pending tasks in claim-attempt order
// (wave ascending, then priority descending).
func (s *Store) ListPending(ctx context.Context, sessionID string) ([]*Task, error) {
	return s.list(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE session_id = ? AND status = ?
		ORDER BY wave ASC, priority DESC, id ASC
	`, sessionID, StatusPending)
}

// ListPendingWave returns a session's pending tasks restricted to one wave.
func (s *Store) ListPendingWave(ctx context.Context, sessionID string, wave int) ([]*Task, error) {
	return s.list(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE session_id = ? AND status = ? AND wave = ?
		ORDER BY priority DESC, id ASC
	`, sessionID, StatusPending, wave)
}

// ListClaimed returns a session's currently claimed tasks. Used by the
// advisory file-conflict check.
func (s *Store) ListClaimed(ctx context.Context, sessionID string) ([]*Task, error) {
	return s.list(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE session_id = ? AND status = ?
		ORDER BY wave ASC, priority DESC, id ASC
	`, sessionID, StatusClaimed)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	// Dependency load is a second pass so the primary result set is closed
	// before issuing subqueries (the store allows only two connections).
	for _, task := range tasks {
		if err := s.loadDependencies(ctx, task); err != nil {
			return nil, err
		}
	}

	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	task := &Task{}
	var category sql.NullString
	var claimedAt, completedAt sql.NullInt64
	var filesOwned string

	err := row.Scan(&task.ID, &task.SessionID, &task.Description, &category, &task.Priority,
		&task.Wave, &task.Status, &task.ClaimedBy, &claimedAt, &completedAt, &task.Result,
		&task.RetryCount, &filesOwned)
	if err != nil {
		return nil, err
	}

	if category.Valid {
		task.Category = category.String
	}
	if claimedAt.Valid {
		t := time.UnixMilli(claimedAt.Int64).UTC()
		task.ClaimedAt = &t
	}
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64).UTC()
		task.CompletedAt = &t
	}
	if filesOwned != "" {
		task.FilesOwned = strings.Split(filesOwned, ",")
	}

	return task, nil
}

func (s *Store) loadDependencies(ctx context.Context, task *Task) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT depends_on_id
		FROM task_dependencies
		WHERE task_id = ?
		ORDER BY depends_on_id
	`, task.ID)
	if err != nil {
		return fmt.Errorf("failed to query dependencies for task %s: %w", task.ID, err)
	}
	defer rows.Close()

	task.DependsOn = []string{}
	for rows.Next() {
		var depID string
		if err := rows.Scan(&depID); err != nil {
			return fmt.Errorf("failed to scan dependency: %w", err)
		}
		task.DependsOn = append(task.DependsOn, depID)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating dependencies: %w", err)
	}
	return nil
}
