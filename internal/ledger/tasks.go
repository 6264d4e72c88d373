package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateTask inserts a new pending task and returns its id.
// The wave must be non-negative and declared dependencies must already
// exist in the ledger; use CreateBatch to insert interdependent tasks
// together.
func (s *Store) CreateTask(ctx context.Context, sessionID string, spec Spec) (string, error) {
	ids, err := s.CreateBatch(ctx, sessionID, []Spec{spec})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// CreateBatch inserts all specs in one transaction (all-or-nothing).
// Tasks are inserted before dependency edges, so specs within the batch
// may depend on each other in any order.
func (s *Store) CreateBatch(ctx context.Context, sessionID string, specs []Spec) ([]string, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	ids := make([]string, len(specs))
	for i, spec := range specs {
		if spec.Wave < 0 {
			return nil, fmt.Errorf("task wave must be non-negative, got %d", spec.Wave)
		}
		if spec.ID == "" {
			ids[i] = uuid.NewString()
		} else {
			ids[i] = spec.ID
		}
	}

	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, spec := range specs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (id, session_id, description, category, priority, wave, status, result, retry_count, files_owned)
			VALUES (?, ?, ?, ?, ?, ?, ?, '', 0, ?)
		`, ids[i], sessionID, spec.Description, spec.Category, spec.Priority, spec.Wave, StatusPending, strings.Join(spec.FilesOwned, ","))
		if err != nil {
			return nil, fmt.Errorf("failed to insert task %s: %w", ids[i], err)
		}
	}

	for i, spec := range specs {
		for _, depID := range spec.DependsOn {
			if depID == ids[i] {
				return nil, fmt.Errorf("task %s depends on itself", ids[i])
			}

			// Check the dependency exists (enforces the foreign key with a
			// clearer error than the driver's)
			var exists int
			err = tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, depID).Scan(&exists)
			if err == sql.ErrNoRows {
				return nil, fmt.Errorf("task %s depends on non-existent task %s", ids[i], depID)
			}
			if err != nil {
				return nil, fmt.Errorf("failed to check dependency existence: %w", err)
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO task_dependencies (task_id, depends_on_id)
				VALUES (?, ?)
			`, ids[i], depID)
			if err != nil {
				return nil, fmt.Errorf("failed to insert dependency %s -> %s: %w", ids[i], depID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return ids, nil
}

// Claim atomically transitions a pending task to claimed, recording the
// worker id and lease start. Returns false (no error) if the task was not
// pending at the time of the attempt -- the expected outcome for the losing
// side of a race.
func (s *Store) Claim(ctx context.Context, taskID, workerID string) (bool, error) {
	now := time.Now().UTC().UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, claimed_by = ?, claimed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, StatusClaimed, workerID, now, taskID, StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim task: %w", err)
	}
	return oneRowAffected(res)
}

// Complete transitions a claimed task to completed, recording the result
// and completion time. Returns false if the task was not claimed.
func (s *Store) Complete(ctx context.Context, taskID, result string) (bool, error) {
	return s.finish(ctx, taskID, StatusCompleted, result)
}

// Fail transitions a claimed task to failed, preserving the error text in
// the result field. Returns false if the task was not claimed.
func (s *Store) Fail(ctx context.Context, taskID, result string) (bool, error) {
	return s.finish(ctx, taskID, StatusFailed, result)
}

func (s *Store) finish(ctx context.Context, taskID string, status Status, result string) (bool, error) {
	now := time.Now().UTC().UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, result = ?, completed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, status, result, now, taskID, StatusClaimed)
	if err != nil {
		return false, fmt.Errorf("failed to finish task: %w", err)
	}
	return oneRowAffected(res)
}

// FailPending transitions a pending task directly to failed. Used only for
// dependency propagation: the task was never claimed but can never run
// because a prerequisite failed or its dependencies form a cycle.
func (s *Store) FailPending(ctx context.Context, taskID, result string) (bool, error) {
	now := time.Now().UTC().UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, result = ?, completed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, StatusFailed, result, now, taskID, StatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to fail pending task: %w", err)
	}
	return oneRowAffected(res)
}

// Retry returns a claimed or failed task to pending for another attempt,
// clearing the lease and incrementing the retry count.
func (s *Store) Retry(ctx context.Context, taskID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, claimed_by = NULL, claimed_at = NULL, completed_at = NULL,
			retry_count = retry_count + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN (?, ?)
	`, StatusPending, taskID, StatusClaimed, StatusFailed)
	if err != nil {
		return false, fmt.Errorf("failed to retry task: %w", err)
	}
	return oneRowAffected(res)
}

// Defer returns a claimed-but-not-dispatched task to pending without
// incrementing the retry count. Used when no worker capacity exists.
func (s *Store) Defer(ctx context.Context, taskID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, claimed_by = NULL, claimed_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, StatusPending, taskID, StatusClaimed)
	if err != nil {
		return false, fmt.Errorf("failed to defer task: %w", err)
	}
	return oneRowAffected(res)
}

// ExpireStaleLeases bulk-resets every claimed task whose lease started
// before now-maxAge back to pending, clearing the claim fields. This is
// the sole recovery path for crashed or hung workers; there is no
// heartbeat, a lease simply times out. Returns the number of reclaimed
// tasks.
func (s *Store) ExpireStaleLeases(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge).UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, claimed_by = NULL, claimed_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE status = ? AND claimed_at < ?
	`, StatusPending, StatusClaimed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale leases: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

func oneRowAffected(res sql.Result) (bool, error) {
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}
