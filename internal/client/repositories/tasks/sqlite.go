package tasks

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/liusync/internal/client/models"
	"github.com/dmitrijs2005/liusync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, t *models.UploadTask) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO upload_tasks (target_id, task_id, kind, operate_stamp, speed, attempts, next_attempt_at, inserted_stamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(target_id) DO UPDATE SET
			task_id = excluded.task_id,
			kind = excluded.kind,
			operate_stamp = excluded.operate_stamp,
			speed = excluded.speed,
			attempts = excluded.attempts,
			next_attempt_at = excluded.next_attempt_at
	`, t.TargetID, t.TaskID, t.Kind, t.OperateStamp, t.Speed, t.Attempts, t.NextAttemptAt, t.InsertedStamp)
	if err != nil {
		return fmt.Errorf("failed to upsert task for %s: %w", t.TargetID, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteTask(ctx context.Context, targetID, taskID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM upload_tasks WHERE target_id = ? AND task_id = ?`, targetID, taskID)
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", taskID, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, targetID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM upload_tasks WHERE target_id = ?`, targetID); err != nil {
		return fmt.Errorf("failed to delete task for %s: %w", targetID, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.UploadTask, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT target_id, task_id, kind, operate_stamp, speed, attempts, next_attempt_at, inserted_stamp
		FROM upload_tasks ORDER BY inserted_stamp, task_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []*models.UploadTask
	for rows.Next() {
		var t models.UploadTask
		if err := rows.Scan(&t.TargetID, &t.TaskID, &t.Kind, &t.OperateStamp, &t.Speed,
			&t.Attempts, &t.NextAttemptAt, &t.InsertedStamp); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}
	return out, nil
}
