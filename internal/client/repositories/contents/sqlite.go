package contents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/liusync/internal/client/models"
	"github.com/dmitrijs2005/liusync/internal/common"
	"github.com/dmitrijs2005/liusync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `id, first_id, space_id, o_state, storage_state, state_id, state_stamp,
	edited_stamp, inserted_stamp, updated_stamp, synced_stamp, payload`

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*models.ContentItem, error) {
	var (
		it      models.ContentItem
		stamp   sql.NullInt64
		payload []byte
	)
	err := s.Scan(&it.ID, &it.FirstID, &it.SpaceID, &it.OState, &it.StorageState, &it.StateID, &stamp,
		&it.EditedStamp, &it.InsertedStamp, &it.UpdatedStamp, &it.SyncedStamp, &payload)
	if err != nil {
		return nil, err
	}
	if stamp.Valid {
		v := stamp.Int64
		it.StateStamp = &v
	}
	if len(payload) > 0 {
		it.Payload = payload
	}
	return &it, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.ContentItem, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM contents WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content[%s]: %w", id, err)
	}
	return it, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, it *models.ContentItem) error {
	var stamp sql.NullInt64
	if it.StateStamp != nil {
		stamp = sql.NullInt64{Int64: *it.StateStamp, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contents (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_id = excluded.first_id,
			space_id = excluded.space_id,
			o_state = excluded.o_state,
			storage_state = excluded.storage_state,
			state_id = excluded.state_id,
			state_stamp = excluded.state_stamp,
			edited_stamp = excluded.edited_stamp,
			inserted_stamp = excluded.inserted_stamp,
			updated_stamp = excluded.updated_stamp,
			synced_stamp = excluded.synced_stamp,
			payload = excluded.payload
	`, it.ID, it.FirstID, it.SpaceID, it.OState, it.StorageState, it.StateID, stamp,
		it.EditedStamp, it.InsertedStamp, it.UpdatedStamp, it.SyncedStamp, []byte(it.Payload))
	if err != nil {
		return fmt.Errorf("failed to upsert content[%s]: %w", it.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM contents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete content[%s]: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) ListByState(ctx context.Context, spaceID, stateID string, limit int) ([]*models.ContentItem, error) {
	query := `SELECT ` + selectColumns + ` FROM contents
		WHERE space_id = ? AND state_id = ? AND o_state = ?
		ORDER BY state_stamp IS NULL, state_stamp DESC, inserted_stamp DESC`
	args := []any{spaceID, stateID, models.OStateOK}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contents of %q/%q: %w", spaceID, stateID, err)
	}
	defer rows.Close()

	var out []*models.ContentItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content row: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate content rows: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) SetStateStamp(ctx context.Context, id, stateID string, stamp, updatedStamp int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE contents SET state_id = ?, state_stamp = ?, updated_stamp = ? WHERE id = ?`,
		stateID, stamp, updatedStamp, id)
	if err != nil {
		return fmt.Errorf("failed to set stamp of content[%s]: %w", id, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrorNotFound
	}
	return nil
}
