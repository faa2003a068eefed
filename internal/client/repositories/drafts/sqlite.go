package drafts

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

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Draft, error) {
	var (
		d       models.Draft
		payload []byte
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, space_id, o_state, edited_stamp, synced_stamp, payload FROM drafts WHERE id = ?`, id).
		Scan(&d.ID, &d.SpaceID, &d.OState, &d.EditedStamp, &d.SyncedStamp, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft[%s]: %w", id, err)
	}
	if len(payload) > 0 {
		d.Payload = payload
	}
	return &d, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, d *models.Draft) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO drafts (id, space_id, o_state, edited_stamp, synced_stamp, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			space_id = excluded.space_id,
			o_state = excluded.o_state,
			edited_stamp = excluded.edited_stamp,
			synced_stamp = excluded.synced_stamp,
			payload = excluded.payload
	`, d.ID, d.SpaceID, d.OState, d.EditedStamp, d.SyncedStamp, []byte(d.Payload))
	if err != nil {
		return fmt.Errorf("failed to upsert draft[%s]: %w", d.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete draft[%s]: %w", id, err)
	}
	return nil
}
