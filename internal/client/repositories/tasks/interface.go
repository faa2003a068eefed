// Package tasks persists the pending upload queue so that unsent writes
// survive a restart.
package tasks

import (
	"context"

	"github.com/dmitrijs2005/liusync/internal/client/models"
)

// Repository keeps at most one task per target id.
type Repository interface {
	// Upsert stores t, replacing any task for the same target.
	Upsert(ctx context.Context, t *models.UploadTask) error
	// DeleteTask removes the task for targetID only if it is still taskID,
	// so a newer replacement is never dropped by a late acknowledgement.
	DeleteTask(ctx context.Context, targetID, taskID string) error
	Delete(ctx context.Context, targetID string) error
	// List returns every pending task in insertion order.
	List(ctx context.Context) ([]*models.UploadTask, error)
}
