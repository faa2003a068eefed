// Package drafts persists in-progress edits on the device.
package drafts

import (
	"context"

	"github.com/dmitrijs2005/liusync/internal/client/models"
)

type Repository interface {
	Get(ctx context.Context, id string) (*models.Draft, error)
	Put(ctx context.Context, d *models.Draft) error
	Delete(ctx context.Context, id string) error
}
