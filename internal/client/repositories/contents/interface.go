// Package contents persists content items on the device.
package contents

import (
	"context"

	"github.com/dmitrijs2005/liusync/internal/client/models"
)

// Repository is the on-device content store. Get returns
// common.ErrorNotFound for unknown ids.
type Repository interface {
	Get(ctx context.Context, id string) (*models.ContentItem, error)
	Put(ctx context.Context, item *models.ContentItem) error
	Delete(ctx context.Context, id string) error

	// ListByState returns live (oState OK) items of one column of a space
	// ordered by stateStamp descending. Items without a stamp come last.
	// limit <= 0 means no limit.
	ListByState(ctx context.Context, spaceID, stateID string, limit int) ([]*models.ContentItem, error)

	// SetStateStamp moves an item to stateID with the given stamp.
	SetStateStamp(ctx context.Context, id, stateID string, stamp, updatedStamp int64) error
}
