// Package models defines the client-side records the sync engine reads and
// writes. Only the fields needed for sync bookkeeping are modelled; the
// user's content travels as an opaque Payload.
package models

import "encoding/json"

// OState is the lifecycle tag of a content item or draft.
type OState string

const (
	OStateOK      OState = "OK"
	OStateRemoved OState = "REMOVED"
	OStateDeleted OState = "DELETED"
	OStatePosted  OState = "POSTED"
	OStateLocal   OState = "LOCAL"
)

// StorageState says where a content item lives.
type StorageState string

const (
	StorageLocal      StorageState = "LOCAL"
	StorageWaitUpload StorageState = "WAIT_UPLOAD"
	StorageCloud      StorageState = "CLOUD"
	StorageOnlyLocal  StorageState = "ONLY_LOCAL"
)

// IsLocal reports whether items in this state must stay off the wire.
func (s StorageState) IsLocal() bool {
	return s == StorageLocal || s == StorageOnlyLocal
}

// ContentItem is a note or task as stored on the device.
type ContentItem struct {
	ID      string `json:"_id"`
	FirstID string `json:"first_id"`
	SpaceID string `json:"spaceId,omitempty"`

	OState       OState       `json:"oState"`
	StorageState StorageState `json:"storageState"`

	// StateID is the kanban column the item belongs to; empty means none.
	StateID string `json:"stateId,omitempty"`
	// StateStamp orders items inside a column, larger first. Nil until the
	// item is first placed.
	StateStamp *int64 `json:"stateStamp,omitempty"`

	EditedStamp   int64 `json:"editedStamp"`
	InsertedStamp int64 `json:"insertedStamp"`
	UpdatedStamp  int64 `json:"updatedStamp"`

	// SyncedStamp is the operateStamp of the last acknowledged upload, 0 if
	// the item never reached the server.
	SyncedStamp int64 `json:"-"`

	Payload json.RawMessage `json:"payload,omitempty"`
}

// EverSynced reports whether the server has acknowledged at least one upload.
func (c *ContentItem) EverSynced() bool {
	return c.SyncedStamp > 0
}

// Draft is an in-progress edit. It is not linked to the content it turns into.
type Draft struct {
	ID          string          `json:"_id"`
	SpaceID     string          `json:"spaceId,omitempty"`
	OState      OState          `json:"oState"`
	EditedStamp int64           `json:"editedStamp"`
	SyncedStamp int64           `json:"-"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

func (d *Draft) EverSynced() bool {
	return d.SyncedStamp > 0
}
