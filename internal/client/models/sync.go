package models

import "encoding/json"

// AtomType names a read request kind.
type AtomType string

const (
	AtomThreadList    AtomType = "thread_list"
	AtomContentList   AtomType = "content_list"
	AtomThreadData    AtomType = "thread_data"
	AtomCheckContents AtomType = "check_contents"
)

// SyncAtom is one logical read bundled into a sync-get call.
type SyncAtom struct {
	TaskID   string   `json:"taskId"`
	TaskType AtomType `json:"taskType"`
	SpaceID  string   `json:"spaceId,omitempty"`
	ViewType string   `json:"viewType,omitempty"`
	StateID  string   `json:"stateId,omitempty"`
	ThreadID string   `json:"threadId,omitempty"`
	IDs      []string `json:"ids,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

// SetAtom is one upload task as sent in a sync-set call, carrying the
// current local record of its target.
type SetAtom struct {
	TaskID       string        `json:"taskId"`
	TaskType     OperationKind `json:"taskType"`
	TargetID     string        `json:"target_id"`
	OperateStamp int64         `json:"operateStamp"`
	Thread       *ContentItem  `json:"thread,omitempty"`
	Draft        *Draft        `json:"draft,omitempty"`
}

// Parcel statuses.
const (
	ParcelHasData  = "has_data"
	ParcelNotFound = "not_found"
	ParcelNoAuth   = "no_auth"
)

// Parcel types.
const (
	ParcelContent = "content"
	ParcelDraft   = "draft"
)

// DownloadParcel is one unit of data returned for an atom.
type DownloadParcel struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	ParcelType string          `json:"parcelType"`
	Content    json.RawMessage `json:"content,omitempty"`
}

// AtomResult is the per-atom entry of a sync response. Partial failure is
// expressed per atom through Code.
type AtomResult struct {
	Code    string           `json:"code"`
	TaskID  string           `json:"taskId"`
	ErrMsg  string           `json:"errMsg,omitempty"`
	List    []DownloadParcel `json:"list,omitempty"`
	FirstID string           `json:"first_id,omitempty"`
}

// SyncResponse is the decrypted data of a sync-get or sync-set call.
type SyncResponse struct {
	Results []AtomResult `json:"results"`
}
