package models

// OperationKind is the closed set of entity×verb uploads the server accepts.
type OperationKind string

const (
	OpThreadPost      OperationKind = "thread-post"
	OpThreadEdit      OperationKind = "thread-edit"
	OpThreadState     OperationKind = "thread-state"
	OpUndoThreadState OperationKind = "undo_thread-state"
	OpThreadDelete    OperationKind = "thread-delete"
	OpThreadRestore   OperationKind = "thread-restore"
	OpThreadPurge     OperationKind = "thread-purge"
	OpThreadOnlyLocal OperationKind = "thread-only_local"
	OpDraftSet        OperationKind = "draft-set"
	OpDraftClear      OperationKind = "draft-clear"
)

var knownKinds = map[OperationKind]struct{}{
	OpThreadPost: {}, OpThreadEdit: {}, OpThreadState: {}, OpUndoThreadState: {},
	OpThreadDelete: {}, OpThreadRestore: {}, OpThreadPurge: {}, OpThreadOnlyLocal: {},
	OpDraftSet: {}, OpDraftClear: {},
}

// Valid reports whether k belongs to the closed set.
func (k OperationKind) Valid() bool {
	_, ok := knownKinds[k]
	return ok
}

// IsDraft reports whether the task targets a draft rather than a content item.
func (k OperationKind) IsDraft() bool {
	return k == OpDraftSet || k == OpDraftClear
}

// Speed selects the dispatch policy of an upload task.
type Speed string

const (
	SpeedNormal  Speed = ""
	SpeedInstant Speed = "instant"
)

// UploadTask is one pending write. At most one exists per TargetID.
type UploadTask struct {
	TaskID       string        `json:"taskId"`
	Kind         OperationKind `json:"uploadTask"`
	TargetID     string        `json:"target_id"`
	OperateStamp int64         `json:"operateStamp"`
	Speed        Speed         `json:"speed,omitempty"`

	Attempts      int   `json:"-"`
	NextAttemptAt int64 `json:"-"`
	InsertedStamp int64 `json:"-"`
}
