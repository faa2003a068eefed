// Package statemachine holds the pure transition rules for the oState and
// storageState of content items and drafts, and the upload task each
// transition owes the server.
package statemachine

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/liusync/internal/client/models"
)

var (
	ErrTerminalState        = errors.New("state is terminal")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrConfirmationRequired = errors.New("permanent delete requires confirmation")
)

type Entity int

const (
	Content Entity = iota
	Draft
)

// EventKind is a user intent or a sync milestone.
type EventKind int

const (
	EnableSync EventKind = iota
	DisableSync
	UploadAcked
	Edit
	ChangeState
	UndoChangeState
	Remove
	Restore
	Purge
	Posted
	Discard
)

var eventNames = [...]string{
	EnableSync:      "enable-sync",
	DisableSync:     "disable-sync",
	UploadAcked:     "upload-acked",
	Edit:            "edit",
	ChangeState:     "change-state",
	UndoChangeState: "undo-change-state",
	Remove:          "remove",
	Restore:         "restore",
	Purge:           "purge",
	Posted:          "posted",
	Discard:         "discard",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", int(k))
}

type Event struct {
	Kind EventKind
	// Confirmed must be set for Purge.
	Confirmed bool
}

// State is what the machine needs to know about an item.
type State struct {
	Entity       Entity
	OState       models.OState
	StorageState models.StorageState
	EverSynced   bool
}

// TaskSpec describes the upload owed by a transition. The caller supplies
// target id and operate stamp when queueing it.
type TaskSpec struct {
	Kind  models.OperationKind
	Speed models.Speed
}

type Result struct {
	State State
	// Task is nil when the transition only touches local bookkeeping.
	Task *TaskSpec
	// CancelPending asks the caller to drop any queued task for the item.
	CancelPending bool
}

func task(kind models.OperationKind) *TaskSpec {
	return &TaskSpec{Kind: kind}
}

func instant(kind models.OperationKind) *TaskSpec {
	return &TaskSpec{Kind: kind, Speed: models.SpeedInstant}
}

// Transition applies ev to cur. It never mutates its input.
func Transition(cur State, ev Event) (Result, error) {
	if cur.OState == models.OStateDeleted || cur.OState == models.OStatePosted {
		return Result{State: cur}, fmt.Errorf("%w: %s", ErrTerminalState, cur.OState)
	}
	switch cur.Entity {
	case Content:
		return contentTransition(cur, ev)
	case Draft:
		return draftTransition(cur, ev)
	default:
		return Result{State: cur}, fmt.Errorf("%w: unknown entity", ErrInvalidTransition)
	}
}

func invalid(cur State, ev Event) (Result, error) {
	return Result{State: cur}, fmt.Errorf("%w: %s on %s/%s", ErrInvalidTransition, ev.Kind, cur.OState, cur.StorageState)
}

func contentTransition(cur State, ev Event) (Result, error) {
	next := cur
	local := cur.StorageState.IsLocal()

	switch ev.Kind {
	case EnableSync:
		switch cur.StorageState {
		case models.StorageLocal, models.StorageOnlyLocal:
			next.StorageState = models.StorageWaitUpload
			return Result{State: next, Task: task(models.OpThreadPost)}, nil
		}

	case DisableSync:
		switch cur.StorageState {
		case models.StorageCloud:
			next.StorageState = models.StorageOnlyLocal
			if cur.EverSynced {
				return Result{State: next, Task: task(models.OpThreadOnlyLocal)}, nil
			}
			return Result{State: next}, nil
		case models.StorageWaitUpload:
			if cur.EverSynced {
				// the server already holds a copy that must be withdrawn
				next.StorageState = models.StorageOnlyLocal
				return Result{State: next, Task: task(models.OpThreadOnlyLocal)}, nil
			}
			next.StorageState = models.StorageLocal
			return Result{State: next, CancelPending: true}, nil
		}

	case UploadAcked:
		if cur.StorageState == models.StorageWaitUpload {
			next.StorageState = models.StorageCloud
			next.EverSynced = true
			return Result{State: next}, nil
		}
		if cur.StorageState == models.StorageCloud {
			next.EverSynced = true
			return Result{State: next}, nil
		}

	case Edit:
		switch cur.StorageState {
		case models.StorageLocal, models.StorageOnlyLocal:
			return Result{State: next}, nil
		case models.StorageWaitUpload:
			return Result{State: next, Task: task(models.OpThreadPost)}, nil
		case models.StorageCloud:
			return Result{State: next, Task: task(models.OpThreadEdit)}, nil
		}

	case ChangeState, UndoChangeState:
		if cur.OState != models.OStateOK {
			break
		}
		if local {
			return Result{State: next}, nil
		}
		if ev.Kind == UndoChangeState {
			return Result{State: next, Task: task(models.OpUndoThreadState)}, nil
		}
		return Result{State: next, Task: task(models.OpThreadState)}, nil

	case Remove:
		if cur.OState == models.OStateOK {
			next.OState = models.OStateRemoved
			return Result{State: next, Task: syncedTask(local, models.OpThreadDelete)}, nil
		}

	case Restore:
		if cur.OState == models.OStateRemoved {
			next.OState = models.OStateOK
			return Result{State: next, Task: syncedTask(local, models.OpThreadRestore)}, nil
		}

	case Purge:
		if cur.OState == models.OStateRemoved {
			if !ev.Confirmed {
				return Result{State: cur}, ErrConfirmationRequired
			}
			next.OState = models.OStateDeleted
			res := Result{State: next, Task: syncedTask(local, models.OpThreadPurge)}
			if local {
				res.CancelPending = true
			}
			return res, nil
		}
	}
	return invalid(cur, ev)
}

func syncedTask(local bool, kind models.OperationKind) *TaskSpec {
	if local {
		return nil
	}
	return task(kind)
}

func draftTransition(cur State, ev Event) (Result, error) {
	next := cur

	switch ev.Kind {
	case Edit:
		switch cur.OState {
		case models.OStateOK:
			return Result{State: next, Task: instant(models.OpDraftSet)}, nil
		case models.OStateLocal:
			return Result{State: next}, nil
		}

	case DisableSync:
		if cur.OState == models.OStateOK {
			next.OState = models.OStateLocal
			if cur.EverSynced {
				return Result{State: next, Task: instant(models.OpDraftClear)}, nil
			}
			return Result{State: next, CancelPending: true}, nil
		}

	case EnableSync:
		if cur.OState == models.OStateLocal {
			next.OState = models.OStateOK
			return Result{State: next, Task: instant(models.OpDraftSet)}, nil
		}

	case UploadAcked:
		if cur.OState == models.OStateOK {
			next.EverSynced = true
			return Result{State: next}, nil
		}

	case Posted:
		if cur.OState == models.OStateOK || cur.OState == models.OStateLocal {
			return finishDraft(cur, models.OStatePosted), nil
		}

	case Discard:
		if cur.OState == models.OStateOK || cur.OState == models.OStateLocal {
			return finishDraft(cur, models.OStateDeleted), nil
		}
	}
	return invalid(cur, ev)
}

// finishDraft moves a draft to a terminal state. The server copy is cleared
// only if it ever received one.
func finishDraft(cur State, to models.OState) Result {
	next := cur
	next.OState = to
	if cur.EverSynced && cur.OState == models.OStateOK {
		return Result{State: next, Task: instant(models.OpDraftClear)}
	}
	return Result{State: next, CancelPending: true}
}
