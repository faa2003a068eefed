// Package services contains application services of the liusync client:
// content and draft editing, the kanban board and the engine that runs the
// background sync loops. Services mutate the local store first and hand the
// resulting upload to the queue.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/liusync/internal/client/models"
	"github.com/dmitrijs2005/liusync/internal/client/repositories/contents"
	"github.com/dmitrijs2005/liusync/internal/client/repositories/drafts"
	"github.com/dmitrijs2005/liusync/internal/client/statemachine"
	"github.com/dmitrijs2005/liusync/internal/client/upload"
	"github.com/dmitrijs2005/liusync/internal/clock"
	"github.com/dmitrijs2005/liusync/internal/common"
)

// Uploader is the part of the upload queue services write to.
type Uploader interface {
	AddTask(ctx context.Context, spec upload.TaskSpec, opts ...upload.AddOption) (*models.UploadTask, error)
	Cancel(ctx context.Context, targetID string) error
	Pending(targetID string) (*models.UploadTask, bool)
}

// dispatch hands the outcome of a transition to the queue.
func dispatch(ctx context.Context, q Uploader, targetID string, res statemachine.Result, stamp int64) error {
	if res.CancelPending {
		if err := q.Cancel(ctx, targetID); err != nil {
			return fmt.Errorf("cancel upload of %s: %w", targetID, err)
		}
	}
	if res.Task == nil {
		return nil
	}
	spec := upload.TaskSpec{Kind: res.Task.Kind, TargetID: targetID, OperateStamp: stamp}
	if _, err := q.AddTask(ctx, spec, upload.WithSpeed(res.Task.Speed)); err != nil {
		return fmt.Errorf("queue %s of %s: %w", res.Task.Kind, targetID, err)
	}
	return nil
}

func contentState(it *models.ContentItem) statemachine.State {
	return statemachine.State{
		Entity:       statemachine.Content,
		OState:       it.OState,
		StorageState: it.StorageState,
		EverSynced:   it.EverSynced(),
	}
}

func draftState(d *models.Draft) statemachine.State {
	return statemachine.State{
		Entity:     statemachine.Draft,
		OState:     d.OState,
		EverSynced: d.EverSynced(),
	}
}

// Targets resolves upload tasks against the local store. It implements
// upload.Targets.
type Targets struct {
	contents contents.Repository
	drafts   drafts.Repository
	clock    clock.Clock
}

func NewTargets(c contents.Repository, d drafts.Repository, clk clock.Clock) *Targets {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Targets{contents: c, drafts: d, clock: clk}
}

var _ upload.Targets = (*Targets)(nil)

// Allow keeps local-only data on the device. ONLY_LOCAL items may still send
// the withdrawal of their server copy.
func (t *Targets) Allow(ctx context.Context, kind models.OperationKind, targetID string) error {
	if kind.IsDraft() {
		if kind == models.OpDraftClear {
			return nil
		}
		d, err := t.drafts.Get(ctx, targetID)
		if err != nil {
			return err
		}
		if d.OState == models.OStateLocal {
			return upload.ErrLocalOnly
		}
		return nil
	}

	it, err := t.contents.Get(ctx, targetID)
	if err != nil {
		return err
	}
	switch it.StorageState {
	case models.StorageLocal:
		return upload.ErrLocalOnly
	case models.StorageOnlyLocal:
		if kind != models.OpThreadOnlyLocal {
			return upload.ErrLocalOnly
		}
	}
	return nil
}

func (t *Targets) Load(ctx context.Context, task *models.UploadTask) (models.SetAtom, error) {
	atom := models.SetAtom{
		TaskID:       task.TaskID,
		TaskType:     task.Kind,
		TargetID:     task.TargetID,
		OperateStamp: task.OperateStamp,
	}
	if task.Kind.IsDraft() {
		d, err := t.drafts.Get(ctx, task.TargetID)
		switch {
		case errors.Is(err, common.ErrorNotFound) && task.Kind == models.OpDraftClear:
			return atom, nil
		case err != nil:
			return models.SetAtom{}, err
		}
		atom.Draft = d
		return atom, nil
	}

	it, err := t.contents.Get(ctx, task.TargetID)
	if err != nil {
		return models.SetAtom{}, err
	}
	atom.Thread = it
	return atom, nil
}

// Acked records the upload on the local copy. A purged item or a finished
// draft is removed once the server confirmed it.
func (t *Targets) Acked(ctx context.Context, task *models.UploadTask, res models.AtomResult) error {
	now := t.clock.Now().UnixMilli()
	if task.Kind.IsDraft() {
		return t.draftAcked(ctx, task, now)
	}

	it, err := t.contents.Get(ctx, task.TargetID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if task.Kind == models.OpThreadPurge {
		return t.contents.Delete(ctx, it.ID)
	}

	next, err := statemachine.Transition(contentState(it), statemachine.Event{Kind: statemachine.UploadAcked})
	if err != nil {
		// ONLY_LOCAL after a withdrawal: nothing else to record
		return nil
	}
	it.StorageState = next.State.StorageState
	it.SyncedStamp = syncedAt(task, now)
	if res.FirstID != "" && it.FirstID == "" {
		it.FirstID = res.FirstID
	}
	it.UpdatedStamp = now
	return t.contents.Put(ctx, it)
}

func (t *Targets) draftAcked(ctx context.Context, task *models.UploadTask, now int64) error {
	d, err := t.drafts.Get(ctx, task.TargetID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if task.Kind == models.OpDraftClear {
		if d.OState == models.OStatePosted || d.OState == models.OStateDeleted {
			return t.drafts.Delete(ctx, d.ID)
		}
		// the server copy is gone
		d.SyncedStamp = 0
		return t.drafts.Put(ctx, d)
	}

	if _, err := statemachine.Transition(draftState(d), statemachine.Event{Kind: statemachine.UploadAcked}); err != nil {
		return nil
	}
	d.SyncedStamp = syncedAt(task, now)
	return t.drafts.Put(ctx, d)
}

// syncedAt is the stamp recorded for an acknowledged upload.
func syncedAt(task *models.UploadTask, now int64) int64 {
	if task.OperateStamp > 0 {
		return task.OperateStamp
	}
	return now
}
