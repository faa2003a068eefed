package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/liusync/internal/client/merger"
	"github.com/dmitrijs2005/liusync/internal/client/models"
	"github.com/dmitrijs2005/liusync/internal/client/ordering"
	"github.com/dmitrijs2005/liusync/internal/client/repositories/contents"
	"github.com/dmitrijs2005/liusync/internal/client/statemachine"
	"github.com/dmitrijs2005/liusync/internal/clock"
	"github.com/dmitrijs2005/liusync/internal/common"
	"github.com/dmitrijs2005/liusync/internal/dbx"
	"github.com/dmitrijs2005/liusync/internal/logging"
)

const (
	ViewKanban = "kanban"

	// columnStackNum lets every column of a board share one sync-get call.
	columnStackNum = 5
)

// Requester is the read side of the merge router.
type Requester interface {
	Request(ctx context.Context, atom models.SyncAtom, opts ...merger.Option) ([]models.DownloadParcel, bool, error)
}

// BoardService keeps kanban columns in step with the server and records
// manual reordering.
type BoardService interface {
	LoadColumns(ctx context.Context, spaceID string, stateIDs []string) (map[string][]*models.ContentItem, error)
	MoveItem(ctx context.Context, id, toStateID string, toIndex int) ([]ordering.Update, error)
}

type BoardConfig struct {
	DB        *sql.DB
	Contents  contents.Repository
	Router    Requester
	Queue     Uploader
	Clock     clock.Clock
	Logger    logging.Logger
	PageLimit int
}

type boardService struct {
	db        *sql.DB
	repo      contents.Repository
	router    Requester
	queue     Uploader
	clock     clock.Clock
	logger    logging.Logger
	pageLimit int

	// merges of concurrent column loads must not interleave
	mergeMu sync.Mutex
}

func NewBoardService(cfg BoardConfig) BoardService {
	b := &boardService{
		db:        cfg.DB,
		repo:      cfg.Contents,
		router:    cfg.Router,
		queue:     cfg.Queue,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		pageLimit: cfg.PageLimit,
	}
	if b.repo == nil && b.db != nil {
		b.repo = contents.NewSQLiteRepository(b.db)
	}
	if b.clock == nil {
		b.clock = clock.Real{}
	}
	if b.logger == nil {
		b.logger = logging.NewDiscardLogger()
	}
	return b
}

// LoadColumns pulls every column through one batched request, merges what
// came back and then verifies local items the server did not mention. Those
// are never deleted on absence alone: only a check_contents parcel saying the
// item was removed or deleted changes them. The returned columns are read
// from the local store, so an unreachable server still yields local data.
func (b *boardService) LoadColumns(ctx context.Context, spaceID string, stateIDs []string) (map[string][]*models.ContentItem, error) {
	if len(stateIDs) == 0 {
		return nil, ErrNoColumns
	}

	type column struct {
		parcels []models.DownloadParcel
		known   bool
	}
	cols := make([]column, len(stateIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, stateID := range stateIDs {
		g.Go(func() error {
			list, ok, err := b.router.Request(gctx, models.SyncAtom{
				TaskType: models.AtomThreadList,
				SpaceID:  spaceID,
				ViewType: ViewKanban,
				StateID:  stateID,
				Limit:    b.pageLimit,
			}, merger.WithMaxStackNum(columnStackNum))
			if err != nil {
				return err
			}
			cols[i] = column{parcels: list, known: ok}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var unseen []string
	for i, stateID := range stateIDs {
		if !cols[i].known {
			b.logger.Debug(ctx, "column result unknown, keeping local copy", "state", stateID)
			continue
		}
		seen, err := b.mergeParcels(ctx, spaceID, cols[i].parcels)
		if err != nil {
			return nil, err
		}
		missing, err := b.unseenInColumn(ctx, spaceID, stateID, seen)
		if err != nil {
			return nil, err
		}
		unseen = append(unseen, missing...)
	}

	if len(unseen) > 0 {
		if err := b.verify(ctx, spaceID, unseen); err != nil {
			return nil, err
		}
	}

	out := make(map[string][]*models.ContentItem, len(stateIDs))
	for _, stateID := range stateIDs {
		items, err := b.repo.ListByState(ctx, spaceID, stateID, b.pageLimit)
		if err != nil {
			return nil, err
		}
		out[stateID] = items
	}
	return out, nil
}

// mergeParcels stores remote content that is newer than the local copy and
// returns the ids the server reported. Parcels without a space belong to
// spaceID.
func (b *boardService) mergeParcels(ctx context.Context, spaceID string, parcels []models.DownloadParcel) (map[string]struct{}, error) {
	b.mergeMu.Lock()
	defer b.mergeMu.Unlock()

	seen := make(map[string]struct{}, len(parcels))
	for _, p := range parcels {
		seen[p.ID] = struct{}{}
		if p.Status != models.ParcelHasData || p.ParcelType != models.ParcelContent || len(p.Content) == 0 {
			continue
		}
		var remote models.ContentItem
		if err := json.Unmarshal(p.Content, &remote); err != nil {
			b.logger.Warn(ctx, "skip malformed parcel", "id", p.ID, "error", err)
			continue
		}
		if remote.ID == "" {
			remote.ID = p.ID
		}
		if remote.SpaceID == "" {
			remote.SpaceID = spaceID
		}
		if err := b.mergeOne(ctx, &remote); err != nil {
			return nil, err
		}
	}
	return seen, nil
}

func (b *boardService) mergeOne(ctx context.Context, remote *models.ContentItem) error {
	local, err := b.repo.Get(ctx, remote.ID)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		local = nil
	case err != nil:
		return err
	}

	if local != nil {
		if local.StorageState.IsLocal() || local.OState == models.OStateDeleted {
			return nil
		}
		if _, pending := b.queue.Pending(local.ID); pending {
			return nil
		}
		if remote.EditedStamp <= local.EditedStamp {
			return nil
		}
	}

	now := b.clock.Now().UnixMilli()
	remote.StorageState = models.StorageCloud
	remote.SyncedStamp = now
	remote.UpdatedStamp = now
	if remote.InsertedStamp == 0 {
		remote.InsertedStamp = now
	}
	if remote.OState == "" {
		remote.OState = models.OStateOK
	}
	return b.repo.Put(ctx, remote)
}

// unseenInColumn lists synced local items of the column missing from seen.
func (b *boardService) unseenInColumn(ctx context.Context, spaceID, stateID string, seen map[string]struct{}) ([]string, error) {
	items, err := b.repo.ListByState(ctx, spaceID, stateID, 0)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, it := range items {
		if it.StorageState != models.StorageCloud {
			continue
		}
		if _, ok := seen[it.ID]; ok {
			continue
		}
		if _, pending := b.queue.Pending(it.ID); pending {
			continue
		}
		out = append(out, it.ID)
	}
	return out, nil
}

// verify asks the server about ids a column listing left out and applies
// only explicit removals.
func (b *boardService) verify(ctx context.Context, spaceID string, ids []string) error {
	list, ok, err := b.router.Request(ctx, models.SyncAtom{
		TaskType: models.AtomCheckContents,
		SpaceID:  spaceID,
		IDs:      ids,
	})
	if err != nil {
		return err
	}
	if !ok {
		b.logger.Info(ctx, "content check unknown, leaving items untouched", "count", len(ids))
		return nil
	}

	b.mergeMu.Lock()
	defer b.mergeMu.Unlock()

	for _, p := range list {
		if p.Status != models.ParcelHasData || len(p.Content) == 0 {
			continue
		}
		var remote models.ContentItem
		if err := json.Unmarshal(p.Content, &remote); err != nil {
			continue
		}
		if remote.OState != models.OStateRemoved && remote.OState != models.OStateDeleted {
			continue
		}
		it, err := b.repo.Get(ctx, p.ID)
		if errors.Is(err, common.ErrorNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		it.OState = remote.OState
		it.UpdatedStamp = b.clock.Now().UnixMilli()
		if err := b.repo.Put(ctx, it); err != nil {
			return err
		}
		b.logger.Debug(ctx, "content removed on server", "id", it.ID, "oState", it.OState)
	}
	return nil
}

// MoveItem drops item id into column toStateID of its own space at position
// toIndex. Every rewritten stamp is stored in one transaction; synced items
// then owe a thread-state upload.
func (b *boardService) MoveItem(ctx context.Context, id, toStateID string, toIndex int) ([]ordering.Update, error) {
	moved, err := b.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	column, err := b.repo.ListByState(ctx, moved.SpaceID, toStateID, 0)
	if err != nil {
		return nil, err
	}

	items := make([]ordering.Item, 0, len(column)+1)
	for _, it := range column {
		if it.ID == id {
			continue
		}
		items = append(items, ordering.Item{ID: it.ID, StateID: it.StateID, Stamp: it.StateStamp})
	}
	if toIndex < 0 || toIndex > len(items) {
		return nil, fmt.Errorf("move %s to %d: %w", id, toIndex, ordering.ErrIndexOutOfRange)
	}
	items = append(items, ordering.Item{})
	copy(items[toIndex+1:], items[toIndex:])
	items[toIndex] = ordering.Item{ID: moved.ID, StateID: moved.StateID, Stamp: moved.StateStamp}

	now := b.clock.Now().UnixMilli()
	updates, err := ordering.Reorder(items, toIndex, toStateID, now)
	if err != nil {
		return nil, err
	}

	err = dbx.WithTx(ctx, b.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := contents.NewSQLiteRepository(tx)
		for _, u := range updates {
			if err := repo.SetStateStamp(ctx, u.ID, u.StateID, u.NewStamp, now); err != nil {
				return fmt.Errorf("stamp %s: %w", u.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, u := range updates {
		if err := b.announce(ctx, u.ID, now); err != nil {
			return updates, err
		}
	}
	return updates, nil
}

func (b *boardService) announce(ctx context.Context, id string, now int64) error {
	it, err := b.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	res, err := statemachine.Transition(contentState(it), statemachine.Event{Kind: statemachine.ChangeState})
	if err != nil {
		b.logger.Debug(ctx, "no state upload for item", "id", id, "error", err)
		return nil
	}
	return dispatch(ctx, b.queue, id, res, now)
}
