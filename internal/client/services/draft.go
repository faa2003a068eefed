package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/liusync/internal/client/models"
	"github.com/dmitrijs2005/liusync/internal/client/repositories/drafts"
	"github.com/dmitrijs2005/liusync/internal/client/statemachine"
	"github.com/dmitrijs2005/liusync/internal/clock"
	"github.com/dmitrijs2005/liusync/internal/common"
	"github.com/dmitrijs2005/liusync/internal/logging"
)

// DraftService autosaves in-progress edits. Synced drafts upload instantly.
type DraftService interface {
	// Save creates the draft when id is empty or unknown.
	Save(ctx context.Context, id, spaceID string, payload json.RawMessage) (*models.Draft, error)
	Get(ctx context.Context, id string) (*models.Draft, error)
	SetSync(ctx context.Context, id string, enabled bool) (*models.Draft, error)
	Post(ctx context.Context, id string) error
	Discard(ctx context.Context, id string) error
}

type draftService struct {
	repo   drafts.Repository
	queue  Uploader
	clock  clock.Clock
	logger logging.Logger
}

func NewDraftService(repo drafts.Repository, queue Uploader, clk clock.Clock, logger logging.Logger) DraftService {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &draftService{repo: repo, queue: queue, clock: clk, logger: logger}
}

func (s *draftService) Save(ctx context.Context, id, spaceID string, payload json.RawMessage) (*models.Draft, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if id == "" {
		id = uuid.NewString()
	}

	_, err := s.repo.Get(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		d := &models.Draft{ID: id, SpaceID: spaceID, OState: models.OStateOK}
		if err := s.repo.Put(ctx, d); err != nil {
			return nil, fmt.Errorf("saving error: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	return s.apply(ctx, id, statemachine.Edit, func(d *models.Draft, now int64) {
		d.Payload = payload
		d.EditedStamp = now
	})
}

func (s *draftService) Get(ctx context.Context, id string) (*models.Draft, error) {
	return s.repo.Get(ctx, id)
}

func (s *draftService) SetSync(ctx context.Context, id string, enabled bool) (*models.Draft, error) {
	kind := statemachine.DisableSync
	if enabled {
		kind = statemachine.EnableSync
	}
	return s.apply(ctx, id, kind, nil)
}

// Post marks the draft as turned into content.
func (s *draftService) Post(ctx context.Context, id string) error {
	return s.finish(ctx, id, statemachine.Posted)
}

func (s *draftService) Discard(ctx context.Context, id string) error {
	return s.finish(ctx, id, statemachine.Discard)
}

// finish ends a draft. Without a server copy to clear the row goes at once;
// otherwise it is removed when the clear is acknowledged.
func (s *draftService) finish(ctx context.Context, id string, kind statemachine.EventKind) error {
	d, err := s.apply(ctx, id, kind, nil)
	if err != nil {
		return err
	}
	if _, pending := s.queue.Pending(d.ID); !pending {
		return s.repo.Delete(ctx, d.ID)
	}
	return nil
}

func (s *draftService) apply(ctx context.Context, id string, kind statemachine.EventKind, mutate func(*models.Draft, int64)) (*models.Draft, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := statemachine.Transition(draftState(d), statemachine.Event{Kind: kind})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UnixMilli()
	if mutate != nil {
		mutate(d, now)
	}
	d.OState = res.State.OState
	if err := s.repo.Put(ctx, d); err != nil {
		return nil, fmt.Errorf("saving error: %w", err)
	}
	if err := dispatch(ctx, s.queue, id, res, now); err != nil {
		return nil, err
	}
	return d, nil
}
