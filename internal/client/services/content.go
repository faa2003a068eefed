package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/liusync/internal/client/models"
	"github.com/dmitrijs2005/liusync/internal/client/repositories/contents"
	"github.com/dmitrijs2005/liusync/internal/client/statemachine"
	"github.com/dmitrijs2005/liusync/internal/clock"
	"github.com/dmitrijs2005/liusync/internal/logging"
)

// ContentService edits content items. Every call writes the local store
// first; uploads follow through the queue.
type ContentService interface {
	Create(ctx context.Context, in NewContent) (*models.ContentItem, error)
	Get(ctx context.Context, id string) (*models.ContentItem, error)
	Edit(ctx context.Context, id string, payload json.RawMessage) (*models.ContentItem, error)
	SetSync(ctx context.Context, id string, enabled bool) (*models.ContentItem, error)
	Remove(ctx context.Context, id string) (*models.ContentItem, error)
	Restore(ctx context.Context, id string) (*models.ContentItem, error)
	Purge(ctx context.Context, id string, confirmed bool) error
}

// NewContent describes an item to create. Items start LOCAL unless Sync is
// set.
type NewContent struct {
	SpaceID string
	StateID string
	Payload json.RawMessage
	Sync    bool
}

type contentService struct {
	repo   contents.Repository
	queue  Uploader
	clock  clock.Clock
	logger logging.Logger
}

func NewContentService(repo contents.Repository, queue Uploader, clk clock.Clock, logger logging.Logger) ContentService {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &contentService{repo: repo, queue: queue, clock: clk, logger: logger}
}

func (s *contentService) Create(ctx context.Context, in NewContent) (*models.ContentItem, error) {
	if len(in.Payload) == 0 {
		return nil, ErrEmptyPayload
	}
	now := s.clock.Now().UnixMilli()
	it := &models.ContentItem{
		ID:            uuid.NewString(),
		SpaceID:       in.SpaceID,
		OState:        models.OStateOK,
		StorageState:  models.StorageLocal,
		StateID:       in.StateID,
		EditedStamp:   now,
		InsertedStamp: now,
		UpdatedStamp:  now,
		Payload:       in.Payload,
	}
	if in.StateID != "" {
		it.StateStamp = &now
	}
	if err := s.repo.Put(ctx, it); err != nil {
		return nil, fmt.Errorf("saving error: %w", err)
	}
	if !in.Sync {
		return it, nil
	}
	return s.SetSync(ctx, it.ID, true)
}

func (s *contentService) Get(ctx context.Context, id string) (*models.ContentItem, error) {
	return s.repo.Get(ctx, id)
}

func (s *contentService) Edit(ctx context.Context, id string, payload json.RawMessage) (*models.ContentItem, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	return s.apply(ctx, id, statemachine.Event{Kind: statemachine.Edit}, func(it *models.ContentItem, now int64) {
		it.Payload = payload
		it.EditedStamp = now
	})
}

func (s *contentService) SetSync(ctx context.Context, id string, enabled bool) (*models.ContentItem, error) {
	kind := statemachine.DisableSync
	if enabled {
		kind = statemachine.EnableSync
	}
	return s.apply(ctx, id, statemachine.Event{Kind: kind}, nil)
}

func (s *contentService) Remove(ctx context.Context, id string) (*models.ContentItem, error) {
	return s.apply(ctx, id, statemachine.Event{Kind: statemachine.Remove}, nil)
}

func (s *contentService) Restore(ctx context.Context, id string) (*models.ContentItem, error) {
	return s.apply(ctx, id, statemachine.Event{Kind: statemachine.Restore}, nil)
}

// Purge deletes a removed item for good. Items the server never held are
// dropped at once; others stay DELETED until the purge is acknowledged.
func (s *contentService) Purge(ctx context.Context, id string, confirmed bool) error {
	it, err := s.apply(ctx, id, statemachine.Event{Kind: statemachine.Purge, Confirmed: confirmed}, nil)
	if err != nil {
		return err
	}
	if it.StorageState.IsLocal() {
		return s.repo.Delete(ctx, id)
	}
	return nil
}

// apply runs one transition: mutate, persist, then queue what it owes.
func (s *contentService) apply(ctx context.Context, id string, ev statemachine.Event, mutate func(*models.ContentItem, int64)) (*models.ContentItem, error) {
	it, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := statemachine.Transition(contentState(it), ev)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UnixMilli()
	if mutate != nil {
		mutate(it, now)
	}
	it.OState = res.State.OState
	it.StorageState = res.State.StorageState
	it.UpdatedStamp = now
	if err := s.repo.Put(ctx, it); err != nil {
		return nil, fmt.Errorf("saving error: %w", err)
	}

	if err := dispatch(ctx, s.queue, id, res, now); err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "content updated", "id", id, "event", ev.Kind, "oState", it.OState, "storage", it.StorageState)
	return it, nil
}
