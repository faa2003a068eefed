// Package upload is the outbound half of the sync engine: a coalescing
// queue of write tasks, one per target, flushed to the service in batches.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/dmitrijs2005/liusync/internal/client/events"
	"github.com/dmitrijs2005/liusync/internal/client/metrics"
	"github.com/dmitrijs2005/liusync/internal/client/models"
	"github.com/dmitrijs2005/liusync/internal/client/repositories/tasks"
	"github.com/dmitrijs2005/liusync/internal/client/scheduler"
	"github.com/dmitrijs2005/liusync/internal/client/transport"
	"github.com/dmitrijs2005/liusync/internal/clock"
	"github.com/dmitrijs2005/liusync/internal/common"
	"github.com/dmitrijs2005/liusync/internal/logging"
)

const (
	PathSyncSet = "/sync-set"

	DefaultDebounce    = 380 * time.Millisecond
	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = 5 * time.Minute
)

// Sender is the part of the transport the queue needs.
type Sender interface {
	Send(ctx context.Context, path string, body map[string]any, opts ...transport.Option) (*transport.Envelope, error)
}

// Targets connects the queue to the local store.
type Targets interface {
	// Allow returns ErrLocalOnly when kind must not be uploaded for targetID.
	Allow(ctx context.Context, kind models.OperationKind, targetID string) error
	// Load builds the atom for task from the current local record. It
	// returns common.ErrorNotFound when the target no longer exists.
	Load(ctx context.Context, task *models.UploadTask) (models.SetAtom, error)
	// Acked records a successful upload.
	Acked(ctx context.Context, task *models.UploadTask, res models.AtomResult) error
}

// TaskSpec is what callers queue.
type TaskSpec struct {
	Kind         models.OperationKind
	TargetID     string
	OperateStamp int64
}

type addOptions struct {
	speed models.Speed
}

type AddOption func(*addOptions)

// WithSpeed selects the dispatch policy; SpeedInstant skips the debounce.
func WithSpeed(s models.Speed) AddOption {
	return func(o *addOptions) { o.speed = s }
}

type Config struct {
	Sender      Sender
	Targets     Targets
	Tasks       tasks.Repository
	Clock       clock.Clock
	Bus         *events.Bus
	Logger      logging.Logger
	Metrics     *metrics.Metrics
	Debounce    time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

type Queue struct {
	sender      Sender
	targets     Targets
	repo        tasks.Repository
	clock       clock.Clock
	bus         *events.Bus
	logger      logging.Logger
	metrics     *metrics.Metrics
	backoffBase time.Duration
	backoffMax  time.Duration

	pending   *xsync.MapOf[string, *models.UploadTask]
	debouncer *scheduler.Debouncer
	kick      chan struct{}
	flushMu   sync.Mutex
}

func New(cfg Config) *Queue {
	q := &Queue{
		sender:      cfg.Sender,
		targets:     cfg.Targets,
		repo:        cfg.Tasks,
		clock:       cfg.Clock,
		bus:         cfg.Bus,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		backoffBase: cfg.BackoffBase,
		backoffMax:  cfg.BackoffMax,
		pending:     xsync.NewMapOf[string, *models.UploadTask](),
		kick:        make(chan struct{}, 1),
	}
	if q.clock == nil {
		q.clock = clock.Real{}
	}
	if q.logger == nil {
		q.logger = logging.NewDiscardLogger()
	}
	if q.backoffBase <= 0 {
		q.backoffBase = DefaultBackoffBase
	}
	if q.backoffMax <= 0 {
		q.backoffMax = DefaultBackoffMax
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	q.debouncer = scheduler.NewDebouncer(q.clock, debounce, q.wake)
	return q
}

func (q *Queue) wake() {
	select {
	case q.kick <- struct{}{}:
	default:
	}
}

// Run flushes whenever the debounce window closes or an instant task
// arrives. It returns when ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	defer q.debouncer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.kick:
			if err := q.Flush(ctx); err != nil && ctx.Err() == nil {
				q.logger.Warn(ctx, "upload flush failed", "error", err)
			}
		}
	}
}

// AddTask queues a write, replacing any pending task for the same target.
func (q *Queue) AddTask(ctx context.Context, spec TaskSpec, opts ...AddOption) (*models.UploadTask, error) {
	o := addOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if !spec.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
	if spec.TargetID == "" {
		return nil, ErrEmptyTarget
	}
	if q.targets != nil {
		if err := q.targets.Allow(ctx, spec.Kind, spec.TargetID); err != nil {
			return nil, err
		}
	}

	now := q.clock.Now().UnixMilli()
	task := &models.UploadTask{
		TaskID:        ulid.Make().String(),
		Kind:          spec.Kind,
		TargetID:      spec.TargetID,
		OperateStamp:  spec.OperateStamp,
		Speed:         o.speed,
		InsertedStamp: now,
	}
	if task.OperateStamp == 0 {
		task.OperateStamp = now
	}

	var prev *models.UploadTask
	q.pending.Compute(spec.TargetID, func(old *models.UploadTask, loaded bool) (*models.UploadTask, bool) {
		if loaded {
			prev = old
			task.InsertedStamp = old.InsertedStamp
		}
		return task, false
	})
	if prev != nil {
		q.logger.Debug(ctx, "task coalesced", "target", spec.TargetID, "old", prev.Kind, "new", spec.Kind)
	}
	if q.repo != nil {
		if err := q.repo.Upsert(ctx, task); err != nil {
			return nil, err
		}
	}
	q.publishCount(ctx)

	if o.speed == models.SpeedInstant {
		q.debouncer.Stop()
		q.wake()
	} else {
		q.debouncer.Trigger()
	}
	return task, nil
}

// Cancel drops the pending task of targetID, if any.
func (q *Queue) Cancel(ctx context.Context, targetID string) error {
	if _, ok := q.pending.LoadAndDelete(targetID); ok {
		q.logger.Debug(ctx, "task cancelled", "target", targetID)
	}
	q.publishCount(ctx)
	if q.repo == nil {
		return nil
	}
	return q.repo.Delete(ctx, targetID)
}

// Pending returns the queued task of targetID.
func (q *Queue) Pending(targetID string) (*models.UploadTask, bool) {
	t, ok := q.pending.Load(targetID)
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

func (q *Queue) Len() int {
	return q.pending.Size()
}

// Restore reloads persisted tasks and schedules a flush.
func (q *Queue) Restore(ctx context.Context) (int, error) {
	if q.repo == nil {
		return 0, nil
	}
	list, err := q.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, t := range list {
		q.pending.Store(t.TargetID, t)
	}
	if len(list) > 0 {
		q.logger.Info(ctx, "restored pending uploads", "count", len(list))
		q.publishCount(ctx)
		q.debouncer.Trigger()
	}
	return len(list), nil
}

func (q *Queue) publishCount(ctx context.Context) {
	q.bus.Publish(ctx, events.Event{Kind: events.SyncNum, Num: q.pending.Size()})
}

func (q *Queue) due(now int64) []*models.UploadTask {
	var out []*models.UploadTask
	q.pending.Range(func(_ string, t *models.UploadTask) bool {
		if t.NextAttemptAt <= now {
			cp := *t
			out = append(out, &cp)
		}
		return true
	})
	return out
}

// Flush sends every due task in one sync-set call.
func (q *Queue) Flush(ctx context.Context) error {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	now := q.clock.Now().UnixMilli()
	due := q.due(now)
	if len(due) == 0 {
		q.scheduleRetry()
		return nil
	}

	atoms := make([]models.SetAtom, 0, len(due))
	sent := make(map[string]*models.UploadTask, len(due))
	for _, t := range due {
		atom, err := q.targets.Load(ctx, t)
		if errors.Is(err, common.ErrorNotFound) {
			q.logger.Warn(ctx, "dropping task for missing target", "target", t.TargetID, "kind", t.Kind)
			q.forget(ctx, t)
			continue
		}
		if err != nil {
			q.logger.Error(ctx, "load task target", "target", t.TargetID, "error", err)
			q.retry(ctx, t, err)
			continue
		}
		atom.TaskID = t.TaskID
		atom.TaskType = t.Kind
		atom.TargetID = t.TargetID
		atom.OperateStamp = t.OperateStamp
		atoms = append(atoms, atom)
		sent[t.TaskID] = t
	}
	if len(atoms) == 0 {
		q.scheduleRetry()
		return nil
	}

	q.metrics.UploadFlush(len(atoms))
	env, err := q.sender.Send(ctx, PathSyncSet, map[string]any{
		"operateType":   "set",
		"plz_enc_atoms": atoms,
	})
	if err != nil {
		for _, t := range sent {
			q.fail(ctx, t, err)
		}
		q.scheduleRetry()
		return err
	}

	var resp models.SyncResponse
	if err := env.Decode(&resp); err != nil {
		q.logger.Warn(ctx, "sync-set reply without results", "error", err)
	}
	results := make(map[string]models.AtomResult, len(resp.Results))
	for _, r := range resp.Results {
		results[r.TaskID] = r
	}

	for id, t := range sent {
		res, ok := results[id]
		switch {
		case !ok:
			q.fail(ctx, t, transport.ErrTimeout)
		case res.Code == common.CodeOK:
			q.ack(ctx, t, res)
		default:
			q.fail(ctx, t, &transport.Error{Type: transport.TypeOf(res.Code), Code: res.Code, Message: res.ErrMsg})
		}
	}
	q.publishCount(ctx)
	q.scheduleRetry()
	return nil
}

// isCurrent reports whether t is still the pending task of its target.
func (q *Queue) isCurrent(t *models.UploadTask) bool {
	cur, ok := q.pending.Load(t.TargetID)
	return ok && cur.TaskID == t.TaskID
}

// forget removes t unless a newer task replaced it meanwhile.
func (q *Queue) forget(ctx context.Context, t *models.UploadTask) {
	q.pending.Compute(t.TargetID, func(cur *models.UploadTask, loaded bool) (*models.UploadTask, bool) {
		if !loaded {
			return nil, true
		}
		return cur, cur.TaskID == t.TaskID
	})
	if q.repo != nil {
		if err := q.repo.DeleteTask(ctx, t.TargetID, t.TaskID); err != nil {
			q.logger.Error(ctx, "delete task", "task", t.TaskID, "error", err)
		}
	}
}

func (q *Queue) ack(ctx context.Context, t *models.UploadTask, res models.AtomResult) {
	q.forget(ctx, t)
	q.metrics.UploadResult("acked")
	if err := q.targets.Acked(ctx, t, res); err != nil {
		q.logger.Error(ctx, "mark target synced", "target", t.TargetID, "error", err)
	}
	q.bus.Publish(ctx, events.Event{Kind: events.TaskDone, TaskID: t.TaskID, TargetID: t.TargetID})
}

func (q *Queue) fail(ctx context.Context, t *models.UploadTask, err error) {
	if !transport.IsRetryable(err) {
		q.forget(ctx, t)
		q.metrics.UploadResult("rejected")
		q.logger.Warn(ctx, "upload rejected", "target", t.TargetID, "kind", t.Kind, "error", err)
		q.bus.Publish(ctx, events.Event{Kind: events.TaskRejected, TaskID: t.TaskID, TargetID: t.TargetID, Err: err})
		return
	}
	q.retry(ctx, t, err)
}

// retry pushes t back by the backoff for its next attempt. Local store
// failures take this path whatever their class.
func (q *Queue) retry(ctx context.Context, t *models.UploadTask, err error) {
	q.metrics.UploadResult("retry")
	now := q.clock.Now().UnixMilli()
	var updated *models.UploadTask
	q.pending.Compute(t.TargetID, func(cur *models.UploadTask, loaded bool) (*models.UploadTask, bool) {
		if !loaded {
			return nil, true
		}
		if cur.TaskID != t.TaskID {
			return cur, false
		}
		next := *cur
		next.Attempts++
		next.NextAttemptAt = now + q.backoff(next.Attempts).Milliseconds()
		updated = &next
		return &next, false
	})
	if updated == nil {
		return
	}
	q.logger.Debug(ctx, "upload will retry", "target", t.TargetID, "attempt", updated.Attempts, "error", err)
	if q.repo != nil {
		if err := q.repo.Upsert(ctx, updated); err != nil {
			q.logger.Error(ctx, "persist retry", "task", t.TaskID, "error", err)
		}
	}
}

// backoff is base * 2^(attempt-1), capped at max.
func (q *Queue) backoff(attempt int) time.Duration {
	d := q.backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= q.backoffMax {
			return q.backoffMax
		}
	}
	if d > q.backoffMax {
		return q.backoffMax
	}
	return d
}

func (q *Queue) scheduleRetry() {
	now := q.clock.Now().UnixMilli()
	var earliest int64
	q.pending.Range(func(_ string, t *models.UploadTask) bool {
		if t.NextAttemptAt > now && (earliest == 0 || t.NextAttemptAt < earliest) {
			earliest = t.NextAttemptAt
		}
		return true
	})
	if earliest > 0 {
		q.debouncer.TriggerAfter(time.Duration(earliest-now) * time.Millisecond)
	}
}
