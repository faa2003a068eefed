// Package merger batches concurrent read atoms into shared sync-get calls
// and hands each caller back only its own results.
package merger

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/dmitrijs2005/liusync/internal/client/metrics"
	"github.com/dmitrijs2005/liusync/internal/client/models"
	"github.com/dmitrijs2005/liusync/internal/client/transport"
	"github.com/dmitrijs2005/liusync/internal/clock"
	"github.com/dmitrijs2005/liusync/internal/common"
	"github.com/dmitrijs2005/liusync/internal/logging"
)

const (
	PathSyncGet = "/sync-get"

	DefaultMaxStackNum = 3
	DefaultWait        = 10 * time.Second
	DefaultDelay       = 50 * time.Millisecond
)

type Sender interface {
	Send(ctx context.Context, path string, body map[string]any, opts ...transport.Option) (*transport.Envelope, error)
}

type requestOptions struct {
	maxStackNum int
	wait        time.Duration
	delay       time.Duration
}

type Option func(*requestOptions)

// WithMaxStackNum flushes the stack as soon as it holds n atoms.
func WithMaxStackNum(n int) Option {
	return func(o *requestOptions) { o.maxStackNum = n }
}

// WithWaitMilli bounds how long this caller waits for its result.
func WithWaitMilli(d time.Duration) Option {
	return func(o *requestOptions) { o.wait = d }
}

// WithDelay sets the stacking window opened by the first atom of a batch.
func WithDelay(d time.Duration) Option {
	return func(o *requestOptions) { o.delay = d }
}

type result struct {
	list []models.DownloadParcel
	ok   bool
}

type Router struct {
	sender  Sender
	clock   clock.Clock
	logger  logging.Logger
	metrics *metrics.Metrics

	waiters *xsync.MapOf[string, chan result]

	mu    sync.Mutex
	stack []models.SyncAtom
	timer clock.Timer
}

func New(sender Sender, c clock.Clock, logger logging.Logger, m *metrics.Metrics) *Router {
	if c == nil {
		c = clock.Real{}
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Router{
		sender:  sender,
		clock:   c,
		logger:  logger,
		metrics: m,
		waiters: xsync.NewMapOf[string, chan result](),
	}
}

// Request queues atom and waits for its parcels. ok is false when the
// outcome is unknown (the atom failed, its result was missing, or the wait
// elapsed); callers must then fall back to local data rather than treat the
// result as empty. err is only set when ctx ends first.
func (r *Router) Request(ctx context.Context, atom models.SyncAtom, opts ...Option) ([]models.DownloadParcel, bool, error) {
	o := requestOptions{maxStackNum: DefaultMaxStackNum, wait: DefaultWait, delay: DefaultDelay}
	for _, opt := range opts {
		opt(&o)
	}
	if atom.TaskID == "" {
		atom.TaskID = ulid.Make().String()
	}

	ch := make(chan result, 1)
	for {
		if _, loaded := r.waiters.LoadOrStore(atom.TaskID, ch); !loaded {
			break
		}
		r.logger.Warn(ctx, "task id already waiting, assigning a new one", "task", atom.TaskID)
		atom.TaskID = ulid.Make().String()
	}

	expired := make(chan struct{})
	waitTimer := r.clock.AfterFunc(o.wait, func() { close(expired) })
	defer waitTimer.Stop()

	r.push(ctx, atom, o)

	select {
	case res := <-ch:
		if !res.ok {
			r.metrics.MergeUnknown()
		}
		return res.list, res.ok, nil
	case <-expired:
		r.release(atom.TaskID, ch)
		r.metrics.MergeUnknown()
		r.logger.Debug(ctx, "atom wait elapsed", "task", atom.TaskID, "type", atom.TaskType)
		return nil, false, nil
	case <-ctx.Done():
		r.release(atom.TaskID, ch)
		return nil, false, ctx.Err()
	}
}

// release drops the waiter for id if it is still ch.
func (r *Router) release(id string, ch chan result) {
	r.waiters.Compute(id, func(cur chan result, loaded bool) (chan result, bool) {
		return cur, !loaded || cur == ch
	})
}

func (r *Router) push(ctx context.Context, atom models.SyncAtom, o requestOptions) {
	r.mu.Lock()
	r.stack = append(r.stack, atom)
	if len(r.stack) >= o.maxStackNum {
		batch := r.take()
		r.mu.Unlock()
		go r.send(context.WithoutCancel(ctx), batch)
		return
	}
	if r.timer == nil {
		r.timer = r.clock.AfterFunc(o.delay, r.flushWindow)
	}
	r.mu.Unlock()
}

// take empties the stack. Callers hold r.mu.
func (r *Router) take() []models.SyncAtom {
	batch := r.stack
	r.stack = nil
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	return batch
}

func (r *Router) flushWindow() {
	r.mu.Lock()
	batch := r.take()
	r.mu.Unlock()
	if len(batch) > 0 {
		go r.send(context.Background(), batch)
	}
}

func (r *Router) send(ctx context.Context, batch []models.SyncAtom) {
	r.metrics.MergeBatch(len(batch))

	env, err := r.sender.Send(ctx, PathSyncGet, map[string]any{
		"operateType":   "general_sync",
		"plz_enc_atoms": batch,
	})
	if err != nil {
		r.logger.Warn(ctx, "sync-get failed", "atoms", len(batch), "error", err)
		r.resolveRest(batch)
		return
	}

	var resp models.SyncResponse
	if err := env.Decode(&resp); err != nil {
		r.logger.Warn(ctx, "sync-get reply without results", "error", err)
	}
	mine := make(map[string]struct{}, len(batch))
	for _, a := range batch {
		mine[a.TaskID] = struct{}{}
	}
	for _, res := range resp.Results {
		if _, ok := mine[res.TaskID]; !ok {
			r.logger.Debug(ctx, "result for atom outside batch", "task", res.TaskID)
			continue
		}
		ch, ok := r.waiters.LoadAndDelete(res.TaskID)
		if !ok {
			continue
		}
		if res.Code != common.CodeOK {
			r.logger.Debug(ctx, "atom failed", "task", res.TaskID, "code", res.Code)
			ch <- result{}
			continue
		}
		list := res.List
		if list == nil {
			list = []models.DownloadParcel{}
		}
		ch <- result{list: list, ok: true}
	}
	r.resolveRest(batch)
}

// resolveRest answers every still-waiting atom of batch as unknown.
func (r *Router) resolveRest(batch []models.SyncAtom) {
	for _, a := range batch {
		if ch, ok := r.waiters.LoadAndDelete(a.TaskID); ok {
			ch <- result{}
		}
	}
}

func (r *Router) stacked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stack)
}
