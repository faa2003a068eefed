package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/liusync/internal/client/events"
	"github.com/dmitrijs2005/liusync/internal/client/session"
	"github.com/dmitrijs2005/liusync/internal/client/transport"
	"github.com/dmitrijs2005/liusync/internal/clock"
	"github.com/dmitrijs2005/liusync/internal/logging"
)

const (
	DefaultEnterInterval = time.Hour
	// UserInfoThrottle bounds latest-user-info requests.
	UserInfoThrottle = 10 * time.Second
)

// Sender posts one envelope request.
type Sender interface {
	Send(ctx context.Context, path string, body map[string]any, opts ...transport.Option) (*transport.Envelope, error)
}

// SessionKeeper is what the engine needs from the session negotiator.
type SessionKeeper interface {
	Enter(ctx context.Context) error
	NeedsRefresh(now time.Time) bool
	Persist(ctx context.Context) error
}

// QueueRunner is the lifecycle side of the upload queue.
type QueueRunner interface {
	Restore(ctx context.Context) (int, error)
	Run(ctx context.Context) error
}

type EngineConfig struct {
	Sender        Sender
	Sessions      *transport.Sessions
	Keeper        SessionKeeper
	Queue         QueueRunner
	Bus           *events.Bus
	Clock         clock.Clock
	Logger        logging.Logger
	EnterInterval time.Duration
}

// Engine runs the background loops of a signed-in device: the upload queue,
// periodic session refresh and user-info polling.
type Engine struct {
	sender        Sender
	sessions      *transport.Sessions
	keeper        SessionKeeper
	queue         QueueRunner
	bus           *events.Bus
	clock         clock.Clock
	logger        logging.Logger
	enterInterval time.Duration

	infoMu   sync.Mutex
	lastInfo time.Time
}

func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		sender:        cfg.Sender,
		sessions:      cfg.Sessions,
		keeper:        cfg.Keeper,
		queue:         cfg.Queue,
		bus:           cfg.Bus,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
		enterInterval: cfg.EnterInterval,
	}
	if e.clock == nil {
		e.clock = clock.Real{}
	}
	if e.logger == nil {
		e.logger = logging.NewDiscardLogger()
	}
	if e.enterInterval <= 0 {
		e.enterInterval = DefaultEnterInterval
	}
	if e.bus == nil {
		e.bus = events.NewBus(e.logger)
	}
	return e
}

// LatestUserInfo fetches the user's settings and publishes them. Calls within
// UserInfoThrottle of the previous fetch are skipped; it reports whether a
// request went out.
func (e *Engine) LatestUserInfo(ctx context.Context) (bool, error) {
	cur := e.sessions.Load()
	if !cur.HasIdentity() {
		return false, nil
	}

	now := e.clock.Now()
	e.infoMu.Lock()
	if !e.lastInfo.IsZero() && now.Sub(e.lastInfo) < UserInfoThrottle {
		e.infoMu.Unlock()
		return false, nil
	}
	e.lastInfo = now
	e.infoMu.Unlock()

	env, err := e.sender.Send(ctx, session.PathSettings, map[string]any{"operateType": "latest"})
	if err != nil {
		return true, err
	}
	e.bus.Publish(ctx, events.Event{Kind: events.LatestUserInfo, UserID: cur.UserID, Data: env.Data})
	return true, nil
}

// Refresh rotates the token when it is close to expiry and polls user info.
func (e *Engine) Refresh(ctx context.Context) {
	if e.keeper != nil && e.keeper.NeedsRefresh(e.clock.Now()) {
		if err := e.keeper.Enter(ctx); err != nil {
			e.logger.Warn(ctx, "session refresh failed", "error", err)
		}
	}
	if _, err := e.LatestUserInfo(ctx); err != nil {
		e.logger.Warn(ctx, "user info refresh failed", "error", err)
	}
}

// Run restores pending uploads and blocks until ctx ends.
func (e *Engine) Run(ctx context.Context) error {
	n, err := e.queue.Restore(ctx)
	if err != nil {
		return err
	}
	e.logger.Info(ctx, "sync engine started", "pending", n)

	relogins, unsubscribe := e.bus.Subscribe(4, events.Relogin)
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.queue.Run(gctx) })
	g.Go(func() error { return e.refreshLoop(gctx) })
	g.Go(func() error { return e.watchRelogin(gctx, relogins) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (e *Engine) refreshLoop(ctx context.Context) error {
	tick := make(chan struct{}, 1)
	arm := func() clock.Timer {
		return e.clock.AfterFunc(e.enterInterval, func() {
			select {
			case tick <- struct{}{}:
			default:
			}
		})
	}

	e.Refresh(ctx)
	t := arm()
	for {
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-tick:
			e.Refresh(ctx)
			t = arm()
		}
	}
}

// watchRelogin saves the session once the service rejected its token, so a
// restart does not present the dead identity again.
func (e *Engine) watchRelogin(ctx context.Context, ch <-chan events.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			e.logger.Warn(ctx, "session rejected, sign in again", "user", ev.UserID)
			if e.keeper == nil {
				continue
			}
			if err := e.keeper.Persist(ctx); err != nil {
				e.logger.Error(ctx, "persist session", "error", err)
			}
		}
	}
}
