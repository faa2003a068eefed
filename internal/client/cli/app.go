package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/liusync/internal/client/config"
	"github.com/dmitrijs2005/liusync/internal/client/events"
	"github.com/dmitrijs2005/liusync/internal/client/merger"
	"github.com/dmitrijs2005/liusync/internal/client/metrics"
	"github.com/dmitrijs2005/liusync/internal/client/models"
	"github.com/dmitrijs2005/liusync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/liusync/internal/client/services"
	"github.com/dmitrijs2005/liusync/internal/client/session"
	"github.com/dmitrijs2005/liusync/internal/client/store"
	"github.com/dmitrijs2005/liusync/internal/client/transport"
	"github.com/dmitrijs2005/liusync/internal/client/upload"
	"github.com/dmitrijs2005/liusync/internal/clock"
	"github.com/dmitrijs2005/liusync/internal/common"
	"github.com/dmitrijs2005/liusync/internal/cryptox"
	"github.com/dmitrijs2005/liusync/internal/logging"
)

type Mode string

const (
	ModeOnline    Mode = "online"
	ModeSignedOut Mode = "signed-out"
)

const deviceSaltKey = "device_salt"

// Authenticator is the session surface the CLI drives.
type Authenticator interface {
	Init(ctx context.Context) error
	RequestEmailCode(ctx context.Context, email string) error
	LoginWithEmailCode(ctx context.Context, email, code string) (*models.SessionCredentials, error)
	Logout(ctx context.Context) error
	Restore(ctx context.Context) (bool, error)
}

type App struct {
	config  *config.Config
	logger  logging.Logger
	repos   *store.Repositories
	bus     *events.Bus
	metrics *metrics.Metrics

	auth     Authenticator
	sessions *transport.Sessions
	contents services.ContentService
	drafts   services.DraftService
	board    services.BoardService
	engine   *services.Engine
	queue    *upload.Queue

	reader *bufio.Reader
	out    io.Writer

	mu       sync.Mutex
	userID   string
	Mode     Mode
	draftID  string
	spaceID  string
	columns  []string
	stopSync context.CancelFunc
}

// NewApp opens the local store and builds the sync stack described by c.
// deviceSecret seals the session at rest; an empty secret keeps the session
// in memory only.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger, deviceSecret []byte) (*App, error) {
	repos, err := store.Open(ctx, c.DBPath)
	if err != nil {
		logger.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	deviceKey, err := deriveDeviceKey(ctx, repos.Metadata, deviceSecret)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	clk := clock.Real{}
	bus := events.NewBus(logger)
	m := metrics.New()

	tr := transport.New(transport.Config{
		BaseURL: c.ServerURL,
		Bus:     bus,
		Clock:   clk,
		Timeout: c.RequestTimeout,
		Logger:  logger.With("component", "transport"),
		Metrics: m,
		Meta: transport.Meta{
			Language: c.Language,
			Theme:    c.Theme,
			Version:  c.Version,
			Client:   c.ClientID,
			Device:   c.Device,
		},
	})

	negotiator := session.NewNegotiator(session.Config{
		Sender:        tr,
		Sessions:      tr.Sessions(),
		Metadata:      repos.Metadata,
		DeviceKey:     deviceKey,
		Bus:           bus,
		Logger:        logger.With("component", "session"),
		RefreshBefore: c.RefreshBefore,
	})

	targets := services.NewTargets(repos.Contents, repos.Drafts, clk)
	queue := upload.New(upload.Config{
		Sender:   tr,
		Targets:  targets,
		Tasks:    repos.Tasks,
		Clock:    clk,
		Bus:      bus,
		Logger:   logger.With("component", "upload"),
		Metrics:  m,
		Debounce: c.Debounce,
	})
	router := merger.New(tr, clk, logger.With("component", "merger"), m)

	contentLogger := logger.With("component", "content")
	return &App{
		config:   c,
		logger:   logger,
		repos:    repos,
		bus:      bus,
		metrics:  m,
		auth:     negotiator,
		sessions: tr.Sessions(),
		contents: services.NewContentService(repos.Contents, queue, clk, contentLogger),
		drafts:   services.NewDraftService(repos.Drafts, queue, clk, contentLogger),
		board: services.NewBoardService(services.BoardConfig{
			DB:     repos.DB,
			Router: &windowedRouter{router: router, cfg: c},
			Queue:  queue,
			Clock:  clk,
			Logger: logger.With("component", "board"),
		}),
		engine: services.NewEngine(services.EngineConfig{
			Sender:        tr,
			Sessions:      tr.Sessions(),
			Keeper:        negotiator,
			Queue:         queue,
			Bus:           bus,
			Clock:         clk,
			Logger:        logger.With("component", "engine"),
			EnterInterval: c.EnterInterval,
		}),
		queue:   queue,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		Mode:    ModeSignedOut,
		columns: []string{"TODO", "DOING", "FINISHED"},
	}, nil
}

// windowedRouter applies the configured stacking window and wait to every
// request before caller options.
type windowedRouter struct {
	router *merger.Router
	cfg    *config.Config
}

func (w *windowedRouter) Request(ctx context.Context, atom models.SyncAtom, opts ...merger.Option) ([]models.DownloadParcel, bool, error) {
	base := []merger.Option{
		merger.WithDelay(w.cfg.MergeDelay),
		merger.WithWaitMilli(w.cfg.MergeWait),
		merger.WithMaxStackNum(w.cfg.MergeMaxStack),
	}
	return w.router.Request(ctx, atom, append(base, opts...)...)
}

// deriveDeviceKey stretches secret with a per-device salt kept in metadata.
func deriveDeviceKey(ctx context.Context, meta metadata.Repository, secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, nil
	}
	salt, err := meta.GetOrCreate(ctx, deviceSaltKey, func() []byte {
		return common.GenerateRandByteArray(16)
	})
	if err != nil {
		return nil, fmt.Errorf("device salt: %w", err)
	}
	return cryptox.DeriveDeviceKey(secret, salt), nil
}

func (a *App) setMode(ctx context.Context, mode Mode) {
	a.mu.Lock()
	changed := a.Mode != mode
	a.Mode = mode
	a.mu.Unlock()
	if changed {
		a.logger.Info(ctx, "switched mode", "mode", mode)
	}
}

func (a *App) isLoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userID != ""
}

func (a *App) getStatus() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := ""
	if a.userID != "" {
		s = a.userID + " "
	}
	if a.Mode != "" {
		s += string(a.Mode)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// Run restores the previous session, falls back to an interactive login and
// then serves the REPL. The sync engine runs while a session is active.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	ok, err := a.auth.Restore(ctx)
	if err != nil {
		a.logger.Warn(ctx, "stored session unusable", "error", err)
	}
	if ok {
		a.signedIn(ctx, a.sessions.Load().UserID)
	} else if err := a.Login(ctx); err != nil {
		printlnFn("Login failed:", err)
	}

	go a.watchSession(ctx)

	fmt.Fprintln(a.out, "Welcome to liusync (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
	return nil
}

// watchSession follows login state changes published by the sync stack.
func (a *App) watchSession(ctx context.Context) {
	ch, unsubscribe := a.bus.Subscribe(8, events.Relogin, events.TaskRejected, events.SyncNum)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Kind {
			case events.Relogin:
				printlnFn("Session expired, please login again")
				a.signedOut(ctx)
			case events.TaskRejected:
				a.logger.Warn(ctx, "upload rejected", "target", ev.TargetID, "error", ev.Err)
			case events.SyncNum:
				a.logger.Debug(ctx, "pending uploads", "count", ev.Num)
			}
		}
	}
}

func (a *App) signedIn(ctx context.Context, userID string) {
	a.mu.Lock()
	a.userID = userID
	if a.stopSync != nil {
		a.stopSync()
	}
	syncCtx, cancel := context.WithCancel(ctx)
	a.stopSync = cancel
	a.mu.Unlock()

	a.setMode(ctx, ModeOnline)
	go func() {
		if err := a.engine.Run(syncCtx); err != nil {
			a.logger.Error(ctx, "sync engine stopped", "error", err)
		}
	}()
}

func (a *App) signedOut(ctx context.Context) {
	a.mu.Lock()
	a.userID = ""
	if a.stopSync != nil {
		a.stopSync()
		a.stopSync = nil
	}
	a.mu.Unlock()
	a.setMode(ctx, ModeSignedOut)
}

// Close stops background work and releases the store.
func (a *App) Close() {
	a.mu.Lock()
	if a.stopSync != nil {
		a.stopSync()
		a.stopSync = nil
	}
	a.mu.Unlock()
	if a.repos != nil {
		_ = a.repos.Close()
	}
}
