package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/liusync/internal/client/config"
	"github.com/dmitrijs2005/liusync/internal/client/events"
	"github.com/dmitrijs2005/liusync/internal/client/merger"
	"github.com/dmitrijs2005/liusync/internal/client/metrics"
	"github.com/dmitrijs2005/liusync/internal/client/models"
	"github.com/dmitrijs2005/liusync/internal/client/services"
	"github.com/dmitrijs2005/liusync/internal/client/store"
	"github.com/dmitrijs2005/liusync/internal/client/transport"
	"github.com/dmitrijs2005/liusync/internal/client/upload"
	"github.com/dmitrijs2005/liusync/internal/clock"
	"github.com/dmitrijs2005/liusync/internal/logging"
)

type fakeAuth struct {
	mu       sync.Mutex
	sessions *transport.Sessions
	email    string
	code     string
	loginErr error
	restored bool
	logouts  int
}

func (f *fakeAuth) Init(context.Context) error { return nil }

func (f *fakeAuth) RequestEmailCode(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.email = email
	return nil
}

func (f *fakeAuth) LoginWithEmailCode(_ context.Context, email, code string) (*models.SessionCredentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.code = code
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	creds := &models.SessionCredentials{UserID: "u-" + email, ClientKey: "k", Token: "t", Serial: "s"}
	f.sessions.Store(creds)
	return creds, nil
}

func (f *fakeAuth) Logout(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	f.sessions.Clear()
	return nil
}

func (f *fakeAuth) Restore(context.Context) (bool, error) {
	if !f.restored {
		return false, nil
	}
	f.sessions.Store(&models.SessionCredentials{UserID: "restored", ClientKey: "k", Token: "t", Serial: "s"})
	return true, nil
}

// unknownRouter answers every read as unknown, like an unreachable server.
type unknownRouter struct{}

func (unknownRouter) Request(context.Context, models.SyncAtom, ...merger.Option) ([]models.DownloadParcel, bool, error) {
	return nil, false, nil
}

func newTestApp(t *testing.T, input ...string) (*App, *fakeAuth) {
	t.Helper()
	repos, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)

	logger := logging.NewDiscardLogger()
	clk := clock.NewManual(time.UnixMilli(1_700_000_000_000))
	bus := events.NewBus(logger)
	sessions := transport.NewSessions(nil)
	queue := upload.New(upload.Config{
		Targets: services.NewTargets(repos.Contents, repos.Drafts, clk),
		Tasks:   repos.Tasks,
		Clock:   clk,
		Bus:     bus,
	})
	auth := &fakeAuth{sessions: sessions}

	a := &App{
		config:   &config.Config{},
		logger:   logger,
		repos:    repos,
		bus:      bus,
		metrics:  metrics.New(),
		auth:     auth,
		sessions: sessions,
		contents: services.NewContentService(repos.Contents, queue, clk, logger),
		drafts:   services.NewDraftService(repos.Drafts, queue, clk, logger),
		board: services.NewBoardService(services.BoardConfig{
			DB: repos.DB, Router: unknownRouter{}, Queue: queue, Clock: clk,
		}),
		engine: services.NewEngine(services.EngineConfig{
			Sender: okSender{}, Sessions: sessions, Queue: idleQueue{}, Bus: bus, Clock: clk,
		}),
		queue:   queue,
		reader:  bufio.NewReader(strings.NewReader(strings.Join(input, "\n") + "\n")),
		out:     io.Discard,
		Mode:    ModeSignedOut,
		columns: []string{"TODO", "DONE"},
	}
	t.Cleanup(a.Close)
	return a, auth
}

type okSender struct{}

func (okSender) Send(context.Context, string, map[string]any, ...transport.Option) (*transport.Envelope, error) {
	return &transport.Envelope{Code: "0000"}, nil
}

// idleQueue keeps the engine from flushing during CLI tests.
type idleQueue struct{}

func (idleQueue) Restore(context.Context) (int, error) { return 0, nil }
func (idleQueue) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func stubSecret(t *testing.T, secret string) {
	t.Helper()
	orig := getSecret
	getSecret = func(io.Writer, string) ([]byte, error) { return []byte(secret), nil }
	t.Cleanup(func() { getSecret = orig })
}

func TestApp_LoginAndLogout(t *testing.T) {
	capturePrintln(t)
	stubSecret(t, "424242")
	a, auth := newTestApp(t, "me@example.com")
	ctx := context.Background()

	require.NoError(t, a.Login(ctx))
	assert.Equal(t, "me@example.com", auth.email)
	assert.Equal(t, "424242", auth.code)
	assert.True(t, a.isLoggedIn())
	assert.Equal(t, "(u-me@example.com online)", a.getStatus())

	require.NoError(t, a.Logout(ctx))
	assert.False(t, a.isLoggedIn())
	assert.Equal(t, 1, auth.logouts)
	assert.Equal(t, "(signed-out)", a.getStatus())
}

func TestApp_LoginFailureKeepsSignedOut(t *testing.T) {
	capturePrintln(t)
	stubSecret(t, "000000")
	a, auth := newTestApp(t, "me@example.com")
	auth.loginErr = errors.New("wrong code")

	require.Error(t, a.Login(context.Background()))
	assert.False(t, a.isLoggedIn())
}

func TestApp_ReloginEventSignsOut(t *testing.T) {
	capturePrintln(t)
	a, auth := newTestApp(t)
	auth.restored = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ok, err := a.auth.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	a.signedIn(ctx, "restored")
	go a.watchSession(ctx)

	require.Eventually(t, func() bool {
		a.bus.Publish(ctx, events.Event{Kind: events.Relogin, UserID: "restored"})
		return !a.isLoggedIn()
	}, time.Second, 5*time.Millisecond)
}

func TestApp_ContentCommands(t *testing.T) {
	out := capturePrintln(t)
	a, _ := newTestApp(t,
		"Groceries", "milk", "eggs", "", "TODO", "y",
	)
	a.userID = "u1"
	ctx := context.Background()

	require.NoError(t, a.Add(ctx))

	items, err := a.repos.Contents.ListByState(ctx, a.spaceID, "TODO", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	it := items[0]
	assert.Equal(t, models.StorageWaitUpload, it.StorageState)
	var p notePayload
	require.NoError(t, json.Unmarshal(it.Payload, &p))
	assert.Equal(t, notePayload{Title: "Groceries", Text: "milk\neggs"}, p)
	assert.Equal(t, 1, a.queue.Len())

	require.NoError(t, a.SetSync(ctx, it.ID, false))
	assert.Zero(t, a.queue.Len())

	require.NoError(t, a.List(ctx, nil))
	assert.Contains(t, out(), "== TODO (1)")

	require.ErrorIs(t, a.Move(ctx, []string{it.ID, "DONE"}), errUsage)
	require.ErrorIs(t, a.Move(ctx, []string{it.ID, "DONE", "x"}), errUsage)
	require.NoError(t, a.Move(ctx, []string{it.ID, "DONE", "0"}))
	moved, err := a.contents.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "DONE", moved.StateID)

	require.NoError(t, a.Remove(ctx, it.ID))
	require.NoError(t, a.Restore(ctx, it.ID))
	require.NoError(t, a.Status(ctx))
	assert.Contains(t, out(), "pending uploads: 0")
}

func TestApp_PurgeAsksForConfirmation(t *testing.T) {
	capturePrintln(t)
	a, _ := newTestApp(t, "Note", "", "", "", "n", "y")
	ctx := context.Background()

	require.NoError(t, a.Add(ctx))
	items, err := a.repos.Contents.ListByState(ctx, a.spaceID, "", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	id := items[0].ID

	require.NoError(t, a.Remove(ctx, id))
	require.Error(t, a.Purge(ctx, id))
	require.NoError(t, a.Purge(ctx, id))

	_, err = a.contents.Get(ctx, id)
	require.Error(t, err)
}

func TestApp_DraftLifecycle(t *testing.T) {
	capturePrintln(t)
	a, _ := newTestApp(t, "Idea", "first", "", "Idea", "second", "")
	ctx := context.Background()

	require.ErrorIs(t, a.Draft(ctx, []string{"post"}), errNoDraft)

	require.NoError(t, a.Draft(ctx, nil))
	id := a.draftID
	require.NotEmpty(t, id)
	require.NoError(t, a.Draft(ctx, nil))
	assert.Equal(t, id, a.draftID)

	d, err := a.drafts.Get(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, string(d.Payload), "second")

	require.ErrorIs(t, a.Draft(ctx, []string{"later"}), errUsage)
	require.NoError(t, a.Draft(ctx, []string{"discard"}))
	assert.Empty(t, a.draftID)
}
