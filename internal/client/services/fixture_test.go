package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/liusync/internal/client/events"
	"github.com/dmitrijs2005/liusync/internal/client/models"
	"github.com/dmitrijs2005/liusync/internal/client/store"
	"github.com/dmitrijs2005/liusync/internal/client/transport"
	"github.com/dmitrijs2005/liusync/internal/client/upload"
	"github.com/dmitrijs2005/liusync/internal/clock"
	"github.com/dmitrijs2005/liusync/internal/common"
	"github.com/dmitrijs2005/liusync/internal/logging"
)

const startMilli = 1_700_000_000_000

type sent struct {
	path string
	body map[string]any
}

// fakeSender acknowledges every sync-set atom and answers anything else with
// an empty success envelope.
type fakeSender struct {
	mu    sync.Mutex
	calls []sent
	data  json.RawMessage
}

func (f *fakeSender) Send(_ context.Context, path string, body map[string]any, _ ...transport.Option) (*transport.Envelope, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sent{path: path, body: body})
	data := f.data
	f.mu.Unlock()

	if atoms, ok := body["plz_enc_atoms"].([]models.SetAtom); ok {
		res := make([]models.AtomResult, 0, len(atoms))
		for _, a := range atoms {
			res = append(res, models.AtomResult{Code: common.CodeOK, TaskID: a.TaskID})
		}
		b, _ := json.Marshal(models.SyncResponse{Results: res})
		return &transport.Envelope{Code: common.CodeOK, Data: b}, nil
	}
	return &transport.Envelope{Code: common.CodeOK, Data: data}, nil
}

func (f *fakeSender) Calls() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.calls...)
}

type fixture struct {
	repos   *store.Repositories
	clock   *clock.Manual
	sender  *fakeSender
	bus     *events.Bus
	queue   *upload.Queue
	targets *Targets
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })

	f := &fixture{
		repos:  repos,
		clock:  clock.NewManual(time.UnixMilli(startMilli)),
		sender: &fakeSender{},
		bus:    events.NewBus(logging.NewDiscardLogger()),
	}
	f.targets = NewTargets(repos.Contents, repos.Drafts, f.clock)
	f.queue = upload.New(upload.Config{
		Sender:  f.sender,
		Targets: f.targets,
		Tasks:   repos.Tasks,
		Clock:   f.clock,
		Bus:     f.bus,
	})
	return f
}

func (f *fixture) contents() ContentService {
	return NewContentService(f.repos.Contents, f.queue, f.clock, nil)
}

func (f *fixture) drafts() DraftService {
	return NewDraftService(f.repos.Drafts, f.queue, f.clock, nil)
}

// put stores an item directly, bypassing the services.
const testSpace = "space"

func (f *fixture) put(t *testing.T, it *models.ContentItem) *models.ContentItem {
	t.Helper()
	if it.SpaceID == "" {
		it.SpaceID = testSpace
	}
	if it.OState == "" {
		it.OState = models.OStateOK
	}
	if it.StorageState == "" {
		it.StorageState = models.StorageCloud
	}
	if it.StorageState == models.StorageCloud && it.SyncedStamp == 0 {
		it.SyncedStamp = 1
	}
	require.NoError(t, f.repos.Contents.Put(context.Background(), it))
	return it
}

func (f *fixture) get(t *testing.T, id string) *models.ContentItem {
	t.Helper()
	it, err := f.repos.Contents.Get(context.Background(), id)
	require.NoError(t, err)
	return it
}

func (f *fixture) pendingKind(id string) models.OperationKind {
	task, ok := f.queue.Pending(id)
	if !ok {
		return ""
	}
	return task.Kind
}

func stamp(v int64) *int64 { return &v }
