// Package events is the process-wide notification seam of the sync engine.
// Sync components publish milestones; UI collaborators subscribe.
package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dmitrijs2005/liusync/internal/logging"
)

type Kind string

const (
	Login          Kind = "login"
	Logout         Kind = "logout"
	Relogin        Kind = "relogin"
	LatestUserInfo Kind = "latest-user-info"
	TaskDone       Kind = "task-done"
	TaskRejected   Kind = "task-rejected"
	SyncNum        Kind = "sync-num"
)

type Event struct {
	Kind     Kind
	UserID   string
	TaskID   string
	TargetID string
	// Err is set on task-rejected.
	Err error
	// Data carries the user-info payload on latest-user-info.
	Data json.RawMessage
	// Num is the pending upload count on sync-num.
	Num int
}

type subscriber struct {
	ch    chan Event
	kinds map[Kind]struct{}
}

func (s *subscriber) wants(k Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}

// Bus fans events out to subscribers without blocking the publisher.
// A nil *Bus discards everything.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	logger logging.Logger
}

func NewBus(logger logging.Logger) *Bus {
	return &Bus{subs: make(map[int]*subscriber), logger: logger}
}

// Subscribe registers a buffered channel receiving the given kinds, or every
// kind when none are listed. The returned func unsubscribes and closes the
// channel; calling it twice is fine.
func (b *Bus) Subscribe(buffer int, kinds ...Kind) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	s := &subscriber{ch: make(chan Event, buffer)}
	if len(kinds) > 0 {
		s.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.ch)
		})
	}
}

// Publish delivers ev to every interested subscriber whose buffer has room.
// Full subscribers miss the event.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		if !s.wants(ev.Kind) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			if b.logger != nil {
				b.logger.Warn(ctx, "event dropped for slow subscriber", "kind", ev.Kind)
			}
		}
	}
}
