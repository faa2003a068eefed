// Package ordering assigns sort stamps to manually reordered column items.
// Items are ordered by stamp descending. After a move only the items whose
// stamp breaks the order around them are rewritten, so a move usually costs
// a single write instead of renumbering the column.
package ordering

import (
	"errors"

	"github.com/dmitrijs2005/liusync/internal/timex"
)

var ErrIndexOutOfRange = errors.New("index out of range")

// Item is a column entry in display order. A nil Stamp means the item was
// never placed.
type Item struct {
	ID      string
	StateID string
	Stamp   *int64
}

// Update is a stamp (and column) rewrite to persist and upload.
type Update struct {
	ID       string
	StateID  string
	NewStamp int64
}

// Reorder walks items top to bottom after the item at movedIndex was dropped
// into groupID and returns the rewrites needed. Items are evaluated in place:
// a stamp rewritten at position i is what position i+1 sees as its
// predecessor. Items coming from another group are always rewritten.
func Reorder(items []Item, movedIndex int, groupID string, now int64) ([]Update, error) {
	if movedIndex < 0 || movedIndex >= len(items) {
		return nil, ErrIndexOutOfRange
	}

	stamps := make([]*int64, len(items))
	for i := range items {
		stamps[i] = items[i].Stamp
	}

	var updates []Update
	for i, it := range items {
		next := newStamp(i, stamps, now)
		if it.StateID != groupID || stamps[i] == nil || *stamps[i] != next {
			updates = append(updates, Update{ID: it.ID, StateID: groupID, NewStamp: next})
			v := next
			stamps[i] = &v
		}
	}
	return updates, nil
}

func stampOr(p *int64, now int64) int64 {
	if p == nil {
		return now
	}
	return *p
}

func newStamp(i int, stamps []*int64, now int64) int64 {
	total := len(stamps)
	this := stampOr(stamps[i], now)
	if total <= 1 {
		return this
	}

	nextStamp := now
	if i+1 < total {
		nextStamp = stampOr(stamps[i+1], now)
	}
	prevStamp := now
	if i > 0 {
		prevStamp = stampOr(stamps[i-1], now)
	}

	if i == 0 {
		if this <= nextStamp {
			return now
		}
		return this
	}

	if i == total-1 {
		if this >= prevStamp {
			return prevStamp - timex.Minute
		}
		return this
	}

	if prevStamp > nextStamp {
		sticksOut := prevStamp <= this && nextStamp <= this
		sinksIn := prevStamp >= this && nextStamp >= this
		if sticksOut || sinksIn {
			return midpoint(prevStamp, nextStamp)
		}
	}
	return this
}

// midpoint rounds halves up, like Math.round.
func midpoint(a, b int64) int64 {
	return floorDiv(a+b+1, 2)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Move returns a copy of items with the element at from placed at to.
func Move(items []Item, from, to int) ([]Item, error) {
	if from < 0 || from >= len(items) || to < 0 || to >= len(items) {
		return nil, ErrIndexOutOfRange
	}
	out := make([]Item, 0, len(items))
	moved := items[from]
	for i, it := range items {
		if i != from {
			out = append(out, it)
		}
	}
	out = append(out, Item{})
	copy(out[to+1:], out[to:])
	out[to] = moved
	return out, nil
}
