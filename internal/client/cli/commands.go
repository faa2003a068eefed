package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/liusync/internal/client/models"
	"github.com/dmitrijs2005/liusync/internal/client/services"
)

var (
	errUsage   = errors.New("usage")
	errNoDraft = errors.New("no draft in progress")
)

type notePayload struct {
	Title string `json:"title"`
	Text  string `json:"text,omitempty"`
}

func (a *App) readNote() (json.RawMessage, error) {
	title, err := getSimpleText(a.reader, "Title", a.out)
	if err != nil {
		return nil, err
	}
	text, err := GetMultiline(a.reader, "Text", a.out)
	if err != nil {
		return nil, err
	}
	return json.Marshal(notePayload{Title: title, Text: text})
}

// Add creates a note in a column, optionally synced to the cloud.
func (a *App) Add(ctx context.Context) error {
	payload, err := a.readNote()
	if err != nil {
		return err
	}
	column, err := getSimpleText(a.reader, "Column (empty for none)", a.out)
	if err != nil {
		return err
	}
	answer, err := getSimpleText(a.reader, "Sync to cloud? (y/n)", a.out)
	if err != nil {
		return err
	}

	it, err := a.contents.Create(ctx, services.NewContent{
		SpaceID: a.spaceID,
		StateID: column,
		Payload: payload,
		Sync:    yes(answer),
	})
	if err != nil {
		return err
	}
	printlnFn("Added", it.ID, string(it.StorageState))
	return nil
}

func (a *App) Edit(ctx context.Context, id string) error {
	payload, err := a.readNote()
	if err != nil {
		return err
	}
	it, err := a.contents.Edit(ctx, id, payload)
	if err != nil {
		return err
	}
	printlnFn("Saved", it.ID)
	return nil
}

// List loads the given columns, or the default board, and prints them.
func (a *App) List(ctx context.Context, columns []string) error {
	if len(columns) == 0 {
		columns = a.columns
	}
	cols, err := a.board.LoadColumns(ctx, a.spaceID, columns)
	if err != nil {
		return err
	}
	for _, c := range columns {
		printlnFn(fmt.Sprintf("== %s (%d)", c, len(cols[c])))
		for i, it := range cols[c] {
			printlnFn(fmt.Sprintf("%2d. %s %s %s", i, it.ID, title(it), it.StorageState))
		}
	}
	return nil
}

func title(it *models.ContentItem) string {
	var p notePayload
	if err := json.Unmarshal(it.Payload, &p); err != nil || p.Title == "" {
		return "(untitled)"
	}
	return p.Title
}

// Move handles "move <id> <column> <index>".
func (a *App) Move(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: move <id> <column> <index>", errUsage)
	}
	idx, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("%w: index must be a number", errUsage)
	}
	updates, err := a.board.MoveItem(ctx, args[0], args[1], idx)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("Moved, %d stamp(s) rewritten", len(updates)))
	return nil
}

func (a *App) SetSync(ctx context.Context, id string, on bool) error {
	it, err := a.contents.SetSync(ctx, id, on)
	if err != nil {
		return err
	}
	printlnFn(it.ID, string(it.StorageState))
	return nil
}

func (a *App) Remove(ctx context.Context, id string) error {
	_, err := a.contents.Remove(ctx, id)
	return err
}

func (a *App) Restore(ctx context.Context, id string) error {
	_, err := a.contents.Restore(ctx, id)
	return err
}

func (a *App) Purge(ctx context.Context, id string) error {
	answer, err := getSimpleText(a.reader, "Delete permanently? (y/n)", a.out)
	if err != nil {
		return err
	}
	return a.contents.Purge(ctx, id, yes(answer))
}

// Draft autosaves the current draft. "draft post" and "draft discard" end it.
func (a *App) Draft(ctx context.Context, args []string) error {
	a.mu.Lock()
	id := a.draftID
	a.mu.Unlock()

	if len(args) > 0 {
		if id == "" {
			return errNoDraft
		}
		var err error
		switch args[0] {
		case "post":
			err = a.drafts.Post(ctx, id)
		case "discard":
			err = a.drafts.Discard(ctx, id)
		default:
			return fmt.Errorf("%w: draft [post|discard]", errUsage)
		}
		if err != nil {
			return err
		}
		a.mu.Lock()
		a.draftID = ""
		a.mu.Unlock()
		return nil
	}

	payload, err := a.readNote()
	if err != nil {
		return err
	}
	d, err := a.drafts.Save(ctx, id, a.spaceID, payload)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.draftID = d.ID
	a.mu.Unlock()
	printlnFn("Draft saved", d.ID)
	return nil
}

// Status prints the pending upload count and the engine counters.
func (a *App) Status(ctx context.Context) error {
	printlnFn(fmt.Sprintf("pending uploads: %d", a.queue.Len()))
	var sb strings.Builder
	a.metrics.WritePrometheus(&sb)
	if sb.Len() > 0 {
		printlnFn(strings.TrimRight(sb.String(), "\n"))
	}
	return nil
}
