// Package store opens the on-device SQLite database and exposes the
// repositories the sync engine works with.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/liusync/internal/client/migrations"
	"github.com/dmitrijs2005/liusync/internal/client/repositories/contents"
	"github.com/dmitrijs2005/liusync/internal/client/repositories/drafts"
	"github.com/dmitrijs2005/liusync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/liusync/internal/client/repositories/tasks"

	_ "modernc.org/sqlite"
)

type Repositories struct {
	DB       *sql.DB
	Contents contents.Repository
	Drafts   drafts.Repository
	Metadata metadata.Repository
	Tasks    tasks.Repository
}

// Close releases the underlying database.
func (r *Repositories) Close() error {
	return r.DB.Close()
}

// Open opens dsn with the pure-Go sqlite driver and migrates it.
func Open(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dsn, err)
	}
	// sqlite allows one writer; a single connection also keeps :memory:
	// databases shared between callers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dsn, err)
	}
	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repositories{
		DB:       db,
		Contents: contents.NewSQLiteRepository(db),
		Drafts:   drafts.NewSQLiteRepository(db),
		Metadata: metadata.NewSQLiteRepository(db),
		Tasks:    tasks.NewSQLiteRepository(db),
	}, nil
}
