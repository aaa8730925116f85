package main

import (
	"context"
	"database/sql"
	"fmt"
	"scribe/transcripts"

	_ "github.com/mattn/go-sqlite3"
)

// initDB opens the history database at path and creates its tables.
func initDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	_, err = db.ExecContext(ctx, `
	PRAGMA busy_timeout       = 10000;
	PRAGMA journal_mode       = WAL;
	PRAGMA journal_size_limit = 200000000;
	PRAGMA synchronous        = NORMAL;
	PRAGMA foreign_keys       = ON;
	PRAGMA temp_store         = MEMORY;
	PRAGMA cache_size         = -16000;`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring %s: %w", path, err)
	}

	if err := transcripts.NewSQLiteRepo(db).Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
