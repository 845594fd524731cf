package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"nifty-signal/internal/markethours"
	sqlitestore "nifty-signal/internal/store/sqlite"
)

// openJournal creates the database directory if needed and opens the journal.
func openJournal(dbPath string) (*sqlitestore.Journal, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir %s: %w", dir, err)
		}
	}
	journal, err := sqlitestore.New(sqlitestore.JournalConfig{DBPath: dbPath})
	if err != nil {
		return nil, fmt.Errorf("sqlite %s: %w", dbPath, err)
	}
	return journal, nil
}

// dumpSession writes the journaled bars of one IST trading day to w as JSON
// lines, oldest first.
func dumpSession(ctx context.Context, w io.Writer, dbPath, instrument, day string) (int, error) {
	if dbPath == "" {
		return 0, fmt.Errorf("dump: no database path (set SQLITE_PATH or -db)")
	}
	date, err := time.ParseInLocation("2006-01-02", day, markethours.IST)
	if err != nil {
		return 0, fmt.Errorf("dump: invalid day %q: %w", day, err)
	}

	journal, err := openJournal(dbPath)
	if err != nil {
		return 0, fmt.Errorf("dump: %w", err)
	}
	defer journal.Close()

	bars, err := journal.ReadSession(ctx, instrument, date, date.AddDate(0, 0, 1))
	if err != nil {
		return 0, fmt.Errorf("dump: %w", err)
	}

	enc := json.NewEncoder(w)
	for _, b := range bars {
		b.TS = b.TS.In(markethours.IST)
		if err := enc.Encode(b); err != nil {
			return 0, fmt.Errorf("dump: encode: %w", err)
		}
	}
	return len(bars), nil
}
