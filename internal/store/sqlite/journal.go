// Package sqlite journals each session's fetched bars together with their
// derived indicator values. Signals are never stored.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"nifty-signal/internal/model"
)

// JournalConfig configures the SQLite journal.
type JournalConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/bars.db"
}

// Journal is a single-connection SQLite store for enriched bars.
type Journal struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// New opens the database in WAL mode and creates the schema.
func New(cfg JournalConfig) (*Journal, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("[sqlite] opened database", slog.String("path", cfg.DBPath))
	return &Journal{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS session_bars (
			instrument TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     INTEGER NOT NULL,
			vwap       REAL    NOT NULL,
			ema12      REAL    NOT NULL,
			ema26      REAL    NOT NULL,
			macd       REAL    NOT NULL,
			signal     REAL    NOT NULL,
			supertrend INTEGER NOT NULL,
			PRIMARY KEY (instrument, ts)
		);
	`)
	return err
}

// WriteSession upserts the enriched bars of one session in a single
// transaction. Bars recomputed on a later cycle replace earlier rows.
func (j *Journal) WriteSession(ctx context.Context, instrument string, bars []model.EnrichedBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO session_bars
			(instrument, ts, open, high, low, close, volume, vwap, ema12, ema26, macd, signal, supertrend)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, instrument, b.TS.Unix(),
			b.Open, b.High, b.Low, b.Close, b.Volume,
			b.VWAP, b.EMA12, b.EMA26, b.MACD, b.Signal, int(b.Supertrend))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert: %w", err)
		}
	}

	return tx.Commit()
}

// ReadSession returns the journaled bars for instrument with from <= ts < to,
// oldest first.
func (j *Journal) ReadSession(ctx context.Context, instrument string, from, to time.Time) ([]model.EnrichedBar, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume, vwap, ema12, ema26, macd, signal, supertrend
		FROM session_bars
		WHERE instrument = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, instrument, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite query: %w", err)
	}
	defer rows.Close()

	var out []model.EnrichedBar
	for rows.Next() {
		var (
			b     model.EnrichedBar
			ts    int64
			trend int
		)
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume,
			&b.VWAP, &b.EMA12, &b.EMA26, &b.MACD, &b.Signal, &trend); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		b.TS = time.Unix(ts, 0).UTC()
		b.Supertrend = model.Trend(trend)
		out = append(out, b)
	}
	return out, rows.Err()
}

// PruneBefore deletes rows older than cutoff and returns how many were removed.
func (j *Journal) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM session_bars WHERE ts < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite prune: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
