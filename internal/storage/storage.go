// Package storage provides SQLite-backed persistence for runs, sweep events,
// outcomes, grid results and paper trades.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/sweepscope/internal/gridsearch"
	"github.com/rewired-gh/sweepscope/internal/models"
	"github.com/rewired-gh/sweepscope/internal/outcome"
	"github.com/rewired-gh/sweepscope/internal/strategy"
	"github.com/rewired-gh/sweepscope/internal/sweep"
)

// Run kinds.
const (
	KindDetect   = "detect"
	KindScan     = "scan"
	KindBacktest = "backtest"
	KindLive     = "live"
)

// Run is one invocation whose results were persisted.
type Run struct {
	ID        string
	Kind      string
	Symbol    string
	Params    string
	CreatedAt time.Time
}

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db      *sql.DB
	maxRuns int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/sweepscope/data.db. maxRuns <= 0 keeps every run.
func New(maxRuns int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "sweepscope", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db, maxRuns: maxRuns}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			symbol      TEXT,
			params      TEXT NOT NULL DEFAULT '{}',
			created_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sweep_events (
			run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq          INTEGER NOT NULL,
			ts_start     REAL NOT NULL,
			ts_end       REAL NOT NULL,
			direction    INTEGER NOT NULL,
			price_start  REAL NOT NULL,
			price_end    REAL NOT NULL,
			volume_total REAL NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			event_seq    INTEGER NOT NULL,
			direction    INTEGER NOT NULL,
			ret_h        REAL NOT NULL,
			mfe_h        REAL NOT NULL,
			mae_h        REAL NOT NULL,
			volume_total REAL NOT NULL,
			PRIMARY KEY (run_id, event_seq)
		)`,
		`CREATE TABLE IF NOT EXISTS grid_results (
			run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq             INTEGER NOT NULL,
			window_sec      REAL NOT NULL,
			price_bp        REAL NOT NULL,
			volume_min      REAL NOT NULL,
			tie_break       TEXT NOT NULL,
			events          INTEGER NOT NULL,
			evaluated       INTEGER NOT NULL,
			no_forward_tick INTEGER NOT NULL,
			no_horizon_tick INTEGER NOT NULL,
			summary         TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			session_id  TEXT NOT NULL,
			dir         INTEGER NOT NULL,
			entry_ts    REAL NOT NULL,
			entry_price REAL NOT NULL,
			exit_ts     REAL NOT NULL,
			exit_price  REAL NOT NULL,
			notional    REAL NOT NULL,
			pnl         REAL NOT NULL,
			bankroll    REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, exit_ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateRun registers a run and returns it. params is stored as JSON.
func (s *Storage) CreateRun(kind, symbol string, params any) (*Run, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run params: %w", err)
	}
	run := &Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		Symbol:    symbol,
		Params:    string(paramsJSON),
		CreatedAt: time.Now(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`INSERT INTO runs (id, kind, symbol, params, created_at) VALUES (?,?,?,?,?)`,
		run.ID, run.Kind, run.Symbol, run.Params, run.CreatedAt.UnixNano()); err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	if s.maxRuns > 0 {
		if _, err := tx.Exec(`
			DELETE FROM runs WHERE id NOT IN (
				SELECT id FROM runs ORDER BY created_at DESC LIMIT ?
			)`, s.maxRuns); err != nil {
			return nil, fmt.Errorf("failed to enforce run cap: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *Storage) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT id, kind, symbol, params, created_at
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		var symbol sql.NullString
		var createdAtNano int64
		if err := rows.Scan(&r.ID, &r.Kind, &symbol, &r.Params, &createdAtNano); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Symbol = symbol.String
		r.CreatedAt = time.Unix(0, createdAtNano)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveEvents stores events in order under runID.
func (s *Storage) SaveEvents(runID string, events []models.SweepEvent) error {
	return s.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO sweep_events
				(run_id, seq, ts_start, ts_end, direction, price_start, price_end, volume_total)
			VALUES (?,?,?,?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, e := range events {
			if _, err := stmt.Exec(runID, i, e.TsStart, e.TsEnd, int(e.Direction),
				e.PriceStart, e.PriceEnd, e.VolumeTotal); err != nil {
				return fmt.Errorf("failed to insert event %d: %w", i, err)
			}
		}
		return nil
	})
}

// AppendEvent stores one event after the last stored event of the run.
func (s *Storage) AppendEvent(runID string, e models.SweepEvent) error {
	_, err := s.db.Exec(`
		INSERT INTO sweep_events
			(run_id, seq, ts_start, ts_end, direction, price_start, price_end, volume_total)
		SELECT ?, COALESCE(MAX(seq) + 1, 0), ?, ?, ?, ?, ?, ?
		FROM sweep_events WHERE run_id = ?`,
		runID, e.TsStart, e.TsEnd, int(e.Direction), e.PriceStart, e.PriceEnd, e.VolumeTotal, runID)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// GetEvents loads the events of a run in insertion order.
func (s *Storage) GetEvents(runID string) ([]models.SweepEvent, error) {
	rows, err := s.db.Query(`
		SELECT ts_start, ts_end, direction, price_start, price_end, volume_total
		FROM sweep_events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []models.SweepEvent{}
	for rows.Next() {
		var e models.SweepEvent
		var dir int
		if err := rows.Scan(&e.TsStart, &e.TsEnd, &dir, &e.PriceStart, &e.PriceEnd, &e.VolumeTotal); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Direction = models.Direction(dir)
		events = append(events, e)
	}
	return events, rows.Err()
}

// SaveOutcomes stores outcome records keyed by their event index.
func (s *Storage) SaveOutcomes(runID string, records []models.OutcomeRecord) error {
	return s.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO outcomes
				(run_id, event_seq, direction, ret_h, mfe_h, mae_h, volume_total)
			VALUES (?,?,?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range records {
			if _, err := stmt.Exec(runID, r.EventIndex, int(r.Direction),
				r.RetH, r.MFEH, r.MAEH, r.VolumeTotal); err != nil {
				return fmt.Errorf("failed to insert outcome %d: %w", r.EventIndex, err)
			}
		}
		return nil
	})
}

// GetOutcomes loads the outcome records of a run ordered by event index.
func (s *Storage) GetOutcomes(runID string) ([]models.OutcomeRecord, error) {
	rows, err := s.db.Query(`
		SELECT event_seq, direction, ret_h, mfe_h, mae_h, volume_total
		FROM outcomes WHERE run_id = ? ORDER BY event_seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	records := []models.OutcomeRecord{}
	for rows.Next() {
		var r models.OutcomeRecord
		var dir int
		if err := rows.Scan(&r.EventIndex, &dir, &r.RetH, &r.MFEH, &r.MAEH, &r.VolumeTotal); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		r.Direction = models.Direction(dir)
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveGridResults stores one row per parameter combination in order.
func (s *Storage) SaveGridResults(runID string, results []gridsearch.Result) error {
	return s.inTx(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO grid_results
				(run_id, seq, window_sec, price_bp, volume_min, tie_break,
				 events, evaluated, no_forward_tick, no_horizon_tick, summary)
			VALUES (?,?,?,?,?,?,?,?,?,?,?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, r := range results {
			summaryJSON, err := json.Marshal(r.Summary)
			if err != nil {
				return fmt.Errorf("failed to marshal summary: %w", err)
			}
			if _, err := stmt.Exec(runID, i, r.Params.WindowSec, r.Params.PriceThresholdBP, r.Params.VolumeMin,
				r.Params.TieBreak.String(), r.Events, r.Evaluated, r.NoForwardTick, r.NoHorizonTick,
				string(summaryJSON)); err != nil {
				return fmt.Errorf("failed to insert grid result %d: %w", i, err)
			}
		}
		return nil
	})
}

// GetGridResults loads the grid results of a run in combination order.
func (s *Storage) GetGridResults(runID string) ([]gridsearch.Result, error) {
	rows, err := s.db.Query(`
		SELECT window_sec, price_bp, volume_min, tie_break,
		       events, evaluated, no_forward_tick, no_horizon_tick, summary
		FROM grid_results WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query grid results: %w", err)
	}
	defer rows.Close()

	results := []gridsearch.Result{}
	for rows.Next() {
		var r gridsearch.Result
		var tb, summaryJSON string
		if err := rows.Scan(&r.Params.WindowSec, &r.Params.PriceThresholdBP, &r.Params.VolumeMin, &tb,
			&r.Events, &r.Evaluated, &r.NoForwardTick, &r.NoHorizonTick, &summaryJSON); err != nil {
			return nil, fmt.Errorf("failed to scan grid result: %w", err)
		}
		if r.Params.TieBreak, err = sweep.ParseTieBreak(tb); err != nil {
			return nil, err
		}
		var summary outcome.Summary
		if err := json.Unmarshal([]byte(summaryJSON), &summary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
		}
		r.Summary = summary
		results = append(results, r)
	}
	return results, rows.Err()
}

// SaveTrade appends one closed paper trade.
func (s *Storage) SaveTrade(runID string, t *strategy.Trade) error {
	_, err := s.db.Exec(`
		INSERT INTO trades
			(run_id, session_id, dir, entry_ts, entry_price, exit_ts, exit_price, notional, pnl, bankroll)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		runID, t.SessionID, int(t.Dir), t.EntryTs, t.EntryPrice, t.ExitTs, t.ExitPrice,
		t.Notional, t.PnL, t.Bankroll,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// GetTrades loads the trades of a run by exit time.
func (s *Storage) GetTrades(runID string) ([]strategy.Trade, error) {
	rows, err := s.db.Query(`
		SELECT session_id, dir, entry_ts, entry_price, exit_ts, exit_price, notional, pnl, bankroll
		FROM trades WHERE run_id = ? ORDER BY exit_ts, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := []strategy.Trade{}
	for rows.Next() {
		var t strategy.Trade
		var dir int
		if err := rows.Scan(&t.SessionID, &dir, &t.EntryTs, &t.EntryPrice, &t.ExitTs, &t.ExitPrice,
			&t.Notional, &t.PnL, &t.Bankroll); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Dir = models.Direction(dir)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *Storage) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
