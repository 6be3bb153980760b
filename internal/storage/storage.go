// Package storage provides SQLite-backed persistence for simulation results.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fixturelab/leaguesim/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db          *sql.DB
	keepPerComp int
}

// New opens or creates the SQLite database at dbPath, keeping at most
// keepPerComp results per competition. An empty dbPath defaults to
// $TMPDIR/leaguesim/data.db.
func New(keepPerComp int, dbPath string) (*Storage, error) {
	if keepPerComp < 1 {
		keepPerComp = 1
	}
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "leaguesim", "data.db")
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
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, keepPerComp: keepPerComp}
	if err := s.createTables(); err != nil {
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
		`CREATE TABLE IF NOT EXISTS simulations (
			id                TEXT PRIMARY KEY,
			competition_id    TEXT NOT NULL,
			execution_date    INTEGER NOT NULL,
			trial_count       INTEGER NOT NULL,
			executed_by       TEXT NOT NULL,
			duration_ms       INTEGER NOT NULL,
			algorithm_version TEXT NOT NULL,
			is_latest         INTEGER NOT NULL DEFAULT 0,
			is_important      INTEGER NOT NULL DEFAULT 0,
			ratings           TEXT NOT NULL,
			predictions       TEXT NOT NULL,
			run_meta          TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_simulations_competition ON simulations(competition_id, execution_date DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_simulations_latest ON simulations(competition_id, is_latest)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveResult persists a result as the new latest for its competition. In one
// transaction it clears the previous latest flag, inserts the row, and
// applies retention: rows beyond the newest keepPerComp that are neither
// latest nor important are deleted.
func (s *Storage) SaveResult(result *models.SimulationResult) error {
	if err := result.Validate(); err != nil {
		return fmt.Errorf("invalid result: %w", err)
	}
	ratings, err := json.Marshal(result.Ratings)
	if err != nil {
		return fmt.Errorf("failed to marshal ratings: %w", err)
	}
	predictions, err := json.Marshal(result.Predictions)
	if err != nil {
		return fmt.Errorf("failed to marshal predictions: %w", err)
	}
	meta, err := json.Marshal(result.Meta)
	if err != nil {
		return fmt.Errorf("failed to marshal run meta: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return persistErr("save", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(
		`UPDATE simulations SET is_latest = 0 WHERE competition_id = ? AND is_latest = 1`,
		result.CompetitionID,
	); err != nil {
		return persistErr("save", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO simulations
			(id, competition_id, execution_date, trial_count, executed_by,
			 duration_ms, algorithm_version, is_latest, is_important,
			 ratings, predictions, run_meta)
		VALUES (?,?,?,?,?,?,?,1,?,?,?,?)`,
		result.ID, result.CompetitionID, result.ExecutionDate.UnixNano(),
		result.TrialCount, result.ExecutedBy, result.DurationMs,
		result.AlgorithmVersion, boolToInt(result.IsImportant),
		string(ratings), string(predictions), string(meta),
	); err != nil {
		return persistErr("save", err)
	}

	if _, err := tx.Exec(`
		DELETE FROM simulations
		WHERE competition_id = ? AND is_latest = 0 AND is_important = 0
		  AND id NOT IN (
			SELECT id FROM simulations WHERE competition_id = ?
			ORDER BY execution_date DESC LIMIT ?
		  )`,
		result.CompetitionID, result.CompetitionID, s.keepPerComp,
	); err != nil {
		return persistErr("save", err)
	}

	if err := tx.Commit(); err != nil {
		return persistErr("save", err)
	}
	result.IsLatest = true
	return nil
}

// GetLatest returns the current latest result for a competition.
func (s *Storage) GetLatest(competitionID string) (*models.SimulationResult, error) {
	row := s.db.QueryRow(
		`SELECT `+resultCols+` FROM simulations WHERE competition_id = ? AND is_latest = 1`,
		competitionID,
	)
	return scanResult(row.Scan)
}

// GetByID returns one result by its ID.
func (s *Storage) GetByID(id string) (*models.SimulationResult, error) {
	row := s.db.QueryRow(`SELECT `+resultCols+` FROM simulations WHERE id = ?`, id)
	return scanResult(row.Scan)
}

// History returns blob-free summaries, newest first. An empty competitionID
// spans all competitions; limit <= 0 means no limit.
func (s *Storage) History(competitionID string, limit int) ([]models.SimulationSummary, error) {
	query := `SELECT id, competition_id, execution_date, trial_count, executed_by,
		duration_ms, algorithm_version, is_latest, is_important FROM simulations`
	args := []any{}
	if competitionID != "" {
		query += ` WHERE competition_id = ?`
		args = append(args, competitionID)
	}
	query += ` ORDER BY execution_date DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, persistErr("history", err)
	}
	defer rows.Close()

	summaries := []models.SimulationSummary{}
	for rows.Next() {
		var sum models.SimulationSummary
		var executionNano int64
		var latest, important int
		if err := rows.Scan(
			&sum.ID, &sum.CompetitionID, &executionNano, &sum.TrialCount,
			&sum.ExecutedBy, &sum.DurationMs, &sum.AlgorithmVersion,
			&latest, &important,
		); err != nil {
			return nil, persistErr("history", err)
		}
		sum.ExecutionDate = time.Unix(0, executionNano)
		sum.IsLatest = latest != 0
		sum.IsImportant = important != 0
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Delete removes one result. Latest and important results are refused with
// models.ErrProtectedResult. The protection check and the delete run in one
// transaction so a concurrent save cannot slip a latest flag in between.
func (s *Storage) Delete(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return persistErr("delete", err)
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRow(`SELECT is_latest, is_important FROM simulations WHERE id = ?`, id)
	var latest, important int
	err = row.Scan(&latest, &important)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("simulation %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return persistErr("delete", err)
	}
	if latest != 0 || important != 0 {
		return fmt.Errorf("simulation %s: %w", id, models.ErrProtectedResult)
	}
	if _, err := tx.Exec(
		`DELETE FROM simulations WHERE id = ? AND is_latest = 0 AND is_important = 0`, id,
	); err != nil {
		return persistErr("delete", err)
	}
	if err := tx.Commit(); err != nil {
		return persistErr("delete", err)
	}
	return nil
}

// DeleteMany removes a batch of results, stopping at the first protected or
// missing one. Returns how many were deleted.
func (s *Storage) DeleteMany(ids []string) (int, error) {
	deleted := 0
	for _, id := range ids {
		if err := s.Delete(id); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// MarkImportant toggles deletion protection on a result.
func (s *Storage) MarkImportant(id string, important bool) error {
	res, err := s.db.Exec(
		`UPDATE simulations SET is_important = ? WHERE id = ?`,
		boolToInt(important), id,
	)
	if err != nil {
		return persistErr("mark important", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("simulation %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// Stats aggregates run counts across all competitions.
func (s *Storage) Stats() (*models.SimulationStats, error) {
	row := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(MAX(execution_date), 0), COALESCE(AVG(duration_ms), 0)
		FROM simulations`)
	var stats models.SimulationStats
	var lastNano int64
	if err := row.Scan(&stats.TotalRuns, &lastNano, &stats.AverageDurationMs); err != nil {
		return nil, persistErr("stats", err)
	}
	if lastNano > 0 {
		stats.LastExecution = time.Unix(0, lastNano)
	}
	return &stats, nil
}

const resultCols = `id, competition_id, execution_date, trial_count, executed_by,
	duration_ms, algorithm_version, is_latest, is_important, ratings, predictions, run_meta`

func scanResult(scan func(...any) error) (*models.SimulationResult, error) {
	var r models.SimulationResult
	var executionNano int64
	var latest, important int
	var ratings, predictions, meta string
	err := scan(
		&r.ID, &r.CompetitionID, &executionNano, &r.TrialCount, &r.ExecutedBy,
		&r.DurationMs, &r.AlgorithmVersion, &latest, &important,
		&ratings, &predictions, &meta,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, persistErr("scan result", err)
	}
	r.ExecutionDate = time.Unix(0, executionNano)
	r.IsLatest = latest != 0
	r.IsImportant = important != 0
	if err := json.Unmarshal([]byte(ratings), &r.Ratings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ratings: %w", err)
	}
	if err := json.Unmarshal([]byte(predictions), &r.Predictions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal predictions: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &r.Meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run meta: %w", err)
	}
	return &r, nil
}

// persistErr wraps a storage failure, flagging lock contention as transient
// so the orchestrator's retry loop can take another pass.
func persistErr(op string, err error) error {
	msg := strings.ToLower(err.Error())
	transient := strings.Contains(msg, "locked") || strings.Contains(msg, "busy")
	return &models.PersistenceError{Op: op, Transient: transient, Err: err}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
