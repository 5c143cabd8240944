package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrRunNotFound = errors.New("db: run not found")

// Run groups the rows written by one gateway or monitor session.
type Run struct {
	ID        string
	Kind      string
	Source    string
	StartedAt time.Time
	EndedAt   *time.Time
}

// StartRun records a new run with a fresh identifier.
func (db *DB) StartRun(kind, source string, at time.Time) (Run, error) {
	r := Run{ID: uuid.NewString(), Kind: kind, Source: source, StartedAt: at}
	_, err := db.Exec(
		`INSERT INTO runs (run_id, kind, source, started_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.Kind, r.Source, at.UnixNano(),
	)
	if err != nil {
		return Run{}, fmt.Errorf("failed to start run: %w", err)
	}
	return r, nil
}

// EndRun stamps the end time of a run.
func (db *DB) EndRun(id string, at time.Time) error {
	res, err := db.Exec(`UPDATE runs SET ended_at = ? WHERE run_id = ?`, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// GetRun loads a run by id.
func (db *DB) GetRun(id string) (Run, error) {
	var (
		r       Run
		started int64
		ended   sql.NullInt64
	)
	err := db.QueryRow(
		`SELECT run_id, kind, source, started_at, ended_at FROM runs WHERE run_id = ?`, id,
	).Scan(&r.ID, &r.Kind, &r.Source, &started, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = time.Unix(0, started)
	if ended.Valid {
		t := time.Unix(0, ended.Int64)
		r.EndedAt = &t
	}
	return r, nil
}
