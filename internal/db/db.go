// Package db stores gateway and monitor history in SQLite: one row per
// relayed egress frame and one per monitor decision, grouped by run.
package db

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// connPragmas are applied by the driver to every pooled connection.
const connPragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

type DB struct {
	*sql.DB
	path string
}

// OpenDB opens the database at path without touching its schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path+connPragmas)
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// NewDB opens the database at path and applies all embedded migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string { return db.path }
