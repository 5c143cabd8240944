package db

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/cellgate/internal/httputil"
	"github.com/banshee-data/cellgate/internal/monitoring"
)

// TableStats is the row count of one table.
type TableStats struct {
	Name string `json:"name"`
	Rows int64  `json:"rows"`
}

// Stats returns row counts for the tables the gateway owns.
func (db *DB) Stats() ([]TableStats, error) {
	var out []TableStats
	for _, table := range []string{"runs", "frames", "monitor_samples"} {
		var n int64
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		out = append(out, TableStats{Name: table, Rows: n})
	}
	return out, nil
}

// AttachAdminRoutes mounts tailsql, a row count page and a backup download
// under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Gateway DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleFunc("db-stats", "row counts per table", func(w http.ResponseWriter, r *http.Request) {
		stats, err := db.Stats()
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to get database stats: %v", err))
			return
		}
		httputil.WriteJSONOK(w, stats)
	})

	debug.HandleFunc("backup", "Create and download a backup of the database now", func(w http.ResponseWriter, r *http.Request) {
		backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("cellgate-backup-%d.db", time.Now().UnixNano()))
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			if err := os.Remove(backupPath); err != nil {
				monitoring.Logf("[db] failed to remove backup file: %v", err)
			}
		}()

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer backupFile.Close()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filepath.Base(backupPath)))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		gz := gzip.NewWriter(w)
		defer gz.Close()
		if _, err := io.Copy(gz, backupFile); err != nil {
			monitoring.Logf("[db] backup transfer failed: %v", err)
		}
	})
	return nil
}
