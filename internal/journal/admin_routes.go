package journal

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts the journal's debug surfaces on mux: a tailsql
// browser for ad-hoc queries against the live journal, a one-shot backup
// download, and the schema migration status.
func (j *Journal) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://greenwave.db", j.DB, &tailsql.DBOptions{
		Label: "Corridor journal",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the journal now",
		http.HandlerFunc(j.serveBackup))
	debug.Handle("migrations", "Journal schema migration status",
		http.HandlerFunc(j.serveMigrationStatus))
}

// serveBackup snapshots the journal with VACUUM INTO and streams the copy
// back gzipped. The snapshot lands in the process working directory and is
// deleted once the download finishes.
func (j *Journal) serveBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("greenwave-backup-%d.db", time.Now().Unix())
	if _, err := j.Exec("VACUUM INTO ?", name); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(name); err != nil {
			log.Printf("Failed to remove backup file %s: %v", name, err)
		}
	}()

	f, err := os.Open(name)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")

	// Headers are out once the copy starts, so a mid-stream failure can only
	// be logged.
	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, f); err != nil {
		log.Printf("Backup download aborted: %v", err)
	}
}

// serveMigrationStatus reports the applied schema version against the latest
// embedded migration.
func (j *Journal) serveMigrationStatus(w http.ResponseWriter, r *http.Request) {
	status, err := j.GetMigrationStatus()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read migration status: %v", err), http.StatusInternalServerError)
		return
	}
	if latest, err := GetLatestMigrationVersion(); err == nil {
		status["latest_version"] = latest
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Printf("Failed to encode migration status: %v", err)
	}
}
