// Package migrate applies the embedded SQLite schema for the local datasets.
// Files are named NNNN_name.sql and applied once each, in version order,
// with the applied set tracked in schema_migrations.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"
	"sort"
)

//go:embed sql/*.sql
var sqlFS embed.FS

const (
	migrationsDir = "sql"
	tableName     = "schema_migrations"
)

var migrationFileRe = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

type Migration struct {
	Version string
	Name    string
	body    string
}

// Run applies every pending migration and returns the ones it applied.
func Run(db *sql.DB) ([]Migration, error) {
	return run(db, sqlFS)
}

// Pending lists migrations not yet recorded in schema_migrations.
func Pending(db *sql.DB) ([]Migration, error) {
	return pending(db, sqlFS)
}

func run(db *sql.DB, fsys fs.FS) ([]Migration, error) {
	todo, err := pending(db, fsys)
	if err != nil {
		return nil, err
	}
	for i, m := range todo {
		if err := apply(db, m); err != nil {
			return todo[:i], fmt.Errorf("apply %s_%s.sql: %w", m.Version, m.Name, err)
		}
		slog.Info("migration applied", "version", m.Version, "name", m.Name)
	}
	return todo, nil
}

func pending(db *sql.DB, fsys fs.FS) ([]Migration, error) {
	if err := ensureMigrationsTable(db); err != nil {
		return nil, fmt.Errorf("ensure migrations table: %w", err)
	}
	applied, err := appliedVersions(db)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var out []Migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		version, name, ok := parseMigrationFilename(e.Name())
		if !ok || applied[version] {
			continue
		}
		body, err := fs.ReadFile(fsys, migrationsDir+"/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: name, body: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ` + tableName + ` (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)
	`)
	return err
}

func appliedVersions(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query("SELECT version FROM " + tableName)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close migrations rows", "error", err)
		}
	}()
	out := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

func parseMigrationFilename(filename string) (version, name string, ok bool) {
	m := migrationFileRe.FindStringSubmatch(filename)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// apply runs the body and records the version in one transaction.
func apply(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(m.body); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.Exec("INSERT INTO "+tableName+" (version, name) VALUES (?, ?)", m.Version, m.Name); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
