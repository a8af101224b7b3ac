package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/fixora/pim/internal/config"
	"github.com/fixora/pim/internal/logger"
)

const (
	kindUp   = "up"
	kindDown = "down"
)

type migrationFile struct {
	version int
	name    string
	path    string
	kind    string
}

func main() {
	mode := flag.String("mode", kindUp, "migration mode: up or down")
	dir := flag.String("dir", "", "migrations directory (defaults to DB_MIGRATIONS_PATH)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if !cfg.UsesDatabase() {
		log.Fatal("DATABASE_URL environment variable is required")
	}
	if *dir == "" {
		*dir = cfg.Database.MigrationsPath
	}

	l := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		ServiceName: "pim-migrate",
		Output:      os.Stdout,
	})
	ctx := context.Background()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}
	if err := ensureSchemaMigrations(ctx, db); err != nil {
		log.Fatalf("failed to ensure schema_migrations: %v", err)
	}

	files, err := loadMigrationFiles(*dir)
	if err != nil {
		log.Fatalf("failed to load migrations: %v", err)
	}

	switch strings.ToLower(*mode) {
	case kindUp:
		if err := applyUp(ctx, db, files, l); err != nil {
			log.Fatalf("migration up failed: %v", err)
		}
		l.Info(ctx, "Migration up completed successfully", nil)
	case kindDown:
		if err := applyDown(ctx, db, files, l); err != nil {
			log.Fatalf("migration down failed: %v", err)
		}
		l.Info(ctx, "Migration down completed successfully", nil)
	default:
		log.Fatalf("unknown mode: %s", *mode)
	}
}

func ensureSchemaMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	return err
}

// loadMigrationFiles lists NNN_name.up.sql / NNN_name.down.sql files sorted by version.
// Files without a numeric prefix are skipped.
func loadMigrationFiles(dir string) ([]migrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []migrationFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		lower := strings.ToLower(name)
		if !strings.HasSuffix(lower, ".sql") {
			continue
		}

		kind := kindUp
		if strings.HasSuffix(lower, ".down.sql") {
			kind = kindDown
		}

		version, migName, err := parseVersionAndName(name)
		if err != nil {
			continue
		}
		files = append(files, migrationFile{
			version: version,
			name:    migName,
			path:    filepath.Join(dir, name),
			kind:    kind,
		})
	}

	sort.SliceStable(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// parseVersionAndName splits 001_create_users.up.sql into 1 and create_users
func parseVersionAndName(filename string) (int, string, error) {
	parts := strings.SplitN(filename, "_", 2)
	if len(parts) < 2 || parts[0] == "" {
		return 0, "", errors.New("invalid filename")
	}
	version, err := strconv.Atoi(parts[0])
	if err != nil || version < 0 {
		return 0, "", errors.New("invalid version")
	}

	name := parts[1]
	for _, suffix := range []string{".up.sql", ".down.sql", ".sql"} {
		if strings.HasSuffix(strings.ToLower(name), suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return version, name, nil
}

func alreadyApplied(ctx context.Context, db *sql.DB, version int) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version).Scan(&exists)
	return exists, err
}

// runInTx executes a migration file and its bookkeeping statement atomically
func runInTx(ctx context.Context, db *sql.DB, path, bookkeeping string, args ...interface{}) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func applyUp(ctx context.Context, db *sql.DB, files []migrationFile, l logger.Logger) error {
	for _, f := range files {
		if f.kind != kindUp {
			continue
		}
		applied, err := alreadyApplied(ctx, db, f.version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		l.Info(ctx, "Applying migration", map[string]interface{}{"version": f.version, "name": f.name})
		err = runInTx(ctx, db, f.path,
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, $3)",
			f.version, f.name, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed applying %s: %w", f.path, err)
		}
	}
	return nil
}

func applyDown(ctx context.Context, db *sql.DB, files []migrationFile, l logger.Logger) error {
	var downs []migrationFile
	for _, f := range files {
		if f.kind == kindDown {
			downs = append(downs, f)
		}
	}
	sort.SliceStable(downs, func(i, j int) bool { return downs[i].version > downs[j].version })

	for _, f := range downs {
		applied, err := alreadyApplied(ctx, db, f.version)
		if err != nil {
			return err
		}
		if !applied {
			continue
		}

		l.Info(ctx, "Reverting migration", map[string]interface{}{"version": f.version, "name": f.name})
		err = runInTx(ctx, db, f.path, "DELETE FROM schema_migrations WHERE version = $1", f.version)
		if err != nil {
			return fmt.Errorf("failed reverting %s: %w", f.path, err)
		}
	}
	return nil
}
