package database

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/paulexconde/surveyflow/internal/logger"
)

//go:embed migrations/*.up.sql
var migrationFiles embed.FS

// Migration is one embedded schema change.
type Migration struct {
	Version  string
	Title    string
	UpSQL    string
	Checksum string
}

// Migrate applies every embedded migration that is not recorded in schema_migrations yet.
// Applied migrations whose file content changed are refused.
func Migrate(ctx context.Context, db *sqlx.DB, log *logger.Logger) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    VARCHAR(255) PRIMARY KEY,
			title      VARCHAR(500),
			checksum   VARCHAR(64),
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := LoadMigrations()
	if err != nil {
		return err
	}

	var applied []struct {
		Version  string `db:"version"`
		Checksum string `db:"checksum"`
	}
	if err := db.SelectContext(ctx, &applied, `SELECT version, COALESCE(checksum, '') AS checksum FROM schema_migrations`); err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	done := make(map[string]string, len(applied))
	for _, a := range applied {
		done[a.Version] = a.Checksum
	}

	for _, m := range migrations {
		if checksum, ok := done[m.Version]; ok {
			if checksum != "" && checksum != m.Checksum {
				return fmt.Errorf("applied migration %s (%s) has been modified", m.Version, m.Title)
			}
			continue
		}

		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}
		log.Info("applied migration", "version", m.Version, "title", m.Title)
	}

	return nil
}

func apply(ctx context.Context, db *sqlx.DB, m Migration) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		return fmt.Errorf("migration SQL failed: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, title, checksum) VALUES ($1, $2, $3)`,
		m.Version, m.Title, m.Checksum); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// LoadMigrations reads the embedded migrations sorted by version. Files are named
// <version>_<title>.up.sql.
func LoadMigrations() ([]Migration, error) {
	entries, err := fs.Glob(migrationFiles, "migrations/*.up.sql")
	if err != nil {
		return nil, err
	}

	migrations := make([]Migration, 0, len(entries))
	for _, path := range entries {
		content, err := migrationFiles.ReadFile(path)
		if err != nil {
			return nil, err
		}

		name := strings.TrimSuffix(strings.TrimPrefix(path, "migrations/"), ".up.sql")
		version, title, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("migration %q is not named <version>_<title>.up.sql", path)
		}

		sum := sha256.Sum256(content)
		migrations = append(migrations, Migration{
			Version:  version,
			Title:    strings.ReplaceAll(title, "_", " "),
			UpSQL:    string(content),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}
