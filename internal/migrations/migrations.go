// Package migrations applies the versioned schema files embedded under sql/
// to BigQuery or PostgreSQL and tracks them in a schema_migrations table.
package migrations

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Dialects with embedded migration sets.
const (
	DialectBigQuery = "bigquery"
	DialectPostgres = "postgres"
)

//go:embed sql
var embedded embed.FS

// filenamePattern matches migration files: 0001_name.sql
var filenamePattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// Target is a database that migrations can be applied to.
type Target interface {
	EnsureSchemaTable(ctx context.Context) error
	Applied(ctx context.Context) ([]AppliedMigration, error)
	// Apply executes m and records it in schema_migrations.
	Apply(ctx context.Context, m Migration, appliedBy string) error
}

// Load returns the embedded migrations for dialect with placeholders
// replaced from vars (e.g. "PROJECT_ID" -> "my-project").
func Load(dialect string, vars map[string]string) ([]Migration, error) {
	return Parse(embedded, path.Join("sql", dialect), vars)
}

// Parse reads migration files from dir in fsys, sorted by version. Files that
// do not match the naming pattern are skipped.
func Parse(fsys fs.FS, dir string, vars map[string]string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory %s: %w", dir, err)
	}

	var out []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, ok := ParseFilename(entry.Name())
		if !ok {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", entry.Name(), err)
		}

		// Checksum covers the file before placeholder replacement so the same
		// migration matches across projects.
		out = append(out, Migration{
			Version:  version,
			Name:     name,
			Filename: entry.Name(),
			SQL:      render(string(content), vars),
			Checksum: Checksum(content),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Version < out[j].Version
	})
	return out, nil
}

// ParseFilename extracts the version and name from a migration filename.
func ParseFilename(filename string) (version int, name string, ok bool) {
	m := filenamePattern.FindStringSubmatch(filename)
	if m == nil {
		return 0, "", false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return v, m[2], true
}

// Checksum is the hex sha256 of content.
func Checksum(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

func render(sql string, vars map[string]string) string {
	for k, v := range vars {
		sql = strings.ReplaceAll(sql, "{{"+k+"}}", v)
	}
	return sql
}

// Run applies every migration in ms that target has not recorded yet and
// returns how many were applied. A recorded migration whose checksum differs
// from the file is reported as an error.
func Run(ctx context.Context, target Target, ms []Migration, appliedBy string, log zerolog.Logger) (int, error) {
	if err := target.EnsureSchemaTable(ctx); err != nil {
		return 0, fmt.Errorf("ensuring schema_migrations table: %w", err)
	}

	applied, err := target.Applied(ctx)
	if err != nil {
		return 0, fmt.Errorf("getting applied migrations: %w", err)
	}
	log.Info().Int("files", len(ms)).Int("applied", len(applied)).Msg("Loaded migrations")

	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	count := 0
	for _, m := range ms {
		if am, ok := byVersion[m.Version]; ok {
			if am.Checksum != "" && am.Checksum != m.Checksum {
				return count, fmt.Errorf("migration %04d_%s changed after it was applied", m.Version, m.Name)
			}
			log.Debug().Int("version", m.Version).Str("name", m.Name).Msg("Skipping applied migration")
			continue
		}

		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applying migration")
		if err := target.Apply(ctx, m, appliedBy); err != nil {
			return count, fmt.Errorf("applying migration %04d_%s: %w", m.Version, m.Name, err)
		}
		count++
	}

	return count, nil
}
