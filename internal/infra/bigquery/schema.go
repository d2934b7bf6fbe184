package bigquery

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/statement-converter/internal/logger"
	"google.golang.org/api/iterator"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// migrationPattern matches files such as 0001_name.sql.
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration is a single versioned schema change.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// EnsureSchema applies every embedded migration that is not yet recorded in
// schema_migrations and returns the number applied. appliedBy is stored with
// each record.
func (l *Ledger) EnsureSchema(ctx context.Context, appliedBy string) (int, error) {
	log := logger.FromContext(ctx)

	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return 0, fmt.Errorf("EnsureSchema: %w", err)
	}
	migrations, err := readMigrations(sub, l.projectID, l.datasetID)
	if err != nil {
		return 0, fmt.Errorf("EnsureSchema: %w", err)
	}

	applied, err := l.appliedVersions(ctx)
	if err != nil {
		return 0, fmt.Errorf("EnsureSchema: %w", err)
	}

	count := 0
	for _, m := range pending(migrations, applied) {
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applying migration")

		if err := runAndWait(ctx, l.client.Query(m.SQL)); err != nil {
			return count, fmt.Errorf("EnsureSchema: migration %04d_%s: %w", m.Version, m.Name, err)
		}
		if err := l.recordMigration(ctx, m, appliedBy); err != nil {
			return count, fmt.Errorf("EnsureSchema: recording %04d_%s: %w", m.Version, m.Name, err)
		}
		count++
	}

	log.Info().Int("applied", count).Int("known", len(migrations)).Msg("Schema up to date")
	return count, nil
}

// readMigrations loads migration files from fsys sorted by version, with the
// project and dataset placeholders filled in. The checksum covers the file
// before substitution.
func readMigrations(fsys fs.FS, projectID, datasetID string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	var migrations []Migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		matches := migrationPattern.FindStringSubmatch(e.Name())
		if matches == nil {
			continue
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", e.Name(), err)
		}

		sql := strings.ReplaceAll(string(content), "{{PROJECT_ID}}", projectID)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     matches[2],
			Filename: e.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// pending returns the migrations whose versions are not in applied.
func pending(migrations []Migration, applied map[int]bool) []Migration {
	var out []Migration
	for _, m := range migrations {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}

// appliedVersions lists recorded migration versions. A missing
// schema_migrations table means nothing has been applied yet.
func (l *Ledger) appliedVersions(ctx context.Context) (map[int]bool, error) {
	q := l.client.Query(fmt.Sprintf(`
		SELECT version
		FROM `+"`%s.%s.schema_migrations`"+`
		ORDER BY version ASC
	`, l.projectID, l.datasetID))

	applied := make(map[int]bool)
	it, err := q.Read(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "Not found") {
			return applied, nil
		}
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	for {
		var row struct {
			Version int64 `bigquery:"version"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}
		applied[int(row.Version)] = true
	}
	return applied, nil
}

func (l *Ledger) recordMigration(ctx context.Context, m Migration, appliedBy string) error {
	q := l.client.Query(fmt.Sprintf(`
		INSERT INTO `+"`%s.%s.schema_migrations`"+`
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, @applied_at, @checksum, @applied_by)
	`, l.projectID, l.datasetID))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: int64(m.Version)},
		{Name: "name", Value: m.Name},
		{Name: "applied_at", Value: time.Now().UTC()},
		{Name: "checksum", Value: m.Checksum},
		{Name: "applied_by", Value: appliedBy},
	}
	return runAndWait(ctx, q)
}
