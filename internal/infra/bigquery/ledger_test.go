package bigquery

import (
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-converter/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConversionRow(t *testing.T) {
	created := time.Date(2024, 3, 31, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	rec := usage.Record{
		ID:               "conv-1",
		UserID:           "user-1",
		SessionID:        "sess-1",
		Filenames:        []string{"jan.pdf", "feb.pdf"},
		TransactionCount: 42,
		Status:           usage.StatusSuccess,
		CreatedAt:        created,
	}

	row := newConversionRow(rec)

	assert.Equal(t, "jan.pdf, feb.pdf", row.Filename)
	assert.Equal(t, int64(2), row.FileCount)
	assert.Equal(t, int64(42), row.TransactionCount)
	// usage_date is the UTC calendar day
	assert.Equal(t, civil.Date{Year: 2024, Month: time.April, Day: 1}, row.UsageDate)
	assert.Equal(t, time.UTC, row.CreatedTS.Location())

	back := row.Record()
	assert.Equal(t, rec.Filenames, back.Filenames)
	assert.Equal(t, rec.TransactionCount, back.TransactionCount)
	assert.True(t, created.Equal(back.CreatedAt))
}

func TestConversionRowRecordWithoutFiles(t *testing.T) {
	back := ConversionRow{ConversionID: "c"}.Record()
	assert.Nil(t, back.Filenames)
}

func TestReadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_second.sql":   {Data: []byte("CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.b` (x INT64);")},
		"0001_first.sql":    {Data: []byte("CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.a` (x INT64);")},
		"001_invalid.sql":   {Data: []byte("ignored")},
		"0003_no_ext":       {Data: []byte("ignored")},
		"README.md":         {Data: []byte("ignored")},
		"0004_nested/x.sql": {Data: []byte("ignored")},
	}

	migrations, err := readMigrations(fsys, "proj", "ds")
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "first", migrations[0].Name)
	assert.Equal(t, "CREATE TABLE `proj.ds.a` (x INT64);", migrations[0].SQL)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Len(t, migrations[0].Checksum, 64)
	assert.NotEqual(t, migrations[0].Checksum, migrations[1].Checksum)
}

func TestChecksumIgnoresPlaceholders(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_first.sql": {Data: []byte("SELECT '{{DATASET_ID}}'")},
	}
	a, err := readMigrations(fsys, "p1", "d1")
	require.NoError(t, err)
	b, err := readMigrations(fsys, "p2", "d2")
	require.NoError(t, err)

	assert.Equal(t, a[0].Checksum, b[0].Checksum)
	assert.NotEqual(t, a[0].SQL, b[0].SQL)
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := readMigrations(mustSub(t), "proj", "ds")
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	var found bool
	for _, m := range migrations {
		assert.NotContains(t, m.SQL, "{{")
		if strings.Contains(m.SQL, "proj.ds."+conversionsTable) {
			found = true
		}
	}
	assert.True(t, found, "conversions_history migration missing")
}

func TestPending(t *testing.T) {
	migrations := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}

	got := pending(migrations, map[int]bool{1: true, 3: true})

	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Version)
	assert.Len(t, pending(migrations, map[int]bool{}), 3)
}

func mustSub(t *testing.T) fs.FS {
	t.Helper()
	sub, err := fs.Sub(migrationFiles, "migrations")
	require.NoError(t, err)
	return sub
}
