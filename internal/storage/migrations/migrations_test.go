package migrations

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	sql := `
-- header comment; with a semicolon
CREATE TABLE a (x Int64) ENGINE = Memory;

CREATE TABLE b (
    y String DEFAULT 'a;b' -- trailing; comment
) ENGINE = Memory;
INSERT INTO b VALUES ('it''s; fine')
`
	stmts, err := splitStatements(sql)
	require.NoError(t, err)
	require.Len(t, stmts, 3)
	assert.True(t, strings.HasPrefix(stmts[0], "CREATE TABLE a"))
	assert.Contains(t, stmts[1], "DEFAULT 'a;b'")
	assert.NotContains(t, stmts[1], "trailing")
	assert.Equal(t, "INSERT INTO b VALUES ('it''s; fine')", stmts[2])
}

func TestSplitStatements_Unterminated(t *testing.T) {
	_, err := splitStatements(`SELECT 'oops;`)
	assert.Error(t, err)
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://localhost:9000/ledger")
	require.NoError(t, err)
	assert.Equal(t, "ledger", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}

func TestLoadAndPending(t *testing.T) {
	fsys := fstest.MapFS{
		"pg/002_b.sql": {Data: []byte("CREATE TABLE b();")},
		"pg/001_a.sql": {Data: []byte("CREATE TABLE a();")},
		"pg/003_c.sql": {Data: []byte("  \n")},
		"pg/notes.txt": {Data: []byte("ignored")},
		"pg/sub/x.sql": {Data: []byte("CREATE TABLE x();")},
		"other/z.sql":  {Data: []byte("CREATE TABLE z();")},
	}

	all, err := load(fsys, "pg")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "001_a", all[0].Version)
	assert.Equal(t, "002_b", all[1].Version)

	todo := pending(all, map[string]bool{"001_a": true})
	require.Len(t, todo, 1)
	assert.Equal(t, "002_b", todo[0].Version)

	_, err = load(fsys, "missing")
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	pg, err := load(PostgresFS, "postgres")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(pg), 3)

	ch, err := load(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.NotEmpty(t, ch)
	for _, m := range ch {
		stmts, err := splitStatements(m.SQL)
		require.NoError(t, err, m.Version)
		for _, s := range stmts {
			assert.Contains(t, s, "IF NOT EXISTS", m.Version)
		}
	}
}
