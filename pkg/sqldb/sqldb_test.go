// accolade/pkg/sqldb/sqldb_test.go

package sqldb

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRejectsUnknownScheme(t *testing.T) {
	_, err := Open("mysql://localhost/badges")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database scheme")
}

func TestOpenSQLiteAndQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open("sqlite://" + path)
	require.NoError(t, err)
	defer db.Close()

	fsys := fstest.MapFS{
		"queries/things.sql": &fstest.MapFile{Data: []byte(`
-- name: create-things
CREATE TABLE IF NOT EXISTS things (name TEXT PRIMARY KEY, n INTEGER NOT NULL);

-- name: insert-thing
INSERT INTO things (name, n) VALUES (?, ?);

-- name: get-thing
SELECT n FROM things WHERE name = ?;

-- name: list-things
SELECT name FROM things ORDER BY name;
`)},
		"queries/README": &fstest.MapFile{Data: []byte("not sql")},
	}

	q, err := LoadQueries(db, fsys, "queries")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, q.ExecAll(ctx, "create-things"))
	_, err = q.Exec(ctx, "insert-thing", "b", 2)
	require.NoError(t, err)
	_, err = q.Exec(ctx, "insert-thing", "a", 1)
	require.NoError(t, err)

	var n int
	require.NoError(t, q.Get(ctx, "get-thing", &n, "b"))
	assert.Equal(t, 2, n)

	var names []string
	require.NoError(t, q.Select(ctx, "list-things", &names))
	assert.Equal(t, []string{"a", "b"}, names)

	_, err = q.Exec(ctx, "no-such-query")
	assert.Error(t, err)
}
