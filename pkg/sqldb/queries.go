// accolade/pkg/sqldb/queries.go

package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"
)

// Queries serves the named statements of a set of .sql files.
type Queries struct {
	dot *dotsql.DotSql
	db  *sqlx.DB
}

// LoadQueries reads every .sql file under dir in fsys.
func LoadQueries(db *sqlx.DB, fsys fs.FS, dir string) (*Queries, error) {
	var combined strings.Builder

	err := fs.WalkDir(fsys, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}
		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		combined.Write(content)
		combined.WriteString("\n")
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load query files: %w", err)
	}

	dot, err := dotsql.LoadFromString(combined.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse queries: %w", err)
	}
	return &Queries{dot: dot, db: db}, nil
}

func (q *Queries) DB() *sqlx.DB {
	return q.db
}

// Raw returns a named query with placeholders rebound for the driver.
func (q *Queries) Raw(name string) (string, error) {
	query, err := q.dot.Raw(name)
	if err != nil {
		return "", fmt.Errorf("query not found: %s", name)
	}
	return q.db.Rebind(query), nil
}

func (q *Queries) Exec(ctx context.Context, name string, args ...interface{}) (sql.Result, error) {
	query, err := q.Raw(name)
	if err != nil {
		return nil, err
	}
	return q.db.ExecContext(ctx, query, args...)
}

// ExecTx runs a named statement inside tx.
func (q *Queries) ExecTx(ctx context.Context, tx *sqlx.Tx, name string, args ...interface{}) (sql.Result, error) {
	query, err := q.Raw(name)
	if err != nil {
		return nil, err
	}
	return tx.ExecContext(ctx, query, args...)
}

func (q *Queries) Get(ctx context.Context, name string, dest interface{}, args ...interface{}) error {
	query, err := q.Raw(name)
	if err != nil {
		return err
	}
	return q.db.GetContext(ctx, dest, query, args...)
}

func (q *Queries) Select(ctx context.Context, name string, dest interface{}, args ...interface{}) error {
	query, err := q.Raw(name)
	if err != nil {
		return err
	}
	return q.db.SelectContext(ctx, dest, query, args...)
}

// ExecAll runs the named statements in order, stopping at the first error.
func (q *Queries) ExecAll(ctx context.Context, names ...string) error {
	for _, name := range names {
		if _, err := q.Exec(ctx, name); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
