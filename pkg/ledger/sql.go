// accolade/pkg/ledger/sql.go

package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"rgehrsitz/accolade/pkg/logging"
	"rgehrsitz/accolade/pkg/sqldb"
)

//go:embed queries/*.sql
var queriesFS embed.FS

type SQLLedger struct {
	db      *sqlx.DB
	queries *sqldb.Queries
}

func NewSQL(db *sqlx.DB) (*SQLLedger, error) {
	q, err := sqldb.LoadQueries(db, queriesFS, "queries")
	if err != nil {
		return nil, err
	}
	return &SQLLedger{db: db, queries: q}, nil
}

func Open(dbURL string) (*SQLLedger, error) {
	db, err := sqldb.Open(dbURL)
	if err != nil {
		return nil, err
	}
	return NewSQL(db)
}

func (l *SQLLedger) CreateSchema(ctx context.Context) error {
	if err := l.queries.ExecAll(ctx, "create-badges", "create-persons", "create-assertions"); err != nil {
		return storeError("create ledger schema", err)
	}
	return nil
}

func (l *SQLLedger) Close() error {
	return l.db.Close()
}

func (l *SQLLedger) AddBadge(ctx context.Context, b Badge) (string, error) {
	id := b.ID
	if id == "" {
		id = BadgeID(b.Name)
	}
	_, err := l.queries.Exec(ctx, "insert-badge",
		id, b.Name, b.ImageURL, b.Description, b.Criteria, b.Tags, b.IssuerID, time.Now().UTC())
	if err != nil {
		return "", storeError("add badge", err)
	}
	return id, nil
}

func (l *SQLLedger) GetBadge(ctx context.Context, id string) (*Badge, error) {
	var b Badge
	if err := l.queries.Get(ctx, "get-badge", &b, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storeError("get badge", err)
	}
	return &b, nil
}

func (l *SQLLedger) AwardExists(ctx context.Context, badgeID, identity string) (bool, error) {
	var n int
	if err := l.queries.Get(ctx, "count-assertions", &n, badgeID, identity); err != nil {
		return false, storeError("check award", err)
	}
	return n > 0, nil
}

func (l *SQLLedger) OptedOut(ctx context.Context, identity string) (bool, error) {
	var out bool
	if err := l.queries.Get(ctx, "get-opt-out", &out, identity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, storeError("check opt-out", err)
	}
	return out, nil
}

// SetOptOut records a person's choice, creating the person if needed.
func (l *SQLLedger) SetOptOut(ctx context.Context, identity string, optOut bool) error {
	if _, err := l.queries.Exec(ctx, "insert-person", identity, nickname(identity)); err != nil {
		return storeError("add person", err)
	}
	if _, err := l.queries.Exec(ctx, "set-opt-out", optOut, identity); err != nil {
		return storeError("set opt-out", err)
	}
	return nil
}

func (l *SQLLedger) RegisterAward(ctx context.Context, a Award) (bool, error) {
	issued := a.IssuedAt
	if issued.IsZero() {
		issued = time.Now()
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, storeError("begin award", err)
	}
	defer tx.Rollback()

	if _, err := l.queries.ExecTx(ctx, tx, "insert-person", a.Identity, nickname(a.Identity)); err != nil {
		return false, storeError("add person", err)
	}
	res, err := l.queries.ExecTx(ctx, tx, "insert-assertion", a.BadgeID, a.Identity, issued.UTC(), a.IssuedFor)
	if err != nil {
		return false, storeError("add award", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeError("add award", err)
	}
	if err := tx.Commit(); err != nil {
		return false, storeError("commit award", err)
	}
	return n > 0, nil
}

func storeError(msg string, err error) error {
	return logging.NewError(logging.ErrorTypeStore, msg, err, nil)
}
