// accolade/pkg/archive/archive.go

// Package archive stores past events and answers historical queries over
// them.
package archive

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"rgehrsitz/accolade/pkg/event"
	"rgehrsitz/accolade/pkg/logging"
	"rgehrsitz/accolade/pkg/sqldb"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// Archive is the event history used by counters.
type Archive interface {
	Count(ctx context.Context, f Filter) (int, error)
	Query(ctx context.Context, f Filter) ([]event.Event, error)
	FirstOccurrence(ctx context.Context, f Filter) (*time.Time, error)
	Has(ctx context.Context, eventID string) (bool, error)
	Store(ctx context.Context, ev *event.Event) error
}

var schemaStatements = []string{
	"create-messages",
	"create-messages-topic-index",
	"create-messages-timestamp-index",
	"create-message-users",
	"create-message-packages",
}

// SQLArchive keeps events in sqlite or PostgreSQL.
type SQLArchive struct {
	db      *sqlx.DB
	queries *sqldb.Queries
}

func NewSQL(db *sqlx.DB) (*SQLArchive, error) {
	q, err := sqldb.LoadQueries(db, queriesFS, "queries")
	if err != nil {
		return nil, err
	}
	return &SQLArchive{db: db, queries: q}, nil
}

// Open connects to dbURL; see sqldb.Open for the accepted forms.
func Open(dbURL string) (*SQLArchive, error) {
	db, err := sqldb.Open(dbURL)
	if err != nil {
		return nil, err
	}
	return NewSQL(db)
}

func (a *SQLArchive) CreateSchema(ctx context.Context) error {
	if err := a.queries.ExecAll(ctx, schemaStatements...); err != nil {
		return storeError("create archive schema", err)
	}
	return nil
}

func (a *SQLArchive) Close() error {
	return a.db.Close()
}

func (a *SQLArchive) Store(ctx context.Context, ev *event.Event) error {
	body, err := json.Marshal(ev.Body)
	if err != nil {
		return fmt.Errorf("encode event body: %w", err)
	}
	headers, err := json.Marshal(ev.Headers)
	if err != nil {
		return fmt.Errorf("encode event headers: %w", err)
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	var agent sql.NullString
	if ev.AgentName != "" {
		agent = sql.NullString{String: ev.AgentName, Valid: true}
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return storeError("begin store", err)
	}
	defer tx.Rollback()

	if _, err := a.queries.ExecTx(ctx, tx, "insert-message",
		ev.ID, ev.Topic, ev.Category(), ts.UTC(), agent, string(body), string(headers)); err != nil {
		return storeError("insert message", err)
	}
	for _, u := range ev.Usernames {
		if _, err := a.queries.ExecTx(ctx, tx, "insert-message-user", ev.ID, u); err != nil {
			return storeError("insert message user", err)
		}
	}
	for _, p := range ev.Packages {
		if _, err := a.queries.ExecTx(ctx, tx, "insert-message-package", ev.ID, p); err != nil {
			return storeError("insert message package", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeError("commit store", err)
	}
	return nil
}

func (a *SQLArchive) Has(ctx context.Context, eventID string) (bool, error) {
	var n int
	if err := a.queries.Get(ctx, "has-message", &n, eventID); err != nil {
		return false, storeError("check message", err)
	}
	return n > 0, nil
}

func (a *SQLArchive) Count(ctx context.Context, f Filter) (int, error) {
	query, args, err := a.build("count-messages", f, false)
	if err != nil {
		return 0, err
	}
	var n int
	if err := a.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, storeError("count messages", err)
	}
	return n, nil
}

func (a *SQLArchive) FirstOccurrence(ctx context.Context, f Filter) (*time.Time, error) {
	f.Order = "asc"
	f.RowsPerPage, f.Page = 1, 1
	query, args, err := a.build("select-first-timestamp", f, true)
	if err != nil {
		return nil, err
	}
	var ts time.Time
	if err := a.db.GetContext(ctx, &ts, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, storeError("first occurrence", err)
	}
	ts = ts.UTC()
	return &ts, nil
}

type messageRow struct {
	MsgID     string         `db:"msg_id"`
	Topic     string         `db:"topic"`
	Timestamp time.Time      `db:"timestamp"`
	AgentName sql.NullString `db:"agent_name"`
	Body      string         `db:"body"`
	Headers   string         `db:"headers"`
}

type association struct {
	MsgID string `db:"msg_id"`
	Value string `db:"value"`
}

func (a *SQLArchive) Query(ctx context.Context, f Filter) ([]event.Event, error) {
	query, args, err := a.build("select-messages", f, true)
	if err != nil {
		return nil, err
	}
	var rows []messageRow
	if err := a.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, storeError("query messages", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.MsgID
	}
	users, err := a.associations(ctx, "SELECT msg_id, username AS value FROM message_users WHERE msg_id IN (?) ORDER BY username", ids)
	if err != nil {
		return nil, err
	}
	packages, err := a.associations(ctx, "SELECT msg_id, package AS value FROM message_packages WHERE msg_id IN (?) ORDER BY package", ids)
	if err != nil {
		return nil, err
	}

	out := make([]event.Event, 0, len(rows))
	for _, r := range rows {
		ev := event.Event{
			ID:        r.MsgID,
			Topic:     r.Topic,
			Timestamp: r.Timestamp.UTC(),
			AgentName: r.AgentName.String,
			Usernames: users[r.MsgID],
			Packages:  packages[r.MsgID],
		}
		if err := json.Unmarshal([]byte(r.Body), &ev.Body); err != nil {
			return nil, fmt.Errorf("decode archived body of %s: %w", r.MsgID, err)
		}
		if err := json.Unmarshal([]byte(r.Headers), &ev.Headers); err != nil {
			return nil, fmt.Errorf("decode archived headers of %s: %w", r.MsgID, err)
		}
		if ev.Body == nil {
			ev.Body = map[string]any{}
		}
		out = append(out, ev)
	}
	return out, nil
}

func (a *SQLArchive) associations(ctx context.Context, query string, ids []string) (map[string][]string, error) {
	q, args, err := sqlx.In(query, ids)
	if err != nil {
		return nil, err
	}
	var rows []association
	if err := a.db.SelectContext(ctx, &rows, a.db.Rebind(q), args...); err != nil {
		return nil, storeError("query associations", err)
	}
	out := make(map[string][]string)
	for _, r := range rows {
		out[r.MsgID] = append(out[r.MsgID], r.Value)
	}
	return out, nil
}

// build appends the filter's WHERE clause to a named base query.
func (a *SQLArchive) build(name string, f Filter, paginate bool) (string, []any, error) {
	base, err := a.queries.Raw(name)
	if err != nil {
		return "", nil, err
	}
	base = strings.TrimSuffix(strings.TrimSpace(base), ";")

	var (
		clauses []string
		args    []any
	)
	in := func(clause string, values []string) {
		if len(values) > 0 {
			clauses = append(clauses, clause)
			args = append(args, values)
		}
	}

	in("m.topic IN (?)", f.Topics)
	in("m.topic NOT IN (?)", f.NotTopics)
	in("m.category IN (?)", f.Categories)
	in("m.category NOT IN (?)", f.NotCategories)
	in("EXISTS (SELECT 1 FROM message_users u WHERE u.msg_id = m.msg_id AND u.username IN (?))", f.Users)
	in("NOT EXISTS (SELECT 1 FROM message_users u WHERE u.msg_id = m.msg_id AND u.username IN (?))", f.NotUsers)
	in("EXISTS (SELECT 1 FROM message_packages p WHERE p.msg_id = m.msg_id AND p.package IN (?))", f.Packages)
	in("NOT EXISTS (SELECT 1 FROM message_packages p WHERE p.msg_id = m.msg_id AND p.package IN (?))", f.NotPackages)
	in("m.agent_name IN (?)", f.Agents)
	in("(m.agent_name IS NULL OR m.agent_name NOT IN (?))", f.NotAgents)

	if len(f.Contains) > 0 {
		var likes []string
		for _, c := range f.Contains {
			likes = append(likes, "m.body LIKE ?")
			args = append(args, "%"+c+"%")
		}
		clauses = append(clauses, "("+strings.Join(likes, " OR ")+")")
	}
	if !f.Start.IsZero() {
		clauses = append(clauses, "m.timestamp >= ?")
		args = append(args, f.Start.UTC())
	}
	if !f.End.IsZero() {
		clauses = append(clauses, "m.timestamp <= ?")
		args = append(args, f.End.UTC())
	}

	var sb strings.Builder
	sb.WriteString(base)
	if len(clauses) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(clauses, " AND "))
	}
	if paginate {
		order := "ASC"
		if f.Order == "desc" {
			order = "DESC"
		}
		sb.WriteString(" ORDER BY m.timestamp " + order + ", m.msg_id " + order)
		if f.RowsPerPage > 0 {
			page := f.Page
			if page < 1 {
				page = 1
			}
			sb.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", f.RowsPerPage, (page-1)*f.RowsPerPage))
		}
	}

	query, inArgs, err := sqlx.In(sb.String(), args...)
	if err != nil {
		return "", nil, fmt.Errorf("build archive query: %w", err)
	}
	return a.db.Rebind(query), inArgs, nil
}

func storeError(msg string, err error) error {
	return logging.NewError(logging.ErrorTypeStore, msg, err, nil)
}
