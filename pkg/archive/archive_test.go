// accolade/pkg/archive/archive_test.go

package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rgehrsitz/accolade/pkg/event"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestArchive(t *testing.T) *SQLArchive {
	t.Helper()
	a, err := Open("sqlite://" + filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	require.NoError(t, a.CreateSchema(context.Background()))
	return a
}

func seed(t *testing.T, a *SQLArchive) {
	t.Helper()
	events := []*event.Event{
		{ID: "1", Topic: "org.example.prod.git.receive", Timestamp: t0, AgentName: "ralph",
			Body: map[string]any{"repo": "python-cel"}, Usernames: []string{"ralph"}, Packages: []string{"python-cel"}},
		{ID: "2", Topic: "org.example.prod.git.receive", Timestamp: t0.Add(time.Hour), AgentName: "ralph",
			Body: map[string]any{"repo": "rpms/kernel"}, Usernames: []string{"ralph", "decause"}, Packages: []string{"kernel"}},
		{ID: "3", Topic: "org.example.prod.wiki.article.edit", Timestamp: t0.Add(2 * time.Hour), AgentName: "decause",
			Body: map[string]any{"title": "Badges"}, Usernames: []string{"decause"}},
		{ID: "4", Topic: "org.example.prod.bodhi.update.comment", Timestamp: t0.Add(3 * time.Hour),
			Body: map[string]any{"comment": "works for me"}},
	}
	for _, ev := range events {
		require.NoError(t, a.Store(context.Background(), ev))
	}
}

func TestCount(t *testing.T) {
	a := newTestArchive(t)
	seed(t, a)
	ctx := context.Background()

	tests := []struct {
		name     string
		filter   Filter
		expected int
	}{
		{"everything", Filter{}, 4},
		{"topic", Filter{Topics: []string{"org.example.prod.git.receive"}}, 2},
		{"not topic", Filter{NotTopics: []string{"org.example.prod.git.receive"}}, 2},
		{"category", Filter{Categories: []string{"wiki", "bodhi"}}, 2},
		{"not category", Filter{NotCategories: []string{"git"}}, 2},
		{"user", Filter{Users: []string{"decause"}}, 2},
		{"not user", Filter{NotUsers: []string{"ralph"}}, 2},
		{"package", Filter{Packages: []string{"kernel"}}, 1},
		{"not package", Filter{NotPackages: []string{"kernel"}}, 3},
		{"agent", Filter{Agents: []string{"ralph"}}, 2},
		{"not agent", Filter{NotAgents: []string{"ralph"}}, 2},
		{"contains", Filter{Contains: []string{"kernel", "Badges"}}, 2},
		{"start", Filter{Start: t0.Add(time.Hour)}, 3},
		{"end", Filter{End: t0.Add(time.Hour)}, 2},
		{"combined", Filter{Topics: []string{"org.example.prod.git.receive"}, Users: []string{"decause"}}, 1},
		{"pagination ignored", Filter{RowsPerPage: 1}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := a.Count(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, n)
		})
	}
}

func TestQuery(t *testing.T) {
	a := newTestArchive(t)
	seed(t, a)
	ctx := context.Background()

	events, err := a.Query(ctx, Filter{Users: []string{"ralph"}})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "1", events[0].ID)
	assert.Equal(t, "python-cel", events[0].Body["repo"])
	assert.Equal(t, []string{"decause", "ralph"}, events[1].Usernames)
	assert.Equal(t, []string{"kernel"}, events[1].Packages)
	assert.True(t, t0.Equal(events[0].Timestamp))

	events, err = a.Query(ctx, Filter{Order: "desc", RowsPerPage: 2, Page: 2})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "2", events[0].ID)
	assert.Equal(t, "1", events[1].ID)

	events, err = a.Query(ctx, Filter{Topics: []string{"nothing"}})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFirstOccurrence(t *testing.T) {
	a := newTestArchive(t)
	seed(t, a)
	ctx := context.Background()

	ts, err := a.FirstOccurrence(ctx, Filter{Users: []string{"decause"}})
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.True(t, t0.Add(time.Hour).Equal(*ts))

	ts, err = a.FirstOccurrence(ctx, Filter{Users: []string{"nobody"}})
	require.NoError(t, err)
	assert.Nil(t, ts)
}

func TestStoreIsIdempotent(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	ev := &event.Event{ID: "dup", Topic: "org.example.prod.git.receive", Timestamp: t0,
		Body: map[string]any{}, Usernames: []string{"ralph"}}
	require.NoError(t, a.Store(ctx, ev))
	require.NoError(t, a.Store(ctx, ev))

	n, err := a.Count(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err := a.Has(ctx, "dup")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.Has(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter(map[string]any{
		"topics":        []any{"a", "b"},
		"users":         "ralph",
		"start":         "2024-05-01T10:00:00Z",
		"end":           int64(1714600000),
		"rows_per_page": 10,
		"order":         "DESC",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, f.Topics)
	assert.Equal(t, []string{"ralph"}, f.Users)
	assert.True(t, t0.Equal(f.Start))
	assert.Equal(t, int64(1714600000), f.End.Unix())
	assert.Equal(t, 10, f.RowsPerPage)
	assert.Equal(t, "desc", f.Order)

	for _, bad := range []map[string]any{
		{"wat": "baz"},
		{"start": "yesterday"},
		{"order": "sideways"},
		{"page": []any{1}},
	} {
		_, err := ParseFilter(bad)
		assert.Error(t, err, fmt.Sprint(bad))
	}
}

func TestFilterKeys(t *testing.T) {
	for _, k := range FilterKeys {
		assert.True(t, IsFilterKey(k))
	}
	assert.False(t, IsFilterKey("defer"))
}
