// accolade/pkg/rules/fakes_test.go

package rules

import (
	"context"
	"errors"
	"sync"
	"time"

	"rgehrsitz/accolade/pkg/archive"
	"rgehrsitz/accolade/pkg/cache"
	"rgehrsitz/accolade/pkg/event"
	"rgehrsitz/accolade/pkg/identity"
	"rgehrsitz/accolade/pkg/ledger"
)

// fakeArchive answers Count with a fixed number and Query with fixed events,
// recording the filters it was asked for.
type fakeArchive struct {
	mu      sync.Mutex
	count   int
	events  []event.Event
	err     error
	filters []archive.Filter
}

func (a *fakeArchive) record(f archive.Filter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filters = append(a.filters, f)
}

func (a *fakeArchive) Count(_ context.Context, f archive.Filter) (int, error) {
	a.record(f)
	return a.count, a.err
}

func (a *fakeArchive) Query(_ context.Context, f archive.Filter) ([]event.Event, error) {
	a.record(f)
	return a.events, a.err
}

func (a *fakeArchive) FirstOccurrence(_ context.Context, f archive.Filter) (*time.Time, error) {
	a.record(f)
	return nil, a.err
}

func (a *fakeArchive) Has(context.Context, string) (bool, error) { return true, a.err }

func (a *fakeArchive) Store(context.Context, *event.Event) error { return a.err }

func (a *fakeArchive) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.filters)
}

// brokenCache fails every operation.
type brokenCache struct{}

var errCacheDown = errors.New("cache down")

func (brokenCache) GetOrCreate(context.Context, string, time.Duration, cache.SeedFunc) (int, error) {
	return 0, errCacheDown
}
func (brokenCache) Set(context.Context, string, int, time.Duration) error { return errCacheDown }
func (brokenCache) Get(context.Context, string) (int, error)              { return 0, errCacheDown }
func (brokenCache) Close() error                                          { return nil }

// failingDirectory returns err from every call.
type failingDirectory struct{ err error }

func (d failingDirectory) GetUser(context.Context, string) (*identity.User, error) { return nil, d.err }
func (d failingDirectory) Exists(context.Context, string) (bool, error)            { return false, d.err }
func (d failingDirectory) Search(context.Context, map[string]string) ([]identity.User, error) {
	return nil, d.err
}

// greedyDirectory answers every search, including empty criteria, with its
// fallback account and remembers what it was asked.
type greedyDirectory struct {
	*identity.Static
	mu       sync.Mutex
	searches []map[string]string
	fallback identity.User
}

func (d *greedyDirectory) Search(_ context.Context, criteria map[string]string) ([]identity.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.searches = append(d.searches, criteria)
	return []identity.User{d.fallback}, nil
}

func testDirectory() *identity.Static {
	return identity.NewStatic(
		identity.User{Username: "ralph", Emails: []string{"ralph@example.com"}, IRCNicks: []string{"irc:/threebean"}},
		identity.User{Username: "decause"},
		identity.User{Username: "userA"},
		identity.User{Username: "bodhi"},
	)
}

func testEnv(arc archive.Archive) *Env {
	dir := testDirectory()
	return &Env{
		Ledger:      ledger.NewMemory(),
		Directory:   dir,
		Identity:    identity.NewResolver(dir, "fedoraproject.org", "id.fedoraproject.org", "src.fedoraproject.org"),
		Archive:     arc,
		Counter:     NewCounter(cache.NewMemory()),
		EmailDomain: "fedoraproject.org",
	}
}
