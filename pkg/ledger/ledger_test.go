// accolade/pkg/ledger/ledger_test.go

package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type optOutLedger interface {
	Ledger
	SetOptOut(ctx context.Context, identity string, optOut bool) error
}

func ledgers(t *testing.T) map[string]optOutLedger {
	t.Helper()
	sqlLedger, err := Open("sqlite://" + filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlLedger.Close() })
	require.NoError(t, sqlLedger.CreateSchema(context.Background()))

	return map[string]optOutLedger{
		"sql":    sqlLedger,
		"memory": NewMemory(),
	}
}

func TestBadgeID(t *testing.T) {
	tests := []struct{ name, expected string }{
		{"Speak Up!", "speak-up"},
		{"Like a Rock (Lvl 3)", "like-a-rock-lvl-3"},
		{"  padded  ", "padded"},
		{"Égalité", "égalité"},
		{"Mutiny on the Bounty...", "mutiny-on-the-bounty"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, BadgeID(tt.name), tt.name)
	}
}

func TestLedger(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			id, err := l.AddBadge(ctx, Badge{Name: "Speak Up!", ImageURL: "speak-up.png", Description: "d", Criteria: "c"})
			require.NoError(t, err)
			assert.Equal(t, "speak-up", id)

			again, err := l.AddBadge(ctx, Badge{Name: "Speak Up!", ImageURL: "other.png"})
			require.NoError(t, err)
			assert.Equal(t, id, again)

			exists, err := l.AwardExists(ctx, id, "ralph@fedoraproject.org")
			require.NoError(t, err)
			assert.False(t, exists)

			created, err := l.RegisterAward(ctx, Award{BadgeID: id, Identity: "ralph@fedoraproject.org",
				IssuedAt: time.Now(), IssuedFor: "https://apps.example.org/msg/1"})
			require.NoError(t, err)
			assert.True(t, created)

			created, err = l.RegisterAward(ctx, Award{BadgeID: id, Identity: "ralph@fedoraproject.org"})
			require.NoError(t, err)
			assert.False(t, created)

			exists, err = l.AwardExists(ctx, id, "ralph@fedoraproject.org")
			require.NoError(t, err)
			assert.True(t, exists)

			out, err := l.OptedOut(ctx, "decause@fedoraproject.org")
			require.NoError(t, err)
			assert.False(t, out)

			require.NoError(t, l.SetOptOut(ctx, "decause@fedoraproject.org", true))
			out, err = l.OptedOut(ctx, "decause@fedoraproject.org")
			require.NoError(t, err)
			assert.True(t, out)
		})
	}
}

func TestSQLGetBadge(t *testing.T) {
	l, err := Open("sqlite://" + filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer l.Close()
	ctx := context.Background()
	require.NoError(t, l.CreateSchema(ctx))

	_, err = l.AddBadge(ctx, Badge{Name: "Crypto Panda", ImageURL: "panda.png", Tags: "gpg,keys", IssuerID: "1"})
	require.NoError(t, err)

	b, err := l.GetBadge(ctx, "crypto-panda")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "panda.png", b.ImageURL)
	assert.Equal(t, "gpg,keys", b.Tags)

	b, err = l.GetBadge(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, b)
}
