// accolade/pkg/ledger/ledger.go

// Package ledger records badge definitions, awards and opt-outs.
package ledger

import (
	"context"
	"strings"
	"time"
	"unicode"
)

// Badge is the ledger's copy of a rule's display metadata.
type Badge struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	ImageURL    string `db:"image"`
	Description string `db:"description"`
	Criteria    string `db:"criteria"`
	Tags        string `db:"tags"`
	IssuerID    string `db:"issuer_id"`
}

type Award struct {
	BadgeID   string
	Identity  string
	IssuedAt  time.Time
	IssuedFor string
}

// Ledger is the award store. Identities are email-style strings.
type Ledger interface {
	// AddBadge registers a badge and returns its id. Registering an
	// existing badge returns the existing id.
	AddBadge(ctx context.Context, b Badge) (string, error)
	AwardExists(ctx context.Context, badgeID, identity string) (bool, error)
	OptedOut(ctx context.Context, identity string) (bool, error)
	// RegisterAward reports false when the identity already held the badge.
	RegisterAward(ctx context.Context, a Award) (bool, error)
}

// BadgeID derives a badge id from its name: "Speak Up!" -> "speak-up".
func BadgeID(name string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(sb.String(), "-")
}

func nickname(identity string) string {
	nick, _, _ := strings.Cut(identity, "@")
	return nick
}
