// accolade/pkg/rules/env.go

package rules

import (
	"rgehrsitz/accolade/pkg/archive"
	"rgehrsitz/accolade/pkg/identity"
	"rgehrsitz/accolade/pkg/ledger"
)

// Env holds the collaborators a rule needs while matching an event.
type Env struct {
	Ledger    ledger.Ledger
	Directory identity.Directory
	Identity  *identity.Resolver
	Archive   archive.Archive
	Counter   *Counter

	// EmailDomain turns usernames into ledger identities.
	EmailDomain string
}

// LedgerIdentity is the ledger's name for a username.
func (e *Env) LedgerIdentity(username string) string {
	return username + "@" + e.EmailDomain
}

// WithCounter returns a copy of e using c.
func (e *Env) WithCounter(c *Counter) *Env {
	cp := *e
	cp.Counter = c
	return &cp
}
