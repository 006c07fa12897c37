// accolade/pkg/identity/directory.go

// Package identity resolves event identities to directory accounts.
package identity

import (
	"context"
	"errors"
)

// ErrTransient marks directory failures that survived every retry.
var ErrTransient = errors.New("identity directory unavailable")

type User struct {
	Username       string   `json:"username"`
	HumanName      string   `json:"human_name,omitempty"`
	Emails         []string `json:"emails,omitempty"`
	IRCNicks       []string `json:"ircnicks,omitempty"`
	GithubUsername string   `json:"github_username,omitempty"`
}

// Directory is the account directory used by recipient resolution.
// GetUser returns nil, nil when the user does not exist.
type Directory interface {
	GetUser(ctx context.Context, username string) (*User, error)
	Exists(ctx context.Context, username string) (bool, error)
	Search(ctx context.Context, criteria map[string]string) ([]User, error)
}
