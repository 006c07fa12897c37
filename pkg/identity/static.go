// accolade/pkg/identity/static.go

package identity

import (
	"context"
	"slices"
	"sync"
)

// Static is an in-memory Directory. The evaluate command uses it when no
// directory URL is configured.
type Static struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewStatic(users ...User) *Static {
	s := &Static{users: make(map[string]User, len(users))}
	for _, u := range users {
		s.users[u.Username] = u
	}
	return s
}

func (s *Static) Add(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Username] = u
}

func (s *Static) GetUser(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Static) Exists(ctx context.Context, username string) (bool, error) {
	u, err := s.GetUser(ctx, username)
	return u != nil, err
}

// Search supports the username, email, ircnick and github_username__exact
// criteria; every given criterion must match.
func (s *Static) Search(_ context.Context, criteria map[string]string) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []User
	for _, u := range s.users {
		if matches(u, criteria) {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, b User) int {
		switch {
		case a.Username < b.Username:
			return -1
		case a.Username > b.Username:
			return 1
		}
		return 0
	})
	return out, nil
}

func matches(u User, criteria map[string]string) bool {
	for k, v := range criteria {
		switch k {
		case "username":
			if u.Username != v {
				return false
			}
		case "email":
			if !slices.Contains(u.Emails, v) {
				return false
			}
		case "ircnick":
			if !slices.Contains(u.IRCNicks, v) {
				return false
			}
		case "github_username__exact":
			if u.GithubUsername != v {
				return false
			}
		default:
			return false
		}
	}
	return true
}
