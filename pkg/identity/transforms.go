// accolade/pkg/identity/transforms.go

package identity

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"rgehrsitz/accolade/pkg/logging"
)

// Transform maps one raw identity token to a directory username. An empty
// result drops the token.
type Transform func(ctx context.Context, token string) (string, error)

// TransformFlags lists the rule flags enabling each transform, in the order
// they are applied.
var TransformFlags = []string{
	"recipient_nick2fas",
	"recipient_email2fas",
	"recipient_ircnick2fas",
	"recipient_openid2fas",
	"recipient_github2fas",
	"recipient_distgit2fas",
	"recipient_krb2fas",
}

var githubUserURL = regexp.MustCompile(`^https?://api\.github\.com/users/([a-z][a-z0-9-]+)$`)

// Resolver builds the transforms for one directory and deployment.
type Resolver struct {
	Directory Directory

	EmailDomain        string
	IDProviderHostname string
	DistgitHostname    string

	openid  *regexp.Regexp
	distgit *regexp.Regexp
}

func NewResolver(dir Directory, emailDomain, idProviderHostname, distgitHostname string) *Resolver {
	r := &Resolver{
		Directory:          dir,
		EmailDomain:        emailDomain,
		IDProviderHostname: idProviderHostname,
		DistgitHostname:    distgitHostname,
	}
	if idProviderHostname != "" {
		r.openid = regexp.MustCompile(fmt.Sprintf(`^https?://([a-z][a-z0-9]+)\.%s$`, regexp.QuoteMeta(idProviderHostname)))
	}
	if distgitHostname != "" {
		r.distgit = regexp.MustCompile(fmt.Sprintf(`^https?://%s/user/([a-z][a-z0-9]+)$`, regexp.QuoteMeta(distgitHostname)))
	}
	return r
}

// Transform returns the transform enabled by flag.
func (r *Resolver) Transform(flag string) (Transform, bool) {
	switch flag {
	case "recipient_nick2fas":
		return r.Nick, true
	case "recipient_email2fas":
		return r.Email, true
	case "recipient_ircnick2fas":
		return r.IRCNick, true
	case "recipient_openid2fas":
		return r.OpenID, true
	case "recipient_github2fas":
		return r.Github, true
	case "recipient_distgit2fas":
		return r.Distgit, true
	case "recipient_krb2fas":
		return r.Kerberos, true
	}
	return nil, false
}

// Nick looks the token up as a username.
func (r *Resolver) Nick(ctx context.Context, nick string) (string, error) {
	user, err := r.Directory.GetUser(ctx, nick)
	if err != nil || user == nil {
		return "", err
	}
	return user.Username, nil
}

// Email maps addresses in the deployment's own domain directly and searches
// the directory for the rest.
func (r *Resolver) Email(ctx context.Context, email string) (string, error) {
	if r.EmailDomain != "" && strings.HasSuffix(email, "@"+r.EmailDomain) {
		return email[:strings.LastIndex(email, "@")], nil
	}
	return r.searchOne(ctx, map[string]string{"email": email})
}

// IRCNick accepts a scheme-qualified nick ("irc:/nick") or tries the matrix
// and irc schemes in turn.
func (r *Resolver) IRCNick(ctx context.Context, nick string) (string, error) {
	candidates := []string{"matrix:/" + nick, "irc:/" + nick}
	if strings.Contains(nick, ":/") {
		candidates = []string{nick}
	}
	for _, c := range candidates {
		username, err := r.searchOne(ctx, map[string]string{"ircnick": c})
		if err != nil || username != "" {
			return username, err
		}
	}
	return "", nil
}

// OpenID extracts the username from http(s)://<user>.<id provider>. Other
// tokens pass through unchanged.
func (r *Resolver) OpenID(_ context.Context, openid string) (string, error) {
	if r.openid != nil {
		if m := r.openid.FindStringSubmatch(openid); m != nil {
			return m[1], nil
		}
	}
	return openid, nil
}

func (r *Resolver) Github(ctx context.Context, uri string) (string, error) {
	m := githubUserURL.FindStringSubmatch(uri)
	if m == nil {
		logging.Logger.Warn().Str("uri", uri).Msg("Can't extract the username from GitHub URI")
		return "", nil
	}
	users, err := r.Directory.Search(ctx, map[string]string{"github_username__exact": m[1]})
	if err != nil {
		return "", err
	}
	if len(users) != 1 {
		return "", nil
	}
	return users[0].Username, nil
}

// Distgit extracts the username from a dist-git user page URL. Other tokens
// pass through unchanged.
func (r *Resolver) Distgit(_ context.Context, uri string) (string, error) {
	if r.distgit != nil {
		if m := r.distgit.FindStringSubmatch(uri); m != nil {
			return m[1], nil
		}
	}
	return uri, nil
}

// Kerberos strips the instance from a principal such as "user/host".
func (r *Resolver) Kerberos(_ context.Context, name string) (string, error) {
	user, _, _ := strings.Cut(name, "/")
	return user, nil
}

func (r *Resolver) searchOne(ctx context.Context, criteria map[string]string) (string, error) {
	users, err := r.Directory.Search(ctx, criteria)
	if err != nil || len(users) == 0 {
		return "", err
	}
	return users[0].Username, nil
}
