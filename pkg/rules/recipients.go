// accolade/pkg/rules/recipients.go

package rules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"rgehrsitz/accolade/pkg/event"
	"rgehrsitz/accolade/pkg/expr"
	"rgehrsitz/accolade/pkg/logging"
)

// DefaultRecipient is used when a rule names no recipient expression.
const DefaultRecipient = "message.agent_name"

// DeniedUsernames never receive badges.
var DeniedUsernames = newSet(
	"bodhi",
	"oscar",
	"apache",
	"koji",
	"taskotron",
	"pagure",
	"packit",
	"koschei",
	"distrobuildsync-eln/jenkins-continuous-infra.apps.ci.centos.org",
	"osbuild-automation-bot",
	"zodbot",
)

var privateAddressPrefixes = []string{"192.168.", "10."}

// Candidates resolves the identities that could receive the badge for ev:
// the recipient expression, the enabled transforms, the deny list, then the
// ledger and directory checks. The result is sorted.
func (r *Rule) Candidates(ctx context.Context, ev *event.Event, env *Env) ([]string, error) {
	log := logging.WithRule(r.Name)

	raw, err := r.Recipient.Eval(ctx, map[string]any{"message": ev.Binding()})
	if err != nil {
		if errors.Is(err, expr.ErrMissingField) {
			log.Debug().Err(err).Msg("Could not get the recipients")
			return nil, nil
		}
		return nil, err
	}

	candidates, err := normalizeCandidates(raw)
	if err != nil {
		return nil, err
	}

	for _, flag := range r.Transforms {
		transform, ok := env.Identity.Transform(flag)
		if !ok {
			return nil, fmt.Errorf("no transform for %s", flag)
		}
		next := make(map[string]struct{}, len(candidates))
		for c := range candidates {
			resolved, err := transform(ctx, c)
			if err != nil {
				return nil, fmt.Errorf("%s(%q): %w", flag, c, err)
			}
			if resolved == "" {
				continue
			}
			next[resolved] = struct{}{}
		}
		candidates = next
	}

	var kept []string
	for c := range candidates {
		if c == "" {
			continue
		}
		if _, denied := DeniedUsernames[c]; denied {
			continue
		}
		if hasPrivateAddressPrefix(c) {
			continue
		}
		kept = append(kept, c)
	}
	sort.Strings(kept)

	var out []string
	for _, c := range kept {
		identity := env.LedgerIdentity(c)
		awarded, err := env.Ledger.AwardExists(ctx, r.BadgeID, identity)
		if err != nil {
			return nil, err
		}
		if awarded {
			continue
		}
		optedOut, err := env.Ledger.OptedOut(ctx, identity)
		if err != nil {
			return nil, err
		}
		if optedOut {
			continue
		}
		exists, err := env.Directory.Exists(ctx, c)
		if err != nil {
			return nil, err
		}
		if !exists {
			log.Debug().Str("candidate", c).Msg("Candidate has no directory account")
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// normalizeCandidates turns a recipient expression result into a set.
func normalizeCandidates(v any) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	switch t := v.(type) {
	case nil:
	case string:
		set[t] = struct{}{}
	case int64, uint64, float64, int:
		set[fmt.Sprint(t)] = struct{}{}
	case []any:
		for _, item := range t {
			switch s := item.(type) {
			case nil:
			case string:
				set[s] = struct{}{}
			case int64, uint64, float64, int:
				set[fmt.Sprint(s)] = struct{}{}
			default:
				return nil, fmt.Errorf("recipient list contains %T, expected strings", item)
			}
		}
	default:
		return nil, fmt.Errorf("recipient expression returned %T, expected a string or a list", v)
	}
	return set, nil
}

func newSet(items ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

func hasPrivateAddressPrefix(s string) bool {
	for _, p := range privateAddressPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
