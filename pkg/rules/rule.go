// accolade/pkg/rules/rule.go

// Package rules compiles badge rule definitions and decides who earns a
// badge for each event.
package rules

import (
	"context"
	"fmt"
	"strings"

	"rgehrsitz/accolade/pkg/event"
	"rgehrsitz/accolade/pkg/expr"
	"rgehrsitz/accolade/pkg/identity"
	"rgehrsitz/accolade/pkg/ledger"
	"rgehrsitz/accolade/pkg/logging"
	"rgehrsitz/accolade/pkg/validator"
)

// Rule is a compiled badge rule. It is not modified after Setup.
type Rule struct {
	Name        string
	ImageURL    string
	Description string
	Creator     string
	Discussion  string
	IssuerID    string
	Tags        []string

	Trigger   *Trigger
	Condition *Condition
	Previous  *CounterSpec
	Recipient *expr.Program

	// Transforms lists the enabled recipient_*2fas flags in application order.
	Transforms []string

	// Source is the file the rule was loaded from, if any.
	Source string

	BadgeID string
}

// New compiles a rule definition.
func New(def map[string]any) (*Rule, error) {
	name, _ := def["name"].(string)
	missing, unknown := validator.CheckFields(validator.RequiredRuleFields, validator.PossibleRuleFields, def)
	if len(missing) > 0 || len(unknown) > 0 {
		return nil, &validator.RuleError{Rule: name, Missing: missing, Unknown: unknown}
	}

	fail := func(err error) (*Rule, error) {
		return nil, logging.NewError(logging.ErrorTypeConfig, fmt.Sprintf("invalid rule %q", name), err,
			map[string]interface{}{"rule": name})
	}

	r := &Rule{Name: name}
	var err error
	for field, dst := range map[string]*string{
		"image_url":   &r.ImageURL,
		"description": &r.Description,
		"creator":     &r.Creator,
		"discussion":  &r.Discussion,
		"issuer_id":   &r.IssuerID,
	} {
		if v, ok := def[field]; ok {
			s, isString := v.(string)
			if !isString {
				return fail(fmt.Errorf("%s must be a string, not %T", field, v))
			}
			*dst = s
		}
	}

	if tags, ok := def["tags"]; ok {
		list, isList := tags.([]any)
		if !isList {
			return fail(fmt.Errorf("tags must be a list, not %T", tags))
		}
		for _, t := range list {
			r.Tags = append(r.Tags, fmt.Sprint(t))
		}
	}

	if r.Trigger, err = NewTrigger(def["trigger"]); err != nil {
		return fail(fmt.Errorf("trigger: %w", err))
	}

	if c, ok := def["condition"]; ok {
		m, isMap := c.(map[string]any)
		if !isMap {
			return fail(fmt.Errorf("condition must be a mapping, not %T", c))
		}
		if r.Condition, err = NewCondition(m); err != nil {
			return fail(fmt.Errorf("condition: %w", err))
		}
	}

	if p, ok := def["previous"]; ok {
		m, isMap := p.(map[string]any)
		if !isMap {
			return fail(fmt.Errorf("previous must be a mapping, not %T", p))
		}
		if r.Previous, err = NewCounterSpec(m); err != nil {
			return fail(fmt.Errorf("previous: %w", err))
		}
	}

	recipient := DefaultRecipient
	if v, ok := def["recipient"]; ok {
		s, isString := v.(string)
		if !isString {
			return fail(fmt.Errorf("recipient must be an expression string, not %T", v))
		}
		recipient = s
	}
	if r.Recipient, err = expr.Compile(recipient, "message"); err != nil {
		return fail(fmt.Errorf("recipient: %w", err))
	}

	for _, flag := range identity.TransformFlags {
		v, ok := def[flag]
		if !ok {
			continue
		}
		enabled, isBool := v.(bool)
		if !isBool {
			return fail(fmt.Errorf("%s must be a boolean, not %T", flag, v))
		}
		if enabled {
			r.Transforms = append(r.Transforms, flag)
		}
	}

	return r, nil
}

// Setup registers the badge in the ledger and records its id.
func (r *Rule) Setup(ctx context.Context, l ledger.Ledger, issuerID string) error {
	if r.IssuerID != "" {
		issuerID = r.IssuerID
	}
	id, err := l.AddBadge(ctx, ledger.Badge{
		Name:        r.Name,
		ImageURL:    r.ImageURL,
		Description: r.Description,
		Criteria:    r.Discussion,
		Tags:        strings.Join(r.Tags, ","),
		IssuerID:    issuerID,
	})
	if err != nil {
		return fmt.Errorf("setup badge %q: %w", r.Name, err)
	}
	r.BadgeID = id
	return nil
}

// Matches returns the identities that earn the badge for ev. A failure
// while checking candidates yields no awards for this rule and event.
func (r *Rule) Matches(ctx context.Context, ev *event.Event, env *Env) (map[string]struct{}, error) {
	log := logging.WithRule(r.Name).With().Str("event_id", ev.ID).Str("topic", ev.Topic).Logger()

	res := r.Trigger.Match(ctx, ev)
	if res.Err != nil {
		log.Warn().Err(res.Err).Msg("Trigger evaluation failed")
	}
	if !res.Matched {
		return nil, nil
	}
	log.Debug().Msg("Trigger matched")

	awardees := make(map[string]struct{})

	candidates, err := r.Candidates(ctx, ev, env)
	if err != nil {
		return awardees, r.evalError("resolve candidates", err)
	}
	if len(candidates) == 0 {
		log.Debug().Msg("Rule has no candidate")
		return awardees, nil
	}

	previous := func(ctx context.Context, candidate string) (int, error) {
		if r.Previous == nil {
			return 1, nil
		}
		return r.Previous.Count(ctx, env.Archive, ev, candidate)
	}

	for _, candidate := range candidates {
		count, err := env.Counter.MessagesCount(ctx, r.BadgeID, candidate, previous)
		if err != nil {
			return make(map[string]struct{}), r.evalError("count messages", err)
		}
		ok, err := r.Condition.Check(ctx, count)
		if err != nil {
			return make(map[string]struct{}), r.evalError("check condition", err)
		}
		log.Debug().Str("candidate", candidate).Int("count", count).Bool("awarded", ok).Msg("Checked candidate")
		if ok {
			awardees[candidate] = struct{}{}
		}
	}
	return awardees, nil
}

func (r *Rule) evalError(msg string, err error) error {
	return logging.NewError(logging.ErrorTypeRuntime, msg, err, map[string]interface{}{"rule": r.Name})
}
