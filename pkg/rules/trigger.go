// accolade/pkg/rules/trigger.go

package rules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"rgehrsitz/accolade/pkg/event"
	"rgehrsitz/accolade/pkg/expr"
)

type Kind int

const (
	KindTopic Kind = iota
	KindCategory
	KindExpression
	KindAny
	KindAll
	KindNot
)

var kindNames = map[string]Kind{
	"topic":      KindTopic,
	"category":   KindCategory,
	"expression": KindExpression,
	"any":        KindAny,
	"all":        KindAll,
	"not":        KindNot,
}

func (k Kind) String() string {
	for name, kind := range kindNames {
		if kind == k {
			return name
		}
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Trigger is one node of a rule's trigger tree. Leaves test the event
// directly; combinators own a non-empty list of children.
type Trigger struct {
	Kind     Kind
	Value    string
	Program  *expr.Program
	Children []*Trigger
}

// MatchResult is the outcome of evaluating a trigger node. Err reports a
// failure in the node or any of its descendants; a failed node counts as
// not matched.
type MatchResult struct {
	Matched bool
	Err     error
}

func triggerKeys() string {
	keys := make([]string, 0, len(kindNames))
	for k := range kindNames {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

// NewTrigger builds a trigger tree from its configuration mapping.
func NewTrigger(def any) (*Trigger, error) {
	m, ok := def.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("trigger must be a mapping, not %T", def)
	}
	if len(m) != 1 {
		return nil, fmt.Errorf("a trigger needs exactly one key, got %d; combine triggers with any, all or not", len(m))
	}

	var key string
	var value any
	for k, v := range m {
		key, value = k, v
	}

	kind, ok := kindNames[key]
	if !ok {
		return nil, fmt.Errorf("%q is not a valid trigger, use one of %s", key, triggerKeys())
	}
	t := &Trigger{Kind: kind}

	switch kind {
	case KindTopic, KindCategory:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%s trigger expects a string, not %T", key, value)
		}
		t.Value = s

	case KindExpression:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expression trigger expects a string, not %T", value)
		}
		prg, err := expr.Compile(s, "message")
		if err != nil {
			return nil, err
		}
		t.Value = s
		t.Program = prg

	default:
		if kind == KindNot {
			if child, isMap := value.(map[string]any); isMap {
				value = []any{child}
			}
		}
		list, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("%s only accepts a list of triggers, not %T", key, value)
		}
		if len(list) == 0 {
			return nil, fmt.Errorf("%s needs at least one trigger", key)
		}
		for i, item := range list {
			child, err := NewTrigger(item)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
			}
			t.Children = append(t.Children, child)
		}
	}
	return t, nil
}

// Match evaluates the tree against ev. It never panics.
func (t *Trigger) Match(ctx context.Context, ev *event.Event) MatchResult {
	return t.match(ctx, ev, lazyBinding(ev))
}

func lazyBinding(ev *event.Event) func() map[string]any {
	var binding map[string]any
	return func() map[string]any {
		if binding == nil {
			binding = map[string]any{"message": ev.Binding()}
		}
		return binding
	}
}

func (t *Trigger) match(ctx context.Context, ev *event.Event, binding func() map[string]any) (res MatchResult) {
	defer func() {
		if r := recover(); r != nil {
			res = MatchResult{Err: fmt.Errorf("%s trigger panicked: %v", t.Kind, r)}
		}
	}()

	switch t.Kind {
	case KindTopic:
		return MatchResult{Matched: strings.HasSuffix(ev.Topic, t.Value)}

	case KindCategory:
		category := ev.Category()
		return MatchResult{Matched: category != "" && category == t.Value}

	case KindExpression:
		v, err := t.Program.Eval(ctx, binding())
		if err != nil {
			if errors.Is(err, expr.ErrMissingField) {
				return MatchResult{}
			}
			return MatchResult{Err: err}
		}
		return MatchResult{Matched: expr.Truthy(v)}

	case KindAny:
		var errs []error
		for _, child := range t.Children {
			r := child.match(ctx, ev, binding)
			if r.Err != nil {
				errs = append(errs, r.Err)
			}
			if r.Matched {
				return MatchResult{Matched: true, Err: errors.Join(errs...)}
			}
		}
		return MatchResult{Err: errors.Join(errs...)}

	case KindAll:
		var errs []error
		for _, child := range t.Children {
			r := child.match(ctx, ev, binding)
			if r.Err != nil {
				errs = append(errs, r.Err)
			}
			if !r.Matched {
				return MatchResult{Err: errors.Join(errs...)}
			}
		}
		return MatchResult{Matched: true, Err: errors.Join(errs...)}

	case KindNot:
		var errs []error
		for _, child := range t.Children {
			r := child.match(ctx, ev, binding)
			if r.Err != nil {
				errs = append(errs, r.Err)
			}
			if r.Matched {
				return MatchResult{Err: errors.Join(errs...)}
			}
		}
		return MatchResult{Matched: true, Err: errors.Join(errs...)}
	}
	return MatchResult{Err: fmt.Errorf("unexpected trigger kind %s", t.Kind)}
}

// String renders the tree in its configuration form.
func (t *Trigger) String() string {
	switch t.Kind {
	case KindTopic, KindCategory, KindExpression:
		return fmt.Sprintf("%s(%q)", t.Kind, t.Value)
	}
	parts := make([]string, len(t.Children))
	for i, c := range t.Children {
		parts[i] = c.String()
	}
	return fmt.Sprintf("%s(%s)", t.Kind, strings.Join(parts, ", "))
}
