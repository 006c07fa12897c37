// accolade/pkg/rules/counter.go

package rules

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"rgehrsitz/accolade/pkg/archive"
	"rgehrsitz/accolade/pkg/event"
	"rgehrsitz/accolade/pkg/expr"
	"rgehrsitz/accolade/pkg/logging"
	"rgehrsitz/accolade/pkg/validator"
)

var counterFields = []string{"filter", "operation"}

// filterGetter produces the value of one archive filter parameter.
type filterGetter struct {
	literal  any
	programs []*expr.Program
	list     bool
}

func (g filterGetter) get(ctx context.Context, bindings map[string]any) (any, error) {
	if g.programs == nil {
		return g.literal, nil
	}
	if !g.list {
		return g.programs[0].Eval(ctx, bindings)
	}
	out := make([]any, 0, len(g.programs))
	for _, p := range g.programs {
		v, err := p.Eval(ctx, bindings)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// CounterSpec counts the archived events relevant to one candidate.
type CounterSpec struct {
	keys      []string
	getters   map[string]filterGetter
	operation *expr.Program
}

func NewCounterSpec(def map[string]any) (*CounterSpec, error) {
	if err := validator.ValidateFields(counterFields, counterFields, def); err != nil {
		return nil, err
	}

	filter, ok := def["filter"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("filter must be a mapping, not %T", def["filter"])
	}

	c := &CounterSpec{getters: make(map[string]filterGetter, len(filter))}
	for key, value := range filter {
		if !archive.IsFilterKey(key) {
			return nil, fmt.Errorf("%q is not a possible filter, choose from %v", key, archive.FilterKeys)
		}
		g, err := newFilterGetter(value)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", key, err)
		}
		c.keys = append(c.keys, key)
		c.getters[key] = g
	}
	sort.Strings(c.keys)

	switch op := def["operation"].(type) {
	case string:
		if op != "count" {
			return nil, fmt.Errorf("operations are either 'count' or an expression, not %q", op)
		}
	case map[string]any:
		src, ok := op["expression"].(string)
		if len(op) != 1 || !ok {
			return nil, errors.New("an operation mapping needs exactly one string key: expression")
		}
		prg, err := expr.Compile(src, "results")
		if err != nil {
			return nil, err
		}
		c.operation = prg
	default:
		return nil, fmt.Errorf("operations are either 'count' or an expression, not %T", op)
	}
	return c, nil
}

func newFilterGetter(value any) (filterGetter, error) {
	switch v := value.(type) {
	case string:
		prg, err := expr.Compile(v, "message", "recipient")
		if err != nil {
			return filterGetter{}, err
		}
		return filterGetter{programs: []*expr.Program{prg}}, nil
	case []any:
		g := filterGetter{list: true, programs: make([]*expr.Program, 0, len(v))}
		for i, item := range v {
			src, ok := item.(string)
			if !ok {
				return filterGetter{}, fmt.Errorf("item %d must be an expression string, not %T", i, item)
			}
			prg, err := expr.Compile(src, "message", "recipient")
			if err != nil {
				return filterGetter{}, err
			}
			g.programs = append(g.programs, prg)
		}
		return g, nil
	}
	return filterGetter{literal: value}, nil
}

// Filter evaluates the configured getters for one event and candidate.
func (c *CounterSpec) Filter(ctx context.Context, ev *event.Event, candidate string) (archive.Filter, error) {
	bindings := map[string]any{"message": ev.Binding(), "recipient": candidate}
	params := make(map[string]any, len(c.keys))
	for _, key := range c.keys {
		v, err := c.getters[key].get(ctx, bindings)
		if err != nil {
			return archive.Filter{}, err
		}
		params[key] = v
	}
	return archive.ParseFilter(params)
}

// Count returns the number the rule's condition is checked against. A
// getter or operation reading an absent field counts as zero.
func (c *CounterSpec) Count(ctx context.Context, arc archive.Archive, ev *event.Event, candidate string) (int, error) {
	f, err := c.Filter(ctx, ev, candidate)
	if err != nil {
		if errors.Is(err, expr.ErrMissingField) {
			logging.Logger.Debug().Err(err).Str("candidate", candidate).Msg("Could not compute the archive filter")
			return 0, nil
		}
		return 0, err
	}

	if c.operation == nil {
		return arc.Count(ctx, f)
	}

	events, err := arc.Query(ctx, f)
	if err != nil {
		return 0, err
	}
	results := make([]any, len(events))
	for i := range events {
		results[i] = events[i].Binding()
	}

	v, err := c.operation.Eval(ctx, map[string]any{"results": results})
	if err != nil {
		if errors.Is(err, expr.ErrMissingField) {
			logging.Logger.Debug().Err(err).Str("candidate", candidate).Msg("Could not run the counter operation")
			return 0, nil
		}
		return 0, err
	}
	return toCount(v)
}

func toCount(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(math.Floor(n)), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case []any:
		return len(n), nil
	}
	return 0, fmt.Errorf("counter operation returned %T, expected a number", v)
}
