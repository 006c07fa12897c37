// accolade/pkg/rules/condition.go

package rules

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"rgehrsitz/accolade/pkg/expr"
)

type Operator string

const (
	OpGte        Operator = ">="
	OpGt         Operator = ">"
	OpLte        Operator = "<="
	OpLt         Operator = "<"
	OpEq         Operator = "=="
	OpNeq        Operator = "!="
	OpExpression Operator = "expression"
)

// conditionOperators maps every accepted configuration key to its operator.
var conditionOperators = map[string]Operator{
	"is greater than or equal to": OpGte,
	"greater than or equal to":    OpGte,
	">=":                          OpGte,
	"greater than":                OpGt,
	">":                           OpGt,
	"is less than or equal to":    OpLte,
	"less than or equal to":       OpLte,
	"<=":                          OpLte,
	"less than":                   OpLt,
	"<":                           OpLt,
	"equal to":                    OpEq,
	"is equal to":                 OpEq,
	"==":                          OpEq,
	"is not":                      OpNeq,
	"is not equal to":             OpNeq,
	"!=":                          OpNeq,
	"expression":                  OpExpression,
}

func conditionKeys() []string {
	keys := make([]string, 0, len(conditionOperators))
	for k := range conditionOperators {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Condition decides whether a counter value earns the badge. A nil
// Condition accepts every value.
type Condition struct {
	Operator  Operator
	Threshold any
	Program   *expr.Program
}

func NewCondition(def map[string]any) (*Condition, error) {
	if len(def) != 1 {
		return nil, fmt.Errorf("a condition needs exactly one operator, got %d; use one of %q", len(def), conditionKeys())
	}
	var key string
	var threshold any
	for k, v := range def {
		key, threshold = k, v
	}

	op, ok := conditionOperators[key]
	if !ok {
		return nil, fmt.Errorf("%q is not a valid condition key, use one of %q", key, conditionKeys())
	}

	c := &Condition{Operator: op, Threshold: threshold}
	if op == OpExpression {
		src, ok := threshold.(string)
		if !ok {
			return nil, fmt.Errorf("expression condition expects a string, not %T", threshold)
		}
		prg, err := expr.Compile(src, "value")
		if err != nil {
			return nil, err
		}
		c.Program = prg
	}
	return c, nil
}

func (c *Condition) Check(ctx context.Context, value any) (bool, error) {
	if c == nil {
		return true, nil
	}

	switch c.Operator {
	case OpExpression:
		v, err := c.Program.Eval(ctx, map[string]any{"value": value})
		if err != nil {
			return false, err
		}
		return expr.Truthy(v), nil
	case OpEq:
		return equal(value, c.Threshold), nil
	case OpNeq:
		return !equal(value, c.Threshold), nil
	}

	cmp, err := compare(value, c.Threshold)
	if err != nil {
		return false, err
	}
	switch c.Operator {
	case OpGte:
		return cmp >= 0, nil
	case OpGt:
		return cmp > 0, nil
	case OpLte:
		return cmp <= 0, nil
	case OpLt:
		return cmp < 0, nil
	}
	return false, fmt.Errorf("unknown operator %q", c.Operator)
}

func (c *Condition) String() string {
	if c == nil {
		return "always"
	}
	if c.Operator == OpExpression {
		return c.Program.String()
	}
	return fmt.Sprintf("value %s %v", c.Operator, c.Threshold)
}

// compare orders two numbers or two strings.
func compare(a, b any) (int, error) {
	if ia, ib, ok := asInts(a, b); ok {
		switch {
		case ia < ib:
			return -1, nil
		case ia > ib:
			return 1, nil
		}
		return 0, nil
	}
	if fa, fb, ok := asFloats(a, b); ok {
		switch {
		case fa < fb:
			return -1, nil
		case fa > fb:
			return 1, nil
		}
		return 0, nil
	}
	sa, oka := a.(string)
	sb, okb := b.(string)
	if oka && okb {
		switch {
		case sa < sb:
			return -1, nil
		case sa > sb:
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func equal(a, b any) bool {
	if ia, ib, ok := asInts(a, b); ok {
		return ia == ib
	}
	if fa, fb, ok := asFloats(a, b); ok {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func asInts(a, b any) (int64, int64, bool) {
	ia, oka := toInt64(a)
	ib, okb := toInt64(b)
	return ia, ib, oka && okb
}

func asFloats(a, b any) (float64, float64, bool) {
	fa, oka := toFloat64(a)
	fb, okb := toFloat64(b)
	return fa, fb, oka && okb
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
