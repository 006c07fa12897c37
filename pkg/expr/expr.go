// accolade/pkg/expr/expr.go

// Package expr compiles rule-supplied expressions into sandboxed CEL
// programs bound to a fixed list of named arguments.
package expr

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
	"google.golang.org/protobuf/types/known/structpb"

	"rgehrsitz/accolade/pkg/logging"
)

var (
	// ErrMissingField is returned by Eval when the expression looks up a key,
	// attribute or index that the bound values do not have.
	ErrMissingField = errors.New("missing field")

	// ErrCompile wraps syntax and type-check failures.
	ErrCompile = errors.New("expression does not compile")
)

const (
	DefaultCostLimit = 1_000_000
	DefaultTimeout   = 250 * time.Millisecond
)

// Lookup failures surface from cel-go as plain errors; these are the
// fragments it uses for them.
var missingMarkers = []string{
	"no such key",
	"no such attribute",
	"no such field",
	"out of range",
}

var jsonValueType = reflect.TypeOf(&structpb.Value{})

var envs sync.Map // joined argument names -> *cel.Env

// Program is a compiled expression. It is safe for concurrent use.
type Program struct {
	Source  string
	Args    []string
	Timeout time.Duration

	prg cel.Program
}

// Compile builds a program for expression over the named arguments.
func Compile(expression string, args ...string) (*Program, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrCompile)
	}

	env, err := envFor(args)
	if err != nil {
		return nil, err
	}

	ast, iss := env.Compile(expression)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrCompile, expression, iss.Err())
	}

	prg, err := env.Program(ast,
		cel.CostLimit(DefaultCostLimit),
		cel.InterruptCheckFrequency(100),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrCompile, expression, err)
	}

	logging.Logger.Debug().Str("expression", expression).Strs("args", args).Msg("Compiled expression")

	return &Program{
		Source:  expression,
		Args:    append([]string(nil), args...),
		Timeout: DefaultTimeout,
		prg:     prg,
	}, nil
}

// MustCompile is Compile for expressions known at build time.
func MustCompile(expression string, args ...string) *Program {
	p, err := Compile(expression, args...)
	if err != nil {
		panic(err)
	}
	return p
}

// Eval runs the program. Only the program's declared arguments are read
// from bindings; absent ones are bound to null.
func (p *Program) Eval(ctx context.Context, bindings map[string]any) (any, error) {
	vars := make(map[string]any, len(p.Args))
	for _, name := range p.Args {
		vars[name] = bindings[name]
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	out, _, err := p.prg.ContextEval(ctx, vars)
	if err != nil {
		return nil, classify(p.Source, err)
	}
	return toNative(out), nil
}

// EvalBool runs the program and reduces the result with Truthy.
func (p *Program) EvalBool(ctx context.Context, bindings map[string]any) (bool, error) {
	v, err := p.Eval(ctx, bindings)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

func (p *Program) String() string {
	return p.Source
}

// IsMissingField reports whether err came from an absent lookup.
func IsMissingField(err error) bool {
	return errors.Is(err, ErrMissingField)
}

func classify(source string, err error) error {
	msg := err.Error()
	for _, marker := range missingMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %s (in %q)", ErrMissingField, msg, source)
		}
	}
	return fmt.Errorf("evaluating %q: %w", source, err)
}

func envFor(args []string) (*cel.Env, error) {
	key := strings.Join(args, ",")
	if env, ok := envs.Load(key); ok {
		return env.(*cel.Env), nil
	}

	opts := []cel.EnvOption{
		cel.OptionalTypes(),
		ext.Strings(),
		ext.Encoders(),
		ext.Math(),
		ext.Sets(),
		cel.Lib(jsonLib{}),
	}
	for _, name := range args {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: environment for %v: %v", ErrCompile, args, err)
	}
	actual, _ := envs.LoadOrStore(key, env)
	return actual.(*cel.Env), nil
}

// toNative turns a CEL value back into plain Go values. Lists and maps go
// through structpb so that CEL-built aggregates come back as []any and
// map[string]any.
func toNative(v ref.Val) any {
	switch v.Type() {
	case types.NullType:
		return nil
	case types.ListType, types.MapType:
		pb, err := v.ConvertToNative(jsonValueType)
		if err != nil {
			return v.Value()
		}
		return pb.(*structpb.Value).AsInterface()
	}
	return v.Value()
}

// Truthy applies the usual scripting notion of truth: zero values and
// empty collections are false.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case uint64:
		return t != 0
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	}
	return true
}
