// accolade/pkg/expr/functions.go

package expr

import (
	"github.com/goccy/go-json"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// jsonLib exposes json_encode(dyn) and json_decode(string) to expressions.
type jsonLib struct{}

func (jsonLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("json_encode",
			cel.Overload("json_encode_dyn",
				[]*cel.Type{cel.DynType}, cel.StringType,
				cel.UnaryBinding(jsonEncode))),
		cel.Function("json_decode",
			cel.Overload("json_decode_string",
				[]*cel.Type{cel.StringType}, cel.DynType,
				cel.UnaryBinding(jsonDecode))),
	}
}

func (jsonLib) ProgramOptions() []cel.ProgramOption {
	return nil
}

func jsonEncode(v ref.Val) ref.Val {
	b, err := json.Marshal(toNative(v))
	if err != nil {
		return types.NewErr("json_encode: %v", err)
	}
	return types.String(b)
}

func jsonDecode(v ref.Val) ref.Val {
	s, ok := v.(types.String)
	if !ok {
		return types.MaybeNoSuchOverloadErr(v)
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return types.NewErr("json_decode: %v", err)
	}
	return types.DefaultTypeAdapter.NativeToValue(out)
}
