package pattern

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/Spyderisk/system-modeller-sub004/assetgraph"
)

// filter is a compiled CEL role filter.
type filter struct {
	expr string
	prg  cel.Program
}

// newFilterEnv returns the CEL environment role filters are compiled in.
// The candidate asset is exposed as the map variable "asset" with the keys
// id, type, label and attributes.
func newFilterEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("asset", cel.MapType(cel.StringType, cel.DynType)),
	)
}

func compileFilter(env *cel.Env, expr string) (*filter, error) {
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter must evaluate to bool, got %s", ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	return &filter{expr: expr, prg: prg}, nil
}

// accepts evaluates the filter against n. Evaluation errors (missing
// attributes, type mismatches) reject the asset.
func (f *filter) accepts(n *assetgraph.AssetNode) bool {
	attrs := n.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	out, _, err := f.prg.Eval(map[string]any{
		"asset": map[string]any{
			"id":         n.ID,
			"type":       n.Type,
			"label":      n.Label,
			"attributes": attrs,
		},
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
