package hclcheck

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/checkgrid/internal/testcase"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/gocty"
)

// evalContext exposes the case bound to c to its expressions.
func (c *Check) evalContext() *hcl.EvalContext {
	tc := c.Current()
	part, env := tc.Partition(), tc.Environ()

	vars := cty.MapValEmpty(cty.String)
	if len(env.Variables) > 0 {
		m := make(map[string]cty.Value, len(env.Variables))
		for k, v := range env.Variables {
			m[k] = cty.StringVal(v)
		}
		vars = cty.MapVal(m)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"check": cty.ObjectVal(map[string]cty.Value{
				"name":      cty.StringVal(c.Name()),
				"sourcedir": cty.StringVal(c.def.sourceDir),
			}),
			"partition": cty.ObjectVal(map[string]cty.Value{
				"name":     cty.StringVal(part.Name),
				"fullname": cty.StringVal(part.FullName()),
				"system":   cty.StringVal(part.System),
			}),
			"environ": cty.ObjectVal(map[string]cty.Value{
				"name":      cty.StringVal(env.Name),
				"variables": vars,
			}),
			"stagedir":  cty.StringVal(c.StageDir()),
			"outputdir": cty.StringVal(c.OutputDir()),
		},
		Functions: map[string]function.Function{
			"dep_stagedir":  c.depDirFunc(testcase.Check.StageDir),
			"dep_outputdir": c.depDirFunc(testcase.Check.OutputDir),
		},
	}
}

// depDirFunc builds a function(check[, environ]) returning a directory of
// the named dependency. The environment defaults to the case's own.
func (c *Check) depDirFunc(dir func(testcase.Check) string) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "check", Type: cty.String},
		},
		VarParam: &function.Parameter{Name: "environ", Type: cty.String},
		Type:     function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			if len(args) > 2 {
				return cty.NilVal, fmt.Errorf("expected at most 2 arguments, got %d", len(args))
			}
			env := ""
			if len(args) == 2 {
				env = args[1].AsString()
			}
			dep, err := c.GetDep(args[0].AsString(), env)
			if err != nil {
				return cty.NilVal, err
			}
			return cty.StringVal(dir(dep)), nil
		},
	})
}

func evalString(expr hcl.Expression, ectx *hcl.EvalContext) (string, error) {
	val, diags := expr.Value(ectx)
	if diags.HasErrors() {
		return "", diags
	}
	val, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", err
	}
	if val.IsNull() {
		return "", nil
	}
	return val.AsString(), nil
}

func evalStrings(expr hcl.Expression, ectx *hcl.EvalContext) ([]string, error) {
	val, diags := expr.Value(ectx)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}
	val, err := convert.Convert(val, cty.List(cty.String))
	if err != nil {
		return nil, err
	}
	var out []string
	if err := gocty.FromCtyValue(val, &out); err != nil {
		return nil, err
	}
	return out, nil
}
