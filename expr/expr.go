// Package expr compiles schema expressions (conditions, sizes, repeat counts,
// switch values) written in Starlark.
//
// An expression sees the fields of the record being indexed that precede it,
// plus _parent, _root and _io. Inside repeat-until, _ is the item just read
// and _index its position.
package expr

import (
	"fmt"
	"slices"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/andreyvit/pagan/engine"
)

const maxSteps = 100_000

var fileOptions = &syntax.FileOptions{}

type Expr struct {
	src   string
	ast   syntax.Expr
	names []string
}

var _ engine.Expr = (*Expr)(nil)

func Compile(src string) (*Expr, error) {
	ast, err := fileOptions.ParseExpr("<expr>", src, 0)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", src, err)
	}
	return &Expr{
		src:   src,
		ast:   ast,
		names: freeNames(ast),
	}, nil
}

func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Expr) String() string {
	return e.src
}

// Names returns the identifiers the expression refers to, excluding
// attribute names.
func (e *Expr) Names() []string {
	return e.names
}

func freeNames(ast syntax.Expr) []string {
	var names []string
	var visit func(n syntax.Node) bool
	visit = func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.Ident:
			if !slices.Contains(names, n.Name) {
				names = append(names, n.Name)
			}
		case *syntax.DotExpr:
			syntax.Walk(n.X, visit)
			return false
		}
		return true
	}
	syntax.Walk(ast, visit)
	return names
}

func (e *Expr) Eval(ctx *engine.EvalContext) (any, error) {
	env, err := e.env(ctx)
	if err != nil {
		return nil, err
	}
	thread := &starlark.Thread{Name: "pagan"}
	thread.SetMaxExecutionSteps(maxSteps)
	v, err := starlark.EvalExprOptions(fileOptions, thread, e.ast, env)
	if err != nil {
		return nil, err
	}
	return fromStarlark(v)
}

func (e *Expr) env(ctx *engine.EvalContext) (starlark.StringDict, error) {
	env := make(starlark.StringDict, len(e.names))
	rec := ctx.Record
	for _, name := range e.names {
		switch name {
		case "_":
			if ctx.HasItem {
				v, err := toStarlark(ctx.Item)
				if err != nil {
					return nil, err
				}
				env[name] = v
			}
			continue
		case "_index":
			if ctx.HasItem {
				env[name] = starlark.MakeInt(ctx.Index)
			}
			continue
		}
		if rec == nil {
			continue
		}
		var raw any
		if rec.Has(name) {
			v, err := rec.Get(name)
			if err != nil {
				return nil, err
			}
			raw = v
		} else if v, ok := rec.Member(name); ok {
			if m, ok := v.(engine.Method); ok {
				env[name] = methodValue(name, m, rec)
				continue
			}
			raw = v
		} else {
			continue
		}
		v, err := toStarlark(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		env[name] = v
	}
	return env, nil
}
