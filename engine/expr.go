package engine

import (
	"fmt"
	"math"
)

// Expr computes a property parameter (condition, size, count, switch value)
// from the record being indexed.
type Expr interface {
	Eval(ctx *EvalContext) (any, error)
	String() string
}

// EvalContext is what an expression can see. Record holds the fields indexed
// so far. Item and Index are set while evaluating a repeat-until condition.
type EvalContext struct {
	Record  *Record
	Item    any
	HasItem bool
	Index   int
}

type constExpr struct {
	v any
}

func Const(v any) Expr {
	return constExpr{v}
}

func (e constExpr) Eval(*EvalContext) (any, error) { return e.v, nil }
func (e constExpr) String() string                 { return fmt.Sprint(e.v) }

type fieldExpr struct {
	name string
}

// Field evaluates to the value of a previously indexed field.
func Field(name string) Expr {
	return fieldExpr{name}
}

func (e fieldExpr) Eval(ctx *EvalContext) (any, error) {
	return ctx.Record.Get(e.name)
}
func (e fieldExpr) String() string { return e.name }

type funcExpr struct {
	src string
	fn  func(ctx *EvalContext) (any, error)
}

func Func(src string, fn func(ctx *EvalContext) (any, error)) Expr {
	return funcExpr{src, fn}
}

func (e funcExpr) Eval(ctx *EvalContext) (any, error) { return e.fn(ctx) }
func (e funcExpr) String() string                     { return e.src }

// ToInt converts a numeric expression result to int64.
func ToInt(v any) (int64, error) {
	switch v := v.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("value %v is not an integer", v)
		}
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

// ToBool converts an expression result to bool. Numbers are true when
// non-zero, strings and buffers when non-empty.
func ToBool(v any) (bool, error) {
	switch v := v.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		return v != "", nil
	case []byte:
		return len(v) > 0, nil
	case float64:
		return v != 0, nil
	default:
		n, err := ToInt(v)
		if err != nil {
			return false, fmt.Errorf("expected boolean, got %T", v)
		}
		return n != 0, nil
	}
}

// matchCase compares a switch value with a case label. Integers match across
// signedness; other values use ==.
func matchCase(v, label any) bool {
	switch label.(type) {
	case int, int64, int32, uint64, uint32, uint8:
		a, err1 := ToInt(v)
		b, err2 := ToInt(label)
		if err1 != nil || err2 != nil {
			if u, ok := v.(uint64); ok {
				if lu, ok := label.(uint64); ok {
					return u == lu
				}
			}
			return false
		}
		return a == b
	case string:
		switch v := v.(type) {
		case string:
			return v == label
		case []byte:
			return string(v) == label
		}
		return false
	case bool:
		b, ok := v.(bool)
		return ok && b == label
	default:
		return v == label
	}
}
