package expr

import (
	"fmt"
	"slices"

	"go.starlark.net/starlark"

	"github.com/andreyvit/pagan/engine"
)

type object interface {
	Keys() []string
	Member(name string) (any, bool)
}

// objectValue exposes a record (fields and members) or an IO to Starlark as
// a read-only value with attributes.
type objectValue struct {
	obj object
}

var _ starlark.HasAttrs = objectValue{}

func (v objectValue) String() string {
	return fmt.Sprint(v.obj)
}

func (v objectValue) Type() string {
	if rec, ok := v.obj.(*engine.Record); ok {
		return rec.TypeSpec().Name()
	}
	return "io"
}

func (v objectValue) Freeze()              {}
func (v objectValue) Truth() starlark.Bool { return starlark.True }

func (v objectValue) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: %s", v.Type())
}

func (v objectValue) Attr(name string) (starlark.Value, error) {
	if rec, ok := v.obj.(*engine.Record); ok && rec.Has(name) {
		raw, err := rec.Get(name)
		if err != nil {
			return nil, err
		}
		return toStarlark(raw)
	}
	raw, ok := v.obj.Member(name)
	if !ok {
		return nil, nil
	}
	if m, ok := raw.(engine.Method); ok {
		return methodValue(name, m, v.obj), nil
	}
	return toStarlark(raw)
}

// methodValue binds m to the object it was obtained from.
func methodValue(name string, m engine.Method, recv object) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("%s: unexpected keyword arguments", fn.Name())
		}
		goArgs := make([]any, len(args))
		for i, a := range args {
			var err error
			if goArgs[i], err = fromStarlark(a); err != nil {
				return nil, err
			}
		}
		result, err := m(recv, goArgs...)
		if err != nil {
			return nil, err
		}
		return toStarlark(result)
	})
}

func (v objectValue) AttrNames() []string {
	names := slices.Clone(v.obj.Keys())
	if rec, ok := v.obj.(*engine.Record); ok {
		names = append(names, rec.MemberNames()...)
	}
	slices.Sort(names)
	return names
}

func toStarlark(v any) (starlark.Value, error) {
	switch v := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case uint64:
		return starlark.MakeUint64(v), nil
	case float64:
		return starlark.Float(v), nil
	case string:
		return starlark.String(v), nil
	case []byte:
		return starlark.Bytes(v), nil
	case *engine.Record:
		return objectValue{v}, nil
	case *engine.IO:
		return objectValue{v}, nil
	case *engine.List:
		items, err := v.Items()
		if err != nil {
			return nil, err
		}
		elems := make([]starlark.Value, len(items))
		for i, item := range items {
			if elems[i], err = toStarlark(item); err != nil {
				return nil, err
			}
		}
		list := starlark.NewList(elems)
		list.Freeze()
		return list, nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}

func fromStarlark(v starlark.Value) (any, error) {
	switch v := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(v), nil
	case starlark.Int:
		if n, ok := v.Int64(); ok {
			return n, nil
		}
		if n, ok := v.Uint64(); ok {
			return n, nil
		}
		return nil, fmt.Errorf("integer %v out of range", v)
	case starlark.Float:
		return float64(v), nil
	case starlark.String:
		return string(v), nil
	case starlark.Bytes:
		return []byte(v), nil
	case objectValue:
		return v.obj, nil
	case *starlark.List:
		return fromIndexable(v)
	case starlark.Tuple:
		return fromIndexable(v)
	default:
		return nil, fmt.Errorf("unsupported expression result of type %s", v.Type())
	}
}

func fromIndexable(v starlark.Indexable) (any, error) {
	result := make([]any, v.Len())
	for i := range result {
		var err error
		if result[i], err = fromStarlark(v.Index(i)); err != nil {
			return nil, err
		}
	}
	return result, nil
}
