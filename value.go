package pagan

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/Velocidex/ordereddict"

	"github.com/andreyvit/pagan/engine"
)

// Kind classifies what a View's Get returned.
type Kind int

const (
	// KindUndefined means there is no such member. It is not an error.
	KindUndefined Kind = iota
	KindScalar
	KindBuffer
	KindObject
	KindFunc

	// KindTarget is the unwrapped target returned for DeproxyKey.
	KindTarget
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindScalar:
		return "scalar"
	case KindBuffer:
		return "buffer"
	case KindObject:
		return "object"
	case KindFunc:
		return "func"
	case KindTarget:
		return "target"
	default:
		return "kind" + strconv.Itoa(int(k))
	}
}

// Object is a composite with named members, such as an engine record, list
// or IO. Views wrap any Object.
type Object interface {
	Keys() []string
	Member(name string) (any, bool)
}

var (
	_ Object = (*engine.Record)(nil)
	_ Object = (*engine.List)(nil)
	_ Object = (*engine.IO)(nil)
)

// Value is the result of a property read through a View.
type Value struct {
	kind Kind
	raw  any
	view *View
	fn   *BoundMethod
}

func (v Value) Kind() Kind         { return v.kind }
func (v Value) IsUndefined() bool  { return v.kind == KindUndefined }
func (v Value) View() *View        { return v.view }
func (v Value) Func() *BoundMethod { return v.fn }

// Interface returns the scalar, the buffer, the *View, the *BoundMethod or
// the deproxied target, depending on the kind.
func (v Value) Interface() any {
	switch v.kind {
	case KindObject:
		return v.view
	case KindFunc:
		return v.fn
	default:
		return v.raw
	}
}

func (v Value) Int() (int64, bool) {
	switch n := v.raw.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case uint64:
		if n > 1<<63-1 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func (v Value) Uint() (uint64, bool) {
	switch n := v.raw.(type) {
	case uint64:
		return n, true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	}
	return 0, false
}

func (v Value) Float() (float64, bool) {
	switch n := v.raw.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func (v Value) Str() (string, bool) {
	s, ok := v.raw.(string)
	return s, ok && v.kind == KindScalar
}

func (v Value) Bool() (bool, bool) {
	b, ok := v.raw.(bool)
	return b, ok && v.kind == KindScalar
}

func (v Value) Bytes() ([]byte, bool) {
	if v.kind != KindBuffer {
		return nil, false
	}
	return v.raw.([]byte), true
}

// Get reads a property of an object value.
func (v Value) Get(name string) (Value, error) {
	if v.kind != KindObject {
		return Value{}, fmt.Errorf("%s on %v: %w", name, v.kind, ErrNotObject)
	}
	return v.view.Get(name)
}

func (v Value) Index(i int) (Value, error) {
	if v.kind != KindObject {
		return Value{}, fmt.Errorf("[%d] on %v: %w", i, v.kind, ErrNotObject)
	}
	return v.view.Index(i)
}

// Call invokes a function value and classifies its result.
func (v Value) Call(args ...any) (Value, error) {
	if v.kind != KindFunc {
		return Value{}, fmt.Errorf("call on %v: %w", v.kind, ErrNotFunc)
	}
	result, err := v.fn.Call(args...)
	if err != nil {
		return Value{}, err
	}
	return classify(v.fn.recv, result), nil
}

func (v Value) String() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindBuffer:
		return hexstr(v.raw.([]byte))
	case KindObject:
		return v.view.String()
	case KindFunc:
		return "[Function]"
	default:
		return fmt.Sprint(v.raw)
	}
}

// BoundMethod is a method paired with the receiver it was read from, so that
// calls made through a view still reach the original object.
type BoundMethod struct {
	fn   engine.Method
	recv any
}

func (m *BoundMethod) Receiver() any {
	return m.recv
}

// Call invokes the method on its original receiver and returns the raw
// result.
func (m *BoundMethod) Call(args ...any) (any, error) {
	return m.fn(m.recv, args...)
}

func classify(target, v any) Value {
	switch v := v.(type) {
	case nil:
		return Value{}
	case []byte:
		return Value{kind: KindBuffer, raw: v}
	case engine.Method:
		return Value{kind: KindFunc, fn: &BoundMethod{v, target}}
	case func(recv any, args ...any) (any, error):
		return Value{kind: KindFunc, fn: &BoundMethod{v, target}}
	case *View:
		return Value{kind: KindObject, view: v}
	}
	if isComposite(v) {
		return Value{kind: KindObject, view: Wrap(v)}
	}
	return Value{kind: KindScalar, raw: v}
}

func isComposite(v any) bool {
	switch v := v.(type) {
	case *engine.Record:
		return v != nil
	case *engine.List:
		return v != nil
	case *engine.IO:
		return v != nil
	case Object:
		return v != nil
	case *ordereddict.Dict:
		return v != nil
	case map[string]any, []any:
		return true
	default:
		return false
	}
}

func hexstr(b []byte) string {
	if b == nil {
		return "<nil>"
	}
	if len(b) == 0 {
		return "<empty>"
	}
	return hex.EncodeToString(b)
}
