package pagan

import (
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"

	"github.com/Velocidex/ordereddict"

	"github.com/andreyvit/pagan/engine"
)

// DeproxyKey is the member name that yields a view's raw target. It never
// appears in Keys.
const DeproxyKey = engine.ReservedName

// View is a read-only dynamic object over a record handle or a plain
// composite. Every read goes through to the target; nothing is cached.
type View struct {
	target any
}

// Wrap returns a view over a composite target. Wrapping a scalar, a buffer
// or nil is a programming error and panics.
func Wrap(target any) *View {
	if v, ok := target.(*View); ok {
		return v
	}
	if !isComposite(target) {
		panic(fmt.Errorf("pagan: cannot wrap %T", target))
	}
	return &View{target}
}

// Deproxy unwraps one level of view. Anything else is returned unchanged.
func Deproxy(x any) any {
	switch x := x.(type) {
	case *View:
		if x == nil {
			return nil
		}
		return must(x.Get(DeproxyKey)).Interface()
	case Value:
		if x.kind == KindObject {
			return Deproxy(x.view)
		}
		return x.Interface()
	default:
		return x
	}
}

func (v *View) Keys() []string {
	switch t := v.target.(type) {
	case Object:
		return withoutDeproxyKey(t.Keys())
	case *ordereddict.Dict:
		return withoutDeproxyKey(t.Keys())
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			if k != DeproxyKey {
				keys = append(keys, k)
			}
		}
		slices.Sort(keys)
		return keys
	case []any:
		return indexKeys(len(t))
	default:
		panic(fmt.Errorf("pagan: unexpected view target %T", v.target))
	}
}

// withoutDeproxyKey drops a DeproxyKey entry that a plain composite happens
// to carry; Get can never reach it.
func withoutDeproxyKey(keys []string) []string {
	if !slices.Contains(keys, DeproxyKey) {
		return keys
	}
	return slices.DeleteFunc(slices.Clone(keys), func(k string) bool { return k == DeproxyKey })
}

func (v *View) KeySeq() iter.Seq[string] {
	return slices.Values(v.Keys())
}

func (v *View) Len() int {
	return len(v.Keys())
}

// Get reads a member. A missing member yields an undefined Value and a nil
// error; errors come only from the record engine and are passed through.
func (v *View) Get(name string) (Value, error) {
	if name == DeproxyKey {
		return Value{kind: KindTarget, raw: v.target}, nil
	}

	result, found, err := v.native(name)
	if err != nil {
		return Value{}, err
	}

	if rec, ok := v.target.(*engine.Record); ok && rec.Has(name) {
		result, err = rec.Get(name)
		if err != nil {
			return Value{}, err
		}
		found = true
	}

	if !found {
		return Value{}, nil
	}
	return classify(v.target, result), nil
}

func (v *View) native(name string) (any, bool, error) {
	switch t := v.target.(type) {
	case *engine.List:
		if i, ok := parseIndex(name); ok {
			if i >= t.Len() {
				return nil, false, nil
			}
			item, err := t.Index(i)
			return item, err == nil, err
		}
		r, ok := t.Member(name)
		return r, ok, nil
	case Object:
		r, ok := t.Member(name)
		return r, ok, nil
	case *ordereddict.Dict:
		r, ok := t.Get(name)
		return r, ok, nil
	case map[string]any:
		r, ok := t[name]
		return r, ok, nil
	case []any:
		if name == "length" {
			return int64(len(t)), true, nil
		}
		if i, ok := parseIndex(name); ok && i < len(t) {
			return t[i], true, nil
		}
		return nil, false, nil
	default:
		return nil, false, nil
	}
}

func (v *View) Index(i int) (Value, error) {
	if i < 0 {
		return Value{}, nil
	}
	return v.Get(strconv.Itoa(i))
}

// Set always fails: views are read-only.
func (v *View) Set(name string, value any) error {
	v.writeRejected()
	return &ImmutableViewError{Name: name}
}

// Lookup walks a path of string keys and int indices.
func (v *View) Lookup(path ...any) (Value, error) {
	cur := Value{kind: KindObject, view: v}
	for i, elem := range path {
		var err error
		switch elem := elem.(type) {
		case string:
			cur, err = cur.Get(elem)
		case int:
			cur, err = cur.Index(elem)
		default:
			panic(fmt.Errorf("pagan: path element %d is %T, wanted string or int", i, elem))
		}
		if err != nil {
			return Value{}, fmt.Errorf("%s: %w", FormatPath(path[:i+1]), err)
		}
	}
	return cur, nil
}

func (v *View) String() string {
	switch t := v.target.(type) {
	case *engine.Record:
		return t.String()
	case *engine.List:
		return t.String()
	case []any:
		return fmt.Sprintf("Array [%d]", len(t))
	case map[string]any, *ordereddict.Dict:
		return "Map {" + strings.Join(v.Keys(), ", ") + "}"
	case fmt.Stringer:
		return t.String()
	default:
		return "Object {" + strings.Join(v.Keys(), ", ") + "}"
	}
}

func parseIndex(s string) (int, bool) {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

func indexKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = strconv.Itoa(i)
	}
	return keys
}
