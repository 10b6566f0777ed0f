package pagan

import (
	"encoding/hex"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/Velocidex/ordereddict"

	"github.com/andreyvit/pagan/engine"
)

func newDocRegistry() (*engine.Registry, *engine.TypeSpec) {
	reg := engine.NewRegistry()
	entry := reg.Define("Entry", func(b *engine.TypeBuilder) {
		b.Prop("len", engine.Uint8)
		b.Prop("name", engine.String, engine.Size(engine.Field("len")))
	})
	section := reg.Define("Section", func(b *engine.TypeBuilder) {
		b.Prop("count", engine.Uint8)
		b.Prop("entries", entry, engine.Count(engine.Field("count")))
	})
	doc := reg.Define("Doc", func(b *engine.TypeBuilder) {
		b.Prop("magic", engine.Bytes, engine.Contents([]byte("PGV1")))
		b.Prop("version", engine.Uint16)
		b.Prop("section", section)
		b.Prop("blob", engine.Bytes, engine.SizeEOS)
	})
	return reg, doc
}

var docData = x(`
	50475631 0300
	02 03 616263 02 7879
	beef`)

func openDoc(t testing.TB) (*Parser, *View) {
	t.Helper()
	reg, doc := newDocRegistry()
	p := New(reg, Options{})
	t.Cleanup(func() { p.Close() })
	p.AddBytesStream("doc", docData)
	v, err := p.GetObject(doc, 0)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	return p, v
}

func TestView_keys(t *testing.T) {
	_, v := openDoc(t)
	rec := Deproxy(v).(*engine.Record)

	deepEqual(t, v.Keys(), rec.Keys())
	deepEqual(t, v.Keys(), []string{"magic", "version", "section", "blob"})
	if v.Len() != 4 {
		t.Fatalf("Len() = %d, wanted 4", v.Len())
	}
	var seq []string
	for k := range v.KeySeq() {
		seq = append(seq, k)
	}
	deepEqual(t, seq, v.Keys())
}

func TestView_scalarsAndBuffers(t *testing.T) {
	_, v := openDoc(t)
	rec := Deproxy(v).(*engine.Record)

	for _, k := range []string{"magic", "version", "blob"} {
		val := must(v.Get(k))
		deepEqual(t, val.Interface(), must(rec.Get(k)))
	}
	if k := must(v.Get("version")).Kind(); k != KindScalar {
		t.Fatalf("version kind = %v, wanted scalar", k)
	}
	if k := must(v.Get("blob")).Kind(); k != KindBuffer {
		t.Fatalf("blob kind = %v, wanted buffer", k)
	}
	if n, ok := must(v.Get("version")).Uint(); !ok || n != 3 {
		t.Fatalf("version = %v, %v, wanted 3", n, ok)
	}
}

func TestView_compositesWrapSameHandle(t *testing.T) {
	_, v := openDoc(t)
	rec := Deproxy(v).(*engine.Record)

	sec := must(v.Get("section"))
	if sec.Kind() != KindObject {
		t.Fatalf("section kind = %v, wanted object", sec.Kind())
	}
	if Deproxy(sec.View()) != must(rec.Get("section")) {
		t.Fatalf("section view does not wrap the record's child handle")
	}
	if sec.View() == must(v.Get("section")).View() {
		t.Fatalf("views are memoized, wanted a fresh view per Get")
	}

	entries := must(sec.Get("entries"))
	if _, ok := Deproxy(entries).(*engine.List); !ok {
		t.Fatalf("entries = %T, wanted *engine.List", Deproxy(entries))
	}
	deepEqual(t, entries.View().Keys(), []string{"0", "1"})
	deepEqual(t, must(entries.Get("length")).Interface(), any(int64(2)))
	if s := entries.View().String(); s != "List [2]" {
		t.Fatalf("String() = %q", s)
	}
}

func TestView_missingIsUndefined(t *testing.T) {
	_, v := openDoc(t)
	for _, k := range []string{"bogus", "_parent", "toString", ""} {
		val, err := v.Get(k)
		if err != nil {
			t.Fatalf("Get(%q) err = %v", k, err)
		}
		if !val.IsUndefined() {
			t.Fatalf("Get(%q) = %v, wanted undefined", k, val)
		}
	}
	entries := must(v.Lookup("section", "entries"))
	for _, i := range []int{2, -1} {
		if val := must(entries.Index(i)); !val.IsUndefined() {
			t.Fatalf("entries[%d] = %v, wanted undefined", i, val)
		}
	}
	if val := must(entries.Get("01")); !val.IsUndefined() {
		t.Fatalf("entries[01] = %v, wanted undefined", val)
	}
}

func TestView_deproxy(t *testing.T) {
	_, v := openDoc(t)
	rec := Deproxy(v).(*engine.Record)

	if Deproxy(Wrap(rec)) != rec {
		t.Fatalf("Deproxy(Wrap(rec)) != rec")
	}
	val := must(v.Get(DeproxyKey))
	if val.Kind() != KindTarget || val.Interface() != rec {
		t.Fatalf("Get(DeproxyKey) = %v %v, wanted the record", val.Kind(), val.Interface())
	}
	for _, k := range v.Keys() {
		if k == DeproxyKey {
			t.Fatalf("Keys() lists %q", DeproxyKey)
		}
	}
	if Deproxy(42) != 42 {
		t.Fatalf("Deproxy(42) changed its argument")
	}
}

func TestView_setIsRejected(t *testing.T) {
	p, v := openDoc(t)
	before := p.Stats().WritesRejected

	for _, k := range []string{"version", "bogus", DeproxyKey} {
		err := v.Set(k, 42)
		var e *ImmutableViewError
		if !errors.As(err, &e) {
			t.Fatalf("Set(%q) err = %v, wanted ImmutableViewError", k, err)
		}
		if e.Name != k {
			t.Fatalf("Name = %q, wanted %q", e.Name, k)
		}
		if err.Error() != "can't assign to object" {
			t.Fatalf("Error() = %q", err.Error())
		}
	}
	deepEqual(t, must(v.Get("version")).Interface(), any(uint64(3)))
	if n := p.Stats().WritesRejected - before; n != 3 {
		t.Fatalf("WritesRejected delta = %d, wanted 3", n)
	}
}

func TestView_writesRejectedArePerParser(t *testing.T) {
	p1, v1 := openDoc(t)
	p2, _ := openDoc(t)

	v1.Set("version", 1)
	must(v1.Lookup("section", "entries")).View().Set("0", 1)
	Wrap(map[string]any{}).Set("a", 1)

	if n := p1.Stats().WritesRejected; n != 2 {
		t.Fatalf("p1 WritesRejected = %d, wanted 2", n)
	}
	if n := p2.Stats().WritesRejected; n != 0 {
		t.Fatalf("p2 WritesRejected = %d, wanted 0", n)
	}
}

func TestView_methodsBindToTarget(t *testing.T) {
	_, v := openDoc(t)
	rec := Deproxy(v).(*engine.Record)

	has := must(v.Get("_has"))
	if has.Kind() != KindFunc {
		t.Fatalf("_has kind = %v, wanted func", has.Kind())
	}
	if has.Func().Receiver() != rec {
		t.Fatalf("_has is not bound to the record")
	}
	deepEqual(t, must(has.Call("section")).Interface(), any(true))
	deepEqual(t, must(has.Call("comment")).Interface(), any(false))
	if _, err := has.Call(); err == nil {
		t.Fatalf("_has() succeeded, wanted an argument error")
	}

	sec := must(v.Get("section"))
	raw := must(must(sec.Get("_bytes")).Func().Call())
	deepEqual(t, raw, any(x(`02 03616263 027879`)))

	off := must(must(sec.Get("_field_offset")).Call("entries"))
	deepEqual(t, off.Interface(), any(int64(7)))
}

func TestView_nativeMembers(t *testing.T) {
	_, v := openDoc(t)
	rec := Deproxy(v).(*engine.Record)

	parent := must(v.Lookup("section", "_parent"))
	if Deproxy(parent) != rec {
		t.Fatalf("section._parent is not the root record")
	}
	deepEqual(t, must(v.Lookup("section", "entries", 1, "_root", "version")).Interface(), any(uint64(3)))
	deepEqual(t, must(v.Lookup("section", "_offset")).Interface(), any(int64(6)))
	deepEqual(t, must(v.Lookup("section", "_size")).Interface(), any(int64(8)))
	deepEqual(t, must(v.Lookup("_type")).Interface(), any("Doc"))
	deepEqual(t, must(v.Lookup("_io", "size")).Interface(), any(int64(16)))
}

func TestView_fieldWinsOverMember(t *testing.T) {
	reg := engine.NewRegistry()
	odd := reg.Define("Odd", func(b *engine.TypeBuilder) {
		b.Prop("_size", engine.Uint8)
		b.Prop("x", engine.Uint8)
	})
	p := New(reg, Options{})
	defer p.Close()
	p.AddBytesStream("odd", []byte{7, 1})
	v := must(p.GetObject(odd, 0))

	deepEqual(t, must(v.Get("_size")).Interface(), any(uint64(7)))
	deepEqual(t, must(v.Get("_offset")).Interface(), any(int64(0)))
	deepEqual(t, v.Keys(), []string{"_size", "x"})
}

func TestView_lookup(t *testing.T) {
	_, v := openDoc(t)

	deepEqual(t, must(v.Lookup("section", "entries", 0, "name")).Interface(), any("abc"))
	deepEqual(t, must(v.Lookup("section", "entries", 1, "name")).Interface(), any("xy"))
	deepEqual(t, must(v.Lookup()).View(), v)

	_, err := v.Lookup("version", "x")
	if !errors.Is(err, ErrNotObject) {
		t.Fatalf("Lookup through scalar err = %v, wanted ErrNotObject", err)
	}
	if !strings.HasPrefix(err.Error(), "version.x: ") {
		t.Fatalf("err = %q, wanted path prefix", err)
	}
	_, err = v.Lookup("bogus", 0)
	if !errors.Is(err, ErrNotObject) {
		t.Fatalf("Lookup through undefined err = %v, wanted ErrNotObject", err)
	}
	assertPanics(t, func() { v.Lookup(1.5) })
}

func TestView_plainComposites(t *testing.T) {
	m := map[string]any{"b": int64(2), "a": []any{"x", []byte{1}}}
	v := Wrap(m)
	deepEqual(t, v.Keys(), []string{"a", "b"})
	deepEqual(t, must(v.Lookup("a", 0)).Interface(), any("x"))
	deepEqual(t, must(v.Lookup("a", 1)).Kind(), KindBuffer)
	deepEqual(t, must(v.Lookup("a", "length")).Interface(), any(int64(2)))
	if !must(v.Lookup("a", 2)).IsUndefined() {
		t.Fatalf("a[2] is defined")
	}
	if s := v.String(); s != "Map {a, b}" {
		t.Fatalf("String() = %q", s)
	}
	if s := must(v.Get("a")).View().String(); s != "Array [2]" {
		t.Fatalf("String() = %q", s)
	}

	d := ordereddict.NewDict().Set("z", uint64(1)).Set("y", ordereddict.NewDict().Set("k", "v"))
	dv := Wrap(d)
	deepEqual(t, dv.Keys(), []string{"z", "y"})
	deepEqual(t, must(dv.Lookup("y", "k")).Interface(), any("v"))
	if Deproxy(dv) != d {
		t.Fatalf("Deproxy(Wrap(d)) != d")
	}
	var e *ImmutableViewError
	if !errors.As(dv.Set("z", 2), &e) {
		t.Fatalf("Set on dict view did not fail")
	}
	deepEqual(t, must(dv.Get("z")).Interface(), any(uint64(1)))
}

func TestView_deproxyKeyNeverListed(t *testing.T) {
	m := map[string]any{"a": int64(1), DeproxyKey: int64(2)}
	v := Wrap(m)
	deepEqual(t, v.Keys(), []string{"a"})
	if v.Len() != 1 {
		t.Fatalf("Len() = %d, wanted 1", v.Len())
	}
	val := must(v.Get(DeproxyKey))
	if val.Kind() != KindTarget {
		t.Fatalf("Get(DeproxyKey) kind = %v, wanted target", val.Kind())
	}

	d := ordereddict.NewDict().Set(DeproxyKey, "x").Set("b", "y")
	deepEqual(t, Wrap(d).Keys(), []string{"b"})
	deepEqual(t, d.Keys(), []string{DeproxyKey, "b"})

	p := must(Plain(Wrap(m))).(*ordereddict.Dict)
	deepEqual(t, p.Keys(), []string{"a"})

	reg := engine.NewRegistry()
	assertPanics(t, func() {
		reg.Define("T", func(b *engine.TypeBuilder) {
			b.Prop(DeproxyKey, engine.Uint8)
		})
	})
}

func TestWrap_panics(t *testing.T) {
	assertPanics(t, func() { Wrap(42) })
	assertPanics(t, func() { Wrap("str") })
	assertPanics(t, func() { Wrap([]byte{1}) })
	assertPanics(t, func() { Wrap(nil) })
	assertPanics(t, func() { Wrap((*engine.Record)(nil)) })
}

func TestValue_accessors(t *testing.T) {
	var u Value
	if u.Kind() != KindUndefined || u.String() != "undefined" || u.Interface() != nil {
		t.Fatalf("zero Value = %v %q", u.Kind(), u)
	}
	if _, err := u.Call(); !errors.Is(err, ErrNotFunc) {
		t.Fatalf("Call on undefined err = %v", err)
	}

	i := classify(nil, int64(-1))
	if n, ok := i.Int(); !ok || n != -1 {
		t.Fatalf("Int() = %v, %v", n, ok)
	}
	if _, ok := i.Uint(); ok {
		t.Fatalf("Uint() of -1 succeeded")
	}
	if f, ok := i.Float(); !ok || f != -1 {
		t.Fatalf("Float() = %v, %v", f, ok)
	}
	if _, ok := i.Str(); ok {
		t.Fatalf("Str() of int succeeded")
	}
	b := classify(nil, []byte{0xab})
	if s := b.String(); s != "ab" {
		t.Fatalf("String() = %q", s)
	}
	if _, ok := classify(nil, "ab").Bytes(); ok {
		t.Fatalf("Bytes() of string succeeded")
	}
	if v, ok := classify(nil, true).Bool(); !ok || !v {
		t.Fatalf("Bool() = %v, %v", v, ok)
	}
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func assertPanics(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	fn()
}

func x(data string) []byte {
	data = strings.Join(strings.Fields(data), "")
	return must(hex.DecodeString(data))
}
