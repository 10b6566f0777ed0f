package engine

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/klauspost/compress/zlib"
)

func newHeaderRegistry() (*Registry, *TypeSpec) {
	reg := NewRegistry()
	entry := reg.Define("Entry", func(b *TypeBuilder) {
		b.Prop("len", Uint8)
		b.Prop("name", String, Size(Field("len")))
		b.Prop("value", Int32, BigEndianProp)
	})
	header := reg.Define("Header", func(b *TypeBuilder) {
		b.Prop("magic", Bytes, Contents([]byte("PGN1")))
		b.Prop("version", Uint16)
		b.Prop("count", Uint8)
		b.Prop("flags", Uint8)
		b.Prop("entries", entry, Count(Field("count")))
		b.Prop("comment", StringZ, If(Func("flags & 1", func(ctx *EvalContext) (any, error) {
			v, err := ctx.Record.Get("flags")
			if err != nil {
				return nil, err
			}
			return v.(uint64)&1 != 0, nil
		})))
		b.Prop("tail", Bytes, SizeEOS)
	})
	return reg, header
}

var headerData = x(`
	50474e31 0200 02 01
	03 616263 fffffffb
	02 7879 00000100
	686900
	dead`)

func decodeBytes(t testing.TB, reg *Registry, typ *TypeSpec, data []byte) *Record {
	t.Helper()
	eng := New(reg, Options{})
	t.Cleanup(func() { eng.Close() })
	rec, err := eng.Decode(typ, 0, eng.AddBytes("test", data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return rec
}

func TestDecode_fields(t *testing.T) {
	reg, header := newHeaderRegistry()
	rec := decodeBytes(t, reg, header, headerData)

	deepEqual(t, rec.Keys(), []string{"magic", "version", "count", "flags", "entries", "comment", "tail"})
	deepEqual(t, must(rec.Get("version")), any(uint64(2)))
	deepEqual(t, must(rec.Get("magic")), any([]byte("PGN1")))
	deepEqual(t, must(rec.Get("comment")), any("hi"))
	deepEqual(t, must(rec.Get("tail")), any([]byte{0xde, 0xad}))
	if rec.Size() != len(headerData) {
		t.Fatalf("Size() = %d, wanted %d", rec.Size(), len(headerData))
	}

	entries := must(rec.Get("entries")).(*List)
	if entries.Len() != 2 {
		t.Fatalf("entries.Len() = %d, wanted 2", entries.Len())
	}
	e0 := must(entries.Index(0)).(*Record)
	deepEqual(t, must(e0.Get("name")), any("abc"))
	deepEqual(t, must(e0.Get("value")), any(int64(-5)))
	e1 := must(entries.Index(1)).(*Record)
	deepEqual(t, must(e1.Get("name")), any("xy"))
	deepEqual(t, must(e1.Get("value")), any(int64(256)))
	if e1.Offset() != 16 {
		t.Fatalf("entries[1].Offset() = %d, wanted 16", e1.Offset())
	}

	if s := rec.String(); s != "DynObject {magic, version, count, flags, entries, comment, tail}" {
		t.Fatalf("String() = %q", s)
	}
}

func TestDecode_valuesAreNotShared(t *testing.T) {
	reg, header := newHeaderRegistry()
	rec := decodeBytes(t, reg, header, bytes.Clone(headerData))

	tail := must(rec.Get("tail")).([]byte)
	tail[0] = 0
	deepEqual(t, must(rec.Get("tail")), any([]byte{0xde, 0xad}))
}

func TestDecode_absentConditionalField(t *testing.T) {
	reg, header := newHeaderRegistry()
	data := x(`50474e31 0100 00 00 cafe`)
	rec := decodeBytes(t, reg, header, data)

	deepEqual(t, rec.Keys(), []string{"magic", "version", "count", "flags", "entries", "tail"})
	if rec.Has("comment") {
		t.Fatalf("Has(comment) = true, wanted false")
	}
	_, err := rec.Get("comment")
	if !errors.Is(err, ErrNoField) {
		t.Fatalf("Get(comment) err = %v, wanted ErrNoField", err)
	}
	entries := must(rec.Get("entries")).(*List)
	if entries.Len() != 0 {
		t.Fatalf("entries.Len() = %d, wanted 0", entries.Len())
	}
}

func TestDecode_outOfBounds(t *testing.T) {
	reg, header := newHeaderRegistry()
	eng := New(reg, Options{})
	defer eng.Close()
	s := eng.AddBytes("test", headerData)

	for _, off := range []int{-1, len(headerData), len(headerData) + 10} {
		_, err := eng.Decode(header, off, s)
		var oob *OutOfBoundsError
		if !errors.As(err, &oob) {
			t.Fatalf("Decode(%d) err = %v, wanted *OutOfBoundsError", off, err)
		}
		if oob.Offset != off || oob.Size != len(headerData) || oob.Type != "Header" {
			t.Fatalf("Decode(%d) err = %+v", off, oob)
		}
	}
}

func TestDecode_truncated(t *testing.T) {
	reg, header := newHeaderRegistry()
	eng := New(reg, Options{})
	defer eng.Close()

	_, err := eng.Decode(header, 0, eng.AddBytes("test", headerData[:11]))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, wanted *DecodeError", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err = %v, wanted io.ErrUnexpectedEOF", err)
	}
	if de.Type != "Entry" || de.Field != "name" || de.Off != 9 {
		t.Fatalf("err = %+v, wanted Entry.name at 9", de)
	}
}

func TestDecode_errorOffsetInsideSubstream(t *testing.T) {
	reg := NewRegistry()
	inner := reg.Define("Inner", func(b *TypeBuilder) {
		b.Prop("a", Uint8)
		b.Prop("b", Uint32)
	})
	outer := reg.Define("Outer", func(b *TypeBuilder) {
		b.Prop("pad", Bytes, Size(Const(3)))
		b.Prop("inner", inner, Size(Const(3)))
	})
	eng := New(reg, Options{})
	defer eng.Close()

	_, err := eng.Decode(outer, 0, eng.AddBytes("test", x(`000000 01 0203`)))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, wanted *DecodeError", err)
	}
	if de.Type != "Inner" || de.Field != "b" || de.Off != 4 {
		t.Fatalf("err = %+v, wanted Inner.b at 4", de)
	}
	if !bytes.Equal(de.Data, []byte{2, 3}) {
		t.Fatalf("err.Data = %x, wanted 0203", de.Data)
	}
}

func TestDecode_badMagic(t *testing.T) {
	reg, header := newHeaderRegistry()
	eng := New(reg, Options{})
	defer eng.Close()

	data := bytes.Clone(headerData)
	data[3] = '2'
	_, err := eng.Decode(header, 0, eng.AddBytes("test", data))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, wanted *DecodeError", err)
	}
	if de.Field != "magic" || !strings.Contains(de.Error(), "contents mismatch") {
		t.Fatalf("err = %v, wanted magic contents mismatch", err)
	}
}

func TestDecode_undefinedType(t *testing.T) {
	reg := NewRegistry()
	fwd := reg.Declare("Later")
	eng := New(reg, Options{})
	defer eng.Close()

	_, err := eng.Decode(fwd, 0, eng.AddBytes("test", []byte{1}))
	var ute *UnknownTypeError
	if !errors.As(err, &ute) || ute.Name != "Later" {
		t.Fatalf("err = %v, wanted UnknownTypeError(Later)", err)
	}
}

func TestRecord_members(t *testing.T) {
	reg, header := newHeaderRegistry()
	rec := decodeBytes(t, reg, header, headerData)
	e1 := must(must(rec.Get("entries")).(*List).Index(1)).(*Record)

	if p, ok := e1.Member("_parent"); !ok || p != rec {
		t.Fatalf("_parent = %v, wanted header", p)
	}
	if r, ok := e1.Member("_root"); !ok || r != rec {
		t.Fatalf("_root = %v, wanted header", r)
	}
	if _, ok := rec.Member("_parent"); ok {
		t.Fatalf("root record has _parent")
	}
	deepEqual(t, member(t, e1, "_type"), any("Entry"))
	deepEqual(t, member(t, e1, "_offset"), any(int64(16)))
	deepEqual(t, member(t, e1, "_size"), any(int64(7)))

	iov := member(t, rec, "_io").(*IO)
	if iov.Size() != len(headerData) || !iov.EOF() {
		t.Fatalf("_io = %v, wanted size %d at eof", iov, len(headerData))
	}

	has := member(t, rec, "_has").(Method)
	deepEqual(t, must(has(rec, "comment")), any(true))
	deepEqual(t, must(has(rec, "bogus")), any(false))

	fo := member(t, rec, "_field_offset").(Method)
	deepEqual(t, must(fo(rec, "comment")), any(int64(23)))
	if _, err := fo(rec, "bogus"); !errors.Is(err, ErrNoField) {
		t.Fatalf("_field_offset(bogus) err = %v, wanted ErrNoField", err)
	}

	rb := member(t, e1, "_bytes").(Method)
	deepEqual(t, must(rb(e1)), any(x("02 7879 00000100")))
	if _, err := rb("not a record"); err == nil {
		t.Fatalf("_bytes on a string receiver succeeded")
	}

	if _, ok := rec.Member("version"); ok {
		t.Fatalf("fields must not resolve as members")
	}
}

func TestList_members(t *testing.T) {
	reg := NewRegistry()
	typ := reg.Define("Words", func(b *TypeBuilder) {
		b.Prop("words", Uint16, RepeatEOS)
	})
	rec := decodeBytes(t, reg, typ, x("0100 0200 0300"))
	list := must(rec.Get("words")).(*List)

	deepEqual(t, list.Keys(), []string{"0", "1", "2"})
	deepEqual(t, must(list.Items()), []any{uint64(1), uint64(2), uint64(3)})
	if v, ok := list.Member("length"); !ok || v != int64(3) {
		t.Fatalf("length = %v, wanted 3", v)
	}
	if v, ok := list.Member("2"); !ok || v != uint64(3) {
		t.Fatalf("[2] = %v, wanted 3", v)
	}
	for _, name := range []string{"3", "-1", "01", "x"} {
		if _, ok := list.Member(name); ok {
			t.Fatalf("Member(%q) found", name)
		}
	}
	if _, err := list.Index(3); err == nil {
		t.Fatalf("Index(3) succeeded")
	}
	if s := list.String(); s != "List [3]" {
		t.Fatalf("String() = %q", s)
	}
}

func TestDecode_repeatUntil(t *testing.T) {
	reg := NewRegistry()
	typ := reg.Define("Z", func(b *TypeBuilder) {
		b.Prop("items", Uint8, Until(Func("_ == 0", func(ctx *EvalContext) (any, error) {
			return ctx.HasItem && ctx.Item.(uint64) == 0, nil
		})))
		b.Prop("rest", Uint8)
	})
	rec := decodeBytes(t, reg, typ, x("05 06 00 09"))
	deepEqual(t, must(must(rec.Get("items")).(*List).Items()), []any{uint64(5), uint64(6), uint64(0)})
	deepEqual(t, must(rec.Get("rest")), any(uint64(9)))
}

func TestDecode_repeatEOSNoProgress(t *testing.T) {
	reg := NewRegistry()
	empty := reg.Define("Empty", func(b *TypeBuilder) {})
	typ := reg.Define("Loop", func(b *TypeBuilder) {
		b.Prop("items", empty, RepeatEOS)
	})
	eng := New(reg, Options{})
	defer eng.Close()
	_, err := eng.Decode(typ, 0, eng.AddBytes("test", []byte{1}))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, wanted *DecodeError", err)
	}
}

func TestDecode_switch(t *testing.T) {
	reg := NewRegistry()
	pair := reg.Define("Pair", func(b *TypeBuilder) {
		b.Prop("a", Uint8)
		b.Prop("b", Uint8)
	})
	typ := reg.Define("Tagged", func(b *TypeBuilder) {
		b.Prop("tag", Uint8)
		b.Prop("body", Runtime, Switch(Field("tag"), On(1, Uint32), On(2, StringZ), On(3, pair)))
	})

	rec := decodeBytes(t, reg, typ, x("01 2a000000"))
	deepEqual(t, must(rec.Get("body")), any(uint64(42)))

	rec = decodeBytes(t, reg, typ, x("02 6f6b00"))
	deepEqual(t, must(rec.Get("body")), any("ok"))

	rec = decodeBytes(t, reg, typ, x("03 0708"))
	body := must(rec.Get("body")).(*Record)
	deepEqual(t, must(body.Get("b")), any(uint64(8)))

	eng := New(reg, Options{})
	defer eng.Close()
	_, err := eng.Decode(typ, 0, eng.AddBytes("test", x("09 00")))
	if err == nil || !strings.Contains(err.Error(), "no case matches 9") {
		t.Fatalf("err = %v, wanted no case error", err)
	}
}

func TestDecode_switchSizedFallsBackToBytes(t *testing.T) {
	reg := NewRegistry()
	typ := reg.Define("Tagged", func(b *TypeBuilder) {
		b.Prop("tag", Uint8)
		b.Prop("body", Runtime, Size(Const(3)), Switch(Field("tag"), On(1, String)))
		b.Prop("end", Uint8)
	})
	rec := decodeBytes(t, reg, typ, x("01 616263 ff"))
	deepEqual(t, must(rec.Get("body")), any("abc"))

	rec = decodeBytes(t, reg, typ, x("07 616263 ff"))
	deepEqual(t, must(rec.Get("body")), any([]byte("abc")))
	deepEqual(t, must(rec.Get("end")), any(uint64(255)))
}

func TestDecode_numbers(t *testing.T) {
	reg := NewRegistry()
	reg.Endian = BigEndian
	typ := reg.Define("Nums", func(b *TypeBuilder) {
		b.Prop("u", Uint16)
		b.Prop("s", Int16, LittleEndianProp)
		b.Prop("f", Float32)
		b.Prop("d", Float64)
		b.Prop("big", Uint64)
	})
	data := x("0102 feff 3fc00000 c002000000000000 ffffffffffffffff")
	rec := decodeBytes(t, reg, typ, data)
	deepEqual(t, must(rec.Get("u")), any(uint64(0x0102)))
	deepEqual(t, must(rec.Get("s")), any(int64(-2)))
	deepEqual(t, must(rec.Get("f")), any(float64(1.5)))
	deepEqual(t, must(rec.Get("d")), any(float64(-2.25)))
	deepEqual(t, must(rec.Get("big")), any(uint64(0xffffffffffffffff)))

	out := must(rec.eng.EncodeBytes(rec))
	if !bytes.Equal(out, data) {
		t.Fatalf("EncodeBytes = %x, wanted %x", out, data)
	}
}

func TestDecode_stringEncodings(t *testing.T) {
	reg := NewRegistry()
	typ := reg.Define("Names", func(b *TypeBuilder) {
		b.Prop("wide", String, Size(Const(4)), Encoding("UTF-16LE"))
		b.Prop("latin", StringZ, Encoding("ISO-8859-1"))
		b.Prop("padded", StringZ, Size(Const(5)))
	})
	data := x("68006900 e900 6f6b00aaaa")
	rec := decodeBytes(t, reg, typ, data)
	deepEqual(t, must(rec.Get("wide")), any("hi"))
	deepEqual(t, must(rec.Get("latin")), any("é"))
	deepEqual(t, must(rec.Get("padded")), any("ok"))

	out := must(rec.eng.EncodeBytes(rec))
	if !bytes.Equal(out, data) {
		t.Fatalf("EncodeBytes = %x, wanted %x", out, data)
	}
}

func TestDecode_processed(t *testing.T) {
	reg := NewRegistry()
	inner := reg.Define("Inner", func(b *TypeBuilder) {
		b.Prop("a", Uint32)
		b.Prop("b", StringZ)
	})
	typ := reg.Define("Packed", func(b *TypeBuilder) {
		b.Prop("size", Uint16)
		b.Prop("body", inner, Size(Field("size")), Zlib())
		b.Prop("masked", Bytes, Size(Const(2)), Process(XOR(0xff)))
		b.Prop("after", Uint8)
	})

	var zbuf bytes.Buffer
	zw := zlib.NewWriter(&zbuf)
	zw.Write(x("01000000 6f6b00"))
	zw.Close()
	payload := zbuf.Bytes()

	var data []byte
	data = append(data, byte(len(payload)), byte(len(payload)>>8))
	data = append(data, payload...)
	data = append(data, 0xf0, 0x0f, 0x7f)

	rec := decodeBytes(t, reg, typ, data)
	body := must(rec.Get("body")).(*Record)
	deepEqual(t, must(body.Get("a")), any(uint64(1)))
	deepEqual(t, must(body.Get("b")), any("ok"))
	if body.Offset() != 0 {
		t.Fatalf("body.Offset() = %d, wanted 0 inside the decompressed buffer", body.Offset())
	}
	deepEqual(t, must(rec.Get("masked")), any([]byte{0x0f, 0xf0}))
	deepEqual(t, must(rec.Get("after")), any(uint64(0x7f)))

	out := must(rec.eng.EncodeBytes(rec))
	if !bytes.Equal(out, data) {
		t.Fatalf("EncodeBytes = %x, wanted %x", out, data)
	}
}

func TestDecode_processFailure(t *testing.T) {
	reg := NewRegistry()
	typ := reg.Define("Packed", func(b *TypeBuilder) {
		b.Prop("body", Bytes, SizeEOS, Zlib())
	})
	eng := New(reg, Options{})
	defer eng.Close()
	_, err := eng.Decode(typ, 0, eng.AddBytes("test", []byte("not zlib")))
	var de *DecodeError
	if !errors.As(err, &de) || !strings.Contains(err.Error(), "process zlib failed") {
		t.Fatalf("err = %v, wanted process DecodeError", err)
	}
}

func TestDecode_processedSizeLimit(t *testing.T) {
	reg := NewRegistry()
	typ := reg.Define("Packed", func(b *TypeBuilder) {
		b.Prop("body", Bytes, SizeEOS, Zlib())
	})
	masked := reg.Define("Masked", func(b *TypeBuilder) {
		b.Prop("body", Bytes, SizeEOS, XOR(0xff))
	})

	var zbuf bytes.Buffer
	zw := zlib.NewWriter(&zbuf)
	zw.Write(make([]byte, 1<<16))
	zw.Close()

	eng := New(reg, Options{MaxProcessedSize: 1024})
	defer eng.Close()

	_, err := eng.Decode(typ, 0, eng.AddBytes("bomb", zbuf.Bytes()))
	var de *DecodeError
	if !errors.As(err, &de) || !errors.Is(err, ErrProcessedTooLarge) {
		t.Fatalf("err = %v, wanted DecodeError wrapping ErrProcessedTooLarge", err)
	}
	if de.Field != "body" || de.Off != 0 {
		t.Fatalf("err = %+v, wanted Packed.body at 0", de)
	}

	_, err = eng.Decode(masked, 0, eng.AddBytes("big", make([]byte, 1025)))
	if !errors.Is(err, ErrProcessedTooLarge) {
		t.Fatalf("err = %v, wanted ErrProcessedTooLarge", err)
	}

	rec := must(eng.Decode(masked, 0, eng.AddBytes("ok", make([]byte, 1024))))
	if n := len(must(rec.Get("body")).([]byte)); n != 1024 {
		t.Fatalf("len(body) = %d, wanted 1024", n)
	}
}

func TestDecode_maxDepth(t *testing.T) {
	reg := NewRegistry()
	node := reg.Declare("Node")
	reg.Define("Node", func(b *TypeBuilder) {
		b.Prop("next", node)
	})
	eng := New(reg, Options{MaxDepth: 8})
	defer eng.Close()
	_, err := eng.Decode(node, 0, eng.AddBytes("test", []byte{0}))
	if err == nil || !strings.Contains(err.Error(), "nesting deeper than 8") {
		t.Fatalf("err = %v, wanted nesting error", err)
	}
}

func TestEncode_roundTrip(t *testing.T) {
	reg, header := newHeaderRegistry()
	rec := decodeBytes(t, reg, header, headerData)

	out := filepath.Join(t.TempDir(), "out.bin")
	if err := rec.eng.Encode(rec, out); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	written := must(os.ReadFile(out))
	if !bytes.Equal(written, headerData) {
		t.Fatalf("written = %x, wanted %x", written, headerData)
	}
	if n := rec.eng.Stats().BytesWritten; n != int64(len(headerData)) {
		t.Fatalf("BytesWritten = %d, wanted %d", n, len(headerData))
	}

	eng := New(reg, Options{})
	defer eng.Close()
	s := must(eng.OpenStream(out))
	rec2 := must(eng.Decode(header, 0, s))
	deepEqual(t, rec2.Keys(), rec.Keys())
	for _, k := range []string{"magic", "version", "count", "flags", "comment", "tail"} {
		deepEqual(t, must(rec2.Get(k)), must(rec.Get(k)))
	}
}

func TestEncode_nestedRecordKeepsPadding(t *testing.T) {
	reg, _ := newHeaderRegistry()
	entry := must(reg.Lookup("Entry"))
	typ := reg.Define("Wrapper", func(b *TypeBuilder) {
		b.Prop("item", entry, Size(Const(10)))
	})
	data := x("03 616263 00000007 eeee")
	rec := decodeBytes(t, reg, typ, data)
	item := must(rec.Get("item")).(*Record)
	if item.Size() != 8 {
		t.Fatalf("item.Size() = %d, wanted 8", item.Size())
	}
	out := must(rec.eng.EncodeBytes(rec))
	if !bytes.Equal(out, data) {
		t.Fatalf("EncodeBytes = %x, wanted %x", out, data)
	}

	out = must(rec.eng.EncodeBytes(item))
	if !bytes.Equal(out, data[:8]) {
		t.Fatalf("EncodeBytes(item) = %x, wanted %x", out, data[:8])
	}
}

func TestEncode_writeError(t *testing.T) {
	reg, header := newHeaderRegistry()
	rec := decodeBytes(t, reg, header, headerData)
	err := rec.eng.Encode(rec, filepath.Join(t.TempDir(), "missing", "out.bin"))
	var we *WriteError
	if !errors.As(err, &we) {
		t.Fatalf("err = %v, wanted *WriteError", err)
	}
}

func TestEngine_stats(t *testing.T) {
	reg, header := newHeaderRegistry()
	eng := New(reg, Options{})
	defer eng.Close()
	rec := must(eng.Decode(header, 0, eng.AddBytes("test", headerData)))
	before := eng.Stats()
	if before.Streams != 1 || before.Types != 2 {
		t.Fatalf("Stats = %+v", before)
	}
	if before.RecordsIndexed != 3 || before.ListsIndexed != 1 {
		t.Fatalf("Stats = %+v, wanted 3 records and 1 list", before)
	}
	rec.Get("version")
	rec.Get("version")
	if n := eng.Stats().FieldReads - before.FieldReads; n != 2 {
		t.Fatalf("field reads = %d, wanted 2", n)
	}
}

func TestEngine_verboseLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	reg, header := newHeaderRegistry()
	eng := New(reg, Options{Logger: logger, Verbose: true})
	defer eng.Close()
	must(eng.Decode(header, 0, eng.AddBytes("test", headerData)))

	s := buf.String()
	if !strings.Contains(s, "pagan: indexed field") || !strings.Contains(s, "field=comment") {
		t.Fatalf("log = %q, wanted indexed field lines", s)
	}
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func member(t testing.TB, r *Record, name string) any {
	t.Helper()
	v, ok := r.Member(name)
	if !ok {
		t.Fatalf("Member(%q) not found", name)
	}
	return v
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func x(data string) []byte {
	data = strings.Join(strings.Fields(data), "")
	return must(hex.DecodeString(data))
}
