package engine

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Method is a callable member. recv is the object the method was obtained
// from.
type Method func(recv any, args ...any) (any, error)

// window is the byte range a record was indexed from: a stream, a sized
// substream, or a private buffer produced by a processor. base is the
// absolute stream offset of data[0], or -1 for private buffers.
type window struct {
	data []byte
	base int
}

func (w *window) sub(start, end int) *window {
	base := -1
	if w.base >= 0 {
		base = w.base + start
	}
	return &window{w.data[start:end], base}
}

// slot is one indexed value: its resolved type and its span inside the
// parent's window. end includes terminators and padding, valEnd does not.
type slot struct {
	typ    TypeID
	custom *TypeSpec
	start  int
	valEnd int
	end    int

	// dec is the processor output for processed fields.
	dec   []byte
	child *Record
}

type field struct {
	prop *Property
	slot
	list *List
}

// Record is a handle to one decoded record. Indexing records the field
// spans and child handles; values are decoded from the underlying bytes on
// every Get.
type Record struct {
	eng    *Engine
	typ    *TypeSpec
	stream *Stream
	win    *window
	off    int
	pos    int
	parent *Record
	root   *Record
	fields []field
}

func (r *Record) Engine() *Engine     { return r.eng }
func (r *Record) TypeSpec() *TypeSpec { return r.typ }
func (r *Record) Stream() *Stream     { return r.stream }
func (r *Record) Parent() *Record     { return r.parent }
func (r *Record) Root() *Record       { return r.root }
func (r *Record) Size() int           { return r.pos - r.off }

// Offset is the absolute stream offset of the record, or the offset inside
// the decompressed buffer for records nested in processed fields.
func (r *Record) Offset() int {
	if r.win.base >= 0 {
		return r.win.base + r.off
	}
	return r.off
}

// Bytes returns the raw bytes the record was decoded from. The slice aliases
// the stream and must not be modified.
func (r *Record) Bytes() []byte {
	return r.win.data[r.off:r.pos]
}

// Keys returns the present fields in declaration order.
func (r *Record) Keys() []string {
	keys := make([]string, len(r.fields))
	for i := range r.fields {
		keys[i] = r.fields[i].prop.Name
	}
	return keys
}

func (r *Record) Has(name string) bool {
	return r.field(name) != nil
}

func (r *Record) field(name string) *field {
	for i := range r.fields {
		if r.fields[i].prop.Name == name {
			return &r.fields[i]
		}
	}
	return nil
}

// Get decodes the named field. Nested records come back as *Record, repeated
// fields as *List.
func (r *Record) Get(name string) (any, error) {
	f := r.field(name)
	if f == nil {
		return nil, fmt.Errorf("%s.%s: %w", r.typ.name, name, ErrNoField)
	}
	if r.eng != nil {
		r.eng.fieldRead()
	}
	if f.list != nil {
		return f.list, nil
	}
	return r.value(f.prop, &f.slot)
}

func (r *Record) value(p *Property, s *slot) (any, error) {
	if s.child != nil {
		return s.child, nil
	}
	raw := s.dec
	if raw == nil {
		raw = r.win.data[s.start:s.valEnd]
	}
	switch {
	case s.typ.IsNumber():
		return decodeNumber(raw, s.typ, r.typ.reg.endian(p)), nil
	case s.typ == String || s.typ == StringZ:
		str, err := decodeString(raw, p.Encoding)
		if err != nil {
			return nil, decodeErrf(r.typ.name, p.Name, r.win, s.start, err, "invalid %s string", p.Encoding)
		}
		return str, nil
	case s.typ == Bytes:
		return bytes.Clone(raw), nil
	default:
		panic(fmt.Errorf("%s.%s: unexpected slot type %v", r.typ.name, p.Name, s.typ))
	}
}

// FieldOffset returns the absolute offset of the named field.
func (r *Record) FieldOffset(name string) (int, bool) {
	f := r.field(name)
	if f == nil {
		return 0, false
	}
	if r.win.base >= 0 {
		return r.win.base + f.start, true
	}
	return f.start, true
}

// Member resolves the record's own members, which all start with an
// underscore. Fields are not members.
func (r *Record) Member(name string) (any, bool) {
	switch name {
	case "_parent":
		if r.parent == nil {
			return nil, false
		}
		return r.parent, true
	case "_root":
		return r.root, true
	case "_io":
		return &IO{data: r.win.data, pos: r.pos}, true
	case "_type":
		return r.typ.name, true
	case "_offset":
		return int64(r.Offset()), true
	case "_size":
		return int64(r.Size()), true
	case "_has":
		return Method(recordHas), true
	case "_bytes":
		return Method(recordBytes), true
	case "_field_offset":
		return Method(recordFieldOffset), true
	default:
		return nil, false
	}
}

// MemberNames lists the names Member resolves.
func (r *Record) MemberNames() []string {
	return []string{"_parent", "_root", "_io", "_type", "_offset", "_size", "_has", "_bytes", "_field_offset"}
}

func (r *Record) String() string {
	var buf strings.Builder
	buf.WriteString("DynObject {")
	for i := range r.fields {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(r.fields[i].prop.Name)
	}
	buf.WriteByte('}')
	return buf.String()
}

func recvRecord(recv any, method string) (*Record, error) {
	r, ok := recv.(*Record)
	if !ok || r == nil {
		return nil, fmt.Errorf("%s: receiver is %T, not a record", method, recv)
	}
	return r, nil
}

func stringArg(args []any, method string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%s: expected 1 argument, got %d", method, len(args))
	}
	s, ok := args[0].(string)
	if !ok {
		return "", fmt.Errorf("%s: expected string argument, got %T", method, args[0])
	}
	return s, nil
}

func recordHas(recv any, args ...any) (any, error) {
	r, err := recvRecord(recv, "_has")
	if err != nil {
		return nil, err
	}
	name, err := stringArg(args, "_has")
	if err != nil {
		return nil, err
	}
	return r.Has(name), nil
}

func recordBytes(recv any, args ...any) (any, error) {
	r, err := recvRecord(recv, "_bytes")
	if err != nil {
		return nil, err
	}
	if len(args) != 0 {
		return nil, fmt.Errorf("_bytes: expected no arguments, got %d", len(args))
	}
	return bytes.Clone(r.Bytes()), nil
}

func recordFieldOffset(recv any, args ...any) (any, error) {
	r, err := recvRecord(recv, "_field_offset")
	if err != nil {
		return nil, err
	}
	name, err := stringArg(args, "_field_offset")
	if err != nil {
		return nil, err
	}
	off, ok := r.FieldOffset(name)
	if !ok {
		return nil, fmt.Errorf("_field_offset: %s.%s: %w", r.typ.name, name, ErrNoField)
	}
	return int64(off), nil
}

// List is a repeated field.
type List struct {
	owner *Record
	prop  *Property
	items []slot
}

func (l *List) Owner() *Record      { return l.owner }
func (l *List) Property() *Property { return l.prop }
func (l *List) Len() int            { return len(l.items) }

func (l *List) Index(i int) (any, error) {
	if i < 0 || i >= len(l.items) {
		return nil, fmt.Errorf("%s.%s[%d]: index out of range [0, %d)", l.owner.typ.name, l.prop.Name, i, len(l.items))
	}
	if l.owner.eng != nil {
		l.owner.eng.fieldRead()
	}
	return l.owner.value(l.prop, &l.items[i])
}

// Items decodes all elements.
func (l *List) Items() ([]any, error) {
	result := make([]any, len(l.items))
	for i := range l.items {
		v, err := l.Index(i)
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}

func (l *List) Keys() []string {
	keys := make([]string, len(l.items))
	for i := range keys {
		keys[i] = strconv.Itoa(i)
	}
	return keys
}

// Member resolves "length" and decimal indices. Use Index to see decoding
// errors.
func (l *List) Member(name string) (any, bool) {
	if name == "length" {
		return int64(len(l.items)), true
	}
	i, err := strconv.Atoi(name)
	if err != nil || strconv.Itoa(i) != name {
		return nil, false
	}
	v, err := l.Index(i)
	if err != nil {
		return nil, false
	}
	return v, true
}

func (l *List) String() string {
	return fmt.Sprintf("List [%d]", len(l.items))
}

// IO describes the window a record was read from.
type IO struct {
	data []byte
	pos  int
}

func (io *IO) Size() int { return len(io.data) }
func (io *IO) Pos() int  { return io.pos }
func (io *IO) EOF() bool { return io.pos >= len(io.data) }

func (io *IO) Keys() []string {
	return []string{"size", "pos", "eof"}
}

func (io *IO) Member(name string) (any, bool) {
	switch name {
	case "size":
		return int64(io.Size()), true
	case "pos":
		return int64(io.pos), true
	case "eof":
		return io.EOF(), true
	default:
		return nil, false
	}
}

func (io *IO) String() string {
	return fmt.Sprintf("IO {size: %d, pos: %d}", len(io.data), io.pos)
}
