package pagan

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/andreyvit/pagan/engine"
)

type DumpFlags uint64

const (
	DumpNested = DumpFlags(1 << iota)
	DumpTypes
	DumpFullBytes

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)

	defaultDumpBytes = 32
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump renders a view tree, one member per line, for debugging.
func Dump(v *View, f DumpFlags) string {
	var buf strings.Builder
	ensure(Dumper{Flags: f}.Write(&buf, v))
	return buf.String()
}

type Dumper struct {
	Flags DumpFlags

	// MaxBytes truncates buffers unless DumpFullBytes is set. Zero means 32.
	MaxBytes int
}

func (d Dumper) Write(w io.Writer, v *View) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, d.describe(v))
	d.dumpMembers(bw, "", v)
	return bw.Flush()
}

func (d Dumper) dumpMembers(w *bufio.Writer, prefix string, v *View) {
	array := isArray(v)
	for _, k := range v.Keys() {
		var path string
		if array {
			path = prefix + "[" + k + "]"
		} else if prefix == "" {
			path = k
		} else {
			path = prefix + "." + k
		}

		val, err := v.Get(k)
		if err != nil {
			fmt.Fprintf(w, "%s = ** ERROR: %v\n", path, err)
			continue
		}
		switch val.Kind() {
		case KindObject:
			fmt.Fprintf(w, "%s = %s\n", path, d.describe(val.View()))
			if d.Flags.Contains(DumpNested) {
				d.dumpMembers(w, path, val.View())
			}
		case KindBuffer:
			b, _ := val.Bytes()
			fmt.Fprintf(w, "%s = %s\n", path, d.formatBytes(b))
		case KindScalar:
			if s, ok := val.Str(); ok {
				fmt.Fprintf(w, "%s = %q\n", path, s)
			} else {
				fmt.Fprintf(w, "%s = %v\n", path, val)
			}
		default:
			fmt.Fprintf(w, "%s = %v\n", path, val)
		}
	}
}

func (d Dumper) describe(v *View) string {
	s := v.String()
	if rec, ok := v.target.(*engine.Record); ok && d.Flags.Contains(DumpTypes) {
		s = fmt.Sprintf("%s (%s @0x%x, %d bytes)", s, rec.TypeSpec().Name(), rec.Offset(), rec.Size())
	}
	return s
}

func (d Dumper) formatBytes(b []byte) string {
	limit := d.MaxBytes
	if limit <= 0 {
		limit = defaultDumpBytes
	}
	if d.Flags.Contains(DumpFullBytes) || len(b) <= limit {
		return fmt.Sprintf("(%d) %s", len(b), hexstr(b))
	}
	return fmt.Sprintf("(%d) %x...", len(b), b[:limit])
}

func isArray(v *View) bool {
	switch v.target.(type) {
	case *engine.List, []any:
		return true
	default:
		return false
	}
}
