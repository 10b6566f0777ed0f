package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/andreyvit/pagan/mmap"
)

// Encode serializes rec field by field and writes the result to path.
// Numbers and strings are re-encoded from their decoded values, processed
// fields are copied as their original raw span, and padding left unused by
// sized fields is carried over.
//
// Writing over a file that an open stream maps fails with ErrStreamInUse,
// since records decoded from it still read the mapping.
func (e *Engine) Encode(rec *Record, path string) error {
	if rec == nil {
		return encodeErrf("<nil>", "", nil, "nothing to encode")
	}
	if s := e.streams.Mapping(path); s != nil {
		return &WriteError{Path: path, Err: fmt.Errorf("%w: stream #%d (%s)", ErrStreamInUse, s.id, s.name)}
	}
	var bb bytesBuilder
	if err := encodeRecord(&bb, rec); err != nil {
		return err
	}
	if err := writeFile(path, bb.Buf); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	e.bytesWritten(len(bb.Buf))
	if e.verbose {
		e.logger.LogAttrs(context.Background(), slog.LevelDebug, "pagan: encoded",
			slog.String("type", rec.typ.name), slog.String("path", path), slog.Int("size", len(bb.Buf)))
	}
	return nil
}

// EncodeBytes is like Encode, but returns the bytes instead of writing them.
func (e *Engine) EncodeBytes(rec *Record) ([]byte, error) {
	var bb bytesBuilder
	if err := encodeRecord(&bb, rec); err != nil {
		return nil, err
	}
	return bb.Buf, nil
}

func writeFile(path string, data []byte) error {
	mf, err := mmap.Create(path, len(data), 0o666)
	if err != nil {
		return err
	}
	copy(mf.Bytes(), data)
	if err := mf.Sync(); err != nil {
		mf.Close()
		return err
	}
	return mf.Close()
}

func encodeRecord(bb *bytesBuilder, rec *Record) error {
	for i := range rec.fields {
		f := &rec.fields[i]
		if f.list != nil {
			for j := range f.list.items {
				if err := encodeSlot(bb, rec, f.prop, &f.list.items[j]); err != nil {
					return err
				}
			}
			continue
		}
		if err := encodeSlot(bb, rec, f.prop, &f.slot); err != nil {
			return err
		}
	}
	return nil
}

func encodeSlot(bb *bytesBuilder, rec *Record, p *Property, s *slot) error {
	data := rec.win.data
	if s.dec != nil {
		bb.Write(data[s.start:s.end])
		return nil
	}

	mark := bb.Len()
	switch {
	case s.child != nil:
		if err := encodeRecord(bb, s.child); err != nil {
			return err
		}
	case s.typ.IsNumber():
		v, err := rec.value(p, s)
		if err != nil {
			return encodeErrf(rec.typ.name, p.Name, err, "")
		}
		bb.Buf, err = appendNumber(bb.Buf, v, s.typ, rec.typ.reg.endian(p))
		if err != nil {
			return encodeErrf(rec.typ.name, p.Name, err, "")
		}
	case s.typ == String || s.typ == StringZ:
		v, err := rec.value(p, s)
		if err != nil {
			return encodeErrf(rec.typ.name, p.Name, err, "")
		}
		b, err := encodeString(v.(string), p.Encoding)
		if err != nil {
			return encodeErrf(rec.typ.name, p.Name, err, "cannot encode as %s", p.Encoding)
		}
		bb.Write(b)
	case s.typ == Bytes:
		bb.Write(data[s.start:s.valEnd])
	default:
		return encodeErrf(rec.typ.name, p.Name, nil, "unexpected type %v", s.typ)
	}

	// terminator and padding
	written := bb.Len() - mark
	span := s.end - s.start
	if written > span {
		return encodeErrf(rec.typ.name, p.Name, nil, "encoded %d bytes into a %d-byte field", written, span)
	}
	bb.Write(data[s.start+written : s.end])
	return nil
}
