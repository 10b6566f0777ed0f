package engine

import (
	"bytes"
	"context"
	"io"
	"log/slog"
)

type indexer struct {
	eng    *Engine
	stream *Stream
	depth  int
}

func (ix *indexer) record(typ *TypeSpec, win *window, start int, parent *Record) (*Record, error) {
	if !typ.defined {
		return nil, &UnknownTypeError{Name: typ.name}
	}
	ix.depth++
	defer func() { ix.depth-- }()
	if ix.depth > ix.eng.maxDepth {
		return nil, decodeErrf(typ.name, "", win, start, nil, "nesting deeper than %d", ix.eng.maxDepth)
	}

	rec := &Record{
		eng:    ix.eng,
		typ:    typ,
		stream: ix.stream,
		win:    win,
		off:    start,
		pos:    start,
		parent: parent,
	}
	if parent != nil {
		rec.root = parent.root
	} else {
		rec.root = rec
	}
	ctx := &EvalContext{Record: rec}

	for _, p := range typ.props {
		if p.If != nil {
			ok, err := ix.evalBool(ctx, p, p.If, "if")
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}

		f := field{prop: p}
		if p.Repeat == RepeatNone {
			s, err := ix.slot(rec, p, rec.pos)
			if err != nil {
				return nil, err
			}
			f.slot = s
		} else {
			start := rec.pos
			list, err := ix.list(rec, p)
			if err != nil {
				return nil, err
			}
			f.list = list
			f.start, f.valEnd, f.end = start, rec.pos, rec.pos
		}
		rec.pos = f.end
		rec.fields = append(rec.fields, f)

		if ix.eng.verbose {
			ix.eng.logger.LogAttrs(context.Background(), slog.LevelDebug, "pagan: indexed field",
				slog.String("type", typ.name), slog.String("field", p.Name),
				slog.Int("start", f.start), slog.Int("end", f.end))
		}
	}

	ix.eng.recordIndexed()
	return rec, nil
}

func (ix *indexer) list(rec *Record, p *Property) (*List, error) {
	list := &List{owner: rec, prop: p}
	add := func() error {
		s, err := ix.slot(rec, p, rec.pos)
		if err != nil {
			return err
		}
		list.items = append(list.items, s)
		rec.pos = s.end
		return nil
	}

	switch p.Repeat {
	case RepeatExpr:
		n, err := ix.evalInt(&EvalContext{Record: rec}, p, p.Count, "repeat-expr")
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, decodeErrf(rec.typ.name, p.Name, rec.win, rec.pos, nil, "negative repeat count %d", n)
		}
		for range n {
			if err := add(); err != nil {
				return nil, err
			}
		}
	case RepeatEOS:
		for rec.pos < len(rec.win.data) {
			start := rec.pos
			if err := add(); err != nil {
				return nil, err
			}
			if rec.pos == start {
				return nil, decodeErrf(rec.typ.name, p.Name, rec.win, start, nil, "repeat-eos element consumed no bytes")
			}
		}
	case RepeatUntil:
		for i := 0; ; i++ {
			if err := add(); err != nil {
				return nil, err
			}
			item, err := rec.value(p, &list.items[i])
			if err != nil {
				return nil, err
			}
			done, err := ix.evalBool(&EvalContext{Record: rec, Item: item, HasItem: true, Index: i}, p, p.Until, "repeat-until")
			if err != nil {
				return nil, err
			}
			if done {
				break
			}
		}
	}

	ix.eng.listIndexed()
	return list, nil
}

func (ix *indexer) slot(rec *Record, p *Property, pos int) (slot, error) {
	s := slot{typ: p.Type, custom: p.Custom, start: pos}
	data := rec.win.data
	ctx := &EvalContext{Record: rec}

	if p.Type == Runtime {
		v, err := ix.eval(ctx, p, p.SwitchOn, "switch-on")
		if err != nil {
			return s, err
		}
		if c := selectCase(p.Cases, v); c != nil {
			s.typ, s.custom = c.Type, c.Custom
		} else if p.sized() {
			s.typ = Bytes
		} else {
			return s, decodeErrf(rec.typ.name, p.Name, rec.win, pos, nil, "no case matches %v", v)
		}
	}

	switch {
	case p.Size != nil:
		n, err := ix.evalInt(ctx, p, p.Size, "size")
		if err != nil {
			return s, err
		}
		if n < 0 {
			return s, decodeErrf(rec.typ.name, p.Name, rec.win, pos, nil, "negative size %d", n)
		}
		if n > int64(len(data)-pos) {
			return s, decodeErrf(rec.typ.name, p.Name, rec.win, pos, io.ErrUnexpectedEOF, "need %d bytes, %d available", n, len(data)-pos)
		}
		s.end = pos + int(n)
		return s, ix.sized(rec, p, &s)
	case p.SizeEOS:
		s.end = len(data)
		return s, ix.sized(rec, p, &s)
	default:
		return s, ix.unsized(rec, p, &s)
	}
}

func (ix *indexer) sized(rec *Record, p *Property, s *slot) error {
	data := rec.win.data
	var sub *window
	if p.Process != nil {
		dec, err := p.Process.Decode(data[s.start:s.end], ix.eng.maxProc)
		if err != nil {
			return decodeErrf(rec.typ.name, p.Name, rec.win, s.start, err, "process %s failed", p.Process.Name())
		}
		if dec == nil {
			dec = []byte{}
		}
		s.dec = dec
		sub = &window{dec, -1}
	} else {
		sub = rec.win.sub(s.start, s.end)
	}
	s.valEnd = s.end

	switch {
	case s.typ.IsCustom():
		child, err := ix.record(s.custom, sub, 0, rec)
		if err != nil {
			return err
		}
		s.child = child
	case s.typ.IsNumber():
		w := s.typ.Width()
		if len(sub.data) < w {
			return decodeErrf(rec.typ.name, p.Name, rec.win, s.start, io.ErrUnexpectedEOF, "need %d bytes, %d available", w, len(sub.data))
		}
		if s.dec == nil {
			s.valEnd = s.start + w
		}
	case s.typ == StringZ:
		if i := bytes.IndexByte(sub.data, p.Terminator); i >= 0 {
			if s.dec != nil {
				s.dec = s.dec[:i]
			} else {
				s.valEnd = s.start + i
			}
		}
	}
	return ix.checkContents(rec, p, s)
}

func (ix *indexer) unsized(rec *Record, p *Property, s *slot) error {
	data := rec.win.data
	avail := len(data) - s.start
	switch {
	case s.typ.IsNumber():
		w := s.typ.Width()
		if w > avail {
			return decodeErrf(rec.typ.name, p.Name, rec.win, s.start, io.ErrUnexpectedEOF, "need %d bytes, %d available", w, avail)
		}
		s.valEnd = s.start + w
		s.end = s.valEnd
	case s.typ == StringZ:
		i := bytes.IndexByte(data[s.start:], p.Terminator)
		if i < 0 {
			return decodeErrf(rec.typ.name, p.Name, rec.win, s.start, io.ErrUnexpectedEOF, "terminator 0x%02x not found", p.Terminator)
		}
		s.valEnd = s.start + i
		s.end = s.valEnd + 1
	case s.typ == Bytes && p.Contents != nil:
		n := len(p.Contents)
		if n > avail {
			return decodeErrf(rec.typ.name, p.Name, rec.win, s.start, io.ErrUnexpectedEOF, "need %d bytes, %d available", n, avail)
		}
		s.valEnd = s.start + n
		s.end = s.valEnd
	case s.typ.IsCustom():
		child, err := ix.record(s.custom, rec.win, s.start, rec)
		if err != nil {
			return err
		}
		s.child = child
		s.valEnd = child.pos
		s.end = child.pos
	default:
		return decodeErrf(rec.typ.name, p.Name, rec.win, s.start, nil, "%v requires a size", s.typ)
	}
	return ix.checkContents(rec, p, s)
}

func (ix *indexer) checkContents(rec *Record, p *Property, s *slot) error {
	if p.Contents == nil {
		return nil
	}
	actual := s.dec
	if actual == nil {
		actual = rec.win.data[s.start:s.valEnd]
	}
	if !bytes.Equal(actual, p.Contents) {
		return decodeErrf(rec.typ.name, p.Name, rec.win, s.start, nil, "contents mismatch, expected %x", p.Contents)
	}
	return nil
}

func selectCase(cases []Case, v any) *Case {
	var def *Case
	for i := range cases {
		c := &cases[i]
		if c.Default {
			def = c
		} else if matchCase(v, c.Match) {
			return c
		}
	}
	return def
}

func (ix *indexer) eval(ctx *EvalContext, p *Property, e Expr, what string) (any, error) {
	v, err := e.Eval(ctx)
	if err != nil {
		rec := ctx.Record
		return nil, decodeErrf(rec.typ.name, p.Name, rec.win, rec.pos, err, "%s %s", what, e)
	}
	return v, nil
}

func (ix *indexer) evalInt(ctx *EvalContext, p *Property, e Expr, what string) (int64, error) {
	v, err := ix.eval(ctx, p, e, what)
	if err != nil {
		return 0, err
	}
	n, err := ToInt(v)
	if err != nil {
		rec := ctx.Record
		return 0, decodeErrf(rec.typ.name, p.Name, rec.win, rec.pos, err, "%s %s", what, e)
	}
	return n, nil
}

func (ix *indexer) evalBool(ctx *EvalContext, p *Property, e Expr, what string) (bool, error) {
	v, err := ix.eval(ctx, p, e, what)
	if err != nil {
		return false, err
	}
	b, err := ToBool(v)
	if err != nil {
		rec := ctx.Record
		return false, decodeErrf(rec.typ.name, p.Name, rec.win, rec.pos, err, "%s %s", what, e)
	}
	return b, nil
}
