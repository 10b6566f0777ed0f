// Package ksy loads binary format schemas written in a Kaitai Struct-like
// YAML dialect into an engine registry.
//
// Supported: meta (id, endian, encoding), seq attributes with id, type, size,
// size-eos, if, repeat (eos, expr, until), process, contents, encoding and
// terminator, switch types, and nested types, which share one flat
// namespace. Expressions are Starlark (see package expr).
package ksy

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/andreyvit/pagan/engine"
	"github.com/andreyvit/pagan/expr"
)

// RootName is the name of the top-level type when meta.id is missing.
const RootName = "root"

// Field names that would be shadowed by record members, expression
// variables or the view's unwrap key.
var reservedNames = []string{
	"_parent", "_root", "_io", "_type", "_offset", "_size",
	"_has", "_bytes", "_field_offset",
	"_", "_index",
	engine.ReservedName,
}

var (
	identRe   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	numTypeRe = regexp.MustCompile(`^([us][1248]|f[48])(le|be)?$`)
)

type Schema struct {
	Registry *engine.Registry
	Root     *engine.TypeSpec
	Title    string
}

func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func Load(data []byte) (*Schema, error) {
	var root typeDef
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	m := root.Meta
	if m == nil {
		m = &meta{}
	}

	l := &loader{
		reg:  engine.NewRegistry(),
		defs: make(map[string]*typeDef),
	}
	var err error
	if l.reg.Endian, err = parseEndian(m.Endian); err != nil {
		return nil, err
	}
	if m.Encoding != "" {
		if _, err := engine.LookupEncoding(m.Encoding); err != nil {
			return nil, err
		}
		l.encoding = m.Encoding
	}

	rootName := RootName
	if m.ID != "" {
		rootName = m.ID
	}
	if err := l.collect(rootName, &root); err != nil {
		return nil, err
	}
	for _, name := range l.order {
		l.reg.Declare(name)
	}
	for _, name := range l.order {
		if err := l.define(name, l.defs[name]); err != nil {
			return nil, err
		}
	}

	rootSpec, err := l.reg.Lookup(rootName)
	if err != nil {
		return nil, err
	}
	return &Schema{
		Registry: l.reg,
		Root:     rootSpec,
		Title:    m.Title,
	}, nil
}

func parseEndian(s string) (engine.Endian, error) {
	switch s {
	case "":
		return engine.InheritEndian, nil
	case "le":
		return engine.LittleEndian, nil
	case "be":
		return engine.BigEndian, nil
	default:
		return engine.InheritEndian, fmt.Errorf("invalid endian %q", s)
	}
}

type loader struct {
	reg      *engine.Registry
	defs     map[string]*typeDef
	order    []string
	encoding string
}

func (l *loader) collect(name string, def *typeDef) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("line %d: invalid type name %q", def.Line, name)
	}
	if l.defs[name] != nil {
		return fmt.Errorf("line %d: duplicate type %q", def.Line, name)
	}
	l.defs[name] = def
	l.order = append(l.order, name)
	for _, nt := range def.Types {
		if err := l.collect(nt.Name, nt.Def); err != nil {
			return err
		}
	}
	return nil
}

type pendingProp struct {
	name string
	typ  any
	opts []any
}

func (l *loader) define(name string, def *typeDef) error {
	endian := engine.InheritEndian
	if def.Meta != nil {
		var err error
		if endian, err = parseEndian(def.Meta.Endian); err != nil {
			return fmt.Errorf("line %d: %s: %w", def.Line, name, err)
		}
	}

	var props []pendingProp
	seen := make(map[string]bool)
	for _, a := range def.Seq {
		p, err := l.prop(a, endian)
		if err != nil {
			if a.ID != "" {
				return fmt.Errorf("line %d: %s.%s: %w", a.Line, name, a.ID, err)
			}
			return fmt.Errorf("line %d: %s: %w", a.Line, name, err)
		}
		if seen[p.name] {
			return fmt.Errorf("line %d: %s: duplicate attribute %q", a.Line, name, p.name)
		}
		seen[p.name] = true
		props = append(props, p)
	}

	l.reg.Define(name, func(b *engine.TypeBuilder) {
		for _, p := range props {
			b.Prop(p.name, p.typ, p.opts...)
		}
	})
	return nil
}

func (l *loader) prop(a attr, typeEndian engine.Endian) (pendingProp, error) {
	p := pendingProp{name: a.ID}
	if a.ID == "" {
		return p, fmt.Errorf("attribute id missing")
	}
	if !identRe.MatchString(a.ID) {
		return p, fmt.Errorf("invalid attribute id %q", a.ID)
	}
	if slices.Contains(reservedNames, a.ID) {
		return p, fmt.Errorf("attribute id %q is reserved", a.ID)
	}

	typ, endian, err := l.resolveRef(a.Type, &p.opts)
	if err != nil {
		return p, err
	}
	if endian == engine.InheritEndian {
		endian = typeEndian
	}
	switch endian {
	case engine.LittleEndian:
		p.opts = append(p.opts, engine.LittleEndianProp)
	case engine.BigEndian:
		p.opts = append(p.opts, engine.BigEndianProp)
	}

	sized := a.Size != nil || a.SizeEOS
	if a.Size != nil && a.SizeEOS {
		return p, fmt.Errorf("size and size-eos are mutually exclusive")
	}
	if a.Size != nil {
		e, err := compile(a.Size)
		if err != nil {
			return p, err
		}
		p.opts = append(p.opts, engine.Size(e))
	}
	if a.SizeEOS {
		p.opts = append(p.opts, engine.SizeEOS)
	}
	if a.If != nil {
		e, err := compile(a.If)
		if err != nil {
			return p, err
		}
		p.opts = append(p.opts, engine.If(e))
	}

	switch a.Repeat {
	case "":
		if a.RepeatExpr != nil || a.RepeatUntil != nil {
			return p, fmt.Errorf("repeat-expr and repeat-until require repeat")
		}
	case "eos":
		p.opts = append(p.opts, engine.RepeatEOS)
	case "expr":
		if a.RepeatExpr == nil {
			return p, fmt.Errorf("repeat: expr requires repeat-expr")
		}
		e, err := compile(a.RepeatExpr)
		if err != nil {
			return p, err
		}
		p.opts = append(p.opts, engine.Count(e))
	case "until":
		if a.RepeatUntil == nil {
			return p, fmt.Errorf("repeat: until requires repeat-until")
		}
		e, err := compile(a.RepeatUntil)
		if err != nil {
			return p, err
		}
		p.opts = append(p.opts, engine.Until(e))
	default:
		return p, fmt.Errorf("invalid repeat %q", a.Repeat)
	}

	if a.Process != "" {
		if !sized {
			return p, fmt.Errorf("process requires size or size-eos")
		}
		proc, err := engine.ParseProcessor(a.Process)
		if err != nil {
			return p, err
		}
		p.opts = append(p.opts, engine.Process(proc))
	}

	if a.Contents != nil {
		if typ != engine.Bytes {
			return p, fmt.Errorf("contents cannot be combined with a type")
		}
		p.opts = append(p.opts, engine.Contents(a.Contents.Bytes))
	}

	if a.Terminator != nil {
		if typ != engine.String && typ != engine.StringZ {
			return p, fmt.Errorf("terminator requires a string type")
		}
		if *a.Terminator < 0 || *a.Terminator > 255 {
			return p, fmt.Errorf("terminator %d is not a byte", *a.Terminator)
		}
		typ = engine.StringZ
		p.opts = append(p.opts, engine.Terminator(byte(*a.Terminator)))
	}

	if typ == engine.String || typ == engine.StringZ {
		enc := a.Encoding
		if enc == "" {
			enc = l.encoding
		}
		if enc != "" {
			if _, err := engine.LookupEncoding(enc); err != nil {
				return p, err
			}
			p.opts = append(p.opts, engine.Encoding(enc))
		}
	} else if a.Encoding != "" {
		return p, fmt.Errorf("encoding requires a string type")
	}

	if !sized && (typ == engine.String || (typ == engine.Bytes && a.Contents == nil)) {
		return p, fmt.Errorf("%v requires size or size-eos", typ)
	}

	p.typ = typ
	return p, nil
}

// resolveRef returns a TypeID or *engine.TypeSpec. A switch appends its
// option to opts.
func (l *loader) resolveRef(ref *typeRef, opts *[]any) (any, engine.Endian, error) {
	if ref == nil {
		return engine.Bytes, engine.InheritEndian, nil
	}
	if ref.SwitchOn == nil {
		return l.resolveName(ref.Name)
	}

	on, err := compile(ref.SwitchOn)
	if err != nil {
		return nil, engine.InheritEndian, err
	}
	endian := engine.InheritEndian
	cases := make([]engine.Case, 0, len(ref.Cases))
	for _, c := range ref.Cases {
		typ, e, err := l.resolveName(c.Type)
		if err != nil {
			return nil, engine.InheritEndian, err
		}
		if e != engine.InheritEndian {
			if endian != engine.InheritEndian && endian != e {
				return nil, engine.InheritEndian, fmt.Errorf("switch cases mix endianness")
			}
			endian = e
		}
		if c.Default {
			cases = append(cases, engine.Else(typ))
		} else {
			cases = append(cases, engine.On(c.Match, typ))
		}
	}
	*opts = append(*opts, engine.Switch(on, cases...))
	return engine.Runtime, endian, nil
}

func (l *loader) resolveName(name string) (any, engine.Endian, error) {
	switch name {
	case "str":
		return engine.String, engine.InheritEndian, nil
	case "strz":
		return engine.StringZ, engine.InheritEndian, nil
	case "bytes":
		return engine.Bytes, engine.InheritEndian, nil
	}
	if m := numTypeRe.FindStringSubmatch(name); m != nil {
		id, _ := engine.BuiltinType(m[1])
		endian, _ := parseEndian(m[2])
		return id, endian, nil
	}
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}
	if l.defs[name] == nil {
		return nil, engine.InheritEndian, &engine.UnknownTypeError{Name: name}
	}
	return l.reg.Declare(name), engine.InheritEndian, nil
}

func compile(ev *exprValue) (engine.Expr, error) {
	if ev.Const != nil {
		return engine.Const(ev.Const), nil
	}
	e, err := expr.Compile(ev.Src)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", ev.Line, err)
	}
	return e, nil
}
