package engine

import (
	"fmt"
	"strings"
)

// TypeSpec is an ordered sequence of properties. A spec is created by
// Registry.Declare and filled in once by Registry.Define.
type TypeSpec struct {
	id      TypeID
	name    string
	reg     *Registry
	defined bool

	props       []*Property
	propsByName map[string]*Property
}

func (ts *TypeSpec) ID() TypeID          { return ts.id }
func (ts *TypeSpec) Name() string        { return ts.name }
func (ts *TypeSpec) Defined() bool       { return ts.defined }
func (ts *TypeSpec) Props() []*Property  { return ts.props }
func (ts *TypeSpec) Registry() *Registry { return ts.reg }

func (ts *TypeSpec) Prop(name string) *Property {
	return ts.propsByName[name]
}

func (ts *TypeSpec) String() string {
	var buf strings.Builder
	buf.WriteString(ts.name)
	buf.WriteString(" {")
	for i, p := range ts.props {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(p.Name)
		buf.WriteString(": ")
		buf.WriteString(p.TypeName())
	}
	buf.WriteByte('}')
	return buf.String()
}

type Property struct {
	Name   string
	Type   TypeID
	Custom *TypeSpec
	Endian Endian

	If Expr

	Size    Expr
	SizeEOS bool

	Repeat RepeatMode
	Count  Expr
	Until  Expr

	SwitchOn Expr
	Cases    []Case

	Process    Processor
	Contents   []byte
	Terminator byte
	Encoding   string

	index int
}

func (p *Property) Index() int { return p.index }

func (p *Property) TypeName() string {
	if p.Custom != nil {
		return p.Custom.name
	}
	return p.Type.String()
}

func (p *Property) sized() bool {
	return p.Size != nil || p.SizeEOS
}

// Case is one branch of a type switch. A Default case matches when no other
// case does.
type Case struct {
	Match   any
	Default bool
	Type    TypeID
	Custom  *TypeSpec
}

func On(match any, typ any) Case {
	id, custom := resolveTypeArg(typ)
	return Case{Match: match, Type: id, Custom: custom}
}

func Else(typ any) Case {
	id, custom := resolveTypeArg(typ)
	return Case{Default: true, Type: id, Custom: custom}
}

func resolveTypeArg(typ any) (TypeID, *TypeSpec) {
	switch typ := typ.(type) {
	case TypeID:
		if typ.IsCustom() {
			panic(fmt.Errorf("custom type id %d must be passed as *TypeSpec", typ))
		}
		return typ, nil
	case *TypeSpec:
		return typ.id, typ
	default:
		panic(fmt.Errorf("unexpected type argument %T", typ))
	}
}

type PropOption interface {
	apply(p *Property)
}

type PropFlag int

const (
	SizeEOS PropFlag = 1 << iota
	RepeatEOS
	BigEndianProp
	LittleEndianProp
)

func (f PropFlag) apply(p *Property) {
	switch f {
	case SizeEOS:
		p.SizeEOS = true
	case RepeatEOS:
		p.Repeat = RepeatEOS
	case BigEndianProp:
		p.Endian = BigEndian
	case LittleEndianProp:
		p.Endian = LittleEndian
	default:
		panic(fmt.Errorf("invalid prop flag %d", int(f)))
	}
}

type propOptionFunc func(p *Property)

func (f propOptionFunc) apply(p *Property) { f(p) }

func If(e Expr) PropOption {
	return propOptionFunc(func(p *Property) { p.If = e })
}

func Size(e Expr) PropOption {
	return propOptionFunc(func(p *Property) { p.Size = e })
}

func Count(e Expr) PropOption {
	return propOptionFunc(func(p *Property) {
		p.Repeat = RepeatExpr
		p.Count = e
	})
}

func Until(e Expr) PropOption {
	return propOptionFunc(func(p *Property) {
		p.Repeat = RepeatUntil
		p.Until = e
	})
}

func Switch(on Expr, cases ...Case) PropOption {
	return propOptionFunc(func(p *Property) {
		p.SwitchOn = on
		p.Cases = cases
	})
}

func Process(proc Processor) PropOption {
	return propOptionFunc(func(p *Property) { p.Process = proc })
}

func Contents(b []byte) PropOption {
	return propOptionFunc(func(p *Property) { p.Contents = b })
}

func Terminator(b byte) PropOption {
	return propOptionFunc(func(p *Property) { p.Terminator = b })
}

func Encoding(name string) PropOption {
	return propOptionFunc(func(p *Property) { p.Encoding = name })
}

// ReservedName is the member name views use to reach their target. No
// property may be called that.
const ReservedName = "__deproxy"

type TypeBuilder struct {
	spec *TypeSpec
}

func (b *TypeBuilder) Spec() *TypeSpec {
	return b.spec
}

// Prop appends a property. typ is a built-in TypeID, Runtime for a type
// switch, or a *TypeSpec. Options are PropFlag or PropOption values.
func (b *TypeBuilder) Prop(name string, typ any, opts ...any) *Property {
	if name == "" {
		panic("prop name missing")
	}
	if name == ReservedName {
		panic(fmt.Errorf("type %s: prop name %s is reserved", b.spec.name, name))
	}
	if b.spec.propsByName[name] != nil {
		panic(fmt.Errorf("type %s already has prop %s", b.spec.name, name))
	}
	id, custom := resolveTypeArg(typ)
	p := &Property{
		Name:   name,
		Type:   id,
		Custom: custom,
		index:  len(b.spec.props),
	}
	for _, opt := range opts {
		switch opt := opt.(type) {
		case PropOption:
			opt.apply(p)
		case Processor:
			p.Process = opt
		default:
			panic(fmt.Errorf("unexpected prop option %T", opt))
		}
	}
	if p.Type == Runtime && p.SwitchOn == nil {
		panic(fmt.Errorf("%s.%s: switch type without switch expression", b.spec.name, name))
	}
	if p.Size != nil && p.SizeEOS {
		panic(fmt.Errorf("%s.%s: both size and size-eos given", b.spec.name, name))
	}
	if p.Process != nil && !p.sized() {
		panic(fmt.Errorf("%s.%s: process requires size", b.spec.name, name))
	}
	if p.Contents != nil && p.Type != Bytes {
		panic(fmt.Errorf("%s.%s: contents requires bytes type", b.spec.name, name))
	}

	b.spec.props = append(b.spec.props, p)
	b.spec.propsByName[name] = p
	return p
}
