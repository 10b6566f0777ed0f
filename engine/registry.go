package engine

import (
	"fmt"
)

// Registry maps type names to specs. Types can be declared before they are
// defined, so specs may refer to each other in any order.
type Registry struct {
	// Endian applies to numeric properties that don't specify their own.
	// Zero means little-endian.
	Endian Endian

	types  []*TypeSpec
	byName map[string]*TypeSpec
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*TypeSpec),
	}
}

// Declare returns the spec named name, reserving a new id if the name has not
// been seen before.
func (reg *Registry) Declare(name string) *TypeSpec {
	if name == "" {
		panic("type name missing")
	}
	if ts := reg.byName[name]; ts != nil {
		return ts
	}
	ts := &TypeSpec{
		id:          Custom + TypeID(len(reg.types)),
		name:        name,
		reg:         reg,
		propsByName: make(map[string]*Property),
	}
	reg.types = append(reg.types, ts)
	reg.byName[name] = ts
	return ts
}

// Define declares the named type and fills in its properties. Defining the
// same type twice panics.
func (reg *Registry) Define(name string, build func(b *TypeBuilder)) *TypeSpec {
	ts := reg.Declare(name)
	if ts.defined {
		panic(fmt.Errorf("type %s already defined", name))
	}
	ts.defined = true
	build(&TypeBuilder{spec: ts})
	return ts
}

func (reg *Registry) Lookup(name string) (*TypeSpec, error) {
	ts := reg.byName[name]
	if ts == nil || !ts.defined {
		return nil, &UnknownTypeError{Name: name}
	}
	return ts, nil
}

func (reg *Registry) ByID(id TypeID) *TypeSpec {
	i := int(id - Custom)
	if i < 0 || i >= len(reg.types) {
		return nil
	}
	return reg.types[i]
}

func (reg *Registry) Types() []*TypeSpec {
	return reg.types
}

func (reg *Registry) Len() int {
	return len(reg.types)
}

// Validate reports types that were referenced but never defined.
func (reg *Registry) Validate() error {
	for _, ts := range reg.types {
		if !ts.defined {
			return &UnknownTypeError{Name: ts.name}
		}
	}
	return nil
}

func (reg *Registry) endian(p *Property) Endian {
	if p.Endian != InheritEndian {
		return p.Endian
	}
	if reg.Endian == BigEndian {
		return BigEndian
	}
	return LittleEndian
}
