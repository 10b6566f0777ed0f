package engine

import (
	"fmt"
	"strconv"
)

// TypeID identifies a property type. Ids below Custom are built in; the
// registry assigns Custom and above to user types in declaration order.
type TypeID int

const (
	Invalid TypeID = iota
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	String
	StringZ
	Bytes
	Runtime
	Custom
)

var builtinNames = [...]string{
	Invalid: "invalid",
	Int8:    "s1",
	Int16:   "s2",
	Int32:   "s4",
	Int64:   "s8",
	Uint8:   "u1",
	Uint16:  "u2",
	Uint32:  "u4",
	Uint64:  "u8",
	Float32: "f4",
	Float64: "f8",
	String:  "str",
	StringZ: "strz",
	Bytes:   "bytes",
	Runtime: "switch",
}

func (id TypeID) String() string {
	if id >= Invalid && id < Custom {
		return builtinNames[id]
	}
	return "custom#" + strconv.Itoa(int(id-Custom))
}

func (id TypeID) IsCustom() bool {
	return id >= Custom
}

func (id TypeID) IsNumber() bool {
	return id >= Int8 && id <= Float64
}

func (id TypeID) IsSigned() bool {
	return id >= Int8 && id <= Int64
}

func (id TypeID) IsUnsigned() bool {
	return id >= Uint8 && id <= Uint64
}

func (id TypeID) IsFloat() bool {
	return id == Float32 || id == Float64
}

// Width returns the encoded size of a numeric type, or 0 for variable-size
// types.
func (id TypeID) Width() int {
	switch id {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

// BuiltinType maps a schema type name (u1, s4, f8, str, strz, bytes) to its
// id. Endianness suffixes are handled by the caller.
func BuiltinType(name string) (TypeID, bool) {
	for id := Int8; id < Runtime; id++ {
		if builtinNames[id] == name {
			return id, true
		}
	}
	return Invalid, false
}

type Endian int

const (
	// InheritEndian uses the registry's default.
	InheritEndian Endian = iota
	LittleEndian
	BigEndian
)

func (e Endian) String() string {
	switch e {
	case InheritEndian:
		return "inherit"
	case LittleEndian:
		return "le"
	case BigEndian:
		return "be"
	default:
		panic(fmt.Errorf("invalid endian %d", int(e)))
	}
}

type RepeatMode int

const (
	RepeatNone RepeatMode = iota
	RepeatExpr
	RepeatEOS
	RepeatUntil
)
