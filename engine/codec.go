package engine

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

type byteOrderAppender interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

func byteOrder(e Endian) byteOrderAppender {
	if e == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// decodeNumber returns int64 for signed types, uint64 for unsigned ones and
// float64 for floats. raw must hold at least typ.Width() bytes.
func decodeNumber(raw []byte, typ TypeID, e Endian) any {
	bo := byteOrder(e)
	switch typ {
	case Int8:
		return int64(int8(raw[0]))
	case Int16:
		return int64(int16(bo.Uint16(raw)))
	case Int32:
		return int64(int32(bo.Uint32(raw)))
	case Int64:
		return int64(bo.Uint64(raw))
	case Uint8:
		return uint64(raw[0])
	case Uint16:
		return uint64(bo.Uint16(raw))
	case Uint32:
		return uint64(bo.Uint32(raw))
	case Uint64:
		return bo.Uint64(raw)
	case Float32:
		return float64(math.Float32frombits(bo.Uint32(raw)))
	case Float64:
		return math.Float64frombits(bo.Uint64(raw))
	default:
		panic(fmt.Errorf("not a number type: %v", typ))
	}
}

func appendNumber(buf []byte, v any, typ TypeID, e Endian) ([]byte, error) {
	bo := byteOrder(e)
	if typ.IsFloat() {
		f, ok := v.(float64)
		if !ok {
			n, err := ToInt(v)
			if err != nil {
				return buf, err
			}
			f = float64(n)
		}
		if typ == Float32 {
			return bo.AppendUint32(buf, math.Float32bits(float32(f))), nil
		}
		return bo.AppendUint64(buf, math.Float64bits(f)), nil
	}

	var u uint64
	switch v := v.(type) {
	case uint64:
		u = v
	default:
		n, err := ToInt(v)
		if err != nil {
			return buf, err
		}
		u = uint64(n)
	}
	switch typ.Width() {
	case 1:
		return append(buf, byte(u)), nil
	case 2:
		return bo.AppendUint16(buf, uint16(u)), nil
	case 4:
		return bo.AppendUint32(buf, uint32(u)), nil
	case 8:
		return bo.AppendUint64(buf, u), nil
	default:
		panic(fmt.Errorf("not a number type: %v", typ))
	}
}

func normalizeEncodingName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", "")
	name = strings.ReplaceAll(name, "_", "")
	return name
}

// LookupEncoding resolves a string encoding name. A nil result with a nil
// error means the bytes are used as is (ASCII and UTF-8).
func LookupEncoding(name string) (encoding.Encoding, error) {
	switch normalizeEncodingName(name) {
	case "", "utf8", "ascii":
		return nil, nil
	case "utf16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case "utf16be":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	case "iso88591", "latin1":
		return charmap.ISO8859_1, nil
	case "windows1252", "cp1252":
		return charmap.Windows1252, nil
	case "cp437", "ibm437":
		return charmap.CodePage437, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return enc, nil
}

func decodeString(raw []byte, encName string) (string, error) {
	enc, err := LookupEncoding(encName)
	if err != nil {
		return "", err
	}
	if enc == nil {
		return string(raw), nil
	}
	b, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func encodeString(s string, encName string) ([]byte, error) {
	enc, err := LookupEncoding(encName)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return []byte(s), nil
	}
	return enc.NewEncoder().Bytes([]byte(s))
}
