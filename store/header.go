package store

import (
	"encoding/binary"
	"fmt"
)

const (
	docFormatVer1      = 1
	docFormatVerLatest = docFormatVer1
)

type docFlags uint64

const (
	dfJSON = docFlags(1 << iota)
	dfHasSource

	dfSupportedMask = dfJSON | dfHasSource

	checksumSize     = 8
	minDocSize       = 4 + checksumSize
	maxDocHeaderSize = binary.MaxVarintLen64*4 + checksumSize
)

func (df docFlags) encoding() Encoding {
	if df&dfJSON != 0 {
		return JSON
	}
	return MsgPack
}

// document is a stored snapshot: header, then the encoded body.
//
// Header:
//  1. Flags (uvarint).
//  2. Format version (uvarint).
//  3. Source size (uvarint), the byte size of the record the snapshot was taken from.
//  4. Source checksum (8 bytes, big endian xxhash64 of those bytes).
//  5. Body size (uvarint).
type document struct {
	Flags      docFlags
	FormatVer  uint64
	SourceSize uint64
	Checksum   uint64
	Data       []byte
}

func (doc *document) meta() Meta {
	return Meta{
		Encoding:   doc.Flags.encoding(),
		FormatVer:  doc.FormatVer,
		HasSource:  doc.Flags&dfHasSource != 0,
		SourceSize: doc.SourceSize,
		Checksum:   doc.Checksum,
		BodySize:   len(doc.Data),
	}
}

func (doc *document) encode(buf []byte) []byte {
	if (doc.Flags &^ dfSupportedMask) != 0 {
		panic(fmt.Errorf("invalid flags %x", doc.Flags))
	}
	buf = ensureCapacity(buf, len(buf)+maxDocHeaderSize+len(doc.Data))
	buf = binary.AppendUvarint(buf, uint64(doc.Flags))
	buf = binary.AppendUvarint(buf, doc.FormatVer)
	buf = binary.AppendUvarint(buf, doc.SourceSize)
	buf = binary.BigEndian.AppendUint64(buf, doc.Checksum)
	buf = binary.AppendUvarint(buf, uint64(len(doc.Data)))
	return append(buf, doc.Data...)
}

func (doc *document) decode(data []byte) error {
	orig := data
	if len(data) < minDocSize {
		return dataErrf(orig, 0, nil, "invalid document: at least %d bytes required", minDocSize)
	}

	v, n := binary.Uvarint(data)
	if n <= 0 {
		return dataErrf(orig, len(orig)-len(data), nil, "invalid document: bad flags")
	}
	if (v & ^uint64(dfSupportedMask)) != 0 {
		return dataErrf(orig, len(orig)-len(data), nil, "invalid document: unsupported flags %x", v)
	}
	doc.Flags, data = docFlags(v), data[n:]

	v, n = binary.Uvarint(data)
	if n <= 0 || v == 0 || v > docFormatVerLatest {
		return dataErrf(orig, len(orig)-len(data), nil, "invalid document: bad format version")
	}
	doc.FormatVer, data = v, data[n:]

	v, n = binary.Uvarint(data)
	if n <= 0 {
		return dataErrf(orig, len(orig)-len(data), nil, "invalid document: bad source size")
	}
	doc.SourceSize, data = v, data[n:]

	if len(data) < checksumSize {
		return dataErrf(orig, len(orig)-len(data), nil, "invalid document: truncated checksum")
	}
	doc.Checksum, data = binary.BigEndian.Uint64(data), data[checksumSize:]

	bodySize, n := binary.Uvarint(data)
	if n <= 0 {
		return dataErrf(orig, len(orig)-len(data), nil, "invalid document: bad body size")
	}
	data = data[n:]

	if uint64(len(data)) != bodySize {
		return dataErrf(orig, len(orig)-len(data), nil, "invalid document: got %d bytes for body, expected %d bytes", len(data), bodySize)
	}
	doc.Data = data
	return nil
}
