package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/Velocidex/ordereddict"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

type Encoding int

const (
	MsgPack Encoding = iota
	JSON

	defaultEncoding = MsgPack
)

func (enc Encoding) String() string {
	switch enc {
	case MsgPack:
		return "msgpack"
	case JSON:
		return "json"
	default:
		return "encoding" + strconv.Itoa(int(enc))
	}
}

func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "", "msgpack":
		return MsgPack, nil
	case "json":
		return JSON, nil
	default:
		return 0, fmt.Errorf("unknown encoding %q", s)
	}
}

// encodeBody encodes a plain tree of *ordereddict.Dict, []any and scalars.
// Dict keys keep their order in both encodings.
func (enc Encoding) encodeBody(buf []byte, tree any) ([]byte, error) {
	switch enc {
	case MsgPack:
		bb := bytesBuilder{buf}
		e := msgpack.GetEncoder()
		defer msgpack.PutEncoder(e)
		e.Reset(&bb)
		if err := encodeMsgpack(e, tree); err != nil {
			return nil, fmt.Errorf("failed to encode using MsgPack: %w", err)
		}
		return bb.Buf, nil
	case JSON:
		raw, err := json.Marshal(tree)
		if err != nil {
			return nil, fmt.Errorf("failed to encode to JSON: %w", err)
		}
		return append(buf, raw...), nil
	default:
		panic("unsupported encoding")
	}
}

func (enc Encoding) decodeBody(buf []byte) (any, error) {
	switch enc {
	case MsgPack:
		var r bytes.Reader
		r.Reset(buf)
		d := msgpack.GetDecoder()
		defer msgpack.PutDecoder(d)
		d.Reset(&r)
		v, err := decodeMsgpack(d)
		if err != nil {
			return nil, dataErrf(buf, int(r.Size())-r.Len(), err, "failed to decode msgpack")
		}
		return v, nil
	case JSON:
		dec := json.NewDecoder(bytes.NewReader(buf))
		dec.UseNumber()
		v, err := decodeJSON(dec)
		if err != nil {
			return nil, dataErrf(buf, int(dec.InputOffset()), err, "failed to decode JSON")
		}
		return v, nil
	default:
		panic("unsupported encoding")
	}
}

func encodeMsgpack(e *msgpack.Encoder, v any) error {
	switch v := v.(type) {
	case *ordereddict.Dict:
		keys := v.Keys()
		if err := e.EncodeMapLen(len(keys)); err != nil {
			return err
		}
		for _, k := range keys {
			if err := e.EncodeString(k); err != nil {
				return err
			}
			item, _ := v.Get(k)
			if err := encodeMsgpack(e, item); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
		return nil
	case []any:
		if err := e.EncodeArrayLen(len(v)); err != nil {
			return err
		}
		for i, item := range v {
			if err := encodeMsgpack(e, item); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return nil
	case int64:
		return e.EncodeInt64(v)
	case uint64:
		return e.EncodeUint64(v)
	case float64:
		return e.EncodeFloat64(v)
	case string:
		return e.EncodeString(v)
	case []byte:
		return e.EncodeBytes(v)
	case bool:
		return e.EncodeBool(v)
	case nil:
		return e.EncodeNil()
	default:
		return fmt.Errorf("unsupported value %T", v)
	}
}

func decodeMsgpack(d *msgpack.Decoder) (any, error) {
	c, err := d.PeekCode()
	if err != nil {
		return nil, err
	}
	switch {
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		n, err := d.DecodeMapLen()
		if err != nil {
			return nil, err
		}
		dict := ordereddict.NewDict()
		for range n {
			k, err := d.DecodeString()
			if err != nil {
				return nil, err
			}
			v, err := decodeMsgpack(d)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			dict.Set(k, v)
		}
		return dict, nil
	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		n, err := d.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		items := make([]any, n)
		for i := range items {
			items[i], err = decodeMsgpack(d)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return items, nil
	default:
		return d.DecodeInterfaceLoose()
	}
}

var errUnexpectedDelim = errors.New("unexpected delimiter")

func decodeJSON(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	switch tok := tok.(type) {
	case json.Delim:
		switch tok {
		case '{':
			dict := ordereddict.NewDict()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				k := kt.(string)
				v, err := decodeJSON(dec)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", k, err)
				}
				dict.Set(k, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return dict, nil
		case '[':
			items := []any{}
			for dec.More() {
				v, err := decodeJSON(dec)
				if err != nil {
					return nil, fmt.Errorf("[%d]: %w", len(items), err)
				}
				items = append(items, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return items, nil
		default:
			return nil, fmt.Errorf("%w %v", errUnexpectedDelim, tok)
		}
	case json.Number:
		if n, err := tok.Int64(); err == nil {
			return n, nil
		}
		if n, err := strconv.ParseUint(tok.String(), 10, 64); err == nil {
			return n, nil
		}
		return tok.Float64()
	default:
		return tok, nil
	}
}
