package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Processor turns the raw bytes of a sized field into the bytes the field's
// type is decoded from. Decode fails with ErrProcessedTooLarge rather than
// produce more than limit bytes.
type Processor interface {
	Name() string
	Decode(data []byte, limit int) ([]byte, error)
}

func readLimited(r io.Reader, limit int) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		return nil, ErrProcessedTooLarge
	}
	return out, nil
}

type zlibProcessor struct{}

func Zlib() Processor { return zlibProcessor{} }

func (zlibProcessor) Name() string { return "zlib" }

func (zlibProcessor) Decode(data []byte, limit int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return readLimited(r, limit)
}

type zstdProcessor struct{}

func Zstd() Processor { return zstdProcessor{} }

func (zstdProcessor) Name() string { return "zstd" }

func (zstdProcessor) Decode(data []byte, limit int) ([]byte, error) {
	var out []byte
	dec, err := zstd.NewReader(bytes.NewReader(data),
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(uint64(limit)+1))
	if err == nil {
		defer dec.Close()
		out, err = readLimited(dec, limit)
	}
	if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
		return nil, ErrProcessedTooLarge
	}
	return out, err
}

type xzProcessor struct{}

func XZ() Processor { return xzProcessor{} }

func (xzProcessor) Name() string { return "xz" }

func (xzProcessor) Decode(data []byte, limit int) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return readLimited(r, limit)
}

type xorProcessor struct {
	key []byte
}

// XOR cycles key over the data. An empty key panics.
func XOR(key ...byte) Processor {
	if len(key) == 0 {
		panic("xor key missing")
	}
	return xorProcessor{key}
}

func (p xorProcessor) Name() string {
	parts := make([]string, len(p.key))
	for i, b := range p.key {
		parts[i] = "0x" + strconv.FormatUint(uint64(b), 16)
	}
	return "xor(" + strings.Join(parts, ", ") + ")"
}

func (p xorProcessor) Decode(data []byte, limit int) ([]byte, error) {
	if len(data) > limit {
		return nil, ErrProcessedTooLarge
	}
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ p.key[i%len(p.key)]
	}
	return out, nil
}

// ParseProcessor parses a process spec such as "zlib" or "xor(0x5a)".
func ParseProcessor(spec string) (Processor, error) {
	spec = strings.TrimSpace(spec)
	name, args, hasArgs := strings.Cut(spec, "(")
	name = strings.TrimSpace(name)
	if hasArgs {
		var ok bool
		args, ok = strings.CutSuffix(strings.TrimSpace(args), ")")
		if !ok {
			return nil, fmt.Errorf("invalid process spec %q: missing closing parenthesis", spec)
		}
	}
	switch name {
	case "zlib", "zstd", "xz":
		if hasArgs && strings.TrimSpace(args) != "" {
			return nil, fmt.Errorf("process %s takes no arguments", name)
		}
		switch name {
		case "zlib":
			return Zlib(), nil
		case "zstd":
			return Zstd(), nil
		default:
			return XZ(), nil
		}
	case "xor":
		if !hasArgs {
			return nil, fmt.Errorf("process xor requires a key")
		}
		var key []byte
		for _, s := range strings.Split(args, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			v, err := strconv.ParseUint(s, 0, 8)
			if err != nil {
				return nil, fmt.Errorf("invalid xor key byte %q: %w", s, err)
			}
			key = append(key, byte(v))
		}
		if len(key) == 0 {
			return nil, fmt.Errorf("process xor requires a key")
		}
		return XOR(key...), nil
	default:
		return nil, fmt.Errorf("unsupported process %q", name)
	}
}
