package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoStream = errors.New("no stream registered")
	ErrNoField  = errors.New("no such field")

	ErrProcessedTooLarge = errors.New("processed data exceeds size limit")
	ErrStreamInUse       = errors.New("file is mapped by an open stream")
)

type StreamOpenError struct {
	Path string
	Err  error
}

func (e *StreamOpenError) Unwrap() error {
	return e.Err
}

func (e *StreamOpenError) Error() string {
	return fmt.Sprintf("cannot open stream %s: %v", e.Path, e.Err)
}

type UnknownTypeError struct {
	Name string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type %q", e.Name)
}

// DecodeError reports malformed input. Off is the absolute stream offset,
// or the offset inside a processor's output for processed fields. Data holds
// the bytes starting there, truncated to a reasonable length.
type DecodeError struct {
	Type  string
	Field string
	Data  []byte
	Off   int
	Err   error
	Msg   string
}

const decodeErrorDataLen = 96

func decodeErrf(typ, field string, win *window, off int, err error, format string, args ...any) error {
	var snippet []byte
	if off >= 0 && off < len(win.data) {
		snippet = win.data[off:min(len(win.data), off+decodeErrorDataLen)]
	}
	if win.base >= 0 {
		off += win.base
	}
	return &DecodeError{typ, field, snippet, off, err, fmt.Sprintf(format, args...)}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Error() string {
	const prefixLen = 32
	const suffixLen = 16

	var buf strings.Builder
	buf.WriteString(e.Type)
	if e.Field != "" {
		buf.WriteByte('.')
		buf.WriteString(e.Field)
	}
	fmt.Fprintf(&buf, " at 0x%x: %s", e.Off, e.Msg)
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	n := len(e.Data)
	if n == 0 {
		return buf.String()
	} else if n <= prefixLen+suffixLen {
		fmt.Fprintf(&buf, ": (%d) %x", n, e.Data)
	} else {
		fmt.Fprintf(&buf, ": (%d) %x...%x", n, e.Data[:prefixLen], e.Data[n-suffixLen:])
	}
	return buf.String()
}

type OutOfBoundsError struct {
	Type   string
	Offset int
	Size   int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("%s: offset %d is out of bounds for stream of %d bytes", e.Type, e.Offset, e.Size)
}

type EncodeError struct {
	Type  string
	Field string
	Err   error
	Msg   string
}

func encodeErrf(typ, field string, err error, format string, args ...any) error {
	return &EncodeError{typ, field, err, fmt.Sprintf(format, args...)}
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

func (e *EncodeError) Error() string {
	var buf strings.Builder
	buf.WriteString("encode ")
	buf.WriteString(e.Type)
	if e.Field != "" {
		buf.WriteByte('.')
		buf.WriteString(e.Field)
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}
