// Package engine decodes binary records described by a registry of type
// specs, and encodes them back.
//
// Decoding is split in two. Decode indexes a record: it walks the
// properties in order, evaluates conditions, sizes, repeats and switches,
// and remembers the span of every present field along with handles for
// nested records. Field values are decoded from the underlying bytes each
// time they are read and are never cached. Streams are immutable mappings,
// so the index never goes stale.
package engine

import (
	"context"
	"log/slog"
)

const (
	defaultMaxDepth         = 256
	defaultMaxProcessedSize = 64 << 20
)

type Options struct {
	Logger *slog.Logger

	// Verbose logs every indexed record and field at debug level.
	Verbose bool

	// MaxDepth limits record nesting. Zero means 256.
	MaxDepth int

	// MaxProcessedSize caps the output of a single field processor. Zero
	// means 64 MiB.
	MaxProcessedSize int
}

type Engine struct {
	reg      *Registry
	streams  StreamRegistry
	logger   *slog.Logger
	verbose  bool
	maxDepth int
	maxProc  int
	counters counters
}

func New(reg *Registry, opt Options) *Engine {
	if reg == nil {
		panic("nil registry")
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.MaxDepth == 0 {
		opt.MaxDepth = defaultMaxDepth
	}
	if opt.MaxProcessedSize == 0 {
		opt.MaxProcessedSize = defaultMaxProcessedSize
	}
	registerMetrics()
	return &Engine{
		reg:      reg,
		logger:   opt.Logger,
		verbose:  opt.Verbose,
		maxDepth: opt.MaxDepth,
		maxProc:  opt.MaxProcessedSize,
	}
}

func (e *Engine) Registry() *Registry {
	return e.reg
}

func (e *Engine) Streams() *StreamRegistry {
	return &e.streams
}

// OpenStream maps the file at path and registers it as the newest stream.
func (e *Engine) OpenStream(path string) (*Stream, error) {
	s, err := e.streams.AddFile(path)
	if err != nil {
		return nil, err
	}
	e.logger.LogAttrs(context.Background(), slog.LevelDebug, "pagan: stream mapped",
		slog.Int("stream", s.id), slog.String("path", path), slog.Int("size", s.Len()))
	return s, nil
}

func (e *Engine) AddBytes(name string, data []byte) *Stream {
	s := e.streams.AddBytes(name, data)
	e.logger.LogAttrs(context.Background(), slog.LevelDebug, "pagan: stream added",
		slog.Int("stream", s.id), slog.String("name", name), slog.Int("size", s.Len()))
	return s
}

func (e *Engine) ResolveType(name string) (*TypeSpec, error) {
	return e.reg.Lookup(name)
}

// Decode indexes a record of type typ starting at offset within stream.
func (e *Engine) Decode(typ *TypeSpec, offset int, stream *Stream) (*Record, error) {
	if typ == nil || !typ.defined {
		name := "<nil>"
		if typ != nil {
			name = typ.name
		}
		return nil, &UnknownTypeError{Name: name}
	}
	n := stream.Len()
	if offset < 0 || offset > n || (offset == n && len(typ.props) > 0) {
		return nil, &OutOfBoundsError{Type: typ.name, Offset: offset, Size: n}
	}
	ix := &indexer{eng: e, stream: stream}
	rec, err := ix.record(typ, &window{stream.Bytes(), 0}, offset, nil)
	if err != nil {
		return nil, err
	}
	if e.verbose {
		e.logger.LogAttrs(context.Background(), slog.LevelDebug, "pagan: decoded",
			slog.String("type", typ.name), slog.Int("stream", stream.id), slog.Int("offset", offset), slog.Int("size", rec.Size()))
	}
	return rec, nil
}

func (e *Engine) Close() error {
	return e.streams.Close()
}
