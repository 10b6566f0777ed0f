package pagan

import (
	"context"
	"log/slog"

	"github.com/andreyvit/pagan/engine"
	"github.com/andreyvit/pagan/ksy"
)

type Options struct {
	Logger *slog.Logger

	// Verbose logs every indexed record at debug level.
	Verbose bool

	// MaxDepth limits record nesting, see engine.Options.
	MaxDepth int

	// MaxProcessedSize caps decompressed field data, see engine.Options.
	MaxProcessedSize int
}

// Parser registers input streams and hands out views over records decoded
// from them. A Parser is not safe for concurrent use.
type Parser struct {
	eng    *engine.Engine
	schema *ksy.Schema
	logger *slog.Logger
}

// Open loads a .ksy schema from specPath and returns a parser over its types.
func Open(specPath string, opt Options) (*Parser, error) {
	schema, err := ksy.LoadFile(specPath)
	if err != nil {
		return nil, err
	}
	p := New(schema.Registry, opt)
	p.schema = schema
	return p, nil
}

func New(reg *engine.Registry, opt Options) *Parser {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	return &Parser{
		eng: engine.New(reg, engine.Options{
			Logger:           opt.Logger,
			Verbose:          opt.Verbose,
			MaxDepth:         opt.MaxDepth,
			MaxProcessedSize: opt.MaxProcessedSize,
		}),
		logger: opt.Logger,
	}
}

func (p *Parser) Engine() *engine.Engine {
	return p.eng
}

// Root returns the root type of the schema the parser was opened with, or nil
// for parsers built with New.
func (p *Parser) Root() *engine.TypeSpec {
	if p.schema == nil {
		return nil
	}
	return p.schema.Root
}

// AddFileStream maps the file at path and makes it the current stream.
func (p *Parser) AddFileStream(path string) error {
	_, err := p.eng.OpenStream(path)
	return err
}

// AddBytesStream registers in-memory data as the current stream.
func (p *Parser) AddBytesStream(name string, data []byte) {
	p.eng.AddBytes(name, data)
	if len(data) > 0 {
		p.logger.LogAttrs(context.Background(), slog.LevelDebug, "pagan: bytes stream",
			slog.String("name", name), hexAttr("head", data[:min(len(data), 16)]))
	}
}

func (p *Parser) GetType(name string) (*engine.TypeSpec, error) {
	return p.eng.ResolveType(name)
}

// GetObject decodes a record of type typ at offset in the most recently added
// stream and returns a view over it.
func (p *Parser) GetObject(typ *engine.TypeSpec, offset int) (*View, error) {
	s, err := p.eng.Streams().Last()
	if err != nil {
		return nil, err
	}
	return p.decode(typ, offset, s)
}

// GetObjectIn is like GetObject, but decodes from the stream with the given id.
func (p *Parser) GetObjectIn(streamID int, typ *engine.TypeSpec, offset int) (*View, error) {
	s, err := p.eng.Streams().Get(streamID)
	if err != nil {
		return nil, err
	}
	return p.decode(typ, offset, s)
}

func (p *Parser) decode(typ *engine.TypeSpec, offset int, s *engine.Stream) (*View, error) {
	rec, err := p.eng.Decode(typ, offset, s)
	if err != nil {
		return nil, err
	}
	return Wrap(rec), nil
}

// Write serializes the record behind view to path. A path that one of the
// parser's file streams maps is refused with ErrStreamInUse.
func (p *Parser) Write(path string, view *View) error {
	if view == nil {
		return &EncodeError{Type: "<nil>", Msg: "nil view"}
	}
	rec, ok := Deproxy(view).(*engine.Record)
	if !ok {
		return &EncodeError{Type: view.String(), Msg: "not a record"}
	}
	return p.eng.Encode(rec, path)
}

func (p *Parser) Close() error {
	return p.eng.Close()
}
