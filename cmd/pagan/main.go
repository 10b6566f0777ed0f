// Command pagan inspects binary files described by a .ksy schema.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/andreyvit/pagan"
	"github.com/andreyvit/pagan/engine"
	"github.com/andreyvit/pagan/store"
)

const usage = `usage: pagan [flags] <command> <file> [args]

commands:
  keys                   list the fields of the record
  get <path>             print one value, e.g. get header.entries[0].name
  dump                   print the whole record tree
  copy <out>             write the record back to <out>
  export <db> <name>     store a snapshot of the record in a Bolt database
  show <db> <name>       print a stored snapshot (no <file> needed)

flags:
`

var errUsage = errors.New("invalid arguments")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "pagan: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("pagan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "TOML config `file`")
	specPath := fs.String("spec", "", ".ksy schema `file`")
	typeName := fs.String("type", "", "record type (default: the schema's root type)")
	offset := fs.Int("offset", 0, "byte offset of the record")
	verbose := fs.Bool("v", false, "log every indexed record")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := defaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = loadConfig(*configPath)
		if err != nil {
			return err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "spec":
			cfg.Spec = *specPath
		case "type":
			cfg.Type = *typeName
		case "offset":
			cfg.Offset = *offset
		case "v":
			cfg.Verbose = *verbose
		}
	})

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	rest := fs.Args()
	if len(rest) < 2 {
		fs.Usage()
		return errUsage
	}
	cmd, file, cmdArgs := rest[0], rest[1], rest[2:]

	if cmd == "show" {
		if len(cmdArgs) != 1 {
			fs.Usage()
			return errUsage
		}
		return show(cfg, logger, stdout, file, cmdArgs[0])
	}

	wantArgs := map[string]int{"keys": 0, "get": 1, "dump": 0, "copy": 1, "export": 2}
	n, ok := wantArgs[cmd]
	if !ok {
		return fmt.Errorf("unknown command %q", cmd)
	}
	if len(cmdArgs) != n {
		fs.Usage()
		return errUsage
	}

	if cfg.Spec == "" {
		return fmt.Errorf("no schema, use -spec or set spec in the config")
	}
	p, err := pagan.Open(cfg.Spec, pagan.Options{Logger: logger, Verbose: cfg.Verbose})
	if err != nil {
		return err
	}
	defer p.Close()

	typ := p.Root()
	if cfg.Type != "" {
		typ, err = p.GetType(cfg.Type)
		if err != nil {
			return err
		}
	}
	if err := p.AddFileStream(file); err != nil {
		return err
	}
	v, err := p.GetObject(typ, cfg.Offset)
	if err != nil {
		return err
	}

	switch cmd {
	case "keys":
		for k := range v.KeySeq() {
			fmt.Fprintln(stdout, k)
		}
	case "get":
		return get(cfg, stdout, v, cmdArgs[0])
	case "dump":
		return newDumper(cfg, stdout).Write(stdout, v)
	case "copy":
		if err := p.Write(cmdArgs[0], v); err != nil {
			return err
		}
		logStats(logger, p.Stats())
	case "export":
		return export(cfg, logger, stdout, v, cmdArgs[0], cmdArgs[1])
	}
	return nil
}

func get(cfg Config, w io.Writer, v *pagan.View, pathStr string) error {
	path, err := pagan.ParsePath(pathStr)
	if err != nil {
		return err
	}
	val, err := v.Lookup(path...)
	if err != nil {
		return err
	}
	switch val.Kind() {
	case pagan.KindUndefined:
		return fmt.Errorf("%s: %w", pathStr, engine.ErrNoField)
	case pagan.KindObject:
		return newDumper(cfg, w).Write(w, val.View())
	default:
		_, err := fmt.Fprintln(w, val)
		return err
	}
}

func export(cfg Config, logger *slog.Logger, w io.Writer, v *pagan.View, dbPath, name string) error {
	s, err := store.Open(dbPath, store.Options{Encoding: cfg.Encoding, Logger: logger, Verbose: cfg.Verbose})
	if err != nil {
		return err
	}
	defer s.Close()
	meta, err := s.Put(name, v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s: %d bytes of %s, source %d bytes, xxhash %016x\n", name, meta.BodySize, meta.Encoding, meta.SourceSize, meta.Checksum)
	return err
}

func show(cfg Config, logger *slog.Logger, w io.Writer, dbPath, name string) error {
	s, err := store.Open(dbPath, store.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer s.Close()
	v, err := s.Get(name)
	if err != nil {
		return err
	}
	return newDumper(cfg, w).Write(w, v)
}

func logStats(logger *slog.Logger, s pagan.Stats) {
	logger.Info("pagan: done",
		slog.Int("streams", s.Streams),
		slog.Int64("records", s.RecordsIndexed),
		slog.Int64("field_reads", s.FieldReads),
		slog.Int64("bytes_written", s.BytesWritten))
}
