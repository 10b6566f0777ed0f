// Package store keeps snapshots of decoded view trees in Bolt (or in memory)
// and loads them back as views over ordered plain values.
//
// With the JSON encoding, byte buffers come back as base64 strings, and
// numbers come back as int64 when they fit (uint64 or float64 otherwise).
// MsgPack keeps every type.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.etcd.io/bbolt"

	"github.com/andreyvit/pagan"
	"github.com/andreyvit/pagan/engine"
)

const docsBucket = "docs"

type Options struct {
	Encoding Encoding
	Logger   *slog.Logger
	Verbose  bool

	// IsTesting disables fsync for Bolt.
	IsTesting bool
	Timeout   time.Duration
}

type Store struct {
	st      storage
	enc     Encoding
	logger  *slog.Logger
	verbose bool
}

// Meta describes a stored document.
type Meta struct {
	Encoding   Encoding
	FormatVer  uint64
	HasSource  bool
	SourceSize uint64
	Checksum   uint64
	BodySize   int
}

// Open opens the Bolt database at path, or an in-memory store when path is
// empty.
func Open(path string, opt Options) (*Store, error) {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	var st storage
	if path == "" {
		st = newMemStorage()
	} else {
		bopt := *bbolt.DefaultOptions
		bopt.Timeout = 10 * time.Second
		if opt.Timeout != 0 {
			bopt.Timeout = opt.Timeout
		}
		if opt.IsTesting {
			bopt.NoSync = true
			bopt.NoFreelistSync = true
		}
		bdb, err := bbolt.Open(path, 0666, &bopt)
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		st = newBoltStorage(bdb)
	}
	return &Store{
		st:      st,
		enc:     opt.Encoding,
		logger:  opt.Logger,
		verbose: opt.Verbose,
	}, nil
}

func (s *Store) Close() error {
	return s.st.Close()
}

func (s *Store) read(f func(b storageBucket) error) error {
	tx, err := s.st.BeginTx(false)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	b := tx.Bucket(docsBucket)
	if b == nil {
		b = emptyBucket{}
	}
	return f(b)
}

func (s *Store) write(f func(b storageBucket) error) error {
	tx, err := s.st.BeginTx(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	b, err := tx.CreateBucket(docsBucket)
	if err != nil {
		return err
	}
	if err := f(b); err != nil {
		return err
	}
	return tx.Commit()
}

// Put decodes the whole tree behind v and stores it under name, replacing any
// previous document. When v wraps a record, the header records the size and
// checksum of the record's bytes.
func (s *Store) Put(name string, v *pagan.View) (Meta, error) {
	tree, err := pagan.Plain(v)
	if err != nil {
		return Meta{}, fmt.Errorf("store: %s: %w", name, err)
	}

	doc := document{FormatVer: docFormatVerLatest}
	if s.enc == JSON {
		doc.Flags |= dfJSON
	}
	if rec, ok := pagan.Deproxy(v).(*engine.Record); ok {
		src := rec.Bytes()
		doc.Flags |= dfHasSource
		doc.SourceSize = uint64(len(src))
		doc.Checksum = xxhash.Sum64(src)
	}
	doc.Data, err = s.enc.encodeBody(nil, tree)
	if err != nil {
		return Meta{}, fmt.Errorf("store: %s: %w", name, err)
	}
	raw := doc.encode(nil)

	err = s.write(func(b storageBucket) error {
		return b.Put([]byte(name), raw)
	})
	if err != nil {
		return Meta{}, fmt.Errorf("store: %s: %w", name, err)
	}
	if s.verbose {
		s.logger.LogAttrs(context.Background(), slog.LevelDebug, "pagan: snapshot stored",
			slog.String("name", name), slog.String("encoding", s.enc.String()), slog.Int("size", len(raw)),
			slog.Uint64("checksum", doc.Checksum))
	}
	return doc.meta(), nil
}

// Get loads a stored document as a view.
func (s *Store) Get(name string) (*pagan.View, error) {
	v, _, err := s.load(name)
	return v, err
}

func (s *Store) Meta(name string) (Meta, error) {
	var meta Meta
	err := s.read(func(b storageBucket) error {
		raw := b.Get([]byte(name))
		if raw == nil {
			return ErrNotFound
		}
		var doc document
		if err := doc.decode(raw); err != nil {
			return err
		}
		meta = doc.meta()
		return nil
	})
	if err != nil {
		return Meta{}, fmt.Errorf("store: %s: %w", name, err)
	}
	return meta, nil
}

func (s *Store) load(name string) (*pagan.View, Meta, error) {
	var tree any
	var meta Meta
	err := s.read(func(b storageBucket) error {
		raw := b.Get([]byte(name))
		if raw == nil {
			return ErrNotFound
		}
		var doc document
		if err := doc.decode(raw); err != nil {
			return err
		}
		meta = doc.meta()
		var err error
		tree, err = meta.Encoding.decodeBody(doc.Data)
		return err
	})
	if err != nil {
		return nil, Meta{}, fmt.Errorf("store: %s: %w", name, err)
	}
	switch tree.(type) {
	case nil, int64, uint64, float64, string, bool, []byte:
		return nil, Meta{}, fmt.Errorf("store: %s: document body is %T, not a composite", name, tree)
	}
	return pagan.Wrap(tree), meta, nil
}

// Verify reports whether source still has the bytes a snapshot was taken
// from.
func (s *Store) Verify(name string, source *pagan.View) (bool, error) {
	meta, err := s.Meta(name)
	if err != nil {
		return false, err
	}
	rec, ok := pagan.Deproxy(source).(*engine.Record)
	if !ok || !meta.HasSource {
		return false, nil
	}
	src := rec.Bytes()
	return uint64(len(src)) == meta.SourceSize && xxhash.Sum64(src) == meta.Checksum, nil
}

// Names lists stored documents in key order.
func (s *Store) Names() ([]string, error) {
	var names []string
	err := s.read(func(b storageBucket) error {
		names = make([]string, 0, b.KeyCount())
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			names = append(names, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return names, nil
}

func (s *Store) Delete(name string) error {
	err := s.write(func(b storageBucket) error {
		if b.Get([]byte(name)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(name))
	})
	if err != nil {
		return fmt.Errorf("store: %s: %w", name, err)
	}
	return nil
}

type emptyBucket struct{}

func (emptyBucket) Get(key []byte) []byte       { return nil }
func (emptyBucket) Put(key, value []byte) error { return errReadOnlyTx }
func (emptyBucket) Delete(key []byte) error     { return errReadOnlyTx }
func (emptyBucket) Cursor() storageCursor       { return emptyCursor{} }
func (emptyBucket) KeyCount() int               { return 0 }

type emptyCursor struct{}

func (emptyCursor) First() ([]byte, []byte) { return nil, nil }
func (emptyCursor) Next() ([]byte, []byte)  { return nil, nil }
