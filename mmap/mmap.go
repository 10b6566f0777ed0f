// Package mmap maps binary input streams into memory and writes encoded
// output through a writable mapping.
package mmap

import (
	"errors"
	"fmt"
	"os"
)

type Options uint

const (
	// Writable maps the file for writing (otherwise, it's mapped read-only).
	Writable Options = 1 << 0

	// SequentialAccess is a hint requesting aggressive read-ahead.
	// Incompatible with RandomAccess. Maps to MADV_SEQUENTIAL on Unix.
	SequentialAccess Options = 1 << 1

	// RandomAccess is a hint that read ahead is less useful than normally.
	// Incompatible with SequentialAccess. Maps to MADV_RANDOM on Unix.
	RandomAccess Options = 1 << 2

	// Prefault is a hint requesting the entire file to be loaded in memory
	// for fastest access. Maps to MAP_POPULATE on Linux.
	Prefault Options = 1 << 3
)

var ErrTooLarge = errors.New("file too large to map")

func (o Options) Has(v Options) bool {
	return o&v != 0
}

// Mmap maps the first size bytes of f.
func Mmap(f *os.File, offset, size int, opt Options) ([]byte, error) {
	if offset != 0 {
		panic("non-zero offset not yet supported")
	}
	return mmap(f, size, opt)
}

// Munmap unmaps the given slice from memory. The slice must have been returned
// by Mmap.
func Munmap(b []byte) error {
	return munmap(b)
}

// File is a file mapped in its entirety. Empty files have no mapping and
// report a nil Bytes slice.
type File struct {
	f    *os.File
	data []byte
	opt  Options
}

// Open maps an existing file. Without Writable the mapping is read-only, and
// writing into Bytes() faults.
func Open(path string, opt Options) (*File, error) {
	flag := os.O_RDONLY
	if opt.Has(Writable) {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s: is a directory", path)
	}
	size := fi.Size()
	if size > MaxSize {
		f.Close()
		return nil, fmt.Errorf("%s: %w (%d bytes)", path, ErrTooLarge, size)
	}
	mf := &File{f: f, opt: opt}
	if size > 0 {
		mf.data, err = Mmap(f, 0, int(size), opt)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("mmap %s: %w", path, err)
		}
	}
	return mf, nil
}

// Create creates or truncates the file at path, sizes it to size bytes and
// maps it writable.
func Create(path string, size int, perm os.FileMode) (*File, error) {
	if int64(size) > MaxSize {
		return nil, fmt.Errorf("%s: %w (%d bytes)", path, ErrTooLarge, size)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return nil, err
	}
	mf := &File{f: f, opt: Writable}
	if size > 0 {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, err
		}
		mf.data, err = Mmap(f, 0, size, Writable)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("mmap %s: %w", path, err)
		}
	}
	return mf, nil
}

func (mf *File) Name() string  { return mf.f.Name() }
func (mf *File) Bytes() []byte { return mf.data }
func (mf *File) Len() int      { return len(mf.data) }

// Sync flushes a writable mapping to disk. Errors are not recoverable, see
// Fdatasync.
func (mf *File) Sync() error {
	if !mf.opt.Has(Writable) {
		return nil
	}
	return Fdatasync(mf.f, mf.data)
}

// Close unmaps and closes the file. Slices obtained from Bytes must not be
// used afterwards.
func (mf *File) Close() error {
	var err error
	if mf.data != nil {
		err = Munmap(mf.data)
		mf.data = nil
	}
	if cerr := mf.f.Close(); err == nil {
		err = cerr
	}
	return err
}
