package engine

import (
	"errors"
	"os"
	"strconv"

	"github.com/andreyvit/pagan/mmap"
)

// Stream is an immutable byte source that records are decoded from.
type Stream struct {
	id   int
	name string
	data []byte
	file *mmap.File
	info os.FileInfo
}

func (s *Stream) ID() int       { return s.id }
func (s *Stream) Name() string  { return s.name }
func (s *Stream) Bytes() []byte { return s.data }
func (s *Stream) Len() int      { return len(s.data) }
func (s *Stream) Mapped() bool  { return s.file != nil }

func (s *Stream) close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.data = nil, nil
	return err
}

// StreamRegistry holds the streams of a session in registration order.
type StreamRegistry struct {
	streams []*Stream
}

// AddFile maps the file at path read-only. Empty files become empty streams.
func (sr *StreamRegistry) AddFile(path string) (*Stream, error) {
	mf, err := mmap.Open(path, mmap.RandomAccess)
	if err != nil {
		return nil, &StreamOpenError{Path: path, Err: err}
	}
	info, err := os.Stat(path)
	if err != nil {
		mf.Close()
		return nil, &StreamOpenError{Path: path, Err: err}
	}
	s := &Stream{
		id:   len(sr.streams),
		name: path,
		data: mf.Bytes(),
		file: mf,
		info: info,
	}
	sr.streams = append(sr.streams, s)
	return s, nil
}

func (sr *StreamRegistry) AddBytes(name string, data []byte) *Stream {
	s := &Stream{
		id:   len(sr.streams),
		name: name,
		data: data,
	}
	sr.streams = append(sr.streams, s)
	return s
}

func (sr *StreamRegistry) Get(id int) (*Stream, error) {
	if id < 0 || id >= len(sr.streams) {
		return nil, &StreamOpenError{Path: "#" + strconv.Itoa(id), Err: ErrNoStream}
	}
	return sr.streams[id], nil
}

// Last returns the most recently registered stream.
func (sr *StreamRegistry) Last() (*Stream, error) {
	if len(sr.streams) == 0 {
		return nil, &StreamOpenError{Path: "<last>", Err: ErrNoStream}
	}
	return sr.streams[len(sr.streams)-1], nil
}

// Mapping returns the open file stream backed by the same file as path, if
// any.
func (sr *StreamRegistry) Mapping(path string) *Stream {
	fi, err := os.Stat(path)
	if err != nil {
		return nil
	}
	for _, s := range sr.streams {
		if s.file != nil && s.info != nil && os.SameFile(s.info, fi) {
			return s
		}
	}
	return nil
}

func (sr *StreamRegistry) Len() int {
	return len(sr.streams)
}

func (sr *StreamRegistry) Close() error {
	var errs []error
	for _, s := range sr.streams {
		if err := s.close(); err != nil {
			errs = append(errs, &StreamOpenError{Path: s.name, Err: err})
		}
	}
	sr.streams = nil
	return errors.Join(errs...)
}
