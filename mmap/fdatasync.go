package mmap

import "os"

// Fdatasync flushes the data of f to disk without its metadata. When mapping
// is a writable mapping of f, dirty pages of the mapping are flushed first.
//
// A failed sync leaves the file in an unknown state: the kernel may already
// have marked the pages clean. Write the file again instead of retrying.
func Fdatasync(f *os.File, mapping []byte) error {
	return fdatasync(f, mapping)
}
