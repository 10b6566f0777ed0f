package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

func fdatasync(f *os.File, mapping []byte) error {
	if len(mapping) > 0 {
		if err := unix.Msync(mapping, unix.MS_SYNC); err != nil {
			return err
		}
	}
	return unix.Fdatasync(int(f.Fd()))
}
