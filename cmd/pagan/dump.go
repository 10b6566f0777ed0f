package main

import (
	"io"
	"os"

	"golang.org/x/term"

	"github.com/andreyvit/pagan"
)

const (
	dumpMargin   = 40
	minDumpBytes = 8
)

func newDumper(cfg Config, w io.Writer) pagan.Dumper {
	d := pagan.Dumper{Flags: pagan.DumpNested | pagan.DumpTypes}
	switch {
	case cfg.DumpBytes < 0:
		d.Flags |= pagan.DumpFullBytes
	case cfg.DumpBytes > 0:
		d.MaxBytes = cfg.DumpBytes
	default:
		if width, ok := terminalWidth(w); ok {
			d.MaxBytes = max((width-dumpMargin)/2, minDumpBytes)
		} else {
			d.Flags |= pagan.DumpFullBytes
		}
	}
	return d
}

func terminalWidth(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return 0, false
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return 0, false
	}
	return width, true
}
