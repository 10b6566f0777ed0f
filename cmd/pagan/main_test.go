package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const archiveSpec = `
meta:
  id: archive
  endian: le
seq:
  - id: magic
    contents: ARC1
  - id: count
    type: u1
  - id: entries
    type: entry
    repeat: expr
    repeat-expr: count
types:
  entry:
    seq:
      - id: len
        type: u1
      - id: name
        type: str
        size: len
        encoding: ASCII
      - id: data
        size: 2
`

var archiveData = []byte("ARC1\x02\x03abc\x01\x02\x02xy\x03\x04")

func setup(t *testing.T) (spec, data string) {
	t.Helper()
	spec = writeFile(t, "archive.ksy", archiveSpec)
	data = filepath.Join(t.TempDir(), "archive.bin")
	if err := os.WriteFile(data, archiveData, 0o644); err != nil {
		t.Fatalf("write data: %v", err)
	}
	return spec, data
}

func runOK(t *testing.T, args ...string) string {
	t.Helper()
	var stdout, stderr bytes.Buffer
	if err := run(args, &stdout, &stderr); err != nil {
		t.Fatalf("run %v: %v\nstderr: %s", args, err, stderr.String())
	}
	return stdout.String()
}

func TestRunKeysAndGet(t *testing.T) {
	spec, data := setup(t)

	if out := runOK(t, "-spec", spec, "keys", data); out != "magic\ncount\nentries\n" {
		t.Fatalf("unexpected keys output: %q", out)
	}
	if out := runOK(t, "-spec", spec, "get", data, "entries[1].name"); out != "xy\n" {
		t.Fatalf("unexpected get output: %q", out)
	}
	if out := runOK(t, "-spec", spec, "get", data, "entries.length"); out != "2\n" {
		t.Fatalf("unexpected get output: %q", out)
	}
	if out := runOK(t, "-spec", spec, "-type", "entry", "-offset", "5", "get", data, "name"); out != "abc\n" {
		t.Fatalf("unexpected get output: %q", out)
	}

	var stdout, stderr bytes.Buffer
	if err := run([]string{"-spec", spec, "get", data, "bogus"}, &stdout, &stderr); err == nil {
		t.Fatalf("expected error for missing field")
	}
}

func TestRunDump(t *testing.T) {
	spec, data := setup(t)
	out := runOK(t, "-spec", spec, "dump", data)
	want := `DynObject {magic, count, entries} (archive @0x0, 16 bytes)
magic = (4) 41524331
count = 2
entries = List [2]
entries[0] = DynObject {len, name, data} (entry @0x5, 6 bytes)
entries[0].len = 3
entries[0].name = "abc"
entries[0].data = (2) 0102
entries[1] = DynObject {len, name, data} (entry @0xb, 5 bytes)
entries[1].len = 2
entries[1].name = "xy"
entries[1].data = (2) 0304
`
	if out != want {
		t.Fatalf("unexpected dump:\n%s", out)
	}
}

func TestRunCopy(t *testing.T) {
	spec, data := setup(t)
	out := filepath.Join(t.TempDir(), "copy.bin")
	runOK(t, "-spec", spec, "copy", data, out)

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read copy: %v", err)
	}
	if !bytes.Equal(raw, archiveData) {
		t.Fatalf("copy = %x, wanted %x", raw, archiveData)
	}
}

func TestRunExportAndShow(t *testing.T) {
	spec, data := setup(t)
	db := filepath.Join(t.TempDir(), "snap.db")
	cfgPath := writeFile(t, "pagan.toml", "spec = \""+filepath.ToSlash(spec)+"\"\nencoding = \"json\"\n")

	out := runOK(t, "-config", cfgPath, "export", data, db, "first")
	if !strings.HasPrefix(out, "first: ") || !strings.Contains(out, "of json, source 16 bytes") {
		t.Fatalf("unexpected export output: %q", out)
	}

	out = runOK(t, "show", db, "first")
	if !strings.HasPrefix(out, "Map {magic, count, entries}\n") || !strings.Contains(out, `entries[1].name = "xy"`) {
		t.Fatalf("unexpected show output:\n%s", out)
	}
}

func TestRunUsageErrors(t *testing.T) {
	spec, data := setup(t)
	tests := [][]string{
		{},
		{"keys"},
		{"-spec", spec, "get", data},
		{"show", "db"},
	}
	for _, args := range tests {
		var stdout, stderr bytes.Buffer
		if err := run(args, &stdout, &stderr); !errors.Is(err, errUsage) {
			t.Fatalf("run %v: err = %v, wanted usage error", args, err)
		}
		if !strings.Contains(stderr.String(), "usage: pagan") {
			t.Fatalf("run %v: no usage printed", args)
		}
	}

	var stdout, stderr bytes.Buffer
	if err := run([]string{"-spec", spec, "frobnicate", data}, &stdout, &stderr); err == nil {
		t.Fatalf("expected error for unknown command")
	}
	if err := run([]string{"keys", data}, &stdout, &stderr); err == nil || !strings.Contains(err.Error(), "no schema") {
		t.Fatalf("expected no schema error, got %v", err)
	}
}
