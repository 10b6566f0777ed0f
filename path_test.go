package pagan

import (
	"testing"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		input string
		want  []any
	}{
		{"", nil},
		{"name", []any{"name"}},
		{"section.entries[0].name", []any{"section", "entries", 0, "name"}},
		{"[2]", []any{2}},
		{"a[1][2]", []any{"a", 1, 2}},
		{"_io.size", []any{"_io", "size"}},
	}
	for _, tt := range tests {
		a := must(ParsePath(tt.input))
		deepEqual(t, a, tt.want)
		if tt.input != "" {
			if s := FormatPath(a); s != tt.input {
				t.Errorf("FormatPath(%v) = %q, wanted %q", a, s, tt.input)
			}
		}
	}
}

func TestParsePath_errors(t *testing.T) {
	for _, input := range []string{".a", "a.", "a..b", "a.[0]", "a[", "a[x]", "a[-1]"} {
		if _, err := ParsePath(input); err == nil {
			t.Errorf("ParsePath(%q) succeeded, wanted error", input)
		}
	}
}
