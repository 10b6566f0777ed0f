package pagan

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePath splits a path like "section.entries[0].name" into the elements
// Lookup accepts.
func ParsePath(s string) ([]any, error) {
	var path []any
	for s != "" {
		switch s[0] {
		case '.':
			if len(path) == 0 {
				return nil, fmt.Errorf("invalid path: leading dot")
			}
			s = s[1:]
			if s == "" || s[0] == '.' || s[0] == '[' {
				return nil, fmt.Errorf("invalid path: empty key")
			}
		case '[':
			inner, rest, ok := splitByte(s[1:], ']')
			if !ok {
				return nil, fmt.Errorf("invalid path: unclosed [")
			}
			i, err := strconv.Atoi(inner)
			if err != nil || i < 0 {
				return nil, fmt.Errorf("invalid path: bad index %q", inner)
			}
			path = append(path, i)
			s = rest
			continue
		}
		n := strings.IndexAny(s, ".[")
		if n < 0 {
			n = len(s)
		}
		path = append(path, s[:n])
		s = s[n:]
	}
	return path, nil
}

func FormatPath(path []any) string {
	var buf strings.Builder
	for _, elem := range path {
		switch elem := elem.(type) {
		case int:
			buf.WriteByte('[')
			buf.WriteString(strconv.Itoa(elem))
			buf.WriteByte(']')
		default:
			if buf.Len() > 0 {
				buf.WriteByte('.')
			}
			fmt.Fprint(&buf, elem)
		}
	}
	return buf.String()
}
