package ksy

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type meta struct {
	ID            string `yaml:"id"`
	Title         string `yaml:"title"`
	Endian        string `yaml:"endian"`
	Encoding      string `yaml:"encoding"`
	FileExtension any    `yaml:"file-extension"`
	KSVersion     any    `yaml:"ks-version"`
	License       string `yaml:"license"`
}

type typeDef struct {
	Meta   *meta     `yaml:"meta"`
	Doc    string    `yaml:"doc"`
	DocRef any       `yaml:"doc-ref"`
	Seq    []attr    `yaml:"seq"`
	Types  typesMap  `yaml:"types"`
	Line   int       `yaml:"-"`
}

func (td *typeDef) UnmarshalYAML(node *yaml.Node) error {
	if err := checkKeys(node, "meta", "doc", "doc-ref", "seq", "types"); err != nil {
		return err
	}
	return td.decode(node)
}

func (td *typeDef) decode(node *yaml.Node) error {
	type plain typeDef
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*td = typeDef(p)
	td.Line = node.Line
	return nil
}

type namedType struct {
	Name string
	Def  *typeDef
}

// typesMap keeps nested types in file order.
type typesMap []namedType

func (m *typesMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return nodeErrf(node, "types must be a mapping")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		def := new(typeDef)
		if err := v.Decode(def); err != nil {
			return err
		}
		*m = append(*m, namedType{k.Value, def})
	}
	return nil
}

type attr struct {
	ID          string     `yaml:"id"`
	Type        *typeRef   `yaml:"type"`
	Size        *exprValue `yaml:"size"`
	SizeEOS     bool       `yaml:"size-eos"`
	If          *exprValue `yaml:"if"`
	Repeat      string     `yaml:"repeat"`
	RepeatExpr  *exprValue `yaml:"repeat-expr"`
	RepeatUntil *exprValue `yaml:"repeat-until"`
	Process     string     `yaml:"process"`
	Contents    *contents  `yaml:"contents"`
	Encoding    string     `yaml:"encoding"`
	Terminator  *int       `yaml:"terminator"`
	Doc         string     `yaml:"doc"`
	DocRef      any        `yaml:"doc-ref"`
	Line        int        `yaml:"-"`
}

var attrKeys = []string{"id", "type", "size", "size-eos", "if", "repeat", "repeat-expr", "repeat-until",
	"process", "contents", "encoding", "terminator", "doc", "doc-ref"}

func (a *attr) UnmarshalYAML(node *yaml.Node) error {
	if err := checkKeys(node, attrKeys...); err != nil {
		return err
	}
	type plain attr
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*a = attr(p)
	a.Line = node.Line
	return nil
}

// typeRef is either a type name or a switch.
type typeRef struct {
	Name     string
	SwitchOn *exprValue
	Cases    []switchCase
	Line     int
}

type switchCase struct {
	Match   any
	Default bool
	Type    string
}

func (t *typeRef) UnmarshalYAML(node *yaml.Node) error {
	t.Line = node.Line
	switch node.Kind {
	case yaml.ScalarNode:
		t.Name = node.Value
		return nil
	case yaml.MappingNode:
		if err := checkKeys(node, "switch-on", "cases"); err != nil {
			return err
		}
		for i := 0; i+1 < len(node.Content); i += 2 {
			k, v := node.Content[i], node.Content[i+1]
			switch k.Value {
			case "switch-on":
				t.SwitchOn = new(exprValue)
				if err := v.Decode(t.SwitchOn); err != nil {
					return err
				}
			case "cases":
				if v.Kind != yaml.MappingNode {
					return nodeErrf(v, "cases must be a mapping")
				}
				for j := 0; j+1 < len(v.Content); j += 2 {
					c, err := parseCase(v.Content[j], v.Content[j+1])
					if err != nil {
						return err
					}
					t.Cases = append(t.Cases, c)
				}
			}
		}
		if t.SwitchOn == nil {
			return nodeErrf(node, "switch type without switch-on")
		}
		return nil
	default:
		return nodeErrf(node, "type must be a name or a switch")
	}
}

func parseCase(k, v *yaml.Node) (switchCase, error) {
	if v.Kind != yaml.ScalarNode {
		return switchCase{}, nodeErrf(v, "case type must be a name")
	}
	c := switchCase{Type: v.Value}
	if k.Kind != yaml.ScalarNode {
		return c, nodeErrf(k, "case label must be a scalar")
	}
	switch {
	case k.Value == "_":
		c.Default = true
	case k.Tag == "!!int":
		n, err := strconv.ParseInt(k.Value, 0, 64)
		if err != nil {
			return c, nodeErrf(k, "invalid case label %q: %v", k.Value, err)
		}
		c.Match = n
	case k.Tag == "!!bool":
		c.Match = k.Value == "true"
	case strings.HasPrefix(k.Value, `"`) || strings.HasPrefix(k.Value, `'`):
		s, err := unquote(k.Value)
		if err != nil {
			return c, nodeErrf(k, "invalid case label %s: %v", k.Value, err)
		}
		c.Match = s
	default:
		return c, nodeErrf(k, "unsupported case label %q", k.Value)
	}
	return c, nil
}

func unquote(s string) (string, error) {
	if strings.HasPrefix(s, "'") {
		if len(s) < 2 || !strings.HasSuffix(s, "'") {
			return "", fmt.Errorf("unterminated string")
		}
		return s[1 : len(s)-1], nil
	}
	return strconv.Unquote(s)
}

// exprValue is an integer or boolean literal, or expression source.
type exprValue struct {
	Src   string
	Const any
	Line  int
}

func (e *exprValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return nodeErrf(node, "expression must be a scalar")
	}
	e.Line = node.Line
	e.Src = node.Value
	switch node.Tag {
	case "!!int":
		n, err := strconv.ParseInt(node.Value, 0, 64)
		if err != nil {
			return nodeErrf(node, "invalid integer %q: %v", node.Value, err)
		}
		e.Const = n
	case "!!bool":
		e.Const = node.Value == "true"
	}
	return nil
}

// contents is a magic signature given as a string or as a list of bytes and
// strings.
type contents struct {
	Bytes []byte
}

func (c *contents) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		c.Bytes = []byte(node.Value)
		return nil
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return nodeErrf(item, "contents items must be scalars")
			}
			if item.Tag == "!!int" {
				n, err := strconv.ParseUint(item.Value, 0, 8)
				if err != nil {
					return nodeErrf(item, "invalid contents byte %q", item.Value)
				}
				c.Bytes = append(c.Bytes, byte(n))
			} else {
				c.Bytes = append(c.Bytes, item.Value...)
			}
		}
		return nil
	default:
		return nodeErrf(node, "contents must be a string or a list")
	}
}

func checkKeys(node *yaml.Node, allowed ...string) error {
	if node.Kind != yaml.MappingNode {
		return nodeErrf(node, "expected a mapping")
	}
	for i := 0; i < len(node.Content); i += 2 {
		k := node.Content[i]
		if !slices.Contains(allowed, k.Value) {
			return nodeErrf(k, "unsupported key %q", k.Value)
		}
	}
	return nil
}

func nodeErrf(node *yaml.Node, format string, args ...any) error {
	return fmt.Errorf("line %d: %s", node.Line, fmt.Sprintf(format, args...))
}
