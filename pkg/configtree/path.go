package configtree

import (
	"fmt"
	"strings"

	"github.com/irino/holo-cli/pkg/schema"
)

// ParsePath resolves flat whitespace-split tokens into a Path, consuming
// list key values as it goes. It returns the schema node the path ends
// at and any unconsumed tokens (the value tokens of a leaf, or nothing).
func ParsePath(model *schema.Model, tokens []string) (Path, *schema.Node, []string, error) {
	cur := model.Root()
	var path Path

	i := 0
	for i < len(tokens) {
		child := cur.VisibleChild(tokens[i])
		if child == nil {
			return nil, nil, nil, &NotFoundError{Path: strings.Join(tokens[:i+1], " ")}
		}

		switch child.Kind {
		case schema.KindContainer:
			path = append(path, Element{Name: child.Name})
			i++
		case schema.KindList:
			nkeys := len(child.Keys)
			if i+1+nkeys > len(tokens) {
				return nil, nil, nil, fmt.Errorf("list %q: missing key value", child.Name)
			}
			keys := append([]string(nil), tokens[i+1:i+1+nkeys]...)
			path = append(path, Element{Name: child.Name, Keys: keys})
			i += 1 + nkeys
		case schema.KindLeaf, schema.KindLeafList:
			path = append(path, Element{Name: child.Name})
			return path, child, tokens[i+1:], nil
		default:
			return nil, nil, nil, fmt.Errorf("%q: unexpected node kind %v", child.Name, child.Kind)
		}
		cur = child
	}

	sn := model.Resolve(path.Names())
	return path, sn, nil, nil
}

// FromSetLines rebuilds a tree from flat set-command lines, the wire
// representation of configuration snapshots.
func FromSetLines(model *schema.Model, lines []string) (*Tree, error) {
	t := New()
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		tokens := SplitFields(line)
		path, sn, rest, err := ParsePath(model, tokens)
		if err != nil {
			return nil, fmt.Errorf("line %q: %w", line, err)
		}
		switch {
		case sn == nil:
			return nil, fmt.Errorf("line %q: unresolved path", line)
		case sn.Kind == schema.KindLeaf || sn.Kind == schema.KindLeafList:
			if len(rest) != 1 {
				return nil, fmt.Errorf("line %q: expected one value for %s", line, sn.Name)
			}
			t.Set(sn, path, rest[0])
		default:
			if len(rest) != 0 {
				return nil, fmt.Errorf("line %q: trailing tokens after %s", line, sn.Name)
			}
			t.Set(sn, path, "")
		}
	}
	return t, nil
}

// SplitFields splits a line on whitespace, keeping double-quoted
// sections together as single fields with the quotes stripped.
func SplitFields(s string) []string {
	var fields []string
	var cur strings.Builder
	inQuote := false
	hasField := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuote = !inQuote
			hasField = true
		case (c == ' ' || c == '\t') && !inQuote:
			if hasField {
				fields = append(fields, cur.String())
				cur.Reset()
				hasField = false
			}
		default:
			cur.WriteByte(c)
			hasField = true
		}
	}
	if hasField {
		fields = append(fields, cur.String())
	}
	return fields
}
