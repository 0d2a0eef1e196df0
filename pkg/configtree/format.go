package configtree

import (
	"fmt"
	"strings"
)

// Format renders the tree as hierarchical brace-delimited text.
func (t *Tree) Format() string {
	var b strings.Builder
	for _, n := range t.Children {
		formatNode(&b, n, 0)
	}
	return b.String()
}

func formatNode(b *strings.Builder, n *Node, depth int) {
	indent := strings.Repeat("    ", depth)
	head := n.Name
	for _, k := range n.Keys {
		head += " " + quoteIfNeeded(k)
	}

	switch {
	case len(n.Values) > 0:
		quoted := make([]string, len(n.Values))
		for i, v := range n.Values {
			quoted[i] = quoteIfNeeded(v)
		}
		fmt.Fprintf(b, "%s%s [ %s ];\n", indent, head, strings.Join(quoted, " "))
	case len(n.Children) == 0:
		if n.Value != "" {
			fmt.Fprintf(b, "%s%s %s;\n", indent, head, quoteIfNeeded(n.Value))
		} else {
			fmt.Fprintf(b, "%s%s;\n", indent, head)
		}
	default:
		fmt.Fprintf(b, "%s%s {\n", indent, head)
		for _, c := range n.Children {
			formatNode(b, c, depth+1)
		}
		fmt.Fprintf(b, "%s}\n", indent)
	}
}

// FormatSet renders the tree as flat set-command lines, one per leaf
// value (and one per otherwise-empty container or list entry).
func (t *Tree) FormatSet() string {
	var b strings.Builder
	for _, line := range t.SetLines() {
		b.WriteString("set ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// SetLines returns the flat path-and-value lines of FormatSet without
// the "set " prefix. This is also the wire representation of snapshots.
func (t *Tree) SetLines() []string {
	var lines []string
	for _, n := range t.Children {
		lines = append(lines, setLines(n, "")...)
	}
	return lines
}

func setLines(n *Node, prefix string) []string {
	head := n.Name
	for _, k := range n.Keys {
		head += " " + quoteIfNeeded(k)
	}
	if prefix != "" {
		head = prefix + " " + head
	}

	switch {
	case len(n.Values) > 0:
		lines := make([]string, len(n.Values))
		for i, v := range n.Values {
			lines[i] = head + " " + quoteIfNeeded(v)
		}
		return lines
	case len(n.Children) == 0:
		if n.Value != "" {
			return []string{head + " " + quoteIfNeeded(n.Value)}
		}
		return []string{head}
	default:
		var lines []string
		for _, c := range n.Children {
			lines = append(lines, setLines(c, head)...)
		}
		return lines
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t") {
		return `"` + s + `"`
	}
	return s
}
