// Package configtree implements the sparse configuration tree: only
// nodes the operator actually set are present. Two instances exist per
// session, the running snapshot and the mutable candidate.
package configtree

import (
	"fmt"
	"strings"

	"github.com/irino/holo-cli/pkg/schema"
)

// Element is one step of a configuration path: a node name plus, for
// list entries, the key values identifying the entry.
type Element struct {
	Name string
	Keys []string
}

func (e Element) String() string {
	if len(e.Keys) == 0 {
		return e.Name
	}
	return e.Name + " " + strings.Join(e.Keys, " ")
}

func (e Element) equal(o Element) bool {
	if e.Name != o.Name || len(e.Keys) != len(o.Keys) {
		return false
	}
	for i := range e.Keys {
		if e.Keys[i] != o.Keys[i] {
			return false
		}
	}
	return true
}

// Path addresses a node in a configuration tree.
type Path []Element

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, e := range p {
		parts[i] = e.String()
	}
	return strings.Join(parts, " ")
}

// Names returns the schema path: element names without key values.
func (p Path) Names() []string {
	names := make([]string, len(p))
	for i, e := range p {
		names[i] = e.Name
	}
	return names
}

// Clone returns a deep copy of the path.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	for i, e := range p {
		out[i] = Element{Name: e.Name, Keys: append([]string(nil), e.Keys...)}
	}
	return out
}

// NotFoundError reports an absent configuration path.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("path not found: %s", e.Path)
}

// Node is a value-bearing node of a configuration tree.
type Node struct {
	Name     string
	Keys     []string // list entry key values
	Value    string   // leaf value
	Values   []string // leaf-list values, in insertion order
	Children []*Node
}

func (n *Node) matches(e Element) bool {
	return n.element().equal(e)
}

func (n *Node) element() Element {
	return Element{Name: n.Name, Keys: n.Keys}
}

func (n *Node) clone() *Node {
	c := &Node{
		Name:   n.Name,
		Keys:   append([]string(nil), n.Keys...),
		Value:  n.Value,
		Values: append([]string(nil), n.Values...),
	}
	for _, child := range n.Children {
		c.Children = append(c.Children, child.clone())
	}
	return c
}

func (n *Node) findChild(e Element) *Node {
	for _, c := range n.Children {
		if c.matches(e) {
			return c
		}
	}
	return nil
}

// Tree is a sparse configuration tree.
type Tree struct {
	Children []*Node
}

// New returns an empty tree.
func New() *Tree { return &Tree{} }

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	out := &Tree{}
	for _, c := range t.Children {
		out.Children = append(out.Children, c.clone())
	}
	return out
}

func (t *Tree) findChild(e Element) *Node {
	for _, c := range t.Children {
		if c.matches(e) {
			return c
		}
	}
	return nil
}

// Get returns the node at path, or nil.
func (t *Tree) Get(path Path) *Node {
	if len(path) == 0 {
		return nil
	}
	cur := t.findChild(path[0])
	for _, e := range path[1:] {
		if cur == nil {
			return nil
		}
		cur = cur.findChild(e)
	}
	return cur
}

// Set creates the path, materializing intermediate nodes, and stores the
// leaf value. For leaf-lists the value is appended unless already
// present. Callers are expected to have validated value against the
// schema leaf beforehand.
func (t *Tree) Set(sn *schema.Node, path Path, val string) {
	if len(path) == 0 {
		return
	}

	node := t.findChild(path[0])
	if node == nil {
		node = &Node{Name: path[0].Name, Keys: append([]string(nil), path[0].Keys...)}
		t.Children = append(t.Children, node)
	}
	for _, e := range path[1:] {
		child := node.findChild(e)
		if child == nil {
			child = &Node{Name: e.Name, Keys: append([]string(nil), e.Keys...)}
			node.Children = append(node.Children, child)
		}
		node = child
	}

	if sn == nil {
		return
	}
	switch sn.Kind {
	case schema.KindLeaf:
		node.Value = val
	case schema.KindLeafList:
		for _, v := range node.Values {
			if v == val {
				return
			}
		}
		node.Values = append(node.Values, val)
	}
}

// Delete removes the node at path and any parents left empty by the
// removal. For leaf-lists a non-empty val removes only that value.
func (t *Tree) Delete(path Path, val string) error {
	if len(path) == 0 {
		return &NotFoundError{Path: ""}
	}

	// Collect the chain so empty parents can be pruned afterwards.
	chain := make([]*Node, 0, len(path))
	cur := t.findChild(path[0])
	if cur == nil {
		return &NotFoundError{Path: path.String()}
	}
	chain = append(chain, cur)
	for _, e := range path[1:] {
		cur = cur.findChild(e)
		if cur == nil {
			return &NotFoundError{Path: path.String()}
		}
		chain = append(chain, cur)
	}

	target := chain[len(chain)-1]
	if val != "" && len(target.Values) > 0 {
		idx := -1
		for i, v := range target.Values {
			if v == val {
				idx = i
				break
			}
		}
		if idx < 0 {
			return &NotFoundError{Path: path.String() + " " + val}
		}
		target.Values = append(target.Values[:idx], target.Values[idx+1:]...)
		if len(target.Values) > 0 {
			return nil
		}
		// Fall through: an emptied leaf-list node is removed.
	}

	t.removeAt(path)

	// Prune parents that became empty value-less containers.
	for i := len(chain) - 2; i >= 0; i-- {
		p := chain[i]
		if len(p.Children) > 0 || p.Value != "" || len(p.Values) > 0 || len(p.Keys) > 0 {
			break
		}
		t.removeAt(path[:i+1])
	}
	return nil
}

func (t *Tree) removeAt(path Path) {
	if len(path) == 1 {
		t.Children = removeChild(t.Children, path[0])
		return
	}
	parent := t.Get(path[:len(path)-1])
	if parent != nil {
		parent.Children = removeChild(parent.Children, path[len(path)-1])
	}
}

func removeChild(children []*Node, e Element) []*Node {
	for i, c := range children {
		if c.matches(e) {
			return append(children[:i], children[i+1:]...)
		}
	}
	return children
}

// Equal reports structural equality of two trees.
func Equal(a, b *Tree) bool {
	return nodesEqual(a.Children, b.Children)
}

func nodesEqual(a, b []*Node) bool {
	if len(a) != len(b) {
		return false
	}
	// Order-insensitive at each level: two trees that differ only in
	// insertion order carry the same configuration.
	for _, na := range a {
		nb := findIn(b, na.element())
		if nb == nil {
			return false
		}
		if na.Value != nb.Value {
			return false
		}
		if !stringsEqual(na.Values, nb.Values) {
			return false
		}
		if !nodesEqual(na.Children, nb.Children) {
			return false
		}
	}
	return true
}

func findIn(nodes []*Node, e Element) *Node {
	for _, n := range nodes {
		if n.matches(e) {
			return n
		}
	}
	return nil
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
