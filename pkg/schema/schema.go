// Package schema holds the in-memory data model the CLI command grammar
// is derived from: a tree of typed nodes with cardinality and value
// constraints. Models are immutable after load and shared read-only by
// every session.
package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind classifies a schema node.
type Kind int

const (
	KindContainer Kind = iota
	KindList
	KindLeaf
	KindLeafList
	KindChoice
	KindCase
)

func (k Kind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindList:
		return "list"
	case KindLeaf:
		return "leaf"
	case KindLeafList:
		return "leaf-list"
	case KindChoice:
		return "choice"
	case KindCase:
		return "case"
	default:
		return "unknown"
	}
}

// Type is the primitive type of a leaf or leaf-list node.
type Type int

const (
	TypeString Type = iota
	TypeBool
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeEnumeration
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeBool:
		return "boolean"
	case TypeInt8:
		return "int8"
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeUint64:
		return "uint64"
	case TypeEnumeration:
		return "enumeration"
	default:
		return "unknown"
	}
}

// IsInteger reports whether the type is a signed or unsigned integer.
func (t Type) IsInteger() bool {
	return t >= TypeInt8 && t <= TypeUint64
}

// IsSigned reports whether the type is a signed integer.
func (t Type) IsSigned() bool {
	return t >= TypeInt8 && t <= TypeInt64
}

// Bits returns the declared bit width of an integer type, or 0.
func (t Type) Bits() int {
	switch t {
	case TypeInt8, TypeUint8:
		return 8
	case TypeInt16, TypeUint16:
		return 16
	case TypeInt32, TypeUint32:
		return 32
	case TypeInt64, TypeUint64:
		return 64
	default:
		return 0
	}
}

// Range bounds a numeric value or a string length. Bounds are kept in
// their literal form so the validator can parse them with the exact bit
// width and signedness of the leaf they constrain. An empty bound is
// unbounded.
type Range struct {
	MinRaw string
	MaxRaw string
}

// Node is one node of the schema tree. Nodes never change after Load,
// so concurrent readers need no synchronization.
type Node struct {
	Name     string
	Kind     Kind
	Desc     string
	Config   bool // false for state-only subtrees
	Children []*Node

	// Leaf and leaf-list attributes.
	Type      Type
	Pattern   string
	Enum      []string
	Range     *Range
	Length    *Range
	Default   string
	Units     string
	Mandatory bool

	// Requires names absolute leaf paths (space separated) that must be
	// present in a configuration whenever this node is set. Checked at
	// commit time, not per edit.
	Requires []string

	// Keys names the child leaves forming a list entry's identity.
	Keys []string

	parent  *Node
	index   map[string]*Node
	pattern *regexp.Regexp // anchored, compiled at load
}

// Parent returns the parent node, or nil at the root.
func (n *Node) Parent() *Node { return n.parent }

// Child returns the named child, or nil.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	return n.index[name]
}

// VisibleChildren returns the children addressable in a configuration
// path: choice and case nodes are transparent, their descendants appear
// as direct alternatives.
func (n *Node) VisibleChildren() []*Node {
	var out []*Node
	for _, c := range n.Children {
		switch c.Kind {
		case KindChoice, KindCase:
			out = append(out, c.VisibleChildren()...)
		default:
			out = append(out, c)
		}
	}
	return out
}

// VisibleChild resolves a name among VisibleChildren.
func (n *Node) VisibleChild(name string) *Node {
	if n == nil {
		return nil
	}
	if c := n.index[name]; c != nil && c.Kind != KindChoice && c.Kind != KindCase {
		return c
	}
	for _, c := range n.Children {
		if c.Kind == KindChoice || c.Kind == KindCase {
			if found := c.VisibleChild(name); found != nil {
				return found
			}
		}
	}
	return nil
}

// PatternRE returns the compiled anchored pattern, or nil when the node
// declares none.
func (n *Node) PatternRE() *regexp.Regexp { return n.pattern }

// IsKey reports whether the node is a key leaf of its parent list.
func (n *Node) IsKey() bool {
	if n.parent == nil || n.parent.Kind != KindList {
		return false
	}
	for _, k := range n.parent.Keys {
		if k == n.Name {
			return true
		}
	}
	return false
}

// Path returns the slash-free path of the node from the root.
func (n *Node) Path() string {
	var names []string
	for cur := n; cur != nil && cur.Name != ""; cur = cur.parent {
		names = append(names, cur.Name)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, " ")
}

// Model is an immutable schema tree plus metadata.
type Model struct {
	Name    string
	Version string
	root    *Node
}

// Root returns the unnamed root node.
func (m *Model) Root() *Node { return m.root }

// Resolve walks the tree by node names (list key values are not part of
// a schema path) and returns the node, or nil when any step is absent.
// Choice and case nodes are transparent to resolution.
func (m *Model) Resolve(path []string) *Node {
	cur := m.root
	for _, name := range path {
		cur = cur.VisibleChild(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// ChildrenOf returns the ordered children at the given path, or nil when
// the path does not resolve.
func (m *Model) ChildrenOf(path []string) []*Node {
	n := m.Resolve(path)
	if n == nil {
		return nil
	}
	return n.Children
}

// Error reports a malformed model description. It is fatal to startup.
type Error struct {
	Path   string
	Reason string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("schema: %s", e.Reason)
	}
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Reason)
}

// finalize links parents, builds child indexes, and rejects duplicate
// identifiers under one parent.
func finalize(n *Node, path string) error {
	n.index = make(map[string]*Node, len(n.Children))
	for _, child := range n.Children {
		if _, dup := n.index[child.Name]; dup {
			return &Error{Path: path, Reason: fmt.Sprintf("duplicate identifier %q", child.Name)}
		}
		n.index[child.Name] = child
		child.parent = n
		childPath := child.Name
		if path != "" {
			childPath = path + " " + child.Name
		}
		if err := finalize(child, childPath); err != nil {
			return err
		}
	}
	return nil
}
