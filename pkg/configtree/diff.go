package configtree

import (
	"fmt"

	"github.com/irino/holo-cli/pkg/schema"
)

// Op is a diff operation.
type Op int

const (
	OpCreate Op = iota
	OpModify
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Entry is one path-scoped operation of a structural diff.
type Entry struct {
	Path Path
	Op   Op
	Old  string
	New  string
}

func (e Entry) String() string {
	switch e.Op {
	case OpCreate:
		if e.New != "" {
			return fmt.Sprintf("create %s = %q", e.Path, e.New)
		}
		return fmt.Sprintf("create %s", e.Path)
	case OpModify:
		return fmt.Sprintf("modify %s: %q -> %q", e.Path, e.Old, e.New)
	default:
		if e.Old != "" {
			return fmt.Sprintf("delete %s = %q", e.Path, e.Old)
		}
		return fmt.Sprintf("delete %s", e.Path)
	}
}

// Diff computes the ordered operations transforming running into
// candidate. Entries follow a pre-order walk of the schema tree:
// created parents precede created children, and deleted children precede
// deleted parents, so a replay of the diff is always structurally valid.
func Diff(model *schema.Model, running, candidate *Tree) []Entry {
	d := &differ{}
	d.children(model.Root(), nil, running.Children, candidate.Children)
	return d.entries
}

type differ struct {
	entries []Entry
}

func (d *differ) emit(e Entry) {
	d.entries = append(d.entries, e)
}

func (d *differ) children(sn *schema.Node, prefix Path, run, cand []*Node) {
	for _, sc := range sn.VisibleChildren() {
		switch sc.Kind {
		case schema.KindList:
			d.list(sc, prefix, collect(run, sc.Name), collect(cand, sc.Name))
		default:
			d.single(sc, prefix, first(run, sc.Name), first(cand, sc.Name))
		}
	}
}

func (d *differ) single(sc *schema.Node, prefix Path, rn, cn *Node) {
	path := append(prefix.Clone(), Element{Name: sc.Name})

	switch {
	case rn == nil && cn == nil:
		return

	case rn == nil: // created
		switch sc.Kind {
		case schema.KindLeaf:
			d.emit(Entry{Path: path, Op: OpCreate, New: cn.Value})
		case schema.KindLeafList:
			for _, v := range cn.Values {
				d.emit(Entry{Path: path, Op: OpCreate, New: v})
			}
		default:
			d.emit(Entry{Path: path, Op: OpCreate})
			d.children(sc, path, nil, cn.Children)
		}

	case cn == nil: // deleted
		switch sc.Kind {
		case schema.KindLeaf:
			d.emit(Entry{Path: path, Op: OpDelete, Old: rn.Value})
		case schema.KindLeafList:
			for _, v := range rn.Values {
				d.emit(Entry{Path: path, Op: OpDelete, Old: v})
			}
		default:
			d.children(sc, path, rn.Children, nil)
			d.emit(Entry{Path: path, Op: OpDelete})
		}

	default: // present on both sides
		switch sc.Kind {
		case schema.KindLeaf:
			if rn.Value != cn.Value {
				d.emit(Entry{Path: path, Op: OpModify, Old: rn.Value, New: cn.Value})
			}
		case schema.KindLeafList:
			if !stringsEqual(rn.Values, cn.Values) {
				// Order is significant: replace wholesale so a replay
				// reproduces the candidate's ordering exactly.
				for _, v := range rn.Values {
					d.emit(Entry{Path: path, Op: OpDelete, Old: v})
				}
				for _, v := range cn.Values {
					d.emit(Entry{Path: path, Op: OpCreate, New: v})
				}
			}
		default:
			d.children(sc, path, rn.Children, cn.Children)
		}
	}
}

func (d *differ) list(sc *schema.Node, prefix Path, run, cand []*Node) {
	// Deleted entries first, in running order: children before the
	// entry itself.
	for _, rn := range run {
		if findIn(cand, rn.element()) == nil {
			path := append(prefix.Clone(), rn.element())
			d.children(sc, path, rn.Children, nil)
			d.emit(Entry{Path: path, Op: OpDelete})
		}
	}
	for _, cn := range cand {
		path := append(prefix.Clone(), cn.element())
		if rn := findIn(run, cn.element()); rn != nil {
			d.children(sc, path, rn.Children, cn.Children)
		} else {
			d.emit(Entry{Path: path, Op: OpCreate})
			d.children(sc, path, nil, cn.Children)
		}
	}
}

func collect(nodes []*Node, name string) []*Node {
	var out []*Node
	for _, n := range nodes {
		if n.Name == name {
			out = append(out, n)
		}
	}
	return out
}

func first(nodes []*Node, name string) *Node {
	for _, n := range nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// Apply replays a diff onto a copy of base and returns the result.
// Deletes use exact removal without parent pruning so the replay matches
// the diff's own ordering.
func Apply(model *schema.Model, base *Tree, entries []Entry) (*Tree, error) {
	out := base.Clone()
	for _, e := range entries {
		sn := model.Resolve(e.Path.Names())
		if sn == nil {
			return nil, &NotFoundError{Path: e.Path.String()}
		}
		switch e.Op {
		case OpCreate:
			out.Set(sn, e.Path, e.New)
		case OpModify:
			n := out.Get(e.Path)
			if n == nil {
				return nil, &NotFoundError{Path: e.Path.String()}
			}
			n.Value = e.New
		case OpDelete:
			if sn.Kind == schema.KindLeafList && e.Old != "" {
				n := out.Get(e.Path)
				if n == nil {
					return nil, &NotFoundError{Path: e.Path.String()}
				}
				removeValue(n, e.Old)
				if len(n.Values) == 0 {
					out.removeAt(e.Path)
				}
			} else {
				out.removeAt(e.Path)
			}
		}
	}
	return out, nil
}

func removeValue(n *Node, v string) {
	for i, cur := range n.Values {
		if cur == v {
			n.Values = append(n.Values[:i], n.Values[i+1:]...)
			return
		}
	}
}
