package configstore

import (
	"fmt"
	"strings"

	"github.com/irino/holo-cli/pkg/configtree"
	"github.com/irino/holo-cli/pkg/schema"
)

// CheckError collects the constraint violations found by a commit
// check.
type CheckError struct {
	Problems []string
}

func (e *CheckError) Error() string {
	if len(e.Problems) == 1 {
		return e.Problems[0]
	}
	return fmt.Sprintf("%d constraint violations:\n  %s",
		len(e.Problems), strings.Join(e.Problems, "\n  "))
}

// Check validates the whole candidate tree against the model's
// structural constraints: mandatory leaves under present parents and
// cross-node requires dependencies. Value types are enforced at set
// time, so they are not re-checked here.
func (s *Store) Check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.candidate == nil {
		return ErrNotEditing
	}
	return CheckTree(s.model, s.candidate)
}

// CheckTree validates an arbitrary tree against the model. Rollback
// loads historic snapshots unchecked; they pass through Check again
// at commit, so a snapshot predating a model constraint is caught
// before it reaches the daemon.
func CheckTree(model *schema.Model, t *configtree.Tree) error {
	c := &checker{tree: t}
	for _, n := range t.Children {
		c.node(model.Root().VisibleChild(n.Name), n, n.Name)
	}
	if len(c.problems) > 0 {
		return &CheckError{Problems: c.problems}
	}
	return nil
}

type checker struct {
	tree     *configtree.Tree
	problems []string
}

func (c *checker) node(sn *schema.Node, n *configtree.Node, path string) {
	if sn == nil {
		c.problems = append(c.problems, fmt.Sprintf("%s: unknown element", path))
		return
	}

	// Mandatory leaves must be present once their parent exists. List
	// keys live in the entry itself and are always satisfied.
	for _, sc := range sn.VisibleChildren() {
		if !sc.Mandatory || !sc.Config || sc.IsKey() {
			continue
		}
		if findNamed(n.Children, sc.Name) == nil {
			c.problems = append(c.problems,
				fmt.Sprintf("%s: missing mandatory %q", path, sc.Name))
		}
	}

	if (sn.Kind == schema.KindLeaf || sn.Kind == schema.KindLeafList) &&
		(n.Value != "" || len(n.Values) > 0) {
		for _, req := range sn.Requires {
			if !c.present(req) {
				c.problems = append(c.problems,
					fmt.Sprintf("%s: requires %q to be configured", path, req))
			}
		}
	}

	for _, child := range n.Children {
		childPath := path + " " + child.Name
		for _, k := range child.Keys {
			childPath += " " + k
		}
		c.node(sn.VisibleChild(child.Name), child, childPath)
	}
}

// present reports whether the absolute space-separated path names a
// node carrying a value somewhere in the tree.
func (c *checker) present(req string) bool {
	names := strings.Fields(req)
	if len(names) == 0 {
		return false
	}
	nodes := c.tree.Children
	var found *configtree.Node
	for _, name := range names {
		found = findNamed(nodes, name)
		if found == nil {
			return false
		}
		nodes = found.Children
	}
	return found.Value != "" || len(found.Values) > 0 || len(found.Children) > 0
}

func findNamed(nodes []*configtree.Node, name string) *configtree.Node {
	for _, n := range nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}
