package configtree

import (
	"errors"
	"strings"
	"testing"

	"github.com/irino/holo-cli/pkg/schema"
)

const treeModel = `
name: tree
nodes:
  - name: system
    kind: container
    children:
      - {name: hostname, kind: leaf, type: string}
      - {name: contact, kind: leaf, type: string}
  - name: interfaces
    kind: container
    children:
      - name: interface
        kind: list
        keys: [name]
        children:
          - {name: name, kind: leaf, type: string}
          - {name: mtu, kind: leaf, type: uint16}
          - {name: address, kind: leaf-list, type: string}
          - {name: enabled, kind: leaf, type: boolean}
  - name: protocols
    kind: container
    children:
      - name: bgp
        kind: container
        children:
          - {name: as-number, kind: leaf, type: uint32}
          - name: neighbor
            kind: list
            keys: [address]
            children:
              - {name: address, kind: leaf, type: string}
              - {name: peer-as, kind: leaf, type: uint32}
`

func treeTestModel(t *testing.T) *schema.Model {
	t.Helper()
	m, err := schema.Load([]byte(treeModel))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

// mustSet resolves a flat set line against the model and applies it.
func mustSet(t *testing.T, m *schema.Model, tree *Tree, line string) {
	t.Helper()
	path, sn, rest, err := ParsePath(m, SplitFields(line))
	if err != nil {
		t.Fatalf("ParsePath(%q): %v", line, err)
	}
	val := ""
	if len(rest) > 0 {
		val = rest[0]
	}
	tree.Set(sn, path, val)
}

func TestSetGetDelete(t *testing.T) {
	m := treeTestModel(t)
	tree := New()

	mustSet(t, m, tree, "system hostname rtr1")
	mustSet(t, m, tree, "interfaces interface eth0 mtu 1500")
	mustSet(t, m, tree, "interfaces interface eth0 address 10.0.0.1/24")
	mustSet(t, m, tree, "interfaces interface eth0 address 10.0.0.2/24")

	hn := tree.Get(Path{{Name: "system"}, {Name: "hostname"}})
	if hn == nil || hn.Value != "rtr1" {
		t.Fatalf("hostname = %+v", hn)
	}

	addr := tree.Get(Path{
		{Name: "interfaces"},
		{Name: "interface", Keys: []string{"eth0"}},
		{Name: "address"},
	})
	if addr == nil || len(addr.Values) != 2 {
		t.Fatalf("address = %+v", addr)
	}

	// Deleting one leaf-list value keeps the node.
	err := tree.Delete(Path{
		{Name: "interfaces"},
		{Name: "interface", Keys: []string{"eth0"}},
		{Name: "address"},
	}, "10.0.0.1/24")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	addr = tree.Get(Path{
		{Name: "interfaces"},
		{Name: "interface", Keys: []string{"eth0"}},
		{Name: "address"},
	})
	if addr == nil || len(addr.Values) != 1 || addr.Values[0] != "10.0.0.2/24" {
		t.Fatalf("address after delete = %+v", addr)
	}

	// Absent path reports NotFoundError.
	err = tree.Delete(Path{{Name: "system"}, {Name: "contact"}}, "")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
}

func TestDeletePrunesEmptyParents(t *testing.T) {
	m := treeTestModel(t)
	tree := New()

	mustSet(t, m, tree, "system hostname rtr1")
	if err := tree.Delete(Path{{Name: "system"}, {Name: "hostname"}}, ""); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if tree.Get(Path{{Name: "system"}}) != nil {
		t.Error("empty system container should be pruned")
	}
}

func TestCloneIsDeep(t *testing.T) {
	m := treeTestModel(t)
	tree := New()
	mustSet(t, m, tree, "system hostname rtr1")

	clone := tree.Clone()
	mustSet(t, m, clone, "system hostname other")

	if tree.Get(Path{{Name: "system"}, {Name: "hostname"}}).Value != "rtr1" {
		t.Error("mutating clone changed the original")
	}
	if Equal(tree, clone) {
		t.Error("trees should differ after clone edit")
	}
}

func TestDiffEmpty(t *testing.T) {
	m := treeTestModel(t)
	tree := New()
	mustSet(t, m, tree, "system hostname rtr1")
	mustSet(t, m, tree, "interfaces interface eth0 mtu 1500")

	if d := Diff(m, tree, tree.Clone()); len(d) != 0 {
		t.Errorf("diff of identical trees = %v", d)
	}
}

func TestDiffRoundTrip(t *testing.T) {
	m := treeTestModel(t)
	running := New()
	mustSet(t, m, running, "system hostname rtr1")
	mustSet(t, m, running, "interfaces interface eth0 mtu 1500")
	mustSet(t, m, running, "interfaces interface eth1 mtu 9000")
	mustSet(t, m, running, "protocols bgp as-number 65000")
	mustSet(t, m, running, "protocols bgp neighbor 10.0.0.1 peer-as 65001")

	candidate := running.Clone()
	mustSet(t, m, candidate, "system hostname rtr2")                       // modify
	mustSet(t, m, candidate, "interfaces interface eth2 mtu 1280")         // create
	mustSet(t, m, candidate, "interfaces interface eth0 address 10.1.1.1") // create leaf-list
	if err := candidate.Delete(Path{
		{Name: "interfaces"}, {Name: "interface", Keys: []string{"eth1"}},
	}, ""); err != nil {
		t.Fatalf("Delete eth1: %v", err)
	}

	d := Diff(m, running, candidate)
	if len(d) == 0 {
		t.Fatal("expected non-empty diff")
	}

	applied, err := Apply(m, running, d)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !Equal(applied, candidate) {
		t.Errorf("apply(running, diff) != candidate\napplied:\n%scandidate:\n%s",
			applied.Format(), candidate.Format())
	}
}

func TestDiffOrdering(t *testing.T) {
	m := treeTestModel(t)
	running := New()
	candidate := New()
	mustSet(t, m, candidate, "protocols bgp neighbor 10.0.0.1 peer-as 65001")

	d := Diff(m, running, candidate)

	// Created parents must precede created children.
	var order []string
	for _, e := range d {
		order = append(order, e.Path.String())
	}
	want := []string{
		"protocols",
		"protocols bgp",
		"protocols bgp neighbor 10.0.0.1",
		"protocols bgp neighbor 10.0.0.1 peer-as",
	}
	if len(order) != len(want) {
		t.Fatalf("diff order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("diff order = %v, want %v", order, want)
		}
	}

	// Reverse: deleted children precede deleted parents.
	d = Diff(m, candidate, running)
	if d[len(d)-1].Path.String() != "protocols" {
		t.Errorf("last delete should be the outermost container, got %v", d)
	}
	for i, e := range d {
		if e.Op != OpDelete {
			t.Errorf("entry %d op = %v, want delete", i, e.Op)
		}
	}
}

func TestSetLinesRoundTrip(t *testing.T) {
	m := treeTestModel(t)
	tree := New()
	mustSet(t, m, tree, "system hostname rtr1")
	mustSet(t, m, tree, "interfaces interface eth0 mtu 1500")
	mustSet(t, m, tree, "interfaces interface eth0 address 10.0.0.1/24")

	rebuilt, err := FromSetLines(m, tree.SetLines())
	if err != nil {
		t.Fatalf("FromSetLines: %v", err)
	}
	if !Equal(tree, rebuilt) {
		t.Errorf("set-line round trip mismatch:\n%s\nvs\n%s", tree.Format(), rebuilt.Format())
	}
}

func TestFormatQuoting(t *testing.T) {
	m := treeTestModel(t)
	tree := New()
	mustSet(t, m, tree, `system contact "Net Ops"`)

	if got := tree.Format(); !strings.Contains(got, `contact "Net Ops";`) {
		t.Errorf("Format = %q", got)
	}
	lines := tree.SetLines()
	if len(lines) != 1 || lines[0] != `system contact "Net Ops"` {
		t.Errorf("SetLines = %v", lines)
	}
}

func TestSplitFields(t *testing.T) {
	got := SplitFields(`set system contact "Net Ops" x`)
	want := []string{"set", "system", "contact", "Net Ops", "x"}
	if len(got) != len(want) {
		t.Fatalf("SplitFields = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SplitFields = %v, want %v", got, want)
		}
	}
}
