package cmdtree

import (
	"reflect"
	"testing"

	"github.com/irino/holo-cli/pkg/configtree"
	"github.com/irino/holo-cli/pkg/schema"
)

const testModel = `
name: grammar-test
version: "1"
nodes:
  - name: system
    kind: container
    description: "System parameters"
    children:
      - name: host-name
        kind: leaf
        type: string
        description: "Host name"
  - name: interfaces
    kind: container
    description: "Interface configuration"
    children:
      - name: interface
        kind: list
        keys: [name]
        description: "Network interface"
        children:
          - name: name
            kind: leaf
            type: string
            description: "Interface name"
          - name: mtu
            kind: leaf
            type: uint16
            range: "68..9216"
            description: "Maximum transmission unit"
  - name: state
    kind: container
    state: true
    children:
      - name: interfaces
        kind: container
        description: "Interface state"
        children:
          - name: interface
            kind: list
            keys: [name]
            children:
              - name: name
                kind: leaf
                type: string
                description: "Interface name"
              - name: oper-status
                kind: leaf
                type: string
      - name: instances
        kind: list
        keys: [name]
        description: "Protocol instances"
        children:
          - name: name
            kind: leaf
            type: string
            description: "Instance name"
`

func mustModel(t *testing.T) *schema.Model {
	t.Helper()
	m, err := schema.Load([]byte(testModel))
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	return m
}

func childKeywords(n *Node) []string {
	var out []string
	for _, c := range n.Children {
		if !c.IsArg() {
			out = append(out, c.Keyword)
		}
	}
	return out
}

func mustStep(t *testing.T, n *Node, token string) *Node {
	t.Helper()
	next, err := ResolveKeyword(n.Children, token)
	if err != nil {
		t.Fatalf("resolve %q: %v", token, err)
	}
	if next == nil {
		t.Fatalf("resolve %q: no match among %v", token, childKeywords(n))
	}
	return next
}

func TestOperationalShowAmbiguity(t *testing.T) {
	tree := Build(mustModel(t), ModeOperational)

	show := mustStep(t, tree.Root, "sh")
	if show.Keyword != "show" {
		t.Fatalf("resolved %q, want show", show.Keyword)
	}

	// "in" matches both derived state subtrees.
	_, err := ResolveKeyword(show.Children, "in")
	amb, ok := err.(*AmbiguousError)
	if !ok {
		t.Fatalf("want AmbiguousError, got %v", err)
	}
	want := []string{"instances", "interfaces"}
	if !reflect.DeepEqual(amb.Candidates, want) {
		t.Fatalf("candidates = %v, want %v", amb.Candidates, want)
	}

	// One more character disambiguates.
	ifs := mustStep(t, show, "inter")
	if ifs.Keyword != "interfaces" || ifs.Cmd != CmdShowState {
		t.Fatalf("got %q cmd %d", ifs.Keyword, ifs.Cmd)
	}
}

func TestResolveKeywordExactWins(t *testing.T) {
	children := []*Node{
		{Keyword: "up"},
		{Keyword: "update"},
	}
	n, err := ResolveKeyword(children, "up")
	if err != nil || n == nil || n.Keyword != "up" {
		t.Fatalf("got %v, %v; want exact match up", n, err)
	}
	if n, err = ResolveKeyword(children, "upd"); err != nil || n.Keyword != "update" {
		t.Fatalf("got %v, %v; want unique prefix update", n, err)
	}
	if n, _ = ResolveKeyword(children, "down"); n != nil {
		t.Fatalf("got %v, want no match", n)
	}
}

func TestSetGrammarRequiresValue(t *testing.T) {
	tree := Build(mustModel(t), ModeConfigure)

	n := mustStep(t, tree.Root, "set")
	n = mustStep(t, n, "system")
	if n.Cmd != CmdNone {
		t.Fatal("set system should not be a complete command")
	}
	n = mustStep(t, n, "host-name")
	if n.Cmd != CmdNone {
		t.Fatal("set of a leaf without a value should not be complete")
	}
	slot := ArgSlot(n.Children)
	if slot == nil || slot.Arg == nil || slot.Arg.Name != "host-name" {
		t.Fatalf("leaf value slot = %+v", slot)
	}
	if slot.Cmd != CmdSet {
		t.Fatal("leaf value slot should complete a set")
	}
}

func TestDeleteStopsAnywhere(t *testing.T) {
	tree := Build(mustModel(t), ModeConfigure)

	n := mustStep(t, tree.Root, "delete")
	n = mustStep(t, n, "interfaces")
	if n.Cmd != CmdDelete {
		t.Fatal("delete may stop at a container")
	}
	n = mustStep(t, n, "interface")
	slot := ArgSlot(n.Children)
	if slot == nil || slot.Arg == nil || !slot.Arg.IsKey() {
		t.Fatalf("list key slot = %+v", slot)
	}
	if slot.Cmd != CmdDelete {
		t.Fatal("a bare list entry should be deletable")
	}
}

func TestBareListEntryCreatable(t *testing.T) {
	tree := Build(mustModel(t), ModeConfigure)

	n := mustStep(t, tree.Root, "set")
	n = mustStep(t, n, "interfaces")
	n = mustStep(t, n, "interface")
	if n.Cmd != CmdNone {
		t.Fatal("list without key values should not be complete for set")
	}
	slot := ArgSlot(n.Children)
	if slot.Cmd != CmdSet {
		t.Fatal("set interface <name> should create the entry")
	}
	// Non-key children hang off the key slot.
	if mustStep(t, slot, "mtu") == nil {
		t.Fatal("mtu not reachable after key value")
	}
}

func TestEditContextExcludesLeaves(t *testing.T) {
	tree := Build(mustModel(t), ModeConfigure)

	n := mustStep(t, tree.Root, "edit")
	n = mustStep(t, n, "system")
	if n.Cmd != CmdEdit {
		t.Fatal("edit system should be complete")
	}
	if got, _ := ResolveKeyword(n.Children, "host-name"); got != nil {
		t.Fatal("leaves must not be edit contexts")
	}
}

func TestDescendContext(t *testing.T) {
	tree := Build(mustModel(t), ModeConfigure)
	set := mustStep(t, tree.Root, "set")

	ctx := configtree.Path{
		{Name: "interfaces"},
		{Name: "interface", Keys: []string{"eth0"}},
	}
	n := DescendContext(set, ctx)
	if n == nil {
		t.Fatal("context descent failed")
	}
	if mustStep(t, n, "mtu") == nil {
		t.Fatal("mtu not reachable from context")
	}
	if DescendContext(set, configtree.Path{{Name: "nonesuch"}}) != nil {
		t.Fatal("bogus context should not resolve")
	}
}

func TestShowCliCommands(t *testing.T) {
	tree := Build(mustModel(t), ModeOperational)

	cli := mustStep(t, mustStep(t, tree.Root, "show"), "cli")
	n := mustStep(t, cli, "log")
	if n.Cmd != CmdShowLog {
		t.Fatalf("show cli log cmd = %d", n.Cmd)
	}
	n = mustStep(t, cli, "commits")
	if n.Cmd != CmdShowCommits {
		t.Fatalf("show cli commits cmd = %d", n.Cmd)
	}
}

func TestRunSplicesOperationalCommands(t *testing.T) {
	tree := Build(mustModel(t), ModeConfigure)

	n := mustStep(t, tree.Root, "run")
	n = mustStep(t, n, "show")
	n = mustStep(t, n, "version")
	if n.Cmd != CmdShowVersion {
		t.Fatalf("run show version cmd = %d", n.Cmd)
	}
}

func TestCommonPrefixAndFilter(t *testing.T) {
	items := []string{"interface", "interfaces", "instances"}
	if got := CommonPrefix(items); got != "in" {
		t.Fatalf("CommonPrefix = %q", got)
	}
	if got := FilterPrefix(items, "inter"); len(got) != 2 {
		t.Fatalf("FilterPrefix = %v", got)
	}
	if CommonPrefix(nil) != "" {
		t.Fatal("empty input should yield empty prefix")
	}
}
