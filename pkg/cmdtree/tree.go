// Package cmdtree derives the executable command grammar from a schema
// model. It is the single source of truth for both tab completion and
// line parsing: one tree per mode, built once at startup and shared
// read-only by every session.
package cmdtree

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/irino/holo-cli/pkg/configtree"
	"github.com/irino/holo-cli/pkg/schema"
)

// Mode selects which command tree to build.
type Mode int

const (
	ModeOperational Mode = iota
	ModeConfigure
)

// Command identifies the operation a fully parsed line resolves to.
type Command int

const (
	CmdNone Command = iota
	CmdConfigure
	CmdQuit
	CmdExit
	CmdShowConfiguration
	CmdShowState
	CmdMonitorState
	CmdShowVersion
	CmdShowLog
	CmdShowCommits
	CmdSet
	CmdDelete
	CmdEdit
	CmdUp
	CmdTop
	CmdShow
	CmdCommit
	CmdCommitCheck
	CmdRollback
	CmdDiscard
	CmdRun
)

// Node is one grammar node: either a keyword literal or an argument
// slot bound to a schema leaf. Cmd marks nodes where a submitted line
// may legally end.
type Node struct {
	Keyword  string // empty for argument slots
	Desc     string
	Arg      *schema.Node // schema leaf bound to an argument slot
	ArgName  string       // display name for the slot, e.g. "<name>"
	Schema   *schema.Node // schema node this grammar node descends into
	Cmd      Command
	Children []*Node
}

// IsArg reports whether the node is an argument slot.
func (n *Node) IsArg() bool { return n.Keyword == "" }

// Tree is the command grammar for one mode.
type Tree struct {
	Mode Mode
	Root *Node
}

// Build derives the command tree for the given mode from the model.
func Build(model *schema.Model, mode Mode) *Tree {
	b := &builder{model: model}
	switch mode {
	case ModeConfigure:
		return &Tree{Mode: mode, Root: b.configRoot()}
	default:
		return &Tree{Mode: mode, Root: b.operationalRoot()}
	}
}

type builder struct {
	model *schema.Model
}

func (b *builder) operationalRoot() *Node {
	show := &Node{Keyword: "show", Desc: "Show information"}
	show.Children = append(show.Children,
		&Node{Keyword: "configuration", Desc: "Show running configuration", Cmd: CmdShowConfiguration},
		&Node{Keyword: "version", Desc: "Show software version", Cmd: CmdShowVersion},
		&Node{Keyword: "cli", Desc: "Show CLI internals", Children: []*Node{
			{Keyword: "log", Desc: "Show recent CLI log entries", Cmd: CmdShowLog, Children: []*Node{
				{ArgName: "<n>", Desc: "Number of entries to show", Cmd: CmdShowLog},
			}},
			{Keyword: "commits", Desc: "Show commit history with rollback indices", Cmd: CmdShowCommits},
		}},
	)

	// Read-only show commands are derived from the model's state-bearing
	// subtrees. The top-level state container itself is transparent so
	// operators type "show interfaces", not "show state interfaces".
	for _, top := range b.model.Root().VisibleChildren() {
		if top.Config {
			continue
		}
		for _, sub := range top.VisibleChildren() {
			show.Children = append(show.Children, b.buildShowState(sub))
		}
	}

	monitor := &Node{Keyword: "monitor", Desc: "Stream state changes", Children: []*Node{
		{Keyword: "state", Desc: "Stream state deltas as they occur", Cmd: CmdMonitorState},
	}}

	return &Node{Children: []*Node{
		{Keyword: "configure", Desc: "Enter configuration mode", Cmd: CmdConfigure},
		show,
		monitor,
		{Keyword: "quit", Desc: "Exit the CLI", Cmd: CmdQuit},
		{Keyword: "exit", Desc: "Exit the CLI", Cmd: CmdQuit},
	}}
}

// buildShowState derives a show command for a state subtree. A line may
// stop at any depth; list key slots act as optional filters.
func (b *builder) buildShowState(sn *schema.Node) *Node {
	n := &Node{Keyword: sn.Name, Desc: sn.Desc, Schema: sn, Cmd: CmdShowState}

	switch sn.Kind {
	case schema.KindList:
		tail := n
		for _, key := range sn.Keys {
			keyLeaf := sn.VisibleChild(key)
			slot := &Node{
				Arg: keyLeaf, ArgName: "<" + key + ">",
				Desc: keyDesc(keyLeaf), Schema: sn, Cmd: CmdShowState,
			}
			tail.Children = append(tail.Children, slot)
			tail = slot
		}
		for _, c := range sn.VisibleChildren() {
			if isListKey(sn, c.Name) || c.Kind == schema.KindLeaf || c.Kind == schema.KindLeafList {
				continue
			}
			tail.Children = append(tail.Children, b.buildShowState(c))
		}
	case schema.KindContainer:
		for _, c := range sn.VisibleChildren() {
			if c.Kind == schema.KindLeaf || c.Kind == schema.KindLeafList {
				continue
			}
			n.Children = append(n.Children, b.buildShowState(c))
		}
	}
	return n
}

func (b *builder) configRoot() *Node {
	root := b.model.Root()

	set := &Node{Keyword: "set", Desc: "Set a configuration value"}
	for _, c := range root.VisibleChildren() {
		if !c.Config {
			continue
		}
		set.Children = append(set.Children, b.buildEdit(c, CmdSet, false))
	}

	del := &Node{Keyword: "delete", Desc: "Delete a configuration element"}
	for _, c := range root.VisibleChildren() {
		if !c.Config {
			continue
		}
		del.Children = append(del.Children, b.buildEdit(c, CmdDelete, true))
	}

	edit := &Node{Keyword: "edit", Desc: "Descend into a configuration context"}
	for _, c := range root.VisibleChildren() {
		if !c.Config {
			continue
		}
		if n := b.buildContext(c); n != nil {
			edit.Children = append(edit.Children, n)
		}
	}

	show := &Node{Keyword: "show", Desc: "Show candidate configuration", Cmd: CmdShow}
	for _, c := range root.VisibleChildren() {
		if !c.Config {
			continue
		}
		show.Children = append(show.Children, b.buildEdit(c, CmdShow, true))
	}

	commit := &Node{Keyword: "commit", Desc: "Commit the candidate configuration", Cmd: CmdCommit, Children: []*Node{
		{Keyword: "check", Desc: "Validate without applying", Cmd: CmdCommitCheck},
		{Keyword: "comment", Desc: "Record a commit comment", Children: []*Node{
			{ArgName: "<comment>", Desc: "Comment text", Cmd: CmdCommit},
		}},
	}}

	rollback := &Node{Keyword: "rollback", Desc: "Revert candidate to a previous commit", Cmd: CmdRollback, Children: []*Node{
		{ArgName: "<n>", Desc: "How many commits back", Cmd: CmdRollback},
	}}

	run := &Node{Keyword: "run", Desc: "Run an operational command", Children: b.operationalRoot().Children}

	return &Node{Children: []*Node{
		set,
		del,
		edit,
		show,
		commit,
		rollback,
		{Keyword: "discard", Desc: "Discard uncommitted changes", Cmd: CmdDiscard},
		{Keyword: "up", Desc: "Ascend one configuration level", Cmd: CmdUp},
		{Keyword: "top", Desc: "Return to the top configuration level", Cmd: CmdTop},
		run,
		{Keyword: "exit", Desc: "Exit configuration mode", Cmd: CmdExit},
		{Keyword: "quit", Desc: "Exit configuration mode", Cmd: CmdExit},
	}}
}

// buildEdit derives the set/delete/show grammar for one schema node.
// stopAnywhere permits the line to end before reaching a leaf value
// (delete and show do; set requires a value once a leaf is named).
func (b *builder) buildEdit(sn *schema.Node, cmd Command, stopAnywhere bool) *Node {
	switch sn.Kind {
	case schema.KindLeaf, schema.KindLeafList:
		n := &Node{Keyword: sn.Name, Desc: sn.Desc, Schema: sn}
		if stopAnywhere {
			n.Cmd = cmd
		}
		n.Children = []*Node{{
			Arg: sn, ArgName: "<" + sn.Name + ">", Desc: sn.Desc, Cmd: cmd,
		}}
		return n

	case schema.KindList:
		n := &Node{Keyword: sn.Name, Desc: sn.Desc, Schema: sn}
		if stopAnywhere {
			n.Cmd = cmd
		}
		// Key values must be supplied before any nested edit.
		tail := n
		for _, key := range sn.Keys {
			keyLeaf := sn.VisibleChild(key)
			slot := &Node{
				Arg: keyLeaf, ArgName: "<" + key + ">",
				Desc: keyDesc(keyLeaf), Schema: sn,
			}
			tail.Children = append(tail.Children, slot)
			tail = slot
		}
		tail.Cmd = cmd // a bare list entry may be created or deleted
		for _, c := range sn.VisibleChildren() {
			if isListKey(sn, c.Name) {
				continue
			}
			tail.Children = append(tail.Children, b.buildEdit(c, cmd, stopAnywhere))
		}
		return n

	default: // container
		n := &Node{Keyword: sn.Name, Desc: sn.Desc, Schema: sn}
		if stopAnywhere {
			n.Cmd = cmd
		}
		for _, c := range sn.VisibleChildren() {
			n.Children = append(n.Children, b.buildEdit(c, cmd, stopAnywhere))
		}
		return n
	}
}

// buildContext derives the edit-command grammar: containers and list
// entries only, since a sub-context cannot be a leaf.
func (b *builder) buildContext(sn *schema.Node) *Node {
	switch sn.Kind {
	case schema.KindContainer:
		n := &Node{Keyword: sn.Name, Desc: sn.Desc, Schema: sn, Cmd: CmdEdit}
		for _, c := range sn.VisibleChildren() {
			if child := b.buildContext(c); child != nil {
				n.Children = append(n.Children, child)
			}
		}
		return n
	case schema.KindList:
		n := &Node{Keyword: sn.Name, Desc: sn.Desc, Schema: sn}
		tail := n
		for _, key := range sn.Keys {
			keyLeaf := sn.VisibleChild(key)
			slot := &Node{
				Arg: keyLeaf, ArgName: "<" + key + ">",
				Desc: keyDesc(keyLeaf), Schema: sn,
			}
			tail.Children = append(tail.Children, slot)
			tail = slot
		}
		tail.Cmd = CmdEdit
		for _, c := range sn.VisibleChildren() {
			if isListKey(sn, c.Name) {
				continue
			}
			if child := b.buildContext(c); child != nil {
				tail.Children = append(tail.Children, child)
			}
		}
		return n
	default:
		return nil
	}
}

func isListKey(list *schema.Node, name string) bool {
	for _, k := range list.Keys {
		if k == name {
			return true
		}
	}
	return false
}

func keyDesc(leaf *schema.Node) string {
	if leaf == nil {
		return ""
	}
	return leaf.Desc
}

// AmbiguousError reports a keyword prefix matching more than one child.
type AmbiguousError struct {
	Token      string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous command %q (%s)", e.Token, strings.Join(e.Candidates, ", "))
}

// ResolveKeyword selects a keyword child for a typed token. An exact
// match wins over prefix matches; otherwise a unique prefix match is
// selected; more than one prefix match is an ambiguity error. A nil
// result with nil error means no keyword matched (the token may still
// bind to an argument slot).
func ResolveKeyword(children []*Node, token string) (*Node, error) {
	var prefix []*Node
	for _, c := range children {
		if c.IsArg() {
			continue
		}
		if c.Keyword == token {
			return c, nil
		}
		if strings.HasPrefix(c.Keyword, token) {
			prefix = append(prefix, c)
		}
	}
	switch len(prefix) {
	case 0:
		return nil, nil
	case 1:
		return prefix[0], nil
	default:
		names := make([]string, len(prefix))
		for i, c := range prefix {
			names[i] = c.Keyword
		}
		sort.Strings(names)
		return nil, &AmbiguousError{Token: token, Candidates: names}
	}
}

// ArgSlot returns the argument slot among children, or nil.
func ArgSlot(children []*Node) *Node {
	for _, c := range children {
		if c.IsArg() {
			return c
		}
	}
	return nil
}

// DescendContext fast-forwards a grammar node to the session's current
// configuration context: keyword steps follow children by name, and list
// elements additionally consume one argument slot per key value.
func DescendContext(n *Node, path configtree.Path) *Node {
	for _, e := range path {
		next, err := ResolveKeyword(n.Children, e.Name)
		if err != nil || next == nil {
			return nil
		}
		n = next
		for range e.Keys {
			slot := ArgSlot(n.Children)
			if slot == nil {
				return nil
			}
			n = slot
		}
	}
	return n
}

// Candidate holds a completion candidate name and description.
type Candidate struct {
	Name string
	Desc string
}

// CommonPrefix returns the longest shared prefix among the given strings.
func CommonPrefix(items []string) string {
	if len(items) == 0 {
		return ""
	}
	prefix := items[0]
	for _, s := range items[1:] {
		for !strings.HasPrefix(s, prefix) {
			prefix = prefix[:len(prefix)-1]
			if prefix == "" {
				return ""
			}
		}
	}
	return prefix
}

// FilterPrefix returns only items that start with the given prefix.
func FilterPrefix(items []string, prefix string) []string {
	if prefix == "" {
		return items
	}
	var result []string
	for _, item := range items {
		if strings.HasPrefix(item, prefix) {
			result = append(result, item)
		}
	}
	return result
}

// WriteHelp prints aligned completion candidates to w. The output is
// built as a single string and written in one call so readline's
// wrapped writer refreshes only once.
func WriteHelp(w io.Writer, candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	maxWidth := 20
	for _, c := range candidates {
		if len(c.Name)+2 > maxWidth {
			maxWidth = len(c.Name) + 2
		}
	}
	var sb strings.Builder
	sb.WriteString("Possible completions:\n")
	for _, c := range candidates {
		if c.Desc != "" {
			fmt.Fprintf(&sb, "  %-*s %s\n", maxWidth, c.Name, c.Desc)
		} else {
			fmt.Fprintf(&sb, "  %s\n", c.Name)
		}
	}
	io.WriteString(w, sb.String())
}
