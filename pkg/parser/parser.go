package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/irino/holo-cli/pkg/cmdtree"
	"github.com/irino/holo-cli/pkg/configtree"
	"github.com/irino/holo-cli/pkg/schema"
	"github.com/irino/holo-cli/pkg/value"
)

// SyntaxError reports input that does not follow the command grammar,
// with the byte position of the offending token and the tokens that
// would have been accepted there.
type SyntaxError struct {
	Position int
	Got      string
	Expected []string
}

func (e *SyntaxError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("incomplete command, expecting %s", strings.Join(e.Expected, ", "))
	}
	return fmt.Sprintf("syntax error at %q (position %d), expecting %s",
		e.Got, e.Position, strings.Join(e.Expected, ", "))
}

// Command is a fully parsed input line, ready for dispatch.
type Command struct {
	Cmd  cmdtree.Command
	Path configtree.Path // schema path accumulated during the walk
	Leaf *schema.Node    // bound leaf for value-carrying commands
	// Value is the raw leaf or leaf-list value for set/delete.
	Value    string
	HasValue bool
	Typed    value.Typed
	// Args holds free-form argument slots keyed by their placeholder
	// name, e.g. "comment" or "n" for rollback.
	Args map[string]string
}

// Suggestion is one completion candidate. Literal suggestions may be
// inserted verbatim; hints (value placeholders) are display-only.
type Suggestion struct {
	Text    string
	Desc    string
	Literal bool
}

// walk is the shared grammar traversal. Parse consumes every token and
// demands a terminal node; Complete consumes all but the cursor word
// and reads out the reachable candidates.
type walk struct {
	tree *cmdtree.Tree
	ctx  configtree.Path // [edit] context, empty in operational mode

	cur    *cmdtree.Node
	path   configtree.Path
	leaf   *schema.Node
	value  string
	hasVal bool
	typed  value.Typed
	args   map[string]string
	first  bool
}

func newWalk(tree *cmdtree.Tree, ctx configtree.Path) *walk {
	return &walk{
		tree:  tree,
		ctx:   ctx,
		cur:   tree.Root,
		args:  make(map[string]string),
		first: true,
	}
}

// contextCommands are the configuration-mode commands whose paths are
// interpreted relative to the current [edit] context.
func contextCommand(kw string) bool {
	switch kw {
	case "set", "delete", "edit", "show":
		return true
	}
	return false
}

func (w *walk) step(tok Token) error {
	if n, err := cmdtree.ResolveKeyword(w.cur.Children, tok.Text); err != nil {
		return err
	} else if n != nil {
		w.cur = n
		if n.Schema != nil {
			w.path = append(w.path, configtree.Element{Name: n.Schema.Name})
		}
		if w.first && w.tree.Mode == cmdtree.ModeConfigure &&
			len(w.ctx) > 0 && contextCommand(n.Keyword) {
			fwd := cmdtree.DescendContext(n, w.ctx)
			if fwd == nil {
				return &SyntaxError{Position: tok.Start, Got: tok.Text,
					Expected: []string{"<valid edit context>"}}
			}
			w.cur = fwd
			w.path = w.ctx.Clone()
		}
		w.first = false
		return nil
	}
	slot := cmdtree.ArgSlot(w.cur.Children)
	if slot == nil {
		return &SyntaxError{Position: tok.Start, Got: tok.Text, Expected: w.expected()}
	}
	w.first = false
	if slot.Arg != nil {
		tv, err := value.Validate(slot.Arg, tok.Text)
		if err != nil {
			if verr, ok := err.(*value.Error); ok {
				verr.Position = tok.Start
			}
			return err
		}
		if slot.Schema != nil && slot.Schema.Kind == schema.KindList {
			// List key value: extend the last path element.
			last := &w.path[len(w.path)-1]
			last.Keys = append(last.Keys, tok.Text)
		} else {
			w.leaf = slot.Arg
			w.value = tok.Text
			w.hasVal = true
			w.typed = tv
		}
	} else {
		w.args[strings.Trim(slot.ArgName, "<>")] = tok.Text
	}
	w.cur = slot
	return nil
}

// expected lists the acceptable next tokens at the current node, for
// error messages and the incomplete-command case.
func (w *walk) expected() []string {
	var out []string
	for _, c := range w.cur.Children {
		if c.IsArg() {
			out = append(out, c.ArgName)
		} else {
			out = append(out, c.Keyword)
		}
	}
	sort.Strings(out)
	return out
}

// Parse consumes an entire input line against the command tree for the
// given mode, interpreting paths relative to ctx when in configuration
// mode. It returns a value.Error for ill-typed values, a SyntaxError
// otherwise when the line does not reach a complete command.
func Parse(tree *cmdtree.Tree, input string, ctx configtree.Path) (*Command, error) {
	tokens := Tokenize(input)
	if len(tokens) == 0 {
		return nil, &SyntaxError{Position: 0, Expected: rootKeywords(tree)}
	}
	w := newWalk(tree, ctx)
	for _, tok := range tokens {
		if err := w.step(tok); err != nil {
			return nil, err
		}
	}
	if w.cur.Cmd == cmdtree.CmdNone {
		return nil, &SyntaxError{Position: len(input), Expected: w.expected()}
	}
	return &Command{
		Cmd:      w.cur.Cmd,
		Path:     w.path,
		Leaf:     w.leaf,
		Value:    w.value,
		HasValue: w.hasVal,
		Typed:    w.typed,
		Args:     w.args,
	}, nil
}

func rootKeywords(tree *cmdtree.Tree) []string {
	var out []string
	for _, c := range tree.Root.Children {
		out = append(out, c.Keyword)
	}
	sort.Strings(out)
	return out
}

// Complete returns the candidates reachable from the text before the
// cursor. A trailing space asks for the next position's candidates;
// otherwise the final word filters them as a prefix. Input that already
// fails to parse yields no suggestions.
func Complete(tree *cmdtree.Tree, text string, ctx configtree.Path) []Suggestion {
	tokens := Tokenize(text)
	partial := ""
	if !EndsInSpace(text) && len(tokens) > 0 {
		partial = tokens[len(tokens)-1].Text
		tokens = tokens[:len(tokens)-1]
	}
	w := newWalk(tree, ctx)
	for _, tok := range tokens {
		if err := w.step(tok); err != nil {
			return nil
		}
	}
	return suggestions(w.cur, partial)
}

func suggestions(n *cmdtree.Node, partial string) []Suggestion {
	var out []Suggestion
	for _, c := range n.Children {
		if !c.IsArg() {
			if strings.HasPrefix(c.Keyword, partial) {
				out = append(out, Suggestion{Text: c.Keyword, Desc: c.Desc, Literal: true})
			}
			continue
		}
		if c.Arg != nil {
			vals := boundedValues(c.Arg)
			if len(vals) > 0 {
				for _, v := range vals {
					if strings.HasPrefix(v, partial) {
						out = append(out, Suggestion{Text: v, Desc: c.Arg.Desc, Literal: true})
					}
				}
				continue
			}
		}
		if partial == "" {
			desc := c.Desc
			if c.Arg != nil {
				desc = c.Arg.Desc
			}
			out = append(out, Suggestion{Text: argHint(c), Desc: desc})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Text < out[j].Text })
	return out
}

// boundedValues returns the enumerable literal values of a leaf, if its
// type has any.
func boundedValues(n *schema.Node) []string {
	switch n.Type {
	case schema.TypeBool:
		return []string{"false", "true"}
	case schema.TypeEnumeration:
		return append([]string(nil), n.Enum...)
	}
	return nil
}

func argHint(n *cmdtree.Node) string {
	if n.Arg != nil {
		return value.Hint(n.Arg)[0]
	}
	return n.ArgName
}

// CommonPrefix returns the longest shared prefix of the literal
// suggestions, for in-line completion. Non-literal hints do not
// participate.
func CommonPrefix(sug []Suggestion) string {
	var lits []string
	for _, s := range sug {
		if s.Literal {
			lits = append(lits, s.Text)
		}
	}
	return cmdtree.CommonPrefix(lits)
}
