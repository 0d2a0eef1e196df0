package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// modelDoc is the on-disk YAML shape of a model description.
type modelDoc struct {
	Name      string                 `yaml:"name"`
	Version   string                 `yaml:"version"`
	Typedefs  map[string]*typedefDoc `yaml:"typedefs"`
	Groupings map[string]*nodeDoc    `yaml:"groupings"`
	Nodes     []*nodeDoc             `yaml:"nodes"`
}

type typedefDoc struct {
	Type    string   `yaml:"type"`
	Pattern string   `yaml:"pattern"`
	Range   string   `yaml:"range"`
	Length  string   `yaml:"length"`
	Enum    []string `yaml:"enum"`
	Units   string   `yaml:"units"`
}

type nodeDoc struct {
	Name        string     `yaml:"name"`
	Kind        string     `yaml:"kind"`
	Description string     `yaml:"description"`
	State       bool       `yaml:"state"` // true marks a state-only subtree
	Type        string     `yaml:"type"`
	Pattern     string     `yaml:"pattern"`
	Range       string     `yaml:"range"`
	Length      string     `yaml:"length"`
	Enum        []string   `yaml:"enum"`
	Default     string     `yaml:"default"`
	Units       string     `yaml:"units"`
	Mandatory   bool       `yaml:"mandatory"`
	Requires    []string   `yaml:"requires"`
	Keys        []string   `yaml:"keys"`
	Uses        []string   `yaml:"uses"`
	Children    []*nodeDoc `yaml:"children"`
}

var builtinTypes = map[string]Type{
	"string":      TypeString,
	"boolean":     TypeBool,
	"int8":        TypeInt8,
	"int16":       TypeInt16,
	"int32":       TypeInt32,
	"int64":       TypeInt64,
	"uint8":       TypeUint8,
	"uint16":      TypeUint16,
	"uint32":      TypeUint32,
	"uint64":      TypeUint64,
	"enumeration": TypeEnumeration,
}

// Load parses a model description and returns the immutable Model.
// A malformed description (unknown kind, unresolved type reference,
// cyclic grouping use, duplicate identifier under one parent, invalid
// pattern) fails with *Error.
func Load(source []byte) (*Model, error) {
	var doc modelDoc
	if err := yaml.Unmarshal(source, &doc); err != nil {
		return nil, &Error{Reason: fmt.Sprintf("parse model description: %v", err)}
	}
	if doc.Name == "" {
		return nil, &Error{Reason: "model has no name"}
	}

	ld := &loader{doc: &doc, inUse: make(map[string]bool)}

	root := &Node{Kind: KindContainer, Config: true}
	for _, nd := range doc.Nodes {
		child, err := ld.buildNode(nd, true, nd.Name)
		if err != nil {
			return nil, err
		}
		root.Children = append(root.Children, child)
	}
	if err := finalize(root, ""); err != nil {
		return nil, err
	}

	return &Model{Name: doc.Name, Version: doc.Version, root: root}, nil
}

type loader struct {
	doc   *modelDoc
	inUse map[string]bool // grouping expansion stack, for cycle detection
}

func (ld *loader) buildNode(nd *nodeDoc, parentConfig bool, path string) (*Node, error) {
	if nd.Name == "" {
		return nil, &Error{Path: path, Reason: "node has no name"}
	}

	kind, err := parseKind(nd.Kind, path)
	if err != nil {
		return nil, err
	}

	n := &Node{
		Name:      nd.Name,
		Kind:      kind,
		Desc:      nd.Description,
		Config:    parentConfig && !nd.State,
		Default:   nd.Default,
		Units:     nd.Units,
		Mandatory: nd.Mandatory,
		Requires:  append([]string(nil), nd.Requires...),
		Keys:      append([]string(nil), nd.Keys...),
	}

	switch kind {
	case KindLeaf, KindLeafList:
		if err := ld.resolveType(n, nd, path); err != nil {
			return nil, err
		}
		if len(nd.Children) > 0 || len(nd.Uses) > 0 {
			return nil, &Error{Path: path, Reason: "leaf nodes cannot have children"}
		}
	case KindList:
		if len(nd.Keys) == 0 {
			return nil, &Error{Path: path, Reason: "list declares no keys"}
		}
	case KindChoice:
		for _, c := range nd.Children {
			if c.Kind != "case" {
				return nil, &Error{Path: path, Reason: fmt.Sprintf("choice child %q is not a case", c.Name)}
			}
		}
	}

	// Expand grouping references before literal children so shared
	// structure keeps a stable position.
	for _, use := range nd.Uses {
		expanded, err := ld.expandGrouping(use, n.Config, path)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, expanded...)
	}
	for _, cd := range nd.Children {
		child, err := ld.buildNode(cd, n.Config, path+" "+cd.Name)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}

	if kind == KindList {
		for _, key := range n.Keys {
			found := false
			for _, c := range n.Children {
				if c.Name == key && c.Kind == KindLeaf {
					found = true
					break
				}
			}
			if !found {
				return nil, &Error{Path: path, Reason: fmt.Sprintf("list key %q is not a leaf child", key)}
			}
		}
	}

	return n, nil
}

func (ld *loader) expandGrouping(name string, parentConfig bool, path string) ([]*Node, error) {
	g, ok := ld.doc.Groupings[name]
	if !ok {
		return nil, &Error{Path: path, Reason: fmt.Sprintf("unresolved grouping reference %q", name)}
	}
	if ld.inUse[name] {
		return nil, &Error{Path: path, Reason: fmt.Sprintf("cyclic grouping reference %q", name)}
	}
	ld.inUse[name] = true
	defer delete(ld.inUse, name)

	var nodes []*Node
	for _, use := range g.Uses {
		expanded, err := ld.expandGrouping(use, parentConfig, path)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, expanded...)
	}
	for _, cd := range g.Children {
		child, err := ld.buildNode(cd, parentConfig, path+" "+cd.Name)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, child)
	}
	return nodes, nil
}

// resolveType fills in the leaf type attributes, following typedef
// references. A node's own constraints tighten the typedef's.
func (ld *loader) resolveType(n *Node, nd *nodeDoc, path string) error {
	typeName := nd.Type
	pattern := nd.Pattern
	rng := nd.Range
	length := nd.Length
	enum := nd.Enum
	units := nd.Units

	seen := map[string]bool{}
	for {
		if typeName == "" {
			if len(enum) > 0 {
				typeName = "enumeration"
				continue
			}
			return &Error{Path: path, Reason: "leaf has no type"}
		}
		if t, ok := builtinTypes[typeName]; ok {
			n.Type = t
			break
		}
		td, ok := ld.doc.Typedefs[typeName]
		if !ok {
			return &Error{Path: path, Reason: fmt.Sprintf("unresolved type reference %q", typeName)}
		}
		if seen[typeName] {
			return &Error{Path: path, Reason: fmt.Sprintf("cyclic type reference %q", typeName)}
		}
		seen[typeName] = true

		if pattern == "" {
			pattern = td.Pattern
		}
		if rng == "" {
			rng = td.Range
		}
		if length == "" {
			length = td.Length
		}
		if len(enum) == 0 {
			enum = td.Enum
		}
		if units == "" {
			units = td.Units
		}
		typeName = td.Type
	}

	if n.Type == TypeEnumeration && len(enum) == 0 {
		return &Error{Path: path, Reason: "enumeration declares no values"}
	}
	n.Enum = append([]string(nil), enum...)
	n.Units = units

	if pattern != "" {
		if n.Type != TypeString {
			return &Error{Path: path, Reason: "pattern constraint on non-string type"}
		}
		// Anchor the pattern: a value matches only when the whole
		// string does.
		re, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			return &Error{Path: path, Reason: fmt.Sprintf("invalid pattern: %v", err)}
		}
		n.Pattern = pattern
		n.pattern = re
	}

	if rng != "" {
		if !n.Type.IsInteger() {
			return &Error{Path: path, Reason: "range constraint on non-integer type"}
		}
		r, err := parseRange(rng)
		if err != nil {
			return &Error{Path: path, Reason: err.Error()}
		}
		n.Range = r
	}
	if length != "" {
		if n.Type != TypeString {
			return &Error{Path: path, Reason: "length constraint on non-string type"}
		}
		r, err := parseRange(length)
		if err != nil {
			return &Error{Path: path, Reason: err.Error()}
		}
		n.Length = r
	}
	return nil
}

// parseRange accepts "min..max", "..max", "min..", or a single value.
func parseRange(s string) (*Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty range")
	}
	if !strings.Contains(s, "..") {
		if !numericBound(s) {
			return nil, fmt.Errorf("range bound %q is not numeric", s)
		}
		return &Range{MinRaw: s, MaxRaw: s}, nil
	}
	parts := strings.SplitN(s, "..", 2)
	r := &Range{MinRaw: strings.TrimSpace(parts[0]), MaxRaw: strings.TrimSpace(parts[1])}
	if r.MinRaw == "" && r.MaxRaw == "" {
		return nil, fmt.Errorf("range %q has no bounds", s)
	}
	for _, b := range []string{r.MinRaw, r.MaxRaw} {
		if b != "" && !numericBound(b) {
			return nil, fmt.Errorf("range bound %q is not numeric", b)
		}
	}
	return r, nil
}

func numericBound(s string) bool {
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return true
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

func parseKind(s, path string) (Kind, error) {
	switch s {
	case "container", "":
		return KindContainer, nil
	case "list":
		return KindList, nil
	case "leaf":
		return KindLeaf, nil
	case "leaf-list":
		return KindLeafList, nil
	case "choice":
		return KindChoice, nil
	case "case":
		return KindCase, nil
	default:
		return 0, &Error{Path: path, Reason: fmt.Sprintf("unknown node kind %q", s)}
	}
}
